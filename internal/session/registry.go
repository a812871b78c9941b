package session

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/rashdiman/ridepulse/internal/apperr"
	"github.com/rashdiman/ridepulse/internal/db"

	"github.com/google/uuid"
)

// Registry is the single source of truth for live sessions. Rows are written
// through to Postgres best-effort; registry state stays authoritative while
// a session is active, the store owns it once closed.
type Registry struct {
	db db.Querier

	mu       sync.RWMutex
	sessions map[string]*Session
	byRider  map[string]string
	lastSeen map[string]time.Time
}

func NewRegistry(q db.Querier) *Registry {
	return &Registry{
		db:       q,
		sessions: map[string]*Session{},
		byRider:  map[string]string{},
		lastSeen: map[string]time.Time{},
	}
}

// Open starts a session for the rider. At most one active session per rider.
func (r *Registry) Open(ctx context.Context, riderID, riderName, teamID string, devices []DeviceInfo) (Session, error) {
	if devices == nil {
		devices = []DeviceInfo{}
	}
	s := &Session{
		ID:         uuid.NewString(),
		RiderID:    riderID,
		RiderName:  riderName,
		TeamID:     teamID,
		StartTime:  time.Now().UnixMilli(),
		DeviceInfo: devices,
		IsActive:   true,
	}

	r.mu.Lock()
	if _, exists := r.byRider[riderID]; exists {
		r.mu.Unlock()
		return Session{}, apperr.ErrConflict
	}
	r.sessions[s.ID] = s
	r.byRider[riderID] = s.ID
	r.lastSeen[s.ID] = time.Now()
	r.mu.Unlock()

	r.persistOpen(ctx, s)
	return *s, nil
}

// Close ends the session. Only the owning rider may close it.
func (r *Registry) Close(ctx context.Context, sessionID, requesterID string) (Session, error) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return Session{}, apperr.ErrNotFound
	}
	if s.RiderID != requesterID {
		r.mu.Unlock()
		return Session{}, apperr.ErrForbidden
	}
	s.EndTime = time.Now().UnixMilli()
	s.IsActive = false
	closed := *s
	delete(r.sessions, sessionID)
	delete(r.byRider, s.RiderID)
	delete(r.lastSeen, sessionID)
	r.mu.Unlock()

	r.persistClose(ctx, closed)
	return closed, nil
}

// ForceClose tears down a session without an ownership check (idle sweep).
func (r *Registry) ForceClose(ctx context.Context, sessionID string) (Session, bool) {
	r.mu.Lock()
	s, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return Session{}, false
	}
	s.EndTime = time.Now().UnixMilli()
	s.IsActive = false
	closed := *s
	delete(r.sessions, sessionID)
	delete(r.byRider, s.RiderID)
	delete(r.lastSeen, sessionID)
	r.mu.Unlock()

	r.persistClose(ctx, closed)
	return closed, true
}

func (r *Registry) Get(sessionID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// ListActive returns a snapshot of all live sessions.
func (r *Registry) ListActive() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *s)
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Touch records reading activity for the idle sweep.
func (r *Registry) Touch(sessionID string) {
	r.mu.Lock()
	if _, ok := r.sessions[sessionID]; ok {
		r.lastSeen[sessionID] = time.Now()
	}
	r.mu.Unlock()
}

// StartSweep force-closes sessions with no readings inside the idle window.
// Closed sessions are reported through onClose so lifecycle notifications
// still reach observers. Returns immediately when idle is zero.
func (r *Registry) StartSweep(ctx context.Context, idle time.Duration, onClose func(Session)) {
	if idle <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(idle / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, id := range r.idleSessions(idle) {
					if closed, ok := r.ForceClose(ctx, id); ok {
						log.Printf("session %s force-closed after idle window", id)
						if onClose != nil {
							onClose(closed)
						}
					}
				}
			}
		}
	}()
}

func (r *Registry) idleSessions(idle time.Duration) []string {
	cutoff := time.Now().Add(-idle)
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for id, seen := range r.lastSeen {
		if seen.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids
}

func (r *Registry) persistOpen(ctx context.Context, s *Session) {
	if r.db == nil {
		return
	}
	devices, _ := json.Marshal(s.DeviceInfo)
	_, err := r.db.Exec(ctx, `
		INSERT INTO sessions (id, rider_id, rider_name, team_id, start_time, device_info, is_active)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, s.ID, s.RiderID, s.RiderName, nullable(s.TeamID), s.StartTime, devices, true)
	if err != nil {
		log.Printf("session %s insert failed: %v", s.ID, err)
	}
}

func (r *Registry) persistClose(ctx context.Context, s Session) {
	if r.db == nil {
		return
	}
	_, err := r.db.Exec(ctx, `
		UPDATE sessions SET end_time=$2, is_active=false WHERE id=$1
	`, s.ID, s.EndTime)
	if err != nil {
		log.Printf("session %s close update failed: %v", s.ID, err)
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// ListClosed returns finished sessions with their reading counts, newest first.
func (r *Registry) ListClosed(ctx context.Context, limit int) ([]ClosedSession, error) {
	if r.db == nil {
		return nil, apperr.ErrUpstreamUnavailable
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.Query(ctx, `
		SELECT s.id, s.rider_id, s.rider_name, s.start_time, COALESCE(s.end_time, 0), COUNT(m.id)
		FROM sessions s
		LEFT JOIN readings m ON s.id = m.session_id
		WHERE s.is_active = false
		GROUP BY s.id, s.rider_id, s.rider_name, s.start_time, s.end_time
		ORDER BY s.start_time DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ClosedSession
	for rows.Next() {
		var c ClosedSession
		if err := rows.Scan(&c.ID, &c.RiderID, &c.RiderName, &c.StartTime, &c.EndTime, &c.ReadingCount); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Fetch loads a session row from the store, active or not.
func (r *Registry) Fetch(ctx context.Context, sessionID string) (Session, error) {
	if r.db == nil {
		return Session{}, apperr.ErrUpstreamUnavailable
	}
	row := r.db.QueryRow(ctx, `
		SELECT id, rider_id, rider_name, COALESCE(team_id, ''), start_time, COALESCE(end_time, 0), is_active
		FROM sessions WHERE id = $1
	`, sessionID)
	var s Session
	if err := row.Scan(&s.ID, &s.RiderID, &s.RiderName, &s.TeamID, &s.StartTime, &s.EndTime, &s.IsActive); err != nil {
		return Session{}, apperr.ErrNotFound
	}
	return s, nil
}
