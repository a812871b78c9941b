package replay

import (
	"context"
	"log"
	"sync"

	"github.com/rashdiman/ridepulse/internal/apperr"
	"github.com/rashdiman/ridepulse/internal/metrics"
	"github.com/rashdiman/ridepulse/internal/session"

	"github.com/google/uuid"
)

// Manager owns the live set of replays. Replay output is scoped to the
// connection that created it, so every lookup checks ownership.
type Manager struct {
	registry *session.Registry
	store    *metrics.Store

	mu      sync.RWMutex
	replays map[string]*Replay
}

func NewManager(registry *session.Registry, store *metrics.Store) *Manager {
	return &Manager{
		registry: registry,
		store:    store,
		replays:  map[string]*Replay{},
	}
}

// Create loads a frozen snapshot of the session's readings and registers a
// new replay owned by the requesting connection.
func (m *Manager) Create(ctx context.Context, owner, sessionID string, speed float64) (*Replay, error) {
	if speed <= 0 {
		speed = 1
	}

	if _, err := m.registry.Fetch(ctx, sessionID); err != nil {
		return nil, err
	}
	dataPoints, err := m.store.SessionReadings(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	r := &Replay{
		id:         uuid.NewString(),
		sessionID:  sessionID,
		owner:      owner,
		speed:      speed,
		dataPoints: dataPoints,
	}

	m.mu.Lock()
	m.replays[r.id] = r
	m.mu.Unlock()

	log.Printf("replay %s created for session %s (%d points)", r.id, sessionID, len(dataPoints))
	return r, nil
}

// Get returns the replay if it exists and belongs to owner.
func (m *Manager) Get(replayID, owner string) (*Replay, error) {
	m.mu.RLock()
	r, ok := m.replays[replayID]
	m.mu.RUnlock()
	if !ok {
		return nil, apperr.ErrNotFound
	}
	if r.owner != owner {
		return nil, apperr.ErrForbidden
	}
	return r, nil
}

// Delete stops the replay and removes it.
func (m *Manager) Delete(replayID, owner string) error {
	r, err := m.Get(replayID, owner)
	if err != nil {
		return err
	}
	r.Stop()
	m.mu.Lock()
	delete(m.replays, replayID)
	m.mu.Unlock()
	return nil
}

// Remove drops a replay without an ownership check (natural completion).
func (m *Manager) Remove(replayID string) {
	m.mu.Lock()
	delete(m.replays, replayID)
	m.mu.Unlock()
}

// DropOwned stops and removes every replay owned by a disconnected client,
// cancelling pending timers so nothing emits after teardown.
func (m *Manager) DropOwned(owner string) {
	m.mu.Lock()
	var owned []*Replay
	for id, r := range m.replays {
		if r.owner == owner {
			owned = append(owned, r)
			delete(m.replays, id)
		}
	}
	m.mu.Unlock()

	for _, r := range owned {
		r.Stop()
	}
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.replays)
}
