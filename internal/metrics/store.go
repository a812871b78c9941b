package metrics

import (
	"context"
	"time"

	"github.com/rashdiman/ridepulse/internal/apperr"
	"github.com/rashdiman/ridepulse/internal/db"
)

// Store persists readings and serves historical queries.
type Store struct {
	db db.Querier
}

func NewStore(q db.Querier) *Store {
	return &Store{db: q}
}

func (s *Store) InsertReading(ctx context.Context, r SensorReading) error {
	if s.db == nil {
		return apperr.ErrUpstreamUnavailable
	}
	var lat, lng, alt any
	if r.Location != nil {
		lat, lng = r.Location.Latitude, r.Location.Longitude
		if r.Location.Altitude != nil {
			alt = *r.Location.Altitude
		}
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO readings (session_id, rider_id, timestamp, heart_rate, power, cadence, speed, latitude, longitude, altitude)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, r.SessionID, r.RiderID, r.Timestamp, r.HeartRate, r.Power, r.Cadence, r.Speed, lat, lng, alt)
	return err
}

// SessionReadings loads a session's full reading sequence ordered by timestamp.
func (s *Store) SessionReadings(ctx context.Context, sessionID string) ([]SensorReading, error) {
	if s.db == nil {
		return nil, apperr.ErrUpstreamUnavailable
	}
	rows, err := s.db.Query(ctx, `
		SELECT rider_id, session_id, timestamp, heart_rate, power, cadence, speed, latitude, longitude, altitude
		FROM readings
		WHERE session_id = $1
		ORDER BY timestamp ASC
	`, sessionID)
	if err != nil {
		return nil, apperr.ErrUpstreamUnavailable
	}
	defer rows.Close()

	var out []SensorReading
	for rows.Next() {
		var r SensorReading
		var lat, lng, alt *float64
		if err := rows.Scan(&r.RiderID, &r.SessionID, &r.Timestamp, &r.HeartRate, &r.Power, &r.Cadence, &r.Speed, &lat, &lng, &alt); err != nil {
			return nil, err
		}
		if lat != nil && lng != nil {
			r.Location = &Location{Latitude: *lat, Longitude: *lng, Altitude: alt}
		}
		out = append(out, r)
	}
	return out, nil
}

// Aggregated summarizes readings for a session over the trailing period.
func (s *Store) Aggregated(ctx context.Context, sessionID string, period time.Duration) (Aggregates, error) {
	if s.db == nil {
		return Aggregates{}, apperr.ErrUpstreamUnavailable
	}
	since := time.Now().Add(-period).UnixMilli()
	row := s.db.QueryRow(ctx, `
		SELECT
			COALESCE(AVG(heart_rate), 0),
			COALESCE(MAX(heart_rate), 0),
			COALESCE(AVG(power), 0),
			COALESCE(MAX(power), 0),
			COALESCE(AVG(cadence), 0),
			COALESCE(MAX(cadence), 0),
			COALESCE(AVG(speed), 0),
			COALESCE(MAX(speed), 0),
			COUNT(*)
		FROM readings
		WHERE session_id = $1 AND timestamp >= $2
	`, sessionID, since)

	var a Aggregates
	if err := row.Scan(&a.AvgHeartRate, &a.MaxHeartRate, &a.AvgPower, &a.MaxPower,
		&a.AvgCadence, &a.MaxCadence, &a.AvgSpeed, &a.MaxSpeed, &a.DataPoints); err != nil {
		return Aggregates{}, err
	}
	return a, nil
}
