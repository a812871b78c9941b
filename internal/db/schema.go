package db

import "context"

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		name TEXT NOT NULL,
		role TEXT NOT NULL,
		team_id TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id UUID PRIMARY KEY,
		user_id UUID NOT NULL,
		token TEXT UNIQUE NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		revoked_at TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id UUID PRIMARY KEY,
		rider_id TEXT NOT NULL,
		rider_name TEXT NOT NULL,
		team_id TEXT,
		start_time BIGINT NOT NULL,
		end_time BIGINT,
		device_info JSONB,
		is_active BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS readings (
		id BIGSERIAL PRIMARY KEY,
		session_id UUID NOT NULL,
		rider_id TEXT NOT NULL,
		timestamp BIGINT NOT NULL,
		heart_rate INT,
		power INT,
		cadence INT,
		speed DOUBLE PRECISION,
		latitude DOUBLE PRECISION,
		longitude DOUBLE PRECISION,
		altitude DOUBLE PRECISION
	)`,
	`CREATE INDEX IF NOT EXISTS readings_session_ts ON readings (session_id, timestamp)`,
	`CREATE TABLE IF NOT EXISTS alerts (
		id UUID PRIMARY KEY,
		rider_id TEXT NOT NULL,
		session_id UUID,
		type TEXT NOT NULL,
		severity TEXT NOT NULL,
		message TEXT NOT NULL,
		metadata JSONB,
		timestamp BIGINT NOT NULL,
		acknowledged BOOLEAN NOT NULL DEFAULT FALSE,
		acknowledged_by TEXT,
		acknowledged_at BIGINT
	)`,
	`CREATE INDEX IF NOT EXISTS alerts_rider_ts ON alerts (rider_id, timestamp DESC)`,
	`CREATE TABLE IF NOT EXISTS alert_thresholds (
		rider_id TEXT PRIMARY KEY,
		heart_rate_min INT,
		heart_rate_max INT,
		heart_rate_warning_threshold INT,
		heart_rate_critical_threshold INT,
		power_max INT,
		power_warning_threshold INT,
		cadence_min INT,
		cadence_max INT,
		speed_max DOUBLE PRECISION,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

// EnsureSchema creates the tables the services write to. Statements are
// idempotent so restarts are safe.
func EnsureSchema(ctx context.Context, q Querier) error {
	for _, stmt := range schemaStatements {
		if _, err := q.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
