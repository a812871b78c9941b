package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/rashdiman/ridepulse/internal/apperr"
	"github.com/rashdiman/ridepulse/internal/bus"
	"github.com/rashdiman/ridepulse/internal/db"
	"github.com/rashdiman/ridepulse/internal/metrics"

	"github.com/google/uuid"
)

// Evaluator applies per-rider thresholds to processed readings and emits
// alerts. A sustained out-of-range condition produces one alert per
// qualifying reading; there is deliberately no cooldown.
type Evaluator struct {
	db  db.Querier
	bus bus.Bus

	mu         sync.RWMutex
	thresholds map[string]Thresholds
}

func NewEvaluator(q db.Querier, b bus.Bus) *Evaluator {
	return &Evaluator{
		db:         q,
		bus:        b,
		thresholds: map[string]Thresholds{},
	}
}

// Start wires the evaluator to the bus: processed snapshots feed Evaluate,
// acknowledgement requests feed Acknowledge. The returned func unsubscribes.
func (e *Evaluator) Start() func() {
	stopMetrics := e.bus.Subscribe(bus.TopicMetricsProcessed, func(payload []byte) {
		var snapshot struct {
			CurrentMetrics metrics.SensorReading `json:"currentMetrics"`
		}
		if err := json.Unmarshal(payload, &snapshot); err != nil {
			log.Printf("malformed snapshot dropped: %v", err)
			return
		}
		e.Evaluate(context.Background(), snapshot.CurrentMetrics)
	})

	stopAcks := e.bus.Subscribe(bus.TopicAlertsAck, func(payload []byte) {
		var req struct {
			AlertID        string `json:"alertId"`
			AcknowledgedBy string `json:"acknowledgedBy"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			log.Printf("malformed acknowledgement dropped: %v", err)
			return
		}
		if err := e.Acknowledge(context.Background(), req.AlertID, req.AcknowledgedBy); err != nil {
			log.Printf("acknowledge %s failed: %v", req.AlertID, err)
		}
	})

	return func() {
		stopMetrics()
		stopAcks()
	}
}

// Evaluate checks every metric present in the reading against the rider's
// thresholds and persists plus publishes each triggered alert. Heart-rate
// tiers are mutually exclusive in priority order, so one reading yields at
// most one heart-rate alert.
func (e *Evaluator) Evaluate(ctx context.Context, r metrics.SensorReading) []Alert {
	t := e.ThresholdsFor(ctx, r.RiderID)

	var alerts []Alert

	if r.HeartRate != nil {
		hr := *r.HeartRate
		switch {
		case hr > t.HeartRate.CriticalThreshold:
			alerts = append(alerts, newAlert(r, TypeHighHeartRate, SeverityCritical,
				fmt.Sprintf("critical heart rate: %d bpm (threshold: %d)", hr, t.HeartRate.CriticalThreshold),
				float64(t.HeartRate.CriticalThreshold), float64(hr)))
		case hr > t.HeartRate.WarningThreshold:
			alerts = append(alerts, newAlert(r, TypeHighHeartRate, SeverityWarning,
				fmt.Sprintf("high heart rate: %d bpm (threshold: %d)", hr, t.HeartRate.WarningThreshold),
				float64(t.HeartRate.WarningThreshold), float64(hr)))
		case hr < t.HeartRate.Min:
			alerts = append(alerts, newAlert(r, TypeLowHeartRate, SeverityWarning,
				fmt.Sprintf("low heart rate: %d bpm (minimum: %d)", hr, t.HeartRate.Min),
				float64(t.HeartRate.Min), float64(hr)))
		}
	}

	if r.Power != nil && *r.Power > t.Power.WarningThreshold {
		alerts = append(alerts, newAlert(r, TypeHighPower, SeverityWarning,
			fmt.Sprintf("high power: %d W (threshold: %d)", *r.Power, t.Power.WarningThreshold),
			float64(t.Power.WarningThreshold), float64(*r.Power)))
	}

	if r.Cadence != nil {
		cad := *r.Cadence
		switch {
		case cad > t.Cadence.Max:
			alerts = append(alerts, newAlert(r, TypeHighCadence, SeverityWarning,
				fmt.Sprintf("high cadence: %d rpm (maximum: %d)", cad, t.Cadence.Max),
				float64(t.Cadence.Max), float64(cad)))
		case cad < t.Cadence.Min:
			alerts = append(alerts, newAlert(r, TypeLowCadence, SeverityWarning,
				fmt.Sprintf("low cadence: %d rpm (minimum: %d)", cad, t.Cadence.Min),
				float64(t.Cadence.Min), float64(cad)))
		}
	}

	if r.Speed != nil && *r.Speed > t.Speed.Max {
		alerts = append(alerts, newAlert(r, TypeHighSpeed, SeverityWarning,
			fmt.Sprintf("high speed: %.1f km/h (maximum: %.0f)", *r.Speed, t.Speed.Max),
			t.Speed.Max, *r.Speed))
	}

	for _, a := range alerts {
		if err := e.save(ctx, a); err != nil {
			log.Printf("alert %s not persisted: %v", a.ID, err)
		}
		if payload, err := json.Marshal(a); err == nil {
			_ = e.bus.Publish(ctx, bus.TopicAlertsNew, payload)
		}
		log.Printf("alert for %s: %s", a.RiderID, a.Message)
	}
	return alerts
}

func newAlert(r metrics.SensorReading, typ Type, sev Severity, message string, threshold, current float64) Alert {
	return Alert{
		ID:        uuid.NewString(),
		RiderID:   r.RiderID,
		SessionID: r.SessionID,
		Type:      typ,
		Message:   message,
		Severity:  sev,
		Timestamp: time.Now().UnixMilli(),
		Metadata:  &Metadata{Threshold: threshold, CurrentValue: current},
	}
}

func (e *Evaluator) save(ctx context.Context, a Alert) error {
	if e.db == nil {
		return apperr.ErrUpstreamUnavailable
	}
	meta, _ := json.Marshal(a.Metadata)
	_, err := e.db.Exec(ctx, `
		INSERT INTO alerts (id, rider_id, session_id, type, message, severity, timestamp, metadata)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, a.ID, a.RiderID, a.SessionID, string(a.Type), a.Message, string(a.Severity), a.Timestamp, meta)
	return err
}

// Acknowledge marks an alert acknowledged. Unknown alerts return
// apperr.ErrNotFound; repeated acknowledgement is a no-op.
func (e *Evaluator) Acknowledge(ctx context.Context, alertID, by string) error {
	if e.db == nil {
		return apperr.ErrUpstreamUnavailable
	}
	row := e.db.QueryRow(ctx, `SELECT acknowledged FROM alerts WHERE id = $1`, alertID)
	var acknowledged bool
	if err := row.Scan(&acknowledged); err != nil {
		return apperr.ErrNotFound
	}
	if acknowledged {
		return nil
	}
	_, err := e.db.Exec(ctx, `
		UPDATE alerts SET acknowledged = true, acknowledged_by = $1, acknowledged_at = $2 WHERE id = $3
	`, by, time.Now().UnixMilli(), alertID)
	return err
}

// Recent returns the rider's latest alerts, newest first.
func (e *Evaluator) Recent(ctx context.Context, riderID string, limit int) ([]Alert, error) {
	if e.db == nil {
		return nil, apperr.ErrUpstreamUnavailable
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := e.db.Query(ctx, `
		SELECT id, rider_id, session_id, type, message, severity, timestamp,
		       acknowledged, COALESCE(acknowledged_by, ''), COALESCE(acknowledged_at, 0), metadata
		FROM alerts
		WHERE rider_id = $1
		ORDER BY timestamp DESC
		LIMIT $2
	`, riderID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Alert
	for rows.Next() {
		var a Alert
		var meta []byte
		if err := rows.Scan(&a.ID, &a.RiderID, &a.SessionID, &a.Type, &a.Message, &a.Severity,
			&a.Timestamp, &a.Acknowledged, &a.AcknowledgedBy, &a.AcknowledgedAt, &meta); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &a.Metadata)
		}
		out = append(out, a)
	}
	return out, nil
}
