package alert

import (
	"context"
	"log"

	"github.com/rashdiman/ridepulse/internal/apperr"
)

// ThresholdsFor resolves a rider's thresholds: cache, then store, then the
// process-wide defaults. The result is cached until SaveThresholds replaces it.
func (e *Evaluator) ThresholdsFor(ctx context.Context, riderID string) Thresholds {
	e.mu.RLock()
	t, ok := e.thresholds[riderID]
	e.mu.RUnlock()
	if ok {
		return t
	}

	t = e.loadThresholds(ctx, riderID)
	e.mu.Lock()
	e.thresholds[riderID] = t
	e.mu.Unlock()
	return t
}

func (e *Evaluator) loadThresholds(ctx context.Context, riderID string) Thresholds {
	defaults := DefaultThresholds(riderID)
	if e.db == nil {
		return defaults
	}

	row := e.db.QueryRow(ctx, `
		SELECT heart_rate_min, heart_rate_max, heart_rate_warning_threshold, heart_rate_critical_threshold,
		       power_max, power_warning_threshold, cadence_min, cadence_max, speed_max
		FROM alert_thresholds WHERE rider_id = $1
	`, riderID)

	var hrMin, hrMax, hrWarn, hrCrit, pMax, pWarn, cMin, cMax *int
	var sMax *float64
	if err := row.Scan(&hrMin, &hrMax, &hrWarn, &hrCrit, &pMax, &pWarn, &cMin, &cMax, &sMax); err != nil {
		return defaults
	}

	t := defaults
	assignInt(&t.HeartRate.Min, hrMin)
	assignInt(&t.HeartRate.Max, hrMax)
	assignInt(&t.HeartRate.WarningThreshold, hrWarn)
	assignInt(&t.HeartRate.CriticalThreshold, hrCrit)
	assignInt(&t.Power.Max, pMax)
	assignInt(&t.Power.WarningThreshold, pWarn)
	assignInt(&t.Cadence.Min, cMin)
	assignInt(&t.Cadence.Max, cMax)
	if sMax != nil {
		t.Speed.Max = *sMax
	}
	return t
}

func assignInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

// SaveThresholds upserts the rider's configuration and refreshes the cache.
func (e *Evaluator) SaveThresholds(ctx context.Context, t Thresholds) error {
	if e.db == nil {
		return apperr.ErrUpstreamUnavailable
	}
	_, err := e.db.Exec(ctx, `
		INSERT INTO alert_thresholds (rider_id, heart_rate_min, heart_rate_max, heart_rate_warning_threshold, heart_rate_critical_threshold, power_max, power_warning_threshold, cadence_min, cadence_max, speed_max)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (rider_id) DO UPDATE SET
			heart_rate_min = EXCLUDED.heart_rate_min,
			heart_rate_max = EXCLUDED.heart_rate_max,
			heart_rate_warning_threshold = EXCLUDED.heart_rate_warning_threshold,
			heart_rate_critical_threshold = EXCLUDED.heart_rate_critical_threshold,
			power_max = EXCLUDED.power_max,
			power_warning_threshold = EXCLUDED.power_warning_threshold,
			cadence_min = EXCLUDED.cadence_min,
			cadence_max = EXCLUDED.cadence_max,
			speed_max = EXCLUDED.speed_max,
			updated_at = NOW()
	`, t.RiderID, t.HeartRate.Min, t.HeartRate.Max, t.HeartRate.WarningThreshold, t.HeartRate.CriticalThreshold,
		t.Power.Max, t.Power.WarningThreshold, t.Cadence.Min, t.Cadence.Max, t.Speed.Max)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.thresholds[t.RiderID] = t
	e.mu.Unlock()
	log.Printf("thresholds updated for rider %s", t.RiderID)
	return nil
}

// CachedThresholds reports the number of riders with cached thresholds.
func (e *Evaluator) CachedThresholds() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.thresholds)
}
