package alert

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

type Type string

const (
	TypeHighHeartRate Type = "high_heart_rate"
	TypeLowHeartRate  Type = "low_heart_rate"
	TypeHighPower     Type = "high_power"
	TypeHighCadence   Type = "high_cadence"
	TypeLowCadence    Type = "low_cadence"
	TypeHighSpeed     Type = "high_speed"
)

// Metadata carries the numbers behind an alert for display purposes.
type Metadata struct {
	Threshold    float64 `json:"threshold"`
	CurrentValue float64 `json:"currentValue"`
	Duration     int64   `json:"duration,omitempty"`
}

// Alert is immutable after creation except for the acknowledgement fields,
// which transition exactly once. Timestamps are epoch milliseconds.
type Alert struct {
	ID             string    `json:"id"`
	RiderID        string    `json:"riderId"`
	SessionID      string    `json:"sessionId"`
	Type           Type      `json:"type"`
	Message        string    `json:"message"`
	Severity       Severity  `json:"severity"`
	Timestamp      int64     `json:"timestamp"`
	Acknowledged   bool      `json:"acknowledged"`
	AcknowledgedBy string    `json:"acknowledgedBy,omitempty"`
	AcknowledgedAt int64     `json:"acknowledgedAt,omitempty"`
	Metadata       *Metadata `json:"metadata,omitempty"`
}

type HeartRateThresholds struct {
	Min               int `json:"min"`
	Max               int `json:"max"`
	WarningThreshold  int `json:"warningThreshold"`
	CriticalThreshold int `json:"criticalThreshold"`
}

type PowerThresholds struct {
	Max              int `json:"max"`
	WarningThreshold int `json:"warningThreshold"`
}

type CadenceThresholds struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

type SpeedThresholds struct {
	Max float64 `json:"max"`
}

// Thresholds is the per-rider alert configuration.
type Thresholds struct {
	RiderID   string              `json:"riderId"`
	HeartRate HeartRateThresholds `json:"heartRate"`
	Power     PowerThresholds     `json:"power"`
	Cadence   CadenceThresholds   `json:"cadence"`
	Speed     SpeedThresholds     `json:"speed"`
}

// DefaultThresholds is the process-wide fallback when a rider has no
// configured thresholds.
func DefaultThresholds(riderID string) Thresholds {
	return Thresholds{
		RiderID:   riderID,
		HeartRate: HeartRateThresholds{Min: 40, Max: 220, WarningThreshold: 160, CriticalThreshold: 180},
		Power:     PowerThresholds{Max: 500, WarningThreshold: 400},
		Cadence:   CadenceThresholds{Min: 40, Max: 140},
		Speed:     SpeedThresholds{Max: 80},
	}
}
