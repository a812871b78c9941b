package metrics

import "encoding/json"

// Location is a GPS fix attached to a reading.
type Location struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Altitude  *float64 `json:"altitude,omitempty"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
}

// SensorReading is one timestamped multi-metric sample from a rider's
// sensors. Optional metrics are pointers so absent and zero are distinct.
// Timestamps are epoch milliseconds.
type SensorReading struct {
	RiderID   string    `json:"riderId"`
	SessionID string    `json:"sessionId"`
	Timestamp int64     `json:"timestamp"`
	HeartRate *int      `json:"heartRate,omitempty"`
	Power     *int      `json:"power,omitempty"`
	Cadence   *int      `json:"cadence,omitempty"`
	Speed     *float64  `json:"speed,omitempty"`
	Location  *Location `json:"location,omitempty"`
}

// HistoryPoint is one entry in a rider's bounded metric history.
type HistoryPoint struct {
	Timestamp int64     `json:"timestamp"`
	HeartRate *int      `json:"heartRate,omitempty"`
	Power     *int      `json:"power,omitempty"`
	Cadence   *int      `json:"cadence,omitempty"`
	Speed     *float64  `json:"speed,omitempty"`
	Location  *Location `json:"location,omitempty"`
}

// RiderMetrics is the live aggregate tracked per rider: the latest reading
// plus a bounded history, replaced wholesale when a new session begins.
type RiderMetrics struct {
	RiderID          string            `json:"riderId"`
	RiderName        string            `json:"riderName"`
	SessionID        string            `json:"sessionId"`
	CurrentMetrics   SensorReading     `json:"currentMetrics"`
	SessionStartTime int64             `json:"sessionStartTime"`
	DistanceM        float64           `json:"distanceM"`
	History          []HistoryPoint    `json:"history"`
	Alerts           []json.RawMessage `json:"alerts"`
}

// Aggregates summarizes stored readings for a session over a window.
type Aggregates struct {
	AvgHeartRate float64 `json:"avgHeartRate"`
	MaxHeartRate float64 `json:"maxHeartRate"`
	AvgPower     float64 `json:"avgPower"`
	MaxPower     float64 `json:"maxPower"`
	AvgCadence   float64 `json:"avgCadence"`
	MaxCadence   float64 `json:"maxCadence"`
	AvgSpeed     float64 `json:"avgSpeed"`
	MaxSpeed     float64 `json:"maxSpeed"`
	DataPoints   int64   `json:"dataPoints"`
}

func historyPointFrom(r SensorReading) HistoryPoint {
	return HistoryPoint{
		Timestamp: r.Timestamp,
		HeartRate: r.HeartRate,
		Power:     r.Power,
		Cadence:   r.Cadence,
		Speed:     r.Speed,
		Location:  r.Location,
	}
}
