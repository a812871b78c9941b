package session

// DeviceInfo describes one paired sensor reported by the rider client.
type DeviceInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Type    string `json:"type"`
	Address string `json:"address"`
}

// Metadata carries summary figures filled in when a session closes.
type Metadata struct {
	Distance         float64 `json:"distance,omitempty"`
	AverageHeartRate float64 `json:"averageHeartRate,omitempty"`
	MaxHeartRate     float64 `json:"maxHeartRate,omitempty"`
	AveragePower     float64 `json:"averagePower,omitempty"`
	MaxPower         float64 `json:"maxPower,omitempty"`
	AverageSpeed     float64 `json:"averageSpeed,omitempty"`
	MaxSpeed         float64 `json:"maxSpeed,omitempty"`
}

// Session is one continuous recording interval for a single rider.
// Timestamps are epoch milliseconds, matching the wire format.
type Session struct {
	ID         string       `json:"id"`
	RiderID    string       `json:"riderId"`
	RiderName  string       `json:"riderName"`
	TeamID     string       `json:"teamId,omitempty"`
	StartTime  int64        `json:"startTime"`
	EndTime    int64        `json:"endTime,omitempty"`
	DeviceInfo []DeviceInfo `json:"deviceInfo"`
	IsActive   bool         `json:"isActive"`
	Metadata   *Metadata    `json:"metadata,omitempty"`
}

// ClosedSession is a finished session row with its stored reading count,
// served to replay clients picking a session to play back.
type ClosedSession struct {
	ID           string `json:"id"`
	RiderID      string `json:"riderId"`
	RiderName    string `json:"riderName"`
	StartTime    int64  `json:"startTime"`
	EndTime      int64  `json:"endTime"`
	ReadingCount int64  `json:"readingCount"`
}
