package metrics

import (
	"encoding/json"
	"hash/fnv"
	"log"
	"sync"

	"github.com/rashdiman/ridepulse/internal/shared/geo"
)

const cacheShards = 16

// Cache holds per-rider RiderMetrics with bounded history. Riders are
// striped across shards so unrelated riders never contend on one lock.
type Cache struct {
	historySize int
	shards      [cacheShards]cacheShard
}

type cacheShard struct {
	mu     sync.Mutex
	riders map[string]*riderState
}

type riderState struct {
	riderName        string
	sessionID        string
	sessionStartTime int64
	current          SensorReading
	lastTimestamp    int64
	lastLocation     *Location
	distanceM        float64
	history          *historyRing
}

func NewCache(historySize int) *Cache {
	c := &Cache{historySize: historySize}
	for i := range c.shards {
		c.shards[i].riders = map[string]*riderState{}
	}
	return c
}

func (c *Cache) shard(riderID string) *cacheShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(riderID))
	return &c.shards[h.Sum32()%cacheShards]
}

// Ingest applies one validated reading. A reading for a different session
// than the cached one replaces the rider's state wholesale; stale history
// never leaks across sessions. Readings older than the latest applied one
// are dropped. Returns the post-update snapshot and whether the reading
// was accepted.
func (c *Cache) Ingest(reading SensorReading, riderName string) (RiderMetrics, bool) {
	shard := c.shard(reading.RiderID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	state, ok := shard.riders[reading.RiderID]
	if !ok || state.sessionID != reading.SessionID {
		state = &riderState{
			riderName:        riderName,
			sessionID:        reading.SessionID,
			sessionStartTime: reading.Timestamp,
			current:          reading,
			lastTimestamp:    reading.Timestamp,
			lastLocation:     reading.Location,
			history:          newHistoryRing(c.historySize),
		}
		state.history.push(historyPointFrom(reading))
		shard.riders[reading.RiderID] = state
		return state.snapshot(), true
	}

	if reading.Timestamp < state.lastTimestamp {
		log.Printf("dropping out-of-order reading for session %s: %d < %d",
			reading.SessionID, reading.Timestamp, state.lastTimestamp)
		return RiderMetrics{}, false
	}

	if riderName != "" {
		state.riderName = riderName
	}
	state.current = reading
	state.lastTimestamp = reading.Timestamp
	state.history.push(historyPointFrom(reading))

	if reading.Location != nil {
		if state.lastLocation != nil {
			state.distanceM += geo.HaversineKm(
				state.lastLocation.Latitude, state.lastLocation.Longitude,
				reading.Location.Latitude, reading.Location.Longitude) * 1000
		}
		state.lastLocation = reading.Location
	}

	return state.snapshot(), true
}

// Snapshot returns the cached RiderMetrics for a rider, if any.
func (c *Cache) Snapshot(riderID string) (RiderMetrics, bool) {
	shard := c.shard(riderID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	state, ok := shard.riders[riderID]
	if !ok {
		return RiderMetrics{}, false
	}
	return state.snapshot(), true
}

// Count reports how many riders are currently cached.
func (c *Cache) Count() int {
	n := 0
	for i := range c.shards {
		c.shards[i].mu.Lock()
		n += len(c.shards[i].riders)
		c.shards[i].mu.Unlock()
	}
	return n
}

func (s *riderState) snapshot() RiderMetrics {
	return RiderMetrics{
		RiderID:          s.current.RiderID,
		RiderName:        s.riderName,
		SessionID:        s.sessionID,
		CurrentMetrics:   s.current,
		SessionStartTime: s.sessionStartTime,
		DistanceM:        s.distanceM,
		History:          s.history.points(),
		Alerts:           []json.RawMessage{},
	}
}
