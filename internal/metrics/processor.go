package metrics

import (
	"context"
	"encoding/json"
	"log"

	"github.com/rashdiman/ridepulse/internal/bus"
)

// Processor consumes validated readings off the bus, persists them, updates
// the cache and republishes the full RiderMetrics snapshot. One snapshot is
// emitted per accepted reading; there is no coalescing.
type Processor struct {
	cache *Cache
	store *Store
	bus   bus.Bus
	// riderName resolves a session to its rider's display name. Optional.
	riderName func(sessionID string) (string, bool)
}

func NewProcessor(cache *Cache, store *Store, b bus.Bus, riderName func(sessionID string) (string, bool)) *Processor {
	return &Processor{cache: cache, store: store, bus: b, riderName: riderName}
}

// Start subscribes to the ingest topic; the returned func unsubscribes.
func (p *Processor) Start() func() {
	return p.bus.Subscribe(bus.TopicMetricsIngest, p.handle)
}

func (p *Processor) handle(payload []byte) {
	var reading SensorReading
	if err := json.Unmarshal(payload, &reading); err != nil {
		log.Printf("malformed reading dropped: %v", err)
		return
	}

	ctx := context.Background()

	// Persistence is best-effort: a store outage must not stall the
	// in-memory pipeline.
	if err := p.store.InsertReading(ctx, reading); err != nil {
		log.Printf("reading for session %s not persisted: %v", reading.SessionID, err)
	}

	name := ""
	if p.riderName != nil {
		name, _ = p.riderName(reading.SessionID)
	}

	snapshot, ok := p.cache.Ingest(reading, name)
	if !ok {
		return
	}

	out, err := json.Marshal(snapshot)
	if err != nil {
		log.Printf("snapshot marshal failed: %v", err)
		return
	}
	_ = p.bus.Publish(ctx, bus.TopicMetricsProcessed, out)
}
