package metrics

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rashdiman/ridepulse/internal/bus"

	"github.com/pashagolub/pgxmock/v3"
)

func TestProcessorPublishesSnapshot(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO readings`).
		WithArgs("s1", "r1", int64(1000), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	b := bus.NewMemory()
	cache := NewCache(10)
	p := NewProcessor(cache, NewStore(mock), b, func(sessionID string) (string, bool) {
		if sessionID == "s1" {
			return "Jens", true
		}
		return "", false
	})
	stop := p.Start()
	defer stop()

	processed := make(chan []byte, 1)
	unsub := b.Subscribe(bus.TopicMetricsProcessed, func(payload []byte) { processed <- payload })
	defer unsub()

	in, _ := json.Marshal(SensorReading{RiderID: "r1", SessionID: "s1", Timestamp: 1000, HeartRate: intp(150)})
	_ = b.Publish(context.Background(), bus.TopicMetricsIngest, in)

	select {
	case payload := <-processed:
		var m RiderMetrics
		if err := json.Unmarshal(payload, &m); err != nil {
			t.Fatalf("unmarshal snapshot: %v", err)
		}
		if m.RiderID != "r1" || m.RiderName != "Jens" || *m.CurrentMetrics.HeartRate != 150 {
			t.Fatalf("bad snapshot %s", payload)
		}
	case <-time.After(time.Second):
		t.Fatalf("snapshot never published")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestProcessorSurvivesStoreOutage(t *testing.T) {
	b := bus.NewMemory()
	cache := NewCache(10)
	// nil store connection: every insert fails, the pipeline keeps flowing.
	p := NewProcessor(cache, NewStore(nil), b, nil)
	stop := p.Start()
	defer stop()

	processed := make(chan []byte, 1)
	unsub := b.Subscribe(bus.TopicMetricsProcessed, func(payload []byte) { processed <- payload })
	defer unsub()

	in, _ := json.Marshal(SensorReading{RiderID: "r1", SessionID: "s1", Timestamp: 1})
	_ = b.Publish(context.Background(), bus.TopicMetricsIngest, in)

	select {
	case <-processed:
	case <-time.After(time.Second):
		t.Fatalf("snapshot never published during store outage")
	}
}

func TestProcessorDropsRejectedReadings(t *testing.T) {
	b := bus.NewMemory()
	cache := NewCache(10)
	p := NewProcessor(cache, NewStore(nil), b, nil)
	stop := p.Start()
	defer stop()

	processed := make(chan []byte, 2)
	unsub := b.Subscribe(bus.TopicMetricsProcessed, func(payload []byte) { processed <- payload })
	defer unsub()

	newer, _ := json.Marshal(SensorReading{RiderID: "r1", SessionID: "s1", Timestamp: 100})
	older, _ := json.Marshal(SensorReading{RiderID: "r1", SessionID: "s1", Timestamp: 50})
	_ = b.Publish(context.Background(), bus.TopicMetricsIngest, newer)
	_ = b.Publish(context.Background(), bus.TopicMetricsIngest, older)
	_ = b.Publish(context.Background(), bus.TopicMetricsIngest, []byte("not json"))

	select {
	case <-processed:
	case <-time.After(time.Second):
		t.Fatalf("first snapshot never published")
	}
	select {
	case payload := <-processed:
		t.Fatalf("rejected reading produced a snapshot: %s", payload)
	case <-time.After(100 * time.Millisecond):
	}
}
