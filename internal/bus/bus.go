package bus

import "context"

// Topics connecting the pipeline stages. They mirror the broker channels so
// a Redis-backed bus can span multiple nodes without renaming anything.
const (
	TopicMetricsIngest    = "metrics:ingest"
	TopicMetricsProcessed = "metrics:processed"
	TopicAlertsNew        = "alerts:new"
	TopicAlertsAck        = "alerts:acknowledge"
)

// Bus is the pub/sub contract between ingestion, the metrics cache, the
// alert evaluator and the fan-out hub. Delivery is best-effort; handlers
// for one topic are invoked in publish order.
type Bus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe registers a handler and returns an unsubscribe func.
	Subscribe(topic string, handler func(payload []byte)) func()
}
