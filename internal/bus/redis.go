package bus

import (
	"context"
	"log"

	"github.com/redis/go-redis/v9"
)

// Redis is a Bus backed by Redis pub/sub for multi-node deployments.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := r.client.Publish(ctx, topic, payload).Err(); err != nil {
		log.Printf("redis publish %s error: %v", topic, err)
		return err
	}
	return nil
}

func (r *Redis) Subscribe(topic string, handler func(payload []byte)) func() {
	pubsub := r.client.Subscribe(context.Background(), topic)

	go func() {
		for msg := range pubsub.Channel() {
			handler([]byte(msg.Payload))
		}
	}()

	return func() {
		_ = pubsub.Close()
	}
}
