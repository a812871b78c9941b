package bus

import (
	"context"
	"sync"
)

const subscriberBuffer = 256

// Memory is an in-process Bus for single-node deployments. Each subscriber
// drains its own buffered channel on a dedicated goroutine, so handlers for
// a topic observe payloads in publish order.
type Memory struct {
	mu   sync.RWMutex
	subs map[string]map[*memorySub]struct{}
}

type memorySub struct {
	ch   chan []byte
	once sync.Once
}

func NewMemory() *Memory {
	return &Memory{subs: map[string]map[*memorySub]struct{}{}}
}

func (m *Memory) Publish(_ context.Context, topic string, payload []byte) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for sub := range m.subs[topic] {
		select {
		case sub.ch <- payload:
		default:
			// Slow subscriber: drop rather than stall the pipeline.
		}
	}
	return nil
}

func (m *Memory) Subscribe(topic string, handler func(payload []byte)) func() {
	sub := &memorySub{ch: make(chan []byte, subscriberBuffer)}

	m.mu.Lock()
	if m.subs[topic] == nil {
		m.subs[topic] = map[*memorySub]struct{}{}
	}
	m.subs[topic][sub] = struct{}{}
	m.mu.Unlock()

	go func() {
		for payload := range sub.ch {
			handler(payload)
		}
	}()

	return func() {
		m.mu.Lock()
		delete(m.subs[topic], sub)
		m.mu.Unlock()
		sub.once.Do(func() { close(sub.ch) })
	}
}
