package stream

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/rashdiman/ridepulse/internal/auth"
	"github.com/rashdiman/ridepulse/internal/bus"
)

// Hub fans events out to connected clients. Coaches and admins form the
// coaches group; any of them may additionally subscribe to individual
// riders. Delivery is best-effort: a full send buffer drops the event
// rather than stalling the pipeline.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	coaches map[*Client]struct{}
	riders  map[string]map[*Client]struct{}
}

type Client struct {
	Identity auth.Identity
	Send     chan []byte

	// rider subscriptions held by this client, for cleanup on unregister.
	subs map[string]struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients: map[*Client]struct{}{},
		coaches: map[*Client]struct{}{},
		riders:  map[string]map[*Client]struct{}{},
	}
}

func (h *Hub) Register(id auth.Identity) *Client {
	client := &Client{
		Identity: id,
		Send:     make(chan []byte, 64),
		subs:     map[string]struct{}{},
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = struct{}{}
	if id.Role == auth.RoleCoach || id.Role == auth.RoleAdmin {
		h.coaches[client] = struct{}{}
	}
	return client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	delete(h.coaches, client)
	for riderID := range client.subs {
		h.dropRiderSub(client, riderID)
	}
	close(client.Send)
}

// SubscribeRider adds the client to a rider's subscription group.
func (h *Hub) SubscribeRider(client *Client, riderID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; !ok {
		return
	}
	if h.riders[riderID] == nil {
		h.riders[riderID] = map[*Client]struct{}{}
	}
	h.riders[riderID][client] = struct{}{}
	client.subs[riderID] = struct{}{}
}

func (h *Hub) UnsubscribeRider(client *Client, riderID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropRiderSub(client, riderID)
	delete(client.subs, riderID)
}

func (h *Hub) dropRiderSub(client *Client, riderID string) {
	if subs, ok := h.riders[riderID]; ok {
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.riders, riderID)
		}
	}
}

// Broadcast delivers the event to every connected client.
func (h *Hub) Broadcast(payload []byte) {
	if payload == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		send(client, payload)
	}
}

// ToCoaches delivers the event to the coaches group.
func (h *Hub) ToCoaches(payload []byte) {
	if payload == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.coaches {
		send(client, payload)
	}
}

// ToRider delivers the event to subscribers of one rider. Clients already
// in the coaches group are skipped so they do not receive duplicates.
func (h *Hub) ToRider(riderID string, payload []byte) {
	if payload == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.riders[riderID] {
		if _, isCoach := h.coaches[client]; isCoach {
			continue
		}
		send(client, payload)
	}
}

// Deliver sends an event to a single client.
func (h *Hub) Deliver(client *Client, payload []byte) {
	if payload == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[client]; ok {
		send(client, payload)
	}
}

func send(client *Client, payload []byte) {
	select {
	case client.Send <- payload:
	default:
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Bridge routes pipeline bus traffic into the hub: processed snapshots go
// to the coaches group and the rider's subscribers, alerts go to everyone.
// The returned func detaches the bridge.
func (h *Hub) Bridge(b bus.Bus) func() {
	stopMetrics := b.Subscribe(bus.TopicMetricsProcessed, func(payload []byte) {
		var snapshot struct {
			RiderID string `json:"riderId"`
		}
		if err := json.Unmarshal(payload, &snapshot); err != nil {
			log.Printf("malformed snapshot dropped: %v", err)
			return
		}
		event := RawEvent(EvtRiderMetrics, payload)
		h.ToCoaches(event)
		h.ToRider(snapshot.RiderID, event)
	})

	stopAlerts := b.Subscribe(bus.TopicAlertsNew, func(payload []byte) {
		h.Broadcast(RawEvent(EvtAlert, payload))
	})

	return func() {
		stopMetrics()
		stopAlerts()
	}
}
