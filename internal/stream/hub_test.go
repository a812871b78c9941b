package stream

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rashdiman/ridepulse/internal/auth"
	"github.com/rashdiman/ridepulse/internal/bus"
)

func coachIdentity(id string) auth.Identity {
	return auth.Identity{UserID: id, Email: id + "@team.cc", Role: auth.RoleCoach, TeamID: "team-1"}
}

func riderIdentity(id string) auth.Identity {
	return auth.Identity{UserID: id, Email: id + "@team.cc", Role: auth.RoleRider, TeamID: "team-1"}
}

func recv(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case msg := <-c.Send:
		return msg
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for message")
		return nil
	}
}

func assertEmpty(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.Send:
		t.Fatalf("unexpected message %s", msg)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHubBroadcastReachesEveryone(t *testing.T) {
	hub := NewHub()
	coach := hub.Register(coachIdentity("c1"))
	rider := hub.Register(riderIdentity("r1"))
	defer hub.Unregister(coach)
	defer hub.Unregister(rider)

	hub.Broadcast([]byte("hello"))

	if string(recv(t, coach)) != "hello" {
		t.Fatalf("coach missed broadcast")
	}
	if string(recv(t, rider)) != "hello" {
		t.Fatalf("rider missed broadcast")
	}
}

func TestHubToCoaches(t *testing.T) {
	hub := NewHub()
	coach := hub.Register(coachIdentity("c1"))
	admin := hub.Register(auth.Identity{UserID: "a1", Role: auth.RoleAdmin})
	rider := hub.Register(riderIdentity("r1"))
	defer hub.Unregister(coach)
	defer hub.Unregister(admin)
	defer hub.Unregister(rider)

	hub.ToCoaches([]byte("update"))

	if string(recv(t, coach)) != "update" {
		t.Fatalf("coach missed event")
	}
	if string(recv(t, admin)) != "update" {
		t.Fatalf("admin missed event")
	}
	assertEmpty(t, rider)
}

func TestHubToRiderSkipsCoaches(t *testing.T) {
	hub := NewHub()
	coach := hub.Register(coachIdentity("c1"))
	watcher := hub.Register(riderIdentity("r2"))
	defer hub.Unregister(coach)
	defer hub.Unregister(watcher)

	hub.SubscribeRider(coach, "r1")
	hub.SubscribeRider(watcher, "r1")

	hub.ToRider("r1", []byte("metrics"))

	if string(recv(t, watcher)) != "metrics" {
		t.Fatalf("subscriber missed event")
	}
	// The coach gets the same event via the coaches group, never twice.
	assertEmpty(t, coach)
}

func TestHubUnsubscribeRider(t *testing.T) {
	hub := NewHub()
	watcher := hub.Register(riderIdentity("r2"))
	defer hub.Unregister(watcher)

	hub.SubscribeRider(watcher, "r1")
	hub.UnsubscribeRider(watcher, "r1")

	hub.ToRider("r1", []byte("metrics"))
	assertEmpty(t, watcher)
}

func TestHubUnregisterClosesAndCleansSubs(t *testing.T) {
	hub := NewHub()
	client := hub.Register(coachIdentity("c1"))
	hub.SubscribeRider(client, "r1")

	hub.Unregister(client)

	if _, ok := <-client.Send; ok {
		t.Fatalf("expected send channel closed")
	}
	// Does not panic or resurrect state.
	hub.Unregister(client)
	hub.ToRider("r1", []byte("late"))

	if hub.Count() != 0 {
		t.Fatalf("expected empty hub, got %d", hub.Count())
	}
}

func TestHubFullBufferDrops(t *testing.T) {
	hub := NewHub()
	client := hub.Register(riderIdentity("r1"))
	defer hub.Unregister(client)

	for i := 0; i < cap(client.Send)+10; i++ {
		hub.Broadcast([]byte("x"))
	}
	// Delivery is best-effort; the overflow is dropped, not blocking.
	if len(client.Send) != cap(client.Send) {
		t.Fatalf("expected full buffer, got %d", len(client.Send))
	}
}

func TestHubBridge(t *testing.T) {
	hub := NewHub()
	b := bus.NewMemory()
	detach := hub.Bridge(b)
	defer detach()

	coach := hub.Register(coachIdentity("c1"))
	watcher := hub.Register(riderIdentity("r2"))
	defer hub.Unregister(coach)
	defer hub.Unregister(watcher)
	hub.SubscribeRider(watcher, "r1")

	snapshot := []byte(`{"riderId":"r1","heartRate":120}`)
	_ = b.Publish(context.Background(), bus.TopicMetricsProcessed, snapshot)

	for _, c := range []*Client{coach, watcher} {
		var env Envelope
		if err := json.Unmarshal(recv(t, c), &env); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if env.Type != EvtRiderMetrics {
			t.Fatalf("got type %q", env.Type)
		}
		if string(env.Payload) != string(snapshot) {
			t.Fatalf("payload altered: %s", env.Payload)
		}
	}

	_ = b.Publish(context.Background(), bus.TopicAlertsNew, []byte(`{"id":"a1"}`))

	var env Envelope
	if err := json.Unmarshal(recv(t, coach), &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Type != EvtAlert {
		t.Fatalf("got type %q", env.Type)
	}
}
