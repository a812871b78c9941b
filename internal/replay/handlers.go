package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/rashdiman/ridepulse/internal/auth"
	"github.com/rashdiman/ridepulse/internal/stream"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// Inbound replay control messages.
const (
	MsgCreateReplay  = "create_replay"
	MsgStartReplay   = "start_replay"
	MsgPauseReplay   = "pause_replay"
	MsgStopReplay    = "stop_replay"
	MsgChangeSpeed   = "change_speed"
	MsgSeek          = "seek"
	MsgDeleteReplay  = "delete_replay"
	MsgGetReplayInfo = "get_replay_info"
)

// Outbound replay events.
const (
	EvtReplayCreated  = "replay_created"
	EvtReplayData     = "replay_data"
	EvtReplayFinished = "replay_finished"
	EvtReplayInfo     = "replay_info"
)

// Handler serves the replay WebSocket. Replays reuse the hub's delivery
// path but are scoped to the connection that created them.
type Handler struct {
	manager *Manager
	hub     *stream.Hub
	gateway *stream.Gateway
}

func NewHandler(manager *Manager, hub *stream.Hub, gateway *stream.Gateway) *Handler {
	return &Handler{manager: manager, hub: hub, gateway: gateway}
}

func RegisterRoutes(r fiber.Router, h *Handler) {
	r.Get("/ws/replay", h.gateway.Upgrade, websocket.New(h.Handle))
}

func (h *Handler) Handle(c *websocket.Conn) {
	id, _ := c.Locals("identity").(auth.Identity)
	client := h.hub.Register(id)
	// The connection, not the user, owns its replays: two tabs replaying
	// the same session stay independent.
	owner := clientKey(client)
	defer func() {
		h.manager.DropOwned(owner)
		h.hub.Unregister(client)
	}()

	done := make(chan struct{})
	go func() {
		for msg := range client.Send {
			if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
		close(done)
	}()

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			break
		}
		var env stream.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			log.Printf("malformed replay envelope from %s dropped: %v", id.UserID, err)
			continue
		}
		h.dispatch(client, owner, env)
	}
	<-done
}

func (h *Handler) dispatch(client *stream.Client, owner string, env stream.Envelope) {
	emit := func(typ string, payload any) {
		h.hub.Deliver(client, stream.Event(typ, payload))
	}

	var req struct {
		ReplayID  string  `json:"replayId"`
		SessionID string  `json:"sessionId"`
		Speed     float64 `json:"speed"`
		Position  float64 `json:"position"`
	}
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &req); err != nil {
			log.Printf("malformed %s payload dropped: %v", env.Type, err)
			return
		}
	}

	switch env.Type {
	case MsgCreateReplay:
		r, err := h.manager.Create(context.Background(), owner, req.SessionID, req.Speed)
		if err != nil {
			emit(stream.EvtError, map[string]string{"message": err.Error()})
			return
		}
		emit(EvtReplayCreated, map[string]string{"replayId": r.id})

	case MsgStartReplay:
		r, err := h.manager.Get(req.ReplayID, owner)
		if err != nil {
			emit(stream.EvtError, map[string]string{"message": err.Error()})
			return
		}
		replayID := req.ReplayID
		r.Start(emit, func() { h.manager.Remove(replayID) })

	case MsgPauseReplay:
		if r, err := h.manager.Get(req.ReplayID, owner); err == nil {
			r.Pause()
		}

	case MsgStopReplay:
		if r, err := h.manager.Get(req.ReplayID, owner); err == nil {
			r.Stop()
		}

	case MsgChangeSpeed:
		if r, err := h.manager.Get(req.ReplayID, owner); err == nil {
			r.ChangeSpeed(req.Speed)
		}

	case MsgSeek:
		if r, err := h.manager.Get(req.ReplayID, owner); err == nil {
			r.Seek(req.Position)
		}

	case MsgDeleteReplay:
		if err := h.manager.Delete(req.ReplayID, owner); err != nil {
			emit(stream.EvtError, map[string]string{"message": err.Error()})
		}

	case MsgGetReplayInfo:
		r, err := h.manager.Get(req.ReplayID, owner)
		if err != nil {
			emit(stream.EvtError, map[string]string{"message": err.Error()})
			return
		}
		emit(EvtReplayInfo, r.Info())

	default:
		log.Printf("unknown replay message type %q", env.Type)
	}
}

func clientKey(c *stream.Client) string {
	return fmt.Sprintf("%p", c)
}
