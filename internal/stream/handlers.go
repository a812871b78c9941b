package stream

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/rashdiman/ridepulse/internal/apperr"
	"github.com/rashdiman/ridepulse/internal/auth"
	"github.com/rashdiman/ridepulse/internal/bus"
	"github.com/rashdiman/ridepulse/internal/metrics"
	"github.com/rashdiman/ridepulse/internal/session"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// TokenValidator authenticates a raw token into an identity triple.
type TokenValidator interface {
	ValidateAccessToken(token string) (auth.Identity, error)
}

// Gateway owns the live telemetry WebSocket: it brokers session lifecycle,
// validates readings and hands accepted ones to the pipeline.
type Gateway struct {
	hub       *Hub
	registry  *session.Registry
	validator *Validator
	bus       bus.Bus
	tokens    TokenValidator
}

func NewGateway(hub *Hub, registry *session.Registry, b bus.Bus, tokens TokenValidator) *Gateway {
	return &Gateway{
		hub:       hub,
		registry:  registry,
		validator: NewValidator(registry),
		bus:       b,
		tokens:    tokens,
	}
}

func RegisterRoutes(r fiber.Router, g *Gateway) {
	r.Get("/ws", g.Upgrade, websocket.New(g.Handle))
}

// Upgrade authenticates the connection before the WebSocket handshake.
// Tokens come from the `token` query parameter or a bearer header.
func (g *Gateway) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	token := c.Query("token")
	if token == "" {
		token = bearerFromHeader(c.Get("Authorization"))
	}
	if token == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "missing token")
	}
	id, err := g.tokens.ValidateAccessToken(token)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, err.Error())
	}
	c.Locals("identity", id)
	return c.Next()
}

func bearerFromHeader(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// Handle runs one connection: a writer goroutine drains the client's send
// channel while the read loop dispatches inbound envelopes.
func (g *Gateway) Handle(c *websocket.Conn) {
	id, _ := c.Locals("identity").(auth.Identity)
	client := g.hub.Register(id)
	defer g.hub.Unregister(client)

	done := make(chan struct{})
	go func() {
		for msg := range client.Send {
			if err := c.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
		close(done)
	}()

	// Observers learn the current world state immediately, not on the
	// next lifecycle event.
	if id.Role == auth.RoleCoach || id.Role == auth.RoleAdmin {
		g.hub.Deliver(client, Event(EvtActiveSessions, g.registry.ListActive()))
	}

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			break
		}
		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			log.Printf("malformed envelope from %s dropped: %v", id.UserID, err)
			continue
		}
		g.dispatch(client, env)
	}
	<-done
}

func (g *Gateway) dispatch(client *Client, env Envelope) {
	switch env.Type {
	case MsgSessionStart:
		g.handleSessionStart(client, env.Payload)
	case MsgSessionEnd:
		g.handleSessionEnd(client, env.Payload)
	case MsgSensorData:
		g.handleSensorData(client, env.Payload)
	case MsgAcknowledgeAlert:
		g.handleAcknowledgeAlert(client, env.Payload)
	case MsgSubscribeRider:
		g.handleRiderSubscription(client, env.Payload, true)
	case MsgUnsubscribeRider:
		g.handleRiderSubscription(client, env.Payload, false)
	case MsgPing:
		g.hub.Deliver(client, Event(EvtPong, map[string]int64{"timestamp": time.Now().UnixMilli()}))
	default:
		log.Printf("unknown message type %q from %s", env.Type, client.Identity.UserID)
	}
}

func (g *Gateway) handleSessionStart(client *Client, payload json.RawMessage) {
	id := client.Identity
	if id.Role != auth.RoleRider {
		log.Printf("session_start rejected for role %s", id.Role)
		return
	}
	var req struct {
		RiderID    string               `json:"riderId"`
		DeviceInfo []session.DeviceInfo `json:"deviceInfo"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		log.Printf("malformed session_start dropped: %v", err)
		return
	}
	if req.RiderID != "" && req.RiderID != id.UserID {
		log.Printf("session_start rider mismatch: %s != %s", req.RiderID, id.UserID)
		return
	}

	s, err := g.registry.Open(context.Background(), id.UserID, riderNameOf(id), id.TeamID, req.DeviceInfo)
	if err != nil {
		g.hub.Deliver(client, errorEvent(err.Error()))
		return
	}

	// The requester learns the assigned sessionId before any reading
	// referencing it can validate.
	g.hub.Deliver(client, Event(EvtSessionCreated, map[string]string{"sessionId": s.ID}))
	g.hub.ToCoaches(Event(EvtSessionStart, s))
	log.Printf("session %s opened for rider %s", s.ID, id.UserID)
}

func (g *Gateway) handleSessionEnd(client *Client, payload json.RawMessage) {
	var req struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		log.Printf("malformed session_end dropped: %v", err)
		return
	}

	closed, err := g.registry.Close(context.Background(), req.SessionID, client.Identity.UserID)
	if err != nil {
		g.hub.Deliver(client, errorEvent(err.Error()))
		return
	}

	g.hub.Deliver(client, Event(EvtSessionEnded, map[string]string{"sessionId": closed.ID}))
	g.NotifySessionEnd(closed)
	log.Printf("session %s closed by rider %s", closed.ID, client.Identity.UserID)
}

// NotifySessionEnd pushes the lifecycle notification to observers. Also
// used by the idle sweep, which closes sessions without a connection.
func (g *Gateway) NotifySessionEnd(s session.Session) {
	g.hub.ToCoaches(Event(EvtSessionEnd, s))
}

func (g *Gateway) handleSensorData(client *Client, payload json.RawMessage) {
	var reading metrics.SensorReading
	if err := json.Unmarshal(payload, &reading); err != nil {
		log.Printf("malformed sensor_data dropped: %v", err)
		return
	}

	if err := g.validator.Validate(client.Identity, reading); err != nil {
		// A racing session-end is expected; drop and keep the
		// connection alive.
		if errors.Is(err, apperr.ErrInvalidSession) {
			log.Printf("reading for session %s dropped: %v", reading.SessionID, err)
		} else {
			log.Printf("reading from %s dropped: %v", client.Identity.UserID, err)
		}
		return
	}

	g.registry.Touch(reading.SessionID)
	_ = g.bus.Publish(context.Background(), bus.TopicMetricsIngest, payload)
	g.hub.Deliver(client, Event(EvtDataReceived, map[string]int64{"timestamp": reading.Timestamp}))
}

func (g *Gateway) handleAcknowledgeAlert(client *Client, payload json.RawMessage) {
	id := client.Identity
	if id.Role != auth.RoleCoach && id.Role != auth.RoleAdmin {
		log.Printf("acknowledge_alert rejected for role %s", id.Role)
		return
	}
	var req struct {
		AlertID string `json:"alertId"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		log.Printf("malformed acknowledge_alert dropped: %v", err)
		return
	}

	body, _ := json.Marshal(map[string]any{
		"alertId":        req.AlertID,
		"acknowledgedBy": id.UserID,
		"acknowledgedAt": time.Now().UnixMilli(),
	})
	_ = g.bus.Publish(context.Background(), bus.TopicAlertsAck, body)
}

func (g *Gateway) handleRiderSubscription(client *Client, payload json.RawMessage, subscribe bool) {
	id := client.Identity
	if id.Role != auth.RoleCoach && id.Role != auth.RoleAdmin {
		return
	}
	var req struct {
		RiderID string `json:"riderId"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		log.Printf("malformed rider subscription dropped: %v", err)
		return
	}

	if !subscribe {
		g.hub.UnsubscribeRider(client, req.RiderID)
		return
	}

	// Coaches are limited to riders on their own team; admins see all.
	if id.Role == auth.RoleCoach && id.TeamID != "" && !g.riderOnTeam(req.RiderID, id.TeamID) {
		g.hub.Deliver(client, errorEvent("no access to rider"))
		return
	}
	g.hub.SubscribeRider(client, req.RiderID)
}

func (g *Gateway) riderOnTeam(riderID, teamID string) bool {
	for _, s := range g.registry.ListActive() {
		if s.RiderID == riderID && s.TeamID == teamID {
			return true
		}
	}
	return false
}

func riderNameOf(id auth.Identity) string {
	if at := strings.IndexByte(id.Email, '@'); at > 0 {
		return id.Email[:at]
	}
	return id.Email
}
