package stream

import (
	"encoding/json"
	"log"
)

// Envelope is the tagged wire message exchanged over every WebSocket.
// Payloads are decoded against a concrete type once the tag is known;
// nothing downstream ever sees raw JSON.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound message types.
const (
	MsgSessionStart     = "session_start"
	MsgSessionEnd       = "session_end"
	MsgSensorData       = "sensor_data"
	MsgAcknowledgeAlert = "acknowledge_alert"
	MsgSubscribeRider   = "subscribe_rider"
	MsgUnsubscribeRider = "unsubscribe_rider"
	MsgPing             = "ping"
)

// Outbound event types.
const (
	EvtActiveSessions = "active_sessions"
	EvtSessionCreated = "session_created"
	EvtSessionEnded   = "session_ended"
	EvtSessionStart   = "session_start"
	EvtSessionEnd     = "session_end"
	EvtDataReceived   = "data_received"
	EvtRiderMetrics   = "rider_metrics"
	EvtAlert          = "alert"
	EvtPong           = "pong"
	EvtError          = "error"
)

// Event marshals an outbound envelope. Marshal failures are logged and
// yield nil, which the hub treats as nothing-to-send.
func Event(typ string, payload any) []byte {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("event %s marshal failed: %v", typ, err)
		return nil
	}
	out, err := json.Marshal(Envelope{Type: typ, Payload: body})
	if err != nil {
		log.Printf("event %s marshal failed: %v", typ, err)
		return nil
	}
	return out
}

// RawEvent wraps an already-marshaled payload in an envelope.
func RawEvent(typ string, payload []byte) []byte {
	out, err := json.Marshal(Envelope{Type: typ, Payload: payload})
	if err != nil {
		log.Printf("event %s marshal failed: %v", typ, err)
		return nil
	}
	return out
}

func errorEvent(message string) []byte {
	return Event(EvtError, map[string]string{"message": message})
}
