package ws

import (
	"encoding/json"
	"time"

	"github.com/vedran77/rentals/internal/realtime"
)

// Event types - Client → Server
const (
	EventTypeSubscribe   = "subscribe"
	EventTypeUnsubscribe = "unsubscribe"
	EventTypePing        = "ping"
)

// Event types - Server → Client
const (
	EventTypeSubscribed = "subscribed"
	EventTypeDocument   = "event"
	EventTypePong       = "pong"
	EventTypeError      = "error"
)

// Event is the base envelope for all WebSocket messages.
type Event struct {
	Type      string          `json:"type"`
	Channels  []string        `json:"channels,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"ts,omitempty"`
}

// --- Client → Server payloads ---

type SubscribePayload struct {
	Channels []string `json:"channels"`
}

// --- Server → Client payloads ---

// DocumentPayload carries a realtime document change.
type DocumentPayload struct {
	Events  []string        `json:"events"`
	Payload json.RawMessage `json:"payload"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewEvent creates a server→client event with the current timestamp.
func NewEvent(eventType string, channels []string, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		Type:      eventType,
		Channels:  channels,
		Payload:   data,
		Timestamp: time.Now().Unix(),
	}, nil
}

func newDocumentEvent(evt realtime.Event) (*Event, error) {
	return NewEvent(EventTypeDocument, evt.Channels, DocumentPayload{
		Events:  evt.Events,
		Payload: evt.Payload,
	})
}
