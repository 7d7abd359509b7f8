// Package functions is the privileged execution channel: named server-side
// functions that run with elevated access to the document store.
package functions

import (
	"context"
	"encoding/json"

	"github.com/vedran77/rentals/internal/domain"
)

const (
	SendNotification    = "sendNotification"
	LeaseExpiryReminder = "leaseExpiryReminder"
	RentOverdueChecker  = "rentOverdueChecker"
)

const (
	StatusQueued    = "queued"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Execution is the result of running a function.
type Execution struct {
	ID           string          `json:"id"`
	Function     string          `json:"function"`
	Status       string          `json:"status"`
	StatusCode   int             `json:"status_code"`
	ResponseBody json.RawMessage `json:"response_body,omitempty"`
}

// Executed reports whether the function ran to completion.
func (e *Execution) Executed() bool {
	return e != nil && e.Status == StatusCompleted
}

// Decode unmarshals the function's response body into v.
func (e *Execution) Decode(v any) error {
	if len(e.ResponseBody) == 0 {
		return nil
	}
	return json.Unmarshal(e.ResponseBody, v)
}

// Request is the wire form of an execution, used both over HTTP and Kafka.
type Request struct {
	ID       string          `json:"id,omitempty"`
	Function string          `json:"function,omitempty"`
	Payload  json.RawMessage `json:"payload"`
	Async    bool            `json:"async"`
}

type Executor interface {
	// Execute runs name with payload. Async executions return once queued.
	Execute(ctx context.Context, name string, payload any, async bool) (*Execution, error)
	Enabled() bool
}

type SendNotificationRequest struct {
	// NotificationID is set when the notification is already persisted.
	NotificationID string                  `json:"notification_id,omitempty"`
	UserID         string                  `json:"user_id"`
	Type           domain.NotificationType `json:"type"`
	Title          string                  `json:"title"`
	Body           string                  `json:"body"`
	Channels       []string                `json:"channels,omitempty"`
	EntityType     *string                 `json:"entity_type,omitempty"`
	EntityID       *string                 `json:"entity_id,omitempty"`
	// PersistInApp defaults to true when omitted.
	PersistInApp *bool `json:"persist_in_app,omitempty"`
}

type SendNotificationResponse struct {
	OK             bool     `json:"ok"`
	Message        string   `json:"message,omitempty"`
	NotificationID string   `json:"notification_id,omitempty"`
	PersistedInApp bool     `json:"persisted_in_app"`
	Channels       []string `json:"channels,omitempty"`
}
