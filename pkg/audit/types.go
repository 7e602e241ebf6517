package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/platinummonkey/gatehouse/pkg/contextkeys"
)

// EventType represents the category of audit event
type EventType string

const (
	EventTypeAccessDenied  EventType = "authz.access_denied"
	EventTypeAccountLocked EventType = "autolock.account_locked"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusDenied  EventStatus = "denied"
)

// Event represents a single audit log entry
type Event struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor information
	UserID  *int64 `json:"user_id,omitempty"`
	Subject string `json:"subject,omitempty"`

	// Target of the event: a tenant for denials, an identifier for locks
	Operation string `json:"operation,omitempty"`
	Target    string `json:"target,omitempty"`

	RequestID string `json:"request_id,omitempty"`
	Method    string `json:"method,omitempty"`
	Path      string `json:"path,omitempty"`

	Message  string            `json:"message,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// NewEvent creates an event stamped with the current time and the request
// id carried by ctx
func NewEvent(ctx context.Context, eventType EventType, status EventStatus) *Event {
	return &Event{
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		Status:    status,
		RequestID: contextkeys.GetRequestID(ctx),
	}
}

// ToJSON converts the audit event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// SearchFilter represents filters for searching audit events
type SearchFilter struct {
	StartTime *time.Time
	EndTime   *time.Time
	UserID    *int64
	Types     []EventType

	// Limit defaults to 100
	Limit  int
	Offset int
}
