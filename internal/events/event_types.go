package events

import (
	"time"

	"github.com/spec-kit/queue-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketIssued  EventType = "ticket_issued"
	EventQueueAdvanced EventType = "queue_advanced"
	EventQueueReversed EventType = "queue_reversed"
	EventQueueReset    EventType = "queue_reset"
	EventQueueSet      EventType = "queue_set"
)

// QueueEventTypes lists every event that changes what displays should show.
var QueueEventTypes = []EventType{
	EventTicketIssued,
	EventQueueAdvanced,
	EventQueueReversed,
	EventQueueReset,
	EventQueueSet,
}

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type    domain.SubjectType `json:"type,omitempty"`
	StaffID *string            `json:"staff_id,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketIssuedPayload payload.
type TicketIssuedPayload struct {
	TicketID  string `json:"ticket_id"`
	Number    int64  `json:"number"`
	ServiceID int64  `json:"service_id"`
	Epoch     int64  `json:"epoch"`
}

// CursorMovedPayload carries the committed cursor position.
type CursorMovedPayload struct {
	PreviousNumber int64             `json:"previous_number"`
	State          domain.QueueState `json:"state"`
}
