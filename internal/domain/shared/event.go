package shared

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DomainEvent is a fact raised by an aggregate and relayed through the outbox
type DomainEvent interface {
	EventID() uuid.UUID
	EventType() string
	OccurredAt() time.Time
	AggregateID() uuid.UUID
	AggregateType() string
}

// EventHeader is embedded by concrete events. Its fields travel in the
// serialized outbox payload next to the event body.
type EventHeader struct {
	ID       uuid.UUID `json:"event_id"`
	Type     string    `json:"event_type"`
	At       time.Time `json:"occurred_at"`
	SourceID uuid.UUID `json:"aggregate_id"`
	Source   string    `json:"aggregate_type"`
}

// NewEventHeader stamps a header for an event raised now by the given aggregate
func NewEventHeader(eventType, aggregateType string, aggregateID uuid.UUID) EventHeader {
	return EventHeader{
		ID:       uuid.New(),
		Type:     eventType,
		At:       time.Now().UTC(),
		SourceID: aggregateID,
		Source:   aggregateType,
	}
}

func (h *EventHeader) EventID() uuid.UUID     { return h.ID }
func (h *EventHeader) EventType() string      { return h.Type }
func (h *EventHeader) OccurredAt() time.Time  { return h.At }
func (h *EventHeader) AggregateID() uuid.UUID { return h.SourceID }
func (h *EventHeader) AggregateType() string  { return h.Source }

// EventHandler consumes relayed events. Handlers may see an event more than
// once and must tolerate it.
type EventHandler interface {
	Handle(ctx context.Context, event DomainEvent) error
	// EventTypes lists the types to receive. Empty means every type.
	EventTypes() []string
}

// EventPublisher delivers events to their handlers
type EventPublisher interface {
	Publish(ctx context.Context, events ...DomainEvent) error
}
