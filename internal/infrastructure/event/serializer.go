package event

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/fleetbill/backend/internal/domain/finance"
	"github.com/fleetbill/backend/internal/domain/shared"
)

// EventSerializer encodes events as JSON outbox payloads and decodes them
// back into their concrete types. The set of types is fixed at construction.
type EventSerializer struct {
	decoders map[string]func() shared.DomainEvent
}

// NewEventSerializer creates a serializer for the given event constructors,
// keyed by the value EventType() returns
func NewEventSerializer(decoders map[string]func() shared.DomainEvent) *EventSerializer {
	if decoders == nil {
		decoders = map[string]func() shared.DomainEvent{}
	}
	return &EventSerializer{decoders: maps.Clone(decoders)}
}

// NewFinanceEventSerializer knows every event the allocation engine raises
func NewFinanceEventSerializer() *EventSerializer {
	return NewEventSerializer(map[string]func() shared.DomainEvent{
		finance.EventTypePaymentApplied: func() shared.DomainEvent { return &finance.PaymentAppliedEvent{} },
		finance.EventTypeInvoiceSettled: func() shared.DomainEvent { return &finance.InvoiceSettledEvent{} },
	})
}

func (s *EventSerializer) Serialize(event shared.DomainEvent) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event.EventType(), err)
	}
	return data, nil
}

func (s *EventSerializer) Deserialize(eventType string, data []byte) (shared.DomainEvent, error) {
	newEvent, ok := s.decoders[eventType]
	if !ok {
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
	event := newEvent()
	if err := json.Unmarshal(data, event); err != nil {
		return nil, fmt.Errorf("decode %s: %w", eventType, err)
	}
	return event, nil
}

// Knows reports whether eventType can be decoded
func (s *EventSerializer) Knows(eventType string) bool {
	_, ok := s.decoders[eventType]
	return ok
}

// RegisteredTypes returns the known event types, sorted
func (s *EventSerializer) RegisteredTypes() []string {
	return slices.Sorted(maps.Keys(s.decoders))
}
