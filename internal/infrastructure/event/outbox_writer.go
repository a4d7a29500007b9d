package event

import (
	"context"
	"fmt"

	"github.com/fleetbill/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// OutboxWriter stores domain events as outbox rows inside the caller's
// transaction. A rolled back payment therefore leaves no events behind.
type OutboxWriter struct {
	serializer *EventSerializer
}

// NewOutboxWriter creates a writer that encodes events with serializer
func NewOutboxWriter(serializer *EventSerializer) *OutboxWriter {
	return &OutboxWriter{serializer: serializer}
}

// SaveEvents encodes events and inserts them through tx. Event types the
// relay could not decode are refused so they fail the commit instead of
// piling up as dead letters.
func (w *OutboxWriter) SaveEvents(ctx context.Context, tx *gorm.DB, events ...shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}

	entries := make([]*shared.OutboxEntry, len(events))
	for i, event := range events {
		if !w.serializer.Knows(event.EventType()) {
			return fmt.Errorf("event type %s is not registered", event.EventType())
		}
		payload, err := w.serializer.Serialize(event)
		if err != nil {
			return err
		}
		entries[i] = shared.NewOutboxEntry(event, payload)
	}
	return NewGormOutboxRepository(tx).Save(ctx, entries...)
}
