package event

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/fleetbill/backend/internal/domain/shared"
	"go.uber.org/zap"
)

type subscription struct {
	handler shared.EventHandler
	types   []string // empty receives everything
}

func (s subscription) wants(eventType string) bool {
	return len(s.types) == 0 || slices.Contains(s.types, eventType)
}

// InMemoryEventBus hands relayed events to subscribers in the calling
// goroutine, in subscription order.
type InMemoryEventBus struct {
	mu     sync.RWMutex
	subs   []subscription
	logger *zap.Logger
}

// NewInMemoryEventBus creates a bus with no subscribers
func NewInMemoryEventBus(logger *zap.Logger) *InMemoryEventBus {
	return &InMemoryEventBus{logger: logger}
}

// Subscribe adds handler for eventTypes, or for handler.EventTypes() when
// none are given
func (b *InMemoryEventBus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	b.mu.Lock()
	b.subs = append(b.subs, subscription{handler: handler, types: slices.Clone(eventTypes)})
	b.mu.Unlock()
	b.logger.Debug("handler subscribed", zap.Strings("event_types", eventTypes))
}

// Publish runs every matching handler for every event. One failing handler
// does not stop the others; all failures come back joined so the relay
// schedules a retry.
func (b *InMemoryEventBus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	var errs []error
	for _, event := range events {
		for _, sub := range subs {
			if !sub.wants(event.EventType()) {
				continue
			}
			if err := safeHandle(ctx, sub.handler, event); err != nil {
				b.logger.Error("event handler failed",
					zap.String("event_type", event.EventType()),
					zap.String("event_id", event.EventID().String()),
					zap.Error(err),
				)
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func safeHandle(ctx context.Context, handler shared.EventHandler, event shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler.Handle(ctx, event)
}

var _ shared.EventPublisher = (*InMemoryEventBus)(nil)
