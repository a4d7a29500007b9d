package event

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/fleetbill/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// DefaultDedupTTL is how long a handled event ID is remembered
const DefaultDedupTTL = 24 * time.Hour

// ClaimStore is the claim set a DedupHandler consults
type ClaimStore interface {
	Claim(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// DedupStats counts what a DedupHandler did with the events it saw
type DedupStats struct {
	Handled int64 `json:"handled"`
	Skipped int64 `json:"skipped"`
	Failed  int64 `json:"failed"`
}

// DedupHandler lets each event ID through to the wrapped handler once per
// TTL. A failed handling releases the claim so the relay retry is not
// mistaken for a duplicate. A zero TTL turns deduplication off.
type DedupHandler struct {
	next   shared.EventHandler
	claims ClaimStore
	ttl    time.Duration
	logger *zap.Logger

	handled, skipped, failed atomic.Int64
}

// NewDedupHandler wraps next
func NewDedupHandler(next shared.EventHandler, claims ClaimStore, ttl time.Duration, logger *zap.Logger) *DedupHandler {
	return &DedupHandler{next: next, claims: claims, ttl: ttl, logger: logger.Named("dedup")}
}

func (h *DedupHandler) EventTypes() []string {
	return h.next.EventTypes()
}

func (h *DedupHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	if h.ttl <= 0 {
		return h.run(ctx, event)
	}

	id := event.EventID().String()
	won, err := h.claims.Claim(ctx, id, h.ttl)
	if err != nil {
		h.logger.Warn("claim failed, handling without deduplication",
			zap.String("event_id", id), zap.Error(err))
		return h.run(ctx, event)
	}
	if !won {
		h.skipped.Add(1)
		h.logger.Debug("duplicate event skipped",
			zap.String("event_id", id), zap.String("event_type", event.EventType()))
		return nil
	}

	if err := h.run(ctx, event); err != nil {
		if relErr := h.claims.Release(ctx, id); relErr != nil {
			h.logger.Error("claim release failed, the retry will be skipped",
				zap.String("event_id", id), zap.Error(relErr))
		}
		return err
	}
	return nil
}

func (h *DedupHandler) run(ctx context.Context, event shared.DomainEvent) error {
	if err := h.next.Handle(ctx, event); err != nil {
		h.failed.Add(1)
		return err
	}
	h.handled.Add(1)
	return nil
}

// Stats returns the counters so far
func (h *DedupHandler) Stats() DedupStats {
	return DedupStats{Handled: h.handled.Load(), Skipped: h.skipped.Load(), Failed: h.failed.Load()}
}

var _ shared.EventHandler = (*DedupHandler)(nil)
