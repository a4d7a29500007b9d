package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ProcessedEvents remembers which relayed event IDs a consumer has taken.
// A claim lives for its TTL unless released earlier.
type ProcessedEvents interface {
	// Claim returns true for exactly one caller per live eventID
	Claim(ctx context.Context, eventID string, ttl time.Duration) (bool, error)
	// Release forgets a claim so the event can be taken again
	Release(ctx context.Context, eventID string) error
	Close() error
}

// NewProcessedEvents picks Redis when a client is configured so that every
// instance shares the same claims. Without Redis the claims are per process.
func NewProcessedEvents(client *redis.Client, logger *zap.Logger) ProcessedEvents {
	if client != nil {
		logger.Info("event deduplication backed by Redis")
		return NewRedisProcessedEvents(client, "")
	}
	logger.Warn("Redis not configured, event deduplication is per instance")
	return NewMemoryProcessedEvents()
}
