package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const processedEventsPrefix = "lettrage:events:claimed:"

// RedisProcessedEvents stores claims as expiring Redis keys
type RedisProcessedEvents struct {
	client *redis.Client
	prefix string
}

// NewRedisProcessedEvents uses client, which stays owned by the caller
func NewRedisProcessedEvents(client *redis.Client, prefix string) *RedisProcessedEvents {
	if prefix == "" {
		prefix = processedEventsPrefix
	}
	return &RedisProcessedEvents{client: client, prefix: prefix}
}

// Claim relies on SET NX, which Redis executes atomically
func (s *RedisProcessedEvents) Claim(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	won, err := s.client.SetNX(ctx, s.prefix+eventID, time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim event %s: %w", eventID, err)
	}
	return won, nil
}

func (s *RedisProcessedEvents) Release(ctx context.Context, eventID string) error {
	if err := s.client.Del(ctx, s.prefix+eventID).Err(); err != nil {
		return fmt.Errorf("release event %s: %w", eventID, err)
	}
	return nil
}

func (s *RedisProcessedEvents) Close() error { return nil }
