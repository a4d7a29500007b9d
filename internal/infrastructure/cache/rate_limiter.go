package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimiter is a fixed-window request counter shared by all instances
type RedisRateLimiter struct {
	client    *redis.Client
	limit     int
	window    time.Duration
	keyPrefix string
}

// NewRedisRateLimiter creates a limiter allowing limit requests per window
func NewRedisRateLimiter(client *redis.Client, limit int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{
		client:    client,
		limit:     limit,
		window:    window,
		keyPrefix: "lettrage:ratelimit:",
	}
}

// Allow counts one request for key and reports whether it fits the window,
// together with the number of requests left.
func (l *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, int, error) {
	redisKey := fmt.Sprintf("%s%s:%d", l.keyPrefix, key, time.Now().UnixNano()/int64(l.window))

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("rate limit counter: %w", err)
	}

	count := int(incr.Val())
	remaining := l.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return count <= l.limit, remaining, nil
}

// Limit returns the configured request limit per window
func (l *RedisRateLimiter) Limit() int {
	return l.limit
}
