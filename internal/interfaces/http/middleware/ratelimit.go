package middleware

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/fleetbill/backend/internal/infrastructure/logger"
	"github.com/fleetbill/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Limiter decides whether one more request from key fits its budget
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, remaining int, err error)
	Limit() int
}

// RateLimiter is an in-memory per-key token bucket built on golang.org/x/time/rate.
// It is used when no shared Redis counter is configured.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	limit   int           // Maximum requests per window
	window  time.Duration // Time window
	every   rate.Limit
	stop    chan struct{}
	once    sync.Once
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter allowing limit requests per window
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit < 1 {
		limit = 1
	}
	rl := &RateLimiter{
		clients: make(map[string]*client),
		limit:   limit,
		window:  window,
		every:   rate.Every(window / time.Duration(limit)),
		stop:    make(chan struct{}),
	}
	go rl.cleanup(window * 2)
	return rl
}

// cleanup removes idle clients periodically
func (rl *RateLimiter) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.mu.Lock()
			now := time.Now()
			for key, c := range rl.clients {
				if now.Sub(c.lastSeen) > rl.window*2 {
					delete(rl.clients, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// Close stops the cleanup goroutine
func (rl *RateLimiter) Close() {
	rl.once.Do(func() { close(rl.stop) })
}

// Allow checks if a request from the given key should be allowed
func (rl *RateLimiter) Allow(_ context.Context, key string) (bool, int, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	c, exists := rl.clients[key]
	if !exists {
		c = &client{limiter: rate.NewLimiter(rl.every, rl.limit)}
		rl.clients[key] = c
	}
	c.lastSeen = now

	allowed := c.limiter.AllowN(now, 1)
	remaining := int(c.limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return allowed, remaining, nil
}

// Limit returns the configured request limit per window
func (rl *RateLimiter) Limit() int {
	return rl.limit
}

// RateLimit returns a rate limiting middleware keyed by client IP.
// Requests are let through when the limiter itself fails.
func RateLimit(limiter Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()

		allowed, remaining, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			logger.L(c.Request.Context()).Warn("Rate limiter unavailable, allowing request", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.Fail(
				dto.ErrCodeRateLimited,
				"Too many requests. Please try again later.",
				GetRequestID(c),
			))
			return
		}

		c.Next()
	}
}
