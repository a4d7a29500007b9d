package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/fleetbill/backend/internal/infrastructure/logger"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RequestIDHeader carries the request ID in both directions
const RequestIDHeader = "X-Request-ID"

// requestIDKey is the gin context key holding the request ID
const requestIDKey = "request_id"

// MaxRequestIDLength bounds caller-supplied request IDs
const MaxRequestIDLength = 128

// routePattern returns the matched route template, or "unmatched" when no
// route handled the request.
func routePattern(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unmatched"
}

// CORS returns the CORS middleware. An empty origin list rejects every
// cross-origin request.
func CORS(allowOrigins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Accept", "Origin", RequestIDHeader, IdempotencyKeyHeader},
		ExposeHeaders:    []string{RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	for _, o := range allowOrigins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			break
		}
	}
	if !cfg.AllowAllOrigins {
		origins := append([]string(nil), allowOrigins...)
		cfg.AllowOriginFunc = func(origin string) bool {
			for _, o := range origins {
				if o == origin {
					return true
				}
			}
			return false
		}
	}
	return cors.New(cfg)
}

// RequestID adds a unique request ID to each request and puts it on the
// request context so every log line of the request carries it.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" || len(requestID) > MaxRequestIDLength {
			requestID = generateRequestID()
		}
		c.Set(requestIDKey, requestID)
		c.Writer.Header().Set(RequestIDHeader, requestID)
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), requestID))
		c.Next()
	}
}

// GetRequestID returns the request ID assigned by RequestID
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// generateRequestID generates a unique request ID
func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return time.Now().UTC().Format("20060102150405.000000000")
	}
	return hex.EncodeToString(bytes)
}

// Secure adds security headers to responses. The API serves JSON only, so
// the content security policy denies everything.
func Secure() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Next()
	}
}
