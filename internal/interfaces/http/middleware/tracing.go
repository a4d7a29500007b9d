package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracing opens a server span per request, named after the route pattern
// (e.g. "POST /api/v1/contacts/:id/payments").
func Tracing(serviceName string) gin.HandlerFunc {
	return otelgin.Middleware(serviceName)
}

// SpanAnnotator tags the server span with the request and idempotency keys
// and, once the handler chain returns, flags 4xx and 5xx answers as span
// errors. It must run after Tracing and RequestID and before Recovery, so
// that recovered panics are seen as 500s.
func SpanAnnotator() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			c.Next()
			return
		}

		if id := GetRequestID(c); id != "" {
			span.SetAttributes(attribute.String("request_id", id))
		}
		if key := c.GetHeader(IdempotencyKeyHeader); ValidIdempotencyKey(key) {
			span.SetAttributes(attribute.String("idempotency_key", key))
		}

		c.Next()

		status := c.Writer.Status()
		if status < http.StatusBadRequest {
			return
		}
		span.SetAttributes(attribute.Int("http.status_code", status))
		span.SetStatus(codes.Error, http.StatusText(status))
	}
}
