package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fleetbill/backend/internal/infrastructure/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

// spanEngine opens a recorded span per request in place of otelgin
func spanEngine(recorder *tracetest.SpanRecorder) *gin.Engine {
	tracer := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)).Tracer("test")
	r := gin.New()
	r.Use(RequestID(), func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), c.Request.URL.Path)
		defer span.End()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}, SpanAnnotator(), logger.Recovery(zap.NewNop()))
	return r
}

func spanAttrs(s sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	attrs := make(map[attribute.Key]attribute.Value)
	for _, kv := range s.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	return attrs
}

func TestSpanAnnotator(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	r := spanEngine(recorder)
	r.POST("/payments", func(c *gin.Context) { c.Status(http.StatusConflict) })
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/boom", func(*gin.Context) { panic("boom") })

	req := httptest.NewRequest(http.MethodPost, "/payments", nil)
	req.Header.Set(RequestIDHeader, "req-7")
	req.Header.Set(IdempotencyKeyHeader, "pay-42")
	r.ServeHTTP(httptest.NewRecorder(), req)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 3)

	conflict := spans[0]
	attrs := spanAttrs(conflict)
	assert.Equal(t, "req-7", attrs["request_id"].AsString())
	assert.Equal(t, "pay-42", attrs["idempotency_key"].AsString())
	assert.Equal(t, int64(http.StatusConflict), attrs["http.status_code"].AsInt64())
	assert.Equal(t, codes.Error, conflict.Status().Code)
	assert.Equal(t, "Conflict", conflict.Status().Description)

	assert.Equal(t, codes.Unset, spans[1].Status().Code)

	assert.Equal(t, codes.Error, spans[2].Status().Code, "recovered panics mark the span")
	assert.Equal(t, "Internal Server Error", spans[2].Status().Description)
}
