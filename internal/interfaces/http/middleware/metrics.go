package middleware

import (
	"strconv"
	"time"

	"github.com/fleetbill/backend/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// HTTPMetrics records, per method and route template:
//   - http_server_request_total, also split by status code and class
//   - http_server_request_duration_seconds
//   - http_server_active_requests
func HTTPMetrics(meter metric.Meter) (gin.HandlerFunc, error) {
	requests, err := telemetry.NewCounter(meter,
		"http_server_request_total", "HTTP requests served", "{request}")
	if err != nil {
		return nil, err
	}
	latency, err := telemetry.NewHistogram(meter,
		"http_server_request_duration_seconds", "HTTP request latency", "s",
		telemetry.HTTPDurationBuckets...)
	if err != nil {
		return nil, err
	}
	inFlight, err := meter.Int64UpDownCounter("http_server_active_requests",
		metric.WithDescription("HTTP requests in flight"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		began := time.Now()
		inFlight.Add(ctx, 1)
		defer inFlight.Add(ctx, -1)

		c.Next()

		route := routePattern(c)
		base := []attribute.KeyValue{
			telemetry.AttrHTTPMethod.String(c.Request.Method),
			telemetry.AttrHTTPRoute.String(route),
		}
		status := c.Writer.Status()
		requests.Inc(ctx, append(base,
			telemetry.AttrHTTPStatusCode.Int(status),
			telemetry.AttrHTTPStatusClass.String(statusClass(status)),
		)...)
		latency.RecordDuration(ctx, time.Since(began), base...)
	}, nil
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "other"
	}
	return strconv.Itoa(status/100) + "xx"
}
