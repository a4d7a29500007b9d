package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestHTTPMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	mw, err := HTTPMetrics(provider.Meter("test"))
	require.NoError(t, err)

	r := gin.New()
	r.Use(mw)
	r.GET("/payments/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	for _, path := range []string{"/payments/a", "/payments/b"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "http_server_request_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				route, _ := dp.Attributes.Value("http.route")
				class, _ := dp.Attributes.Value("http.status_class")
				assert.Equal(t, "/payments/:id", route.AsString())
				assert.Equal(t, "4xx", class.AsString())
				total += dp.Value
			}
		}
	}
	assert.Equal(t, int64(2), total)
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(http.StatusCreated))
	assert.Equal(t, "5xx", statusClass(http.StatusServiceUnavailable))
	assert.Equal(t, "other", statusClass(0))
}
