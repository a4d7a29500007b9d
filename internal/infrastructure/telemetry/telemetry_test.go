package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/fleetbill/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func installRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(previous) })
	return recorder
}

func TestSetup_Disabled(t *testing.T) {
	p, err := Setup(context.Background(), config.TelemetryConfig{ServiceName: "lettrage"}, "test", zap.NewNop())
	require.NoError(t, err)

	assert.False(t, p.Tracer.IsEnabled())
	assert.False(t, p.Logs.IsEnabled())
	assert.False(t, p.Profiler.IsEnabled())
	assert.NotNil(t, p.Meter.Meter("x"))

	assert.False(t, p.LogCore("lettrage", zapcore.InfoLevel).Enabled(zapcore.ErrorLevel))

	assert.NoError(t, p.Shutdown(context.Background()))
	assert.NoError(t, p.Profiler.Stop(), "stopping twice is harmless")
}

func TestNewProfiler_RequiresAddress(t *testing.T) {
	_, err := NewProfiler(config.TelemetryConfig{ProfilingEnabled: true}, zap.NewNop())
	assert.ErrorContains(t, err, "pyroscope address")
}

func TestSamplerFor(t *testing.T) {
	assert.Contains(t, samplerFor(1).Description(), "AlwaysOnSampler")
	assert.Equal(t, "AlwaysOffSampler", samplerFor(0).Description())
	assert.Contains(t, samplerFor(0.25).Description(), "TraceIDRatioBased{0.25}")
}

func TestStartServiceSpan(t *testing.T) {
	recorder := installRecorder(t)

	ctx, span := StartServiceSpan(context.Background(), "payment", "apply",
		SpanAttrAmount, int64(1500),
		SpanAttrStrategy, "AUTO",
	)
	assert.NotEmpty(t, GetTraceID(ctx))
	assert.NotEmpty(t, GetSpanID(ctx))

	SetAttributes(span, SpanAttrReplayed, true, 42, "ignored key")
	AddEvent(span, "conflict", SpanAttrAttempt, 2)
	RecordError(span, errors.New("boom"))
	RecordError(span, nil)
	span.End()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	s := spans[0]
	assert.Equal(t, "payment.apply", s.Name())
	assert.Equal(t, codes.Error, s.Status().Code)
	assert.Len(t, s.Attributes(), 3)
	require.Len(t, s.Events(), 2, "conflict event plus recorded error")
	assert.Equal(t, "conflict", s.Events()[0].Name)
}

func TestGetTraceID_NoSpan(t *testing.T) {
	assert.Empty(t, GetTraceID(context.Background()))
	assert.Empty(t, GetSpanID(context.Background()))
}

func TestSanitizeLabels(t *testing.T) {
	long := make([]byte, MaxLabelValueLength+10)
	for i := range long {
		long[i] = 'a'
	}
	pairs := sanitizeLabels(map[string]string{
		ProfilingLabelOperation: "apply_payment",
		ProfilingLabelStrategy:  "AUTO",
		"contact_id":            "c-1",
		"empty":                 "",
		ProfilingLabelRoute:     string(long),
	})
	assert.Equal(t, []string{
		"operation", "apply_payment",
		"route", string(long[:MaxLabelValueLength]),
		"strategy", "AUTO",
	}, pairs)

	ran := false
	WithProfilingLabels(context.Background(), PaymentLabels("apply_payment", "AUTO"), func(context.Context) { ran = true })
	assert.True(t, ran)
}

func TestRegisterDBTracing_MarksSlowQueries(t *testing.T) {
	recorder := installRecorder(t)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, RegisterDBTracing(db, 0, zap.NewNop()))

	var n int
	require.NoError(t, db.WithContext(context.Background()).Raw("SELECT 1").Scan(&n).Error)
	assert.Equal(t, 1, n)

	var slow bool
	for _, s := range recorder.Ended() {
		for _, attr := range s.Attributes() {
			if attr.Key == "db.slow_query" && attr.Value.AsBool() {
				slow = true
			}
		}
	}
	assert.True(t, slow, "a zero threshold flags every statement")
}

func TestRegisterDBPoolMetrics(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	db.SetMaxOpenConns(4)

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	require.NoError(t, RegisterDBPoolMetrics(provider.Meter("test"), db))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	var maxConns int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if g, ok := m.Data.(metricdata.Gauge[int64]); ok && m.Name == "lettrage_db_pool_connections" {
				for _, dp := range g.DataPoints {
					if v, _ := dp.Attributes.Value(AttrDBPoolState); v.AsString() == "max" {
						maxConns = dp.Value
					}
				}
			}
		}
	}
	assert.Equal(t, int64(4), maxConns)
}
