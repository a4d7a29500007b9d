package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetbill/backend/internal/infrastructure/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.uber.org/zap"
)

// MetricsExportInterval is the OTLP push period
const MetricsExportInterval = 30 * time.Second

// MeterProvider owns the SDK meter provider when metrics export is on.
// With export off it hands out meters from the global no-op provider.
type MeterProvider struct {
	sdk    *sdkmetric.MeterProvider
	logger *zap.Logger
}

// NewMeterProvider pushes metrics over OTLP/gRPC when telemetry and metrics
// are both enabled
func NewMeterProvider(ctx context.Context, cfg config.TelemetryConfig, res *resource.Resource, logger *zap.Logger) (*MeterProvider, error) {
	if !cfg.Enabled || !cfg.MetricsEnabled {
		logger.Info("Metrics export disabled")
		return &MeterProvider{logger: logger}, nil
	}

	exporterOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.CollectorEndpoint)}
	if cfg.Insecure {
		exporterOpts = append(exporterOpts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("create OTLP metric exporter: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(MetricsExportInterval))
	sdk := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader))
	otel.SetMeterProvider(sdk)

	logger.Info("Metrics export enabled",
		zap.String("collector_endpoint", cfg.CollectorEndpoint),
		zap.Duration("interval", MetricsExportInterval),
	)
	return &MeterProvider{sdk: sdk, logger: logger}, nil
}

func (mp *MeterProvider) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	if mp == nil || mp.sdk == nil {
		return otel.GetMeterProvider().Meter(name, opts...)
	}
	return mp.sdk.Meter(name, opts...)
}

// Shutdown pushes what is buffered, waiting at most ten seconds
func (mp *MeterProvider) Shutdown(ctx context.Context) error {
	if mp == nil || mp.sdk == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := mp.sdk.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown meter provider: %w", err)
	}
	mp.logger.Info("Metrics export stopped")
	return nil
}

// Counter is an int64 counter taking attributes variadically
type Counter struct {
	inner metric.Int64Counter
}

// NewCounter registers a counter on meter
func NewCounter(meter metric.Meter, name, description, unit string) (*Counter, error) {
	inner, err := meter.Int64Counter(name, metric.WithDescription(description), metric.WithUnit(unit))
	if err != nil {
		return nil, fmt.Errorf("counter %s: %w", name, err)
	}
	return &Counter{inner: inner}, nil
}

func (c *Counter) Add(ctx context.Context, n int64, attrs ...attribute.KeyValue) {
	c.inner.Add(ctx, n, metric.WithAttributes(attrs...))
}

func (c *Counter) Inc(ctx context.Context, attrs ...attribute.KeyValue) {
	c.Add(ctx, 1, attrs...)
}

// Histogram is a float64 histogram with fixed bucket boundaries
type Histogram struct {
	inner metric.Float64Histogram
}

// NewHistogram registers a histogram on meter. Without boundaries the SDK
// defaults apply.
func NewHistogram(meter metric.Meter, name, description, unit string, boundaries ...float64) (*Histogram, error) {
	opts := []metric.Float64HistogramOption{metric.WithDescription(description), metric.WithUnit(unit)}
	if len(boundaries) > 0 {
		opts = append(opts, metric.WithExplicitBucketBoundaries(boundaries...))
	}
	inner, err := meter.Float64Histogram(name, opts...)
	if err != nil {
		return nil, fmt.Errorf("histogram %s: %w", name, err)
	}
	return &Histogram{inner: inner}, nil
}

func (h *Histogram) Record(ctx context.Context, v float64, attrs ...attribute.KeyValue) {
	h.inner.Record(ctx, v, metric.WithAttributes(attrs...))
}

// RecordDuration records d in seconds
func (h *Histogram) RecordDuration(ctx context.Context, d time.Duration, attrs ...attribute.KeyValue) {
	h.Record(ctx, d.Seconds(), attrs...)
}

// Metric attribute keys
var (
	AttrStrategy        = attribute.Key("strategy")
	AttrOutcome         = attribute.Key("outcome")
	AttrCurrency        = attribute.Key("currency")
	AttrDBPoolState     = attribute.Key("db.pool.state")
	AttrHTTPMethod      = attribute.Key("http.method")
	AttrHTTPRoute       = attribute.Key("http.route")
	AttrHTTPStatusCode  = attribute.Key("http.status_code")
	AttrHTTPStatusClass = attribute.Key("http.status_class")
)

// Latency bucket boundaries in seconds
var (
	HTTPDurationBuckets  = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	ApplyDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}
)
