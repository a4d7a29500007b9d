package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetbill/backend/internal/infrastructure/config"
	otelpyroscope "github.com/grafana/otel-profiling-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

const traceFlushTimeout = 10 * time.Second

// TracerProvider exports spans over OTLP/gRPC. With tracing disabled it
// holds no SDK provider and every method is a no-op.
type TracerProvider struct {
	sdk    *sdktrace.TracerProvider
	logger *zap.Logger
}

func NewTracerProvider(ctx context.Context, cfg config.TelemetryConfig, res *resource.Resource, logger *zap.Logger) (*TracerProvider, error) {
	if !cfg.Enabled {
		logger.Info("Tracing disabled")
		return &TracerProvider{logger: logger}, nil
	}

	exporter, err := otlptracegrpc.New(ctx, traceExporterOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("create OTLP trace exporter: %w", err)
	}
	sdk := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(samplerFor(cfg.SamplingRatio)),
		sdktrace.WithBatcher(exporter),
	)

	otel.SetTracerProvider(sdk)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	logger.Info("Tracing enabled",
		zap.String("endpoint", cfg.CollectorEndpoint),
		zap.Float64("sampling_ratio", cfg.SamplingRatio),
	)
	return &TracerProvider{sdk: sdk, logger: logger}, nil
}

func traceExporterOptions(cfg config.TelemetryConfig) []otlptracegrpc.Option {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.CollectorEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return opts
}

// samplerFor honours the caller's sampling decision and samples root spans
// at ratio
func samplerFor(ratio float64) sdktrace.Sampler {
	if ratio <= 0 {
		return sdktrace.NeverSample()
	}
	root := sdktrace.AlwaysSample()
	if ratio < 1 {
		root = sdktrace.TraceIDRatioBased(ratio)
	}
	return sdktrace.ParentBased(root)
}

// EnableSpanProfiles tags profiler samples with the active span so a slow
// payment trace links to its CPU profile. Call it once, after the profiler
// has started.
func (tp *TracerProvider) EnableSpanProfiles() {
	if tp.sdk == nil {
		return
	}
	otel.SetTracerProvider(otelpyroscope.NewTracerProvider(tp.sdk))
	tp.logger.Info("Span profiles enabled")
}

func (tp *TracerProvider) IsEnabled() bool {
	return tp.sdk != nil
}

// Shutdown flushes buffered spans
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp.sdk == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, traceFlushTimeout)
	defer cancel()
	if err := tp.sdk.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown tracer provider: %w", err)
	}
	return nil
}
