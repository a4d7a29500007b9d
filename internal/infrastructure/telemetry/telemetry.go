// Package telemetry wires OpenTelemetry traces, metrics and logs, Pyroscope
// profiling and the payment metrics derived from ledger events.
package telemetry

import (
	"context"
	"errors"
	"fmt"

	"github.com/fleetbill/backend/internal/infrastructure/config"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Providers owns every telemetry pipeline started for the process
type Providers struct {
	Tracer   *TracerProvider
	Meter    *MeterProvider
	Logs     *LoggerProvider
	Profiler *Profiler
	logger   *zap.Logger
}

// Setup starts the pipelines enabled in cfg. Disabled pipelines are no-ops
// and the global OpenTelemetry providers are left untouched for them.
func Setup(ctx context.Context, cfg config.TelemetryConfig, version string, logger *zap.Logger) (*Providers, error) {
	p := &Providers{logger: logger}

	res, err := newResource(cfg.ServiceName, version)
	if err != nil {
		return nil, err
	}

	if p.Tracer, err = NewTracerProvider(ctx, cfg, res, logger); err != nil {
		return nil, err
	}
	if p.Meter, err = NewMeterProvider(ctx, cfg, res, logger); err != nil {
		return nil, errors.Join(err, p.Tracer.Shutdown(ctx))
	}
	if p.Logs, err = NewLoggerProvider(ctx, cfg, res, logger); err != nil {
		return nil, errors.Join(err, p.Meter.Shutdown(ctx), p.Tracer.Shutdown(ctx))
	}
	if p.Profiler, err = NewProfiler(cfg, logger); err != nil {
		return nil, errors.Join(err, p.Logs.Shutdown(ctx), p.Meter.Shutdown(ctx), p.Tracer.Shutdown(ctx))
	}
	if p.Profiler.IsEnabled() {
		p.Tracer.EnableSpanProfiles()
	}
	return p, nil
}

// LogCore returns the zap core that forwards entries to the OTLP log
// pipeline, or a nop core when log export is off.
func (p *Providers) LogCore(serviceName string, level zapcore.Level) zapcore.Core {
	return NewZapOTELCore(p.Logs, serviceName, level)
}

// Shutdown flushes and stops every pipeline in reverse start order
func (p *Providers) Shutdown(ctx context.Context) error {
	return errors.Join(
		p.Profiler.Stop(),
		p.Logs.Shutdown(ctx),
		p.Meter.Shutdown(ctx),
		p.Tracer.Shutdown(ctx),
	)
}

func newResource(serviceName, version string) (*resource.Resource, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}
