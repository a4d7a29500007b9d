package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetbill/backend/internal/infrastructure/config"
	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerProvider ships log records over OTLP when enabled
type LoggerProvider struct {
	sdk *sdklog.LoggerProvider
}

// NewLoggerProvider sets up OTLP/gRPC log export when telemetry and logs
// are both enabled. Otherwise the returned provider is inert.
func NewLoggerProvider(ctx context.Context, cfg config.TelemetryConfig, res *resource.Resource, logger *zap.Logger) (*LoggerProvider, error) {
	if !cfg.Enabled || !cfg.LogsEnabled {
		return &LoggerProvider{}, nil
	}

	exporterOpts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.CollectorEndpoint)}
	if cfg.Insecure {
		exporterOpts = append(exporterOpts, otlploggrpc.WithInsecure())
	}
	exporter, err := otlploggrpc.New(ctx, exporterOpts...)
	if err != nil {
		return nil, fmt.Errorf("create OTLP log exporter: %w", err)
	}

	sdk := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)
	global.SetLoggerProvider(sdk)
	logger.Info("Log export enabled", zap.String("collector_endpoint", cfg.CollectorEndpoint))
	return &LoggerProvider{sdk: sdk}, nil
}

func (lp *LoggerProvider) IsEnabled() bool {
	return lp != nil && lp.sdk != nil
}

// Shutdown flushes buffered records, waiting at most ten seconds
func (lp *LoggerProvider) Shutdown(ctx context.Context) error {
	if !lp.IsEnabled() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := lp.sdk.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown logger provider: %w", err)
	}
	return nil
}

// NewZapOTELCore bridges zap entries at or above level into the OTLP
// pipeline. When export is off the core drops everything.
func NewZapOTELCore(lp *LoggerProvider, serviceName string, level zapcore.Level) zapcore.Core {
	if !lp.IsEnabled() {
		return zapcore.NewNopCore()
	}
	bridge := otelzap.NewCore(serviceName, otelzap.WithLoggerProvider(lp.sdk))
	filtered, err := zapcore.NewIncreaseLevelCore(bridge, level)
	if err != nil {
		return bridge
	}
	return filtered
}
