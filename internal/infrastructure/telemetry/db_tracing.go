package telemetry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const queryStartKey = "telemetry:query_start"

// RegisterDBTracing installs otelgorm so every statement becomes a child
// span, and flags statements slower than slowThreshold on their span.
// Query variables are never recorded.
func RegisterDBTracing(db *gorm.DB, slowThreshold time.Duration, logger *zap.Logger) error {
	before := func(tx *gorm.DB) { tx.InstanceSet(queryStartKey, time.Now()) }
	after := func(tx *gorm.DB) { markSlowQuery(tx, slowThreshold) }

	cb := db.Callback()
	err := errors.Join(
		cb.Create().Before("gorm:create").Register("telemetry:before_create", before),
		cb.Query().Before("gorm:query").Register("telemetry:before_query", before),
		cb.Update().Before("gorm:update").Register("telemetry:before_update", before),
		cb.Row().Before("gorm:row").Register("telemetry:before_row", before),
		cb.Raw().Before("gorm:raw").Register("telemetry:before_raw", before),
		cb.Create().After("gorm:create").Register("telemetry:after_create", after),
		cb.Query().After("gorm:query").Register("telemetry:after_query", after),
		cb.Update().After("gorm:update").Register("telemetry:after_update", after),
		cb.Row().After("gorm:row").Register("telemetry:after_row", after),
		cb.Raw().After("gorm:raw").Register("telemetry:after_raw", after),
	)
	if err != nil {
		return fmt.Errorf("register slow query callbacks: %w", err)
	}

	// registered after ours so the span is still open when the slow check runs
	if err := db.Use(otelgorm.NewPlugin(
		otelgorm.WithDBName("postgresql"),
		otelgorm.WithoutQueryVariables(),
	)); err != nil {
		return fmt.Errorf("register otelgorm: %w", err)
	}

	logger.Info("Database tracing enabled", zap.Duration("slow_query_threshold", slowThreshold))
	return nil
}

func markSlowQuery(tx *gorm.DB, threshold time.Duration) {
	if tx.Statement.Context == nil {
		return
	}
	span := trace.SpanFromContext(tx.Statement.Context)
	if !span.IsRecording() {
		return
	}
	v, ok := tx.InstanceGet(queryStartKey)
	if !ok {
		return
	}
	start, ok := v.(time.Time)
	if !ok {
		return
	}
	if elapsed := time.Since(start); elapsed > threshold {
		span.SetAttributes(
			attribute.Bool("db.slow_query", true),
			attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
		)
		span.AddEvent("slow_query", trace.WithAttributes(
			attribute.String("db.sql.table", tx.Statement.Table),
			attribute.Int64("threshold_ms", threshold.Milliseconds()),
		))
	}
}

// RegisterDBPoolMetrics reports connection pool usage of db as observable gauges
func RegisterDBPoolMetrics(meter metric.Meter, db *sql.DB) error {
	conns, err := meter.Int64ObservableGauge("lettrage_db_pool_connections",
		metric.WithDescription("Database connections by state"),
		metric.WithUnit("{connection}"))
	if err != nil {
		return err
	}
	waits, err := meter.Int64ObservableCounter("lettrage_db_pool_wait_total",
		metric.WithDescription("Connections waited for"),
		metric.WithUnit("{wait}"))
	if err != nil {
		return err
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := db.Stats()
		o.ObserveInt64(conns, int64(s.InUse), metric.WithAttributes(AttrDBPoolState.String("in_use")))
		o.ObserveInt64(conns, int64(s.Idle), metric.WithAttributes(AttrDBPoolState.String("idle")))
		o.ObserveInt64(conns, int64(s.MaxOpenConnections), metric.WithAttributes(AttrDBPoolState.String("max")))
		o.ObserveInt64(waits, s.WaitCount)
		return nil
	}, conns, waits)
	return err
}
