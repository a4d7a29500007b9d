package logger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

const defaultSlowQuery = 200 * time.Millisecond

// GormLogger sends GORM output to zap, tagged with the request and contact
// IDs carried by the context.
type GormLogger struct {
	base     *zap.Logger
	logLevel gormlogger.LogLevel
	slow     time.Duration
}

// GormLoggerOption configures a GormLogger
type GormLoggerOption func(*GormLogger)

// WithSlowThreshold sets the duration above which a query is logged as slow.
// Zero disables slow query logging.
func WithSlowThreshold(threshold time.Duration) GormLoggerOption {
	return func(l *GormLogger) { l.slow = threshold }
}

// NewGormLogger creates a GORM logger backed by zap
func NewGormLogger(zapLogger *zap.Logger, level gormlogger.LogLevel, opts ...GormLoggerOption) *GormLogger {
	gl := &GormLogger{base: zapLogger.Named("gorm"), logLevel: level, slow: defaultSlowQuery}
	for _, opt := range opts {
		opt(gl)
	}
	return gl
}

func (l *GormLogger) allows(level gormlogger.LogLevel) bool {
	return l.logLevel >= level
}

// LogMode returns a copy at the given level
func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.logLevel = level
	return &clone
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	l.printf(ctx, gormlogger.Info, zapcore.InfoLevel, msg, data)
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	l.printf(ctx, gormlogger.Warn, zapcore.WarnLevel, msg, data)
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	l.printf(ctx, gormlogger.Error, zapcore.ErrorLevel, msg, data)
}

func (l *GormLogger) printf(ctx context.Context, gate gormlogger.LogLevel, level zapcore.Level, msg string, data []any) {
	if !l.allows(gate) {
		return
	}
	Enrich(ctx, l.base).Log(level, fmt.Sprintf(msg, data...))
}

// Trace logs one executed statement. Errors win over slowness, and a
// versioned UPDATE that touched no row is reported as a lost
// compare-and-swap so conflicts can be traced back to their statement.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if l.logLevel <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	log := Enrich(ctx, l.base).With(
		zap.Duration("elapsed", elapsed),
		zap.Int64("rows", rows),
		zap.String("sql", sql),
	)

	switch {
	case err != nil:
		if errors.Is(err, gormlogger.ErrRecordNotFound) || !l.allows(gormlogger.Error) {
			return
		}
		log.Error("SQL Error", zap.Error(err))
	case l.slow > 0 && elapsed > l.slow:
		if l.allows(gormlogger.Warn) {
			log.Warn("Slow SQL", zap.Duration("threshold", l.slow))
		}
	case rows == 0 && isVersionedUpdate(sql):
		if l.allows(gormlogger.Warn) {
			log.Info("Version check matched no row")
		}
	case l.allows(gormlogger.Info):
		log.Debug("SQL Query")
	}
}

func isVersionedUpdate(sql string) bool {
	s := strings.ToUpper(strings.TrimSpace(sql))
	return strings.HasPrefix(s, "UPDATE") && strings.Contains(s, "VERSION")
}

// MapGormLogLevel maps the service log level to a GORM log level
func MapGormLogLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info", "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}
