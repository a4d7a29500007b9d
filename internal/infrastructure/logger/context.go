package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type (
	loggerKey    struct{}
	requestIDKey struct{}
	contactIDKey struct{}
)

func WithContext(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger stored on ctx; a nop logger otherwise
func FromContext(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return zap.NewNop()
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func GetRequestID(ctx context.Context) string {
	return stringValue(ctx, requestIDKey{})
}

// WithContactID records the contact whose ledger the request works on
func WithContactID(ctx context.Context, contactID string) context.Context {
	return context.WithValue(ctx, contactIDKey{}, contactID)
}

func GetContactID(ctx context.Context) string {
	return stringValue(ctx, contactIDKey{})
}

func stringValue(ctx context.Context, key any) string {
	s, _ := ctx.Value(key).(string)
	return s
}

// L is the logger to use inside request-scoped code:
//
//	logger.L(ctx).Info("Payment applied", zap.String("payment_id", id))
//
// Entries carry the trace, request and contact of ctx.
func L(ctx context.Context) *zap.Logger {
	return Enrich(ctx, FromContext(ctx))
}

// Enrich returns l with the correlation fields present on ctx
func Enrich(ctx context.Context, l *zap.Logger) *zap.Logger {
	if l == nil {
		l = zap.NewNop()
	}
	fields := make([]zap.Field, 0, 4)
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.Stringer("trace_id", sc.TraceID()),
			zap.Stringer("span_id", sc.SpanID()),
		)
	}
	if id := GetRequestID(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if id := GetContactID(ctx); id != "" {
		fields = append(fields, zap.String("contact_id", id))
	}
	if len(fields) == 0 {
		return l
	}
	return l.With(fields...)
}
