package logger

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// GinMiddleware writes one "HTTP Request" entry per request. It also puts a
// logger scoped to the request on the context, so L(ctx) below the handler
// carries the method, route and correlation IDs.
func GinMiddleware(base *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		began := time.Now()
		req := c.Request

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		scoped := Enrich(req.Context(), base).With(
			zap.String("method", req.Method),
			zap.String("route", route),
		)
		c.Request = req.WithContext(WithContext(req.Context(), scoped))

		c.Next()

		status := c.Writer.Status()
		fields := make([]zap.Field, 0, 7)
		fields = append(fields,
			zap.String("path", req.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(began)),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("body_size", c.Writer.Size()),
		)
		if q := req.URL.RawQuery; q != "" {
			fields = append(fields, zap.String("query", q))
		}
		if key := req.Header.Get("Idempotency-Key"); key != "" {
			fields = append(fields, zap.String("idempotency_key", key))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.Strings("errors", c.Errors.Errors()))
		}
		scoped.Log(levelForStatus(status), "HTTP Request", fields...)
	}
}

func levelForStatus(status int) zapcore.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case status >= http.StatusBadRequest:
		return zapcore.WarnLevel
	}
	return zapcore.InfoLevel
}

// Recovery turns a handler panic into a logged 500. http.ErrAbortHandler is
// re-raised so net/http can drop the connection as it intends.
func Recovery(base *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}
			Enrich(c.Request.Context(), base).Error("Panic recovered",
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Any("error", rec),
				zap.Stack("stacktrace"),
			)
			c.AbortWithStatus(http.StatusInternalServerError)
		}()
		c.Next()
	}
}
