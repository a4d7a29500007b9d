package middleware

import (
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-gonic/gin"
)

// Sentry returns the sentry-go gin integration: a per-request hub plus
// panic capture. Panics are re-raised for logger.Recovery to answer.
func Sentry() gin.HandlerFunc {
	return sentrygin.New(sentrygin.Options{
		Repanic:         true,
		WaitForDelivery: false,
		Timeout:         2 * time.Second,
	})
}

// ReportServerErrors sends errors attached to 5xx responses to Sentry.
// Handlers attach the cause with c.Error; 4xx responses are never reported.
// Place it after Sentry.
func ReportServerErrors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Status() < http.StatusInternalServerError || len(c.Errors) == 0 {
			return
		}
		hub := sentrygin.GetHubFromContext(c)
		if hub == nil {
			return
		}
		hub.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("route", routePattern(c))
			if requestID := GetRequestID(c); requestID != "" {
				scope.SetTag("request_id", requestID)
			}
			for _, e := range c.Errors {
				hub.CaptureException(e.Err)
			}
		})
	}
}
