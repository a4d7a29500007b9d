package middleware

import (
	"context"
	"slices"

	"github.com/fleetbill/backend/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
)

// Profiling labels CPU and allocation samples taken while a request runs
// with its method and route pattern. Health-check paths in skip are left
// unlabelled.
func Profiling(skip ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if slices.Contains(skip, c.Request.URL.Path) {
			c.Next()
			return
		}

		route := routePattern(c)
		labels := map[string]string{
			telemetry.ProfilingLabelMethod: c.Request.Method,
			telemetry.ProfilingLabelRoute:  route,
		}
		telemetry.WithProfilingLabels(c.Request.Context(), labels, func(ctx context.Context) {
			c.Request = c.Request.WithContext(ctx)
			c.Next()
		})
	}
}
