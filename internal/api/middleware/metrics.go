package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/corekit/storefront/internal/metrics"
)

// MetricsMiddleware records request counts and latency per route
func MetricsMiddleware(m *metrics.ServerMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.Requests.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
		m.LatencyMS.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
	}
}
