package middleware

import (
	"strconv"
	"time"

	"github.com/ds124wfegd/travel-booking/internal/metrics"
	"github.com/gin-gonic/gin"
)

// Metrics records latency per route template, not per raw path.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
