package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/classdesk/pkg/metrics"
)

// Metrics records request latency for each routed request. Paths listed in
// skip (such as the scrape endpoint itself) are not observed.
func Metrics(skip ...string) gin.HandlerFunc {
	ignored := make(map[string]struct{}, len(skip))
	for _, path := range skip {
		ignored[path] = struct{}{}
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		if _, ok := ignored[path]; ok {
			return
		}

		status := strconv.Itoa(c.Writer.Status())
		metrics.APILatency.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}
