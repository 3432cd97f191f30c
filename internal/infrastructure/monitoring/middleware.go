package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		metrics.RecordHTTPRequest(c.Request.Method, path, status, time.Since(start))
	}
}

// Timer measures an evaluation
type Timer struct {
	start      time.Time
	metrics    *Metrics
	withModule bool
}

// NewTimer creates a new timer
func NewTimer(metrics *Metrics, withModule bool) *Timer {
	return &Timer{
		start:      time.Now(),
		metrics:    metrics,
		withModule: withModule,
	}
}

// Stop stops the timer and records the evaluation with outcome
func (t *Timer) Stop(outcome string) time.Duration {
	duration := time.Since(t.start)
	t.metrics.RecordEvaluation(outcome, t.withModule, duration)
	return duration
}
