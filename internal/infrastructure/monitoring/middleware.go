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

		// Route template keeps label cardinality bounded
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// Timer measures a remote call
type Timer struct {
	start   time.Time
	metrics *Metrics
	call    string
}

// NewTimer starts timing a remote call
func NewTimer(metrics *Metrics, call string) *Timer {
	return &Timer{
		start:   time.Now(),
		metrics: metrics,
		call:    call,
	}
}

// Stop records the call with its outcome
func (t *Timer) Stop(outcome string) {
	t.metrics.RecordRemoteCall(t.call, outcome, time.Since(t.start))
}
