package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carbontwin_ledger_operations_total",
		Help: "Total ledger operations by type and outcome",
	}, []string{"operation", "outcome"})

	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carbontwin_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "carbontwin_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	websocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "carbontwin_websocket_connections",
		Help: "Current number of event stream subscribers",
	})
)

// RecordOperation counts one registry operation. outcome is "ok" or the
// rejection kind.
func RecordOperation(operation, outcome string) {
	operationsTotal.WithLabelValues(operation, outcome).Inc()
}

// Outcome maps an operation result to a metric label.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return "rejected"
}

// SetWebsocketConnections tracks the live subscriber count.
func SetWebsocketConnections(n int) {
	websocketConnections.Set(float64(n))
}

// GinMiddleware instruments every HTTP request.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
