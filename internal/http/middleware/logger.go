package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"bookingcore/internal/logger"
	"bookingcore/internal/metrics"
)

// Logger writes one structured line per request and records its latency.
func Logger(log logger.Logger, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveRequest(c.Request.Method, route, strconv.Itoa(status), latency.Seconds())

		kv := []any{
			"request_id", GetRequestID(c),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency_ms", float64(latency.Microseconds()) / 1000.0,
			"ip", c.ClientIP(),
		}
		if a, ok := ActorFrom(c); ok {
			kv = append(kv, "actor", a.ID, "role", a.Role)
		}
		switch {
		case status >= 500:
			log.Error("http request", kv...)
		case status >= 400:
			log.Warn("http request", kv...)
		default:
			log.Info("http request", kv...)
		}
	}
}
