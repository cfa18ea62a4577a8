package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"midjourney-adapter/internal/metrics"
)

// RequestLogger writes one access log line per request and records the
// request in m. Paths are reported as route templates.
func RequestLogger(logger *zap.Logger, m *metrics.Collector) gin.HandlerFunc {
	logger = logger.With(zap.String("component", "http"))
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		m.RecordHTTPRequest(c.Request.Method, route, status, duration)

		level := zapcore.InfoLevel
		switch {
		case status >= 500:
			level = zapcore.ErrorLevel
		case status >= 400:
			level = zapcore.WarnLevel
		}

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("latency", duration),
			zap.String("client_ip", c.ClientIP()),
		}
		if id := GetCorrelationID(c); id != "" {
			fields = append(fields, zap.String("correlation_id", id))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		logger.Check(level, "request").Write(fields...)
	}
}
