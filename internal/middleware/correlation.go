package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	CorrelationIDKey = "correlation_id"

	CorrelationHeader       = "X-Monkeys-Workflow-TaskId"
	LegacyCorrelationHeader = "X-Workflow-Task-Id"
)

// CorrelationID picks the workflow task id from the request headers or the
// taskId query parameter and generates one when the caller sent none. The
// id is echoed in the response header.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := firstNonEmpty(
			c.GetHeader(CorrelationHeader),
			c.GetHeader(LegacyCorrelationHeader),
			c.Query("taskId"),
		)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(CorrelationIDKey, id)
		c.Header(CorrelationHeader, id)
		c.Next()
	}
}

// GetCorrelationID returns the id set by CorrelationID, or "" when the
// middleware did not run.
func GetCorrelationID(c *gin.Context) string {
	return c.GetString(CorrelationIDKey)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
