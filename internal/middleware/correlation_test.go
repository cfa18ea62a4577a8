package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"midjourney-adapter/internal/middleware"
)

func correlationRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.CorrelationID())
	router.GET("/id", func(c *gin.Context) {
		c.String(http.StatusOK, middleware.GetCorrelationID(c))
	})
	return router
}

func TestCorrelationID_Sources(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		target  string
		want    string
	}{
		{"primary header", map[string]string{middleware.CorrelationHeader: "wf-1", middleware.LegacyCorrelationHeader: "wf-2"}, "/id?taskId=wf-3", "wf-1"},
		{"legacy header", map[string]string{middleware.LegacyCorrelationHeader: "wf-2"}, "/id?taskId=wf-3", "wf-2"},
		{"query", nil, "/id?taskId=wf-3", "wf-3"},
	}
	router := correlationRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest("GET", tt.target, nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Body.String())
			assert.Equal(t, tt.want, w.Header().Get(middleware.CorrelationHeader))
		})
	}
}

func TestCorrelationID_Generated(t *testing.T) {
	req, _ := http.NewRequest("GET", "/id", nil)
	w := httptest.NewRecorder()
	correlationRouter().ServeHTTP(w, req)

	_, err := uuid.Parse(w.Body.String())
	require.NoError(t, err)
	assert.Equal(t, w.Body.String(), w.Header().Get(middleware.CorrelationHeader))
}

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)

	router := gin.New()
	router.Use(middleware.CorrelationID(), middleware.RequestLogger(zap.New(core), nil))
	router.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	req, _ := http.NewRequest("GET", "/items/42", nil)
	req.Header.Set(middleware.CorrelationHeader, "wf-9")
	router.ServeHTTP(httptest.NewRecorder(), req)

	req, _ = http.NewRequest("GET", "/missing", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.All()
	require.Len(t, entries, 2)

	first := entries[0].ContextMap()
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "/items/:id", first["route"])
	assert.Equal(t, "/items/42", first["path"])
	assert.EqualValues(t, http.StatusNoContent, first["status"])
	assert.Equal(t, "wf-9", first["correlation_id"])
	assert.Equal(t, "http", first["component"])

	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "unmatched", entries[1].ContextMap()["route"])
}
