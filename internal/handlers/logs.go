package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"midjourney-adapter/internal/metrics"
	"midjourney-adapter/internal/models"
	"midjourney-adapter/internal/progress"
)

const (
	heartbeatInterval = 15 * time.Second
	wsWriteTimeout    = 10 * time.Second
)

// LogsHandler streams the progress messages of one correlation id. Messages
// published before the stream was opened are not replayed.
type LogsHandler struct {
	bus       progress.Bus
	metrics   *metrics.Collector
	logger    *zap.Logger
	heartbeat time.Duration
}

func NewLogsHandler(bus progress.Bus, m *metrics.Collector, logger *zap.Logger) *LogsHandler {
	return &LogsHandler{
		bus:       bus,
		metrics:   m,
		logger:    logger.With(zap.String("component", "log_stream")),
		heartbeat: heartbeatInterval,
	}
}

func (h *LogsHandler) Register(r gin.IRoutes) {
	r.GET("/logs/:taskId", h.Stream)
}

// Handler serves GET /logs/{taskId}/ws and passes every other request to
// next. The upgrade has to hijack the raw connection, which gin's response
// writer refuses once its handler chain has started.
func (h *LogsHandler) Handler(next http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /logs/{taskId}/ws", h.ServeWebSocket)
	mux.Handle("/", next)
	return mux
}

// Stream serves the messages as server-sent events, one JSON message per
// event, and returns after the [DONE] sentinel.
func (h *LogsHandler) Stream(c *gin.Context) {
	taskID := c.Param("taskId")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "streaming unsupported"})
		return
	}

	ctx := c.Request.Context()
	sub, err := h.bus.Subscribe(ctx, taskID)
	if err != nil {
		h.logger.Error("subscribe failed", zap.String("correlation_id", taskID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "subscribe failed", Message: err.Error()})
		return
	}
	defer sub.Close()

	h.metrics.LogStreamOpened()
	defer h.metrics.LogStreamClosed()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	fmt.Fprintf(c.Writer, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprintf(c.Writer, ": ping\n\n")
			flusher.Flush()
		case msg, ok := <-sub.C:
			if !ok {
				return
			}
			fmt.Fprintf(c.Writer, "data: %s\n\n", msg.JSON())
			flusher.Flush()
			if msg.IsDone() {
				return
			}
		}
	}
}

// ServeWebSocket serves the same stream as text frames and closes the
// socket normally after the [DONE] sentinel.
func (h *LogsHandler) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("taskId")

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.String("correlation_id", taskID), zap.Error(err))
		return
	}
	defer conn.CloseNow()

	// Peers only listen. CloseRead cancels ctx once they go away.
	ctx := conn.CloseRead(r.Context())

	sub, err := h.bus.Subscribe(ctx, taskID)
	if err != nil {
		h.logger.Error("subscribe failed", zap.String("correlation_id", taskID), zap.Error(err))
		conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}
	defer sub.Close()

	h.metrics.LogStreamOpened()
	defer h.metrics.LogStreamClosed()
	h.logger.Debug("websocket stream opened", zap.String("correlation_id", taskID))

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			if err := h.write(ctx, conn, msg); err != nil {
				if !errors.Is(err, context.Canceled) {
					h.logger.Debug("websocket write failed", zap.String("correlation_id", taskID), zap.Error(err))
				}
				return
			}
			if msg.IsDone() {
				conn.Close(websocket.StatusNormalClosure, progress.Done)
				return
			}
		}
	}
}

func (h *LogsHandler) write(ctx context.Context, conn *websocket.Conn, msg progress.Message) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, msg.JSON())
}
