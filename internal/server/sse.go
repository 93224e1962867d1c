package server

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rendis/flowgraph/internal/streaming"
)

// streamEvents streams hub events as Server-Sent Events. Query params
// workflow_id, run_id, session_id and event_types (comma separated) narrow
// the stream.
func (s *Server) streamEvents(c *gin.Context) {
	filter := streaming.EventFilter{
		WorkflowID: c.Query("workflow_id"),
		RunID:      c.Query("run_id"),
		SessionID:  c.Query("session_id"),
	}
	if types := c.Query("event_types"); types != "" {
		filter.EventTypes = strings.Split(types, ",")
	}

	ctx := c.Request.Context()
	ch, cancel, err := s.hub.Subscribe(ctx, filter)
	if err != nil {
		s.logger.Error("sse subscribe failed", slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:  "subscribe failed",
			Status: http.StatusInternalServerError,
		})
		return
	}
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case event, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(event.EventType, event)
			return true
		}
	})
}
