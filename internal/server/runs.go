package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rendis/flowgraph/internal/engine"
	"github.com/rendis/flowgraph/internal/store"
	"github.com/rendis/flowgraph/pkg/schema"
)

// executeWorkflow runs a stored workflow with the request body as input.
// Node failures still answer 200: the RunResult carries them.
func (s *Server) executeWorkflow(c *gin.Context) {
	input, err := bindInput(c)
	if err != nil {
		badRequest(c, "%s: %v", ErrInvalidJSON, err)
		return
	}
	s.run(c, input, engine.WithTrigger(store.TriggerAPI, map[string]any{
		"remote_addr": c.ClientIP(),
	}))
}

// handleWebhook is the external webhook trigger. The body is the run input;
// selected request headers are recorded as trigger metadata.
func (s *Server) handleWebhook(c *gin.Context) {
	input, err := bindInput(c)
	if err != nil {
		s.logger.Warn("invalid webhook body",
			slog.String("workflow_id", c.Param("id")),
			slog.Any("error", err))
		badRequest(c, "%s: %v", ErrInvalidJSON, err)
		return
	}
	s.run(c, input, engine.WithTrigger(store.TriggerWebhook, map[string]any{
		"headers":     headerSubset(c),
		"remote_addr": c.ClientIP(),
		"path":        c.Request.URL.Path,
	}))
}

func (s *Server) run(c *gin.Context, input map[string]any, opts ...engine.ExecuteOption) {
	if s.engine == nil {
		unavailable(c, "execution engine")
		return
	}
	res, err := s.engine.Execute(c.Request.Context(), c.Param("id"), input, opts...)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) listRuns(c *gin.Context) {
	filter := store.RunFilter{
		WorkflowID: c.Query("workflow_id"),
		Limit:      queryInt(c, "limit", 50),
	}
	if status := c.Query("status"); status != "" {
		rs := schema.RunStatus(status)
		filter.Status = &rs
	}
	if since := c.Query("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			badRequest(c, "invalid since: %v", err)
			return
		}
		filter.Since = &t
	}

	runs, err := s.store.ListRuns(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	if runs == nil {
		runs = []*store.Run{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "count": len(runs)})
}

func (s *Server) getRun(c *gin.Context) {
	run, err := s.store.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

// listRunEvents returns the event log of a run. ?replay=true answers with the
// node states rebuilt from the log instead.
func (s *Server) listRunEvents(c *gin.Context) {
	ctx := c.Request.Context()
	runID := c.Param("id")
	if _, err := s.store.GetRun(ctx, runID); err != nil {
		writeError(c, err)
		return
	}

	if c.Query("replay") == "true" {
		states, err := store.ReplayRun(ctx, s.store, runID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"nodes": states})
		return
	}

	events, err := s.store.GetEvents(ctx, runID, int64(queryInt(c, "after", 0)))
	if err != nil {
		writeError(c, err)
		return
	}
	if events == nil {
		events = []*store.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

func decodeResults(run *store.Run) ([]schema.NodeResult, error) {
	if len(run.Result) == 0 {
		return []schema.NodeResult{}, nil
	}
	var rr schema.RunResult
	if err := json.Unmarshal(run.Result, &rr); err != nil {
		return nil, fmt.Errorf("decode run %s result: %w", run.ID, err)
	}
	if rr.Results == nil {
		return []schema.NodeResult{}, nil
	}
	return rr.Results, nil
}
