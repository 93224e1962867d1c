package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/rendis/flowgraph/internal/store"
)

// CreateScheduleRequest is the body of POST /schedules.
type CreateScheduleRequest struct {
	WorkflowID     string         `json:"workflow_id" binding:"required"`
	CronExpression string         `json:"cron_expression" binding:"required"`
	Input          map[string]any `json:"input,omitempty"`
}

// UpdateScheduleRequest is the body of PATCH /schedules/:id.
type UpdateScheduleRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) listSchedules(c *gin.Context) {
	filter := store.ScheduleFilter{
		WorkflowID: c.Query("workflow_id"),
		Limit:      queryInt(c, "limit", 0),
	}
	if v := c.Query("enabled"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(c, "invalid enabled: %q", v)
			return
		}
		filter.Enabled = &enabled
	}
	schedules, err := s.store.ListSchedules(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	if schedules == nil {
		schedules = []*store.Schedule{}
	}
	c.JSON(http.StatusOK, gin.H{"schedules": schedules, "count": len(schedules)})
}

func (s *Server) createSchedule(c *gin.Context) {
	if s.scheduler == nil {
		unavailable(c, "scheduler")
		return
	}
	var req CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "%s: %v", ErrInvalidJSON, err)
		return
	}

	ctx := c.Request.Context()
	wf, err := s.store.GetWorkflow(ctx, req.WorkflowID)
	if err != nil {
		writeError(c, err)
		return
	}
	if wf == nil {
		notFound(c, "%s: %s", ErrMissingWorkflow, req.WorkflowID)
		return
	}

	sc, err := s.scheduler.Create(ctx, req.WorkflowID, req.CronExpression, req.Input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sc)
}

func (s *Server) updateSchedule(c *gin.Context) {
	var req UpdateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "%s: %v", ErrInvalidJSON, err)
		return
	}
	if req.Enabled == nil {
		badRequest(c, "enabled is required")
		return
	}

	ctx := c.Request.Context()
	id := c.Param("id")
	if err := s.store.UpdateSchedule(ctx, id, store.ScheduleUpdate{Enabled: req.Enabled}); err != nil {
		writeError(c, err)
		return
	}
	sc, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sc)
}

func (s *Server) deleteSchedule(c *gin.Context) {
	if err := s.store.DeleteSchedule(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
