package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rendis/flowgraph/internal/debugger"
	"github.com/rendis/flowgraph/pkg/schema"
)

func (s *Server) listDebugSessions(c *gin.Context) {
	if s.debugger == nil {
		unavailable(c, "debugger")
		return
	}
	sessions := s.debugger.List(c.Request.Context())
	if sessions == nil {
		sessions = []*schema.DebugSessionView{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions, "count": len(sessions)})
}

func (s *Server) startDebugSession(c *gin.Context) {
	if s.debugger == nil {
		unavailable(c, "debugger")
		return
	}
	var req debugger.StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "%s: %v", ErrInvalidJSON, err)
		return
	}
	if req.WorkflowID == "" {
		badRequest(c, "workflowId is required")
		return
	}
	view, err := s.debugger.Start(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (s *Server) getDebugSession(c *gin.Context) {
	s.debugOp(c, s.debugger.Get)
}

func (s *Server) stepDebugSession(c *gin.Context) {
	s.debugOp(c, s.debugger.Step)
}

func (s *Server) continueDebugSession(c *gin.Context) {
	s.debugOp(c, s.debugger.Continue)
}

func (s *Server) pauseDebugSession(c *gin.Context) {
	s.debugOp(c, s.debugger.Pause)
}

func (s *Server) stopDebugSession(c *gin.Context) {
	s.debugOp(c, s.debugger.Stop)
}

type debugFunc func(ctx context.Context, id string) (*schema.DebugSessionView, error)

func (s *Server) debugOp(c *gin.Context, op debugFunc) {
	if s.debugger == nil {
		unavailable(c, "debugger")
		return
	}
	view, err := op(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
