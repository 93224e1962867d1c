package server

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rendis/flowgraph/internal/diagram"
	"github.com/rendis/flowgraph/internal/store"
	"github.com/rendis/flowgraph/pkg/schema"
)

func (s *Server) listWorkflows(c *gin.Context) {
	workflows, err := s.store.ListWorkflows(c.Request.Context(), store.WorkflowFilter{
		Name:   c.Query("name"),
		Limit:  queryInt(c, "limit", 50),
		Offset: queryInt(c, "offset", 0),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	if workflows == nil {
		workflows = []*store.WorkflowSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"workflows": workflows, "count": len(workflows)})
}

func (s *Server) getWorkflow(c *gin.Context) {
	wf, ok := s.loadWorkflow(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, wf)
}

// saveWorkflow validates and persists a definition. Invalid definitions are
// answered with the full validation result.
func (s *Server) saveWorkflow(c *gin.Context) {
	if s.workflows == nil {
		unavailable(c, "workflow validation")
		return
	}
	var wf schema.Workflow
	if err := c.ShouldBindJSON(&wf); err != nil {
		badRequest(c, "%s: %v", ErrInvalidJSON, err)
		return
	}
	if wf.ID == "" {
		badRequest(c, "workflow id is required")
		return
	}

	result, err := s.workflows.Save(c.Request.Context(), &wf)
	if err != nil {
		if result != nil && !result.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":    err.Error(),
				"code":     schema.ErrorCode(err),
				"valid":    false,
				"errors":   result.Errors,
				"warnings": result.Warnings,
			})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": wf.ID, "valid": true, "warnings": result.Warnings})
}

func (s *Server) deleteWorkflow(c *gin.Context) {
	if err := s.store.DeleteWorkflow(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) validateWorkflow(c *gin.Context) {
	if s.validator == nil {
		unavailable(c, "workflow validation")
		return
	}
	var wf schema.Workflow
	if err := c.ShouldBindJSON(&wf); err != nil {
		badRequest(c, "%s: %v", ErrInvalidJSON, err)
		return
	}
	result := s.validator.Validate(c.Request.Context(), &wf)
	errs, warns := result.Errors, result.Warnings
	if errs == nil {
		errs = []schema.ValidationIssue{}
	}
	if warns == nil {
		warns = []schema.ValidationIssue{}
	}
	c.JSON(http.StatusOK, gin.H{"valid": result.Valid(), "errors": errs, "warnings": warns})
}

// renderDiagram draws a stored workflow. format is mermaid (default), ascii,
// png or svg; run_id overlays a recorded run and expand=true inlines
// sub-workflows.
func (s *Server) renderDiagram(c *gin.Context) {
	wf, ok := s.loadWorkflow(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	var opts []diagram.Option
	if runID := c.Query("run_id"); runID != "" {
		run, err := s.store.GetRun(ctx, runID)
		if err != nil {
			writeError(c, err)
			return
		}
		results, err := decodeResults(run)
		if err != nil {
			writeError(c, err)
			return
		}
		opts = append(opts, diagram.WithResults(results))
	}
	if c.Query("expand") == "true" {
		opts = append(opts, diagram.WithSubWorkflows(func(id string) *schema.Workflow {
			child, _ := s.store.GetWorkflow(ctx, id)
			return child
		}))
	}

	model, err := diagram.Build(wf, opts...)
	if err != nil {
		badRequest(c, "%v", err)
		return
	}

	switch format := c.DefaultQuery("format", "mermaid"); format {
	case "mermaid":
		c.String(http.StatusOK, diagram.RenderMermaid(model))
	case "ascii":
		c.String(http.StatusOK, diagram.RenderASCII(model))
	case "png", "svg":
		out, err := diagram.RenderGraphviz(ctx, model, diagram.Format(format))
		if err != nil {
			writeError(c, fmt.Errorf("render %s: %w", format, err))
			return
		}
		contentType := "image/png"
		if format == "svg" {
			contentType = "image/svg+xml"
		}
		c.Data(http.StatusOK, contentType, out)
	default:
		badRequest(c, "unsupported diagram format %q", format)
	}
}

// loadWorkflow fetches the :id workflow, answering 404 when it is absent.
func (s *Server) loadWorkflow(c *gin.Context) (*schema.Workflow, bool) {
	id := c.Param("id")
	wf, err := s.store.GetWorkflow(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	if wf == nil {
		notFound(c, "%s: %s", ErrMissingWorkflow, id)
		return nil, false
	}
	return wf, true
}
