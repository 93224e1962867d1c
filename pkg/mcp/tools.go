package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/flowgraph/internal/debugger"
	"github.com/rendis/flowgraph/internal/diagram"
	"github.com/rendis/flowgraph/internal/engine"
	"github.com/rendis/flowgraph/internal/store"
	"github.com/rendis/flowgraph/pkg/schema"
)

// handleExecute runs a stored workflow. A run whose nodes failed is still a
// successful tool call: the trace carries the failure.
func (s *FlowServer) handleExecute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}
	if s.engine == nil {
		return mcp.NewToolResultError("execution engine is not configured"), nil
	}
	input := mcp.ParseStringMap(req, "input", nil)

	meta := map[string]any{}
	if agentID := req.GetString("agent_id", ""); agentID != "" {
		meta["agent_id"] = agentID
	}
	if session := server.ClientSessionFromContext(ctx); session != nil {
		meta["client_session"] = session.SessionID()
	}

	result, runErr := s.engine.Execute(ctx, workflowID, input, engine.WithTrigger(store.TriggerMCP, meta))
	if runErr != nil {
		return toolError("execution failed", runErr), nil
	}
	return marshalResult(result)
}

// handleValidate checks an inline definition or a stored workflow.
func (s *FlowServer) handleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.validator == nil {
		return mcp.NewToolResultError("validator is not configured"), nil
	}

	var wf *schema.Workflow
	if id := req.GetString("workflow_id", ""); id != "" {
		if s.store == nil {
			return mcp.NewToolResultError("store is not configured"), nil
		}
		stored, err := s.store.GetWorkflow(ctx, id)
		if err != nil {
			return toolError("workflow lookup failed", err), nil
		}
		if stored == nil {
			return mcp.NewToolResultError(fmt.Sprintf("workflow %q not found", id)), nil
		}
		wf = stored
	} else {
		def := mcp.ParseStringMap(req, "definition", nil)
		if def == nil {
			return mcp.NewToolResultError("one of definition or workflow_id is required"), nil
		}
		decoded, err := decodeWorkflow(def)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid definition: %v", err)), nil
		}
		wf = decoded
	}

	result := s.validator.Validate(ctx, wf)
	return marshalResult(validationPayload(result))
}

// handleDefine validates and persists a workflow definition.
func (s *FlowServer) handleDefine(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	def := mcp.ParseStringMap(req, "definition", nil)
	if def == nil {
		return mcp.NewToolResultError("definition is required"), nil
	}
	if s.workflows == nil {
		return mcp.NewToolResultError("store is not configured"), nil
	}
	wf, err := decodeWorkflow(def)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid definition: %v", err)), nil
	}
	if wf.ID == "" {
		return mcp.NewToolResultError("definition.id is required"), nil
	}

	result, saveErr := s.workflows.Save(ctx, wf)
	if saveErr != nil {
		if result != nil && !result.Valid() {
			return mcp.NewToolResultError("workflow rejected:\n" + formatIssues(result.Errors)), nil
		}
		return toolError("failed to save workflow", saveErr), nil
	}

	payload := validationPayload(result)
	payload["id"] = wf.ID
	payload["saved"] = true
	return marshalResult(payload)
}

// handleQuery lists workflows, runs, or the event log of one run.
func (s *FlowServer) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resource, err := req.RequireString("resource")
	if err != nil {
		return mcp.NewToolResultError("resource is required"), nil
	}
	if s.store == nil {
		return mcp.NewToolResultError("store is not configured"), nil
	}

	filter := mcp.ParseStringMap(req, "filter", nil)

	switch resource {
	case "workflows":
		return s.queryWorkflows(ctx, filter)
	case "runs":
		return s.queryRuns(ctx, filter)
	case "events":
		return s.queryEvents(ctx, filter)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown resource type: %s", resource)), nil
	}
}

// --- Query helpers ---

func (s *FlowServer) queryWorkflows(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	wf := store.WorkflowFilter{
		Limit:  extractInt(filter, "limit", 50),
		Offset: extractInt(filter, "offset", 0),
	}
	if name, ok := filter["name"].(string); ok {
		wf.Name = name
	}

	workflows, err := s.store.ListWorkflows(ctx, wf)
	if err != nil {
		return toolError("query failed", err), nil
	}
	return marshalResult(map[string]any{"workflows": workflows})
}

func (s *FlowServer) queryRuns(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	rf := store.RunFilter{
		Limit: extractInt(filter, "limit", 50),
	}
	if wfID, ok := filter["workflow_id"].(string); ok {
		rf.WorkflowID = wfID
	}
	if status, ok := filter["status"].(string); ok && status != "" {
		rs := schema.RunStatus(status)
		rf.Status = &rs
	}
	if since, ok := filter["since"].(string); ok && since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			rf.Since = &t
		}
	}

	runs, err := s.store.ListRuns(ctx, rf)
	if err != nil {
		return toolError("query failed", err), nil
	}
	return marshalResult(map[string]any{"runs": runs})
}

func (s *FlowServer) queryEvents(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	runID, _ := filter["run_id"].(string)
	if runID == "" {
		return mcp.NewToolResultError("event query requires 'run_id' in filter"), nil
	}
	after := int64(extractInt(filter, "after_sequence", 0))

	events, err := s.store.GetEvents(ctx, runID, after)
	if err != nil {
		return toolError("query failed", err), nil
	}
	if eventType, ok := filter["event_type"].(string); ok && eventType != "" {
		kept := events[:0]
		for _, e := range events {
			if e.Type == eventType {
				kept = append(kept, e)
			}
		}
		events = kept
	}
	return marshalResult(map[string]any{"events": events})
}

// handleDiagram renders a stored workflow, optionally overlaid with a run.
func (s *FlowServer) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}
	format, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError("format is required"), nil
	}
	if format != "ascii" && format != "mermaid" && format != "image" {
		return mcp.NewToolResultError("format must be ascii, mermaid, or image"), nil
	}
	if s.store == nil {
		return mcp.NewToolResultError("store is not configured"), nil
	}

	wf, err := s.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return toolError("workflow lookup failed", err), nil
	}
	if wf == nil {
		return mcp.NewToolResultError(fmt.Sprintf("workflow %q not found", workflowID)), nil
	}

	var opts []diagram.Option
	if runID := req.GetString("run_id", ""); runID != "" {
		results, runErr := s.runResults(ctx, runID)
		if runErr != nil {
			return toolError("run lookup failed", runErr), nil
		}
		opts = append(opts, diagram.WithResults(results))
	}
	if req.GetBool("expand", false) {
		opts = append(opts, diagram.WithSubWorkflows(func(id string) *schema.Workflow {
			child, _ := s.store.GetWorkflow(ctx, id)
			return child
		}))
	}

	model, buildErr := diagram.Build(wf, opts...)
	if buildErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("diagram build failed: %v", buildErr)), nil
	}

	switch format {
	case "ascii":
		return mcp.NewToolResultText(diagram.RenderASCII(model)), nil
	case "mermaid":
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	default:
		png, imgErr := diagram.RenderImage(ctx, model)
		if imgErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("image render failed: %v", imgErr)), nil
		}
		return mcp.NewToolResultImage(model.Title, base64.StdEncoding.EncodeToString(png), "image/png"), nil
	}
}

func (s *FlowServer) runResults(ctx context.Context, runID string) ([]schema.NodeResult, error) {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if len(run.Result) == 0 {
		return []schema.NodeResult{}, nil
	}
	var rr schema.RunResult
	if err := json.Unmarshal(run.Result, &rr); err != nil {
		return nil, fmt.Errorf("decode run result: %w", err)
	}
	return rr.Results, nil
}

// --- Debug session handlers ---

func (s *FlowServer) handleDebugStart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := req.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError("workflow_id is required"), nil
	}
	if s.debugger == nil {
		return mcp.NewToolResultError("debugger is not configured"), nil
	}

	view, startErr := s.debugger.Start(ctx, debugger.StartRequest{
		WorkflowID:  workflowID,
		Input:       mcp.ParseStringMap(req, "input", nil),
		Breakpoints: req.GetStringSlice("breakpoints", nil),
		StepMode:    req.GetBool("step_mode", false),
	})
	if startErr != nil {
		return toolError("debug start failed", startErr), nil
	}
	s.captureSession(ctx, view.SessionID)
	return marshalResult(view)
}

func (s *FlowServer) handleDebugStep(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.debugOp(ctx, req, "step", s.debugger.Step)
}

func (s *FlowServer) handleDebugContinue(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.debugOp(ctx, req, "continue", s.debugger.Continue)
}

func (s *FlowServer) handleDebugPause(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.debugOp(ctx, req, "pause", s.debugger.Pause)
}

func (s *FlowServer) handleDebugGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.debugOp(ctx, req, "get", s.debugger.Get)
}

func (s *FlowServer) handleDebugStop(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.debugOp(ctx, req, "stop", s.debugger.Stop)
	if id := req.GetString("session_id", ""); id != "" {
		s.sessions.Forget(id)
	}
	return res, err
}

type debugFunc func(ctx context.Context, id string) (*schema.DebugSessionView, error)

// debugOp resolves the session id argument and runs op.
func (s *FlowServer) debugOp(ctx context.Context, req mcp.CallToolRequest, name string, op debugFunc) (*mcp.CallToolResult, error) {
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("session_id is required"), nil
	}
	if s.debugger == nil {
		return mcp.NewToolResultError("debugger is not configured"), nil
	}
	view, opErr := op(ctx, sessionID)
	if opErr != nil {
		return toolError("debug "+name+" failed", opErr), nil
	}
	return marshalResult(view)
}

// --- Internal helpers ---

// decodeWorkflow round-trips a generic argument map into a Workflow.
func decodeWorkflow(def map[string]any) (*schema.Workflow, error) {
	raw, err := json.Marshal(def)
	if err != nil {
		return nil, err
	}
	var wf schema.Workflow
	if err := json.Unmarshal(raw, &wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

func validationPayload(r *schema.ValidationResult) map[string]any {
	errs, warns := r.Errors, r.Warnings
	if errs == nil {
		errs = []schema.ValidationIssue{}
	}
	if warns == nil {
		warns = []schema.ValidationIssue{}
	}
	return map[string]any{
		"valid":    r.Valid(),
		"errors":   errs,
		"warnings": warns,
	}
}

func formatIssues(issues []schema.ValidationIssue) string {
	lines := make([]string, 0, len(issues))
	for _, is := range issues {
		lines = append(lines, fmt.Sprintf("- %s [%s] %s", is.Path, is.Code, is.Message))
	}
	return strings.Join(lines, "\n")
}

// toolError reports err to the agent, keeping the error code visible.
func toolError(prefix string, err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", prefix, err))
}

// extractInt safely extracts an integer from a filter map.
func extractInt(filter map[string]any, key string, defaultVal int) int {
	if filter == nil {
		return defaultVal
	}
	v, ok := filter[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

// captureSession maps the debug session to the calling client for notifications.
func (s *FlowServer) captureSession(ctx context.Context, debugSessionID string) {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		s.sessions.Register(debugSessionID, session.SessionID())
	}
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
