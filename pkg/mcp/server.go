package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"

	"github.com/rendis/flowgraph/internal/debugger"
	"github.com/rendis/flowgraph/internal/engine"
	"github.com/rendis/flowgraph/internal/store"
	"github.com/rendis/flowgraph/internal/streaming"
	"github.com/rendis/flowgraph/internal/validation"
)

// FlowServerDeps holds the dependencies for creating a FlowServer.
type FlowServerDeps struct {
	Engine    *engine.Engine
	Debugger  *debugger.Manager
	Store     store.Store
	Validator validation.Validator
	Hub       streaming.EventHub
	Logger    *slog.Logger
	Version   string
}

// FlowServer wraps an MCP server with flowgraph tool handlers.
type FlowServer struct {
	engine    *engine.Engine
	debugger  *debugger.Manager
	store     store.Store
	workflows *store.ValidatingStore
	validator validation.Validator
	hub       streaming.EventHub
	logger    *slog.Logger
	sessions  *SessionRegistry
	notifier  *MCPNotifier
	mcpServer *server.MCPServer
}

const instructions = "Flowgraph executes stored node/edge workflows. " +
	"Use flowgraph.define to save a workflow, flowgraph.validate to check one, flowgraph.execute to run it, " +
	"flowgraph.query to list workflows, runs and events, and flowgraph.diagram to render one. " +
	"flowgraph.debug.* tools drive a step-by-step debug session."

// NewFlowServer creates a FlowServer with every tool registered.
func NewFlowServer(deps FlowServerDeps) *FlowServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	hub := deps.Hub
	if hub == nil {
		hub = streaming.Nop{}
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := &FlowServer{
		engine:    deps.Engine,
		debugger:  deps.Debugger,
		store:     deps.Store,
		validator: deps.Validator,
		hub:       hub,
		logger:    logger,
		sessions:  NewSessionRegistry(),
	}
	if deps.Store != nil && deps.Validator != nil {
		s.workflows = store.NewValidatingStore(deps.Store, deps.Validator)
	}

	mcpSrv := server.NewMCPServer(
		"flowgraph",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)
	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	s.notifier = NewMCPNotifier(mcpSrv, s.sessions)
	return s
}

// Serve starts the stdio transport and forwards debug events to the clients
// that own the sessions. It blocks until ctx is cancelled or stdin closes.
func (s *FlowServer) Serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		stdio := server.NewStdioServer(s.mcpServer)
		return stdio.Listen(ctx, os.Stdin, os.Stdout)
	})
	g.Go(func() error {
		return s.notifier.Forward(ctx, s.hub)
	})
	return g.Wait()
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *FlowServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *FlowServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: executeTool(), Handler: s.handleExecute},
		{Tool: validateTool(), Handler: s.handleValidate},
		{Tool: defineTool(), Handler: s.handleDefine},
		{Tool: queryTool(), Handler: s.handleQuery},
		{Tool: diagramTool(), Handler: s.handleDiagram},
		{Tool: debugStartTool(), Handler: s.handleDebugStart},
		{Tool: debugSessionTool(toolDebugStep, "Execute the next node of a debug session"), Handler: s.handleDebugStep},
		{Tool: debugSessionTool(toolDebugContinue, "Run a debug session until a breakpoint, step pause or completion"), Handler: s.handleDebugContinue},
		{Tool: debugSessionTool(toolDebugPause, "Pause a running debug session"), Handler: s.handleDebugPause},
		{Tool: debugSessionTool(toolDebugStop, "Stop and discard a debug session"), Handler: s.handleDebugStop},
		{Tool: debugSessionTool(toolDebugGet, "Get the current state of a debug session"), Handler: s.handleDebugGet},
	}
}

// Tool names.
const (
	toolExecute       = "flowgraph.execute"
	toolValidate      = "flowgraph.validate"
	toolDefine        = "flowgraph.define"
	toolQuery         = "flowgraph.query"
	toolDiagram       = "flowgraph.diagram"
	toolDebugStart    = "flowgraph.debug.start"
	toolDebugStep     = "flowgraph.debug.step"
	toolDebugContinue = "flowgraph.debug.continue"
	toolDebugPause    = "flowgraph.debug.pause"
	toolDebugStop     = "flowgraph.debug.stop"
	toolDebugGet      = "flowgraph.debug.get"
)

// --- Tool definitions ---

func executeTool() mcp.Tool {
	return mcp.NewTool(toolExecute,
		mcp.WithDescription("Execute a stored workflow and return the run trace"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("ID of the workflow to execute")),
		mcp.WithObject("input", mcp.Description("Input variables for the run")),
		mcp.WithString("agent_id", mcp.Description("ID of the calling agent, recorded as trigger metadata")),
	)
}

func validateTool() mcp.Tool {
	return mcp.NewTool(toolValidate,
		mcp.WithDescription("Validate a workflow definition without saving it"),
		mcp.WithObject("definition", mcp.Description("Workflow definition object")),
		mcp.WithString("workflow_id", mcp.Description("Validate a stored workflow instead of an inline definition")),
	)
}

func defineTool() mcp.Tool {
	return mcp.NewTool(toolDefine,
		mcp.WithDescription("Validate and save a workflow definition"),
		mcp.WithObject("definition", mcp.Required(), mcp.Description("Workflow definition object (id, name, nodes, edges, inputParams, outputParams)")),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool(toolQuery,
		mcp.WithDescription("Query workflows, runs, or run events"),
		mcp.WithString("resource", mcp.Required(),
			mcp.Enum("workflows", "runs", "events"),
			mcp.Description("Type of resource to query"),
		),
		mcp.WithObject("filter", mcp.Description("Filter criteria (name, workflow_id, run_id, status, since, limit)")),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool(toolDiagram,
		mcp.WithDescription("Render a workflow graph as ASCII art, Mermaid flowchart syntax, or a base64-encoded PNG image"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("Workflow to render")),
		mcp.WithString("run_id", mcp.Description("Overlay the outcome of a recorded run")),
		mcp.WithString("format", mcp.Required(),
			mcp.Enum("ascii", "mermaid", "image"),
			mcp.Description("Output format"),
		),
		mcp.WithBoolean("expand", mcp.Description("Draw referenced sub-workflows inline (one level)")),
	)
}

func debugStartTool() mcp.Tool {
	return mcp.NewTool(toolDebugStart,
		mcp.WithDescription("Start a debug session over a stored workflow"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("Workflow to debug")),
		mcp.WithObject("input", mcp.Description("Input variables for the session")),
		mcp.WithArray("breakpoints", mcp.WithStringItems(), mcp.Description("Node ids to pause in front of while running")),
		mcp.WithBoolean("step_mode", mcp.Description("Pause after every node when continuing")),
	)
}

func debugSessionTool(name, description string) mcp.Tool {
	return mcp.NewTool(name,
		mcp.WithDescription(description),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Debug session ID")),
	)
}
