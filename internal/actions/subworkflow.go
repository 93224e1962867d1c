package actions

import (
	"context"
	"sync"

	"github.com/rendis/flowgraph/internal/execution"
	"github.com/rendis/flowgraph/pkg/schema"
)

// Invoker runs a referenced workflow on behalf of a sub_workflow node.
type Invoker interface {
	Invoke(ctx context.Context, node *schema.Node, cfg *schema.SubWorkflowConfig, ec *execution.Context) *schema.ExecutionResult
}

// SubWorkflowHandler delegates to an Invoker bound after construction, since
// the invoker itself depends on the executor this handler is registered in.
type SubWorkflowHandler struct {
	mu      sync.RWMutex
	invoker Invoker
}

// NewSubWorkflowHandler creates an unbound sub_workflow handler.
func NewSubWorkflowHandler() *SubWorkflowHandler {
	return &SubWorkflowHandler{}
}

// Bind sets the invoker.
func (h *SubWorkflowHandler) Bind(inv Invoker) {
	h.mu.Lock()
	h.invoker = inv
	h.mu.Unlock()
}

func (h *SubWorkflowHandler) Type() schema.NodeType { return schema.NodeTypeSubWorkflow }

func (h *SubWorkflowHandler) Describe() string {
	return "Run another stored workflow with mapped parameters."
}

func (h *SubWorkflowHandler) Execute(ctx context.Context, call *Call) *schema.ExecutionResult {
	cfg, bad := configAs[*schema.SubWorkflowConfig](call)
	if bad != nil {
		return bad
	}
	if cfg.WorkflowID == "" {
		return fail(schema.ErrCodeConfig, "workflowId is required")
	}

	h.mu.RLock()
	inv := h.invoker
	h.mu.RUnlock()
	if inv == nil {
		return fail(schema.ErrCodeInternal, "sub-workflow invoker not configured")
	}
	return inv.Invoke(ctx, call.Node, cfg, call.Ctx)
}
