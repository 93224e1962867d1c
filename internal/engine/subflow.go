package engine

import (
	"context"
	"log/slog"

	"github.com/rendis/flowgraph/internal/execution"
	"github.com/rendis/flowgraph/internal/expressions"
	"github.com/rendis/flowgraph/internal/logging"
	"github.com/rendis/flowgraph/internal/validation"
	"github.com/rendis/flowgraph/pkg/schema"
)

// Invoker runs referenced workflows for sub_workflow nodes. It recurses into
// the same Traverser that runs the caller.
type Invoker struct {
	workflows validation.WorkflowGetter
	traverser *Traverser
	interp    *expressions.Interpolator
	inputs    InputValidator
	events    *recorder
	logger    *slog.Logger
}

// Invoke resolves cfg.WorkflowID, guards against re-entering a workflow that
// is already on the execution stack, runs it in a sub-context and returns
// {workflowId, workflowName, results, returnData, executedNodes}. The stack
// is restored before returning on every path.
func (inv *Invoker) Invoke(ctx context.Context, node *schema.Node, cfg *schema.SubWorkflowConfig, ec *execution.Context) *schema.ExecutionResult {
	wf, err := inv.workflows.GetWorkflow(ctx, cfg.WorkflowID)
	if err != nil {
		return schema.Failed(schema.NewErrorf(schema.ErrCodeStore, "load workflow %s: %v", cfg.WorkflowID, err).WithCause(err))
	}
	if wf == nil {
		return schema.Failed(schema.NewErrorf(schema.ErrCodeNotFound, "workflow %s not found", cfg.WorkflowID))
	}

	stack := ec.Stack()
	if stack.Contains(wf.ID) {
		return schema.Failed(schema.NewErrorf(schema.ErrCodeCycleDetected,
			"workflow %s is already executing", wf.ID).
			WithDetails(map[string]any{"workflowId": wf.ID, "stack": stack.IDs()}))
	}
	stack.Push(wf.ID)
	defer stack.Pop(wf.ID)

	sub := inv.subContext(ctx, cfg, ec)
	if err := prepareVars(wf.InputParams, sub.Vars, inv.inputs, schema.ErrCodeConfig); err != nil {
		return schema.Failed(err)
	}

	subCtx := logging.WithWorkflowID(ctx, wf.ID)
	inv.events.subWorkflow(subCtx, wf, node, schema.EventSubWorkflowStarted, nil)
	logging.LogWith(subCtx, inv.logger).Debug("sub-workflow started", slog.String("parent_node", node.ID))

	results := inv.traverser.Run(subCtx, wf, sub)
	data := map[string]any{
		"workflowId":    wf.ID,
		"workflowName":  wf.Name,
		"results":       results,
		"returnData":    filterOutputs(wf, sub),
		"executedNodes": schema.ExecutedNodeIDs(results),
	}
	inv.events.subWorkflow(subCtx, wf, node, schema.EventSubWorkflowCompleted, map[string]any{
		"success":       schema.TraceSucceeded(results),
		"executedNodes": data["executedNodes"],
	})

	failed := schema.FirstFailure(results)
	if failed == nil {
		return schema.Succeeded(data)
	}
	return &schema.ExecutionResult{
		Success: false,
		Data:    data,
		Error:   "sub-workflow " + wf.ID + " failed at node " + failed.NodeID + ": " + failed.Result.Error,
		Code:    schema.ErrCodeNodeFailed,
		Details: map[string]any{"failedNode": failed.NodeID, "failedCode": failed.Result.Code},
	}
}

// subContext passes the caller context through when no mappings are set.
// With mappings, only system fields survive and each target receives its
// interpolated source resolved against the caller.
func (inv *Invoker) subContext(ctx context.Context, cfg *schema.SubWorkflowConfig, ec *execution.Context) *execution.Context {
	if len(cfg.Mappings) == 0 {
		return ec.Fork()
	}
	sub := ec.Isolated()
	for _, m := range cfg.Mappings {
		if m.Target == "" {
			continue
		}
		sub.Set(m.Target, inv.interp.ResolveValue(ctx, m.Source, ec))
	}
	return sub
}

// filterOutputs narrows the sub-run's outcome to the declared output params.
// A named field is read from the last result's data first, then from the
// sub-context; unresolved fields fall back to their default or are omitted.
// Without declared outputs the last result's data is returned as is.
func filterOutputs(wf *schema.Workflow, sub *execution.Context) any {
	if len(wf.OutputParams) == 0 {
		if sub.LastResult == nil {
			return nil
		}
		return sub.LastResult.Data
	}
	out := make(map[string]any, len(wf.OutputParams))
	for _, p := range wf.OutputParams {
		if v, ok := sub.LookupLastResult(p.Name); ok {
			out[p.Name] = v
			continue
		}
		if v, ok := sub.Lookup(p.Name); ok {
			out[p.Name] = v
			continue
		}
		if p.Default != nil {
			out[p.Name] = p.Default
		}
	}
	return out
}
