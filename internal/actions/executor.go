package actions

import (
	"context"
	"log/slog"
	"strings"

	"github.com/rendis/flowgraph/internal/execution"
	"github.com/rendis/flowgraph/internal/logging"
	"github.com/rendis/flowgraph/pkg/schema"
)

// Executor is the per-node execution primitive shared by the traversal
// engine and the debug session manager.
type Executor struct {
	registry *Registry
	logger   *slog.Logger
}

// NewExecutor creates an Executor over a registry that must cover every node type.
func NewExecutor(reg *Registry, logger *slog.Logger) (*Executor, error) {
	if missing := reg.Missing(); len(missing) > 0 {
		names := make([]string, len(missing))
		for i, t := range missing {
			names[i] = string(t)
		}
		return nil, schema.NewErrorf(schema.ErrCodeConfig, "no handler registered for node types: %s", strings.Join(names, ", "))
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{registry: reg, logger: logger}, nil
}

// Execute runs one node against ec and returns its outcome. It never panics:
// handler panics become INTERNAL_ERROR results.
func (e *Executor) Execute(ctx context.Context, node *schema.Node, ec *execution.Context) (result *schema.ExecutionResult) {
	ctx = logging.WithNodeID(ctx, node.ID)
	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorContext(ctx, "node handler panicked", slog.Any("panic", r))
			result = fail(schema.ErrCodeInternal, "node %s panicked: %v", node.ID, r)
		}
	}()

	cfg, err := node.ParseConfig()
	if err != nil {
		return schema.Failed(err)
	}
	h, ok := e.registry.Get(node.Type)
	if !ok {
		return fail(schema.ErrCodeUnknownNodeType, "unknown node type: %s", node.Type)
	}

	result = h.Execute(ctx, &Call{Node: node, Config: cfg, Ctx: ec})
	if result == nil {
		return fail(schema.ErrCodeInternal, "node %s produced no result", node.ID)
	}
	if !node.Type.IsBranching() {
		result.Branch = ""
	}

	if !result.Success {
		e.logger.WarnContext(ctx, "node failed", slog.String("type", string(node.Type)),
			slog.String("code", result.Code), slog.String("error", result.Error))
	} else {
		e.logger.DebugContext(ctx, "node executed", slog.String("type", string(node.Type)),
			slog.String("branch", result.Branch))
	}
	return result
}

// Registry returns the handler registry.
func (e *Executor) Registry() *Registry {
	return e.registry
}
