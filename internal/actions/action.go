// Package actions implements the per-type node behaviors and the executor
// that dispatches a node to its handler.
package actions

import (
	"context"

	"github.com/rendis/flowgraph/internal/execution"
	"github.com/rendis/flowgraph/pkg/schema"
)

// Handler executes the nodes of one type. Handlers never return errors or
// panic past this boundary: every failure is folded into the result.
type Handler interface {
	Type() schema.NodeType
	Describe() string
	Execute(ctx context.Context, call *Call) *schema.ExecutionResult
}

// Call carries one node execution to its handler.
type Call struct {
	Node   *schema.Node
	Config schema.NodeConfig
	Ctx    *execution.Context
}

// HandlerInfo is a summary of a registered handler for listing.
type HandlerInfo struct {
	Type        schema.NodeType `json:"type"`
	Description string          `json:"description,omitempty"`
	Branching   bool            `json:"branching"`
}

// configAs extracts the typed config variant a handler expects.
func configAs[T schema.NodeConfig](call *Call) (T, *schema.ExecutionResult) {
	cfg, ok := call.Config.(T)
	if !ok {
		var zero T
		return zero, fail(schema.ErrCodeConfig, "node %s: unexpected config variant %T", call.Node.ID, call.Config)
	}
	return cfg, nil
}

func fail(code, format string, args ...any) *schema.ExecutionResult {
	return schema.Failed(schema.NewErrorf(code, format, args...))
}

func failWith(err *schema.FlowError, details any) *schema.ExecutionResult {
	r := schema.Failed(err)
	if details != nil {
		r.Details = details
	}
	return r
}
