package engine

import (
	"context"
	"time"

	"github.com/rendis/flowgraph/internal/execution"
	"github.com/rendis/flowgraph/pkg/schema"
)

// NodeRunner executes a single node. Satisfied by *actions.Executor.
type NodeRunner interface {
	Execute(ctx context.Context, node *schema.Node, ec *execution.Context) *schema.ExecutionResult
}

// Observer is notified around every node the traverser executes.
type Observer interface {
	NodeStarted(ctx context.Context, wf *schema.Workflow, node *schema.Node)
	NodeFinished(ctx context.Context, wf *schema.Workflow, entry schema.NodeResult)
}

// Traverser walks workflow graphs depth first, executing each reachable node
// at most once per call to Run.
type Traverser struct {
	runner   NodeRunner
	observer Observer
}

// NewTraverser creates a Traverser. observer may be nil.
func NewTraverser(runner NodeRunner, observer Observer) *Traverser {
	return &Traverser{runner: runner, observer: observer}
}

// Run executes wf against ec and returns the ordered trace. Node failures end
// only their own branch; siblings reached from an earlier fan-out still run.
// Composed workflows ignore edges: each sub_workflow node is its own start,
// run in stored order, and a failure ends only that node.
func (t *Traverser) Run(ctx context.Context, wf *schema.Workflow, ec *execution.Context) []schema.NodeResult {
	w := &walk{t: t, wf: wf, ec: ec, visited: make(map[string]bool, len(wf.Nodes))}

	if wf.Composed {
		for _, n := range wf.SubWorkflowNodes() {
			if w.visited[n.ID] {
				continue
			}
			if _, ok := w.execute(ctx, &n); !ok {
				break
			}
		}
		return w.trace
	}

	g := NewGraph(wf)
	for _, start := range g.Starts() {
		if !w.dfs(ctx, g, start) {
			break
		}
	}
	return w.trace
}

// walk is the state of one Run call. The visited set lives here so that
// concurrent and nested runs never share it.
type walk struct {
	t       *Traverser
	wf      *schema.Workflow
	ec      *execution.Context
	visited map[string]bool
	trace   []schema.NodeResult
}

// dfs returns false when the whole walk must stop (cancellation).
func (w *walk) dfs(ctx context.Context, g *Graph, node *schema.Node) bool {
	if w.visited[node.ID] {
		return true
	}
	res, ok := w.execute(ctx, node)
	if !ok {
		return false
	}
	for _, next := range g.Next(node, res) {
		if !w.dfs(ctx, g, next) {
			return false
		}
	}
	return true
}

// execute runs one node, records it and reports false if the context was
// already done, in which case a CANCELLED entry is recorded instead.
func (w *walk) execute(ctx context.Context, node *schema.Node) (*schema.ExecutionResult, bool) {
	w.visited[node.ID] = true
	started := time.Now().UTC()

	if err := ctx.Err(); err != nil {
		res := schema.Failed(schema.NewErrorf(schema.ErrCodeCancelled, "run cancelled before node %s: %v", node.ID, err))
		w.record(ctx, node, res, started)
		return res, false
	}

	if w.t.observer != nil {
		w.t.observer.NodeStarted(ctx, w.wf, node)
	}
	res := w.t.runner.Execute(ctx, node, w.ec)
	w.ec.Record(node.ID, res)
	w.record(ctx, node, res, started)
	return res, true
}

func (w *walk) record(ctx context.Context, node *schema.Node, res *schema.ExecutionResult, started time.Time) {
	entry := schema.NodeResult{
		NodeID:     node.ID,
		NodeType:   node.Type,
		Result:     res,
		StartedAt:  started,
		DurationMs: time.Since(started).Milliseconds(),
	}
	w.trace = append(w.trace, entry)
	if w.t.observer != nil {
		w.t.observer.NodeFinished(ctx, w.wf, entry)
	}
}
