package diagram

import (
	"fmt"

	"github.com/rendis/flowgraph/internal/expressions"
	"github.com/rendis/flowgraph/pkg/schema"
)

// Overlay statuses.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// Option customizes Build.
type Option func(*buildOptions)

type buildOptions struct {
	results []schema.NodeResult
	lookup  func(id string) *schema.Workflow
}

// WithResults overlays the outcome of a recorded run. Nodes absent from the
// trace are marked skipped.
func WithResults(results []schema.NodeResult) Option {
	return func(o *buildOptions) { o.results = results }
}

// WithSubWorkflows expands sub_workflow nodes one level deep using lookup.
func WithSubWorkflows(lookup func(id string) *schema.Workflow) Option {
	return func(o *buildOptions) { o.lookup = lookup }
}

// Build constructs a DiagramModel from a workflow. Start nodes hang off a
// virtual start node and leaves flow into a virtual end node. Inactive edges
// are kept and flagged.
func Build(wf *schema.Workflow, opts ...Option) (*DiagramModel, error) {
	if wf == nil {
		return nil, fmt.Errorf("diagram: nil workflow")
	}
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}

	known := make(map[string]bool, len(wf.Nodes))
	for _, n := range wf.Nodes {
		known[n.ID] = true
	}
	for _, e := range wf.Edges {
		if !known[e.Source] || !known[e.Target] {
			return nil, fmt.Errorf("diagram: edge %s -> %s references an unknown node", e.Source, e.Target)
		}
	}

	results := indexResults(o.results)
	nodes := make([]*Node, 0, len(wf.Nodes)+2)
	nodes = append(nodes, &Node{ID: StartID, Label: "Start", Kind: NodeKindStart})
	for i := range wf.Nodes {
		n := &wf.Nodes[i]
		node := toNode(n)
		if o.results != nil {
			node.Status = overlay(results[n.ID])
		}
		if n.Type == schema.NodeTypeSubWorkflow && o.lookup != nil {
			if sg := expand(n, o.lookup); sg != nil {
				node.Children = append(node.Children, sg)
			}
		}
		nodes = append(nodes, node)
	}
	nodes = append(nodes, &Node{ID: EndID, Label: "End", Kind: NodeKindEnd})

	edges := buildEdges(wf)
	return &DiagramModel{
		Title:  title(wf),
		Nodes:  nodes,
		Edges:  edges,
		Levels: buildLevels(wf, edges),
	}, nil
}

func toNode(n *schema.Node) *Node {
	return &Node{ID: n.ID, Label: nodeLabel(n), Kind: kindOf(n.Type)}
}

func kindOf(t schema.NodeType) NodeKind {
	switch {
	case t.IsBranching():
		return NodeKindBranch
	case t.IsMarker():
		return NodeKindMarker
	}
	switch t {
	case schema.NodeTypeHTTPRequest:
		return NodeKindCall
	case schema.NodeTypeTransform:
		return NodeKindTransform
	case schema.NodeTypeMessageReply, schema.NodeTypeMessagePush, schema.NodeTypeMessageCards:
		return NodeKindMessage
	case schema.NodeTypeSubWorkflow:
		return NodeKindSubWorkflow
	default:
		return NodeKindCall
	}
}

// nodeLabel is "name\n(type)", falling back to the id.
func nodeLabel(n *schema.Node) string {
	name := n.Name
	if name == "" {
		name = n.ID
	}
	return fmt.Sprintf("%s\n(%s)", name, n.Type)
}

func indexResults(results []schema.NodeResult) map[string]*schema.NodeResult {
	idx := make(map[string]*schema.NodeResult, len(results))
	for i := range results {
		idx[results[i].NodeID] = &results[i]
	}
	return idx
}

func overlay(r *schema.NodeResult) *StatusOverlay {
	if r == nil {
		return &StatusOverlay{Status: StatusSkipped}
	}
	so := &StatusOverlay{Status: StatusCompleted, DurationMs: r.DurationMs}
	if r.Result == nil || !r.Result.Success {
		so.Status = StatusFailed
		if r.Result != nil {
			so.Error = r.Result.Error
		}
	}
	return so
}

// expand renders the referenced workflow's nodes as a subgraph. Sub-node ids
// are qualified as parentID.childID.
func expand(n *schema.Node, lookup func(string) *schema.Workflow) *SubGraph {
	cfg, err := n.ParseConfig()
	if err != nil {
		return nil
	}
	ref, ok := cfg.(*schema.SubWorkflowConfig)
	if !ok || ref.WorkflowID == "" {
		return nil
	}
	child := lookup(ref.WorkflowID)
	if child == nil {
		return nil
	}

	label := child.Name
	if label == "" {
		label = child.ID
	}
	sg := &SubGraph{Label: label}
	qualify := func(id string) string { return n.ID + "." + id }
	for i := range child.Nodes {
		c := &child.Nodes[i]
		sub := toNode(c)
		sub.ID = qualify(c.ID)
		sg.Nodes = append(sg.Nodes, sub)
	}
	labels := caseLabels(child)
	for _, e := range child.Edges {
		sg.Edges = append(sg.Edges, Edge{From: qualify(e.Source), To: qualify(e.Target), Label: labels.of(e), Inactive: !e.IsActive()})
	}
	return sg
}

// buildEdges maps workflow edges and adds the virtual start and end edges.
// Only active edges decide which nodes are starts and leaves.
func buildEdges(wf *schema.Workflow) []Edge {
	incoming := make(map[string]bool)
	outgoing := make(map[string]bool)
	edges := make([]Edge, 0, len(wf.Edges)+2)
	for _, e := range wf.Edges {
		if e.IsActive() {
			incoming[e.Target] = true
			outgoing[e.Source] = true
		}
	}

	for _, n := range wf.Nodes {
		if !incoming[n.ID] {
			edges = append(edges, Edge{From: StartID, To: n.ID})
		}
	}
	labels := caseLabels(wf)
	for _, e := range wf.Edges {
		edges = append(edges, Edge{From: e.Source, To: e.Target, Label: labels.of(e), Inactive: !e.IsActive()})
	}
	for _, n := range wf.Nodes {
		if !outgoing[n.ID] {
			edges = append(edges, Edge{From: n.ID, To: EndID})
		}
	}
	return edges
}

// buildLevels layers nodes by breadth-first distance from the virtual start
// over active edges. Nodes no start reaches share a level just above the end.
func buildLevels(wf *schema.Workflow, edges []Edge) [][]string {
	adj := make(map[string][]string)
	for _, e := range edges {
		if !e.Inactive && e.To != EndID {
			adj[e.From] = append(adj[e.From], e.To)
		}
	}

	level := map[string]int{StartID: 0}
	queue := []string{StartID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range adj[id] {
			if _, seen := level[next]; seen {
				continue
			}
			level[next] = level[id] + 1
			queue = append(queue, next)
		}
	}

	depth := 0
	for _, l := range level {
		depth = max(depth, l)
	}
	levels := make([][]string, depth+3)
	levels[0] = []string{StartID}
	for _, n := range wf.Nodes {
		l, ok := level[n.ID]
		if !ok {
			l = depth + 1 // unreachable from any start
		}
		levels[l] = append(levels[l], n.ID)
	}
	levels[depth+2] = []string{EndID}

	out := levels[:0]
	for _, l := range levels {
		if len(l) > 0 {
			out = append(out, l)
		}
	}
	return out
}

func title(wf *schema.Workflow) string {
	if wf.Name != "" {
		return wf.Name
	}
	if wf.ID != "" {
		return wf.ID
	}
	return "Workflow"
}

// branchLabels maps a switch node id and branch tag to its case label.
type branchLabels map[string]map[string]string

func caseLabels(wf *schema.Workflow) branchLabels {
	out := make(branchLabels)
	for i := range wf.Nodes {
		n := &wf.Nodes[i]
		if n.Type != schema.NodeTypeSwitch {
			continue
		}
		cfg, err := n.ParseConfig()
		if err != nil {
			continue
		}
		for _, c := range cfg.(*schema.SwitchConfig).Cases {
			if c.Label == "" {
				continue
			}
			if out[n.ID] == nil {
				out[n.ID] = make(map[string]string)
			}
			out[n.ID][expressions.Stringify(c.Value)] = c.Label
		}
	}
	return out
}

// of returns the case label for a switch edge, else the raw branch tag.
func (l branchLabels) of(e schema.Edge) string {
	if label, ok := l[e.Source][e.Branch]; ok {
		return label
	}
	return e.Branch
}
