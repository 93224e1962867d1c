package engine

import (
	"github.com/rendis/flowgraph/pkg/schema"
)

// Graph is the traversable view of a workflow: nodes indexed by id and active
// edges grouped by source, both in stored order. Inactive edges and edges
// with an unknown endpoint are dropped at build time.
type Graph struct {
	wf       *schema.Workflow
	nodes    map[string]*schema.Node
	outgoing map[string][]schema.Edge
	incoming map[string]int
}

// NewGraph indexes wf. The workflow is not copied and must not be mutated
// while the graph is in use.
func NewGraph(wf *schema.Workflow) *Graph {
	g := &Graph{
		wf:       wf,
		nodes:    make(map[string]*schema.Node, len(wf.Nodes)),
		outgoing: make(map[string][]schema.Edge),
		incoming: make(map[string]int),
	}
	for i := range wf.Nodes {
		n := &wf.Nodes[i]
		if _, dup := g.nodes[n.ID]; !dup {
			g.nodes[n.ID] = n
		}
	}
	for _, e := range wf.Edges {
		if !e.IsActive() {
			continue
		}
		if g.nodes[e.Source] == nil || g.nodes[e.Target] == nil {
			continue
		}
		g.outgoing[e.Source] = append(g.outgoing[e.Source], e)
		g.incoming[e.Target]++
	}
	return g
}

// Node returns the node with the given id, or nil.
func (g *Graph) Node(id string) *schema.Node {
	return g.nodes[id]
}

// Starts returns the entry points: nodes with no incoming active edge, in stored order.
func (g *Graph) Starts() []*schema.Node {
	var out []*schema.Node
	for i := range g.wf.Nodes {
		n := &g.wf.Nodes[i]
		if g.nodes[n.ID] != n {
			continue
		}
		if g.incoming[n.ID] == 0 {
			out = append(out, n)
		}
	}
	return out
}

// Outgoing returns the active edges leaving id.
func (g *Graph) Outgoing(id string) []schema.Edge {
	return g.outgoing[id]
}

// Next returns the nodes to visit after node produced result. Failed nodes
// have no successors. Branching nodes follow only edges tagged with the
// result's branch; on boolean branches an untagged edge counts as "true".
// Every other node follows all of its active edges.
func (g *Graph) Next(node *schema.Node, result *schema.ExecutionResult) []*schema.Node {
	if result == nil || !result.Success {
		return nil
	}
	var out []*schema.Node
	for _, e := range g.outgoing[node.ID] {
		if node.Type.IsBranching() && !BranchMatches(node.Type, e.Branch, result.Branch) {
			continue
		}
		out = append(out, g.nodes[e.Target])
	}
	return out
}

// BranchMatches reports whether an edge tagged edgeBranch fires for a node of
// type t that produced branch. Untagged edges only match "true" from
// condition and multi_condition nodes; a switch never fires them.
func BranchMatches(t schema.NodeType, edgeBranch, branch string) bool {
	if edgeBranch == "" {
		return t.IsBoolean() && branch == schema.BranchTrue
	}
	return edgeBranch == branch
}
