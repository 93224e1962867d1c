package validation

import (
	"fmt"

	"github.com/rendis/flowgraph/pkg/schema"
)

// validateGraph analyses the active-edge graph with Kahn's algorithm. Node
// cycles are tolerated at run time (each node runs at most once), so they are
// reported as warnings. A workflow without any start node is an error: the
// traversal would execute nothing.
func validateGraph(wf *schema.Workflow) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	if len(wf.Nodes) == 0 {
		result.AddWarning("nodes", schema.ErrCodeValidation, "workflow has no nodes")
		return result
	}
	if wf.Composed {
		return result
	}

	ids := make(map[string]bool, len(wf.Nodes))
	for _, n := range wf.Nodes {
		ids[n.ID] = true
	}

	inDegree := make(map[string]int, len(wf.Nodes))
	out := make(map[string][]string, len(wf.Nodes))
	for _, e := range wf.Edges {
		if !e.IsActive() || !ids[e.Source] || !ids[e.Target] {
			continue
		}
		out[e.Source] = append(out[e.Source], e.Target)
		inDegree[e.Target]++
	}

	var queue []string
	for _, n := range wf.Nodes {
		if inDegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}
	if len(queue) == 0 {
		result.AddError("edges", schema.ErrCodeCycleDetected,
			"every node has an incoming active edge; the workflow has no start node")
		return result
	}

	visited := make(map[string]bool, len(wf.Nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited[id] = true
		for _, next := range out[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	for _, n := range wf.Nodes {
		if !visited[n.ID] {
			result.AddWarning(fmt.Sprintf("nodes[%s]", n.ID), schema.ErrCodeCycleDetected,
				fmt.Sprintf("node %q is part of or behind an edge cycle; it runs at most once per execution", n.ID))
		}
	}
	return result
}
