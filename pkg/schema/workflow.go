package schema

import "encoding/json"

// Workflow is the stored node/edge graph the engine executes.
// It is read-only to the engine: runs treat it as a snapshot.
type Workflow struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	Nodes        []Node         `json:"nodes"`
	Edges        []Edge         `json:"edges,omitempty"`
	InputParams  []Param        `json:"inputParams,omitempty"`
	OutputParams []Param        `json:"outputParams,omitempty"`
	Composed     bool           `json:"composed,omitempty"` // built purely from sub-workflow nodes
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Node is one configured step of a workflow graph.
type Node struct {
	ID     string          `json:"id"`
	Type   NodeType        `json:"type"`
	Name   string          `json:"name,omitempty"`
	Config json.RawMessage `json:"config,omitempty"`
}

// Edge links two nodes. Active defaults to true when omitted.
type Edge struct {
	ID     string `json:"id,omitempty"`
	Source string `json:"source"`
	Target string `json:"target"`
	Active *bool  `json:"active,omitempty"`
	Branch string `json:"branch,omitempty"`
}

// IsActive reports whether the edge may be traversed.
func (e Edge) IsActive() bool {
	return e.Active == nil || *e.Active
}

// Param declares a workflow input or output parameter.
type Param struct {
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"` // string | number | boolean | object | array
	Required    bool   `json:"required,omitempty"`
	Default     any    `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
}

// NodeByID returns the node with the given id, or nil.
func (w *Workflow) NodeByID(id string) *Node {
	for i := range w.Nodes {
		if w.Nodes[i].ID == id {
			return &w.Nodes[i]
		}
	}
	return nil
}

// SubWorkflowNodes returns the sub-workflow reference nodes in stored order.
func (w *Workflow) SubWorkflowNodes() []Node {
	var out []Node
	for _, n := range w.Nodes {
		if n.Type == NodeTypeSubWorkflow {
			out = append(out, n)
		}
	}
	return out
}

// ReferencedWorkflowIDs returns the distinct workflow ids referenced by sub-workflow nodes.
// Nodes whose config cannot be parsed are ignored.
func (w *Workflow) ReferencedWorkflowIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, n := range w.SubWorkflowNodes() {
		cfg, err := n.ParseConfig()
		if err != nil {
			continue
		}
		sub, ok := cfg.(*SubWorkflowConfig)
		if !ok || sub.WorkflowID == "" || seen[sub.WorkflowID] {
			continue
		}
		seen[sub.WorkflowID] = true
		ids = append(ids, sub.WorkflowID)
	}
	return ids
}

// RetryPolicy configures retry behavior for an outbound call.
type RetryPolicy struct {
	Max      int    `json:"max"`                 // max retry attempts
	Backoff  string `json:"backoff,omitempty"`   // none | constant | linear | exponential (default: none)
	Delay    string `json:"delay,omitempty"`     // initial delay (e.g. "1s", "500ms")
	MaxDelay string `json:"max_delay,omitempty"` // cap on computed delay
}
