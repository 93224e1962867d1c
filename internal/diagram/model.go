package diagram

// NodeKind classifies a diagram node by the workflow node type it renders.
type NodeKind string

const (
	NodeKindCall        NodeKind = "call"
	NodeKindBranch      NodeKind = "branch"
	NodeKindTransform   NodeKind = "transform"
	NodeKindMessage     NodeKind = "message"
	NodeKindSubWorkflow NodeKind = "sub_workflow"
	NodeKindMarker      NodeKind = "marker"
	NodeKindStart       NodeKind = "start"
	NodeKindEnd         NodeKind = "end"
)

// Virtual node ids framing every diagram.
const (
	StartID = "__start__"
	EndID   = "__end__"
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title  string
	Nodes  []*Node
	Edges  []Edge
	Levels [][]string
}

// Node is one workflow node in the diagram.
type Node struct {
	ID       string
	Label    string
	Kind     NodeKind
	Status   *StatusOverlay
	Children []*SubGraph // expanded sub-workflow bodies
}

// SubGraph holds the nodes of a referenced workflow.
type SubGraph struct {
	Label string
	Nodes []*Node
	Edges []Edge
}

// StatusOverlay carries the outcome of a node in a recorded run.
type StatusOverlay struct {
	Status     string // completed | failed | skipped
	DurationMs int64
	Error      string
}

// Edge links two diagram nodes.
type Edge struct {
	From     string
	To       string
	Label    string
	Inactive bool
}
