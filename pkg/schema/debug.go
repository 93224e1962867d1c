package schema

import "time"

// CurrentNode describes the node a debug session will execute next.
type CurrentNode struct {
	Index int      `json:"index"`
	ID    string   `json:"id"`
	Type  NodeType `json:"type"`
	Name  string   `json:"name,omitempty"`
}

// StackFrame is one entry of a debug session's call stack.
type StackFrame struct {
	WorkflowID   string `json:"workflowId"`
	WorkflowName string `json:"workflowName,omitempty"`
	NodeID       string `json:"nodeId,omitempty"`
}

// DebugSessionView is the externally visible state of a debug session.
type DebugSessionView struct {
	SessionID    string         `json:"sessionId"`
	WorkflowID   string         `json:"workflowId"`
	Status       DebugStatus    `json:"status"`
	CurrentIndex int            `json:"currentNodeIndex"`
	CurrentNode  *CurrentNode   `json:"currentNode,omitempty"`
	PausedBefore string         `json:"pausedBefore,omitempty"` // breakpoint node the session stopped in front of
	Variables    map[string]any `json:"variables"`
	Results      []NodeResult   `json:"results"`
	Breakpoints  []string       `json:"breakpoints"`
	StepMode     bool           `json:"stepMode"`
	CallStack    []StackFrame   `json:"callStack"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}
