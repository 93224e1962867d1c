package debugger

import (
	"slices"
	"sync"
	"time"

	"github.com/rendis/flowgraph/internal/execution"
	"github.com/rendis/flowgraph/pkg/schema"
)

// Session is one debug run over a workflow's stored node order.
// All fields are guarded by mu; the manager holds it for a whole operation.
type Session struct {
	mu sync.Mutex

	id          string
	wf          *schema.Workflow
	ec          *execution.Context
	status      schema.DebugStatus
	index       int
	results     []schema.NodeResult
	executed    map[string]bool
	breakpoints []string
	stepMode    bool

	// pausedBefore is the breakpoint the session stopped in front of.
	// It is passed through on the next step.
	pausedBefore string

	createdAt time.Time
	updatedAt time.Time
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

func (s *Session) isBreakpoint(nodeID string) bool {
	return slices.Contains(s.breakpoints, nodeID)
}

func (s *Session) done() bool {
	return s.index >= len(s.wf.Nodes)
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.updatedAt)
}

// view renders the session. Callers hold mu.
func (s *Session) view() *schema.DebugSessionView {
	v := &schema.DebugSessionView{
		SessionID:    s.id,
		WorkflowID:   s.wf.ID,
		Status:       s.status,
		CurrentIndex: s.index,
		PausedBefore: s.pausedBefore,
		Variables:    s.ec.Snapshot(),
		Results:      slices.Clone(s.results),
		Breakpoints:  slices.Clone(s.breakpoints),
		StepMode:     s.stepMode,
		CreatedAt:    s.createdAt,
		UpdatedAt:    s.updatedAt,
	}
	if v.Results == nil {
		v.Results = []schema.NodeResult{}
	}
	if v.Breakpoints == nil {
		v.Breakpoints = []string{}
	}

	var nodeID string
	if !s.done() {
		n := s.wf.Nodes[s.index]
		nodeID = n.ID
		v.CurrentNode = &schema.CurrentNode{Index: s.index, ID: n.ID, Type: n.Type, Name: n.Name}
	}

	ids := s.ec.Stack().IDs()
	v.CallStack = make([]schema.StackFrame, 0, len(ids))
	for i, id := range ids {
		f := schema.StackFrame{WorkflowID: id}
		if id == s.wf.ID {
			f.WorkflowName = s.wf.Name
		}
		if i == len(ids)-1 {
			f.NodeID = nodeID
		}
		v.CallStack = append(v.CallStack, f)
	}
	return v
}
