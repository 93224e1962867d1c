package debugger

import (
	"context"
	"slices"
	"sync"

	"github.com/rendis/flowgraph/internal/streaming"
	"github.com/rendis/flowgraph/pkg/schema"
)

// ValidTransitions defines the allowed debug session state transitions.
// Self transitions are not listed; callers treat them as no-ops.
var ValidTransitions = map[schema.DebugStatus][]schema.DebugStatus{
	schema.DebugStatusReady:     {schema.DebugStatusRunning, schema.DebugStatusPaused, schema.DebugStatusCompleted, schema.DebugStatusStopped},
	schema.DebugStatusRunning:   {schema.DebugStatusPaused, schema.DebugStatusCompleted, schema.DebugStatusStopped},
	schema.DebugStatusPaused:    {schema.DebugStatusRunning, schema.DebugStatusCompleted, schema.DebugStatusStopped},
	schema.DebugStatusCompleted: {schema.DebugStatusStopped},
	schema.DebugStatusStopped:   {},
}

// TransitionHook is called after a successful transition.
type TransitionHook func(sessionID string, from, to schema.DebugStatus)

// SessionFSM validates debug session transitions and publishes one event
// per transition.
type SessionFSM struct {
	mu    sync.Mutex
	hub   streaming.EventHub
	after []TransitionHook
}

// NewSessionFSM creates a SessionFSM publishing to hub. hub may be nil.
func NewSessionFSM(hub streaming.EventHub) *SessionFSM {
	if hub == nil {
		hub = streaming.Nop{}
	}
	return &SessionFSM{hub: hub}
}

// OnTransition registers a hook run after every successful transition.
func (f *SessionFSM) OnTransition(hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.after = append(f.after, hook)
}

// Transition validates from -> to for the session and emits the matching event.
func (f *SessionFSM) Transition(ctx context.Context, s *Session, to schema.DebugStatus) error {
	from := s.status
	if from == to {
		return nil
	}
	if !CanTransition(from, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid debug session transition: %s -> %s", from, to).
			WithDetails(map[string]any{"session_id": s.id, "from": string(from), "to": string(to)})
	}
	s.status = to

	if ev := eventType(to); ev != "" {
		_ = f.hub.Publish(context.WithoutCancel(ctx), streaming.StreamEvent{
			WorkflowID: s.wf.ID,
			SessionID:  s.id,
			EventType:  ev,
			Payload:    map[string]any{"from": string(from), "to": string(to), "index": s.index},
		})
	}

	f.mu.Lock()
	hooks := slices.Clone(f.after)
	f.mu.Unlock()
	for _, h := range hooks {
		h(s.id, from, to)
	}
	return nil
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to schema.DebugStatus) bool {
	return slices.Contains(ValidTransitions[from], to)
}

func eventType(to schema.DebugStatus) string {
	switch to {
	case schema.DebugStatusRunning:
		return schema.EventDebugResumed
	case schema.DebugStatusPaused:
		return schema.EventDebugPaused
	case schema.DebugStatusCompleted:
		return schema.EventDebugCompleted
	case schema.DebugStatusStopped:
		return schema.EventDebugStopped
	default:
		return ""
	}
}
