// Package debugger runs workflows one node at a time behind a pausable
// session state machine.
package debugger

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/flowgraph/internal/engine"
	"github.com/rendis/flowgraph/internal/logging"
	"github.com/rendis/flowgraph/internal/store"
	"github.com/rendis/flowgraph/internal/streaming"
	"github.com/rendis/flowgraph/pkg/schema"
)

// DefaultTTL is how long an idle session survives a sweep.
const DefaultTTL = 30 * time.Minute

// ErrSessionNotFound is the cause of NOT_FOUND errors for unknown or stopped sessions.
var ErrSessionNotFound = errors.New("debug session not found")

// Config holds the manager's collaborators. Engine is required.
type Config struct {
	Engine   *engine.Engine
	Sessions SessionStore // nil uses an in-memory registry
	Hub      streaming.EventHub
	TTL      time.Duration
	Logger   *slog.Logger
	Now      func() time.Time
}

// StartRequest describes a new debug session.
type StartRequest struct {
	WorkflowID  string         `json:"workflowId"`
	Input       map[string]any `json:"input,omitempty"`
	Breakpoints []string       `json:"breakpoints,omitempty"`
	StepMode    bool           `json:"stepMode,omitempty"`
}

// Manager owns debug sessions. It drives the same per-node primitive as
// regular runs but over the workflow's stored node order.
type Manager struct {
	engine   *engine.Engine
	runner   engine.NodeRunner
	sessions SessionStore
	fsm      *SessionFSM
	hub      streaming.EventHub
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewManager creates a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Engine == nil {
		return nil, schema.NewError(schema.ErrCodeConfig, "debugger requires an engine")
	}
	m := &Manager{
		engine:   cfg.Engine,
		runner:   cfg.Engine.Executor(),
		sessions: cfg.Sessions,
		hub:      cfg.Hub,
		ttl:      cfg.TTL,
		logger:   cfg.Logger,
		now:      cfg.Now,
	}
	if m.sessions == nil {
		m.sessions = NewMemorySessionStore()
	}
	if m.hub == nil {
		m.hub = streaming.Nop{}
	}
	if m.ttl <= 0 {
		m.ttl = DefaultTTL
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.now == nil {
		m.now = time.Now
	}
	m.fsm = NewSessionFSM(m.hub)
	m.fsm.OnTransition(func(id string, from, to schema.DebugStatus) {
		m.logger.Debug("debug session transition", slog.String("session_id", id),
			slog.String("from", string(from)), slog.String("to", string(to)))
	})
	return m, nil
}

// Start loads the workflow, seeds a context from the input and registers a
// ready session.
func (m *Manager) Start(ctx context.Context, req StartRequest) (*schema.DebugSessionView, error) {
	wf, err := m.engine.LoadWorkflow(ctx, req.WorkflowID)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	ec, err := m.engine.NewContext(wf, req.Input,
		engine.WithTrigger(store.TriggerDebug, map[string]any{"session_id": id}))
	if err != nil {
		return nil, err
	}

	bps := slices.Clone(req.Breakpoints)
	slices.Sort(bps)
	bps = slices.Compact(bps)

	now := m.now()
	s := &Session{
		id:          id,
		wf:          wf,
		ec:          ec,
		status:      schema.DebugStatusReady,
		executed:    make(map[string]bool),
		breakpoints: bps,
		stepMode:    req.StepMode,
		createdAt:   now,
		updatedAt:   now,
	}
	m.sessions.Put(s)

	ctx = sessionContext(ctx, s)
	m.publish(ctx, s, schema.EventDebugStarted, map[string]any{
		"breakpoints": bps, "stepMode": req.StepMode, "nodes": len(wf.Nodes),
	})
	logging.LogWith(ctx, m.logger).Info("debug session started", slog.Int("breakpoints", len(bps)))

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(), nil
}

// Get returns the current view of a session.
func (m *Manager) Get(_ context.Context, id string) (*schema.DebugSessionView, error) {
	s, err := m.session(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view(), nil
}

// List returns views of every live session.
func (m *Manager) List(_ context.Context) []*schema.DebugSessionView {
	sessions := m.sessions.List()
	out := make([]*schema.DebugSessionView, 0, len(sessions))
	for _, s := range sessions {
		s.mu.Lock()
		out = append(out, s.view())
		s.mu.Unlock()
	}
	slices.SortFunc(out, func(a, b *schema.DebugSessionView) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}

// Step executes the node at the current index. A running session standing
// on a breakpoint pauses in front of it instead.
func (m *Manager) Step(ctx context.Context, id string) (*schema.DebugSessionView, error) {
	return m.operate(ctx, id, func(ctx context.Context, s *Session) error {
		if s.status == schema.DebugStatusCompleted {
			return completedError(s)
		}
		return m.stepOnce(ctx, s)
	})
}

// Continue runs steps until the session pauses or completes.
func (m *Manager) Continue(ctx context.Context, id string) (*schema.DebugSessionView, error) {
	return m.operate(ctx, id, func(ctx context.Context, s *Session) error {
		if s.status == schema.DebugStatusCompleted {
			return completedError(s)
		}
		if err := m.fsm.Transition(ctx, s, schema.DebugStatusRunning); err != nil {
			return err
		}
		for s.status == schema.DebugStatusRunning {
			if err := ctx.Err(); err != nil {
				_ = m.fsm.Transition(ctx, s, schema.DebugStatusPaused)
				return schema.NewErrorf(schema.ErrCodeCancelled, "continue interrupted: %v", err).WithCause(err)
			}
			if _, live := m.sessions.Get(s.id); !live {
				return sessionNotFound(s.id)
			}
			if err := m.stepOnce(ctx, s); err != nil {
				return err
			}
		}
		return nil
	})
}

// Pause sets the session to paused without moving it.
func (m *Manager) Pause(ctx context.Context, id string) (*schema.DebugSessionView, error) {
	return m.operate(ctx, id, func(ctx context.Context, s *Session) error {
		return m.fsm.Transition(ctx, s, schema.DebugStatusPaused)
	})
}

// Stop discards the session and returns its final view. A Continue in
// progress finishes its current node first.
func (m *Manager) Stop(ctx context.Context, id string) (*schema.DebugSessionView, error) {
	s, ok := m.sessions.Get(id)
	if !ok || !m.sessions.Delete(id) {
		return nil, sessionNotFound(id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ctx = sessionContext(ctx, s)
	if err := m.fsm.Transition(ctx, s, schema.DebugStatusStopped); err != nil {
		return nil, err
	}
	s.updatedAt = m.now()
	logging.LogWith(ctx, m.logger).Info("debug session stopped", slog.Int("executed", len(s.results)))
	return s.view(), nil
}

// Sweep removes sessions idle for longer than the TTL and returns how many
// were removed.
func (m *Manager) Sweep(now time.Time) int {
	removed := 0
	for _, s := range m.sessions.List() {
		if s.idleSince(now) <= m.ttl {
			continue
		}
		if !m.sessions.Delete(s.id) {
			continue
		}
		removed++
		ctx := sessionContext(context.Background(), s)
		m.publish(ctx, s, schema.EventDebugExpired, map[string]any{"ttl": m.ttl.String()})
		logging.LogWith(ctx, m.logger).Info("debug session expired")
	}
	return removed
}

// Run sweeps every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := m.Sweep(m.now()); n > 0 {
				m.logger.Info("debug sessions swept", slog.Int("removed", n))
			}
		}
	}
}

func (m *Manager) operate(ctx context.Context, id string, fn func(context.Context, *Session) error) (*schema.DebugSessionView, error) {
	s, err := m.session(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == schema.DebugStatusStopped {
		return nil, sessionNotFound(id)
	}
	err = fn(sessionContext(ctx, s), s)
	s.updatedAt = m.now()
	return s.view(), err
}

// stepOnce is the single-step primitive shared by Step and Continue.
func (m *Manager) stepOnce(ctx context.Context, s *Session) error {
	if s.done() {
		return m.fsm.Transition(ctx, s, schema.DebugStatusCompleted)
	}
	node := &s.wf.Nodes[s.index]

	if s.status == schema.DebugStatusRunning && s.isBreakpoint(node.ID) && s.pausedBefore != node.ID {
		s.pausedBefore = node.ID
		logging.LogWith(ctx, m.logger).Info("debug session hit breakpoint", slog.String("node_id", node.ID))
		return m.fsm.Transition(ctx, s, schema.DebugStatusPaused)
	}
	s.pausedBefore = ""

	// Stored node ids are unique in valid workflows; a duplicate is stepped over.
	if !s.executed[node.ID] {
		started := m.now()
		res := m.runner.Execute(ctx, node, s.ec)
		s.ec.Record(node.ID, res)
		s.executed[node.ID] = true
		s.results = append(s.results, schema.NodeResult{
			NodeID:     node.ID,
			NodeType:   node.Type,
			Result:     res,
			StartedAt:  started,
			DurationMs: m.now().Sub(started).Milliseconds(),
		})
		m.publish(ctx, s, schema.EventDebugStepped, map[string]any{
			"nodeId": node.ID, "index": s.index, "success": res.Success,
		})
	}
	s.index++

	switch {
	case s.done():
		return m.fsm.Transition(ctx, s, schema.DebugStatusCompleted)
	case s.stepMode:
		return m.fsm.Transition(ctx, s, schema.DebugStatusPaused)
	default:
		return m.fsm.Transition(ctx, s, schema.DebugStatusRunning)
	}
}

func (m *Manager) session(id string) (*Session, error) {
	s, ok := m.sessions.Get(id)
	if !ok {
		return nil, sessionNotFound(id)
	}
	return s, nil
}

func (m *Manager) publish(ctx context.Context, s *Session, typ string, payload map[string]any) {
	ev := streaming.StreamEvent{
		WorkflowID: s.wf.ID,
		SessionID:  s.id,
		NodeID:     logging.NodeID(ctx),
		EventType:  typ,
		Payload:    payload,
	}
	if err := m.hub.Publish(context.WithoutCancel(ctx), ev); err != nil {
		logging.LogWith(ctx, m.logger).Warn("publish debug event", slog.String("event", typ), slog.Any("error", err))
	}
}

func sessionContext(ctx context.Context, s *Session) context.Context {
	ctx = logging.WithSessionID(ctx, s.id)
	return logging.WithWorkflowID(ctx, s.wf.ID)
}

func sessionNotFound(id string) error {
	return schema.NewErrorf(schema.ErrCodeNotFound, "debug session %s not found", id).WithCause(ErrSessionNotFound)
}

func completedError(s *Session) error {
	return schema.NewErrorf(schema.ErrCodeInvalidTransition, "debug session %s is completed", s.id).
		WithDetails(map[string]any{"session_id": s.id, "from": string(s.status)})
}
