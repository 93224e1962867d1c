package engine

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/rendis/flowgraph/internal/logging"
	"github.com/rendis/flowgraph/internal/store"
	"github.com/rendis/flowgraph/internal/streaming"
	"github.com/rendis/flowgraph/pkg/schema"
)

// recorder appends node and run events to the run's event log and publishes
// them to the hub. Either sink may be nil. Failures are logged, never returned:
// history is best effort and must not change a run's outcome.
type recorder struct {
	runs   store.RunStore
	hub    streaming.EventHub
	logger *slog.Logger
}

func (r *recorder) NodeStarted(ctx context.Context, wf *schema.Workflow, node *schema.Node) {
	r.emit(ctx, wf.ID, node.ID, schema.EventNodeStarted, map[string]any{"type": node.Type})
}

func (r *recorder) NodeFinished(ctx context.Context, wf *schema.Workflow, entry schema.NodeResult) {
	typ := schema.EventNodeCompleted
	if entry.Result == nil || !entry.Result.Success {
		typ = schema.EventNodeFailed
	}
	r.emit(ctx, wf.ID, entry.NodeID, typ, entry.Result)
}

func (r *recorder) subWorkflow(ctx context.Context, wf *schema.Workflow, parent *schema.Node, typ string, payload map[string]any) {
	if payload == nil {
		payload = map[string]any{}
	}
	payload["parentNode"] = parent.ID
	r.emit(ctx, wf.ID, "", typ, payload)
}

func (r *recorder) emit(ctx context.Context, workflowID, nodeID, typ string, payload any) {
	if r == nil {
		return
	}
	runID := logging.RunID(ctx)
	// A cancelled run still gets its final events written.
	bg := context.WithoutCancel(ctx)

	if r.runs != nil && runID != "" {
		raw, err := json.Marshal(payload)
		if err != nil {
			raw = nil
		}
		ev := &store.Event{RunID: runID, WorkflowID: workflowID, NodeID: nodeID, Type: typ, Payload: raw}
		if err := r.runs.AppendEvent(bg, ev); err != nil {
			logging.LogWith(ctx, r.logger).Warn("append run event", slog.String("event", typ), slog.Any("error", err))
		}
	}

	if r.hub != nil {
		ev := streaming.StreamEvent{
			WorkflowID: workflowID,
			RunID:      runID,
			SessionID:  logging.SessionID(ctx),
			NodeID:     nodeID,
			EventType:  typ,
			Payload:    payload,
		}
		if err := r.hub.Publish(bg, ev); err != nil {
			logging.LogWith(ctx, r.logger).Debug("publish event", slog.String("event", typ), slog.Any("error", err))
		}
	}
}
