package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rendis/flowgraph/pkg/schema"
)

// AppendEvent appends an event with a monotonically increasing per-run sequence.
// The store runs on a single connection, so the read-then-insert inside the
// transaction cannot interleave with another writer.
func (s *LibSQLStore) AppendEvent(ctx context.Context, event *Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM events WHERE run_id = ?`, event.RunID,
	).Scan(&seq); err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}
	event.Sequence = seq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO events (run_id, workflow_id, node_id, event_type, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.RunID, event.WorkflowID, nullStr(event.NodeID), event.Type, nullRaw(event.Payload), event.Timestamp, seq,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		event.ID = id
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit event: %w", err)
	}
	return nil
}

// GetEvents returns events for a run with sequence > since, ordered by sequence.
func (s *LibSQLStore) GetEvents(ctx context.Context, runID string, since int64) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, workflow_id, node_id, event_type, payload, timestamp, sequence
		 FROM events WHERE run_id = ? AND sequence > ? ORDER BY sequence`, runID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e := &Event{}
		var nodeID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.RunID, &e.WorkflowID, &nodeID, &e.Type, &payload, &e.Timestamp, &e.Sequence); err != nil {
			return nil, err
		}
		e.NodeID = nodeID.String
		e.Payload = rawOrNil(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}

// ReplayRun rebuilds per-node state from a run's event log. Sequence gaps
// are reported as STORE_ERROR.
func ReplayRun(ctx context.Context, runs RunStore, runID string) (map[string]*NodeState, error) {
	events, err := runs.GetEvents(ctx, runID, 0)
	if err != nil {
		return nil, fmt.Errorf("get events for replay: %w", err)
	}

	for i, e := range events {
		if expected := int64(i + 1); e.Sequence != expected {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"sequence gap in run %s: expected %d, got %d", runID, expected, e.Sequence)
		}
	}

	states := make(map[string]*NodeState)
	for _, e := range events {
		if e.NodeID == "" {
			continue
		}
		ns, ok := states[e.NodeID]
		if !ok {
			ns = &NodeState{NodeID: e.NodeID}
			states[e.NodeID] = ns
		}

		ts := e.Timestamp
		switch e.Type {
		case schema.EventNodeStarted:
			ns.Status = "started"
			ns.StartedAt = &ts
		case schema.EventNodeCompleted, schema.EventNodeFailed:
			ns.Status = "completed"
			if e.Type == schema.EventNodeFailed {
				ns.Status = "failed"
			}
			ns.CompletedAt = &ts
			ns.Output = e.Payload
			if ns.StartedAt != nil {
				ns.DurationMs = ts.Sub(*ns.StartedAt).Milliseconds()
			}
		}
	}
	return states, nil
}
