// Package streaming fans run and debug-session events out to in-process subscribers.
package streaming

import (
	"context"
	"time"
)

// StreamEvent is a real-time event emitted while a run or debug session progresses.
type StreamEvent struct {
	WorkflowID string    `json:"workflow_id"`
	RunID      string    `json:"run_id,omitempty"`
	SessionID  string    `json:"session_id,omitempty"`
	NodeID     string    `json:"node_id,omitempty"`
	EventType  string    `json:"event_type"`
	Payload    any       `json:"payload,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// EventFilter specifies which events a subscriber wants to receive.
// Empty fields match everything.
type EventFilter struct {
	WorkflowID string   `json:"workflow_id,omitempty"`
	RunID      string   `json:"run_id,omitempty"`
	SessionID  string   `json:"session_id,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// EventHub provides pub/sub for real-time execution events.
type EventHub interface {
	Publish(ctx context.Context, event StreamEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error)
}

// Nop discards every event. Used when no hub is configured.
type Nop struct{}

func (Nop) Publish(context.Context, StreamEvent) error { return nil }

func (Nop) Subscribe(ctx context.Context, _ EventFilter) (<-chan StreamEvent, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	ch := make(chan StreamEvent)
	close(ch)
	return ch, func() {}, nil
}
