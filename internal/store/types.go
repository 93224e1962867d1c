package store

import (
	"encoding/json"
	"time"

	"github.com/rendis/flowgraph/pkg/schema"
)

// WorkflowSummary is a listing entry for a stored workflow.
type WorkflowSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Composed    bool      `json:"composed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Trigger sources recorded on runs.
const (
	TriggerAPI      = "api"
	TriggerWebhook  = "webhook"
	TriggerSchedule = "schedule"
	TriggerCLI      = "cli"
	TriggerMCP      = "mcp"
	TriggerDebug    = "debug"
)

// Run is the persisted record of one top-level execution.
type Run struct {
	ID          string           `json:"id"`
	WorkflowID  string           `json:"workflow_id"`
	Trigger     string           `json:"trigger"`
	Status      schema.RunStatus `json:"status"`
	Input       map[string]any   `json:"input,omitempty"`
	Result      json.RawMessage  `json:"result,omitempty"`
	Error       string           `json:"error,omitempty"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// RunUpdate finalizes a run.
type RunUpdate struct {
	Status      schema.RunStatus `json:"status"`
	Result      json.RawMessage  `json:"result,omitempty"`
	Error       string           `json:"error,omitempty"`
	CompletedAt time.Time        `json:"completed_at"`
}

// Event is an immutable entry in a run's event log.
type Event struct {
	ID         int64           `json:"id"`
	RunID      string          `json:"run_id"`
	WorkflowID string          `json:"workflow_id"`
	NodeID     string          `json:"node_id,omitempty"`
	Type       string          `json:"event_type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Sequence   int64           `json:"sequence"`
}

// NodeState is the state of one node reconstructed from the event log.
type NodeState struct {
	NodeID      string          `json:"node_id"`
	Status      string          `json:"status"` // started | completed | failed
	Output      json.RawMessage `json:"output,omitempty"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	DurationMs  int64           `json:"duration_ms,omitempty"`
}

// Schedule is a cron-triggered execution of a stored workflow.
type Schedule struct {
	ID             string         `json:"id"`
	WorkflowID     string         `json:"workflow_id"`
	CronExpression string         `json:"cron_expression"`
	Input          map[string]any `json:"input,omitempty"`
	Enabled        bool           `json:"enabled"`
	LastRunAt      *time.Time     `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time     `json:"next_run_at,omitempty"`
	LastRunStatus  string         `json:"last_run_status,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// --- Filter and update types ---

// WorkflowFilter specifies criteria for listing workflows.
type WorkflowFilter struct {
	Name   string `json:"name,omitempty"` // substring match
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	WorkflowID string            `json:"workflow_id,omitempty"`
	Status     *schema.RunStatus `json:"status,omitempty"`
	Since      *time.Time        `json:"since,omitempty"`
	Limit      int               `json:"limit,omitempty"`
}

// ScheduleUpdate specifies mutable fields of a schedule.
type ScheduleUpdate struct {
	Enabled       *bool      `json:"enabled,omitempty"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	NextRunAt     *time.Time `json:"next_run_at,omitempty"`
	LastRunStatus string     `json:"last_run_status,omitempty"`
}

// ScheduleFilter specifies criteria for listing schedules.
type ScheduleFilter struct {
	Enabled    *bool  `json:"enabled,omitempty"`
	WorkflowID string `json:"workflow_id,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}
