package store

import (
	"context"

	"github.com/rendis/flowgraph/pkg/schema"
)

// WorkflowStore persists workflow definitions. GetWorkflow returns a nil
// workflow and a nil error when the id is unknown.
type WorkflowStore interface {
	SaveWorkflow(ctx context.Context, wf *schema.Workflow) error
	GetWorkflow(ctx context.Context, id string) (*schema.Workflow, error)
	ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*WorkflowSummary, error)
	DeleteWorkflow(ctx context.Context, id string) error
}

// RunStore records run history and the per-run event log.
type RunStore interface {
	CreateRun(ctx context.Context, run *Run) error
	CompleteRun(ctx context.Context, id string, update RunUpdate) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error)

	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, runID string, since int64) ([]*Event, error)
}

// SecretStore holds sealed secret values.
type SecretStore interface {
	StoreSecret(ctx context.Context, key string, value []byte) error
	GetSecret(ctx context.Context, key string) ([]byte, error)
	DeleteSecret(ctx context.Context, key string) error
	ListSecrets(ctx context.Context) ([]string, error)
}

// ScheduleStore persists cron schedules.
type ScheduleStore interface {
	CreateSchedule(ctx context.Context, s *Schedule) error
	GetSchedule(ctx context.Context, id string) (*Schedule, error)
	UpdateSchedule(ctx context.Context, id string, update ScheduleUpdate) error
	ListSchedules(ctx context.Context, filter ScheduleFilter) ([]*Schedule, error)
	DeleteSchedule(ctx context.Context, id string) error
}

// Store is the full persistence contract.
// All implementations must be safe for concurrent use.
type Store interface {
	WorkflowStore
	RunStore
	SecretStore
	ScheduleStore

	Migrate(ctx context.Context) error
	Close() error
}
