package schema

// Event type constants for the run event log and stream.
const (
	EventRunStarted   = "run_started"
	EventRunCompleted = "run_completed"
	EventRunFailed    = "run_failed"

	EventNodeStarted   = "node_started"
	EventNodeCompleted = "node_completed"
	EventNodeFailed    = "node_failed"

	EventSubWorkflowStarted   = "sub_workflow_started"
	EventSubWorkflowCompleted = "sub_workflow_completed"

	EventDebugStarted   = "debug_started"
	EventDebugStepped   = "debug_stepped"
	EventDebugPaused    = "debug_paused"
	EventDebugResumed   = "debug_resumed"
	EventDebugCompleted = "debug_completed"
	EventDebugStopped   = "debug_stopped"
	EventDebugExpired   = "debug_expired"

	EventScheduleFired = "schedule_fired"
)

// DebugStatus represents the lifecycle state of a debug session.
type DebugStatus string

const (
	DebugStatusReady     DebugStatus = "ready"
	DebugStatusRunning   DebugStatus = "running"
	DebugStatusPaused    DebugStatus = "paused"
	DebugStatusCompleted DebugStatus = "completed"
	DebugStatusStopped   DebugStatus = "stopped"
)

// RunStatus is the recorded state of a run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)
