package schema

import (
	"errors"
	"time"
)

// ExecutionResult is the universal return contract of node execution.
// Branch is populated only by branching node types.
type ExecutionResult struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Branch  string `json:"branch,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// Succeeded builds a successful result.
func Succeeded(data any) *ExecutionResult {
	return &ExecutionResult{Success: true, Data: data}
}

// Failed builds a failed result from a FlowError or a plain error.
func Failed(err error) *ExecutionResult {
	r := &ExecutionResult{Success: false, Error: err.Error(), Code: ErrorCode(err)}
	var fe *FlowError
	if errors.As(err, &fe) {
		r.Error = fe.Message
		if len(fe.Details) > 0 {
			r.Details = fe.Details
		}
	}
	return r
}

// NodeResult is one entry of a run trace.
type NodeResult struct {
	NodeID     string           `json:"nodeId"`
	NodeType   NodeType         `json:"nodeType"`
	Result     *ExecutionResult `json:"result"`
	StartedAt  time.Time        `json:"startedAt"`
	DurationMs int64            `json:"durationMs"`
}

// RunResult is what the run trigger returns for one top-level execution.
// Partial results are always included, even when Success is false.
type RunResult struct {
	RunID         string         `json:"runId"`
	WorkflowID    string         `json:"workflowId"`
	Success       bool           `json:"success"`
	Results       []NodeResult   `json:"results"`
	FinalContext  map[string]any `json:"finalContext"`
	ExecutedNodes []string       `json:"executedNodes"`
	Error         string         `json:"error,omitempty"`
	StartedAt     time.Time      `json:"startedAt"`
	CompletedAt   time.Time      `json:"completedAt"`
}

// TraceSucceeded reports whether no entry of the trace failed.
func TraceSucceeded(results []NodeResult) bool {
	for _, r := range results {
		if r.Result == nil || !r.Result.Success {
			return false
		}
	}
	return true
}

// FirstFailure returns the first failed entry of the trace, or nil.
func FirstFailure(results []NodeResult) *NodeResult {
	for i := range results {
		if results[i].Result == nil || !results[i].Result.Success {
			return &results[i]
		}
	}
	return nil
}

// ExecutedNodeIDs returns the node ids of the trace in execution order.
func ExecutedNodeIDs(results []NodeResult) []string {
	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.NodeID)
	}
	return ids
}
