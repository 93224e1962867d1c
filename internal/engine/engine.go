// Package engine drives workflow runs: graph traversal, sub-workflow
// invocation and run history.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/flowgraph/internal/actions"
	"github.com/rendis/flowgraph/internal/execution"
	"github.com/rendis/flowgraph/internal/expressions"
	"github.com/rendis/flowgraph/internal/logging"
	"github.com/rendis/flowgraph/internal/secrets"
	"github.com/rendis/flowgraph/internal/store"
	"github.com/rendis/flowgraph/internal/streaming"
	"github.com/rendis/flowgraph/internal/validation"
	"github.com/rendis/flowgraph/pkg/schema"
)

// Config holds the engine's collaborators. Only Workflows is required.
type Config struct {
	Workflows validation.WorkflowGetter
	Runs      store.RunStore           // run history and event log; nil disables both
	Secrets   secrets.Resolver         // last interpolation source; nil disables secrets
	Cards     validation.CardValidator // nil uses the built-in JSON Schema
	Inputs    InputValidator           // nil uses the built-in JSON Schema
	HTTP      actions.HTTPConfig
	Messaging actions.MessagingConfig
	Hub       streaming.EventHub
	Logger    *slog.Logger
}

// Engine executes stored workflows.
type Engine struct {
	workflows validation.WorkflowGetter
	runs      store.RunStore
	executor  *actions.Executor
	traverser *Traverser
	invoker   *Invoker
	inputs    InputValidator
	events    *recorder
	logger    *slog.Logger
}

// New wires the handler registry, node executor, traverser and sub-workflow
// invoker. It fails if any node type has no handler.
func New(cfg Config) (*Engine, error) {
	if cfg.Workflows == nil {
		return nil, schema.NewError(schema.ErrCodeConfig, "engine requires a workflow store")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Cards == nil || cfg.Inputs == nil {
		jsv, err := validation.NewJSONSchemaValidator()
		if err != nil {
			return nil, err
		}
		if cfg.Cards == nil {
			cfg.Cards = jsv
		}
		if cfg.Inputs == nil {
			cfg.Inputs = jsv
		}
	}

	interp := expressions.NewInterpolator(cfg.Secrets)
	reg := actions.NewRegistry()
	sub, err := actions.RegisterBuiltins(reg, actions.BuiltinDeps{
		Interpolator: interp,
		JQ:           expressions.NewJQ(),
		Cards:        cfg.Cards,
		HTTP:         cfg.HTTP,
		Messaging:    cfg.Messaging,
	})
	if err != nil {
		return nil, err
	}
	executor, err := actions.NewExecutor(reg, logger)
	if err != nil {
		return nil, err
	}

	events := &recorder{runs: cfg.Runs, hub: cfg.Hub, logger: logger}
	traverser := NewTraverser(executor, events)
	invoker := &Invoker{
		workflows: cfg.Workflows,
		traverser: traverser,
		interp:    interp,
		inputs:    cfg.Inputs,
		events:    events,
		logger:    logger,
	}
	sub.Bind(invoker)

	return &Engine{
		workflows: cfg.Workflows,
		runs:      cfg.Runs,
		executor:  executor,
		traverser: traverser,
		invoker:   invoker,
		inputs:    cfg.Inputs,
		events:    events,
		logger:    logger,
	}, nil
}

// Executor returns the per-node execution primitive, shared with debug sessions.
func (e *Engine) Executor() *actions.Executor { return e.executor }

// LoadWorkflow fetches a workflow, mapping absence to NOT_FOUND.
func (e *Engine) LoadWorkflow(ctx context.Context, id string) (*schema.Workflow, error) {
	wf, err := e.workflows.GetWorkflow(ctx, id)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "load workflow %s: %v", id, err).WithCause(err)
	}
	if wf == nil {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "workflow %s not found", id)
	}
	return wf, nil
}

// ExecuteOption customizes a single Execute call.
type ExecuteOption func(*executeOptions)

type executeOptions struct {
	trigger string
	meta    map[string]any
	runID   string
}

// WithTrigger records where the run came from. meta is merged into the
// trigger metadata visible to nodes as {_trigger.*}.
func WithTrigger(source string, meta map[string]any) ExecuteOption {
	return func(o *executeOptions) {
		o.trigger = source
		o.meta = meta
	}
}

// WithRunID sets the run id instead of generating one.
func WithRunID(id string) ExecuteOption {
	return func(o *executeOptions) { o.runID = id }
}

func buildOptions(opts []ExecuteOption) executeOptions {
	o := executeOptions{trigger: store.TriggerAPI}
	for _, opt := range opts {
		opt(&o)
	}
	if o.runID == "" {
		o.runID = uuid.NewString()
	}
	return o
}

// NewContext seeds an execution context for wf: input is copied, trigger
// metadata recorded, parameter defaults applied, required and typed
// parameters checked, and wf pushed onto the execution stack.
func (e *Engine) NewContext(wf *schema.Workflow, input map[string]any, opts ...ExecuteOption) (*execution.Context, error) {
	o := buildOptions(opts)
	ec := execution.New(input)

	trigger := map[string]any{
		"source":      o.trigger,
		"received_at": time.Now().UTC().Format(time.RFC3339),
	}
	maps.Copy(trigger, o.meta)
	ec.Set(execution.TriggerKey, trigger)

	if err := prepareVars(wf.InputParams, ec.Vars, e.inputs, schema.ErrCodeValidation); err != nil {
		return nil, err
	}
	ec.Stack().Push(wf.ID)
	return ec, nil
}

// Execute runs a stored workflow to completion. Node failures do not produce
// an error: the returned RunResult carries success=false and every result
// recorded up to that point. Errors are reserved for runs that could not
// start (unknown workflow, invalid input, store failure).
func (e *Engine) Execute(ctx context.Context, workflowID string, input map[string]any, opts ...ExecuteOption) (*schema.RunResult, error) {
	wf, err := e.LoadWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	return e.Run(ctx, wf, input, opts...)
}

// Run executes wf, which need not be stored, against input.
func (e *Engine) Run(ctx context.Context, wf *schema.Workflow, input map[string]any, opts ...ExecuteOption) (*schema.RunResult, error) {
	o := buildOptions(opts)
	opts = append(opts, WithRunID(o.runID))
	ctx = logging.WithRunID(logging.WithWorkflowID(ctx, wf.ID), o.runID)
	log := logging.LogWith(ctx, e.logger)

	ec, err := e.NewContext(wf, input, opts...)
	if err != nil {
		return nil, err
	}

	started := time.Now().UTC()
	if e.runs != nil {
		run := &store.Run{
			ID:         o.runID,
			WorkflowID: wf.ID,
			Trigger:    o.trigger,
			Status:     schema.RunStatusRunning,
			Input:      input,
			StartedAt:  started,
		}
		if err := e.runs.CreateRun(ctx, run); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeStore, "create run: %v", err).WithCause(err)
		}
	}
	e.events.emit(ctx, wf.ID, "", schema.EventRunStarted, map[string]any{"trigger": o.trigger})
	log.Info("run started", slog.String("trigger", o.trigger))

	results := e.traverser.Run(ctx, wf, ec)

	res := &schema.RunResult{
		RunID:         o.runID,
		WorkflowID:    wf.ID,
		Success:       schema.TraceSucceeded(results),
		Results:       results,
		FinalContext:  ec.Snapshot(),
		ExecutedNodes: schema.ExecutedNodeIDs(results),
		StartedAt:     started,
		CompletedAt:   time.Now().UTC(),
	}
	if res.Results == nil {
		res.Results = []schema.NodeResult{}
	}
	status, evType := schema.RunStatusCompleted, schema.EventRunCompleted
	if failed := schema.FirstFailure(results); failed != nil {
		res.Error = fmt.Sprintf("node %s: %s", failed.NodeID, failed.Result.Error)
		status, evType = schema.RunStatusFailed, schema.EventRunFailed
	}

	e.events.emit(ctx, wf.ID, "", evType, map[string]any{
		"success":       res.Success,
		"executedNodes": res.ExecutedNodes,
		"error":         res.Error,
	})
	e.completeRun(ctx, res, status)
	log.Info("run finished",
		slog.Bool("success", res.Success),
		slog.Int("nodes", len(results)),
		slog.Duration("duration", res.CompletedAt.Sub(started)))
	return res, nil
}

func (e *Engine) completeRun(ctx context.Context, res *schema.RunResult, status schema.RunStatus) {
	if e.runs == nil {
		return
	}
	raw, err := json.Marshal(res)
	if err != nil {
		logging.LogWith(ctx, e.logger).Warn("marshal run result", slog.Any("error", err))
		raw = nil
	}
	update := store.RunUpdate{Status: status, Result: raw, Error: res.Error, CompletedAt: res.CompletedAt}
	if err := e.runs.CompleteRun(context.WithoutCancel(ctx), res.RunID, update); err != nil {
		logging.LogWith(ctx, e.logger).Warn("complete run", slog.Any("error", err))
	}
}
