package scheduler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowgraph/internal/engine"
	"github.com/rendis/flowgraph/internal/execution"
	"github.com/rendis/flowgraph/internal/store"
	"github.com/rendis/flowgraph/internal/streaming"
	"github.com/rendis/flowgraph/pkg/schema"
)

// mockRunner records Execute calls.
type mockRunner struct {
	mu      sync.Mutex
	calls   []runCall
	err     error
	failRun bool
}

type runCall struct {
	WorkflowID string
	Input      map[string]any
}

func (r *mockRunner) Execute(_ context.Context, workflowID string, input map[string]any, _ ...engine.ExecuteOption) (*schema.RunResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, runCall{WorkflowID: workflowID, Input: input})
	if r.err != nil {
		return nil, r.err
	}
	return &schema.RunResult{RunID: "run-1", WorkflowID: workflowID, Success: !r.failRun}, nil
}

func (r *mockRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *mockRunner) workflows() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.calls))
	for i, c := range r.calls {
		out[i] = c.WorkflowID
	}
	return out
}

var testNow = time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

func newTestScheduler(s store.ScheduleStore, runner Runner) *Scheduler {
	return NewScheduler(s, runner, Config{
		Pool:   NewPool(2),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:    func() time.Time { return testNow },
	})
}

// tickAndWait runs one polling pass and waits for dispatched runs.
func tickAndWait(s *Scheduler) int {
	n := s.tick(context.Background())
	s.pool.Wait()
	return n
}

func addSchedule(t *testing.T, ms *store.MemoryStore, id, workflowID string, enabled bool, next *time.Time) {
	t.Helper()
	require.NoError(t, ms.CreateSchedule(context.Background(), &store.Schedule{
		ID:             id,
		WorkflowID:     workflowID,
		CronExpression: "0 * * * *",
		Enabled:        enabled,
		NextRunAt:      next,
	}))
}

func at(d time.Duration) *time.Time {
	t := testNow.Add(d)
	return &t
}

func TestCalculateNextRun(t *testing.T) {
	sched := newTestScheduler(store.NewMemoryStore(), &mockRunner{})
	from := testNow

	next, err := sched.CalculateNextRun("0 * * * *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 10, 13, 0, 0, 0, time.UTC), next)

	next, err = sched.CalculateNextRun("*/15 * * * *", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 10, 12, 15, 0, 0, time.UTC), next)

	next, err = sched.CalculateNextRun("@daily", from)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 2, 11, 0, 0, 0, 0, time.UTC), next)

	_, err = sched.CalculateNextRun("invalid cron", from)
	require.Error(t, err)
}

func TestCreate(t *testing.T) {
	ms := store.NewMemoryStore()
	sched := newTestScheduler(ms, &mockRunner{})

	sc, err := sched.Create(context.Background(), "wf-1", "*/15 * * * *", map[string]any{"env": "staging"})
	require.NoError(t, err)
	assert.True(t, sc.Enabled)
	require.NotNil(t, sc.NextRunAt)
	assert.Equal(t, time.Date(2026, 2, 10, 12, 15, 0, 0, time.UTC), *sc.NextRunAt)

	got, err := ms.GetSchedule(context.Background(), sc.ID)
	require.NoError(t, err)
	assert.Equal(t, "wf-1", got.WorkflowID)

	_, err = sched.Create(context.Background(), "wf-1", "every tuesday", nil)
	assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))
	_, err = sched.Create(context.Background(), "", "@hourly", nil)
	assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))
}

func TestTickRunsDueSchedules(t *testing.T) {
	ms := store.NewMemoryStore()
	runner := &mockRunner{}
	sched := newTestScheduler(ms, runner)
	addSchedule(t, ms, "sc-1", "wf-1", true, at(-time.Hour))

	assert.Equal(t, 1, tickAndWait(sched))
	assert.Equal(t, 1, runner.callCount())

	got, err := ms.GetSchedule(context.Background(), "sc-1")
	require.NoError(t, err)
	require.NotNil(t, got.LastRunAt)
	assert.Equal(t, testNow, *got.LastRunAt)
	assert.Equal(t, time.Date(2026, 2, 10, 13, 0, 0, 0, time.UTC), *got.NextRunAt)
	assert.Equal(t, StatusSuccess, got.LastRunStatus)
}

func TestTickSkipsFutureAndDisabled(t *testing.T) {
	ms := store.NewMemoryStore()
	runner := &mockRunner{}
	sched := newTestScheduler(ms, runner)
	addSchedule(t, ms, "future", "wf-1", true, at(time.Hour))
	addSchedule(t, ms, "disabled", "wf-2", false, at(-time.Hour))

	assert.Zero(t, tickAndWait(sched))
	assert.Zero(t, runner.callCount())
}

func TestTickWithNilNextRunAt(t *testing.T) {
	ms := store.NewMemoryStore()
	runner := &mockRunner{}
	sched := newTestScheduler(ms, runner)
	addSchedule(t, ms, "fresh", "wf-1", true, nil)

	tickAndWait(sched)
	assert.Equal(t, 1, runner.callCount())
}

func TestMultipleSchedulesSomeDue(t *testing.T) {
	ms := store.NewMemoryStore()
	runner := &mockRunner{}
	sched := newTestScheduler(ms, runner)
	addSchedule(t, ms, "due-1", "alpha", true, at(-time.Hour))
	addSchedule(t, ms, "not-due", "beta", true, at(time.Hour))
	addSchedule(t, ms, "due-2", "gamma", true, nil)

	tickAndWait(sched)
	assert.ElementsMatch(t, []string{"alpha", "gamma"}, runner.workflows())
}

func TestRunStatuses(t *testing.T) {
	cases := []struct {
		name   string
		runner *mockRunner
		want   string
	}{
		{"success", &mockRunner{}, StatusSuccess},
		{"node failure", &mockRunner{failRun: true}, StatusFailed},
		{"could not start", &mockRunner{err: schema.NewError(schema.ErrCodeNotFound, "workflow wf-1 not found")}, StatusError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ms := store.NewMemoryStore()
			sched := newTestScheduler(ms, tc.runner)
			addSchedule(t, ms, "sc", "wf-1", true, at(-time.Minute))

			tickAndWait(sched)
			got, err := ms.GetSchedule(context.Background(), "sc")
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.LastRunStatus)
			assert.NotNil(t, got.NextRunAt)
		})
	}

	failing := &mockRunner{err: assert.AnError}
	ms := store.NewMemoryStore()
	sched := newTestScheduler(ms, failing)
	addSchedule(t, ms, "sc", "wf-1", true, at(-time.Minute))
	tickAndWait(sched)
	assert.Equal(t, int64(1), sched.Metrics().Failed)
}

func TestMissedRecovery(t *testing.T) {
	ms := store.NewMemoryStore()
	runner := &mockRunner{}
	sched := newTestScheduler(ms, runner)
	addSchedule(t, ms, "missed", "cleanup", true, at(-2*time.Hour))
	addSchedule(t, ms, "never-run", "other", true, nil)

	require.NoError(t, sched.RecoverMissed(context.Background()))
	assert.Equal(t, []string{"cleanup"}, runner.workflows())

	got, err := ms.GetSchedule(context.Background(), "missed")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, got.LastRunStatus)
	assert.True(t, got.NextRunAt.After(testNow))
}

func TestDedupPreventsDoubleRun(t *testing.T) {
	ms := store.NewMemoryStore()
	runner := &mockRunner{}
	sched := newTestScheduler(ms, runner)
	addSchedule(t, ms, "dedup", "wf-1", true, at(-time.Hour))

	require.True(t, sched.tryAcquire("dedup"))
	tickAndWait(sched)
	assert.Zero(t, runner.callCount())

	sched.release("dedup")
	tickAndWait(sched)
	assert.Equal(t, 1, runner.callCount())
}

func TestDedupReleasedAfterRun(t *testing.T) {
	ms := store.NewMemoryStore()
	runner := &mockRunner{}
	sched := newTestScheduler(ms, runner)
	addSchedule(t, ms, "again", "wf-1", true, at(-time.Hour))

	tickAndWait(sched)
	require.NoError(t, ms.UpdateSchedule(context.Background(), "again", store.ScheduleUpdate{NextRunAt: at(-time.Minute)}))
	tickAndWait(sched)
	assert.Equal(t, 2, runner.callCount())
}

func TestStartStop(t *testing.T) {
	sched := newTestScheduler(store.NewMemoryStore(), &mockRunner{})
	ctx := context.Background()

	require.NoError(t, sched.Start(ctx))
	err := sched.Start(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")

	require.NoError(t, sched.Stop())
	require.NoError(t, sched.Stop())
}

func TestScheduledRunThroughEngine(t *testing.T) {
	ms := store.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, ms.SaveWorkflow(ctx, &schema.Workflow{
		ID:    "nightly",
		Nodes: []schema.Node{{ID: "start", Type: schema.NodeTypeTrigger}},
	}))
	eng, err := engine.New(engine.Config{Workflows: ms, Runs: ms, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	require.NoError(t, err)

	hub := streaming.NewMemoryHub()
	events, cancel, err := hub.Subscribe(ctx, streaming.EventFilter{EventTypes: []string{schema.EventScheduleFired}})
	require.NoError(t, err)
	defer cancel()

	sched := NewScheduler(ms, eng, Config{
		Hub:    hub,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:    func() time.Time { return testNow },
	})
	addSchedule(t, ms, "sc-nightly", "nightly", true, at(-time.Minute))
	tickAndWait(sched)

	ev := <-events
	assert.Equal(t, "nightly", ev.WorkflowID)
	assert.Equal(t, "sc-nightly", ev.Payload.(map[string]any)["scheduleId"])

	runs, err := ms.ListRuns(ctx, store.RunFilter{WorkflowID: "nightly"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.TriggerSchedule, runs[0].Trigger)

	var result schema.RunResult
	require.NoError(t, json.Unmarshal(runs[0].Result, &result))
	trigger, ok := result.FinalContext[execution.TriggerKey].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "sc-nightly", trigger["schedule_id"])
}
