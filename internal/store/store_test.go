package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowgraph/pkg/schema"
)

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	s, err := NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() {
		_ = s.Close()
		_ = os.RemoveAll(dir)
	})
	return s
}

// eachStore runs fn against every Store implementation.
func eachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("libsql", func(t *testing.T) { fn(t, newTestStore(t)) })
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore()) })
}

func sampleWorkflow(id string) *schema.Workflow {
	return &schema.Workflow{
		ID:          id,
		Name:        "wf-" + id,
		Description: "sample",
		Nodes: []schema.Node{
			{ID: "start", Type: schema.NodeTypeTrigger},
			{ID: "call", Type: schema.NodeTypeHTTPRequest, Config: schema.MustConfig(schema.HTTPRequestConfig{URL: "https://example.com"})},
		},
		Edges:       []schema.Edge{{Source: "start", Target: "call"}},
		InputParams: []schema.Param{{Name: "orderId", Required: true}},
	}
}

// --- Workflow Tests ---

func TestWorkflowRoundTrip(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		wf := sampleWorkflow("w1")
		require.NoError(t, s.SaveWorkflow(ctx, wf))

		got, err := s.GetWorkflow(ctx, "w1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "wf-w1", got.Name)
		require.Len(t, got.Nodes, 2)
		assert.Equal(t, schema.NodeTypeHTTPRequest, got.Nodes[1].Type)
		assert.JSONEq(t, `{"url":"https://example.com"}`, string(got.Nodes[1].Config))
		assert.Equal(t, "orderId", got.InputParams[0].Name)

		// Mutating the returned copy must not leak into the store.
		got.Name = "changed"
		again, err := s.GetWorkflow(ctx, "w1")
		require.NoError(t, err)
		assert.Equal(t, "wf-w1", again.Name)
	})
}

func TestGetWorkflow_AbsentIsNilNil(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		wf, err := s.GetWorkflow(context.Background(), "missing")
		assert.NoError(t, err)
		assert.Nil(t, wf)
	})
}

func TestSaveWorkflow_Upsert(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		wf := sampleWorkflow("w1")
		require.NoError(t, s.SaveWorkflow(ctx, wf))

		wf.Name = "renamed"
		wf.Composed = true
		require.NoError(t, s.SaveWorkflow(ctx, wf))

		list, err := s.ListWorkflows(ctx, WorkflowFilter{})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "renamed", list[0].Name)
		assert.True(t, list[0].Composed)
	})
}

func TestSaveWorkflow_RequiresID(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		err := s.SaveWorkflow(context.Background(), &schema.Workflow{Name: "no id"})
		assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))
	})
}

func TestListWorkflows_FilterAndPaginate(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for _, id := range []string{"alpha", "beta", "gamma"} {
			require.NoError(t, s.SaveWorkflow(ctx, sampleWorkflow(id)))
		}

		all, err := s.ListWorkflows(ctx, WorkflowFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 3)

		filtered, err := s.ListWorkflows(ctx, WorkflowFilter{Name: "bet"})
		require.NoError(t, err)
		require.Len(t, filtered, 1)
		assert.Equal(t, "beta", filtered[0].ID)

		page, err := s.ListWorkflows(ctx, WorkflowFilter{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, page, 2)

		rest, err := s.ListWorkflows(ctx, WorkflowFilter{Limit: 2, Offset: 2})
		require.NoError(t, err)
		assert.Len(t, rest, 1)
	})
}

func TestDeleteWorkflow(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.SaveWorkflow(ctx, sampleWorkflow("w1")))
		require.NoError(t, s.DeleteWorkflow(ctx, "w1"))

		wf, err := s.GetWorkflow(ctx, "w1")
		require.NoError(t, err)
		assert.Nil(t, wf)

		err = s.DeleteWorkflow(ctx, "w1")
		assert.Equal(t, schema.ErrCodeNotFound, schema.ErrorCode(err))
	})
}

// --- Run Tests ---

func TestRunLifecycle(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		run := &Run{
			ID:         uuid.New().String(),
			WorkflowID: "w1",
			Trigger:    TriggerAPI,
			Input:      map[string]any{"orderId": "A-1"},
		}
		require.NoError(t, s.CreateRun(ctx, run))

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, schema.RunStatusRunning, got.Status)
		assert.Equal(t, TriggerAPI, got.Trigger)
		assert.Equal(t, "A-1", got.Input["orderId"])
		assert.Nil(t, got.CompletedAt)

		result := json.RawMessage(`{"success":false}`)
		require.NoError(t, s.CompleteRun(ctx, run.ID, RunUpdate{
			Status: schema.RunStatusFailed,
			Result: result,
			Error:  "404 Not Found",
		}))

		got, err = s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, schema.RunStatusFailed, got.Status)
		assert.Equal(t, "404 Not Found", got.Error)
		assert.JSONEq(t, string(result), string(got.Result))
		require.NotNil(t, got.CompletedAt)
	})
}

func TestRunNotFound(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		_, err := s.GetRun(ctx, "nope")
		assert.Equal(t, schema.ErrCodeNotFound, schema.ErrorCode(err))

		err = s.CompleteRun(ctx, "nope", RunUpdate{Status: schema.RunStatusCompleted})
		assert.Equal(t, schema.ErrCodeNotFound, schema.ErrorCode(err))
	})
}

func TestListRuns_Filters(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		base := time.Now().UTC().Add(-time.Hour)
		for i, wf := range []string{"w1", "w1", "w2"} {
			require.NoError(t, s.CreateRun(ctx, &Run{
				ID:         uuid.New().String(),
				WorkflowID: wf,
				Trigger:    TriggerSchedule,
				StartedAt:  base.Add(time.Duration(i) * time.Minute),
			}))
		}

		w1, err := s.ListRuns(ctx, RunFilter{WorkflowID: "w1"})
		require.NoError(t, err)
		assert.Len(t, w1, 2)
		assert.True(t, !w1[0].StartedAt.Before(w1[1].StartedAt), "newest first")

		running := schema.RunStatusRunning
		all, err := s.ListRuns(ctx, RunFilter{Status: &running, Limit: 2})
		require.NoError(t, err)
		assert.Len(t, all, 2)

		since := base.Add(90 * time.Second)
		recent, err := s.ListRuns(ctx, RunFilter{Since: &since})
		require.NoError(t, err)
		require.Len(t, recent, 1)
		assert.Equal(t, "w2", recent[0].WorkflowID)
	})
}

// --- Event Tests ---

func TestAppendEvent_SequencePerRun(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for i := 0; i < 3; i++ {
			require.NoError(t, s.AppendEvent(ctx, &Event{RunID: "r1", WorkflowID: "w1", Type: schema.EventNodeStarted, NodeID: "n"}))
		}
		other := &Event{RunID: "r2", WorkflowID: "w1", Type: schema.EventRunStarted}
		require.NoError(t, s.AppendEvent(ctx, other))
		assert.Equal(t, int64(1), other.Sequence)

		events, err := s.GetEvents(ctx, "r1", 0)
		require.NoError(t, err)
		require.Len(t, events, 3)
		for i, e := range events {
			assert.Equal(t, int64(i+1), e.Sequence)
		}

		tail, err := s.GetEvents(ctx, "r1", 2)
		require.NoError(t, err)
		require.Len(t, tail, 1)
		assert.Equal(t, int64(3), tail[0].Sequence)
	})
}

func TestReplayRun(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		t0 := time.Now().UTC().Truncate(time.Millisecond)
		events := []*Event{
			{Type: schema.EventRunStarted, Timestamp: t0},
			{Type: schema.EventNodeStarted, NodeID: "a", Timestamp: t0},
			{Type: schema.EventNodeCompleted, NodeID: "a", Timestamp: t0.Add(20 * time.Millisecond), Payload: json.RawMessage(`{"success":true}`)},
			{Type: schema.EventNodeStarted, NodeID: "b", Timestamp: t0.Add(30 * time.Millisecond)},
			{Type: schema.EventNodeFailed, NodeID: "b", Timestamp: t0.Add(40 * time.Millisecond)},
			{Type: schema.EventNodeStarted, NodeID: "c", Timestamp: t0.Add(50 * time.Millisecond)},
		}
		for _, e := range events {
			e.RunID, e.WorkflowID = "r1", "w1"
			require.NoError(t, s.AppendEvent(ctx, e))
		}

		states, err := ReplayRun(ctx, s, "r1")
		require.NoError(t, err)
		require.Len(t, states, 3)
		assert.Equal(t, "completed", states["a"].Status)
		assert.Equal(t, int64(20), states["a"].DurationMs)
		assert.JSONEq(t, `{"success":true}`, string(states["a"].Output))
		assert.Equal(t, "failed", states["b"].Status)
		assert.Equal(t, "started", states["c"].Status)
		assert.Nil(t, states["c"].CompletedAt)
	})
}

// gappyRuns serves a fixed event list so ReplayRun's gap check can be hit.
type gappyRuns struct {
	RunStore
	events []*Event
}

func (g gappyRuns) GetEvents(context.Context, string, int64) ([]*Event, error) {
	return g.events, nil
}

func TestReplayRun_SequenceGap(t *testing.T) {
	runs := gappyRuns{events: []*Event{{Sequence: 1}, {Sequence: 3}}}
	_, err := ReplayRun(context.Background(), runs, "r1")
	assert.Equal(t, schema.ErrCodeStore, schema.ErrorCode(err))
}

// --- Secret Tests ---

func TestSecrets(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.StoreSecret(ctx, "LINE_TOKEN", []byte("sealed-1")))
		require.NoError(t, s.StoreSecret(ctx, "API_KEY", []byte("sealed-2")))
		require.NoError(t, s.StoreSecret(ctx, "LINE_TOKEN", []byte("rotated")))

		v, err := s.GetSecret(ctx, "LINE_TOKEN")
		require.NoError(t, err)
		assert.Equal(t, []byte("rotated"), v)

		keys, err := s.ListSecrets(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"API_KEY", "LINE_TOKEN"}, keys)

		require.NoError(t, s.DeleteSecret(ctx, "API_KEY"))
		_, err = s.GetSecret(ctx, "API_KEY")
		assert.Equal(t, schema.ErrCodeNotFound, schema.ErrorCode(err))
		assert.Equal(t, schema.ErrCodeNotFound, schema.ErrorCode(s.DeleteSecret(ctx, "API_KEY")))
	})
}

// --- Schedule Tests ---

func TestScheduleLifecycle(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		next := time.Now().UTC().Add(time.Minute).Truncate(time.Second)
		sc := &Schedule{
			ID:             uuid.New().String(),
			WorkflowID:     "w1",
			CronExpression: "*/5 * * * *",
			Input:          map[string]any{"source": "cron"},
			Enabled:        true,
			NextRunAt:      &next,
		}
		require.NoError(t, s.CreateSchedule(ctx, sc))

		got, err := s.GetSchedule(ctx, sc.ID)
		require.NoError(t, err)
		assert.Equal(t, "*/5 * * * *", got.CronExpression)
		assert.Equal(t, "cron", got.Input["source"])
		assert.True(t, got.Enabled)
		require.NotNil(t, got.NextRunAt)
		assert.True(t, next.Equal(*got.NextRunAt))

		ran := time.Now().UTC().Truncate(time.Second)
		disabled := false
		require.NoError(t, s.UpdateSchedule(ctx, sc.ID, ScheduleUpdate{
			Enabled:       &disabled,
			LastRunAt:     &ran,
			LastRunStatus: string(schema.RunStatusCompleted),
		}))

		got, err = s.GetSchedule(ctx, sc.ID)
		require.NoError(t, err)
		assert.False(t, got.Enabled)
		assert.Equal(t, "completed", got.LastRunStatus)
		require.NotNil(t, got.LastRunAt)

		enabled := true
		list, err := s.ListSchedules(ctx, ScheduleFilter{Enabled: &enabled})
		require.NoError(t, err)
		assert.Empty(t, list)

		list, err = s.ListSchedules(ctx, ScheduleFilter{WorkflowID: "w1"})
		require.NoError(t, err)
		assert.Len(t, list, 1)

		require.NoError(t, s.DeleteSchedule(ctx, sc.ID))
		_, err = s.GetSchedule(ctx, sc.ID)
		assert.Equal(t, schema.ErrCodeNotFound, schema.ErrorCode(err))
	})
}

func TestUpdateSchedule_NotFound(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		on := true
		err := s.UpdateSchedule(context.Background(), "missing", ScheduleUpdate{Enabled: &on})
		assert.Equal(t, schema.ErrCodeNotFound, schema.ErrorCode(err))
	})
}

// --- ValidatingStore ---

type stubValidator struct {
	result *schema.ValidationResult
	calls  int
}

func (v *stubValidator) Validate(context.Context, *schema.Workflow) *schema.ValidationResult {
	v.calls++
	return v.result
}

func TestValidatingStore_RejectsInvalid(t *testing.T) {
	invalid := &schema.ValidationResult{}
	invalid.AddError("nodes", schema.ErrCodeCycleDetected, "sub-workflow reference cycle: a -> b -> a")
	v := &stubValidator{result: invalid}
	s := NewValidatingStore(NewMemoryStore(), v)
	ctx := context.Background()

	res, err := s.Save(ctx, sampleWorkflow("a"))
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeCycleDetected, schema.ErrorCode(err))
	assert.False(t, res.Valid())

	wf, err := s.GetWorkflow(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, wf, "rejected workflow must not be persisted")
}

func TestValidatingStore_PersistsValidWithWarnings(t *testing.T) {
	ok := &schema.ValidationResult{}
	ok.AddWarning("nodes[1]", schema.ErrCodeValidation, "node is unreachable")
	v := &stubValidator{result: ok}
	s := NewValidatingStore(NewMemoryStore(), v)
	ctx := context.Background()

	require.NoError(t, s.SaveWorkflow(ctx, sampleWorkflow("a")))
	assert.Equal(t, 1, v.calls)

	res, err := s.Save(ctx, sampleWorkflow("a"))
	require.NoError(t, err)
	assert.Len(t, res.Warnings, 1)

	wf, err := s.GetWorkflow(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, wf)
}

func TestLoadMigrations_Ordered(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/010_later.sql":  {Data: []byte("SELECT 2;")},
		"migrations/002_second.sql": {Data: []byte("SELECT 1;")},
	}
	ms, err := loadMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, 2, ms[0].version)
	assert.Equal(t, "second", ms[0].name)
	assert.Equal(t, 10, ms[1].version)
}

func TestLoadMigrations_BadName(t *testing.T) {
	_, err := loadMigrations(fstest.MapFS{"migrations/init.sql": {Data: []byte("SELECT 1;")}})
	assert.Error(t, err)
}

func TestStatements_SkipsComments(t *testing.T) {
	got := statements("-- header\nCREATE TABLE a (x INT);\n\n-- note\nCREATE INDEX i ON a(x);\n")
	assert.Equal(t, []string{"CREATE TABLE a (x INT)", "CREATE INDEX i ON a(x)"}, got)
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))
}
