package store

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rendis/flowgraph/pkg/schema"
)

// MemoryStore is an in-process Store used by tests and file-based CLI runs.
// Workflows are deep-copied on the way in and out so callers never share
// definitions with the store.
type MemoryStore struct {
	mu        sync.RWMutex
	workflows map[string]storedWorkflow
	runs      map[string]*Run
	events    map[string][]*Event
	secrets   map[string][]byte
	schedules map[string]*Schedule
	eventSeq  int64
}

type storedWorkflow struct {
	def     []byte
	summary WorkflowSummary
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows: make(map[string]storedWorkflow),
		runs:      make(map[string]*Run),
		events:    make(map[string][]*Event),
		secrets:   make(map[string][]byte),
		schedules: make(map[string]*Schedule),
	}
}

func (m *MemoryStore) Migrate(context.Context) error { return nil }
func (m *MemoryStore) Close() error                  { return nil }

// --- Workflows ---

func (m *MemoryStore) SaveWorkflow(_ context.Context, wf *schema.Workflow) error {
	if wf == nil || wf.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "workflow id is required")
	}
	def, err := json.Marshal(wf)
	if err != nil {
		return schema.NewError(schema.ErrCodeStore, "marshal workflow").WithCause(err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	created := now
	if prev, ok := m.workflows[wf.ID]; ok {
		created = prev.summary.CreatedAt
	}
	m.workflows[wf.ID] = storedWorkflow{def: def, summary: WorkflowSummary{
		ID:          wf.ID,
		Name:        wf.Name,
		Description: wf.Description,
		Composed:    wf.Composed,
		CreatedAt:   created,
		UpdatedAt:   now,
	}}
	return nil
}

func (m *MemoryStore) GetWorkflow(_ context.Context, id string) (*schema.Workflow, error) {
	m.mu.RLock()
	stored, ok := m.workflows[id]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	wf := &schema.Workflow{}
	if err := json.Unmarshal(stored.def, wf); err != nil {
		return nil, schema.NewError(schema.ErrCodeStore, "unmarshal workflow").WithCause(err)
	}
	return wf, nil
}

func (m *MemoryStore) ListWorkflows(_ context.Context, filter WorkflowFilter) ([]*WorkflowSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*WorkflowSummary
	for _, id := range sortedKeys(m.workflows) {
		sum := m.workflows[id].summary
		if filter.Name != "" && !strings.Contains(sum.Name, filter.Name) {
			continue
		}
		out = append(out, &sum)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return paginate(out, filter.Limit, filter.Offset), nil
}

func (m *MemoryStore) DeleteWorkflow(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workflows[id]; !ok {
		return storeNotFound("workflow", id)
	}
	delete(m.workflows, id)
	return nil
}

// --- Runs ---

func (m *MemoryStore) CreateRun(_ context.Context, run *Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; ok {
		return schema.NewErrorf(schema.ErrCodeConflict, "run %q already exists", run.ID)
	}
	cp := *run
	if cp.Status == "" {
		cp.Status = schema.RunStatusRunning
	}
	cp.StartedAt = timeOrNow(cp.StartedAt)
	m.runs[run.ID] = &cp
	return nil
}

func (m *MemoryStore) CompleteRun(_ context.Context, id string, update RunUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return storeNotFound("run", id)
	}
	done := timeOrNow(update.CompletedAt)
	r.Status = update.Status
	r.Result = update.Result
	r.Error = update.Error
	r.CompletedAt = &done
	return nil
}

func (m *MemoryStore) GetRun(_ context.Context, id string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, storeNotFound("run", id)
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) ListRuns(_ context.Context, filter RunFilter) ([]*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Run
	for _, r := range m.runs {
		if filter.WorkflowID != "" && r.WorkflowID != filter.WorkflowID {
			continue
		}
		if filter.Status != nil && r.Status != *filter.Status {
			continue
		}
		if filter.Since != nil && r.StartedAt.Before(*filter.Since) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return paginate(out, filter.Limit, 0), nil
}

func (m *MemoryStore) AppendEvent(_ context.Context, event *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventSeq++
	event.ID = m.eventSeq
	event.Sequence = int64(len(m.events[event.RunID]) + 1)
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	cp := *event
	m.events[event.RunID] = append(m.events[event.RunID], &cp)
	return nil
}

func (m *MemoryStore) GetEvents(_ context.Context, runID string, since int64) ([]*Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Event
	for _, e := range m.events[runID] {
		if e.Sequence > since {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

// --- Secrets ---

func (m *MemoryStore) StoreSecret(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryStore) GetSecret(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.secrets[key]
	if !ok {
		return nil, storeNotFound("secret", key)
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryStore) DeleteSecret(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.secrets[key]; !ok {
		return storeNotFound("secret", key)
	}
	delete(m.secrets, key)
	return nil
}

func (m *MemoryStore) ListSecrets(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKeys(m.secrets), nil
}

// --- Schedules ---

func (m *MemoryStore) CreateSchedule(_ context.Context, sc *Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schedules[sc.ID]; ok {
		return schema.NewErrorf(schema.ErrCodeConflict, "schedule %q already exists", sc.ID)
	}
	cp := *sc
	cp.CreatedAt = timeOrNow(cp.CreatedAt)
	m.schedules[sc.ID] = &cp
	return nil
}

func (m *MemoryStore) GetSchedule(_ context.Context, id string) (*Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sc, ok := m.schedules[id]
	if !ok {
		return nil, storeNotFound("schedule", id)
	}
	cp := *sc
	return &cp, nil
}

func (m *MemoryStore) UpdateSchedule(_ context.Context, id string, update ScheduleUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc, ok := m.schedules[id]
	if !ok {
		return storeNotFound("schedule", id)
	}
	if update.Enabled != nil {
		sc.Enabled = *update.Enabled
	}
	if update.LastRunAt != nil {
		t := *update.LastRunAt
		sc.LastRunAt = &t
	}
	if update.NextRunAt != nil {
		t := *update.NextRunAt
		sc.NextRunAt = &t
	}
	if update.LastRunStatus != "" {
		sc.LastRunStatus = update.LastRunStatus
	}
	return nil
}

func (m *MemoryStore) ListSchedules(_ context.Context, filter ScheduleFilter) ([]*Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Schedule
	for _, id := range sortedKeys(m.schedules) {
		sc := m.schedules[id]
		if filter.Enabled != nil && sc.Enabled != *filter.Enabled {
			continue
		}
		if filter.WorkflowID != "" && sc.WorkflowID != filter.WorkflowID {
			continue
		}
		cp := *sc
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return paginate(out, filter.Limit, 0), nil
}

func (m *MemoryStore) DeleteSchedule(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schedules[id]; !ok {
		return storeNotFound("schedule", id)
	}
	delete(m.schedules, id)
	return nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*LibSQLStore)(nil)
)
