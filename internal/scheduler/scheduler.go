// Package scheduler fires stored workflows on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/rendis/flowgraph/internal/engine"
	"github.com/rendis/flowgraph/internal/logging"
	"github.com/rendis/flowgraph/internal/store"
	"github.com/rendis/flowgraph/internal/streaming"
	"github.com/rendis/flowgraph/pkg/schema"
)

// Run statuses recorded on a schedule after each firing.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed" // the run executed but a node failed
	StatusError   = "error"  // the run could not start
)

// DefaultInterval is how often due schedules are checked.
const DefaultInterval = time.Minute

// Runner executes stored workflows. Satisfied by *engine.Engine.
type Runner interface {
	Execute(ctx context.Context, workflowID string, input map[string]any, opts ...engine.ExecuteOption) (*schema.RunResult, error)
}

// Config holds optional scheduler settings.
type Config struct {
	Interval time.Duration
	Pool     *Pool // nil creates a pool of size 4
	Hub      streaming.EventHub
	Logger   *slog.Logger
	Now      func() time.Time
}

// Scheduler polls the schedule store and dispatches due runs to the pool.
type Scheduler struct {
	store    store.ScheduleStore
	runner   Runner
	pool     *Pool
	hub      streaming.EventHub
	parser   cron.Parser
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	inflightMu sync.Mutex
	inflight   map[string]struct{} // schedule ids currently executing
}

// NewScheduler creates a Scheduler.
func NewScheduler(s store.ScheduleStore, runner Runner, cfg Config) *Scheduler {
	sch := &Scheduler{
		store:    s,
		runner:   runner,
		pool:     cfg.Pool,
		hub:      cfg.Hub,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		interval: cfg.Interval,
		logger:   cfg.Logger,
		now:      cfg.Now,
		inflight: make(map[string]struct{}),
	}
	if sch.pool == nil {
		sch.pool = NewPool(4)
	}
	if sch.hub == nil {
		sch.hub = streaming.Nop{}
	}
	if sch.interval <= 0 {
		sch.interval = DefaultInterval
	}
	if sch.logger == nil {
		sch.logger = slog.Default()
	}
	if sch.now == nil {
		sch.now = time.Now
	}
	return sch
}

// Create validates the cron expression and stores an enabled schedule whose
// first run is the next matching time.
func (s *Scheduler) Create(ctx context.Context, workflowID, cronExpr string, input map[string]any) (*store.Schedule, error) {
	if workflowID == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "schedule requires a workflow id")
	}
	now := s.now().UTC()
	next, err := s.CalculateNextRun(cronExpr, now)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, err.Error()).WithCause(err)
	}
	sc := &store.Schedule{
		ID:             uuid.NewString(),
		WorkflowID:     workflowID,
		CronExpression: cronExpr,
		Input:          input,
		Enabled:        true,
		NextRunAt:      &next,
		CreatedAt:      now,
	}
	if err := s.store.CreateSchedule(ctx, sc); err != nil {
		return nil, err
	}
	return sc, nil
}

// Start launches the polling loop. It checks once immediately.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(loopCtx)
	s.logger.Info("scheduler started", slog.Duration("interval", s.interval))
	return nil
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick dispatches every enabled schedule that is due.
func (s *Scheduler) tick(ctx context.Context) int {
	due, err := s.dueSchedules(ctx, func(sc *store.Schedule, now time.Time) bool {
		return sc.NextRunAt == nil || !sc.NextRunAt.After(now)
	})
	if err != nil {
		s.logger.Error("failed to list schedules", slog.String("error", err.Error()))
		return 0
	}
	return s.dispatch(ctx, due)
}

// RecoverMissed runs once every schedule whose next run already passed,
// typically after a restart. It waits for the recovered runs.
func (s *Scheduler) RecoverMissed(ctx context.Context) error {
	missed, err := s.dueSchedules(ctx, func(sc *store.Schedule, now time.Time) bool {
		return sc.NextRunAt != nil && sc.NextRunAt.Before(now)
	})
	if err != nil {
		return fmt.Errorf("list missed schedules: %w", err)
	}
	if n := s.dispatch(ctx, missed); n > 0 {
		s.pool.Wait()
		s.logger.Info("recovered missed schedules", slog.Int("count", n))
	}
	return nil
}

func (s *Scheduler) dueSchedules(ctx context.Context, due func(*store.Schedule, time.Time) bool) ([]*store.Schedule, error) {
	enabled := true
	all, err := s.store.ListSchedules(ctx, store.ScheduleFilter{Enabled: &enabled})
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	var out []*store.Schedule
	for _, sc := range all {
		if due(sc, now) {
			out = append(out, sc)
		}
	}
	return out, nil
}

func (s *Scheduler) dispatch(ctx context.Context, schedules []*store.Schedule) int {
	n := 0
	for _, sc := range schedules {
		if !s.tryAcquire(sc.ID) {
			continue
		}
		firedAt := s.now().UTC()
		err := s.pool.Submit(ctx, func(ctx context.Context) error {
			defer s.release(sc.ID)
			return s.fire(ctx, sc, firedAt)
		})
		if err != nil {
			s.release(sc.ID)
			s.logger.Warn("schedule not dispatched", slog.String("schedule_id", sc.ID), slog.String("error", err.Error()))
			continue
		}
		n++
	}
	return n
}

// fire executes one schedule and records the outcome.
func (s *Scheduler) fire(ctx context.Context, sc *store.Schedule, now time.Time) error {
	ctx = logging.WithWorkflowID(ctx, sc.WorkflowID)
	log := logging.LogWith(ctx, s.logger).With(slog.String("schedule_id", sc.ID))
	log.Info("running scheduled workflow")

	_ = s.hub.Publish(context.WithoutCancel(ctx), streaming.StreamEvent{
		WorkflowID: sc.WorkflowID,
		EventType:  schema.EventScheduleFired,
		Payload:    map[string]any{"scheduleId": sc.ID, "cron": sc.CronExpression},
	})

	res, err := s.runner.Execute(ctx, sc.WorkflowID, sc.Input,
		engine.WithTrigger(store.TriggerSchedule, map[string]any{
			"schedule_id": sc.ID,
			"cron":        sc.CronExpression,
		}))

	status := StatusSuccess
	switch {
	case err != nil:
		status = StatusError
		log.Error("scheduled run could not start", slog.String("error", err.Error()))
	case !res.Success:
		status = StatusFailed
		log.Warn("scheduled run failed", slog.String("run_id", res.RunID), slog.String("error", res.Error))
	default:
		log.Info("scheduled run completed", slog.String("run_id", res.RunID))
	}

	if uerr := s.updateStatus(context.WithoutCancel(ctx), sc, now, status); uerr != nil {
		log.Error("failed to update schedule", slog.String("error", uerr.Error()))
		return uerr
	}
	return err
}

func (s *Scheduler) updateStatus(ctx context.Context, sc *store.Schedule, now time.Time, status string) error {
	next, err := s.CalculateNextRun(sc.CronExpression, now)
	if err != nil {
		return fmt.Errorf("calculate next run for schedule %q: %w", sc.ID, err)
	}
	return s.store.UpdateSchedule(ctx, sc.ID, store.ScheduleUpdate{
		LastRunAt:     &now,
		NextRunAt:     &next,
		LastRunStatus: status,
	})
}

func (s *Scheduler) tryAcquire(id string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[id]; ok {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

func (s *Scheduler) release(id string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, id)
}

// CalculateNextRun computes the next run time for a cron expression.
func (s *Scheduler) CalculateNextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

// Stop ends the polling loop and waits for dispatched runs.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return nil
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
	s.pool.Wait()

	s.logger.Info("scheduler stopped", slog.Any("pool", s.pool.Metrics()))
	return nil
}

// Metrics reports the dispatch pool counters.
func (s *Scheduler) Metrics() PoolMetrics {
	return s.pool.Metrics()
}
