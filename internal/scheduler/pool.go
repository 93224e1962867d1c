package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// PoolMetrics counts scheduled runs dispatched through a Pool.
type PoolMetrics struct {
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Panics    int64 `json:"panics"`
}

// ErrPoolShutdown is returned when work is submitted to a shut-down pool.
var ErrPoolShutdown = errors.New("worker pool is shut down")

// Pool bounds how many scheduled runs execute at once.
type Pool struct {
	sem  *semaphore.Weighted
	wg   sync.WaitGroup
	base context.Context
	stop context.CancelFunc

	mu     sync.Mutex
	closed bool

	active, completed, failed, panics atomic.Int64
}

// NewPool creates a pool running at most size jobs concurrently.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	base, stop := context.WithCancel(context.Background())
	return &Pool{sem: semaphore.NewWeighted(int64(size)), base: base, stop: stop}
}

// Submit runs fn on its own goroutine once a slot is free. It blocks while
// the pool is full and gives up when ctx is done or the pool shuts down.
func (p *Pool) Submit(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.isClosed() {
		return ErrPoolShutdown
	}

	acquireCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	unwatch := context.AfterFunc(p.base, cancel)
	defer unwatch()

	if err := p.sem.Acquire(acquireCtx, 1); err != nil {
		if p.base.Err() != nil {
			return ErrPoolShutdown
		}
		return err
	}

	// wg.Add must not race with Shutdown's Wait.
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.sem.Release(1)
		return ErrPoolShutdown
	}
	p.wg.Add(1)
	p.active.Add(1)
	p.mu.Unlock()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.panics.Add(1)
				p.failed.Add(1)
			}
			p.active.Add(-1)
			p.sem.Release(1)
			p.wg.Done()
		}()
		if err := fn(ctx); err != nil {
			p.failed.Add(1)
			return
		}
		p.completed.Add(1)
	}()
	return nil
}

// Wait blocks until all submitted work completes.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Shutdown rejects new work, unblocks pending submitters and waits for
// running jobs.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.stop()
	p.mu.Unlock()

	p.wg.Wait()
}

// Metrics returns a snapshot of the pool counters.
func (p *Pool) Metrics() PoolMetrics {
	return PoolMetrics{
		Active:    p.active.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Panics:    p.panics.Load(),
	}
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
