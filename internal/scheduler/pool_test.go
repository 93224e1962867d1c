package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_BasicExecution(t *testing.T) {
	pool := NewPool(2)
	defer pool.Shutdown()

	var ran atomic.Int64
	require.NoError(t, pool.Submit(context.Background(), func(context.Context) error {
		ran.Add(1)
		return nil
	}))
	pool.Wait()

	assert.Equal(t, int64(1), ran.Load())
	assert.Equal(t, int64(1), pool.Metrics().Completed)
}

func TestPool_ConcurrencyLimit(t *testing.T) {
	const size = 3
	pool := NewPool(size)
	defer pool.Shutdown()

	var current, peak atomic.Int64
	for range 10 {
		require.NoError(t, pool.Submit(context.Background(), func(context.Context) error {
			c := current.Add(1)
			for {
				p := peak.Load()
				if c <= p || peak.CompareAndSwap(p, c) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			current.Add(-1)
			return nil
		}))
	}
	pool.Wait()

	assert.LessOrEqual(t, peak.Load(), int64(size))
	assert.Positive(t, peak.Load())
}

func TestPool_Backpressure(t *testing.T) {
	pool := NewPool(1)
	defer pool.Shutdown()

	started := make(chan struct{})
	block := make(chan struct{})
	require.NoError(t, pool.Submit(context.Background(), func(context.Context) error {
		close(started)
		<-block
		return nil
	}))
	<-started

	submitted := make(chan struct{})
	go func() {
		_ = pool.Submit(context.Background(), func(context.Context) error { return nil })
		close(submitted)
	}()

	select {
	case <-submitted:
		t.Fatal("second submit should block while the pool is full")
	case <-time.After(50 * time.Millisecond):
	}

	close(block)
	select {
	case <-submitted:
	case <-time.After(time.Second):
		t.Fatal("second submit did not unblock")
	}
	pool.Wait()
}

func TestPool_PanicRecovery(t *testing.T) {
	pool := NewPool(2)
	defer pool.Shutdown()

	require.NoError(t, pool.Submit(context.Background(), func(context.Context) error {
		panic("boom")
	}))
	pool.Wait()

	m := pool.Metrics()
	assert.Equal(t, int64(1), m.Panics)
	assert.Equal(t, int64(1), m.Failed)
	assert.Zero(t, m.Active)
}

func TestPool_ContextCancelledWhileWaiting(t *testing.T) {
	pool := NewPool(1)
	defer pool.Shutdown()

	block := make(chan struct{})
	require.NoError(t, pool.Submit(context.Background(), func(context.Context) error {
		<-block
		return nil
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := pool.Submit(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(block)
	pool.Wait()
}

func TestPool_ShutdownUnblocksWaitingSubmit(t *testing.T) {
	pool := NewPool(1)
	block := make(chan struct{})
	require.NoError(t, pool.Submit(context.Background(), func(context.Context) error {
		<-block
		return nil
	}))

	errs := make(chan error, 1)
	go func() {
		errs <- pool.Submit(context.Background(), func(context.Context) error { return nil })
	}()
	time.Sleep(20 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		pool.Shutdown()
		close(done)
	}()

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrPoolShutdown)
	case <-time.After(time.Second):
		t.Fatal("waiting submit was not released by shutdown")
	}
	close(block)
	<-done
}

func TestPool_SubmitAfterShutdown(t *testing.T) {
	pool := NewPool(1)
	pool.Shutdown()
	pool.Shutdown()

	err := pool.Submit(context.Background(), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolShutdown)
}

func TestPool_MetricsAccuracy(t *testing.T) {
	pool := NewPool(4)
	defer pool.Shutdown()

	for i := range 6 {
		require.NoError(t, pool.Submit(context.Background(), func(context.Context) error {
			if i%2 == 0 {
				return errors.New("run failed")
			}
			return nil
		}))
	}
	pool.Wait()

	m := pool.Metrics()
	assert.Equal(t, int64(3), m.Completed)
	assert.Equal(t, int64(3), m.Failed)
	assert.Zero(t, m.Active)
}
