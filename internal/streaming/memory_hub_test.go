package streaming

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowgraph/pkg/schema"
)

func receive(t *testing.T, ch <-chan StreamEvent) StreamEvent {
	t.Helper()
	select {
	case got, ok := <-ch:
		require.True(t, ok, "channel closed")
		return got
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return StreamEvent{}
}

func assertQuiet(t *testing.T, ch <-chan StreamEvent) {
	t.Helper()
	select {
	case evt := <-ch:
		t.Fatalf("unexpected event: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishSubscribe(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel()

	event := StreamEvent{
		WorkflowID: "wf-1",
		RunID:      "run-1",
		NodeID:     "call",
		EventType:  schema.EventNodeCompleted,
		Payload:    map[string]any{"success": true},
	}
	require.NoError(t, hub.Publish(ctx, event))

	got := receive(t, ch)
	assert.Equal(t, "wf-1", got.WorkflowID)
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, "call", got.NodeID)
	assert.Equal(t, schema.EventNodeCompleted, got.EventType)
	assert.False(t, got.Timestamp.IsZero(), "publish stamps the event")
}

func TestFilterByRunAndSession(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	runCh, cancelRun, err := hub.Subscribe(ctx, EventFilter{RunID: "run-1"})
	require.NoError(t, err)
	defer cancelRun()
	sessCh, cancelSess, err := hub.Subscribe(ctx, EventFilter{WorkflowID: "wf-1", SessionID: "s-1"})
	require.NoError(t, err)
	defer cancelSess()

	require.NoError(t, hub.Publish(ctx, StreamEvent{WorkflowID: "wf-1", RunID: "run-2", EventType: schema.EventNodeStarted}))
	require.NoError(t, hub.Publish(ctx, StreamEvent{WorkflowID: "wf-1", RunID: "run-1", EventType: schema.EventNodeStarted}))
	require.NoError(t, hub.Publish(ctx, StreamEvent{WorkflowID: "wf-2", SessionID: "s-1", EventType: schema.EventDebugPaused}))
	require.NoError(t, hub.Publish(ctx, StreamEvent{WorkflowID: "wf-1", SessionID: "s-1", EventType: schema.EventDebugStepped}))

	assert.Equal(t, "run-1", receive(t, runCh).RunID)
	assertQuiet(t, runCh)

	assert.Equal(t, schema.EventDebugStepped, receive(t, sessCh).EventType)
	assertQuiet(t, sessCh)
}

func TestFilterByEventType(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{
		EventTypes: []string{schema.EventNodeFailed, schema.EventRunFailed},
	})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, hub.Publish(ctx, StreamEvent{WorkflowID: "wf-1", EventType: schema.EventNodeFailed}))
	require.NoError(t, hub.Publish(ctx, StreamEvent{WorkflowID: "wf-1", EventType: schema.EventNodeCompleted}))
	require.NoError(t, hub.Publish(ctx, StreamEvent{WorkflowID: "wf-1", EventType: schema.EventRunFailed}))

	received := []string{receive(t, ch).EventType, receive(t, ch).EventType}
	assert.Equal(t, []string{schema.EventNodeFailed, schema.EventRunFailed}, received)
	assertQuiet(t, ch)
}

func TestMultipleSubscribers(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch1, cancel1, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel1()
	ch2, cancel2, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel2()
	assert.Equal(t, 2, hub.Subscribers())

	require.NoError(t, hub.Publish(ctx, StreamEvent{WorkflowID: "wf-1", EventType: schema.EventRunCompleted}))

	for _, ch := range []<-chan StreamEvent{ch1, ch2} {
		assert.Equal(t, schema.EventRunCompleted, receive(t, ch).EventType)
	}
}

func TestCancelClosesChannel(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)

	cancel()
	cancel()

	require.NoError(t, hub.Publish(ctx, StreamEvent{WorkflowID: "wf-1", EventType: schema.EventRunStarted}))

	_, ok := <-ch
	assert.False(t, ok, "cancelled subscription channel is closed")
	assert.Equal(t, 0, hub.Subscribers())
}

func TestBackpressureDropsForSlowSubscriber(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel()

	for i := 0; i < defaultChannelBuffer+10; i++ {
		require.NoError(t, hub.Publish(ctx, StreamEvent{WorkflowID: "wf-1", EventType: "tick"}))
	}

	drained := 0
	for len(ch) > 0 {
		<-ch
		drained++
	}
	assert.Equal(t, defaultChannelBuffer, drained)
	assert.Equal(t, int64(10), hub.Dropped())
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()
	const goroutines = 20

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = hub.Publish(ctx, StreamEvent{WorkflowID: "wf-concurrent", EventType: "tick"})
			}
		}()
		go func() {
			defer wg.Done()
			ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
			if err != nil {
				return
			}
			for range 5 {
				select {
				case <-ch:
				case <-time.After(10 * time.Millisecond):
				}
			}
			cancel()
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, hub.Subscribers())
}

func TestCancelledContext(t *testing.T) {
	hub := NewMemoryHub()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, hub.Publish(ctx, StreamEvent{WorkflowID: "wf-1", EventType: "tick"}), context.Canceled)
	_, _, err := hub.Subscribe(ctx, EventFilter{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNopHub(t *testing.T) {
	var hub EventHub = Nop{}
	ctx := context.Background()
	require.NoError(t, hub.Publish(ctx, StreamEvent{EventType: "tick"}))

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel()
	_, ok := <-ch
	assert.False(t, ok)
}
