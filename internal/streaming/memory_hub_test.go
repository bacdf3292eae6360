package streaming

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribe(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel()

	event := SceneEvent{
		SceneID:   "scene-1",
		NodeID:    "node-1",
		EventType: "node_moved",
		Payload:   map[string]any{"x": 10.0, "y": 20.0},
	}

	err = hub.Publish(ctx, event)
	require.NoError(t, err)

	select {
	case got := <-ch:
		assert.Equal(t, event.SceneID, got.SceneID)
		assert.Equal(t, event.NodeID, got.NodeID)
		assert.Equal(t, event.EventType, got.EventType)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestFilterBySceneID(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{SceneID: "scene-1"})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, hub.Publish(ctx, SceneEvent{SceneID: "scene-1", EventType: "node_added"}))
	require.NoError(t, hub.Publish(ctx, SceneEvent{SceneID: "scene-2", EventType: "node_added"}))

	select {
	case got := <-ch:
		assert.Equal(t, "scene-1", got.SceneID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	// Channel should be empty -- the scene-2 event was filtered out.
	select {
	case evt := <-ch:
		t.Fatalf("unexpected event: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFilterByNodeAndEventType(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{
		NodeID:     "n1",
		EventTypes: []string{"node_moved", "node_removed"},
	})
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, hub.Publish(ctx, SceneEvent{SceneID: "s", NodeID: "n1", EventType: "node_moved"}))
	require.NoError(t, hub.Publish(ctx, SceneEvent{SceneID: "s", NodeID: "n1", EventType: "node_added"}))
	require.NoError(t, hub.Publish(ctx, SceneEvent{SceneID: "s", NodeID: "n2", EventType: "node_moved"}))
	require.NoError(t, hub.Publish(ctx, SceneEvent{SceneID: "s", NodeID: "n1", EventType: "node_removed"}))

	var received []string
	for i := 0; i < 2; i++ {
		select {
		case got := <-ch:
			received = append(received, got.EventType)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
	assert.Equal(t, []string{"node_moved", "node_removed"}, received)

	select {
	case evt := <-ch:
		t.Fatalf("unexpected event: %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
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

	require.NoError(t, hub.Publish(ctx, SceneEvent{SceneID: "scene-1", EventType: "connection_added"}))

	for _, ch := range []<-chan SceneEvent{ch1, ch2} {
		select {
		case got := <-ch:
			assert.Equal(t, "scene-1", got.SceneID)
			assert.Equal(t, "connection_added", got.EventType)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestCancelSubscription(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)

	cancel()
	cancel() // idempotent

	require.NoError(t, hub.Publish(ctx, SceneEvent{SceneID: "scene-1", EventType: "node_added"}))

	_, open := <-ch
	assert.False(t, open, "channel should be closed after cancel")
	assert.Equal(t, 0, hub.Subscribers())
}

func TestBackpressure(t *testing.T) {
	hub := NewMemoryHub(WithBuffer(8))
	ctx := context.Background()

	ch, cancel, err := hub.Subscribe(ctx, EventFilter{})
	require.NoError(t, err)
	defer cancel()

	// None of these should block.
	for i := 0; i < 18; i++ {
		require.NoError(t, hub.Publish(ctx, SceneEvent{SceneID: "scene-1", EventType: "node_moved"}))
	}

	drained := 0
	for {
		select {
		case <-ch:
			drained++
		default:
			goto done
		}
	}
done:
	assert.Equal(t, 8, drained)
	assert.Equal(t, uint64(10), hub.Dropped())
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewMemoryHub()
	ctx := context.Background()
	const goroutines = 20
	const eventsPerGoroutine = 50

	var wg sync.WaitGroup

	cancels := make([]func(), goroutines)
	for i := 0; i < goroutines; i++ {
		_, cancel, err := hub.Subscribe(ctx, EventFilter{})
		require.NoError(t, err)
		cancels[i] = cancel
	}
	defer func() {
		for _, c := range cancels {
			c()
		}
	}()

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < eventsPerGoroutine; j++ {
				_ = hub.Publish(ctx, SceneEvent{SceneID: "scene-concurrent", EventType: "node_moved"})
			}
		}()
	}

	// Concurrent subscribers being added/removed
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
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
}

func TestPublishCancelledContext(t *testing.T) {
	hub := NewMemoryHub()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := hub.Publish(ctx, SceneEvent{SceneID: "scene-1", EventType: "node_added"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSubscribeCancelledContext(t *testing.T) {
	hub := NewMemoryHub()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := hub.Subscribe(ctx, EventFilter{})
	assert.ErrorIs(t, err, context.Canceled)
}
