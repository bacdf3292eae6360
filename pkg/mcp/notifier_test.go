package mcp

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/nodeflow/internal/streaming"
	"github.com/rendis/nodeflow/pkg/schema"
)

type sentNotification struct {
	session string
	params  map[string]any
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentNotification
	gone map[string]bool
}

func (f *fakeSender) SendNotificationToSpecificClient(sessionID, _ string, params map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gone[sessionID] {
		return server.ErrSessionNotFound
	}
	f.sent = append(f.sent, sentNotification{session: sessionID, params: params})
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func TestNotifyDropsVanishedSessions(t *testing.T) {
	sender := &fakeSender{gone: map[string]bool{"session-old": true}}
	sessions := NewSessionRegistry()
	sessions.Register("scene-1", "session-old")
	sessions.Register("scene-1", "session-new")

	n := newNotifier(sender, sessions, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, n.Notify(context.Background(), "scene-1", map[string]any{"x": 1}))

	require.Equal(t, 1, sender.count())
	assert.Equal(t, "session-new", sender.sent[0].session)
	assert.Equal(t, []string{"session-new"}, sessions.SessionsFor("scene-1"))
}

func TestNotifierForwardsHubEvents(t *testing.T) {
	sender := &fakeSender{}
	sessions := NewSessionRegistry()
	sessions.Register("scene-1", "session-a")

	hub := streaming.NewMemoryHub()
	n := newNotifier(sender, sessions, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx, hub) }()
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Publish(ctx, streaming.SceneEvent{SceneID: "scene-2", EventType: schema.EventNodeAdded}))
	require.NoError(t, hub.Publish(ctx, streaming.SceneEvent{SceneID: "scene-1", EventType: schema.EventNodeAdded}))
	require.NoError(t, hub.Publish(ctx, streaming.SceneEvent{SceneID: "scene-1", EventType: schema.EventSceneDeleted}))

	require.Eventually(t, func() bool { return sender.count() == 2 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(sessions.SessionsFor("scene-1")) == 0 }, time.Second, 5*time.Millisecond)

	sender.mu.Lock()
	ev, ok := sender.sent[0].params["data"].(streaming.SceneEvent)
	sender.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, schema.EventNodeAdded, ev.EventType)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("notifier did not stop")
	}
}
