package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSaver struct {
	calls atomic.Int32
	saved int
	err   error
	block chan struct{}
}

func (m *mockSaver) SaveDirty(context.Context) (int, error) {
	m.calls.Add(1)
	if m.block != nil {
		<-m.block
	}
	return m.saved, m.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewAutosaver_InvalidSpec(t *testing.T) {
	_, err := NewAutosaver(&mockSaver{}, "not a cron", quietLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse cron expression")
}

func TestAutosaver_RunOnce(t *testing.T) {
	saver := &mockSaver{saved: 3}
	a, err := NewAutosaver(saver, "*/5 * * * *", quietLogger())
	require.NoError(t, err)

	n, err := a.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	last, count := a.LastRun()
	assert.False(t, last.IsZero())
	assert.Equal(t, 3, count)
}

func TestAutosaver_RunOnceError(t *testing.T) {
	saver := &mockSaver{err: errors.New("disk full")}
	a, err := NewAutosaver(saver, "@every 1m", quietLogger())
	require.NoError(t, err)

	_, err = a.RunOnce(context.Background())
	assert.EqualError(t, err, "disk full")
}

func TestAutosaver_SkipsOverlappingRuns(t *testing.T) {
	saver := &mockSaver{block: make(chan struct{})}
	a, err := NewAutosaver(saver, "@every 1m", quietLogger())
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = a.RunOnce(context.Background())
	}()

	require.Eventually(t, func() bool { return saver.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	n, err := a.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, int32(1), saver.calls.Load())

	close(saver.block)
	wg.Wait()
}

func TestAutosaver_StartStop(t *testing.T) {
	saver := &mockSaver{saved: 1}
	a, err := NewAutosaver(saver, "@every 20ms", quietLogger())
	require.NoError(t, err)

	require.NoError(t, a.Start(context.Background()))
	assert.Error(t, a.Start(context.Background()), "double start")

	require.Eventually(t, func() bool { return saver.calls.Load() >= 1 }, 3*time.Second, 10*time.Millisecond)
	require.NoError(t, a.Stop())
	require.NoError(t, a.Stop())
}

func TestAutosaver_NextRun(t *testing.T) {
	a, err := NewAutosaver(&mockSaver{}, "0 * * * *", quietLogger())
	require.NoError(t, err)

	from := time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC), a.NextRun(from))
}
