package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Saver persists dirty scenes. Satisfied by *scene.Manager.
type Saver interface {
	SaveDirty(ctx context.Context) (int, error)
}

// Autosaver periodically saves dirty scenes on a cron schedule.
type Autosaver struct {
	saver  Saver
	spec   string
	parser cron.Parser
	logger *slog.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc

	runMu     sync.Mutex
	running   bool
	lastRun   time.Time
	lastSaved int
}

// NewAutosaver creates an Autosaver for a five-field cron expression or a
// descriptor such as "@every 30s".
func NewAutosaver(saver Saver, spec string, logger *slog.Logger) (*Autosaver, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	a := &Autosaver{
		saver:  saver,
		spec:   spec,
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		logger: logger,
	}
	if _, err := a.parser.Parse(spec); err != nil {
		return nil, fmt.Errorf("parse cron expression %q: %w", spec, err)
	}
	return a, nil
}

// Start schedules the autosave job.
func (a *Autosaver) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cron != nil {
		return fmt.Errorf("autosaver already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New(cron.WithParser(a.parser), cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(a.spec, func() { a.tick(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("schedule autosave: %w", err)
	}
	c.Start()
	a.cron = c
	a.cancel = cancel

	a.logger.Info("autosave started", slog.String("schedule", a.spec),
		slog.Time("next_run", a.NextRun(time.Now())))
	return nil
}

// Stop cancels pending runs and waits for a running save to finish.
func (a *Autosaver) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cron == nil {
		return nil
	}

	<-a.cron.Stop().Done()
	a.cancel()
	a.cron = nil
	a.cancel = nil

	a.logger.Info("autosave stopped")
	return nil
}

// RunOnce saves dirty scenes immediately. Overlapping runs are skipped.
func (a *Autosaver) RunOnce(ctx context.Context) (int, error) {
	if !a.tryAcquire() {
		return 0, nil
	}
	defer a.release()

	n, err := a.saver.SaveDirty(ctx)

	a.runMu.Lock()
	a.lastRun = time.Now().UTC()
	a.lastSaved = n
	a.runMu.Unlock()
	return n, err
}

func (a *Autosaver) tick(ctx context.Context) {
	n, err := a.RunOnce(ctx)
	if err != nil {
		a.logger.Error("autosave failed", slog.String("error", err.Error()))
		return
	}
	if n > 0 {
		a.logger.Info("autosaved scenes", slog.Int("count", n))
	}
}

// LastRun returns when the last save ran and how many scenes it stored.
func (a *Autosaver) LastRun() (time.Time, int) {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	return a.lastRun, a.lastSaved
}

// NextRun computes the next run time after from.
func (a *Autosaver) NextRun(from time.Time) time.Time {
	schedule, err := a.parser.Parse(a.spec)
	if err != nil {
		return time.Time{}
	}
	return schedule.Next(from)
}

// tryAcquire returns true and marks a run in flight if none is running.
func (a *Autosaver) tryAcquire() bool {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running {
		return false
	}
	a.running = true
	return true
}

func (a *Autosaver) release() {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	a.running = false
}
