package graphexport

import (
	"context"
	"log/slog"
	"os"

	"github.com/rendis/nodeflow/internal/scene"
	"github.com/rendis/nodeflow/internal/streaming"
	"github.com/rendis/nodeflow/pkg/schema"
)

// SceneSource resolves open scenes by id.
type SceneSource interface {
	Get(idOrName string) (*scene.Session, error)
}

// Mirror exports every scene to an Exporter each time it is saved and
// removes it when the scene is deleted.
type Mirror struct {
	exporter Exporter
	scenes   SceneSource
	hub      streaming.EventHub
	logger   *slog.Logger
}

// NewMirror creates a Mirror. A nil logger writes to stderr.
func NewMirror(exporter Exporter, scenes SceneSource, hub streaming.EventHub, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Mirror{exporter: exporter, scenes: scenes, hub: hub, logger: logger}
}

// Run exports saved scenes until ctx is done or the subscription closes.
func (m *Mirror) Run(ctx context.Context) error {
	events, cancel, err := m.hub.Subscribe(ctx, streaming.EventFilter{
		EventTypes: []string{schema.EventSceneSaved, schema.EventSceneDeleted},
	})
	if err != nil {
		return err
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := m.handle(ctx, ev); err != nil {
				m.logger.WarnContext(ctx, "graph export failed",
					slog.String("scene_id", ev.SceneID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

func (m *Mirror) handle(ctx context.Context, ev streaming.SceneEvent) error {
	if ev.EventType == schema.EventSceneDeleted {
		return m.exporter.DeleteScene(ctx, ev.SceneID)
	}
	return m.Export(ctx, ev.SceneID)
}

// Export mirrors the current contents of one scene.
func (m *Mirror) Export(ctx context.Context, sceneID string) error {
	sess, err := m.scenes.Get(sceneID)
	if err != nil {
		return err
	}
	info := sess.Info()
	if err := m.exporter.ExportScene(ctx, info.ID, info.Name, info.Revision, sess.Snapshot()); err != nil {
		return err
	}
	m.logger.DebugContext(ctx, "scene exported",
		slog.String("scene_id", info.ID),
		slog.Int64("revision", info.Revision),
	)
	return nil
}
