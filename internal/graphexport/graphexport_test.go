package graphexport

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/nodeflow/internal/expressions"
	"github.com/rendis/nodeflow/internal/flow"
	"github.com/rendis/nodeflow/internal/models"
	"github.com/rendis/nodeflow/internal/scene"
	"github.com/rendis/nodeflow/internal/store"
	"github.com/rendis/nodeflow/internal/streaming"
	"github.com/rendis/nodeflow/pkg/schema"
)

func sampleDoc() *schema.SceneDocument {
	return &schema.SceneDocument{
		Version: schema.SceneFormatVersion,
		Nodes: []schema.NodeRecord{
			{ID: "a", Position: schema.Position{X: 1, Y: 2}, Model: map[string]any{"name": "NumberSource", "value": 3.0}},
			{ID: "b", Position: schema.Position{X: 10}, Layer: 2, Model: map[string]any{"name": "NumberDisplay"}},
		},
		Connections: []schema.ConnectionRecord{
			{OutNodeID: "a", OutPortIndex: 0, InNodeID: "b", InPortIndex: 0},
		},
	}
}

func TestExportStatements(t *testing.T) {
	stmts, err := exportStatements("scene-1", "calc", 4, sampleDoc())
	require.NoError(t, err)
	require.Len(t, stmts, 4)

	assert.Contains(t, stmts[0].Query, "MERGE (s:FlowScene")
	assert.Equal(t, "calc", stmts[0].Params["name"])
	assert.Equal(t, int64(4), stmts[0].Params["revision"])
	assert.Contains(t, stmts[1].Query, "DETACH DELETE n")

	nodes, ok := stmts[2].Params["nodes"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, nodes, 2)
	assert.Equal(t, "NumberSource", nodes[0]["model"])
	assert.Equal(t, 1.0, nodes[0]["x"])
	assert.Equal(t, int64(2), nodes[1]["layer"])

	var state map[string]any
	require.NoError(t, json.Unmarshal([]byte(nodes[0]["state"].(string)), &state))
	assert.Equal(t, 3.0, state["value"])

	conns, ok := stmts[3].Params["connections"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, conns, 1)
	assert.Equal(t, "a", conns[0]["out_id"])
	assert.Equal(t, int64(0), conns[0]["in_index"])
	assert.Contains(t, stmts[3].Query, "[:CONNECTS")

	for _, st := range stmts {
		assert.Equal(t, "scene-1", st.Params["scene_id"])
	}
}

func TestExportStatements_EmptyScene(t *testing.T) {
	stmts, err := exportStatements("s", "empty", 1, &schema.SceneDocument{Version: 1})
	require.NoError(t, err)
	assert.Empty(t, stmts[2].Params["nodes"])
	assert.Empty(t, stmts[3].Params["connections"])
}

func TestExportStatements_UnmarshalableState(t *testing.T) {
	doc := &schema.SceneDocument{Nodes: []schema.NodeRecord{
		{ID: "x", Model: map[string]any{"name": "Bad", "ch": make(chan int)}},
	}}
	_, err := exportStatements("s", "bad", 1, doc)
	assert.Error(t, err)
}

// --- Mirror ---

type exportCall struct {
	sceneID  string
	name     string
	revision int64
	nodes    int
}

type fakeExporter struct {
	mu      sync.Mutex
	exports []exportCall
	deletes []string
}

func (f *fakeExporter) ExportScene(_ context.Context, sceneID, name string, revision int64, doc *schema.SceneDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exports = append(f.exports, exportCall{sceneID, name, revision, len(doc.Nodes)})
	return nil
}

func (f *fakeExporter) DeleteScene(_ context.Context, sceneID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, sceneID)
	return nil
}

func (f *fakeExporter) Close(context.Context) error { return nil }

func (f *fakeExporter) snapshot() ([]exportCall, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]exportCall(nil), f.exports...), append([]string(nil), f.deletes...)
}

func newManager(t *testing.T, hub streaming.EventHub) *scene.Manager {
	t.Helper()
	engines, err := expressions.NewEngines()
	require.NoError(t, err)
	reg, conv, err := models.NewRegistries(engines, nil)
	require.NoError(t, err)

	s, err := store.NewLibSQLStore("file:" + filepath.Join(t.TempDir(), "scenes.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })

	return scene.NewManager(scene.Deps{
		Models:     reg,
		Converters: conv,
		Store:      s,
		Hub:        hub,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestMirror_ExportsOnSaveAndDeletes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := streaming.NewMemoryHub()
	mgr := newManager(t, hub)
	exp := &fakeExporter{}
	mirror := NewMirror(exp, mgr, hub, slog.New(slog.NewTextHandler(io.Discard, nil)))

	done := make(chan error, 1)
	go func() { done <- mirror.Run(ctx) }()
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	sess, err := mgr.Create(ctx, "calc")
	require.NoError(t, err)
	require.NoError(t, sess.Update(ctx, func(g *flow.Graph) error {
		_, err := g.AddNode("NumberSource", schema.Position{})
		return err
	}))
	_, err = mgr.Save(ctx, sess.ID())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		exports, _ := exp.snapshot()
		return len(exports) == 1
	}, time.Second, 5*time.Millisecond)
	exports, _ := exp.snapshot()
	assert.Equal(t, exportCall{sceneID: sess.ID(), name: "calc", revision: 1, nodes: 1}, exports[0])

	require.NoError(t, mgr.Delete(ctx, sess.ID()))
	require.Eventually(t, func() bool {
		_, deletes := exp.snapshot()
		return len(deletes) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestMirror_ExportUnknownScene(t *testing.T) {
	hub := streaming.NewMemoryHub()
	mirror := NewMirror(&fakeExporter{}, newManager(t, hub), hub, nil)
	err := mirror.Export(context.Background(), "missing")
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}
