package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/nodeflow/internal/flow"
	"github.com/rendis/nodeflow/internal/store"
	"github.com/rendis/nodeflow/pkg/schema"
)

func TestNewApp_SavesOnClose(t *testing.T) {
	cfg := testConfig(t)
	cfg.AutosaveCron = "@every 1h"
	ctx := context.Background()

	a, err := newApp(ctx, cfg, io.Discard)
	require.NoError(t, err)
	require.NoError(t, a.start(ctx))

	sess, err := a.scenes.Create(ctx, "boot")
	require.NoError(t, err)
	require.NoError(t, sess.Update(ctx, func(g *flow.Graph) error {
		_, err := g.AddNode("NumberSource", schema.Position{})
		return err
	}))
	a.close(ctx)

	db, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	require.NoError(t, err)
	defer db.Close()
	sc, err := db.GetSceneByName(ctx, "boot")
	require.NoError(t, err)
	assert.Equal(t, int64(1), sc.Revision)
	require.NotNil(t, sc.Document)
	assert.Len(t, sc.Document.Nodes, 1)
}

func TestNewApp_RetentionAndHealth(t *testing.T) {
	cfg := testConfig(t)
	cfg.AutosaveCron = "@every 1h"
	cfg.KeepRevisions = 1
	cfg.VacuumOnStart = true
	ctx := context.Background()

	a, err := newApp(ctx, cfg, io.Discard)
	require.NoError(t, err)
	defer a.close(ctx)

	sess, err := a.scenes.Create(ctx, "kept")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, sess.Update(ctx, func(g *flow.Graph) error {
			_, err := g.AddNode("NumberSource", schema.Position{})
			return err
		}))
		_, err := a.scenes.Save(ctx, sess.ID())
		require.NoError(t, err)
	}
	revs, err := a.store.ListRevisions(ctx, sess.ID())
	require.NoError(t, err)
	require.Len(t, revs, 1)
	assert.Equal(t, int64(3), revs[0].Revision)

	rec := httptest.NewRecorder()
	a.apiHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Contains(t, body, "autosave")
}

func TestNewApp_BadSettings(t *testing.T) {
	ctx := context.Background()

	cfg := testConfig(t)
	cfg.AutosaveCron = "every now and then"
	_, err := newApp(ctx, cfg, io.Discard)
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.StyleFile = writeFile(t, "style.json", `{"NodeStyle": {"FontColor": "red"}}`)
	_, err = newApp(ctx, cfg, io.Discard)
	assert.Error(t, err)
}

func TestLoadConverterDefs(t *testing.T) {
	defs, err := loadConverterDefs("")
	require.NoError(t, err)
	assert.Nil(t, defs)

	jsonPath := writeFile(t, "conv.json", `[{"from": "bool", "to": "number", "engine": "expr", "expression": "value ? 1 : 0"}]`)
	defs, err = loadConverterDefs(jsonPath)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "bool", defs[0].From)

	hclPath := writeFile(t, "conv.hcl", `
converter "json" "number" {
  engine     = "jq"
  expression = ".value | length"
}
`)
	defs, err = loadConverterDefs(hclPath)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "jq", defs[0].Engine)

	reg, conv, err := buildRegistries(jsonPath)
	require.NoError(t, err)
	assert.NotEmpty(t, reg.Names())
	_, ok := conv.Lookup("bool", "number")
	assert.True(t, ok)

	_, err = loadConverterDefs(writeFile(t, "bad.json", `{`))
	assert.Error(t, err)
}
