package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/nodeflow/pkg/schema"
)

func TestLoadConfig_Defaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg := loadConfig()
	assert.Equal(t, ":4200", cfg.ListenAddr)
	assert.Equal(t, filepath.Join(home, ".nodeflow", "nodeflow.db"), cfg.DBPath)
	assert.Equal(t, 256, cfg.MaxPropagationDepth)
	assert.Equal(t, schema.CyclesReject, cfg.CyclePolicy)
	assert.Equal(t, 50, cfg.KeepRevisions)
	assert.False(t, cfg.VacuumOnStart)
	assert.Empty(t, cfg.Neo4jURI)
}

func TestLoadConfig_Layering(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".nodeflow"), 0o700))
	require.NoError(t, os.WriteFile(settingsPath(), []byte(`{
		"listen_addr": ":9000",
		"log_level": "debug",
		"cycle_policy": "allow",
		"max_propagation_depth": 32
	}`), 0o600))

	t.Setenv("NODEFLOW_LISTEN_ADDR", ":9100")
	t.Setenv("NODEFLOW_MAX_PROPAGATION_DEPTH", "64")
	t.Setenv("NODEFLOW_NEO4J_URI", "bolt://graph:7687")

	cfg := loadConfig()
	assert.Equal(t, ":9100", cfg.ListenAddr, "env beats settings.json")
	assert.Equal(t, "debug", cfg.LogLevel, "settings.json beats defaults")
	assert.Equal(t, schema.CyclesAllow, cfg.CyclePolicy)
	assert.Equal(t, 64, cfg.MaxPropagationDepth)
	assert.Equal(t, "bolt://graph:7687", cfg.Neo4jURI)
	assert.Equal(t, "neo4j", cfg.Neo4jUser)
}

func TestLoadConfig_Retention(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("NODEFLOW_KEEP_REVISIONS", "5")
	t.Setenv("NODEFLOW_VACUUM_ON_START", "true")

	cfg := loadConfig()
	assert.Equal(t, 5, cfg.KeepRevisions)
	assert.True(t, cfg.VacuumOnStart)
}

func TestLoadConfig_UnknownCyclePolicy(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("NODEFLOW_CYCLE_POLICY", "sometimes")
	assert.Equal(t, schema.CyclesReject, loadConfig().CyclePolicy)
}

func TestDiffConfigs(t *testing.T) {
	old := defaultConfig()

	next := old
	next.LogLevel = "debug"
	next.StyleFile = "/tmp/style.json"
	d := diffConfigs(old, next)
	assert.True(t, d.LogLevelChanged)
	assert.True(t, d.StyleChanged)
	assert.Empty(t, d.RestartNeeded)

	next = old
	next.ListenAddr = ":1"
	next.CyclePolicy = schema.CyclesAllow
	next.Neo4jPassword = "secret"
	d = diffConfigs(old, next)
	assert.False(t, d.LogLevelChanged)
	assert.Equal(t, []string{"listen_addr", "cycle_policy", "neo4j"}, d.RestartNeeded)
}
