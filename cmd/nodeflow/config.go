package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rendis/nodeflow/pkg/schema"
)

// Config holds all nodeflow configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	ListenAddr          string             `json:"listen_addr"`
	DBPath              string             `json:"db_path"`
	LogLevel            string             `json:"log_level"`
	LogFormat           string             `json:"log_format"`
	AutosaveCron        string             `json:"autosave_cron"`
	KeepRevisions       int                `json:"keep_revisions"`
	VacuumOnStart       bool               `json:"vacuum_on_start,omitempty"`
	MaxPropagationDepth int                `json:"max_propagation_depth"`
	CyclePolicy         schema.CyclePolicy `json:"cycle_policy"`
	StyleFile           string             `json:"style_file,omitempty"`
	ConvertersFile      string             `json:"converters_file,omitempty"`
	Neo4jURI            string             `json:"neo4j_uri,omitempty"`
	Neo4jUser           string             `json:"neo4j_user,omitempty"`
	Neo4jPassword       string             `json:"neo4j_password,omitempty"`
	Neo4jDatabase       string             `json:"neo4j_database,omitempty"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr:          ":4200",
		DBPath:              filepath.Join(nodeflowDir(), "nodeflow.db"),
		LogLevel:            "info",
		LogFormat:           "text",
		AutosaveCron:        "@every 1m",
		KeepRevisions:       50,
		MaxPropagationDepth: 256,
		CyclePolicy:         schema.CyclesReject,
		Neo4jUser:           "neo4j",
		Neo4jDatabase:       "neo4j",
	}
}

func nodeflowDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".nodeflow"
	}
	return filepath.Join(home, ".nodeflow")
}

func settingsPath() string {
	return filepath.Join(nodeflowDir(), "settings.json")
}

func binDir() string {
	return filepath.Join(nodeflowDir(), "bin")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	envString(&cfg.ListenAddr, "NODEFLOW_LISTEN_ADDR")
	envString(&cfg.DBPath, "NODEFLOW_DB_PATH")
	envString(&cfg.LogLevel, "NODEFLOW_LOG_LEVEL")
	envString(&cfg.LogFormat, "NODEFLOW_LOG_FORMAT")
	envString(&cfg.AutosaveCron, "NODEFLOW_AUTOSAVE_CRON")
	envString(&cfg.StyleFile, "NODEFLOW_STYLE_FILE")
	envString(&cfg.ConvertersFile, "NODEFLOW_CONVERTERS_FILE")
	envString(&cfg.Neo4jURI, "NODEFLOW_NEO4J_URI")
	envString(&cfg.Neo4jUser, "NODEFLOW_NEO4J_USER")
	envString(&cfg.Neo4jPassword, "NODEFLOW_NEO4J_PASSWORD")
	envString(&cfg.Neo4jDatabase, "NODEFLOW_NEO4J_DATABASE")
	if v := os.Getenv("NODEFLOW_MAX_PROPAGATION_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxPropagationDepth = n
		}
	}
	if v := os.Getenv("NODEFLOW_KEEP_REVISIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.KeepRevisions = n
		}
	}
	if v := os.Getenv("NODEFLOW_VACUUM_ON_START"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.VacuumOnStart = b
		}
	}
	if v := os.Getenv("NODEFLOW_CYCLE_POLICY"); v != "" {
		cfg.CyclePolicy = schema.CyclePolicy(v)
	}

	if cfg.CyclePolicy != schema.CyclesAllow {
		cfg.CyclePolicy = schema.CyclesReject
	}
	return cfg
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// configDiff describes what changed between two configurations.
type configDiff struct {
	LogLevelChanged bool
	StyleChanged    bool
	RestartNeeded   []string // fields that require a server restart
}

func diffConfigs(old, new Config) configDiff {
	var d configDiff
	if old.LogLevel != new.LogLevel {
		d.LogLevelChanged = true
	}
	if old.StyleFile != new.StyleFile {
		d.StyleChanged = true
	}
	if old.ListenAddr != new.ListenAddr {
		d.RestartNeeded = append(d.RestartNeeded, "listen_addr")
	}
	if old.DBPath != new.DBPath {
		d.RestartNeeded = append(d.RestartNeeded, "db_path")
	}
	if old.LogFormat != new.LogFormat {
		d.RestartNeeded = append(d.RestartNeeded, "log_format")
	}
	if old.AutosaveCron != new.AutosaveCron {
		d.RestartNeeded = append(d.RestartNeeded, "autosave_cron")
	}
	if old.KeepRevisions != new.KeepRevisions {
		d.RestartNeeded = append(d.RestartNeeded, "keep_revisions")
	}
	if old.MaxPropagationDepth != new.MaxPropagationDepth {
		d.RestartNeeded = append(d.RestartNeeded, "max_propagation_depth")
	}
	if old.CyclePolicy != new.CyclePolicy {
		d.RestartNeeded = append(d.RestartNeeded, "cycle_policy")
	}
	if old.ConvertersFile != new.ConvertersFile {
		d.RestartNeeded = append(d.RestartNeeded, "converters_file")
	}
	if old.Neo4jURI != new.Neo4jURI || old.Neo4jUser != new.Neo4jUser ||
		old.Neo4jPassword != new.Neo4jPassword || old.Neo4jDatabase != new.Neo4jDatabase {
		d.RestartNeeded = append(d.RestartNeeded, "neo4j")
	}
	return d
}

func pidPath() string {
	return filepath.Join(nodeflowDir(), "nodeflow.pid")
}
