package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/rendis/nodeflow/internal/expressions"
	"github.com/rendis/nodeflow/internal/flow"
	"github.com/rendis/nodeflow/internal/graphexport"
	"github.com/rendis/nodeflow/internal/hclscene"
	"github.com/rendis/nodeflow/internal/logging"
	"github.com/rendis/nodeflow/internal/models"
	"github.com/rendis/nodeflow/internal/scene"
	"github.com/rendis/nodeflow/internal/scheduler"
	"github.com/rendis/nodeflow/internal/store"
	"github.com/rendis/nodeflow/internal/streaming"
	"github.com/rendis/nodeflow/internal/style"
	"github.com/rendis/nodeflow/internal/validation"
)

// app holds the wired components shared by the serve and mcp subcommands.
type app struct {
	cfg      Config
	level    *slog.LevelVar
	logger   *slog.Logger
	store    *store.LibSQLStore
	hub      *streaming.MemoryHub
	scenes   *scene.Manager
	style    style.Style
	autosave *scheduler.Autosaver
	exporter *graphexport.Neo4jExporter
}

// newApp builds the registries, store, hub and scene manager from cfg.
// Logs go to logOut.
func newApp(ctx context.Context, cfg Config, logOut io.Writer) (*app, error) {
	level := new(slog.LevelVar)
	level.Set(logging.ParseLevel(cfg.LogLevel))
	logger := logging.NewLeveled(logOut, level, cfg.LogFormat)

	reg, conv, err := buildRegistries(cfg.ConvertersFile)
	if err != nil {
		return nil, err
	}

	st, err := style.Load(cfg.StyleFile)
	if err != nil {
		return nil, fmt.Errorf("load style: %w", err)
	}

	validator, err := validation.NewSceneValidator(reg,
		validation.WithConverters(conv),
		validation.WithCyclePolicy(cfg.CyclePolicy),
	)
	if err != nil {
		return nil, fmt.Errorf("scene validator: %w", err)
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	db, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	if cfg.VacuumOnStart {
		if err := db.Vacuum(ctx); err != nil {
			logger.Warn("vacuum failed", slog.String("error", err.Error()))
		}
	}

	hub := streaming.NewMemoryHub()
	mgr := scene.NewManager(scene.Deps{
		Models:        reg,
		Converters:    conv,
		Store:         db,
		EventLog:      store.NewEventLog(db),
		Hub:           hub,
		Validator:     validator,
		Logger:        logger,
		KeepRevisions: cfg.KeepRevisions,
		GraphOptions: []flow.Option{
			flow.WithLogger(logger),
			flow.WithMaxPropagationDepth(cfg.MaxPropagationDepth),
			flow.WithCyclePolicy(cfg.CyclePolicy),
		},
	})

	a := &app{
		cfg:    cfg,
		level:  level,
		logger: logger,
		store:  db,
		hub:    hub,
		scenes: mgr,
		style:  st,
	}

	if cfg.AutosaveCron != "" {
		a.autosave, err = scheduler.NewAutosaver(mgr, cfg.AutosaveCron, logger)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	if cfg.Neo4jURI != "" {
		a.exporter, err = graphexport.NewNeo4jExporter(ctx, graphexport.Config{
			URI:      cfg.Neo4jURI,
			Username: cfg.Neo4jUser,
			Password: cfg.Neo4jPassword,
			Database: cfg.Neo4jDatabase,
		})
		if err != nil {
			// The mirror is optional; scenes still persist to libSQL.
			logger.Warn("neo4j mirror disabled", slog.String("error", err.Error()))
			a.exporter = nil
		}
	}
	return a, nil
}

// start launches the background workers. They stop when ctx is cancelled.
func (a *app) start(ctx context.Context) error {
	if a.autosave != nil {
		if err := a.autosave.Start(ctx); err != nil {
			return err
		}
	}
	if a.exporter != nil {
		mirror := graphexport.NewMirror(a.exporter, a.scenes, a.hub, a.logger)
		go func() {
			if err := mirror.Run(ctx); err != nil {
				a.logger.Warn("neo4j mirror stopped", slog.String("error", err.Error()))
			}
		}()
	}
	return nil
}

// close saves dirty scenes and releases every resource.
func (a *app) close(ctx context.Context) {
	if a.autosave != nil {
		_ = a.autosave.Stop()
	}
	if err := a.scenes.CloseAll(ctx); err != nil {
		a.logger.Error("save on shutdown failed", slog.String("error", err.Error()))
	}
	if a.exporter != nil {
		_ = a.exporter.Close(ctx)
	}
	_ = a.store.Close()
}

// buildRegistries registers the built-in models and converters plus any
// declarative converters from path (HCL converter blocks or a JSON array).
func buildRegistries(path string) (*flow.ModelRegistry, *flow.ConverterRegistry, error) {
	engines, err := expressions.NewEngines()
	if err != nil {
		return nil, nil, fmt.Errorf("expression engines: %w", err)
	}
	defs, err := loadConverterDefs(path)
	if err != nil {
		return nil, nil, err
	}
	return models.NewRegistries(engines, defs)
}

func loadConverterDefs(path string) ([]models.ConverterDef, error) {
	if path == "" {
		return nil, nil
	}
	if strings.EqualFold(filepath.Ext(path), ".hcl") {
		file, err := hclscene.LoadFile(path)
		if err != nil {
			return nil, err
		}
		return file.ConverterDefs(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read converters: %w", err)
	}
	var defs []models.ConverterDef
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("parse converters %s: %w", path, err)
	}
	return defs, nil
}
