package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rendis/nodeflow/internal/diagram"
	"github.com/rendis/nodeflow/internal/expressions"
	"github.com/rendis/nodeflow/internal/flow"
	"github.com/rendis/nodeflow/internal/hclscene"
	"github.com/rendis/nodeflow/internal/models"
	"github.com/rendis/nodeflow/internal/store"
	"github.com/rendis/nodeflow/internal/style"
	"github.com/rendis/nodeflow/pkg/schema"
)

// renderOptions selects a scene source and an output format.
type renderOptions struct {
	File   string // .hcl or .json scene file
	Name   string // scene block to pick from an HCL file
	Scene  string // stored scene id or name, when File is empty
	Format string // mermaid, ascii, png, svg, json, hcl
}

func runRender(args []string) {
	fs := flag.NewFlagSet("render", flag.ExitOnError)
	file := fs.String("file", "", "scene file (.hcl or .json)")
	name := fs.String("name", "", "scene block name inside an HCL file")
	sceneRef := fs.String("scene", "", "stored scene id or name")
	format := fs.String("format", "ascii", "output format: ascii, mermaid, png, svg, json, hcl")
	out := fs.String("out", "", "output path (default: stdout)")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	w := io.Writer(os.Stdout)
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		w = f
	}

	opts := renderOptions{File: *file, Name: *name, Scene: *sceneRef, Format: *format}
	if err := renderScene(context.Background(), loadConfig(), opts, w); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// renderScene loads the scene named by opts into a fresh graph and writes
// it to w in the requested format.
func renderScene(ctx context.Context, cfg Config, opts renderOptions, w io.Writer) error {
	defs, err := loadConverterDefs(cfg.ConvertersFile)
	if err != nil {
		return err
	}

	var (
		title string
		doc   *schema.SceneDocument
	)
	switch {
	case opts.File != "":
		title, doc, defs, err = loadSceneFile(opts.File, opts.Name, defs)
	case opts.Scene != "":
		title, doc, err = loadStoredScene(ctx, cfg.DBPath, opts.Scene)
	default:
		return fmt.Errorf("one of -file or -scene is required")
	}
	if err != nil {
		return err
	}

	engines, err := expressions.NewEngines()
	if err != nil {
		return err
	}
	reg, conv, err := models.NewRegistries(engines, defs)
	if err != nil {
		return err
	}
	g := flow.New(reg, conv,
		flow.WithMaxPropagationDepth(cfg.MaxPropagationDepth),
		flow.WithCyclePolicy(cfg.CyclePolicy),
	)
	if err := g.Restore(doc); err != nil {
		return err
	}

	st, err := style.Load(cfg.StyleFile)
	if err != nil {
		return err
	}
	model := diagram.Build(title, g, st)

	var out []byte
	switch opts.Format {
	case "ascii":
		out = []byte(diagram.RenderASCIIAuto(ctx, model, binDir()))
	case "mermaid":
		out = []byte(diagram.RenderMermaid(model))
	case "png", "svg":
		out, err = diagram.Render(ctx, model, diagram.ImageFormat(opts.Format))
	case "json":
		out, err = json.MarshalIndent(g.Save(), "", "  ")
	case "hcl":
		out, err = hclscene.Encode(title, g.Save())
	default:
		return fmt.Errorf("unknown format %q", opts.Format)
	}
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

// loadSceneFile reads an HCL or JSON scene file. HCL converter blocks are
// appended to defs.
func loadSceneFile(path, name string, defs []models.ConverterDef) (string, *schema.SceneDocument, []models.ConverterDef, error) {
	if !strings.EqualFold(filepath.Ext(path), ".hcl") {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", nil, nil, err
		}
		var doc schema.SceneDocument
		if err := json.Unmarshal(data, &doc); err != nil {
			return "", nil, nil, fmt.Errorf("parse %s: %w", path, err)
		}
		title := name
		if title == "" {
			title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
		return title, &doc, defs, nil
	}

	file, err := hclscene.LoadFile(path)
	if err != nil {
		return "", nil, nil, err
	}
	var block *hclscene.SceneBlock
	switch {
	case name != "":
		b, ok := file.Scene(name)
		if !ok {
			return "", nil, nil, schema.NewErrorf(schema.ErrCodeNotFound, "scene %q not declared in %s", name, path)
		}
		block = b
	case len(file.Scenes) == 1:
		block = file.Scenes[0]
	default:
		return "", nil, nil, fmt.Errorf("%s declares %d scenes; pick one with -name", path, len(file.Scenes))
	}
	doc, err := block.Document()
	if err != nil {
		return "", nil, nil, err
	}
	return block.Name, doc, append(defs, file.ConverterDefs()...), nil
}

func loadStoredScene(ctx context.Context, dbPath, ref string) (string, *schema.SceneDocument, error) {
	db, err := store.NewLibSQLStore("file:" + dbPath)
	if err != nil {
		return "", nil, err
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return "", nil, err
	}

	sc, err := db.GetScene(ctx, ref)
	if schema.IsCode(err, schema.ErrCodeNotFound) {
		sc, err = db.GetSceneByName(ctx, ref)
	}
	if err != nil {
		return "", nil, err
	}
	if sc.Document == nil {
		return sc.Name, &schema.SceneDocument{Version: schema.SceneFormatVersion}, nil
	}
	return sc.Name, sc.Document, nil
}
