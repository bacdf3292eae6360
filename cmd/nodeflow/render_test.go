package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/nodeflow/pkg/schema"
)

const renderHCL = `
scene "double" {
  node "in" {
    model = "NumberSource"
    state {
      value = 21
    }
  }
  node "twice" {
    model = "Expression"
    state {
      expression = "a * 2"
    }
  }
  node "out" {
    model = "TextDisplay"
    x     = 300
  }
  connect {
    from = "in"
    to   = "out"
  }
}

scene "empty" {
}
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testConfig(t *testing.T) Config {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	cfg := defaultConfig()
	cfg.DBPath = filepath.Join(t.TempDir(), "render.db")
	return cfg
}

func TestRenderScene_HCL(t *testing.T) {
	cfg := testConfig(t)
	path := writeFile(t, "scenes.hcl", renderHCL)

	var buf bytes.Buffer
	err := renderScene(context.Background(), cfg, renderOptions{File: path, Name: "double", Format: "mermaid"}, &buf)
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "graph LR")
	assert.Contains(t, out, "%% double")
	assert.Contains(t, out, "Number Source")

	buf.Reset()
	err = renderScene(context.Background(), cfg, renderOptions{File: path, Name: "double", Format: "png"}, &buf)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")))

	buf.Reset()
	err = renderScene(context.Background(), cfg, renderOptions{File: path, Name: "double", Format: "hcl"}, &buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `scene "double"`)
}

func TestRenderScene_JSONRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	hclPath := writeFile(t, "scenes.hcl", renderHCL)

	var doc bytes.Buffer
	require.NoError(t, renderScene(context.Background(), cfg, renderOptions{File: hclPath, Name: "double", Format: "json"}, &doc))

	jsonPath := writeFile(t, "double.json", doc.String())
	var buf bytes.Buffer
	require.NoError(t, renderScene(context.Background(), cfg, renderOptions{File: jsonPath, Format: "ascii"}, &buf))
	assert.Contains(t, buf.String(), "Number Source")
}

func TestRenderScene_Errors(t *testing.T) {
	cfg := testConfig(t)
	path := writeFile(t, "scenes.hcl", renderHCL)

	tests := []struct {
		name string
		opts renderOptions
	}{
		{"no source", renderOptions{Format: "ascii"}},
		{"ambiguous scene", renderOptions{File: path, Format: "ascii"}},
		{"unknown scene", renderOptions{File: path, Name: "missing", Format: "ascii"}},
		{"unknown format", renderOptions{File: path, Name: "double", Format: "gif"}},
		{"missing stored scene", renderOptions{Scene: "nope", Format: "ascii"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			assert.Error(t, renderScene(context.Background(), cfg, tt.opts, &buf))
		})
	}

	var buf bytes.Buffer
	err := renderScene(context.Background(), cfg, renderOptions{File: path, Name: "missing", Format: "ascii"}, &buf)
	assert.True(t, schema.IsCode(err, schema.ErrCodeNotFound))
}
