package hclscene

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/nodeflow/internal/expressions"
	"github.com/rendis/nodeflow/internal/flow"
	"github.com/rendis/nodeflow/internal/models"
	"github.com/rendis/nodeflow/pkg/schema"
)

const calculatorHCL = `
scene "calculator" {
  node "a" {
    model = "NumberSource"
    x     = 0
    y     = 10
    state {
      value = 3
    }
  }

  node "b" {
    model = "NumberSource"
    state {
      value = 4.5
    }
  }

  node "sum" {
    model = "Addition"
    x     = 200
    layer = 2
  }

  node "out" {
    model = "TextDisplay"
    x     = 400
  }

  node "fmt" {
    model = "Template"
    state {
      expression = "total=$${{value}}"
      params = {
        caption = "Format"
      }
    }
  }

  connect {
    from = "a.0"
    to   = "sum.0"
  }
  connect {
    from = "b"
    to   = "sum.1"
  }
  connect {
    from = "sum.0"
    to   = "out.0"
  }
}

converter "json" "number" {
  engine     = "jq"
  expression = ".value | length"
}
`

func TestParse_Calculator(t *testing.T) {
	f, err := Parse([]byte(calculatorHCL), "calc.hcl")
	require.NoError(t, err)
	require.Len(t, f.Scenes, 1)

	defs := f.ConverterDefs()
	require.Len(t, defs, 1)
	assert.Equal(t, models.ConverterDef{From: "json", To: "number", Engine: "jq", Expression: ".value | length"}, defs[0])

	sc, ok := f.Scene("calculator")
	require.True(t, ok)
	doc, err := sc.Document()
	require.NoError(t, err)

	require.Len(t, doc.Nodes, 5)
	require.Len(t, doc.Connections, 3)
	assert.Equal(t, schema.SceneFormatVersion, doc.Version)

	a := doc.Nodes[0]
	assert.Equal(t, "NumberSource", a.ModelName())
	assert.Equal(t, schema.Position{X: 0, Y: 10}, a.Position)
	assert.Equal(t, float64(3), a.Model["value"])
	assert.Equal(t, 2, doc.Nodes[2].Layer)

	tpl := doc.Nodes[4].Model
	assert.Equal(t, "total=${{value}}", tpl["expression"])
	assert.Equal(t, map[string]any{"caption": "Format"}, tpl["params"])

	c := doc.Connections[1]
	assert.Equal(t, doc.Nodes[1].ID, c.OutNodeID)
	assert.Equal(t, 0, c.OutPortIndex)
	assert.Equal(t, doc.Nodes[2].ID, c.InNodeID)
	assert.Equal(t, 1, c.InPortIndex)

	again, err := sc.Document()
	require.NoError(t, err)
	assert.Equal(t, doc.Nodes[0].ID, again.Nodes[0].ID, "ids are stable across loads")
}

func TestParse_RestoresIntoGraph(t *testing.T) {
	f, err := Parse([]byte(calculatorHCL), "calc.hcl")
	require.NoError(t, err)
	doc, err := f.Scenes[0].Document()
	require.NoError(t, err)

	engines, err := expressions.NewEngines()
	require.NoError(t, err)
	reg, conv, err := models.NewRegistries(engines, f.ConverterDefs())
	require.NoError(t, err)

	g := flow.New(reg, conv)
	require.NoError(t, g.Restore(doc))

	out, ok := g.Node(mustUUID(t, doc.Nodes[3].ID))
	require.True(t, ok)
	display, ok := out.Model().(*models.TextDisplay)
	require.True(t, ok)
	assert.Equal(t, "7.5", display.Text())
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code string
	}{
		{"syntax", `scene "x" {`, schema.ErrCodeValidation},
		{"missing model", `scene "x" { node "a" {} }`, schema.ErrCodeValidation},
		{"unknown block", `widget "x" {}`, schema.ErrCodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), "bad.hcl")
			require.Error(t, err)
			assert.True(t, schema.IsCode(err, tt.code))
		})
	}
}

func TestDocument_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		code string
	}{
		{"duplicate label", `scene "x" {
  node "a" { model = "NumberSource" }
  node "a" { model = "NumberSource" }
}`, schema.ErrCodeConflict},
		{"unknown endpoint", `scene "x" {
  node "a" { model = "NumberSource" }
  connect {
    from = "a.0"
    to   = "zzz.0"
  }
}`, schema.ErrCodeNotFound},
		{"bad port", `scene "x" {
  node "a" { model = "NumberSource" }
  connect {
    from = "a.x"
    to   = "a.0"
  }
}`, schema.ErrCodeValidation},
		{"bad id", `scene "x" {
  node "a" {
    model = "NumberSource"
    id    = "nope"
  }
}`, schema.ErrCodeValidation},
		{"state reference", `scene "x" {
  node "a" {
    model = "NumberSource"
    state {
      value = var.missing
    }
  }
}`, schema.ErrCodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Parse([]byte(tt.src), "doc.hcl")
			require.NoError(t, err)
			_, err = f.Scenes[0].Document()
			require.Error(t, err)
			assert.True(t, schema.IsCode(err, tt.code), err.Error())
		})
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	f, err := Parse([]byte(calculatorHCL), "calc.hcl")
	require.NoError(t, err)
	doc, err := f.Scenes[0].Document()
	require.NoError(t, err)

	out, err := Encode("copy", doc)
	require.NoError(t, err)
	text := string(out)
	assert.Contains(t, text, `scene "copy"`)
	assert.Contains(t, text, `node "number_source_1"`)
	assert.Contains(t, text, `node "number_source_2"`)
	assert.Contains(t, text, `from = "number_source_2.0"`)

	back, err := Parse(out, "copy.hcl")
	require.NoError(t, err)
	doc2, err := back.Scenes[0].Document()
	require.NoError(t, err)

	require.Len(t, doc2.Nodes, len(doc.Nodes))
	for i := range doc.Nodes {
		assert.Equal(t, doc.Nodes[i].ID, doc2.Nodes[i].ID)
		assert.Equal(t, doc.Nodes[i].Position, doc2.Nodes[i].Position)
		assert.Equal(t, doc.Nodes[i].Layer, doc2.Nodes[i].Layer)
		assert.Equal(t, doc.Nodes[i].Model, doc2.Nodes[i].Model)
	}
	assert.Equal(t, doc.Connections, doc2.Connections)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.hcl")
	require.NoError(t, os.WriteFile(path, []byte(calculatorHCL), 0o644))

	f, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, f.Scenes, 1)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.hcl"))
	require.Error(t, err)
}

func TestNodeLabel(t *testing.T) {
	used := map[string]int{}
	assert.Equal(t, "json_source_1", nodeLabel("JSONSource", used))
	assert.Equal(t, "number_display_1", nodeLabel("NumberDisplay", used))
	assert.Equal(t, "number_display_2", nodeLabel("NumberDisplay", used))
	assert.Equal(t, "node_1", nodeLabel("", used))
}

func mustUUID(t *testing.T, s string) flow.NodeID {
	t.Helper()
	id, err := uuid.Parse(s)
	require.NoError(t, err)
	return id
}
