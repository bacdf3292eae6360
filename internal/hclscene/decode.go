// Package hclscene reads and writes scenes declared in HCL:
//
//	scene "calculator" {
//	  node "a" {
//	    model = "NumberSource"
//	    x     = 0
//	    y     = 0
//	    state {
//	      value = 3
//	    }
//	  }
//	  node "out" {
//	    model = "NumberDisplay"
//	    x     = 200
//	  }
//	  connect {
//	    from = "a.0"
//	    to   = "out.0"
//	  }
//	}
//
//	converter "json" "number" {
//	  engine     = "jq"
//	  expression = ".value | length"
//	}
package hclscene

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	ctyjson "github.com/zclconf/go-cty/cty/json"

	"github.com/rendis/nodeflow/internal/models"
	"github.com/rendis/nodeflow/pkg/schema"
)

// File is the top-level structure of a scene file.
type File struct {
	Scenes     []*SceneBlock     `hcl:"scene,block"`
	Converters []*ConverterBlock `hcl:"converter,block"`
}

// SceneBlock declares one scene.
type SceneBlock struct {
	Name        string          `hcl:"name,label"`
	Nodes       []*NodeBlock    `hcl:"node,block"`
	Connections []*ConnectBlock `hcl:"connect,block"`
}

// NodeBlock declares one node. Label is local to the file; ID, when set,
// must be a UUID and is used verbatim.
type NodeBlock struct {
	Label string      `hcl:"label,label"`
	Model string      `hcl:"model"`
	ID    string      `hcl:"id,optional"`
	X     float64     `hcl:"x,optional"`
	Y     float64     `hcl:"y,optional"`
	Layer int         `hcl:"layer,optional"`
	State *StateBlock `hcl:"state,block"`
}

// StateBlock holds free-form model state attributes.
type StateBlock struct {
	Body hcl.Body `hcl:",remain"`
}

// ConnectBlock links "label.port" endpoints. The port defaults to 0.
type ConnectBlock struct {
	From string `hcl:"from"`
	To   string `hcl:"to"`
}

// ConverterBlock declares an expression converter between two data type ids.
type ConverterBlock struct {
	From       string `hcl:"from,label"`
	To         string `hcl:"to,label"`
	Engine     string `hcl:"engine"`
	Expression string `hcl:"expression"`
}

// LoadFile parses and decodes a scene file from disk.
func LoadFile(path string) (*File, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scene file %s: %w", path, err)
	}
	return Parse(src, path)
}

// Parse parses and decodes HCL source. filename is used in diagnostics.
func Parse(src []byte, filename string) (*File, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "failed to parse HCL file %s: %s", filename, diags.Error())
	}

	var f File
	diags = gohcl.DecodeBody(file.Body, nil, &f)
	if diags.HasErrors() {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "failed to decode HCL file %s: %s", filename, diags.Error())
	}
	return &f, nil
}

// Scene returns the named scene block.
func (f *File) Scene(name string) (*SceneBlock, bool) {
	for _, s := range f.Scenes {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// ConverterDefs returns the declared converters.
func (f *File) ConverterDefs() []models.ConverterDef {
	defs := make([]models.ConverterDef, 0, len(f.Converters))
	for _, c := range f.Converters {
		defs = append(defs, models.ConverterDef{
			From: c.From, To: c.To, Engine: c.Engine, Expression: c.Expression,
		})
	}
	return defs
}

// Document converts the block into a scene document. Node ids are derived
// from the scene name and node label unless set explicitly, so reloading
// the same file yields the same ids.
func (s *SceneBlock) Document() (*schema.SceneDocument, error) {
	doc := &schema.SceneDocument{
		Version:     schema.SceneFormatVersion,
		Nodes:       make([]schema.NodeRecord, 0, len(s.Nodes)),
		Connections: make([]schema.ConnectionRecord, 0, len(s.Connections)),
	}
	ids := make(map[string]string, len(s.Nodes))

	for _, n := range s.Nodes {
		if _, dup := ids[n.Label]; dup {
			return nil, schema.NewErrorf(schema.ErrCodeConflict, "scene %q: duplicate node %q", s.Name, n.Label)
		}
		id, err := s.nodeID(n)
		if err != nil {
			return nil, err
		}
		ids[n.Label] = id

		state, err := n.State.values()
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "scene %q node %q: %v", s.Name, n.Label, err).WithCause(err)
		}
		state[schema.ModelNameKey] = n.Model

		doc.Nodes = append(doc.Nodes, schema.NodeRecord{
			ID:       id,
			Position: schema.Position{X: n.X, Y: n.Y},
			Layer:    n.Layer,
			Model:    state,
		})
	}

	for i, c := range s.Connections {
		outLabel, outPort, err := parseEndpoint(c.From)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "scene %q connect %d: %v", s.Name, i, err)
		}
		inLabel, inPort, err := parseEndpoint(c.To)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "scene %q connect %d: %v", s.Name, i, err)
		}
		outID, ok := ids[outLabel]
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeNotFound, "scene %q connect %d: unknown node %q", s.Name, i, outLabel)
		}
		inID, ok := ids[inLabel]
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeNotFound, "scene %q connect %d: unknown node %q", s.Name, i, inLabel)
		}
		doc.Connections = append(doc.Connections, schema.ConnectionRecord{
			OutNodeID: outID, OutPortIndex: outPort,
			InNodeID: inID, InPortIndex: inPort,
		})
	}
	return doc, nil
}

func (s *SceneBlock) nodeID(n *NodeBlock) (string, error) {
	if n.ID == "" {
		return uuid.NewSHA1(uuid.NameSpaceURL, []byte("nodeflow:"+s.Name+"/"+n.Label)).String(), nil
	}
	id, err := uuid.Parse(n.ID)
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeValidation, "scene %q node %q: invalid id %q", s.Name, n.Label, n.ID)
	}
	return id.String(), nil
}

// values evaluates the state attributes into JSON-compatible Go values.
func (b *StateBlock) values() (map[string]any, error) {
	out := map[string]any{}
	if b == nil || b.Body == nil {
		return out, nil
	}
	attrs, diags := b.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("state: %s", diags.Error())
	}
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, fmt.Errorf("state.%s: %s", name, diags.Error())
		}
		raw, err := ctyjson.Marshal(val, val.Type())
		if err != nil {
			return nil, fmt.Errorf("state.%s: %w", name, err)
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("state.%s: %w", name, err)
		}
		out[name] = v
	}
	return out, nil
}

// parseEndpoint splits "label.port" into its parts; a bare label means port 0.
func parseEndpoint(s string) (string, int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", 0, fmt.Errorf("empty endpoint")
	}
	i := strings.LastIndexByte(s, '.')
	if i < 0 {
		return s, 0, nil
	}
	port, err := strconv.Atoi(s[i+1:])
	if err != nil || port < 0 {
		return "", 0, fmt.Errorf("invalid port in endpoint %q", s)
	}
	if i == 0 {
		return "", 0, fmt.Errorf("missing node in endpoint %q", s)
	}
	return s[:i], port, nil
}
