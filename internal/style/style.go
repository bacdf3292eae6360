// Package style holds the explicit visual style configuration consumed by
// renderers. Nothing in the graph core depends on it.
package style

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/rendis/nodeflow/internal/flow"
	"github.com/rendis/nodeflow/internal/validation"
	"github.com/rendis/nodeflow/pkg/schema"
)

// Style groups the node, connection and view styles.
type Style struct {
	View       ViewStyle       `json:"FlowViewStyle"`
	Node       NodeStyle       `json:"NodeStyle"`
	Connection ConnectionStyle `json:"ConnectionStyle"`
}

// ViewStyle describes the scene background.
type ViewStyle struct {
	BackgroundColor string `json:"BackgroundColor"`
	FineGridColor   string `json:"FineGridColor"`
	CoarseGridColor string `json:"CoarseGridColor"`
}

// NodeStyle describes node boxes and their ports.
type NodeStyle struct {
	NormalBoundaryColor        string    `json:"NormalBoundaryColor"`
	SelectedBoundaryColor      string    `json:"SelectedBoundaryColor"`
	GradientColors             [4]string `json:"GradientColors"`
	ShadowColor                string    `json:"ShadowColor"`
	FontColor                  string    `json:"FontColor"`
	FontColorFaded             string    `json:"FontColorFaded"`
	ConnectionPointColor       string    `json:"ConnectionPointColor"`
	FilledConnectionPointColor string    `json:"FilledConnectionPointColor"`
	WarningColor               string    `json:"WarningColor"`
	ErrorColor                 string    `json:"ErrorColor"`
	PenWidth                   float64   `json:"PenWidth"`
	HoveredPenWidth            float64   `json:"HoveredPenWidth"`
	ConnectionPointDiameter    float64   `json:"ConnectionPointDiameter"`
	Opacity                    float64   `json:"Opacity"`
}

// ConnectionStyle describes connection lines.
type ConnectionStyle struct {
	ConstructionColor     string  `json:"ConstructionColor"`
	NormalColor           string  `json:"NormalColor"`
	SelectedColor         string  `json:"SelectedColor"`
	SelectedHaloColor     string  `json:"SelectedHaloColor"`
	HoveredColor          string  `json:"HoveredColor"`
	LineWidth             float64 `json:"LineWidth"`
	ConstructionLineWidth float64 `json:"ConstructionLineWidth"`
	PointDiameter         float64 `json:"PointDiameter"`
	UseDataDefinedColors  bool    `json:"UseDataDefinedColors"`
}

// Default returns the built-in dark style.
func Default() Style {
	return Style{
		View: ViewStyle{
			BackgroundColor: "#353535",
			FineGridColor:   "#3c3c3c",
			CoarseGridColor: "#191919",
		},
		Node: NodeStyle{
			NormalBoundaryColor:        "#ffffff",
			SelectedBoundaryColor:      "#ffa500",
			GradientColors:             [4]string{"#808080", "#505050", "#404040", "#3a3a3a"},
			ShadowColor:                "#141414",
			FontColor:                  "#ffffff",
			FontColorFaded:             "#808080",
			ConnectionPointColor:       "#a9a9a9",
			FilledConnectionPointColor: "#00ffff",
			WarningColor:               "#808000",
			ErrorColor:                 "#ff0000",
			PenWidth:                   1.0,
			HoveredPenWidth:            1.5,
			ConnectionPointDiameter:    8.0,
			Opacity:                    0.8,
		},
		Connection: ConnectionStyle{
			ConstructionColor:     "#808080",
			NormalColor:           "#008b8b",
			SelectedColor:         "#646464",
			SelectedHaloColor:     "#ffa500",
			HoveredColor:          "#e0ffff",
			LineWidth:             3.0,
			ConstructionLineWidth: 2.0,
			PointDiameter:         10.0,
		},
	}
}

// styleSchema constrains style files: every colour is #rrggbb and every
// width is positive.
const styleSchema = `{
  "type": "object",
  "additionalProperties": false,
  "$defs": {
    "color": {"type": "string", "pattern": "^#[0-9a-fA-F]{6}$"},
    "width": {"type": "number", "exclusiveMinimum": 0}
  },
  "properties": {
    "FlowViewStyle": {
      "type": "object",
      "additionalProperties": {"$ref": "#/$defs/color"}
    },
    "NodeStyle": {
      "type": "object",
      "properties": {
        "GradientColors": {"type": "array", "items": {"$ref": "#/$defs/color"}, "minItems": 4, "maxItems": 4},
        "PenWidth": {"$ref": "#/$defs/width"},
        "HoveredPenWidth": {"$ref": "#/$defs/width"},
        "ConnectionPointDiameter": {"$ref": "#/$defs/width"},
        "Opacity": {"type": "number", "minimum": 0, "maximum": 1}
      },
      "additionalProperties": {"$ref": "#/$defs/color"}
    },
    "ConnectionStyle": {
      "type": "object",
      "properties": {
        "LineWidth": {"$ref": "#/$defs/width"},
        "ConstructionLineWidth": {"$ref": "#/$defs/width"},
        "PointDiameter": {"$ref": "#/$defs/width"},
        "UseDataDefinedColors": {"type": "boolean"}
      },
      "additionalProperties": {"$ref": "#/$defs/color"}
    }
  }
}`

// Parse reads a JSON style document. Fields it omits keep their default values.
func Parse(data []byte) (Style, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Style{}, schema.NewError(schema.ErrCodeValidation, "invalid style JSON").WithCause(err)
	}
	v, err := validation.NewJSONSchemaValidator()
	if err != nil {
		return Style{}, err
	}
	if err := v.ValidateState(raw, []byte(styleSchema)); err != nil {
		return Style{}, err
	}

	s := Default()
	if err := json.Unmarshal(data, &s); err != nil {
		return Style{}, schema.NewError(schema.ErrCodeValidation, "invalid style").WithCause(err)
	}
	return s, nil
}

// Load reads a style file. An empty path yields the default style.
func Load(path string) (Style, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Style{}, fmt.Errorf("read style %s: %w", path, err)
	}
	return Parse(data)
}

// ColorFor returns the line colour for connections carrying typeID.
func (c ConnectionStyle) ColorFor(typeID string) string {
	if !c.UseDataDefinedColors {
		return c.NormalColor
	}
	return DataTypeColor(typeID)
}

// BoundaryColor returns the node outline colour for the given validation state.
func (n NodeStyle) BoundaryColor(state flow.ValidationState) string {
	switch state {
	case flow.Error:
		return n.ErrorColor
	case flow.Warning:
		return n.WarningColor
	default:
		return n.NormalBoundaryColor
	}
}

// PortColor returns the colour of a port of the given type, filled or empty.
func (s Style) PortColor(typeID string, filled bool) string {
	if s.Connection.UseDataDefinedColors {
		return DataTypeColor(typeID)
	}
	if filled {
		return s.Node.FilledConnectionPointColor
	}
	return s.Node.ConnectionPointColor
}

// DataTypeColor derives a stable colour from a data type id: the hue and
// saturation come from a hash of the id, the lightness is fixed.
func DataTypeColor(typeID string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(typeID))
	sum := h.Sum32()

	hue := float64(sum%255) / 255 * 360
	sat := float64(120+sum%129) / 255
	return hslToHex(hue, sat, 160.0/255)
}

func hslToHex(h, s, l float64) string {
	c := (1 - math.Abs(2*l-1)) * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := l - c/2

	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	return fmt.Sprintf("#%02x%02x%02x", channel(r+m), channel(g+m), channel(b+m))
}

func channel(v float64) uint8 {
	return uint8(math.Round(math.Max(0, math.Min(1, v)) * 255))
}

// RGB splits a #rrggbb colour into its channels.
func RGB(color string) (r, g, b uint8, err error) {
	if len(color) != 7 || !strings.HasPrefix(color, "#") {
		return 0, 0, 0, fmt.Errorf("invalid colour %q", color)
	}
	v, err := strconv.ParseUint(color[1:], 16, 32)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid colour %q", color)
	}
	return uint8(v >> 16), uint8(v >> 8), uint8(v), nil
}
