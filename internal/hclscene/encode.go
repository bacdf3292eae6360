package hclscene

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"

	"github.com/rendis/nodeflow/pkg/schema"
)

// Encode renders a scene document as an HCL scene block. Node ids are
// written explicitly so decoding the output restores the same ids.
func Encode(name string, doc *schema.SceneDocument) ([]byte, error) {
	if doc == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "scene document is nil")
	}
	f := hclwrite.NewEmptyFile()
	scene := f.Body().AppendNewBlock("scene", []string{name}).Body()

	labels := make(map[string]string, len(doc.Nodes))
	used := make(map[string]int)
	for i, n := range doc.Nodes {
		if i > 0 {
			scene.AppendNewline()
		}
		label := nodeLabel(n.ModelName(), used)
		labels[n.ID] = label

		nb := scene.AppendNewBlock("node", []string{label}).Body()
		nb.SetAttributeValue("model", cty.StringVal(n.ModelName()))
		nb.SetAttributeValue("id", cty.StringVal(n.ID))
		nb.SetAttributeValue("x", cty.NumberFloatVal(n.Position.X))
		nb.SetAttributeValue("y", cty.NumberFloatVal(n.Position.Y))
		if n.Layer != 0 {
			nb.SetAttributeValue("layer", cty.NumberIntVal(int64(n.Layer)))
		}

		keys := make([]string, 0, len(n.Model))
		for k := range n.Model {
			if k != schema.ModelNameKey {
				keys = append(keys, k)
			}
		}
		if len(keys) == 0 {
			continue
		}
		sort.Strings(keys)
		state := nb.AppendNewBlock("state", nil).Body()
		for _, k := range keys {
			val, err := toCty(n.Model[k])
			if err != nil {
				return nil, schema.NewErrorf(schema.ErrCodeValidation, "node %s state %q: %v", n.ID, k, err).WithCause(err)
			}
			state.SetAttributeValue(k, val)
		}
	}

	for _, c := range doc.Connections {
		out, ok := labels[c.OutNodeID]
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeNotFound, "connection references unknown node %s", c.OutNodeID)
		}
		in, ok := labels[c.InNodeID]
		if !ok {
			return nil, schema.NewErrorf(schema.ErrCodeNotFound, "connection references unknown node %s", c.InNodeID)
		}
		scene.AppendNewline()
		cb := scene.AppendNewBlock("connect", nil).Body()
		cb.SetAttributeValue("from", cty.StringVal(fmt.Sprintf("%s.%d", out, c.OutPortIndex)))
		cb.SetAttributeValue("to", cty.StringVal(fmt.Sprintf("%s.%d", in, c.InPortIndex)))
	}
	return f.Bytes(), nil
}

// toCty converts a JSON-compatible Go value into a cty.Value.
func toCty(v any) (cty.Value, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return cty.NilVal, err
	}
	ty, err := ctyjson.ImpliedType(raw)
	if err != nil {
		return cty.NilVal, err
	}
	return ctyjson.Unmarshal(raw, ty)
}

// nodeLabel derives a unique snake_case HCL identifier from a model name.
func nodeLabel(model string, used map[string]int) string {
	runes := []rune(model)
	var b strings.Builder
	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1]) ||
				(unicode.IsUpper(runes[i-1]) && i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	base := b.String()
	if base == "" {
		base = "node"
	}
	used[base]++
	return fmt.Sprintf("%s_%d", base, used[base])
}
