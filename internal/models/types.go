package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/rendis/nodeflow/internal/flow"
)

// Built-in data types.
var (
	NumberType = flow.DataType{ID: "number", Name: "Number"}
	TextType   = flow.DataType{ID: "text", Name: "Text"}
	BoolType   = flow.DataType{ID: "bool", Name: "Bool"}
	JSONType   = flow.DataType{ID: "json", Name: "JSON"}
)

var builtinTypes = map[string]flow.DataType{
	NumberType.ID: NumberType,
	TextType.ID:   TextType,
	BoolType.ID:   BoolType,
	JSONType.ID:   JSONType,
}

// LookupType returns the built-in data type with the given id.
func LookupType(id string) (flow.DataType, bool) {
	t, ok := builtinTypes[id]
	return t, ok
}

// Types returns every built-in data type sorted by id.
func Types() []flow.DataType {
	out := make([]flow.DataType, 0, len(builtinTypes))
	for _, t := range builtinTypes {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Number wraps a float as NodeData.
func Number(v float64) flow.NodeData { return flow.Value{T: NumberType, V: v} }

// Text wraps a string as NodeData.
func Text(s string) flow.NodeData { return flow.Value{T: TextType, V: s} }

// Bool wraps a bool as NodeData.
func Bool(b bool) flow.NodeData { return flow.Value{T: BoolType, V: b} }

// JSON wraps an arbitrary JSON-compatible value as NodeData.
func JSON(v any) flow.NodeData { return flow.Value{T: JSONType, V: v} }

// Payload unwraps the value carried by d, or nil.
func Payload(d flow.NodeData) any {
	if v, ok := d.(flow.Value); ok {
		return v.V
	}
	return nil
}

// toFloat accepts the numeric shapes produced by JSON, HCL and the
// expression engines.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// formatNumber renders a number without trailing zeros.
func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// clears reports whether state holds key with an explicit null.
func clears(state map[string]any, key string) bool {
	raw, ok := state[key]
	return ok && raw == nil
}

// stringParam reads an optional string field from a state record.
func stringParam(state map[string]any, key string) (string, bool, error) {
	raw, ok := state[key]
	if !ok || raw == nil {
		return "", false, nil
	}
	s, isStr := raw.(string)
	if !isStr {
		return "", false, fmt.Errorf("%s must be a string, got %T", key, raw)
	}
	return s, true, nil
}
