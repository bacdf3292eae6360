package expressions

import (
	"encoding/json"
)

// Scope is the data visible to a node expression. It is a frozen snapshot:
// inputs and params are deep-copied on construction.
type Scope struct {
	Inputs []any          // input port values by index; nil for unset ports
	Params map[string]any // node parameters from the model state
	Node   map[string]any // node metadata (id, model)
}

// NewScope creates a Scope from the current input values and parameters.
func NewScope(inputs []any, params map[string]any) *Scope {
	cp := make([]any, len(inputs))
	for i, v := range inputs {
		cp[i] = deepCopyAny(v)
	}
	return &Scope{
		Inputs: cp,
		Params: deepCopyMap(params),
	}
}

// WithNode returns a copy of the scope carrying node metadata.
func (s *Scope) WithNode(meta map[string]any) *Scope {
	return &Scope{
		Inputs: s.Inputs,
		Params: s.Params,
		Node:   deepCopyMap(meta),
	}
}

// Value returns the first input, or nil when the node has no inputs.
func (s *Scope) Value() any {
	if len(s.Inputs) == 0 {
		return nil
	}
	return s.Inputs[0]
}

// Ready reports whether every input port holds a value.
func (s *Scope) Ready() bool {
	for _, v := range s.Inputs {
		if v == nil {
			return false
		}
	}
	return true
}

// Map returns the scope as an engine data map with the keys value,
// inputs, params and node.
func (s *Scope) Map() map[string]any {
	inputs := make([]any, len(s.Inputs))
	copy(inputs, s.Inputs)

	params := s.Params
	if params == nil {
		params = map[string]any{}
	}
	node := s.Node
	if node == nil {
		node = map[string]any{}
	}
	return map[string]any{
		"value":  s.Value(),
		"inputs": inputs,
		"params": params,
		"node":   node,
	}
}

// --- Deep copy utilities ---

// deepCopyMap creates a deep copy of a map[string]any.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = deepCopyAny(v)
	}
	return cp
}

// deepCopyAny recursively deep-copies a value.
// Handles maps, slices, and primitives (which are inherently immutable).
func deepCopyAny(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cp := make([]any, len(val))
		for i, item := range val {
			cp[i] = deepCopyAny(item)
		}
		return cp
	case json.RawMessage:
		if val == nil {
			return nil
		}
		cp := make(json.RawMessage, len(val))
		copy(cp, val)
		return cp
	default:
		return v
	}
}
