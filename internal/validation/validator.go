package validation

import "github.com/rendis/nodeflow/pkg/schema"

// Validator checks scene documents before they are restored into a graph.
// Uses JSON Schema Draft 2020-12 for document and model-state validation.
type Validator interface {
	ValidateScene(doc *schema.SceneDocument) error
	ValidateState(state map[string]any, stateSchema []byte) error
}
