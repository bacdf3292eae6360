package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rendis/nodeflow/pkg/schema"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

const sceneSchemaURL = "https://nodeflow.dev/schemas/scene.json"

// sceneSchemaJSON is the JSON Schema for SceneDocument validation.
const sceneSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://nodeflow.dev/schemas/scene.json",
  "type": "object",
  "required": ["nodes"],
  "properties": {
    "version": {
      "type": "integer",
      "minimum": 0
    },
    "nodes": {
      "type": ["array", "null"],
      "items": { "$ref": "#/$defs/node" }
    },
    "connections": {
      "type": ["array", "null"],
      "items": { "$ref": "#/$defs/connection" }
    }
  },
  "additionalProperties": false,
  "$defs": {
    "node": {
      "type": "object",
      "required": ["id", "model"],
      "properties": {
        "id": { "type": "string", "format": "uuid" },
        "position": {
          "type": "object",
          "properties": {
            "x": { "type": "number" },
            "y": { "type": "number" }
          },
          "additionalProperties": false
        },
        "layer": { "type": "integer" },
        "model": {
          "type": "object",
          "required": ["name"],
          "properties": {
            "name": { "type": "string", "minLength": 1 }
          }
        }
      },
      "additionalProperties": false
    },
    "connection": {
      "type": "object",
      "required": ["out_id", "out_index", "in_id", "in_index"],
      "properties": {
        "out_id": { "type": "string", "format": "uuid" },
        "out_index": { "type": "integer", "minimum": 0 },
        "in_id": { "type": "string", "format": "uuid" },
        "in_index": { "type": "integer", "minimum": 0 }
      },
      "additionalProperties": false
    }
  }
}`

// JSONSchemaValidator implements the Validator interface using JSON Schema Draft 2020-12.
// It is safe for concurrent use.
type JSONSchemaValidator struct {
	sceneSchema *jsonschema.Schema

	// mu guards the cache of compiled model-state schemas.
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// NewJSONSchemaValidator creates a new JSONSchemaValidator with the scene schema pre-compiled.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := newCompiler()

	schemaDoc, err := jsonschema.UnmarshalJSON(strings.NewReader(sceneSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal scene schema: %w", err)
	}
	if err := c.AddResource(sceneSchemaURL, schemaDoc); err != nil {
		return nil, fmt.Errorf("add scene schema resource: %w", err)
	}

	sceneSchema, err := c.Compile(sceneSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile scene schema: %w", err)
	}

	return &JSONSchemaValidator{
		sceneSchema: sceneSchema,
		cache:       make(map[string]*jsonschema.Schema),
	}, nil
}

// ValidateScene validates a SceneDocument against the scene JSON Schema.
func (v *JSONSchemaValidator) ValidateScene(doc *schema.SceneDocument) error {
	if doc == nil {
		return schema.NewError(schema.ErrCodeValidation, "scene document is nil")
	}
	value, err := toJSONValue(doc)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize scene document").WithCause(err)
	}
	return v.ValidateRaw(value)
}

// ValidateRaw validates an already-decoded JSON value (as produced by
// jsonschema.UnmarshalJSON) against the scene schema.
func (v *JSONSchemaValidator) ValidateRaw(value any) error {
	if err := v.sceneSchema.Validate(value); err != nil {
		return toFlowError(err)
	}
	return nil
}

// ValidateState validates a model state record against a JSON Schema provided as raw bytes.
// The schema is compiled and cached for subsequent calls with the same schema.
func (v *JSONSchemaValidator) ValidateState(state map[string]any, stateSchema []byte) error {
	if len(stateSchema) == 0 {
		return nil
	}
	if state == nil {
		state = map[string]any{}
	}

	compiled, err := v.getOrCompile(stateSchema)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "invalid state schema").WithCause(err)
	}

	doc, err := toJSONValue(state)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize state").WithCause(err)
	}

	if err := compiled.Validate(doc); err != nil {
		return toFlowError(err)
	}
	return nil
}

// getOrCompile returns a cached compiled schema or compiles and caches a new one.
func (v *JSONSchemaValidator) getOrCompile(schemaBytes []byte) (*jsonschema.Schema, error) {
	key := string(schemaBytes)

	v.mu.RLock()
	if cached, ok := v.cache[key]; ok {
		v.mu.RUnlock()
		return cached, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	// Double-check after acquiring write lock.
	if cached, ok := v.cache[key]; ok {
		return cached, nil
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(key))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	// Each state schema gets its own URL and compiler to avoid resource collisions.
	url := fmt.Sprintf("nodeflow://state-schema/%d", len(v.cache))
	c := newCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	v.cache[key] = compiled
	return compiled, nil
}

func newCompiler() *jsonschema.Compiler {
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	return c
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toFlowError converts a jsonschema.ValidationError into a FlowError
// listing every leaf violation with its instance location.
func toFlowError(err error) *schema.FlowError {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error messages
// with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
