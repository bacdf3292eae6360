package validation

import (
	"github.com/rendis/nodeflow/pkg/schema"
)

// SceneValidator validates a SceneDocument before it is restored:
// structural (JSON Schema), then semantic (models, endpoints, ports, types),
// then topology (cycles, isolated nodes).
type SceneValidator struct {
	schemas    *JSONSchemaValidator
	models     ModelLookup
	converters ConverterLookup
	policy     schema.CyclePolicy
}

// SceneValidatorOption configures a SceneValidator.
type SceneValidatorOption func(*SceneValidator)

// WithConverters enables converter-aware type checking of connections.
func WithConverters(c ConverterLookup) SceneValidatorOption {
	return func(v *SceneValidator) { v.converters = c }
}

// WithCyclePolicy sets how cycles are reported. Defaults to CyclesReject.
func WithCyclePolicy(p schema.CyclePolicy) SceneValidatorOption {
	return func(v *SceneValidator) { v.policy = p }
}

// NewSceneValidator creates a SceneValidator backed by the given model lookup.
func NewSceneValidator(models ModelLookup, opts ...SceneValidatorOption) (*SceneValidator, error) {
	schemas, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	v := &SceneValidator{
		schemas: schemas,
		models:  models,
		policy:  schema.CyclesReject,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Validate runs every stage and returns the combined report.
// Semantic stages are skipped when the document is structurally invalid.
func (v *SceneValidator) Validate(doc *schema.SceneDocument) *schema.ValidationReport {
	report := &schema.ValidationReport{}

	if err := v.schemas.ValidateScene(doc); err != nil {
		addStructuralErrors(report, err)
		return report
	}
	if doc.Version > schema.SceneFormatVersion {
		report.AddError("/version", schema.ErrCodeValidation, "unsupported scene version")
		return report
	}

	idx := v.validateNodes(doc, report)
	conns := v.validateConnections(doc, idx, report)
	validateTopology(idx, conns, v.policy, report)
	return report
}

// ValidateScene implements Validator. It returns the report as a FlowError.
func (v *SceneValidator) ValidateScene(doc *schema.SceneDocument) error {
	return v.Validate(doc).ToError()
}

// ValidateState implements Validator.
func (v *SceneValidator) ValidateState(state map[string]any, stateSchema []byte) error {
	return v.schemas.ValidateState(state, stateSchema)
}

func addStructuralErrors(report *schema.ValidationReport, err error) {
	fe, ok := err.(*schema.FlowError)
	if !ok {
		report.AddError("/", schema.ErrCodeValidation, err.Error())
		return
	}
	violations, _ := fe.Details["violations"].([]string)
	if len(violations) == 0 {
		report.AddError("/", fe.Code, fe.Message)
		return
	}
	for _, v := range violations {
		report.AddError("/", fe.Code, v)
	}
}
