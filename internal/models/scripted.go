package models

import (
	"context"
	"fmt"

	"github.com/rendis/nodeflow/internal/expressions"
	"github.com/rendis/nodeflow/internal/flow"
)

// Scripted is a node whose output is computed by an expression over its
// inputs and parameters. Input ports are also bound by caption, so an
// Expression node can say "a + b" as well as "inputs[0] + inputs[1]".
type Scripted struct {
	flow.BaseModel

	name       string
	caption    string
	inTypes    []flow.DataType
	inCaptions []string
	outType    flow.DataType

	engine     expressions.Engine
	expression string
	params     map[string]any
	// result converts the raw evaluation result into output data.
	result func(any) (flow.NodeData, error)

	inputs  []any
	out     flow.NodeData
	state   flow.ValidationState
	message string
}

// NewExpression returns a factory for numeric expr-lang nodes with two inputs.
func NewExpression(engines *expressions.Engines) flow.ModelFactory {
	return func() flow.NodeDataModel {
		eng, _ := engines.Get("expr")
		return newScripted("Expression", "Expression", eng, "a + b",
			[]flow.DataType{NumberType, NumberType}, []string{"a", "b"}, NumberType,
			func(v any) (flow.NodeData, error) {
				f, ok := toFloat(v)
				if !ok {
					return nil, fmt.Errorf("expression result %v (%T) is not a number", v, v)
				}
				return Number(f), nil
			})
	}
}

// NewCondition returns a factory for CEL predicate nodes: Number in, Bool out.
func NewCondition(engines *expressions.Engines) flow.ModelFactory {
	return func() flow.NodeDataModel {
		eng, _ := engines.Get("cel")
		return newScripted("Condition", "Condition", eng, "value > 0.0",
			[]flow.DataType{NumberType}, []string{"value"}, BoolType,
			func(v any) (flow.NodeData, error) {
				b, ok := v.(bool)
				if !ok {
					return nil, fmt.Errorf("condition result %v (%T) is not a bool", v, v)
				}
				return Bool(b), nil
			})
	}
}

// NewJQTransform returns a factory for jq nodes: JSON in, JSON out. The
// program input is the scope object, so the document is at .value.
func NewJQTransform(engines *expressions.Engines) flow.ModelFactory {
	return func() flow.NodeDataModel {
		eng, _ := engines.Get("jq")
		return newScripted("JQTransform", "jq", eng, ".value",
			[]flow.DataType{JSONType}, []string{"document"}, JSONType,
			func(v any) (flow.NodeData, error) { return JSON(v), nil })
	}
}

// NewTemplate creates a node rendering a ${{...}} template: Number in, Text out.
func NewTemplate() flow.NodeDataModel {
	return newScripted("Template", "Template", nil, "${{value}}",
		[]flow.DataType{NumberType}, []string{"value"}, TextType,
		func(v any) (flow.NodeData, error) { return Text(fmt.Sprint(v)), nil })
}

func newScripted(name, caption string, engine expressions.Engine, expression string,
	inTypes []flow.DataType, inCaptions []string, outType flow.DataType,
	result func(any) (flow.NodeData, error)) *Scripted {
	return &Scripted{
		name:       name,
		caption:    caption,
		inTypes:    inTypes,
		inCaptions: inCaptions,
		outType:    outType,
		engine:     engine,
		expression: expression,
		result:     result,
		inputs:     make([]any, len(inTypes)),
		state:      flow.Warning,
		message:    "waiting for input",
	}
}

func (m *Scripted) Name() string { return m.name }

func (m *Scripted) Caption() string {
	if c, ok := m.params["caption"].(string); ok && c != "" {
		return c
	}
	return m.caption
}

// Expression returns the current expression or template.
func (m *Scripted) Expression() string { return m.expression }

func (m *Scripted) NumPorts(pt flow.PortType) int {
	switch pt {
	case flow.PortIn:
		return len(m.inTypes)
	case flow.PortOut:
		return 1
	}
	return 0
}

func (m *Scripted) DataType(pt flow.PortType, idx flow.PortIndex) flow.DataType {
	if pt == flow.PortIn && idx >= 0 && int(idx) < len(m.inTypes) {
		return m.inTypes[idx]
	}
	return m.outType
}

func (m *Scripted) PortCaption(pt flow.PortType, idx flow.PortIndex) string {
	if pt == flow.PortIn && idx >= 0 && int(idx) < len(m.inCaptions) {
		return m.inCaptions[idx]
	}
	return ""
}

func (m *Scripted) OutData(flow.PortIndex) flow.NodeData { return m.out }

func (m *Scripted) SetInData(d flow.NodeData, idx flow.PortIndex) {
	if idx < 0 || int(idx) >= len(m.inputs) {
		return
	}
	m.inputs[idx] = Payload(d)
	m.recompute()
}

func (m *Scripted) recompute() {
	m.out = nil
	scope := expressions.NewScope(m.inputs, m.params)
	if !scope.Ready() {
		m.state, m.message = flow.Warning, "waiting for input"
		m.Emit(0)
		return
	}

	raw, err := m.evaluate(scope)
	if err == nil {
		m.out, err = m.result(raw)
	}
	if err != nil {
		m.out = nil
		m.state, m.message = flow.Error, err.Error()
	} else {
		m.state, m.message = flow.Valid, ""
	}
	m.Emit(0)
}

func (m *Scripted) evaluate(scope *expressions.Scope) (any, error) {
	if m.engine == nil {
		return expressions.Interpolate(m.expression, scope)
	}
	data := scope.Map()
	for i, name := range m.inCaptions {
		if _, taken := data[name]; !taken {
			data[name] = scope.Inputs[i]
		}
	}
	return m.engine.Evaluate(context.Background(), m.expression, data)
}

func (m *Scripted) Validation() (flow.ValidationState, string) {
	return m.state, m.message
}

func (m *Scripted) Save() map[string]any {
	state := map[string]any{"expression": m.expression}
	if len(m.params) > 0 {
		state["params"] = m.params
	}
	return state
}

func (m *Scripted) Restore(state map[string]any) error {
	if raw, ok := state["params"]; ok && raw != nil {
		params, isMap := raw.(map[string]any)
		if !isMap {
			return fmt.Errorf("params must be an object, got %T", raw)
		}
		m.params = params
	}
	expression, ok, err := stringParam(state, "expression")
	if err != nil {
		return err
	}
	if ok {
		if err := m.check(expression); err != nil {
			return err
		}
		m.expression = expression
	}
	m.recompute()
	return nil
}

func (m *Scripted) check(expression string) error {
	if expression == "" {
		return fmt.Errorf("expression is empty")
	}
	if m.engine == nil {
		return expressions.ValidateTemplate(expression)
	}
	return m.engine.Compile(expression)
}

func (m *Scripted) StateSchema() string {
	return `{
		"type": "object",
		"properties": {
			"expression": {"type": "string", "minLength": 1},
			"params": {"type": "object"}
		}
	}`
}
