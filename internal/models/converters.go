package models

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rendis/nodeflow/internal/expressions"
	"github.com/rendis/nodeflow/internal/flow"
)

// Converter adapts one data type to another. Instances are created
// implicitly by the graph when connecting mismatched ports.
type Converter struct {
	flow.BaseModel

	name    string
	from    flow.DataType
	to      flow.DataType
	convert func(any) (any, error)

	out     flow.NodeData
	state   flow.ValidationState
	message string
}

// NewConverter returns a factory for a converter applying fn to payloads.
func NewConverter(name string, from, to flow.DataType, fn func(any) (any, error)) flow.ConverterFactory {
	return func() flow.NodeDataModel {
		return &Converter{name: name, from: from, to: to, convert: fn}
	}
}

func (m *Converter) Name() string    { return m.name }
func (m *Converter) Caption() string { return m.from.Name + " → " + m.to.Name }
func (m *Converter) NumPorts(pt flow.PortType) int {
	if pt == flow.PortIn || pt == flow.PortOut {
		return 1
	}
	return 0
}

func (m *Converter) DataType(pt flow.PortType, _ flow.PortIndex) flow.DataType {
	if pt == flow.PortIn {
		return m.from
	}
	return m.to
}

func (m *Converter) OutData(flow.PortIndex) flow.NodeData { return m.out }

func (m *Converter) SetInData(d flow.NodeData, _ flow.PortIndex) {
	m.out = nil
	m.state, m.message = flow.Valid, ""
	if d != nil {
		v, err := m.convert(Payload(d))
		if err == nil {
			m.out, err = coerce(m.to, v)
		}
		if err != nil {
			m.state, m.message = flow.Error, err.Error()
		}
	}
	m.Emit(0)
}

func (m *Converter) Validation() (flow.ValidationState, string) {
	return m.state, m.message
}

func numberToText(v any) (any, error) {
	f, ok := toFloat(v)
	if !ok {
		return nil, fmt.Errorf("%v is not a number", v)
	}
	return formatNumber(f), nil
}

func textToNumber(v any) (any, error) {
	s, _ := v.(string)
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil, fmt.Errorf("%q is not a number", s)
	}
	return f, nil
}

func boolToText(v any) (any, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, fmt.Errorf("%v is not a bool", v)
	}
	return strconv.FormatBool(b), nil
}

func jsonToText(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// coerce wraps v as data of type t, converting between numeric shapes.
func coerce(t flow.DataType, v any) (flow.NodeData, error) {
	switch t.ID {
	case NumberType.ID:
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("%v (%T) is not a number", v, v)
		}
		return Number(f), nil
	case TextType.ID:
		if s, ok := v.(string); ok {
			return Text(s), nil
		}
		return Text(fmt.Sprint(v)), nil
	case BoolType.ID:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("%v (%T) is not a bool", v, v)
		}
		return Bool(b), nil
	}
	return flow.Value{T: t, V: v}, nil
}

// ConverterDef declares a converter evaluated by an expression engine.
// The expression sees the incoming payload as value.
type ConverterDef struct {
	From       string `json:"from" hcl:"from"`
	To         string `json:"to" hcl:"to"`
	Engine     string `json:"engine" hcl:"engine"`
	Expression string `json:"expression" hcl:"expression"`
}

// NewExpressionConverter compiles def and returns its data types and factory.
func NewExpressionConverter(def ConverterDef, engines *expressions.Engines) (flow.DataType, flow.DataType, flow.ConverterFactory, error) {
	from, ok := LookupType(def.From)
	if !ok {
		return flow.DataType{}, flow.DataType{}, nil, fmt.Errorf("unknown data type %q", def.From)
	}
	to, ok := LookupType(def.To)
	if !ok {
		return flow.DataType{}, flow.DataType{}, nil, fmt.Errorf("unknown data type %q", def.To)
	}
	engine, err := engines.Get(def.Engine)
	if err != nil {
		return flow.DataType{}, flow.DataType{}, nil, err
	}
	if err := engine.Compile(def.Expression); err != nil {
		return flow.DataType{}, flow.DataType{}, nil, err
	}

	name := fmt.Sprintf("%s→%s (%s)", from.Name, to.Name, engine.Name())
	expression := def.Expression
	factory := NewConverter(name, from, to, func(v any) (any, error) {
		scope := expressions.NewScope([]any{v}, nil)
		return engine.Evaluate(context.Background(), expression, scope.Map())
	})
	return from, to, factory, nil
}
