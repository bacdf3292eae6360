package models

import (
	"fmt"

	"github.com/rendis/nodeflow/internal/expressions"
	"github.com/rendis/nodeflow/internal/flow"
)

// Model categories shown by the node-creation menu.
const (
	CategorySources   = "Sources"
	CategoryDisplays  = "Displays"
	CategoryOperators = "Operators"
	CategoryScripted  = "Scripted"
)

// RegisterBuiltins adds every built-in model and converter.
func RegisterBuiltins(reg *flow.ModelRegistry, conv *flow.ConverterRegistry, engines *expressions.Engines) error {
	entries := []struct {
		name     string
		category string
		factory  flow.ModelFactory
	}{
		{"NumberSource", CategorySources, NewNumberSource},
		{"TextSource", CategorySources, NewTextSource},
		{"JSONSource", CategorySources, NewJSONSource},
		{"NumberDisplay", CategoryDisplays, NewNumberDisplay},
		{"TextDisplay", CategoryDisplays, NewTextDisplay},
		{"Addition", CategoryOperators, NewAddition},
		{"Subtraction", CategoryOperators, NewSubtraction},
		{"Multiplication", CategoryOperators, NewMultiplication},
		{"Division", CategoryOperators, NewDivision},
		{"Expression", CategoryScripted, NewExpression(engines)},
		{"Condition", CategoryScripted, NewCondition(engines)},
		{"JQTransform", CategoryScripted, NewJQTransform(engines)},
		{"Template", CategoryScripted, NewTemplate},
	}
	for _, e := range entries {
		if err := reg.Register(e.name, e.category, e.factory); err != nil {
			return err
		}
	}

	converters := []struct {
		from, to flow.DataType
		name     string
		fn       func(any) (any, error)
	}{
		{NumberType, TextType, "NumberToText", numberToText},
		{TextType, NumberType, "TextToNumber", textToNumber},
		{BoolType, TextType, "BoolToText", boolToText},
		{JSONType, TextType, "JSONToText", jsonToText},
	}
	for _, c := range converters {
		if err := conv.Register(c.from, c.to, NewConverter(c.name, c.from, c.to, c.fn)); err != nil {
			return err
		}
	}
	return nil
}

// RegisterConverters adds declarative converters.
func RegisterConverters(conv *flow.ConverterRegistry, defs []ConverterDef, engines *expressions.Engines) error {
	for i, def := range defs {
		from, to, factory, err := NewExpressionConverter(def, engines)
		if err != nil {
			return fmt.Errorf("converter %d (%s -> %s): %w", i, def.From, def.To, err)
		}
		if err := conv.Register(from, to, factory); err != nil {
			return fmt.Errorf("converter %d: %w", i, err)
		}
	}
	return nil
}

// StateSchemaProvider is implemented by models that publish a JSON Schema
// for their saved state.
type StateSchemaProvider interface {
	StateSchema() string
}

// NewRegistries builds model and converter registries holding the built-ins
// plus the given declarative converters.
func NewRegistries(engines *expressions.Engines, defs []ConverterDef) (*flow.ModelRegistry, *flow.ConverterRegistry, error) {
	reg := flow.NewModelRegistry()
	conv := flow.NewConverterRegistry()
	if err := RegisterBuiltins(reg, conv, engines); err != nil {
		return nil, nil, err
	}
	if err := RegisterConverters(conv, defs, engines); err != nil {
		return nil, nil, err
	}
	return reg, conv, nil
}
