package models

import (
	"encoding/json"
	"testing"

	"github.com/rendis/nodeflow/internal/expressions"
	"github.com/rendis/nodeflow/internal/flow"
	"github.com/rendis/nodeflow/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGraph(t *testing.T, defs ...ConverterDef) *flow.Graph {
	t.Helper()
	engines, err := expressions.NewEngines()
	require.NoError(t, err)
	reg, conv, err := NewRegistries(engines, defs)
	require.NoError(t, err)
	return flow.New(reg, conv)
}

func addNode(t *testing.T, g *flow.Graph, model string) flow.NodeID {
	t.Helper()
	id, err := g.AddNode(model, schema.Position{})
	require.NoError(t, err)
	return id
}

func connect(t *testing.T, g *flow.Graph, out flow.NodeID, outPort int, in flow.NodeID, inPort int) flow.Connection {
	t.Helper()
	c, err := g.Connect(out, flow.PortIndex(outPort), in, flow.PortIndex(inPort))
	require.NoError(t, err)
	return c
}

func model[T flow.NodeDataModel](t *testing.T, g *flow.Graph, id flow.NodeID) T {
	t.Helper()
	n, ok := g.Node(id)
	require.True(t, ok)
	m, ok := n.Model().(T)
	require.True(t, ok, "model is %T", n.Model())
	return m
}

func TestRegisterBuiltins(t *testing.T) {
	g := newGraph(t)
	assert.Contains(t, g.ModelNames(), "Addition")
	assert.Len(t, g.ModelNames(), 13)
	assert.Equal(t, []string{"Addition", "Division", "Multiplication", "Subtraction"},
		g.Models().Categories()[CategoryOperators])
	assert.Len(t, g.Converters().Pairs(), 4)
}

func TestCalculator(t *testing.T) {
	g := newGraph(t)
	a := addNode(t, g, "NumberSource")
	b := addNode(t, g, "NumberSource")
	add := addNode(t, g, "Addition")
	out := addNode(t, g, "NumberDisplay")

	connect(t, g, a, 0, add, 0)
	connect(t, g, b, 0, add, 1)
	connect(t, g, add, 0, out, 0)

	assert.Equal(t, flow.Warning, g.NodeValidationState(add))
	assert.Equal(t, flow.Warning, g.NodeValidationState(out))

	model[*NumberSource](t, g, a).SetValue(2)
	model[*NumberSource](t, g, b).SetValue(3.5)

	assert.Equal(t, flow.Valid, g.NodeValidationState(add))
	assert.Equal(t, "5.5", model[*NumberDisplay](t, g, out).Text())

	require.NoError(t, g.RemoveConnection(b, 0, add, 1))
	assert.Equal(t, flow.Warning, g.NodeValidationState(add))
	assert.Equal(t, "", model[*NumberDisplay](t, g, out).Text())
}

func TestDivisionByZero(t *testing.T) {
	g := newGraph(t)
	a := addNode(t, g, "NumberSource")
	b := addNode(t, g, "NumberSource")
	div := addNode(t, g, "Division")
	connect(t, g, a, 0, div, 0)
	connect(t, g, b, 0, div, 1)

	require.NoError(t, g.SetNodeState(a, map[string]any{"value": 1.0}))
	require.NoError(t, g.SetNodeState(b, map[string]any{"value": 0.0}))

	assert.Equal(t, flow.Error, g.NodeValidationState(div))
	assert.Equal(t, "division by zero", g.NodeValidationMessage(div))

	info, ok := g.Port(div, flow.PortIn, 1)
	require.True(t, ok)
	assert.Equal(t, "divisor", info.Caption)
}

func TestSourceState_NullClears(t *testing.T) {
	g := newGraph(t)
	num := addNode(t, g, "NumberSource")
	out := addNode(t, g, "NumberDisplay")
	connect(t, g, num, 0, out, 0)

	require.NoError(t, g.SetNodeState(num, map[string]any{"value": 4.0}))
	assert.Equal(t, "4", model[*NumberDisplay](t, g, out).Text())

	// A record without the key keeps the current value.
	require.NoError(t, g.SetNodeState(num, map[string]any{}))
	assert.Equal(t, "4", model[*NumberDisplay](t, g, out).Text())

	require.NoError(t, g.SetNodeState(num, map[string]any{"value": nil}))
	assert.Nil(t, model[*NumberSource](t, g, num).OutData(0))
	assert.Empty(t, model[*NumberSource](t, g, num).Save())
	assert.Equal(t, "", model[*NumberDisplay](t, g, out).Text())
	assert.Equal(t, flow.Warning, g.NodeValidationState(out))

	text := addNode(t, g, "TextSource")
	require.NoError(t, g.SetNodeState(text, map[string]any{"text": "hi"}))
	require.NoError(t, g.SetNodeState(text, map[string]any{"text": nil}))
	assert.Nil(t, model[*TextSource](t, g, text).OutData(0))

	doc := addNode(t, g, "JSONSource")
	require.NoError(t, g.SetNodeState(doc, map[string]any{"json": map[string]any{"a": 1.0}}))
	require.NotNil(t, model[*JSONSource](t, g, doc).OutData(0))
	require.NoError(t, g.SetNodeState(doc, map[string]any{"json": nil}))
	assert.Nil(t, model[*JSONSource](t, g, doc).OutData(0))
}

func TestTextToNumberConverter(t *testing.T) {
	g := newGraph(t)
	src := addNode(t, g, "TextSource")
	out := addNode(t, g, "NumberDisplay")
	conn := connect(t, g, src, 0, out, 0)
	require.True(t, conn.Converted())

	require.NoError(t, g.SetNodeState(src, map[string]any{"text": " 42 "}))
	assert.Equal(t, "42", model[*NumberDisplay](t, g, out).Text())

	require.NoError(t, g.SetNodeState(src, map[string]any{"text": "forty-two"}))
	assert.Equal(t, flow.Error, g.NodeValidationState(conn.Converter))
	assert.Equal(t, flow.Warning, g.NodeValidationState(out))
}

func TestExpressionModel(t *testing.T) {
	g := newGraph(t)
	a := addNode(t, g, "NumberSource")
	b := addNode(t, g, "NumberSource")
	ex := addNode(t, g, "Expression")
	out := addNode(t, g, "NumberDisplay")
	connect(t, g, a, 0, ex, 0)
	connect(t, g, b, 0, ex, 1)
	connect(t, g, ex, 0, out, 0)

	require.NoError(t, g.SetNodeState(ex, map[string]any{
		"expression": "a * b + params.bias",
		"params":     map[string]any{"bias": 1.0},
	}))
	require.NoError(t, g.SetNodeState(a, map[string]any{"value": 3.0}))
	require.NoError(t, g.SetNodeState(b, map[string]any{"value": 4.0}))
	assert.Equal(t, "13", model[*NumberDisplay](t, g, out).Text())

	err := g.SetNodeState(ex, map[string]any{"expression": "a +"})
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
	assert.Equal(t, "a * b + params.bias", model[*Scripted](t, g, ex).Expression())

	require.NoError(t, g.SetNodeState(ex, map[string]any{"expression": `"text"`}))
	assert.Equal(t, flow.Error, g.NodeValidationState(ex))
	assert.Contains(t, g.NodeValidationMessage(ex), "not a number")
}

func TestConditionAndBoolToText(t *testing.T) {
	g := newGraph(t)
	src := addNode(t, g, "NumberSource")
	cond := addNode(t, g, "Condition")
	out := addNode(t, g, "TextDisplay")
	connect(t, g, src, 0, cond, 0)
	connect(t, g, cond, 0, out, 0)

	require.NoError(t, g.SetNodeState(cond, map[string]any{"expression": "value >= 10.0"}))
	require.NoError(t, g.SetNodeState(src, map[string]any{"value": 12}))
	assert.Equal(t, "true", model[*TextDisplay](t, g, out).Text())

	require.NoError(t, g.SetNodeState(src, map[string]any{"value": 3}))
	assert.Equal(t, "false", model[*TextDisplay](t, g, out).Text())
}

func TestJQTransformPipeline(t *testing.T) {
	g := newGraph(t)
	src := addNode(t, g, "JSONSource")
	jq := addNode(t, g, "JQTransform")
	out := addNode(t, g, "TextDisplay")
	connect(t, g, src, 0, jq, 0)
	connect(t, g, jq, 0, out, 0)

	require.NoError(t, g.SetNodeState(jq, map[string]any{"expression": "[.value.items[] | .name]"}))
	require.NoError(t, g.SetNodeState(src, map[string]any{"json": map[string]any{
		"items": []any{map[string]any{"name": "a"}, map[string]any{"name": "b"}},
	}}))
	assert.Equal(t, `["a","b"]`, model[*TextDisplay](t, g, out).Text())
}

func TestTemplateModel(t *testing.T) {
	g := newGraph(t)
	src := addNode(t, g, "NumberSource")
	tpl := addNode(t, g, "Template")
	out := addNode(t, g, "TextDisplay")
	connect(t, g, src, 0, tpl, 0)
	connect(t, g, tpl, 0, out, 0)

	require.NoError(t, g.SetNodeState(tpl, map[string]any{
		"expression": "${{params.label}}: ${{value}} kg",
		"params":     map[string]any{"label": "Weight", "caption": "Label"},
	}))
	require.NoError(t, g.SetNodeState(src, map[string]any{"value": 2.5}))
	assert.Equal(t, "Weight: 2.5 kg", model[*TextDisplay](t, g, out).Text())
	assert.Equal(t, "Label", g.NodeCaption(tpl))

	err := g.SetNodeState(tpl, map[string]any{"expression": "${{steps.x}}"})
	assert.True(t, schema.IsCode(err, schema.ErrCodeValidation))
}

func TestDeclarativeConverter(t *testing.T) {
	g := newGraph(t, ConverterDef{From: "json", To: "number", Engine: "jq", Expression: ".value | length"})
	src := addNode(t, g, "JSONSource")
	out := addNode(t, g, "NumberDisplay")

	conn := connect(t, g, src, 0, out, 0)
	require.True(t, conn.Converted())
	require.NoError(t, g.SetNodeState(src, map[string]any{"json": []any{1, 2, 3}}))
	assert.Equal(t, "3", model[*NumberDisplay](t, g, out).Text())
	assert.Equal(t, "JSON→Number (jq)", g.NodeModelName(conn.Converter))
}

func TestRegisterConverters_Errors(t *testing.T) {
	engines, err := expressions.NewEngines()
	require.NoError(t, err)

	tests := []struct {
		name string
		def  ConverterDef
	}{
		{"unknown from", ConverterDef{From: "x", To: "text", Engine: "expr", Expression: "value"}},
		{"unknown to", ConverterDef{From: "number", To: "x", Engine: "expr", Expression: "value"}},
		{"unknown engine", ConverterDef{From: "number", To: "bool", Engine: "lua", Expression: "value"}},
		{"bad expression", ConverterDef{From: "number", To: "bool", Engine: "expr", Expression: "value >"}},
		{"duplicate builtin", ConverterDef{From: "number", To: "text", Engine: "expr", Expression: "string(value)"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := NewRegistries(engines, []ConverterDef{tt.def})
			assert.Error(t, err)
		})
	}
}

func TestSaveRestoreThroughJSON(t *testing.T) {
	g := newGraph(t)
	a := addNode(t, g, "NumberSource")
	b := addNode(t, g, "NumberSource")
	mul := addNode(t, g, "Multiplication")
	txt := addNode(t, g, "TextDisplay")
	connect(t, g, a, 0, mul, 0)
	connect(t, g, b, 0, mul, 1)
	connect(t, g, mul, 0, txt, 0)
	require.NoError(t, g.SetNodeState(a, map[string]any{"value": 6}))
	require.NoError(t, g.SetNodeState(b, map[string]any{"value": 7}))

	raw, err := json.Marshal(g.Save())
	require.NoError(t, err)

	var doc schema.SceneDocument
	require.NoError(t, json.Unmarshal(raw, &doc))

	g2 := newGraph(t)
	require.NoError(t, g2.Restore(&doc))
	assert.Equal(t, "42", model[*TextDisplay](t, g2, txt).Text())
	assert.Equal(t, 5, g2.NodeCount())
}
