package flow

import (
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rendis/nodeflow/pkg/schema"
)

var (
	numberType = DataType{ID: "number", Name: "Number"}
	textType   = DataType{ID: "text", Name: "Text"}
)

// sourceModel has no inputs and one output of a fixed type.
type sourceModel struct {
	BaseModel
	typ   DataType
	value NodeData
}

func (m *sourceModel) Name() string    { return "Source" }
func (m *sourceModel) Caption() string { return "Source" }
func (m *sourceModel) NumPorts(pt PortType) int {
	if pt == PortOut {
		return 1
	}
	return 0
}
func (m *sourceModel) DataType(PortType, PortIndex) DataType { return m.typ }
func (m *sourceModel) SetInData(NodeData, PortIndex)         {}
func (m *sourceModel) OutData(PortIndex) NodeData            { return m.value }

func (m *sourceModel) Set(v any) {
	m.value = Value{T: m.typ, V: v}
	m.Emit(0)
}

func (m *sourceModel) Save() map[string]any {
	state := map[string]any{}
	if v, ok := m.value.(Value); ok {
		state["value"] = v.V
	}
	return state
}

func (m *sourceModel) Restore(state map[string]any) error {
	v, ok := state["value"]
	if !ok {
		return nil
	}
	if _, isMap := v.(map[string]any); isMap {
		return fmt.Errorf("value must be a scalar")
	}
	m.value = Value{T: m.typ, V: v}
	return nil
}

// sinkModel has one input and records every delivery.
type sinkModel struct {
	BaseModel
	typ      DataType
	policy   ConnectionPolicy
	caption  string
	received []NodeData
}

func (m *sinkModel) Name() string    { return "Sink" }
func (m *sinkModel) Caption() string { return "Sink" }
func (m *sinkModel) NumPorts(pt PortType) int {
	if pt == PortIn {
		return 1
	}
	return 0
}
func (m *sinkModel) DataType(PortType, PortIndex) DataType  { return m.typ }
func (m *sinkModel) PortCaption(PortType, PortIndex) string { return m.caption }
func (m *sinkModel) PortPolicy(PortIndex) ConnectionPolicy  { return m.policy }
func (m *sinkModel) SetInData(d NodeData, _ PortIndex)      { m.received = append(m.received, d) }
func (m *sinkModel) OutData(PortIndex) NodeData             { return nil }
func (m *sinkModel) last() NodeData {
	if len(m.received) == 0 {
		return nil
	}
	return m.received[len(m.received)-1]
}

func (m *sinkModel) Validation() (ValidationState, string) {
	if m.last() == nil {
		return Warning, "no input"
	}
	return Valid, ""
}

// relayModel forwards its input to its output, adding one to numbers.
type relayModel struct {
	BaseModel
	value NodeData
	calls int
}

func (m *relayModel) Name() string                          { return "Relay" }
func (m *relayModel) Caption() string                       { return "Relay" }
func (m *relayModel) NumPorts(PortType) int                 { return 1 }
func (m *relayModel) DataType(PortType, PortIndex) DataType { return numberType }
func (m *relayModel) PortPolicy(PortIndex) ConnectionPolicy { return PolicyMany }
func (m *relayModel) OutData(PortIndex) NodeData            { return m.value }
func (m *relayModel) SetInData(d NodeData, _ PortIndex) {
	m.calls++
	if v, ok := d.(Value); ok {
		n, _ := v.V.(int)
		m.value = Value{T: numberType, V: n + 1}
	} else {
		m.value = nil
	}
	m.Emit(0)
}

// numberToText converts Number values to their decimal Text form.
type numberToText struct {
	BaseModel
	out NodeData
}

func (m *numberToText) Name() string          { return "NumberToText" }
func (m *numberToText) Caption() string       { return "Number to Text" }
func (m *numberToText) NumPorts(PortType) int { return 1 }
func (m *numberToText) DataType(pt PortType, _ PortIndex) DataType {
	if pt == PortIn {
		return numberType
	}
	return textType
}
func (m *numberToText) OutData(PortIndex) NodeData { return m.out }
func (m *numberToText) SetInData(d NodeData, _ PortIndex) {
	m.out = nil
	if v, ok := d.(Value); ok {
		if n, ok := v.V.(int); ok {
			m.out = Value{T: textType, V: strconv.Itoa(n)}
		}
	}
	m.Emit(0)
}

// fixture wires a graph with the test models and keeps handles to every
// model instance created through the registry.
type fixture struct {
	graph   *Graph
	sources []*sourceModel
	sinks   []*sinkModel
	relays  []*relayModel
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{}
	models := NewModelRegistry()
	require.NoError(t, models.Register("NumberSource", "Sources", func() NodeDataModel {
		m := &sourceModel{typ: numberType}
		f.sources = append(f.sources, m)
		return m
	}))
	require.NoError(t, models.Register("NumberSink", "Displays", func() NodeDataModel {
		m := &sinkModel{typ: numberType}
		f.sinks = append(f.sinks, m)
		return m
	}))
	require.NoError(t, models.Register("TextSink", "Displays", func() NodeDataModel {
		m := &sinkModel{typ: textType}
		f.sinks = append(f.sinks, m)
		return m
	}))
	require.NoError(t, models.Register("MultiSink", "Displays", func() NodeDataModel {
		m := &sinkModel{typ: numberType, policy: PolicyMany, caption: "values"}
		f.sinks = append(f.sinks, m)
		return m
	}))
	require.NoError(t, models.Register("Relay", "Operators", func() NodeDataModel {
		m := &relayModel{}
		f.relays = append(f.relays, m)
		return m
	}))
	f.graph = New(models, NewConverterRegistry(), opts...)
	return f
}

func (f *fixture) add(t *testing.T, model string) NodeID {
	t.Helper()
	id, err := f.graph.AddNode(model, schema.Position{})
	require.NoError(t, err)
	return id
}

func (f *fixture) modelOf(t *testing.T, id NodeID) NodeDataModel {
	t.Helper()
	n, ok := f.graph.Node(id)
	require.True(t, ok)
	return n.Model()
}

func registerNumberToText(t *testing.T, g *Graph) {
	t.Helper()
	require.NoError(t, g.Converters().Register(numberType, textType, func() NodeDataModel {
		return &numberToText{}
	}))
}
