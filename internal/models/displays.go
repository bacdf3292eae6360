package models

import (
	"github.com/rendis/nodeflow/internal/flow"
)

// NumberDisplay shows the number it receives.
type NumberDisplay struct {
	flow.BaseModel
	value *float64
}

func NewNumberDisplay() flow.NodeDataModel { return &NumberDisplay{} }

func (m *NumberDisplay) Name() string    { return "NumberDisplay" }
func (m *NumberDisplay) Caption() string { return "Result" }
func (m *NumberDisplay) NumPorts(pt flow.PortType) int {
	if pt == flow.PortIn {
		return 1
	}
	return 0
}
func (m *NumberDisplay) DataType(flow.PortType, flow.PortIndex) flow.DataType { return NumberType }
func (m *NumberDisplay) OutData(flow.PortIndex) flow.NodeData                 { return nil }

func (m *NumberDisplay) SetInData(d flow.NodeData, _ flow.PortIndex) {
	m.value = nil
	if f, ok := toFloat(Payload(d)); ok {
		m.value = &f
	}
}

// Text returns the displayed value, or "" when nothing is connected.
func (m *NumberDisplay) Text() string {
	if m.value == nil {
		return ""
	}
	return formatNumber(*m.value)
}

func (m *NumberDisplay) Validation() (flow.ValidationState, string) {
	if m.value == nil {
		return flow.Warning, "missing input"
	}
	return flow.Valid, ""
}

// TextDisplay shows the string it receives.
type TextDisplay struct {
	flow.BaseModel
	text *string
}

func NewTextDisplay() flow.NodeDataModel { return &TextDisplay{} }

func (m *TextDisplay) Name() string    { return "TextDisplay" }
func (m *TextDisplay) Caption() string { return "Text" }
func (m *TextDisplay) NumPorts(pt flow.PortType) int {
	if pt == flow.PortIn {
		return 1
	}
	return 0
}
func (m *TextDisplay) DataType(flow.PortType, flow.PortIndex) flow.DataType { return TextType }
func (m *TextDisplay) OutData(flow.PortIndex) flow.NodeData                 { return nil }

func (m *TextDisplay) SetInData(d flow.NodeData, _ flow.PortIndex) {
	m.text = nil
	if s, ok := Payload(d).(string); ok {
		m.text = &s
	}
}

func (m *TextDisplay) Text() string {
	if m.text == nil {
		return ""
	}
	return *m.text
}

func (m *TextDisplay) Validation() (flow.ValidationState, string) {
	if m.text == nil {
		return flow.Warning, "missing input"
	}
	return flow.Valid, ""
}

// Displayer is implemented by models that present a textual value.
type Displayer interface {
	Text() string
}

var (
	_ Displayer = (*NumberDisplay)(nil)
	_ Displayer = (*TextDisplay)(nil)
)
