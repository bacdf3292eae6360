package models

import (
	"fmt"

	"github.com/rendis/nodeflow/internal/flow"
)

// NumberSource emits a user-entered number.
type NumberSource struct {
	flow.BaseModel
	value *float64
}

func NewNumberSource() flow.NodeDataModel { return &NumberSource{} }

func (m *NumberSource) Name() string    { return "NumberSource" }
func (m *NumberSource) Caption() string { return "Number Source" }
func (m *NumberSource) NumPorts(pt flow.PortType) int {
	if pt == flow.PortOut {
		return 1
	}
	return 0
}
func (m *NumberSource) DataType(flow.PortType, flow.PortIndex) flow.DataType { return NumberType }
func (m *NumberSource) SetInData(flow.NodeData, flow.PortIndex)              {}

func (m *NumberSource) OutData(flow.PortIndex) flow.NodeData {
	if m.value == nil {
		return nil
	}
	return Number(*m.value)
}

// SetValue replaces the number and notifies downstream nodes.
func (m *NumberSource) SetValue(v float64) {
	m.value = &v
	m.Emit(0)
}

func (m *NumberSource) Save() map[string]any {
	if m.value == nil {
		return map[string]any{}
	}
	return map[string]any{"value": *m.value}
}

// Restore merges state into the source: a missing "value" keeps the
// current number and an explicit null clears it.
func (m *NumberSource) Restore(state map[string]any) error {
	raw, ok := state["value"]
	if !ok {
		return nil
	}
	if raw == nil {
		if m.value != nil {
			m.value = nil
			m.Emit(0)
		}
		return nil
	}
	f, ok := toFloat(raw)
	if !ok {
		return fmt.Errorf("value must be a number, got %T", raw)
	}
	m.SetValue(f)
	return nil
}

func (m *NumberSource) StateSchema() string {
	return `{"type":"object","properties":{"value":{"type":["number","null"]}}}`
}

// TextSource emits a user-entered string.
type TextSource struct {
	flow.BaseModel
	text *string
}

func NewTextSource() flow.NodeDataModel { return &TextSource{} }

func (m *TextSource) Name() string    { return "TextSource" }
func (m *TextSource) Caption() string { return "Text Source" }
func (m *TextSource) NumPorts(pt flow.PortType) int {
	if pt == flow.PortOut {
		return 1
	}
	return 0
}
func (m *TextSource) DataType(flow.PortType, flow.PortIndex) flow.DataType { return TextType }
func (m *TextSource) SetInData(flow.NodeData, flow.PortIndex)              {}

func (m *TextSource) OutData(flow.PortIndex) flow.NodeData {
	if m.text == nil {
		return nil
	}
	return Text(*m.text)
}

// SetText replaces the string and notifies downstream nodes.
func (m *TextSource) SetText(s string) {
	m.text = &s
	m.Emit(0)
}

func (m *TextSource) Save() map[string]any {
	if m.text == nil {
		return map[string]any{}
	}
	return map[string]any{"text": *m.text}
}

// Restore follows NumberSource: a missing "text" keeps the current string
// and an explicit null clears it.
func (m *TextSource) Restore(state map[string]any) error {
	if clears(state, "text") {
		if m.text != nil {
			m.text = nil
			m.Emit(0)
		}
		return nil
	}
	s, ok, err := stringParam(state, "text")
	if err != nil || !ok {
		return err
	}
	m.SetText(s)
	return nil
}

func (m *TextSource) StateSchema() string {
	return `{"type":"object","properties":{"text":{"type":["string","null"]}}}`
}

// JSONSource emits a user-entered JSON document.
type JSONSource struct {
	flow.BaseModel
	doc any
	set bool
}

func NewJSONSource() flow.NodeDataModel { return &JSONSource{} }

func (m *JSONSource) Name() string    { return "JSONSource" }
func (m *JSONSource) Caption() string { return "JSON Source" }
func (m *JSONSource) NumPorts(pt flow.PortType) int {
	if pt == flow.PortOut {
		return 1
	}
	return 0
}
func (m *JSONSource) DataType(flow.PortType, flow.PortIndex) flow.DataType { return JSONType }
func (m *JSONSource) SetInData(flow.NodeData, flow.PortIndex)              {}

func (m *JSONSource) OutData(flow.PortIndex) flow.NodeData {
	if !m.set {
		return nil
	}
	return JSON(m.doc)
}

// SetDocument replaces the document and notifies downstream nodes.
func (m *JSONSource) SetDocument(doc any) {
	m.doc = doc
	m.set = true
	m.Emit(0)
}

func (m *JSONSource) Save() map[string]any {
	if !m.set {
		return map[string]any{}
	}
	return map[string]any{"json": m.doc}
}

// Restore sets the document from "json". An explicit null clears the
// source rather than emitting a null document.
func (m *JSONSource) Restore(state map[string]any) error {
	if clears(state, "json") {
		if m.set {
			m.doc, m.set = nil, false
			m.Emit(0)
		}
		return nil
	}
	doc, ok := state["json"]
	if !ok {
		return nil
	}
	m.SetDocument(doc)
	return nil
}
