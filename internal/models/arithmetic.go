package models

import (
	"errors"

	"github.com/rendis/nodeflow/internal/flow"
)

var errDivisionByZero = errors.New("division by zero")

// MathOperation is a two-operand numeric node. The concrete operation is
// chosen by its constructor.
type MathOperation struct {
	flow.BaseModel

	name     string
	caption  string
	captions [2]string
	apply    func(a, b float64) (float64, error)

	operands [2]*float64
	result   *float64
	state    flow.ValidationState
	message  string
}

func newMath(name, caption string, captions [2]string, apply func(a, b float64) (float64, error)) *MathOperation {
	return &MathOperation{
		name:     name,
		caption:  caption,
		captions: captions,
		apply:    apply,
		state:    flow.Warning,
		message:  "missing or incorrect inputs",
	}
}

func NewAddition() flow.NodeDataModel {
	return newMath("Addition", "Addition", [2]string{"a", "b"}, func(a, b float64) (float64, error) {
		return a + b, nil
	})
}

func NewSubtraction() flow.NodeDataModel {
	return newMath("Subtraction", "Subtraction", [2]string{"minuend", "subtrahend"}, func(a, b float64) (float64, error) {
		return a - b, nil
	})
}

func NewMultiplication() flow.NodeDataModel {
	return newMath("Multiplication", "Multiplication", [2]string{"a", "b"}, func(a, b float64) (float64, error) {
		return a * b, nil
	})
}

func NewDivision() flow.NodeDataModel {
	return newMath("Division", "Division", [2]string{"dividend", "divisor"}, func(a, b float64) (float64, error) {
		if b == 0 {
			return 0, errDivisionByZero
		}
		return a / b, nil
	})
}

func (m *MathOperation) Name() string    { return m.name }
func (m *MathOperation) Caption() string { return m.caption }

func (m *MathOperation) NumPorts(pt flow.PortType) int {
	switch pt {
	case flow.PortIn:
		return 2
	case flow.PortOut:
		return 1
	}
	return 0
}

func (m *MathOperation) DataType(flow.PortType, flow.PortIndex) flow.DataType { return NumberType }

func (m *MathOperation) PortCaption(pt flow.PortType, idx flow.PortIndex) string {
	if pt == flow.PortIn && idx >= 0 && int(idx) < len(m.captions) {
		return m.captions[idx]
	}
	return "result"
}

func (m *MathOperation) OutData(flow.PortIndex) flow.NodeData {
	if m.result == nil {
		return nil
	}
	return Number(*m.result)
}

func (m *MathOperation) SetInData(d flow.NodeData, idx flow.PortIndex) {
	if idx < 0 || int(idx) >= len(m.operands) {
		return
	}
	m.operands[idx] = nil
	if f, ok := toFloat(Payload(d)); ok {
		m.operands[idx] = &f
	}
	m.compute()
	m.Emit(0)
}

func (m *MathOperation) compute() {
	m.result = nil
	a, b := m.operands[0], m.operands[1]
	if a == nil || b == nil {
		m.state, m.message = flow.Warning, "missing or incorrect inputs"
		return
	}
	r, err := m.apply(*a, *b)
	if err != nil {
		m.state, m.message = flow.Error, err.Error()
		return
	}
	m.result = &r
	m.state, m.message = flow.Valid, ""
}

func (m *MathOperation) Validation() (flow.ValidationState, string) {
	return m.state, m.message
}
