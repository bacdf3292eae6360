package flow

// NodeData is a value travelling along a connection.
type NodeData interface {
	Type() DataType
}

// Value is a generic NodeData carrying an arbitrary payload.
type Value struct {
	T DataType
	V any
}

func (v Value) Type() DataType { return v.T }

// ValidationState is the per-node status reported by a model.
type ValidationState int

const (
	Valid ValidationState = iota
	Warning
	Error
)

func (s ValidationState) String() string {
	switch s {
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "valid"
	}
}

// NodeDataModel is the computation unit wrapped by a Node.
//
// SetInData receives nil when the feeding connection is removed. A model
// signals new output by invoking the callback installed through
// OnDataUpdated; the graph then pushes OutData downstream synchronously.
// Models must not mutate the graph from inside SetInData.
type NodeDataModel interface {
	Name() string
	Caption() string

	NumPorts(pt PortType) int
	DataType(pt PortType, idx PortIndex) DataType
	PortCaption(pt PortType, idx PortIndex) string
	PortPolicy(idx PortIndex) ConnectionPolicy

	SetInData(data NodeData, idx PortIndex)
	OutData(idx PortIndex) NodeData

	Validation() (ValidationState, string)

	Save() map[string]any
	Restore(state map[string]any) error

	OnDataUpdated(fn func(PortIndex))
}

// BaseModel provides defaults for the optional parts of NodeDataModel
// and the output-changed notification plumbing. Embed it by value.
type BaseModel struct {
	listener func(PortIndex)
}

func (b *BaseModel) OnDataUpdated(fn func(PortIndex)) { b.listener = fn }

// Emit notifies the owning graph that output port idx changed.
func (b *BaseModel) Emit(idx PortIndex) {
	if b.listener != nil {
		b.listener(idx)
	}
}

func (b *BaseModel) PortCaption(PortType, PortIndex) string { return "" }
func (b *BaseModel) PortPolicy(PortIndex) ConnectionPolicy  { return PolicyOne }
func (b *BaseModel) Validation() (ValidationState, string)  { return Valid, "" }
func (b *BaseModel) Save() map[string]any                   { return map[string]any{} }
func (b *BaseModel) Restore(map[string]any) error           { return nil }

// ModelFactory constructs a fresh model instance.
type ModelFactory func() NodeDataModel
