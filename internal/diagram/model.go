package diagram

import "github.com/rendis/nodeflow/internal/flow"

// NodeKind classifies a diagram node by its port layout.
type NodeKind string

const (
	NodeKindSource    NodeKind = "source"    // outputs only
	NodeKindSink      NodeKind = "sink"      // inputs only
	NodeKindProcessor NodeKind = "processor" // inputs and outputs
	NodeKindConverter NodeKind = "converter" // hidden type adapter
)

// DiagramModel is the intermediate representation used by all renderers.
type DiagramModel struct {
	Title  string
	Nodes  []*Node
	Edges  []Edge
	Levels [][]string
	// Cyclic is set when the scene has no topological order; Levels then
	// holds a single level in insertion order.
	Cyclic     bool
	Background string
}

// Node represents a single scene node.
type Node struct {
	ID      string
	Label   string
	Model   string
	Kind    NodeKind
	Detail  string // displayed value, when the model presents one
	Status  *StatusOverlay
	Inputs  []Port
	Outputs []Port

	Border    string
	Fill      string
	FontColor string
}

// Port is one node port as drawn.
type Port struct {
	Caption string
	Type    string
	Color   string
	Filled  bool
}

// StatusOverlay carries the model's validation state when it is not Valid.
type StatusOverlay struct {
	Validation flow.ValidationState
	Message    string
}

// Edge represents one drawn link between two nodes.
type Edge struct {
	From  string
	To    string
	Label string
	Color string
}
