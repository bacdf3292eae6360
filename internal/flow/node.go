package flow

import (
	"github.com/rendis/nodeflow/pkg/schema"
)

// Node wraps a model with identity, position and per-port edge sets.
// Slot counts are fixed from the model's port counts at creation time.
//
// A *Node obtained from Graph.Node is only valid until the next mutation
// of the graph; callers should hold NodeIDs instead.
type Node struct {
	id        NodeID
	modelName string
	model     NodeDataModel
	position  schema.Position
	layer     int
	converter bool

	in  [][]ConnectionID
	out [][]ConnectionID
}

func newNode(id NodeID, modelName string, model NodeDataModel) *Node {
	return &Node{
		id:        id,
		modelName: modelName,
		model:     model,
		in:        make([][]ConnectionID, model.NumPorts(PortIn)),
		out:       make([][]ConnectionID, model.NumPorts(PortOut)),
	}
}

func (n *Node) ID() NodeID                { return n.id }
func (n *Node) ModelName() string         { return n.modelName }
func (n *Node) Model() NodeDataModel      { return n.model }
func (n *Node) Position() schema.Position { return n.position }
func (n *Node) Layer() int                { return n.layer }

// IsConverter reports whether the node was inserted implicitly by Connect.
func (n *Node) IsConverter() bool { return n.converter }

// NumSlots returns the number of connection slots held for a direction.
func (n *Node) NumSlots(pt PortType) int {
	return len(n.slots(pt))
}

// EdgeCount returns the number of direct edges attached at one port.
func (n *Node) EdgeCount(pt PortType, idx PortIndex) int {
	s := n.slots(pt)
	if idx < 0 || int(idx) >= len(s) {
		return 0
	}
	return len(s[idx])
}

func (n *Node) slots(pt PortType) [][]ConnectionID {
	switch pt {
	case PortIn:
		return n.in
	case PortOut:
		return n.out
	}
	return nil
}

func (n *Node) validPort(pt PortType, idx PortIndex) bool {
	return idx >= 0 && int(idx) < len(n.slots(pt))
}

func (n *Node) attach(pt PortType, idx PortIndex, edge ConnectionID) {
	switch pt {
	case PortIn:
		n.in[idx] = append(n.in[idx], edge)
	case PortOut:
		n.out[idx] = append(n.out[idx], edge)
	}
}

func (n *Node) detach(pt PortType, idx PortIndex, edge ConnectionID) {
	s := n.slots(pt)
	if !n.validPort(pt, idx) {
		return
	}
	ids := s[idx]
	for i, id := range ids {
		if id == edge {
			s[idx] = append(ids[:i:i], ids[i+1:]...)
			return
		}
	}
}

func (n *Node) edgeCount() int {
	total := 0
	for _, s := range n.in {
		total += len(s)
	}
	for _, s := range n.out {
		total += len(s)
	}
	return total
}
