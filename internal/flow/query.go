package flow

import (
	"github.com/rendis/nodeflow/pkg/schema"
)

// PortInfo describes one port as seen by a renderer.
type PortInfo struct {
	Type        DataType         `json:"type"`
	Caption     string           `json:"caption"`
	Policy      ConnectionPolicy `json:"policy"`
	Connections int              `json:"connections"`
}

// Node returns the node with the given id. The pointer must not be kept
// across mutations.
func (g *Graph) Node(id NodeID) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all node ids, converter nodes included, in insertion order.
func (g *Graph) Nodes() []NodeID {
	return append([]NodeID(nil), g.nodeOrder...)
}

// NodeCount returns the number of nodes, converter nodes included.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// Connections returns every logical connection in creation order.
func (g *Graph) Connections() []Connection {
	out := make([]Connection, 0, len(g.connOrder))
	for _, cid := range g.connOrder {
		out = append(out, *g.conns[cid])
	}
	return out
}

// Connection returns a logical connection by id.
func (g *Graph) Connection(id ConnectionID) (Connection, bool) {
	c, ok := g.conns[id]
	if !ok {
		return Connection{}, false
	}
	return *c, true
}

// NodeConnections returns the logical connections attached at one port.
// Unknown nodes and ports yield nil.
func (g *Graph) NodeConnections(id NodeID, pt PortType, idx PortIndex) []Connection {
	n, ok := g.nodes[id]
	if !ok || !n.validPort(pt, idx) {
		return nil
	}
	seen := make(map[ConnectionID]bool)
	var out []Connection
	for _, eid := range n.slots(pt)[idx] {
		e, ok := g.edges[eid]
		if !ok || seen[e.logical] {
			continue
		}
		seen[e.logical] = true
		if c, ok := g.conns[e.logical]; ok {
			out = append(out, *c)
		}
	}
	return out
}

// NodeCaption returns the model caption, or "" for unknown ids.
func (g *Graph) NodeCaption(id NodeID) string {
	if n, ok := g.nodes[id]; ok {
		return n.model.Caption()
	}
	return ""
}

// NodeModelName returns the registered model type name, or "".
func (g *Graph) NodeModelName(id NodeID) string {
	if n, ok := g.nodes[id]; ok {
		return n.modelName
	}
	return ""
}

// NodePosition returns the node position, or the origin for unknown ids.
func (g *Graph) NodePosition(id NodeID) schema.Position {
	if n, ok := g.nodes[id]; ok {
		return n.position
	}
	return schema.Position{}
}

// NodeLayer returns the node z-order layer, or 0 for unknown ids.
func (g *Graph) NodeLayer(id NodeID) int {
	if n, ok := g.nodes[id]; ok {
		return n.layer
	}
	return 0
}

// Port describes one port. The caption falls back to the data type name.
func (g *Graph) Port(id NodeID, pt PortType, idx PortIndex) (PortInfo, bool) {
	n, ok := g.nodes[id]
	if !ok || !n.validPort(pt, idx) {
		return PortInfo{}, false
	}
	info := PortInfo{
		Type:        n.model.DataType(pt, idx),
		Caption:     n.model.PortCaption(pt, idx),
		Policy:      PolicyMany,
		Connections: len(n.slots(pt)[idx]),
	}
	if pt == PortIn {
		info.Policy = n.model.PortPolicy(idx)
	}
	if info.Caption == "" {
		info.Caption = info.Type.Name
	}
	return info, true
}

// NodePorts returns every port of one direction.
func (g *Graph) NodePorts(id NodeID, pt PortType) []PortInfo {
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	out := make([]PortInfo, 0, len(n.slots(pt)))
	for i := range n.slots(pt) {
		info, _ := g.Port(id, pt, PortIndex(i))
		out = append(out, info)
	}
	return out
}

// NodeValidationState returns the model's validation state, Valid for unknown ids.
func (g *Graph) NodeValidationState(id NodeID) ValidationState {
	if n, ok := g.nodes[id]; ok {
		state, _ := n.model.Validation()
		return state
	}
	return Valid
}

// NodeValidationMessage returns the model's validation message, or "".
func (g *Graph) NodeValidationMessage(id NodeID) string {
	if n, ok := g.nodes[id]; ok {
		_, msg := n.model.Validation()
		return msg
	}
	return ""
}

// ModelNames lists the model types AddNode accepts.
func (g *Graph) ModelNames() []string {
	return g.models.Names()
}

// Validate collects the validation state of every user-visible node.
func (g *Graph) Validate() *schema.ValidationReport {
	report := &schema.ValidationReport{}
	for _, id := range g.nodeOrder {
		n := g.nodes[id]
		if n.converter {
			continue
		}
		switch state, msg := n.model.Validation(); state {
		case Error:
			report.AddNodeError(id.String(), msg)
		case Warning:
			report.AddNodeWarning(id.String(), msg)
		}
	}
	return report
}
