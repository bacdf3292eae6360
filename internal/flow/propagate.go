package flow

import (
	"github.com/rendis/nodeflow/pkg/schema"
)

// propagate pushes the current value of output port idx of node id into
// every input connected to it. It runs as the model's output-changed
// callback, so it may recurse through downstream models.
func (g *Graph) propagate(id NodeID, idx PortIndex) {
	n, ok := g.nodes[id]
	if !ok || !n.validPort(PortOut, idx) {
		return
	}
	data := n.model.OutData(idx)

	// Fan-out order is unspecified.
	targets := append([]ConnectionID(nil), n.out[idx]...)
	for _, eid := range targets {
		if e, ok := g.edges[eid]; ok {
			g.deliver(e, data)
		}
	}
}

func (g *Graph) deliver(e *edge, data NodeData) {
	g.push(e.in, data)
}

// push calls SetInData on the target input. When cycles are allowed the
// recursion is bounded by the configured depth; an acyclic graph always
// delivers to every reachable input.
func (g *Graph) push(target PortRef, data NodeData) {
	n, ok := g.nodes[target.Node]
	if !ok {
		return
	}
	if g.cyclePolicy == schema.CyclesAllow && g.depth >= g.maxDepth {
		err := schema.NewErrorf(schema.ErrCodeExecution,
			"propagation depth %d exceeded at input %d", g.maxDepth, target.Index).
			WithNode(target.Node.String())
		g.dropped = append(g.dropped, err)
		g.logger.Warn("propagation dropped", "node_id", target.Node.String(),
			"port", int(target.Index), "max_depth", g.maxDepth)
		g.notify(Event{Kind: schema.EventPropagationDropped, Node: target.Node})
		return
	}

	g.depth++
	defer func() { g.depth-- }()
	n.model.SetInData(data, target.Index)
}

// Propagating reports whether a propagation is currently running.
func (g *Graph) Propagating() bool { return g.depth > 0 }

// PropagationErrors returns deliveries dropped for exceeding the depth
// bound since the last Clear or ResetPropagationErrors.
func (g *Graph) PropagationErrors() []error {
	return append([]error(nil), g.dropped...)
}

// ResetPropagationErrors forgets previously dropped deliveries.
func (g *Graph) ResetPropagationErrors() {
	g.dropped = nil
}
