package diagram

import (
	"fmt"

	"github.com/rendis/nodeflow/internal/flow"
	"github.com/rendis/nodeflow/internal/style"
)

type displayer interface {
	Text() string
}

// Build constructs a DiagramModel from a graph. Colours come from st. The
// graph must not be mutated while Build runs.
func Build(title string, g *flow.Graph, st style.Style) *DiagramModel {
	model := &DiagramModel{
		Title:      title,
		Background: st.View.BackgroundColor,
	}
	if model.Title == "" {
		model.Title = "Scene"
	}

	ids := g.Nodes()
	for _, id := range ids {
		model.Nodes = append(model.Nodes, buildNode(g, id, st))
	}
	model.Edges = buildEdges(g, st)

	levels, err := g.Levels()
	if err != nil {
		model.Cyclic = true
		flat := make([]string, 0, len(ids))
		for _, id := range ids {
			flat = append(flat, id.String())
		}
		model.Levels = [][]string{flat}
		return model
	}
	for _, level := range levels {
		row := make([]string, 0, len(level))
		for _, id := range level {
			row = append(row, id.String())
		}
		model.Levels = append(model.Levels, row)
	}
	return model
}

// buildNode maps one graph node to a diagram Node.
func buildNode(g *flow.Graph, id flow.NodeID, st style.Style) *Node {
	n, _ := g.Node(id)
	node := &Node{
		ID:        id.String(),
		Label:     g.NodeCaption(id),
		Model:     g.NodeModelName(id),
		Fill:      st.Node.GradientColors[1],
		FontColor: st.Node.FontColor,
	}
	if node.Label == "" {
		node.Label = node.Model
	}

	node.Inputs = buildPorts(g, id, flow.PortIn, st)
	node.Outputs = buildPorts(g, id, flow.PortOut, st)
	switch {
	case n.IsConverter():
		node.Kind = NodeKindConverter
		node.FontColor = st.Node.FontColorFaded
	case len(node.Inputs) == 0:
		node.Kind = NodeKindSource
	case len(node.Outputs) == 0:
		node.Kind = NodeKindSink
	default:
		node.Kind = NodeKindProcessor
	}

	if d, ok := n.Model().(displayer); ok {
		node.Detail = d.Text()
	}

	state := g.NodeValidationState(id)
	node.Border = st.Node.BoundaryColor(state)
	if state != flow.Valid {
		node.Status = &StatusOverlay{
			Validation: state,
			Message:    g.NodeValidationMessage(id),
		}
	}
	return node
}

func buildPorts(g *flow.Graph, id flow.NodeID, pt flow.PortType, st style.Style) []Port {
	infos := g.NodePorts(id, pt)
	ports := make([]Port, 0, len(infos))
	for _, info := range infos {
		filled := info.Connections > 0
		ports = append(ports, Port{
			Caption: info.Caption,
			Type:    info.Type.ID,
			Color:   st.PortColor(info.Type.ID, filled),
			Filled:  filled,
		})
	}
	return ports
}

// buildEdges draws each logical connection. A converted connection is drawn
// as two legs through its converter node.
func buildEdges(g *flow.Graph, st style.Style) []Edge {
	var edges []Edge
	for _, c := range g.Connections() {
		outPort, _ := g.Port(c.Out.Node, flow.PortOut, c.Out.Index)
		inPort, _ := g.Port(c.In.Node, flow.PortIn, c.In.Index)

		if !c.Converted() {
			edges = append(edges, Edge{
				From:  c.Out.Node.String(),
				To:    c.In.Node.String(),
				Label: portLabel(outPort, inPort),
				Color: st.Connection.ColorFor(outPort.Type.ID),
			})
			continue
		}
		edges = append(edges,
			Edge{
				From:  c.Out.Node.String(),
				To:    c.Converter.String(),
				Label: outPort.Type.String(),
				Color: st.Connection.ColorFor(outPort.Type.ID),
			},
			Edge{
				From:  c.Converter.String(),
				To:    c.In.Node.String(),
				Label: inPort.Type.String(),
				Color: st.Connection.ColorFor(inPort.Type.ID),
			},
		)
	}
	return edges
}

// portLabel names the connected ports when they carry their own captions.
func portLabel(out, in flow.PortInfo) string {
	if out.Caption == out.Type.String() && in.Caption == in.Type.String() {
		return out.Type.String()
	}
	return fmt.Sprintf("%s → %s", out.Caption, in.Caption)
}

// findNode looks up a node by ID in the model's node list.
func findNode(nodes []*Node, id string) *Node {
	for _, n := range nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}
