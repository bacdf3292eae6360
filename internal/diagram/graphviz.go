package diagram

import (
	"bytes"
	"context"
	"fmt"

	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"

	"github.com/rendis/nodeflow/internal/flow"
)

// ImageFormat selects the graphviz output format.
type ImageFormat string

const (
	FormatPNG ImageFormat = "png"
	FormatSVG ImageFormat = "svg"
)

// RenderImage renders a DiagramModel as a PNG image using graphviz.
// Returns the PNG bytes.
func RenderImage(ctx context.Context, model *DiagramModel) ([]byte, error) {
	return Render(ctx, model, FormatPNG)
}

// Render renders a DiagramModel in the given graphviz format.
func Render(ctx context.Context, model *DiagramModel, format ImageFormat) ([]byte, error) {
	var gvFormat graphviz.Format
	switch format {
	case FormatPNG:
		gvFormat = graphviz.PNG
	case FormatSVG:
		gvFormat = graphviz.SVG
	default:
		return nil, fmt.Errorf("diagram: unsupported format %q", format)
	}

	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("diagram: create graphviz: %w", err)
	}
	defer gv.Close()

	gv.SetLayout(graphviz.DOT)

	graph, err := gv.Graph()
	if err != nil {
		return nil, fmt.Errorf("diagram: create graph: %w", err)
	}
	defer graph.Close()

	graph.SetRankDir(cgraph.LRRank)
	if model.Title != "" {
		graph.SetLabel(model.Title)
	}
	if model.Background != "" {
		graph.SetBackgroundColor(model.Background)
	}

	gvNodes := make(map[string]*cgraph.Node, len(model.Nodes))
	for _, node := range model.Nodes {
		gvNode, nErr := graph.CreateNodeByName(node.ID)
		if nErr != nil {
			return nil, fmt.Errorf("diagram: create node %s: %w", node.ID, nErr)
		}
		label := node.Label
		if node.Detail != "" {
			label += "\n" + node.Detail
		}
		gvNode.SetLabel(label)
		applyNodeStyle(gvNode, node)
		gvNodes[node.ID] = gvNode
	}

	for _, edge := range model.Edges {
		fromGV, toGV := gvNodes[edge.From], gvNodes[edge.To]
		if fromGV == nil || toGV == nil {
			continue
		}
		e, eErr := graph.CreateEdgeByName("", fromGV, toGV)
		if eErr != nil {
			return nil, fmt.Errorf("diagram: create edge %s -> %s: %w", edge.From, edge.To, eErr)
		}
		if edge.Label != "" {
			e.SetLabel(edge.Label)
		}
		if edge.Color != "" {
			e.SetColor(edge.Color)
			e.SetFontColor(edge.Color)
		}
	}

	var buf bytes.Buffer
	if err := gv.Render(ctx, graph, gvFormat, &buf); err != nil {
		return nil, fmt.Errorf("diagram: render %s: %w", format, err)
	}

	return buf.Bytes(), nil
}

// applyNodeStyle sets graphviz attributes based on node kind and validation state.
func applyNodeStyle(gvNode *cgraph.Node, node *Node) {
	switch node.Kind {
	case NodeKindSource:
		gvNode.SetShape(cgraph.EllipseShape)
	case NodeKindSink:
		gvNode.SetShape(cgraph.HexagonShape)
	case NodeKindConverter:
		gvNode.SetShape(cgraph.CircleShape)
		gvNode.SetWidth(0.3)
		gvNode.SetHeight(0.3)
	default:
		gvNode.SetShape(cgraph.BoxShape)
	}

	gvNode.SetStyle(cgraph.FilledNodeStyle)
	gvNode.SetFillColor(node.Fill)
	gvNode.SetColor(node.Border)
	gvNode.SetFontColor(node.FontColor)

	if node.Status != nil {
		applyStatusStyle(gvNode, node.Status)
	}
}

// applyStatusStyle thickens the outline of nodes that need attention.
func applyStatusStyle(gvNode *cgraph.Node, status *StatusOverlay) {
	switch status.Validation {
	case flow.Warning:
		gvNode.SetPenWidth(2)
	case flow.Error:
		gvNode.SetPenWidth(3)
	}
	if status.Message != "" {
		gvNode.SetTooltip(status.Message)
	}
}
