package diagram

import (
	"fmt"
	"strings"

	"github.com/rendis/nodeflow/internal/flow"
)

// RenderMermaid renders a DiagramModel as a Mermaid flowchart string.
func RenderMermaid(model *DiagramModel) string {
	var b strings.Builder

	b.WriteString("graph LR\n")

	// Title as comment.
	if model.Title != "" {
		b.WriteString(fmt.Sprintf("    %%%% %s\n", model.Title))
	}
	if model.Cyclic {
		b.WriteString("    %% cyclic scene\n")
	}

	for _, node := range model.Nodes {
		b.WriteString(fmt.Sprintf("    %s\n", mermaidNodeDef(node)))
	}

	for _, edge := range model.Edges {
		label := ""
		if edge.Label != "" {
			label = fmt.Sprintf("|%s|", mermaidEscapeLabel(edge.Label))
		}
		b.WriteString(fmt.Sprintf("    %s -->%s %s\n",
			mermaidSafeID(edge.From), label, mermaidSafeID(edge.To)))
	}

	b.WriteString("\n")
	for _, node := range model.Nodes {
		b.WriteString(fmt.Sprintf("    style %s fill:%s,stroke:%s,color:%s\n",
			mermaidSafeID(node.ID), node.Fill, node.Border, node.FontColor))
		if cls := mermaidStatusClass(node.Status); cls != "" {
			b.WriteString(fmt.Sprintf("    class %s %s\n", mermaidSafeID(node.ID), cls))
		}
	}
	for i, edge := range model.Edges {
		if edge.Color != "" {
			b.WriteString(fmt.Sprintf("    linkStyle %d stroke:%s\n", i, edge.Color))
		}
	}
	b.WriteString("    classDef warning stroke-width:2px\n")
	b.WriteString("    classDef error stroke-width:3px,stroke-dasharray:5 5\n")

	return b.String()
}

// mermaidNodeDef returns a Mermaid node definition with the appropriate shape.
func mermaidNodeDef(node *Node) string {
	id := mermaidSafeID(node.ID)
	label := mermaidEscapeLabel(node.Label)
	if node.Detail != "" {
		label += "<br/>" + mermaidEscapeLabel(node.Detail)
	}

	switch node.Kind {
	case NodeKindSource:
		return fmt.Sprintf("%s([\"%s\"])", id, label)
	case NodeKindSink:
		return fmt.Sprintf("%s[[\"%s\"]]", id, label)
	case NodeKindConverter:
		return fmt.Sprintf("%s((\"%s\"))", id, label)
	default:
		return fmt.Sprintf("%s[\"%s\"]", id, label)
	}
}

// mermaidSafeID converts a node ID to a Mermaid-safe identifier.
// Node ids are uuids, so the result is prefixed to never start with a digit.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return "n_" + r.Replace(id)
}

// mermaidEscapeLabel escapes characters Mermaid treats as syntax inside quoted labels.
func mermaidEscapeLabel(s string) string {
	r := strings.NewReplacer(`"`, "#quot;", "|", "#124;", "\n", "<br/>")
	return r.Replace(s)
}

// mermaidStatusClass maps a validation overlay to a Mermaid class name.
func mermaidStatusClass(status *StatusOverlay) string {
	if status == nil {
		return ""
	}
	switch status.Validation {
	case flow.Warning:
		return "warning"
	case flow.Error:
		return "error"
	default:
		return ""
	}
}
