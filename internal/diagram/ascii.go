package diagram

import (
	"fmt"
	"strings"

	"github.com/rendis/nodeflow/internal/flow"
)

// statusTag returns a short ASCII indicator for a validation overlay.
func statusTag(status *StatusOverlay) string {
	if status == nil {
		return ""
	}
	switch status.Validation {
	case flow.Warning:
		return "[WARN]"
	case flow.Error:
		return "[ERR]"
	default:
		return ""
	}
}

// RenderASCII renders a DiagramModel as a text-based ASCII diagram.
// It uses a level-based layout with box-drawing characters, followed by
// the connection list.
func RenderASCII(model *DiagramModel) string {
	var b strings.Builder

	if model.Title != "" {
		b.WriteString(fmt.Sprintf("=== %s ===\n\n", model.Title))
	}

	for levelIdx, level := range model.Levels {
		var boxes []asciiBox
		for _, nodeID := range level {
			node := findNode(model.Nodes, nodeID)
			if node == nil {
				continue
			}
			boxes = append(boxes, makeBox(node))
		}

		renderBoxRow(&b, boxes)

		if levelIdx < len(model.Levels)-1 {
			renderConnector(&b, len(boxes))
		}
	}

	if len(model.Edges) > 0 {
		b.WriteString("\n--- connections ---\n")
		for _, edge := range model.Edges {
			from, to := findNode(model.Nodes, edge.From), findNode(model.Nodes, edge.To)
			if from == nil || to == nil {
				continue
			}
			label := ""
			if edge.Label != "" {
				label = " (" + edge.Label + ")"
			}
			b.WriteString(fmt.Sprintf("  %s ─→ %s%s\n", from.Label, to.Label, label))
		}
	}

	var issues []string
	for _, node := range model.Nodes {
		if node.Status != nil && node.Status.Message != "" {
			issues = append(issues, fmt.Sprintf("  %s %s: %s", statusTag(node.Status), node.Label, node.Status.Message))
		}
	}
	if len(issues) > 0 {
		b.WriteString("\n--- issues ---\n")
		b.WriteString(strings.Join(issues, "\n"))
		b.WriteByte('\n')
	}

	return b.String()
}

// asciiBox holds the rendered lines of a single box.
type asciiBox struct {
	lines []string
	width int
}

// makeBox creates an ASCII box for a node.
func makeBox(node *Node) asciiBox {
	contentLines := []string{firstLine(node.Label)}
	if node.Detail != "" {
		contentLines = append(contentLines, "= "+firstLine(node.Detail))
	}
	if tag := statusTag(node.Status); tag != "" {
		contentLines = append(contentLines, tag)
	}

	maxLen := 0
	for _, line := range contentLines {
		if n := len([]rune(line)); n > maxLen {
			maxLen = n
		}
	}
	width := maxLen + 4 // 2 border + 2 padding

	var lines []string
	top := "┌" + strings.Repeat("─", width-2) + "┐"
	bot := "└" + strings.Repeat("─", width-2) + "┘"
	lines = append(lines, top)
	for _, content := range contentLines {
		padded := content + strings.Repeat(" ", maxLen-len([]rune(content)))
		lines = append(lines, "│ "+padded+" │")
	}
	lines = append(lines, bot)

	return asciiBox{lines: lines, width: width}
}

// firstLine returns only the first line of a multi-line label.
func firstLine(s string) string {
	if i := strings.Index(s, "\n"); i >= 0 {
		return s[:i]
	}
	return s
}

// renderBoxRow writes boxes side by side.
func renderBoxRow(b *strings.Builder, boxes []asciiBox) {
	if len(boxes) == 0 {
		return
	}

	maxHeight := 0
	for _, box := range boxes {
		if len(box.lines) > maxHeight {
			maxHeight = len(box.lines)
		}
	}

	for row := 0; row < maxHeight; row++ {
		for i, box := range boxes {
			if i > 0 {
				b.WriteString("  ")
			}
			if row < len(box.lines) {
				b.WriteString(box.lines[row])
			} else {
				b.WriteString(strings.Repeat(" ", box.width))
			}
		}
		b.WriteByte('\n')
	}
}

// renderConnector draws a vertical connector between levels.
func renderConnector(b *strings.Builder, boxCount int) {
	if boxCount == 0 {
		return
	}
	b.WriteString("       │\n")
	b.WriteString("       ▼\n")
}
