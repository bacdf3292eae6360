package diagram

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// RenderASCIIAuto tries to render using the mermaid-ascii CLI binary if available,
// falling back to the built-in RenderASCII renderer.
func RenderASCIIAuto(ctx context.Context, model *DiagramModel, binDir string) string {
	if binDir != "" {
		binPath := filepath.Join(binDir, "mermaid-ascii")
		if _, err := os.Stat(binPath); err == nil {
			result, err := RenderASCIIViaCLI(ctx, model, binPath)
			if err == nil {
				return result
			}
		}
	}
	return RenderASCII(model)
}

// RenderASCIIViaCLI pipes simplified Mermaid syntax through the mermaid-ascii binary.
func RenderASCIIViaCLI(ctx context.Context, model *DiagramModel, binPath string) (string, error) {
	mermaid := RenderMermaidForCLI(model)

	cmd := exec.CommandContext(ctx, binPath)
	cmd.Stdin = strings.NewReader(mermaid)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("mermaid-ascii: %w: %s", err, stderr.String())
	}
	return stdout.String(), nil
}

// RenderMermaidForCLI generates simplified Mermaid syntax compatible with the
// mermaid-ascii CLI tool. Node declarations with ["label"] syntax are not
// understood there, so each node is referenced by a readable id that embeds
// its label, displayed value and validation tag.
func RenderMermaidForCLI(model *DiagramModel) string {
	var b strings.Builder
	b.WriteString("graph LR\n")

	displayID := make(map[string]string, len(model.Nodes))
	used := make(map[string]int, len(model.Nodes))
	connected := make(map[string]bool, len(model.Nodes))
	for _, node := range model.Nodes {
		id := cliNodeID(node)
		used[id]++
		if used[id] > 1 {
			id = fmt.Sprintf("%s-%d", id, used[id])
		}
		displayID[node.ID] = id
	}

	for _, edge := range model.Edges {
		from, okFrom := displayID[edge.From]
		to, okTo := displayID[edge.To]
		if !okFrom || !okTo {
			continue
		}
		connected[edge.From], connected[edge.To] = true, true
		label := ""
		if edge.Label != "" {
			label = fmt.Sprintf("|%s|", edge.Label)
		}
		b.WriteString(fmt.Sprintf("    %s -->%s %s\n", from, label, to))
	}

	// Isolated nodes still need to appear.
	for _, node := range model.Nodes {
		if !connected[node.ID] {
			b.WriteString(fmt.Sprintf("    %s\n", displayID[node.ID]))
		}
	}

	return b.String()
}

// cliNodeID builds a display ID for the mermaid-ascii CLI.
func cliNodeID(node *Node) string {
	id := firstLine(node.Label)
	if id == "" {
		id = node.Model
	}
	if node.Detail != "" {
		id += "=" + firstLine(node.Detail)
	}
	if node.Status != nil {
		if tag := strings.Trim(statusTag(node.Status), "[]"); tag != "" {
			id += "-" + tag
		}
	}
	return strings.NewReplacer(" ", "-", "|", "", "\"", "").Replace(id)
}
