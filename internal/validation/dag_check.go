package validation

import (
	"fmt"
	"sort"

	"github.com/rendis/nodeflow/pkg/schema"
)

// validateTopology checks the connection graph for directed cycles and
// isolated nodes. Cycles are errors under CyclesReject and warnings under
// CyclesAllow; isolated nodes are always warnings.
func validateTopology(idx *sceneIndex, conns []schema.ConnectionRecord, policy schema.CyclePolicy, report *schema.ValidationReport) {
	if len(idx.order) == 0 {
		return
	}

	inDegree := make(map[string]int, len(idx.order))
	successors := make(map[string][]string, len(idx.order))
	touched := make(map[string]bool, len(idx.order))
	for _, id := range idx.order {
		inDegree[id] = 0
	}
	for _, c := range conns {
		successors[c.OutNodeID] = append(successors[c.OutNodeID], c.InNodeID)
		inDegree[c.InNodeID]++
		touched[c.OutNodeID] = true
		touched[c.InNodeID] = true
	}

	// Kahn's algorithm: nodes never dequeued lie on or behind a cycle.
	var queue []string
	for _, id := range idx.order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}
	visited := 0
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range successors[node] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if visited < len(idx.order) {
		var cycle []string
		for id, deg := range inDegree {
			if deg > 0 {
				cycle = append(cycle, id)
			}
		}
		sort.Strings(cycle)
		msg := fmt.Sprintf("connections form a cycle through %d nodes", len(cycle))
		issue := schema.ValidationIssue{
			Path:    "/connections",
			Code:    schema.ErrCodeCycleDetected,
			Message: msg,
		}
		if policy == schema.CyclesAllow {
			issue.Severity = schema.SeverityWarning
			report.Warnings = append(report.Warnings, issue)
		} else {
			issue.Severity = schema.SeverityError
			report.Errors = append(report.Errors, issue)
		}
	}

	if len(idx.order) > 1 {
		for _, id := range idx.order {
			if !touched[id] {
				report.AddNodeWarning(id, "node has no connections")
			}
		}
	}
}
