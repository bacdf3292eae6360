package flow

import (
	"bytes"
	"sort"

	"github.com/rendis/nodeflow/pkg/schema"
)

// reachable reports whether to can be reached from from by following
// output edges. A node always reaches itself.
func (g *Graph) reachable(from, to NodeID) bool {
	if from == to {
		return true
	}
	visited := map[NodeID]bool{from: true}
	stack := []NodeID{from}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, next := range g.successors(id) {
			if next == to {
				return true
			}
			if !visited[next] {
				visited[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}

func (g *Graph) successors(id NodeID) []NodeID {
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	var out []NodeID
	for _, ids := range n.out {
		for _, eid := range ids {
			if e, ok := g.edges[eid]; ok {
				out = append(out, e.in.Node)
			}
		}
	}
	return out
}

// TopologicalOrder returns every node in dependency order using Kahn's
// algorithm. Ties are broken by id for deterministic output. Fails with
// CYCLE_DETECTED when the graph contains a cycle, which is only possible
// under the allow policy.
func (g *Graph) TopologicalOrder() ([]NodeID, error) {
	inDegree := make(map[NodeID]int, len(g.nodes))
	for id := range g.nodes {
		if _, ok := inDegree[id]; !ok {
			inDegree[id] = 0
		}
		for _, next := range g.successors(id) {
			inDegree[next]++
		}
	}

	queue := make([]NodeID, 0)
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	sortIDs(queue)

	sorted := make([]NodeID, 0, len(g.nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		sorted = append(sorted, id)

		next := g.successors(id)
		sortIDs(next)
		for _, dep := range next {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(sorted) != len(g.nodes) {
		return nil, schema.NewError(schema.ErrCodeCycleDetected, "graph contains a cycle")
	}
	return sorted, nil
}

// Levels groups nodes by longest distance from a root. Nodes in the same
// level have no path between them.
func (g *Graph) Levels() ([][]NodeID, error) {
	sorted, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}

	depth := make(map[NodeID]int, len(sorted))
	maxLevel := 0
	for _, id := range sorted {
		for _, next := range g.successors(id) {
			if depth[id]+1 > depth[next] {
				depth[next] = depth[id] + 1
			}
		}
		if depth[id] > maxLevel {
			maxLevel = depth[id]
		}
	}
	if len(sorted) == 0 {
		return nil, nil
	}

	levels := make([][]NodeID, maxLevel+1)
	for _, id := range sorted {
		levels[depth[id]] = append(levels[depth[id]], id)
	}
	return levels, nil
}

func sortIDs(ids []NodeID) {
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
}
