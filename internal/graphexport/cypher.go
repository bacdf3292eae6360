package graphexport

import (
	"encoding/json"
	"fmt"

	"github.com/rendis/nodeflow/pkg/schema"
)

// statement is one parameterised Cypher query.
type statement struct {
	Query  string
	Params map[string]any
}

const (
	mergeSceneQuery = `
		MERGE (s:FlowScene {id: $scene_id})
		SET s.name = $name, s.revision = $revision, s.exported_at = datetime()
	`
	clearNodesQuery = `
		MATCH (n:FlowNode {scene_id: $scene_id})
		DETACH DELETE n
	`
	createNodesQuery = `
		MATCH (s:FlowScene {id: $scene_id})
		UNWIND $nodes AS node
		CREATE (n:FlowNode {
			id: node.id,
			scene_id: $scene_id,
			model: node.model,
			state: node.state,
			x: node.x,
			y: node.y,
			layer: node.layer
		})
		CREATE (s)-[:CONTAINS]->(n)
	`
	createConnectionsQuery = `
		UNWIND $connections AS c
		MATCH (a:FlowNode {id: c.out_id, scene_id: $scene_id})
		MATCH (b:FlowNode {id: c.in_id, scene_id: $scene_id})
		CREATE (a)-[:CONNECTS {out_index: c.out_index, in_index: c.in_index}]->(b)
	`
	deleteSceneQuery = `
		MATCH (s:FlowScene {id: $scene_id})
		OPTIONAL MATCH (s)-[:CONTAINS]->(n:FlowNode)
		DETACH DELETE s, n
	`
)

// exportStatements returns the queries that replace a scene's mirror with
// doc. They must run in one transaction.
func exportStatements(sceneID, name string, revision int64, doc *schema.SceneDocument) ([]statement, error) {
	nodes := make([]map[string]any, 0, len(doc.Nodes))
	for _, rec := range doc.Nodes {
		// Neo4j properties cannot hold nested maps.
		state, err := json.Marshal(rec.Model)
		if err != nil {
			return nil, fmt.Errorf("marshaling state of node %s: %w", rec.ID, err)
		}
		nodes = append(nodes, map[string]any{
			"id":    rec.ID,
			"model": rec.ModelName(),
			"state": string(state),
			"x":     rec.Position.X,
			"y":     rec.Position.Y,
			"layer": int64(rec.Layer),
		})
	}

	conns := make([]map[string]any, 0, len(doc.Connections))
	for _, c := range doc.Connections {
		conns = append(conns, map[string]any{
			"out_id":    c.OutNodeID,
			"out_index": int64(c.OutPortIndex),
			"in_id":     c.InNodeID,
			"in_index":  int64(c.InPortIndex),
		})
	}

	scene := map[string]any{"scene_id": sceneID}
	return []statement{
		{Query: mergeSceneQuery, Params: map[string]any{"scene_id": sceneID, "name": name, "revision": revision}},
		{Query: clearNodesQuery, Params: scene},
		{Query: createNodesQuery, Params: map[string]any{"scene_id": sceneID, "nodes": nodes}},
		{Query: createConnectionsQuery, Params: map[string]any{"scene_id": sceneID, "connections": conns}},
	}, nil
}
