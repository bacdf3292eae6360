package flow

import (
	"errors"
	"maps"

	"github.com/google/uuid"

	"github.com/rendis/nodeflow/pkg/schema"
)

// Save serializes the graph into an ordered scene document. Converter
// nodes are omitted; a converted connection is recorded once between its
// true endpoints.
func (g *Graph) Save() *schema.SceneDocument {
	doc := &schema.SceneDocument{
		Version:     schema.SceneFormatVersion,
		Nodes:       make([]schema.NodeRecord, 0, len(g.nodeOrder)),
		Connections: make([]schema.ConnectionRecord, 0, len(g.connOrder)),
	}
	for _, id := range g.nodeOrder {
		n := g.nodes[id]
		if n.converter {
			continue
		}
		state := maps.Clone(n.model.Save())
		if state == nil {
			state = make(map[string]any, 1)
		}
		state[schema.ModelNameKey] = n.modelName
		doc.Nodes = append(doc.Nodes, schema.NodeRecord{
			ID:       id.String(),
			Position: n.position,
			Layer:    n.layer,
			Model:    state,
		})
	}
	for _, cid := range g.connOrder {
		c := g.conns[cid]
		doc.Connections = append(doc.Connections, schema.ConnectionRecord{
			OutNodeID:    c.Out.Node.String(),
			OutPortIndex: int(c.Out.Index),
			InNodeID:     c.In.Node.String(),
			InPortIndex:  int(c.In.Index),
		})
	}
	return doc
}

// Restore replaces the graph contents with doc, replaying node creation
// and connections in recorded order while keeping the original node ids.
// The replay runs on a scratch graph; any invalid record fails the whole
// restore and leaves the current contents untouched.
func (g *Graph) Restore(doc *schema.SceneDocument) error {
	if err := g.guard("Restore"); err != nil {
		return err
	}
	if doc == nil {
		return schema.NewError(schema.ErrCodeValidation, "scene document is nil")
	}
	if doc.Version > schema.SceneFormatVersion {
		return schema.NewErrorf(schema.ErrCodeValidation,
			"scene format version %d is newer than supported %d", doc.Version, schema.SceneFormatVersion)
	}

	scratch := g.scratch()
	var events []Event
	scratch.Subscribe(func(ev Event) { events = append(events, ev) })
	if err := scratch.replay(doc); err != nil {
		scratch.clear()
		return err
	}

	g.clear()
	g.adopt(scratch)
	for _, ev := range events {
		g.notify(ev)
	}
	g.notify(Event{Kind: schema.EventSceneLoaded})
	return nil
}

// scratch returns an empty graph sharing g's registries and options.
func (g *Graph) scratch() *Graph {
	return &Graph{
		models:      g.models,
		converters:  g.converters,
		logger:      g.logger,
		maxDepth:    g.maxDepth,
		cyclePolicy: g.cyclePolicy,
		nodes:       make(map[NodeID]*Node),
		edges:       make(map[ConnectionID]*edge),
		conns:       make(map[ConnectionID]*Connection),
	}
}

// adopt moves the contents of src into g and rebinds every model to g.
func (g *Graph) adopt(src *Graph) {
	g.nodes, g.nodeOrder = src.nodes, src.nodeOrder
	g.edges, g.conns, g.connOrder = src.edges, src.conns, src.connOrder
	g.dropped = src.dropped
	for _, id := range g.nodeOrder {
		g.bind(g.nodes[id])
	}
}

func (g *Graph) replay(doc *schema.SceneDocument) error {
	for i, rec := range doc.Nodes {
		id, err := uuid.Parse(rec.ID)
		if err != nil {
			return schema.NewErrorf(schema.ErrCodeValidation, "node %d has invalid id %q", i, rec.ID).WithCause(err)
		}
		name := rec.ModelName()
		if name == "" {
			return schema.NewErrorf(schema.ErrCodeValidation, "node %s has no model name", id).WithNode(id.String())
		}
		n, err := g.addNode(id, name, rec.Position)
		if err != nil {
			return err
		}
		n.layer = rec.Layer
		if err := n.model.Restore(rec.Model); err != nil {
			return schema.NewErrorf(schema.ErrCodeValidation, "restore model state: %v", err).
				WithNode(id.String()).WithCause(err)
		}
	}

	for i, rec := range doc.Connections {
		outID, err := uuid.Parse(rec.OutNodeID)
		if err != nil {
			return schema.NewErrorf(schema.ErrCodeValidation, "connection %d has invalid out id %q", i, rec.OutNodeID)
		}
		inID, err := uuid.Parse(rec.InNodeID)
		if err != nil {
			return schema.NewErrorf(schema.ErrCodeValidation, "connection %d has invalid in id %q", i, rec.InNodeID)
		}
		if _, err := g.Connect(outID, PortIndex(rec.OutPortIndex), inID, PortIndex(rec.InPortIndex)); err != nil {
			msg := err.Error()
			var fe *schema.FlowError
			if errors.As(err, &fe) {
				msg = fe.Message
			}
			return schema.NewErrorf(schema.CodeOf(err), "connection %d: %s", i, msg).WithCause(err)
		}
	}
	return nil
}
