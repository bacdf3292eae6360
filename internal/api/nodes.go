package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rendis/nodeflow/internal/flow"
	"github.com/rendis/nodeflow/pkg/schema"
)

// nodeView describes one node as seen by a client.
type nodeView struct {
	ID         string          `json:"id"`
	Model      string          `json:"model"`
	Caption    string          `json:"caption"`
	Position   schema.Position `json:"position"`
	Layer      int             `json:"layer"`
	Converter  bool            `json:"converter,omitempty"`
	Validation string          `json:"validation"`
	Message    string          `json:"message,omitempty"`
	Display    *string         `json:"display,omitempty"`
	Inputs     []flow.PortInfo `json:"inputs"`
	Outputs    []flow.PortInfo `json:"outputs"`
	State      map[string]any  `json:"state,omitempty"`
}

type displayer interface {
	Text() string
}

// viewNode must run inside Session.View or Session.Update.
func viewNode(g *flow.Graph, id flow.NodeID) (nodeView, bool) {
	n, ok := g.Node(id)
	if !ok {
		return nodeView{}, false
	}
	v := nodeView{
		ID:         id.String(),
		Model:      n.ModelName(),
		Caption:    g.NodeCaption(id),
		Position:   n.Position(),
		Layer:      n.Layer(),
		Converter:  n.IsConverter(),
		Validation: g.NodeValidationState(id).String(),
		Message:    g.NodeValidationMessage(id),
		Inputs:     g.NodePorts(id, flow.PortIn),
		Outputs:    g.NodePorts(id, flow.PortOut),
		State:      n.Model().Save(),
	}
	if d, ok := n.Model().(displayer); ok {
		text := d.Text()
		v.Display = &text
	}
	return v, true
}

// handleListNodes lists scene nodes; ?converters=true includes hidden converter nodes.
func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	withConverters := queryBool(r, "converters", false)

	var nodes []nodeView
	sess.View(func(g *flow.Graph) {
		nodes = make([]nodeView, 0, g.NodeCount())
		for _, id := range g.Nodes() {
			v, ok := viewNode(g, id)
			if !ok || (v.Converter && !withConverters) {
				continue
			}
			nodes = append(nodes, v)
		}
	})
	writeJSON(w, http.StatusOK, nodes)
}

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	id, err := nodeIDParam(r)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	var (
		v     nodeView
		found bool
	)
	sess.View(func(g *flow.Graph) { v, found = viewNode(g, id) })
	if !found {
		writeFlowError(w, schema.NewErrorf(schema.ErrCodeNotFound, "node %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// handleAddNode creates a node, optionally with an initial state record.
func (s *Server) handleAddNode(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	var body struct {
		Model    string          `json:"model"`
		Position schema.Position `json:"position"`
		Layer    int             `json:"layer"`
		State    map[string]any  `json:"state"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	var v nodeView
	err := sess.Update(r.Context(), func(g *flow.Graph) error {
		id, err := g.AddNode(body.Model, body.Position)
		if err != nil {
			return err
		}
		if body.Layer != 0 {
			if err := g.SetNodeLayer(id, body.Layer); err != nil {
				return err
			}
		}
		if body.State != nil {
			if err := g.SetNodeState(id, body.State); err != nil {
				_ = g.RemoveNode(id)
				return err
			}
		}
		v, _ = viewNode(g, id)
		return nil
	})
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// handleUpdateNode moves a node, changes its layer or replaces its state.
// Absent fields are left unchanged.
func (s *Server) handleUpdateNode(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	id, err := nodeIDParam(r)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	var body struct {
		Position *schema.Position `json:"position"`
		Layer    *int             `json:"layer"`
		State    map[string]any   `json:"state"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	var v nodeView
	err = sess.Update(r.Context(), func(g *flow.Graph) error {
		if _, ok := g.Node(id); !ok {
			return schema.NewErrorf(schema.ErrCodeNotFound, "node %s not found", id)
		}
		if body.Position != nil {
			if err := g.MoveNode(id, *body.Position); err != nil {
				return err
			}
		}
		if body.Layer != nil {
			if err := g.SetNodeLayer(id, *body.Layer); err != nil {
				return err
			}
		}
		if body.State != nil {
			if err := g.SetNodeState(id, body.State); err != nil {
				return err
			}
		}
		v, _ = viewNode(g, id)
		return nil
	})
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleRemoveNode(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	id, err := nodeIDParam(r)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	err = sess.Update(r.Context(), func(g *flow.Graph) error {
		if _, ok := g.Node(id); !ok {
			return schema.NewErrorf(schema.ErrCodeNotFound, "node %s not found", id)
		}
		return g.RemoveNode(id)
	})
	if err != nil {
		writeFlowError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteSelection removes a batch of nodes and connections.
func (s *Server) handleDeleteSelection(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	var body struct {
		Nodes       []string `json:"nodes"`
		Connections []string `json:"connections"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	nodes := make([]flow.NodeID, 0, len(body.Nodes))
	for _, raw := range body.Nodes {
		id, err := parseID("node", raw)
		if err != nil {
			writeFlowError(w, err)
			return
		}
		nodes = append(nodes, id)
	}
	conns := make([]flow.ConnectionID, 0, len(body.Connections))
	for _, raw := range body.Connections {
		id, err := parseID("connection", raw)
		if err != nil {
			writeFlowError(w, err)
			return
		}
		conns = append(conns, id)
	}

	if err := sess.Update(r.Context(), func(g *flow.Graph) error {
		return g.DeleteSelection(nodes, conns)
	}); err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Info())
}

func (s *Server) handleListConnections(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	var conns []flow.Connection
	sess.View(func(g *flow.Graph) { conns = g.Connections() })
	writeJSON(w, http.StatusOK, conns)
}

// handleConnect links an output port to an input port.
func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	var body schema.ConnectionRecord
	if !decodeJSON(w, r, &body) {
		return
	}
	out, err := parseID("node", body.OutNodeID)
	if err != nil {
		writeFlowError(w, err)
		return
	}
	in, err := parseID("node", body.InNodeID)
	if err != nil {
		writeFlowError(w, err)
		return
	}

	var conn flow.Connection
	err = sess.Update(r.Context(), func(g *flow.Graph) error {
		c, err := g.Connect(out, flow.PortIndex(body.OutPortIndex), in, flow.PortIndex(body.InPortIndex))
		conn = c
		return err
	})
	if err != nil {
		writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conn)
}

func (s *Server) handleRemoveConnection(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	id, err := parseID("connection", chi.URLParam(r, "connection"))
	if err != nil {
		writeFlowError(w, err)
		return
	}
	if err := sess.Update(r.Context(), func(g *flow.Graph) error {
		return g.RemoveConnectionByID(id)
	}); err != nil {
		writeFlowError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
