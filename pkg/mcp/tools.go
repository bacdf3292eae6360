package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/nodeflow/internal/diagram"
	"github.com/rendis/nodeflow/internal/flow"
	"github.com/rendis/nodeflow/internal/scene"
	"github.com/rendis/nodeflow/internal/store"
	"github.com/rendis/nodeflow/pkg/schema"
)

// nodeSummary describes one node in tool results.
type nodeSummary struct {
	ID         string          `json:"id"`
	Model      string          `json:"model"`
	Caption    string          `json:"caption"`
	Position   schema.Position `json:"position"`
	Layer      int             `json:"layer,omitempty"`
	Validation string          `json:"validation"`
	Message    string          `json:"message,omitempty"`
	Display    string          `json:"display,omitempty"`
	Inputs     []flow.PortInfo `json:"inputs,omitempty"`
	Outputs    []flow.PortInfo `json:"outputs,omitempty"`
	State      map[string]any  `json:"state,omitempty"`
}

type displayer interface {
	Text() string
}

// summarize must run inside Session.View or Session.Update.
func summarize(g *flow.Graph, id flow.NodeID) (nodeSummary, bool) {
	n, ok := g.Node(id)
	if !ok {
		return nodeSummary{}, false
	}
	v := nodeSummary{
		ID:         id.String(),
		Model:      n.ModelName(),
		Caption:    g.NodeCaption(id),
		Position:   n.Position(),
		Layer:      n.Layer(),
		Validation: g.NodeValidationState(id).String(),
		Message:    g.NodeValidationMessage(id),
		Inputs:     g.NodePorts(id, flow.PortIn),
		Outputs:    g.NodePorts(id, flow.PortOut),
		State:      n.Model().Save(),
	}
	if d, ok := n.Model().(displayer); ok {
		v.Display = d.Text()
	}
	return v, true
}

// handleCatalog lists models or converters.
func (s *NodeflowServer) handleCatalog(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resource, err := req.RequireString("resource")
	if err != nil {
		return mcp.NewToolResultError("resource is required"), nil
	}
	switch resource {
	case "models":
		return marshalResult(map[string]any{"models": s.scenes.Models().Filter(req.GetString("filter", ""))})
	case "converters":
		var pairs []flow.ConverterPair
		if conv := s.scenes.Converters(); conv != nil {
			pairs = conv.Pairs()
		}
		return marshalResult(map[string]any{"converters": pairs})
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown resource type: %s", resource)), nil
	}
}

// handleScene runs one scene lifecycle action.
func (s *NodeflowServer) handleScene(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("action is required"), nil
	}
	if action == "list" {
		return marshalResult(map[string]any{"scenes": s.scenes.List()})
	}

	ref := req.GetString("scene", "")
	if ref == "" && action != "create" {
		return mcp.NewToolResultError("scene is required"), nil
	}

	switch action {
	case "create":
		var sess *scene.Session
		if raw := mcp.ParseStringMap(req, "document", nil); raw != nil {
			doc, derr := decodeDocument(raw)
			if derr != nil {
				return toolError(derr), nil
			}
			sess, err = s.scenes.Import(ctx, ref, doc)
		} else {
			sess, err = s.scenes.Create(ctx, ref)
		}
		if err != nil {
			return toolError(err), nil
		}
		s.captureSession(ctx, sess.ID())
		return marshalResult(sess.Info())

	case "open":
		sess, oerr := s.scenes.Open(ctx, ref)
		if oerr != nil {
			return toolError(oerr), nil
		}
		s.captureSession(ctx, sess.ID())
		return marshalResult(sess.Info())

	case "save":
		rev, serr := s.scenes.Save(ctx, ref)
		if serr != nil {
			return toolError(serr), nil
		}
		rev.Document = nil
		return marshalResult(rev)

	case "close":
		if cerr := s.scenes.Close(ctx, ref, req.GetBool("save", true)); cerr != nil {
			return toolError(cerr), nil
		}
		return marshalResult(map[string]any{"closed": ref})

	case "clear":
		sess, gerr := s.scenes.Get(ref)
		if gerr != nil {
			return toolError(gerr), nil
		}
		if uerr := sess.Update(ctx, func(g *flow.Graph) error { return g.Clear() }); uerr != nil {
			return toolError(uerr), nil
		}
		return marshalResult(sess.Info())

	case "revert":
		revision := int64(extractInt(req.GetArguments(), "revision", 0))
		if revision <= 0 {
			return mcp.NewToolResultError("revision is required"), nil
		}
		if rerr := s.scenes.Revert(ctx, ref, revision); rerr != nil {
			return toolError(rerr), nil
		}
		sess, gerr := s.scenes.Get(ref)
		if gerr != nil {
			return toolError(gerr), nil
		}
		return marshalResult(sess.Info())

	case "delete":
		if derr := s.scenes.Delete(ctx, ref); derr != nil {
			return toolError(derr), nil
		}
		return marshalResult(map[string]any{"deleted": ref})

	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown action: %s", action)), nil
	}
}

// handleNode adds, updates or removes a node.
func (s *NodeflowServer) handleNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("action is required"), nil
	}
	sess, res := s.session(ctx, req)
	if res != nil {
		return res, nil
	}
	args := req.GetArguments()
	state := mcp.ParseStringMap(req, "state", nil)

	switch action {
	case "add":
		model := req.GetString("model", "")
		if model == "" {
			return mcp.NewToolResultError("model is required for add"), nil
		}
		pos := schema.Position{X: extractFloat(args, "x", 0), Y: extractFloat(args, "y", 0)}
		layer := extractInt(args, "layer", 0)

		var v nodeSummary
		err = sess.Update(ctx, func(g *flow.Graph) error {
			id, err := g.AddNode(model, pos)
			if err != nil {
				return err
			}
			if layer != 0 {
				if err := g.SetNodeLayer(id, layer); err != nil {
					return err
				}
			}
			if state != nil {
				if err := g.SetNodeState(id, state); err != nil {
					_ = g.RemoveNode(id)
					return err
				}
			}
			v, _ = summarize(g, id)
			return nil
		})
		if err != nil {
			return toolError(err), nil
		}
		return marshalResult(v)

	case "update":
		id, perr := parseNodeID(req)
		if perr != nil {
			return toolError(perr), nil
		}
		var v nodeSummary
		err = sess.Update(ctx, func(g *flow.Graph) error {
			n, ok := g.Node(id)
			if !ok {
				return schema.NewErrorf(schema.ErrCodeNotFound, "node %s not found", id)
			}
			_, hasX := args["x"]
			_, hasY := args["y"]
			if hasX || hasY {
				pos := n.Position()
				pos.X = extractFloat(args, "x", pos.X)
				pos.Y = extractFloat(args, "y", pos.Y)
				if err := g.MoveNode(id, pos); err != nil {
					return err
				}
			}
			if _, ok := args["layer"]; ok {
				if err := g.SetNodeLayer(id, extractInt(args, "layer", 0)); err != nil {
					return err
				}
			}
			if state != nil {
				if err := g.SetNodeState(id, state); err != nil {
					return err
				}
			}
			v, _ = summarize(g, id)
			return nil
		})
		if err != nil {
			return toolError(err), nil
		}
		return marshalResult(v)

	case "remove":
		id, perr := parseNodeID(req)
		if perr != nil {
			return toolError(perr), nil
		}
		err = sess.Update(ctx, func(g *flow.Graph) error {
			if _, ok := g.Node(id); !ok {
				return schema.NewErrorf(schema.ErrCodeNotFound, "node %s not found", id)
			}
			return g.RemoveNode(id)
		})
		if err != nil {
			return toolError(err), nil
		}
		return marshalResult(map[string]any{"removed": id.String()})

	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown action: %s", action)), nil
	}
}

// handleConnect links two ports.
func (s *NodeflowServer) handleConnect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, res := s.session(ctx, req)
	if res != nil {
		return res, nil
	}
	outRaw, err := req.RequireString("out_id")
	if err != nil {
		return mcp.NewToolResultError("out_id is required"), nil
	}
	inRaw, err := req.RequireString("in_id")
	if err != nil {
		return mcp.NewToolResultError("in_id is required"), nil
	}
	out, err := parseID("node", outRaw)
	if err != nil {
		return toolError(err), nil
	}
	in, err := parseID("node", inRaw)
	if err != nil {
		return toolError(err), nil
	}
	args := req.GetArguments()

	var conn flow.Connection
	err = sess.Update(ctx, func(g *flow.Graph) error {
		c, err := g.Connect(out, flow.PortIndex(extractInt(args, "out_index", 0)), in, flow.PortIndex(extractInt(args, "in_index", 0)))
		conn = c
		return err
	})
	if err != nil {
		return toolError(err), nil
	}
	return marshalResult(conn)
}

// handleDisconnect removes one connection.
func (s *NodeflowServer) handleDisconnect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, res := s.session(ctx, req)
	if res != nil {
		return res, nil
	}
	raw, err := req.RequireString("connection_id")
	if err != nil {
		return mcp.NewToolResultError("connection_id is required"), nil
	}
	id, err := parseID("connection", raw)
	if err != nil {
		return toolError(err), nil
	}
	if err := sess.Update(ctx, func(g *flow.Graph) error { return g.RemoveConnectionByID(id) }); err != nil {
		return toolError(err), nil
	}
	return marshalResult(map[string]any{"removed": id.String()})
}

// handleInspect reads a live scene.
func (s *NodeflowServer) handleInspect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resource, err := req.RequireString("resource")
	if err != nil {
		return mcp.NewToolResultError("resource is required"), nil
	}
	sess, res := s.session(ctx, req)
	if res != nil {
		return res, nil
	}

	switch resource {
	case "nodes":
		if req.GetString("node_id", "") != "" {
			id, perr := parseNodeID(req)
			if perr != nil {
				return toolError(perr), nil
			}
			var (
				v     nodeSummary
				found bool
			)
			sess.View(func(g *flow.Graph) { v, found = summarize(g, id) })
			if !found {
				return toolError(schema.NewErrorf(schema.ErrCodeNotFound, "node %s not found", id)), nil
			}
			return marshalResult(v)
		}
		var nodes []nodeSummary
		sess.View(func(g *flow.Graph) {
			for _, id := range g.Nodes() {
				if n, ok := g.Node(id); ok && n.IsConverter() {
					continue
				}
				if v, ok := summarize(g, id); ok {
					nodes = append(nodes, v)
				}
			}
		})
		return marshalResult(map[string]any{"nodes": nodes})

	case "connections":
		var conns []flow.Connection
		sess.View(func(g *flow.Graph) { conns = g.Connections() })
		return marshalResult(map[string]any{"connections": conns})

	case "validation":
		var report *schema.ValidationReport
		sess.View(func(g *flow.Graph) { report = g.Validate() })
		return marshalResult(report)

	case "document":
		return marshalResult(sess.Snapshot())

	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown resource type: %s", resource)), nil
	}
}

// handleQuery reads from the scene store.
func (s *NodeflowServer) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resource, err := req.RequireString("resource")
	if err != nil {
		return mcp.NewToolResultError("resource is required"), nil
	}
	st := s.scenes.Store()
	if st == nil {
		return mcp.NewToolResultError("no scene store configured"), nil
	}

	filter := mcp.ParseStringMap(req, "filter", nil)

	switch resource {
	case "scenes":
		return s.queryScenes(ctx, st, filter)
	case "revisions":
		return s.queryRevisions(ctx, st, filter)
	case "events":
		return s.queryEvents(ctx, st, filter)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown resource type: %s", resource)), nil
	}
}

// --- Query helpers ---

func (s *NodeflowServer) queryScenes(ctx context.Context, st store.Store, filter map[string]any) (*mcp.CallToolResult, error) {
	sf := store.SceneFilter{
		Limit:  extractInt(filter, "limit", 50),
		Offset: extractInt(filter, "offset", 0),
	}
	if q, ok := filter["q"].(string); ok {
		sf.NameContains = q
	}
	scenes, err := st.ListScenes(ctx, sf)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"scenes": scenes})
}

func (s *NodeflowServer) queryRevisions(ctx context.Context, st store.Store, filter map[string]any) (*mcp.CallToolResult, error) {
	sceneID, res := s.storedSceneID(ctx, st, filter)
	if res != nil {
		return res, nil
	}
	revs, err := st.ListRevisions(ctx, sceneID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"revisions": revs})
}

func (s *NodeflowServer) queryEvents(ctx context.Context, st store.Store, filter map[string]any) (*mcp.CallToolResult, error) {
	ef := store.EventFilter{
		Limit: extractInt(filter, "limit", 100),
	}
	if nodeID, ok := filter["node_id"].(string); ok {
		ef.NodeID = nodeID
	}
	if since, ok := filter["since"].(string); ok && since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			ef.Since = &t
		}
	}
	if ref, _ := filter["scene"].(string); ref != "" {
		id, res := s.storedSceneID(ctx, st, filter)
		if res != nil {
			return res, nil
		}
		ef.SceneID = id
	}

	if eventType, ok := filter["event_type"].(string); ok && eventType != "" {
		events, err := st.GetEventsByType(ctx, eventType, ef)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
		}
		return marshalResult(map[string]any{"events": events})
	}

	if ef.SceneID == "" {
		return mcp.NewToolResultError("event query requires either 'event_type' or 'scene' in filter"), nil
	}
	events, err := st.GetEvents(ctx, ef.SceneID, int64(extractInt(filter, "after_sequence", 0)))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"events": events})
}

// storedSceneID resolves filter["scene"] against open scenes first, then
// the store by id and by name.
func (s *NodeflowServer) storedSceneID(ctx context.Context, st store.Store, filter map[string]any) (string, *mcp.CallToolResult) {
	ref, _ := filter["scene"].(string)
	if ref == "" {
		return "", mcp.NewToolResultError("filter.scene is required")
	}
	if sess, ok := s.scenes.Lookup(ref); ok {
		return sess.ID(), nil
	}
	sc, err := st.GetScene(ctx, ref)
	if schema.IsCode(err, schema.ErrCodeNotFound) {
		sc, err = st.GetSceneByName(ctx, ref)
	}
	if err != nil {
		return "", toolError(err)
	}
	return sc.ID, nil
}

// handleDiagram renders a scene in the requested format.
func (s *NodeflowServer) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	format, err := req.RequireString("format")
	if err != nil {
		return mcp.NewToolResultError("format is required"), nil
	}
	if format != "ascii" && format != "mermaid" && format != "image" {
		return mcp.NewToolResultError("format must be ascii, mermaid, or image"), nil
	}
	sess, res := s.session(ctx, req)
	if res != nil {
		return res, nil
	}

	var model *diagram.DiagramModel
	sess.View(func(g *flow.Graph) { model = diagram.Build(sess.Name(), g, s.style) })

	switch format {
	case "ascii":
		return mcp.NewToolResultText(diagram.RenderASCIIAuto(ctx, model, s.binDir)), nil
	case "mermaid":
		return mcp.NewToolResultText(diagram.RenderMermaid(model)), nil
	default:
		png, imgErr := diagram.RenderImage(ctx, model)
		if imgErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("image render failed: %v", imgErr)), nil
		}
		return mcp.NewToolResultText(base64.StdEncoding.EncodeToString(png)), nil
	}
}

// --- Internal helpers ---

// session resolves the "scene" argument to an open session and records the
// caller as a watcher of it.
func (s *NodeflowServer) session(ctx context.Context, req mcp.CallToolRequest) (*scene.Session, *mcp.CallToolResult) {
	ref, err := req.RequireString("scene")
	if err != nil {
		return nil, mcp.NewToolResultError("scene is required")
	}
	sess, err := s.scenes.Get(ref)
	if err != nil {
		return nil, toolError(err)
	}
	s.captureSession(ctx, sess.ID())
	return sess, nil
}

// captureSession subscribes the current MCP session to notifications of the scene.
func (s *NodeflowServer) captureSession(ctx context.Context, sceneID string) {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		s.sessions.Register(sceneID, session.SessionID())
	}
}

func decodeDocument(raw map[string]any) (*schema.SceneDocument, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid document: %v", err)
	}
	var doc schema.SceneDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid document: %v", err)
	}
	return &doc, nil
}

func parseNodeID(req mcp.CallToolRequest) (flow.NodeID, error) {
	return parseID("node", req.GetString("node_id", ""))
}

func parseID(kind, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid %s id %q", kind, raw)
	}
	return id, nil
}

// toolError reports err as a tool error; FlowErrors keep their code prefix.
func toolError(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(err.Error())
}

// extractInt gets an integer from a filter map with a default.
func extractInt(filter map[string]any, key string, defaultVal int) int {
	if filter == nil {
		return defaultVal
	}
	v, ok := filter[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func extractFloat(args map[string]any, key string, defaultVal float64) float64 {
	switch val := args[key].(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
