package mcp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/nodeflow/internal/expressions"
	"github.com/rendis/nodeflow/internal/flow"
	"github.com/rendis/nodeflow/internal/models"
	"github.com/rendis/nodeflow/internal/scene"
	"github.com/rendis/nodeflow/internal/store"
	"github.com/rendis/nodeflow/internal/style"
	"github.com/rendis/nodeflow/internal/validation"
	"github.com/rendis/nodeflow/pkg/schema"
)

func newTestServer(t *testing.T) *NodeflowServer {
	t.Helper()
	engines, err := expressions.NewEngines()
	require.NoError(t, err)
	reg, conv, err := models.NewRegistries(engines, nil)
	require.NoError(t, err)
	v, err := validation.NewSceneValidator(reg, validation.WithConverters(conv))
	require.NoError(t, err)

	st, err := store.NewLibSQLStore("file:" + filepath.Join(t.TempDir(), "scenes.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr := scene.NewManager(scene.Deps{
		Models:     reg,
		Converters: conv,
		Store:      st,
		EventLog:   store.NewEventLog(st),
		Validator:  v,
		Logger:     logger,
	})
	return NewNodeflowServer(NodeflowServerDeps{Scenes: mgr, Style: style.Default(), Logger: logger})
}

func buildRequest(toolName string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	}
}

// call invokes a tool handler and fails the test on a transport error.
func call(t *testing.T, s *NodeflowServer, toolName string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	tool := s.mcpServer.GetTool(toolName)
	require.NotNil(t, tool, "tool %s", toolName)
	result, err := tool.Handler(context.Background(), buildRequest(toolName, args))
	require.NoError(t, err)
	require.NotNil(t, result)
	return result
}

// callOK invokes a tool and decodes its JSON result into target.
func callOK(t *testing.T, s *NodeflowServer, toolName string, args map[string]any, target any) {
	t.Helper()
	result := call(t, s, toolName, args)
	require.False(t, result.IsError, extractText(t, result))
	if target != nil {
		unmarshalResult(t, result, target)
	}
}

// newCalculator builds a scene with a number source feeding a number display.
func newCalculator(t *testing.T, s *NodeflowServer, name string) (sceneID, src, dst string) {
	t.Helper()
	var info scene.Info
	callOK(t, s, "flow.scene", map[string]any{"action": "create", "scene": name}, &info)

	var n nodeSummary
	callOK(t, s, "flow.node", map[string]any{
		"action": "add", "scene": name, "model": "NumberSource", "state": map[string]any{"value": 4},
	}, &n)
	src = n.ID
	callOK(t, s, "flow.node", map[string]any{
		"action": "add", "scene": name, "model": "NumberDisplay", "x": 200.0, "y": 0.0,
	}, &n)
	dst = n.ID

	callOK(t, s, "flow.connect", map[string]any{"scene": name, "out_id": src, "in_id": dst}, nil)
	return info.ID, src, dst
}

func TestCatalogTool(t *testing.T) {
	s := newTestServer(t)

	var res struct {
		Models map[string][]string `json:"models"`
	}
	callOK(t, s, "flow.catalog", map[string]any{"resource": "models", "filter": "display"}, &res)
	assert.Equal(t, map[string][]string{models.CategoryDisplays: {"NumberDisplay", "TextDisplay"}}, res.Models)

	var conv struct {
		Converters []flow.ConverterPair `json:"converters"`
	}
	callOK(t, s, "flow.catalog", map[string]any{"resource": "converters"}, &conv)
	assert.Len(t, conv.Converters, 4)

	result := call(t, s, "flow.catalog", map[string]any{"resource": "plugins"})
	assert.True(t, result.IsError)
}

func TestNodeAndConnectTools(t *testing.T) {
	s := newTestServer(t)
	_, src, dst := newCalculator(t, s, "calc")

	var n nodeSummary
	callOK(t, s, "flow.inspect", map[string]any{"scene": "calc", "resource": "nodes", "node_id": dst}, &n)
	assert.Equal(t, "4", n.Display)
	assert.Equal(t, "valid", n.Validation)
	assert.Equal(t, "Result", n.Caption)

	callOK(t, s, "flow.node", map[string]any{
		"action": "update", "scene": "calc", "node_id": src, "state": map[string]any{"value": 9.5}, "layer": 2,
	}, &n)
	assert.Equal(t, 2, n.Layer)

	callOK(t, s, "flow.inspect", map[string]any{"scene": "calc", "resource": "nodes", "node_id": dst}, &n)
	assert.Equal(t, "9.5", n.Display)

	var conns struct {
		Connections []flow.Connection `json:"connections"`
	}
	callOK(t, s, "flow.inspect", map[string]any{"scene": "calc", "resource": "connections"}, &conns)
	require.Len(t, conns.Connections, 1)

	callOK(t, s, "flow.disconnect", map[string]any{"scene": "calc", "connection_id": conns.Connections[0].ID.String()}, nil)
	callOK(t, s, "flow.inspect", map[string]any{"scene": "calc", "resource": "nodes", "node_id": dst}, &n)
	assert.Equal(t, "warning", n.Validation)
	assert.Equal(t, "missing input", n.Message)

	var all struct {
		Nodes []nodeSummary `json:"nodes"`
	}
	callOK(t, s, "flow.node", map[string]any{"action": "remove", "scene": "calc", "node_id": src}, nil)
	callOK(t, s, "flow.inspect", map[string]any{"scene": "calc", "resource": "nodes"}, &all)
	require.Len(t, all.Nodes, 1)
	assert.Equal(t, dst, all.Nodes[0].ID)
}

func TestConnectThroughConverter(t *testing.T) {
	s := newTestServer(t)
	callOK(t, s, "flow.scene", map[string]any{"action": "create", "scene": "conv"}, nil)

	var src, dst nodeSummary
	callOK(t, s, "flow.node", map[string]any{"action": "add", "scene": "conv", "model": "NumberSource", "state": map[string]any{"value": 3}}, &src)
	callOK(t, s, "flow.node", map[string]any{"action": "add", "scene": "conv", "model": "TextDisplay"}, &dst)

	var conn flow.Connection
	callOK(t, s, "flow.connect", map[string]any{"scene": "conv", "out_id": src.ID, "in_id": dst.ID}, &conn)
	assert.True(t, conn.Converted())

	var n nodeSummary
	callOK(t, s, "flow.inspect", map[string]any{"scene": "conv", "resource": "nodes", "node_id": dst.ID}, &n)
	assert.Equal(t, "3", n.Display)

	var all struct {
		Nodes []nodeSummary `json:"nodes"`
	}
	callOK(t, s, "flow.inspect", map[string]any{"scene": "conv", "resource": "nodes"}, &all)
	assert.Len(t, all.Nodes, 2, "converter nodes stay hidden")
}

func TestToolErrors(t *testing.T) {
	s := newTestServer(t)
	_, src, dst := newCalculator(t, s, "calc")

	tests := []struct {
		name string
		tool string
		args map[string]any
		code string
	}{
		{"unknown model", "flow.node", map[string]any{"action": "add", "scene": "calc", "model": "Teleporter"}, schema.ErrCodeUnknownModelType},
		{"unknown scene", "flow.inspect", map[string]any{"scene": "nope", "resource": "nodes"}, schema.ErrCodeNotFound},
		{"bad node id", "flow.node", map[string]any{"action": "remove", "scene": "calc", "node_id": "xyz"}, schema.ErrCodeValidation},
		{"duplicate connection", "flow.connect", map[string]any{"scene": "calc", "out_id": src, "in_id": dst}, schema.ErrCodePolicyViolation},
		{"bad port", "flow.connect", map[string]any{"scene": "calc", "out_id": src, "out_index": 7, "in_id": dst}, schema.ErrCodeInvalidPort},
		{"bad state", "flow.node", map[string]any{"action": "update", "scene": "calc", "node_id": src, "state": map[string]any{"value": "four"}}, schema.ErrCodeValidation},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			result := call(t, s, tc.tool, tc.args)
			require.True(t, result.IsError)
			assert.Contains(t, extractText(t, result), "["+tc.code+"]")
		})
	}

	result := call(t, s, "flow.scene", map[string]any{"action": "save"})
	require.True(t, result.IsError)
	assert.Equal(t, "scene is required", extractText(t, result))
}

func TestSceneLifecycleTools(t *testing.T) {
	s := newTestServer(t)
	sceneID, _, _ := newCalculator(t, s, "calc")

	var rev store.Revision
	callOK(t, s, "flow.scene", map[string]any{"action": "save", "scene": "calc"}, &rev)
	assert.Equal(t, int64(1), rev.Revision)
	assert.Nil(t, rev.Document)

	var info scene.Info
	callOK(t, s, "flow.scene", map[string]any{"action": "clear", "scene": "calc"}, &info)
	assert.Equal(t, 0, info.Nodes)
	assert.True(t, info.Dirty)

	callOK(t, s, "flow.scene", map[string]any{"action": "revert", "scene": "calc", "revision": 1}, &info)
	assert.Equal(t, 2, info.Nodes)
	assert.False(t, info.Dirty)

	var listed struct {
		Scenes []scene.Info `json:"scenes"`
	}
	callOK(t, s, "flow.scene", map[string]any{"action": "list"}, &listed)
	require.Len(t, listed.Scenes, 1)

	callOK(t, s, "flow.scene", map[string]any{"action": "close", "scene": "calc", "save": false}, nil)
	result := call(t, s, "flow.inspect", map[string]any{"scene": "calc", "resource": "document"})
	assert.True(t, result.IsError)

	callOK(t, s, "flow.scene", map[string]any{"action": "open", "scene": "calc"}, &info)
	assert.Equal(t, sceneID, info.ID)
	assert.Equal(t, 1, info.Connections)

	var doc schema.SceneDocument
	callOK(t, s, "flow.inspect", map[string]any{"scene": "calc", "resource": "document"}, &doc)
	assert.Len(t, doc.Nodes, 2)

	callOK(t, s, "flow.scene", map[string]any{"action": "delete", "scene": "calc"}, nil)
	var stored struct {
		Scenes []*store.Scene `json:"scenes"`
	}
	callOK(t, s, "flow.query", map[string]any{"resource": "scenes"}, &stored)
	assert.Empty(t, stored.Scenes)
}

func TestImportDocument(t *testing.T) {
	s := newTestServer(t)
	newCalculator(t, s, "calc")

	var doc map[string]any
	callOK(t, s, "flow.inspect", map[string]any{"scene": "calc", "resource": "document"}, &doc)

	var info scene.Info
	callOK(t, s, "flow.scene", map[string]any{"action": "create", "scene": "copy", "document": doc}, &info)
	assert.Equal(t, 2, info.Nodes)
	assert.Equal(t, 1, info.Connections)

	var report schema.ValidationReport
	callOK(t, s, "flow.inspect", map[string]any{"scene": "copy", "resource": "validation"}, &report)
	assert.True(t, report.Valid())
}

func TestQueryTool(t *testing.T) {
	s := newTestServer(t)
	newCalculator(t, s, "calc")
	callOK(t, s, "flow.scene", map[string]any{"action": "save", "scene": "calc"}, nil)

	var scenes struct {
		Scenes []*store.Scene `json:"scenes"`
	}
	callOK(t, s, "flow.query", map[string]any{"resource": "scenes", "filter": map[string]any{"q": "cal"}}, &scenes)
	require.Len(t, scenes.Scenes, 1)

	var revs struct {
		Revisions []*store.Revision `json:"revisions"`
	}
	callOK(t, s, "flow.query", map[string]any{"resource": "revisions", "filter": map[string]any{"scene": "calc"}}, &revs)
	assert.Len(t, revs.Revisions, 1)

	var events struct {
		Events []*store.Event `json:"events"`
	}
	callOK(t, s, "flow.query", map[string]any{"resource": "events", "filter": map[string]any{"scene": "calc"}}, &events)
	require.NotEmpty(t, events.Events)
	assert.Equal(t, schema.EventNodeAdded, events.Events[0].Type)

	callOK(t, s, "flow.query", map[string]any{"resource": "events", "filter": map[string]any{"event_type": schema.EventSceneSaved}}, &events)
	assert.Len(t, events.Events, 1)

	result := call(t, s, "flow.query", map[string]any{"resource": "events"})
	assert.True(t, result.IsError)

	result = call(t, s, "flow.query", map[string]any{"resource": "revisions", "filter": map[string]any{"scene": "missing"}})
	assert.True(t, result.IsError)
}

func TestDiagramTool(t *testing.T) {
	s := newTestServer(t)
	newCalculator(t, s, "calc")

	mermaid := extractText(t, call(t, s, "flow.diagram", map[string]any{"scene": "calc", "format": "mermaid"}))
	assert.Contains(t, mermaid, "graph LR")
	assert.Contains(t, mermaid, "Number Source")

	ascii := extractText(t, call(t, s, "flow.diagram", map[string]any{"scene": "calc", "format": "ascii"}))
	assert.Contains(t, ascii, "Result")

	encoded := extractText(t, call(t, s, "flow.diagram", map[string]any{"scene": "calc", "format": "image"}))
	png, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	result := call(t, s, "flow.diagram", map[string]any{"scene": "calc", "format": "pdf"})
	assert.True(t, result.IsError)
}

func TestExtractInt(t *testing.T) {
	filter := map[string]any{"a": 3.0, "b": 4, "c": "5", "d": "x"}
	assert.Equal(t, 3, extractInt(filter, "a", 0))
	assert.Equal(t, 4, extractInt(filter, "b", 0))
	assert.Equal(t, 5, extractInt(filter, "c", 0))
	assert.Equal(t, 9, extractInt(filter, "d", 9))
	assert.Equal(t, 9, extractInt(nil, "a", 9))
}

// --- Test helpers ---

func extractText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	return mcp.GetTextFromContent(result.Content[0])
}

func unmarshalResult(t *testing.T, result *mcp.CallToolResult, target any) {
	t.Helper()
	text := extractText(t, result)
	require.NoError(t, json.Unmarshal([]byte(text), target))
}
