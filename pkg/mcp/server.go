package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/nodeflow/internal/scene"
	"github.com/rendis/nodeflow/internal/style"
)

// NodeflowServerDeps holds the dependencies for creating a NodeflowServer.
type NodeflowServerDeps struct {
	Scenes *scene.Manager
	Style  style.Style
	// BinDir is searched for a mermaid-ascii binary used by flow.diagram.
	BinDir string
	Logger *slog.Logger
}

// NodeflowServer wraps an MCP server with scene tool handlers.
type NodeflowServer struct {
	scenes    *scene.Manager
	style     style.Style
	binDir    string
	logger    *slog.Logger
	sessions  *SessionRegistry
	mcpServer *server.MCPServer
}

// NewNodeflowServer creates a new NodeflowServer with all tools registered.
func NewNodeflowServer(deps NodeflowServerDeps) *NodeflowServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	scenes := deps.Scenes
	if scenes == nil {
		scenes = scene.NewManager(scene.Deps{Logger: logger})
	}

	s := &NodeflowServer{
		scenes:   scenes,
		style:    deps.Style,
		binDir:   deps.BinDir,
		logger:   logger,
		sessions: NewSessionRegistry(),
	}

	mcpSrv := server.NewMCPServer(
		"nodeflow",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Nodeflow edits dataflow scenes: nodes with typed ports joined by connections, where data entering a node propagates downstream. Use flow.catalog to discover node models, flow.scene to create, open, save and close scenes, flow.node to add, update and remove nodes, flow.connect and flow.disconnect to wire ports, flow.inspect to read node values and validation, flow.query for stored scenes, revisions and events, and flow.diagram to render a scene."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
// Scene notifications are forwarded to sessions that touched the scene.
func (s *NodeflowServer) Serve(ctx context.Context) error {
	if hub := s.scenes.Hub(); hub != nil {
		notifier := NewMCPNotifier(s.mcpServer, s.sessions, s.logger)
		go func() {
			if err := notifier.Run(ctx, hub); err != nil {
				s.logger.Warn("mcp notifier stopped", slog.String("error", err.Error()))
			}
		}()
	}
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *NodeflowServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Sessions returns the scene watch registry fed by tool calls.
func (s *NodeflowServer) Sessions() *SessionRegistry {
	return s.sessions
}

// tools returns the registered MCP tools as ServerTool entries.
func (s *NodeflowServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: catalogTool(), Handler: s.handleCatalog},
		{Tool: sceneTool(), Handler: s.handleScene},
		{Tool: nodeTool(), Handler: s.handleNode},
		{Tool: connectTool(), Handler: s.handleConnect},
		{Tool: disconnectTool(), Handler: s.handleDisconnect},
		{Tool: inspectTool(), Handler: s.handleInspect},
		{Tool: queryTool(), Handler: s.handleQuery},
		{Tool: diagramTool(), Handler: s.handleDiagram},
	}
}

// --- Tool definitions ---

func catalogTool() mcp.Tool {
	return mcp.NewTool("flow.catalog",
		mcp.WithDescription("List node models by category or the registered type converters"),
		mcp.WithString("resource", mcp.Required(),
			mcp.Enum("models", "converters"),
			mcp.Description("What to list"),
		),
		mcp.WithString("filter", mcp.Description("Case-insensitive substring filter on model names")),
	)
}

func sceneTool() mcp.Tool {
	return mcp.NewTool("flow.scene",
		mcp.WithDescription("Create, open, save, close, clear, revert or delete a scene"),
		mcp.WithString("action", mcp.Required(),
			mcp.Enum("list", "create", "open", "save", "close", "clear", "revert", "delete"),
			mcp.Description("Scene operation to perform"),
		),
		mcp.WithString("scene", mcp.Description("Scene id or name (name for create)")),
		mcp.WithObject("document", mcp.Description("Scene document to import on create")),
		mcp.WithNumber("revision", mcp.Description("Revision to restore (revert only)")),
		mcp.WithBoolean("save", mcp.Description("Save before closing (default: true)")),
	)
}

func nodeTool() mcp.Tool {
	return mcp.NewTool("flow.node",
		mcp.WithDescription("Add, update or remove a node in an open scene"),
		mcp.WithString("action", mcp.Required(),
			mcp.Enum("add", "update", "remove"),
			mcp.Description("Node operation to perform"),
		),
		mcp.WithString("scene", mcp.Required(), mcp.Description("Scene id or name")),
		mcp.WithString("node_id", mcp.Description("Target node (update, remove)")),
		mcp.WithString("model", mcp.Description("Model name (add)")),
		mcp.WithNumber("x", mcp.Description("Horizontal position")),
		mcp.WithNumber("y", mcp.Description("Vertical position")),
		mcp.WithNumber("layer", mcp.Description("Z-order layer")),
		mcp.WithObject("state", mcp.Description("Model state record, e.g. {\"value\": 4} for NumberSource")),
	)
}

func connectTool() mcp.Tool {
	return mcp.NewTool("flow.connect",
		mcp.WithDescription("Connect an output port to an input port; incompatible types go through a registered converter"),
		mcp.WithString("scene", mcp.Required(), mcp.Description("Scene id or name")),
		mcp.WithString("out_id", mcp.Required(), mcp.Description("Source node id")),
		mcp.WithNumber("out_index", mcp.Description("Source output port index (default: 0)")),
		mcp.WithString("in_id", mcp.Required(), mcp.Description("Target node id")),
		mcp.WithNumber("in_index", mcp.Description("Target input port index (default: 0)")),
	)
}

func disconnectTool() mcp.Tool {
	return mcp.NewTool("flow.disconnect",
		mcp.WithDescription("Remove a connection from an open scene"),
		mcp.WithString("scene", mcp.Required(), mcp.Description("Scene id or name")),
		mcp.WithString("connection_id", mcp.Required(), mcp.Description("Connection id")),
	)
}

func inspectTool() mcp.Tool {
	return mcp.NewTool("flow.inspect",
		mcp.WithDescription("Read the nodes, connections, validation report or document of an open scene"),
		mcp.WithString("scene", mcp.Required(), mcp.Description("Scene id or name")),
		mcp.WithString("resource", mcp.Required(),
			mcp.Enum("nodes", "connections", "validation", "document"),
			mcp.Description("What to read"),
		),
		mcp.WithString("node_id", mcp.Description("Restrict nodes to one node")),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("flow.query",
		mcp.WithDescription("Query stored scenes, revisions, or events"),
		mcp.WithString("resource", mcp.Required(),
			mcp.Enum("scenes", "revisions", "events"),
			mcp.Description("Resource type to query"),
		),
		mcp.WithObject("filter", mcp.Description("Query filter (scene, q, event_type, since, limit, offset)")),
	)
}

func diagramTool() mcp.Tool {
	return mcp.NewTool("flow.diagram",
		mcp.WithDescription("Generate a visual diagram of a scene. Returns ASCII art, Mermaid flowchart syntax, or base64-encoded PNG image"),
		mcp.WithString("scene", mcp.Required(), mcp.Description("Scene id or name")),
		mcp.WithString("format", mcp.Required(),
			mcp.Enum("ascii", "mermaid", "image"),
			mcp.Description("Output format: ascii (text), mermaid (flowchart syntax), or image (base64 PNG)"),
		),
	)
}
