package mcp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/nodeflow/internal/streaming"
	"github.com/rendis/nodeflow/pkg/schema"
)

// SceneNotifier pushes scene notifications to connected clients.
type SceneNotifier interface {
	Notify(ctx context.Context, sceneID string, payload map[string]any) error
}

// clientSender is the part of MCPServer the notifier needs.
type clientSender interface {
	SendNotificationToSpecificClient(sessionID string, method string, params map[string]any) error
}

// MCPNotifier implements SceneNotifier using MCP session notifications.
type MCPNotifier struct {
	mcpServer clientSender
	sessions  *SessionRegistry
	logger    *slog.Logger
}

// NewMCPNotifier creates a notifier that pushes to watching MCP sessions.
func NewMCPNotifier(mcpServer *server.MCPServer, sessions *SessionRegistry, logger *slog.Logger) *MCPNotifier {
	return newNotifier(mcpServer, sessions, logger)
}

func newNotifier(sender clientSender, sessions *SessionRegistry, logger *slog.Logger) *MCPNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &MCPNotifier{mcpServer: sender, sessions: sessions, logger: logger}
}

// Notify sends a notification to every session watching the scene.
// Best-effort: sessions that went away are dropped silently.
func (n *MCPNotifier) Notify(_ context.Context, sceneID string, payload map[string]any) error {
	var errs []error
	for _, sessionID := range n.sessions.SessionsFor(sceneID) {
		err := n.mcpServer.SendNotificationToSpecificClient(sessionID, "notifications/message", payload)
		if errors.Is(err, server.ErrSessionNotFound) {
			n.sessions.Remove(sessionID)
			continue
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run forwards every hub event to the watchers of its scene until ctx is
// cancelled. A deleted scene loses its watchers after the final notice.
func (n *MCPNotifier) Run(ctx context.Context, hub streaming.EventHub) error {
	events, cancel, err := hub.Subscribe(ctx, streaming.EventFilter{})
	if err != nil {
		return err
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			payload := map[string]any{
				"level":  "info",
				"logger": "nodeflow",
				"data":   ev,
			}
			if err := n.Notify(ctx, ev.SceneID, payload); err != nil {
				n.logger.Warn("scene notification failed",
					slog.String("scene_id", ev.SceneID),
					slog.String("event_type", ev.EventType),
					slog.String("error", err.Error()))
			}
			if ev.EventType == schema.EventSceneDeleted {
				n.sessions.Forget(ev.SceneID)
			}
		}
	}
}
