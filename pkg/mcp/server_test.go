package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNodeflowServer(t *testing.T) {
	s := NewNodeflowServer(NodeflowServerDeps{})
	require.NotNil(t, s)
	assert.NotNil(t, s.mcpServer)
	assert.NotNil(t, s.logger)
	assert.NotNil(t, s.scenes)
	assert.NotNil(t, s.Sessions())
}

func TestToolRegistration(t *testing.T) {
	s := NewNodeflowServer(NodeflowServerDeps{})

	tools := s.mcpServer.ListTools()
	require.Len(t, tools, 8)

	expectedTools := []string{
		"flow.catalog",
		"flow.scene",
		"flow.node",
		"flow.connect",
		"flow.disconnect",
		"flow.inspect",
		"flow.query",
		"flow.diagram",
	}
	for _, name := range expectedTools {
		tool := s.mcpServer.GetTool(name)
		assert.NotNil(t, tool, "tool %s should be registered", name)
	}
}

func TestToolDefinitions(t *testing.T) {
	tests := []struct {
		name        string
		toolName    string
		description string
	}{
		{"catalog", "flow.catalog", "List node models by category or the registered type converters"},
		{"scene", "flow.scene", "Create, open, save, close, clear, revert or delete a scene"},
		{"node", "flow.node", "Add, update or remove a node in an open scene"},
		{"disconnect", "flow.disconnect", "Remove a connection from an open scene"},
		{"query", "flow.query", "Query stored scenes, revisions, or events"},
	}

	s := NewNodeflowServer(NodeflowServerDeps{})

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tool := s.mcpServer.GetTool(tc.toolName)
			require.NotNil(t, tool)
			assert.Equal(t, tc.description, tool.Tool.Description)
		})
	}
}
