// Package mcp exposes the memory coordinator to agents over the Model
// Context Protocol. This is pure wiring: every tool delegates to the
// coordinator, which owns all cross-tier policy.
package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/oprina-ai/memcore/internal/coordinator"
)

// Version is set at build time via ldflags.
var Version = "dev"

// NewServer creates the MCP server with all memory tools registered.
func NewServer(co *coordinator.Coordinator) *server.MCPServer {
	s := server.NewMCPServer(
		"memcore",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(
			"Memory service for the Oprina assistant. Use get_session_context at the "+
				"start of a turn, update_session_context for state changes, and "+
				"store_conversation_message for every user or agent utterance.",
		),
	)

	getCtx := NewGetSessionContextTool(co)
	s.AddTool(getCtx.Definition(), getCtx.Handle)

	updCtx := NewUpdateSessionContextTool(co)
	s.AddTool(updCtx.Definition(), updCtx.Handle)

	storeMsg := NewStoreMessageTool(co)
	s.AddTool(storeMsg.Definition(), storeMsg.Handle)

	setData := NewSetAgentDataTool(co)
	s.AddTool(setData.Definition(), setData.Handle)

	getData := NewGetAgentDataTool(co)
	s.AddTool(getData.Definition(), getData.Handle)

	learn := NewLearnTool(co)
	s.AddTool(learn.Definition(), learn.Handle)

	return s
}

// ServeStdio runs the server over stdin/stdout until EOF.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}
