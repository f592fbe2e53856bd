// Package mcpserver exposes the escrow gateway's read operations as MCP tools.
package mcpserver

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all escrow tools registered.
func NewMCPServer(cfg Config, version string, logger *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("dot-escrow", version, server.WithRecovery())
	h := NewHandlers(NewAPIClient(cfg), logger)

	s.AddTool(ToolGetEscrow, h.HandleGetEscrow)
	s.AddTool(ToolListEscrows, h.HandleListEscrows)
	s.AddTool(ToolListProposals, h.HandleListProposals)
	s.AddTool(ToolGovernanceInfo, h.HandleGovernanceInfo)
	s.AddTool(ToolCheckTransaction, h.HandleCheckTransaction)

	return s
}
