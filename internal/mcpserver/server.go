package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// Version is reported to MCP clients.
const Version = "1.0.0"

// NewMCPServer creates a configured MCP server with all wallet risk tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("wallet-risk-agent", Version)
	client := NewRiskClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolAnalyzeWallet, h.HandleAnalyzeWallet)
	s.AddTool(ToolGetWalletHistory, h.HandleGetWalletHistory)
	s.AddTool(ToolListMonitoredWallets, h.HandleListMonitoredWallets)
	s.AddTool(ToolMonitorWallet, h.HandleMonitorWallet)

	return s
}
