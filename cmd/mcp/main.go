// MCP server exposing wallet risk analysis as tools for LLM agents.
package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/snair2001/WalletRiskAgentWithIExec/internal/logging"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/mcpserver"
)

func main() {
	// stdout carries the protocol; logs go to stderr.
	logger := logging.NewWithWriter(os.Stderr, envOrDefault("LOG_LEVEL", "info"), "text")

	cfg := mcpserver.Config{
		APIURL:      envOrDefault("WALLETRISK_API_URL", "http://localhost:8080"),
		RequestedBy: envOrDefault("WALLETRISK_REQUESTED_BY", "mcp"),
	}
	if v := os.Getenv("WALLETRISK_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			logger.Error("invalid WALLETRISK_TIMEOUT", "value", v, "error", err)
			os.Exit(1)
		}
		cfg.Timeout = d
	}

	logger.Info("starting MCP server",
		"version", mcpserver.Version,
		"api_url", cfg.APIURL,
		"requested_by", cfg.RequestedBy,
	)

	s := mcpserver.NewMCPServer(cfg)
	errLog := slog.NewLogLogger(logger.Handler(), slog.LevelError)
	if err := server.ServeStdio(s, server.WithErrorLogger(errLog)); err != nil {
		logger.Error("MCP server error", "error", err)
		os.Exit(1)
	}
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
