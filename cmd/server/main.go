// Wallet risk decision engine HTTP API.
package main

import (
	"context"
	"os"
	"time"

	"github.com/snair2001/WalletRiskAgentWithIExec/internal/config"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/logging"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/server"
	"github.com/snair2001/WalletRiskAgentWithIExec/internal/traces"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	// Bootstrap logger until the configured one is available.
	logger := logging.New("info", "text")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger = logging.New(cfg.LogLevel, cfg.LogFormat)

	logger.Info("starting wallet risk engine",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
		"env", cfg.Env,
		"reasoner", cfg.Reasoner,
		"reasoning_enabled", cfg.ReasoningEnabled,
		"ambiguous_band", []float64{cfg.AmbiguousLow, cfg.AmbiguousHigh},
	)

	ctx := context.Background()
	shutdownTraces, err := traces.Init(ctx, cfg.OTLPEndpoint, Version, logger)
	if err != nil {
		logger.Error("failed to init tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTraces(sctx); err != nil {
			logger.Warn("trace shutdown failed", "error", err)
		}
	}()

	server.Version = Version
	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
