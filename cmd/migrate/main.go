// Command migrate applies the wallet analysis and watchlist schema with goose.
//
//	migrate up | down | status | version | redo | up-to N | down-to N
//
// DATABASE_URL is required and may come from a .env file. MIGRATIONS_DIR
// overrides ./migrations.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/snair2001/WalletRiskAgentWithIExec/internal/logging"
)

const (
	defaultMigrationsDir = "migrations"
	pingTimeout          = 10 * time.Second
)

func main() {
	_ = godotenv.Load()
	logger := logging.New(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: migrate <up|down|status|version|redo|up-to N|down-to N>")
		os.Exit(2)
	}
	command, args := os.Args[1], os.Args[2:]

	if err := run(context.Background(), logger, command, args); err != nil {
		logger.Error("migration failed", "command", command, "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, command string, args []string) error {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	dir := os.Getenv("MIGRATIONS_DIR")
	if dir == "" {
		dir = defaultMigrationsDir
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	goose.SetLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))

	logger.Info("running migrations", "command", command, "dir", dir)
	return goose.RunContext(ctx, command, db, dir, args...)
}
