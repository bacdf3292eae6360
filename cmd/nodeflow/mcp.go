package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rendis/nodeflow/pkg/mcp"
)

// runMCP serves the scene tools over stdio. Logs go to stderr so stdout
// stays reserved for the protocol.
func runMCP(args []string) {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	logLevel := fs.String("log-level", "", "log level: debug, info, warn, error (overrides config)")
	dbPath := fs.String("db-path", "", "database path (overrides config)")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg := loadConfig()
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer a.close(context.Background())
	if err := a.start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}

	srv := mcp.NewNodeflowServer(mcp.NodeflowServerDeps{
		Scenes: a.scenes,
		Style:  a.style,
		BinDir: binDir(),
		Logger: a.logger,
	})
	if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
		a.logger.Error("mcp server stopped", "error", err)
	}
}
