package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/facturasend-workflow/internal/adapters/mcp"
	"github.com/kirillkom/facturasend-workflow/internal/bootstrap"
	"github.com/kirillkom/facturasend-workflow/internal/config"
	"github.com/kirillkom/facturasend-workflow/internal/observability/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	// stdout carries the MCP protocol.
	slog.SetDefault(logging.NewJSONLoggerTo(os.Stderr, "mcp", cfg.LogLevel))

	app, err := bootstrap.New(context.Background(), cfg, bootstrap.Options{Service: "mcp"})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	s := mcpadapter.NewServer(mcpadapter.Dependencies{
		Batches:   app.Submissions,
		Documents: app.Submissions,
		Kude:      app.Kude,
		Queue:     app.Queue,
	})
	if err := server.ServeStdio(s); err != nil {
		slog.Error("mcp_server_failed", "error", err)
	}
}
