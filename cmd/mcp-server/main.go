package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/pharmaguard-mcp-server/internal/app"
	"github.com/pharmaguard-mcp-server/internal/config"
	"github.com/pharmaguard-mcp-server/internal/mcp"
)

func main() {
	// Load configuration
	configManager, err := config.NewManager()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := configManager.Validate(); err != nil {
		logrus.Fatalf("Configuration validation failed: %v", err)
	}

	cfg := configManager.GetConfig()
	logger := config.NewLogger(cfg.Logging)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := app.New(ctx, configManager, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize application")
	}
	defer application.Close()

	server := mcp.NewServer(cfg.MCP, application.Analyzer, logger, application.ToolOptions(cfg.MCP.ExportDir)...)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, gracefully shutting down MCP server...")
		cancel()
	}()

	logger.WithFields(logrus.Fields{
		"transport": cfg.MCP.Transport,
		"tools":     server.ToolNames(),
	}).Info("Starting PharmaGuard MCP server")

	if err := server.Serve(ctx, cfg.MCP.Transport, cfg.MCP.HTTPAddr); err != nil {
		logger.WithError(err).Fatal("MCP server failed")
	}

	logger.Info("PharmaGuard MCP server stopped")
}
