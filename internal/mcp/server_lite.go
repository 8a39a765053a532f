package mcp

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/pharmaguard-mcp-server/internal/app"
	litecfg "github.com/pharmaguard-mcp-server/internal/config"
	"github.com/pharmaguard-mcp-server/internal/domain"
)

// LiteServer is a lightweight MCP server that requires no external databases.
// Guidelines live in SQLite and CPIC responses are cached in memory.
type LiteServer struct {
	*Server
	config *litecfg.LiteConfig
	lite   *app.Lite
	store  domain.GuidelineStore
	logger *logrus.Logger
}

// LiteServerOption is a functional option for LiteServer.
type LiteServerOption func(*LiteServer) error

// WithGuidelineStore sets a custom guideline store.
func WithGuidelineStore(store domain.GuidelineStore) LiteServerOption {
	return func(s *LiteServer) error {
		s.store = store
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *logrus.Logger) LiteServerOption {
	return func(s *LiteServer) error {
		s.logger = logger
		return nil
	}
}

// NewLiteServer creates a new lightweight MCP server instance.
func NewLiteServer(cfg *litecfg.LiteConfig, opts ...LiteServerOption) (*LiteServer, error) {
	server := &LiteServer{
		config: cfg,
		logger: litecfg.NewLogger(cfg.LoggingConfig()),
	}

	for _, opt := range opts {
		if err := opt(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	lite, err := app.NewLite(cfg, server.logger, server.store)
	if err != nil {
		return nil, err
	}
	server.lite = lite
	server.store = lite.Store

	server.Server = NewServer(domain.MCPConfig{
		ServerName:    "pharmaguard-mcp-server-lite",
		ServerVersion: "1.0.0",
	}, lite.Analyzer, server.logger, lite.ToolOptions()...)

	server.logger.WithFields(logrus.Fields{
		"data_dir":     cfg.DataDir,
		"cpic_enabled": cfg.CPICEnabled,
		"tiers":        lite.Analyzer.RiskTiers(),
	}).Info("Lite server initialized successfully")
	return server, nil
}

// Start serves on the configured transport until ctx is cancelled.
func (s *LiteServer) Start(ctx context.Context) error {
	return s.Serve(ctx, s.config.Transport, fmt.Sprintf(":%d", s.config.HTTPPort))
}

// Store returns the guideline store backing the server.
func (s *LiteServer) Store() domain.GuidelineStore {
	return s.store
}

// Close releases the guideline store.
func (s *LiteServer) Close() error {
	return s.lite.Close()
}
