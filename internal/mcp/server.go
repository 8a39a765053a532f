// Package mcp exposes PharmaGuard over the Model Context Protocol.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/pharmaguard-mcp-server/internal/domain"
	"github.com/pharmaguard-mcp-server/internal/mcp/tools"
	"github.com/pharmaguard-mcp-server/internal/service"
)

// Transport names accepted by Serve.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Server represents the PharmaGuard MCP Server implementation
type Server struct {
	mcpServer *mcp.Server
	analyzer  *service.Analyzer
	registry  *tools.ToolRegistry
	logger    *logrus.Logger
}

// NewServer creates a new MCP server instance and registers its tools,
// resources and prompts.
func NewServer(info domain.MCPConfig, analyzer *service.Analyzer, logger *logrus.Logger, opts ...tools.RegistryOption) *Server {
	serverInfo := &mcp.Implementation{
		Name:    info.ServerName,
		Version: info.ServerVersion,
	}
	if serverInfo.Name == "" {
		serverInfo.Name = "pharmaguard-mcp-server"
	}
	if serverInfo.Version == "" {
		serverInfo.Version = "1.0.0"
	}

	s := &Server{
		mcpServer: mcp.NewServer(serverInfo, nil),
		analyzer:  analyzer,
		registry:  tools.NewToolRegistry(logger, analyzer, opts...),
		logger:    logger,
	}
	s.registerCapabilities()
	return s
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}

// ToolNames lists the registered tools.
func (s *Server) ToolNames() []string {
	return s.registry.ToolNames()
}

func (s *Server) registerCapabilities() {
	s.logger.Info("Registering MCP capabilities...")

	s.registry.RegisterAllTools(s.mcpServer)
	s.registerResources()
	s.registerPrompts()

	s.logger.Info("Successfully registered all MCP capabilities")
}

// Serve runs the server on the named transport until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, transport string, addr string) error {
	switch transport {
	case "", TransportStdio:
		return s.Run(ctx)
	case TransportHTTP:
		return s.RunHTTP(ctx, addr)
	default:
		return fmt.Errorf("unsupported transport: %s", transport)
	}
}

// Run serves MCP over stdio. It blocks until the context is cancelled or the
// client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.WithField("transport_type", TransportStdio).Info("Starting PharmaGuard MCP Server...")
	if err := s.mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}

// RunHTTP serves MCP over streamable HTTP on addr.
func (s *Server) RunHTTP(ctx context.Context, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.mcpServer
	}, nil)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.WithError(err).Warn("MCP HTTP shutdown failed")
		}
	}()

	s.logger.WithFields(logrus.Fields{
		"transport_type": TransportHTTP,
		"addr":           addr,
	}).Info("Starting PharmaGuard MCP Server...")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("MCP HTTP server failed: %w", err)
	}
	return nil
}
