package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pharmaguard-mcp-server/internal/domain"
	"github.com/pharmaguard-mcp-server/internal/middleware"
	"github.com/pharmaguard-mcp-server/internal/service"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// DefaultMaxUploadBytes caps VCF uploads when the server config leaves it unset.
const DefaultMaxUploadBytes int64 = 5 * 1024 * 1024

// Server represents the HTTP server
type Server struct {
	configManager domain.ConfigManager
	analyzer      *service.Analyzer
	recorder      domain.AnalysisRecorder
	logger        *logrus.Logger
	router        *gin.Engine
	server        *http.Server
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithAnalysisRecorder persists each completed analysis.
func WithAnalysisRecorder(recorder domain.AnalysisRecorder) ServerOption {
	return func(s *Server) { s.recorder = recorder }
}

// NewServer creates a new HTTP server instance
func NewServer(configManager domain.ConfigManager, analyzer *service.Analyzer, logger *logrus.Logger, opts ...ServerOption) *Server {
	cfg := configManager.GetConfig()

	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS())
	router.Use(middleware.RequestTimeout(cfg.Server.WriteTimeout))

	server := &Server{
		configManager: configManager,
		analyzer:      analyzer,
		logger:        logger,
		router:        router,
	}
	for _, opt := range opts {
		opt(server)
	}

	// Setup routes
	server.setupRoutes()

	return server
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server and blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configManager.GetServerConfig()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(shutdownCtx)
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/health", s.handleHealth)
		v1.GET("/supported-drugs", s.handleSupportedDrugs)
		v1.POST("/analyze", middleware.BodyLimit(2*s.maxUploadBytes()), s.handleAnalyze)
		v1.POST("/parse", middleware.BodyLimit(s.maxUploadBytes()), s.handleParse)
		v1.POST("/assess", s.handleAssess)
	}
}

func (s *Server) maxUploadBytes() int64 {
	if n := s.configManager.GetServerConfig().MaxUploadBytes; n > 0 {
		return n
	}
	return DefaultMaxUploadBytes
}
