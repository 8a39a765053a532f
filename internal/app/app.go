// Package app wires the analyzer and its collaborators. New builds the full
// mode from a config manager (Postgres store, tiered CPIC cache, audit);
// NewLite builds the standalone mode (SQLite store, in-memory CPIC cache).
package app

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/pharmaguard-mcp-server/internal/database"
	"github.com/pharmaguard-mcp-server/internal/domain"
	"github.com/pharmaguard-mcp-server/internal/explain"
	"github.com/pharmaguard-mcp-server/internal/knowledge"
	"github.com/pharmaguard-mcp-server/internal/mcp/tools"
	"github.com/pharmaguard-mcp-server/internal/repository"
	"github.com/pharmaguard-mcp-server/internal/service"
	"github.com/pharmaguard-mcp-server/pkg/external"
)

// App holds the wired collaborators. Optional parts are nil when disabled.
type App struct {
	Analyzer   *service.Analyzer
	Guidelines *repository.GuidelineRepository
	Audit      *repository.AuditRepository
	CPIC       *external.CPICClient

	db     *database.DB
	redis  *external.RedisCache
	logger *logrus.Logger
}

// New builds the application from configuration. Database and Redis failures
// are fatal when those features are enabled.
func New(ctx context.Context, cm domain.ConfigManager, logger *logrus.Logger) (*App, error) {
	cfg := cm.GetConfig()
	a := &App{logger: logger}

	if cfg.Database.Enabled {
		if err := a.openDatabase(ctx, cfg.Database); err != nil {
			return nil, err
		}
	}

	if cfg.CPIC.Enabled {
		cache, err := a.buildCache(cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.CPIC = external.NewCPICClient(cfg.CPIC, cache, logger)
	}

	opts := []service.AnalyzerOption{
		service.WithAnalysisConfig(cfg.Analysis),
		service.WithExplainer(explain.New(cfg.Explanation, logger)),
	}
	if a.CPIC != nil {
		opts = append(opts, service.WithGuidelineLookup(a.CPIC))
	}
	if a.Guidelines != nil {
		opts = append(opts, service.WithGuidelineStore(a.Guidelines))
	}
	a.Analyzer = service.NewAnalyzer(knowledge.Default(), logger, opts...)

	logger.WithFields(logrus.Fields{
		"tiers":                a.Analyzer.RiskTiers(),
		"explanation_provider": a.Analyzer.ExplanationProvider(),
		"database_enabled":     cfg.Database.Enabled,
		"cpic_enabled":         cfg.CPIC.Enabled,
	}).Info("Application initialized")
	return a, nil
}

func (a *App) openDatabase(ctx context.Context, cfg domain.DatabaseConfig) error {
	dbConfig := database.ConfigFromDomain(cfg)

	if cfg.MigrateOnStart {
		runner, err := database.NewMigrationRunner(dbConfig.URL(), a.logger)
		if err != nil {
			return fmt.Errorf("failed to create migration runner: %w", err)
		}
		err = runner.Up(ctx)
		if cerr := runner.Close(); cerr != nil {
			a.logger.WithError(cerr).Warn("Failed to close migration runner")
		}
		if err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	db, err := database.NewConnection(ctx, dbConfig, a.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.db = db
	a.Guidelines = repository.NewGuidelineRepository(db.Pool, a.logger)
	a.Audit = repository.NewAuditRepository(db.Pool, a.logger)
	return nil
}

func (a *App) buildCache(cfg *domain.Config) (external.Cache, error) {
	memory, err := external.NewMemoryCache(cfg.CPIC.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}
	if !cfg.Cache.Enabled {
		return memory, nil
	}

	redisCache, err := external.NewRedisCache(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis cache: %w", err)
	}
	a.redis = redisCache
	return external.NewTieredCache(a.logger, memory, redisCache), nil
}

// ToolOptions returns the MCP registry options for the enabled collaborators.
func (a *App) ToolOptions(exportDir string) []tools.RegistryOption {
	var opts []tools.RegistryOption
	if a.Guidelines != nil {
		opts = append(opts, tools.WithGuidelineStore(a.Guidelines, exportDir))
	}
	if a.CPIC != nil {
		opts = append(opts, tools.WithPairLister(a.CPIC))
	}
	return opts
}

// Recorder returns the analysis audit recorder, or nil without a database.
func (a *App) Recorder() domain.AnalysisRecorder {
	if a.Audit == nil {
		return nil
	}
	return a.Audit
}

// Close releases the database pool and the Redis client.
func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.WithError(err).Warn("Failed to close redis cache")
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}
