package app

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/pharmaguard-mcp-server/internal/config"
	"github.com/pharmaguard-mcp-server/internal/domain"
	"github.com/pharmaguard-mcp-server/internal/explain"
	"github.com/pharmaguard-mcp-server/internal/guidelines"
	"github.com/pharmaguard-mcp-server/internal/knowledge"
	"github.com/pharmaguard-mcp-server/internal/mcp/tools"
	"github.com/pharmaguard-mcp-server/internal/service"
	"github.com/pharmaguard-mcp-server/pkg/external"
)

// Lite holds the standalone collaborators: a SQLite guideline store under the
// data directory and an optional CPIC client cached in memory.
type Lite struct {
	Analyzer *service.Analyzer
	Store    domain.GuidelineStore
	CPIC     *external.CPICClient

	exportDir string
}

// NewLite wires the standalone collaborators. A nil store opens the SQLite
// database at cfg.GuidelinesDBPath().
func NewLite(cfg *config.LiteConfig, logger *logrus.Logger, store domain.GuidelineStore) (*Lite, error) {
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	if store == nil {
		sqlite, err := guidelines.NewSQLiteStore(cfg.GuidelinesDBPath())
		if err != nil {
			return nil, fmt.Errorf("failed to create guideline store: %w", err)
		}
		store = sqlite
	}

	l := &Lite{Store: store, exportDir: cfg.ExportDir()}
	opts := []service.AnalyzerOption{
		service.WithGuidelineStore(store),
		service.WithExplainer(explain.New(cfg.ExplanationConfig(), logger)),
	}

	if cfg.CPICEnabled {
		memCache, err := external.NewMemoryCache(cfg.CacheMaxItems)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to create memory cache: %w", err)
		}
		l.CPIC = external.NewCPICClient(cfg.CPICConfig(), memCache, logger)
		opts = append(opts, service.WithGuidelineLookup(l.CPIC))
	}

	l.Analyzer = service.NewAnalyzer(knowledge.Default(), logger, opts...)
	return l, nil
}

// ToolOptions returns the MCP registry options for the store and CPIC client.
func (l *Lite) ToolOptions() []tools.RegistryOption {
	opts := []tools.RegistryOption{tools.WithGuidelineStore(l.Store, l.exportDir)}
	if l.CPIC != nil {
		opts = append(opts, tools.WithPairLister(l.CPIC))
	}
	return opts
}

// Close releases the guideline store.
func (l *Lite) Close() error {
	return l.Store.Close()
}
