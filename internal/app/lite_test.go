package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmaguard-mcp-server/internal/config"
	"github.com/pharmaguard-mcp-server/internal/guidelines"
)

func TestNewLite(t *testing.T) {
	tests := []struct {
		name     string
		cpic     bool
		tiers    []string
		toolOpts int
	}{
		{"cpic enabled", true, []string{"external_guideline", "structured_store", "static_knowledge_base"}, 2},
		{"offline", false, []string{"structured_store", "static_knowledge_base"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultLiteConfig()
			cfg.DataDir = t.TempDir()
			cfg.CPICEnabled = tt.cpic

			lite, err := NewLite(cfg, quietLogger(), nil)
			require.NoError(t, err)
			defer lite.Close()

			assert.Equal(t, tt.tiers, lite.Analyzer.RiskTiers())
			assert.Len(t, lite.ToolOptions(), tt.toolOpts)
			assert.Equal(t, tt.cpic, lite.CPIC != nil)
			assert.FileExists(t, cfg.GuidelinesDBPath())
			assert.DirExists(t, cfg.ExportDir())
		})
	}
}

func TestNewLite_UsesProvidedStore(t *testing.T) {
	store, err := guidelines.NewSQLiteStore(filepath.Join(t.TempDir(), "custom.db"))
	require.NoError(t, err)

	cfg := config.DefaultLiteConfig()
	cfg.DataDir = t.TempDir()
	cfg.CPICEnabled = false

	lite, err := NewLite(cfg, quietLogger(), store)
	require.NoError(t, err)
	defer lite.Close()

	assert.Same(t, store, lite.Store)
	assert.NoFileExists(t, cfg.GuidelinesDBPath())

	count, _, err := lite.Store.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}
