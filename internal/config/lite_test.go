package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var liteEnvVars = []string{
	"PHARMAGUARD_DATA_DIR",
	"PHARMAGUARD_CPIC_ENABLED",
	"PHARMAGUARD_CACHE_MAX_ITEMS",
	"PHARMAGUARD_CACHE_TTL",
	"PHARMAGUARD_EXPLANATION_PROVIDER",
	"PHARMAGUARD_TRANSPORT",
	"PHARMAGUARD_HTTP_PORT",
	"PHARMAGUARD_LOG_LEVEL",
	"PHARMAGUARD_LOG_FORMAT",
	"ANTHROPIC_API_KEY",
}

func TestDefaultLiteConfig(t *testing.T) {
	cfg := DefaultLiteConfig()

	assert.Equal(t, ".pharmaguard", filepath.Base(cfg.DataDir))
	assert.True(t, cfg.CPICEnabled)
	assert.Equal(t, 512, cfg.CacheMaxItems)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, "rule_based", cfg.ExplanationProvider)
	assert.Equal(t, "stdio", cfg.Transport)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadLiteConfig_Defaults(t *testing.T) {
	clearEnvVars(t)

	cfg := LoadLiteConfig()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, 512, cfg.CacheMaxItems)
	assert.Equal(t, "stdio", cfg.Transport)
	assert.Empty(t, cfg.AnthropicAPIKey)
}

func TestLoadLiteConfig_EnvironmentOverrides(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("PHARMAGUARD_DATA_DIR", "/tmp/test-pharmaguard")
	t.Setenv("PHARMAGUARD_CPIC_ENABLED", "false")
	t.Setenv("PHARMAGUARD_CACHE_MAX_ITEMS", "100")
	t.Setenv("PHARMAGUARD_CACHE_TTL", "12h")
	t.Setenv("PHARMAGUARD_EXPLANATION_PROVIDER", "Anthropic")
	t.Setenv("PHARMAGUARD_TRANSPORT", "http")
	t.Setenv("PHARMAGUARD_HTTP_PORT", "9090")
	t.Setenv("PHARMAGUARD_LOG_LEVEL", "debug")
	t.Setenv("ANTHROPIC_API_KEY", "test-key")

	cfg := LoadLiteConfig()

	assert.Equal(t, "/tmp/test-pharmaguard", cfg.DataDir)
	assert.False(t, cfg.CPICEnabled)
	assert.Equal(t, 100, cfg.CacheMaxItems)
	assert.Equal(t, 12*time.Hour, cfg.CacheTTL)
	assert.Equal(t, "anthropic", cfg.ExplanationProvider)
	assert.Equal(t, "http", cfg.Transport)
	assert.Equal(t, 9090, cfg.HTTPPort)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "test-key", cfg.AnthropicAPIKey)

	assert.Equal(t, 12*time.Hour, cfg.CPICConfig().CacheTTL)
	assert.False(t, cfg.CPICConfig().Enabled)
	assert.Equal(t, "test-key", cfg.ExplanationConfig().AnthropicAPIKey)
	assert.Equal(t, "debug", cfg.LoggingConfig().Level)
}

func TestLoadLiteConfig_IgnoresInvalidValues(t *testing.T) {
	clearEnvVars(t)

	t.Setenv("PHARMAGUARD_CACHE_MAX_ITEMS", "-3")
	t.Setenv("PHARMAGUARD_CACHE_TTL", "soon")
	t.Setenv("PHARMAGUARD_HTTP_PORT", "http")
	t.Setenv("PHARMAGUARD_CPIC_ENABLED", "maybe")

	cfg := LoadLiteConfig()

	assert.Equal(t, 512, cfg.CacheMaxItems)
	assert.Equal(t, time.Hour, cfg.CacheTTL)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.True(t, cfg.CPICEnabled)
}

func TestLiteConfig_Paths(t *testing.T) {
	cfg := &LiteConfig{DataDir: "/home/user/.pharmaguard"}

	assert.Equal(t, "/home/user/.pharmaguard/guidelines.db", cfg.GuidelinesDBPath())
	assert.Equal(t, "/home/user/.pharmaguard/exports", cfg.ExportDir())
}

func TestLiteConfig_EnsureDataDir(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "config-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	cfg := &LiteConfig{DataDir: filepath.Join(tmpDir, "pharmaguard")}

	err = cfg.EnsureDataDir()
	require.NoError(t, err)

	_, err = os.Stat(cfg.DataDir)
	assert.NoError(t, err)

	_, err = os.Stat(cfg.ExportDir())
	assert.NoError(t, err)
}

// clearEnvVars blanks every lite override for the duration of the test.
func clearEnvVars(t *testing.T) {
	t.Helper()
	for _, v := range liteEnvVars {
		t.Setenv(v, "")
	}
}
