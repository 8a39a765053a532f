// Package config provides configuration management for the servers and CLI.
// This file contains the lightweight configuration for standalone operation.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pharmaguard-mcp-server/internal/domain"
)

// LiteConfig is a simplified configuration for standalone operation.
// It requires no external databases and uses sensible defaults.
type LiteConfig struct {
	// Data storage
	DataDir string // Base directory for data files

	// CPIC settings
	CPICEnabled   bool          // Query the public CPIC API before the local store
	CacheMaxItems int           // Maximum items in memory cache
	CacheTTL      time.Duration // Default cache TTL

	// Explanation settings
	ExplanationProvider string // rule_based or anthropic
	AnthropicAPIKey     string // Optional: enables LLM explanations

	// Transport settings
	Transport string // Transport type: stdio, http
	HTTPPort  int    // HTTP port (if transport is http)

	// Logging
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: json, text
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".pharmaguard")

	return &LiteConfig{
		DataDir:             dataDir,
		CPICEnabled:         true,
		CacheMaxItems:       512,
		CacheTTL:            time.Hour,
		ExplanationProvider: "rule_based",
		Transport:           "stdio",
		HTTPPort:            8080,
		LogLevel:            "info",
		LogFormat:           "json",
	}
}

// LoadLiteConfig loads configuration from environment variables.
// Falls back to defaults if not set.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	if v := os.Getenv("PHARMAGUARD_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	if v := os.Getenv("PHARMAGUARD_CPIC_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.CPICEnabled = b
		}
	}
	if v := os.Getenv("PHARMAGUARD_CACHE_MAX_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheMaxItems = n
		}
	}
	if v := os.Getenv("PHARMAGUARD_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CacheTTL = d
		}
	}

	if v := os.Getenv("PHARMAGUARD_EXPLANATION_PROVIDER"); v != "" {
		cfg.ExplanationProvider = strings.ToLower(v)
	}
	cfg.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")

	if v := os.Getenv("PHARMAGUARD_TRANSPORT"); v != "" {
		cfg.Transport = v
	}
	if v := os.Getenv("PHARMAGUARD_HTTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HTTPPort = n
		}
	}

	if v := os.Getenv("PHARMAGUARD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PHARMAGUARD_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// GuidelinesDBPath returns the path to the guideline SQLite database.
func (c *LiteConfig) GuidelinesDBPath() string {
	return filepath.Join(c.DataDir, "guidelines.db")
}

// ExportDir returns the directory for JSON exports.
func (c *LiteConfig) ExportDir() string {
	return filepath.Join(c.DataDir, "exports")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *LiteConfig) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(c.ExportDir(), 0755)
}

// CPICConfig returns client settings for lite mode.
func (c *LiteConfig) CPICConfig() domain.CPICConfig {
	return domain.CPICConfig{
		Enabled:   c.CPICEnabled,
		BaseURL:   "https://api.cpicpgx.org/v1",
		Timeout:   10 * time.Second,
		RateLimit: 5,
		CacheTTL:  c.CacheTTL,
		CacheSize: c.CacheMaxItems,
	}
}

// ExplanationConfig returns explainer settings for lite mode.
func (c *LiteConfig) ExplanationConfig() domain.ExplanationConfig {
	return domain.ExplanationConfig{
		Provider:        c.ExplanationProvider,
		AnthropicAPIKey: c.AnthropicAPIKey,
	}
}

// LoggingConfig returns the logging section for lite mode.
func (c *LiteConfig) LoggingConfig() domain.LoggingConfig {
	return domain.LoggingConfig{Level: c.LogLevel, Format: c.LogFormat}
}
