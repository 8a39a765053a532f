package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Environment string            `mapstructure:"environment"`
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	CPIC        CPICConfig        `mapstructure:"cpic"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	MCP         MCPConfig         `mapstructure:"mcp"`
	Analysis    AnalysisConfig    `mapstructure:"analysis"`
	Explanation ExplanationConfig `mapstructure:"explanation"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrateOnStart  bool          `mapstructure:"migrate_on_start"`
}

// CPICConfig represents the CPIC guideline API configuration
type CPICConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	BaseURL          string        `mapstructure:"base_url"`
	Timeout          time.Duration `mapstructure:"timeout"`
	RateLimit        int           `mapstructure:"rate_limit"` // requests per second
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
	CacheSize        int           `mapstructure:"cache_size"`
	BreakerMaxFails  uint32        `mapstructure:"breaker_max_requests"`
	BreakerInterval  time.Duration `mapstructure:"breaker_interval"`
	BreakerOpenDelay time.Duration `mapstructure:"breaker_timeout"`
}

// CacheConfig represents the shared Redis cache configuration
type CacheConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	RedisURL    string        `mapstructure:"redis_url"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	MaxRetries  int           `mapstructure:"max_retries"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MCPConfig represents MCP server configuration
type MCPConfig struct {
	ServerName    string `mapstructure:"server_name"`
	ServerVersion string `mapstructure:"server_version"`
	Transport     string `mapstructure:"transport"` // "stdio", "http"
	HTTPAddr      string `mapstructure:"http_addr"`
	ExportDir     string `mapstructure:"export_dir"`
}

// AnalysisConfig bounds the analysis pipeline.
type AnalysisConfig struct {
	LookupTimeout  time.Duration `mapstructure:"lookup_timeout"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
}

// ExplanationConfig selects and configures the explanation provider.
type ExplanationConfig struct {
	Provider        string        `mapstructure:"provider"` // "rule_based", "anthropic"
	AnthropicAPIKey string        `mapstructure:"anthropic_api_key"`
	Model           string        `mapstructure:"model"`
	MaxTokens       int           `mapstructure:"max_tokens"`
	Timeout         time.Duration `mapstructure:"timeout"`
}
