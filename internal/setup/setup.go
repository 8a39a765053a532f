// Package setup registers the lite MCP server with Claude Desktop.
package setup

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// ServerName is the key under which the server is registered.
const ServerName = "pharmaguard"

// BinaryName is the executable launched by the desktop client.
const BinaryName = "mcp-server-lite"

// DataDirEnv is the environment variable carrying the lite data directory.
const DataDirEnv = "PHARMAGUARD_DATA_DIR"

// DesktopConfig represents the Claude Desktop configuration file structure.
type DesktopConfig struct {
	MCPServers map[string]ServerEntry `json:"mcpServers"`
}

// ServerEntry represents a single MCP server launch configuration.
type ServerEntry struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Options contains options for the setup process.
type Options struct {
	ConfigPath string // Defaults to DefaultConfigPath()
	BinaryPath string // Defaults to the first mcp-server-lite found
	DataDir    string
	Offline    bool // Disables CPIC lookups in the launched server
}

// DefaultConfigPath returns the path to Claude Desktop's config file.
func DefaultConfigPath() (string, error) {
	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(home, "Library", "Application Support", "Claude", "claude_desktop_config.json"), nil
	case "linux":
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "Claude", "claude_desktop_config.json"), nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(home, ".config", "Claude", "claude_desktop_config.json"), nil
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", errors.New("APPDATA environment variable not set")
		}
		return filepath.Join(appData, "Claude", "claude_desktop_config.json"), nil
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}
}

// Load reads a desktop config. A missing file yields an empty config.
func Load(path string) (*DesktopConfig, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &DesktopConfig{MCPServers: make(map[string]ServerEntry)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg DesktopConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.MCPServers == nil {
		cfg.MCPServers = make(map[string]ServerEntry)
	}
	return &cfg, nil
}

// Save writes the desktop config, creating its directory.
func Save(path string, cfg *DesktopConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Configure adds or replaces the PharmaGuard entry, leaving other servers untouched.
// It returns the config path written and the entry stored.
func Configure(opts Options) (string, ServerEntry, error) {
	path, err := resolveConfigPath(opts.ConfigPath)
	if err != nil {
		return "", ServerEntry{}, err
	}

	cfg, err := Load(path)
	if err != nil {
		return "", ServerEntry{}, err
	}

	binary := opts.BinaryPath
	if binary == "" {
		if binary, err = FindBinary(); err != nil {
			return "", ServerEntry{}, fmt.Errorf("could not find server binary: %w", err)
		}
	}

	entry := ServerEntry{Command: binary, Env: map[string]string{}}
	if opts.DataDir != "" {
		entry.Env[DataDirEnv] = opts.DataDir
	}
	if opts.Offline {
		entry.Env["PHARMAGUARD_CPIC_ENABLED"] = "false"
	}
	cfg.MCPServers[ServerName] = entry

	if err := Save(path, cfg); err != nil {
		return "", ServerEntry{}, err
	}
	return path, entry, nil
}

// FindBinary looks for mcp-server-lite on PATH and in common install locations.
func FindBinary() (string, error) {
	if path, err := exec.LookPath(BinaryName); err == nil {
		return path, nil
	}

	home, _ := os.UserHomeDir()
	for _, loc := range []string{
		"./" + BinaryName,
		"./build/" + BinaryName,
		filepath.Join(home, ".local", "bin", BinaryName),
		"/usr/local/bin/" + BinaryName,
	} {
		if _, err := os.Stat(loc); err == nil {
			if abs, err := filepath.Abs(loc); err == nil {
				return abs, nil
			}
			return loc, nil
		}
	}
	return "", fmt.Errorf("binary %q not found in common locations", BinaryName)
}

// Status describes the current registration.
type Status struct {
	ConfigPath    string
	Configured    bool
	BinaryPath    string
	BinaryFound   bool
	DataDir       string
	DataDirExists bool
	GuidelinesDB  bool
	Issues        []string
}

// GetStatus inspects the desktop config and the data directory it points at.
// defaultDataDir is used when the entry does not override it.
func GetStatus(configPath, defaultDataDir string) (*Status, error) {
	path, err := resolveConfigPath(configPath)
	if err != nil {
		return nil, err
	}

	status := &Status{ConfigPath: path, DataDir: defaultDataDir, Issues: []string{}}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	entry, ok := cfg.MCPServers[ServerName]
	if !ok {
		status.Issues = append(status.Issues, "PharmaGuard is not registered with Claude Desktop")
	} else {
		status.Configured = true
		status.BinaryPath = entry.Command
		if _, err := os.Stat(entry.Command); err == nil {
			status.BinaryFound = true
		} else {
			status.Issues = append(status.Issues, fmt.Sprintf("Server binary not found: %s", entry.Command))
		}
		if dir := entry.Env[DataDirEnv]; dir != "" {
			status.DataDir = dir
		}
	}

	if _, err := os.Stat(status.DataDir); err == nil {
		status.DataDirExists = true
		if _, err := os.Stat(filepath.Join(status.DataDir, "guidelines.db")); err == nil {
			status.GuidelinesDB = true
		}
	}
	return status, nil
}

func resolveConfigPath(path string) (string, error) {
	if path != "" {
		return path, nil
	}
	return DefaultConfigPath()
}
