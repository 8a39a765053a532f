package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pharmaguard-mcp-server/internal/app"
	"github.com/pharmaguard-mcp-server/internal/config"
	"github.com/pharmaguard-mcp-server/internal/domain"
	"github.com/pharmaguard-mcp-server/internal/guidelines"
)

var version = "1.0.0"

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	dataDir  string
	dbPath   string
	offline  bool
	provider string
	logLevel string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "pharmaguard",
		Short: "Pharmacogenomic risk assessment from VCF files",
		Long: `Parses variant calls for the pharmacogenes, resolves diplotypes and
metabolizer phenotypes, and assesses drug risk from CPIC guidelines, the local
guideline store and the built-in knowledge base.`,
		Version:      version,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.dataDir, "data-dir", "", "data directory (default $PHARMAGUARD_DATA_DIR or ~/.pharmaguard)")
	flags.StringVar(&opts.dbPath, "db", "", "guideline SQLite database (default <data-dir>/guidelines.db)")
	flags.BoolVar(&opts.offline, "offline", false, "skip CPIC API lookups")
	flags.StringVar(&opts.provider, "explainer", "", "explanation provider: rule_based or anthropic")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	root.AddCommand(
		newParseCmd(opts),
		newAnalyzeCmd(opts),
		newAssessCmd(opts),
		newClassifyCmd(),
		newDrugsCmd(),
		newGuidelinesCmd(opts),
		newSetupCmd(opts),
	)
	return root
}

func (o *globalOptions) liteConfig() *config.LiteConfig {
	cfg := config.LoadLiteConfig()
	if o.dataDir != "" {
		cfg.DataDir = o.dataDir
	}
	if o.offline {
		cfg.CPICEnabled = false
	}
	if o.provider != "" {
		cfg.ExplanationProvider = o.provider
	}
	cfg.LogLevel = o.logLevel
	cfg.LogFormat = "text"
	return cfg
}

// open wires the analyzer and guideline store. Logs go to the command's
// error stream so stdout stays machine-readable.
func (o *globalOptions) open(cmd *cobra.Command) (*app.Lite, error) {
	cfg := o.liteConfig()
	logger := config.NewLogger(cfg.LoggingConfig())
	logger.SetOutput(cmd.ErrOrStderr())

	var store domain.GuidelineStore
	if o.dbPath != "" {
		sqlite, err := guidelines.NewSQLiteStore(o.dbPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open guideline store: %w", err)
		}
		store = sqlite
	}
	return app.NewLite(cfg, logger, store)
}

// readInput reads a file, or standard input when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func writeJSON(cmd *cobra.Command, v any, pretty bool) error {
	var (
		data []byte
		err  error
	)
	if pretty {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
