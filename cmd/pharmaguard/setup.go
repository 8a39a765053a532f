package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pharmaguard-mcp-server/internal/setup"
)

func newSetupCmd(opts *globalOptions) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Register the lite MCP server with Claude Desktop",
	}
	cmd.PersistentFlags().StringVar(&configPath, "config-path", "", "Claude Desktop config file (default per OS)")

	var binary string
	desktop := &cobra.Command{
		Use:   "claude-desktop",
		Short: "Add or update the pharmaguard entry in the Claude Desktop config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, entry, err := setup.Configure(setup.Options{
				ConfigPath: configPath,
				BinaryPath: binary,
				DataDir:    opts.liteConfig().DataDir,
				Offline:    opts.offline,
			})
			if err != nil {
				return fmt.Errorf("failed to configure Claude Desktop: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Configured %q in %s\n", setup.ServerName, path)
			fmt.Fprintf(out, "  command:  %s\n", entry.Command)
			fmt.Fprintf(out, "  data dir: %s\n", entry.Env[setup.DataDirEnv])
			fmt.Fprintln(out, "Restart Claude Desktop to load the new configuration.")
			return nil
		},
	}
	desktop.Flags().StringVar(&binary, "binary", "", "path to mcp-server-lite (default: search PATH)")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the Claude Desktop registration and data directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := setup.GetStatus(configPath, opts.liteConfig().DataDir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config file:    %s\n", st.ConfigPath)
			fmt.Fprintf(out, "Registered:     %s\n", mark(st.Configured))
			if st.Configured {
				fmt.Fprintf(out, "Binary:         %s (%s)\n", st.BinaryPath, found(st.BinaryFound))
			}
			fmt.Fprintf(out, "Data directory: %s (%s)\n", st.DataDir, found(st.DataDirExists))
			fmt.Fprintf(out, "Guidelines DB:  %s\n", mark(st.GuidelinesDB))
			for _, issue := range st.Issues {
				fmt.Fprintf(out, "issue: %s\n", issue)
			}
			return nil
		},
	}

	cmd.AddCommand(desktop, status)
	return cmd
}

func mark(ok bool) string {
	if ok {
		return "yes"
	}
	return "no"
}

func found(ok bool) string {
	if ok {
		return "found"
	}
	return "missing"
}
