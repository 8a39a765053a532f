package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pharmaguard-mcp-server/internal/guidelines"
)

func newGuidelinesCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "guidelines",
		Short: "Manage the local guideline store",
		Long: `Imports, exports and lists the structured guideline rows consulted after
the CPIC API and before the built-in knowledge base.`,
	}
	cmd.AddCommand(
		newGuidelinesImportCmd(opts),
		newGuidelinesExportCmd(opts),
		newGuidelinesListCmd(opts),
	)
	return cmd
}

// openStore opens the guideline store without wiring the analyzer.
func (o *globalOptions) openStore() (*guidelines.SQLiteStore, error) {
	path := o.dbPath
	if path == "" {
		cfg := o.liteConfig()
		if err := cfg.EnsureDataDir(); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		path = cfg.GuidelinesDBPath()
	}
	return guidelines.NewSQLiteStore(path)
}

func newGuidelinesImportCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import [file]",
		Short: "Import guidelines from an export document",
		Long:  `Imports guideline and drug-gene rows. Rows whose keys already exist are skipped.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}

			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			imported, err := store.ImportJSON(cmd.Context(), data)
			if err != nil {
				return fmt.Errorf("import failed: %w", err)
			}
			total, genes, err := store.Count(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d entries into %s (%d guidelines, %d drug-gene mappings)\n",
				imported, store.Path(), total, genes)
			return nil
		},
	}
}

func newGuidelinesExportCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Export the guideline store as JSON",
		Long:  `Writes the export document to the given file, or to standard output.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			data, err := store.ExportJSON(cmd.Context())
			if err != nil {
				return fmt.Errorf("export failed: %w", err)
			}

			if len(args) == 0 {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			}
			if err := os.WriteFile(args[0], data, 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported guidelines to %s\n", args[0])
			return nil
		},
	}
}

func newGuidelinesListCmd(opts *globalOptions) *cobra.Command {
	var drug string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored guideline rows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.ListGuidelines(cmd.Context(), drug)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No guidelines stored.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "DRUG\tPHENOTYPE\tRISK\tSEVERITY\tURGENCY")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.Drug, r.Phenotype,
					r.Assessment.RiskLabel, r.Assessment.Severity, r.Recommendation.Urgency)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&drug, "drug", "", "only rows for this drug")
	return cmd
}
