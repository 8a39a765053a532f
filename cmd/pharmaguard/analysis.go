package main

import (
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pharmaguard-mcp-server/internal/domain"
	"github.com/pharmaguard-mcp-server/internal/knowledge"
	"github.com/pharmaguard-mcp-server/internal/recommendation"
)

func newParseCmd(opts *globalOptions) *cobra.Command {
	var summary bool

	cmd := &cobra.Command{
		Use:   "parse [file]",
		Short: "Parse a VCF file and list the pharmacogenomic variants",
		Long: `Parses a VCF file ("-" reads standard input) and reports the variants found
in the supported pharmacogenes. Parsing never fails; problems are reported as
warnings.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}

			lite, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer lite.Close()

			parsed := lite.Analyzer.ParseVariants(string(data))
			if summary {
				return printParseResult(cmd, parsed)
			}
			return writeJSON(cmd, parsed, true)
		},
	}
	cmd.Flags().BoolVar(&summary, "summary", false, "print a variant table instead of JSON")
	return cmd
}

func printParseResult(cmd *cobra.Command, parsed domain.ParseResult) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Patient:   %s\n", parsed.PatientID)
	fmt.Fprintf(out, "VCF valid: %t\n", parsed.VCFValid)
	fmt.Fprintf(out, "Variants:  %d total, %d pharmacogenomic\n", parsed.TotalVariants, len(parsed.PGxVariants))
	fmt.Fprintf(out, "Genes:     %s\n", strings.Join(parsed.GenesFound, ", "))

	if len(parsed.PGxVariants) > 0 {
		fmt.Fprintln(out)
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "RSID\tGENE\tSTAR\tGENOTYPE\tEFFECT")
		for _, v := range parsed.PGxVariants {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", v.RSID, v.Gene, v.Star, v.Genotype, v.Effect)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}

	for _, warning := range parsed.Warnings {
		fmt.Fprintf(out, "warning: %s\n", warning)
	}
	return nil
}

func newAnalyzeCmd(opts *globalOptions) *cobra.Command {
	var (
		drugs  []string
		pretty bool
	)

	cmd := &cobra.Command{
		Use:   "analyze [file]",
		Short: "Assess drug risk for a patient VCF",
		Long: `Parses a VCF file once and assesses each requested drug, printing the
multi-drug report as JSON.`,
		Example: `  pharmaguard analyze patient.vcf --drugs CODEINE,WARFARIN --pretty`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}

			lite, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer lite.Close()

			report, err := lite.Analyzer.Analyze(cmd.Context(), string(data), drugs)
			if err != nil {
				return err
			}
			return writeJSON(cmd, report, pretty)
		},
	}
	cmd.Flags().StringSliceVar(&drugs, "drugs", nil, "comma-separated drug names")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "indent the JSON output")
	_ = cmd.MarkFlagRequired("drugs")
	return cmd
}

func newAssessCmd(opts *globalOptions) *cobra.Command {
	var (
		query     domain.RiskQuery
		phenotype string
		asJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "assess",
		Short: "Assess risk for a drug and metabolizer phenotype",
		Example: `  pharmaguard assess --drug clopidogrel --phenotype PM
  pharmaguard assess --drug codeine --phenotype URM --gene CYP2D6 --diplotype '*1/*2'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			query.Phenotype = domain.NormalizeQueryPhenotype(phenotype)

			lite, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer lite.Close()

			result := lite.Analyzer.AssessRisk(cmd.Context(), query)
			if asJSON {
				return writeJSON(cmd, result, true)
			}
			printRiskResult(cmd, query, result)
			return nil
		},
	}
	cmd.Flags().StringVar(&query.Drug, "drug", "", "drug name or alias")
	cmd.Flags().StringVar(&phenotype, "phenotype", "", "metabolizer phenotype: PM, IM, NM, RM, URM or Unknown")
	cmd.Flags().StringVar(&query.Gene, "gene", "", "primary gene, enables CPIC lookup with --diplotype")
	cmd.Flags().StringVar(&query.Diplotype, "diplotype", "", "diplotype such as *1/*4")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output the result as JSON")
	_ = cmd.MarkFlagRequired("drug")
	_ = cmd.MarkFlagRequired("phenotype")
	return cmd
}

func printRiskResult(cmd *cobra.Command, q domain.RiskQuery, r domain.RiskResult) {
	out := cmd.OutOrStdout()
	rec := r.ClinicalRecommendation
	fmt.Fprintf(out, "Drug:        %s\n", strings.ToUpper(q.Drug))
	fmt.Fprintf(out, "Phenotype:   %s\n", q.Phenotype)
	fmt.Fprintf(out, "Risk:        %s (severity %s, confidence %.2f)\n",
		r.RiskAssessment.RiskLabel, r.RiskAssessment.Severity, r.RiskAssessment.ConfidenceScore)
	fmt.Fprintf(out, "Urgency:     %s\n", rec.Urgency)
	fmt.Fprintf(out, "Dosing:      %s\n", rec.DosingRecommendation)
	if len(rec.AlternativeDrugs) > 0 {
		fmt.Fprintf(out, "Alternatives: %s\n", strings.Join(rec.AlternativeDrugs, ", "))
	}
	if len(rec.MonitoringParameters) > 0 {
		fmt.Fprintf(out, "Monitoring:  %s\n", strings.Join(rec.MonitoringParameters, ", "))
	}
	if rec.GuidelineReference != "" {
		fmt.Fprintf(out, "Reference:   %s\n", rec.GuidelineReference)
	}
	fmt.Fprintf(out, "Source:      %s\n", r.Source)
}

func newClassifyCmd() *cobra.Command {
	var implication string

	cmd := &cobra.Command{
		Use:   "classify [recommendation]",
		Short: "Derive a risk category from guideline recommendation text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outcome := recommendation.Classify(args[0], implication)
			return writeJSON(cmd, map[string]any{
				"risk_label":            outcome.RiskLabel,
				"severity":              outcome.Severity,
				"urgency":               outcome.Urgency,
				"alternative_drugs":     recommendation.ExtractAlternatives(args[0]),
				"monitoring_parameters": recommendation.ExtractMonitoring(args[0] + " " + implication),
			}, true)
		},
	}
	cmd.Flags().StringVar(&implication, "implication", "", "accompanying implication text")
	return cmd
}

func newDrugsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "drugs",
		Short: "List the drugs covered by the built-in knowledge base",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			supported := knowledge.Default().Supported()
			if asJSON {
				return writeJSON(cmd, supported, true)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "DRUG\tGENE\tCLASS\tALIASES")
			aliases := aliasesByDrug(supported.Aliases)
			for _, drug := range supported.Drugs {
				info := supported.DrugDetails[drug]
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", drug, info.Gene, info.DrugClass, strings.Join(aliases[drug], ", "))
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func aliasesByDrug(aliases map[string]string) map[string][]string {
	out := make(map[string][]string)
	for alias, drug := range aliases {
		out[drug] = append(out[drug], alias)
	}
	for _, names := range out {
		sort.Strings(names)
	}
	return out
}
