package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/pharmaguard-mcp-server/internal/domain"
	"github.com/pharmaguard-mcp-server/internal/service"
)

// ParseVCFInput is the input schema for parse_vcf.
type ParseVCFInput struct {
	VCF string `json:"vcf" jsonschema:"raw VCF file content"`
}

// ParseVCFOutput is the output schema for parse_vcf.
type ParseVCFOutput struct {
	PatientID     string                   `json:"patient_id"`
	VCFValid      bool                     `json:"vcf_valid"`
	TotalVariants int                      `json:"total_variants"`
	GenesFound    []string                 `json:"genes_found"`
	Warnings      []string                 `json:"warnings"`
	PGxVariants   []domain.DetectedVariant `json:"pgx_variants"`
}

// BuildProfileInput is the input schema for build_profile.
type BuildProfileInput struct {
	VCF  string `json:"vcf" jsonschema:"raw VCF file content"`
	Drug string `json:"drug" jsonschema:"drug name or alias, e.g. CODEINE or Plavix"`
}

// BuildProfileOutput is the output schema for build_profile.
type BuildProfileOutput struct {
	Drug    string         `json:"drug"`
	Profile domain.Profile `json:"pharmacogenomic_profile"`
}

// AssessRiskInput is the input schema for assess_risk.
type AssessRiskInput struct {
	Drug      string `json:"drug" jsonschema:"drug name or alias"`
	Phenotype string `json:"phenotype" jsonschema:"metabolizer phenotype: PM, IM, NM, RM, URM or Unknown"`
	Gene      string `json:"gene,omitempty" jsonschema:"primary gene, enables the external guideline lookup"`
	Diplotype string `json:"diplotype,omitempty" jsonschema:"star-allele diplotype such as *1/*4"`
}

// AssessRiskOutput is the output schema for assess_risk.
type AssessRiskOutput struct {
	Drug                   string                        `json:"drug"`
	Phenotype              domain.Phenotype              `json:"phenotype"`
	RiskAssessment         domain.RiskAssessment         `json:"risk_assessment"`
	ClinicalRecommendation domain.ClinicalRecommendation `json:"clinical_recommendation"`
	Source                 domain.GuidelineSource        `json:"source"`
}

// AnalyzeVCFInput is the input schema for analyze_vcf.
type AnalyzeVCFInput struct {
	VCF   string `json:"vcf" jsonschema:"raw VCF file content"`
	Drugs string `json:"drugs" jsonschema:"comma-separated drug names, e.g. CODEINE,WARFARIN"`
}

// ListSupportedDrugsInput is the (empty) input schema for list_supported_drugs.
type ListSupportedDrugsInput struct{}

// SupportedDrugOutput describes one supported drug.
type SupportedDrugOutput struct {
	Drug      string `json:"drug"`
	Gene      string `json:"gene"`
	DrugClass string `json:"drug_class"`
	Pathway   string `json:"pathway"`
}

// ListSupportedDrugsOutput is the output schema for list_supported_drugs.
type ListSupportedDrugsOutput struct {
	Drugs   []SupportedDrugOutput `json:"drugs"`
	Aliases map[string]string     `json:"aliases"`
	Count   int                   `json:"count"`
}

func (tr *ToolRegistry) handleParseVCF(_ context.Context, _ *mcp.CallToolRequest, input ParseVCFInput) (*mcp.CallToolResult, ParseVCFOutput, error) {
	parsed := tr.analyzer.ParseVariants(input.VCF)

	out := ParseVCFOutput{
		PatientID:     parsed.PatientID,
		VCFValid:      parsed.VCFValid,
		TotalVariants: parsed.TotalVariants,
		GenesFound:    nonNil(parsed.GenesFound),
		Warnings:      nonNil(parsed.Warnings),
		PGxVariants:   make([]domain.DetectedVariant, 0, len(parsed.PGxVariants)),
	}
	for _, row := range parsed.PGxVariants {
		out.PGxVariants = append(out.PGxVariants, domain.NewDetectedVariant(row))
	}

	tr.logger.WithFields(logrus.Fields{
		"tool":           "parse_vcf",
		"vcf_valid":      out.VCFValid,
		"total_variants": out.TotalVariants,
	}).Debug("Parsed VCF")
	return nil, out, nil
}

func (tr *ToolRegistry) handleBuildProfile(ctx context.Context, _ *mcp.CallToolRequest, input BuildProfileInput) (*mcp.CallToolResult, BuildProfileOutput, error) {
	if strings.TrimSpace(input.Drug) == "" {
		return nil, BuildProfileOutput{}, domain.NewValidationError("drug", "drug is required", input.Drug)
	}

	drug := tr.analyzer.Knowledge().ResolveDrug(input.Drug)
	parsed := tr.analyzer.ParseVariants(input.VCF)
	profile := tr.analyzer.BuildProfile(ctx, parsed, drug)

	return nil, BuildProfileOutput{Drug: drug, Profile: profile}, nil
}

func (tr *ToolRegistry) handleAssessRisk(ctx context.Context, _ *mcp.CallToolRequest, input AssessRiskInput) (*mcp.CallToolResult, AssessRiskOutput, error) {
	if strings.TrimSpace(input.Drug) == "" {
		return nil, AssessRiskOutput{}, domain.NewValidationError("drug", "drug is required", input.Drug)
	}
	phenotype := domain.NormalizeQueryPhenotype(input.Phenotype)
	drug := tr.analyzer.Knowledge().ResolveDrug(input.Drug)
	result := tr.analyzer.AssessRisk(ctx, domain.RiskQuery{
		Drug:      drug,
		Phenotype: phenotype,
		Gene:      strings.ToUpper(strings.TrimSpace(input.Gene)),
		Diplotype: strings.TrimSpace(input.Diplotype),
	})

	tr.logger.WithFields(logrus.Fields{
		"tool":       "assess_risk",
		"drug":       drug,
		"phenotype":  phenotype,
		"risk_label": result.RiskAssessment.RiskLabel,
		"source":     result.Source,
	}).Info("Assessed drug risk")

	return nil, AssessRiskOutput{
		Drug:                   drug,
		Phenotype:              phenotype,
		RiskAssessment:         result.RiskAssessment,
		ClinicalRecommendation: result.ClinicalRecommendation,
		Source:                 result.Source,
	}, nil
}

func (tr *ToolRegistry) handleAnalyzeVCF(ctx context.Context, _ *mcp.CallToolRequest, input AnalyzeVCFInput) (*mcp.CallToolResult, *domain.AnalysisReport, error) {
	report, err := tr.analyzer.Analyze(ctx, input.VCF, service.ParseDrugList(input.Drugs))
	if err != nil {
		return nil, nil, fmt.Errorf("analyze_vcf: %w", err)
	}
	return nil, report, nil
}

func (tr *ToolRegistry) handleListSupportedDrugs(_ context.Context, _ *mcp.CallToolRequest, _ ListSupportedDrugsInput) (*mcp.CallToolResult, ListSupportedDrugsOutput, error) {
	supported := tr.analyzer.Knowledge().Supported()

	out := ListSupportedDrugsOutput{
		Drugs:   make([]SupportedDrugOutput, 0, len(supported.Drugs)),
		Aliases: supported.Aliases,
		Count:   len(supported.Drugs),
	}
	for _, drug := range supported.Drugs {
		info := supported.DrugDetails[drug]
		out.Drugs = append(out.Drugs, SupportedDrugOutput{
			Drug:      drug,
			Gene:      info.Gene,
			DrugClass: info.DrugClass,
			Pathway:   info.Pathway,
		})
	}
	return nil, out, nil
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
