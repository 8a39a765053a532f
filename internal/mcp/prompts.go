package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/pharmaguard-mcp-server/internal/domain"
)

func (s *Server) registerPrompts() {
	s.mcpServer.AddPrompt(&mcp.Prompt{
		Name:        "pgx_counseling",
		Description: "Draft patient counseling for a drug given a metabolizer phenotype",
		Arguments: []*mcp.PromptArgument{
			{Name: "drug", Description: "Drug name or alias", Required: true},
			{Name: "phenotype", Description: "PM, IM, NM, RM, URM or Unknown", Required: true},
			{Name: "audience", Description: "clinician or patient (default clinician)"},
		},
	}, s.handleCounselingPrompt)

	s.mcpServer.AddPrompt(&mcp.Prompt{
		Name:        "vcf_review",
		Description: "Walk through a pharmacogenomic VCF review using the PharmaGuard tools",
		Arguments: []*mcp.PromptArgument{
			{Name: "drugs", Description: "Comma-separated drugs to review", Required: true},
		},
	}, s.handleVCFReviewPrompt)
}

func (s *Server) handleCounselingPrompt(ctx context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	args := req.Params.Arguments
	if strings.TrimSpace(args["drug"]) == "" {
		return nil, fmt.Errorf("argument drug is required")
	}
	phenotype := domain.NormalizeQueryPhenotype(args["phenotype"])
	audience := strings.ToLower(strings.TrimSpace(args["audience"]))
	if audience == "" {
		audience = "clinician"
	}

	drug := s.analyzer.Knowledge().ResolveDrug(args["drug"])
	risk := s.analyzer.AssessRisk(ctx, domain.RiskQuery{Drug: drug, Phenotype: phenotype})

	var b strings.Builder
	fmt.Fprintf(&b, "Write pharmacogenomic counseling for a %s.\n\n", audience)
	fmt.Fprintf(&b, "Drug: %s\nPhenotype: %s (%s)\n", drug, phenotype, phenotype.Description())
	fmt.Fprintf(&b, "Risk: %s, severity %s, confidence %.2f\n", risk.RiskAssessment.RiskLabel, risk.RiskAssessment.Severity, risk.RiskAssessment.ConfidenceScore)
	fmt.Fprintf(&b, "Dosing: %s\n", risk.ClinicalRecommendation.DosingRecommendation)
	if alts := risk.ClinicalRecommendation.AlternativeDrugs; len(alts) > 0 {
		fmt.Fprintf(&b, "Alternatives: %s\n", strings.Join(alts, ", "))
	}
	if mon := risk.ClinicalRecommendation.MonitoringParameters; len(mon) > 0 {
		fmt.Fprintf(&b, "Monitoring: %s\n", strings.Join(mon, ", "))
	}
	if ref := risk.ClinicalRecommendation.GuidelineReference; ref != "" {
		fmt.Fprintf(&b, "Guideline: %s\n", ref)
	}
	b.WriteString("\nStay within the guidance above and do not invent doses.")

	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Counseling for %s in a %s", drug, phenotype),
		Messages: []*mcp.PromptMessage{{
			Role:    "user",
			Content: &mcp.TextContent{Text: b.String()},
		}},
	}, nil
}

func (s *Server) handleVCFReviewPrompt(_ context.Context, req *mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	drugs := strings.TrimSpace(req.Params.Arguments["drugs"])
	if drugs == "" {
		return nil, fmt.Errorf("argument drugs is required")
	}

	text := fmt.Sprintf(`Review the attached VCF for these drugs: %s.

1. Call parse_vcf and report vcf_valid, warnings and the pharmacogenes found.
2. Call analyze_vcf with the same drug list.
3. For each drug summarize the gene, diplotype, phenotype, risk label and dosing recommendation.
4. Flag any result whose source is not static_knowledge_base and any Unknown phenotype.`, drugs)

	return &mcp.GetPromptResult{
		Description: "Pharmacogenomic VCF review",
		Messages: []*mcp.PromptMessage{{
			Role:    "user",
			Content: &mcp.TextContent{Text: text},
		}},
	}, nil
}
