package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/pharmaguard-mcp-server/internal/domain"
)

const uriScheme = "pharmaguard://"

var matrixPhenotypes = []domain.Phenotype{domain.PM, domain.IM, domain.NM, domain.RM, domain.URM}

// DrugGuidance is the static guidance for one drug across phenotypes.
type DrugGuidance struct {
	Drug     string                                 `json:"drug"`
	Gene     domain.DrugGeneInfo                    `json:"gene"`
	Guidance map[domain.Phenotype]PhenotypeGuidance `json:"guidance"`
}

// PhenotypeGuidance pairs a risk entry with its recommendation.
type PhenotypeGuidance struct {
	RiskAssessment         domain.RiskAssessment         `json:"risk_assessment"`
	ClinicalRecommendation domain.ClinicalRecommendation `json:"clinical_recommendation"`
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         uriScheme + "supported-drugs",
		Name:        "supported-drugs",
		Description: "Drugs covered by the built-in knowledge base with aliases and genes",
		MIMEType:    "application/json",
	}, s.handleSupportedDrugsResource)

	s.mcpServer.AddResource(&mcp.Resource{
		URI:         uriScheme + "genes",
		Name:        "target-genes",
		Description: "Pharmacogenes tracked by the variant parser",
		MIMEType:    "application/json",
	}, s.handleGenesResource)

	s.mcpServer.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "drugs/{drug}",
		Name:        "drug-guidance",
		Description: "Built-in risk and dosing guidance for one drug across metabolizer phenotypes",
		MIMEType:    "application/json",
	}, s.handleDrugResource)
}

func (s *Server) handleSupportedDrugsResource(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	return jsonResource(req.Params.URI, s.analyzer.Knowledge().Supported())
}

func (s *Server) handleGenesResource(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	kb := s.analyzer.Knowledge()
	return jsonResource(req.Params.URI, map[string]any{
		"knowledge_version": kb.Version(),
		"genes":             kb.TargetGenes(),
	})
}

func (s *Server) handleDrugResource(_ context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	name := extractDrug(req.Params.URI)
	if name == "" {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	kb := s.analyzer.Knowledge()
	drug := kb.ResolveDrug(name)
	info, ok := kb.DrugGene(drug)
	if !ok || !kb.HasRiskData(drug) {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	guidance := DrugGuidance{
		Drug:     drug,
		Gene:     info,
		Guidance: make(map[domain.Phenotype]PhenotypeGuidance, len(matrixPhenotypes)),
	}
	for _, p := range matrixPhenotypes {
		risk, ok := kb.RiskEntry(drug, p)
		if !ok {
			continue
		}
		rec, _ := kb.Recommendation(drug, p)
		guidance.Guidance[p] = PhenotypeGuidance{RiskAssessment: risk, ClinicalRecommendation: rec}
	}
	return jsonResource(req.Params.URI, guidance)
}

// extractDrug returns the drug segment of a pharmaguard://drugs/{drug} URI.
func extractDrug(uri string) string {
	rest, ok := strings.CutPrefix(uri, uriScheme+"drugs/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return ""
	}
	return rest
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding resource: %w", err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}
