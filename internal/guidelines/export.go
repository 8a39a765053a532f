// Package guidelines provides structured guideline storage keyed by drug and
// metabolizer phenotype. Rows are seeded from JSON exports and consulted as the
// middle resolution tier.
package guidelines

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pharmaguard-mcp-server/internal/domain"
)

// NormalizeDrug returns the stored form of a drug name.
func NormalizeDrug(drug string) string {
	return strings.ToUpper(strings.TrimSpace(drug))
}

// EncodeExport renders records and drug-gene rows as an indented export document.
func EncodeExport(records []*domain.GuidelineRecord, genes []*domain.DrugGeneInfo, now time.Time) ([]byte, error) {
	if records == nil {
		records = []*domain.GuidelineRecord{}
	}
	if genes == nil {
		genes = []*domain.DrugGeneInfo{}
	}
	export := &domain.GuidelineExport{
		Version:    domain.GuidelineExportVersion,
		ExportedAt: now.UTC(),
		Count:      len(records),
		Guidelines: records,
		DrugGenes:  genes,
	}
	data, err := json.MarshalIndent(export, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode export: %w", err)
	}
	return data, nil
}

// DecodeExport parses an export document and normalizes every row. Rows with
// an unknown phenotype or an invalid assessment are rejected.
func DecodeExport(data []byte) (*domain.GuidelineExport, error) {
	var export domain.GuidelineExport
	if err := json.Unmarshal(data, &export); err != nil {
		return nil, domain.NewValidationError("guidelines", "failed to decode JSON: "+err.Error(), nil)
	}

	for i, rec := range export.Guidelines {
		if rec == nil {
			return nil, domain.NewValidationError("guidelines", fmt.Sprintf("guideline %d is null", i), nil)
		}
		rec.Drug = NormalizeDrug(rec.Drug)
		if rec.Drug == "" {
			return nil, domain.NewValidationError("guidelines", fmt.Sprintf("guideline %d has no drug", i), nil)
		}
		phenotype, err := domain.ParsePhenotype(string(rec.Phenotype))
		if err != nil {
			return nil, domain.NewValidationError("guidelines", fmt.Sprintf("guideline %d has invalid phenotype", i), rec.Phenotype)
		}
		rec.Phenotype = phenotype
		if err := rec.Result().Validate(); err != nil {
			return nil, domain.NewValidationError("guidelines", fmt.Sprintf("guideline %d (%s/%s): %v", i, rec.Drug, rec.Phenotype, err), nil)
		}
	}

	for i, info := range export.DrugGenes {
		if info == nil || NormalizeDrug(info.Drug) == "" || strings.TrimSpace(info.Gene) == "" {
			return nil, domain.NewValidationError("drug_genes", fmt.Sprintf("drug gene row %d needs drug and gene", i), nil)
		}
		info.Drug = NormalizeDrug(info.Drug)
		info.Gene = strings.ToUpper(strings.TrimSpace(info.Gene))
	}
	return &export, nil
}
