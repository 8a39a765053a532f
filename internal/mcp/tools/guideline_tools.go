package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/pharmaguard-mcp-server/internal/domain"
)

// ImportGuidelinesInput is the input schema for import_guidelines.
type ImportGuidelinesInput struct {
	JSONData string `json:"json_data" jsonschema:"guideline export document as JSON"`
}

// ImportGuidelinesOutput is the output schema for import_guidelines.
type ImportGuidelinesOutput struct {
	Imported   int    `json:"imported"`
	Guidelines int    `json:"total_guidelines"`
	DrugGenes  int    `json:"total_drug_genes"`
	Message    string `json:"message"`
}

// ExportGuidelinesInput is the input schema for export_guidelines.
type ExportGuidelinesInput struct {
	WriteFile bool `json:"write_file,omitempty" jsonschema:"also write the document to the export directory"`
}

// ExportGuidelinesOutput is the output schema for export_guidelines.
type ExportGuidelinesOutput struct {
	Guidelines int    `json:"guidelines"`
	DrugGenes  int    `json:"drug_genes"`
	JSONData   string `json:"json_data"`
	FilePath   string `json:"file_path,omitempty"`
}

// ListCPICPairsInput is the input schema for list_cpic_pairs.
type ListCPICPairsInput struct {
	Level string `json:"level,omitempty" jsonschema:"CPIC level filter: A, B, C or D"`
}

// CPICPairOutput is one gene-drug pair.
type CPICPairOutput struct {
	Gene      string `json:"gene"`
	Drug      string `json:"drug"`
	CPICLevel string `json:"cpic_level"`
	Status    string `json:"status"`
}

// ListCPICPairsOutput is the output schema for list_cpic_pairs.
type ListCPICPairsOutput struct {
	Pairs []CPICPairOutput `json:"pairs"`
	Count int              `json:"count"`
}

func (tr *ToolRegistry) handleImportGuidelines(ctx context.Context, _ *mcp.CallToolRequest, input ImportGuidelinesInput) (*mcp.CallToolResult, ImportGuidelinesOutput, error) {
	if strings.TrimSpace(input.JSONData) == "" {
		return nil, ImportGuidelinesOutput{}, domain.NewValidationError("json_data", "json_data is required", nil)
	}

	imported, err := tr.store.ImportJSON(ctx, []byte(input.JSONData))
	if err != nil {
		return nil, ImportGuidelinesOutput{}, fmt.Errorf("failed to import guidelines: %w", err)
	}
	guidelines, drugGenes, err := tr.store.Count(ctx)
	if err != nil {
		return nil, ImportGuidelinesOutput{}, fmt.Errorf("failed to count guidelines: %w", err)
	}

	tr.logger.WithFields(logrus.Fields{
		"tool":     "import_guidelines",
		"imported": imported,
	}).Info("Imported guidelines")

	return nil, ImportGuidelinesOutput{
		Imported:   imported,
		Guidelines: guidelines,
		DrugGenes:  drugGenes,
		Message:    fmt.Sprintf("Imported %d new rows; existing rows were kept", imported),
	}, nil
}

func (tr *ToolRegistry) handleExportGuidelines(ctx context.Context, _ *mcp.CallToolRequest, input ExportGuidelinesInput) (*mcp.CallToolResult, ExportGuidelinesOutput, error) {
	data, err := tr.store.ExportJSON(ctx)
	if err != nil {
		return nil, ExportGuidelinesOutput{}, fmt.Errorf("failed to export guidelines: %w", err)
	}
	guidelines, drugGenes, err := tr.store.Count(ctx)
	if err != nil {
		return nil, ExportGuidelinesOutput{}, fmt.Errorf("failed to count guidelines: %w", err)
	}

	out := ExportGuidelinesOutput{
		Guidelines: guidelines,
		DrugGenes:  drugGenes,
		JSONData:   string(data),
	}

	if input.WriteFile {
		if tr.exportDir == "" {
			return nil, ExportGuidelinesOutput{}, domain.NewValidationError("write_file", "no export directory configured", nil)
		}
		if err := os.MkdirAll(tr.exportDir, 0755); err != nil {
			return nil, ExportGuidelinesOutput{}, fmt.Errorf("failed to create export directory: %w", err)
		}
		name := fmt.Sprintf("guidelines_%s.json", time.Now().UTC().Format("20060102_150405"))
		out.FilePath = filepath.Join(tr.exportDir, name)
		if err := os.WriteFile(out.FilePath, data, 0644); err != nil {
			return nil, ExportGuidelinesOutput{}, fmt.Errorf("failed to write export file: %w", err)
		}
		tr.logger.WithField("file_path", out.FilePath).Info("Wrote guideline export")
	}

	return nil, out, nil
}

func (tr *ToolRegistry) handleListCPICPairs(ctx context.Context, _ *mcp.CallToolRequest, input ListCPICPairsInput) (*mcp.CallToolResult, ListCPICPairsOutput, error) {
	level := strings.ToUpper(strings.TrimSpace(input.Level))
	pairs, err := tr.pairs.ListPairs(ctx, level)
	if err != nil {
		return nil, ListCPICPairsOutput{}, fmt.Errorf("failed to list CPIC pairs: %w", err)
	}

	out := ListCPICPairsOutput{Pairs: make([]CPICPairOutput, 0, len(pairs)), Count: len(pairs)}
	for _, p := range pairs {
		out.Pairs = append(out.Pairs, CPICPairOutput{
			Gene:      p.Gene,
			Drug:      p.Drug,
			CPICLevel: p.CPICLevel,
			Status:    p.Status,
		})
	}
	return nil, out, nil
}
