// Package tools exposes the pharmacogenomic pipeline as typed MCP tools.
package tools

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/pharmaguard-mcp-server/internal/domain"
	"github.com/pharmaguard-mcp-server/internal/service"
	"github.com/pharmaguard-mcp-server/pkg/external"
)

// PairLister lists CPIC gene-drug pairs.
type PairLister interface {
	ListPairs(ctx context.Context, level string) ([]external.GenePair, error)
}

// ToolRegistry manages registration of all MCP tools
type ToolRegistry struct {
	logger    *logrus.Logger
	analyzer  *service.Analyzer
	store     domain.GuidelineStore
	pairs     PairLister
	exportDir string
	names     []string
}

// RegistryOption configures a ToolRegistry.
type RegistryOption func(*ToolRegistry)

// WithGuidelineStore enables the guideline import and export tools.
// Exports are written below exportDir.
func WithGuidelineStore(store domain.GuidelineStore, exportDir string) RegistryOption {
	return func(tr *ToolRegistry) {
		tr.store = store
		tr.exportDir = exportDir
	}
}

// WithPairLister enables the CPIC gene-drug pair tool.
func WithPairLister(pairs PairLister) RegistryOption {
	return func(tr *ToolRegistry) { tr.pairs = pairs }
}

// NewToolRegistry creates a new tool registry
func NewToolRegistry(logger *logrus.Logger, analyzer *service.Analyzer, opts ...RegistryOption) *ToolRegistry {
	tr := &ToolRegistry{
		logger:   logger,
		analyzer: analyzer,
	}
	for _, opt := range opts {
		opt(tr)
	}
	return tr
}

// RegisterAllTools registers every available tool on server.
func (tr *ToolRegistry) RegisterAllTools(server *mcp.Server) {
	tr.names = tr.names[:0]

	addTool(tr, server, &mcp.Tool{
		Name:        "parse_vcf",
		Description: "Parse VCF text and report pharmacogenomic variants, genes found and parse warnings",
	}, tr.handleParseVCF)
	addTool(tr, server, &mcp.Tool{
		Name:        "build_profile",
		Description: "Build the pharmacogenomic profile (gene, diplotype, phenotype) of a VCF for one drug",
	}, tr.handleBuildProfile)
	addTool(tr, server, &mcp.Tool{
		Name:        "assess_risk",
		Description: "Assess drug risk for a metabolizer phenotype (PM, IM, NM, RM, URM or Unknown)",
	}, tr.handleAssessRisk)
	addTool(tr, server, &mcp.Tool{
		Name:        "analyze_vcf",
		Description: "Run the full analysis of a VCF against one or more comma-separated drugs",
	}, tr.handleAnalyzeVCF)
	addTool(tr, server, &mcp.Tool{
		Name:        "list_supported_drugs",
		Description: "List the drugs covered by the built-in knowledge base with their genes and aliases",
	}, tr.handleListSupportedDrugs)

	if tr.store != nil {
		addTool(tr, server, &mcp.Tool{
			Name:        "import_guidelines",
			Description: "Import guideline rows from a JSON export document. Existing rows are kept",
		}, tr.handleImportGuidelines)
		addTool(tr, server, &mcp.Tool{
			Name:        "export_guidelines",
			Description: "Export all guideline rows as a JSON document, optionally writing it to the export directory",
		}, tr.handleExportGuidelines)
	}

	if tr.pairs != nil {
		addTool(tr, server, &mcp.Tool{
			Name:        "list_cpic_pairs",
			Description: "List CPIC gene-drug pairs, optionally filtered by CPIC level (A, B, C, D)",
		}, tr.handleListCPICPairs)
	}

	tr.logger.WithField("tool_count", len(tr.names)).Info("Successfully registered all tools")
}

// ToolNames returns the names registered by the last RegisterAllTools call.
func (tr *ToolRegistry) ToolNames() []string {
	return append([]string(nil), tr.names...)
}

func addTool[In, Out any](tr *ToolRegistry, server *mcp.Server, tool *mcp.Tool, handler mcp.ToolHandlerFor[In, Out]) {
	mcp.AddTool(server, tool, handler)
	tr.names = append(tr.names, tool.Name)
	tr.logger.WithField("tool_name", tool.Name).Debug("Registered MCP tool")
}
