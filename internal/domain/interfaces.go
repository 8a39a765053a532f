package domain

import (
	"context"
	"time"
)

// GuidelineLookup is an external guideline service keyed by genotype.
// Implementations return (nil, nil) when the service has no data.
type GuidelineLookup interface {
	LookupFull(ctx context.Context, drug, gene, diplotype string) (*RiskResult, error)
	GeneForDrug(ctx context.Context, drug string) (*DrugGeneInfo, error)
}

// StructuredGuidelineStore is an exact-match guideline table keyed by drug and phenotype.
// Implementations return (nil, nil) for missing rows.
type StructuredGuidelineStore interface {
	GetGuideline(ctx context.Context, drug string, phenotype Phenotype) (*RiskResult, error)
	GetDrugGene(ctx context.Context, drug string) (*DrugGeneInfo, error)
}

// GuidelineStore adds management operations to a structured store.
type GuidelineStore interface {
	StructuredGuidelineStore
	UpsertGuideline(ctx context.Context, record *GuidelineRecord) error
	UpsertDrugGene(ctx context.Context, info *DrugGeneInfo) error
	ListGuidelines(ctx context.Context, drug string) ([]*GuidelineRecord, error)
	ListDrugGenes(ctx context.Context) ([]*DrugGeneInfo, error)
	Count(ctx context.Context) (guidelines int, drugGenes int, err error)
	ExportJSON(ctx context.Context) ([]byte, error)
	ImportJSON(ctx context.Context, data []byte) (imported int, err error)
	Close() error
}

// AnalysisRecorder persists analysis outcomes for later audit.
type AnalysisRecorder interface {
	RecordAnalysis(ctx context.Context, report *AnalysisReport) error
}

// Explainer produces the narrative explanation for a drug analysis.
type Explainer interface {
	Explain(ctx context.Context, input ExplanationInput) (Explanation, error)
	Provider() string
}

// GuidelineExport is the JSON document exchanged by store import and export.
type GuidelineExport struct {
	Version    string             `json:"version"`
	ExportedAt time.Time          `json:"exported_at"`
	Count      int                `json:"count"`
	Guidelines []*GuidelineRecord `json:"guidelines"`
	DrugGenes  []*DrugGeneInfo    `json:"drug_genes"`
}

// GuidelineExportVersion is the current export document version.
const GuidelineExportVersion = "1.0"

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetCPICConfig() *CPICConfig
	GetServerConfig() *ServerConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	GetRedisConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
