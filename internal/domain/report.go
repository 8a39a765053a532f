package domain

import "time"

// Explanation is the narrative attached to each drug analysis.
type Explanation struct {
	Summary                string   `json:"summary"`
	Mechanism              string   `json:"mechanism"`
	VariantSpecificEffects []string `json:"variant_specific_effects"`
	PatientFriendlySummary string   `json:"patient_friendly_summary"`
	Citations              []string `json:"citations"`
	ModelUsed              string   `json:"model_used"`
}

// ExplanationInput carries everything an explainer may reference.
type ExplanationInput struct {
	Drug                 string            `json:"drug"`
	Gene                 string            `json:"gene"`
	Diplotype            string            `json:"diplotype"`
	Phenotype            Phenotype         `json:"phenotype"`
	RiskLabel            RiskLabel         `json:"risk_label"`
	Severity             Severity          `json:"severity"`
	Variants             []DetectedVariant `json:"variants"`
	DosingRecommendation string            `json:"dosing_recommendation"`
	Pathway              string            `json:"pathway"`
	DrugClass            string            `json:"drug_class"`
}

// QualityMetrics summarizes parse and explanation quality for one drug analysis.
type QualityMetrics struct {
	VCFParsingSuccess            bool     `json:"vcf_parsing_success"`
	TotalVariantsParsed          int      `json:"total_variants_parsed"`
	PharmacogenomicVariantsFound int      `json:"pharmacogenomic_variants_found"`
	GeneCoverage                 []string `json:"gene_coverage"`
	AnalysisTimestamp            string   `json:"analysis_timestamp"`
	ExplanationGenerated         bool     `json:"explanation_generated"`
}

// DrugAnalysis is the complete result for one drug.
type DrugAnalysis struct {
	PatientID              string                 `json:"patient_id"`
	Drug                   string                 `json:"drug"`
	Timestamp              string                 `json:"timestamp"`
	RiskAssessment         RiskAssessment         `json:"risk_assessment"`
	PharmacogenomicProfile Profile                `json:"pharmacogenomic_profile"`
	ClinicalRecommendation ClinicalRecommendation `json:"clinical_recommendation"`
	Explanation            Explanation            `json:"explanation"`
	QualityMetrics         QualityMetrics         `json:"quality_metrics"`
	Source                 GuidelineSource        `json:"source"`
}

// AnalysisReport is the multi-drug envelope.
type AnalysisReport struct {
	Results            []DrugAnalysis `json:"results"`
	TotalDrugsAnalyzed int            `json:"total_drugs_analyzed"`
	AnalysisID         string         `json:"analysis_id"`
}

// SupportedDrugs describes the drugs covered by the built-in knowledge base.
type SupportedDrugs struct {
	Drugs       []string                `json:"drugs"`
	Aliases     map[string]string       `json:"aliases"`
	DrugDetails map[string]DrugGeneInfo `json:"drug_details"`
}

// AnalysisAuditRecord is one persisted drug outcome of an analysis.
type AnalysisAuditRecord struct {
	ID         string          `json:"id"`
	AnalysisID string          `json:"analysis_id"`
	PatientID  string          `json:"patient_id"`
	Drug       string          `json:"drug"`
	RiskLabel  RiskLabel       `json:"risk_label"`
	Source     GuidelineSource `json:"source"`
	CreatedAt  time.Time       `json:"created_at"`
}
