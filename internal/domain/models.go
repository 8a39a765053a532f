package domain

import (
	"fmt"
	"time"
)

// ReferenceAllele is the wildtype star-allele designation assumed when no
// variant is observed on a haplotype.
const ReferenceAllele = "*1"

// Unknown is the placeholder used for profile fields that could not be resolved.
const Unknown = "Unknown"

// DefaultPatientID is assigned when the variant-call text carries no patient annotation.
const DefaultPatientID = "PATIENT_001"

// KnownVariant is a catalog entry describing a pharmacogenomically relevant variant.
type KnownVariant struct {
	RSID        string           `json:"rsid" yaml:"rsid"`
	Gene        string           `json:"gene" yaml:"gene"`
	Star        string           `json:"star" yaml:"star"`
	Effect      FunctionalEffect `json:"effect" yaml:"effect"`
	Description string           `json:"description" yaml:"description"`
}

// VariantRow is one physical call parsed from a variant-call data line.
type VariantRow struct {
	RSID        string           `json:"rsid"`
	Gene        string           `json:"gene"`
	Chromosome  string           `json:"chromosome"`
	Position    int64            `json:"position"`
	Ref         string           `json:"ref"`
	Alt         string           `json:"alt"`
	Star        string           `json:"star"`
	Genotype    string           `json:"genotype"`
	Effect      FunctionalEffect `json:"effect"`
	Quality     float64          `json:"quality"`
	Description string           `json:"description"`
}

// HasStar reports whether the row carries a usable star-allele label.
func (v VariantRow) HasStar() bool {
	return v.Star != "" && v.Star != "unknown"
}

// IsHomozygousAlt reports whether the genotype is a homozygous alternate call.
func (v VariantRow) IsHomozygousAlt() bool {
	return v.Genotype == "1/1" || v.Genotype == "1|1"
}

// IsHomozygousRef reports whether a GT value is a homozygous reference call.
func IsHomozygousRef(genotype string) bool {
	return genotype == "0/0" || genotype == "0|0"
}

// ParseResult aggregates everything extracted from one variant-call document.
type ParseResult struct {
	PatientID     string                  `json:"patient_id"`
	TotalVariants int                     `json:"total_variants"`
	PGxVariants   []VariantRow            `json:"pgx_variants"`
	GeneVariants  map[string][]VariantRow `json:"gene_variants"`
	GenesFound    []string                `json:"genes_found"`
	Warnings      []string                `json:"warnings"`
	VCFValid      bool                    `json:"vcf_valid"`
}

// Usable reports whether the result carries enough structure to analyze.
func (p ParseResult) Usable() bool {
	return p.VCFValid || len(p.PGxVariants) > 0
}

// Diplotype is the ordered pair of star alleles called for one gene.
type Diplotype struct {
	Allele1 string `json:"allele1"`
	Allele2 string `json:"allele2"`
}

// ReferenceDiplotype returns the homozygous wildtype pair.
func ReferenceDiplotype() Diplotype {
	return Diplotype{Allele1: ReferenceAllele, Allele2: ReferenceAllele}
}

// String renders the diplotype in "*1/*4" notation.
func (d Diplotype) String() string {
	return fmt.Sprintf("%s/%s", d.Allele1, d.Allele2)
}

// DetectedVariant is the report projection of a VariantRow.
type DetectedVariant struct {
	RSID             string           `json:"rsid"`
	Gene             string           `json:"gene"`
	Chromosome       string           `json:"chromosome"`
	Position         int64            `json:"position"`
	RefAllele        string           `json:"ref_allele"`
	AltAllele        string           `json:"alt_allele"`
	StarAllele       string           `json:"star_allele"`
	Genotype         string           `json:"genotype"`
	FunctionalEffect FunctionalEffect `json:"functional_effect"`
	Quality          float64          `json:"quality"`
}

// NewDetectedVariant projects a parsed row into its report form.
func NewDetectedVariant(v VariantRow) DetectedVariant {
	return DetectedVariant{
		RSID:             v.RSID,
		Gene:             v.Gene,
		Chromosome:       v.Chromosome,
		Position:         v.Position,
		RefAllele:        v.Ref,
		AltAllele:        v.Alt,
		StarAllele:       v.Star,
		Genotype:         v.Genotype,
		FunctionalEffect: v.Effect,
		Quality:          v.Quality,
	}
}

// Profile is the pharmacogenomic profile of one patient for one drug.
type Profile struct {
	PrimaryGene      string            `json:"primary_gene"`
	Diplotype        string            `json:"diplotype"`
	Phenotype        Phenotype         `json:"phenotype"`
	DetectedVariants []DetectedVariant `json:"detected_variants"`
}

// UnknownProfile is returned when no source maps the drug to a gene.
func UnknownProfile() Profile {
	return Profile{
		PrimaryGene:      Unknown,
		Diplotype:        Unknown,
		Phenotype:        UNKNOWN_PHENOTYPE,
		DetectedVariants: []DetectedVariant{},
	}
}

// DrugGeneInfo maps a canonical drug to the gene that governs its response.
type DrugGeneInfo struct {
	Drug      string `json:"drug,omitempty" yaml:"drug,omitempty"`
	Gene      string `json:"gene" yaml:"gene"`
	Pathway   string `json:"pathway" yaml:"pathway"`
	DrugClass string `json:"drug_class" yaml:"drug_class"`
}

// RiskAssessment is the headline risk prediction.
type RiskAssessment struct {
	RiskLabel       RiskLabel `json:"risk_label" yaml:"risk_label"`
	ConfidenceScore float64   `json:"confidence_score" yaml:"confidence"`
	Severity        Severity  `json:"severity" yaml:"severity"`
}

// Validate checks the assessment against the closed label and severity sets.
func (r RiskAssessment) Validate() error {
	if !r.RiskLabel.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidRiskLabel, r.RiskLabel)
	}
	if !r.Severity.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidSeverity, r.Severity)
	}
	if r.ConfidenceScore < 0 || r.ConfidenceScore > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidScore, r.ConfidenceScore)
	}
	return nil
}

// ClinicalRecommendation is the prescribing guidance attached to an assessment.
type ClinicalRecommendation struct {
	DosingRecommendation string   `json:"dosing_recommendation" yaml:"dosing"`
	AlternativeDrugs     []string `json:"alternative_drugs" yaml:"alternatives"`
	MonitoringParameters []string `json:"monitoring_parameters" yaml:"monitoring"`
	GuidelineReference   string   `json:"cpic_guideline_reference" yaml:"reference"`
	Urgency              Urgency  `json:"urgency" yaml:"urgency"`
}

// RiskQuery is the input to risk resolution. Gene and Diplotype are optional.
type RiskQuery struct {
	Drug      string    `json:"drug"`
	Phenotype Phenotype `json:"phenotype"`
	Gene      string    `json:"gene,omitempty"`
	Diplotype string    `json:"diplotype,omitempty"`
}

// HasGenotype reports whether both gene and diplotype are known.
func (q RiskQuery) HasGenotype() bool {
	return q.Gene != "" && q.Gene != Unknown && q.Diplotype != "" && q.Diplotype != Unknown
}

// RiskResult is the outcome of risk resolution, tagged with the tier that produced it.
type RiskResult struct {
	RiskAssessment         RiskAssessment         `json:"risk_assessment"`
	ClinicalRecommendation ClinicalRecommendation `json:"clinical_recommendation"`
	Source                 GuidelineSource        `json:"source"`
}

// Validate checks that a result coming from an external tier is well-formed.
func (r RiskResult) Validate() error {
	if err := r.RiskAssessment.Validate(); err != nil {
		return err
	}
	if !r.ClinicalRecommendation.Urgency.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidUrgency, r.ClinicalRecommendation.Urgency)
	}
	return nil
}

// GuidelineRecord is a persisted drug by phenotype guideline row.
type GuidelineRecord struct {
	Drug           string                 `json:"drug"`
	Phenotype      Phenotype              `json:"phenotype"`
	Assessment     RiskAssessment         `json:"risk_assessment"`
	Recommendation ClinicalRecommendation `json:"clinical_recommendation"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// Result converts the record into a store-tagged RiskResult.
func (g GuidelineRecord) Result() *RiskResult {
	return &RiskResult{
		RiskAssessment:         g.Assessment,
		ClinicalRecommendation: g.Recommendation,
		Source:                 SOURCE_STRUCTURED_STORE,
	}
}
