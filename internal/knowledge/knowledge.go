// Package knowledge holds the built-in pharmacogenomic reference tables: the
// known-variant catalog, per-gene allele activity values, the drug to gene map,
// drug aliases, the risk matrix and the clinical recommendation table.
//
// The tables ship embedded in the binary and are decoded once. A Base is
// never mutated after Load returns, so it is safe for concurrent readers.
package knowledge

import (
	"context"
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/pharmaguard-mcp-server/internal/domain"
)

//go:embed data/knowledge_base.yaml
var embeddedKnowledgeBase []byte

// document mirrors the YAML layout of the embedded tables.
type document struct {
	Version         string                                                        `yaml:"version"`
	TargetGenes     []string                                                      `yaml:"target_genes"`
	GainOfFunction  []string                                                      `yaml:"gain_of_function"`
	KnownVariants   []domain.KnownVariant                                         `yaml:"known_variants"`
	ActivityScores  map[string]map[string]string                                  `yaml:"activity_scores"`
	Drugs           []domain.DrugGeneInfo                                         `yaml:"drugs"`
	Aliases         map[string]string                                             `yaml:"aliases"`
	RiskMatrix      map[string]map[domain.Phenotype]domain.RiskAssessment         `yaml:"risk_matrix"`
	Recommendations map[string]map[domain.Phenotype]domain.ClinicalRecommendation `yaml:"recommendations"`
}

// Base is an immutable, indexed view over the reference tables.
type Base struct {
	version         string
	targetGenes     map[string]bool
	gainOfFunction  map[string]bool
	variants        []domain.KnownVariant
	byRSID          map[string]domain.KnownVariant
	byGeneStar      map[string]domain.KnownVariant
	activity        map[string]map[string]decimal.Decimal
	drugOrder       []string
	drugs           map[string]domain.DrugGeneInfo
	aliases         map[string]string
	riskMatrix      map[string]map[domain.Phenotype]domain.RiskAssessment
	recommendations map[string]map[domain.Phenotype]domain.ClinicalRecommendation
}

var (
	defaultOnce sync.Once
	defaultBase *Base
)

// Default returns the process-wide Base built from the embedded tables.
// It panics if the embedded document is invalid, which only a broken build can cause.
func Default() *Base {
	defaultOnce.Do(func() {
		b, err := Load(embeddedKnowledgeBase)
		if err != nil {
			panic(fmt.Sprintf("knowledge: embedded knowledge base is invalid: %v", err))
		}
		defaultBase = b
	})
	return defaultBase
}

// Load decodes and indexes a knowledge base document.
func Load(data []byte) (*Base, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode knowledge base: %w", err)
	}

	b := &Base{
		version:         doc.Version,
		targetGenes:     make(map[string]bool, len(doc.TargetGenes)),
		gainOfFunction:  make(map[string]bool, len(doc.GainOfFunction)),
		variants:        doc.KnownVariants,
		byRSID:          make(map[string]domain.KnownVariant, len(doc.KnownVariants)),
		byGeneStar:      make(map[string]domain.KnownVariant, len(doc.KnownVariants)),
		activity:        make(map[string]map[string]decimal.Decimal, len(doc.ActivityScores)),
		drugs:           make(map[string]domain.DrugGeneInfo, len(doc.Drugs)),
		aliases:         make(map[string]string, len(doc.Aliases)),
		riskMatrix:      doc.RiskMatrix,
		recommendations: doc.Recommendations,
	}

	for _, g := range doc.TargetGenes {
		b.targetGenes[g] = true
	}
	for _, s := range doc.GainOfFunction {
		b.gainOfFunction[s] = true
	}

	for _, v := range doc.KnownVariants {
		if v.RSID == "" || v.Gene == "" {
			return nil, fmt.Errorf("known variant is missing rsid or gene: %+v", v)
		}
		if !v.Effect.IsValid() {
			return nil, fmt.Errorf("known variant %s has invalid effect %q", v.RSID, v.Effect)
		}
		b.byRSID[v.RSID] = v
		// first entry in catalog order wins for a repeated gene and star
		key := geneStarKey(v.Gene, v.Star)
		if _, exists := b.byGeneStar[key]; !exists {
			b.byGeneStar[key] = v
		}
	}

	for gene, table := range doc.ActivityScores {
		scores := make(map[string]decimal.Decimal, len(table))
		for star, raw := range table {
			d, err := decimal.NewFromString(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid activity value %q for %s %s: %w", raw, gene, star, err)
			}
			if d.IsNegative() {
				return nil, fmt.Errorf("negative activity value for %s %s", gene, star)
			}
			scores[star] = d
		}
		b.activity[gene] = scores
	}

	for _, d := range doc.Drugs {
		name := strings.ToUpper(d.Drug)
		d.Drug = name
		b.drugOrder = append(b.drugOrder, name)
		b.drugs[name] = d
	}
	for alias, canonical := range doc.Aliases {
		b.aliases[strings.ToUpper(alias)] = strings.ToUpper(canonical)
	}

	if err := b.validateTables(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Base) validateTables() error {
	for drug, entries := range b.riskMatrix {
		for pheno, entry := range entries {
			if !pheno.IsValid() {
				return fmt.Errorf("risk matrix for %s has invalid phenotype key %q", drug, pheno)
			}
			if err := entry.Validate(); err != nil {
				return fmt.Errorf("risk matrix entry %s/%s: %w", drug, pheno, err)
			}
		}
	}
	for drug, entries := range b.recommendations {
		for pheno, rec := range entries {
			if !rec.Urgency.IsValid() {
				return fmt.Errorf("recommendation %s/%s: %w", drug, pheno, domain.ErrInvalidUrgency)
			}
		}
	}
	return nil
}

func geneStarKey(gene, star string) string {
	return gene + "|" + star
}

// Version returns the knowledge base document version.
func (b *Base) Version() string {
	return b.version
}

// IsTargetGene reports whether gene is in the tracked gene set.
func (b *Base) IsTargetGene(gene string) bool {
	return b.targetGenes[gene]
}

// TargetGenes returns the tracked gene set in sorted order.
func (b *Base) TargetGenes() []string {
	genes := make([]string, 0, len(b.targetGenes))
	for g := range b.targetGenes {
		genes = append(genes, g)
	}
	sort.Strings(genes)
	return genes
}

// KnownVariants returns a copy of the catalog in declaration order.
func (b *Base) KnownVariants() []domain.KnownVariant {
	out := make([]domain.KnownVariant, len(b.variants))
	copy(out, b.variants)
	return out
}

// LookupByIdentifier finds a catalog entry by variant identifier (rsID).
func (b *Base) LookupByIdentifier(id string) (domain.KnownVariant, bool) {
	v, ok := b.byRSID[id]
	return v, ok
}

// LookupByGeneAndStar finds the first catalog entry for a gene and star allele.
func (b *Base) LookupByGeneAndStar(gene, star string) (domain.KnownVariant, bool) {
	v, ok := b.byGeneStar[geneStarKey(gene, star)]
	return v, ok
}

// ActivityScore returns the gene-specific activity value for a star allele.
// Labels absent from the gene's table, and genes without a table, score 1.0.
func (b *Base) ActivityScore(gene, star string) decimal.Decimal {
	if table, ok := b.activity[gene]; ok {
		if score, ok := table[star]; ok {
			return score
		}
	}
	return decimal.NewFromInt(1)
}

// IsGainOfFunction reports whether a star label is a designated gain-of-function allele.
func (b *Base) IsGainOfFunction(star string) bool {
	return b.gainOfFunction[star]
}

// ResolveDrug upper-cases and trims a drug name and maps known aliases to
// their canonical drug.
func (b *Base) ResolveDrug(name string) string {
	d := strings.ToUpper(strings.TrimSpace(name))
	if canonical, ok := b.aliases[d]; ok {
		return canonical
	}
	return d
}

// DrugGene returns the built-in drug to gene mapping for a drug name or alias.
func (b *Base) DrugGene(drug string) (domain.DrugGeneInfo, bool) {
	info, ok := b.drugs[b.ResolveDrug(drug)]
	return info, ok
}

// LookupDrugGene adapts DrugGene to the drug-gene source shape used by the
// profile builder. A miss returns (nil, nil).
func (b *Base) LookupDrugGene(_ context.Context, drug string) (*domain.DrugGeneInfo, error) {
	info, ok := b.DrugGene(drug)
	if !ok {
		return nil, nil
	}
	return &info, nil
}

// SupportedDrugs lists the canonical drugs in declaration order.
func (b *Base) SupportedDrugs() []string {
	out := make([]string, len(b.drugOrder))
	copy(out, b.drugOrder)
	return out
}

// Aliases returns a copy of the alias table.
func (b *Base) Aliases() map[string]string {
	out := make(map[string]string, len(b.aliases))
	for k, v := range b.aliases {
		out[k] = v
	}
	return out
}

// Supported describes the supported drugs, aliases and per-drug details.
func (b *Base) Supported() domain.SupportedDrugs {
	details := make(map[string]domain.DrugGeneInfo, len(b.drugs))
	for name, info := range b.drugs {
		details[name] = domain.DrugGeneInfo{Gene: info.Gene, Pathway: info.Pathway, DrugClass: info.DrugClass}
	}
	return domain.SupportedDrugs{
		Drugs:       b.SupportedDrugs(),
		Aliases:     b.Aliases(),
		DrugDetails: details,
	}
}

// HasRiskData reports whether the canonical drug appears in the risk matrix.
func (b *Base) HasRiskData(drug string) bool {
	_, ok := b.riskMatrix[drug]
	return ok
}

// RiskEntry returns the risk matrix entry for a canonical drug and phenotype.
func (b *Base) RiskEntry(drug string, phenotype domain.Phenotype) (domain.RiskAssessment, bool) {
	entries, ok := b.riskMatrix[drug]
	if !ok {
		return domain.RiskAssessment{}, false
	}
	entry, ok := entries[phenotype]
	return entry, ok
}

// Recommendation returns the clinical recommendation for a canonical drug and
// phenotype. The returned slices are copies.
func (b *Base) Recommendation(drug string, phenotype domain.Phenotype) (domain.ClinicalRecommendation, bool) {
	entries, ok := b.recommendations[drug]
	if !ok {
		return domain.ClinicalRecommendation{}, false
	}
	rec, ok := entries[phenotype]
	if !ok {
		return domain.ClinicalRecommendation{}, false
	}
	rec.AlternativeDrugs = cloneStrings(rec.AlternativeDrugs)
	rec.MonitoringParameters = cloneStrings(rec.MonitoringParameters)
	return rec, true
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
