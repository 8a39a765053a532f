package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/pharmaguard-mcp-server/internal/domain"
	"github.com/pharmaguard-mcp-server/internal/explain"
	"github.com/pharmaguard-mcp-server/internal/knowledge"
)

// DefaultMaxConcurrency bounds the per-drug fan-out of Analyze.
const DefaultMaxConcurrency = 4

// Analyzer is the entry point to the classification pipeline.
type Analyzer struct {
	kb             *knowledge.Base
	parser         *VariantParser
	classifier     *PhenotypeClassifier
	profiles       *ProfileBuilder
	risk           *RiskResolver
	explainer      domain.Explainer
	lookup         domain.GuidelineLookup
	store          domain.StructuredGuidelineStore
	lookupTimeout  time.Duration
	maxConcurrency int
	logger         *logrus.Logger
	now            func() time.Time
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithGuidelineLookup enables the external guideline tier.
func WithGuidelineLookup(lookup domain.GuidelineLookup) AnalyzerOption {
	return func(a *Analyzer) { a.lookup = lookup }
}

// WithGuidelineStore enables the structured store tier.
func WithGuidelineStore(store domain.StructuredGuidelineStore) AnalyzerOption {
	return func(a *Analyzer) { a.store = store }
}

// WithExplainer sets the explanation provider.
func WithExplainer(e domain.Explainer) AnalyzerOption {
	return func(a *Analyzer) {
		if e != nil {
			a.explainer = e
		}
	}
}

// WithAnalysisConfig applies lookup timeout and concurrency limits.
func WithAnalysisConfig(cfg domain.AnalysisConfig) AnalyzerOption {
	return func(a *Analyzer) {
		if cfg.LookupTimeout > 0 {
			a.lookupTimeout = cfg.LookupTimeout
		}
		if cfg.MaxConcurrency > 0 {
			a.maxConcurrency = cfg.MaxConcurrency
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) AnalyzerOption {
	return func(a *Analyzer) { a.now = now }
}

// NewAnalyzer wires the pipeline. Without options only the built-in knowledge
// base is consulted and explanations are rule-based.
func NewAnalyzer(kb *knowledge.Base, logger *logrus.Logger, opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		kb:             kb,
		explainer:      explain.NewRuleBased(),
		lookupTimeout:  DefaultLookupTimeout,
		maxConcurrency: DefaultMaxConcurrency,
		logger:         logger,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}

	geneSources := []DrugGeneSource{NewBuiltinGeneSource(kb)}
	riskOpts := []RiskResolverOption{WithLookupTimeout(a.lookupTimeout)}
	if a.lookup != nil {
		riskOpts = append(riskOpts, WithTier(NewExternalGuidelineTier(a.lookup)))
	}
	if a.store != nil {
		geneSources = append(geneSources, NewStoreGeneSource(a.store))
		riskOpts = append(riskOpts, WithTier(NewStructuredStoreTier(a.store)))
	}
	if a.lookup != nil {
		geneSources = append(geneSources, NewExternalGeneSource(a.lookup))
	}

	a.parser = NewVariantParser(kb, logger)
	a.classifier = NewPhenotypeClassifier(kb)
	a.profiles = NewProfileBuilder(kb, NewDrugGeneResolver(logger, a.lookupTimeout, geneSources...), a.classifier, logger)
	a.risk = NewRiskResolver(kb, kb, logger, riskOpts...)
	return a
}

// Knowledge returns the knowledge base backing the analyzer.
func (a *Analyzer) Knowledge() *knowledge.Base {
	return a.kb
}

// ExplanationProvider names the configured explainer.
func (a *Analyzer) ExplanationProvider() string {
	return a.explainer.Provider()
}

// RiskTiers lists the risk resolution tiers in order.
func (a *Analyzer) RiskTiers() []string {
	return a.risk.Tiers()
}

// ParseVariants parses variant-call text. It never fails.
func (a *Analyzer) ParseVariants(raw string) domain.ParseResult {
	return a.parser.Parse(raw)
}

// Classify exposes the phenotype classifier.
func (a *Analyzer) Classify(allele1, allele2, gene string) domain.Phenotype {
	return a.classifier.Classify(allele1, allele2, gene)
}

// BuildProfile derives the profile for one drug from a parse result.
func (a *Analyzer) BuildProfile(ctx context.Context, parsed domain.ParseResult, drug string) domain.Profile {
	profile, _ := a.profiles.BuildProfile(ctx, parsed, drug)
	return profile
}

// AssessRisk resolves risk for a drug and phenotype. Gene and diplotype in
// the query are optional.
func (a *Analyzer) AssessRisk(ctx context.Context, q domain.RiskQuery) domain.RiskResult {
	return a.risk.Resolve(ctx, q)
}

// ParseDrugList splits comma-separated drug names, trimming and upper-casing
// each and dropping empties.
func ParseDrugList(drugs ...string) []string {
	var out []string
	for _, entry := range drugs {
		for _, d := range strings.Split(entry, ",") {
			d = strings.ToUpper(strings.TrimSpace(d))
			if d != "" {
				out = append(out, d)
			}
		}
	}
	return out
}

// Analyze parses the input once and assesses every requested drug. Results
// keep the order of the requested drugs.
func (a *Analyzer) Analyze(ctx context.Context, vcfText string, drugs []string) (*domain.AnalysisReport, error) {
	if strings.TrimSpace(vcfText) == "" {
		return nil, domain.NewValidationError("vcf", "VCF file is empty.", nil)
	}

	parsed := a.parser.Parse(vcfText)
	if !parsed.Usable() {
		reason := "Could not parse variant data."
		if len(parsed.Warnings) > 0 {
			reason = strings.Join(parsed.Warnings, "; ")
		}
		return nil, domain.NewMCPError(domain.ErrVCFParsing, fmt.Sprintf("Invalid VCF file. Errors: %s", reason), "", "")
	}

	drugList := ParseDrugList(drugs...)
	if len(drugList) == 0 {
		return nil, domain.NewValidationError("drugs", "No drugs specified. Provide at least one drug name.", drugs)
	}

	analysisID := uuid.NewString()[:8]
	results := make([]domain.DrugAnalysis, len(drugList))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.maxConcurrency)
	for i, raw := range drugList {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = a.analyzeDrug(gctx, parsed, raw)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("analysis %s cancelled: %w", analysisID, err)
	}

	a.logger.WithFields(logrus.Fields{
		"analysis_id": analysisID,
		"patient_id":  parsed.PatientID,
		"drugs":       drugList,
	}).Info("Completed pharmacogenomic analysis")

	return &domain.AnalysisReport{
		Results:            results,
		TotalDrugsAnalyzed: len(results),
		AnalysisID:         analysisID,
	}, nil
}

func (a *Analyzer) analyzeDrug(ctx context.Context, parsed domain.ParseResult, raw string) domain.DrugAnalysis {
	drug := a.kb.ResolveDrug(raw)
	timestamp := a.now().UTC().Format(time.RFC3339)

	profile, info := a.profiles.BuildProfile(ctx, parsed, drug)
	risk := a.risk.Resolve(ctx, domain.RiskQuery{
		Drug:      drug,
		Phenotype: profile.Phenotype,
		Gene:      profile.PrimaryGene,
		Diplotype: profile.Diplotype,
	})

	input := domain.ExplanationInput{
		Drug:                 drug,
		Gene:                 profile.PrimaryGene,
		Diplotype:            profile.Diplotype,
		Phenotype:            profile.Phenotype,
		RiskLabel:            risk.RiskAssessment.RiskLabel,
		Severity:             risk.RiskAssessment.Severity,
		Variants:             profile.DetectedVariants,
		DosingRecommendation: risk.ClinicalRecommendation.DosingRecommendation,
	}
	if info != nil {
		input.Pathway = info.Pathway
		input.DrugClass = info.DrugClass
	}

	explanation, err := a.explainer.Explain(ctx, input)
	if err != nil {
		a.logger.WithField("drug", drug).WithError(err).Warn("Explanation provider failed, using rule-based text")
		explanation = explain.Fallback(input, explain.ErrorModelTag(err))
	}

	return domain.DrugAnalysis{
		PatientID:              parsed.PatientID,
		Drug:                   drug,
		Timestamp:              timestamp,
		RiskAssessment:         risk.RiskAssessment,
		PharmacogenomicProfile: profile,
		ClinicalRecommendation: risk.ClinicalRecommendation,
		Explanation:            explanation,
		QualityMetrics: domain.QualityMetrics{
			VCFParsingSuccess:            parsed.VCFValid,
			TotalVariantsParsed:          parsed.TotalVariants,
			PharmacogenomicVariantsFound: len(parsed.PGxVariants),
			GeneCoverage:                 parsed.GenesFound,
			AnalysisTimestamp:            timestamp,
			ExplanationGenerated:         explain.IsGenerated(explanation),
		},
		Source: risk.Source,
	}
}
