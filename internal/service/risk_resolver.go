package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pharmaguard-mcp-server/internal/domain"
)

// DefaultLookupTimeout bounds each call to an optional guideline source.
const DefaultLookupTimeout = 5 * time.Second

// GuidelineTier is one source in the risk resolution chain. A tier that has
// nothing to say returns (nil, nil).
type GuidelineTier interface {
	Name() string
	Resolve(ctx context.Context, query domain.RiskQuery) (*domain.RiskResult, error)
}

// ExternalGuidelineTier consults an external guideline service keyed by genotype.
type ExternalGuidelineTier struct {
	lookup domain.GuidelineLookup
}

// NewExternalGuidelineTier wraps a GuidelineLookup.
func NewExternalGuidelineTier(lookup domain.GuidelineLookup) *ExternalGuidelineTier {
	return &ExternalGuidelineTier{lookup: lookup}
}

// Name implements GuidelineTier.
func (t *ExternalGuidelineTier) Name() string { return string(domain.SOURCE_EXTERNAL_GUIDELINE) }

// Resolve implements GuidelineTier. It is skipped unless gene and diplotype are known.
func (t *ExternalGuidelineTier) Resolve(ctx context.Context, q domain.RiskQuery) (*domain.RiskResult, error) {
	if !q.HasGenotype() {
		return nil, nil
	}
	res, err := t.lookup.LookupFull(ctx, q.Drug, q.Gene, q.Diplotype)
	if err != nil || res == nil {
		return nil, err
	}
	out := *res
	out.Source = domain.SOURCE_EXTERNAL_GUIDELINE
	return &out, nil
}

// StructuredStoreTier consults an exact-match guideline table.
type StructuredStoreTier struct {
	store domain.StructuredGuidelineStore
}

// NewStructuredStoreTier wraps a StructuredGuidelineStore.
func NewStructuredStoreTier(store domain.StructuredGuidelineStore) *StructuredStoreTier {
	return &StructuredStoreTier{store: store}
}

// Name implements GuidelineTier.
func (t *StructuredStoreTier) Name() string { return string(domain.SOURCE_STRUCTURED_STORE) }

// Resolve implements GuidelineTier.
func (t *StructuredStoreTier) Resolve(ctx context.Context, q domain.RiskQuery) (*domain.RiskResult, error) {
	res, err := t.store.GetGuideline(ctx, q.Drug, q.Phenotype)
	if err != nil || res == nil {
		return nil, err
	}
	out := *res
	out.Source = domain.SOURCE_STRUCTURED_STORE
	return &out, nil
}

// RiskTable is the static risk matrix and recommendation table.
type RiskTable interface {
	HasRiskData(drug string) bool
	RiskEntry(drug string, phenotype domain.Phenotype) (domain.RiskAssessment, bool)
	Recommendation(drug string, phenotype domain.Phenotype) (domain.ClinicalRecommendation, bool)
}

// StaticTier answers from the built-in tables and always yields a result.
type StaticTier struct {
	table RiskTable
}

// NewStaticTier wraps the built-in risk tables.
func NewStaticTier(table RiskTable) *StaticTier {
	return &StaticTier{table: table}
}

// Name implements GuidelineTier.
func (t *StaticTier) Name() string { return string(domain.SOURCE_STATIC_KB) }

// Resolve implements GuidelineTier.
func (t *StaticTier) Resolve(_ context.Context, q domain.RiskQuery) (*domain.RiskResult, error) {
	res := t.Lookup(q.Drug, q.Phenotype)
	return &res, nil
}

// Lookup is the pure table lookup behind Resolve. drug must be canonical.
func (t *StaticTier) Lookup(drug string, phenotype domain.Phenotype) domain.RiskResult {
	if !t.table.HasRiskData(drug) {
		return domain.RiskResult{
			RiskAssessment: domain.RiskAssessment{
				RiskLabel:       domain.UNKNOWN_RISK,
				ConfidenceScore: 0.0,
				Severity:        domain.SEVERITY_UNKNOWN,
			},
			ClinicalRecommendation: domain.ClinicalRecommendation{
				DosingRecommendation: fmt.Sprintf("No pharmacogenomic data for %s.", drug),
				AlternativeDrugs:     []string{},
				MonitoringParameters: []string{},
				Urgency:              domain.ROUTINE,
			},
			Source: domain.SOURCE_STATIC_KB,
		}
	}

	entry, ok := t.table.RiskEntry(drug, phenotype)
	if !ok {
		return domain.RiskResult{
			RiskAssessment: domain.RiskAssessment{
				RiskLabel:       domain.UNKNOWN_RISK,
				ConfidenceScore: 0.5,
				Severity:        domain.SEVERITY_MODERATE,
			},
			ClinicalRecommendation: domain.ClinicalRecommendation{
				DosingRecommendation: fmt.Sprintf("Phenotype undetermined. Use %s with standard monitoring.", drug),
				AlternativeDrugs:     []string{},
				MonitoringParameters: []string{"Standard monitoring"},
				Urgency:              domain.SOON,
			},
			Source: domain.SOURCE_STATIC_KB,
		}
	}

	rec, ok := t.table.Recommendation(drug, phenotype)
	if !ok {
		rec = domain.ClinicalRecommendation{
			DosingRecommendation: "Follow standard prescribing info.",
			AlternativeDrugs:     []string{},
			MonitoringParameters: []string{},
			Urgency:              domain.ROUTINE,
		}
	}
	return domain.RiskResult{
		RiskAssessment:         entry,
		ClinicalRecommendation: rec,
		Source:                 domain.SOURCE_STATIC_KB,
	}
}

// DrugNormalizer maps drug names and aliases to canonical identifiers.
type DrugNormalizer interface {
	ResolveDrug(name string) string
}

// RiskResolver walks an ordered list of guideline tiers and returns the
// first usable answer. The static tier is always last and always answers.
type RiskResolver struct {
	normalizer    DrugNormalizer
	tiers         []GuidelineTier
	static        *StaticTier
	lookupTimeout time.Duration
	logger        *logrus.Logger
}

// RiskResolverOption configures a RiskResolver.
type RiskResolverOption func(*RiskResolver)

// WithTier appends an optional tier ahead of the static fallback.
func WithTier(tier GuidelineTier) RiskResolverOption {
	return func(r *RiskResolver) {
		if tier != nil {
			r.tiers = append(r.tiers, tier)
		}
	}
}

// WithLookupTimeout sets the per-tier timeout for optional sources.
func WithLookupTimeout(d time.Duration) RiskResolverOption {
	return func(r *RiskResolver) {
		if d > 0 {
			r.lookupTimeout = d
		}
	}
}

// NewRiskResolver builds a resolver. Optional tiers are consulted in the
// order they are supplied, then the static tier.
func NewRiskResolver(normalizer DrugNormalizer, table RiskTable, logger *logrus.Logger, opts ...RiskResolverOption) *RiskResolver {
	r := &RiskResolver{
		normalizer:    normalizer,
		static:        NewStaticTier(table),
		lookupTimeout: DefaultLookupTimeout,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Tiers returns the names of the configured tiers in resolution order.
func (r *RiskResolver) Tiers() []string {
	names := make([]string, 0, len(r.tiers)+1)
	for _, t := range r.tiers {
		names = append(names, t.Name())
	}
	return append(names, r.static.Name())
}

// Resolve never fails. Tier errors, timeouts, empty answers and invalid
// answers are logged and the next tier is tried.
func (r *RiskResolver) Resolve(ctx context.Context, q domain.RiskQuery) domain.RiskResult {
	q.Drug = r.normalizer.ResolveDrug(q.Drug)

	for _, tier := range r.tiers {
		start := time.Now()
		res, err := r.callTier(ctx, tier, q)
		fields := logrus.Fields{
			"tier":        tier.Name(),
			"drug":        q.Drug,
			"phenotype":   q.Phenotype,
			"duration_ms": time.Since(start).Milliseconds(),
		}
		if err != nil {
			r.logger.WithFields(fields).WithError(err).Warn("Guideline tier failed, falling back")
			continue
		}
		if res == nil {
			r.logger.WithFields(fields).Debug("Guideline tier yielded nothing")
			continue
		}
		if verr := res.Validate(); verr != nil {
			r.logger.WithFields(fields).WithError(verr).Warn("Guideline tier returned an invalid result, falling back")
			continue
		}
		fields["clinical_action"] = res.RiskAssessment.RiskLabel.RequiresClinicalAction()
		r.logger.WithFields(fields).Info("Risk resolved")
		return *res
	}

	res := r.static.Lookup(q.Drug, q.Phenotype)
	r.logger.WithFields(q.Phenotype.LogFields()).WithFields(logrus.Fields{
		"tier":            r.static.Name(),
		"drug":            q.Drug,
		"risk_label":      res.RiskAssessment.RiskLabel,
		"clinical_action": res.RiskAssessment.RiskLabel.RequiresClinicalAction(),
	}).Debug("Risk resolved from static knowledge base")
	return res
}

func (r *RiskResolver) callTier(ctx context.Context, tier GuidelineTier, q domain.RiskQuery) (*domain.RiskResult, error) {
	return boundedLookup(ctx, r.lookupTimeout, tier.Name(), func(ctx context.Context) (*domain.RiskResult, error) {
		return tier.Resolve(ctx, q)
	})
}
