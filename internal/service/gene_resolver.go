package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pharmaguard-mcp-server/internal/domain"
)

// DrugGeneSource maps a canonical drug to its governing gene. A source with no
// mapping returns (nil, nil).
type DrugGeneSource interface {
	Name() string
	LookupDrugGene(ctx context.Context, drug string) (*domain.DrugGeneInfo, error)
}

// BuiltinDrugGenes is the drug to gene table shipped with the knowledge base.
type BuiltinDrugGenes interface {
	LookupDrugGene(ctx context.Context, drug string) (*domain.DrugGeneInfo, error)
}

type builtinGeneSource struct{ table BuiltinDrugGenes }

// NewBuiltinGeneSource wraps the built-in drug to gene table.
func NewBuiltinGeneSource(table BuiltinDrugGenes) DrugGeneSource {
	return builtinGeneSource{table: table}
}

func (s builtinGeneSource) Name() string { return string(domain.SOURCE_STATIC_KB) }

func (s builtinGeneSource) LookupDrugGene(ctx context.Context, drug string) (*domain.DrugGeneInfo, error) {
	return s.table.LookupDrugGene(ctx, drug)
}

type storeGeneSource struct {
	store domain.StructuredGuidelineStore
}

// NewStoreGeneSource wraps a structured store's drug to gene table.
func NewStoreGeneSource(store domain.StructuredGuidelineStore) DrugGeneSource {
	return storeGeneSource{store: store}
}

func (s storeGeneSource) Name() string { return string(domain.SOURCE_STRUCTURED_STORE) }

func (s storeGeneSource) LookupDrugGene(ctx context.Context, drug string) (*domain.DrugGeneInfo, error) {
	return s.store.GetDrugGene(ctx, drug)
}

type externalGeneSource struct{ lookup domain.GuidelineLookup }

// NewExternalGeneSource wraps an external guideline service's gene lookup.
func NewExternalGeneSource(lookup domain.GuidelineLookup) DrugGeneSource {
	return externalGeneSource{lookup: lookup}
}

func (s externalGeneSource) Name() string { return string(domain.SOURCE_EXTERNAL_GUIDELINE) }

func (s externalGeneSource) LookupDrugGene(ctx context.Context, drug string) (*domain.DrugGeneInfo, error) {
	return s.lookup.GeneForDrug(ctx, drug)
}

// DrugGeneResolver consults drug-gene sources in order: built-in table,
// structured store, then external guideline service.
type DrugGeneResolver struct {
	sources       []DrugGeneSource
	lookupTimeout time.Duration
	logger        *logrus.Logger
}

// NewDrugGeneResolver creates a resolver over the given sources.
func NewDrugGeneResolver(logger *logrus.Logger, lookupTimeout time.Duration, sources ...DrugGeneSource) *DrugGeneResolver {
	if lookupTimeout <= 0 {
		lookupTimeout = DefaultLookupTimeout
	}
	filtered := make([]DrugGeneSource, 0, len(sources))
	for _, s := range sources {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	return &DrugGeneResolver{sources: filtered, lookupTimeout: lookupTimeout, logger: logger}
}

// Resolve returns the first mapping with a non-empty gene, or nil when no
// source knows the drug. drug must already be canonical.
func (r *DrugGeneResolver) Resolve(ctx context.Context, drug string) *domain.DrugGeneInfo {
	for _, src := range r.sources {
		info, err := boundedLookup(ctx, r.lookupTimeout, src.Name(), func(ctx context.Context) (*domain.DrugGeneInfo, error) {
			return src.LookupDrugGene(ctx, drug)
		})
		if err != nil {
			r.logger.WithFields(logrus.Fields{
				"tier": src.Name(),
				"drug": drug,
			}).WithError(err).Warn("Drug-gene source failed, falling back")
			continue
		}
		if info == nil || info.Gene == "" {
			continue
		}
		out := *info
		out.Drug = drug
		return &out
	}
	r.logger.WithField("drug", drug).Info("No gene mapping found for drug")
	return nil
}
