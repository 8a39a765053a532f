package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/pharmaguard-mcp-server/internal/domain"
)

// GeneResolver resolves a canonical drug to its governing gene.
type GeneResolver interface {
	Resolve(ctx context.Context, drug string) *domain.DrugGeneInfo
}

// ProfileBuilder derives a patient's pharmacogenomic profile for one drug.
type ProfileBuilder struct {
	normalizer DrugNormalizer
	genes      GeneResolver
	classifier *PhenotypeClassifier
	logger     *logrus.Logger
}

// NewProfileBuilder creates a ProfileBuilder.
func NewProfileBuilder(normalizer DrugNormalizer, genes GeneResolver, classifier *PhenotypeClassifier, logger *logrus.Logger) *ProfileBuilder {
	return &ProfileBuilder{
		normalizer: normalizer,
		genes:      genes,
		classifier: classifier,
		logger:     logger,
	}
}

// BuildProfile resolves the drug's gene, calls the diplotype from that gene's
// variants and classifies the phenotype. The returned DrugGeneInfo is nil when
// no source maps the drug, in which case the profile is all Unknown.
func (b *ProfileBuilder) BuildProfile(ctx context.Context, parsed domain.ParseResult, drug string) (domain.Profile, *domain.DrugGeneInfo) {
	canonical := b.normalizer.ResolveDrug(drug)

	info := b.genes.Resolve(ctx, canonical)
	if info == nil {
		return domain.UnknownProfile(), nil
	}

	rows := parsed.GeneVariants[info.Gene]
	if len(rows) == 0 {
		return domain.Profile{
			PrimaryGene:      info.Gene,
			Diplotype:        domain.ReferenceDiplotype().String(),
			Phenotype:        domain.NM,
			DetectedVariants: []domain.DetectedVariant{},
		}, info
	}

	diplotype := ResolveDiplotype(rows)
	phenotype := b.classifier.ClassifyDiplotype(diplotype, info.Gene)

	detected := make([]domain.DetectedVariant, 0, len(rows))
	for _, row := range rows {
		detected = append(detected, domain.NewDetectedVariant(row))
	}

	b.logger.WithFields(logrus.Fields{
		"drug":      canonical,
		"gene":      info.Gene,
		"diplotype": diplotype.String(),
		"phenotype": phenotype,
		"variants":  len(detected),
	}).Debug("Built pharmacogenomic profile")

	return domain.Profile{
		PrimaryGene:      info.Gene,
		Diplotype:        diplotype.String(),
		Phenotype:        phenotype,
		DetectedVariants: detected,
	}, info
}
