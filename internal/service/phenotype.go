package service

import (
	"github.com/shopspring/decimal"

	"github.com/pharmaguard-mcp-server/internal/domain"
)

// ActivityTable supplies gene-specific allele activity values.
type ActivityTable interface {
	ActivityScore(gene, star string) decimal.Decimal
	IsGainOfFunction(star string) bool
}

var (
	activityOne     = decimal.NewFromInt(1)
	activityTwo     = decimal.NewFromInt(2)
	activityTwoHalf = decimal.RequireFromString("2.5")
)

// PhenotypeClassifier maps a diplotype to a metabolizer phenotype by summing
// allele activity values and applying gene-family boundaries.
type PhenotypeClassifier struct {
	table ActivityTable
}

// NewPhenotypeClassifier creates a classifier over the given activity table.
func NewPhenotypeClassifier(table ActivityTable) *PhenotypeClassifier {
	return &PhenotypeClassifier{table: table}
}

// ActivityScore returns the summed activity of both alleles.
func (c *PhenotypeClassifier) ActivityScore(allele1, allele2, gene string) decimal.Decimal {
	return c.table.ActivityScore(gene, allele1).Add(c.table.ActivityScore(gene, allele2))
}

// Classify is pure and symmetric in its allele arguments.
func (c *PhenotypeClassifier) Classify(allele1, allele2, gene string) domain.Phenotype {
	total := c.ActivityScore(allele1, allele2, gene)

	switch gene {
	case "TPMT", "DPYD":
		switch {
		case total.IsZero():
			return domain.PM
		case total.LessThanOrEqual(activityOne):
			return domain.IM
		default:
			return domain.NM
		}

	case "SLCO1B1":
		switch {
		case total.IsZero():
			return domain.PM
		case total.LessThan(activityTwo):
			return domain.IM
		default:
			return domain.NM
		}
	}

	switch {
	case total.IsZero():
		return domain.PM
	case total.LessThan(activityOne):
		return domain.IM
	case total.LessThanOrEqual(activityTwo):
		gainOfFunction := c.table.IsGainOfFunction(allele1) || c.table.IsGainOfFunction(allele2)
		if gene == "CYP2C19" && gainOfFunction && total.GreaterThanOrEqual(activityTwoHalf) {
			return domain.RM
		}
		return domain.NM
	case total.LessThanOrEqual(activityTwoHalf):
		return domain.RM
	default:
		return domain.URM
	}
}

// ClassifyDiplotype is Classify over a resolved Diplotype.
func (c *PhenotypeClassifier) ClassifyDiplotype(d domain.Diplotype, gene string) domain.Phenotype {
	return c.Classify(d.Allele1, d.Allele2, gene)
}
