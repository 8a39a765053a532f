package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/pharmaguard-mcp-server/internal/domain"
	"github.com/pharmaguard-mcp-server/internal/knowledge"
)

func TestPhenotypeClassifier_Classify(t *testing.T) {
	tests := []struct {
		name     string
		allele1  string
		allele2  string
		gene     string
		expected domain.Phenotype
	}{
		{"CYP2D6 null/null", "*4", "*6", "CYP2D6", domain.PM},
		{"CYP2D6 reference", "*1", "*1", "CYP2D6", domain.NM},
		{"CYP2D6 decreased/decreased", "*10", "*10", "CYP2D6", domain.IM},
		{"CYP2D6 one null", "*1", "*4", "CYP2D6", domain.NM},
		{"CYP2D6 null plus decreased", "*4", "*41", "CYP2D6", domain.IM},
		{"CYP2C19 loss of function", "*2", "*2", "CYP2C19", domain.PM},
		{"CYP2C19 gain of function heterozygote", "*1", "*17", "CYP2C19", domain.RM},
		{"CYP2C19 gain of function homozygote", "*17", "*17", "CYP2C19", domain.URM},
		{"CYP2C19 null plus gain of function", "*2", "*17", "CYP2C19", domain.NM},
		{"CYP2C9 decreased", "*2", "*3", "CYP2C9", domain.IM},
		{"unlisted allele scores as reference", "*99", "*98", "CYP2C9", domain.NM},
		{"TPMT null/null", "*3B", "*3C", "TPMT", domain.PM},
		{"TPMT heterozygote", "*1", "*3C", "TPMT", domain.IM},
		{"TPMT reference", "*1", "*1", "TPMT", domain.NM},
		{"DPYD heterozygote", "*1", "*2A", "DPYD", domain.IM},
		{"DPYD decreased/decreased", "*13", "*13", "DPYD", domain.IM},
		{"SLCO1B1 null/null", "*5", "*5", "SLCO1B1", domain.PM},
		{"SLCO1B1 heterozygote", "*1", "*5", "SLCO1B1", domain.IM},
		{"SLCO1B1 reference", "*1A", "*1B", "SLCO1B1", domain.NM},
	}

	classifier := NewPhenotypeClassifier(knowledge.Default())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, classifier.Classify(tt.allele1, tt.allele2, tt.gene))
		})
	}
}

func TestPhenotypeClassifier_Commutative(t *testing.T) {
	kb := knowledge.Default()
	classifier := NewPhenotypeClassifier(kb)

	alleles := map[string]bool{"*1": true}
	for _, v := range kb.KnownVariants() {
		alleles[v.Star] = true
	}

	for _, gene := range kb.TargetGenes() {
		for a := range alleles {
			for b := range alleles {
				assert.Equal(t, classifier.Classify(a, b, gene), classifier.Classify(b, a, gene),
					"classify(%s,%s,%s) is not symmetric", a, b, gene)
			}
		}
	}
}

func TestPhenotypeClassifier_ActivityScore(t *testing.T) {
	classifier := NewPhenotypeClassifier(knowledge.Default())

	assert.True(t, decimal.RequireFromString("0.5").Equal(classifier.ActivityScore("*10", "*10", "CYP2D6")))
	assert.True(t, decimal.RequireFromString("3").Equal(classifier.ActivityScore("*17", "*17", "CYP2C19")))
	assert.True(t, decimal.NewFromInt(2).Equal(classifier.ActivityScore("*1", "*1", "DPYD")))
}

func TestPhenotypeClassifier_ReferenceDiplotypeIsNormal(t *testing.T) {
	classifier := NewPhenotypeClassifier(knowledge.Default())
	for _, gene := range knowledge.Default().TargetGenes() {
		t.Run(gene, func(t *testing.T) {
			assert.Equal(t, domain.NM, classifier.ClassifyDiplotype(ResolveDiplotype(nil), gene))
		})
	}
}

type stubActivity map[string]decimal.Decimal

func (s stubActivity) ActivityScore(_, star string) decimal.Decimal {
	if v, ok := s[star]; ok {
		return v
	}
	return decimal.NewFromInt(1)
}

func (s stubActivity) IsGainOfFunction(star string) bool { return star == "*17" }

func TestPhenotypeClassifier_CYPBoundaries(t *testing.T) {
	table := stubActivity{
		"zero": decimal.Zero,
		"half": decimal.RequireFromString("0.5"),
		"one":  decimal.NewFromInt(1),
		"1.25": decimal.RequireFromString("1.25"),
		"1.5":  decimal.RequireFromString("1.5"),
		"*17":  decimal.RequireFromString("1.5"),
	}
	classifier := NewPhenotypeClassifier(table)

	tests := []struct {
		name     string
		a, b     string
		expected domain.Phenotype
	}{
		{"0.0", "zero", "zero", domain.PM},
		{"0.5", "zero", "half", domain.IM},
		{"1.0", "zero", "one", domain.NM},
		{"2.0", "one", "one", domain.NM},
		{"2.5", "one", "1.5", domain.RM},
		{"2.5 with gain of function", "one", "*17", domain.RM},
		{"2.75", "1.5", "1.25", domain.URM},
		{"3.0", "*17", "*17", domain.URM},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, classifier.Classify(tt.a, tt.b, "CYP2C19"))
		})
	}
}
