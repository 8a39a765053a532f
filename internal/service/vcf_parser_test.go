package service

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmaguard-mcp-server/internal/domain"
	"github.com/pharmaguard-mcp-server/internal/knowledge"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func vcfRow(cols ...string) string {
	return strings.Join(cols, "\t")
}

const (
	fileFormatLine = "##fileformat=VCFv4.2"
	columnsLine    = "#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\tFORMAT\tSAMPLE"
)

func vcfDoc(lines ...string) string {
	return strings.Join(append([]string{fileFormatLine, columnsLine}, lines...), "\n")
}

func newTestParser() *VariantParser {
	return NewVariantParser(knowledge.Default(), quietLogger())
}

func TestVariantParser_Parse_AnnotatedRow(t *testing.T) {
	parser := newTestParser()
	input := vcfDoc(vcfRow("22", "42522755", "rs3892097", "C", "T", "99", "PASS", "GENE=CYP2D6;STAR=*4", "GT", "1/1"))

	result := parser.Parse(input)

	assert.True(t, result.VCFValid)
	assert.Empty(t, result.Warnings)
	assert.Equal(t, domain.DefaultPatientID, result.PatientID)
	assert.Equal(t, 1, result.TotalVariants)
	require.Len(t, result.PGxVariants, 1)

	row := result.PGxVariants[0]
	assert.Equal(t, "rs3892097", row.RSID)
	assert.Equal(t, "CYP2D6", row.Gene)
	assert.Equal(t, "22", row.Chromosome)
	assert.Equal(t, int64(42522755), row.Position)
	assert.Equal(t, "C", row.Ref)
	assert.Equal(t, "T", row.Alt)
	assert.Equal(t, "*4", row.Star)
	assert.Equal(t, "1/1", row.Genotype)
	assert.Equal(t, domain.NO_FUNCTION, row.Effect)
	assert.Equal(t, 99.0, row.Quality)
	assert.Equal(t, []string{"CYP2D6"}, result.GenesFound)
	assert.Len(t, result.GeneVariants["CYP2D6"], 1)
}

func TestVariantParser_Parse_Identification(t *testing.T) {
	tests := []struct {
		name           string
		row            string
		expectedGene   string
		expectedStar   string
		expectedEffect domain.FunctionalEffect
		expectedRSID   string
		identified     bool
	}{
		{
			name:           "catalog identifier without annotation",
			row:            vcfRow("10", "94781859", "rs4244285", "G", "A", "50", "PASS", ".", "GT", "0/1"),
			expectedGene:   "CYP2C19",
			expectedStar:   "*2",
			expectedEffect: domain.NO_FUNCTION,
			expectedRSID:   "rs4244285",
			identified:     true,
		},
		{
			name:           "RS tag used when identifier is missing",
			row:            vcfRow("10", "94761900", ".", "C", "T", "50", "PASS", "RS=rs12248560", "GT", "0/1"),
			expectedGene:   "CYP2C19",
			expectedStar:   "*17",
			expectedEffect: domain.INCREASED_FUNCTION,
			expectedRSID:   "rs12248560",
			identified:     true,
		},
		{
			name:           "gene tag with unknown identifier falls back to gene and star",
			row:            vcfRow("10", "1", "rs999", "A", "G", "50", "PASS", "GENE=CYP2C9;STAR=*3", "GT", "0/1"),
			expectedGene:   "CYP2C9",
			expectedStar:   "*3",
			expectedEffect: domain.DECREASED_FUNCTION,
			expectedRSID:   "rs999",
			identified:     true,
		},
		{
			name:           "gene tag with nothing known keeps unknown effect",
			row:            vcfRow("10", "1", "rs999", "A", "G", "50", "PASS", "GENE=TPMT;STAR=*99", "GT", "0/1"),
			expectedGene:   "TPMT",
			expectedStar:   "*99",
			expectedEffect: domain.UNKNOWN_FUNCTION,
			expectedRSID:   "rs999",
			identified:     true,
		},
		{
			name:           "gene tag without star is recorded with empty star",
			row:            vcfRow("10", "1", "rs999", "A", "G", "50", "PASS", "GENE=DPYD", "GT", "0/1"),
			expectedGene:   "DPYD",
			expectedStar:   "",
			expectedEffect: domain.UNKNOWN_FUNCTION,
			expectedRSID:   "rs999",
			identified:     true,
		},
		{
			name:           "untracked gene tag still matches catalog identifier",
			row:            vcfRow("22", "1", "rs3892097", "C", "T", "50", "PASS", "GENE=BRCA1", "GT", "0/1"),
			expectedGene:   "CYP2D6",
			expectedStar:   "*4",
			expectedEffect: domain.NO_FUNCTION,
			expectedRSID:   "rs3892097",
			identified:     true,
		},
		{
			name:       "unrelated variant is counted but not kept",
			row:        vcfRow("1", "100", "rs123", "A", "G", "50", "PASS", "GENE=BRCA1", "GT", "0/1"),
			identified: false,
		},
	}

	parser := newTestParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parser.Parse(vcfDoc(tt.row))

			assert.Equal(t, 1, result.TotalVariants)
			if !tt.identified {
				assert.Empty(t, result.PGxVariants)
				assert.Empty(t, result.GenesFound)
				return
			}
			require.Len(t, result.PGxVariants, 1)
			row := result.PGxVariants[0]
			assert.Equal(t, tt.expectedGene, row.Gene)
			assert.Equal(t, tt.expectedStar, row.Star)
			assert.Equal(t, tt.expectedEffect, row.Effect)
			assert.Equal(t, tt.expectedRSID, row.RSID)
		})
	}
}

func TestVariantParser_Parse_HomozygousReferenceSkipped(t *testing.T) {
	parser := newTestParser()
	input := vcfDoc(
		vcfRow("22", "42522755", "rs3892097", "C", "T", "99", "PASS", "GENE=CYP2D6;STAR=*4", "GT", "0/0"),
		vcfRow("10", "94781859", "rs4244285", "G", "A", "99", "PASS", ".", "GT", "0|0"),
		vcfRow("10", "94781859", "rs4244285", "G", "A", "99", "PASS", ".", "GT:DP", "0/1:30"),
	)

	result := parser.Parse(input)

	assert.Equal(t, 3, result.TotalVariants)
	require.Len(t, result.PGxVariants, 1)
	assert.Equal(t, "0/1", result.PGxVariants[0].Genotype)
	assert.Equal(t, []string{"CYP2C19"}, result.GenesFound)
}

func TestVariantParser_Parse_Structure(t *testing.T) {
	tests := []struct {
		name             string
		input            string
		expectedValid    bool
		expectedTotal    int
		expectedWarnings []string
	}{
		{
			name:             "no header with one five-column row",
			input:            vcfRow("22", "42522755", "rs3892097", "C", "T"),
			expectedValid:    true,
			expectedTotal:    1,
			expectedWarnings: []string{WarnMissingFileFormat, WarnMissingColumns},
		},
		{
			name:             "empty input",
			input:            "   \n\n",
			expectedValid:    false,
			expectedTotal:    0,
			expectedWarnings: []string{WarnMissingFileFormat, WarnMissingColumns},
		},
		{
			name:             "meta lines only",
			input:            fileFormatLine + "\n##source=test",
			expectedValid:    false,
			expectedTotal:    0,
			expectedWarnings: []string{WarnMissingColumns},
		},
		{
			name:             "header without data",
			input:            vcfDoc(),
			expectedValid:    true,
			expectedTotal:    0,
			expectedWarnings: []string{},
		},
		{
			name:             "short rows are ignored",
			input:            vcfDoc(vcfRow("22", "42522755", "rs3892097", "C")),
			expectedValid:    true,
			expectedTotal:    0,
			expectedWarnings: []string{},
		},
	}

	parser := newTestParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parser.Parse(tt.input)
			assert.Equal(t, tt.expectedValid, result.VCFValid)
			assert.Equal(t, tt.expectedTotal, result.TotalVariants)
			assert.Equal(t, tt.expectedWarnings, result.Warnings)
		})
	}
}

func TestVariantParser_Parse_NoHeaderRowWithoutGenotype(t *testing.T) {
	parser := newTestParser()

	result := parser.Parse(vcfRow("22", "42522755", "rs3892097", "C", "T"))

	require.Len(t, result.PGxVariants, 1)
	row := result.PGxVariants[0]
	assert.Equal(t, "", row.Genotype)
	assert.Equal(t, 0.0, row.Quality)
	assert.Equal(t, "*4", row.Star)
}

func TestVariantParser_Parse_PatientID(t *testing.T) {
	tests := []struct {
		name     string
		meta     string
		expected string
	}{
		{"bare value is prefixed", "##PATIENT_ID=123", "PATIENT_123"},
		{"prefixed value kept", "##patient_id=PATIENT_042", "PATIENT_042"},
		{"unrelated meta ignored", "##source=lab", domain.DefaultPatientID},
	}

	parser := newTestParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := strings.Join([]string{fileFormatLine, tt.meta, columnsLine}, "\n")
			assert.Equal(t, tt.expected, parser.Parse(input).PatientID)
		})
	}
}

func TestParseInfoField(t *testing.T) {
	assert.Equal(t, map[string]string{}, parseInfoField("."))
	assert.Equal(t, map[string]string{"GENE": "CYP2D6", "STAR": "*4", "PASS": "true"}, parseInfoField("GENE=CYP2D6; STAR=*4;PASS"))
}

func TestExtractGenotype(t *testing.T) {
	tests := []struct {
		name     string
		format   string
		sample   string
		expected string
	}{
		{"gt first", "GT:DP", "0/1:20", "0/1"},
		{"gt later", "DP:GT", "20:1|1", "1|1"},
		{"no gt", "DP", "20", ""},
		{"sample too short", "DP:GT", "20", ""},
		{"empty", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, extractGenotype(tt.format, tt.sample))
		})
	}
}
