package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pharmaguard-mcp-server/internal/domain"
)

func starRow(star, genotype string) domain.VariantRow {
	return domain.VariantRow{Gene: "CYP2D6", Star: star, Genotype: genotype}
}

func TestResolveDiplotype(t *testing.T) {
	tests := []struct {
		name     string
		rows     []domain.VariantRow
		expected string
	}{
		{
			name:     "no rows",
			rows:     nil,
			expected: "*1/*1",
		},
		{
			name:     "rows without stars",
			rows:     []domain.VariantRow{starRow("", "0/1"), starRow("unknown", "1/1")},
			expected: "*1/*1",
		},
		{
			name:     "single heterozygous star",
			rows:     []domain.VariantRow{starRow("*4", "0/1")},
			expected: "*1/*4",
		},
		{
			name:     "single homozygous star",
			rows:     []domain.VariantRow{starRow("*4", "1/1")},
			expected: "*4/*4",
		},
		{
			name:     "single phased homozygous star",
			rows:     []domain.VariantRow{starRow("*10", "1|1")},
			expected: "*10/*10",
		},
		{
			name:     "zygosity is read from the first row",
			rows:     []domain.VariantRow{starRow("", "1/1"), starRow("*4", "0/1")},
			expected: "*4/*4",
		},
		{
			name:     "two distinct stars",
			rows:     []domain.VariantRow{starRow("*4", "0/1"), starRow("*10", "0/1")},
			expected: "*4/*10",
		},
		{
			name:     "repeated star",
			rows:     []domain.VariantRow{starRow("*4", "0/1"), starRow("*4", "0/1")},
			expected: "*4/*4",
		},
		{
			// known approximation: a third distinct call is dropped
			name:     "first two distinct stars in encounter order",
			rows:     []domain.VariantRow{starRow("*4", "0/1"), starRow("*4", "0/1"), starRow("*10", "0/1"), starRow("*41", "0/1")},
			expected: "*4/*10",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ResolveDiplotype(tt.rows).String())
		})
	}
}
