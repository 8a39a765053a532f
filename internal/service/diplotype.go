package service

import (
	"github.com/pharmaguard-mcp-server/internal/domain"
)

// ResolveDiplotype calls a two-allele diplotype from one gene's variant rows.
//
// This is an encounter-order heuristic, not haplotype phasing: with several
// distinct star alleles only the first two seen are kept, so compound
// heterozygosity across three or more calls is not represented.
func ResolveDiplotype(rows []domain.VariantRow) domain.Diplotype {
	var stars []string
	for _, r := range rows {
		if r.HasStar() {
			stars = append(stars, r.Star)
		}
	}

	switch len(stars) {
	case 0:
		return domain.ReferenceDiplotype()
	case 1:
		// zygosity comes from the gene's first row, not from the starred row
		if rows[0].IsHomozygousAlt() {
			return domain.Diplotype{Allele1: stars[0], Allele2: stars[0]}
		}
		return domain.Diplotype{Allele1: domain.ReferenceAllele, Allele2: stars[0]}
	}

	distinct := make([]string, 0, 2)
	seen := make(map[string]bool, len(stars))
	for _, s := range stars {
		if seen[s] {
			continue
		}
		seen[s] = true
		distinct = append(distinct, s)
		if len(distinct) == 2 {
			break
		}
	}
	if len(distinct) == 1 {
		return domain.Diplotype{Allele1: distinct[0], Allele2: distinct[0]}
	}
	return domain.Diplotype{Allele1: distinct[0], Allele2: distinct[1]}
}
