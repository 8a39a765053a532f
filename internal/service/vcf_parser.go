package service

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pharmaguard-mcp-server/internal/domain"
)

// VariantCatalog is the known-variant reference consulted while parsing.
type VariantCatalog interface {
	IsTargetGene(gene string) bool
	LookupByIdentifier(id string) (domain.KnownVariant, bool)
	LookupByGeneAndStar(gene, star string) (domain.KnownVariant, bool)
}

// Parse warnings surfaced on ParseResult.Warnings
const (
	WarnMissingFileFormat = "Warning: Missing ##fileformat=VCF header"
	WarnMissingColumns    = "Missing #CHROM header line"
)

const (
	minDataFields    = 5
	formatColumnIdx  = 8
	sampleColumnIdx  = 9
	fileFormatPrefix = "##fileformat=VCF"
)

var patientIDPattern = regexp.MustCompile(`(?i)PATIENT[_\-]?ID\s*=\s*(\S+)`)

// VariantParser turns variant-call text into a ParseResult.
type VariantParser struct {
	catalog VariantCatalog
	logger  *logrus.Logger
}

// NewVariantParser creates a parser backed by the given catalog.
func NewVariantParser(catalog VariantCatalog, logger *logrus.Logger) *VariantParser {
	return &VariantParser{catalog: catalog, logger: logger}
}

// Parse never fails. Malformed rows are skipped and structural problems are
// reported as warnings; VCFValid is false only when neither a column header
// nor any data line could be found.
func (p *VariantParser) Parse(raw string) domain.ParseResult {
	result := domain.ParseResult{
		PatientID:    domain.DefaultPatientID,
		PGxVariants:  []domain.VariantRow{},
		GeneVariants: map[string][]domain.VariantRow{},
		GenesFound:   []string{},
		Warnings:     []string{},
	}

	var (
		hasFileFormat bool
		headerLine    string
		hasHeader     bool
		dataLines     []string
	)

	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		stripped := strings.TrimSpace(line)
		if strings.HasPrefix(stripped, fileFormatPrefix) {
			hasFileFormat = true
		}
		switch {
		case strings.HasPrefix(stripped, "##"):
			if pid, ok := extractPatientID(stripped); ok {
				result.PatientID = pid
			}
		case strings.HasPrefix(stripped, "#CHROM"), strings.HasPrefix(stripped, "#chrom"):
			headerLine = stripped
			hasHeader = true
		case stripped != "" && !strings.HasPrefix(stripped, "#"):
			dataLines = append(dataLines, stripped)
		}
	}

	if !hasFileFormat {
		result.Warnings = append(result.Warnings, WarnMissingFileFormat)
	}
	if !hasHeader {
		result.Warnings = append(result.Warnings, WarnMissingColumns)
		if len(dataLines) == 0 {
			p.logger.WithField("warnings", result.Warnings).Warn("No variant data found in input")
			return result
		}
	}

	var hasFormat, hasSample bool
	if hasHeader {
		cols := strings.Split(strings.TrimLeft(headerLine, "#"), "\t")
		hasFormat = len(cols) > formatColumnIdx
		hasSample = len(cols) > sampleColumnIdx
	}

	result.VCFValid = true

	for _, line := range dataLines {
		fields := strings.Split(line, "\t")
		if len(fields) < minDataFields {
			continue
		}
		result.TotalVariants++

		genotype := ""
		if hasFormat && hasSample && len(fields) > sampleColumnIdx {
			genotype = extractGenotype(fields[formatColumnIdx], fields[sampleColumnIdx])
		}
		if domain.IsHomozygousRef(genotype) {
			continue
		}

		row, ok := p.identify(fields, genotype)
		if !ok {
			continue
		}
		result.PGxVariants = append(result.PGxVariants, row)
		result.GeneVariants[row.Gene] = append(result.GeneVariants[row.Gene], row)
	}

	for gene := range result.GeneVariants {
		result.GenesFound = append(result.GenesFound, gene)
	}
	sort.Strings(result.GenesFound)

	p.logger.WithFields(logrus.Fields{
		"patient_id":     result.PatientID,
		"total_variants": result.TotalVariants,
		"pgx_variants":   len(result.PGxVariants),
		"genes_found":    result.GenesFound,
		"warnings":       len(result.Warnings),
	}).Debug("Parsed variant-call input")

	return result
}

// identify applies the identification precedence to one data row: an INFO
// GENE tag naming a tracked gene is always recorded, with its effect taken
// from the catalog by identifier, then by gene and star; otherwise the row
// identifier is matched against the catalog directly.
func (p *VariantParser) identify(fields []string, genotype string) (domain.VariantRow, bool) {
	rsid := field(fields, 2, ".")
	qual := field(fields, 5, "0")
	info := parseInfoField(field(fields, 7, ""))

	base := domain.VariantRow{
		Chromosome: field(fields, 0, ""),
		Position:   parsePosition(field(fields, 1, "")),
		Ref:        field(fields, 3, ""),
		Alt:        field(fields, 4, ""),
		Genotype:   genotype,
		Quality:    parseQuality(qual),
	}

	gene := info["GENE"]
	star := info["STAR"]
	lookupID := rsid
	if rsid == "." {
		lookupID = info["RS"]
	}

	if gene != "" && p.catalog.IsTargetGene(gene) {
		row := base
		row.RSID = lookupID
		row.Gene = gene
		row.Star = star
		row.Effect = domain.UNKNOWN_FUNCTION
		if known, ok := p.catalog.LookupByIdentifier(lookupID); ok {
			row.Effect = known.Effect
			row.Description = known.Description
		} else if star != "" {
			if known, ok := p.catalog.LookupByGeneAndStar(gene, star); ok {
				row.Effect = known.Effect
				row.Description = known.Description
			}
		}
		if row.Effect == "" {
			row.Effect = domain.UNKNOWN_FUNCTION
		}
		return row, true
	}

	if lookupID != "" {
		if known, ok := p.catalog.LookupByIdentifier(lookupID); ok {
			row := base
			row.RSID = lookupID
			row.Gene = known.Gene
			row.Star = known.Star
			row.Effect = known.Effect
			row.Description = known.Description
			return row, true
		}
	}

	return domain.VariantRow{}, false
}

func extractPatientID(line string) (string, bool) {
	if !strings.Contains(strings.ToUpper(line), "PATIENT") {
		return "", false
	}
	match := patientIDPattern.FindStringSubmatch(line)
	if match == nil {
		return "", false
	}
	pid := match[1]
	if !strings.HasPrefix(strings.ToUpper(pid), "PATIENT") {
		pid = "PATIENT_" + pid
	}
	return pid, true
}

// parseInfoField splits an INFO column into key/value pairs. Bare flags map to "true".
func parseInfoField(info string) map[string]string {
	result := map[string]string{}
	if info == "" || info == "." {
		return result
	}
	for _, item := range strings.Split(info, ";") {
		if key, val, ok := strings.Cut(item, "="); ok {
			result[strings.TrimSpace(key)] = strings.TrimSpace(val)
		} else {
			result[strings.TrimSpace(item)] = "true"
		}
	}
	return result
}

// extractGenotype reads the GT value from a FORMAT/SAMPLE column pair.
func extractGenotype(format, sample string) string {
	if format == "" || sample == "" {
		return ""
	}
	keys := strings.Split(format, ":")
	values := strings.Split(sample, ":")
	for i, k := range keys {
		if k == "GT" {
			if i < len(values) {
				return values[i]
			}
			return ""
		}
	}
	return ""
}

func field(fields []string, idx int, fallback string) string {
	if idx < len(fields) {
		return strings.TrimSpace(fields[idx])
	}
	return fallback
}

func parseQuality(qual string) float64 {
	if qual == "." {
		return 0
	}
	q, err := strconv.ParseFloat(qual, 64)
	if err != nil {
		return 0
	}
	return q
}

func parsePosition(pos string) int64 {
	if pos == "" {
		return 0
	}
	for _, c := range pos {
		if c < '0' || c > '9' {
			return 0
		}
	}
	n, err := strconv.ParseInt(pos, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
