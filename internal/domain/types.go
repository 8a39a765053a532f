// Package domain contains core business entities and types for pharmacogenomic
// drug-response classification following CPIC (Clinical Pharmacogenetics
// Implementation Consortium) guideline conventions.
//
// Reference: Caudle et al. (2017) Standardizing terms for clinical pharmacogenetic
// test results: consensus terms from CPIC. Genet Med. 19(2):215-223.
package domain

import (
	"errors"
	"strings"
)

// Phenotype represents the metabolizer status predicted from a diplotype.
// The five categories follow the CPIC standardized terms for drug-metabolizing
// enzymes; transporter and other enzyme families use a subset.
type Phenotype string

const (
	PM  Phenotype = "PM"  // Poor metabolizer
	IM  Phenotype = "IM"  // Intermediate metabolizer
	NM  Phenotype = "NM"  // Normal metabolizer
	RM  Phenotype = "RM"  // Rapid metabolizer
	URM Phenotype = "URM" // Ultrarapid metabolizer

	UNKNOWN_PHENOTYPE Phenotype = "Unknown"
)

// RiskLabel is the headline drug-response prediction for a drug and phenotype.
type RiskLabel string

const (
	SAFE          RiskLabel = "Safe"
	ADJUST_DOSAGE RiskLabel = "Adjust Dosage"
	INEFFECTIVE   RiskLabel = "Ineffective"
	TOXIC         RiskLabel = "Toxic"
	UNKNOWN_RISK  RiskLabel = "Unknown"
)

// Severity grades the clinical impact of a risk label.
type Severity string

const (
	SEVERITY_NONE     Severity = "none"
	SEVERITY_LOW      Severity = "low"
	SEVERITY_MODERATE Severity = "moderate"
	SEVERITY_HIGH     Severity = "high"
	SEVERITY_CRITICAL Severity = "critical"
	SEVERITY_UNKNOWN  Severity = "unknown"
)

// Urgency indicates how soon a clinical recommendation should be acted on.
type Urgency string

const (
	ROUTINE  Urgency = "routine"
	SOON     Urgency = "soon"
	URGENT   Urgency = "urgent"
	EMERGENT Urgency = "emergent"
)

// FunctionalEffect describes the functional consequence of a star allele.
type FunctionalEffect string

const (
	NO_FUNCTION        FunctionalEffect = "no_function"
	DECREASED_FUNCTION FunctionalEffect = "decreased_function"
	NORMAL_FUNCTION    FunctionalEffect = "normal"
	INCREASED_FUNCTION FunctionalEffect = "increased_function"
	UNKNOWN_FUNCTION   FunctionalEffect = "unknown"
)

// GuidelineSource tags which resolution tier produced a risk result.
type GuidelineSource string

const (
	SOURCE_EXTERNAL_GUIDELINE GuidelineSource = "external_guideline"
	SOURCE_STRUCTURED_STORE   GuidelineSource = "structured_store"
	SOURCE_STATIC_KB          GuidelineSource = "static_knowledge_base"
)

// Validation errors for pharmacogenomic data integrity
var (
	ErrInvalidPhenotype = errors.New("invalid metabolizer phenotype")
	ErrInvalidRiskLabel = errors.New("invalid risk label")
	ErrInvalidSeverity  = errors.New("invalid severity")
	ErrInvalidUrgency   = errors.New("invalid urgency")
	ErrInvalidScore     = errors.New("confidence score must be within [0, 1]")
)

// IsValid reports whether the phenotype is one of the five metabolizer categories.
func (p Phenotype) IsValid() bool {
	switch p {
	case PM, IM, NM, RM, URM:
		return true
	default:
		return false
	}
}

// String returns the string representation of the phenotype.
func (p Phenotype) String() string {
	return string(p)
}

// Description returns the long-form CPIC term for the phenotype.
func (p Phenotype) Description() string {
	switch p {
	case PM:
		return "Poor Metabolizer"
	case IM:
		return "Intermediate Metabolizer"
	case NM:
		return "Normal Metabolizer"
	case RM:
		return "Rapid Metabolizer"
	case URM:
		return "Ultrarapid Metabolizer"
	default:
		return "Unknown"
	}
}

// ReducedActivity reports whether the phenotype implies lower than normal enzyme activity.
func (p Phenotype) ReducedActivity() bool {
	return p == PM || p == IM
}

// ElevatedActivity reports whether the phenotype implies higher than normal enzyme activity.
func (p Phenotype) ElevatedActivity() bool {
	return p == RM || p == URM
}

// LogFields returns structured logging fields for audit trails.
func (p Phenotype) LogFields() map[string]any {
	return map[string]any{
		"phenotype":             string(p),
		"phenotype_description": p.Description(),
		"is_valid":              p.IsValid(),
	}
}

// ParsePhenotype normalizes a short code or CPIC long-form term into a Phenotype.
// Unrecognized input yields UNKNOWN_PHENOTYPE and ErrInvalidPhenotype.
func ParsePhenotype(s string) (Phenotype, error) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	switch normalized {
	case "PM", "POOR METABOLIZER":
		return PM, nil
	case "IM", "INTERMEDIATE METABOLIZER":
		return IM, nil
	case "NM", "NORMAL METABOLIZER":
		return NM, nil
	case "RM", "RAPID METABOLIZER":
		return RM, nil
	case "URM", "UM", "ULTRARAPID METABOLIZER":
		return URM, nil
	default:
		return UNKNOWN_PHENOTYPE, ErrInvalidPhenotype
	}
}

// ParseQueryPhenotype is ParsePhenotype extended to accept "Unknown", which
// is a valid risk query but not a valid stored guideline key.
func ParseQueryPhenotype(s string) (Phenotype, error) {
	if strings.EqualFold(strings.TrimSpace(s), string(UNKNOWN_PHENOTYPE)) {
		return UNKNOWN_PHENOTYPE, nil
	}
	return ParsePhenotype(s)
}

// NormalizeQueryPhenotype maps recognized codes and long-form terms onto
// their Phenotype. Anything else passes through trimmed so risk resolution
// reports it as undetermined.
func NormalizeQueryPhenotype(s string) Phenotype {
	if p, err := ParseQueryPhenotype(s); err == nil {
		return p
	}
	return Phenotype(strings.TrimSpace(s))
}

// IsValid reports whether the risk label belongs to the closed label set.
func (r RiskLabel) IsValid() bool {
	switch r {
	case SAFE, ADJUST_DOSAGE, INEFFECTIVE, TOXIC, UNKNOWN_RISK:
		return true
	default:
		return false
	}
}

// String returns the string representation of the risk label.
func (r RiskLabel) String() string {
	return string(r)
}

// RequiresClinicalAction reports whether the label calls for prescriber intervention.
// Unknown is treated as actionable because it signals missing data.
func (r RiskLabel) RequiresClinicalAction() bool {
	switch r {
	case SAFE:
		return false
	default:
		return true
	}
}

// IsValid reports whether the severity belongs to the closed severity set.
func (s Severity) IsValid() bool {
	switch s {
	case SEVERITY_NONE, SEVERITY_LOW, SEVERITY_MODERATE, SEVERITY_HIGH, SEVERITY_CRITICAL, SEVERITY_UNKNOWN:
		return true
	default:
		return false
	}
}

// String returns the string representation of the severity.
func (s Severity) String() string {
	return string(s)
}

// IsValid reports whether the urgency belongs to the closed urgency set.
func (u Urgency) IsValid() bool {
	switch u {
	case ROUTINE, SOON, URGENT, EMERGENT:
		return true
	default:
		return false
	}
}

// String returns the string representation of the urgency.
func (u Urgency) String() string {
	return string(u)
}

// IsValid reports whether the functional effect tag is recognized.
func (f FunctionalEffect) IsValid() bool {
	switch f {
	case NO_FUNCTION, DECREASED_FUNCTION, NORMAL_FUNCTION, INCREASED_FUNCTION, UNKNOWN_FUNCTION:
		return true
	default:
		return false
	}
}
