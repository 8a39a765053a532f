// Package explain produces the narrative attached to each drug analysis.
// RuleBased is deterministic and always available; AnthropicExplainer asks a
// language model and degrades to the rule-based text on any failure.
package explain

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pharmaguard-mcp-server/internal/domain"
)

// Provider names.
const (
	ProviderRuleBased = "rule_based"
	ProviderAnthropic = "anthropic"
)

// Model tags reported in Explanation.ModelUsed when no model produced the text.
const (
	ModelRuleBased = "fallback-rule-based"
	ModelNoAPIKey  = "fallback-no-api-key"
	fallbackPrefix = "fallback"
	errorTagLimit  = 100
)

// New returns the explainer selected by cfg. An anthropic provider without an
// API key yields a rule-based explainer tagged fallback-no-api-key.
func New(cfg domain.ExplanationConfig, logger *logrus.Logger) domain.Explainer {
	switch strings.ToLower(cfg.Provider) {
	case ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			logger.Warn("Anthropic explanation provider selected without an API key, using rule-based text")
			return &RuleBased{modelUsed: ModelNoAPIKey}
		}
		return NewAnthropicExplainer(cfg, logger)
	default:
		return NewRuleBased()
	}
}

// Fallback builds the deterministic explanation for in, tagged with modelUsed.
func Fallback(in domain.ExplanationInput, modelUsed string) domain.Explanation {
	mechanism := in.Pathway
	if mechanism == "" {
		mechanism = fmt.Sprintf("%s is involved in the metabolism of %s. The %s diplotype results in %s metabolizer status, which affects how the body processes this medication.",
			in.Gene, in.Drug, in.Diplotype, in.Phenotype)
	}

	effects := make([]string, 0, len(in.Variants))
	for _, v := range in.Variants {
		effects = append(effects, fmt.Sprintf("%s (%s): %s allele", v.RSID, v.StarAllele, v.FunctionalEffect))
	}
	if len(effects) == 0 {
		effects = append(effects, fmt.Sprintf("No pharmacogenomic variants detected in %s; wildtype (*1/*1) assumed", in.Gene))
	}

	return domain.Explanation{
		Summary: fmt.Sprintf("Patient carries %s %s diplotype, classified as %s metabolizer. For %s, this results in a risk assessment of '%s' with %s severity.",
			in.Gene, in.Diplotype, in.Phenotype, in.Drug, in.RiskLabel, in.Severity),
		Mechanism:              mechanism,
		VariantSpecificEffects: effects,
		PatientFriendlySummary: patientSummary(in),
		Citations: []string{
			fmt.Sprintf("CPIC Guideline for %s and %s Therapy", in.Gene, in.Drug),
			fmt.Sprintf("PharmGKB: %s-%s drug-gene interaction", in.Gene, in.Drug),
		},
		ModelUsed: modelUsed,
	}
}

func patientSummary(in domain.ExplanationInput) string {
	processing, speed := "processes", "normally"
	switch {
	case in.Phenotype.ReducedActivity():
		processing, speed = "may have difficulty processing", "slower than normal"
	case in.Phenotype.ElevatedActivity():
		speed = "faster than normal"
	}
	advice := "Your doctor may need to adjust your dose or consider an alternative medication."
	if in.RiskLabel == domain.SAFE {
		advice = "Standard dosing should work well for you."
	}
	return fmt.Sprintf("Your genetic test shows that your body %s the medication %s %s. %s", processing, in.Drug, speed, advice)
}

// ErrorModelTag renders err as a fallback-error model tag.
func ErrorModelTag(err error) string {
	return "fallback-error: " + truncate(err.Error(), errorTagLimit)
}

// IsGenerated reports whether a model, not the fallback, produced e.
func IsGenerated(e domain.Explanation) bool {
	return e.ModelUsed != "" && !strings.HasPrefix(e.ModelUsed, fallbackPrefix)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
