// Package recommendation derives structured risk categories from free-text
// guideline recommendations. Rules are evaluated top to bottom and the first
// matching rule wins.
package recommendation

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/pharmaguard-mcp-server/internal/domain"
)

// MaxExtracted caps the alternative-drug and monitoring lists.
const MaxExtracted = 5

// alternativeWindow is the number of characters scanned after an alternative marker.
const alternativeWindow = 200

// Outcome is the category triple derived from guideline text.
type Outcome struct {
	RiskLabel domain.RiskLabel
	Severity  domain.Severity
	Urgency   domain.Urgency
}

type rule struct {
	name       string
	triggers   []string
	escalators []string
	escalated  Outcome
	base       Outcome
}

var rules = []rule{
	{
		name: "toxic",
		triggers: []string{
			"avoid", "contraindicated", "do not use", "not recommended",
			"fatal", "life-threatening", "severe toxicity", "significantly increased risk",
			"extremely high risk", "potentially fatal", "serious adverse",
		},
		escalators: []string{"fatal", "life-threatening", "extremely", "contraindicated"},
		escalated:  Outcome{domain.TOXIC, domain.SEVERITY_CRITICAL, domain.EMERGENT},
		base:       Outcome{domain.TOXIC, domain.SEVERITY_HIGH, domain.URGENT},
	},
	{
		name: "ineffective",
		triggers: []string{
			"no therapeutic effect", "lack of efficacy", "reduced activation",
			"no response", "treatment failure", "insufficient response",
			"significantly reduced", "markedly reduced",
		},
		escalators: []string{"significantly", "markedly", "no "},
		escalated:  Outcome{domain.INEFFECTIVE, domain.SEVERITY_HIGH, domain.URGENT},
		base:       Outcome{domain.INEFFECTIVE, domain.SEVERITY_MODERATE, domain.SOON},
	},
	{
		name: "adjust_dosage",
		triggers: []string{
			"reduce dose", "lower dose", "decrease dose", "dose reduction",
			"increase dose", "higher dose", "alternative drug", "alternative agent",
			"consider an alternative", "select alternative", "use with caution",
			"increased risk", "moderate risk", "dose adjust", "reduced dose",
			"start with", "initiate at", "max dose", "maximum dose",
			"limit dose",
		},
		escalators: []string{"50%", "80%", "significantly"},
		escalated:  Outcome{domain.ADJUST_DOSAGE, domain.SEVERITY_HIGH, domain.URGENT},
		base:       Outcome{domain.ADJUST_DOSAGE, domain.SEVERITY_MODERATE, domain.SOON},
	},
	{
		name: "standard_therapy",
		triggers: []string{
			"standard", "no change", "normal", "use recommended",
			"initiate therapy", "no dose adjustment", "label-recommended",
			"no actionable", "no significant",
		},
		base: Outcome{domain.SAFE, domain.SEVERITY_NONE, domain.ROUTINE},
	},
}

var (
	defaultOutcome = Outcome{domain.ADJUST_DOSAGE, domain.SEVERITY_LOW, domain.ROUTINE}
	unknownOutcome = Outcome{domain.UNKNOWN_RISK, domain.SEVERITY_UNKNOWN, domain.ROUTINE}
)

// Classify derives a risk label, severity and urgency from a recommendation and
// its implication text.
func Classify(recommendation, implication string) Outcome {
	text := strings.ToLower(recommendation + " " + implication)

	for _, r := range rules {
		if !containsAny(text, r.triggers) {
			continue
		}
		if len(r.escalators) > 0 && containsAny(text, r.escalators) {
			return r.escalated
		}
		return r.base
	}

	if strings.TrimSpace(recommendation) != "" {
		return defaultOutcome
	}
	return unknownOutcome
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

var (
	alternativeMarkers = []string{"alternative:", "consider", "instead use", "switch to", "replace with"}
	drugNamePattern    = regexp.MustCompile(`(?i)\b[A-Za-z]+(?:ine|ol|pin|tan|pril|arin|ide|one|ate|cin|lin|pam)\b`)
)

// ExtractAlternatives pulls drug-like words that follow an alternative marker.
func ExtractAlternatives(text string) []string {
	runes := []rune(text)
	lower := make([]rune, len(runes))
	for i, r := range runes {
		lower[i] = unicode.ToLower(r)
	}
	lowerText := string(lower)

	var found []string
	for _, marker := range alternativeMarkers {
		byteIdx := strings.Index(lowerText, marker)
		if byteIdx < 0 {
			continue
		}
		start := len([]rune(lowerText[:byteIdx])) + len([]rune(marker))
		end := start + alternativeWindow
		if end > len(runes) {
			end = len(runes)
		}
		matches := drugNamePattern.FindAllString(string(runes[start:end]), MaxExtracted)
		for _, m := range matches {
			found = append(found, capitalize(m))
		}
	}
	return dedupeCapped(found)
}

type monitorTerm struct {
	keyword string
	label   string
}

var monitorTerms = []monitorTerm{
	{"inr", "INR monitoring"},
	{"cbc", "Complete blood count"},
	{"liver function", "Liver function tests"},
	{"lft", "Liver function tests"},
	{"ck level", "CK levels"},
	{"creatine kinase", "CK levels"},
	{"platelet", "Platelet function"},
	{"bleeding", "Monitor for bleeding"},
	{"renal", "Renal function"},
	{"therapeutic drug monitoring", "TDM"},
	{"ecg", "ECG monitoring"},
	{"qtc", "QTc monitoring"},
	{"blood pressure", "Blood pressure"},
	{"serum level", "Serum drug levels"},
	{"toxicity", "Monitor for toxicity signs"},
}

// ExtractMonitoring maps monitoring keywords in text to standard parameter labels.
func ExtractMonitoring(text string) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, term := range monitorTerms {
		if strings.Contains(lower, term.keyword) {
			found = append(found, term.label)
		}
	}
	return dedupeCapped(found)
}

func capitalize(word string) string {
	runes := []rune(strings.ToLower(word))
	if len(runes) == 0 {
		return word
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

func dedupeCapped(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, MaxExtracted)
	for _, item := range items {
		if seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
		if len(out) == MaxExtracted {
			break
		}
	}
	return out
}
