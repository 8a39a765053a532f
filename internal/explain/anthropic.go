package explain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"github.com/sirupsen/logrus"

	"github.com/pharmaguard-mcp-server/internal/domain"
)

// Defaults for the Anthropic explainer.
const (
	DefaultAnthropicModel = "claude-sonnet-4-5-20250929"
	DefaultMaxTokens      = 1024
	DefaultTimeout        = 30 * time.Second
	partialSummaryLimit   = 500
)

// messageCreator is the slice of the Anthropic client the explainer needs.
type messageCreator interface {
	CreateMessages(ctx context.Context, request anthropic.MessagesRequest) (anthropic.MessagesResponse, error)
}

// AnthropicExplainer asks an Anthropic model for a structured explanation.
type AnthropicExplainer struct {
	client    messageCreator
	model     string
	maxTokens int
	timeout   time.Duration
	logger    *logrus.Logger
}

// NewAnthropicExplainer creates an explainer backed by the Anthropic Messages API.
func NewAnthropicExplainer(cfg domain.ExplanationConfig, logger *logrus.Logger) *AnthropicExplainer {
	return newAnthropicExplainer(anthropic.NewClient(cfg.AnthropicAPIKey), cfg, logger)
}

func newAnthropicExplainer(client messageCreator, cfg domain.ExplanationConfig, logger *logrus.Logger) *AnthropicExplainer {
	e := &AnthropicExplainer{
		client:    client,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		timeout:   cfg.Timeout,
		logger:    logger,
	}
	if e.model == "" {
		e.model = DefaultAnthropicModel
	}
	if e.maxTokens <= 0 {
		e.maxTokens = DefaultMaxTokens
	}
	if e.timeout <= 0 {
		e.timeout = DefaultTimeout
	}
	return e
}

// Provider implements domain.Explainer.
func (e *AnthropicExplainer) Provider() string {
	return ProviderAnthropic
}

// modelReply is the JSON object the prompt asks for. Missing fields are
// filled from the rule-based text.
type modelReply struct {
	Summary                *string  `json:"summary"`
	Mechanism              *string  `json:"mechanism"`
	VariantSpecificEffects []string `json:"variant_specific_effects"`
	PatientFriendlySummary *string  `json:"patient_friendly_summary"`
	Citations              []string `json:"citations"`
}

// Explain implements domain.Explainer. Provider failures are folded into a
// fallback explanation; the returned error is always nil.
func (e *AnthropicExplainer) Explain(ctx context.Context, in domain.ExplanationInput) (domain.Explanation, error) {
	fallback := Fallback(in, ModelRuleBased)

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	prompt := buildPrompt(in)
	temperature := float32(0.3)
	resp, err := e.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(e.model),
		MaxTokens:   e.maxTokens,
		Temperature: &temperature,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &prompt},
			}},
		},
	})
	if err != nil {
		e.logger.WithFields(logrus.Fields{
			"drug":  in.Drug,
			"model": e.model,
		}).WithError(err).Warn("Anthropic explanation request failed")
		fallback.ModelUsed = ErrorModelTag(err)
		return fallback, nil
	}

	raw := responseText(resp)
	if raw == "" {
		fallback.ModelUsed = ErrorModelTag(errors.New("empty response from model"))
		return fallback, nil
	}

	var reply modelReply
	if err := json.Unmarshal([]byte(stripCodeFences(raw)), &reply); err != nil {
		e.logger.WithField("drug", in.Drug).WithError(err).Debug("Model reply was not JSON, keeping raw text")
		partial := fallback
		partial.Summary = truncate(strings.TrimSpace(raw), partialSummaryLimit)
		partial.ModelUsed = e.model + "-partial"
		return partial, nil
	}

	out := fallback
	out.ModelUsed = e.model
	if reply.Summary != nil {
		out.Summary = *reply.Summary
	}
	if reply.Mechanism != nil {
		out.Mechanism = *reply.Mechanism
	}
	if reply.VariantSpecificEffects != nil {
		out.VariantSpecificEffects = reply.VariantSpecificEffects
	}
	if reply.PatientFriendlySummary != nil {
		out.PatientFriendlySummary = *reply.PatientFriendlySummary
	}
	if reply.Citations != nil {
		out.Citations = reply.Citations
	}
	return out, nil
}

func responseText(resp anthropic.MessagesResponse) string {
	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			b.WriteString(*block.Text)
		}
	}
	return strings.TrimSpace(b.String())
}

// stripCodeFences removes a surrounding markdown code fence and an optional
// json language tag.
func stripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		if i := strings.Index(text, "\n"); i >= 0 {
			text = text[i+1:]
		} else {
			text = text[3:]
		}
	}
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimPrefix(text, "json")
	return strings.TrimSpace(text)
}

func buildPrompt(in domain.ExplanationInput) string {
	var variants strings.Builder
	for _, v := range in.Variants {
		fmt.Fprintf(&variants, "  - %s: %s %s (effect: %s)\n", v.RSID, v.Gene, v.StarAllele, v.FunctionalEffect)
	}
	if variants.Len() == 0 {
		variants.WriteString("  - No specific variants detected (wildtype assumed)\n")
	}

	pathway := in.Pathway
	if pathway == "" {
		pathway = "Unknown metabolic pathway"
	}

	return fmt.Sprintf(`You are a clinical pharmacogenomics expert. Generate a detailed clinical explanation for the following patient analysis.

PATIENT DATA:
- Drug: %s (%s)
- Primary Gene: %s
- Diplotype: %s
- Phenotype: %s
- Risk Assessment: %s (Severity: %s)
- Metabolic Pathway: %s
- Current Dosing Recommendation: %s

DETECTED VARIANTS:
%s
Please provide your response as a JSON object with EXACTLY these fields:
{
  "summary": "A 2-3 sentence clinical summary explaining this patient's pharmacogenomic result and its clinical significance.",
  "mechanism": "A detailed paragraph explaining the biological mechanism: how the gene affects the drug, what the variants do at the molecular level, and why this leads to the predicted risk.",
  "variant_specific_effects": ["One sentence per variant explaining its specific molecular effect"],
  "patient_friendly_summary": "A 2-3 sentence explanation in plain language that a patient with no medical background could understand. Avoid jargon.",
  "citations": ["CPIC Guideline citation", "PharmGKB reference", "Any relevant clinical study"]
}

IMPORTANT: Respond ONLY with the JSON object, no markdown formatting, no extra text.`,
		in.Drug, in.DrugClass, in.Gene, in.Diplotype, in.Phenotype, in.RiskLabel, in.Severity,
		pathway, in.DosingRecommendation, variants.String())
}
