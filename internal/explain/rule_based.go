package explain

import (
	"context"

	"github.com/pharmaguard-mcp-server/internal/domain"
)

// RuleBased renders the deterministic explanation.
type RuleBased struct {
	modelUsed string
}

// NewRuleBased creates a RuleBased explainer.
func NewRuleBased() *RuleBased {
	return &RuleBased{modelUsed: ModelRuleBased}
}

// Explain implements domain.Explainer. It never fails.
func (r *RuleBased) Explain(_ context.Context, in domain.ExplanationInput) (domain.Explanation, error) {
	return Fallback(in, r.modelUsed), nil
}

// Provider implements domain.Explainer.
func (r *RuleBased) Provider() string {
	return ProviderRuleBased
}
