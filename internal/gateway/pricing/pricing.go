package pricing

import (
	"context"
	"strings"

	"github.com/GTFB/forlifely-sub004/internal/shared/config"
	"github.com/GTFB/forlifely-sub004/internal/shared/models"
)

// Flat per-token fallback rates in USD, applied when no pricing row exists
// for (provider, model). The rates differ per provider.
var defaultPerTokenUSD = map[string]float64{
	"google": 0.0000005,
	"groq":   0.0000001,
}

// Store is the pricing read contract against the relational store.
type Store interface {
	GetModelPricing(ctx context.Context, provider, model string) (*models.ModelPricing, error)
}

// Table resolves per-1k-token rates: config overrides first, then the
// database, then the flat per-provider default.
type Table struct {
	store     Store
	overrides map[string]models.ModelPricing
}

// New creates a pricing table. store may be nil (tests, degraded mode).
func New(store Store, overrides []config.PricingOverride) *Table {
	t := &Table{
		store:     store,
		overrides: make(map[string]models.ModelPricing),
	}
	for _, o := range overrides {
		t.overrides[o.Provider+"/"+o.Model] = models.ModelPricing{
			Provider:          o.Provider,
			Model:             o.Model,
			InputPer1kTokens:  o.InputPer1kTokens,
			OutputPer1kTokens: o.OutputPer1kTokens,
		}
	}
	return t
}

// Cost computes promptTokens*inputRate + completionTokens*outputRate for
// the model, falling back to the provider's flat per-token rate when no
// pricing entry exists.
func (t *Table) Cost(ctx context.Context, provider, model string, promptTokens, completionTokens int) float64 {
	if p, ok := t.overrides[provider+"/"+model]; ok {
		return perThousand(p, promptTokens, completionTokens)
	}

	if t.store != nil {
		if p, err := t.store.GetModelPricing(ctx, provider, model); err == nil {
			return perThousand(*p, promptTokens, completionTokens)
		}
	}

	flat := defaultPerTokenUSD[provider]
	return float64(promptTokens+completionTokens) * flat
}

func perThousand(p models.ModelPricing, promptTokens, completionTokens int) float64 {
	inputCost := float64(promptTokens) / 1000.0 * p.InputPer1kTokens
	outputCost := float64(completionTokens) / 1000.0 * p.OutputPer1kTokens
	return inputCost + outputCost
}

// EstimateTokens approximates a token count by whitespace word split. Not a
// true tokenizer; good enough for budget accounting.
func EstimateTokens(s string) int {
	return len(strings.Fields(s))
}

// EstimateAudioTokens maps audio duration to a prompt-token equivalent for
// billing. A zero duration estimate yields zero cost.
func EstimateAudioTokens(seconds float64) int {
	if seconds <= 0 {
		return 0
	}
	return int(seconds)
}
