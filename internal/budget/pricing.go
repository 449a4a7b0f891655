// Package budget implements pre-flight cost estimation and two-phase budget
// reservations (hold -> confirm/release) against a ledger.
package budget

import (
	"regexp"
	"sort"
	"strings"

	"github.com/aegisgw/admission-gateway/internal/adapters"
)

// ModelPricing holds per-million-token pricing for a model.
type ModelPricing struct {
	InputPerMTok  float64 // USD per million input tokens
	OutputPerMTok float64 // USD per million output tokens
}

type pricedModel struct {
	Model    string
	Provider adapters.Provider
	Pricing  ModelPricing
}

// modelPricingTable maps model names to their pricing.
var modelPricingTable = map[string]pricedModel{
	// Claude 4.x (dated)
	"claude-opus-4-6":            {Provider: adapters.ProviderAnthropic, Pricing: ModelPricing{InputPerMTok: 5, OutputPerMTok: 25}},
	"claude-opus-4-0-20250514":   {Provider: adapters.ProviderAnthropic, Pricing: ModelPricing{InputPerMTok: 15, OutputPerMTok: 75}},
	"claude-sonnet-4-5-20250929": {Provider: adapters.ProviderAnthropic, Pricing: ModelPricing{InputPerMTok: 3, OutputPerMTok: 15}},
	"claude-sonnet-4-0-20250514": {Provider: adapters.ProviderAnthropic, Pricing: ModelPricing{InputPerMTok: 3, OutputPerMTok: 15}},
	"claude-haiku-4-5-20251001":  {Provider: adapters.ProviderAnthropic, Pricing: ModelPricing{InputPerMTok: 1, OutputPerMTok: 5}},

	// Claude short aliases
	"claude-sonnet-4-5": {Provider: adapters.ProviderAnthropic, Pricing: ModelPricing{InputPerMTok: 3, OutputPerMTok: 15}},
	"claude-sonnet-4-0": {Provider: adapters.ProviderAnthropic, Pricing: ModelPricing{InputPerMTok: 3, OutputPerMTok: 15}},
	"claude-haiku-4-5":  {Provider: adapters.ProviderAnthropic, Pricing: ModelPricing{InputPerMTok: 1, OutputPerMTok: 5}},

	// Claude 3.x
	"claude-3-5-sonnet-20241022": {Provider: adapters.ProviderAnthropic, Pricing: ModelPricing{InputPerMTok: 3, OutputPerMTok: 15}},
	"claude-3-5-haiku-20241022":  {Provider: adapters.ProviderAnthropic, Pricing: ModelPricing{InputPerMTok: 1, OutputPerMTok: 5}},
	"claude-3-haiku-20240307":    {Provider: adapters.ProviderAnthropic, Pricing: ModelPricing{InputPerMTok: 0.25, OutputPerMTok: 1.25}},

	// OpenAI
	"gpt-4o":                 {Provider: adapters.ProviderOpenAI, Pricing: ModelPricing{InputPerMTok: 2.5, OutputPerMTok: 10}},
	"gpt-4o-2024-11-20":      {Provider: adapters.ProviderOpenAI, Pricing: ModelPricing{InputPerMTok: 2.5, OutputPerMTok: 10}},
	"gpt-4o-mini":            {Provider: adapters.ProviderOpenAI, Pricing: ModelPricing{InputPerMTok: 0.15, OutputPerMTok: 0.60}},
	"gpt-4o-mini-2024-07-18": {Provider: adapters.ProviderOpenAI, Pricing: ModelPricing{InputPerMTok: 0.15, OutputPerMTok: 0.60}},
}

// defaultPricing is used for unknown models (conservative to prevent silent overspend).
var defaultPricing = ModelPricing{InputPerMTok: 15, OutputPerMTok: 75}

// modelFamilyPricing maps model family prefixes to pricing.
// Longest prefix wins in lookup to avoid e.g. "claude-opus" ($15) matching
// when "claude-opus-4-6" ($5) is the correct match.
var modelFamilyPricing = map[string]ModelPricing{
	// Version-specific families (must win over broad families)
	"claude-opus-4-6":   {InputPerMTok: 5, OutputPerMTok: 25},
	"claude-opus-4-0":   {InputPerMTok: 15, OutputPerMTok: 75},
	"claude-sonnet-4-5": {InputPerMTok: 3, OutputPerMTok: 15},
	"claude-sonnet-4-0": {InputPerMTok: 3, OutputPerMTok: 15},
	"claude-haiku-4-5":  {InputPerMTok: 1, OutputPerMTok: 5},
	"claude-3-5-sonnet": {InputPerMTok: 3, OutputPerMTok: 15},
	"claude-3-5-haiku":  {InputPerMTok: 1, OutputPerMTok: 5},
	"claude-3-haiku":    {InputPerMTok: 0.25, OutputPerMTok: 1.25},

	// Broad families (fallback)
	"claude-opus":   {InputPerMTok: 15, OutputPerMTok: 75},
	"claude-sonnet": {InputPerMTok: 3, OutputPerMTok: 15},
	"claude-haiku":  {InputPerMTok: 1, OutputPerMTok: 5},
	"gpt-4o-mini":   {InputPerMTok: 0.15, OutputPerMTok: 0.60},
	"gpt-4o":        {InputPerMTok: 2.5, OutputPerMTok: 10},
	"gpt-4":         {InputPerMTok: 10, OutputPerMTok: 30},
}

// GetModelPricing returns pricing for a model.
// Tries exact match, then prefix/family match (longest prefix wins), then default.
func GetModelPricing(model string) ModelPricing {
	// Exact match
	if p, ok := modelPricingTable[model]; ok {
		return p.Pricing
	}

	// Family/prefix match (longest prefix wins)
	bestPrefix := ""
	var bestPricing ModelPricing
	for prefix, p := range modelFamilyPricing {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(bestPrefix) {
			bestPrefix = prefix
			bestPricing = p
		}
	}
	if bestPrefix != "" {
		return bestPricing
	}

	return defaultPricing
}

// CalculateCost computes the cost in USD from token counts.
func CalculateCost(inputTokens, outputTokens int, pricing ModelPricing) float64 {
	inputCost := float64(inputTokens) / 1_000_000 * pricing.InputPerMTok
	outputCost := float64(outputTokens) / 1_000_000 * pricing.OutputPerMTok
	return inputCost + outputCost
}

// Alternative suggests a cheaper model for the same provider.
type Alternative struct {
	Model         string  `json:"model"`
	InputPerMTok  float64 `json:"input_per_mtok"`
	OutputPerMTok float64 `json:"output_per_mtok"`
}

// CheaperAlternatives returns same-provider models priced below the given
// model, cheapest first. Returned alongside 402 budget denials so callers can
// downgrade instead of failing.
func CheaperAlternatives(provider adapters.Provider, model string) []Alternative {
	current := GetModelPricing(model)

	seen := make(map[string]bool)
	var out []Alternative
	for name, p := range modelPricingTable {
		if p.Provider != provider || name == model {
			continue
		}
		// Skip dated variants; aliases are enough of a suggestion.
		if datedModel.MatchString(name) {
			continue
		}
		if p.Pricing.InputPerMTok < current.InputPerMTok && !seen[name] {
			seen[name] = true
			out = append(out, Alternative{
				Model:         name,
				InputPerMTok:  p.Pricing.InputPerMTok,
				OutputPerMTok: p.Pricing.OutputPerMTok,
			})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].InputPerMTok == out[j].InputPerMTok {
			return out[i].Model < out[j].Model
		}
		return out[i].InputPerMTok < out[j].InputPerMTok
	})
	return out
}

// datedModel matches snapshot suffixes like -20250929 or -2024-11-20.
var datedModel = regexp.MustCompile(`-(\d{8}|\d{4}-\d{2}-\d{2})$`)
