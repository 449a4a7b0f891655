// Package adapters - unified types for provider-specific request handling.
//
// DESIGN: Adapters translate between wire formats and the pipeline's
// provider-neutral view of a request:
//   - prompt text extraction (for the firewall, the estimator, and the cache key)
//   - tool declaration extraction (for the firewall)
//   - model extraction/override and usage extraction
//
// All types needed by adapters and the pipeline are defined here. This
// eliminates circular imports and provides clear contracts.
package adapters

// =============================================================================
// PROVIDER TYPES - Used for identification and routing
// =============================================================================

// Provider identifies which LLM provider format is being used.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderBedrock   Provider = "bedrock"
	ProviderUnknown   Provider = "unknown"
)

// String returns the provider name.
func (p Provider) String() string {
	return string(p)
}

// ProviderFromString converts a string to a Provider type.
func ProviderFromString(s string) Provider {
	switch s {
	case "anthropic":
		return ProviderAnthropic
	case "openai":
		return ProviderOpenAI
	case "bedrock":
		return ProviderBedrock
	default:
		return ProviderUnknown
	}
}

// =============================================================================
// EXTRACTION TYPES
// =============================================================================

// ToolDeclaration is a tool the caller offered to the model. The firewall
// scans names and descriptions alongside the prompt text.
type ToolDeclaration struct {
	Name        string
	Description string
}

// UsageInfo holds token usage extracted from an API response.
type UsageInfo struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// =============================================================================
// ADAPTER INTERFACE
// =============================================================================

// Adapter provides format-specific extraction and patching for one provider
// request shape.
type Adapter interface {
	// Name returns the provider name ("anthropic", "openai", ...).
	Name() string

	// Provider returns the provider identifier.
	Provider() Provider

	// ExtractModel returns the target model declared in the request body.
	ExtractModel(body []byte) string

	// ExtractPromptText returns best-effort prompt text from the request.
	// ok is false when no known request shape was recognized; callers treat
	// that as "nothing to scan" rather than an error.
	ExtractPromptText(body []byte) (text string, ok bool)

	// ExtractToolDeclarations returns declared tools, if any.
	ExtractToolDeclarations(body []byte) []ToolDeclaration

	// ExtractMaxTokens returns the declared output token budget, 0 if absent.
	ExtractMaxTokens(body []byte) int

	// OverrideModel rewrites the model field in the request body.
	OverrideModel(body []byte, model string) ([]byte, error)

	// ExtractUsage pulls billed token counts from a provider response body.
	ExtractUsage(respBody []byte) UsageInfo
}
