package budget

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog/log"

	"github.com/aegisgw/admission-gateway/internal/adapters"
	"github.com/aegisgw/admission-gateway/internal/config"
)

// Estimate is the pre-flight cost projection for a pending request.
type Estimate struct {
	InputTokens  int
	OutputTokens int // assumed, from max_tokens or a default
	Cost         float64
}

// Estimator projects token counts and monetary cost from a request payload.
// It uses tiktoken when an encoding is available for the model and falls back
// to a size-based heuristic otherwise.
type Estimator struct {
	mu        sync.Mutex
	encodings map[string]*tiktoken.Tiktoken
}

// NewEstimator creates a cost estimator.
func NewEstimator() *Estimator {
	return &Estimator{encodings: make(map[string]*tiktoken.Tiktoken)}
}

// Estimate projects the cost of sending promptText to model. maxTokens is the
// request's declared output budget (0 means unknown).
func (e *Estimator) Estimate(promptText, model string, maxTokens int) Estimate {
	inputTokens := e.countTokens(promptText, model)

	outputTokens := maxTokens
	if outputTokens <= 0 {
		outputTokens = config.DefaultMaxOutputTokens
	}

	pricing := GetModelPricing(model)
	return Estimate{
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		Cost:         CalculateCost(inputTokens, outputTokens, pricing),
	}
}

// ActualCost computes the true charge from billed usage.
func (e *Estimator) ActualCost(model string, usage adapters.UsageInfo) float64 {
	return CalculateCost(usage.InputTokens, usage.OutputTokens, GetModelPricing(model))
}

func (e *Estimator) countTokens(text, model string) int {
	if text == "" {
		return 0
	}

	enc := e.encodingFor(model)
	if enc == nil {
		// Heuristic fallback: ~4 chars per token.
		return len(text) / config.TokenEstimateRatio
	}
	return len(enc.Encode(text, nil, nil))
}

func (e *Estimator) encodingFor(model string) *tiktoken.Tiktoken {
	e.mu.Lock()
	defer e.mu.Unlock()

	if enc, ok := e.encodings[model]; ok {
		return enc
	}

	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Non-OpenAI models have no registered encoding; cl100k_base is a
		// close enough approximation for estimation purposes.
		enc, err = tiktoken.GetEncoding(tiktoken.MODEL_CL100K_BASE)
		if err != nil {
			log.Debug().Err(err).Str("model", model).Msg("token encoding unavailable")
			e.encodings[model] = nil
			return nil
		}
	}
	e.encodings[model] = enc
	return enc
}
