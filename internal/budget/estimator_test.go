package budget

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aegisgw/admission-gateway/internal/adapters"
	"github.com/aegisgw/admission-gateway/internal/config"
)

func TestEstimate_CountsInputTokens(t *testing.T) {
	e := NewEstimator()

	est := e.Estimate("The quick brown fox jumps over the lazy dog.", "gpt-4o", 100)
	assert.Greater(t, est.InputTokens, 0)
	assert.Equal(t, 100, est.OutputTokens)
	assert.Greater(t, est.Cost, 0.0)
}

func TestEstimate_EmptyPrompt(t *testing.T) {
	e := NewEstimator()

	est := e.Estimate("", "gpt-4o", 100)
	assert.Equal(t, 0, est.InputTokens)
}

func TestEstimate_DefaultOutputTokens(t *testing.T) {
	e := NewEstimator()

	est := e.Estimate("hello", "gpt-4o", 0)
	assert.Equal(t, config.DefaultMaxOutputTokens, est.OutputTokens)
}

func TestEstimate_UnknownModelStillEstimates(t *testing.T) {
	e := NewEstimator()

	// No encoding registered for Claude models; the cl100k fallback (or the
	// size heuristic) must still produce a non-zero count.
	est := e.Estimate("The quick brown fox jumps over the lazy dog.", "claude-sonnet-4-5", 100)
	assert.Greater(t, est.InputTokens, 0)
}

func TestEstimate_LargerOutputCostsMore(t *testing.T) {
	e := NewEstimator()

	small := e.Estimate("hello", "gpt-4o", 10)
	large := e.Estimate("hello", "gpt-4o", 10000)
	assert.Greater(t, large.Cost, small.Cost)
}

func TestActualCost(t *testing.T) {
	e := NewEstimator()

	usage := adapters.UsageInfo{InputTokens: 1000, OutputTokens: 500}
	cost := e.ActualCost("gpt-4o", usage)
	expected := (1000.0/1_000_000)*2.5 + (500.0/1_000_000)*10
	assert.InDelta(t, expected, cost, 0.0001)
}
