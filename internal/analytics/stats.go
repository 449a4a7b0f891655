package analytics

import "sync/atomic"

// Stats is the in-process counter set served by the stats endpoint.
// Cost accumulates in integer nanodollars so concurrent adds stay atomic.
type Stats struct {
	totalRequests    atomic.Int64
	successes        atomic.Int64
	cacheHits        atomic.Int64
	firewallBlocks   atomic.Int64
	budgetDenials    atomic.Int64
	providerErrors   atomic.Int64
	circuitRejects   atomic.Int64
	moderationBlocks atomic.Int64

	inputTokens  atomic.Int64
	outputTokens atomic.Int64
	costNanoUSD  atomic.Int64
	durationMS   atomic.Int64
}

// NewStats creates a zeroed counter set.
func NewStats() *Stats { return &Stats{} }

// Observe folds one event into the counters.
func (s *Stats) Observe(event RequestEvent) {
	s.totalRequests.Add(1)
	s.durationMS.Add(event.DurationMS)
	s.inputTokens.Add(int64(event.InputTokens))
	s.outputTokens.Add(int64(event.OutputTokens))
	s.costNanoUSD.Add(int64(event.CostUSD * 1e9))

	switch event.Outcome {
	case OutcomeSuccess:
		s.successes.Add(1)
	case OutcomeCacheHit:
		s.cacheHits.Add(1)
	case OutcomeFirewallBlock, OutcomeFirewallReview:
		s.firewallBlocks.Add(1)
	case OutcomeBudgetDenied:
		s.budgetDenials.Add(1)
	case OutcomeProviderError:
		s.providerErrors.Add(1)
	case OutcomeCircuitOpen:
		s.circuitRejects.Add(1)
	case OutcomeModerationBlock:
		s.moderationBlocks.Add(1)
	}
}

// Snapshot is a point-in-time copy of the counters for serialization.
type Snapshot struct {
	TotalRequests    int64   `json:"total_requests"`
	Successes        int64   `json:"successes"`
	CacheHits        int64   `json:"cache_hits"`
	FirewallBlocks   int64   `json:"firewall_blocks"`
	BudgetDenials    int64   `json:"budget_denials"`
	ProviderErrors   int64   `json:"provider_errors"`
	CircuitRejects   int64   `json:"circuit_rejects"`
	ModerationBlocks int64   `json:"moderation_blocks"`
	InputTokens      int64   `json:"input_tokens"`
	OutputTokens     int64   `json:"output_tokens"`
	TotalCostUSD     float64 `json:"total_cost_usd"`
	AvgDurationMS    float64 `json:"avg_duration_ms"`
	CacheHitRate     float64 `json:"cache_hit_rate"`
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() Snapshot {
	total := s.totalRequests.Load()
	snap := Snapshot{
		TotalRequests:    total,
		Successes:        s.successes.Load(),
		CacheHits:        s.cacheHits.Load(),
		FirewallBlocks:   s.firewallBlocks.Load(),
		BudgetDenials:    s.budgetDenials.Load(),
		ProviderErrors:   s.providerErrors.Load(),
		CircuitRejects:   s.circuitRejects.Load(),
		ModerationBlocks: s.moderationBlocks.Load(),
		InputTokens:      s.inputTokens.Load(),
		OutputTokens:     s.outputTokens.Load(),
		TotalCostUSD:     float64(s.costNanoUSD.Load()) / 1e9,
	}
	if total > 0 {
		snap.AvgDurationMS = float64(s.durationMS.Load()) / float64(total)
		snap.CacheHitRate = float64(snap.CacheHits) / float64(total)
	}
	return snap
}
