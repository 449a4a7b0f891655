// Package analytics records per-request usage, cost, and latency on a
// fire-and-forget basis: recording never blocks or fails the request path.
package analytics

import "time"

// Outcome classifies how a request ended.
type Outcome string

const (
	OutcomeSuccess         Outcome = "success"
	OutcomeCacheHit        Outcome = "cache_hit"
	OutcomeFirewallBlock   Outcome = "firewall_block"
	OutcomeFirewallReview  Outcome = "firewall_review"
	OutcomeBudgetDenied    Outcome = "budget_denied"
	OutcomeProviderError   Outcome = "provider_error"
	OutcomeCircuitOpen     Outcome = "circuit_open"
	OutcomeModerationBlock Outcome = "moderation_block"
)

// RequestEvent is one request's analytics record.
type RequestEvent struct {
	RequestID    string    `json:"request_id"`
	Timestamp    time.Time `json:"timestamp"`
	UserID       string    `json:"user_id,omitempty"`
	WorkspaceID  string    `json:"workspace_id,omitempty"`
	Provider     string    `json:"provider"`
	Model        string    `json:"model"`
	Outcome      Outcome   `json:"outcome"`
	StatusCode   int       `json:"status_code"`
	AttemptsUsed int       `json:"attempts_used,omitempty"`
	DurationMS   int64     `json:"duration_ms"`

	InputTokens  int     `json:"input_tokens,omitempty"`
	OutputTokens int     `json:"output_tokens,omitempty"`
	CostUSD      float64 `json:"cost_usd,omitempty"`

	CacheHit         bool    `json:"cache_hit,omitempty"`
	CacheSimilarity  float64 `json:"cache_similarity,omitempty"`
	RiskScore        float64 `json:"risk_score,omitempty"`
	ModerationAction string  `json:"moderation_action,omitempty"`
}
