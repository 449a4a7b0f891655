// Package firewall implements inbound prompt threat scanning and containment.
//
// DESIGN: The stage extracts best-effort prompt text (done upstream by the
// provider adapter), scans it against a weighted regex rule set, and maps the
// aggregate risk score to a containment action. Scanning failures are
// fail-open: security unavailability must not become a denial-of-service
// vector for legitimate traffic.
package firewall

import "time"

// Action is the firewall's containment decision for a detected threat.
type Action string

const (
	// ActionAllow permits the request to proceed.
	ActionAllow Action = "allow"

	// ActionSandbox permits the request but tags it for extra monitoring.
	ActionSandbox Action = "sandbox"

	// ActionHumanReview defers the request to a pending review queue; the
	// provider is never called.
	ActionHumanReview Action = "human_review"

	// ActionBlock rejects the request outright.
	ActionBlock Action = "block"
)

// Threat categories produced by the built-in rule set.
const (
	CategoryPromptInjection  = "prompt_injection"
	CategoryJailbreak        = "jailbreak"
	CategoryDataExfiltration = "data_exfiltration"
	CategoryMaliciousCode    = "malicious_code"
	CategoryCredentialTheft  = "credential_theft"
)

// Verdict is the outcome of scanning one request.
type Verdict struct {
	Blocked           bool    `json:"is_blocked"`
	Confidence        float64 `json:"confidence"`
	ThreatCategory    string  `json:"threat_category,omitempty"`
	RiskScore         float64 `json:"risk_score"`
	ContainmentAction Action  `json:"containment_action"`
	MatchedPatterns   int     `json:"matched_patterns"`

	// ReviewID is set when ContainmentAction is ActionHumanReview.
	ReviewID string `json:"review_id,omitempty"`
}

// PendingReview is a request parked for human review.
type PendingReview struct {
	ID          string    `json:"id"`
	RequestID   string    `json:"request_id"`
	UserID      string    `json:"user_id"`
	WorkspaceID string    `json:"workspace_id"`
	Category    string    `json:"category"`
	RiskScore   float64   `json:"risk_score"`
	PromptText  string    `json:"prompt_text"`
	CreatedAt   time.Time `json:"created_at"`
}
