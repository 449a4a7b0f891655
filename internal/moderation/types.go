// Package moderation scans provider response text and applies the configured
// moderation action before the response reaches the caller.
package moderation

// Action is what happens when moderated content scores above the threshold.
type Action string

const (
	// ActionAllow logs the violation but returns the response unchanged.
	ActionAllow Action = "allow"

	// ActionAnnotate flags the response via side-channel headers without
	// altering the body.
	ActionAnnotate Action = "annotate"

	// ActionRedact substitutes sanitized text into the original response
	// shape so schema-aware callers still parse it.
	ActionRedact Action = "redact"

	// ActionBlock replaces the body with a generic rejection payload.
	ActionBlock Action = "block"
)

// ParseAction maps a header/config value to an Action, defaulting to block.
func ParseAction(s string) Action {
	switch Action(s) {
	case ActionAllow, ActionAnnotate, ActionRedact, ActionBlock:
		return Action(s)
	default:
		return ActionBlock
	}
}

// Config controls one moderation pass. Callers may override the server
// defaults per request via headers.
type Config struct {
	Enabled   bool
	Threshold float64
	Action    Action
}

// Result is the outcome of moderating one response.
type Result struct {
	Blocked             bool     `json:"blocked"`
	Action              Action   `json:"action"`
	Score               float64  `json:"score"`
	ViolationCategories []string `json:"violation_categories,omitempty"`

	// SanitizedBody is the replacement response body when the action
	// altered it (redact or block); nil means pass the original through.
	SanitizedBody []byte `json:"-"`
}

// Applied reports whether the response was flagged at all.
func (r Result) Applied() bool {
	return len(r.ViolationCategories) > 0
}
