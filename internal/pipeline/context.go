// Package pipeline sequences the admission stages for one request: firewall,
// budget reservation, cache, proxy execution, moderation, and analytics.
package pipeline

import (
	"net/http"
	"time"

	"github.com/aegisgw/admission-gateway/internal/adapters"
	"github.com/aegisgw/admission-gateway/internal/budget"
	"github.com/aegisgw/admission-gateway/internal/firewall"
	"github.com/aegisgw/admission-gateway/internal/moderation"
	"github.com/aegisgw/admission-gateway/internal/proxy"
)

// RequestContext carries one request through the pipeline. It is created by
// the HTTP handler, mutated in place by each stage, and discarded at response
// time. Never shared across requests.
type RequestContext struct {
	RequestID   string
	StartTime   time.Time
	UserID      string
	WorkspaceID string
	BudgetID    string

	Provider adapters.Provider
	Adapter  adapters.Adapter
	Model    string
	Path     string
	Header   http.Header
	Body     []byte

	// Extracted request features.
	PromptText string
	Tools      []adapters.ToolDeclaration
	MaxTokens  int

	// Per-request overrides.
	RetryConfig    proxy.RetryConfig
	CacheExactOnly bool
	Moderation     moderation.Config

	// Stage results, filled as the pipeline advances.
	FirewallVerdict *firewall.Verdict
	BudgetOutcome   *budget.Outcome
	Sandboxed       bool
}

// Response is the pipeline's final answer, written by the HTTP handler.
type Response struct {
	StatusCode int
	Body       []byte

	// Extra response headers (cache status, moderation flags, retry-after).
	Header http.Header
}

func newResponse(status int, body []byte) *Response {
	return &Response{StatusCode: status, Body: body, Header: http.Header{}}
}
