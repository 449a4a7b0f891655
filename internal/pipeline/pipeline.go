package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/aegisgw/admission-gateway/internal/analytics"
	"github.com/aegisgw/admission-gateway/internal/budget"
	"github.com/aegisgw/admission-gateway/internal/cache"
	"github.com/aegisgw/admission-gateway/internal/firewall"
	"github.com/aegisgw/admission-gateway/internal/moderation"
	"github.com/aegisgw/admission-gateway/internal/proxy"
	"github.com/aegisgw/admission-gateway/internal/utils"
)

// Executor abstracts the proxy executor so tests can count provider calls.
type Executor interface {
	Execute(ctx context.Context, target proxy.Target, path string, header http.Header, body []byte, retryCfg proxy.RetryConfig) (*proxy.Result, error)
}

// Pipeline owns the stage sequence and the per-request settle-once guarantee
// for budget reservations.
type Pipeline struct {
	firewall   *firewall.Stage
	budget     *budget.Stage
	cache      *cache.Stage
	executor   Executor
	moderation *moderation.Stage
	recorder   *analytics.Recorder

	targets map[string]proxy.Target // provider name -> target
	flight  singleflight.Group
}

// New creates a pipeline. Nil stages are skipped (stage disabled).
func New(fw *firewall.Stage, bd *budget.Stage, ca *cache.Stage, ex Executor, mo *moderation.Stage, rec *analytics.Recorder, targets map[string]proxy.Target) *Pipeline {
	return &Pipeline{
		firewall:   fw,
		budget:     bd,
		cache:      ca,
		executor:   ex,
		moderation: mo,
		recorder:   rec,
		targets:    targets,
	}
}

// Handle runs one request through the full stage sequence and returns the
// response to write. Every early exit releases any held reservation before
// returning; analytics records unconditionally as the last step.
func (p *Pipeline) Handle(ctx context.Context, rc *RequestContext) *Response {
	event := analytics.RequestEvent{
		RequestID:   rc.RequestID,
		Timestamp:   rc.StartTime,
		UserID:      rc.UserID,
		WorkspaceID: rc.WorkspaceID,
		Provider:    rc.Provider.String(),
		Model:       rc.Model,
	}
	defer func() {
		event.DurationMS = time.Since(rc.StartTime).Milliseconds()
		if p.recorder != nil {
			p.recorder.Record(event)
		}
	}()

	if resp := p.runFirewall(ctx, rc, &event); resp != nil {
		return resp
	}

	resp, held := p.runBudget(ctx, rc, &event)
	if resp != nil {
		return resp
	}

	// From here on any exit path must settle the hold exactly once.
	settled := !held
	release := func() {
		if settled {
			return
		}
		settled = true
		if err := p.budget.Release(ctx, rc.BudgetOutcome.Reservation.ID); err != nil {
			log.Error().Err(err).Str("request_id", rc.RequestID).Msg("pipeline: release reservation")
		}
	}
	defer release()

	if hit := p.lookupCache(rc); hit != nil {
		release()
		event.Outcome = analytics.OutcomeCacheHit
		event.CacheHit = true
		event.CacheSimilarity = hit.Similarity
		event.StatusCode = hit.StatusCode

		resp := newResponse(hit.StatusCode, hit.Body)
		resp.Header.Set("X-Cache", "HIT")
		return resp
	}

	result, shared, err := p.execute(ctx, rc)
	if err != nil {
		release()
		var openErr *proxy.CircuitOpenError
		if errors.As(err, &openErr) {
			event.Outcome = analytics.OutcomeCircuitOpen
			event.StatusCode = http.StatusServiceUnavailable
			resp := errorResponse(http.StatusServiceUnavailable, "circuit_open",
				fmt.Sprintf("provider %s unavailable, try again in %d seconds", openErr.Provider, int(openErr.RetryAfter.Seconds())+1),
				map[string]any{"retry_after_seconds": int(openErr.RetryAfter.Seconds()) + 1})
			resp.Header.Set("Retry-After", fmt.Sprintf("%d", int(openErr.RetryAfter.Seconds())+1))
			return resp
		}
		event.Outcome = analytics.OutcomeProviderError
		event.StatusCode = http.StatusBadGateway
		return errorResponse(http.StatusBadGateway, "provider_unreachable", err.Error(), nil)
	}

	event.StatusCode = result.StatusCode
	event.AttemptsUsed = result.AttemptsUsed

	if result.StatusCode >= 400 {
		// Terminal upstream error, forwarded as-is.
		release()
		event.Outcome = analytics.OutcomeProviderError
		return newResponse(result.StatusCode, result.Body)
	}

	if shared {
		// Another identical in-flight request already paid for this call.
		release()
		event.Outcome = analytics.OutcomeCacheHit
		event.CacheHit = true
		resp := newResponse(result.StatusCode, result.Body)
		resp.Header.Set("X-Cache", "HIT")
		return resp
	}

	p.confirm(ctx, rc, result, &event, &settled)
	p.storeCache(rc, result)

	resp = newResponse(result.StatusCode, result.Body)
	p.runModeration(rc, resp, &event)

	if event.Outcome == "" {
		event.Outcome = analytics.OutcomeSuccess
	}
	return resp
}

// runFirewall returns a non-nil response on block or human-review.
func (p *Pipeline) runFirewall(ctx context.Context, rc *RequestContext, event *analytics.RequestEvent) *Response {
	if p.firewall == nil {
		return nil
	}

	verdict, err := p.firewall.Scan(ctx, rc.PromptText, rc.Tools, firewall.RequestMeta{
		RequestID:   rc.RequestID,
		UserID:      rc.UserID,
		WorkspaceID: rc.WorkspaceID,
	})
	if err != nil {
		if p.firewall.FailOpen() {
			log.Error().Err(err).Str("request_id", rc.RequestID).Msg("pipeline: firewall degraded, allowing")
			return nil
		}
		event.Outcome = analytics.OutcomeFirewallBlock
		event.StatusCode = http.StatusServiceUnavailable
		return errorResponse(http.StatusServiceUnavailable, "firewall_unavailable", "security scan unavailable", nil)
	}

	rc.FirewallVerdict = &verdict
	event.RiskScore = verdict.RiskScore

	switch verdict.ContainmentAction {
	case firewall.ActionSandbox:
		rc.Sandboxed = true
	case firewall.ActionHumanReview:
		event.Outcome = analytics.OutcomeFirewallReview
		event.StatusCode = http.StatusAccepted
		return errorResponse(http.StatusAccepted, "pending_review",
			"request deferred for human review", map[string]any{
				"review_id":       verdict.ReviewID,
				"threat_category": verdict.ThreatCategory,
				"risk_score":      verdict.RiskScore,
			})
	case firewall.ActionBlock:
		event.Outcome = analytics.OutcomeFirewallBlock
		event.StatusCode = http.StatusBadRequest
		return errorResponse(http.StatusBadRequest, "security_violation",
			"request blocked by security policy", map[string]any{
				"threat_category": verdict.ThreatCategory,
				"confidence":      verdict.Confidence,
				"risk_score":      verdict.RiskScore,
			})
	}
	return nil
}

// runBudget returns (response, held). A non-nil response ends the request;
// held reports whether a reservation must be settled downstream.
func (p *Pipeline) runBudget(ctx context.Context, rc *RequestContext, event *analytics.RequestEvent) (*Response, bool) {
	if p.budget == nil {
		return nil, false
	}

	outcome, err := p.budget.CheckAndReserve(ctx, rc.PromptText, rc.Provider, rc.Model, rc.MaxTokens, rc.BudgetID)
	if err != nil {
		if p.budget.FailOpen() {
			log.Error().Err(err).Str("request_id", rc.RequestID).Msg("pipeline: budget ledger degraded, allowing")
			outcome.Allowed = true
			outcome.Degraded = true
			rc.BudgetOutcome = &outcome
			return nil, false
		}
		event.Outcome = analytics.OutcomeBudgetDenied
		event.StatusCode = http.StatusServiceUnavailable
		return errorResponse(http.StatusServiceUnavailable, "budget_unavailable", "budget ledger unavailable", nil), false
	}

	rc.BudgetOutcome = &outcome
	if !outcome.Allowed {
		event.Outcome = analytics.OutcomeBudgetDenied
		event.StatusCode = http.StatusPaymentRequired
		return errorResponse(http.StatusPaymentRequired, "budget_exceeded", outcome.Reason, map[string]any{
			"estimated_cost":       outcome.Estimate.Cost,
			"remaining_budget":     outcome.RemainingBudget,
			"cheaper_alternatives": outcome.Alternatives,
			"suggested_actions": []string{
				"switch to a cheaper model",
				"reduce max_tokens",
				"increase the budget limit",
			},
		}), false
	}

	return nil, outcome.Reservation != nil
}

func (p *Pipeline) lookupCache(rc *RequestContext) *cache.Hit {
	if p.cache == nil {
		return nil
	}
	return p.cache.Lookup(rc.PromptText, rc.Model, rc.Provider, rc.UserID, rc.CacheExactOnly)
}

func (p *Pipeline) storeCache(rc *RequestContext, result *proxy.Result) {
	if p.cache == nil {
		return
	}
	p.cache.Store(rc.PromptText, rc.Model, rc.Provider, rc.UserID, result.StatusCode, result.Body)
}

// execute forwards the request upstream. Identical concurrent prompts collapse
// into one provider call when semantic caching is active; shared reports
// whether this request piggybacked on another's call.
func (p *Pipeline) execute(ctx context.Context, rc *RequestContext) (*proxy.Result, bool, error) {
	target, ok := p.targets[rc.Provider.String()]
	if !ok {
		return nil, false, fmt.Errorf("no configured target for provider %s", rc.Provider)
	}

	call := func() (any, error) {
		return p.executor.Execute(ctx, target, rc.Path, rc.Header, rc.Body, rc.RetryConfig)
	}

	if p.cache == nil || rc.CacheExactOnly {
		result, err := call()
		if err != nil {
			return nil, false, err
		}
		return result.(*proxy.Result), false, nil
	}

	key := cache.Fingerprint(rc.PromptText, rc.Model, rc.Provider) + ":" + rc.UserID
	v, err, shared := p.flight.Do(key, call)
	if err != nil {
		return nil, false, err
	}
	return v.(*proxy.Result), shared, nil
}

// confirm settles the reservation with the actual billed cost.
func (p *Pipeline) confirm(ctx context.Context, rc *RequestContext, result *proxy.Result, event *analytics.RequestEvent, settled *bool) {
	if p.budget == nil || rc.Adapter == nil {
		return
	}

	usage := rc.Adapter.ExtractUsage(result.Body)
	actualCost := p.budget.ActualCost(rc.Model, usage)
	event.InputTokens = usage.InputTokens
	event.OutputTokens = usage.OutputTokens
	event.CostUSD = actualCost

	if rc.BudgetOutcome == nil || rc.BudgetOutcome.Reservation == nil || *settled {
		return
	}
	*settled = true
	if err := p.budget.Confirm(ctx, rc.BudgetOutcome.Reservation.ID, actualCost); err != nil {
		log.Error().Err(err).
			Str("request_id", rc.RequestID).
			Str("reservation_id", rc.BudgetOutcome.Reservation.ID).
			Msg("pipeline: confirm reservation")
	}
}

func (p *Pipeline) runModeration(rc *RequestContext, resp *Response, event *analytics.RequestEvent) {
	if p.moderation == nil || !rc.Moderation.Enabled {
		return
	}

	result := p.moderation.Moderate(resp.Body, rc.Moderation)
	if !result.Applied() {
		return
	}

	event.ModerationAction = string(result.Action)
	resp.Header.Set("X-Moderation-Applied", "true")
	for _, c := range result.ViolationCategories {
		resp.Header.Add("X-Moderation-Categories", c)
	}

	if result.SanitizedBody != nil {
		resp.Body = result.SanitizedBody
	}
	if result.Blocked {
		event.Outcome = analytics.OutcomeModerationBlock
	}
}

// errorResponse builds the gateway's JSON error shape.
func errorResponse(status int, errType, message string, details map[string]any) *Response {
	payload := map[string]any{
		"error": map[string]any{
			"type":    errType,
			"message": message,
		},
	}
	for k, v := range details {
		payload["error"].(map[string]any)[k] = v
	}
	body, err := utils.MarshalNoEscape(payload)
	if err != nil {
		body = []byte(fmt.Sprintf(`{"error":{"type":%q,"message":%q}}`, errType, message))
	}
	return newResponse(status, body)
}
