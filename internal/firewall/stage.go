package firewall

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/aegisgw/admission-gateway/internal/adapters"
	"github.com/aegisgw/admission-gateway/internal/utils"
)

// Thresholds map risk scores to containment actions. A score below Sandbox
// allows; at or above Block rejects.
type Thresholds struct {
	Sandbox float64
	Review  float64
	Block   float64
}

// RequestMeta identifies the request being scanned, for logging and review
// records.
type RequestMeta struct {
	RequestID   string
	UserID      string
	WorkspaceID string
}

// Stage is the inbound security firewall.
type Stage struct {
	scanner    Scanner
	reviews    *ReviewRegistry
	thresholds Thresholds
	failOpen   bool
}

// NewStage creates a firewall stage.
func NewStage(scanner Scanner, reviews *ReviewRegistry, thresholds Thresholds, failOpen bool) *Stage {
	return &Stage{
		scanner:    scanner,
		reviews:    reviews,
		thresholds: thresholds,
		failOpen:   failOpen,
	}
}

// FailOpen reports whether internal scanning errors allow the request.
func (s *Stage) FailOpen() bool { return s.failOpen }

// Scan evaluates the extracted prompt text and tool declarations and returns
// a verdict. An empty prompt (no recognized request shape) allows by default.
func (s *Stage) Scan(ctx context.Context, promptText string, tools []adapters.ToolDeclaration, meta RequestMeta) (Verdict, error) {
	if promptText == "" && len(tools) == 0 {
		return Verdict{ContainmentAction: ActionAllow}, nil
	}

	// Tool names and descriptions are attack surface too: a poisoned tool
	// description can carry an injection payload.
	text := promptText
	if len(tools) > 0 {
		var b strings.Builder
		b.WriteString(text)
		for _, t := range tools {
			b.WriteString("\n")
			b.WriteString(t.Name)
			b.WriteString(": ")
			b.WriteString(t.Description)
		}
		text = b.String()
	}

	report, err := s.scanner.Scan(ctx, text)
	if err != nil {
		return Verdict{}, err
	}

	verdict := Verdict{
		Confidence:        report.Confidence,
		ThreatCategory:    report.TopCategory,
		RiskScore:         report.RiskScore,
		MatchedPatterns:   len(report.Findings),
		ContainmentAction: s.actionFor(report),
	}

	switch verdict.ContainmentAction {
	case ActionBlock:
		verdict.Blocked = true
	case ActionHumanReview:
		verdict.ReviewID = s.reviews.Add(PendingReview{
			RequestID:   meta.RequestID,
			UserID:      meta.UserID,
			WorkspaceID: meta.WorkspaceID,
			Category:    report.TopCategory,
			RiskScore:   report.RiskScore,
			PromptText:  utils.Truncate(promptText, 2000),
		})
	}

	if verdict.ContainmentAction != ActionAllow {
		log.Warn().
			Str("request_id", meta.RequestID).
			Str("action", string(verdict.ContainmentAction)).
			Str("category", verdict.ThreatCategory).
			Float64("risk_score", verdict.RiskScore).
			Int("matched_patterns", verdict.MatchedPatterns).
			Msg("firewall: threat detected")
	}

	return verdict, nil
}

func (s *Stage) actionFor(report Report) Action {
	switch {
	case report.ForceBlock, report.RiskScore >= s.thresholds.Block:
		return ActionBlock
	case report.RiskScore >= s.thresholds.Review:
		return ActionHumanReview
	case report.RiskScore >= s.thresholds.Sandbox:
		return ActionSandbox
	default:
		return ActionAllow
	}
}

// =============================================================================
// PENDING REVIEW REGISTRY
// =============================================================================

// ReviewRegistry holds requests parked for human review. Entries expire after
// a TTL so abandoned reviews do not accumulate.
type ReviewRegistry struct {
	mu      sync.RWMutex
	pending map[string]PendingReview
	ttl     time.Duration
	done    chan struct{}
	once    sync.Once
}

// NewReviewRegistry creates a registry with a background expiry janitor.
func NewReviewRegistry(ttl time.Duration, cleanupInterval time.Duration) *ReviewRegistry {
	r := &ReviewRegistry{
		pending: make(map[string]PendingReview),
		ttl:     ttl,
		done:    make(chan struct{}),
	}
	go r.cleanup(cleanupInterval)
	return r
}

// Add registers a pending review and returns its identifier.
func (r *ReviewRegistry) Add(review PendingReview) string {
	review.ID = uuid.NewString()
	review.CreatedAt = time.Now()

	r.mu.Lock()
	r.pending[review.ID] = review
	r.mu.Unlock()

	return review.ID
}

// Get returns a pending review by id.
func (r *ReviewRegistry) Get(id string) (PendingReview, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	review, ok := r.pending[id]
	return review, ok
}

// Len returns the number of pending reviews.
func (r *ReviewRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pending)
}

// Stop terminates the janitor goroutine.
func (r *ReviewRegistry) Stop() {
	r.once.Do(func() { close(r.done) })
}

func (r *ReviewRegistry) cleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			return
		case <-ticker.C:
			now := time.Now()
			r.mu.Lock()
			for id, review := range r.pending {
				if now.Sub(review.CreatedAt) > r.ttl {
					delete(r.pending, id)
				}
			}
			r.mu.Unlock()
		}
	}
}
