package budget

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/aegisgw/admission-gateway/internal/adapters"
)

// Outcome is the budget stage's answer for one request.
type Outcome struct {
	Allowed         bool
	Reason          string
	RemainingBudget float64
	Estimate        Estimate

	// Reservation is non-nil when a hold was placed.
	Reservation *Reservation

	// Alternatives suggests cheaper same-provider models on denial.
	Alternatives []Alternative

	// Degraded is set when the ledger or estimator failed and the stage
	// failed open.
	Degraded bool
}

// Stage performs pre-flight cost estimation and the two-phase reservation
// against the ledger. Confirm/Release are the pipeline's obligation after the
// provider call settles.
type Stage struct {
	estimator *Estimator
	ledger    Ledger
	failOpen  bool
}

// NewStage creates a budget stage.
func NewStage(estimator *Estimator, ledger Ledger, failOpen bool) *Stage {
	return &Stage{estimator: estimator, ledger: ledger, failOpen: failOpen}
}

// FailOpen reports whether ledger errors allow the request.
func (s *Stage) FailOpen() bool { return s.failOpen }

// CheckAndReserve estimates the request cost and, when a budget id is
// declared, places a hold against the ledger.
func (s *Stage) CheckAndReserve(ctx context.Context, promptText string, provider adapters.Provider, model string, maxTokens int, budgetID string) (Outcome, error) {
	estimate := s.estimator.Estimate(promptText, model, maxTokens)

	// No declared budget: nothing to enforce, nothing to hold.
	if budgetID == "" {
		return Outcome{Allowed: true, Estimate: estimate}, nil
	}

	decision, err := s.ledger.CheckAndHold(ctx, budgetID, estimate.Cost)
	if err != nil {
		return Outcome{Estimate: estimate}, err
	}

	if !decision.Allowed {
		log.Info().
			Str("budget_id", budgetID).
			Str("model", model).
			Float64("estimated_cost", estimate.Cost).
			Float64("remaining", decision.RemainingBudget).
			Msg("budget: request denied")
		return Outcome{
			Allowed:         false,
			Reason:          decision.Reason,
			RemainingBudget: decision.RemainingBudget,
			Estimate:        estimate,
			Alternatives:    CheaperAlternatives(provider, model),
		}, nil
	}

	return Outcome{
		Allowed:         true,
		RemainingBudget: decision.RemainingBudget,
		Estimate:        estimate,
		Reservation:     decision.Reservation,
	}, nil
}

// Confirm settles a held reservation with the true cost.
func (s *Stage) Confirm(ctx context.Context, reservationID string, actualCost float64) error {
	return s.ledger.Confirm(ctx, reservationID, actualCost)
}

// Release frees a held reservation without charging.
func (s *Stage) Release(ctx context.Context, reservationID string) error {
	return s.ledger.Release(ctx, reservationID)
}

// ActualCost computes the true charge from billed usage.
func (s *Stage) ActualCost(model string, usage adapters.UsageInfo) float64 {
	return s.estimator.ActualCost(model, usage)
}
