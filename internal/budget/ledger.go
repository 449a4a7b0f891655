package budget

import (
	"context"
	"errors"
)

// ReservationState is the lifecycle state of a monetary hold.
type ReservationState string

const (
	// StateHeld means the estimated cost is reserved against the budget.
	StateHeld ReservationState = "held"

	// StateConfirmed means the hold was settled with the actual cost.
	StateConfirmed ReservationState = "confirmed"

	// StateReleased means the hold was freed without charging.
	StateReleased ReservationState = "released"
)

// Reservation is a monetary hold against a budget. It transitions
// held -> confirmed XOR held -> released exactly once; a reservation left
// held past request completion leaks headroom and drifts the budget.
type Reservation struct {
	ID            string
	BudgetID      string
	EstimatedCost float64
	State         ReservationState
}

// Decision is the outcome of a pre-flight budget check.
type Decision struct {
	Allowed         bool
	Reason          string
	RemainingBudget float64

	// Reservation is set when Allowed and a budget id was present.
	Reservation *Reservation

	// Alternatives suggests cheaper same-provider models on denial.
	Alternatives []Alternative
}

// Budget is a spend envelope for a user or workspace. HardLimit budgets deny
// requests that would exceed the limit; soft budgets allow and log.
type Budget struct {
	ID          string
	UserID      string
	WorkspaceID string
	LimitUSD    float64
	SpentUSD    float64
	HardLimit   bool
}

// Errors returned by Ledger implementations.
var (
	ErrBudgetNotFound  = errors.New("budget not found")
	ErrAlreadySettled  = errors.New("reservation already settled")
	ErrReservationGone = errors.New("reservation not found")
)

// Ledger is the persistent store for budgets and reservations. Hold, confirm,
// and release must be atomic against the stored balance: a hold decrements
// available headroom immediately so concurrent requests cannot jointly
// overspend.
type Ledger interface {
	// CheckAndHold verifies headroom for estimatedCost and, if allowed,
	// records a hold.
	CheckAndHold(ctx context.Context, budgetID string, estimatedCost float64) (Decision, error)

	// Confirm settles a held reservation with the actual cost.
	Confirm(ctx context.Context, reservationID string, actualCost float64) error

	// Release frees a held reservation without charging.
	Release(ctx context.Context, reservationID string) error
}
