package budget

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	// Pure-Go sqlite driver, registered as "sqlite".
	_ "modernc.org/sqlite"
)

// SQLiteLedger persists budgets and reservations in a local sqlite database.
// All hold/confirm/release operations run in immediate transactions so
// concurrent requests serialize on the balance.
type SQLiteLedger struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS budgets (
	id           TEXT PRIMARY KEY,
	user_id      TEXT NOT NULL DEFAULT '',
	workspace_id TEXT NOT NULL DEFAULT '',
	limit_usd    REAL NOT NULL,
	spent_usd    REAL NOT NULL DEFAULT 0,
	hard_limit   INTEGER NOT NULL DEFAULT 1,
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS reservations (
	id            TEXT PRIMARY KEY,
	budget_id     TEXT NOT NULL REFERENCES budgets(id),
	estimated_usd REAL NOT NULL,
	actual_usd    REAL,
	state         TEXT NOT NULL CHECK (state IN ('held','confirmed','released')),
	created_at    TEXT NOT NULL,
	settled_at    TEXT
);

CREATE INDEX IF NOT EXISTS idx_reservations_budget_state
	ON reservations(budget_id, state);
`

// NewSQLiteLedger opens (creating if needed) the ledger database at path.
// Use ":memory:" for tests.
func NewSQLiteLedger(path string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}
	// sqlite allows a single writer; serialize access instead of returning
	// SQLITE_BUSY to concurrent holds.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate ledger db: %w", err)
	}
	return &SQLiteLedger{db: db}, nil
}

// Close releases the database handle.
func (l *SQLiteLedger) Close() error { return l.db.Close() }

// Ping verifies the ledger database is reachable.
func (l *SQLiteLedger) Ping(ctx context.Context) error { return l.db.PingContext(ctx) }

// EnsureBudget creates or updates a budget row.
func (l *SQLiteLedger) EnsureBudget(ctx context.Context, b Budget) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO budgets (id, user_id, workspace_id, limit_usd, spent_usd, hard_limit, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			limit_usd = excluded.limit_usd,
			hard_limit = excluded.hard_limit,
			updated_at = excluded.updated_at`,
		b.ID, b.UserID, b.WorkspaceID, b.LimitUSD, b.SpentUSD, boolToInt(b.HardLimit), now, now)
	if err != nil {
		return fmt.Errorf("ensure budget %s: %w", b.ID, err)
	}
	return nil
}

// GetBudget returns a budget row.
func (l *SQLiteLedger) GetBudget(ctx context.Context, id string) (Budget, error) {
	var b Budget
	var hard int
	err := l.db.QueryRowContext(ctx, `
		SELECT id, user_id, workspace_id, limit_usd, spent_usd, hard_limit
		FROM budgets WHERE id = ?`, id).
		Scan(&b.ID, &b.UserID, &b.WorkspaceID, &b.LimitUSD, &b.SpentUSD, &hard)
	if err == sql.ErrNoRows {
		return Budget{}, ErrBudgetNotFound
	}
	if err != nil {
		return Budget{}, fmt.Errorf("get budget %s: %w", id, err)
	}
	b.HardLimit = hard != 0
	return b, nil
}

// CheckAndHold verifies headroom and records a hold in one transaction.
// Headroom counts confirmed spend plus all currently held reservations.
func (l *SQLiteLedger) CheckAndHold(ctx context.Context, budgetID string, estimatedCost float64) (Decision, error) {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return Decision{}, fmt.Errorf("begin hold tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var limit, spent float64
	var hard int
	err = tx.QueryRowContext(ctx,
		`SELECT limit_usd, spent_usd, hard_limit FROM budgets WHERE id = ?`, budgetID).
		Scan(&limit, &spent, &hard)
	if err == sql.ErrNoRows {
		return Decision{}, ErrBudgetNotFound
	}
	if err != nil {
		return Decision{}, fmt.Errorf("load budget %s: %w", budgetID, err)
	}

	var held float64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(estimated_usd), 0) FROM reservations WHERE budget_id = ? AND state = 'held'`,
		budgetID).Scan(&held)
	if err != nil {
		return Decision{}, fmt.Errorf("sum holds for %s: %w", budgetID, err)
	}

	remaining := limit - spent - held
	if remaining < 0 {
		remaining = 0
	}

	if spent+held+estimatedCost > limit {
		if hard != 0 {
			return Decision{
				Allowed:         false,
				Reason:          fmt.Sprintf("insufficient budget: estimated cost $%.6f exceeds remaining $%.6f", estimatedCost, remaining),
				RemainingBudget: remaining,
			}, nil
		}
		// Soft limits allow the overage but leave a trace.
		log.Warn().
			Str("budget_id", budgetID).
			Float64("estimated_cost", estimatedCost).
			Float64("remaining", remaining).
			Msg("soft budget limit exceeded, allowing")
	}

	res := Reservation{
		ID:            uuid.NewString(),
		BudgetID:      budgetID,
		EstimatedCost: estimatedCost,
		State:         StateHeld,
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO reservations (id, budget_id, estimated_usd, state, created_at)
		VALUES (?, ?, ?, 'held', ?)`,
		res.ID, res.BudgetID, res.EstimatedCost, now)
	if err != nil {
		return Decision{}, fmt.Errorf("insert hold: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Decision{}, fmt.Errorf("commit hold: %w", err)
	}

	return Decision{
		Allowed:         true,
		RemainingBudget: remaining - estimatedCost,
		Reservation:     &res,
	}, nil
}

// Confirm settles a held reservation with the actual cost, charging the
// budget. The WHERE state='held' guard makes the transition single-shot.
func (l *SQLiteLedger) Confirm(ctx context.Context, reservationID string, actualCost float64) error {
	return l.settle(ctx, reservationID, StateConfirmed, actualCost)
}

// Release frees a held reservation without charging.
func (l *SQLiteLedger) Release(ctx context.Context, reservationID string) error {
	return l.settle(ctx, reservationID, StateReleased, 0)
}

func (l *SQLiteLedger) settle(ctx context.Context, reservationID string, to ReservationState, actualCost float64) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin settle tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	result, err := tx.ExecContext(ctx, `
		UPDATE reservations SET state = ?, actual_usd = ?, settled_at = ?
		WHERE id = ? AND state = 'held'`,
		string(to), actualCost, now, reservationID)
	if err != nil {
		return fmt.Errorf("settle reservation %s: %w", reservationID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("settle reservation %s: %w", reservationID, err)
	}
	if affected == 0 {
		// Either the id is unknown or the reservation was settled already.
		var state string
		err := tx.QueryRowContext(ctx,
			`SELECT state FROM reservations WHERE id = ?`, reservationID).Scan(&state)
		if err == sql.ErrNoRows {
			return ErrReservationGone
		}
		if err != nil {
			return fmt.Errorf("inspect reservation %s: %w", reservationID, err)
		}
		return ErrAlreadySettled
	}

	if to == StateConfirmed {
		_, err = tx.ExecContext(ctx, `
			UPDATE budgets SET spent_usd = spent_usd + ?, updated_at = ?
			WHERE id = (SELECT budget_id FROM reservations WHERE id = ?)`,
			actualCost, now, reservationID)
		if err != nil {
			return fmt.Errorf("charge budget for %s: %w", reservationID, err)
		}
	}

	return tx.Commit()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
