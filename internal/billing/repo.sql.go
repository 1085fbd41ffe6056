package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relayforge/relayforge/internal/platform/db"
)

const uniqueViolation = "23505"

// Repository provides PostgreSQL backed persistence for the plan ledger.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const periodColumns = `id, relay_id, subscriber_pubkey, plan_type, amount_paid, started_at, ended_at, payment_id, created_at`

// Transition closes the key's open period and inserts the new one inside a
// single repeatable-read transaction. The partial unique index on open
// periods turns a concurrent double-insert into ErrTransitionConflict, and a
// StartedAt at or before the open period's start aborts the transaction
// with ErrBackdatedTransition.
func (r *Repository) Transition(ctx context.Context, input TransitionInput) (*PlanPeriod, error) {
	period := PlanPeriod{
		ID:               uuid.New(),
		RelayID:          input.Key.RelayID,
		SubscriberPubkey: input.Key.Subscriber,
		PlanType:         input.PlanType,
		AmountPaid:       input.AmountPaid,
		StartedAt:        input.StartedAt,
		PaymentID:        input.PaymentID,
	}

	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		// At most one open row exists per key (partial unique index), so
		// RETURNING feeds a single-row scan. Closing it with an ended_at at
		// or before its own start would corrupt the ledger; reject instead.
		var activeStart time.Time
		err := tx.QueryRow(ctx, `UPDATE plan_periods SET ended_at = $3
WHERE relay_id = $1 AND subscriber_pubkey = $2 AND ended_at IS NULL RETURNING started_at`,
			input.Key.RelayID, input.Key.Subscriber, input.StartedAt).Scan(&activeStart)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			// First transition for the key, nothing to close.
		case err != nil:
			return err
		case !input.StartedAt.After(activeStart):
			return ErrBackdatedTransition
		}
		return tx.QueryRow(ctx, `INSERT INTO plan_periods (id, relay_id, subscriber_pubkey, plan_type, amount_paid, started_at, payment_id)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at`,
			period.ID, period.RelayID, period.SubscriberPubkey, period.PlanType, period.AmountPaid, period.StartedAt, period.PaymentID).
			Scan(&period.CreatedAt)
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == "uq_plan_periods_active" {
			return nil, ErrTransitionConflict
		}
		return nil, err
	}
	return &period, nil
}

// ListPeriods returns the key's full ledger ordered by started_at.
func (r *Repository) ListPeriods(ctx context.Context, key Key) ([]PlanPeriod, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+periodColumns+` FROM plan_periods
WHERE relay_id = $1 AND subscriber_pubkey = $2 ORDER BY started_at`, key.RelayID, key.Subscriber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var periods []PlanPeriod
	for rows.Next() {
		period, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		periods = append(periods, period)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return periods, nil
}

// ActivePeriod returns the key's open period, or nil when there is none.
func (r *Repository) ActivePeriod(ctx context.Context, key Key) (*PlanPeriod, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+periodColumns+` FROM plan_periods
WHERE relay_id = $1 AND subscriber_pubkey = $2 AND ended_at IS NULL`, key.RelayID, key.Subscriber)
	period, err := scanPeriod(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &period, nil
}

func scanPeriod(row pgx.Row) (PlanPeriod, error) {
	var period PlanPeriod
	err := row.Scan(&period.ID, &period.RelayID, &period.SubscriberPubkey, &period.PlanType, &period.AmountPaid,
		&period.StartedAt, &period.EndedAt, &period.PaymentID, &period.CreatedAt)
	if err != nil {
		return PlanPeriod{}, err
	}
	return period, nil
}
