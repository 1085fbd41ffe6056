package billing

import (
	"context"
	"time"

	"github.com/relayforge/relayforge/internal/payments"
)

// RepositoryPort defines data access for the plan-period ledger.
type RepositoryPort interface {
	// Transition atomically closes the active period for the key, if any,
	// and inserts the new one. Both writes happen in one transaction; a
	// lost race against a concurrent transition surfaces as
	// ErrTransitionConflict. StartedAt must be strictly after the active
	// period's start; anything earlier or equal fails with
	// ErrBackdatedTransition and leaves the ledger untouched.
	Transition(ctx context.Context, input TransitionInput) (*PlanPeriod, error)
	// ListPeriods returns all periods for the key ordered by started_at.
	// Unknown keys yield an empty slice, not an error.
	ListPeriods(ctx context.Context, key Key) ([]PlanPeriod, error)
	// ActivePeriod returns the open period for the key, or nil.
	ActivePeriod(ctx context.Context, key Key) (*PlanPeriod, error)
}

// PaymentSource reads settled payment records. Satisfied by
// payments.Repository.
type PaymentSource interface {
	// ListPaidByKey returns the key's settled payments ordered by paid_at
	// ascending. The balance fallback and the backfill both rely on that
	// ordering to pick the rate-defining payment and to replay history.
	ListPaidByKey(ctx context.Context, relayID, subscriberPubkey string) ([]payments.PaymentRecord, error)
	ListPaidKeys(ctx context.Context) ([]payments.Key, error)
}

// RelayDirectory supplies relay metadata needed by the balance fallback.
type RelayDirectory interface {
	CreatedAt(ctx context.Context, relayID string) (time.Time, error)
}
