package billing

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRelayRequired indicates a transition without a relay id.
	ErrRelayRequired = errors.New("billing: relay id required")
	// ErrPlanRequired indicates a transition without a plan tag.
	ErrPlanRequired = errors.New("billing: plan type required")
	// ErrNegativeAmount indicates a transition with a negative payment.
	ErrNegativeAmount = errors.New("billing: amount paid must not be negative")
	// ErrTransitionConflict indicates a concurrent transition for the same
	// key won the race. The caller may simply retry.
	ErrTransitionConflict = errors.New("billing: concurrent plan transition")
	// ErrBackdatedTransition indicates a StartedAt at or before the active
	// period's start. The ledger is append-only with strictly increasing
	// starts, so a backdated period is rejected rather than recorded.
	ErrBackdatedTransition = errors.New("billing: transition starts before the active period")
)

// Service is the plan-period ledger and balance engine. One instance serves
// both tracks: relay owner ledgers and per-subscriber ledgers, told apart
// by the Key.
type Service struct {
	repo     RepositoryPort
	payments PaymentSource
	relays   RelayDirectory
	pricing  PricingProvider
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, paymentSource PaymentSource, relays RelayDirectory, pricing PricingProvider) *Service {
	return &Service{repo: repo, payments: paymentSource, relays: relays, pricing: pricing}
}

// RecordTransition closes the key's active period and opens a new one with
// the given plan and payment. The first transition for a key has nothing to
// close, which is not an error. StartedAt defaults to now and must be after
// the active period's start, or the write fails with ErrBackdatedTransition.
func (s *Service) RecordTransition(ctx context.Context, input TransitionInput) (*PlanPeriod, error) {
	if input.Key.RelayID == "" {
		return nil, ErrRelayRequired
	}
	if input.PlanType == "" {
		return nil, ErrPlanRequired
	}
	if input.AmountPaid < 0 {
		return nil, ErrNegativeAmount
	}
	if input.StartedAt.IsZero() {
		input.StartedAt = time.Now().UTC()
	}
	return s.repo.Transition(ctx, input)
}

// PlanHistory returns all recorded periods for the key, oldest first.
func (s *Service) PlanHistory(ctx context.Context, key Key) ([]PlanPeriod, error) {
	return s.repo.ListPeriods(ctx, key)
}

// CurrentPlan returns the key's active period, or nil when the key has
// never transitioned or its ledger is fully closed.
func (s *Service) CurrentPlan(ctx context.Context, key Key) (*PlanPeriod, error) {
	return s.repo.ActivePeriod(ctx, key)
}

// Balance computes the key's running balance in sats at the given instant:
// everything paid minus everything accrued. Negative means the entity owes.
// A zero now means the current time.
func (s *Service) Balance(ctx context.Context, key Key, now time.Time) (float64, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	periods, err := s.repo.ListPeriods(ctx, key)
	if err != nil {
		return 0, err
	}
	if len(periods) > 0 {
		return s.balanceFromPeriods(periods, now), nil
	}
	return s.balanceFromPayments(ctx, key, now)
}
