package billing

import (
	"context"
	"time"
)

// balanceFromPeriods walks the plan ledger. The first 30 days of every
// period are charged at the rate the subscriber actually paid when the
// period opened, so later price changes never reprice time that was already
// bought. Days beyond the prepaid window accrue at the currently configured
// rate for the period's plan.
func (s *Service) balanceFromPeriods(periods []PlanPeriod, now time.Time) float64 {
	var totalPaid, totalCost float64
	for _, p := range periods {
		end := now
		if p.EndedAt != nil {
			end = *p.EndedAt
		}
		days := end.Sub(p.StartedAt).Hours() / 24
		// Same-instant open/close would otherwise divide the math into
		// nonsense; a period is never shorter than one day.
		if days < 1 {
			days = 1
		}
		historicalDailyRate := float64(p.AmountPaid) / DaysPerMonth
		var cost float64
		if days <= DaysPerMonth {
			cost = days * historicalDailyRate
		} else {
			cost = DaysPerMonth*historicalDailyRate + (days-DaysPerMonth)*s.pricing.CurrentDailyRate(p.PlanType)
		}
		totalPaid += float64(p.AmountPaid)
		totalCost += cost
	}
	return totalPaid - totalCost
}

// balanceFromPayments is the fallback for keys with no plan ledger yet:
// raw settled payments are summed and the whole span since the first
// settlement accrues at the current rate, because no period boundaries
// exist to anchor a historical-rate window. A key with no settled payments
// at all accrues standard-rate debt from the relay's provisioning instant.
func (s *Service) balanceFromPayments(ctx context.Context, key Key, now time.Time) (float64, error) {
	records, err := s.payments.ListPaidByKey(ctx, key.RelayID, key.Subscriber)
	if err != nil {
		return 0, err
	}

	var totalPaid float64
	var first time.Time
	for _, rec := range records {
		if rec.PaidAt == nil {
			continue
		}
		totalPaid += float64(rec.AmountSats)
		if first.IsZero() || rec.PaidAt.Before(first) {
			first = *rec.PaidAt
		}
	}

	if first.IsZero() {
		createdAt, err := s.relays.CreatedAt(ctx, key.RelayID)
		if err != nil {
			return 0, err
		}
		days := now.Sub(createdAt).Hours() / 24
		if days < 0 {
			days = 0
		}
		return 0 - days*s.pricing.CurrentDailyRate(PlanStandard), nil
	}

	// The most recent recurring payment defines the rate; custom top-ups
	// add to the paid total but never to the rate.
	ratePlan := PlanStandard
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].PaidAt == nil {
			continue
		}
		if p := NormalizePlanType(records[i].PlanType); p.Recurring() {
			ratePlan = p
			break
		}
	}

	days := now.Sub(first).Hours() / 24
	if days < 0 {
		days = 0
	}
	return totalPaid - days*s.pricing.CurrentDailyRate(ratePlan), nil
}
