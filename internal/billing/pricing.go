package billing

// A payment buys exactly this many days of service at the rate paid.
const DaysPerMonth = 30

// Default monthly prices in sats, used when no configuration is present.
const (
	DefaultStandardMonthlySats int64 = 21000
	DefaultPremiumMonthlySats  int64 = 210000
)

// PricingProvider resolves the currently configured daily rate for a plan
// type. The balance engine consults it only for time outside a period's
// prepaid window; time inside the window is always charged at the rate the
// subscriber actually paid.
type PricingProvider interface {
	CurrentDailyRate(plan PlanType) float64
}

// StaticPricing prices plans from fixed monthly sats amounts.
type StaticPricing struct {
	StandardMonthlySats int64
	PremiumMonthlySats  int64
}

// NewStaticPricing builds a StaticPricing, substituting defaults for
// non-positive amounts.
func NewStaticPricing(standardMonthlySats, premiumMonthlySats int64) StaticPricing {
	if standardMonthlySats <= 0 {
		standardMonthlySats = DefaultStandardMonthlySats
	}
	if premiumMonthlySats <= 0 {
		premiumMonthlySats = DefaultPremiumMonthlySats
	}
	return StaticPricing{StandardMonthlySats: standardMonthlySats, PremiumMonthlySats: premiumMonthlySats}
}

// CurrentDailyRate returns the monthly price divided over the billing month.
// Tags other than premium rate as standard; custom top-ups have no price of
// their own.
func (s StaticPricing) CurrentDailyRate(plan PlanType) float64 {
	if plan == PlanPremium {
		return float64(s.PremiumMonthlySats) / DaysPerMonth
	}
	return float64(s.StandardMonthlySats) / DaysPerMonth
}
