package types

type QuotaStatus string

const (
	QuotaStatusActive    QuotaStatus = "active"
	QuotaStatusExpired   QuotaStatus = "expired"
	QuotaStatusCancelled QuotaStatus = "cancelled"
	QuotaStatusPending   QuotaStatus = "pending"
)

type BillingCycle string

const (
	BillingCycleMonthly   BillingCycle = "monthly"
	BillingCycleQuarterly BillingCycle = "quarterly"
	BillingCycleYearly    BillingCycle = "yearly"
)

// Months returns the length of one billing period in months.
// Unknown cycles default to monthly.
func (c BillingCycle) Months() int {
	switch c {
	case BillingCycleQuarterly:
		return 3
	case BillingCycleYearly:
		return 12
	default:
		return 1
	}
}

// AccessType classifies how a catalog product may be downloaded.
type AccessType string

const (
	AccessTypeFree         AccessType = "free"
	AccessTypeSubscription AccessType = "subscription"
	// AccessTypePremium products are paid one-off downloads handled by the
	// commerce platform itself; the download gateway never touches them.
	AccessTypePremium AccessType = "premium"
)

// ConsumeResult reports the outcome of a single quota decrement.
type ConsumeResult int

const (
	ConsumeOK ConsumeResult = iota
	ConsumeExhausted
	ConsumeNotFound
)

func (r ConsumeResult) String() string {
	switch r {
	case ConsumeOK:
		return "ok"
	case ConsumeExhausted:
		return "exhausted"
	default:
		return "not_found"
	}
}
