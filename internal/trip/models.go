package trip

import "backend-miletrack/internal/tracking"

// Deduction is an estimate computed from stored miles and the per-purpose
// rate, never persisted.
type Deduction struct {
	TripID    string  `json:"trip_id"`
	Purpose   string  `json:"purpose"`
	Miles     float64 `json:"miles"`
	RateCents int     `json:"rate_cents_per_mile"`
	AmountUSD float64 `json:"amount_usd"`
}

// PurposeSummary aggregates one purpose's mileage for the summary endpoint.
type PurposeSummary struct {
	Purpose      string  `json:"purpose"`
	TripCount    int     `json:"trip_count"`
	Miles        float64 `json:"miles"`
	DeductionUSD float64 `json:"deduction_usd"`
}

// Standard mileage rates in cents per mile.
var deductionRates = map[tracking.Purpose]int{
	tracking.PurposeBusiness: 67,
	tracking.PurposeMedical:  21,
	tracking.PurposeMoving:   21,
	tracking.PurposeCharity:  14,
	tracking.PurposePersonal: 0,
}

func rateFor(p tracking.Purpose) int {
	return deductionRates[p]
}
