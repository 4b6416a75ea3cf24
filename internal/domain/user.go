package domain

import "time"

// DefaultRating is the reputation percentage assigned to users with no rated
// trades.
const DefaultRating = 100.0

// User carries the reputation counters mutated by the trading engine. The
// rest of the user record (session, locale, auth) belongs to the registration
// collaborator and is not modelled here.
type User struct {
	ID               int64
	Username         string
	TotalTrades      int
	SuccessfulTrades int

	// Rating is a 0-100 weighted running average of per-trade star ratings.
	// It is an approximation, not an exact historical average: individual
	// rating events are not stored, so the value cannot be recomputed.
	Rating float64

	CreatedAt time.Time
}
