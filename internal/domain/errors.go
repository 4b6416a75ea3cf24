package domain

import "errors"

// Domain errors are expected, typed outcomes. They pass through the service
// layer unwrapped so callers can match them with errors.Is; only
// infrastructure failures (store unavailable, transaction conflict) carry
// wrapped driver errors.
var (
	ErrNotFound = errors.New("not found")

	ErrOrderNotFound         = errors.New("order not found")
	ErrOrderNotActive        = errors.New("order is not active")
	ErrInvalidPaymentMethods = errors.New("invalid payment methods")
	ErrAmountOutOfRange      = errors.New("amount outside order trade limits")
	ErrInsufficientLiquidity = errors.New("insufficient order liquidity")

	ErrTradeNotFound          = errors.New("trade not found")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrInvalidStateTransition = errors.New("invalid state transition")

	ErrEscrowNotFound     = errors.New("escrow not found")
	ErrInvalidEscrowState = errors.New("invalid escrow state")

	ErrInvalidRating = errors.New("rating must be between 1 and 5")
	ErrAlreadyRated  = errors.New("trade already rated by this party")
	ErrTradeNotEnded = errors.New("trade is not completed")

	ErrRateLimited = errors.New("rate limited")
	ErrLockHeld    = errors.New("lock already held")
)
