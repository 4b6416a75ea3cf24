package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeStatus tracks the trade state machine.
type TradeStatus string

const (
	TradeStatusPending   TradeStatus = "pending"
	TradeStatusPaid      TradeStatus = "paid"
	TradeStatusCompleted TradeStatus = "completed"
	TradeStatusCancelled TradeStatus = "cancelled"
	TradeStatusDisputed  TradeStatus = "disputed"
	TradeStatusExpired   TradeStatus = "expired"
)

// TradeRole identifies which side of a trade a user is on.
type TradeRole string

const (
	TradeRoleBuyer  TradeRole = "buyer"
	TradeRoleSeller TradeRole = "seller"
)

// tradeTransitions enumerates every legal state transition. Everything else
// fails with ErrInvalidStateTransition.
var tradeTransitions = map[TradeStatus][]TradeStatus{
	TradeStatusPending:  {TradeStatusPaid, TradeStatusCompleted, TradeStatusCancelled, TradeStatusDisputed, TradeStatusExpired},
	TradeStatusPaid:     {TradeStatusCompleted, TradeStatusDisputed},
	TradeStatusDisputed: {TradeStatusCompleted, TradeStatusCancelled},
}

// CanTransition reports whether from -> to is a legal trade transition.
func CanTransition(from, to TradeStatus) bool {
	for _, next := range tradeTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the trade status is immutable (rating fields
// excepted).
func (s TradeStatus) Terminal() bool {
	return s == TradeStatusCompleted || s == TradeStatusCancelled || s == TradeStatusExpired
}

// Trade is one counterparty's commitment against an Order. Price and fiat
// amount are frozen copies taken at creation time; the reservation it made
// against the order's liquidity is returned only on cancel, expiry, or a
// seller-wins dispute resolution.
type Trade struct {
	ID            string
	OrderID       string
	BuyerID       int64
	SellerID      int64
	CryptoAmount  decimal.Decimal
	FiatAmount    decimal.Decimal
	PricePerUnit  decimal.Decimal
	FiatCurrency  string
	TokenSymbol   string
	Network       string
	PaymentMethod string
	Status        TradeStatus
	EscrowID      string

	ExpiresAt   time.Time
	PaidAt      *time.Time
	ReleasedAt  *time.Time
	CancelledAt *time.Time
	DisputedAt  *time.Time

	DisputeReason string
	DisputeWinner TradeRole

	BuyerRating   *int
	SellerRating  *int
	BuyerComment  string
	SellerComment string

	CreatedAt time.Time
}

// RoleOf returns the role the given user plays in this trade, or "" when the
// user is not a party to it.
func (t Trade) RoleOf(userID int64) TradeRole {
	switch userID {
	case t.BuyerID:
		return TradeRoleBuyer
	case t.SellerID:
		return TradeRoleSeller
	default:
		return ""
	}
}

// Expired reports whether the trade deadline has passed.
func (t Trade) Expired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}
