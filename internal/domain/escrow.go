package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EscrowStatus tracks the custody state of a trade's escrowed funds.
// Released and refunded are mutually exclusive terminal states.
type EscrowStatus string

const (
	EscrowStatusCreated  EscrowStatus = "created"
	EscrowStatusFunded   EscrowStatus = "funded"
	EscrowStatusDisputed EscrowStatus = "disputed"
	EscrowStatusReleased EscrowStatus = "released"
	EscrowStatusRefunded EscrowStatus = "refunded"
	EscrowStatusExpired  EscrowStatus = "expired"
)

// Escrow is the custody record for the seller's funds during a trade,
// one-to-one with the trade. The engine only tracks custody state; the
// on-chain lock is assumed already effective when the escrow is funded.
type Escrow struct {
	ID           string
	TradeID      string
	Network      string
	TokenSymbol  string
	Amount       decimal.Decimal
	FromWalletID string
	FromUserID   int64
	ToUserID     int64
	Status       EscrowStatus
	ReleaseTxRef string

	FundedAt   *time.Time
	ReleasedAt *time.Time
	RefundedAt *time.Time
	ExpiresAt  *time.Time
	CreatedAt  time.Time
}

// Terminal reports whether the escrow status is immutable.
func (s EscrowStatus) Terminal() bool {
	return s == EscrowStatusReleased || s == EscrowStatusRefunded || s == EscrowStatusExpired
}
