package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide indicates whether the order owner is buying or selling crypto.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderStatus tracks the order lifecycle. Active orders are the only mutable
// ones; completed, cancelled and expired are terminal.
type OrderStatus string

const (
	OrderStatusActive    OrderStatus = "active"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusExpired   OrderStatus = "expired"
)

// Order is a standing offer to buy or sell a quantity of an asset at a fixed
// fiat price. Liquidity accounting invariant, held at all times:
//
//	AvailableAmount + FilledAmount == TotalAmount
//	AvailableAmount >= 0
//
// Orders are never hard-deleted; terminal rows are retained for audit.
type Order struct {
	ID               string
	UserID           int64
	Side             OrderSide
	Network          string
	TokenSymbol      string
	FiatCurrency     string
	PricePerUnit     decimal.Decimal
	TotalAmount      decimal.Decimal
	AvailableAmount  decimal.Decimal
	FilledAmount     decimal.Decimal
	MinTradeAmount   decimal.Decimal
	MaxTradeAmount   decimal.Decimal
	PaymentMethods   []string
	Terms            string
	TimeLimitMinutes int
	TradesCount      int
	Status           OrderStatus
	CreatedAt        time.Time
	UpdatedAt        time.Time
	ExpiresAt        *time.Time
}

// Terminal reports whether the order status is immutable.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled || s == OrderStatusExpired
}

// Expired reports whether the order has a deadline in the past.
func (o Order) Expired(now time.Time) bool {
	return o.ExpiresAt != nil && !o.ExpiresAt.After(now)
}

// AcceptsPaymentMethod reports whether the given method code is in the
// order's accepted set.
func (o Order) AcceptsPaymentMethod(code string) bool {
	for _, m := range o.PaymentMethods {
		if m == code {
			return true
		}
	}
	return false
}

// AmountWithinLimits reports whether amount is within the order's
// [min, max] trade bounds, both inclusive.
func (o Order) AmountWithinLimits(amount decimal.Decimal) bool {
	if amount.LessThan(o.MinTradeAmount) {
		return false
	}
	return amount.LessThanOrEqual(o.MaxTradeAmount)
}
