// Package trading implements the P2P trading and escrow engine: standing
// offers, bounded trades against them, escrow custody state, reputation, and
// the per-trade chat log. All multi-entity transitions run inside a single
// ledger store transaction.
package trading

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nexuswallet/p2pcore/internal/domain"
)

// DefaultTimeLimitMinutes is the per-trade payment window applied when an
// order does not set one.
const DefaultTimeLimitMinutes = 30

// minTradeFraction is the default minimum trade size when the maker does not
// set one: 10% of the order total.
var minTradeFraction = decimal.NewFromFloat(0.1)

// CreateOrderRequest carries everything needed to post a standing offer.
type CreateOrderRequest struct {
	UserID           int64
	Side             domain.OrderSide
	Network          string
	TokenSymbol      string
	FiatCurrency     string
	PricePerUnit     decimal.Decimal
	TotalAmount      decimal.Decimal
	MinTradeAmount   decimal.Decimal // zero: defaults to 10% of total
	MaxTradeAmount   decimal.Decimal // zero: defaults to total
	PaymentMethods   []string
	Terms            string
	TimeLimitMinutes int // zero: DefaultTimeLimitMinutes
	TTLHours         int // zero: the order never expires on its own
}

// OrderBook creates, lists and cancels standing offers, and owns the
// liquidity accounting primitives the trade engine reserves against.
type OrderBook struct {
	store  domain.Store
	logger *slog.Logger
}

// NewOrderBook creates an OrderBook over the given ledger store.
func NewOrderBook(store domain.Store, logger *slog.Logger) *OrderBook {
	return &OrderBook{store: store, logger: logger}
}

// CreateOrder validates and posts a standing offer. Payment methods must be
// non-empty and drawn from the known registry; trade-size bounds default to
// [10% of total, total].
func (b *OrderBook) CreateOrder(ctx context.Context, req CreateOrderRequest) (domain.Order, error) {
	if req.Side != domain.OrderSideBuy && req.Side != domain.OrderSideSell {
		return domain.Order{}, fmt.Errorf("trading: create order: unknown side %q", req.Side)
	}
	if !req.TotalAmount.IsPositive() || !req.PricePerUnit.IsPositive() {
		return domain.Order{}, domain.ErrAmountOutOfRange
	}

	methods, err := domain.ValidatePaymentMethods(req.PaymentMethods)
	if err != nil {
		return domain.Order{}, err
	}

	minAmt := req.MinTradeAmount
	if minAmt.IsZero() {
		minAmt = req.TotalAmount.Mul(minTradeFraction)
	}
	maxAmt := req.MaxTradeAmount
	if maxAmt.IsZero() {
		maxAmt = req.TotalAmount
	}
	if !minAmt.IsPositive() || minAmt.GreaterThan(maxAmt) || maxAmt.GreaterThan(req.TotalAmount) {
		return domain.Order{}, domain.ErrAmountOutOfRange
	}

	timeLimit := req.TimeLimitMinutes
	if timeLimit <= 0 {
		timeLimit = DefaultTimeLimitMinutes
	}

	now := time.Now().UTC()
	var expiresAt *time.Time
	if req.TTLHours > 0 {
		t := now.Add(time.Duration(req.TTLHours) * time.Hour)
		expiresAt = &t
	}

	order := domain.Order{
		ID:               uuid.New().String(),
		UserID:           req.UserID,
		Side:             req.Side,
		Network:          req.Network,
		TokenSymbol:      req.TokenSymbol,
		FiatCurrency:     req.FiatCurrency,
		PricePerUnit:     req.PricePerUnit,
		TotalAmount:      req.TotalAmount,
		AvailableAmount:  req.TotalAmount,
		FilledAmount:     decimal.Zero,
		MinTradeAmount:   minAmt,
		MaxTradeAmount:   maxAmt,
		PaymentMethods:   methods,
		Terms:            req.Terms,
		TimeLimitMinutes: timeLimit,
		Status:           domain.OrderStatusActive,
		CreatedAt:        now,
		UpdatedAt:        now,
		ExpiresAt:        expiresAt,
	}

	if err := b.store.Orders().Create(ctx, order); err != nil {
		return domain.Order{}, fmt.Errorf("trading: create order: %w", err)
	}

	b.logger.InfoContext(ctx, "order created",
		slog.String("order_id", order.ID),
		slog.Int64("user_id", order.UserID),
		slog.String("side", string(order.Side)),
		slog.String("token", order.TokenSymbol),
		slog.String("total", order.TotalAmount.String()),
	)
	return order, nil
}

// GetOrder retrieves a single order.
func (b *OrderBook) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	return b.store.Orders().GetByID(ctx, id)
}

// ListActive returns active, unexpired orders with remaining liquidity,
// best price first.
func (b *OrderBook) ListActive(ctx context.Context, f domain.OrderFilter) ([]domain.Order, error) {
	return b.store.Orders().ListActive(ctx, f, time.Now().UTC())
}

// ListUserOrders returns a user's own orders, newest first.
func (b *OrderBook) ListUserOrders(ctx context.Context, userID int64, status domain.OrderStatus, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	return b.store.Orders().ListByUser(ctx, userID, status, limit)
}

// Cancel cancels an active order. Only the owner may cancel, and only while
// no pending trades exist against the order. The pending-trade check and the
// status flip share one transaction so a trade created concurrently cannot be
// orphaned.
func (b *OrderBook) Cancel(ctx context.Context, orderID string, requesterID int64) error {
	err := b.store.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		order, err := tx.Orders().GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		if order.UserID != requesterID {
			return domain.ErrUnauthorized
		}
		if order.Status != domain.OrderStatusActive {
			return domain.ErrOrderNotActive
		}

		pending, err := tx.Trades().CountByOrder(ctx, orderID, domain.TradeStatusPending)
		if err != nil {
			return err
		}
		if pending > 0 {
			return fmt.Errorf("trading: cancel order %s: %d pending trades: %w",
				orderID, pending, domain.ErrInvalidStateTransition)
		}

		return tx.Orders().SetStatus(ctx, orderID, domain.OrderStatusActive, domain.OrderStatusCancelled)
	})
	if err != nil {
		return err
	}

	b.logger.InfoContext(ctx, "order cancelled",
		slog.String("order_id", orderID),
		slog.Int64("user_id", requesterID),
	)
	return nil
}

// Reserve consumes liquidity from an order. It is called by the trade engine
// inside a store transaction; the conditional decrement in the store is the
// linearization point that prevents over-reservation.
func (b *OrderBook) Reserve(ctx context.Context, tx domain.Store, orderID string, amount decimal.Decimal) (domain.Order, error) {
	return tx.Orders().Reserve(ctx, orderID, amount)
}

// Release returns previously reserved liquidity to an order, reopening a
// drained order. Called inside cancel, expiry, and seller-wins dispute
// transactions.
func (b *OrderBook) Release(ctx context.Context, tx domain.Store, orderID string, amount decimal.Decimal) (domain.Order, error) {
	return tx.Orders().Release(ctx, orderID, amount)
}
