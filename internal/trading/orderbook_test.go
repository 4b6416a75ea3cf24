package trading

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexuswallet/p2pcore/internal/domain"
)

func newTestBook() (*OrderBook, *memStore) {
	store := newMemStore()
	return NewOrderBook(store, testLogger()), store
}

func TestCreateOrder_Defaults(t *testing.T) {
	book, _ := newTestBook()

	order, err := book.CreateOrder(context.Background(), CreateOrderRequest{
		UserID:         1,
		Side:           domain.OrderSideSell,
		Network:        "ethereum",
		TokenSymbol:    "ETH",
		FiatCurrency:   "EUR",
		PricePerUnit:   dec("2000"),
		TotalAmount:    dec("2.0"),
		PaymentMethods: []string{"bank_transfer"},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusActive, order.Status)
	assert.True(t, order.AvailableAmount.Equal(order.TotalAmount))
	assert.True(t, order.FilledAmount.IsZero())
	assert.True(t, order.MinTradeAmount.Equal(dec("0.2")), "min defaults to 10%% of total")
	assert.True(t, order.MaxTradeAmount.Equal(order.TotalAmount), "max defaults to total")
	assert.Equal(t, DefaultTimeLimitMinutes, order.TimeLimitMinutes)
	assert.Nil(t, order.ExpiresAt, "no TTL means no deadline")
}

func TestCreateOrder_TTL(t *testing.T) {
	book, _ := newTestBook()

	order, err := book.CreateOrder(context.Background(), CreateOrderRequest{
		UserID:         1,
		Side:           domain.OrderSideBuy,
		TokenSymbol:    "USDT",
		FiatCurrency:   "USD",
		PricePerUnit:   dec("1"),
		TotalAmount:    dec("500"),
		PaymentMethods: []string{"wise"},
		TTLHours:       48,
	})
	require.NoError(t, err)
	require.NotNil(t, order.ExpiresAt)
	assert.WithinDuration(t, time.Now().UTC().Add(48*time.Hour), *order.ExpiresAt, time.Minute)
}

func TestCreateOrder_Rejections(t *testing.T) {
	book, _ := newTestBook()
	ctx := context.Background()

	base := CreateOrderRequest{
		UserID:         1,
		Side:           domain.OrderSideSell,
		TokenSymbol:    "ETH",
		FiatCurrency:   "EUR",
		PricePerUnit:   dec("2000"),
		TotalAmount:    dec("1.0"),
		PaymentMethods: []string{"bank_transfer"},
	}

	t.Run("unknown side", func(t *testing.T) {
		req := base
		req.Side = "short"
		_, err := book.CreateOrder(ctx, req)
		assert.Error(t, err)
	})

	t.Run("zero total", func(t *testing.T) {
		req := base
		req.TotalAmount = decimal.Zero
		_, err := book.CreateOrder(ctx, req)
		assert.ErrorIs(t, err, domain.ErrAmountOutOfRange)
	})

	t.Run("zero price", func(t *testing.T) {
		req := base
		req.PricePerUnit = decimal.Zero
		_, err := book.CreateOrder(ctx, req)
		assert.ErrorIs(t, err, domain.ErrAmountOutOfRange)
	})

	t.Run("no payment methods", func(t *testing.T) {
		req := base
		req.PaymentMethods = nil
		_, err := book.CreateOrder(ctx, req)
		assert.ErrorIs(t, err, domain.ErrInvalidPaymentMethods)
	})

	t.Run("unknown payment method", func(t *testing.T) {
		req := base
		req.PaymentMethods = []string{"bank_transfer", "barter"}
		_, err := book.CreateOrder(ctx, req)
		assert.ErrorIs(t, err, domain.ErrInvalidPaymentMethods)
	})

	t.Run("min above max", func(t *testing.T) {
		req := base
		req.MinTradeAmount = dec("0.8")
		req.MaxTradeAmount = dec("0.5")
		_, err := book.CreateOrder(ctx, req)
		assert.ErrorIs(t, err, domain.ErrAmountOutOfRange)
	})

	t.Run("max above total", func(t *testing.T) {
		req := base
		req.MaxTradeAmount = dec("2.0")
		_, err := book.CreateOrder(ctx, req)
		assert.ErrorIs(t, err, domain.ErrAmountOutOfRange)
	})
}

func TestCancelOrder(t *testing.T) {
	book, store := newTestBook()
	ctx := context.Background()

	order, err := book.CreateOrder(ctx, CreateOrderRequest{
		UserID:         1,
		Side:           domain.OrderSideSell,
		TokenSymbol:    "ETH",
		FiatCurrency:   "EUR",
		PricePerUnit:   dec("2000"),
		TotalAmount:    dec("1.0"),
		PaymentMethods: []string{"bank_transfer"},
	})
	require.NoError(t, err)

	// Only the owner may cancel.
	assert.ErrorIs(t, book.Cancel(ctx, order.ID, 2), domain.ErrUnauthorized)

	require.NoError(t, book.Cancel(ctx, order.ID, 1))

	got, err := store.Orders().GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, got.Status)

	// Cancelling twice fails: the order is no longer active.
	assert.ErrorIs(t, book.Cancel(ctx, order.ID, 1), domain.ErrOrderNotActive)
}

func TestCancelOrder_BlockedByPendingTrades(t *testing.T) {
	engine, store := newTestEngine(staticWallets{})
	book := NewOrderBook(store, testLogger())
	ctx := context.Background()

	order := seedOrder(t, store, 1, domain.OrderSideSell, "1.0", "2000")
	trade, err := engine.CreateTrade(ctx, CreateTradeRequest{
		OrderID: order.ID, InitiatorID: 2, CryptoAmount: dec("0.5"), PaymentMethod: "bank_transfer",
	})
	require.NoError(t, err)

	err = book.Cancel(ctx, order.ID, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidStateTransition)

	// After the trade settles, cancelling works.
	require.NoError(t, engine.Release(ctx, trade.ID, trade.SellerID))
	require.NoError(t, book.Cancel(ctx, order.ID, 1))
}

func TestListActive_Filters(t *testing.T) {
	book, store := newTestBook()
	ctx := context.Background()

	seedOrder(t, store, 1, domain.OrderSideSell, "1.0", "2100")
	seedOrder(t, store, 2, domain.OrderSideSell, "1.0", "1900")
	cancelled := seedOrder(t, store, 3, domain.OrderSideSell, "1.0", "1800")
	require.NoError(t, store.Orders().SetStatus(ctx, cancelled.ID, domain.OrderStatusActive, domain.OrderStatusCancelled))

	orders, err := book.ListActive(ctx, domain.OrderFilter{Side: domain.OrderSideSell, TokenSymbol: "ETH"})
	require.NoError(t, err)
	require.Len(t, orders, 2)

	// Cheapest sell first.
	assert.True(t, orders[0].PricePerUnit.Equal(dec("1900")))
	assert.True(t, orders[1].PricePerUnit.Equal(dec("2100")))

	// Excluding a maker hides their orders.
	orders, err = book.ListActive(ctx, domain.OrderFilter{Side: domain.OrderSideSell, ExcludeUserID: 2})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, int64(1), orders[0].UserID)
}
