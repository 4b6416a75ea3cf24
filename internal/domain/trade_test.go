package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	legal := []struct{ from, to TradeStatus }{
		{TradeStatusPending, TradeStatusPaid},
		{TradeStatusPending, TradeStatusCompleted},
		{TradeStatusPending, TradeStatusCancelled},
		{TradeStatusPending, TradeStatusDisputed},
		{TradeStatusPending, TradeStatusExpired},
		{TradeStatusPaid, TradeStatusCompleted},
		{TradeStatusPaid, TradeStatusDisputed},
		{TradeStatusDisputed, TradeStatusCompleted},
		{TradeStatusDisputed, TradeStatusCancelled},
	}
	for _, tc := range legal {
		assert.True(t, CanTransition(tc.from, tc.to), "%s -> %s should be legal", tc.from, tc.to)
	}

	illegal := []struct{ from, to TradeStatus }{
		{TradeStatusPaid, TradeStatusCancelled},
		{TradeStatusPaid, TradeStatusExpired},
		{TradeStatusPaid, TradeStatusPending},
		{TradeStatusDisputed, TradeStatusExpired},
		{TradeStatusDisputed, TradeStatusPaid},
		{TradeStatusCompleted, TradeStatusCancelled},
		{TradeStatusCancelled, TradeStatusPending},
		{TradeStatusExpired, TradeStatusPaid},
		{TradeStatusPending, TradeStatusPending},
	}
	for _, tc := range illegal {
		assert.False(t, CanTransition(tc.from, tc.to), "%s -> %s should be illegal", tc.from, tc.to)
	}
}

func TestTradeStatusTerminal(t *testing.T) {
	assert.True(t, TradeStatusCompleted.Terminal())
	assert.True(t, TradeStatusCancelled.Terminal())
	assert.True(t, TradeStatusExpired.Terminal())

	assert.False(t, TradeStatusPending.Terminal())
	assert.False(t, TradeStatusPaid.Terminal())
	assert.False(t, TradeStatusDisputed.Terminal(), "disputed trades are frozen, not finished")
}

func TestTradeRoleOf(t *testing.T) {
	trade := Trade{BuyerID: 10, SellerID: 20}

	assert.Equal(t, TradeRoleBuyer, trade.RoleOf(10))
	assert.Equal(t, TradeRoleSeller, trade.RoleOf(20))
	assert.Equal(t, TradeRole(""), trade.RoleOf(30))
}

func TestTradeExpired(t *testing.T) {
	now := time.Now().UTC()
	trade := Trade{ExpiresAt: now}

	assert.True(t, trade.Expired(now), "deadline is inclusive")
	assert.True(t, trade.Expired(now.Add(time.Second)))
	assert.False(t, trade.Expired(now.Add(-time.Second)))
}
