package trading

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nexuswallet/p2pcore/internal/domain"
)

// ChatLog is the append-only per-trade message trail. User messages and
// engine-generated system markers share the same log; nothing in it is ever
// mutated or deleted.
type ChatLog struct {
	store  domain.Store
	logger *slog.Logger
}

// NewChatLog creates a ChatLog over the given ledger store.
func NewChatLog(store domain.Store, logger *slog.Logger) *ChatLog {
	return &ChatLog{store: store, logger: logger}
}

// Append adds a user message to a trade's log. The body is bounded at
// domain.MaxMessageLen; party membership is checked by the caller.
func (c *ChatLog) Append(ctx context.Context, tradeID string, senderID int64, body string) (domain.ChatMessage, error) {
	if body == "" || len(body) > domain.MaxMessageLen {
		return domain.ChatMessage{}, fmt.Errorf("trading: chat message length %d outside 1..%d",
			len(body), domain.MaxMessageLen)
	}

	msg := domain.ChatMessage{
		ID:        uuid.New().String(),
		TradeID:   tradeID,
		SenderID:  senderID,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	if err := c.store.Messages().Create(ctx, msg); err != nil {
		return domain.ChatMessage{}, err
	}
	return msg, nil
}

// AppendSystem adds an engine-generated marker inside a trade transition
// transaction.
func (c *ChatLog) AppendSystem(ctx context.Context, tx domain.Store, tradeID, body string) error {
	msg := domain.ChatMessage{
		ID:        uuid.New().String(),
		TradeID:   tradeID,
		Body:      body,
		IsSystem:  true,
		CreatedAt: time.Now().UTC(),
	}
	return tx.Messages().Create(ctx, msg)
}

// List returns a trade's messages oldest first.
func (c *ChatLog) List(ctx context.Context, tradeID string, limit, offset int) ([]domain.ChatMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	return c.store.Messages().ListByTrade(ctx, tradeID, limit, offset)
}
