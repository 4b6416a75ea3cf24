package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/nexuswallet/p2pcore/internal/domain"
)

// MessageStore implements domain.MessageStore. The log is append-only; no
// update or delete path exists.
type MessageStore struct {
	db querier
}

// Create appends a chat message.
func (s *MessageStore) Create(ctx context.Context, m domain.ChatMessage) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO p2p_messages (id, trade_id, sender_id, body, is_system, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		m.ID, m.TradeID, m.SenderID, m.Body, m.IsSystem, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create message %s: %w", m.ID, err)
	}
	return nil
}

// ListByTrade returns a trade's messages in chronological order.
func (s *MessageStore) ListByTrade(ctx context.Context, tradeID string, limit, offset int) ([]domain.ChatMessage, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, trade_id, sender_id, body, is_system, created_at
		 FROM p2p_messages WHERE trade_id = $1
		 ORDER BY created_at ASC LIMIT $2 OFFSET $3`,
		tradeID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trade messages: %w", err)
	}
	defer rows.Close()

	msgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.ChatMessage, error) {
		var m domain.ChatMessage
		err := row.Scan(&m.ID, &m.TradeID, &m.SenderID, &m.Body, &m.IsSystem, &m.CreatedAt)
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trade messages: %w", err)
	}
	return msgs, nil
}

// Compile-time interface check.
var _ domain.MessageStore = (*MessageStore)(nil)
