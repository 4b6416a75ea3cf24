package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/nexuswallet/p2pcore/internal/domain"
)

// TradeStore implements domain.TradeStore.
type TradeStore struct {
	db querier
}

const tradeCols = `id, order_id, buyer_id, seller_id, crypto_amount, fiat_amount,
	price_per_unit, fiat_currency, token_symbol, network, payment_method,
	status, escrow_id, expires_at, paid_at, released_at, cancelled_at, disputed_at,
	dispute_reason, dispute_winner, buyer_rating, seller_rating,
	buyer_comment, seller_comment, created_at`

func scanTrade(scanner interface{ Scan(dest ...any) error }) (domain.Trade, error) {
	var t domain.Trade
	var status, winner string
	var escrowID *string

	err := scanner.Scan(
		&t.ID, &t.OrderID, &t.BuyerID, &t.SellerID, &t.CryptoAmount, &t.FiatAmount,
		&t.PricePerUnit, &t.FiatCurrency, &t.TokenSymbol, &t.Network, &t.PaymentMethod,
		&status, &escrowID, &t.ExpiresAt, &t.PaidAt, &t.ReleasedAt, &t.CancelledAt, &t.DisputedAt,
		&t.DisputeReason, &winner, &t.BuyerRating, &t.SellerRating,
		&t.BuyerComment, &t.SellerComment, &t.CreatedAt,
	)
	if err != nil {
		return domain.Trade{}, err
	}

	t.Status = domain.TradeStatus(status)
	t.DisputeWinner = domain.TradeRole(winner)
	if escrowID != nil {
		t.EscrowID = *escrowID
	}
	return t, nil
}

func scanTradeRows(rows pgx.Rows) ([]domain.Trade, error) {
	var trades []domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Create inserts a new trade.
func (s *TradeStore) Create(ctx context.Context, t domain.Trade) error {
	const query = `
		INSERT INTO p2p_trades (
			id, order_id, buyer_id, seller_id, crypto_amount, fiat_amount,
			price_per_unit, fiat_currency, token_symbol, network, payment_method,
			status, expires_at, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11,
			$12, $13, $14
		)`

	_, err := s.db.Exec(ctx, query,
		t.ID, t.OrderID, t.BuyerID, t.SellerID, t.CryptoAmount, t.FiatAmount,
		t.PricePerUnit, t.FiatCurrency, t.TokenSymbol, t.Network, t.PaymentMethod,
		string(t.Status), t.ExpiresAt, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create trade %s: %w", t.ID, err)
	}
	return nil
}

// GetByID retrieves a single trade.
func (s *TradeStore) GetByID(ctx context.Context, id string) (domain.Trade, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+tradeCols+` FROM p2p_trades WHERE id = $1`, id)

	t, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Trade{}, domain.ErrTradeNotFound
		}
		return domain.Trade{}, fmt.Errorf("postgres: get trade %s: %w", id, err)
	}
	return t, nil
}

// ListByUser returns a user's trades, newest first, optionally narrowed by
// role and status.
func (s *TradeStore) ListByUser(ctx context.Context, userID int64, f domain.TradeFilter) ([]domain.Trade, error) {
	var query string
	args := []any{userID}

	switch f.Role {
	case domain.TradeRoleBuyer:
		query = `SELECT ` + tradeCols + ` FROM p2p_trades WHERE buyer_id = $1`
	case domain.TradeRoleSeller:
		query = `SELECT ` + tradeCols + ` FROM p2p_trades WHERE seller_id = $1`
	default:
		query = `SELECT ` + tradeCols + ` FROM p2p_trades WHERE (buyer_id = $1 OR seller_id = $1)`
	}

	if f.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", len(args)+1)
		args = append(args, string(f.Status))
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args)+1)
	args = append(args, f.Limit)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list user trades: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan user trades: %w", err)
	}
	return trades, nil
}

// ListByOrder returns trades against an order, optionally filtered by status.
func (s *TradeStore) ListByOrder(ctx context.Context, orderID string, status domain.TradeStatus) ([]domain.Trade, error) {
	query := `SELECT ` + tradeCols + ` FROM p2p_trades WHERE order_id = $1`
	args := []any{orderID}

	if status != "" {
		query += " AND status = $2"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at ASC"

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list order trades: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan order trades: %w", err)
	}
	return trades, nil
}

// CountByOrder counts trades against an order in the given status.
func (s *TradeStore) CountByOrder(ctx context.Context, orderID string, status domain.TradeStatus) (int64, error) {
	var count int64
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM p2p_trades WHERE order_id = $1 AND status = $2`,
		orderID, string(status),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count order trades: %w", err)
	}
	return count, nil
}

// ListExpired returns pending trades whose deadline is at or before now,
// oldest deadline first.
func (s *TradeStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Trade, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+tradeCols+` FROM p2p_trades
		 WHERE status = 'pending' AND expires_at <= $1
		 ORDER BY expires_at ASC LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list expired trades: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan expired trades: %w", err)
	}
	return trades, nil
}

// ListTerminalBefore returns terminal trades created before the cutoff, for
// audit archival.
func (s *TradeStore) ListTerminalBefore(ctx context.Context, before time.Time) ([]domain.Trade, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+tradeCols+` FROM p2p_trades
		 WHERE status IN ('completed', 'cancelled', 'expired') AND created_at < $1
		 ORDER BY created_at ASC`,
		before,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list terminal trades: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan terminal trades: %w", err)
	}
	return trades, nil
}

// stampCol maps a target status to the timestamp column it stamps.
func stampCol(to domain.TradeStatus) string {
	switch to {
	case domain.TradeStatusPaid:
		return "paid_at"
	case domain.TradeStatusCompleted:
		return "released_at"
	case domain.TradeStatusCancelled, domain.TradeStatusExpired:
		return "cancelled_at"
	case domain.TradeStatusDisputed:
		return "disputed_at"
	default:
		return ""
	}
}

// Transition conditionally moves the trade to the target status. The status
// precondition is evaluated inside the UPDATE, so a concurrent user action
// and the expiry sweep cannot both win on the same trade.
func (s *TradeStore) Transition(ctx context.Context, id string, to domain.TradeStatus, at time.Time, from ...domain.TradeStatus) error {
	fromStr := make([]string, len(from))
	for i, st := range from {
		fromStr[i] = string(st)
	}

	query := `UPDATE p2p_trades SET status = $2`
	if col := stampCol(to); col != "" {
		query += `, ` + col + ` = $4`
	}
	query += ` WHERE id = $1 AND status = ANY($3)`

	args := []any{id, string(to), fromStr}
	if stampCol(to) != "" {
		args = append(args, at)
	}

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("postgres: transition trade %s to %s: %w", id, to, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.db.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM p2p_trades WHERE id = $1)", id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: transition trade %s: %w", id, err)
		}
		if !exists {
			return domain.ErrTradeNotFound
		}
		return domain.ErrInvalidStateTransition
	}
	return nil
}

// OpenDispute transitions the trade to disputed and records the reason.
func (s *TradeStore) OpenDispute(ctx context.Context, id, reason string, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE p2p_trades SET status = 'disputed', dispute_reason = $2, disputed_at = $3
		 WHERE id = $1 AND status IN ('pending', 'paid')`,
		id, reason, at,
	)
	if err != nil {
		return fmt.Errorf("postgres: open dispute %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvalidStateTransition
	}
	return nil
}

// SetDisputeWinner records the arbitration outcome.
func (s *TradeStore) SetDisputeWinner(ctx context.Context, id string, winner domain.TradeRole) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE p2p_trades SET dispute_winner = $2 WHERE id = $1`,
		id, string(winner),
	)
	if err != nil {
		return fmt.Errorf("postgres: set dispute winner %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTradeNotFound
	}
	return nil
}

// SetEscrowID links the funded escrow to its trade.
func (s *TradeStore) SetEscrowID(ctx context.Context, id, escrowID string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE p2p_trades SET escrow_id = $2 WHERE id = $1`,
		id, escrowID,
	)
	if err != nil {
		return fmt.Errorf("postgres: set trade escrow %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrTradeNotFound
	}
	return nil
}

// SetRating stores one party's rating, guarded on the column being unset.
func (s *TradeStore) SetRating(ctx context.Context, id string, role domain.TradeRole, stars int, comment string) error {
	var query string
	switch role {
	case domain.TradeRoleBuyer:
		query = `UPDATE p2p_trades SET buyer_rating = $2, buyer_comment = $3
			 WHERE id = $1 AND buyer_rating IS NULL`
	case domain.TradeRoleSeller:
		query = `UPDATE p2p_trades SET seller_rating = $2, seller_comment = $3
			 WHERE id = $1 AND seller_rating IS NULL`
	default:
		return domain.ErrUnauthorized
	}

	tag, err := s.db.Exec(ctx, query, id, stars, comment)
	if err != nil {
		return fmt.Errorf("postgres: set trade rating %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyRated
	}
	return nil
}

// Compile-time interface check.
var _ domain.TradeStore = (*TradeStore)(nil)
