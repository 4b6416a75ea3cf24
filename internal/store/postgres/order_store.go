package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/nexuswallet/p2pcore/internal/domain"
)

// OrderStore implements domain.OrderStore.
type OrderStore struct {
	db querier
}

const orderCols = `id, user_id, side, network, token_symbol, fiat_currency,
	price_per_unit, total_amount, available_amount, filled_amount,
	min_trade_amount, max_trade_amount, payment_methods, terms,
	time_limit_minutes, trades_count, status, created_at, updated_at, expires_at`

func scanOrder(scanner interface{ Scan(dest ...any) error }) (domain.Order, error) {
	var o domain.Order
	var side, status string

	err := scanner.Scan(
		&o.ID, &o.UserID, &side, &o.Network, &o.TokenSymbol, &o.FiatCurrency,
		&o.PricePerUnit, &o.TotalAmount, &o.AvailableAmount, &o.FilledAmount,
		&o.MinTradeAmount, &o.MaxTradeAmount, &o.PaymentMethods, &o.Terms,
		&o.TimeLimitMinutes, &o.TradesCount, &status, &o.CreatedAt, &o.UpdatedAt, &o.ExpiresAt,
	)
	if err != nil {
		return domain.Order{}, err
	}

	o.Side = domain.OrderSide(side)
	o.Status = domain.OrderStatus(status)
	return o, nil
}

func scanOrderRows(rows pgx.Rows) ([]domain.Order, error) {
	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// Create inserts a new order.
func (s *OrderStore) Create(ctx context.Context, o domain.Order) error {
	const query = `
		INSERT INTO p2p_orders (
			id, user_id, side, network, token_symbol, fiat_currency,
			price_per_unit, total_amount, available_amount, filled_amount,
			min_trade_amount, max_trade_amount, payment_methods, terms,
			time_limit_minutes, trades_count, status, created_at, updated_at, expires_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10,
			$11, $12, $13, $14,
			$15, $16, $17, $18, NOW(), $19
		)`

	_, err := s.db.Exec(ctx, query,
		o.ID, o.UserID, string(o.Side), o.Network, o.TokenSymbol, o.FiatCurrency,
		o.PricePerUnit, o.TotalAmount, o.AvailableAmount, o.FilledAmount,
		o.MinTradeAmount, o.MaxTradeAmount, o.PaymentMethods, o.Terms,
		o.TimeLimitMinutes, o.TradesCount, string(o.Status), o.CreatedAt, o.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create order %s: %w", o.ID, err)
	}
	return nil
}

// GetByID retrieves a single order.
func (s *OrderStore) GetByID(ctx context.Context, id string) (domain.Order, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+orderCols+` FROM p2p_orders WHERE id = $1`, id)

	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: get order %s: %w", id, err)
	}
	return o, nil
}

// ListActive returns active, unexpired orders with remaining liquidity,
// best-price first: sell orders ascending by price (cheapest first for a
// buyer), buy orders descending (highest first for a seller), earlier
// created_at breaking ties.
func (s *OrderStore) ListActive(ctx context.Context, f domain.OrderFilter, now time.Time) ([]domain.Order, error) {
	query := `SELECT ` + orderCols + ` FROM p2p_orders
		WHERE status = 'active' AND available_amount > 0
		AND (expires_at IS NULL OR expires_at > $1)`
	args := []any{now}
	argIdx := 2

	if f.Side != "" {
		query += fmt.Sprintf(" AND side = $%d", argIdx)
		args = append(args, string(f.Side))
		argIdx++
	}
	if f.TokenSymbol != "" {
		query += fmt.Sprintf(" AND token_symbol = $%d", argIdx)
		args = append(args, f.TokenSymbol)
		argIdx++
	}
	if f.FiatCurrency != "" {
		query += fmt.Sprintf(" AND fiat_currency = $%d", argIdx)
		args = append(args, f.FiatCurrency)
		argIdx++
	}
	if f.PaymentMethod != "" {
		query += fmt.Sprintf(" AND $%d = ANY(payment_methods)", argIdx)
		args = append(args, f.PaymentMethod)
		argIdx++
	}
	if f.ExcludeUserID != 0 {
		query += fmt.Sprintf(" AND user_id <> $%d", argIdx)
		args = append(args, f.ExcludeUserID)
		argIdx++
	}

	if f.Side == domain.OrderSideSell {
		query += " ORDER BY price_per_unit ASC, created_at ASC"
	} else {
		query += " ORDER BY price_per_unit DESC, created_at ASC"
	}

	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, f.Limit)
		argIdx++
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, f.Offset)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active orders: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan active orders: %w", err)
	}
	return orders, nil
}

// ListByUser returns a user's orders, newest first, optionally filtered by
// status.
func (s *OrderStore) ListByUser(ctx context.Context, userID int64, status domain.OrderStatus, limit int) ([]domain.Order, error) {
	query := `SELECT ` + orderCols + ` FROM p2p_orders WHERE user_id = $1`
	args := []any{userID}

	if status != "" {
		query += " AND status = $2"
		args = append(args, string(status))
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list user orders: %w", err)
	}
	defer rows.Close()

	orders, err := scanOrderRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan user orders: %w", err)
	}
	return orders, nil
}

// Reserve atomically consumes liquidity from an active order. The decrement
// is guarded inside the UPDATE itself (available_amount >= amount), so two
// concurrent reservations can never jointly exceed the available amount; a
// drained order flips to completed in the same statement.
func (s *OrderStore) Reserve(ctx context.Context, id string, amount decimal.Decimal) (domain.Order, error) {
	const query = `
		UPDATE p2p_orders SET
			available_amount = available_amount - $2,
			filled_amount = filled_amount + $2,
			trades_count = trades_count + 1,
			status = CASE WHEN available_amount - $2 = 0 THEN 'completed' ELSE status END,
			updated_at = NOW()
		WHERE id = $1 AND status = 'active' AND available_amount >= $2
		RETURNING ` + orderCols

	o, err := scanOrder(s.db.QueryRow(ctx, query, id, amount))
	if err == nil {
		return o, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Order{}, fmt.Errorf("postgres: reserve order %s: %w", id, err)
	}

	// No row matched: either the order is gone/inactive or the liquidity
	// guard failed. Distinguish so callers get a typed outcome.
	var exists bool
	if err := s.db.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM p2p_orders WHERE id = $1 AND status = 'active')", id,
	).Scan(&exists); err != nil {
		return domain.Order{}, fmt.Errorf("postgres: reserve order %s: %w", id, err)
	}
	if !exists {
		return domain.Order{}, domain.ErrOrderNotActive
	}
	return domain.Order{}, domain.ErrInsufficientLiquidity
}

// Release is the inverse of Reserve: it returns amount from filled to
// available, reopening a completed order.
func (s *OrderStore) Release(ctx context.Context, id string, amount decimal.Decimal) (domain.Order, error) {
	const query = `
		UPDATE p2p_orders SET
			available_amount = available_amount + $2,
			filled_amount = filled_amount - $2,
			status = CASE WHEN status = 'completed' THEN 'active' ELSE status END,
			updated_at = NOW()
		WHERE id = $1 AND filled_amount >= $2
		RETURNING ` + orderCols

	o, err := scanOrder(s.db.QueryRow(ctx, query, id, amount))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("postgres: release order %s: %w", id, err)
	}
	return o, nil
}

// SetStatus conditionally transitions the order status.
func (s *OrderStore) SetStatus(ctx context.Context, id string, from, to domain.OrderStatus) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE p2p_orders SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`,
		id, string(from), string(to),
	)
	if err != nil {
		return fmt.Errorf("postgres: set order status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvalidStateTransition
	}
	return nil
}

// Compile-time interface check.
var _ domain.OrderStore = (*OrderStore)(nil)
