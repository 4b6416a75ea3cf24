package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/nexuswallet/p2pcore/internal/domain"
)

// EscrowStore implements domain.EscrowStore.
type EscrowStore struct {
	db querier
}

const escrowCols = `id, trade_id, network, token_symbol, amount,
	from_wallet_id, from_user_id, to_user_id, status, release_tx_ref,
	funded_at, released_at, refunded_at, expires_at, created_at`

func scanEscrow(scanner interface{ Scan(dest ...any) error }) (domain.Escrow, error) {
	var e domain.Escrow
	var status string

	err := scanner.Scan(
		&e.ID, &e.TradeID, &e.Network, &e.TokenSymbol, &e.Amount,
		&e.FromWalletID, &e.FromUserID, &e.ToUserID, &status, &e.ReleaseTxRef,
		&e.FundedAt, &e.ReleasedAt, &e.RefundedAt, &e.ExpiresAt, &e.CreatedAt,
	)
	if err != nil {
		return domain.Escrow{}, err
	}

	e.Status = domain.EscrowStatus(status)
	return e, nil
}

// Create inserts a new escrow record.
func (s *EscrowStore) Create(ctx context.Context, e domain.Escrow) error {
	const query = `
		INSERT INTO escrows (
			id, trade_id, network, token_symbol, amount,
			from_wallet_id, from_user_id, to_user_id, status,
			funded_at, expires_at, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12
		)`

	_, err := s.db.Exec(ctx, query,
		e.ID, e.TradeID, e.Network, e.TokenSymbol, e.Amount,
		e.FromWalletID, e.FromUserID, e.ToUserID, string(e.Status),
		e.FundedAt, e.ExpiresAt, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create escrow %s: %w", e.ID, err)
	}
	return nil
}

// GetByID retrieves a single escrow.
func (s *EscrowStore) GetByID(ctx context.Context, id string) (domain.Escrow, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+escrowCols+` FROM escrows WHERE id = $1`, id)

	e, err := scanEscrow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Escrow{}, domain.ErrEscrowNotFound
		}
		return domain.Escrow{}, fmt.Errorf("postgres: get escrow %s: %w", id, err)
	}
	return e, nil
}

// GetByTradeID retrieves the escrow backing a trade.
func (s *EscrowStore) GetByTradeID(ctx context.Context, tradeID string) (domain.Escrow, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+escrowCols+` FROM escrows WHERE trade_id = $1`, tradeID)

	e, err := scanEscrow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Escrow{}, domain.ErrEscrowNotFound
		}
		return domain.Escrow{}, fmt.Errorf("postgres: get escrow for trade %s: %w", tradeID, err)
	}
	return e, nil
}

func escrowStampCol(to domain.EscrowStatus) string {
	switch to {
	case domain.EscrowStatusFunded:
		return "funded_at"
	case domain.EscrowStatusReleased:
		return "released_at"
	case domain.EscrowStatusRefunded, domain.EscrowStatusExpired:
		return "refunded_at"
	default:
		return ""
	}
}

// Transition conditionally moves the escrow to the target status. Because
// released and refunded are mutually exclusive, the status precondition runs
// inside the UPDATE so only one of the two outcomes can ever win.
func (s *EscrowStore) Transition(ctx context.Context, id string, to domain.EscrowStatus, at time.Time, from ...domain.EscrowStatus) error {
	fromStr := make([]string, len(from))
	for i, st := range from {
		fromStr[i] = string(st)
	}

	query := `UPDATE escrows SET status = $2`
	if col := escrowStampCol(to); col != "" {
		query += `, ` + col + ` = $4`
	}
	query += ` WHERE id = $1 AND status = ANY($3)`

	args := []any{id, string(to), fromStr}
	if escrowStampCol(to) != "" {
		args = append(args, at)
	}

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("postgres: transition escrow %s to %s: %w", id, to, err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.db.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM escrows WHERE id = $1)", id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: transition escrow %s: %w", id, err)
		}
		if !exists {
			return domain.ErrEscrowNotFound
		}
		return domain.ErrInvalidEscrowState
	}
	return nil
}

// SetReleaseTxRef records the release transaction reference.
func (s *EscrowStore) SetReleaseTxRef(ctx context.Context, id, txRef string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE escrows SET release_tx_ref = $2 WHERE id = $1`,
		id, txRef,
	)
	if err != nil {
		return fmt.Errorf("postgres: set escrow tx ref %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEscrowNotFound
	}
	return nil
}

// Compile-time interface check.
var _ domain.EscrowStore = (*EscrowStore)(nil)
