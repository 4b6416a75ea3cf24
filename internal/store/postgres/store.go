package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nexuswallet/p2pcore/internal/domain"
)

// querier is the subset of pgx shared by pgxpool.Pool and pgx.Tx, so the
// per-entity stores work identically inside and outside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements domain.Store. A Store is either pool-bound (pool != nil)
// or bound to a live transaction, in which case WithinTx reuses it.
type Store struct {
	db   querier
	pool *pgxpool.Pool
}

// NewStore creates a pool-bound Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{db: pool, pool: pool}
}

// Orders returns the order store view.
func (s *Store) Orders() domain.OrderStore { return &OrderStore{db: s.db} }

// Trades returns the trade store view.
func (s *Store) Trades() domain.TradeStore { return &TradeStore{db: s.db} }

// Escrows returns the escrow store view.
func (s *Store) Escrows() domain.EscrowStore { return &EscrowStore{db: s.db} }

// Messages returns the chat message store view.
func (s *Store) Messages() domain.MessageStore { return &MessageStore{db: s.db} }

// Users returns the reputation store view.
func (s *Store) Users() domain.UserStore { return &UserStore{db: s.db} }

// WithinTx runs fn against a Store bound to a single transaction. When the
// receiver is already transaction-bound, fn joins the ambient transaction
// instead of opening a nested one.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Store) error) error {
	if s.pool == nil {
		return fn(ctx, s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}

	if err := fn(ctx, &Store{db: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit tx: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.Store = (*Store)(nil)
