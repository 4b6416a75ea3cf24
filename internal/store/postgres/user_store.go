package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/nexuswallet/p2pcore/internal/domain"
)

// UserStore implements domain.UserStore.
type UserStore struct {
	db querier
}

// GetByID retrieves the reputation record for a user.
func (s *UserStore) GetByID(ctx context.Context, id int64) (domain.User, error) {
	var u domain.User
	err := s.db.QueryRow(ctx,
		`SELECT id, username, total_trades, successful_trades, rating, created_at
		 FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Username, &u.TotalTrades, &u.SuccessfulTrades, &u.Rating, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("postgres: get user %d: %w", id, err)
	}
	return u, nil
}

// RecordTradeOutcome bumps the trade counters in a single update.
func (s *UserStore) RecordTradeOutcome(ctx context.Context, id int64, success bool) error {
	inc := 0
	if success {
		inc = 1
	}

	tag, err := s.db.Exec(ctx,
		`UPDATE users SET total_trades = total_trades + 1,
			successful_trades = successful_trades + $2
		 WHERE id = $1`,
		id, inc,
	)
	if err != nil {
		return fmt.Errorf("postgres: record trade outcome for user %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ApplyRatingPct folds a 0-100 percentage into the weighted running average.
// The whole read-modify-write happens inside one UPDATE, so concurrent rating
// events serialize on the row instead of clobbering each other.
func (s *UserStore) ApplyRatingPct(ctx context.Context, id int64, pct float64) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE users SET rating =
			(rating * (GREATEST(total_trades, 1) - 1) + $2) / GREATEST(total_trades, 1)
		 WHERE id = $1`,
		id, pct,
	)
	if err != nil {
		return fmt.Errorf("postgres: apply rating for user %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Compile-time interface check.
var _ domain.UserStore = (*UserStore)(nil)
