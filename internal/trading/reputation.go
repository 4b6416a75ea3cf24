package trading

import (
	"context"
	"log/slog"

	"github.com/nexuswallet/p2pcore/internal/domain"
)

// starsToPct converts a 1..5 star rating to the 0-100 scale the running
// average is kept on.
func starsToPct(stars int) float64 {
	return float64(stars) * 20
}

// ReputationTracker maintains per-user trade counters and the weighted
// rating average. The stored rating is an approximation: individual rating
// events are not kept, so the value cannot be recomputed from history.
type ReputationTracker struct {
	store  domain.Store
	logger *slog.Logger
}

// NewReputationTracker creates a ReputationTracker over the given ledger
// store.
func NewReputationTracker(store domain.Store, logger *slog.Logger) *ReputationTracker {
	return &ReputationTracker{store: store, logger: logger}
}

// RecordSuccess bumps both trade counters for a user after a completed
// trade. It runs inside the completing transaction.
func (r *ReputationTracker) RecordSuccess(ctx context.Context, tx domain.Store, userID int64) error {
	return tx.Users().RecordTradeOutcome(ctx, userID, true)
}

// ApplyRating folds a 1..5 star rating into the subject's weighted average.
func (r *ReputationTracker) ApplyRating(ctx context.Context, tx domain.Store, subjectID int64, stars int) error {
	if stars < 1 || stars > 5 {
		return domain.ErrInvalidRating
	}
	return tx.Users().ApplyRatingPct(ctx, subjectID, starsToPct(stars))
}

// UserStats returns the reputation snapshot for a user.
func (r *ReputationTracker) UserStats(ctx context.Context, userID int64) (domain.User, error) {
	return r.store.Users().GetByID(ctx, userID)
}
