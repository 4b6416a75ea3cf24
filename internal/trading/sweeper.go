package trading

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nexuswallet/p2pcore/internal/domain"
)

// sweepLockKey is the distributed lock guarding the expiry sweep so only one
// engine instance runs a given round.
const sweepLockKey = "sweep"

// sweepBatchSize bounds how many trades one round expires.
const sweepBatchSize = 200

// Sweeper periodically expires pending trades past their payment deadline.
// Rounds are single-flight across instances via a Redis lock; a round is
// skipped, not queued, when another instance holds it. The sweep itself is
// idempotent, so losing a round costs nothing but latency.
type Sweeper struct {
	svc      *Service
	locks    domain.LockManager
	interval time.Duration
	logger   *slog.Logger
}

// NewSweeper creates a Sweeper driving the given service. A non-positive
// interval defaults to two minutes.
func NewSweeper(svc *Service, locks domain.LockManager, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	return &Sweeper{svc: svc, locks: locks, interval: interval, logger: logger}
}

// Run loops until the context is cancelled, sweeping once per interval.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.InfoContext(ctx, "expiry sweeper started",
		slog.Duration("interval", s.interval),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "expiry sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	unlock, err := s.locks.Acquire(ctx, sweepLockKey, s.interval)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return
		}
		s.logger.WarnContext(ctx, "sweep lock acquire failed",
			slog.String("error", err.Error()),
		)
		return
	}
	defer unlock()

	n, err := s.svc.ExpireDue(ctx, time.Now().UTC(), sweepBatchSize)
	if err != nil {
		s.logger.ErrorContext(ctx, "expiry sweep failed",
			slog.Int("expired", n),
			slog.String("error", err.Error()),
		)
		return
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "expiry sweep finished",
			slog.Int("expired", n),
		)
	}
}
