package domain

import (
	"context"
	"io"
	"time"
)

// WalletDirectory resolves a user's custody wallet reference on a network.
// It is implemented by the external wallet collaborator; the engine never
// moves funds itself and treats the seller's lock as already effective when
// an escrow is funded.
type WalletDirectory interface {
	WalletRef(ctx context.Context, userID int64, network string) (string, error)
}

// LockManager provides distributed locks, used to keep periodic jobs
// single-flight across instances.
type LockManager interface {
	// Acquire obtains the lock or returns ErrLockHeld. The returned function
	// releases the lock and is safe to call more than once.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter answers whether an action identified by key is currently
// allowed under a sliding-window limit.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// StreamMessage is one durable bus entry.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus publishes trade lifecycle events for downstream consumers (bot
// notifications, analytics). Publish is fire-and-forget pub/sub;
// StreamAppend is durable and ordered.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream, lastID string, count int) ([]StreamMessage, error)
}

// BlobWriter uploads audit archives to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}
