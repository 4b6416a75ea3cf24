package trading

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nexuswallet/p2pcore/internal/domain"
)

// Trade lifecycle event types published on the signal bus and used for
// notification filtering.
const (
	EventOrderCreated    = "order_created"
	EventOrderCancelled  = "order_cancelled"
	EventTradeCreated    = "trade_created"
	EventTradePaid       = "trade_paid"
	EventTradeCompleted  = "trade_completed"
	EventTradeCancelled  = "trade_cancelled"
	EventTradeDisputed   = "trade_disputed"
	EventTradeExpired    = "trade_expired"
	EventDisputeResolved = "dispute_resolved"
)

// EventChannel is the pub/sub channel for ephemeral fan-out; EventStream is
// the durable ordered stream consumers resume from.
const (
	EventChannel = "p2p:events"
	EventStream  = "p2p:events:stream"
)

// publishEvent serializes a lifecycle event and emits it on both the pub/sub
// channel and the durable stream. Event delivery is best-effort: a bus
// failure is logged, never surfaced to the caller, because the ledger write
// already committed.
func publishEvent(ctx context.Context, bus domain.SignalBus, logger *slog.Logger, event string, fields map[string]any) {
	if bus == nil {
		return
	}

	fields["event"] = event
	fields["at"] = time.Now().UTC().Format(time.RFC3339)
	payload, err := json.Marshal(fields)
	if err != nil {
		logger.WarnContext(ctx, "event marshal failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := bus.Publish(ctx, EventChannel, payload); err != nil {
		logger.WarnContext(ctx, "event publish failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
	if err := bus.StreamAppend(ctx, EventStream, payload); err != nil {
		logger.WarnContext(ctx, "event stream append failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
