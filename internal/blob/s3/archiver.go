package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nexuswallet/p2pcore/internal/domain"
)

// messagePageSize is the chat-log page size used while exporting a trade.
const messagePageSize = 500

// tradeExport is the stable JSONL schema for one archived trade and its full
// chat log. Ledger rows are never deleted; the export exists so audit
// retention does not depend on the primary store.
type tradeExport struct {
	TradeID       string     `json:"trade_id"`
	OrderID       string     `json:"order_id"`
	BuyerID       int64      `json:"buyer_id"`
	SellerID      int64      `json:"seller_id"`
	CryptoAmount  string     `json:"crypto_amount"`
	FiatAmount    string     `json:"fiat_amount"`
	PricePerUnit  string     `json:"price_per_unit"`
	FiatCurrency  string     `json:"fiat_currency"`
	TokenSymbol   string     `json:"token_symbol"`
	Network       string     `json:"network"`
	PaymentMethod string     `json:"payment_method"`
	Status        string     `json:"status"`
	EscrowID      string     `json:"escrow_id,omitempty"`
	DisputeReason string     `json:"dispute_reason,omitempty"`
	DisputeWinner string     `json:"dispute_winner,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ExpiresAt     time.Time  `json:"expires_at"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
	ReleasedAt    *time.Time `json:"released_at,omitempty"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
	DisputedAt    *time.Time `json:"disputed_at,omitempty"`

	Messages []messageExport `json:"messages"`
}

type messageExport struct {
	SenderID  int64     `json:"sender_id,omitempty"`
	Body      string    `json:"body"`
	IsSystem  bool      `json:"is_system,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Archiver periodically exports terminal trades and their chat logs to
// object storage as month-partitioned JSONL objects.
type Archiver struct {
	writer    *Writer
	verify    *Reader
	store     domain.Store
	retention time.Duration
	interval  time.Duration
	logger    *slog.Logger
}

// NewArchiver creates an Archiver. Retention is how old a terminal trade
// must be before export (default 30 days); interval is how often a round
// runs (default 24 hours).
func NewArchiver(writer *Writer, verify *Reader, store domain.Store, retention, interval time.Duration, logger *slog.Logger) *Archiver {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Archiver{
		writer:    writer,
		verify:    verify,
		store:     store,
		retention: retention,
		interval:  interval,
		logger:    logger,
	}
}

// Run loops until the context is cancelled, archiving once per interval.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.logger.InfoContext(ctx, "trade archiver started",
		slog.Duration("interval", a.interval),
		slog.Duration("retention", a.retention),
	)

	for {
		select {
		case <-ctx.Done():
			a.logger.InfoContext(ctx, "trade archiver stopped")
			return ctx.Err()
		case <-ticker.C:
			cutoff := time.Now().UTC().Add(-a.retention)
			n, err := a.ArchiveTrades(ctx, cutoff)
			if err != nil {
				a.logger.ErrorContext(ctx, "trade archive round failed",
					slog.String("error", err.Error()),
				)
				continue
			}
			if n > 0 {
				a.logger.InfoContext(ctx, "trade archive round finished",
					slog.Int64("trades", n),
				)
			}
		}
	}
}

// ArchiveTrades exports every terminal trade created before the cutoff,
// together with its chat log, to archive/trades/YYYY-MM.jsonl. The upload is
// verified with a HeadObject before the count is reported. No rows are
// deleted.
func (a *Archiver) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	trades, err := a.store.Trades().ListTerminalBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for _, t := range trades {
		rec, err := a.exportTrade(ctx, t)
		if err != nil {
			return 0, err
		}
		if err := enc.Encode(rec); err != nil {
			return 0, fmt.Errorf("s3blob: archive trades encode %s: %w", t.ID, err)
		}
	}

	path := archivePath("trades", before)
	if int64(buf.Len()) >= minPartSize {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf.Bytes()), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf.Bytes()), "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades upload: %w", err)
	}

	ok, err := a.verify.Exists(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades verify: %w", err)
	}
	if !ok {
		return 0, fmt.Errorf("s3blob: archive trades verify: %s missing after upload", path)
	}

	a.logger.InfoContext(ctx, "trades archived",
		slog.String("path", path),
		slog.Int("count", len(trades)),
	)
	return int64(len(trades)), nil
}

func (a *Archiver) exportTrade(ctx context.Context, t domain.Trade) (tradeExport, error) {
	rec := tradeExport{
		TradeID:       t.ID,
		OrderID:       t.OrderID,
		BuyerID:       t.BuyerID,
		SellerID:      t.SellerID,
		CryptoAmount:  t.CryptoAmount.String(),
		FiatAmount:    t.FiatAmount.String(),
		PricePerUnit:  t.PricePerUnit.String(),
		FiatCurrency:  t.FiatCurrency,
		TokenSymbol:   t.TokenSymbol,
		Network:       t.Network,
		PaymentMethod: t.PaymentMethod,
		Status:        string(t.Status),
		EscrowID:      t.EscrowID,
		DisputeReason: t.DisputeReason,
		DisputeWinner: string(t.DisputeWinner),
		CreatedAt:     t.CreatedAt,
		ExpiresAt:     t.ExpiresAt,
		PaidAt:        t.PaidAt,
		ReleasedAt:    t.ReleasedAt,
		CancelledAt:   t.CancelledAt,
		DisputedAt:    t.DisputedAt,
	}

	for offset := 0; ; offset += messagePageSize {
		msgs, err := a.store.Messages().ListByTrade(ctx, t.ID, messagePageSize, offset)
		if err != nil {
			return tradeExport{}, fmt.Errorf("s3blob: archive trade %s messages: %w", t.ID, err)
		}
		for _, m := range msgs {
			rec.Messages = append(rec.Messages, messageExport{
				SenderID:  m.SenderID,
				Body:      m.Body,
				IsSystem:  m.IsSystem,
				CreatedAt: m.CreatedAt,
			})
		}
		if len(msgs) < messagePageSize {
			break
		}
	}

	return rec, nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/trades/2026-08.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}
