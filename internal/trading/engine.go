package trading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nexuswallet/p2pcore/internal/domain"
)

// CreateTradeRequest opens a trade against a standing order.
type CreateTradeRequest struct {
	OrderID       string
	InitiatorID   int64
	CryptoAmount  decimal.Decimal
	PaymentMethod string
}

// TradeEngine drives the trade state machine. Every transition that touches
// more than one record (order liquidity, trade row, escrow, reputation,
// system chat markers) runs inside a single ledger store transaction, so a
// failure after the liquidity reservation rolls the reservation back.
type TradeEngine struct {
	store   domain.Store
	book    *OrderBook
	escrow  *EscrowManager
	rep     *ReputationTracker
	chat    *ChatLog
	wallets domain.WalletDirectory
	logger  *slog.Logger
}

// NewTradeEngine creates a TradeEngine with all required collaborators.
func NewTradeEngine(
	store domain.Store,
	book *OrderBook,
	escrow *EscrowManager,
	rep *ReputationTracker,
	chat *ChatLog,
	wallets domain.WalletDirectory,
	logger *slog.Logger,
) *TradeEngine {
	return &TradeEngine{
		store:   store,
		book:    book,
		escrow:  escrow,
		rep:     rep,
		chat:    chat,
		wallets: wallets,
		logger:  logger,
	}
}

// CreateTrade reserves liquidity from the order, freezes the price, creates
// the pending trade, and records the funded escrow, all in one transaction.
// The buyer and seller are derived from the order side: against a sell order
// the initiator buys; against a buy order the initiator sells.
func (e *TradeEngine) CreateTrade(ctx context.Context, req CreateTradeRequest) (domain.Trade, error) {
	if !req.CryptoAmount.IsPositive() {
		return domain.Trade{}, domain.ErrAmountOutOfRange
	}

	var trade domain.Trade
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		order, err := tx.Orders().GetByID(ctx, req.OrderID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		if order.Status != domain.OrderStatusActive || order.Expired(now) {
			return domain.ErrOrderNotActive
		}
		if order.UserID == req.InitiatorID {
			return domain.ErrUnauthorized
		}
		if !order.AcceptsPaymentMethod(req.PaymentMethod) {
			return domain.ErrInvalidPaymentMethods
		}
		if !order.AmountWithinLimits(req.CryptoAmount) {
			return domain.ErrAmountOutOfRange
		}

		// Linearization point: the conditional decrement either consumes the
		// liquidity or fails with ErrInsufficientLiquidity.
		order, err = e.book.Reserve(ctx, tx, order.ID, req.CryptoAmount)
		if err != nil {
			return err
		}

		var buyerID, sellerID int64
		if order.Side == domain.OrderSideSell {
			sellerID, buyerID = order.UserID, req.InitiatorID
		} else {
			buyerID, sellerID = order.UserID, req.InitiatorID
		}

		trade = domain.Trade{
			ID:            uuid.New().String(),
			OrderID:       order.ID,
			BuyerID:       buyerID,
			SellerID:      sellerID,
			CryptoAmount:  req.CryptoAmount,
			FiatAmount:    req.CryptoAmount.Mul(order.PricePerUnit),
			PricePerUnit:  order.PricePerUnit,
			FiatCurrency:  order.FiatCurrency,
			TokenSymbol:   order.TokenSymbol,
			Network:       order.Network,
			PaymentMethod: req.PaymentMethod,
			Status:        domain.TradeStatusPending,
			ExpiresAt:     now.Add(time.Duration(order.TimeLimitMinutes) * time.Minute),
			CreatedAt:     now,
		}
		if err := tx.Trades().Create(ctx, trade); err != nil {
			return err
		}

		walletRef, err := e.wallets.WalletRef(ctx, sellerID, order.Network)
		if err != nil {
			return fmt.Errorf("trading: resolve seller wallet: %w", err)
		}
		esc, err := e.escrow.CreateAndFund(ctx, tx, trade, walletRef)
		if err != nil {
			return err
		}
		trade.EscrowID = esc.ID
		if err := tx.Trades().SetEscrowID(ctx, trade.ID, esc.ID); err != nil {
			return err
		}

		return e.chat.AppendSystem(ctx, tx, trade.ID,
			fmt.Sprintf("Trade opened for %s %s. Seller funds locked in escrow. Payment due by %s.",
				trade.CryptoAmount.String(), trade.TokenSymbol,
				trade.ExpiresAt.Format(time.RFC3339)))
	})
	if err != nil {
		return domain.Trade{}, err
	}

	e.logger.InfoContext(ctx, "trade created",
		slog.String("trade_id", trade.ID),
		slog.String("order_id", trade.OrderID),
		slog.Int64("buyer_id", trade.BuyerID),
		slog.Int64("seller_id", trade.SellerID),
		slog.String("amount", trade.CryptoAmount.String()),
	)
	return trade, nil
}

// GetTrade retrieves a single trade.
func (e *TradeEngine) GetTrade(ctx context.Context, id string) (domain.Trade, error) {
	return e.store.Trades().GetByID(ctx, id)
}

// ListUserTrades returns a user's trades, newest first.
func (e *TradeEngine) ListUserTrades(ctx context.Context, userID int64, f domain.TradeFilter) ([]domain.Trade, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	return e.store.Trades().ListByUser(ctx, userID, f)
}

// ListOrderTrades returns the trades opened against an order.
func (e *TradeEngine) ListOrderTrades(ctx context.Context, orderID string, status domain.TradeStatus) ([]domain.Trade, error) {
	return e.store.Trades().ListByOrder(ctx, orderID, status)
}

// MarkPaid records the buyer's fiat-sent claim. Only the buyer, only from
// pending.
func (e *TradeEngine) MarkPaid(ctx context.Context, tradeID string, userID int64) error {
	return e.store.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		trade, err := tx.Trades().GetByID(ctx, tradeID)
		if err != nil {
			return err
		}
		if trade.BuyerID != userID {
			return domain.ErrUnauthorized
		}
		if err := tx.Trades().Transition(ctx, tradeID, domain.TradeStatusPaid,
			time.Now().UTC(), domain.TradeStatusPending); err != nil {
			return err
		}
		return e.chat.AppendSystem(ctx, tx, tradeID, "Buyer marked the payment as sent.")
	})
}

// Release confirms payment receipt and hands the escrowed funds to the
// buyer. Only the seller, from pending or paid (a seller may release before
// the buyer marks paid). Liquidity stays consumed as filled amount, and both
// parties get a successful trade on their record.
func (e *TradeEngine) Release(ctx context.Context, tradeID string, userID int64) error {
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		trade, err := tx.Trades().GetByID(ctx, tradeID)
		if err != nil {
			return err
		}
		if trade.SellerID != userID {
			return domain.ErrUnauthorized
		}
		if err := tx.Trades().Transition(ctx, tradeID, domain.TradeStatusCompleted,
			time.Now().UTC(), domain.TradeStatusPending, domain.TradeStatusPaid); err != nil {
			return err
		}
		if err := e.escrow.Release(ctx, tx, trade.EscrowID); err != nil {
			return err
		}
		if err := e.rep.RecordSuccess(ctx, tx, trade.BuyerID); err != nil {
			return err
		}
		if err := e.rep.RecordSuccess(ctx, tx, trade.SellerID); err != nil {
			return err
		}
		return e.chat.AppendSystem(ctx, tx, tradeID, "Seller released the escrow. Trade completed.")
	})
	if err != nil {
		return err
	}

	e.logger.InfoContext(ctx, "trade completed",
		slog.String("trade_id", tradeID),
		slog.Int64("seller_id", userID),
	)
	return nil
}

// Cancel aborts a pending trade: the escrow is refunded to the seller and
// the reserved liquidity returns to the order. Either party may cancel, but
// only from pending; once the buyer has marked paid, only release or dispute
// can end the trade.
func (e *TradeEngine) Cancel(ctx context.Context, tradeID string, userID int64, reason string) error {
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		trade, err := tx.Trades().GetByID(ctx, tradeID)
		if err != nil {
			return err
		}
		if trade.RoleOf(userID) == "" {
			return domain.ErrUnauthorized
		}
		if err := tx.Trades().Transition(ctx, tradeID, domain.TradeStatusCancelled,
			time.Now().UTC(), domain.TradeStatusPending); err != nil {
			return err
		}
		if err := e.escrow.Refund(ctx, tx, trade.EscrowID); err != nil {
			return err
		}
		if _, err := e.book.Release(ctx, tx, trade.OrderID, trade.CryptoAmount); err != nil {
			return err
		}

		body := "Trade cancelled."
		if reason != "" {
			body = "Trade cancelled: " + reason
		}
		return e.chat.AppendSystem(ctx, tx, tradeID, body)
	})
	if err != nil {
		return err
	}

	e.logger.InfoContext(ctx, "trade cancelled",
		slog.String("trade_id", tradeID),
		slog.Int64("user_id", userID),
	)
	return nil
}

// OpenDispute freezes a pending or paid trade for external arbitration. The
// escrow stays held (marked disputed); no liquidity moves until resolution.
func (e *TradeEngine) OpenDispute(ctx context.Context, tradeID string, userID int64, reason string) error {
	err := e.store.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		trade, err := tx.Trades().GetByID(ctx, tradeID)
		if err != nil {
			return err
		}
		if trade.RoleOf(userID) == "" {
			return domain.ErrUnauthorized
		}
		if err := tx.Trades().OpenDispute(ctx, tradeID, reason, time.Now().UTC()); err != nil {
			return err
		}
		if err := e.escrow.MarkDisputed(ctx, tx, trade.EscrowID); err != nil {
			return err
		}
		return e.chat.AppendSystem(ctx, tx, tradeID, "Dispute opened: "+reason)
	})
	if err != nil {
		return err
	}

	e.logger.WarnContext(ctx, "trade disputed",
		slog.String("trade_id", tradeID),
		slog.Int64("user_id", userID),
		slog.String("reason", reason),
	)
	return nil
}

// ResolveDispute applies the arbitration outcome to a disputed trade. A
// buyer win follows the release path: escrow to the buyer, trade completed,
// both counters bumped. A seller win follows the refund path: escrow back to
// the seller, trade cancelled, liquidity restored to the order.
func (e *TradeEngine) ResolveDispute(ctx context.Context, tradeID string, winner domain.TradeRole) error {
	if winner != domain.TradeRoleBuyer && winner != domain.TradeRoleSeller {
		return fmt.Errorf("trading: resolve dispute %s: unknown winner %q", tradeID, winner)
	}

	err := e.store.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		trade, err := tx.Trades().GetByID(ctx, tradeID)
		if err != nil {
			return err
		}
		if trade.Status != domain.TradeStatusDisputed {
			return domain.ErrInvalidStateTransition
		}
		if err := tx.Trades().SetDisputeWinner(ctx, tradeID, winner); err != nil {
			return err
		}

		now := time.Now().UTC()
		if winner == domain.TradeRoleBuyer {
			if err := tx.Trades().Transition(ctx, tradeID, domain.TradeStatusCompleted,
				now, domain.TradeStatusDisputed); err != nil {
				return err
			}
			if err := e.escrow.Release(ctx, tx, trade.EscrowID); err != nil {
				return err
			}
			if err := e.rep.RecordSuccess(ctx, tx, trade.BuyerID); err != nil {
				return err
			}
			if err := e.rep.RecordSuccess(ctx, tx, trade.SellerID); err != nil {
				return err
			}
			return e.chat.AppendSystem(ctx, tx, tradeID,
				"Dispute resolved in the buyer's favor. Escrow released.")
		}

		if err := tx.Trades().Transition(ctx, tradeID, domain.TradeStatusCancelled,
			now, domain.TradeStatusDisputed); err != nil {
			return err
		}
		if err := e.escrow.Refund(ctx, tx, trade.EscrowID); err != nil {
			return err
		}
		if _, err := e.book.Release(ctx, tx, trade.OrderID, trade.CryptoAmount); err != nil {
			return err
		}
		return e.chat.AppendSystem(ctx, tx, tradeID,
			"Dispute resolved in the seller's favor. Escrow refunded.")
	})
	if err != nil {
		return err
	}

	e.logger.InfoContext(ctx, "dispute resolved",
		slog.String("trade_id", tradeID),
		slog.String("winner", string(winner)),
	)
	return nil
}

// RateTrade lets one party of a completed trade rate the counterpart, once.
func (e *TradeEngine) RateTrade(ctx context.Context, tradeID string, userID int64, stars int, comment string) error {
	if stars < 1 || stars > 5 {
		return domain.ErrInvalidRating
	}

	return e.store.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
		trade, err := tx.Trades().GetByID(ctx, tradeID)
		if err != nil {
			return err
		}
		role := trade.RoleOf(userID)
		if role == "" {
			return domain.ErrUnauthorized
		}
		if trade.Status != domain.TradeStatusCompleted {
			return domain.ErrTradeNotEnded
		}

		if err := tx.Trades().SetRating(ctx, tradeID, role, stars, comment); err != nil {
			return err
		}

		subject := trade.SellerID
		if role == domain.TradeRoleSeller {
			subject = trade.BuyerID
		}
		return e.rep.ApplyRating(ctx, tx, subject, stars)
	})
}

// ExpireDue finds pending trades past their deadline and applies the cancel
// effect to each, recorded as expired. Each trade expires in its own
// transaction with the status precondition re-checked inside it, so a
// concurrent user action wins cleanly and the sweep treats the loss as a
// no-op. Returns the number of trades expired.
func (e *TradeEngine) ExpireDue(ctx context.Context, now time.Time, limit int) (int, error) {
	due, err := e.store.Trades().ListExpired(ctx, now, limit)
	if err != nil {
		return 0, fmt.Errorf("trading: list expired trades: %w", err)
	}

	expired := 0
	for _, t := range due {
		err := e.store.WithinTx(ctx, func(ctx context.Context, tx domain.Store) error {
			if err := tx.Trades().Transition(ctx, t.ID, domain.TradeStatusExpired,
				now, domain.TradeStatusPending); err != nil {
				return err
			}
			if err := e.escrow.Refund(ctx, tx, t.EscrowID); err != nil {
				return err
			}
			if _, err := e.book.Release(ctx, tx, t.OrderID, t.CryptoAmount); err != nil {
				return err
			}
			return e.chat.AppendSystem(ctx, tx, t.ID, "Trade expired. Escrow refunded to the seller.")
		})
		if err != nil {
			if errors.Is(err, domain.ErrInvalidStateTransition) {
				// A user action got there first.
				continue
			}
			return expired, fmt.Errorf("trading: expire trade %s: %w", t.ID, err)
		}

		expired++
		e.logger.InfoContext(ctx, "trade expired",
			slog.String("trade_id", t.ID),
			slog.String("order_id", t.OrderID),
		)
	}
	return expired, nil
}
