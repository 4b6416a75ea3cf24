package trading

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nexuswallet/p2pcore/internal/domain"
)

// Alerter delivers operator notifications for selected event types. It is
// implemented by the notify package.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// ServiceConfig tunes the facade's rate limiting.
type ServiceConfig struct {
	// TradeLimit caps how many trades one user may open per TradeWindow.
	TradeLimit  int
	TradeWindow time.Duration
}

// Service is the public face of the trading engine: it composes the order
// book, trade engine, chat log and reputation tracker, throttles trade
// creation per initiator, publishes lifecycle events, and alerts operators
// on disputes. Callers (bot handlers, HTTP layer) talk only to this type.
type Service struct {
	book    *OrderBook
	engine  *TradeEngine
	chat    *ChatLog
	rep     *ReputationTracker
	limiter domain.RateLimiter
	bus     domain.SignalBus
	alerter Alerter
	cfg     ServiceConfig
	logger  *slog.Logger
}

// NewService creates the trading service facade. The limiter, bus and
// alerter may be nil; the corresponding behavior is then skipped.
func NewService(
	book *OrderBook,
	engine *TradeEngine,
	chat *ChatLog,
	rep *ReputationTracker,
	limiter domain.RateLimiter,
	bus domain.SignalBus,
	alerter Alerter,
	cfg ServiceConfig,
	logger *slog.Logger,
) *Service {
	if cfg.TradeLimit <= 0 {
		cfg.TradeLimit = 5
	}
	if cfg.TradeWindow <= 0 {
		cfg.TradeWindow = time.Minute
	}
	return &Service{
		book:    book,
		engine:  engine,
		chat:    chat,
		rep:     rep,
		limiter: limiter,
		bus:     bus,
		alerter: alerter,
		cfg:     cfg,
		logger:  logger,
	}
}

// CreateOrder posts a standing offer and publishes an order_created event.
func (s *Service) CreateOrder(ctx context.Context, req CreateOrderRequest) (domain.Order, error) {
	order, err := s.book.CreateOrder(ctx, req)
	if err != nil {
		return domain.Order{}, err
	}

	publishEvent(ctx, s.bus, s.logger, EventOrderCreated, map[string]any{
		"order_id": order.ID,
		"user_id":  order.UserID,
		"side":     string(order.Side),
		"token":    order.TokenSymbol,
		"fiat":     order.FiatCurrency,
		"price":    order.PricePerUnit.String(),
		"total":    order.TotalAmount.String(),
	})
	return order, nil
}

// GetOrder retrieves a single order.
func (s *Service) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	return s.book.GetOrder(ctx, id)
}

// ListActiveOrders returns the live order book view, best price first.
func (s *Service) ListActiveOrders(ctx context.Context, f domain.OrderFilter) ([]domain.Order, error) {
	return s.book.ListActive(ctx, f)
}

// ListUserOrders returns a user's own orders, newest first.
func (s *Service) ListUserOrders(ctx context.Context, userID int64, status domain.OrderStatus, limit int) ([]domain.Order, error) {
	return s.book.ListUserOrders(ctx, userID, status, limit)
}

// CancelOrder cancels an active order with no pending trades.
func (s *Service) CancelOrder(ctx context.Context, orderID string, requesterID int64) error {
	if err := s.book.Cancel(ctx, orderID, requesterID); err != nil {
		return err
	}
	publishEvent(ctx, s.bus, s.logger, EventOrderCancelled, map[string]any{
		"order_id": orderID,
		"user_id":  requesterID,
	})
	return nil
}

// CreateTrade opens a trade against an order, throttled per initiator.
func (s *Service) CreateTrade(ctx context.Context, req CreateTradeRequest) (domain.Trade, error) {
	if s.limiter != nil {
		key := fmt.Sprintf("trades:%d", req.InitiatorID)
		allowed, err := s.limiter.Allow(ctx, key, s.cfg.TradeLimit, s.cfg.TradeWindow)
		if err != nil {
			return domain.Trade{}, fmt.Errorf("trading: rate limiter: %w", err)
		}
		if !allowed {
			return domain.Trade{}, domain.ErrRateLimited
		}
	}

	trade, err := s.engine.CreateTrade(ctx, req)
	if err != nil {
		return domain.Trade{}, err
	}

	publishEvent(ctx, s.bus, s.logger, EventTradeCreated, map[string]any{
		"trade_id":  trade.ID,
		"order_id":  trade.OrderID,
		"buyer_id":  trade.BuyerID,
		"seller_id": trade.SellerID,
		"amount":    trade.CryptoAmount.String(),
		"fiat":      trade.FiatAmount.String(),
	})
	return trade, nil
}

// GetTrade retrieves a single trade.
func (s *Service) GetTrade(ctx context.Context, id string) (domain.Trade, error) {
	return s.engine.GetTrade(ctx, id)
}

// ListUserTrades returns a user's trades, optionally narrowed by role and
// status.
func (s *Service) ListUserTrades(ctx context.Context, userID int64, f domain.TradeFilter) ([]domain.Trade, error) {
	return s.engine.ListUserTrades(ctx, userID, f)
}

// ListOrderTrades returns the trades opened against an order.
func (s *Service) ListOrderTrades(ctx context.Context, orderID string, status domain.TradeStatus) ([]domain.Trade, error) {
	return s.engine.ListOrderTrades(ctx, orderID, status)
}

// MarkPaid records the buyer's fiat-sent claim.
func (s *Service) MarkPaid(ctx context.Context, tradeID string, userID int64) error {
	if err := s.engine.MarkPaid(ctx, tradeID, userID); err != nil {
		return err
	}
	publishEvent(ctx, s.bus, s.logger, EventTradePaid, map[string]any{
		"trade_id": tradeID,
		"user_id":  userID,
	})
	return nil
}

// ReleaseTrade completes the trade and releases the escrow to the buyer.
func (s *Service) ReleaseTrade(ctx context.Context, tradeID string, userID int64) error {
	if err := s.engine.Release(ctx, tradeID, userID); err != nil {
		return err
	}
	publishEvent(ctx, s.bus, s.logger, EventTradeCompleted, map[string]any{
		"trade_id": tradeID,
		"user_id":  userID,
	})
	return nil
}

// CancelTrade aborts a pending trade, refunding the escrow and restoring
// order liquidity.
func (s *Service) CancelTrade(ctx context.Context, tradeID string, userID int64, reason string) error {
	if err := s.engine.Cancel(ctx, tradeID, userID, reason); err != nil {
		return err
	}
	publishEvent(ctx, s.bus, s.logger, EventTradeCancelled, map[string]any{
		"trade_id": tradeID,
		"user_id":  userID,
		"reason":   reason,
	})
	return nil
}

// OpenDispute freezes a trade for arbitration and alerts operators.
func (s *Service) OpenDispute(ctx context.Context, tradeID string, userID int64, reason string) error {
	if err := s.engine.OpenDispute(ctx, tradeID, userID, reason); err != nil {
		return err
	}

	publishEvent(ctx, s.bus, s.logger, EventTradeDisputed, map[string]any{
		"trade_id": tradeID,
		"user_id":  userID,
		"reason":   reason,
	})
	if s.alerter != nil {
		if err := s.alerter.Notify(ctx, EventTradeDisputed, "Trade disputed",
			fmt.Sprintf("Trade %s disputed by user %d: %s", tradeID, userID, reason)); err != nil {
			s.logger.WarnContext(ctx, "dispute alert failed",
				slog.String("trade_id", tradeID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// ResolveDispute applies the arbitration outcome and alerts operators.
func (s *Service) ResolveDispute(ctx context.Context, tradeID string, winner domain.TradeRole) error {
	if err := s.engine.ResolveDispute(ctx, tradeID, winner); err != nil {
		return err
	}

	publishEvent(ctx, s.bus, s.logger, EventDisputeResolved, map[string]any{
		"trade_id": tradeID,
		"winner":   string(winner),
	})
	if s.alerter != nil {
		if err := s.alerter.Notify(ctx, EventDisputeResolved, "Dispute resolved",
			fmt.Sprintf("Trade %s resolved in favor of the %s", tradeID, winner)); err != nil {
			s.logger.WarnContext(ctx, "resolution alert failed",
				slog.String("trade_id", tradeID),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// RateTrade records one party's rating of the counterpart on a completed
// trade.
func (s *Service) RateTrade(ctx context.Context, tradeID string, userID int64, stars int, comment string) error {
	return s.engine.RateTrade(ctx, tradeID, userID, stars, comment)
}

// SendMessage appends a chat message to a trade the sender is party to.
func (s *Service) SendMessage(ctx context.Context, tradeID string, senderID int64, body string) (domain.ChatMessage, error) {
	trade, err := s.engine.GetTrade(ctx, tradeID)
	if err != nil {
		return domain.ChatMessage{}, err
	}
	if trade.RoleOf(senderID) == "" {
		return domain.ChatMessage{}, domain.ErrUnauthorized
	}
	return s.chat.Append(ctx, tradeID, senderID, body)
}

// ListMessages returns a trade's chat log, oldest first.
func (s *Service) ListMessages(ctx context.Context, tradeID string, limit, offset int) ([]domain.ChatMessage, error) {
	return s.chat.List(ctx, tradeID, limit, offset)
}

// UserStats returns a user's reputation snapshot.
func (s *Service) UserStats(ctx context.Context, userID int64) (domain.User, error) {
	return s.rep.UserStats(ctx, userID)
}

// ExpireDue runs one expiry pass and publishes an event per expired trade.
func (s *Service) ExpireDue(ctx context.Context, now time.Time, limit int) (int, error) {
	n, err := s.engine.ExpireDue(ctx, now, limit)
	if n > 0 {
		publishEvent(ctx, s.bus, s.logger, EventTradeExpired, map[string]any{
			"count": n,
		})
	}
	return n, err
}
