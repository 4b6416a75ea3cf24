package trading

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nexuswallet/p2pcore/internal/domain"
)

// memStore is an in-memory domain.Store used by the engine tests. It mirrors
// the conditional-update semantics of the postgres store: reservations,
// transitions and ratings all re-check their precondition under the store
// lock, and WithinTx restores a snapshot when the callback fails.
type memStore struct {
	mu   sync.Mutex
	txMu sync.Mutex

	orders   map[string]domain.Order
	trades   map[string]domain.Trade
	escrows  map[string]domain.Escrow
	messages []domain.ChatMessage
	users    map[int64]domain.User
}

func newMemStore() *memStore {
	return &memStore{
		orders:  make(map[string]domain.Order),
		trades:  make(map[string]domain.Trade),
		escrows: make(map[string]domain.Escrow),
		users:   make(map[int64]domain.User),
	}
}

func (m *memStore) Orders() domain.OrderStore     { return (*memOrders)(m) }
func (m *memStore) Trades() domain.TradeStore     { return (*memTrades)(m) }
func (m *memStore) Escrows() domain.EscrowStore   { return (*memEscrows)(m) }
func (m *memStore) Messages() domain.MessageStore { return (*memMessages)(m) }
func (m *memStore) Users() domain.UserStore       { return (*memUsers)(m) }

func (m *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	snap := m.snapshot()
	if err := fn(ctx, m); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memSnapshot struct {
	orders   map[string]domain.Order
	trades   map[string]domain.Trade
	escrows  map[string]domain.Escrow
	messages []domain.ChatMessage
	users    map[int64]domain.User
}

func (m *memStore) snapshot() memSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := memSnapshot{
		orders:   make(map[string]domain.Order, len(m.orders)),
		trades:   make(map[string]domain.Trade, len(m.trades)),
		escrows:  make(map[string]domain.Escrow, len(m.escrows)),
		messages: append([]domain.ChatMessage(nil), m.messages...),
		users:    make(map[int64]domain.User, len(m.users)),
	}
	for k, v := range m.orders {
		s.orders[k] = v
	}
	for k, v := range m.trades {
		s.trades[k] = v
	}
	for k, v := range m.escrows {
		s.escrows[k] = v
	}
	for k, v := range m.users {
		s.users[k] = v
	}
	return s
}

func (m *memStore) restore(s memSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = s.orders
	m.trades = s.trades
	m.escrows = s.escrows
	m.messages = s.messages
	m.users = s.users
}

var _ domain.Store = (*memStore)(nil)

// --- orders ---

type memOrders memStore

func (s *memOrders) Create(ctx context.Context, o domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o
	return nil
}

func (s *memOrders) GetByID(ctx context.Context, id string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return o, nil
}

func (s *memOrders) ListActive(ctx context.Context, f domain.OrderFilter, now time.Time) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Order
	for _, o := range s.orders {
		if o.Status != domain.OrderStatusActive || !o.AvailableAmount.IsPositive() || o.Expired(now) {
			continue
		}
		if f.Side != "" && o.Side != f.Side {
			continue
		}
		if f.TokenSymbol != "" && o.TokenSymbol != f.TokenSymbol {
			continue
		}
		if f.FiatCurrency != "" && o.FiatCurrency != f.FiatCurrency {
			continue
		}
		if f.PaymentMethod != "" && !o.AcceptsPaymentMethod(f.PaymentMethod) {
			continue
		}
		if f.ExcludeUserID != 0 && o.UserID == f.ExcludeUserID {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if f.Side == domain.OrderSideSell {
			return out[i].PricePerUnit.LessThan(out[j].PricePerUnit)
		}
		return out[i].PricePerUnit.GreaterThan(out[j].PricePerUnit)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *memOrders) ListByUser(ctx context.Context, userID int64, status domain.OrderStatus, limit int) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Order
	for _, o := range s.orders {
		if o.UserID != userID {
			continue
		}
		if status != "" && o.Status != status {
			continue
		}
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memOrders) Reserve(ctx context.Context, id string, amount decimal.Decimal) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok || o.Status != domain.OrderStatusActive {
		return domain.Order{}, domain.ErrOrderNotActive
	}
	if o.AvailableAmount.LessThan(amount) {
		return domain.Order{}, domain.ErrInsufficientLiquidity
	}
	o.AvailableAmount = o.AvailableAmount.Sub(amount)
	o.FilledAmount = o.FilledAmount.Add(amount)
	o.TradesCount++
	if o.AvailableAmount.IsZero() {
		o.Status = domain.OrderStatusCompleted
	}
	s.orders[id] = o
	return o, nil
}

func (s *memOrders) Release(ctx context.Context, id string, amount decimal.Decimal) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok || o.FilledAmount.LessThan(amount) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	o.AvailableAmount = o.AvailableAmount.Add(amount)
	o.FilledAmount = o.FilledAmount.Sub(amount)
	if o.Status == domain.OrderStatusCompleted {
		o.Status = domain.OrderStatusActive
	}
	s.orders[id] = o
	return o, nil
}

func (s *memOrders) SetStatus(ctx context.Context, id string, from, to domain.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok || o.Status != from {
		return domain.ErrInvalidStateTransition
	}
	o.Status = to
	s.orders[id] = o
	return nil
}

// --- trades ---

type memTrades memStore

func (s *memTrades) Create(ctx context.Context, t domain.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades[t.ID] = t
	return nil
}

func (s *memTrades) GetByID(ctx context.Context, id string) (domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trades[id]
	if !ok {
		return domain.Trade{}, domain.ErrTradeNotFound
	}
	return t, nil
}

func (s *memTrades) ListByUser(ctx context.Context, userID int64, f domain.TradeFilter) ([]domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Trade
	for _, t := range s.trades {
		switch f.Role {
		case domain.TradeRoleBuyer:
			if t.BuyerID != userID {
				continue
			}
		case domain.TradeRoleSeller:
			if t.SellerID != userID {
				continue
			}
		default:
			if t.BuyerID != userID && t.SellerID != userID {
				continue
			}
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *memTrades) ListByOrder(ctx context.Context, orderID string, status domain.TradeStatus) ([]domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Trade
	for _, t := range s.trades {
		if t.OrderID != orderID {
			continue
		}
		if status != "" && t.Status != status {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *memTrades) CountByOrder(ctx context.Context, orderID string, status domain.TradeStatus) (int64, error) {
	trades, err := s.ListByOrder(ctx, orderID, status)
	return int64(len(trades)), err
}

func (s *memTrades) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Trade
	for _, t := range s.trades {
		if t.Status == domain.TradeStatusPending && t.Expired(now) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memTrades) ListTerminalBefore(ctx context.Context, before time.Time) ([]domain.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Trade
	for _, t := range s.trades {
		if t.Status.Terminal() && t.CreatedAt.Before(before) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memTrades) Transition(ctx context.Context, id string, to domain.TradeStatus, at time.Time, from ...domain.TradeStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.trades[id]
	if !ok {
		return domain.ErrTradeNotFound
	}
	matched := false
	for _, f := range from {
		if t.Status == f {
			matched = true
			break
		}
	}
	if !matched {
		return domain.ErrInvalidStateTransition
	}

	t.Status = to
	switch to {
	case domain.TradeStatusPaid:
		t.PaidAt = &at
	case domain.TradeStatusCompleted:
		t.ReleasedAt = &at
	case domain.TradeStatusCancelled, domain.TradeStatusExpired:
		t.CancelledAt = &at
	case domain.TradeStatusDisputed:
		t.DisputedAt = &at
	}
	s.trades[id] = t
	return nil
}

func (s *memTrades) OpenDispute(ctx context.Context, id, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.trades[id]
	if !ok {
		return domain.ErrTradeNotFound
	}
	if t.Status != domain.TradeStatusPending && t.Status != domain.TradeStatusPaid {
		return domain.ErrInvalidStateTransition
	}
	t.Status = domain.TradeStatusDisputed
	t.DisputeReason = reason
	t.DisputedAt = &at
	s.trades[id] = t
	return nil
}

func (s *memTrades) SetDisputeWinner(ctx context.Context, id string, winner domain.TradeRole) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.trades[id]
	if !ok {
		return domain.ErrTradeNotFound
	}
	t.DisputeWinner = winner
	s.trades[id] = t
	return nil
}

func (s *memTrades) SetEscrowID(ctx context.Context, id, escrowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.trades[id]
	if !ok {
		return domain.ErrTradeNotFound
	}
	t.EscrowID = escrowID
	s.trades[id] = t
	return nil
}

func (s *memTrades) SetRating(ctx context.Context, id string, role domain.TradeRole, stars int, comment string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.trades[id]
	if !ok {
		return domain.ErrTradeNotFound
	}
	if role == domain.TradeRoleBuyer {
		if t.BuyerRating != nil {
			return domain.ErrAlreadyRated
		}
		t.BuyerRating = &stars
		t.BuyerComment = comment
	} else {
		if t.SellerRating != nil {
			return domain.ErrAlreadyRated
		}
		t.SellerRating = &stars
		t.SellerComment = comment
	}
	s.trades[id] = t
	return nil
}

// --- escrows ---

type memEscrows memStore

func (s *memEscrows) Create(ctx context.Context, e domain.Escrow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.escrows[e.ID] = e
	return nil
}

func (s *memEscrows) GetByID(ctx context.Context, id string) (domain.Escrow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.escrows[id]
	if !ok {
		return domain.Escrow{}, domain.ErrEscrowNotFound
	}
	return e, nil
}

func (s *memEscrows) GetByTradeID(ctx context.Context, tradeID string) (domain.Escrow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.escrows {
		if e.TradeID == tradeID {
			return e, nil
		}
	}
	return domain.Escrow{}, domain.ErrEscrowNotFound
}

func (s *memEscrows) Transition(ctx context.Context, id string, to domain.EscrowStatus, at time.Time, from ...domain.EscrowStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.escrows[id]
	if !ok {
		return domain.ErrEscrowNotFound
	}
	matched := false
	for _, f := range from {
		if e.Status == f {
			matched = true
			break
		}
	}
	if !matched {
		return domain.ErrInvalidEscrowState
	}

	e.Status = to
	switch to {
	case domain.EscrowStatusFunded:
		e.FundedAt = &at
	case domain.EscrowStatusReleased:
		e.ReleasedAt = &at
	case domain.EscrowStatusRefunded, domain.EscrowStatusExpired:
		e.RefundedAt = &at
	}
	s.escrows[id] = e
	return nil
}

func (s *memEscrows) SetReleaseTxRef(ctx context.Context, id, txRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.escrows[id]
	if !ok {
		return domain.ErrEscrowNotFound
	}
	e.ReleaseTxRef = txRef
	s.escrows[id] = e
	return nil
}

// --- messages ---

type memMessages memStore

func (s *memMessages) Create(ctx context.Context, m domain.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, m)
	return nil
}

func (s *memMessages) ListByTrade(ctx context.Context, tradeID string, limit, offset int) ([]domain.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.ChatMessage
	for _, m := range s.messages {
		if m.TradeID == tradeID {
			out = append(out, m)
		}
	}
	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- users ---

type memUsers memStore

func (s *memUsers) GetByID(ctx context.Context, id int64) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

func (s *memUsers) RecordTradeOutcome(ctx context.Context, id int64, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.users[id]
	u.ID = id
	u.TotalTrades++
	if success {
		u.SuccessfulTrades++
	}
	s.users[id] = u
	return nil
}

func (s *memUsers) ApplyRatingPct(ctx context.Context, id int64, pct float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := s.users[id]
	u.ID = id
	n := float64(u.TotalTrades)
	if n < 1 {
		n = 1
	}
	u.Rating = (u.Rating*(n-1) + pct) / n
	s.users[id] = u
	return nil
}

// --- collaborator fakes ---

type staticWallets struct{}

func (staticWallets) WalletRef(ctx context.Context, userID int64, network string) (string, error) {
	return "wallet", nil
}

type failingWallets struct{}

func (failingWallets) WalletRef(ctx context.Context, userID int64, network string) (string, error) {
	return "", errors.New("wallet service down")
}

type fakeLimiter struct {
	allowed bool
	calls   int
}

func (l *fakeLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	l.calls++
	return l.allowed, nil
}

type recordedEvent struct {
	channel string
	payload []byte
}

type recordingBus struct {
	mu        sync.Mutex
	published []recordedEvent
	appended  []recordedEvent
}

func (b *recordingBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, recordedEvent{channel, payload})
	return nil
}

func (b *recordingBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.appended = append(b.appended, recordedEvent{stream, payload})
	return nil
}

func (b *recordingBus) StreamRead(ctx context.Context, stream, lastID string, count int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type recordedAlert struct {
	event, title, message string
}

type recordingAlerter struct {
	alerts []recordedAlert
}

func (a *recordingAlerter) Notify(ctx context.Context, event, title, message string) error {
	a.alerts = append(a.alerts, recordedAlert{event, title, message})
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEngine wires a TradeEngine over a fresh memStore.
func newTestEngine(wallets domain.WalletDirectory) (*TradeEngine, *memStore) {
	store := newMemStore()
	logger := testLogger()
	book := NewOrderBook(store, logger)
	escrow := NewEscrowManager(store, logger)
	rep := NewReputationTracker(store, logger)
	chat := NewChatLog(store, logger)
	return NewTradeEngine(store, book, escrow, rep, chat, wallets, logger), store
}
