package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// OrderFilter narrows ListActive results. Zero values mean "no filter".
type OrderFilter struct {
	Side          OrderSide
	TokenSymbol   string
	FiatCurrency  string
	PaymentMethod string
	ExcludeUserID int64
	Limit         int
	Offset        int
}

// TradeFilter narrows per-user trade listings.
type TradeFilter struct {
	Status TradeStatus
	Role   TradeRole // empty means either side
	Limit  int
}

// OrderStore persists standing offers.
//
// Reserve and Release are the linearization points for liquidity accounting:
// implementations must perform them as atomic conditional updates (decrement
// guarded by available_amount >= amount, verified by affected-row count) so
// that concurrent reservations can never jointly exceed the available amount.
type OrderStore interface {
	Create(ctx context.Context, o Order) error
	GetByID(ctx context.Context, id string) (Order, error)
	ListActive(ctx context.Context, f OrderFilter, now time.Time) ([]Order, error)
	ListByUser(ctx context.Context, userID int64, status OrderStatus, limit int) ([]Order, error)

	// Reserve moves amount from available to filled and increments the trade
	// counter; when the order is drained it flips status to completed. It
	// returns ErrInsufficientLiquidity when the conditional update matches no
	// row with enough liquidity, and ErrOrderNotFound when the order does not
	// exist.
	Reserve(ctx context.Context, id string, amount decimal.Decimal) (Order, error)

	// Release is the inverse of Reserve: it returns amount to available,
	// reopening a completed order if necessary.
	Release(ctx context.Context, id string, amount decimal.Decimal) (Order, error)

	// SetStatus conditionally transitions the order status, returning
	// ErrInvalidStateTransition when the row is no longer in the from state.
	SetStatus(ctx context.Context, id string, from, to OrderStatus) error
}

// TradeStore persists trade commitments.
type TradeStore interface {
	Create(ctx context.Context, t Trade) error
	GetByID(ctx context.Context, id string) (Trade, error)
	ListByUser(ctx context.Context, userID int64, f TradeFilter) ([]Trade, error)
	ListByOrder(ctx context.Context, orderID string, status TradeStatus) ([]Trade, error)
	CountByOrder(ctx context.Context, orderID string, status TradeStatus) (int64, error)

	// ListExpired returns pending trades whose deadline is at or before now.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]Trade, error)

	// ListTerminalBefore returns completed/cancelled/expired trades created
	// before the cutoff, for audit archival.
	ListTerminalBefore(ctx context.Context, before time.Time) ([]Trade, error)

	// Transition conditionally moves the trade to the target status, stamping
	// the matching timestamp column. The update only matches rows currently
	// in one of the from states; otherwise ErrInvalidStateTransition is
	// returned (ErrTradeNotFound when the row does not exist at all).
	Transition(ctx context.Context, id string, to TradeStatus, at time.Time, from ...TradeStatus) error

	// OpenDispute is Transition to disputed plus the dispute reason.
	OpenDispute(ctx context.Context, id, reason string, at time.Time) error

	// SetDisputeWinner records the arbitration outcome.
	SetDisputeWinner(ctx context.Context, id string, winner TradeRole) error

	// SetEscrowID links the funded escrow to its trade.
	SetEscrowID(ctx context.Context, id, escrowID string) error

	// SetRating stores one party's star rating and comment. The update is
	// conditional on the corresponding rating column being unset;
	// ErrAlreadyRated is returned otherwise.
	SetRating(ctx context.Context, id string, role TradeRole, stars int, comment string) error
}

// EscrowStore persists custody records.
type EscrowStore interface {
	Create(ctx context.Context, e Escrow) error
	GetByID(ctx context.Context, id string) (Escrow, error)
	GetByTradeID(ctx context.Context, tradeID string) (Escrow, error)

	// Transition conditionally moves the escrow to the target status,
	// stamping the matching timestamp column. ErrInvalidEscrowState is
	// returned when the row is not in one of the from states.
	Transition(ctx context.Context, id string, to EscrowStatus, at time.Time, from ...EscrowStatus) error

	// SetReleaseTxRef records the on-chain transaction reference reported by
	// the custody collaborator for a released escrow.
	SetReleaseTxRef(ctx context.Context, id, txRef string) error
}

// MessageStore persists the append-only per-trade chat log.
type MessageStore interface {
	Create(ctx context.Context, m ChatMessage) error
	ListByTrade(ctx context.Context, tradeID string, limit, offset int) ([]ChatMessage, error)
}

// UserStore persists reputation counters on the user collaborator record.
type UserStore interface {
	GetByID(ctx context.Context, id int64) (User, error)

	// RecordTradeOutcome increments total_trades, and successful_trades when
	// success is true, in a single atomic update.
	RecordTradeOutcome(ctx context.Context, id int64, success bool) error

	// ApplyRatingPct folds a new 0-100 percentage into the weighted running
	// average atomically: rating = (rating*(n-1) + pct) / n with
	// n = max(total_trades, 1).
	ApplyRatingPct(ctx context.Context, id int64, pct float64) error
}

// Store is the ledger store: the transactional unit of work over every record
// the trading engine touches.
type Store interface {
	Orders() OrderStore
	Trades() TradeStore
	Escrows() EscrowStore
	Messages() MessageStore
	Users() UserStore

	// WithinTx runs fn against a Store bound to a single database
	// transaction. The transaction commits when fn returns nil and rolls
	// back otherwise; every write fn performed is all-or-nothing. Nested
	// calls reuse the ambient transaction.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}
