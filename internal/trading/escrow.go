package trading

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nexuswallet/p2pcore/internal/domain"
)

// escrowGrace extends the escrow deadline past the trade deadline so a
// dispute opened near trade expiry can still be resolved against live
// custody state.
const escrowGrace = 24 * time.Hour

// EscrowManager tracks custody state for the seller's funds during a trade.
// It never moves value itself: the wallet collaborator's lock is assumed
// effective by the time CreateAndFund runs. Mutating methods take the
// transaction-bound store of the trade transition they belong to.
type EscrowManager struct {
	store  domain.Store
	logger *slog.Logger
}

// NewEscrowManager creates an EscrowManager over the given ledger store.
func NewEscrowManager(store domain.Store, logger *slog.Logger) *EscrowManager {
	return &EscrowManager{store: store, logger: logger}
}

// CreateAndFund records a funded escrow for the trade, with a 24 hour grace
// window beyond the trade deadline.
func (m *EscrowManager) CreateAndFund(ctx context.Context, tx domain.Store, t domain.Trade, fromWalletID string) (domain.Escrow, error) {
	now := time.Now().UTC()
	expires := t.ExpiresAt.Add(escrowGrace)

	esc := domain.Escrow{
		ID:           uuid.New().String(),
		TradeID:      t.ID,
		Network:      t.Network,
		TokenSymbol:  t.TokenSymbol,
		Amount:       t.CryptoAmount,
		FromWalletID: fromWalletID,
		FromUserID:   t.SellerID,
		ToUserID:     t.BuyerID,
		Status:       domain.EscrowStatusFunded,
		FundedAt:     &now,
		ExpiresAt:    &expires,
		CreatedAt:    now,
	}

	if err := tx.Escrows().Create(ctx, esc); err != nil {
		return domain.Escrow{}, fmt.Errorf("trading: fund escrow for trade %s: %w", t.ID, err)
	}
	return esc, nil
}

// Release moves a funded or disputed escrow to released. Released and
// refunded are mutually exclusive; the status precondition in the store
// guarantees only one terminal outcome wins.
func (m *EscrowManager) Release(ctx context.Context, tx domain.Store, escrowID string) error {
	return tx.Escrows().Transition(ctx, escrowID, domain.EscrowStatusReleased, time.Now().UTC(),
		domain.EscrowStatusFunded, domain.EscrowStatusDisputed)
}

// Refund moves a funded or disputed escrow to refunded.
func (m *EscrowManager) Refund(ctx context.Context, tx domain.Store, escrowID string) error {
	return tx.Escrows().Transition(ctx, escrowID, domain.EscrowStatusRefunded, time.Now().UTC(),
		domain.EscrowStatusFunded, domain.EscrowStatusDisputed)
}

// MarkDisputed freezes a funded escrow while arbitration runs.
func (m *EscrowManager) MarkDisputed(ctx context.Context, tx domain.Store, escrowID string) error {
	return tx.Escrows().Transition(ctx, escrowID, domain.EscrowStatusDisputed, time.Now().UTC(),
		domain.EscrowStatusFunded)
}

// Get retrieves the escrow backing a trade.
func (m *EscrowManager) Get(ctx context.Context, tradeID string) (domain.Escrow, error) {
	return m.store.Escrows().GetByTradeID(ctx, tradeID)
}

// RecordReleaseTx stores the transaction reference the custody collaborator
// reports after moving the released funds on-chain.
func (m *EscrowManager) RecordReleaseTx(ctx context.Context, escrowID, txRef string) error {
	if err := m.store.Escrows().SetReleaseTxRef(ctx, escrowID, txRef); err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "escrow release tx recorded",
		slog.String("escrow_id", escrowID),
		slog.String("tx_ref", txRef),
	)
	return nil
}
