// Package store defines the persistence interface for pools, the trade
// ledger and trader wallets. Implementations include PostgreSQL (source of
// truth), Redis (read-through cache), and in-memory (for testing).
package store

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/atmx/hyperdrive-engine/internal/model"
	"github.com/atmx/hyperdrive-engine/internal/wallet"
)

var (
	ErrNotFound = errors.New("store: not found")
	ErrConflict = errors.New("store: already exists")
)

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Pool operations ---

	// CreatePool persists a new pool.
	CreatePool(ctx context.Context, p *model.Pool) error

	// GetPool retrieves a pool by its ID.
	GetPool(ctx context.Context, id string) (*model.Pool, error)

	// ListPools returns all pools, newest first.
	ListPools(ctx context.Context) ([]model.Pool, error)

	// UpdatePool stores the clock, reserve state and UpdatedAt of p.
	UpdatePool(ctx context.Context, p *model.Pool) error

	// --- Immutable ledger ---

	// InsertLedgerEntry appends an immutable trade record.
	InsertLedgerEntry(ctx context.Context, entry *model.LedgerEntry) error

	// GetLedgerEntriesByPool returns all trades for a pool in sequence order.
	GetLedgerEntriesByPool(ctx context.Context, poolID string) ([]model.LedgerEntry, error)

	// GetLedgerEntriesByWallet returns all trades made by a wallet.
	GetLedgerEntriesByWallet(ctx context.Context, addr common.Address) ([]model.LedgerEntry, error)

	// --- Wallets ---

	// GetWallet returns the wallet addr holds in a pool, or ErrNotFound.
	GetWallet(ctx context.Context, poolID string, addr common.Address) (*wallet.Wallet, error)

	// PutWallet replaces the stored wallet.
	PutWallet(ctx context.Context, poolID string, w *wallet.Wallet) error

	// --- Trades ---

	// CommitTrade stores everything one applied trade writes. Either all of
	// it is persisted or none of it is.
	CommitTrade(ctx context.Context, c TradeCommit) error
}

// TradeCommit is the write set of one applied trade: the updated pool, the
// trader's wallet after the trade and the ledger entry recording it.
type TradeCommit struct {
	Pool   *model.Pool
	Wallet *wallet.Wallet
	Entry  *model.LedgerEntry
}

func (c TradeCommit) validate() error {
	if c.Pool == nil || c.Wallet == nil || c.Entry == nil {
		return errors.New("store: trade commit needs a pool, a wallet and a ledger entry")
	}
	if c.Entry.PoolID != c.Pool.ID {
		return errors.Errorf("store: ledger entry for pool %s committed with pool %s", c.Entry.PoolID, c.Pool.ID)
	}
	return nil
}
