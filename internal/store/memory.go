package store

import (
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/atmx/hyperdrive-engine/internal/model"
	"github.com/atmx/hyperdrive-engine/internal/wallet"
)

type walletKey struct {
	pool string
	addr common.Address
}

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu      sync.RWMutex
	pools   map[string]*model.Pool
	ledger  []model.LedgerEntry
	wallets map[walletKey]*wallet.Wallet
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pools:   make(map[string]*model.Pool),
		wallets: make(map[walletKey]*wallet.Wallet),
	}
}

func (s *MemoryStore) CreatePool(_ context.Context, p *model.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pools[p.ID]; ok {
		return errors.Wrapf(ErrConflict, "pool %s", p.ID)
	}
	for _, existing := range s.pools {
		if p.Name != "" && existing.Name == p.Name {
			return errors.Wrapf(ErrConflict, "pool name %q", p.Name)
		}
	}

	cp := *p
	s.pools[p.ID] = &cp
	return nil
}

func (s *MemoryStore) GetPool(_ context.Context, id string) (*model.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pools[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "pool %s", id)
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) ListPools(_ context.Context) ([]model.Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pools := make([]model.Pool, 0, len(s.pools))
	for _, p := range s.pools {
		pools = append(pools, *p)
	}
	sort.Slice(pools, func(i, j int) bool {
		if pools[i].CreatedAt.Equal(pools[j].CreatedAt) {
			return pools[i].ID < pools[j].ID
		}
		return pools[i].CreatedAt.After(pools[j].CreatedAt)
	})
	return pools, nil
}

func (s *MemoryStore) UpdatePool(_ context.Context, p *model.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.pools[p.ID]
	if !ok {
		return errors.Wrapf(ErrNotFound, "pool %s", p.ID)
	}
	existing.Clock = p.Clock
	existing.State = p.State
	existing.UpdatedAt = p.UpdatedAt
	return nil
}

func (s *MemoryStore) InsertLedgerEntry(_ context.Context, entry *model.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLedgerEntry(entry); err != nil {
		return err
	}
	s.ledger = append(s.ledger, *entry)
	return nil
}

// checkLedgerEntry enforces the ledger's unique id and per-pool sequence.
// Callers hold s.mu.
func (s *MemoryStore) checkLedgerEntry(entry *model.LedgerEntry) error {
	for _, e := range s.ledger {
		if e.ID == entry.ID {
			return errors.Wrapf(ErrConflict, "ledger entry %s", entry.ID)
		}
		if e.PoolID == entry.PoolID && e.Sequence == entry.Sequence {
			return errors.Wrapf(ErrConflict, "ledger sequence %d in pool %s", entry.Sequence, entry.PoolID)
		}
	}
	return nil
}

func (s *MemoryStore) GetLedgerEntriesByPool(_ context.Context, poolID string) ([]model.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.LedgerEntry
	for _, e := range s.ledger {
		if e.PoolID == poolID {
			result = append(result, e)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Sequence < result[j].Sequence })
	return result, nil
}

func (s *MemoryStore) GetLedgerEntriesByWallet(_ context.Context, addr common.Address) ([]model.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.LedgerEntry
	for _, e := range s.ledger {
		if common.HexToAddress(e.Wallet) == addr {
			result = append(result, e)
		}
	}
	return result, nil
}

func (s *MemoryStore) GetWallet(_ context.Context, poolID string, addr common.Address) (*wallet.Wallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.wallets[walletKey{poolID, addr}]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "wallet %s in pool %s", addr.Hex(), poolID)
	}
	return w.Clone(), nil
}

func (s *MemoryStore) PutWallet(_ context.Context, poolID string, w *wallet.Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.wallets[walletKey{poolID, w.Address}] = w.Clone()
	return nil
}

// CommitTrade checks every write before applying any of them.
func (s *MemoryStore) CommitTrade(_ context.Context, c TradeCommit) error {
	if err := c.validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.pools[c.Pool.ID]
	if !ok {
		return errors.Wrapf(ErrNotFound, "pool %s", c.Pool.ID)
	}
	if err := s.checkLedgerEntry(c.Entry); err != nil {
		return err
	}

	existing.Clock = c.Pool.Clock
	existing.State = c.Pool.State
	existing.UpdatedAt = c.Pool.UpdatedAt
	s.wallets[walletKey{c.Pool.ID, c.Wallet.Address}] = c.Wallet.Clone()
	s.ledger = append(s.ledger, *c.Entry)
	return nil
}
