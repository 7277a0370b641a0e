package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/atmx/hyperdrive-engine/internal/model"
	"github.com/atmx/hyperdrive-engine/internal/wallet"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary. Redis failures are
// treated as cache misses.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreatePool(ctx context.Context, p *model.Pool) error {
	if err := s.primary.CreatePool(ctx, p); err != nil {
		return err
	}
	s.set(ctx, poolKey(p.ID), p)
	return nil
}

func (s *CachedStore) UpdatePool(ctx context.Context, p *model.Pool) error {
	if err := s.primary.UpdatePool(ctx, p); err != nil {
		return err
	}
	s.rdb.Del(ctx, poolKey(p.ID))
	return nil
}

func (s *CachedStore) PutWallet(ctx context.Context, poolID string, w *wallet.Wallet) error {
	if err := s.primary.PutWallet(ctx, poolID, w); err != nil {
		return err
	}
	s.rdb.Del(ctx, walletKeyFor(poolID, w.Address))
	return nil
}

func (s *CachedStore) CommitTrade(ctx context.Context, c TradeCommit) error {
	if err := s.primary.CommitTrade(ctx, c); err != nil {
		return err
	}
	s.rdb.Del(ctx, poolKey(c.Pool.ID), walletKeyFor(c.Pool.ID, c.Wallet.Address))
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetPool(ctx context.Context, id string) (*model.Pool, error) {
	var p model.Pool
	if s.get(ctx, poolKey(id), &p) {
		return &p, nil
	}

	got, err := s.primary.GetPool(ctx, id)
	if err != nil {
		return nil, err
	}
	s.set(ctx, poolKey(id), got)
	return got, nil
}

func (s *CachedStore) GetWallet(ctx context.Context, poolID string, addr common.Address) (*wallet.Wallet, error) {
	var w wallet.Wallet
	if s.get(ctx, walletKeyFor(poolID, addr), &w) {
		return &w, nil
	}

	got, err := s.primary.GetWallet(ctx, poolID, addr)
	if err != nil {
		return nil, err
	}
	s.set(ctx, walletKeyFor(poolID, addr), got)
	return got, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListPools(ctx context.Context) ([]model.Pool, error) {
	return s.primary.ListPools(ctx)
}

func (s *CachedStore) InsertLedgerEntry(ctx context.Context, entry *model.LedgerEntry) error {
	return s.primary.InsertLedgerEntry(ctx, entry)
}

func (s *CachedStore) GetLedgerEntriesByPool(ctx context.Context, poolID string) ([]model.LedgerEntry, error) {
	return s.primary.GetLedgerEntriesByPool(ctx, poolID)
}

func (s *CachedStore) GetLedgerEntriesByWallet(ctx context.Context, addr common.Address) ([]model.LedgerEntry, error) {
	return s.primary.GetLedgerEntriesByWallet(ctx, addr)
}

// --- Cache helpers ---

func (s *CachedStore) get(ctx context.Context, key string, dst any) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

func (s *CachedStore) set(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

func poolKey(id string) string { return fmt.Sprintf("pool:%s", id) }

func walletKeyFor(poolID string, addr common.Address) string {
	return fmt.Sprintf("wallet:%s:%s", poolID, addr.Hex())
}
