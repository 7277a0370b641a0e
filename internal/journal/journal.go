// Package journal appends every applied trade to a write-ahead log so a
// pool's history can be replayed after a restart.
package journal

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/atmx/hyperdrive-engine/internal/model"
	"github.com/atmx/hyperdrive-engine/internal/wallet"
)

const (
	DefaultDir = "./wal/trades"
	keyPrefix  = "trade_"
)

var ErrClosed = errors.New("journal: closed")

// Config mirrors gowal.Config for the fields the journal exposes.
type Config struct {
	Dir              string
	SegmentThreshold int
	MaxSegments      int
	Sync             bool
}

// Entry is one applied trade.
type Entry struct {
	Sequence uint64            `json:"sequence"`
	PoolID   string            `json:"pool_id"`
	Action   model.TradeAction `json:"action"`
	Delta    wallet.Wallet     `json:"delta"`
	State    model.MarketState `json:"state"`
	Clock    int64             `json:"clock"`
	Time     time.Time         `json:"time"`
}

// Journal is safe for concurrent use.
type Journal struct {
	mu  sync.RWMutex
	wal *gowal.Wal
	now func() time.Time
}

// Open creates or reopens the log in cfg.Dir.
func Open(cfg Config) (*Journal, error) {
	if cfg.Dir == "" {
		cfg.Dir = DefaultDir
	}
	if cfg.SegmentThreshold <= 0 {
		cfg.SegmentThreshold = 1000
	}
	if cfg.MaxSegments <= 0 {
		cfg.MaxSegments = 100
	}
	w, err := gowal.NewWAL(gowal.Config{
		Dir:              cfg.Dir,
		Prefix:           "trades_",
		SegmentThreshold: cfg.SegmentThreshold,
		MaxSegments:      cfg.MaxSegments,
		IsInSyncDiskMode: cfg.Sync,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init trade journal")
	}
	return &Journal{wal: w, now: time.Now}, nil
}

// Append writes e and returns its sequence number. Sequence and Time are
// assigned by the journal.
func (j *Journal) Append(e Entry) (uint64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.wal == nil {
		return 0, ErrClosed
	}

	e.Sequence = j.wal.CurrentIndex() + 1
	e.Time = j.now().UTC()
	payload, err := json.Marshal(e)
	if err != nil {
		return 0, errors.Wrap(err, "marshal journal entry")
	}
	if err := j.wal.Write(e.Sequence, keyPrefix+e.PoolID, payload); err != nil {
		return 0, errors.Wrapf(err, "write journal entry %d", e.Sequence)
	}
	return e.Sequence, nil
}

// Len returns the last sequence number written.
func (j *Journal) Len() uint64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.wal == nil {
		return 0
	}
	return j.wal.CurrentIndex()
}

// Replay calls fn for every retained entry in write order. Entries dropped
// by segment rotation are skipped. A non-nil error from fn stops the replay.
func (j *Journal) Replay(fn func(Entry) error) error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.wal == nil {
		return ErrClosed
	}

	current := j.wal.CurrentIndex()
	for idx := uint64(1); idx <= current; idx++ {
		key, payload, err := j.wal.Get(idx)
		if err != nil || !strings.HasPrefix(key, keyPrefix) {
			continue
		}
		var e Entry
		if err := json.Unmarshal(payload, &e); err != nil {
			return errors.Wrapf(err, "decode journal entry %d", idx)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// PoolEntries returns the retained entries for one pool.
func (j *Journal) PoolEntries(poolID string) ([]Entry, error) {
	var out []Entry
	err := j.Replay(func(e Entry) error {
		if e.PoolID == poolID {
			out = append(out, e)
		}
		return nil
	})
	return out, err
}

// Close flushes and closes the log. Further calls return ErrClosed.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.wal == nil {
		return ErrClosed
	}
	err := j.wal.Close()
	j.wal = nil
	return err
}

// Recorder adapts the journal to agent.Recorder for one pool.
func (j *Journal) Recorder(poolID string) *PoolRecorder {
	return &PoolRecorder{j: j, pool: poolID}
}

// PoolRecorder appends trades of a single pool.
type PoolRecorder struct {
	j    *Journal
	pool string
}

func (r *PoolRecorder) Record(ctx context.Context, a model.TradeAction, delta wallet.Wallet, state model.MarketState, clock int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := r.j.Append(Entry{PoolID: r.pool, Action: a, Delta: delta, State: state, Clock: clock})
	return err
}
