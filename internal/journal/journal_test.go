package journal

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/hyperdrive-engine/internal/fixedpoint"
	"github.com/atmx/hyperdrive-engine/internal/model"
	"github.com/atmx/hyperdrive-engine/internal/wallet"
)

func open(t *testing.T, dir string) *Journal {
	t.Helper()
	j, err := Open(Config{Dir: dir, SegmentThreshold: 10, MaxSegments: 10})
	require.NoError(t, err)
	return j
}

func trade(kind model.ActionType, amount string) model.TradeAction {
	return model.TradeAction{Type: kind, Amount: fixedpoint.MustParse(amount), Wallet: common.HexToAddress("0xa1")}
}

func TestAppendAndReplay(t *testing.T) {
	j := open(t, t.TempDir())
	defer func() { assert.NoError(t, j.Close()) }()

	delta := wallet.Wallet{
		Base:  fixedpoint.MustParse("-100"),
		Longs: map[int64]wallet.Long{86400: {Balance: fixedpoint.MustParse("104.5")}},
	}
	seq, err := j.Append(Entry{PoolID: "p1", Action: trade(model.OpenLong, "100"), Delta: delta, Clock: 86400})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)
	_, err = j.Append(Entry{PoolID: "p2", Action: trade(model.AddLiquidity, "5")})
	require.NoError(t, err)
	_, err = j.Append(Entry{PoolID: "p1", Action: trade(model.CloseLong, "104.5")})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), j.Len())

	var seen []model.ActionType
	require.NoError(t, j.Replay(func(e Entry) error {
		seen = append(seen, e.Action.Type)
		return nil
	}))
	assert.Equal(t, []model.ActionType{model.OpenLong, model.AddLiquidity, model.CloseLong}, seen)

	p1, err := j.PoolEntries("p1")
	require.NoError(t, err)
	require.Len(t, p1, 2)
	assert.Equal(t, uint64(1), p1[0].Sequence)
	assert.Equal(t, "104.5", p1[0].Delta.Longs[86400].Balance.String())
	assert.Equal(t, int64(86400), p1[0].Clock)
	assert.False(t, p1[0].Time.IsZero())
}

func TestReplayStopsOnError(t *testing.T) {
	j := open(t, t.TempDir())
	defer j.Close()
	for i := 0; i < 3; i++ {
		_, err := j.Append(Entry{PoolID: "p", Action: trade(model.OpenShort, "1")})
		require.NoError(t, err)
	}
	stop := errors.New("stop")
	n := 0
	err := j.Replay(func(Entry) error {
		n++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, n)
}

func TestReopenKeepsHistory(t *testing.T) {
	dir := t.TempDir()
	j := open(t, dir)
	_, err := j.Append(Entry{PoolID: "p", Action: trade(model.OpenLong, "7")})
	require.NoError(t, err)
	require.NoError(t, j.Close())

	j = open(t, dir)
	defer j.Close()
	entries, err := j.PoolEntries("p")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "7", entries[0].Action.Amount.String())

	seq, err := j.Append(Entry{PoolID: "p", Action: trade(model.CloseLong, "7")})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), seq)
}

func TestClosedJournal(t *testing.T) {
	j := open(t, t.TempDir())
	require.NoError(t, j.Close())
	_, err := j.Append(Entry{})
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, j.Replay(func(Entry) error { return nil }), ErrClosed)
	assert.ErrorIs(t, j.Close(), ErrClosed)
}

func TestPoolRecorder(t *testing.T) {
	j := open(t, t.TempDir())
	defer j.Close()
	rec := j.Recorder("sim")

	require.NoError(t, rec.Record(context.Background(), trade(model.OpenLong, "3"), wallet.Wallet{}, model.MarketState{}, 60))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, rec.Record(ctx, trade(model.OpenLong, "3"), wallet.Wallet{}, model.MarketState{}, 60), context.Canceled)

	entries, err := j.PoolEntries("sim")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(60), entries[0].Clock)
}
