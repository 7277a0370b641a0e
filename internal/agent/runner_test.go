package agent

import (
	"context"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/hyperdrive-engine/internal/config"
	"github.com/atmx/hyperdrive-engine/internal/fixedpoint"
	"github.com/atmx/hyperdrive-engine/internal/market"
	"github.com/atmx/hyperdrive-engine/internal/model"
	"github.com/atmx/hyperdrive-engine/internal/wallet"
)

const day = model.SecondsPerDay

func fp(s string) fixedpoint.FixedPoint { return fixedpoint.MustParse(s) }

func seeded(t *testing.T) *market.Market {
	t.Helper()
	m, err := config.DefaultMarket().NewMarket()
	require.NoError(t, err)
	_, err = m.Bootstrap(common.HexToAddress("0x01"), fp("1000000"), fp("0.05"))
	require.NoError(t, err)
	return m
}

type memRecorder struct {
	mu      sync.Mutex
	actions []model.ActionType
}

func (r *memRecorder) Record(_ context.Context, a model.TradeAction, _ wallet.Wallet, _ model.MarketState, _ int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, a.Type)
	return nil
}

type failingPolicy struct{}

func (failingPolicy) Action(context.Context, MarketView, *wallet.Wallet) ([]model.TradeAction, error) {
	return nil, errors.New("boom")
}

type fixedPolicy []model.TradeAction

func (p fixedPolicy) Action(context.Context, MarketView, *wallet.Wallet) ([]model.TradeAction, error) {
	return p, nil
}

func TestViewOfEmptyMarket(t *testing.T) {
	m, err := config.DefaultMarket().NewMarket()
	require.NoError(t, err)
	v := ViewOf(m)
	assert.False(t, v.PriceOK)
	assert.False(t, v.MaxLongOK)
	assert.True(t, v.SpotPrice.IsNaN())
}

func TestSingleLongLifecycle(t *testing.T) {
	m := seeded(t)
	rec := &memRecorder{}
	a := New("alice", common.HexToAddress("0xa1"), fp("10000"), &SingleLong{Amount: fp("1000"), Hold: 2 * day})
	r := NewRunner(m, []*Agent{a}, nil, rec, nil)
	ctx := context.Background()

	rep, err := r.Step(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Applied)
	require.Len(t, a.Wallet.OpenLongs(), 1)
	assert.Equal(t, "9000", a.Wallet.Base.String())
	assert.True(t, a.Wallet.Longs[0].Balance.GreaterThan(fp("1000")), "a long buys bonds below par")

	for i := 0; i < 2; i++ {
		require.NoError(t, m.Tick(day))
		rep, err = r.Step(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, rep.Applied)
	assert.Empty(t, a.Wallet.OpenLongs())
	assert.Empty(t, a.Wallet.Longs)
	assert.True(t, m.State().LongsOutstanding.IsZero())

	// Never reopens.
	rep, err = r.Step(ctx)
	require.NoError(t, err)
	assert.Zero(t, rep.Applied)
	assert.Equal(t, []model.ActionType{model.OpenLong, model.CloseLong}, rec.actions)
}

func TestLimitsSkipOversizedTrades(t *testing.T) {
	m := seeded(t)
	before := m.State()
	a := New("bob", common.HexToAddress("0xb0"), fp("10"), fixedPolicy{
		{Type: model.OpenLong, Amount: fp("100")},
		{Type: model.RemoveLiquidity, Amount: fp("1")},
	})
	rep, err := NewRunner(m, []*Agent{a}, nil, nil, nil).Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Skipped)
	assert.Equal(t, before, m.State())
}

func TestOpenLongOverReservesCountsAsRejected(t *testing.T) {
	m := seeded(t)
	huge := m.State().BondReserves.Add(fp("1"))
	a := New("whale", common.HexToAddress("0xee"), huge, fixedPolicy{{Type: model.OpenLong, Amount: huge}})
	rep, err := NewRunner(m, []*Agent{a}, nil, nil, nil).Step(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Rejected)
	assert.Equal(t, huge.String(), a.Wallet.Base.String())
}

func TestPolicyErrorAbortsStep(t *testing.T) {
	m := seeded(t)
	ok := New("ok", common.HexToAddress("0x02"), fp("1000"), &SingleLong{Amount: fp("10"), Hold: day})
	bad := New("bad", common.HexToAddress("0x03"), fp("1000"), failingPolicy{})
	before := m.State()

	_, err := NewRunner(m, []*Agent{ok, bad}, nil, nil, nil).Step(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent bad")
	assert.Equal(t, before, m.State(), "no trade runs when a decision fails")
}

func TestCancelledContext(t *testing.T) {
	m := seeded(t)
	a := New("alice", common.HexToAddress("0xa1"), fp("1000"), fixedPolicy{{Type: model.OpenLong, Amount: fp("10")}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRunner(m, []*Agent{a}, nil, nil, nil).Step(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewPolicy(t *testing.T) {
	for _, name := range []string{PolicyNoop, PolicySingleLong, "SINGLE_SHORT", PolicyLiquidityProvider} {
		p, err := NewPolicy(name, fp("1"), 0)
		require.NoError(t, err, name)
		assert.NotNil(t, p)
	}
	_, err := NewPolicy("random", fp("1"), 0)
	assert.True(t, errors.Is(err, ErrUnknownPolicy))
}
