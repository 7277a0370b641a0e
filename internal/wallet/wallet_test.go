package wallet

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/atmx/hyperdrive-engine/internal/fixedpoint"
	"github.com/atmx/hyperdrive-engine/internal/model"
)

func fp(s string) fixedpoint.FixedPoint { return fixedpoint.MustParse(s) }

var alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")

// dump renders w in a canonical form; map keys sort and amounts print as
// decimal strings.
func dump(t require.TestingT, w *Wallet) string {
	b, err := json.Marshal(w)
	require.NoError(t, err)
	return string(b)
}

func TestMergeFungible(t *testing.T) {
	w := New(alice)
	require.NoError(t, w.Merge(Wallet{Base: fp("100"), LPTokens: fp("5")}))
	require.NoError(t, w.Merge(Wallet{Base: fp("-40"), FeesPaid: fp("0.3")}))

	assert.Equal(t, "60", w.Base.String())
	assert.Equal(t, "5", w.LPTokens.String())
	assert.Equal(t, "0.3", w.FeesPaid.String())
}

func TestMergeSumsCohortsAtSameMintTime(t *testing.T) {
	w := New(alice)
	require.NoError(t, w.Merge(Wallet{Longs: map[int64]Long{100: {Balance: fp("10")}}}))
	require.NoError(t, w.Merge(Wallet{Longs: map[int64]Long{100: {Balance: fp("5")}, 200: {Balance: fp("1")}}}))

	assert.Equal(t, "15", w.Longs[100].Balance.String())
	assert.Equal(t, "1", w.Longs[200].Balance.String())
	assert.Equal(t, []int64{100, 200}, w.OpenLongs())
}

func TestMergeRejectsNegativeAndLeavesWalletUntouched(t *testing.T) {
	w := New(alice)
	require.NoError(t, w.Merge(Wallet{
		Base:  fp("10"),
		Longs: map[int64]Long{7: {Balance: fp("3")}},
	}))
	before := w.Clone()

	err := w.Merge(Wallet{Base: fp("1"), Longs: map[int64]Long{7: {Balance: fp("-4")}}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNegativeBalance))
	assert.Equal(t, dump(t, before), dump(t, w))

	err = w.Merge(Wallet{Base: fp("-11")})
	assert.True(t, errors.Is(err, model.ErrNegativeBalance))
	assert.Equal(t, "10", w.Base.String())

	err = w.Merge(Wallet{Base: fixedpoint.NaN()})
	assert.True(t, errors.Is(err, model.ErrNonFiniteValue))
}

func TestMergePrunesClosedCohorts(t *testing.T) {
	w := New(alice)
	require.NoError(t, w.Merge(Wallet{
		Longs:  map[int64]Long{1: {Balance: fp("2")}},
		Shorts: map[int64]Short{1: {Balance: fp("2"), Margin: fp("2")}},
	}))

	require.NoError(t, w.Merge(Wallet{
		Longs:  map[int64]Long{1: {Balance: fp("-2")}},
		Shorts: map[int64]Short{1: {Balance: fp("-2"), Margin: fp("-1.9")}},
	}))
	assert.Empty(t, w.Longs)

	// Residual margin keeps the short cohort on the books.
	require.Contains(t, w.Shorts, int64(1))
	assert.Equal(t, "0.1", w.Shorts[1].Margin.String())
	assert.Empty(t, w.OpenShorts())

	require.NoError(t, w.Merge(Wallet{Shorts: map[int64]Short{1: {Margin: fp("-0.1")}}}))
	assert.Empty(t, w.Shorts)
}

func TestMergeRejectsNegativeMargin(t *testing.T) {
	w := New(alice)
	require.NoError(t, w.Merge(Wallet{Base: fp("10"), Shorts: map[int64]Short{3: {Balance: fp("5"), Margin: fp("5")}}}))

	err := w.Merge(Wallet{Base: fp("1"), Shorts: map[int64]Short{3: {Balance: fp("-1"), Margin: fp("-5.5")}}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrNegativeBalance))

	// A rejected merge leaves the wallet untouched.
	assert.Equal(t, "10", w.Base.String())
	assert.Equal(t, "5", w.Shorts[3].Balance.String())
	assert.Equal(t, "5", w.Shorts[3].Margin.String())

	err = w.Merge(Wallet{Shorts: map[int64]Short{4: {Margin: fp("-0.000000000000000001")}}})
	assert.True(t, errors.Is(err, model.ErrNegativeBalance), "a fresh cohort cannot start with negative margin")
	assert.NotContains(t, w.Shorts, int64(4))
}

func TestCloneIsDeep(t *testing.T) {
	w := New(alice)
	require.NoError(t, w.Merge(Wallet{Shorts: map[int64]Short{5: {Balance: fp("1"), Margin: fp("1")}}}))
	c := w.Clone()
	c.Shorts[5] = Short{}
	assert.Equal(t, "1", w.Shorts[5].Balance.String())
}

func TestIsZero(t *testing.T) {
	assert.True(t, Wallet{}.IsZero())
	assert.True(t, Wallet{Longs: map[int64]Long{1: {}}}.IsZero())
	assert.False(t, Wallet{Shorts: map[int64]Short{1: {Margin: fp("1")}}}.IsZero())
	assert.False(t, Wallet{LPTokens: fp("0.000001")}.IsZero())
}

// Two merges at one mint time equal one merge of the summed delta.
func TestMergeAssociative(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		mint := rapid.Int64Range(0, 1_000_000).Draw(rt, "mint")
		a := fixedpoint.New(rapid.Int64Range(0, 1_000_000).Draw(rt, "a"))
		b := fixedpoint.New(rapid.Int64Range(0, 1_000_000).Draw(rt, "b"))
		ma := fixedpoint.New(rapid.Int64Range(0, 1_000).Draw(rt, "margin_a"))
		mb := fixedpoint.New(rapid.Int64Range(0, 1_000).Draw(rt, "margin_b"))

		seq := New(alice)
		require.NoError(rt, seq.Merge(Wallet{Longs: map[int64]Long{mint: {Balance: a}}, Shorts: map[int64]Short{mint: {Balance: a, Margin: ma}}}))
		require.NoError(rt, seq.Merge(Wallet{Longs: map[int64]Long{mint: {Balance: b}}, Shorts: map[int64]Short{mint: {Balance: b, Margin: mb}}}))

		once := New(alice)
		require.NoError(rt, once.Merge(Wallet{
			Longs:  map[int64]Long{mint: {Balance: a.Add(b)}},
			Shorts: map[int64]Short{mint: {Balance: a.Add(b), Margin: ma.Add(mb)}},
		}))
		assert.Equal(rt, dump(rt, once), dump(rt, seq))
	})
}
