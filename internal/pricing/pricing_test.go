package pricing

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/atmx/hyperdrive-engine/internal/fixedpoint"
	"github.com/atmx/hyperdrive-engine/internal/model"
)

func fp(s string) fixedpoint.FixedPoint { return fixedpoint.MustParse(s) }

func st(days, ts string) model.StretchedTime { return model.NewStretchedTime(fp(days), fp(ts)) }

func state(z, y, c, u string) model.MarketState {
	return model.MarketState{
		ShareReserves:  fp(z),
		BondReserves:   fp(y),
		SharePrice:     fp(c),
		InitSharePrice: fp(u),
	}
}

// kAfter recomputes the invariant after applying the market side of r.
func kAfter(t require.TestingT, s model.MarketState, r TradeResult, tau fixedpoint.FixedPoint, ys bool) (before, after fixedpoint.FixedPoint) {
	iv, err := newInvariant(s, tau, ys)
	require.NoError(t, err)
	z2 := s.ShareReserves.Add(r.MarketResult.DBase.Div(s.SharePrice))
	y2 := s.BondReserves.Add(r.MarketResult.DBonds)
	return iv.k(s.ShareReserves, s.BondReserves), iv.k(z2, y2)
}

// --- Rate helpers ---

func TestCalcBaseAssetReserves(t *testing.T) {
	cases := []struct {
		apr, bonds, days, ts, u, c string
		want                       float64
	}{
		{"0.05", "500000", "182.5", "22.186877016851916", "1", "1", 502187.63927495584},
		{"0.02", "200000", "182.5", "22.186877016851916", "1", "1", 720603.6398101918},
		{"0.08", "800000", "182.5", "22.186877016851916", "1", "1", 340465.1260523857},
		{"0.03", "500000", "91.25", "36.97812836141986", "1.5", "2", 790587.9168574204},
	}
	for _, tc := range cases {
		got, err := CalcBaseAssetReserves(fp(tc.apr), fp(tc.bonds), st(tc.days, tc.ts), fp(tc.u), fp(tc.c))
		require.NoError(t, err)
		assert.InEpsilon(t, tc.want, got.Float64(), 1e-9, "apr=%s bonds=%s", tc.apr, tc.bonds)
	}
}

func TestCalcBondReservesInvertsBaseReserves(t *testing.T) {
	dur := st("182.5", "22.186877016851916")
	z, err := CalcBaseAssetReserves(fp("0.05"), fp("500000"), dur, fixedpoint.One, fixedpoint.One)
	require.NoError(t, err)
	y, err := CalcBondReserves(fp("0.05"), z, dur, fixedpoint.One, fixedpoint.One)
	require.NoError(t, err)
	assert.InEpsilon(t, 500000.0, y.Float64(), 1e-12)
}

func TestCalcKConst(t *testing.T) {
	cases := []struct {
		s    model.MarketState
		t    string
		want float64
	}{
		{state("500000", "500000", "1", "1"), "0.25", 61.587834600530776},
		{state("500000", "500000", "1", "1"), "1", 2000000},
		{state("5000000", "5000000", "2", "1.5"), "0.5", 8123.619671700687},
		{state("0", "5000000", "2", "1.5"), "0.25", 56.23413251903491},
		{state("0", "0", "2", "1.5"), "0.25", 0},
	}
	for _, tc := range cases {
		k, err := CalcKConst(tc.s, fp(tc.t))
		require.NoError(t, err)
		assert.InDelta(t, tc.want, k.Float64(), 1e-9*(1+tc.want))
	}

	_, err := CalcKConst(state("5000000", "5000000", "2", "0"), fp("0.5"))
	assert.True(t, errors.Is(err, model.ErrDivisionByZero))
}

func TestCalcAPRFromSpotPrice(t *testing.T) {
	cases := []struct {
		price, days string
		want        float64
	}{
		{"0.95", "182.5", 0.1052631579},
		{"0.99", "182.5", 0.0202020202},
		{"1", "182.5", 0},
		{"0.95", "91.25", 0.2105263158},
		{"0.95", "365", 0.05263157895},
		{"0.10", "91.25", 36},
		{"1.50", "91.25", -1.3333333333333333},
	}
	for _, tc := range cases {
		apr, err := CalcAPRFromSpotPrice(fp(tc.price), st(tc.days, "1"))
		require.NoError(t, err)
		assert.InDelta(t, tc.want, apr.Float64(), 1e-9, "price=%s days=%s", tc.price, tc.days)
	}

	_, err := CalcAPRFromSpotPrice(fp("-0.5"), st("91.25", "1"))
	assert.True(t, errors.Is(err, model.ErrPreconditionViolation))
	_, err = CalcAPRFromSpotPrice(fp("0.95"), st("-91.25", "1"))
	assert.True(t, errors.Is(err, model.ErrPreconditionViolation))
}

func TestCalcSpotPriceFromAPR(t *testing.T) {
	cases := []struct {
		apr, days string
		want      float64
	}{
		{"0.10", "182.5", 0.9523809524},
		{"0.02", "182.5", 0.9900990099},
		{"0", "182.5", 1},
		{"0.21", "91.25", 0.9501187648},
		{"0.05", "365", 0.9523809524},
		{"36", "91.25", 0.10},
	}
	for _, tc := range cases {
		p, err := CalcSpotPriceFromAPR(fp(tc.apr), st(tc.days, "1"))
		require.NoError(t, err)
		assert.InDelta(t, tc.want, p.Float64(), 1e-9)
	}

	p, err := CalcSpotPriceFromAPR(fp("0.5"), st("0", "1"))
	require.NoError(t, err)
	assert.True(t, p.Equal(fixedpoint.One), "zero days must price at exactly one, got %s", p)
}

func TestAPRRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		apr := fixedpoint.New(rapid.Int64Range(1_000, 10_000_000).Draw(rt, "apr_millionths")).Div(fixedpoint.New(1_000_000))
		days := fixedpoint.New(rapid.Int64Range(1, 3650).Draw(rt, "days"))
		ts, err := CalcTimeStretch(apr)
		require.NoError(rt, err)
		tm := model.NewStretchedTime(days, ts)
		p, err := CalcSpotPriceFromAPR(apr, tm)
		require.NoError(rt, err)
		back, err := CalcAPRFromSpotPrice(p, tm)
		require.NoError(rt, err)
		assert.True(rt, fixedpoint.ApproxEqual(apr, back, fp("0.000000001")), "apr=%s back=%s", apr, back)
	})
}

func TestCalcTimeStretch(t *testing.T) {
	ts, err := CalcTimeStretch(fp("0.05"))
	require.NoError(t, err)
	assert.InDelta(t, 22.186877016851916, ts.Float64(), 1e-12)

	_, err = CalcTimeStretch(fixedpoint.Zero)
	assert.True(t, errors.Is(err, model.ErrDivisionByZero))
}

func TestCalcTotalLiquidity(t *testing.T) {
	cases := []struct {
		z, y, p string
		want    string
	}{
		{"500000", "500000", "0.95", "975000"},
		{"800000", "200000", "0.98", "996000"},
		{"200000", "800000", "0.92", "936000"},
		{"1000000", "0", "1", "1000000"},
		{"0", "1000000", "0.90", "900000"},
		{"999999", "1", "0", "999999"},
	}
	for _, tc := range cases {
		got := CalcTotalLiquidity(state(tc.z, tc.y, "1", "1"), fp(tc.p))
		assert.Equal(t, tc.want, got.String())
	}
}

// --- Liquidity ---

func TestCalcLiquidity(t *testing.T) {
	cases := []struct {
		target, apr, days, ts, u, c string
		wantZ, wantY                float64
	}{
		{"5000000", "0.05", "182.5", "22.186877016851916", "1", "1", 5_000_000, 4_978_218.90560554},
		{"5000000", "0.02", "182.5", "55.467192542129794", "1", "1", 5_000_000, 5_039_264.014565533},
		{"5000000", "0.08", "182.5", "13.866798135532449", "1", "1", 5_000_000, 4_918_835.884062026},
		{"10000000", "0.03", "91.25", "36.97812836141987", "1.5", "2", 5_000_000, 6_324_407.309278079},
		{"10000000", "0.03", "273.75", "36.97812836141987", "1.3", "1.5", 6666666.666666667, 7979677.952016878},
	}
	m := NewYieldSpace()
	for _, tc := range cases {
		s := model.MarketState{SharePrice: fp(tc.c), InitSharePrice: fp(tc.u)}
		z, y, err := m.CalcLiquidity(s, fp(tc.target), fp(tc.apr), st(tc.days, tc.ts))
		require.NoError(t, err)
		assert.InEpsilon(t, tc.wantZ, z.Float64(), 1e-12)
		assert.InEpsilon(t, tc.wantY, y.Float64(), 1e-9)
	}

	s := model.MarketState{SharePrice: fixedpoint.One, InitSharePrice: fixedpoint.One}
	_, _, err := m.CalcLiquidity(s, fixedpoint.Zero, fp("0.06"), st("91.25", "36.97812836141986"))
	assert.True(t, errors.Is(err, model.ErrDivisionByZero))
}

func TestCalcLiquidityQuotesTargetAPR(t *testing.T) {
	dur := st("182.5", "22.186877016851916")
	for _, m := range []Model{NewYieldSpace(), NewHyperdrive(fp("182.5"), fixedpoint.Zero)} {
		s := model.MarketState{SharePrice: fp("1.1"), InitSharePrice: fixedpoint.One}
		z, y, err := m.CalcLiquidity(s, fp("1000000"), fp("0.05"), dur)
		require.NoError(t, err, m.Name())
		s.ShareReserves, s.BondReserves = z, y

		apr, err := m.CalcAPRFromReserves(s, dur)
		require.NoError(t, err, m.Name())
		assert.InDelta(t, 0.05, apr.Float64(), 1e-9, m.Name())

		p, err := m.CalcSpotPriceFromReserves(s, dur)
		require.NoError(t, err)
		assert.True(t, p.LessThan(fixedpoint.One), "%s spot %s", m.Name(), p)
	}
}

func TestLPRoundTrip(t *testing.T) {
	dur := st("182.5", "22.186877016851916")
	m := NewYieldSpace()
	s := model.MarketState{SharePrice: fixedpoint.One, InitSharePrice: fixedpoint.One}
	z, y, err := m.CalcLiquidity(s, fp("1000000"), fp("0.05"), dur)
	require.NoError(t, err)
	s.ShareReserves, s.BondReserves, s.LPReserves = z, y, z

	lpOut, dBase, dBonds, err := m.CalcLPOutGivenTokensIn(fp("1000"), fp("0.05"), s, dur)
	require.NoError(t, err)
	assert.InEpsilon(t, 1000.0, lpOut.Float64(), 1e-12)
	assert.Equal(t, "1000", dBase.String())
	assert.True(t, dBonds.IsPositive())

	require.NoError(t, s.ApplyDelta(model.MarketDeltas{DBase: dBase, DBonds: dBonds, DLPReserves: lpOut}))

	outBase, outBonds, err := m.CalcTokensOutGivenLPIn(lpOut, fp("0.05"), s, dur)
	require.NoError(t, err)
	assert.InEpsilon(t, 1000.0, outBase.Float64(), 1e-9)
	assert.InEpsilon(t, dBonds.Float64(), outBonds.Float64(), 1e-9)

	_, _, err = m.CalcTokensOutGivenLPIn(s.LPReserves.Add(fixedpoint.One), fp("0.05"), s, dur)
	assert.True(t, errors.Is(err, model.ErrInsufficientReserves))
}

func TestLPOutScalesWithBaseBuffer(t *testing.T) {
	dur := st("182.5", "22.186877016851916")
	m := NewYieldSpace()
	s := state("1000", "1000", "1", "1")
	s.LPReserves = fp("1000")
	s.BaseBuffer = fp("500")
	lpOut, _, _, err := m.CalcLPOutGivenTokensIn(fp("100"), fp("0.05"), s, dur)
	require.NoError(t, err)
	assert.Equal(t, "200", lpOut.String())

	s.BaseBuffer = fp("1000")
	_, _, _, err = m.CalcLPOutGivenTokensIn(fp("100"), fp("0.05"), s, dur)
	assert.True(t, errors.Is(err, model.ErrDivisionByZero))
}

// --- Trades ---

func TestTradesPreserveInvariantWithoutFees(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		z := fixedpoint.New(rapid.Int64Range(100_000, 10_000_000).Draw(rt, "z"))
		y := fixedpoint.New(rapid.Int64Range(100_000, 10_000_000).Draw(rt, "y"))
		amt := fixedpoint.New(rapid.Int64Range(1, 10_000).Draw(rt, "amount"))
		days := fixedpoint.New(rapid.Int64Range(1, 365).Draw(rt, "days"))
		unit := rapid.SampledFrom([]model.TokenType{model.TokenBase, model.TokenPT}).Draw(rt, "unit")
		outGivenIn := rapid.Bool().Draw(rt, "out_given_in")
		ys := rapid.Bool().Draw(rt, "yieldspace")

		s := model.MarketState{ShareReserves: z, BondReserves: y, SharePrice: fp("1.05"), InitSharePrice: fixedpoint.One}
		tm := model.NewStretchedTime(days, fp("22.186877016851916"))
		var m Model = NewYieldSpace()
		if !ys {
			// Trading at the full term keeps the whole trade on the curve.
			m = NewHyperdrive(days, fixedpoint.Zero)
		}
		q := model.Quantity{Amount: amt, Unit: unit}
		var r TradeResult
		var err error
		if outGivenIn {
			r, err = m.CalcOutGivenIn(q, s, fixedpoint.Zero, tm)
		} else {
			r, err = m.CalcInGivenOut(q, s, fixedpoint.Zero, tm)
		}
		require.NoError(rt, err)
		before, after := kAfter(rt, s, r, tm.Stretched(), ys)
		assert.True(rt, fixedpoint.ApproxEqual(before, after, fp("0.000000000001")), "k %s -> %s", before, after)
	})
}

func TestTradesWithFeesNeverDecreaseInvariant(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		z := fixedpoint.New(rapid.Int64Range(100_000, 10_000_000).Draw(rt, "z"))
		y := fixedpoint.New(rapid.Int64Range(100_000, 10_000_000).Draw(rt, "y"))
		amt := fixedpoint.New(rapid.Int64Range(100, 10_000).Draw(rt, "amount"))
		days := fixedpoint.New(rapid.Int64Range(1, 365).Draw(rt, "days"))
		fee := fixedpoint.New(rapid.Int64Range(1, 500).Draw(rt, "fee_thousandths")).Div(fixedpoint.New(1000))
		unit := rapid.SampledFrom([]model.TokenType{model.TokenBase, model.TokenPT}).Draw(rt, "unit")
		outGivenIn := rapid.Bool().Draw(rt, "out_given_in")
		ys := rapid.Bool().Draw(rt, "yieldspace")

		s := model.MarketState{ShareReserves: z, BondReserves: y, SharePrice: fp("1.05"), InitSharePrice: fixedpoint.One}
		tm := model.NewStretchedTime(days, fp("22.186877016851916"))
		var m Model = NewYieldSpace()
		if !ys {
			m = NewHyperdrive(days, fixedpoint.Zero)
		}
		q := model.Quantity{Amount: amt, Unit: unit}
		var r TradeResult
		var err error
		if outGivenIn {
			r, err = m.CalcOutGivenIn(q, s, fee, tm)
		} else {
			r, err = m.CalcInGivenOut(q, s, fee, tm)
		}
		require.NoError(rt, err)
		before, after := kAfter(rt, s, r, tm.Stretched(), ys)
		slack := before.Mul(fp("0.000000000001"))
		assert.True(rt, after.Add(slack).GreaterThanOrEqual(before), "k %s -> %s", before, after)
		assert.False(rt, r.Breakdown.Fee.IsNegative())
	})
}

// The matured part of a Hyperdrive trade settles 1:1 outside the curve; the
// rest must stay on the full-term invariant.
func TestHyperdrivePartialTermCurveLegPreservesInvariant(t *testing.T) {
	term := fp("365")
	ts := fp("22.186877016851916")
	rapid.Check(t, func(rt *rapid.T) {
		z := fixedpoint.New(rapid.Int64Range(100_000, 10_000_000).Draw(rt, "z"))
		y := fixedpoint.New(rapid.Int64Range(100_000, 10_000_000).Draw(rt, "y"))
		amt := fixedpoint.New(rapid.Int64Range(1, 10_000).Draw(rt, "amount"))
		days := fixedpoint.New(rapid.Int64Range(1, 364).Draw(rt, "days"))
		unit := rapid.SampledFrom([]model.TokenType{model.TokenBase, model.TokenPT}).Draw(rt, "unit")
		outGivenIn := rapid.Bool().Draw(rt, "out_given_in")

		s := model.MarketState{ShareReserves: z, BondReserves: y, SharePrice: fp("1.05"), InitSharePrice: fixedpoint.One}
		m := NewHyperdrive(term, fixedpoint.Zero)
		tm := model.NewStretchedTime(days, ts)
		q := model.Quantity{Amount: amt, Unit: unit}
		var r TradeResult
		var err error
		if outGivenIn {
			r, err = m.CalcOutGivenIn(q, s, fixedpoint.Zero, tm)
		} else {
			r, err = m.CalcInGivenOut(q, s, fixedpoint.Zero, tm)
		}
		require.NoError(rt, err)

		curve := amt.Mul(days.Div(term))
		flat := amt.Sub(curve)
		// Strip the flat leg from the market's base delta.
		var curveBase fixedpoint.FixedPoint
		switch {
		case unit == model.TokenBase:
			curveBase = r.MarketResult.DBase.Mul(days.Div(term))
		case r.MarketResult.DBase.IsNegative():
			curveBase = r.MarketResult.DBase.Add(flat)
		default:
			curveBase = r.MarketResult.DBase.Sub(flat)
		}
		if unit == model.TokenPT {
			assert.True(rt, r.MarketResult.DBonds.Abs().Equal(curve), "bond delta %s, curve part %s", r.MarketResult.DBonds, curve)
		}

		iv, err := newInvariant(s, tm.WithDays(term).Stretched(), false)
		require.NoError(rt, err)
		before := iv.k(z, y)
		after := iv.k(z.Add(curveBase.Div(s.SharePrice)), y.Add(r.MarketResult.DBonds))
		assert.True(rt, fixedpoint.ApproxEqual(before, after, fp("0.000000000001")), "k %s -> %s", before, after)
	})
}

// A small trade on a freshly seeded pool must execute at the quoted spot
// price, in both directions and for both curves.
func TestSmallTradeExecutesAtSpotPrice(t *testing.T) {
	ts, err := CalcTimeStretch(fp("0.05"))
	require.NoError(t, err)
	dur := model.NewStretchedTime(fp("182.5"), ts)
	for _, m := range []Model{NewYieldSpace(), NewHyperdrive(dur.Days, fixedpoint.Zero)} {
		for _, c := range []string{"1", "1.1"} {
			s := model.MarketState{SharePrice: fp(c), InitSharePrice: fixedpoint.One}
			z, y, err := m.CalcLiquidity(s, fp("10000000"), fp("0.05"), dur)
			require.NoError(t, err, m.Name())
			s.ShareReserves, s.BondReserves = z, y

			spot, err := m.CalcSpotPriceFromReserves(s, dur)
			require.NoError(t, err, m.Name())

			long, err := m.CalcOutGivenIn(model.Quantity{Amount: fixedpoint.One, Unit: model.TokenBase}, s, fixedpoint.Zero, dur)
			require.NoError(t, err, m.Name())
			paid := fixedpoint.One.Div(long.UserResult.DBonds)
			assert.InEpsilon(t, spot.Float64(), paid.Float64(), 1e-6, "%s c=%s: long price %s, spot %s", m.Name(), c, paid, spot)

			short, err := m.CalcOutGivenIn(model.Quantity{Amount: fixedpoint.One, Unit: model.TokenPT}, s, fixedpoint.Zero, dur)
			require.NoError(t, err, m.Name())
			assert.InEpsilon(t, spot.Float64(), short.UserResult.DBase.Float64(), 1e-6, "%s c=%s: short price %s, spot %s", m.Name(), c, short.UserResult.DBase, spot)
		}
	}
}

func TestFeesNeverDecreaseInvariant(t *testing.T) {
	s := state("1000000", "1200000", "1", "1")
	tm := st("90", "22.186877016851916")
	m := NewYieldSpace()
	fee := fp("0.1")
	for _, unit := range []model.TokenType{model.TokenBase, model.TokenPT} {
		q := model.Quantity{Amount: fp("5000"), Unit: unit}

		r, err := m.CalcOutGivenIn(q, s, fee, tm)
		require.NoError(t, err)
		before, after := kAfter(t, s, r, tm.Stretched(), true)
		assert.True(t, after.GreaterThanOrEqual(before), "out_given_in %s: k %s -> %s", unit, before, after)
		assert.True(t, r.Breakdown.Fee.IsPositive())
		assert.True(t, r.Breakdown.WithFee.LessThan(r.Breakdown.WithoutFee))

		r, err = m.CalcInGivenOut(q, s, fee, tm)
		require.NoError(t, err)
		before, after = kAfter(t, s, r, tm.Stretched(), true)
		assert.True(t, after.GreaterThanOrEqual(before), "in_given_out %s: k %s -> %s", unit, before, after)
		assert.True(t, r.Breakdown.WithFee.GreaterThan(r.Breakdown.WithoutFee))
	}
}

func TestOutGivenInBaseForBonds(t *testing.T) {
	s := state("1000000", "1200000", "1", "1")
	tm := st("182.5", "22.186877016851916")
	r, err := NewYieldSpace().CalcOutGivenIn(model.Quantity{Amount: fp("100"), Unit: model.TokenBase}, s, fp("0.01"), tm)
	require.NoError(t, err)

	assert.Equal(t, "-100", r.UserResult.DBase.String())
	assert.True(t, r.UserResult.DBonds.GreaterThan(fp("100")), "bonds trade at a discount")
	assert.Equal(t, "100", r.MarketResult.DBase.String())
	assert.True(t, r.MarketResult.DBonds.IsNegative())
	assert.Equal(t, model.TokenPT, r.Breakdown.FeeUnit)
	assert.True(t, r.Breakdown.WithoutFeeOrSlippage.GreaterThan(r.Breakdown.WithoutFee), "slippage")
	assert.True(t, r.UserResult.DBonds.Equal(r.Breakdown.WithFee))
	// The fee never leaves the pool.
	assert.True(t, r.MarketResult.DBonds.Neg().Equal(r.UserResult.DBonds))
}

func TestHyperdriveFlatPart(t *testing.T) {
	s := state("1000000", "1200000", "1", "1")
	m := NewHyperdrive(fp("365"), fp("0.01"))
	assert.Equal(t, "365", m.TermDays().String())

	// A matured position settles entirely 1:1.
	r, err := m.CalcOutGivenIn(model.Quantity{Amount: fp("100"), Unit: model.TokenPT}, s, fp("0.1"), st("0", "22.186877016851916"))
	require.NoError(t, err)
	assert.Equal(t, "99", r.UserResult.DBase.String())
	assert.Equal(t, "-99", r.MarketResult.DBase.String())
	assert.True(t, r.MarketResult.DBonds.IsZero())

	// Half way through the term half the bonds go through the curve.
	r, err = m.CalcOutGivenIn(model.Quantity{Amount: fp("100"), Unit: model.TokenPT}, s, fixedpoint.Zero, st("182.5", "22.186877016851916"))
	require.NoError(t, err)
	assert.Equal(t, "50", r.MarketResult.DBonds.String())
	assert.True(t, r.UserResult.DBase.LessThan(fp("100")))
	assert.True(t, r.UserResult.DBase.GreaterThan(fp("99")))
}

func TestTradeRejectsReserveOverdraw(t *testing.T) {
	s := state("1000", "1000", "1", "1")
	tm := st("182.5", "22.186877016851916")
	_, err := NewYieldSpace().CalcInGivenOut(model.Quantity{Amount: fp("2000"), Unit: model.TokenPT}, s, fixedpoint.Zero, tm)
	assert.True(t, errors.Is(err, model.ErrInsufficientReserves))

	_, err = NewYieldSpace().CalcInGivenOut(model.Quantity{Amount: fp("1500"), Unit: model.TokenBase}, s, fixedpoint.Zero, tm)
	assert.True(t, errors.Is(err, model.ErrInsufficientReserves))
}

func TestSharesSymmetryDiffersWithFees(t *testing.T) {
	ts, err := CalcTimeStretch(fp("0.05"))
	require.NoError(t, err)
	dur := model.NewStretchedTime(fp("365"), ts)
	m := NewHyperdrive(dur.Days, fixedpoint.Zero)
	s := model.MarketState{SharePrice: fixedpoint.One, InitSharePrice: fixedpoint.One}
	z, y, err := m.CalcLiquidity(s, fp("10000000"), fp("0.05"), dur)
	require.NoError(t, err)
	s.ShareReserves, s.BondReserves = z, y

	fees := Fees{Curve: fp("0.01"), GovernanceLP: fp("0.1")}
	out, govOut, err := SharesOutGivenBondsIn(s, fp("100000"), dur, fees)
	require.NoError(t, err)
	in, govIn, err := SharesInGivenBondsOut(s, fp("100000"), dur, fees)
	require.NoError(t, err)

	assert.False(t, out.Equal(in), "shares out %s must differ from shares in %s", out, in)
	assert.True(t, in.GreaterThan(out))
	assert.True(t, govOut.IsPositive())
	assert.True(t, govIn.Equal(govOut))
}

// --- Max long ---

func TestCalcMaxLong(t *testing.T) {
	tm := st("182.5", "22.186877016851916")
	m := NewYieldSpace()
	s := state("1000000", "1200000", "1", "1")
	s.BondBuffer = fp("600000")

	maxLong, err := m.CalcMaxLong(s, fixedpoint.Zero, tm)
	require.NoError(t, err)
	require.True(t, maxLong.IsPositive())

	r, err := m.CalcOutGivenIn(model.Quantity{Amount: maxLong, Unit: model.TokenBase}, s, fixedpoint.Zero, tm)
	require.NoError(t, err)
	assert.True(t, s.BondReserves.Add(r.MarketResult.DBonds).GreaterThanOrEqual(s.BondBuffer))

	r, err = m.CalcOutGivenIn(model.Quantity{Amount: maxLong.Mul(fp("1.01")), Unit: model.TokenBase}, s, fixedpoint.Zero, tm)
	require.NoError(t, err)
	assert.True(t, s.BondReserves.Add(r.MarketResult.DBonds).LessThan(s.BondBuffer))

	s.BondBuffer = s.BondReserves
	maxLong, err = m.CalcMaxLong(s, fixedpoint.Zero, tm)
	require.NoError(t, err)
	assert.True(t, maxLong.IsZero())

	_, err = m.CalcMaxLong(state("0", "0", "1", "1"), fixedpoint.Zero, tm)
	assert.True(t, errors.Is(err, model.ErrEmptyMarket))
}

// --- Assertions ---

func TestCheckInputAssertions(t *testing.T) {
	m := NewYieldSpace()
	s := state("1000", "1000", "1", "1")
	tm := st("182.5", "22.186877016851916")
	base := func(a string) model.Quantity { return model.Quantity{Amount: fp(a), Unit: model.TokenBase} }

	require.NoError(t, m.CheckInputAssertions(base("1"), s, fp("0.1"), tm))

	cases := map[string]error{
		"zero amount":     m.CheckInputAssertions(base("0"), s, fp("0.1"), tm),
		"negative amount": m.CheckInputAssertions(base("-1"), s, fp("0.1"), tm),
		"fee above one":   m.CheckInputAssertions(base("1"), s, fp("1.5"), tm),
		"stretch below 1": m.CheckInputAssertions(base("1"), s, fp("0.1"), st("182.5", "0.5")),
		"tau at one":      m.CheckInputAssertions(base("1"), s, fp("0.1"), st("365", "1")),
		"unknown unit":    m.CheckInputAssertions(model.Quantity{Amount: fp("1"), Unit: "LP"}, s, fp("0.1"), tm),
	}
	for name, err := range cases {
		assert.True(t, errors.Is(err, model.ErrPreconditionViolation), name)
	}

	bad := s
	bad.BondReserves = fixedpoint.NaN()
	assert.True(t, errors.Is(m.CheckInputAssertions(base("1"), bad, fp("0.1"), tm), model.ErrNonFiniteValue))
}

func TestCheckOutputAssertions(t *testing.T) {
	m := NewHyperdrive(fp("365"), fixedpoint.Zero)
	s := state("1000", "1000", "1", "1")

	ok := TradeResult{MarketResult: MarketTradeResult{DBase: fp("10"), DBonds: fp("-10")}}
	require.NoError(t, m.CheckOutputAssertions(ok, s))

	drained := TradeResult{MarketResult: MarketTradeResult{DBase: fp("-1000")}}
	assert.True(t, errors.Is(m.CheckOutputAssertions(drained, s), model.ErrInsufficientReserves))

	nan := TradeResult{Breakdown: TradeBreakdown{Fee: fixedpoint.NaN()}}
	err := m.CheckOutputAssertions(nan, s)
	assert.True(t, errors.Is(err, model.ErrNonFiniteValue))
	assert.Contains(t, err.Error(), "fee")
}

func TestNewModel(t *testing.T) {
	m, err := NewModel(NameHyperdrive, fp("182.5"))
	require.NoError(t, err)
	assert.Equal(t, NameHyperdrive, m.Name())

	m, err = NewModel(NameYieldSpace, fixedpoint.Zero)
	require.NoError(t, err)
	assert.Equal(t, NameYieldSpace, m.Name())

	_, err = NewModel("lmsr", fixedpoint.Zero)
	assert.True(t, errors.Is(err, model.ErrUnknownModel))
}
