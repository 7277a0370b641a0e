package pricing

import (
	"github.com/pkg/errors"

	"github.com/atmx/hyperdrive-engine/internal/fixedpoint"
	"github.com/atmx/hyperdrive-engine/internal/model"
)

// engine carries the trade logic shared by both models. YieldSpace prices
// every trade on the curve at the time remaining; Hyperdrive prices the
// unmatured fraction on the curve at the full term and settles the rest
// flat.
type engine struct {
	yieldSpace bool
	termDays   fixedpoint.FixedPoint
	flatFee    fixedpoint.FixedPoint
}

// split returns the fraction of a trade priced on the curve and the
// stretched time used for it.
func (e engine) split(t model.StretchedTime) (fixedpoint.FixedPoint, fixedpoint.FixedPoint) {
	if e.yieldSpace || !e.termDays.IsPositive() {
		return fixedpoint.One, t.Stretched()
	}
	f := t.Days.Div(e.termDays)
	f = fixedpoint.Max(fixedpoint.Zero, fixedpoint.Min(f, fixedpoint.One))
	return f, t.WithDays(e.termDays).Stretched()
}

// curveTime returns the stretched time used for reserves-only reads.
func (e engine) curveTime(t model.StretchedTime) fixedpoint.FixedPoint {
	_, tau := e.split(t)
	return tau
}

func (e engine) setup(s model.MarketState, t model.StretchedTime) (invariant, fixedpoint.FixedPoint, fixedpoint.FixedPoint, fixedpoint.FixedPoint, error) {
	f, tau := e.split(t)
	iv, err := newInvariant(s, tau, e.yieldSpace)
	if err != nil {
		return invariant{}, fixedpoint.Zero, fixedpoint.Zero, fixedpoint.Zero, err
	}
	p, err := iv.spotPrice(s.ShareReserves, s.BondReserves, tau)
	if err != nil {
		return invariant{}, fixedpoint.Zero, fixedpoint.Zero, fixedpoint.Zero, err
	}
	if !p.IsPositive() {
		return invariant{}, fixedpoint.Zero, fixedpoint.Zero, fixedpoint.Zero, errors.Wrap(model.ErrDivisionByZero, "spot price")
	}
	return iv, f, tau, p, nil
}

// bondFeeRate is the fee per unit of base traded, quoted in bonds.
func bondFeeRate(p, fee fixedpoint.FixedPoint) fixedpoint.FixedPoint {
	return fixedpoint.Max(fixedpoint.Zero, fixedpoint.One.Div(p).Sub(fixedpoint.One)).Mul(fee)
}

// baseFeeRate is the fee per bond traded, quoted in base.
func baseFeeRate(p, fee fixedpoint.FixedPoint) fixedpoint.FixedPoint {
	return fixedpoint.Max(fixedpoint.Zero, fixedpoint.One.Sub(p)).Mul(fee)
}

func (e engine) outGivenIn(in model.Quantity, s model.MarketState, fee fixedpoint.FixedPoint, t model.StretchedTime) (TradeResult, error) {
	if err := checkInput(in, s, fee, t); err != nil {
		return TradeResult{}, err
	}
	if s.IsEmpty() {
		return TradeResult{}, errors.Wrap(model.ErrDivisionByZero, "share reserves")
	}
	iv, f, _, p, err := e.setup(s, t)
	if err != nil {
		return TradeResult{}, err
	}
	curveIn := in.Amount.Mul(f)
	flatIn := in.Amount.Sub(curveIn)
	curveOut := fixedpoint.Zero
	if curveIn.IsPositive() {
		if curveOut, err = iv.curveOutGivenIn(s.ShareReserves, s.BondReserves, in.Unit, curveIn); err != nil {
			return TradeResult{}, err
		}
	}
	flatFee := flatIn.Mul(e.flatFee)
	withoutFee := curveOut.Add(flatIn)

	var r TradeResult
	switch in.Unit {
	case model.TokenBase:
		curveFee := bondFeeRate(p, fee).Mul(curveIn)
		fees := curveFee.Add(flatFee)
		r = TradeResult{
			UserResult:   AgentTradeResult{DBase: in.Amount.Neg(), DBonds: withoutFee.Sub(fees)},
			MarketResult: MarketTradeResult{DBase: in.Amount, DBonds: curveOut.Sub(curveFee).Neg()},
			Breakdown: TradeBreakdown{
				WithoutFeeOrSlippage: curveIn.Div(p).Add(flatIn),
				WithoutFee:           withoutFee,
				WithFee:              withoutFee.Sub(fees),
				Fee:                  fees,
				FeeUnit:              model.TokenPT,
			},
		}
	case model.TokenPT:
		curveFee := baseFeeRate(p, fee).Mul(curveIn)
		fees := curveFee.Add(flatFee)
		withFee := withoutFee.Sub(fees)
		r = TradeResult{
			UserResult:   AgentTradeResult{DBase: withFee, DBonds: in.Amount.Neg()},
			MarketResult: MarketTradeResult{DBase: withFee.Neg(), DBonds: curveIn},
			Breakdown: TradeBreakdown{
				WithoutFeeOrSlippage: curveIn.Mul(p).Add(flatIn),
				WithoutFee:           withoutFee,
				WithFee:              withFee,
				Fee:                  fees,
				FeeUnit:              model.TokenBase,
			},
		}
	}
	if err := checkOutput(r, s); err != nil {
		return TradeResult{}, err
	}
	return r, nil
}

func (e engine) inGivenOut(out model.Quantity, s model.MarketState, fee fixedpoint.FixedPoint, t model.StretchedTime) (TradeResult, error) {
	if err := checkInput(out, s, fee, t); err != nil {
		return TradeResult{}, err
	}
	if s.IsEmpty() {
		return TradeResult{}, errors.Wrap(model.ErrDivisionByZero, "share reserves")
	}
	iv, f, _, p, err := e.setup(s, t)
	if err != nil {
		return TradeResult{}, err
	}
	curveOut := out.Amount.Mul(f)
	flatOut := out.Amount.Sub(curveOut)
	curveIn := fixedpoint.Zero
	if curveOut.IsPositive() {
		if curveIn, err = iv.curveInGivenOut(s.ShareReserves, s.BondReserves, out.Unit, curveOut); err != nil {
			return TradeResult{}, err
		}
	}
	flatFee := flatOut.Mul(e.flatFee)
	withoutFee := curveIn.Add(flatOut)

	var r TradeResult
	switch out.Unit {
	case model.TokenPT:
		// Trader receives bonds and pays base.
		curveFee := baseFeeRate(p, fee).Mul(curveOut)
		fees := curveFee.Add(flatFee)
		withFee := withoutFee.Add(fees)
		r = TradeResult{
			UserResult:   AgentTradeResult{DBase: withFee.Neg(), DBonds: out.Amount},
			MarketResult: MarketTradeResult{DBase: withFee, DBonds: curveOut.Neg()},
			Breakdown: TradeBreakdown{
				WithoutFeeOrSlippage: curveOut.Mul(p).Add(flatOut),
				WithoutFee:           withoutFee,
				WithFee:              withFee,
				Fee:                  fees,
				FeeUnit:              model.TokenBase,
			},
		}
	case model.TokenBase:
		// Trader receives base and pays bonds.
		curveFee := bondFeeRate(p, fee).Mul(curveOut)
		fees := curveFee.Add(flatFee)
		withFee := withoutFee.Add(fees)
		r = TradeResult{
			UserResult:   AgentTradeResult{DBase: out.Amount, DBonds: withFee.Neg()},
			MarketResult: MarketTradeResult{DBase: out.Amount.Neg(), DBonds: curveIn.Add(curveFee)},
			Breakdown: TradeBreakdown{
				WithoutFeeOrSlippage: curveOut.Div(p).Add(flatOut),
				WithoutFee:           withoutFee,
				WithFee:              withFee,
				Fee:                  fees,
				FeeUnit:              model.TokenPT,
			},
		}
	}
	if err := checkOutput(r, s); err != nil {
		return TradeResult{}, err
	}
	return r, nil
}

func (e engine) bondReservesForRate(z, rate fixedpoint.FixedPoint, s model.MarketState, t model.StretchedTime) (fixedpoint.FixedPoint, error) {
	if err := checkTime(t); err != nil {
		return fixedpoint.Zero, err
	}
	tau := t.Stretched()
	if !tau.IsPositive() {
		return fixedpoint.Zero, errors.Wrap(model.ErrDivisionByZero, "stretched time")
	}
	growth := fixedpoint.One.Add(rate.Mul(t.YearFraction()))
	if !growth.IsPositive() {
		return fixedpoint.Zero, errors.Wrapf(model.ErrPreconditionViolation, "rate %s over %s days", rate, t.Days)
	}
	g := growth.Pow(fixedpoint.One.Div(tau))
	var y fixedpoint.FixedPoint
	if e.yieldSpace {
		y = z.Mul(s.InitSharePrice.Mul(g).Sub(s.SharePrice)).Div(fixedpoint.Two)
	} else {
		y = s.InitSharePrice.Mul(z).Mul(g)
	}
	if !y.IsFinite() {
		return fixedpoint.Zero, errors.Wrap(model.ErrNonFiniteValue, "bond reserves for rate")
	}
	return fixedpoint.Max(y, fixedpoint.Zero), nil
}

func (e engine) liquidity(s model.MarketState, target, apr fixedpoint.FixedPoint, duration model.StretchedTime) (fixedpoint.FixedPoint, fixedpoint.FixedPoint, error) {
	if target.IsZero() {
		return fixedpoint.Zero, fixedpoint.Zero, errors.Wrap(model.ErrDivisionByZero, "target liquidity")
	}
	if !target.IsFinite() || target.IsNegative() {
		return fixedpoint.Zero, fixedpoint.Zero, errors.Wrapf(model.ErrPreconditionViolation, "target liquidity %s", target)
	}
	if !s.SharePrice.IsPositive() {
		return fixedpoint.Zero, fixedpoint.Zero, errors.Wrap(model.ErrDivisionByZero, "share price")
	}
	z := target.Div(s.SharePrice)
	y, err := e.bondReservesForRate(z, apr, s, duration)
	if err != nil {
		return fixedpoint.Zero, fixedpoint.Zero, err
	}
	return z, y, nil
}

func (e engine) lpOutGivenTokensIn(dBase, rate fixedpoint.FixedPoint, s model.MarketState, t model.StretchedTime) (fixedpoint.FixedPoint, fixedpoint.FixedPoint, fixedpoint.FixedPoint, error) {
	q := model.Quantity{Amount: dBase, Unit: model.TokenBase}
	if err := checkInput(q, s, fixedpoint.Zero, t); err != nil {
		return fixedpoint.Zero, fixedpoint.Zero, fixedpoint.Zero, err
	}
	c := s.SharePrice
	dz := dBase.Div(c)
	lpOut := dz
	if s.ShareReserves.IsPositive() {
		denom := s.ShareReserves.Sub(s.BaseBuffer.Div(c))
		if !denom.IsPositive() {
			return fixedpoint.Zero, fixedpoint.Zero, fixedpoint.Zero, errors.Wrap(model.ErrDivisionByZero, "share reserves net of base buffer")
		}
		lpOut = dz.Mul(s.LPReserves).Div(denom)
	}
	y, err := e.bondReservesForRate(s.ShareReserves.Add(dz), rate, s, t)
	if err != nil {
		return fixedpoint.Zero, fixedpoint.Zero, fixedpoint.Zero, err
	}
	return lpOut, dBase, y.Sub(s.BondReserves), nil
}

func (e engine) tokensOutGivenLPIn(lpIn, rate fixedpoint.FixedPoint, s model.MarketState, t model.StretchedTime) (fixedpoint.FixedPoint, fixedpoint.FixedPoint, error) {
	q := model.Quantity{Amount: lpIn, Unit: model.TokenBase}
	if err := checkInput(q, s, fixedpoint.Zero, t); err != nil {
		return fixedpoint.Zero, fixedpoint.Zero, err
	}
	if !s.LPReserves.IsPositive() {
		return fixedpoint.Zero, fixedpoint.Zero, errors.Wrap(model.ErrInsufficientReserves, "pool has no LP supply")
	}
	if lpIn.GreaterThan(s.LPReserves) {
		return fixedpoint.Zero, fixedpoint.Zero, errors.Wrapf(model.ErrInsufficientReserves, "lp in %s exceeds supply %s", lpIn, s.LPReserves)
	}
	c := s.SharePrice
	free := s.ShareReserves.Sub(s.BaseBuffer.Div(c))
	dz := free.Mul(lpIn).Div(s.LPReserves)
	dBase := c.Mul(dz)
	y, err := e.bondReservesForRate(s.ShareReserves.Sub(dz), rate, s, t)
	if err != nil {
		return fixedpoint.Zero, fixedpoint.Zero, err
	}
	return dBase, s.BondReserves.Sub(y), nil
}

func (e engine) spotPrice(s model.MarketState, t model.StretchedTime) (fixedpoint.FixedPoint, error) {
	if err := checkTime(t); err != nil {
		return fixedpoint.Zero, err
	}
	tau := e.curveTime(t)
	iv, err := newInvariant(s, tau, e.yieldSpace)
	if err != nil {
		return fixedpoint.Zero, err
	}
	return iv.spotPrice(s.ShareReserves, s.BondReserves, tau)
}

func (e engine) aprFromReserves(s model.MarketState, t model.StretchedTime) (fixedpoint.FixedPoint, error) {
	p, err := e.spotPrice(s, t)
	if err != nil {
		return fixedpoint.Zero, err
	}
	return CalcAPRFromSpotPrice(p, t)
}

func (e engine) maxLong(s model.MarketState, fee fixedpoint.FixedPoint, t model.StretchedTime) (fixedpoint.FixedPoint, error) {
	if s.IsEmpty() {
		return fixedpoint.Zero, model.ErrEmptyMarket
	}
	if err := checkState(s, fee, t); err != nil {
		return fixedpoint.Zero, err
	}
	iv, err := newInvariant(s, e.curveTime(t), e.yieldSpace)
	if err != nil {
		return fixedpoint.Zero, err
	}
	floor := fixedpoint.Max(s.BondBuffer, fixedpoint.Zero)
	return iv.maxLong(s.ShareReserves, s.BondReserves, floor)
}
