package pricing

import (
	"github.com/pkg/errors"

	"github.com/atmx/hyperdrive-engine/internal/fixedpoint"
	"github.com/atmx/hyperdrive-engine/internal/model"
)

var (
	timeStretchNumerator = fixedpoint.MustParse("3.09396")
	timeStretchScale     = fixedpoint.MustParse("0.02789")
	hundred              = fixedpoint.New(100)
)

// CalcAPRFromSpotPrice converts a bond price to the simple annual rate it
// implies over t: (1 - p) / (p · years).
func CalcAPRFromSpotPrice(price fixedpoint.FixedPoint, t model.StretchedTime) (fixedpoint.FixedPoint, error) {
	years := t.YearFraction()
	if !price.IsPositive() {
		return fixedpoint.Zero, errors.Wrapf(model.ErrPreconditionViolation, "price must be positive, got %s", price)
	}
	if !years.IsPositive() {
		return fixedpoint.Zero, errors.Wrapf(model.ErrPreconditionViolation, "time remaining must be positive, got %s days", t.Days)
	}
	return fixedpoint.One.Sub(price).Div(price.Mul(years)), nil
}

// CalcSpotPriceFromAPR is the inverse of CalcAPRFromSpotPrice. Zero days
// remaining prices a bond at exactly one.
func CalcSpotPriceFromAPR(apr fixedpoint.FixedPoint, t model.StretchedTime) (fixedpoint.FixedPoint, error) {
	denom := fixedpoint.One.Add(apr.Mul(t.YearFraction()))
	if !denom.IsPositive() {
		return fixedpoint.Zero, errors.Wrapf(model.ErrPreconditionViolation, "apr %s over %s days", apr, t.Days)
	}
	return fixedpoint.One.Div(denom), nil
}

// CalcKConst evaluates the YieldSpace invariant with exponent timeElapsed.
func CalcKConst(s model.MarketState, timeElapsed fixedpoint.FixedPoint) (fixedpoint.FixedPoint, error) {
	if s.InitSharePrice.IsZero() {
		return fixedpoint.Zero, errors.Wrap(model.ErrDivisionByZero, "init share price")
	}
	c, u := s.SharePrice, s.InitSharePrice
	shares := c.Div(u).Mul(u.Mul(s.ShareReserves).Pow(timeElapsed))
	bonds := fixedpoint.Two.Mul(s.BondReserves).Add(c.Mul(s.ShareReserves)).Pow(timeElapsed)
	return shares.Add(bonds), nil
}

// CalcTimeStretch returns the time stretch constant for a pool quoting apr:
// 3.09396 / (0.02789 · apr · 100).
func CalcTimeStretch(apr fixedpoint.FixedPoint) (fixedpoint.FixedPoint, error) {
	if !apr.IsPositive() {
		return fixedpoint.Zero, errors.Wrapf(model.ErrDivisionByZero, "apr %s", apr)
	}
	return timeStretchNumerator.Div(timeStretchScale.Mul(apr).Mul(hundred)), nil
}

// growthFactor returns (1 + apr·years)^(1/τ).
func growthFactor(apr fixedpoint.FixedPoint, t model.StretchedTime) (fixedpoint.FixedPoint, error) {
	tau := t.Stretched()
	if !tau.IsFinite() || !tau.IsPositive() {
		return fixedpoint.Zero, errors.Wrapf(model.ErrDivisionByZero, "stretched time %s", tau)
	}
	growth := fixedpoint.One.Add(apr.Mul(t.YearFraction()))
	if !growth.IsPositive() {
		return fixedpoint.Zero, errors.Wrapf(model.ErrPreconditionViolation, "apr %s over %s days", apr, t.Days)
	}
	return growth.Pow(fixedpoint.One.Div(tau)), nil
}

// CalcBaseAssetReserves returns the base reserves that, against
// bondReserves, make the YieldSpace pool quote apr: 2·c·y / (u·g - c).
func CalcBaseAssetReserves(apr, bondReserves fixedpoint.FixedPoint, t model.StretchedTime, initSharePrice, sharePrice fixedpoint.FixedPoint) (fixedpoint.FixedPoint, error) {
	g, err := growthFactor(apr, t)
	if err != nil {
		return fixedpoint.Zero, err
	}
	denom := initSharePrice.Mul(g).Sub(sharePrice)
	if denom.IsZero() {
		return fixedpoint.Zero, errors.Wrap(model.ErrDivisionByZero, "u·g - c")
	}
	return fixedpoint.Two.Mul(sharePrice).Mul(bondReserves).Div(denom), nil
}

// CalcBondReserves returns the YieldSpace bond reserves that, against
// shareReserves, quote apr: z·(u·g - c) / 2.
func CalcBondReserves(apr, shareReserves fixedpoint.FixedPoint, t model.StretchedTime, initSharePrice, sharePrice fixedpoint.FixedPoint) (fixedpoint.FixedPoint, error) {
	g, err := growthFactor(apr, t)
	if err != nil {
		return fixedpoint.Zero, err
	}
	return shareReserves.Mul(initSharePrice.Mul(g).Sub(sharePrice)).Div(fixedpoint.Two), nil
}

// CalcTotalLiquidity values the pool in base at bond price p: c·z + p·y.
func CalcTotalLiquidity(s model.MarketState, price fixedpoint.FixedPoint) fixedpoint.FixedPoint {
	return s.SharePrice.Mul(s.ShareReserves).Add(price.Mul(s.BondReserves))
}
