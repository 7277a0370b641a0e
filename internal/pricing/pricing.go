// Package pricing implements the two curve variants of the fixed-rate AMM:
// YieldSpace and Hyperdrive.
//
// Both are stateless; the reserve snapshot, fee and time remaining are
// passed to every call. The invariant for a trade with stretched time τ is
//
//	k = (c/u)·(u·z)^(1-τ) + Y^(1-τ)
//
// where z is share reserves, c the share price, u the initial share price
// and Y the bond term: 2y + c·z for YieldSpace, y for Hyperdrive. Every
// curve trade solves the invariant exactly; with a zero fee, recomputing k
// after applying the market deltas reproduces it within rounding, and fees
// retained by the pool only ever increase it.
//
// Hyperdrive additionally splits a trade into a flat part for the matured
// fraction of the term, settled 1:1 against base, and a curve part priced at
// the full-term stretched time.
//
// All math uses fixedpoint.FixedPoint; nothing touches float64.
package pricing

import (
	"github.com/pkg/errors"

	"github.com/atmx/hyperdrive-engine/internal/fixedpoint"
	"github.com/atmx/hyperdrive-engine/internal/model"
)

// Supported model names.
const (
	NameYieldSpace = "yieldspace"
	NameHyperdrive = "hyperdrive"
)

// AgentTradeResult is the change to the trader's balances.
type AgentTradeResult struct {
	DBase  fixedpoint.FixedPoint `json:"d_base"`
	DBonds fixedpoint.FixedPoint `json:"d_bonds"`
}

// MarketTradeResult is the change to pool reserves, in base and bond units.
type MarketTradeResult struct {
	DBase  fixedpoint.FixedPoint `json:"d_base"`
	DBonds fixedpoint.FixedPoint `json:"d_bonds"`
}

// TradeBreakdown reports the computed side of a trade at each stage. All
// four values are in FeeUnit.
type TradeBreakdown struct {
	WithoutFeeOrSlippage fixedpoint.FixedPoint `json:"without_fee_or_slippage"`
	WithoutFee           fixedpoint.FixedPoint `json:"without_fee"`
	WithFee              fixedpoint.FixedPoint `json:"with_fee"`
	Fee                  fixedpoint.FixedPoint `json:"fee"`
	FeeUnit              model.TokenType       `json:"fee_unit"`
}

// TradeResult separates curve output from state mutation.
type TradeResult struct {
	UserResult   AgentTradeResult  `json:"user_result"`
	MarketResult MarketTradeResult `json:"market_result"`
	Breakdown    TradeBreakdown    `json:"breakdown"`
}

// Model is the contract shared by both curve variants.
type Model interface {
	// Name returns the model name used for action whitelisting.
	Name() string

	// CalcOutGivenIn prices a trade that sends in to the pool.
	CalcOutGivenIn(in model.Quantity, s model.MarketState, fee fixedpoint.FixedPoint, t model.StretchedTime) (TradeResult, error)

	// CalcInGivenOut prices a trade that takes out from the pool.
	CalcInGivenOut(out model.Quantity, s model.MarketState, fee fixedpoint.FixedPoint, t model.StretchedTime) (TradeResult, error)

	// CalcLPOutGivenTokensIn returns the LP tokens minted for dBase and the
	// base and bond reserve increases that keep the pool at rate.
	CalcLPOutGivenTokensIn(dBase, rate fixedpoint.FixedPoint, s model.MarketState, t model.StretchedTime) (lpOut, dBaseReserves, dBondReserves fixedpoint.FixedPoint, err error)

	// CalcTokensOutGivenLPIn returns the base and bond reserves released for
	// lpIn LP tokens, both as positive amounts leaving the pool.
	CalcTokensOutGivenLPIn(lpIn, rate fixedpoint.FixedPoint, s model.MarketState, t model.StretchedTime) (dBaseReserves, dBondReserves fixedpoint.FixedPoint, err error)

	// CalcLiquidity returns reserves worth targetLiquidity of base on the
	// share side that quote targetAPR over positionDuration.
	CalcLiquidity(s model.MarketState, targetLiquidity, targetAPR fixedpoint.FixedPoint, positionDuration model.StretchedTime) (shareReserves, bondReserves fixedpoint.FixedPoint, err error)

	// CalcBondReservesForRate returns the bond reserves that quote rate
	// against shareReserves.
	CalcBondReservesForRate(shareReserves, rate fixedpoint.FixedPoint, s model.MarketState, t model.StretchedTime) (fixedpoint.FixedPoint, error)

	// CalcSpotPriceFromReserves returns the marginal price of a bond in base.
	CalcSpotPriceFromReserves(s model.MarketState, t model.StretchedTime) (fixedpoint.FixedPoint, error)

	// CalcAPRFromReserves converts the spot price to an APR.
	CalcAPRFromReserves(s model.MarketState, t model.StretchedTime) (fixedpoint.FixedPoint, error)

	// CalcMaxLong returns the largest base amount that can be longed before
	// bond reserves fall to the bond buffer.
	CalcMaxLong(s model.MarketState, fee fixedpoint.FixedPoint, t model.StretchedTime) (fixedpoint.FixedPoint, error)

	// CheckInputAssertions validates a trade before any curve math runs.
	CheckInputAssertions(q model.Quantity, s model.MarketState, fee fixedpoint.FixedPoint, t model.StretchedTime) error

	// CheckOutputAssertions validates a trade result against the state it
	// will be applied to.
	CheckOutputAssertions(r TradeResult, s model.MarketState) error
}

// NewModel returns the model registered under name. termDays is the
// position duration in days; Hyperdrive uses it to split trades into flat
// and curve parts, YieldSpace ignores it.
func NewModel(name string, termDays fixedpoint.FixedPoint) (Model, error) {
	switch name {
	case NameYieldSpace:
		return NewYieldSpace(), nil
	case NameHyperdrive:
		return NewHyperdrive(termDays, fixedpoint.Zero), nil
	}
	return nil, errors.Wrapf(model.ErrUnknownModel, "%q", name)
}

// checkInput implements CheckInputAssertions for both models.
func checkInput(q model.Quantity, s model.MarketState, fee fixedpoint.FixedPoint, t model.StretchedTime) error {
	if !q.Amount.IsFinite() || !q.Amount.IsPositive() {
		return errors.Wrapf(model.ErrPreconditionViolation, "trade amount must be positive and finite, got %s", q.Amount)
	}
	if q.Unit != model.TokenBase && q.Unit != model.TokenPT {
		return errors.Wrapf(model.ErrPreconditionViolation, "unknown token unit %q", q.Unit)
	}
	return checkState(s, fee, t)
}

func checkState(s model.MarketState, fee fixedpoint.FixedPoint, t model.StretchedTime) error {
	if name, bad := s.NonFinite(); bad {
		return errors.Wrapf(model.ErrNonFiniteValue, "market state %s", name)
	}
	if s.ShareReserves.IsNegative() || s.BondReserves.IsNegative() {
		return errors.Wrapf(model.ErrPreconditionViolation, "reserves must be non-negative, got shares=%s bonds=%s",
			s.ShareReserves, s.BondReserves)
	}
	if !s.SharePrice.IsPositive() || !s.InitSharePrice.IsPositive() {
		return errors.Wrapf(model.ErrPreconditionViolation, "share prices must be positive, got c=%s u=%s",
			s.SharePrice, s.InitSharePrice)
	}
	if !fee.IsFinite() || fee.IsNegative() || fee.GreaterThan(fixedpoint.One) {
		return errors.Wrapf(model.ErrPreconditionViolation, "fee must be in [0, 1], got %s", fee)
	}
	return checkTime(t)
}

func checkTime(t model.StretchedTime) error {
	if !t.TimeStretch.IsFinite() || t.TimeStretch.LessThan(fixedpoint.One) {
		return errors.Wrapf(model.ErrPreconditionViolation, "time stretch must be >= 1, got %s", t.TimeStretch)
	}
	tau := t.Stretched()
	if !tau.IsFinite() || tau.IsNegative() || tau.GreaterThanOrEqual(fixedpoint.One) {
		return errors.Wrapf(model.ErrPreconditionViolation, "stretched time must be in [0, 1), got %s", tau)
	}
	return nil
}

// checkOutput implements CheckOutputAssertions for both models.
func checkOutput(r TradeResult, s model.MarketState) error {
	for _, f := range []struct {
		name string
		v    fixedpoint.FixedPoint
	}{
		{"user d_base", r.UserResult.DBase},
		{"user d_bonds", r.UserResult.DBonds},
		{"market d_base", r.MarketResult.DBase},
		{"market d_bonds", r.MarketResult.DBonds},
		{"without_fee_or_slippage", r.Breakdown.WithoutFeeOrSlippage},
		{"without_fee", r.Breakdown.WithoutFee},
		{"with_fee", r.Breakdown.WithFee},
		{"fee", r.Breakdown.Fee},
	} {
		if !f.v.IsFinite() {
			return errors.Wrapf(model.ErrNonFiniteValue, "trade result %s", f.name)
		}
	}
	if !s.SharePrice.IsPositive() {
		return errors.Wrap(model.ErrDivisionByZero, "share price")
	}
	z := s.ShareReserves.Add(r.MarketResult.DBase.Div(s.SharePrice))
	y := s.BondReserves.Add(r.MarketResult.DBonds)
	if !z.IsPositive() || y.IsNegative() {
		return errors.Wrapf(model.ErrInsufficientReserves, "post-trade reserves shares=%s bonds=%s", z, y)
	}
	return nil
}

var (
	_ Model = (*YieldSpace)(nil)
	_ Model = (*Hyperdrive)(nil)
)
