package pricing

import (
	"github.com/atmx/hyperdrive-engine/internal/fixedpoint"
	"github.com/atmx/hyperdrive-engine/internal/model"
)

// Hyperdrive prices trades against bond term y. The unmatured fraction of a
// trade uses the curve at the full term; the matured fraction settles 1:1
// against base, charged flatFee.
type Hyperdrive struct {
	e engine
}

// NewHyperdrive returns the Hyperdrive model for a term of termDays. A zero
// term prices every trade fully on the curve.
func NewHyperdrive(termDays, flatFee fixedpoint.FixedPoint) *Hyperdrive {
	return &Hyperdrive{e: engine{termDays: termDays, flatFee: flatFee}}
}

// TermDays returns the position duration the model splits trades against.
func (m *Hyperdrive) TermDays() fixedpoint.FixedPoint { return m.e.termDays }

func (m *Hyperdrive) Name() string { return NameHyperdrive }

func (m *Hyperdrive) CalcOutGivenIn(in model.Quantity, s model.MarketState, fee fixedpoint.FixedPoint, t model.StretchedTime) (TradeResult, error) {
	return m.e.outGivenIn(in, s, fee, t)
}

func (m *Hyperdrive) CalcInGivenOut(out model.Quantity, s model.MarketState, fee fixedpoint.FixedPoint, t model.StretchedTime) (TradeResult, error) {
	return m.e.inGivenOut(out, s, fee, t)
}

func (m *Hyperdrive) CalcLPOutGivenTokensIn(dBase, rate fixedpoint.FixedPoint, s model.MarketState, t model.StretchedTime) (fixedpoint.FixedPoint, fixedpoint.FixedPoint, fixedpoint.FixedPoint, error) {
	return m.e.lpOutGivenTokensIn(dBase, rate, s, t)
}

func (m *Hyperdrive) CalcTokensOutGivenLPIn(lpIn, rate fixedpoint.FixedPoint, s model.MarketState, t model.StretchedTime) (fixedpoint.FixedPoint, fixedpoint.FixedPoint, error) {
	return m.e.tokensOutGivenLPIn(lpIn, rate, s, t)
}

func (m *Hyperdrive) CalcLiquidity(s model.MarketState, targetLiquidity, targetAPR fixedpoint.FixedPoint, positionDuration model.StretchedTime) (fixedpoint.FixedPoint, fixedpoint.FixedPoint, error) {
	return m.e.liquidity(s, targetLiquidity, targetAPR, positionDuration)
}

func (m *Hyperdrive) CalcBondReservesForRate(shareReserves, rate fixedpoint.FixedPoint, s model.MarketState, t model.StretchedTime) (fixedpoint.FixedPoint, error) {
	return m.e.bondReservesForRate(shareReserves, rate, s, t)
}

func (m *Hyperdrive) CalcSpotPriceFromReserves(s model.MarketState, t model.StretchedTime) (fixedpoint.FixedPoint, error) {
	return m.e.spotPrice(s, t)
}

func (m *Hyperdrive) CalcAPRFromReserves(s model.MarketState, t model.StretchedTime) (fixedpoint.FixedPoint, error) {
	return m.e.aprFromReserves(s, t)
}

func (m *Hyperdrive) CalcMaxLong(s model.MarketState, fee fixedpoint.FixedPoint, t model.StretchedTime) (fixedpoint.FixedPoint, error) {
	return m.e.maxLong(s, fee, t)
}

func (m *Hyperdrive) CheckInputAssertions(q model.Quantity, s model.MarketState, fee fixedpoint.FixedPoint, t model.StretchedTime) error {
	return checkInput(q, s, fee, t)
}

func (m *Hyperdrive) CheckOutputAssertions(r TradeResult, s model.MarketState) error {
	return checkOutput(r, s)
}

// Fees are the fee parameters for start-of-term share quotes: the curve
// fee and the share of it paid to governance. Nothing has matured at the
// start of a term, so no flat fee applies; trades later in the term go
// through Hyperdrive.CalcOutGivenIn, which charges the model's flat fee.
type Fees struct {
	Curve        fixedpoint.FixedPoint `json:"curve"`
	GovernanceLP fixedpoint.FixedPoint `json:"governance_lp"`
}

// SharesOutGivenBondsIn returns the shares paid for bondsIn at the start of a
// term, net of the curve fee, and the part of that fee owed to governance in
// shares. Shares are rounded down.
func SharesOutGivenBondsIn(s model.MarketState, bondsIn fixedpoint.FixedPoint, positionDuration model.StretchedTime, fees Fees) (shares, governance fixedpoint.FixedPoint, err error) {
	iv, p, err := fullTerm(s, bondsIn, positionDuration)
	if err != nil {
		return fixedpoint.Zero, fixedpoint.Zero, err
	}
	base, err := iv.curveOutGivenIn(s.ShareReserves, s.BondReserves, model.TokenPT, bondsIn)
	if err != nil {
		return fixedpoint.Zero, fixedpoint.Zero, err
	}
	fee := baseFeeRate(p, fees.Curve).Mul(bondsIn)
	shares = base.Sub(fee).Div(s.SharePrice)
	governance = fee.Mul(fees.GovernanceLP).Div(s.SharePrice)
	return shares, governance, nil
}

// SharesInGivenBondsOut returns the shares required to buy bondsOut at the
// start of a term, including the curve fee, and the governance part of that
// fee. Shares are rounded up.
func SharesInGivenBondsOut(s model.MarketState, bondsOut fixedpoint.FixedPoint, positionDuration model.StretchedTime, fees Fees) (shares, governance fixedpoint.FixedPoint, err error) {
	iv, p, err := fullTerm(s, bondsOut, positionDuration)
	if err != nil {
		return fixedpoint.Zero, fixedpoint.Zero, err
	}
	base, err := iv.curveInGivenOut(s.ShareReserves, s.BondReserves, model.TokenPT, bondsOut)
	if err != nil {
		return fixedpoint.Zero, fixedpoint.Zero, err
	}
	fee := baseFeeRate(p, fees.Curve).Mul(bondsOut)
	shares = base.Add(fee).DivUp(s.SharePrice)
	governance = fee.Mul(fees.GovernanceLP).Div(s.SharePrice)
	return shares, governance, nil
}

func fullTerm(s model.MarketState, bonds fixedpoint.FixedPoint, t model.StretchedTime) (invariant, fixedpoint.FixedPoint, error) {
	if err := checkInput(model.Quantity{Amount: bonds, Unit: model.TokenPT}, s, fixedpoint.Zero, t); err != nil {
		return invariant{}, fixedpoint.Zero, err
	}
	tau := t.Stretched()
	iv, err := newInvariant(s, tau, false)
	if err != nil {
		return invariant{}, fixedpoint.Zero, err
	}
	p, err := iv.spotPrice(s.ShareReserves, s.BondReserves, tau)
	if err != nil {
		return invariant{}, fixedpoint.Zero, err
	}
	return iv, p, nil
}
