package pricing

import (
	"github.com/atmx/hyperdrive-engine/internal/fixedpoint"
	"github.com/atmx/hyperdrive-engine/internal/model"
)

// YieldSpace prices every trade on the curve with bond term 2y + c·z, at
// the time remaining on the position.
type YieldSpace struct {
	e engine
}

// NewYieldSpace returns the YieldSpace model.
func NewYieldSpace() *YieldSpace {
	return &YieldSpace{e: engine{yieldSpace: true}}
}

func (m *YieldSpace) Name() string { return NameYieldSpace }

func (m *YieldSpace) CalcOutGivenIn(in model.Quantity, s model.MarketState, fee fixedpoint.FixedPoint, t model.StretchedTime) (TradeResult, error) {
	return m.e.outGivenIn(in, s, fee, t)
}

func (m *YieldSpace) CalcInGivenOut(out model.Quantity, s model.MarketState, fee fixedpoint.FixedPoint, t model.StretchedTime) (TradeResult, error) {
	return m.e.inGivenOut(out, s, fee, t)
}

func (m *YieldSpace) CalcLPOutGivenTokensIn(dBase, rate fixedpoint.FixedPoint, s model.MarketState, t model.StretchedTime) (fixedpoint.FixedPoint, fixedpoint.FixedPoint, fixedpoint.FixedPoint, error) {
	return m.e.lpOutGivenTokensIn(dBase, rate, s, t)
}

func (m *YieldSpace) CalcTokensOutGivenLPIn(lpIn, rate fixedpoint.FixedPoint, s model.MarketState, t model.StretchedTime) (fixedpoint.FixedPoint, fixedpoint.FixedPoint, error) {
	return m.e.tokensOutGivenLPIn(lpIn, rate, s, t)
}

func (m *YieldSpace) CalcLiquidity(s model.MarketState, targetLiquidity, targetAPR fixedpoint.FixedPoint, positionDuration model.StretchedTime) (fixedpoint.FixedPoint, fixedpoint.FixedPoint, error) {
	return m.e.liquidity(s, targetLiquidity, targetAPR, positionDuration)
}

func (m *YieldSpace) CalcBondReservesForRate(shareReserves, rate fixedpoint.FixedPoint, s model.MarketState, t model.StretchedTime) (fixedpoint.FixedPoint, error) {
	return m.e.bondReservesForRate(shareReserves, rate, s, t)
}

func (m *YieldSpace) CalcSpotPriceFromReserves(s model.MarketState, t model.StretchedTime) (fixedpoint.FixedPoint, error) {
	return m.e.spotPrice(s, t)
}

func (m *YieldSpace) CalcAPRFromReserves(s model.MarketState, t model.StretchedTime) (fixedpoint.FixedPoint, error) {
	return m.e.aprFromReserves(s, t)
}

func (m *YieldSpace) CalcMaxLong(s model.MarketState, fee fixedpoint.FixedPoint, t model.StretchedTime) (fixedpoint.FixedPoint, error) {
	return m.e.maxLong(s, fee, t)
}

func (m *YieldSpace) CheckInputAssertions(q model.Quantity, s model.MarketState, fee fixedpoint.FixedPoint, t model.StretchedTime) error {
	return checkInput(q, s, fee, t)
}

func (m *YieldSpace) CheckOutputAssertions(r TradeResult, s model.MarketState) error {
	return checkOutput(r, s)
}
