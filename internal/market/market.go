// Package market turns trade actions into reserve and wallet changes.
//
// A Market owns one MarketState and is not safe for concurrent use; callers
// that accept trades from many goroutines must serialize every mutating call
// through a single owner (see trade.Service).
package market

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/atmx/hyperdrive-engine/internal/fixedpoint"
	"github.com/atmx/hyperdrive-engine/internal/model"
	"github.com/atmx/hyperdrive-engine/internal/pricing"
	"github.com/atmx/hyperdrive-engine/internal/wallet"
)

// allowedActions is the whitelist of action types per pricing model.
var allowedActions = map[string][]model.ActionType{
	pricing.NameHyperdrive: model.ActionTypes,
	pricing.NameYieldSpace: model.ActionTypes,
}

// Observer is told about trades the market adjusts instead of executing as
// requested.
type Observer interface {
	OpenLongRejected(amount, bondReserves fixedpoint.FixedPoint)
	CloseShortClamped(requested, clamped fixedpoint.FixedPoint)
}

type nopObserver struct{}

func (nopObserver) OpenLongRejected(fixedpoint.FixedPoint, fixedpoint.FixedPoint)  {}
func (nopObserver) CloseShortClamped(fixedpoint.FixedPoint, fixedpoint.FixedPoint) {}

// Option configures a Market.
type Option func(*Market)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(m *Market) { m.log = l }
}

// WithObserver registers o for rejected and clamped trades.
func WithObserver(o Observer) Option {
	return func(m *Market) { m.obs = o }
}

// WithClock starts the market clock at seconds instead of zero.
func WithClock(seconds int64) Option {
	return func(m *Market) { m.clock = seconds }
}

// Market is the state machine around one pool.
type Market struct {
	state    model.MarketState
	pricing  pricing.Model
	duration model.StretchedTime
	fee      fixedpoint.FixedPoint
	clock    int64 // seconds; the mint time of new positions

	log *zap.Logger
	obs Observer
}

// New builds a market over state. duration is the full position term and
// fee the curve fee fraction.
func New(pm pricing.Model, state model.MarketState, duration model.StretchedTime, fee fixedpoint.FixedPoint, opts ...Option) (*Market, error) {
	if pm == nil {
		return nil, errors.Wrap(model.ErrUnknownModel, "nil pricing model")
	}
	if !fee.IsFinite() || fee.IsNegative() || fee.GreaterThan(fixedpoint.One) {
		return nil, errors.Wrapf(model.ErrPreconditionViolation, "fee must be in [0, 1], got %s", fee)
	}
	if !duration.Days.IsPositive() || !duration.TimeStretch.GreaterThanOrEqual(fixedpoint.One) {
		return nil, errors.Wrapf(model.ErrPreconditionViolation, "position duration days=%s time_stretch=%s",
			duration.Days, duration.TimeStretch)
	}
	if name, bad := state.NonFinite(); bad {
		return nil, errors.Wrapf(model.ErrNonFiniteValue, "initial state %s", name)
	}
	m := &Market{
		state:    state,
		pricing:  pm,
		duration: duration,
		fee:      fee,
		log:      zap.NewNop(),
		obs:      nopObserver{},
	}
	for _, o := range opts {
		o(m)
	}
	return m, nil
}

// State returns a copy of the reserve snapshot.
func (m *Market) State() model.MarketState { return m.state }

// Clock returns the market time in seconds.
func (m *Market) Clock() int64 { return m.clock }

// PositionDuration returns the full position term.
func (m *Market) PositionDuration() model.StretchedTime { return m.duration }

// Fee returns the curve fee fraction.
func (m *Market) Fee() fixedpoint.FixedPoint { return m.fee }

// PricingModel returns the curve the market trades on.
func (m *Market) PricingModel() pricing.Model { return m.pricing }

// CheckActionType fails with ErrInvalidAction unless action is permitted
// for the pricing model named modelName.
func CheckActionType(action model.ActionType, modelName string) error {
	for _, a := range allowedActions[modelName] {
		if a == action {
			return nil
		}
	}
	return errors.Wrapf(model.ErrInvalidAction, "%s on %q", action, modelName)
}

// TradeAndUpdate executes action, applies the market deltas and returns the
// wallet delta for the trader. A rejected open_long returns an empty delta
// and a nil error.
func (m *Market) TradeAndUpdate(action model.TradeAction) (wallet.Wallet, error) {
	if err := CheckActionType(action.Type, m.pricing.Name()); err != nil {
		return wallet.Wallet{}, err
	}

	var (
		d   model.MarketDeltas
		w   wallet.Wallet
		err error
	)
	switch action.Type {
	case model.OpenLong:
		d, w, err = m.openLong(action.Wallet, action.Amount)
	case model.CloseLong:
		d, w, err = m.closeLong(action.Wallet, action.Amount, action.MintTime)
	case model.OpenShort:
		d, w, err = m.openShort(action.Wallet, action.Amount)
	case model.CloseShort:
		d, w, err = m.closeShort(action.Wallet, action.Amount, action.MintTime)
	case model.AddLiquidity:
		d, w, err = m.addLiquidity(action.Wallet, action.Amount)
	case model.RemoveLiquidity:
		d, w, err = m.removeLiquidity(action.Wallet, action.Amount)
	}
	if err != nil {
		return wallet.Wallet{}, errors.Wrapf(err, "%s", action.Type)
	}
	if err := m.UpdateMarket(d); err != nil {
		return wallet.Wallet{}, errors.Wrapf(err, "%s", action.Type)
	}

	m.log.Debug("trade applied",
		zap.String("action", string(action.Type)),
		zap.Stringer("wallet", action.Wallet),
		zap.Stringer("amount", action.Amount),
		zap.Stringer("d_base", d.DBase),
		zap.Stringer("d_bonds", d.DBonds),
		zap.Int64("clock", m.clock),
	)
	return w, nil
}

// UpdateMarket applies d to the state. Every field must be finite; on error
// the state is unchanged.
func (m *Market) UpdateMarket(d model.MarketDeltas) error {
	if d.IsZero() {
		return nil
	}
	return m.state.ApplyDelta(d)
}

// Accrue grows the share price by apr over dtYears. Compounding accrues on
// the current share price, simple interest on the initial one.
func (m *Market) Accrue(apr, dtYears fixedpoint.FixedPoint, compound bool) error {
	if !apr.IsFinite() || !dtYears.IsFinite() || dtYears.IsNegative() {
		return errors.Wrapf(model.ErrPreconditionViolation, "accrue apr=%s dt=%s", apr, dtYears)
	}
	mult := m.state.InitSharePrice
	if compound {
		mult = m.state.SharePrice
	}
	next := m.state.SharePrice.Add(mult.Mul(apr).Mul(dtYears))
	if !next.IsPositive() {
		return errors.Wrapf(model.ErrPreconditionViolation, "share price would fall to %s", next)
	}
	m.state.SharePrice = next
	m.state.VaultAPR = apr
	return nil
}

// Tick advances the clock.
func (m *Market) Tick(seconds int64) error {
	if seconds < 0 {
		return errors.Wrapf(model.ErrPreconditionViolation, "tick of %d seconds", seconds)
	}
	m.clock += seconds
	return nil
}

// SpotPrice returns the current bond price. ok is false on an empty market
// or when the price is undefined.
func (m *Market) SpotPrice() (fixedpoint.FixedPoint, bool) {
	if m.state.IsEmpty() {
		return fixedpoint.NaN(), false
	}
	p, err := m.pricing.CalcSpotPriceFromReserves(m.state, m.duration)
	if err != nil {
		return fixedpoint.NaN(), false
	}
	return p, true
}

// Rate returns the current fixed APR.
func (m *Market) Rate() (fixedpoint.FixedPoint, bool) {
	p, ok := m.SpotPrice()
	if !ok {
		return fixedpoint.NaN(), false
	}
	r, err := pricing.CalcAPRFromSpotPrice(p, m.duration)
	if err != nil {
		return fixedpoint.NaN(), false
	}
	return r, true
}

// MaxLong returns the largest base amount that can be longed now.
func (m *Market) MaxLong() (fixedpoint.FixedPoint, bool) {
	if m.state.IsEmpty() {
		return fixedpoint.NaN(), false
	}
	v, err := m.pricing.CalcMaxLong(m.state, m.fee, m.duration)
	if err != nil {
		return fixedpoint.NaN(), false
	}
	return v, true
}

// Bootstrap seeds an empty pool with reserves worth targetLiquidity that
// quote targetAPR, and returns the wallet delta for the provider at addr.
func (m *Market) Bootstrap(addr common.Address, targetLiquidity, targetAPR fixedpoint.FixedPoint) (wallet.Wallet, error) {
	if !m.state.ShareReserves.IsZero() || !m.state.BondReserves.IsZero() {
		return wallet.Wallet{}, errors.Wrap(model.ErrPreconditionViolation, "bootstrap on an initialized pool")
	}
	z, y, err := m.pricing.CalcLiquidity(m.state, targetLiquidity, targetAPR, m.duration)
	if err != nil {
		return wallet.Wallet{}, errors.Wrap(err, "bootstrap")
	}
	base := z.Mul(m.state.SharePrice)
	d := model.MarketDeltas{DBase: base, DBonds: y, DLPReserves: z}
	if err := m.UpdateMarket(d); err != nil {
		return wallet.Wallet{}, errors.Wrap(err, "bootstrap")
	}
	m.log.Info("pool bootstrapped",
		zap.Stringer("share_reserves", m.state.ShareReserves),
		zap.Stringer("bond_reserves", m.state.BondReserves),
		zap.Stringer("target_apr", targetAPR),
	)
	return wallet.Wallet{Address: addr, Base: base.Neg(), LPTokens: z}, nil
}

// timeRemaining returns the unexpired part of the term for a position
// minted at mint.
func (m *Market) timeRemaining(mint int64) model.StretchedTime {
	elapsed := fixedpoint.New(m.clock - mint).Div(fixedpoint.New(model.SecondsPerDay))
	days := fixedpoint.Max(fixedpoint.Zero, m.duration.Days.Sub(elapsed))
	return m.duration.WithDays(fixedpoint.Min(days, m.duration.Days))
}

func (m *Market) trade(q model.Quantity, t model.StretchedTime, outGivenIn bool) (pricing.TradeResult, error) {
	if err := m.pricing.CheckInputAssertions(q, m.state, m.fee, t); err != nil {
		return pricing.TradeResult{}, err
	}
	var (
		r   pricing.TradeResult
		err error
	)
	if outGivenIn {
		r, err = m.pricing.CalcOutGivenIn(q, m.state, m.fee, t)
	} else {
		r, err = m.pricing.CalcInGivenOut(q, m.state, m.fee, t)
	}
	if err != nil {
		return pricing.TradeResult{}, err
	}
	if err := m.pricing.CheckOutputAssertions(r, m.state); err != nil {
		return pricing.TradeResult{}, err
	}
	return r, nil
}

// feeDeltas routes a trade fee to the accumulator for its unit.
func feeDeltas(d *model.MarketDeltas, b pricing.TradeBreakdown) {
	if b.FeeUnit == model.TokenPT {
		d.DBondFees = b.Fee
		return
	}
	d.DBaseFees = b.Fee
}

func positive(amount fixedpoint.FixedPoint) error {
	if !amount.IsFinite() || !amount.IsPositive() {
		return errors.Wrapf(model.ErrPreconditionViolation, "trade amount must be positive, got %s", amount)
	}
	return nil
}

// openLong rejects, rather than clamps, an amount above the bond reserves.
func (m *Market) openLong(addr common.Address, amount fixedpoint.FixedPoint) (model.MarketDeltas, wallet.Wallet, error) {
	if err := positive(amount); err != nil {
		return model.MarketDeltas{}, wallet.Wallet{}, err
	}
	if amount.GreaterThan(m.state.BondReserves) {
		m.log.Warn("open_long exceeds bond reserves, trade rejected",
			zap.Stringer("amount", amount),
			zap.Stringer("bond_reserves", m.state.BondReserves),
		)
		m.obs.OpenLongRejected(amount, m.state.BondReserves)
		return model.MarketDeltas{}, wallet.Wallet{Address: addr}, nil
	}
	r, err := m.trade(model.Quantity{Amount: amount, Unit: model.TokenBase}, m.duration, true)
	if err != nil {
		return model.MarketDeltas{}, wallet.Wallet{}, err
	}
	bonds := r.UserResult.DBonds
	d := model.MarketDeltas{
		DBase:             r.MarketResult.DBase,
		DBonds:            r.MarketResult.DBonds,
		DBaseBuffer:       bonds,
		DLongsOutstanding: bonds,
	}
	feeDeltas(&d, r.Breakdown)
	return d, wallet.Wallet{
		Address:  addr,
		Base:     r.UserResult.DBase,
		Longs:    map[int64]wallet.Long{m.clock: {Balance: bonds}},
		FeesPaid: r.Breakdown.Fee,
	}, nil
}

// closeLong sells amount bonds from the cohort minted at mint. The caller
// bounds amount by the cohort balance.
func (m *Market) closeLong(addr common.Address, amount fixedpoint.FixedPoint, mint int64) (model.MarketDeltas, wallet.Wallet, error) {
	r, err := m.trade(model.Quantity{Amount: amount, Unit: model.TokenPT}, m.timeRemaining(mint), true)
	if err != nil {
		return model.MarketDeltas{}, wallet.Wallet{}, err
	}
	d := model.MarketDeltas{
		DBase:             r.MarketResult.DBase,
		DBonds:            r.MarketResult.DBonds,
		DBaseBuffer:       amount.Neg(),
		DLongsOutstanding: amount.Neg(),
	}
	feeDeltas(&d, r.Breakdown)
	return d, wallet.Wallet{
		Address:  addr,
		Base:     r.UserResult.DBase,
		Longs:    map[int64]wallet.Long{mint: {Balance: r.UserResult.DBonds}},
		FeesPaid: r.Breakdown.Fee,
	}, nil
}

// openShort escrows the full bond amount as margin; the trader pays the
// difference between it and the sale proceeds.
func (m *Market) openShort(addr common.Address, amount fixedpoint.FixedPoint) (model.MarketDeltas, wallet.Wallet, error) {
	if err := positive(amount); err != nil {
		return model.MarketDeltas{}, wallet.Wallet{}, err
	}
	r, err := m.trade(model.Quantity{Amount: amount, Unit: model.TokenPT}, m.duration, true)
	if err != nil {
		return model.MarketDeltas{}, wallet.Wallet{}, err
	}
	d := model.MarketDeltas{
		DBase:              r.MarketResult.DBase,
		DBonds:             r.MarketResult.DBonds,
		DBondBuffer:        amount,
		DShortsOutstanding: amount,
	}
	feeDeltas(&d, r.Breakdown)
	maxLoss := amount.Sub(r.UserResult.DBase)
	return d, wallet.Wallet{
		Address:  addr,
		Base:     maxLoss.Neg(),
		Shorts:   map[int64]wallet.Short{m.clock: {Balance: amount, Margin: amount}},
		FeesPaid: r.Breakdown.Fee,
	}, nil
}

// closeShort clamps, rather than rejects, an amount above the bond reserves.
// The cost of buying the bonds back is debited from the cohort margin.
func (m *Market) closeShort(addr common.Address, amount fixedpoint.FixedPoint, mint int64) (model.MarketDeltas, wallet.Wallet, error) {
	if amount.GreaterThan(m.state.BondReserves) {
		m.log.Warn("close_short exceeds bond reserves, clamping",
			zap.Stringer("amount", amount),
			zap.Stringer("bond_reserves", m.state.BondReserves),
		)
		m.obs.CloseShortClamped(amount, m.state.BondReserves)
		amount = m.state.BondReserves
	}
	r, err := m.trade(model.Quantity{Amount: amount, Unit: model.TokenPT}, m.timeRemaining(mint), false)
	if err != nil {
		return model.MarketDeltas{}, wallet.Wallet{}, err
	}
	d := model.MarketDeltas{
		DBase:              r.MarketResult.DBase,
		DBonds:             r.MarketResult.DBonds,
		DBondBuffer:        amount.Neg(),
		DShortsOutstanding: amount.Neg(),
	}
	feeDeltas(&d, r.Breakdown)
	return d, wallet.Wallet{
		Address:  addr,
		Shorts:   map[int64]wallet.Short{mint: {Balance: amount.Neg(), Margin: r.UserResult.DBase}},
		FeesPaid: r.Breakdown.Fee,
	}, nil
}

func (m *Market) addLiquidity(addr common.Address, amount fixedpoint.FixedPoint) (model.MarketDeltas, wallet.Wallet, error) {
	rate := fixedpoint.Zero
	if !m.state.ShareReserves.IsZero() || !m.state.BondReserves.IsZero() {
		var ok bool
		if rate, ok = m.Rate(); !ok {
			return model.MarketDeltas{}, wallet.Wallet{}, errors.Wrap(model.ErrDivisionByZero, "pool rate undefined")
		}
	}
	lpOut, dBase, dBonds, err := m.pricing.CalcLPOutGivenTokensIn(amount, rate, m.state, m.duration)
	if err != nil {
		return model.MarketDeltas{}, wallet.Wallet{}, err
	}
	return model.MarketDeltas{DBase: dBase, DBonds: dBonds, DLPReserves: lpOut},
		wallet.Wallet{Address: addr, Base: dBase.Neg(), LPTokens: lpOut}, nil
}

// removeLiquidity burns amount LP tokens. The caller bounds amount by its
// LP balance.
func (m *Market) removeLiquidity(addr common.Address, amount fixedpoint.FixedPoint) (model.MarketDeltas, wallet.Wallet, error) {
	rate, ok := m.Rate()
	if !ok {
		return model.MarketDeltas{}, wallet.Wallet{}, errors.Wrap(model.ErrEmptyMarket, "remove liquidity")
	}
	dBase, dBonds, err := m.pricing.CalcTokensOutGivenLPIn(amount, rate, m.state, m.duration)
	if err != nil {
		return model.MarketDeltas{}, wallet.Wallet{}, err
	}
	return model.MarketDeltas{DBase: dBase.Neg(), DBonds: dBonds.Neg(), DLPReserves: amount.Neg()},
		wallet.Wallet{Address: addr, Base: dBase, LPTokens: amount.Neg()}, nil
}
