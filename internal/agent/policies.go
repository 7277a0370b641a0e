package agent

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/atmx/hyperdrive-engine/internal/fixedpoint"
	"github.com/atmx/hyperdrive-engine/internal/model"
	"github.com/atmx/hyperdrive-engine/internal/wallet"
)

// Policy names accepted by NewPolicy.
const (
	PolicyNoop              = "noop"
	PolicySingleLong        = "single_long"
	PolicySingleShort       = "single_short"
	PolicyLiquidityProvider = "lp_and_withdraw"
)

// ErrUnknownPolicy is returned by NewPolicy for an unregistered name.
var ErrUnknownPolicy = errors.New("agent: unknown policy")

// NewPolicy builds a policy by name. amount is the trade size and hold the
// seconds a position stays open before it is closed.
func NewPolicy(name string, amount fixedpoint.FixedPoint, hold int64) (Policy, error) {
	switch strings.ToLower(name) {
	case PolicyNoop:
		return Noop{}, nil
	case PolicySingleLong:
		return &SingleLong{Amount: amount, Hold: hold}, nil
	case PolicySingleShort:
		return &SingleShort{Amount: amount, Hold: hold}, nil
	case PolicyLiquidityProvider:
		return &LiquidityProvider{Amount: amount, Hold: hold}, nil
	}
	return nil, errors.Wrapf(ErrUnknownPolicy, "%q", name)
}

// Noop never trades.
type Noop struct{}

func (Noop) Action(context.Context, MarketView, *wallet.Wallet) ([]model.TradeAction, error) {
	return nil, nil
}

// SingleLong opens one long of Amount base when the pool can take it, and
// closes the whole cohort once Hold seconds have passed. It never reopens.
type SingleLong struct {
	Amount fixedpoint.FixedPoint
	Hold   int64

	opened bool
}

func (p *SingleLong) Action(_ context.Context, v MarketView, w *wallet.Wallet) ([]model.TradeAction, error) {
	if open := w.OpenLongs(); len(open) > 0 {
		mint := open[0]
		if v.Clock-mint < p.Hold {
			return nil, nil
		}
		return []model.TradeAction{{
			Type:     model.CloseLong,
			Amount:   w.Longs[mint].Balance,
			Wallet:   w.Address,
			MintTime: mint,
		}}, nil
	}
	if p.opened || !v.MaxLongOK || v.MaxLong.LessThan(p.Amount) || w.Base.LessThan(p.Amount) {
		return nil, nil
	}
	p.opened = true
	return []model.TradeAction{{Type: model.OpenLong, Amount: p.Amount, Wallet: w.Address}}, nil
}

// SingleShort opens one short of Amount bonds and closes it after Hold
// seconds.
type SingleShort struct {
	Amount fixedpoint.FixedPoint
	Hold   int64

	opened bool
}

func (p *SingleShort) Action(_ context.Context, v MarketView, w *wallet.Wallet) ([]model.TradeAction, error) {
	if open := w.OpenShorts(); len(open) > 0 {
		mint := open[0]
		if v.Clock-mint < p.Hold {
			return nil, nil
		}
		return []model.TradeAction{{
			Type:     model.CloseShort,
			Amount:   w.Shorts[mint].Balance,
			Wallet:   w.Address,
			MintTime: mint,
		}}, nil
	}
	// The deposit for a short never exceeds the bonds sold.
	if p.opened || !v.PriceOK || w.Base.LessThan(p.Amount) {
		return nil, nil
	}
	p.opened = true
	return []model.TradeAction{{Type: model.OpenShort, Amount: p.Amount, Wallet: w.Address}}, nil
}

// LiquidityProvider deposits Amount base once and withdraws all of it after
// Hold seconds.
type LiquidityProvider struct {
	Amount fixedpoint.FixedPoint
	Hold   int64

	openedAt int64
	opened   bool
}

func (p *LiquidityProvider) Action(_ context.Context, v MarketView, w *wallet.Wallet) ([]model.TradeAction, error) {
	if w.LPTokens.IsPositive() {
		if !p.opened || v.Clock-p.openedAt < p.Hold {
			return nil, nil
		}
		return []model.TradeAction{{Type: model.RemoveLiquidity, Amount: w.LPTokens, Wallet: w.Address}}, nil
	}
	if p.opened || w.Base.LessThan(p.Amount) {
		return nil, nil
	}
	p.opened, p.openedAt = true, v.Clock
	return []model.TradeAction{{Type: model.AddLiquidity, Amount: p.Amount, Wallet: w.Address}}, nil
}
