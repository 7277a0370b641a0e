package config

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/atmx/hyperdrive-engine/internal/market"
	"github.com/atmx/hyperdrive-engine/internal/model"
	"github.com/atmx/hyperdrive-engine/internal/pricing"
)

// Duration returns the full position term, stretched for the target APR.
func (m MarketConfig) Duration() (model.StretchedTime, error) {
	ts, err := pricing.CalcTimeStretch(m.TargetAPR)
	if err != nil {
		return model.StretchedTime{}, errors.Wrap(err, "config: time stretch")
	}
	return model.NewStretchedTime(m.PositionDurationDays, ts), nil
}

// NewMarket builds an empty market from m. Callers seed it with Bootstrap.
func (m MarketConfig) NewMarket(opts ...market.Option) (*market.Market, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	d, err := m.Duration()
	if err != nil {
		return nil, err
	}
	pm, err := pricing.NewModel(strings.ToLower(m.PricingModel), d.Days)
	if err != nil {
		return nil, errors.Wrap(err, "config")
	}
	state := model.MarketState{
		SharePrice:     m.SharePrice,
		InitSharePrice: m.InitSharePrice,
		VaultAPR:       m.VaultAPR,
	}
	return market.New(pm, state, d, m.FeePercent, opts...)
}
