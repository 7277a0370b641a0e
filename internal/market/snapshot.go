package market

import (
	"github.com/pkg/errors"

	"github.com/atmx/hyperdrive-engine/internal/fixedpoint"
	"github.com/atmx/hyperdrive-engine/internal/model"
	"github.com/atmx/hyperdrive-engine/internal/pricing"
)

// Snapshot is everything needed to rebuild a Market.
type Snapshot struct {
	PricingModel     string                `json:"pricing_model"`
	Fee              fixedpoint.FixedPoint `json:"fee"`
	PositionDuration model.StretchedTime   `json:"position_duration"`
	Clock            int64                 `json:"clock"`
	State            model.MarketState     `json:"state"`
}

// Snapshot captures the market for persistence.
func (m *Market) Snapshot() Snapshot {
	return Snapshot{
		PricingModel:     m.pricing.Name(),
		Fee:              m.fee,
		PositionDuration: m.duration,
		Clock:            m.clock,
		State:            m.state,
	}
}

// Restore rebuilds a market from s. Options apply after the snapshot, so
// WithClock overrides the stored clock.
func Restore(s Snapshot, opts ...Option) (*Market, error) {
	pm, err := pricing.NewModel(s.PricingModel, s.PositionDuration.Days)
	if err != nil {
		return nil, errors.Wrap(err, "restore market")
	}
	return New(pm, s.State, s.PositionDuration, s.Fee, append([]Option{WithClock(s.Clock)}, opts...)...)
}

// SnapshotFromPool converts a persisted pool to a snapshot.
func SnapshotFromPool(p model.Pool) Snapshot {
	return Snapshot{
		PricingModel:     p.PricingModel,
		Fee:              p.FeePercent,
		PositionDuration: p.PositionDuration,
		Clock:            p.Clock,
		State:            p.State,
	}
}

// ApplyTo copies the snapshot's mutable parts into p.
func (s Snapshot) ApplyTo(p *model.Pool) {
	p.Clock = s.Clock
	p.State = s.State
}
