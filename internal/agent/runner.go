package agent

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/atmx/hyperdrive-engine/internal/fixedpoint"
	"github.com/atmx/hyperdrive-engine/internal/limits"
	"github.com/atmx/hyperdrive-engine/internal/market"
	"github.com/atmx/hyperdrive-engine/internal/model"
	"github.com/atmx/hyperdrive-engine/internal/wallet"
)

// Recorder receives every trade the runner applies.
type Recorder interface {
	Record(ctx context.Context, a model.TradeAction, delta wallet.Wallet, state model.MarketState, clock int64) error
}

// StepReport counts what happened in one step.
type StepReport struct {
	Applied  int
	Skipped  int // failed a limit check or the market refused the trade
	Rejected int // open_long above bond reserves, returned with no effect
}

// Runner decides for every agent concurrently and then applies the chosen
// trades one at a time, in agent order, to the market it owns.
type Runner struct {
	market  *market.Market
	agents  []*Agent
	limiter *limits.PositionLimiter
	rec     Recorder
	log     *zap.Logger
}

// NewRunner returns a runner over m. limiter and rec may be nil.
func NewRunner(m *market.Market, agents []*Agent, limiter *limits.PositionLimiter, rec Recorder, log *zap.Logger) *Runner {
	if limiter == nil {
		limiter = limits.NewPositionLimiter(fixedpoint.Zero)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{market: m, agents: agents, limiter: limiter, rec: rec, log: log}
}

// Agents returns the agents in apply order.
func (r *Runner) Agents() []*Agent { return r.agents }

// Step runs one round of decisions and trades.
func (r *Runner) Step(ctx context.Context) (StepReport, error) {
	view := ViewOf(r.market)
	decided := make([][]model.TradeAction, len(r.agents))

	g, gctx := errgroup.WithContext(ctx)
	for i, a := range r.agents {
		// Policies read a private copy of the wallet.
		w := a.Wallet.Clone()
		g.Go(func() error {
			acts, err := a.Policy.Action(gctx, view, w)
			if err != nil {
				return errors.Wrapf(err, "agent %s", a.Name)
			}
			decided[i] = acts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return StepReport{}, err
	}

	var rep StepReport
	for i, a := range r.agents {
		for _, act := range decided[i] {
			if err := ctx.Err(); err != nil {
				return rep, err
			}
			act.Wallet = a.Wallet.Address
			if err := r.limiter.CheckAction(act, a.Wallet); err != nil {
				r.log.Warn("trade skipped by limits", zap.String("agent", a.Name), zap.String("action", string(act.Type)), zap.Error(err))
				rep.Skipped++
				continue
			}
			delta, err := r.market.TradeAndUpdate(act)
			if err != nil {
				r.log.Warn("trade refused by market", zap.String("agent", a.Name), zap.String("action", string(act.Type)), zap.Error(err))
				rep.Skipped++
				continue
			}
			if delta.IsZero() {
				rep.Rejected++
				continue
			}
			if err := a.Apply(delta); err != nil {
				return rep, errors.Wrapf(err, "agent %s wallet", a.Name)
			}
			if r.rec != nil {
				if err := r.rec.Record(ctx, act, delta, r.market.State(), r.market.Clock()); err != nil {
					return rep, errors.Wrap(err, "record trade")
				}
			}
			rep.Applied++
		}
	}
	return rep, nil
}
