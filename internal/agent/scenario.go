package agent

import (
	"context"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/atmx/hyperdrive-engine/internal/config"
	"github.com/atmx/hyperdrive-engine/internal/fixedpoint"
	"github.com/atmx/hyperdrive-engine/internal/limits"
	"github.com/atmx/hyperdrive-engine/internal/market"
	"github.com/atmx/hyperdrive-engine/internal/model"
	"github.com/atmx/hyperdrive-engine/internal/wallet"
)

// ErrInvalidScenario wraps scenario validation failures.
var ErrInvalidScenario = errors.New("agent: invalid scenario")

// Scenario is a YAML simulation script.
type Scenario struct {
	Market      config.MarketConfig   `yaml:"market"`
	Steps       int                   `yaml:"steps"`
	TickSeconds int64                 `yaml:"tick_seconds"`
	MaxExposure fixedpoint.FixedPoint `yaml:"max_exposure"`
	Provider    string                `yaml:"provider"`
	Agents      []AgentSpec           `yaml:"agents"`
}

// AgentSpec describes one scripted agent.
type AgentSpec struct {
	Name        string                `yaml:"name"`
	Address     string                `yaml:"address"`
	Budget      fixedpoint.FixedPoint `yaml:"budget"`
	Policy      string                `yaml:"policy"`
	Amount      fixedpoint.FixedPoint `yaml:"amount"`
	HoldSeconds int64                 `yaml:"hold_seconds"`
}

// LoadScenario reads a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read scenario")
	}
	return ParseScenario(data)
}

// ParseScenario decodes data over the default market and a one-day tick.
func ParseScenario(data []byte) (*Scenario, error) {
	sc := Scenario{
		Market:      config.DefaultMarket(),
		TickSeconds: model.SecondsPerDay,
	}
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, errors.Wrap(err, "decode scenario")
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks the scenario and its market section.
func (s *Scenario) Validate() error {
	if err := s.Market.Validate(); err != nil {
		return err
	}
	if s.Steps < 0 || s.TickSeconds < 0 {
		return errors.Wrapf(ErrInvalidScenario, "steps=%d tick_seconds=%d", s.Steps, s.TickSeconds)
	}
	if s.Provider != "" && !common.IsHexAddress(s.Provider) {
		return errors.Wrapf(ErrInvalidScenario, "provider %q is not an address", s.Provider)
	}
	seen := make(map[string]bool, len(s.Agents))
	for _, a := range s.Agents {
		if a.Name == "" || seen[a.Name] {
			return errors.Wrapf(ErrInvalidScenario, "agent name %q is empty or repeated", a.Name)
		}
		seen[a.Name] = true
		if a.Address != "" && !common.IsHexAddress(a.Address) {
			return errors.Wrapf(ErrInvalidScenario, "agent %s address %q", a.Name, a.Address)
		}
		if !a.Budget.IsFinite() || !a.Amount.IsFinite() {
			return errors.Wrapf(ErrInvalidScenario, "agent %s has a non-finite amount", a.Name)
		}
		if a.Budget.IsNegative() || a.Amount.IsNegative() || a.HoldSeconds < 0 {
			return errors.Wrapf(ErrInvalidScenario, "agent %s has a negative parameter", a.Name)
		}
	}
	return nil
}

// addressFor returns the configured address or one derived from the name.
func (a AgentSpec) addressFor() common.Address {
	if a.Address != "" {
		return common.HexToAddress(a.Address)
	}
	return common.BytesToAddress([]byte(a.Name))
}

// BuildAgents instantiates the scripted agents in file order.
func (s *Scenario) BuildAgents() ([]*Agent, error) {
	out := make([]*Agent, 0, len(s.Agents))
	for _, as := range s.Agents {
		p, err := NewPolicy(as.Policy, as.Amount, as.HoldSeconds)
		if err != nil {
			return nil, errors.Wrapf(err, "agent %s", as.Name)
		}
		out = append(out, New(as.Name, as.addressFor(), as.Budget, p))
	}
	return out, nil
}

// Simulation runs a scenario against one market.
type Simulation struct {
	Scenario *Scenario
	Market   *market.Market
	Runner   *Runner
	Provider wallet.Wallet

	log *zap.Logger
}

// Report summarises a finished simulation.
type Report struct {
	Steps     int                      `json:"steps"`
	Applied   int                      `json:"applied"`
	Skipped   int                      `json:"skipped"`
	Rejected  int                      `json:"rejected"`
	Clock     int64                    `json:"clock"`
	State     model.MarketState        `json:"state"`
	SpotPrice *fixedpoint.FixedPoint   `json:"spot_price,omitempty"`
	Rate      *fixedpoint.FixedPoint   `json:"rate,omitempty"`
	Wallets   map[string]wallet.Wallet `json:"wallets"`
}

// NewSimulation builds the market, seeds it with the scenario's target
// liquidity when that is positive, and wires the agents to a runner.
func NewSimulation(sc *Scenario, rec Recorder, log *zap.Logger, opts ...market.Option) (*Simulation, error) {
	if log == nil {
		log = zap.NewNop()
	}
	m, err := sc.Market.NewMarket(append([]market.Option{market.WithLogger(log)}, opts...)...)
	if err != nil {
		return nil, err
	}
	provider := common.BytesToAddress([]byte("provider"))
	if sc.Provider != "" {
		provider = common.HexToAddress(sc.Provider)
	}
	var seeded wallet.Wallet
	if sc.Market.TargetLiquidity.IsPositive() {
		seeded, err = m.Bootstrap(provider, sc.Market.TargetLiquidity, sc.Market.TargetAPR)
		if err != nil {
			return nil, err
		}
	}
	agents, err := sc.BuildAgents()
	if err != nil {
		return nil, err
	}
	lim := limits.NewPositionLimiter(sc.MaxExposure)
	return &Simulation{
		Scenario: sc,
		Market:   m,
		Runner:   NewRunner(m, agents, lim, rec, log),
		Provider: seeded,
		log:      log,
	}, nil
}

// Run executes every step: accrue vault interest, advance the clock, then
// let the agents trade.
func (s *Simulation) Run(ctx context.Context) (Report, error) {
	dt := fixedpoint.New(s.Scenario.TickSeconds).Div(fixedpoint.New(model.DaysPerYear * model.SecondsPerDay))
	apr := s.Scenario.Market.VaultAPR

	var rep Report
	for i := 0; i < s.Scenario.Steps; i++ {
		if err := s.Market.Accrue(apr, dt, s.Scenario.Market.Compound); err != nil {
			return rep, errors.Wrapf(err, "step %d", i)
		}
		if err := s.Market.Tick(s.Scenario.TickSeconds); err != nil {
			return rep, errors.Wrapf(err, "step %d", i)
		}
		sr, err := s.Runner.Step(ctx)
		rep.Applied += sr.Applied
		rep.Skipped += sr.Skipped
		rep.Rejected += sr.Rejected
		if err != nil {
			return rep, errors.Wrapf(err, "step %d", i)
		}
		rep.Steps++
	}

	rep.Clock = s.Market.Clock()
	rep.State = s.Market.State()
	if p, ok := s.Market.SpotPrice(); ok {
		rep.SpotPrice = &p
	}
	if r, ok := s.Market.Rate(); ok {
		rep.Rate = &r
	}
	rep.Wallets = make(map[string]wallet.Wallet, len(s.Runner.Agents()))
	for _, a := range s.Runner.Agents() {
		rep.Wallets[a.Name] = *a.Wallet.Clone()
	}
	s.log.Info("simulation finished",
		zap.Int("steps", rep.Steps),
		zap.Int("applied", rep.Applied),
		zap.Int("skipped", rep.Skipped),
		zap.Int("rejected", rep.Rejected),
	)
	return rep, nil
}
