// Package agent drives a Market with scripted trading policies.
package agent

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/atmx/hyperdrive-engine/internal/fixedpoint"
	"github.com/atmx/hyperdrive-engine/internal/market"
	"github.com/atmx/hyperdrive-engine/internal/model"
	"github.com/atmx/hyperdrive-engine/internal/wallet"
)

// MarketView is the read-only picture of a market a policy decides on.
// Derived values are NaN with the matching ok flag false on an empty pool.
type MarketView struct {
	State     model.MarketState
	Clock     int64
	SpotPrice fixedpoint.FixedPoint
	Rate      fixedpoint.FixedPoint
	MaxLong   fixedpoint.FixedPoint
	PriceOK   bool
	MaxLongOK bool
}

// ViewOf captures m.
func ViewOf(m *market.Market) MarketView {
	p, ok := m.SpotPrice()
	r, _ := m.Rate()
	ml, mlOK := m.MaxLong()
	return MarketView{
		State:     m.State(),
		Clock:     m.Clock(),
		SpotPrice: p,
		Rate:      r,
		MaxLong:   ml,
		PriceOK:   ok,
		MaxLongOK: mlOK,
	}
}

// Policy decides what an agent trades. Action must not mutate w; it may be
// called concurrently with other agents' policies but never with itself.
type Policy interface {
	Action(ctx context.Context, view MarketView, w *wallet.Wallet) ([]model.TradeAction, error)
}

// Agent pairs a wallet with the policy that trades it.
type Agent struct {
	Name   string
	Wallet *wallet.Wallet
	Policy Policy
}

// New returns an agent at addr funded with budget base.
func New(name string, addr common.Address, budget fixedpoint.FixedPoint, p Policy) *Agent {
	w := wallet.New(addr)
	w.Base = budget
	return &Agent{Name: name, Wallet: w, Policy: p}
}

// Apply merges a trade's wallet delta into the agent's wallet.
func (a *Agent) Apply(delta wallet.Wallet) error {
	return a.Wallet.Merge(delta)
}
