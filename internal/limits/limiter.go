// Package limits implements the wallet-side checks a caller runs before
// submitting a trade to a Market.
//
// The market trusts its caller on three points: a close never exceeds the
// cohort being closed, a withdrawal never exceeds the LP balance, and an
// open never spends more base than the wallet holds. PositionLimiter checks
// all three and optionally caps the aggregate bonds a wallet may hold open
// across every cohort.
package limits

import (
	"github.com/pkg/errors"

	"github.com/atmx/hyperdrive-engine/internal/fixedpoint"
	"github.com/atmx/hyperdrive-engine/internal/model"
	"github.com/atmx/hyperdrive-engine/internal/wallet"
)

var (
	// ErrCohortBalanceExceeded is returned when a close is larger than the
	// cohort it targets, or the cohort does not exist.
	ErrCohortBalanceExceeded = errors.New("limits: close amount exceeds cohort balance")

	// ErrLPBalanceExceeded is returned when a withdrawal is larger than the
	// wallet's LP tokens.
	ErrLPBalanceExceeded = errors.New("limits: lp amount exceeds balance")

	// ErrBaseBalanceExceeded is returned when an open or deposit would spend
	// more base than the wallet holds.
	ErrBaseBalanceExceeded = errors.New("limits: trade amount exceeds base balance")

	// ErrExposureLimitExceeded is returned when an open would push the
	// wallet's total open bonds beyond MaxExposure.
	ErrExposureLimitExceeded = errors.New("limits: open exposure limit exceeded")
)

// PositionLimiter enforces wallet sufficiency and an exposure cap.
type PositionLimiter struct {
	// MaxExposure caps the sum of long and short balances across all
	// cohorts, counting the new trade amount. Zero disables the cap.
	MaxExposure fixedpoint.FixedPoint
}

// NewPositionLimiter returns a limiter with the given exposure cap.
func NewPositionLimiter(maxExposure fixedpoint.FixedPoint) *PositionLimiter {
	return &PositionLimiter{MaxExposure: maxExposure}
}

// CheckAction validates a against w.
func (l *PositionLimiter) CheckAction(a model.TradeAction, w *wallet.Wallet) error {
	switch a.Type {
	case model.OpenLong, model.OpenShort:
		if err := CheckBase(w.Base, a.Amount); err != nil {
			return err
		}
		return l.checkExposure(a.Amount, w)
	case model.AddLiquidity:
		return CheckBase(w.Base, a.Amount)
	case model.CloseLong:
		return CheckClose(w.Longs[a.MintTime].Balance, a.Amount)
	case model.CloseShort:
		return CheckClose(w.Shorts[a.MintTime].Balance, a.Amount)
	case model.RemoveLiquidity:
		return CheckLP(w.LPTokens, a.Amount)
	}
	return errors.Wrapf(model.ErrInvalidAction, "%q", a.Type)
}

func (l *PositionLimiter) checkExposure(amount fixedpoint.FixedPoint, w *wallet.Wallet) error {
	if !l.MaxExposure.IsPositive() {
		return nil
	}
	total := amount
	for _, lg := range w.Longs {
		total = total.Add(lg.Balance)
	}
	for _, s := range w.Shorts {
		total = total.Add(s.Balance)
	}
	if total.GreaterThan(l.MaxExposure) {
		return errors.Wrapf(ErrExposureLimitExceeded, "exposure %s over cap %s", total, l.MaxExposure)
	}
	return nil
}

// CheckClose fails unless 0 < amount <= balance.
func CheckClose(balance, amount fixedpoint.FixedPoint) error {
	if !balance.IsPositive() || amount.GreaterThan(balance) {
		return errors.Wrapf(ErrCohortBalanceExceeded, "close %s of %s", amount, balance)
	}
	return nil
}

// CheckLP fails when amount exceeds the LP balance.
func CheckLP(balance, amount fixedpoint.FixedPoint) error {
	if amount.GreaterThan(balance) {
		return errors.Wrapf(ErrLPBalanceExceeded, "remove %s of %s", amount, balance)
	}
	return nil
}

// CheckBase fails when amount exceeds the base balance.
func CheckBase(balance, amount fixedpoint.FixedPoint) error {
	if amount.GreaterThan(balance) {
		return errors.Wrapf(ErrBaseBalanceExceeded, "spend %s of %s", amount, balance)
	}
	return nil
}
