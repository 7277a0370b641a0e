package pricing

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/atmx/hyperdrive-engine/internal/fixedpoint"
	"github.com/atmx/hyperdrive-engine/internal/model"
)

// maxSolveSteps bounds the bisection in maxLong. Each step halves the
// bracket; 512 steps cover the whole int256 range.
const maxSolveSteps = 512

var ulp = fixedpoint.FromRaw(big.NewInt(1))

// invariant holds the parameters of one curve evaluation.
type invariant struct {
	c, u   fixedpoint.FixedPoint
	cOverU fixedpoint.FixedPoint
	a      fixedpoint.FixedPoint // 1 - τ
	invA   fixedpoint.FixedPoint // 1 / (1 - τ)
	// offset is added to y in the bond term. YieldSpace fixes it at the
	// pre-trade total reserves c·z + y, so the bond term is 2y + c·z at the
	// quoted state and the curve trades at the quoted spot price. It is zero
	// for Hyperdrive.
	offset fixedpoint.FixedPoint
}

// newInvariant builds the curve through the reserves in s.
func newInvariant(s model.MarketState, tau fixedpoint.FixedPoint, yieldSpace bool) (invariant, error) {
	if !s.InitSharePrice.IsPositive() {
		return invariant{}, errors.Wrap(model.ErrDivisionByZero, "init share price")
	}
	a := fixedpoint.One.Sub(tau)
	if !a.IsPositive() {
		return invariant{}, errors.Wrapf(model.ErrPreconditionViolation, "stretched time %s leaves no curve exponent", tau)
	}
	offset := fixedpoint.Zero
	if yieldSpace {
		offset = s.SharePrice.Mul(s.ShareReserves).Add(s.BondReserves)
	}
	return invariant{
		c:      s.SharePrice,
		u:      s.InitSharePrice,
		cOverU: s.SharePrice.Div(s.InitSharePrice),
		a:      a,
		invA:   fixedpoint.One.Div(a),
		offset: offset,
	}, nil
}

// bondTerm returns y plus the fixed offset.
func (iv invariant) bondTerm(y fixedpoint.FixedPoint) fixedpoint.FixedPoint {
	return y.Add(iv.offset)
}

// shareTerm returns (c/u)·(u·z)^a.
func (iv invariant) shareTerm(z fixedpoint.FixedPoint) fixedpoint.FixedPoint {
	return iv.cOverU.Mul(iv.u.Mul(z).Pow(iv.a))
}

// k evaluates the invariant.
func (iv invariant) k(z, y fixedpoint.FixedPoint) fixedpoint.FixedPoint {
	return iv.shareTerm(z).Add(iv.bondTerm(y).Pow(iv.a))
}

// bondsGivenShares solves the invariant for y at share reserves z.
func (iv invariant) bondsGivenShares(k, z fixedpoint.FixedPoint) (fixedpoint.FixedPoint, error) {
	rem := k.Sub(iv.shareTerm(z))
	if !rem.IsPositive() {
		return fixedpoint.Zero, errors.Wrapf(model.ErrInsufficientReserves, "no bond reserves satisfy the invariant at shares=%s", z)
	}
	return rem.Pow(iv.invA).Sub(iv.offset), nil
}

// sharesGivenBonds solves the invariant for z at bond reserves y. The
// result is rounded up, which never pays out more than the curve allows.
func (iv invariant) sharesGivenBonds(k, y fixedpoint.FixedPoint) (fixedpoint.FixedPoint, error) {
	bt := iv.bondTerm(y)
	if bt.IsNegative() {
		return fixedpoint.Zero, errors.Wrapf(model.ErrInsufficientReserves, "bond reserves %s below the curve", y)
	}
	rem := k.Sub(bt.Pow(iv.a))
	if !rem.IsPositive() {
		return fixedpoint.Zero, errors.Wrapf(model.ErrInsufficientReserves, "no share reserves satisfy the invariant at bonds=%s", y)
	}
	return rem.Div(iv.cOverU).Pow(iv.invA).DivUp(iv.u), nil
}

// bisect returns the smallest x in (lo, hi] for which ok holds, to one ulp.
// ok must be monotone: false at lo, true at hi.
func bisect(lo, hi fixedpoint.FixedPoint, ok func(fixedpoint.FixedPoint) bool) (fixedpoint.FixedPoint, error) {
	for i := 0; hi.Sub(lo).GreaterThan(ulp); i++ {
		if i >= maxSolveSteps {
			return fixedpoint.Zero, errors.Wrap(model.ErrNonFiniteValue, "bisection did not converge")
		}
		mid := lo.Add(hi.Sub(lo).Div(fixedpoint.Two))
		if ok(mid) {
			hi = mid
		} else {
			lo = mid
		}
	}
	return hi, nil
}

// spotPrice returns (u·z / Y)^τ.
func (iv invariant) spotPrice(z, y, tau fixedpoint.FixedPoint) (fixedpoint.FixedPoint, error) {
	bt := iv.bondTerm(y)
	if !bt.IsPositive() {
		return fixedpoint.Zero, errors.Wrap(model.ErrDivisionByZero, "bond reserves")
	}
	return iv.u.Mul(z).Div(bt).Pow(tau), nil
}

// curveOutGivenIn returns the amount leaving the pool, without fees, for
// amount of unit entering it. Base amounts are converted to shares at c.
func (iv invariant) curveOutGivenIn(z, y fixedpoint.FixedPoint, unit model.TokenType, amount fixedpoint.FixedPoint) (fixedpoint.FixedPoint, error) {
	k := iv.k(z, y)
	switch unit {
	case model.TokenBase:
		y2, err := iv.bondsGivenShares(k, z.Add(amount.Div(iv.c)))
		if err != nil {
			return fixedpoint.Zero, err
		}
		return y.Sub(y2), nil
	case model.TokenPT:
		z2, err := iv.sharesGivenBonds(k, y.Add(amount))
		if err != nil {
			return fixedpoint.Zero, err
		}
		return iv.c.Mul(z.Sub(z2)), nil
	}
	return fixedpoint.Zero, errors.Wrapf(model.ErrPreconditionViolation, "unknown token unit %q", unit)
}

// curveInGivenOut returns the amount entering the pool, without fees, for
// amount of unit leaving it.
func (iv invariant) curveInGivenOut(z, y fixedpoint.FixedPoint, unit model.TokenType, amount fixedpoint.FixedPoint) (fixedpoint.FixedPoint, error) {
	k := iv.k(z, y)
	switch unit {
	case model.TokenBase:
		z2 := z.Sub(amount.Div(iv.c))
		if !z2.IsPositive() {
			return fixedpoint.Zero, errors.Wrapf(model.ErrInsufficientReserves, "base out %s exceeds share reserves", amount)
		}
		y2, err := iv.bondsGivenShares(k, z2)
		if err != nil {
			return fixedpoint.Zero, err
		}
		return y2.Sub(y), nil
	case model.TokenPT:
		y2 := y.Sub(amount)
		if y2.IsNegative() {
			return fixedpoint.Zero, errors.Wrapf(model.ErrInsufficientReserves, "bonds out %s exceed bond reserves %s", amount, y)
		}
		z2, err := iv.sharesGivenBonds(k, y2)
		if err != nil {
			return fixedpoint.Zero, err
		}
		return iv.c.Mul(z2.Sub(z)), nil
	}
	return fixedpoint.Zero, errors.Wrapf(model.ErrPreconditionViolation, "unknown token unit %q", unit)
}

// maxLong returns the largest base amount that keeps bond reserves at or
// above floor.
func (iv invariant) maxLong(z, y, floor fixedpoint.FixedPoint) (fixedpoint.FixedPoint, error) {
	if y.LessThanOrEqual(floor) {
		return fixedpoint.Zero, nil
	}
	k := iv.k(z, y)
	// Shares at which the bond side of the invariant is exhausted.
	zMax := k.Div(iv.cOverU).Pow(iv.invA).Div(iv.u)
	if !zMax.GreaterThan(z) {
		return fixedpoint.Zero, nil
	}
	above := func(z2 fixedpoint.FixedPoint) bool {
		y2, err := iv.bondsGivenShares(k, z2)
		return err == nil && y2.GreaterThanOrEqual(floor)
	}
	// Find the largest z2 that stays above the floor by bisecting on the
	// complement.
	first, err := bisect(z, zMax, func(z2 fixedpoint.FixedPoint) bool { return !above(z2) })
	if err != nil {
		return fixedpoint.Zero, err
	}
	best := first.Sub(ulp)
	if best.LessThan(z) {
		return fixedpoint.Zero, nil
	}
	return iv.c.Mul(best.Sub(z)), nil
}
