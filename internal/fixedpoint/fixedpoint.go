// Package fixedpoint implements signed 18-decimal fixed point arithmetic
// for the AMM core.
//
// A FixedPoint is a *big.Int scaled by 10^18 and bounded to the int256
// range. Results that leave the range become +Inf or -Inf, and undefined
// results (0/0, Inf-Inf, ln of a negative number) become NaN. Non-finite
// values propagate through every operation, so one IsFinite check on a
// final result catches a bad intermediate.
//
// Rounding is explicit: Mul and Div truncate toward zero, MulUp and DivUp
// round away from zero. Transcendental functions (Ln, Exp, Pow) run at 36
// decimals internally and truncate once, which makes them bit-reproducible
// on every platform.
//
// The zero value is a valid finite zero.
package fixedpoint

import (
	"math"
	"math/big"
)

// Decimals is the number of fractional decimal digits.
const Decimals = 18

type kind uint8

const (
	finite kind = iota
	nan
	posInf
	negInf
)

var (
	scale   = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)
	maxInt  = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 255), big.NewInt(1))
	minInt  = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 255))
	bigZero = new(big.Int)
	bigOne  = big.NewInt(1)
)

// FixedPoint is an immutable 18-decimal fixed point number.
type FixedPoint struct {
	v *big.Int
	k kind
}

// Common constants.
var (
	Zero = FixedPoint{}
	One  = FixedPoint{v: new(big.Int).Set(scale)}
	Two  = New(2)
)

// New returns the integer n as a FixedPoint.
func New(n int64) FixedPoint {
	return fromRaw(new(big.Int).Mul(big.NewInt(n), scale))
}

// FromRaw returns the FixedPoint whose scaled representation is raw.
// A copy of raw is taken.
func FromRaw(raw *big.Int) FixedPoint {
	return fromRaw(new(big.Int).Set(raw))
}

// NaN returns the not-a-number value.
func NaN() FixedPoint { return FixedPoint{k: nan} }

// Inf returns +Inf when sign >= 0 and -Inf otherwise.
func Inf(sign int) FixedPoint {
	if sign >= 0 {
		return FixedPoint{k: posInf}
	}
	return FixedPoint{k: negInf}
}

// fromRaw takes ownership of v and applies the int256 bound.
func fromRaw(v *big.Int) FixedPoint {
	if v.Cmp(maxInt) > 0 {
		return Inf(1)
	}
	if v.Cmp(minInt) < 0 {
		return Inf(-1)
	}
	return FixedPoint{v: v}
}

func (x FixedPoint) raw() *big.Int {
	if x.v == nil {
		return bigZero
	}
	return x.v
}

// Raw returns a copy of the scaled integer representation. It is nil for
// non-finite values.
func (x FixedPoint) Raw() *big.Int {
	if x.k != finite {
		return nil
	}
	return new(big.Int).Set(x.raw())
}

// IsFinite reports whether x is neither NaN nor infinite.
func (x FixedPoint) IsFinite() bool { return x.k == finite }

// IsNaN reports whether x is NaN.
func (x FixedPoint) IsNaN() bool { return x.k == nan }

// IsInf reports whether x is +Inf (sign > 0), -Inf (sign < 0) or either
// (sign == 0).
func (x FixedPoint) IsInf(sign int) bool {
	switch {
	case sign > 0:
		return x.k == posInf
	case sign < 0:
		return x.k == negInf
	default:
		return x.k == posInf || x.k == negInf
	}
}

// IsZero reports whether x is a finite zero.
func (x FixedPoint) IsZero() bool { return x.k == finite && x.raw().Sign() == 0 }

// Sign returns -1, 0 or +1. NaN reports 0.
func (x FixedPoint) Sign() int {
	switch x.k {
	case posInf:
		return 1
	case negInf:
		return -1
	case nan:
		return 0
	}
	return x.raw().Sign()
}

// IsPositive reports whether x > 0.
func (x FixedPoint) IsPositive() bool { return x.Sign() > 0 }

// IsNegative reports whether x < 0.
func (x FixedPoint) IsNegative() bool { return x.Sign() < 0 }

// surrogate maps x to a float64 carrying only its class and sign. It
// resolves operations that involve a non-finite operand: any finite result
// of the surrogate arithmetic means the true result is zero.
func (x FixedPoint) surrogate() float64 {
	switch x.k {
	case nan:
		return math.NaN()
	case posInf:
		return math.Inf(1)
	case negInf:
		return math.Inf(-1)
	}
	return float64(x.raw().Sign())
}

func fromSurrogate(f float64) FixedPoint {
	switch {
	case math.IsNaN(f):
		return NaN()
	case math.IsInf(f, 1):
		return Inf(1)
	case math.IsInf(f, -1):
		return Inf(-1)
	}
	return Zero
}

// Add returns x + y.
func (x FixedPoint) Add(y FixedPoint) FixedPoint {
	if x.k != finite || y.k != finite {
		return fromSurrogate(x.surrogate() + y.surrogate())
	}
	return fromRaw(new(big.Int).Add(x.raw(), y.raw()))
}

// Sub returns x - y.
func (x FixedPoint) Sub(y FixedPoint) FixedPoint {
	return x.Add(y.Neg())
}

// Neg returns -x.
func (x FixedPoint) Neg() FixedPoint {
	switch x.k {
	case posInf:
		return Inf(-1)
	case negInf:
		return Inf(1)
	case nan:
		return x
	}
	return fromRaw(new(big.Int).Neg(x.raw()))
}

// Abs returns |x|.
func (x FixedPoint) Abs() FixedPoint {
	if x.Sign() < 0 {
		return x.Neg()
	}
	return x
}

// Mul returns x * y truncated toward zero.
func (x FixedPoint) Mul(y FixedPoint) FixedPoint {
	if x.k != finite || y.k != finite {
		return fromSurrogate(x.surrogate() * y.surrogate())
	}
	p := new(big.Int).Mul(x.raw(), y.raw())
	return fromRaw(p.Quo(p, scale))
}

// MulUp returns x * y rounded away from zero.
func (x FixedPoint) MulUp(y FixedPoint) FixedPoint {
	if x.k != finite || y.k != finite {
		return fromSurrogate(x.surrogate() * y.surrogate())
	}
	p := new(big.Int).Mul(x.raw(), y.raw())
	return fromRaw(quoAway(p, scale))
}

// Div returns x / y truncated toward zero. Division by zero yields NaN;
// callers that need a typed failure must check the divisor first.
func (x FixedPoint) Div(y FixedPoint) FixedPoint {
	if y.IsZero() {
		return NaN()
	}
	if x.k != finite || y.k != finite {
		return fromSurrogate(x.surrogate() / y.surrogate())
	}
	n := new(big.Int).Mul(x.raw(), scale)
	return fromRaw(n.Quo(n, y.raw()))
}

// DivUp returns x / y rounded away from zero.
func (x FixedPoint) DivUp(y FixedPoint) FixedPoint {
	if y.IsZero() {
		return NaN()
	}
	if x.k != finite || y.k != finite {
		return fromSurrogate(x.surrogate() / y.surrogate())
	}
	n := new(big.Int).Mul(x.raw(), scale)
	return fromRaw(quoAway(n, y.raw()))
}

// quoAway divides n by d rounding the magnitude up.
func quoAway(n, d *big.Int) *big.Int {
	q, r := new(big.Int).QuoRem(n, d, new(big.Int))
	if r.Sign() == 0 {
		return q
	}
	if (n.Sign() < 0) != (d.Sign() < 0) {
		return q.Sub(q, bigOne)
	}
	return q.Add(q, bigOne)
}

// Cmp compares x and y and returns -1, 0 or +1. Infinities order as
// expected. NaN compares equal to everything, so callers comparing values
// that may be NaN should use the boolean helpers, which report false.
func (x FixedPoint) Cmp(y FixedPoint) int {
	if x.k == nan || y.k == nan {
		return 0
	}
	if x.k != finite || y.k != finite {
		xs, ys := x.surrogate(), y.surrogate()
		switch {
		case xs < ys:
			return -1
		case xs > ys:
			return 1
		}
		return 0
	}
	return x.raw().Cmp(y.raw())
}

func ordered(x, y FixedPoint) bool { return x.k != nan && y.k != nan }

// Equal reports whether x == y. NaN is never equal to anything.
func (x FixedPoint) Equal(y FixedPoint) bool { return ordered(x, y) && x.Cmp(y) == 0 }

// LessThan reports whether x < y.
func (x FixedPoint) LessThan(y FixedPoint) bool { return ordered(x, y) && x.Cmp(y) < 0 }

// LessThanOrEqual reports whether x <= y.
func (x FixedPoint) LessThanOrEqual(y FixedPoint) bool { return ordered(x, y) && x.Cmp(y) <= 0 }

// GreaterThan reports whether x > y.
func (x FixedPoint) GreaterThan(y FixedPoint) bool { return ordered(x, y) && x.Cmp(y) > 0 }

// GreaterThanOrEqual reports whether x >= y.
func (x FixedPoint) GreaterThanOrEqual(y FixedPoint) bool { return ordered(x, y) && x.Cmp(y) >= 0 }

// Min returns the smaller of x and y, or NaN if either is NaN.
func Min(x, y FixedPoint) FixedPoint {
	if !ordered(x, y) {
		return NaN()
	}
	if y.LessThan(x) {
		return y
	}
	return x
}

// Max returns the larger of x and y, or NaN if either is NaN.
func Max(x, y FixedPoint) FixedPoint {
	if !ordered(x, y) {
		return NaN()
	}
	if y.GreaterThan(x) {
		return y
	}
	return x
}

// Round returns x rounded half away from zero to places fractional digits.
func (x FixedPoint) Round(places int) FixedPoint {
	if x.k != finite || places >= Decimals {
		return x
	}
	if places < 0 {
		places = 0
	}
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(Decimals-places)), nil)
	half := new(big.Int).Rsh(unit, 1)
	v := new(big.Int).Set(x.raw())
	if v.Sign() >= 0 {
		v.Add(v, half)
	} else {
		v.Sub(v, half)
	}
	v.Quo(v, unit)
	return fromRaw(v.Mul(v, unit))
}

// ApproxEqual reports whether x and y differ by at most tol relative to
// the larger magnitude (absolute when both are below one).
func ApproxEqual(x, y, tol FixedPoint) bool {
	if !x.IsFinite() || !y.IsFinite() {
		return x.Equal(y)
	}
	diff := x.Sub(y).Abs()
	ref := Max(Max(x.Abs(), y.Abs()), One)
	return diff.LessThanOrEqual(ref.MulUp(tol))
}
