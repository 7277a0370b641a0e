package fixedpoint

import "math/big"

// Transcendental functions work on integers scaled by 10^36 so that the
// final truncation to 18 decimals dominates the error.

var (
	scale36 = new(big.Int).Exp(big.NewInt(10), big.NewInt(36), nil)
	twoE36  = new(big.Int).Lsh(scale36, 1)

	// ln(2) scaled by 10^36.
	ln2E36, _ = new(big.Int).SetString("693147180559945309417232121458176568", 10)

	// exp(x) overflows the int256 bound for x above ~135.3 and truncates to
	// zero below ~-41.4.
	expMax = New(136)
	expMin = New(-42)
)

// ln36 returns ln(x) for x > 0, both scaled by 10^36.
//
// x = m * 2^k with m in [1, 2); ln(m) = 2*atanh((m-1)/(m+1)).
func ln36(x *big.Int) *big.Int {
	k := x.BitLen() - scale36.BitLen()
	m := new(big.Int)
	if k >= 0 {
		m.Rsh(x, uint(k))
	} else {
		m.Lsh(x, uint(-k))
	}
	for m.Cmp(scale36) < 0 {
		m.Lsh(m, 1)
		k--
	}
	for m.Cmp(twoE36) >= 0 {
		m.Rsh(m, 1)
		k++
	}

	num := new(big.Int).Sub(m, scale36)
	den := new(big.Int).Add(m, scale36)
	s := num.Mul(num, scale36)
	s.Quo(s, den)

	s2 := new(big.Int).Mul(s, s)
	s2.Quo(s2, scale36)

	sum := new(big.Int).Set(s)
	term := new(big.Int).Set(s)
	for n := int64(3); ; n += 2 {
		term.Mul(term, s2)
		term.Quo(term, scale36)
		if term.Sign() == 0 {
			break
		}
		sum.Add(sum, new(big.Int).Quo(term, big.NewInt(n)))
	}
	sum.Lsh(sum, 1)

	return sum.Add(sum, new(big.Int).Mul(big.NewInt(int64(k)), ln2E36))
}

// exp36 returns exp(x) scaled by 10^36 for x scaled by 10^36.
//
// x = k*ln2 + r with r in [0, ln2); exp(x) = 2^k * exp(r), exp(r) by Taylor.
func exp36(x *big.Int) *big.Int {
	k := new(big.Int)
	r := new(big.Int)
	k.DivMod(x, ln2E36, r)

	sum := new(big.Int).Set(scale36)
	term := new(big.Int).Set(scale36)
	for n := int64(1); ; n++ {
		term.Mul(term, r)
		term.Quo(term, new(big.Int).Mul(scale36, big.NewInt(n)))
		if term.Sign() == 0 {
			break
		}
		sum.Add(sum, term)
	}

	shift := k.Int64()
	if shift >= 0 {
		return sum.Lsh(sum, uint(shift))
	}
	return sum.Rsh(sum, uint(-shift))
}

// to36 widens an 18-decimal raw value to 36 decimals.
func to36(v *big.Int) *big.Int { return new(big.Int).Mul(v, scale) }

// from36 truncates a 36-decimal value to an 18-decimal FixedPoint.
func from36(v *big.Int) FixedPoint { return fromRaw(new(big.Int).Quo(v, scale)) }

// Ln returns the natural logarithm of x. Ln(0) is -Inf; negative input is
// NaN.
func (x FixedPoint) Ln() FixedPoint {
	switch {
	case x.k == nan || x.k == negInf:
		return NaN()
	case x.k == posInf:
		return x
	case x.raw().Sign() < 0:
		return NaN()
	case x.raw().Sign() == 0:
		return Inf(-1)
	}
	return from36(ln36(to36(x.raw())))
}

// Exp returns e^x.
func (x FixedPoint) Exp() FixedPoint {
	switch {
	case x.k == nan:
		return x
	case x.k == posInf:
		return x
	case x.k == negInf:
		return Zero
	case x.GreaterThan(expMax):
		return Inf(1)
	case x.LessThan(expMin):
		return Zero
	}
	return from36(exp36(to36(x.raw())))
}

// Pow returns x^y for x >= 0, computed as exp(y*ln(x)) at 36 decimals.
// 0^0 and x^0 are 1; 0^y is 0 for y > 0 and +Inf for y < 0.
func (x FixedPoint) Pow(y FixedPoint) FixedPoint {
	if x.k != finite || y.k != finite {
		if x.k == nan || y.k == nan {
			return NaN()
		}
		if y.IsZero() {
			return One
		}
		return x.Ln().Mul(y).Exp()
	}
	switch {
	case x.raw().Sign() < 0:
		return NaN()
	case y.raw().Sign() == 0:
		return One
	case x.raw().Sign() == 0:
		if y.raw().Sign() > 0 {
			return Zero
		}
		return Inf(1)
	case x.raw().Cmp(scale) == 0:
		return One
	case y.raw().Cmp(scale) == 0:
		return x
	}

	// y * ln(x) at 36 decimals.
	e := ln36(to36(x.raw()))
	e.Mul(e, y.raw())
	e.Quo(e, scale)

	if e.Cmp(to36(expMax.raw())) > 0 {
		return Inf(1)
	}
	if e.Cmp(to36(expMin.raw())) < 0 {
		return Zero
	}
	return from36(exp36(e))
}

// Sqrt returns the square root of x, truncated.
func (x FixedPoint) Sqrt() FixedPoint {
	switch {
	case x.k == nan || x.k == negInf:
		return NaN()
	case x.k == posInf:
		return x
	case x.raw().Sign() < 0:
		return NaN()
	}
	// sqrt(v / 1e18) * 1e18 = sqrt(v * 1e18)
	return fromRaw(new(big.Int).Sqrt(new(big.Int).Mul(x.raw(), scale)))
}
