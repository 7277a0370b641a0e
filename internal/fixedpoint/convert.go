package fixedpoint

import (
	"encoding/json"
	"math"
	"math/big"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// ErrInvalidFormat is returned when a string cannot be parsed.
var ErrInvalidFormat = errors.New("fixedpoint: invalid number format")

// FromDecimal converts d, truncating digits beyond the 18th decimal.
func FromDecimal(d decimal.Decimal) FixedPoint {
	return fromRaw(new(big.Int).Set(d.Shift(Decimals).BigInt()))
}

// FromFloat64 converts f. NaN and infinities map to their FixedPoint
// counterparts. Intended for tests and configuration, not for money math.
func FromFloat64(f float64) FixedPoint {
	switch {
	case math.IsNaN(f):
		return NaN()
	case math.IsInf(f, 1):
		return Inf(1)
	case math.IsInf(f, -1):
		return Inf(-1)
	}
	return FromDecimal(decimal.NewFromFloat(f))
}

// Parse reads a decimal string such as "1.5", "-0.000000000000000001",
// "NaN", "Inf" or "-Inf".
func Parse(s string) (FixedPoint, error) {
	switch strings.TrimSpace(s) {
	case "NaN", "nan":
		return NaN(), nil
	case "Inf", "+Inf", "inf", "+inf":
		return Inf(1), nil
	case "-Inf", "-inf":
		return Inf(-1), nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return NaN(), errors.Wrapf(ErrInvalidFormat, "%q", s)
	}
	return FromDecimal(d), nil
}

// MustParse is Parse for constants; it panics on malformed input.
func MustParse(s string) FixedPoint {
	x, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return x
}

// Decimal returns x as a shopspring decimal. Non-finite values return
// zero and false.
func (x FixedPoint) Decimal() (decimal.Decimal, bool) {
	if x.k != finite {
		return decimal.Zero, false
	}
	return decimal.NewFromBigInt(new(big.Int).Set(x.raw()), -Decimals), true
}

// Float64 returns the nearest float64.
func (x FixedPoint) Float64() float64 {
	switch x.k {
	case nan:
		return math.NaN()
	case posInf:
		return math.Inf(1)
	case negInf:
		return math.Inf(-1)
	}
	d, _ := x.Decimal()
	return d.InexactFloat64()
}

// String formats x without trailing zeros.
func (x FixedPoint) String() string {
	switch x.k {
	case nan:
		return "NaN"
	case posInf:
		return "Inf"
	case negInf:
		return "-Inf"
	}
	d, _ := x.Decimal()
	return d.String()
}

// MarshalJSON encodes x as a JSON string to keep all 18 decimals.
func (x FixedPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(x.String())
}

// UnmarshalJSON accepts a JSON string or a bare JSON number.
func (x *FixedPoint) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*x = Zero
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(data, &s); err != nil {
			return errors.Wrap(err, "fixedpoint: decode string")
		}
	}
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*x = v
	return nil
}

// MarshalText implements encoding.TextMarshaler so FixedPoint works as a
// TOML and YAML scalar.
func (x FixedPoint) MarshalText() ([]byte, error) {
	return []byte(x.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (x *FixedPoint) UnmarshalText(text []byte) error {
	v, err := Parse(string(text))
	if err != nil {
		return err
	}
	*x = v
	return nil
}

// UnmarshalTOML accepts a TOML string, integer or float. It takes
// precedence over UnmarshalText, which the toml decoder would feed a float
// rounded to six decimals. Floats keep their shortest decimal form; quote
// the value to carry all 18 decimals.
func (x *FixedPoint) UnmarshalTOML(v any) error {
	switch t := v.(type) {
	case string:
		return x.UnmarshalText([]byte(t))
	case int64:
		*x = New(t)
	case float64:
		*x = FromFloat64(t)
	default:
		return errors.Wrapf(ErrInvalidFormat, "toml value of type %T", v)
	}
	return nil
}
