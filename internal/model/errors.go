package model

import "github.com/pkg/errors"

// Error taxonomy shared by pricing, market and wallet code. Call sites wrap
// these with context; callers match with errors.Is.
var (
	// ErrInvalidAction is returned when an action type is not permitted for
	// the active pricing model.
	ErrInvalidAction = errors.New("hyperdrive: action not permitted for pricing model")

	// ErrUnknownModel is returned for a pricing model name outside the
	// supported set.
	ErrUnknownModel = errors.New("hyperdrive: unknown pricing model")

	// ErrDivisionByZero is returned when curve math meets a zero denominator
	// (empty reserves, zero init share price, zero target liquidity).
	ErrDivisionByZero = errors.New("hyperdrive: division by zero")

	// ErrNonFiniteValue is returned when a NaN or infinity shows up in a
	// result or in a delta about to be applied. State is left untouched.
	ErrNonFiniteValue = errors.New("hyperdrive: non-finite value")

	// ErrPreconditionViolation is returned when trade inputs fail validation
	// before any curve computation runs.
	ErrPreconditionViolation = errors.New("hyperdrive: precondition violated")

	// ErrInsufficientReserves is returned when a trade would drive reserves
	// to zero or below.
	ErrInsufficientReserves = errors.New("hyperdrive: insufficient reserves")

	// ErrEmptyMarket is returned by derived reads on a market without share
	// reserves.
	ErrEmptyMarket = errors.New("hyperdrive: market has no share reserves")

	// ErrNegativeBalance is returned when a wallet merge would leave a
	// balance below zero.
	ErrNegativeBalance = errors.New("hyperdrive: negative balance")
)
