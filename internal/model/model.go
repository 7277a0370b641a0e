// Package model defines the core domain types shared across the engine:
// reserve snapshots, deltas, trade actions and persisted records.
// All monetary values use fixedpoint.FixedPoint, never float64.
package model

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/atmx/hyperdrive-engine/internal/fixedpoint"
)

// DaysPerYear is the day count used for every year fraction.
const DaysPerYear = 365

// SecondsPerDay converts the market clock to calendar days.
const SecondsPerDay = 86_400

// TokenType tags a Quantity.
type TokenType string

const (
	TokenBase TokenType = "BASE"
	TokenPT   TokenType = "PT"
)

// Quantity is an amount tagged with its unit.
type Quantity struct {
	Amount fixedpoint.FixedPoint `json:"amount"`
	Unit   TokenType             `json:"unit"`
}

// Neg flips the sign of the amount and keeps the unit.
func (q Quantity) Neg() Quantity {
	return Quantity{Amount: q.Amount.Neg(), Unit: q.Unit}
}

// StretchedTime is a duration in days paired with the market's time
// stretch constant.
type StretchedTime struct {
	Days        fixedpoint.FixedPoint `json:"days"`
	TimeStretch fixedpoint.FixedPoint `json:"time_stretch"`
}

// NewStretchedTime builds a StretchedTime.
func NewStretchedTime(days, timeStretch fixedpoint.FixedPoint) StretchedTime {
	return StretchedTime{Days: days, TimeStretch: timeStretch}
}

// YearFraction returns days/365, the year count used for APR conversions.
func (s StretchedTime) YearFraction() fixedpoint.FixedPoint {
	return s.Days.Div(fixedpoint.New(DaysPerYear))
}

// Stretched returns days/365/time_stretch, the exponent used by the curve.
// It is NaN when the time stretch is zero.
func (s StretchedTime) Stretched() fixedpoint.FixedPoint {
	return s.YearFraction().Div(s.TimeStretch)
}

// WithDays returns a copy with a different day count.
func (s StretchedTime) WithDays(days fixedpoint.FixedPoint) StretchedTime {
	return StretchedTime{Days: days, TimeStretch: s.TimeStretch}
}

// ActionType is one of the six market actions.
type ActionType string

const (
	OpenLong        ActionType = "OPEN_LONG"
	CloseLong       ActionType = "CLOSE_LONG"
	OpenShort       ActionType = "OPEN_SHORT"
	CloseShort      ActionType = "CLOSE_SHORT"
	AddLiquidity    ActionType = "ADD_LIQUIDITY"
	RemoveLiquidity ActionType = "REMOVE_LIQUIDITY"
)

// ActionTypes lists every action in a fixed order.
var ActionTypes = []ActionType{OpenLong, CloseLong, OpenShort, CloseShort, AddLiquidity, RemoveLiquidity}

// ParseActionType accepts the canonical upper-case name or its lower-case
// spelling.
func ParseActionType(s string) (ActionType, error) {
	want := ActionType(strings.ToUpper(strings.TrimSpace(s)))
	for _, a := range ActionTypes {
		if a == want {
			return a, nil
		}
	}
	return "", errors.Wrapf(ErrInvalidAction, "unknown action %q", s)
}

// TradeAction is the inbound trade intent. MintTime is only read by the
// close actions.
type TradeAction struct {
	Type     ActionType            `json:"action_type"`
	Amount   fixedpoint.FixedPoint `json:"trade_amount"`
	Wallet   common.Address        `json:"wallet_address"`
	MintTime int64                 `json:"mint_time,omitempty"`
}

// MarketState is the reserve snapshot consumed by pricing models. It is
// owned by exactly one Market and only mutated through ApplyDelta.
type MarketState struct {
	ShareReserves     fixedpoint.FixedPoint `json:"share_reserves"`
	BondReserves      fixedpoint.FixedPoint `json:"bond_reserves"`
	LPReserves        fixedpoint.FixedPoint `json:"lp_reserves"`
	SharePrice        fixedpoint.FixedPoint `json:"share_price"`
	InitSharePrice    fixedpoint.FixedPoint `json:"init_share_price"`
	BaseBuffer        fixedpoint.FixedPoint `json:"base_buffer"`
	BondBuffer        fixedpoint.FixedPoint `json:"bond_buffer"`
	VaultAPR          fixedpoint.FixedPoint `json:"vault_apr"`
	LongsOutstanding  fixedpoint.FixedPoint `json:"longs_outstanding"`
	ShortsOutstanding fixedpoint.FixedPoint `json:"shorts_outstanding"`
	BaseFees          fixedpoint.FixedPoint `json:"base_fees"`
	BondFees          fixedpoint.FixedPoint `json:"bond_fees"`
}

// IsEmpty reports whether the pool has no share reserves.
func (s MarketState) IsEmpty() bool {
	return !s.ShareReserves.IsPositive()
}

// BaseReserves returns share_reserves * share_price.
func (s MarketState) BaseReserves() fixedpoint.FixedPoint {
	return s.ShareReserves.Mul(s.SharePrice)
}

// ApplyDelta adds d to the state. Base deltas are converted to shares at
// the current share price. Nothing is changed when an error is returned.
func (s *MarketState) ApplyDelta(d MarketDeltas) error {
	if name, ok := d.NonFinite(); ok {
		return errors.Wrapf(ErrNonFiniteValue, "delta field %s", name)
	}
	var dShares fixedpoint.FixedPoint
	if !d.DBase.IsZero() {
		if !s.SharePrice.IsPositive() {
			return errors.Wrap(ErrDivisionByZero, "apply delta: share price")
		}
		dShares = d.DBase.Div(s.SharePrice)
	}

	next := *s
	next.ShareReserves = s.ShareReserves.Add(dShares)
	next.BondReserves = s.BondReserves.Add(d.DBonds)
	next.LPReserves = s.LPReserves.Add(d.DLPReserves)
	next.BaseBuffer = s.BaseBuffer.Add(d.DBaseBuffer)
	next.BondBuffer = s.BondBuffer.Add(d.DBondBuffer)
	next.LongsOutstanding = s.LongsOutstanding.Add(d.DLongsOutstanding)
	next.ShortsOutstanding = s.ShortsOutstanding.Add(d.DShortsOutstanding)
	next.BaseFees = s.BaseFees.Add(d.DBaseFees)
	next.BondFees = s.BondFees.Add(d.DBondFees)

	if name, ok := next.NonFinite(); ok {
		return errors.Wrapf(ErrNonFiniteValue, "state field %s after delta", name)
	}
	*s = next
	return nil
}

// NonFinite returns the name of the first non-finite field.
func (s MarketState) NonFinite() (string, bool) {
	return firstNonFinite([]namedValue{
		{"share_reserves", s.ShareReserves},
		{"bond_reserves", s.BondReserves},
		{"lp_reserves", s.LPReserves},
		{"share_price", s.SharePrice},
		{"init_share_price", s.InitSharePrice},
		{"base_buffer", s.BaseBuffer},
		{"bond_buffer", s.BondBuffer},
		{"vault_apr", s.VaultAPR},
		{"longs_outstanding", s.LongsOutstanding},
		{"shorts_outstanding", s.ShortsOutstanding},
		{"base_fees", s.BaseFees},
		{"bond_fees", s.BondFees},
	})
}

// MarketDeltas is a transient change to MarketState produced by one trade.
type MarketDeltas struct {
	DBase              fixedpoint.FixedPoint `json:"d_base"`
	DBonds             fixedpoint.FixedPoint `json:"d_bonds"`
	DLPReserves        fixedpoint.FixedPoint `json:"d_lp_reserves"`
	DBaseBuffer        fixedpoint.FixedPoint `json:"d_base_buffer"`
	DBondBuffer        fixedpoint.FixedPoint `json:"d_bond_buffer"`
	DLongsOutstanding  fixedpoint.FixedPoint `json:"d_longs_outstanding"`
	DShortsOutstanding fixedpoint.FixedPoint `json:"d_shorts_outstanding"`
	DBaseFees          fixedpoint.FixedPoint `json:"d_base_fees"`
	DBondFees          fixedpoint.FixedPoint `json:"d_bond_fees"`
}

func (d MarketDeltas) values() []namedValue {
	return []namedValue{
		{"d_base", d.DBase},
		{"d_bonds", d.DBonds},
		{"d_lp_reserves", d.DLPReserves},
		{"d_base_buffer", d.DBaseBuffer},
		{"d_bond_buffer", d.DBondBuffer},
		{"d_longs_outstanding", d.DLongsOutstanding},
		{"d_shorts_outstanding", d.DShortsOutstanding},
		{"d_base_fees", d.DBaseFees},
		{"d_bond_fees", d.DBondFees},
	}
}

// NonFinite returns the name of the first non-finite field.
func (d MarketDeltas) NonFinite() (string, bool) {
	return firstNonFinite(d.values())
}

// IsZero reports whether every field is zero.
func (d MarketDeltas) IsZero() bool {
	for _, v := range d.values() {
		if !v.value.IsZero() {
			return false
		}
	}
	return true
}

type namedValue struct {
	name  string
	value fixedpoint.FixedPoint
}

func firstNonFinite(vs []namedValue) (string, bool) {
	for _, v := range vs {
		if !v.value.IsFinite() {
			return v.name, true
		}
	}
	return "", false
}

// Pool is the persisted form of one market: its configuration, clock and
// reserve snapshot.
type Pool struct {
	ID               string                `json:"id" db:"id"`
	Name             string                `json:"name" db:"name"`
	PricingModel     string                `json:"pricing_model" db:"pricing_model"`
	FeePercent       fixedpoint.FixedPoint `json:"fee_percent" db:"fee_percent"`
	PositionDuration StretchedTime         `json:"position_duration" db:"-"`
	Clock            int64                 `json:"clock" db:"clock"`
	State            MarketState           `json:"state" db:"-"`
	CreatedAt        time.Time             `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at" db:"updated_at"`
}

// LedgerEntry is an immutable record of one applied trade.
type LedgerEntry struct {
	ID        string                `json:"id" db:"id"`
	Sequence  uint64                `json:"sequence" db:"sequence"`
	PoolID    string                `json:"pool_id" db:"pool_id"`
	Wallet    string                `json:"wallet" db:"wallet"`
	Action    ActionType            `json:"action" db:"action"`
	Amount    fixedpoint.FixedPoint `json:"amount" db:"amount"`
	MintTime  int64                 `json:"mint_time" db:"mint_time"`
	DBase     fixedpoint.FixedPoint `json:"d_base" db:"d_base"`
	DBonds    fixedpoint.FixedPoint `json:"d_bonds" db:"d_bonds"`
	Fee       fixedpoint.FixedPoint `json:"fee" db:"fee"`
	SpotPrice fixedpoint.FixedPoint `json:"spot_price" db:"spot_price"`
	Timestamp time.Time             `json:"timestamp" db:"timestamp"`
}
