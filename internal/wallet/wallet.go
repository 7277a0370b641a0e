// Package wallet keeps per-participant balances and position cohorts.
//
// A Wallet doubles as its own delta type: market operations return a Wallet
// holding only the changes, and Merge folds it into the persistent one.
// Position cohorts are keyed by mint time in seconds. A cohort whose balance
// and margin both reach zero is removed on merge; a short with residual
// margin and no bonds stays until the margin is paid out.
package wallet

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/atmx/hyperdrive-engine/internal/fixedpoint"
	"github.com/atmx/hyperdrive-engine/internal/model"
)

// Long is a cohort of bonds bought at one mint time.
type Long struct {
	Balance fixedpoint.FixedPoint `json:"balance"`
}

// Short is a cohort of bonds sold at one mint time and the base escrowed
// against them.
type Short struct {
	Balance fixedpoint.FixedPoint `json:"balance"`
	Margin  fixedpoint.FixedPoint `json:"margin"`
}

// Wallet is one participant's holdings.
type Wallet struct {
	Address  common.Address        `json:"address"`
	Base     fixedpoint.FixedPoint `json:"base"`
	LPTokens fixedpoint.FixedPoint `json:"lp_tokens"`
	Longs    map[int64]Long        `json:"longs"`
	Shorts   map[int64]Short       `json:"shorts"`
	FeesPaid fixedpoint.FixedPoint `json:"fees_paid"`
}

// New returns an empty wallet for addr.
func New(addr common.Address) *Wallet {
	return &Wallet{
		Address: addr,
		Longs:   make(map[int64]Long),
		Shorts:  make(map[int64]Short),
	}
}

// Merge adds delta into w. Every resulting balance is checked before
// anything is written, so on error w is unchanged.
func (w *Wallet) Merge(delta Wallet) error {
	base := w.Base.Add(delta.Base)
	lp := w.LPTokens.Add(delta.LPTokens)
	fees := w.FeesPaid.Add(delta.FeesPaid)
	for _, f := range []struct {
		name string
		v    fixedpoint.FixedPoint
	}{{"base", base}, {"lp_tokens", lp}, {"fees_paid", fees}} {
		if !f.v.IsFinite() {
			return errors.Wrapf(model.ErrNonFiniteValue, "wallet %s", f.name)
		}
		if f.v.IsNegative() {
			return errors.Wrapf(model.ErrNegativeBalance, "wallet %s would be %s", f.name, f.v)
		}
	}

	longs := make(map[int64]Long, len(delta.Longs))
	for mint, d := range delta.Longs {
		bal := w.Longs[mint].Balance.Add(d.Balance)
		if !bal.IsFinite() {
			return errors.Wrapf(model.ErrNonFiniteValue, "long cohort %d", mint)
		}
		if bal.IsNegative() {
			return errors.Wrapf(model.ErrNegativeBalance, "long cohort %d would be %s", mint, bal)
		}
		longs[mint] = Long{Balance: bal}
	}
	shorts := make(map[int64]Short, len(delta.Shorts))
	for mint, d := range delta.Shorts {
		cur := w.Shorts[mint]
		next := Short{Balance: cur.Balance.Add(d.Balance), Margin: cur.Margin.Add(d.Margin)}
		if !next.Balance.IsFinite() || !next.Margin.IsFinite() {
			return errors.Wrapf(model.ErrNonFiniteValue, "short cohort %d", mint)
		}
		if next.Balance.IsNegative() {
			return errors.Wrapf(model.ErrNegativeBalance, "short cohort %d balance would be %s", mint, next.Balance)
		}
		if next.Margin.IsNegative() {
			return errors.Wrapf(model.ErrNegativeBalance, "short cohort %d margin would be %s", mint, next.Margin)
		}
		shorts[mint] = next
	}

	w.Base, w.LPTokens, w.FeesPaid = base, lp, fees
	if w.Longs == nil {
		w.Longs = make(map[int64]Long)
	}
	if w.Shorts == nil {
		w.Shorts = make(map[int64]Short)
	}
	for mint, l := range longs {
		if l.Balance.IsZero() {
			delete(w.Longs, mint)
			continue
		}
		w.Longs[mint] = l
	}
	for mint, s := range shorts {
		if s.Balance.IsZero() && s.Margin.IsZero() {
			delete(w.Shorts, mint)
			continue
		}
		w.Shorts[mint] = s
	}
	return nil
}

// OpenLongs returns the mint times of long cohorts with a positive balance,
// oldest first.
func (w *Wallet) OpenLongs() []int64 {
	keys := make([]int64, 0, len(w.Longs))
	for mint, l := range w.Longs {
		if l.Balance.IsPositive() {
			keys = append(keys, mint)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// OpenShorts returns the mint times of short cohorts with a positive
// balance, oldest first.
func (w *Wallet) OpenShorts() []int64 {
	keys := make([]int64, 0, len(w.Shorts))
	for mint, s := range w.Shorts {
		if s.Balance.IsPositive() {
			keys = append(keys, mint)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Clone returns a deep copy.
func (w *Wallet) Clone() *Wallet {
	c := *w
	c.Longs = make(map[int64]Long, len(w.Longs))
	for k, v := range w.Longs {
		c.Longs[k] = v
	}
	c.Shorts = make(map[int64]Short, len(w.Shorts))
	for k, v := range w.Shorts {
		c.Shorts[k] = v
	}
	return &c
}

// IsZero reports whether the wallet holds nothing. As a delta this means
// the trade had no effect.
func (w Wallet) IsZero() bool {
	if !w.Base.IsZero() || !w.LPTokens.IsZero() || !w.FeesPaid.IsZero() {
		return false
	}
	for _, l := range w.Longs {
		if !l.Balance.IsZero() {
			return false
		}
	}
	for _, s := range w.Shorts {
		if !s.Balance.IsZero() || !s.Margin.IsZero() {
			return false
		}
	}
	return true
}
