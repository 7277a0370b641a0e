package limits

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"github.com/atmx/hyperdrive-engine/internal/fixedpoint"
	"github.com/atmx/hyperdrive-engine/internal/model"
	"github.com/atmx/hyperdrive-engine/internal/wallet"
)

func d(s string) fixedpoint.FixedPoint {
	return fixedpoint.MustParse(s)
}

func holder() *wallet.Wallet {
	w := wallet.New(common.HexToAddress("0x1"))
	w.Base = d("1000")
	w.LPTokens = d("50")
	w.Longs[10] = wallet.Long{Balance: d("300")}
	w.Shorts[20] = wallet.Short{Balance: d("200"), Margin: d("200")}
	return w
}

func action(typ model.ActionType, amount string, mint int64) model.TradeAction {
	return model.TradeAction{Type: typ, Amount: d(amount), MintTime: mint}
}

func TestCheckAction_WithinLimits(t *testing.T) {
	l := NewPositionLimiter(fixedpoint.Zero)
	w := holder()
	for _, a := range []model.TradeAction{
		action(model.OpenLong, "1000", 0),
		action(model.OpenShort, "10", 0),
		action(model.AddLiquidity, "1000", 0),
		action(model.CloseLong, "300", 10),
		action(model.CloseShort, "1", 20),
		action(model.RemoveLiquidity, "50", 0),
	} {
		if err := l.CheckAction(a, w); err != nil {
			t.Errorf("%s %s: expected no error, got %v", a.Type, a.Amount, err)
		}
	}
}

func TestCheckAction_CloseExceedsCohort(t *testing.T) {
	l := NewPositionLimiter(fixedpoint.Zero)
	w := holder()

	if err := l.CheckAction(action(model.CloseLong, "301", 10), w); !errors.Is(err, ErrCohortBalanceExceeded) {
		t.Errorf("expected ErrCohortBalanceExceeded, got %v", err)
	}
	// No cohort at that mint time.
	if err := l.CheckAction(action(model.CloseShort, "1", 99), w); !errors.Is(err, ErrCohortBalanceExceeded) {
		t.Errorf("expected ErrCohortBalanceExceeded for missing cohort, got %v", err)
	}
}

func TestCheckAction_Balances(t *testing.T) {
	l := NewPositionLimiter(fixedpoint.Zero)
	w := holder()

	if err := l.CheckAction(action(model.OpenLong, "1000.000001", 0), w); !errors.Is(err, ErrBaseBalanceExceeded) {
		t.Errorf("expected ErrBaseBalanceExceeded, got %v", err)
	}
	if err := l.CheckAction(action(model.RemoveLiquidity, "51", 0), w); !errors.Is(err, ErrLPBalanceExceeded) {
		t.Errorf("expected ErrLPBalanceExceeded, got %v", err)
	}
}

func TestCheckAction_ExposureCap(t *testing.T) {
	// Existing 300 long + 200 short; 500 more would reach exactly 1000.
	l := NewPositionLimiter(d("1000"))
	w := holder()

	if err := l.CheckAction(action(model.OpenShort, "500", 0), w); err != nil {
		t.Errorf("at the cap should pass, got %v", err)
	}
	if err := l.CheckAction(action(model.OpenLong, "500.5", 0), w); !errors.Is(err, ErrExposureLimitExceeded) {
		t.Errorf("expected ErrExposureLimitExceeded, got %v", err)
	}
	// Closing is never capped.
	if err := l.CheckAction(action(model.CloseLong, "300", 10), w); err != nil {
		t.Errorf("close should ignore the cap, got %v", err)
	}
}

func TestCheckAction_UnknownType(t *testing.T) {
	l := NewPositionLimiter(fixedpoint.Zero)
	if err := l.CheckAction(action("LIQUIDATE", "1", 0), holder()); !errors.Is(err, model.ErrInvalidAction) {
		t.Errorf("expected ErrInvalidAction, got %v", err)
	}
}
