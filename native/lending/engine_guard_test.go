package lending

import (
	"errors"
	"testing"

	nativecommon "meldlend/native/common"
)

type stubPauseView struct {
	modules map[string]bool
}

func (s stubPauseView) IsPaused(module string) bool {
	if s.modules == nil {
		return false
	}
	return s.modules[module]
}

func TestDepositGuardBlocksMutation(t *testing.T) {
	f := newFixture(t)
	f.fund(t, daiAddr, alice, units(500, 18))
	f.engine.SetPauses(stubPauseView{modules: map[string]bool{"lending": true}})

	if err := f.engine.Deposit(alice, daiAddr, units(100, 18), alice); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}

	if balance := f.engine.UnderlyingBalance(daiAddr, alice); !balance.Eq(units(500, 18)) {
		t.Fatalf("expected depositor balance to remain 500 DAI, got %s", balance)
	}
	if supply := f.reserveData(t, daiAddr).TotalSupply; !supply.IsZero() {
		t.Fatalf("expected reserve supply unchanged, got %s", supply)
	}
}

func TestBorrowGuardBlocksMutation(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, daiAddr, alice, units(10_000, 18))
	f.deposit(t, wethAddr, bob, units(1, 18))
	f.engine.SetPauses(stubPauseView{modules: map[string]bool{"lending": true}})

	if err := f.engine.Borrow(bob, daiAddr, units(100, 18), RateModeVariable, bob); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if debt := f.variableDebt(t, bob, daiAddr); !debt.IsZero() {
		t.Fatalf("expected no debt, got %s", debt)
	}

	f.engine.SetPauses(stubPauseView{modules: map[string]bool{"swap": true}})
	if err := f.engine.Borrow(bob, daiAddr, units(100, 18), RateModeVariable, bob); err != nil {
		t.Fatalf("borrow with other module paused: %v", err)
	}
}

func TestPauseSetGuardsEngine(t *testing.T) {
	f := newFixture(t)
	f.fund(t, daiAddr, alice, units(100, 18))
	pauses := nativecommon.NewPauseSet()
	f.engine.SetPauses(pauses)

	pauses.Pause("lending")
	if err := f.engine.Deposit(alice, daiAddr, units(100, 18), alice); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	pauses.Resume("lending")
	if err := f.engine.Deposit(alice, daiAddr, units(100, 18), alice); err != nil {
		t.Fatalf("deposit after resume: %v", err)
	}
}

func TestViewsIgnorePause(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, daiAddr, alice, units(100, 18))
	f.engine.SetPauses(stubPauseView{modules: map[string]bool{"lending": true}})

	if balance := f.collateral(t, alice, daiAddr); !balance.Eq(units(100, 18)) {
		t.Fatalf("expected 100 DAI collateral, got %s", balance)
	}
	if _, err := f.engine.GetUserAccountData(alice); err != nil {
		t.Fatalf("account data while paused: %v", err)
	}
}
