package lending

import (
	"testing"

	"github.com/stretchr/testify/require"

	"meldlend/core/events"
)

func TestCreditDelegation(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, daiAddr, carol, units(10_000, 18))
	f.deposit(t, wethAddr, alice, units(10, 18))

	require.NoError(t, f.engine.ApproveDelegation(alice, bob, daiAddr, RateModeVariable, units(5_000, 18)))
	require.True(t, f.engine.BorrowAllowance(alice, bob, daiAddr, RateModeVariable).Eq(units(5_000, 18)))
	require.True(t, f.engine.BorrowAllowance(alice, bob, daiAddr, RateModeStable).IsZero())

	require.NoError(t, f.engine.Borrow(bob, daiAddr, units(2_000, 18), RateModeVariable, alice))
	require.True(t, f.engine.BorrowAllowance(alice, bob, daiAddr, RateModeVariable).Eq(units(3_000, 18)))
	require.True(t, f.variableDebt(t, alice, daiAddr).Eq(units(2_000, 18)))
	require.True(t, f.variableDebt(t, bob, daiAddr).IsZero())
	require.True(t, f.engine.UnderlyingBalance(daiAddr, bob).Eq(units(2_000, 18)))
	require.True(t, f.engine.UnderlyingBalance(daiAddr, alice).IsZero())

	err := f.engine.Borrow(bob, daiAddr, units(3_001, 18), RateModeVariable, alice)
	require.ErrorIs(t, err, ErrInsufficientAllowance)
	require.True(t, f.engine.BorrowAllowance(alice, bob, daiAddr, RateModeVariable).Eq(units(3_000, 18)))
	require.True(t, f.variableDebt(t, alice, daiAddr).Eq(units(2_000, 18)))
	require.True(t, f.engine.UnderlyingBalance(daiAddr, bob).Eq(units(2_000, 18)))

	// Allowances are per rate mode.
	require.ErrorIs(t, f.engine.Borrow(bob, daiAddr, units(1, 18), RateModeStable, alice), ErrInsufficientAllowance)

	require.NoError(t, f.engine.Borrow(bob, daiAddr, units(3_000, 18), RateModeVariable, alice))
	require.True(t, f.engine.BorrowAllowance(alice, bob, daiAddr, RateModeVariable).IsZero())
	require.Empty(t, f.state.Records().Allowances)

	// Repaying on behalf of the delegator does not restore the allowance.
	repaid, err := f.engine.Repay(bob, daiAddr, units(1_000, 18), RateModeVariable, alice)
	require.NoError(t, err)
	require.True(t, repaid.Eq(units(1_000, 18)))
	require.True(t, f.variableDebt(t, alice, daiAddr).Eq(units(4_000, 18)))
	require.True(t, f.engine.BorrowAllowance(alice, bob, daiAddr, RateModeVariable).IsZero())

	approvals := f.events.OfType(events.TypeLendingDelegation)
	require.Len(t, approvals, 1)
	require.Equal(t, "variable", approvals[0].(events.LendingDelegation).Mode)
}

func TestCreditDelegationStable(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, daiAddr, carol, units(10_000, 18))
	f.deposit(t, wethAddr, alice, units(10, 18))

	require.NoError(t, f.engine.ApproveDelegation(alice, bob, daiAddr, RateModeStable, units(5_000, 18)))
	require.NoError(t, f.engine.Borrow(bob, daiAddr, units(2_000, 18), RateModeStable, alice))

	require.True(t, f.engine.BorrowAllowance(alice, bob, daiAddr, RateModeStable).Eq(units(3_000, 18)))
	aliceDebt, err := f.engine.StableDebtBalance(alice, daiAddr)
	require.NoError(t, err)
	require.True(t, aliceDebt.Eq(units(2_000, 18)), "delegator stable debt %s", aliceDebt.Dec())
	bobDebt, err := f.engine.StableDebtBalance(bob, daiAddr)
	require.NoError(t, err)
	require.True(t, bobDebt.IsZero())
	require.True(t, f.variableDebt(t, alice, daiAddr).IsZero())
	require.True(t, f.engine.UnderlyingBalance(daiAddr, bob).Eq(units(2_000, 18)))
	require.True(t, f.engine.UnderlyingBalance(daiAddr, alice).IsZero())

	borrows := f.events.OfType(events.TypeLendingBorrow)
	require.Len(t, borrows, 1)
	require.Equal(t, "stable", borrows[0].(events.LendingBorrow).Mode)
}

func TestDelegationReplacesAllowance(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.engine.ApproveDelegation(alice, bob, daiAddr, RateModeStable, units(100, 18)))
	require.NoError(t, f.engine.ApproveDelegation(alice, bob, daiAddr, RateModeStable, units(40, 18)))
	require.True(t, f.engine.BorrowAllowance(alice, bob, daiAddr, RateModeStable).Eq(units(40, 18)))

	require.ErrorIs(t, f.engine.ApproveDelegation(alice, bob, daiAddr, RateModeNone, units(1, 18)), ErrInvalidInterestRateMode)
	require.ErrorIs(t, f.engine.ApproveDelegation(alice, bob, carol, RateModeStable, units(1, 18)), ErrReserveNotFound)

	require.NoError(t, f.engine.ApproveDelegation(alice, bob, daiAddr, RateModeStable, nil))
	require.True(t, f.engine.BorrowAllowance(alice, bob, daiAddr, RateModeStable).IsZero())
}

func TestDelegatedBorrowStillChecksDelegatorHealth(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, daiAddr, carol, units(10_000, 18))
	f.deposit(t, wethAddr, alice, units(1, 18))

	require.NoError(t, f.engine.ApproveDelegation(alice, bob, daiAddr, RateModeVariable, units(5_000, 18)))
	require.ErrorIs(t, f.engine.Borrow(bob, daiAddr, units(1_700, 18), RateModeVariable, alice), ErrCollateralCannotCoverBorrow)
	require.True(t, f.engine.BorrowAllowance(alice, bob, daiAddr, RateModeVariable).Eq(units(5_000, 18)))
}
