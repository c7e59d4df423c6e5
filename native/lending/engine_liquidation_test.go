package lending

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"

	"meldlend/core/events"
)

// liquidationFixture opens bob's 1,600 DAI loan against 1 WETH, funds carol
// as liquidator and reprices WETH to wethUSD.
func liquidationFixture(t *testing.T, wethUSD uint64) *fixture {
	t.Helper()
	f := newFixture(t)
	f.borrowerPosition(t)
	f.fund(t, daiAddr, carol, units(2_000, 18))
	f.oracle.set(wethAddr, wethUSD)
	return f
}

func TestLiquidationHonoursCloseFactor(t *testing.T) {
	f := liquidationFixture(t, 1_900)

	account, err := f.engine.GetUserAccountData(bob)
	if err != nil {
		t.Fatalf("account data: %v", err)
	}
	if got := account.HealthFactor.Dec(); got != "979687500000000000" {
		t.Fatalf("unexpected health factor %s", got)
	}

	result, err := f.engine.LiquidationCall(carol, wethAddr, daiAddr, bob, FullAmount(), false)
	if err != nil {
		t.Fatalf("liquidation: %v", err)
	}
	// Half the debt is covered; collateral is 800/1900 WETH plus the 5% bonus.
	if !result.DebtRepaid.Eq(units(800, 18)) {
		t.Fatalf("expected 800 DAI repaid, got %s", result.DebtRepaid.Dec())
	}
	if got := result.CollateralSeized.Dec(); got != "442105263157894736" {
		t.Fatalf("unexpected collateral seized %s", got)
	}

	if debt := f.variableDebt(t, bob, daiAddr); !debt.Eq(units(800, 18)) {
		t.Fatalf("expected 800 DAI left owing, got %s", debt.Dec())
	}
	if got := f.collateral(t, bob, wethAddr).Dec(); got != "557894736842105264" {
		t.Fatalf("unexpected remaining collateral %s", got)
	}
	if got := f.engine.UnderlyingBalance(wethAddr, carol); !got.Eq(result.CollateralSeized) {
		t.Fatalf("expected liquidator to receive %s WETH, got %s", result.CollateralSeized.Dec(), got.Dec())
	}
	if got := f.engine.UnderlyingBalance(daiAddr, carol); !got.Eq(units(1_200, 18)) {
		t.Fatalf("expected liquidator to keep 1200 DAI, got %s", got.Dec())
	}
	if got := f.reserveData(t, wethAddr).Reserve.AvailableLiquidity.Dec(); got != "557894736842105264" {
		t.Fatalf("unexpected WETH liquidity %s", got)
	}
	if got := f.reserveData(t, daiAddr).Reserve.AvailableLiquidity; !got.Eq(units(9_200, 18)) {
		t.Fatalf("unexpected DAI liquidity %s", got.Dec())
	}

	// Seized collateral never exceeds the covered debt plus bonus.
	seizedUSD := new(uint256.Int).Mul(result.CollateralSeized, uint256.NewInt(1_900))
	boundUSD := new(uint256.Int).Mul(result.DebtRepaid, uint256.NewInt(10500))
	boundUSD.Div(boundUSD, uint256.NewInt(10000))
	if seizedUSD.Gt(boundUSD) {
		t.Fatalf("seized %s USD exceeds bound %s", seizedUSD.Dec(), boundUSD.Dec())
	}

	if _, err := f.engine.LiquidationCall(carol, wethAddr, daiAddr, bob, FullAmount(), false); !errors.Is(err, ErrHealthFactorNotBelowThreshold) {
		t.Fatalf("expected restored position to be safe, got %v", err)
	}
	if n := len(f.events.OfType(events.TypeLendingLiquidation)); n != 1 {
		t.Fatalf("expected one liquidation event, got %d", n)
	}
}

func TestLiquidationClosesFullyBelowThreshold(t *testing.T) {
	f := liquidationFixture(t, 1_800)

	result, err := f.engine.LiquidationCall(carol, wethAddr, daiAddr, bob, FullAmount(), false)
	if err != nil {
		t.Fatalf("liquidation: %v", err)
	}
	if !result.DebtRepaid.Eq(units(1_600, 18)) {
		t.Fatalf("expected the whole debt repaid, got %s", result.DebtRepaid.Dec())
	}
	if got := result.CollateralSeized.Dec(); got != "933333333333333332" {
		t.Fatalf("unexpected collateral seized %s", got)
	}
	if debt := f.variableDebt(t, bob, daiAddr); !debt.IsZero() {
		t.Fatalf("expected debt cleared, got %s", debt.Dec())
	}
}

func TestLiquidationCappedByCollateral(t *testing.T) {
	f := liquidationFixture(t, 1_500)

	result, err := f.engine.LiquidationCall(carol, wethAddr, daiAddr, bob, FullAmount(), false)
	if err != nil {
		t.Fatalf("liquidation: %v", err)
	}
	if !result.CollateralSeized.Eq(units(1, 18)) {
		t.Fatalf("expected all collateral seized, got %s", result.CollateralSeized.Dec())
	}
	if got := result.DebtRepaid.Dec(); got != "1428571428571428571429" {
		t.Fatalf("unexpected debt repaid %s", got)
	}
	if got := f.variableDebt(t, bob, daiAddr).Dec(); got != "171428571428571428571" {
		t.Fatalf("unexpected residual debt %s", got)
	}
	if f.engine.UsingAsCollateral(bob, wethAddr) {
		t.Fatalf("expected emptied collateral to be disabled")
	}
}

func TestLiquidationReceivingCollateralToken(t *testing.T) {
	f := liquidationFixture(t, 1_900)

	result, err := f.engine.LiquidationCall(carol, wethAddr, daiAddr, bob, units(400, 18), true)
	if err != nil {
		t.Fatalf("liquidation: %v", err)
	}
	if !result.DebtRepaid.Eq(units(400, 18)) {
		t.Fatalf("expected 400 DAI repaid, got %s", result.DebtRepaid.Dec())
	}
	if got := f.collateral(t, carol, wethAddr); !got.Eq(result.CollateralSeized) {
		t.Fatalf("expected liquidator collateral %s, got %s", result.CollateralSeized.Dec(), got.Dec())
	}
	if !f.engine.UsingAsCollateral(carol, wethAddr) {
		t.Fatalf("expected received collateral to be enabled")
	}
	if got := f.engine.UnderlyingBalance(wethAddr, carol); !got.IsZero() {
		t.Fatalf("expected no underlying WETH, got %s", got.Dec())
	}
	if got := f.reserveData(t, wethAddr).Reserve.AvailableLiquidity; !got.Eq(units(1, 18)) {
		t.Fatalf("expected WETH liquidity untouched, got %s", got.Dec())
	}
}

func TestLiquidationRepaysVariableBeforeStable(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, daiAddr, alice, units(10_000, 18))
	f.deposit(t, wethAddr, bob, units(1, 18))
	if err := f.engine.Borrow(bob, daiAddr, units(1_000, 18), RateModeVariable, bob); err != nil {
		t.Fatalf("variable borrow: %v", err)
	}
	if err := f.engine.Borrow(bob, daiAddr, units(600, 18), RateModeStable, bob); err != nil {
		t.Fatalf("stable borrow: %v", err)
	}
	f.fund(t, daiAddr, carol, units(2_000, 18))
	f.oracle.set(wethAddr, 1_800)

	result, err := f.engine.LiquidationCall(carol, wethAddr, daiAddr, bob, units(1_200, 18), false)
	if err != nil {
		t.Fatalf("liquidation: %v", err)
	}
	if got := result.CollateralSeized.Dec(); got != "699999999999999999" {
		t.Fatalf("unexpected collateral seized %s", got)
	}
	if debt := f.variableDebt(t, bob, daiAddr); !debt.IsZero() {
		t.Fatalf("expected variable debt cleared first, got %s", debt.Dec())
	}
	stable, err := f.engine.StableDebtBalance(bob, daiAddr)
	if err != nil {
		t.Fatalf("stable debt: %v", err)
	}
	if !stable.Eq(units(400, 18)) {
		t.Fatalf("expected 400 DAI stable debt left, got %s", stable.Dec())
	}
}

func TestLiquidationRejections(t *testing.T) {
	f := newFixture(t)
	f.borrowerPosition(t)
	f.fund(t, daiAddr, carol, units(2_000, 18))

	if _, err := f.engine.LiquidationCall(carol, wethAddr, daiAddr, bob, FullAmount(), false); !errors.Is(err, ErrHealthFactorNotBelowThreshold) {
		t.Fatalf("expected ErrHealthFactorNotBelowThreshold, got %v", err)
	}

	f.oracle.set(wethAddr, 1_900)
	if _, err := f.engine.LiquidationCall(carol, wethAddr, daiAddr, bob, new(uint256.Int), false); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := f.engine.LiquidationCall(carol, daiAddr, daiAddr, bob, FullAmount(), false); !errors.Is(err, ErrCollateralCannotBeLiquidated) {
		t.Fatalf("expected ErrCollateralCannotBeLiquidated, got %v", err)
	}
	if _, err := f.engine.LiquidationCall(carol, wethAddr, usdcAddr, bob, FullAmount(), false); !errors.Is(err, ErrSpecifiedCurrencyNotBorrowed) {
		t.Fatalf("expected ErrSpecifiedCurrencyNotBorrowed, got %v", err)
	}
	if _, err := f.engine.LiquidationCall(alice, wethAddr, daiAddr, bob, FullAmount(), false); !errors.Is(err, ErrNotEnoughBalance) {
		t.Fatalf("expected ErrNotEnoughBalance, got %v", err)
	}

	f.state.reserves[wethAddr].AvailableLiquidity.SetUint64(1)
	if _, err := f.engine.LiquidationCall(carol, wethAddr, daiAddr, bob, FullAmount(), false); !errors.Is(err, ErrNotEnoughLiquidityToLiquidate) {
		t.Fatalf("expected ErrNotEnoughLiquidityToLiquidate, got %v", err)
	}

	if debt := f.variableDebt(t, bob, daiAddr); !debt.Eq(units(1_600, 18)) {
		t.Fatalf("expected rejected liquidations to leave debt at 1600, got %s", debt.Dec())
	}
	if got := f.engine.UnderlyingBalance(daiAddr, carol); !got.Eq(units(2_000, 18)) {
		t.Fatalf("expected liquidator funds untouched, got %s", got.Dec())
	}
	if got := f.collateral(t, bob, wethAddr); !got.Eq(units(1, 18)) {
		t.Fatalf("expected collateral untouched, got %s", got.Dec())
	}

	if _, err := f.engine.LiquidationCall(carol, wethAddr, daiAddr, bob, FullAmount(), true); err != nil {
		t.Fatalf("liquidation into collateral token should not need liquidity: %v", err)
	}
}
