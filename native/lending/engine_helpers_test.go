package lending

import (
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"meldlend/core/events"
	"meldlend/native/lending/rates"
	"meldlend/native/lending/wadray"
)

var (
	custodyAddr  = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	treasuryAddr = common.HexToAddress("0x00000000000000000000000000000000000000c1")

	daiAddr  = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	wethAddr = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	usdcAddr = common.HexToAddress("0x00000000000000000000000000000000000000a3")

	alice = common.HexToAddress("0x0000000000000000000000000000000000000011")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000012")
	carol = common.HexToAddress("0x0000000000000000000000000000000000000013")
)

const startTime = uint64(1_700_000_000)

type stubPriceOracle struct {
	prices map[common.Address]*uint256.Int
}

func (o *stubPriceOracle) AssetPriceUSD(asset common.Address) (*uint256.Int, error) {
	p, ok := o.prices[asset]
	if !ok {
		return nil, fmt.Errorf("no price for %s", asset.Hex())
	}
	return new(uint256.Int).Set(p), nil
}

func (o *stubPriceOracle) set(asset common.Address, usd uint64) {
	o.prices[asset] = units(usd, 18)
}

// units returns whole * 10^decimals.
func units(whole uint64, decimals uint8) *uint256.Int {
	unit, err := wadray.Pow10(decimals)
	if err != nil {
		panic(err)
	}
	return new(uint256.Int).Mul(uint256.NewInt(whole), unit)
}

func mustDec(s string) *uint256.Int { return uint256.MustFromDecimal(s) }

func testStrategy() rates.Strategy {
	return rates.NewStrategy(
		wadray.MustParseWad("0.8"),
		new(uint256.Int),
		wadray.MustParseWad("0.04"),
		wadray.MustParseWad("0.75"),
		wadray.MustParseWad("0.02"),
		wadray.MustParseWad("0.6"),
	)
}

func testReserveParams(ltv, threshold uint64, decimals uint8) ReserveParams {
	return ReserveParams{
		LTV:                    ltv,
		LiquidationThreshold:   threshold,
		LiquidationBonus:       10500,
		Decimals:               decimals,
		Active:                 true,
		BorrowingEnabled:       true,
		StableBorrowingEnabled: true,
		ReserveFactor:          1000,
	}
}

type fixture struct {
	engine *Engine
	state  *ProtocolState
	oracle *stubPriceOracle
	events *events.Collector
}

// newFixture lists DAI (18 decimals, $1), WETH (18 decimals, $2000) and USDC
// (6 decimals, $1) at startTime.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	state := NewProtocolState()
	engine, err := NewEngine(state, DefaultProtocolParams(custodyAddr, treasuryAddr))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	oracle := &stubPriceOracle{prices: map[common.Address]*uint256.Int{}}
	oracle.set(daiAddr, 1)
	oracle.set(wethAddr, 2000)
	oracle.set(usdcAddr, 1)
	collector := &events.Collector{}
	engine.SetPriceOracle(oracle)
	engine.SetEmitter(collector)
	engine.SetTimestamp(startTime)

	f := &fixture{engine: engine, state: state, oracle: oracle, events: collector}
	f.listReserve(t, daiAddr, testReserveParams(7500, 8000, 18))
	f.listReserve(t, wethAddr, testReserveParams(8000, 8250, 18))
	f.listReserve(t, usdcAddr, testReserveParams(7500, 8000, 6))
	return f
}

func (f *fixture) listReserve(t *testing.T, asset common.Address, p ReserveParams) {
	t.Helper()
	cfg, err := NewReserveConfiguration(p)
	if err != nil {
		t.Fatalf("reserve configuration: %v", err)
	}
	if err := f.engine.InitReserve(asset, cfg, testStrategy()); err != nil {
		t.Fatalf("init reserve %s: %v", asset.Hex(), err)
	}
}

func (f *fixture) fund(t *testing.T, asset, holder common.Address, amount *uint256.Int) {
	t.Helper()
	if err := f.state.Credit(asset, holder, amount); err != nil {
		t.Fatalf("credit: %v", err)
	}
}

func (f *fixture) deposit(t *testing.T, asset, user common.Address, amount *uint256.Int) {
	t.Helper()
	f.fund(t, asset, user, amount)
	if err := f.engine.Deposit(user, asset, amount, user); err != nil {
		t.Fatalf("deposit: %v", err)
	}
}

// borrowerPosition supplies 10,000 DAI from alice and has bob borrow 1,600 DAI
// at variable rate against 1 WETH, leaving bob with a health factor of
// 1.03125.
func (f *fixture) borrowerPosition(t *testing.T) {
	t.Helper()
	f.deposit(t, daiAddr, alice, units(10_000, 18))
	f.deposit(t, wethAddr, bob, units(1, 18))
	if err := f.engine.Borrow(bob, daiAddr, units(1_600, 18), RateModeVariable, bob); err != nil {
		t.Fatalf("borrow: %v", err)
	}
}

func (f *fixture) reserveData(t *testing.T, asset common.Address) *ReserveData {
	t.Helper()
	data, err := f.engine.GetReserveData(asset)
	if err != nil {
		t.Fatalf("reserve data: %v", err)
	}
	return data
}

func (f *fixture) variableDebt(t *testing.T, user, asset common.Address) *uint256.Int {
	t.Helper()
	debt, err := f.engine.VariableDebtBalance(user, asset)
	if err != nil {
		t.Fatalf("variable debt: %v", err)
	}
	return debt
}

func (f *fixture) collateral(t *testing.T, user, asset common.Address) *uint256.Int {
	t.Helper()
	balance, err := f.engine.CollateralBalance(user, asset)
	if err != nil {
		t.Fatalf("collateral balance: %v", err)
	}
	return balance
}
