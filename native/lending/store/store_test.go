package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"meldlend/native/lending"
	"meldlend/native/lending/oracle"
	"meldlend/native/lending/rates"
	"meldlend/native/lending/wadray"
	"meldlend/storage"
)

var (
	custody  = common.HexToAddress("0x00000000000000000000000000000000000000c0")
	treasury = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	dai      = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	weth     = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	alice    = common.HexToAddress("0x0000000000000000000000000000000000000011")
	bob      = common.HexToAddress("0x0000000000000000000000000000000000000012")
)

func whole(n uint64) *uint256.Int {
	unit, _ := wadray.Pow10(18)
	return new(uint256.Int).Mul(uint256.NewInt(n), unit)
}

func newEngine(t *testing.T, state *lending.ProtocolState) *lending.Engine {
	t.Helper()
	engine, err := lending.NewEngine(state, lending.DefaultProtocolParams(custody, treasury))
	require.NoError(t, err)
	prices := oracle.NewManual(0)
	require.NoError(t, prices.SetPriceDecimal(dai, "1", time.Unix(0, 0)))
	require.NoError(t, prices.SetPriceDecimal(weth, "2000", time.Unix(0, 0)))
	engine.SetPriceOracle(prices)
	return engine
}

func populatedEngine(t *testing.T) *lending.Engine {
	t.Helper()
	engine := newEngine(t, lending.NewProtocolState())
	engine.SetTimestamp(1_700_000_000)

	strategy := rates.NewStrategy(
		wadray.MustParseWad("0.8"),
		new(uint256.Int),
		wadray.MustParseWad("0.04"),
		wadray.MustParseWad("0.75"),
		wadray.MustParseWad("0.02"),
		wadray.MustParseWad("0.6"),
	)
	for _, asset := range []struct {
		addr     common.Address
		ltv, liq uint64
	}{{dai, 7500, 8000}, {weth, 8000, 8250}} {
		cfg, err := lending.NewReserveConfiguration(lending.ReserveParams{
			LTV:                    asset.ltv,
			LiquidationThreshold:   asset.liq,
			LiquidationBonus:       10500,
			Decimals:               18,
			Active:                 true,
			BorrowingEnabled:       true,
			StableBorrowingEnabled: true,
			ReserveFactor:          1000,
		})
		require.NoError(t, err)
		require.NoError(t, engine.InitReserve(asset.addr, cfg, strategy))
	}

	state := engine.State()
	require.NoError(t, state.Credit(dai, alice, whole(10_000)))
	require.NoError(t, state.Credit(weth, bob, whole(2)))
	require.NoError(t, engine.Deposit(alice, dai, whole(10_000), alice))
	require.NoError(t, engine.Deposit(bob, weth, whole(2), bob))
	require.NoError(t, engine.Borrow(bob, dai, whole(1_000), lending.RateModeVariable, bob))
	require.NoError(t, engine.Borrow(bob, dai, whole(100), lending.RateModeStable, bob))
	require.NoError(t, engine.ApproveDelegation(bob, alice, dai, lending.RateModeVariable, whole(50)))

	engine.SetTimestamp(1_700_000_000 + 86_400)
	require.NoError(t, engine.UpdateState(dai))
	return engine
}

func TestSaveLoadRoundTrip(t *testing.T) {
	engine := populatedEngine(t)
	s := New(storage.NewMemDB())
	require.NoError(t, s.Save(engine.State().Records(), engine.Timestamp()))

	restored, timestamp, err := s.Load()
	require.NoError(t, err)
	require.Equal(t, engine.Timestamp(), timestamp)
	require.Equal(t, engine.State().Records(), restored.Records())

	reloaded := newEngine(t, restored)
	reloaded.SetTimestamp(timestamp)
	want, err := engine.GetUserAccountData(bob)
	require.NoError(t, err)
	got, err := reloaded.GetUserAccountData(bob)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestSaveRemovesStaleRecords(t *testing.T) {
	engine := populatedEngine(t)
	db := storage.NewMemDB()
	s := New(db)
	require.NoError(t, s.Save(engine.State().Records(), engine.Timestamp()))

	// Consuming the whole allowance drops its record.
	require.NoError(t, engine.Borrow(alice, dai, whole(50), lending.RateModeVariable, bob))
	require.Empty(t, engine.State().Records().Allowances)
	require.NoError(t, s.Save(engine.State().Records(), engine.Timestamp()))

	count := 0
	require.NoError(t, db.Iterate(allowancePrefix, func(_, _ []byte) error {
		count++
		return nil
	}))
	require.Zero(t, count)

	restored, _, err := s.Load()
	require.NoError(t, err)
	require.Equal(t, engine.State().Records(), restored.Records())
}

func TestLoadFromPersistentBackends(t *testing.T) {
	engine := populatedEngine(t)
	dir := t.TempDir()

	level, err := storage.NewLevelDB(filepath.Join(dir, "level"))
	require.NoError(t, err)
	defer level.Close()
	bolt, err := storage.NewBoltDB(filepath.Join(dir, "lending.bolt"))
	require.NoError(t, err)
	defer bolt.Close()

	for _, db := range []storage.Database{level, bolt} {
		s := New(db)
		require.NoError(t, s.Save(engine.State().Records(), engine.Timestamp()))
		restored, _, err := s.Load()
		require.NoError(t, err)
		require.Equal(t, engine.State().Records(), restored.Records())
	}
}

func TestLoadEmptyDatabase(t *testing.T) {
	state, timestamp, err := New(storage.NewMemDB()).Load()
	require.NoError(t, err)
	require.Zero(t, timestamp)
	require.Empty(t, state.Records().Reserves)
}

func TestLoadRejectsCorruptRecords(t *testing.T) {
	db := storage.NewMemDB()
	require.NoError(t, db.Put(joinKey(reservePrefix, dai[:]), []byte{0x01, 0x02}))
	_, _, err := New(db).Load()
	require.Error(t, err)

	db = storage.NewMemDB()
	require.NoError(t, db.Put(timestampKey, []byte{0x01}))
	_, _, err = New(db).Load()
	require.Error(t, err)
}
