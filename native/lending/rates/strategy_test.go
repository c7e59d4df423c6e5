package rates

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"meldlend/native/lending/wadray"
)

func wad(s string) *uint256.Int { return wadray.MustParseWad(s) }

func testStrategy() Strategy {
	return NewStrategy(wad("0.8"), wad("0"), wad("0.04"), wad("0.75"), wad("0.02"), wad("0.6"))
}

func TestCalculateKink(t *testing.T) {
	s := testStrategy()
	cases := []struct {
		name      string
		available uint64
		variable  uint64
		factor    uint64
		variableR string
		stableR   string
		liquidity string
		util      string
	}{
		{name: "idle", available: 100, variable: 0, variableR: "0", stableR: "0", liquidity: "0", util: "0"},
		{name: "optimal", available: 20, variable: 80, factor: 1_000, variableR: "0.04", stableR: "0.02", liquidity: "0.0288", util: "0.8"},
		{name: "above optimal", available: 10, variable: 90, variableR: "0.415", stableR: "0.32", liquidity: "0.3735", util: "0.9"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := s.Calculate(Input{
				AvailableLiquidity: uint256.NewInt(tc.available),
				TotalVariableDebt:  uint256.NewInt(tc.variable),
				ReserveFactor:      tc.factor,
			})
			require.NoError(t, err)
			require.Equal(t, wad(tc.variableR), out.VariableBorrowRate)
			require.Equal(t, wad(tc.stableR), out.StableBorrowRate)
			require.Equal(t, wad(tc.liquidity), out.LiquidityRate)
			require.Equal(t, wad(tc.util), out.Utilization)
		})
	}
}

func TestCalculateUsesPendingCashMovement(t *testing.T) {
	out, err := testStrategy().Calculate(Input{
		AvailableLiquidity: uint256.NewInt(100),
		LiquidityTaken:     uint256.NewInt(90),
		TotalVariableDebt:  uint256.NewInt(90),
	})
	require.NoError(t, err)
	require.Equal(t, wad("0.415"), out.VariableBorrowRate)

	_, err = testStrategy().Calculate(Input{
		AvailableLiquidity: uint256.NewInt(10),
		LiquidityTaken:     uint256.NewInt(11),
	})
	require.ErrorIs(t, err, ErrInsufficientLiquidity)
}

func TestCalculateWeightsStableDebt(t *testing.T) {
	out, err := testStrategy().Calculate(Input{
		AvailableLiquidity:      uint256.NewInt(100),
		TotalStableDebt:         uint256.NewInt(50),
		TotalVariableDebt:       uint256.NewInt(50),
		AverageStableBorrowRate: wad("0.1"),
	})
	require.NoError(t, err)
	require.Equal(t, wad("0.025"), out.VariableBorrowRate)
	require.Equal(t, wad("0.03125"), out.LiquidityRate)
}

func TestCalculateMarketRateSeedsStableCurve(t *testing.T) {
	out, err := testStrategy().Calculate(Input{
		AvailableLiquidity: uint256.NewInt(100),
		MarketBorrowRate:   wad("0.05"),
	})
	require.NoError(t, err)
	require.Equal(t, wad("0.05"), out.StableBorrowRate)
}

func TestValidate(t *testing.T) {
	s := testStrategy()
	require.NoError(t, s.Validate())

	s.OptimalUtilization.Clear()
	require.ErrorIs(t, s.Validate(), ErrInvalidStrategy)

	s.OptimalUtilization.Set(wad("1"))
	require.ErrorIs(t, s.Validate(), ErrInvalidStrategy)

	s.OptimalUtilization.Set(wad("1.1"))
	require.ErrorIs(t, s.Validate(), ErrInvalidStrategy)

	s.OptimalUtilization.Set(wad("0.999999999999999999"))
	require.NoError(t, s.Validate())
}
