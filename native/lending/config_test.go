package lending

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func TestReserveConfigurationRoundTrip(t *testing.T) {
	params := ReserveParams{
		LTV:                    7500,
		LiquidationThreshold:   8000,
		LiquidationBonus:       10500,
		Decimals:               6,
		Active:                 true,
		Frozen:                 true,
		BorrowingEnabled:       false,
		StableBorrowingEnabled: true,
		ReserveFactor:          1000,
		SupplyCapUSD:           maxCap,
		BorrowCapUSD:           5_000_000,
		FlashLoanLimitUSD:      1,
	}
	cfg, err := NewReserveConfiguration(params)
	require.NoError(t, err)
	require.Equal(t, params, cfg.Params())

	restored, err := ReserveConfigurationFromWord(cfg.Word())
	require.NoError(t, err)
	require.Equal(t, cfg, restored)

	word := cfg.Word()
	require.EqualValues(t, 7500, new(uint256.Int).And(word, uint256.NewInt(0xffff)).Uint64())
	require.EqualValues(t, 8000, new(uint256.Int).And(new(uint256.Int).Rsh(word, 16), uint256.NewInt(0xffff)).Uint64())
	require.EqualValues(t, 6, new(uint256.Int).And(new(uint256.Int).Rsh(word, 48), uint256.NewInt(0xff)).Uint64())
	require.EqualValues(t, 0b1011, new(uint256.Int).And(new(uint256.Int).Rsh(word, 56), uint256.NewInt(0xf)).Uint64())
	require.EqualValues(t, 1, new(uint256.Int).Rsh(word, 176).Uint64())
}

func TestReserveConfigurationFieldsAreIndependent(t *testing.T) {
	cfg, err := NewReserveConfiguration(ReserveParams{Decimals: 18, Active: true})
	require.NoError(t, err)
	require.Zero(t, cfg.LTV())
	require.Zero(t, cfg.LiquidationThreshold())
	require.True(t, cfg.Active())
	require.False(t, cfg.Frozen())
	require.False(t, cfg.BorrowingEnabled())

	cfg.setFlag(frozenBit, true)
	cfg.setField(borrowCapOffset, capWidth, 42)
	cfg.setField(reserveFactorOffset, bpsWidth, 2000)
	require.True(t, cfg.Frozen())
	require.True(t, cfg.Active())
	require.EqualValues(t, 42, cfg.BorrowCapUSD())
	require.EqualValues(t, 2000, cfg.ReserveFactor())
	require.Zero(t, cfg.SupplyCapUSD())
	require.Zero(t, cfg.FlashLoanLimitUSD())
	require.EqualValues(t, 18, cfg.Decimals())

	cfg.setField(borrowCapOffset, capWidth, 7)
	cfg.setFlag(frozenBit, false)
	require.EqualValues(t, 7, cfg.BorrowCapUSD())
	require.False(t, cfg.Frozen())
}

func TestReserveParamsValidate(t *testing.T) {
	base := ReserveParams{LTV: 7500, LiquidationThreshold: 8000, LiquidationBonus: 10500, Decimals: 18, ReserveFactor: 1000}
	require.NoError(t, base.Validate())

	cases := map[string]func(p *ReserveParams){
		"ltv above threshold":     func(p *ReserveParams) { p.LTV = 8500 },
		"threshold above 100%":    func(p *ReserveParams) { p.LTV = 0; p.LiquidationThreshold = 10001 },
		"bonus not above 100%":    func(p *ReserveParams) { p.LiquidationBonus = 10000 },
		"no liquidation margin":   func(p *ReserveParams) { p.LiquidationThreshold = 9800; p.LiquidationBonus = 10300 },
		"bonus without threshold": func(p *ReserveParams) { p.LTV = 0; p.LiquidationThreshold = 0 },
		"reserve factor":          func(p *ReserveParams) { p.ReserveFactor = 10001 },
		"decimals":                func(p *ReserveParams) { p.Decimals = 37 },
		"supply cap":              func(p *ReserveParams) { p.SupplyCapUSD = maxCap + 1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := base
			mutate(&p)
			require.ErrorIs(t, p.Validate(), ErrInvalidConfiguration)
			_, err := NewReserveConfiguration(p)
			require.ErrorIs(t, err, ErrInvalidConfiguration)
		})
	}

	// A reserve that cannot back loans carries neither threshold nor bonus.
	require.NoError(t, ReserveParams{Decimals: 8}.Validate())
}

func TestReserveConfigurationFromInvalidWord(t *testing.T) {
	// LTV 9000 with a zero liquidation threshold.
	_, err := ReserveConfigurationFromWord(uint256.NewInt(9000))
	require.ErrorIs(t, err, ErrInvalidConfiguration)

	cfg, err := ReserveConfigurationFromWord(nil)
	require.NoError(t, err)
	require.Equal(t, ReserveParams{}, cfg.Params())
}

func TestProtocolParamsValidate(t *testing.T) {
	params := DefaultProtocolParams(custodyAddr, treasuryAddr)
	require.NoError(t, params.Validate())
	require.Equal(t, "950000000000000000", params.FullCloseHealthFactor.Dec())

	same := DefaultProtocolParams(custodyAddr, custodyAddr)
	require.ErrorIs(t, same.Validate(), ErrInvalidParams)

	closeFactor := params
	closeFactor.CloseFactor = 0
	require.ErrorIs(t, closeFactor.Validate(), ErrInvalidParams)

	premium := params
	premium.FlashLoanPremium = 10001
	require.ErrorIs(t, premium.Validate(), ErrInvalidParams)

	_, err := NewEngine(NewProtocolState(), ProtocolParams{})
	require.ErrorIs(t, err, ErrInvalidParams)
	_, err = NewEngine(nil, params)
	require.ErrorIs(t, err, ErrNilState)
}
