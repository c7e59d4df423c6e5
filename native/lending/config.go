package lending

import (
	"fmt"

	"github.com/holiman/uint256"

	"meldlend/native/lending/wadray"
)

// Bit layout of ReserveConfiguration.
//
//	0-15    loan to value (bps)
//	16-31   liquidation threshold (bps)
//	32-47   liquidation bonus (bps)
//	48-55   decimals
//	56      active
//	57      frozen
//	58      borrowing enabled
//	59      stable rate borrowing enabled
//	64-79   reserve factor (bps)
//	80-127  supply cap (whole USD, 0 = uncapped)
//	128-175 borrow cap (whole USD, 0 = uncapped)
//	176-223 flash loan limit (whole USD, 0 = uncapped)
const (
	ltvOffset            = 0
	liquidationThreshOff = 16
	liquidationBonusOff  = 32
	decimalsOffset       = 48
	activeBit            = 56
	frozenBit            = 57
	borrowingBit         = 58
	stableBorrowingBit   = 59
	reserveFactorOffset  = 64
	supplyCapOffset      = 80
	borrowCapOffset      = 128
	flashLoanLimitOffset = 176
	bpsWidth             = 16
	decimalsWidth        = 8
	capWidth             = 48
	maxDecimals          = 36
	maxCap               = 1<<capWidth - 1
	maxBps               = 1<<bpsWidth - 1
)

// ReserveParams is the unpacked form of a ReserveConfiguration.
type ReserveParams struct {
	// LTV is the maximum borrowing power granted by the collateral in bps.
	LTV uint64
	// LiquidationThreshold is the collateral weight used by the health factor
	// in bps.
	LiquidationThreshold uint64
	// LiquidationBonus is the collateral premium paid to liquidators in bps,
	// 10500 meaning a 5% bonus.
	LiquidationBonus uint64
	// Decimals of the underlying asset.
	Decimals uint8
	// Active reserves accept every operation the other flags allow.
	Active bool
	// Frozen reserves accept repayments, withdrawals and liquidations only.
	Frozen bool
	// BorrowingEnabled gates new variable and stable borrows.
	BorrowingEnabled bool
	// StableBorrowingEnabled additionally gates stable rate borrows.
	StableBorrowingEnabled bool
	// ReserveFactor is the share of interest routed to the treasury in bps.
	ReserveFactor uint64
	// SupplyCapUSD bounds the total supplied value, in whole USD.
	SupplyCapUSD uint64
	// BorrowCapUSD bounds the total borrowed value, in whole USD.
	BorrowCapUSD uint64
	// FlashLoanLimitUSD bounds a single flash loan, in whole USD.
	FlashLoanLimitUSD uint64
}

// Validate enforces the risk parameter relationships a reserve must hold.
func (p ReserveParams) Validate() error {
	if p.LTV > p.LiquidationThreshold {
		return fmt.Errorf("%w: ltv %d above liquidation threshold %d", ErrInvalidConfiguration, p.LTV, p.LiquidationThreshold)
	}
	if p.LiquidationThreshold > wadray.PercentageFactor {
		return fmt.Errorf("%w: liquidation threshold %d above 100%%", ErrInvalidConfiguration, p.LiquidationThreshold)
	}
	if p.LiquidationThreshold != 0 {
		if p.LiquidationBonus <= wadray.PercentageFactor {
			return fmt.Errorf("%w: liquidation bonus %d must exceed 100%%", ErrInvalidConfiguration, p.LiquidationBonus)
		}
		if p.LiquidationThreshold*p.LiquidationBonus > wadray.PercentageFactor*wadray.PercentageFactor {
			return fmt.Errorf("%w: threshold %d with bonus %d leaves no margin for liquidation", ErrInvalidConfiguration, p.LiquidationThreshold, p.LiquidationBonus)
		}
	} else if p.LiquidationBonus != 0 {
		return fmt.Errorf("%w: liquidation bonus set without liquidation threshold", ErrInvalidConfiguration)
	}
	if p.LiquidationBonus > maxBps {
		return fmt.Errorf("%w: liquidation bonus %d out of range", ErrInvalidConfiguration, p.LiquidationBonus)
	}
	if p.ReserveFactor > wadray.PercentageFactor {
		return fmt.Errorf("%w: reserve factor %d above 100%%", ErrInvalidConfiguration, p.ReserveFactor)
	}
	if p.Decimals > maxDecimals {
		return fmt.Errorf("%w: %d decimals not supported", ErrInvalidConfiguration, p.Decimals)
	}
	if p.SupplyCapUSD > maxCap || p.BorrowCapUSD > maxCap || p.FlashLoanLimitUSD > maxCap {
		return fmt.Errorf("%w: cap out of range", ErrInvalidConfiguration)
	}
	return nil
}

// ReserveConfiguration packs the per-reserve risk parameters and flags into a
// single 256-bit word.
type ReserveConfiguration struct {
	data uint256.Int
}

// NewReserveConfiguration validates and packs the supplied parameters.
func NewReserveConfiguration(p ReserveParams) (ReserveConfiguration, error) {
	if err := p.Validate(); err != nil {
		return ReserveConfiguration{}, err
	}
	var c ReserveConfiguration
	c.setField(ltvOffset, bpsWidth, p.LTV)
	c.setField(liquidationThreshOff, bpsWidth, p.LiquidationThreshold)
	c.setField(liquidationBonusOff, bpsWidth, p.LiquidationBonus)
	c.setField(decimalsOffset, decimalsWidth, uint64(p.Decimals))
	c.setFlag(activeBit, p.Active)
	c.setFlag(frozenBit, p.Frozen)
	c.setFlag(borrowingBit, p.BorrowingEnabled)
	c.setFlag(stableBorrowingBit, p.StableBorrowingEnabled)
	c.setField(reserveFactorOffset, bpsWidth, p.ReserveFactor)
	c.setField(supplyCapOffset, capWidth, p.SupplyCapUSD)
	c.setField(borrowCapOffset, capWidth, p.BorrowCapUSD)
	c.setField(flashLoanLimitOffset, capWidth, p.FlashLoanLimitUSD)
	return c, nil
}

// ReserveConfigurationFromWord rebuilds a configuration from its packed form.
func ReserveConfigurationFromWord(word *uint256.Int) (ReserveConfiguration, error) {
	var c ReserveConfiguration
	if word != nil {
		c.data.Set(word)
	}
	if err := c.Params().Validate(); err != nil {
		return ReserveConfiguration{}, err
	}
	return c, nil
}

// Word returns a copy of the packed configuration.
func (c ReserveConfiguration) Word() *uint256.Int { return new(uint256.Int).Set(&c.data) }

// Params unpacks the configuration.
func (c ReserveConfiguration) Params() ReserveParams {
	return ReserveParams{
		LTV:                    c.LTV(),
		LiquidationThreshold:   c.LiquidationThreshold(),
		LiquidationBonus:       c.LiquidationBonus(),
		Decimals:               c.Decimals(),
		Active:                 c.Active(),
		Frozen:                 c.Frozen(),
		BorrowingEnabled:       c.BorrowingEnabled(),
		StableBorrowingEnabled: c.StableBorrowingEnabled(),
		ReserveFactor:          c.ReserveFactor(),
		SupplyCapUSD:           c.SupplyCapUSD(),
		BorrowCapUSD:           c.BorrowCapUSD(),
		FlashLoanLimitUSD:      c.FlashLoanLimitUSD(),
	}
}

func (c ReserveConfiguration) LTV() uint64 { return c.field(ltvOffset, bpsWidth) }

func (c ReserveConfiguration) LiquidationThreshold() uint64 {
	return c.field(liquidationThreshOff, bpsWidth)
}

func (c ReserveConfiguration) LiquidationBonus() uint64 { return c.field(liquidationBonusOff, bpsWidth) }

func (c ReserveConfiguration) Decimals() uint8 { return uint8(c.field(decimalsOffset, decimalsWidth)) }

func (c ReserveConfiguration) Active() bool { return c.flag(activeBit) }

func (c ReserveConfiguration) Frozen() bool { return c.flag(frozenBit) }

func (c ReserveConfiguration) BorrowingEnabled() bool { return c.flag(borrowingBit) }

func (c ReserveConfiguration) StableBorrowingEnabled() bool { return c.flag(stableBorrowingBit) }

func (c ReserveConfiguration) ReserveFactor() uint64 { return c.field(reserveFactorOffset, bpsWidth) }

func (c ReserveConfiguration) SupplyCapUSD() uint64 { return c.field(supplyCapOffset, capWidth) }

func (c ReserveConfiguration) BorrowCapUSD() uint64 { return c.field(borrowCapOffset, capWidth) }

func (c ReserveConfiguration) FlashLoanLimitUSD() uint64 {
	return c.field(flashLoanLimitOffset, capWidth)
}

func (c ReserveConfiguration) field(offset, width uint) uint64 {
	v := new(uint256.Int).Rsh(&c.data, offset)
	mask := new(uint256.Int).SubUint64(new(uint256.Int).Lsh(uint256.NewInt(1), width), 1)
	return v.And(v, mask).Uint64()
}

func (c *ReserveConfiguration) setField(offset, width uint, value uint64) {
	mask := new(uint256.Int).SubUint64(new(uint256.Int).Lsh(uint256.NewInt(1), width), 1)
	shiftedMask := new(uint256.Int).Lsh(mask, offset)
	c.data.And(&c.data, new(uint256.Int).Not(shiftedMask))
	v := new(uint256.Int).And(uint256.NewInt(value), mask)
	c.data.Or(&c.data, v.Lsh(v, offset))
}

func (c ReserveConfiguration) flag(bit uint) bool { return c.field(bit, 1) == 1 }

func (c *ReserveConfiguration) setFlag(bit uint, on bool) {
	var v uint64
	if on {
		v = 1
	}
	c.setField(bit, 1, v)
}
