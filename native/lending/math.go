package lending

import (
	"fmt"

	"github.com/holiman/uint256"

	"meldlend/native/lending/wadray"
)

func mathErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrMathOverflow, err)
}

func addTo(dst, amount *uint256.Int) error {
	if _, overflow := dst.AddOverflow(dst, amount); overflow {
		return ErrMathOverflow
	}
	return nil
}

// subFloorFrom subtracts amount from dst, stopping at zero. Scaled totals are
// rounded independently from the balances they sum, so the last holder out
// may find the total a unit short.
func subFloorFrom(dst, amount *uint256.Int) {
	if amount.Gt(dst) {
		dst.Clear()
		return
	}
	dst.Sub(dst, amount)
}

// usdValue converts amount of a token with the given decimals into wad USD.
func usdValue(amount, price *uint256.Int, decimals uint8) (*uint256.Int, error) {
	unit, err := wadray.Pow10(decimals)
	if err != nil {
		return nil, mathErr(err)
	}
	out, err := wadray.MulDivDown(amount, price, unit)
	if err != nil {
		return nil, mathErr(err)
	}
	return out, nil
}

// capExceeded reports whether value (wad USD) is above a whole-USD cap. A
// zero cap means uncapped.
func capExceeded(value *uint256.Int, capUSD uint64) bool {
	if capUSD == 0 {
		return false
	}
	limit := new(uint256.Int).Mul(uint256.NewInt(capUSD), wadray.Wad())
	return value.Gt(limit)
}
