package wadray

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

var (
	wadExp     = decimal.New(1, 18)
	percentExp = decimal.New(PercentageFactor, 0)
)

// ParseUnits converts a human decimal such as "12.5" into an integer amount
// with the given number of decimals. Fractions finer than the unit are
// rejected rather than truncated.
func ParseUnits(value string, decimals uint8) (*uint256.Int, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("wadray: parse %q: %w", value, err)
	}
	return fromDecimal(d.Shift(int32(decimals)), value)
}

// ParseWad converts a decimal fraction such as "0.04" into a wad.
func ParseWad(value string) (*uint256.Int, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("wadray: parse %q: %w", value, err)
	}
	return fromDecimal(d.Mul(wadExp), value)
}

// MustParseWad is ParseWad for constants; it panics on malformed input.
func MustParseWad(value string) *uint256.Int {
	out, err := ParseWad(value)
	if err != nil {
		panic(err)
	}
	return out
}

// ParseBps converts a decimal fraction such as "0.75" into basis points.
func ParseBps(value string) (uint64, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, fmt.Errorf("wadray: parse %q: %w", value, err)
	}
	out, err := fromDecimal(d.Mul(percentExp), value)
	if err != nil {
		return 0, err
	}
	if !out.IsUint64() {
		return 0, fmt.Errorf("wadray: %q out of range", value)
	}
	return out.Uint64(), nil
}

// FormatUnits renders an integer amount with the given decimals as a
// human-readable decimal string.
func FormatUnits(value *uint256.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	return decimal.NewFromBigInt(value.ToBig(), -int32(decimals)).String()
}

// ToFloat converts a fixed-point value into a float64 for reporting only.
func ToFloat(value *uint256.Int, decimals uint8) float64 {
	if value == nil {
		return 0
	}
	f, _ := decimal.NewFromBigInt(value.ToBig(), -int32(decimals)).Float64()
	return f
}

func fromDecimal(d decimal.Decimal, raw string) (*uint256.Int, error) {
	if d.Sign() < 0 {
		return nil, fmt.Errorf("wadray: %q is negative", raw)
	}
	if !d.Equal(d.Truncate(0)) {
		return nil, fmt.Errorf("wadray: %q has too many decimal places", raw)
	}
	bi := d.BigInt()
	if bi.Cmp(new(big.Int).Lsh(big.NewInt(1), 256)) >= 0 {
		return nil, fmt.Errorf("wadray: %q: %w", raw, ErrOverflow)
	}
	out, overflow := uint256.FromBig(bi)
	if overflow {
		return nil, fmt.Errorf("wadray: %q: %w", raw, ErrOverflow)
	}
	return out, nil
}
