// Package wadray implements the fixed-point arithmetic used by the lending
// engine. Amounts and externally visible rates live in the wad domain (1e18),
// indexes live in the ray domain (1e27) and risk parameters are expressed in
// basis points (1e4). Every operation rounds half up and reports overflow
// instead of wrapping.
package wadray

import (
	"errors"

	"github.com/holiman/uint256"
)

var (
	// ErrOverflow is returned when an intermediate or final value does not fit
	// in 256 bits.
	ErrOverflow = errors.New("wadray: arithmetic overflow")
	// ErrUnderflow is returned when a subtraction would go below zero.
	ErrUnderflow = errors.New("wadray: arithmetic underflow")
	// ErrDivisionByZero is returned when a divisor is zero.
	ErrDivisionByZero = errors.New("wadray: division by zero")
)

// PercentageFactor is the basis point denominator (100.00%).
const PercentageFactor = 10_000

var (
	wad         = uint256.NewInt(1_000_000_000_000_000_000)
	halfWad     = uint256.NewInt(500_000_000_000_000_000)
	ray         = uint256.MustFromDecimal("1000000000000000000000000000")
	halfRay     = uint256.MustFromDecimal("500000000000000000000000000")
	wadRayRatio = uint256.NewInt(1_000_000_000)
	halfRatio   = uint256.NewInt(500_000_000)
	percentage  = uint256.NewInt(PercentageFactor)
	halfPercent = uint256.NewInt(PercentageFactor / 2)
	maxUint256  = new(uint256.Int).SetAllOne()
)

// Wad returns a fresh copy of 1e18.
func Wad() *uint256.Int { return new(uint256.Int).Set(wad) }

// HalfWad returns a fresh copy of 0.5e18.
func HalfWad() *uint256.Int { return new(uint256.Int).Set(halfWad) }

// Ray returns a fresh copy of 1e27.
func Ray() *uint256.Int { return new(uint256.Int).Set(ray) }

// HalfRay returns a fresh copy of 0.5e27.
func HalfRay() *uint256.Int { return new(uint256.Int).Set(halfRay) }

// Max returns the largest representable value.
func Max() *uint256.Int { return new(uint256.Int).Set(maxUint256) }

// IsMax reports whether x is the largest representable value.
func IsMax(x *uint256.Int) bool { return x != nil && x.Eq(maxUint256) }

// WadMul multiplies two wads, rounding half up.
func WadMul(a, b *uint256.Int) (*uint256.Int, error) {
	return mulDivHalfUp(a, b, wad, halfWad)
}

// WadDiv divides two wads, rounding half up.
func WadDiv(a, b *uint256.Int) (*uint256.Int, error) {
	return divHalfUp(a, wad, b)
}

// RayMul multiplies two rays, rounding half up.
func RayMul(a, b *uint256.Int) (*uint256.Int, error) {
	return mulDivHalfUp(a, b, ray, halfRay)
}

// RayDiv divides two rays, rounding half up.
func RayDiv(a, b *uint256.Int) (*uint256.Int, error) {
	return divHalfUp(a, ray, b)
}

// RayToWad converts a ray down to a wad, rounding half up.
func RayToWad(a *uint256.Int) (*uint256.Int, error) {
	if a == nil {
		return new(uint256.Int), nil
	}
	sum, overflow := new(uint256.Int).AddOverflow(a, halfRatio)
	if overflow {
		return nil, ErrOverflow
	}
	return sum.Div(sum, wadRayRatio), nil
}

// WadToRay converts a wad up to a ray.
func WadToRay(a *uint256.Int) (*uint256.Int, error) {
	if a == nil {
		return new(uint256.Int), nil
	}
	out, overflow := new(uint256.Int).MulOverflow(a, wadRayRatio)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// PercentMul applies a basis point percentage to value, rounding half up.
func PercentMul(value *uint256.Int, bps uint64) (*uint256.Int, error) {
	if value == nil || value.IsZero() || bps == 0 {
		return new(uint256.Int), nil
	}
	return mulDivHalfUp(value, uint256.NewInt(bps), percentage, halfPercent)
}

// PercentDiv divides value by a basis point percentage, rounding half up.
func PercentDiv(value *uint256.Int, bps uint64) (*uint256.Int, error) {
	if bps == 0 {
		return nil, ErrDivisionByZero
	}
	return divHalfUp(value, percentage, uint256.NewInt(bps))
}

// MulDiv computes a*b/c rounding half up.
func MulDiv(a, b, c *uint256.Int) (*uint256.Int, error) {
	if c == nil || c.IsZero() {
		return nil, ErrDivisionByZero
	}
	return mulDivHalfUp(a, b, c, new(uint256.Int).Rsh(c, 1))
}

// MulDivDown computes a*b/c rounding toward zero.
func MulDivDown(a, b, c *uint256.Int) (*uint256.Int, error) {
	if c == nil || c.IsZero() {
		return nil, ErrDivisionByZero
	}
	if a == nil || b == nil || a.IsZero() || b.IsZero() {
		return new(uint256.Int), nil
	}
	product, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return product.Div(product, c), nil
}

// Pow10 returns 10^n.
func Pow10(n uint8) (*uint256.Int, error) {
	out := uint256.NewInt(1)
	ten := uint256.NewInt(10)
	for i := uint8(0); i < n; i++ {
		if _, overflow := out.MulOverflow(out, ten); overflow {
			return nil, ErrOverflow
		}
	}
	return out, nil
}

func mulDivHalfUp(a, b, denominator, half *uint256.Int) (*uint256.Int, error) {
	if a == nil || b == nil || a.IsZero() || b.IsZero() {
		return new(uint256.Int), nil
	}
	product, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	if _, overflow = product.AddOverflow(product, half); overflow {
		return nil, ErrOverflow
	}
	return product.Div(product, denominator), nil
}

func divHalfUp(a, scale, b *uint256.Int) (*uint256.Int, error) {
	if b == nil || b.IsZero() {
		return nil, ErrDivisionByZero
	}
	if a == nil || a.IsZero() {
		return new(uint256.Int), nil
	}
	numerator, overflow := new(uint256.Int).MulOverflow(a, scale)
	if overflow {
		return nil, ErrOverflow
	}
	half := new(uint256.Int).Rsh(b, 1)
	if _, overflow = numerator.AddOverflow(numerator, half); overflow {
		return nil, ErrOverflow
	}
	return numerator.Div(numerator, b), nil
}
