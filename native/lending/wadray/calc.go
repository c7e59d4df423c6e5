package wadray

import "github.com/holiman/uint256"

// Calc chains fixed-point operations and keeps the first error it meets.
// Once an error is recorded every further operation returns zero, so callers
// can write a whole expression and check Err once at the end.
type Calc struct {
	err error
}

// Err returns the first error recorded by the calculator.
func (c *Calc) Err() error { return c.err }

func (c *Calc) record(out *uint256.Int, err error) *uint256.Int {
	if err != nil {
		if c.err == nil {
			c.err = err
		}
		return new(uint256.Int)
	}
	return out
}

func (c *Calc) failed() bool { return c.err != nil }

// Add returns a+b.
func (c *Calc) Add(a, b *uint256.Int) *uint256.Int {
	if c.failed() {
		return new(uint256.Int)
	}
	out, overflow := new(uint256.Int).AddOverflow(orZero(a), orZero(b))
	if overflow {
		return c.record(nil, ErrOverflow)
	}
	return out
}

// Sub returns a-b and records ErrUnderflow when b > a.
func (c *Calc) Sub(a, b *uint256.Int) *uint256.Int {
	if c.failed() {
		return new(uint256.Int)
	}
	out, underflow := new(uint256.Int).SubOverflow(orZero(a), orZero(b))
	if underflow {
		return c.record(nil, ErrUnderflow)
	}
	return out
}

// SubFloor returns a-b, or zero when b > a. It is used where independently
// rounded balances may drift apart by a unit.
func (c *Calc) SubFloor(a, b *uint256.Int) *uint256.Int {
	if c.failed() {
		return new(uint256.Int)
	}
	a, b = orZero(a), orZero(b)
	if b.Gt(a) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(a, b)
}

// Mul returns a*b.
func (c *Calc) Mul(a, b *uint256.Int) *uint256.Int {
	if c.failed() {
		return new(uint256.Int)
	}
	out, overflow := new(uint256.Int).MulOverflow(orZero(a), orZero(b))
	if overflow {
		return c.record(nil, ErrOverflow)
	}
	return out
}

// MulDiv returns a*b/d rounded half up.
func (c *Calc) MulDiv(a, b, d *uint256.Int) *uint256.Int {
	if c.failed() {
		return new(uint256.Int)
	}
	return c.record(MulDiv(a, b, d))
}

// MulDivDown returns a*b/d rounded toward zero.
func (c *Calc) MulDivDown(a, b, d *uint256.Int) *uint256.Int {
	if c.failed() {
		return new(uint256.Int)
	}
	return c.record(MulDivDown(a, b, d))
}

// WadMul wraps WadMul.
func (c *Calc) WadMul(a, b *uint256.Int) *uint256.Int {
	if c.failed() {
		return new(uint256.Int)
	}
	return c.record(WadMul(a, b))
}

// WadDiv wraps WadDiv.
func (c *Calc) WadDiv(a, b *uint256.Int) *uint256.Int {
	if c.failed() {
		return new(uint256.Int)
	}
	return c.record(WadDiv(a, b))
}

// RayMul wraps RayMul.
func (c *Calc) RayMul(a, b *uint256.Int) *uint256.Int {
	if c.failed() {
		return new(uint256.Int)
	}
	return c.record(RayMul(a, b))
}

// RayDiv wraps RayDiv.
func (c *Calc) RayDiv(a, b *uint256.Int) *uint256.Int {
	if c.failed() {
		return new(uint256.Int)
	}
	return c.record(RayDiv(a, b))
}

// WadToRay wraps WadToRay.
func (c *Calc) WadToRay(a *uint256.Int) *uint256.Int {
	if c.failed() {
		return new(uint256.Int)
	}
	return c.record(WadToRay(a))
}

// RayToWad wraps RayToWad.
func (c *Calc) RayToWad(a *uint256.Int) *uint256.Int {
	if c.failed() {
		return new(uint256.Int)
	}
	return c.record(RayToWad(a))
}

// PercentMul wraps PercentMul.
func (c *Calc) PercentMul(value *uint256.Int, bps uint64) *uint256.Int {
	if c.failed() {
		return new(uint256.Int)
	}
	return c.record(PercentMul(value, bps))
}

// PercentDiv wraps PercentDiv.
func (c *Calc) PercentDiv(value *uint256.Int, bps uint64) *uint256.Int {
	if c.failed() {
		return new(uint256.Int)
	}
	return c.record(PercentDiv(value, bps))
}

// LinearInterest wraps LinearInterest.
func (c *Calc) LinearInterest(rate *uint256.Int, from, to uint64) *uint256.Int {
	if c.failed() {
		return new(uint256.Int)
	}
	return c.record(LinearInterest(rate, from, to))
}

// CompoundedInterest wraps CompoundedInterest.
func (c *Calc) CompoundedInterest(rate *uint256.Int, from, to uint64) *uint256.Int {
	if c.failed() {
		return new(uint256.Int)
	}
	return c.record(CompoundedInterest(rate, from, to))
}

func orZero(x *uint256.Int) *uint256.Int {
	if x == nil {
		return new(uint256.Int)
	}
	return x
}
