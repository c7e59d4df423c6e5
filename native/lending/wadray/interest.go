package wadray

import "github.com/holiman/uint256"

// SecondsPerYear is the annualisation basis for every rate in the engine.
const SecondsPerYear = 31_536_000

var secondsPerYear = uint256.NewInt(SecondsPerYear)

// LinearInterest returns the ray factor 1 + rate*dt/year for a ray annual
// rate accrued between from and to.
func LinearInterest(rate *uint256.Int, from, to uint64) (*uint256.Int, error) {
	if to <= from || rate == nil || rate.IsZero() {
		return Ray(), nil
	}
	accrued, overflow := new(uint256.Int).MulOverflow(rate, uint256.NewInt(to-from))
	if overflow {
		return nil, ErrOverflow
	}
	accrued.Div(accrued, secondsPerYear)
	if _, overflow = accrued.AddOverflow(accrued, ray); overflow {
		return nil, ErrOverflow
	}
	return accrued, nil
}

// CompoundedInterest approximates (1 + rate/year)^dt with the first three
// terms of the binomial expansion:
//
//	1 + x*r + x(x-1)/2*r^2 + x(x-1)(x-2)/6*r^3
//
// where r is the per-second ray rate. The truncation slightly undercounts
// interest for large dt, which favours borrowers.
func CompoundedInterest(rate *uint256.Int, from, to uint64) (*uint256.Int, error) {
	if to <= from || rate == nil || rate.IsZero() {
		return Ray(), nil
	}
	exp := to - from
	expMinusOne := exp - 1
	var expMinusTwo uint64
	if exp > 2 {
		expMinusTwo = exp - 2
	}

	ratePerSecond := new(uint256.Int).Div(rate, secondsPerYear)
	basePowerTwo, err := RayMul(ratePerSecond, ratePerSecond)
	if err != nil {
		return nil, err
	}
	basePowerThree, err := RayMul(basePowerTwo, ratePerSecond)
	if err != nil {
		return nil, err
	}

	var c Calc
	x := uint256.NewInt(exp)
	firstTerm := c.Mul(ratePerSecond, x)
	secondTerm := c.Mul(c.Mul(x, uint256.NewInt(expMinusOne)), basePowerTwo)
	secondTerm = new(uint256.Int).Div(secondTerm, uint256.NewInt(2))
	thirdTerm := c.Mul(c.Mul(c.Mul(x, uint256.NewInt(expMinusOne)), uint256.NewInt(expMinusTwo)), basePowerThree)
	thirdTerm = new(uint256.Int).Div(thirdTerm, uint256.NewInt(6))

	out := c.Add(c.Add(c.Add(Ray(), firstTerm), secondTerm), thirdTerm)
	if err := c.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
