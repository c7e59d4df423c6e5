// Package rates implements the two-slope interest rate strategy used by every
// reserve. Parameters and outputs are annual wad rates; the calculation runs
// in ray precision internally.
package rates

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"meldlend/native/lending/wadray"
)

var (
	ErrInvalidStrategy       = errors.New("rates: invalid strategy")
	ErrInsufficientLiquidity = errors.New("rates: liquidity taken exceeds available liquidity")
)

// Strategy describes a kinked utilisation curve. Below OptimalUtilization the
// variable rate rises along VariableRateSlope1; above it the excess
// utilisation is priced along VariableRateSlope2. The stable curve mirrors it
// with its own slopes on top of the stable base rate.
type Strategy struct {
	OptimalUtilization     uint256.Int
	BaseVariableBorrowRate uint256.Int
	VariableRateSlope1     uint256.Int
	VariableRateSlope2     uint256.Int
	StableRateSlope1       uint256.Int
	StableRateSlope2       uint256.Int
}

// NewStrategy copies the supplied wad parameters into a Strategy.
func NewStrategy(optimal, baseVariable, variableSlope1, variableSlope2, stableSlope1, stableSlope2 *uint256.Int) Strategy {
	var s Strategy
	s.OptimalUtilization.Set(orZero(optimal))
	s.BaseVariableBorrowRate.Set(orZero(baseVariable))
	s.VariableRateSlope1.Set(orZero(variableSlope1))
	s.VariableRateSlope2.Set(orZero(variableSlope2))
	s.StableRateSlope1.Set(orZero(stableSlope1))
	s.StableRateSlope2.Set(orZero(stableSlope2))
	return s
}

// Validate checks the optimal utilisation lies strictly inside (0, 1). The
// excess slope divides by 1 - optimal.
func (s Strategy) Validate() error {
	if s.OptimalUtilization.IsZero() {
		return fmt.Errorf("%w: optimal utilization must be positive", ErrInvalidStrategy)
	}
	if !s.OptimalUtilization.Lt(wadray.Wad()) {
		return fmt.Errorf("%w: optimal utilization must be below 100%%", ErrInvalidStrategy)
	}
	return nil
}

// Input captures the reserve state a rate recomputation depends on. Nil
// amounts are treated as zero.
type Input struct {
	AvailableLiquidity      *uint256.Int
	LiquidityAdded          *uint256.Int
	LiquidityTaken          *uint256.Int
	TotalStableDebt         *uint256.Int
	TotalVariableDebt       *uint256.Int
	AverageStableBorrowRate *uint256.Int
	// ReserveFactor is the share of interest routed to the treasury in bps.
	ReserveFactor uint64
	// MarketBorrowRate overrides the stable base rate when non-nil.
	MarketBorrowRate *uint256.Int
}

// Rates holds annual wad rates produced by Calculate.
type Rates struct {
	LiquidityRate      *uint256.Int
	StableBorrowRate   *uint256.Int
	VariableBorrowRate *uint256.Int
	Utilization        *uint256.Int
}

// Calculate prices the reserve for the liquidity it will hold once the
// pending cash movement has been applied.
func (s Strategy) Calculate(in Input) (Rates, error) {
	if err := s.Validate(); err != nil {
		return Rates{}, err
	}
	var c wadray.Calc

	available := c.Add(in.AvailableLiquidity, in.LiquidityAdded)
	if orZero(in.LiquidityTaken).Gt(available) {
		return Rates{}, ErrInsufficientLiquidity
	}
	available = c.Sub(available, in.LiquidityTaken)
	totalDebt := c.Add(in.TotalStableDebt, in.TotalVariableDebt)

	optimal := c.WadToRay(&s.OptimalUtilization)
	excess := c.Sub(wadray.Ray(), optimal)

	utilization := new(uint256.Int)
	if !totalDebt.IsZero() {
		utilization = c.RayDiv(totalDebt, c.Add(available, totalDebt))
	}

	stableRate := c.WadToRay(&s.BaseVariableBorrowRate)
	if in.MarketBorrowRate != nil {
		stableRate = c.WadToRay(in.MarketBorrowRate)
	}
	stableSlope1 := c.WadToRay(&s.StableRateSlope1)
	stableSlope2 := c.WadToRay(&s.StableRateSlope2)
	variableBase := c.WadToRay(&s.BaseVariableBorrowRate)
	variableSlope1 := c.WadToRay(&s.VariableRateSlope1)
	variableSlope2 := c.WadToRay(&s.VariableRateSlope2)

	var variableRate *uint256.Int
	if utilization.Gt(optimal) {
		excessRatio := c.RayDiv(c.Sub(utilization, optimal), excess)
		stableRate = c.Add(c.Add(stableRate, stableSlope1), c.RayMul(stableSlope2, excessRatio))
		variableRate = c.Add(c.Add(variableBase, variableSlope1), c.RayMul(variableSlope2, excessRatio))
	} else {
		stableRate = c.Add(stableRate, c.RayMul(stableSlope1, c.RayDiv(utilization, optimal)))
		variableRate = c.Add(variableBase, c.RayDiv(c.RayMul(utilization, variableSlope1), optimal))
	}

	overall := overallBorrowRate(&c, in.TotalStableDebt, in.TotalVariableDebt, variableRate, c.WadToRay(in.AverageStableBorrowRate))
	liquidityRate := c.PercentMul(c.RayMul(overall, utilization), wadray.PercentageFactor-min(in.ReserveFactor, wadray.PercentageFactor))

	out := Rates{
		LiquidityRate:      c.RayToWad(liquidityRate),
		StableBorrowRate:   c.RayToWad(stableRate),
		VariableBorrowRate: c.RayToWad(variableRate),
		Utilization:        c.RayToWad(utilization),
	}
	if err := c.Err(); err != nil {
		return Rates{}, fmt.Errorf("rates: %w", err)
	}
	return out, nil
}

// overallBorrowRate is the debt-weighted average of the variable rate and the
// average stable rate, both in ray.
func overallBorrowRate(c *wadray.Calc, stableDebt, variableDebt, variableRate, averageStableRate *uint256.Int) *uint256.Int {
	total := c.Add(stableDebt, variableDebt)
	if total.IsZero() {
		return new(uint256.Int)
	}
	weightedVariable := c.RayMul(c.WadToRay(variableDebt), variableRate)
	weightedStable := c.RayMul(c.WadToRay(stableDebt), averageStableRate)
	return c.RayDiv(c.Add(weightedVariable, weightedStable), c.WadToRay(total))
}

func orZero(x *uint256.Int) *uint256.Int {
	if x == nil {
		return new(uint256.Int)
	}
	return x
}
