package lending

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"meldlend/core/events"
	"meldlend/native/lending/rates"
	"meldlend/native/lending/wadray"
)

// maxIndex bounds both reserve indexes to 128 bits so scaled balances keep
// ample headroom in 256-bit products.
var maxIndex = new(uint256.Int).SubUint64(new(uint256.Int).Lsh(uint256.NewInt(1), 128), 1)

// normalizedIncome returns the liquidity index as of now without touching r.
func normalizedIncome(r *Reserve, now uint64) (*uint256.Int, error) {
	if now <= r.LastUpdateTimestamp || r.CurrentLiquidityRate.IsZero() {
		return new(uint256.Int).Set(&r.LiquidityIndex), nil
	}
	var c wadray.Calc
	factor := c.LinearInterest(c.WadToRay(&r.CurrentLiquidityRate), r.LastUpdateTimestamp, now)
	index := c.RayMul(factor, &r.LiquidityIndex)
	if err := checkIndex(index, c.Err()); err != nil {
		return nil, err
	}
	return index, nil
}

// normalizedVariableDebt returns the variable borrow index as of now without
// touching r.
func normalizedVariableDebt(r *Reserve, now uint64) (*uint256.Int, error) {
	if now <= r.LastUpdateTimestamp || r.CurrentVariableBorrowRate.IsZero() || r.TotalScaledVariableDebt.IsZero() {
		return new(uint256.Int).Set(&r.VariableBorrowIndex), nil
	}
	var c wadray.Calc
	factor := c.CompoundedInterest(c.WadToRay(&r.CurrentVariableBorrowRate), r.LastUpdateTimestamp, now)
	index := c.RayMul(factor, &r.VariableBorrowIndex)
	if err := checkIndex(index, c.Err()); err != nil {
		return nil, err
	}
	return index, nil
}

func checkIndex(index *uint256.Int, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %w", ErrIndexOverflow, err)
	}
	if index.Gt(maxIndex) {
		return ErrIndexOverflow
	}
	return nil
}

// updateState advances a reserve's indexes to the engine timestamp and mints
// the reserve factor share of the newly accrued interest to the treasury. A
// second call within the same timestamp is a no-op.
func (e *Engine) updateState(tx *txn, r *Reserve) error {
	now := e.timestamp
	if now <= r.LastUpdateTimestamp {
		return nil
	}
	previousVariableIndex := new(uint256.Int).Set(&r.VariableBorrowIndex)

	if !r.CurrentLiquidityRate.IsZero() {
		index, err := normalizedIncome(r, now)
		if err != nil {
			return err
		}
		r.LiquidityIndex.Set(index)
	}
	if !r.TotalScaledVariableDebt.IsZero() {
		index, err := normalizedVariableDebt(r, now)
		if err != nil {
			return err
		}
		r.VariableBorrowIndex.Set(index)
	}

	if err := e.mintToTreasury(tx, r, previousVariableIndex, now); err != nil {
		return err
	}
	r.LastUpdateTimestamp = now
	return nil
}

// mintToTreasury credits the treasury with reserveFactor of the debt accrued
// since the last update, across both variable and stable borrowers.
func (e *Engine) mintToTreasury(tx *txn, r *Reserve, previousVariableIndex *uint256.Int, now uint64) error {
	factor := r.Configuration.ReserveFactor()
	if factor == 0 {
		return nil
	}
	var c wadray.Calc
	previousVariable := c.RayMul(&r.TotalScaledVariableDebt, previousVariableIndex)
	currentVariable := c.RayMul(&r.TotalScaledVariableDebt, &r.VariableBorrowIndex)

	averageRate := c.WadToRay(&r.AverageStableBorrowRate)
	previousStable := c.RayMul(&r.TotalPrincipalStableDebt,
		c.CompoundedInterest(averageRate, r.StableDebtLastUpdateTimestamp, r.LastUpdateTimestamp))
	currentStable := c.RayMul(&r.TotalPrincipalStableDebt,
		c.CompoundedInterest(averageRate, r.StableDebtLastUpdateTimestamp, now))

	accrued := c.SubFloor(c.Add(currentVariable, currentStable), c.Add(previousVariable, previousStable))
	amount := c.PercentMul(accrued, factor)
	if err := c.Err(); err != nil {
		return mathErr(err)
	}
	if amount.IsZero() {
		return nil
	}
	scaled, err := wadray.RayDiv(amount, &r.LiquidityIndex)
	if err != nil {
		return mathErr(err)
	}
	if scaled.IsZero() {
		return nil
	}
	treasury := tx.collateralPosition(e.params.Treasury, r.Asset)
	if err := addTo(&treasury.ScaledBalance, scaled); err != nil {
		return err
	}
	if err := addTo(&r.TotalScaledSupply, scaled); err != nil {
		return err
	}
	tx.emit(events.LendingTreasuryAccrued{Asset: r.Asset, Treasury: e.params.Treasury, Amount: amount})
	return nil
}

// cumulateToLiquidityIndex spreads amount over the current suppliers by
// bumping the liquidity index.
func cumulateToLiquidityIndex(r *Reserve, totalLiquidity, amount *uint256.Int) error {
	if totalLiquidity.IsZero() || amount.IsZero() {
		return nil
	}
	var c wadray.Calc
	ratio := c.RayDiv(c.WadToRay(amount), c.WadToRay(totalLiquidity))
	index := c.RayMul(c.Add(ratio, wadray.Ray()), &r.LiquidityIndex)
	if err := checkIndex(index, c.Err()); err != nil {
		return err
	}
	r.LiquidityIndex.Set(index)
	return nil
}

// updateInterestRates reprices the reserve for the liquidity it will hold
// after added flows in and taken flows out. Callers invoke it before moving
// the underlying.
func (e *Engine) updateInterestRates(tx *txn, r *Reserve, added, taken *uint256.Int) error {
	now := e.timestamp
	var c wadray.Calc
	totalVariable := c.RayMul(&r.TotalScaledVariableDebt, &r.VariableBorrowIndex)
	if err := c.Err(); err != nil {
		return mathErr(err)
	}
	totalStable, err := totalStableDebt(r, now)
	if err != nil {
		return err
	}
	out, err := r.Strategy.Calculate(rates.Input{
		AvailableLiquidity:      &r.AvailableLiquidity,
		LiquidityAdded:          added,
		LiquidityTaken:          taken,
		TotalStableDebt:         totalStable,
		TotalVariableDebt:       totalVariable,
		AverageStableBorrowRate: &r.AverageStableBorrowRate,
		ReserveFactor:           r.Configuration.ReserveFactor(),
		MarketBorrowRate:        e.marketBorrowRate(r.Asset),
	})
	if err != nil {
		if errors.Is(err, rates.ErrInsufficientLiquidity) {
			return fmt.Errorf("%w: %w", ErrNotEnoughLiquidity, err)
		}
		return mathErr(err)
	}
	r.CurrentLiquidityRate.Set(out.LiquidityRate)
	r.CurrentStableBorrowRate.Set(out.StableBorrowRate)
	r.CurrentVariableBorrowRate.Set(out.VariableBorrowRate)
	tx.utilization[r.Asset] = out.Utilization
	tx.emit(events.LendingReserveDataUpdated{
		Asset:               r.Asset,
		LiquidityRate:       out.LiquidityRate,
		StableBorrowRate:    out.StableBorrowRate,
		VariableBorrowRate:  out.VariableBorrowRate,
		LiquidityIndex:      new(uint256.Int).Set(&r.LiquidityIndex),
		VariableBorrowIndex: new(uint256.Int).Set(&r.VariableBorrowIndex),
	})
	return nil
}
