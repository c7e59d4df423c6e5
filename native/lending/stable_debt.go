package lending

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"meldlend/native/lending/wadray"
)

// Stable debt compounds per user at the rate locked in when it was borrowed.
// The reserve tracks the aggregate as a principal plus a principal-weighted
// average rate, both rebased on every mint and burn.

func stableDebtBalance(p *StableDebtPosition, now uint64) (*uint256.Int, error) {
	if p.Principal.IsZero() {
		return new(uint256.Int), nil
	}
	var c wadray.Calc
	factor := c.CompoundedInterest(c.WadToRay(&p.Rate), p.LastUpdateTimestamp, now)
	out := c.RayMul(&p.Principal, factor)
	if err := c.Err(); err != nil {
		return nil, mathErr(err)
	}
	return out, nil
}

func totalStableDebt(r *Reserve, now uint64) (*uint256.Int, error) {
	if r.TotalPrincipalStableDebt.IsZero() {
		return new(uint256.Int), nil
	}
	var c wadray.Calc
	factor := c.CompoundedInterest(c.WadToRay(&r.AverageStableBorrowRate), r.StableDebtLastUpdateTimestamp, now)
	out := c.RayMul(&r.TotalPrincipalStableDebt, factor)
	if err := c.Err(); err != nil {
		return nil, mathErr(err)
	}
	return out, nil
}

// mintStableDebt adds amount of debt at rate to user. Interest accrued so far
// is folded into the principal and the user's rate becomes the balance
// weighted average of the old and new debt.
func (e *Engine) mintStableDebt(tx *txn, r *Reserve, user common.Address, amount, rate *uint256.Int) error {
	now := e.timestamp
	p := tx.stablePosition(user, r.Asset)
	current, err := stableDebtBalance(p, now)
	if err != nil {
		return err
	}
	previousSupply, err := totalStableDebt(r, now)
	if err != nil {
		return err
	}

	var c wadray.Calc
	nextBalance := c.Add(current, amount)
	userRate := weightedAverage(&c, c.Add(c.Mul(&p.Rate, current), c.Mul(rate, amount)), nextBalance)
	nextSupply := c.Add(previousSupply, amount)
	averageRate := weightedAverage(&c, c.Add(c.Mul(&r.AverageStableBorrowRate, previousSupply), c.Mul(rate, amount)), nextSupply)
	if err := c.Err(); err != nil {
		return mathErr(err)
	}

	p.Principal.Set(nextBalance)
	p.Rate.Set(userRate)
	p.LastUpdateTimestamp = now
	r.TotalPrincipalStableDebt.Set(nextSupply)
	r.AverageStableBorrowRate.Set(averageRate)
	r.StableDebtLastUpdateTimestamp = now
	return nil
}

// burnStableDebt removes amount of user's stable debt, capped at the balance.
func (e *Engine) burnStableDebt(tx *txn, r *Reserve, user common.Address, amount *uint256.Int) error {
	now := e.timestamp
	p := tx.stablePosition(user, r.Asset)
	current, err := stableDebtBalance(p, now)
	if err != nil {
		return err
	}
	if amount.Gt(current) {
		amount = current
	}
	previousSupply, err := totalStableDebt(r, now)
	if err != nil {
		return err
	}

	var c wadray.Calc
	// Users and the aggregate compound separately; the last borrower out may
	// repay slightly more than the aggregate holds.
	if !previousSupply.Gt(amount) {
		r.TotalPrincipalStableDebt.Clear()
		r.AverageStableBorrowRate.Clear()
	} else {
		nextSupply := c.Sub(previousSupply, amount)
		weightedTotal := c.Mul(&r.AverageStableBorrowRate, previousSupply)
		weightedUser := c.Mul(&p.Rate, amount)
		if err := c.Err(); err != nil {
			return mathErr(err)
		}
		if !weightedTotal.Gt(weightedUser) {
			r.TotalPrincipalStableDebt.Clear()
			r.AverageStableBorrowRate.Clear()
		} else {
			averageRate := weightedAverage(&c, c.Sub(weightedTotal, weightedUser), nextSupply)
			if err := c.Err(); err != nil {
				return mathErr(err)
			}
			r.TotalPrincipalStableDebt.Set(nextSupply)
			r.AverageStableBorrowRate.Set(averageRate)
		}
	}
	r.StableDebtLastUpdateTimestamp = now

	remaining := c.Sub(current, amount)
	if err := c.Err(); err != nil {
		return mathErr(err)
	}
	if remaining.IsZero() {
		p.Principal.Clear()
		p.Rate.Clear()
		p.LastUpdateTimestamp = 0
		return nil
	}
	p.Principal.Set(remaining)
	p.LastUpdateTimestamp = now
	return nil
}

// weightedAverage divides a sum of rate*amount products by the total amount,
// rounding half up.
func weightedAverage(c *wadray.Calc, weighted, total *uint256.Int) *uint256.Int {
	return c.MulDiv(weighted, uint256.NewInt(1), total)
}
