package lending

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"meldlend/core/events"
	"meldlend/native/lending/wadray"
)

// Collateral, stable debt and variable debt balances behave like tokens that
// only the engine can mint, burn or move. The helpers below keep each user
// position and the matching reserve total in step.

func collateralBalance(r *Reserve, p *CollateralPosition, now uint64) (*uint256.Int, error) {
	if p.ScaledBalance.IsZero() {
		return new(uint256.Int), nil
	}
	index, err := normalizedIncome(r, now)
	if err != nil {
		return nil, err
	}
	out, err := wadray.RayMul(&p.ScaledBalance, index)
	if err != nil {
		return nil, mathErr(err)
	}
	return out, nil
}

// mintCollateral credits user with amount at the reserve's current liquidity
// index. It reports whether this was the user's first deposit in the reserve.
func (e *Engine) mintCollateral(tx *txn, r *Reserve, user common.Address, amount *uint256.Int) (bool, error) {
	scaled, err := wadray.RayDiv(amount, &r.LiquidityIndex)
	if err != nil {
		return false, mathErr(err)
	}
	if scaled.IsZero() {
		return false, ErrInvalidAmount
	}
	p := tx.collateralPosition(user, r.Asset)
	first := p.ScaledBalance.IsZero()
	if err := addTo(&p.ScaledBalance, scaled); err != nil {
		return false, err
	}
	if err := addTo(&r.TotalScaledSupply, scaled); err != nil {
		return false, err
	}
	return first, nil
}

// burnCollateral debits amount from user. When all is set the whole scaled
// balance is burned so no dust remains.
func (e *Engine) burnCollateral(tx *txn, r *Reserve, user common.Address, amount *uint256.Int, all bool) error {
	p := tx.collateralPosition(user, r.Asset)
	scaled, err := wadray.RayDiv(amount, &r.LiquidityIndex)
	if err != nil {
		return mathErr(err)
	}
	if all || scaled.Gt(&p.ScaledBalance) {
		scaled.Set(&p.ScaledBalance)
	}
	if scaled.IsZero() {
		return ErrInvalidAmount
	}
	p.ScaledBalance.Sub(&p.ScaledBalance, scaled)
	subFloorFrom(&r.TotalScaledSupply, scaled)
	if p.ScaledBalance.IsZero() {
		e.setCollateralUsage(tx, p, false)
	}
	return nil
}

// transferCollateral moves amount of collateral between users without
// touching the underlying liquidity.
func (e *Engine) transferCollateral(tx *txn, r *Reserve, from, to common.Address, amount *uint256.Int, all bool) error {
	src := tx.collateralPosition(from, r.Asset)
	scaled, err := wadray.RayDiv(amount, &r.LiquidityIndex)
	if err != nil {
		return mathErr(err)
	}
	if all || scaled.Gt(&src.ScaledBalance) {
		scaled.Set(&src.ScaledBalance)
	}
	dst := tx.collateralPosition(to, r.Asset)
	first := dst.ScaledBalance.IsZero()
	src.ScaledBalance.Sub(&src.ScaledBalance, scaled)
	if err := addTo(&dst.ScaledBalance, scaled); err != nil {
		return err
	}
	if src.ScaledBalance.IsZero() {
		e.setCollateralUsage(tx, src, false)
	}
	if first && !scaled.IsZero() {
		e.setCollateralUsage(tx, dst, true)
	}
	return nil
}

func (e *Engine) setCollateralUsage(tx *txn, p *CollateralPosition, enabled bool) {
	if p.UsageAsCollateralEnabled == enabled {
		return
	}
	p.UsageAsCollateralEnabled = enabled
	tx.emit(events.LendingCollateralUsage{Asset: p.Asset, User: p.User, Enabled: enabled})
}

func variableDebtBalance(r *Reserve, p *VariableDebtPosition, now uint64) (*uint256.Int, error) {
	if p.ScaledBalance.IsZero() {
		return new(uint256.Int), nil
	}
	index, err := normalizedVariableDebt(r, now)
	if err != nil {
		return nil, err
	}
	out, err := wadray.RayMul(&p.ScaledBalance, index)
	if err != nil {
		return nil, mathErr(err)
	}
	return out, nil
}

func (e *Engine) mintVariableDebt(tx *txn, r *Reserve, user common.Address, amount *uint256.Int) error {
	scaled, err := wadray.RayDiv(amount, &r.VariableBorrowIndex)
	if err != nil {
		return mathErr(err)
	}
	if scaled.IsZero() {
		return ErrInvalidAmount
	}
	p := tx.variablePosition(user, r.Asset)
	if err := addTo(&p.ScaledBalance, scaled); err != nil {
		return err
	}
	return addTo(&r.TotalScaledVariableDebt, scaled)
}

func (e *Engine) burnVariableDebt(tx *txn, r *Reserve, user common.Address, amount *uint256.Int, all bool) error {
	p := tx.variablePosition(user, r.Asset)
	scaled, err := wadray.RayDiv(amount, &r.VariableBorrowIndex)
	if err != nil {
		return mathErr(err)
	}
	if all || scaled.Gt(&p.ScaledBalance) {
		scaled.Set(&p.ScaledBalance)
	}
	p.ScaledBalance.Sub(&p.ScaledBalance, scaled)
	subFloorFrom(&r.TotalScaledVariableDebt, scaled)
	return nil
}
