package lending

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"meldlend/native/lending/wadray"
)

func requirePositive(amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	return nil
}

func requireActive(r *Reserve) error {
	if !r.Configuration.Active() {
		return fmt.Errorf("%w: %s", ErrReserveInactive, r.Asset.Hex())
	}
	return nil
}

func requireActiveNotFrozen(r *Reserve) error {
	if err := requireActive(r); err != nil {
		return err
	}
	if r.Configuration.Frozen() {
		return fmt.Errorf("%w: %s", ErrReserveFrozen, r.Asset.Hex())
	}
	return nil
}

func (e *Engine) validateDeposit(r *Reserve, amount *uint256.Int) error {
	if err := requirePositive(amount); err != nil {
		return err
	}
	if err := requireActiveNotFrozen(r); err != nil {
		return err
	}
	capUSD := r.Configuration.SupplyCapUSD()
	if capUSD == 0 {
		return nil
	}
	income, err := normalizedIncome(r, e.timestamp)
	if err != nil {
		return err
	}
	var c wadray.Calc
	supplyAfter := c.Add(c.RayMul(&r.TotalScaledSupply, income), amount)
	if err := c.Err(); err != nil {
		return mathErr(err)
	}
	price, err := e.price(r.Asset)
	if err != nil {
		return err
	}
	value, err := usdValue(supplyAfter, price, r.Configuration.Decimals())
	if err != nil {
		return err
	}
	if capExceeded(value, capUSD) {
		return fmt.Errorf("%w: %s", ErrSupplyCapExceeded, r.Asset.Hex())
	}
	return nil
}

func validateWithdraw(r *Reserve, amount, balance *uint256.Int) error {
	if err := requirePositive(amount); err != nil {
		return err
	}
	if amount.Gt(balance) {
		return fmt.Errorf("%w: withdraw %s exceeds balance %s", ErrNotEnoughBalance, amount.Dec(), balance.Dec())
	}
	if err := requireActive(r); err != nil {
		return err
	}
	if amount.Gt(&r.AvailableLiquidity) {
		return fmt.Errorf("%w: withdraw %s, available %s", ErrNotEnoughLiquidity, amount.Dec(), r.AvailableLiquidity.Dec())
	}
	return nil
}

// validateBorrow checks a borrow against the state before any debt is
// minted. The post-borrow health factor is re-checked once the debt exists.
func (e *Engine) validateBorrow(tx *txn, r *Reserve, onBehalfOf common.Address, amount *uint256.Int, mode InterestRateMode) error {
	if err := requirePositive(amount); err != nil {
		return err
	}
	if err := requireActiveNotFrozen(r); err != nil {
		return err
	}
	cfg := r.Configuration
	if !cfg.BorrowingEnabled() {
		return fmt.Errorf("%w: %s", ErrBorrowingNotEnabled, r.Asset.Hex())
	}
	if !mode.Valid() {
		return ErrInvalidInterestRateMode
	}
	if amount.Gt(&r.AvailableLiquidity) {
		return fmt.Errorf("%w: borrow %s, available %s", ErrNotEnoughLiquidity, amount.Dec(), r.AvailableLiquidity.Dec())
	}

	price, err := e.price(r.Asset)
	if err != nil {
		return err
	}
	amountUSD, err := usdValue(amount, price, cfg.Decimals())
	if err != nil {
		return err
	}

	if capUSD := cfg.BorrowCapUSD(); capUSD != 0 {
		stable, err := totalStableDebt(r, e.timestamp)
		if err != nil {
			return err
		}
		index, err := normalizedVariableDebt(r, e.timestamp)
		if err != nil {
			return err
		}
		var c wadray.Calc
		debtAfter := c.Add(c.Add(stable, c.RayMul(&r.TotalScaledVariableDebt, index)), amount)
		if err := c.Err(); err != nil {
			return mathErr(err)
		}
		value, err := usdValue(debtAfter, price, cfg.Decimals())
		if err != nil {
			return err
		}
		if capExceeded(value, capUSD) {
			return fmt.Errorf("%w: %s", ErrBorrowCapExceeded, r.Asset.Hex())
		}
	}

	data, err := e.accountData(tx, onBehalfOf)
	if err != nil {
		return err
	}
	if data.TotalCollateralUSD.IsZero() {
		return ErrCollateralBalanceZero
	}
	if data.HealthFactor.Lt(wadray.Wad()) {
		return ErrHealthFactorTooLow
	}
	if data.CurrentLTV == 0 {
		return ErrCollateralCannotCoverBorrow
	}
	var c wadray.Calc
	needed := c.PercentDiv(c.Add(data.TotalDebtUSD, amountUSD), data.CurrentLTV)
	if err := c.Err(); err != nil {
		return mathErr(err)
	}
	if needed.Gt(data.TotalCollateralUSD) {
		return fmt.Errorf("%w: needs %s USD of collateral, has %s", ErrCollateralCannotCoverBorrow,
			wadray.FormatUnits(needed, 18), wadray.FormatUnits(data.TotalCollateralUSD, 18))
	}

	if mode == RateModeStable {
		if !cfg.StableBorrowingEnabled() {
			return fmt.Errorf("%w: %s", ErrStableBorrowingNotEnabled, r.Asset.Hex())
		}
		if err := e.requireNotSameCollateral(tx, r, onBehalfOf, amount); err != nil {
			return err
		}
		maxLoan, err := wadray.PercentMul(&r.AvailableLiquidity, e.params.MaxStableBorrowPercent)
		if err != nil {
			return mathErr(err)
		}
		if amount.Gt(maxLoan) {
			return fmt.Errorf("%w: %s above %s", ErrAmountExceedsMaxStableLoan, amount.Dec(), maxLoan.Dec())
		}
	}
	return nil
}

// requireNotSameCollateral stops users from taking a cheap stable loan
// against a deposit of the same currency: unless that deposit is not
// collateral or cannot back loans, the borrow must exceed it.
func (e *Engine) requireNotSameCollateral(tx *txn, r *Reserve, user common.Address, amount *uint256.Int) error {
	p := tx.collateralPosition(user, r.Asset)
	if !p.UsageAsCollateralEnabled || r.Configuration.LTV() == 0 {
		return nil
	}
	balance, err := collateralBalance(r, p, e.timestamp)
	if err != nil {
		return err
	}
	if !amount.Gt(balance) {
		return ErrCollateralSameAsBorrowing
	}
	return nil
}

func validateRepay(r *Reserve, caller, onBehalfOf common.Address, amount *uint256.Int, mode InterestRateMode, stableDebt, variableDebt *uint256.Int) error {
	if err := requirePositive(amount); err != nil {
		return err
	}
	if err := requireActive(r); err != nil {
		return err
	}
	switch mode {
	case RateModeStable:
		if stableDebt.IsZero() {
			return ErrNoDebtOfSelectedType
		}
	case RateModeVariable:
		if variableDebt.IsZero() {
			return ErrNoDebtOfSelectedType
		}
	default:
		return ErrInvalidInterestRateMode
	}
	if isFullAmount(amount) && caller != onBehalfOf {
		return ErrNoExplicitAmountToRepayOnBehalf
	}
	return nil
}

func (e *Engine) validateSwapRateMode(tx *txn, r *Reserve, user common.Address, stableDebt, variableDebt *uint256.Int, current InterestRateMode) error {
	if err := requireActiveNotFrozen(r); err != nil {
		return err
	}
	switch current {
	case RateModeStable:
		if stableDebt.IsZero() {
			return ErrNoDebtOfSelectedType
		}
	case RateModeVariable:
		if variableDebt.IsZero() {
			return ErrNoDebtOfSelectedType
		}
		if !r.Configuration.StableBorrowingEnabled() {
			return fmt.Errorf("%w: %s", ErrStableBorrowingNotEnabled, r.Asset.Hex())
		}
		return e.requireNotSameCollateral(tx, r, user, variableDebt)
	default:
		return ErrInvalidInterestRateMode
	}
	return nil
}
