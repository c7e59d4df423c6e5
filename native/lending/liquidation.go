package lending

import (
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"meldlend/core/events"
	"meldlend/native/lending/wadray"
)

// LiquidationCall repays part of an unhealthy user's debt in debtAsset and
// hands the liquidator the equivalent collateral plus the reserve's
// liquidation bonus. At most CloseFactor of the debt can be covered per call,
// or all of it once the health factor falls below FullCloseHealthFactor.
// debtAsset counts as borrowed when the user owes it in either rate mode, and
// the close factor applies to the stable and variable debt combined.
// Variable debt is repaid before stable debt. The liquidator either receives
// the collateral position itself or, with receiveCollateral false, the
// underlying.
func (e *Engine) LiquidationCall(liquidator, collateralAsset, debtAsset, user common.Address, debtToCover *uint256.Int, receiveCollateral bool) (*LiquidationResult, error) {
	debtToCover = cloneAmount(debtToCover)
	var result *LiquidationResult
	err := e.execute("liquidation", func(tx *txn) error {
		if err := requirePositive(debtToCover); err != nil {
			return err
		}
		collateralReserve, err := tx.reserve(collateralAsset)
		if err != nil {
			return err
		}
		debtReserve, err := tx.reserve(debtAsset)
		if err != nil {
			return err
		}
		if err := e.updateState(tx, debtReserve); err != nil {
			return err
		}
		if err := e.updateState(tx, collateralReserve); err != nil {
			return err
		}
		if err := requireActive(collateralReserve); err != nil {
			return err
		}
		if err := requireActive(debtReserve); err != nil {
			return err
		}

		data, err := e.accountData(tx, user)
		if err != nil {
			return err
		}
		if !data.HealthFactor.Lt(wadray.Wad()) {
			return ErrHealthFactorNotBelowThreshold
		}

		position := tx.collateralPosition(user, collateralAsset)
		if !position.UsageAsCollateralEnabled || collateralReserve.Configuration.LiquidationThreshold() == 0 {
			return ErrCollateralCannotBeLiquidated
		}
		userCollateral, err := collateralBalance(collateralReserve, position, e.timestamp)
		if err != nil {
			return err
		}
		if userCollateral.IsZero() {
			return ErrCollateralCannotBeLiquidated
		}

		stableDebt, err := stableDebtBalance(tx.stablePosition(user, debtAsset), e.timestamp)
		if err != nil {
			return err
		}
		variableDebt, err := variableDebtBalance(debtReserve, tx.variablePosition(user, debtAsset), e.timestamp)
		if err != nil {
			return err
		}
		var c wadray.Calc
		totalDebt := c.Add(stableDebt, variableDebt)
		if err := c.Err(); err != nil {
			return mathErr(err)
		}
		if totalDebt.IsZero() {
			return ErrSpecifiedCurrencyNotBorrowed
		}

		closeFactor := e.params.CloseFactor
		if data.HealthFactor.Lt(&e.params.FullCloseHealthFactor) {
			closeFactor = wadray.PercentageFactor
		}
		maxLiquidatable, err := wadray.PercentMul(totalDebt, closeFactor)
		if err != nil {
			return mathErr(err)
		}
		actualDebt := debtToCover
		if actualDebt.Gt(maxLiquidatable) {
			actualDebt = maxLiquidatable
		}

		seized, debtNeeded, err := e.collateralToLiquidate(collateralReserve, debtReserve, actualDebt, userCollateral)
		if err != nil {
			return err
		}
		if debtNeeded.Lt(actualDebt) {
			actualDebt = debtNeeded
		}
		if actualDebt.IsZero() || seized.IsZero() {
			return fmt.Errorf("%w: liquidation rounds to zero", ErrInvalidAmount)
		}
		if !receiveCollateral && seized.Gt(&collateralReserve.AvailableLiquidity) {
			return ErrNotEnoughLiquidityToLiquidate
		}

		if err := e.repayLiquidatedDebt(tx, debtReserve, user, actualDebt, variableDebt); err != nil {
			return err
		}
		if err := e.updateInterestRates(tx, debtReserve, actualDebt, nil); err != nil {
			return err
		}
		if err := tx.transfer(debtAsset, liquidator, e.params.Custody, actualDebt); err != nil {
			return err
		}
		if err := addTo(&debtReserve.AvailableLiquidity, actualDebt); err != nil {
			return err
		}

		seizeAll := seized.Eq(userCollateral)
		if receiveCollateral {
			if err := e.transferCollateral(tx, collateralReserve, user, liquidator, seized, seizeAll); err != nil {
				return err
			}
		} else {
			if err := e.burnCollateral(tx, collateralReserve, user, seized, seizeAll); err != nil {
				return err
			}
			if err := e.updateInterestRates(tx, collateralReserve, nil, seized); err != nil {
				return err
			}
			collateralReserve.AvailableLiquidity.Sub(&collateralReserve.AvailableLiquidity, seized)
			if err := tx.transfer(collateralAsset, e.params.Custody, liquidator, seized); err != nil {
				return err
			}
		}

		result = &LiquidationResult{DebtRepaid: actualDebt, CollateralSeized: seized}
		tx.emit(events.LendingLiquidation{
			CollateralAsset:        collateralAsset,
			DebtAsset:              debtAsset,
			User:                   user,
			Liquidator:             liquidator,
			DebtCovered:            actualDebt,
			CollateralSeized:       seized,
			ReceiveCollateralToken: receiveCollateral,
		})
		e.logger().Info("lending liquidation",
			slog.String("user", user.Hex()),
			slog.String("liquidator", liquidator.Hex()),
			slog.String("collateral", collateralAsset.Hex()),
			slog.String("debt", debtAsset.Hex()),
			slog.String("debtCovered", actualDebt.Dec()),
			slog.String("collateralSeized", seized.Dec()),
			slog.String("healthFactor", wadray.FormatUnits(data.HealthFactor, 18)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	if e.metrics != nil {
		e.metrics.RecordLiquidation(collateralAsset.Hex(), debtAsset.Hex())
	}
	return result, nil
}

// collateralToLiquidate prices debtToCover in collateral plus bonus. When the
// user holds less than that, all their collateral is taken and the debt
// covered shrinks to match.
func (e *Engine) collateralToLiquidate(collateralReserve, debtReserve *Reserve, debtToCover, userCollateral *uint256.Int) (*uint256.Int, *uint256.Int, error) {
	collateralPrice, err := e.price(collateralReserve.Asset)
	if err != nil {
		return nil, nil, err
	}
	debtPrice, err := e.price(debtReserve.Asset)
	if err != nil {
		return nil, nil, err
	}
	collateralUnit, err := wadray.Pow10(collateralReserve.Configuration.Decimals())
	if err != nil {
		return nil, nil, mathErr(err)
	}
	debtUnit, err := wadray.Pow10(debtReserve.Configuration.Decimals())
	if err != nil {
		return nil, nil, mathErr(err)
	}
	bonus := collateralReserve.Configuration.LiquidationBonus()

	var c wadray.Calc
	base := c.MulDivDown(c.Mul(debtPrice, debtToCover), collateralUnit, c.Mul(collateralPrice, debtUnit))
	maxCollateral := c.PercentMul(base, bonus)
	if err := c.Err(); err != nil {
		return nil, nil, mathErr(err)
	}
	if !maxCollateral.Gt(userCollateral) {
		return maxCollateral, new(uint256.Int).Set(debtToCover), nil
	}
	debtNeeded := c.PercentDiv(
		c.MulDivDown(c.Mul(collateralPrice, userCollateral), debtUnit, c.Mul(debtPrice, collateralUnit)),
		bonus)
	if err := c.Err(); err != nil {
		return nil, nil, mathErr(err)
	}
	return new(uint256.Int).Set(userCollateral), debtNeeded, nil
}

func (e *Engine) repayLiquidatedDebt(tx *txn, r *Reserve, user common.Address, amount, variableDebt *uint256.Int) error {
	if !amount.Gt(variableDebt) {
		return e.burnVariableDebt(tx, r, user, amount, amount.Eq(variableDebt))
	}
	if !variableDebt.IsZero() {
		if err := e.burnVariableDebt(tx, r, user, variableDebt, true); err != nil {
			return err
		}
	}
	return e.burnStableDebt(tx, r, user, new(uint256.Int).Sub(amount, variableDebt))
}
