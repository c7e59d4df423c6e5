package lending

import (
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"meldlend/core/events"
)

// Borrow mints debt of the chosen mode to onBehalfOf and sends the underlying
// to caller. When caller differs from onBehalfOf the call consumes a credit
// delegation allowance granted by onBehalfOf.
func (e *Engine) Borrow(caller, asset common.Address, amount *uint256.Int, mode InterestRateMode, onBehalfOf common.Address) error {
	amount = cloneAmount(amount)
	return e.execute("borrow", func(tx *txn) error {
		r, err := tx.reserve(asset)
		if err != nil {
			return err
		}
		if err := e.updateState(tx, r); err != nil {
			return err
		}
		if err := e.validateBorrow(tx, r, onBehalfOf, amount, mode); err != nil {
			return err
		}
		if caller != onBehalfOf {
			if err := e.consumeAllowance(tx, onBehalfOf, caller, asset, mode, amount); err != nil {
				return err
			}
		}

		rate := new(uint256.Int)
		switch mode {
		case RateModeStable:
			rate.Set(&r.CurrentStableBorrowRate)
			if err := e.mintStableDebt(tx, r, onBehalfOf, amount, rate); err != nil {
				return err
			}
		case RateModeVariable:
			rate.Set(&r.CurrentVariableBorrowRate)
			if err := e.mintVariableDebt(tx, r, onBehalfOf, amount); err != nil {
				return err
			}
		}

		if err := e.updateInterestRates(tx, r, nil, amount); err != nil {
			return err
		}
		r.AvailableLiquidity.Sub(&r.AvailableLiquidity, amount)
		if err := tx.transfer(asset, e.params.Custody, caller, amount); err != nil {
			return err
		}
		if err := e.requireHealthy(tx, onBehalfOf); err != nil {
			return err
		}
		tx.emit(events.LendingBorrow{
			Asset:      asset,
			User:       caller,
			OnBehalfOf: onBehalfOf,
			Amount:     amount,
			Mode:       mode.String(),
			Rate:       rate,
		})
		e.logger().Info("lending borrow",
			slog.String("asset", asset.Hex()),
			slog.String("user", caller.Hex()),
			slog.String("onBehalfOf", onBehalfOf.Hex()),
			slog.String("mode", mode.String()),
			slog.String("amount", amount.Dec()))
		return nil
	})
}

// Repay burns up to amount of onBehalfOf's debt of the chosen mode, pulling
// the underlying from caller. FullAmount repays the whole debt but only when
// caller repays their own loan. The amount actually repaid is returned.
func (e *Engine) Repay(caller, asset common.Address, amount *uint256.Int, mode InterestRateMode, onBehalfOf common.Address) (*uint256.Int, error) {
	amount = cloneAmount(amount)
	var repaid *uint256.Int
	err := e.execute("repay", func(tx *txn) error {
		r, err := tx.reserve(asset)
		if err != nil {
			return err
		}
		if err := e.updateState(tx, r); err != nil {
			return err
		}
		stableDebt, err := stableDebtBalance(tx.stablePosition(onBehalfOf, asset), e.timestamp)
		if err != nil {
			return err
		}
		variableDebt, err := variableDebtBalance(r, tx.variablePosition(onBehalfOf, asset), e.timestamp)
		if err != nil {
			return err
		}
		if err := validateRepay(r, caller, onBehalfOf, amount, mode, stableDebt, variableDebt); err != nil {
			return err
		}

		payback := variableDebt
		if mode == RateModeStable {
			payback = stableDebt
		}
		full := !amount.Lt(payback)
		if !full {
			payback = amount
		}

		switch mode {
		case RateModeStable:
			if err := e.burnStableDebt(tx, r, onBehalfOf, payback); err != nil {
				return err
			}
		case RateModeVariable:
			if err := e.burnVariableDebt(tx, r, onBehalfOf, payback, full); err != nil {
				return err
			}
		}
		if err := e.updateInterestRates(tx, r, payback, nil); err != nil {
			return err
		}
		if err := tx.transfer(asset, caller, e.params.Custody, payback); err != nil {
			return err
		}
		if err := addTo(&r.AvailableLiquidity, payback); err != nil {
			return err
		}
		repaid = payback
		tx.emit(events.LendingRepay{Asset: asset, User: onBehalfOf, Repayer: caller, Amount: payback, Mode: mode.String()})
		e.logger().Info("lending repay",
			slog.String("asset", asset.Hex()),
			slog.String("user", onBehalfOf.Hex()),
			slog.String("repayer", caller.Hex()),
			slog.String("mode", mode.String()),
			slog.String("amount", payback.Dec()))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return repaid, nil
}

// SwapBorrowRateMode moves caller's whole debt in asset from the current mode
// to the other one.
func (e *Engine) SwapBorrowRateMode(caller, asset common.Address, current InterestRateMode) error {
	return e.execute("swap_rate_mode", func(tx *txn) error {
		r, err := tx.reserve(asset)
		if err != nil {
			return err
		}
		if err := e.updateState(tx, r); err != nil {
			return err
		}
		stableDebt, err := stableDebtBalance(tx.stablePosition(caller, asset), e.timestamp)
		if err != nil {
			return err
		}
		variableDebt, err := variableDebtBalance(r, tx.variablePosition(caller, asset), e.timestamp)
		if err != nil {
			return err
		}
		if err := e.validateSwapRateMode(tx, r, caller, stableDebt, variableDebt, current); err != nil {
			return err
		}

		var moved *uint256.Int
		var next InterestRateMode
		if current == RateModeStable {
			moved, next = stableDebt, RateModeVariable
			if err := e.burnStableDebt(tx, r, caller, stableDebt); err != nil {
				return err
			}
			if err := e.mintVariableDebt(tx, r, caller, stableDebt); err != nil {
				return err
			}
		} else {
			moved, next = variableDebt, RateModeStable
			if err := e.burnVariableDebt(tx, r, caller, variableDebt, true); err != nil {
				return err
			}
			if err := e.mintStableDebt(tx, r, caller, variableDebt, &r.CurrentStableBorrowRate); err != nil {
				return err
			}
		}
		if err := e.updateInterestRates(tx, r, nil, nil); err != nil {
			return err
		}
		tx.emit(events.LendingRateModeSwapped{Asset: asset, User: caller, Mode: next.String(), Amount: moved})
		return nil
	})
}
