package lending

import (
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"meldlend/core/events"
)

// Deposit moves amount of the underlying from caller into the reserve and
// credits onBehalfOf with interest-bearing collateral. A first deposit is
// enabled as collateral automatically.
func (e *Engine) Deposit(caller, asset common.Address, amount *uint256.Int, onBehalfOf common.Address) error {
	amount = cloneAmount(amount)
	return e.execute("deposit", func(tx *txn) error {
		r, err := tx.reserve(asset)
		if err != nil {
			return err
		}
		if err := e.updateState(tx, r); err != nil {
			return err
		}
		if err := e.validateDeposit(r, amount); err != nil {
			return err
		}
		if err := e.updateInterestRates(tx, r, amount, nil); err != nil {
			return err
		}
		if err := tx.transfer(asset, caller, e.params.Custody, amount); err != nil {
			return err
		}
		if err := addTo(&r.AvailableLiquidity, amount); err != nil {
			return err
		}
		first, err := e.mintCollateral(tx, r, onBehalfOf, amount)
		if err != nil {
			return err
		}
		if first {
			e.setCollateralUsage(tx, tx.collateralPosition(onBehalfOf, asset), true)
		}
		tx.emit(events.LendingDeposit{Asset: asset, User: caller, OnBehalfOf: onBehalfOf, Amount: amount})
		e.logger().Info("lending deposit",
			slog.String("asset", asset.Hex()),
			slog.String("user", caller.Hex()),
			slog.String("onBehalfOf", onBehalfOf.Hex()),
			slog.String("amount", amount.Dec()))
		return nil
	})
}

// Withdraw burns caller's collateral and sends the underlying to to. Passing
// FullAmount withdraws the whole balance. The amount withdrawn is returned.
func (e *Engine) Withdraw(caller, asset common.Address, amount *uint256.Int, to common.Address) (*uint256.Int, error) {
	amount = cloneAmount(amount)
	var withdrawn *uint256.Int
	err := e.execute("withdraw", func(tx *txn) error {
		r, err := tx.reserve(asset)
		if err != nil {
			return err
		}
		if err := e.updateState(tx, r); err != nil {
			return err
		}
		p := tx.collateralPosition(caller, asset)
		balance, err := collateralBalance(r, p, e.timestamp)
		if err != nil {
			return err
		}
		all := isFullAmount(amount)
		if all {
			amount = balance
		}
		if err := validateWithdraw(r, amount, balance); err != nil {
			return err
		}
		backsDebt := p.UsageAsCollateralEnabled

		if err := e.burnCollateral(tx, r, caller, amount, all || amount.Eq(balance)); err != nil {
			return err
		}
		if err := e.updateInterestRates(tx, r, nil, amount); err != nil {
			return err
		}
		r.AvailableLiquidity.Sub(&r.AvailableLiquidity, amount)
		if err := tx.transfer(asset, e.params.Custody, to, amount); err != nil {
			return err
		}
		if backsDebt {
			if err := e.requireHealthy(tx, caller); err != nil {
				return err
			}
		}
		withdrawn = amount
		tx.emit(events.LendingWithdraw{Asset: asset, User: caller, To: to, Amount: amount})
		e.logger().Info("lending withdraw",
			slog.String("asset", asset.Hex()),
			slog.String("user", caller.Hex()),
			slog.String("to", to.Hex()),
			slog.String("amount", amount.Dec()))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return withdrawn, nil
}

// SetUserUseReserveAsCollateral toggles whether caller's deposit in asset
// backs their debt. Disabling is refused when it would leave the position
// unhealthy.
func (e *Engine) SetUserUseReserveAsCollateral(caller, asset common.Address, useAsCollateral bool) error {
	return e.execute("set_collateral", func(tx *txn) error {
		r, err := tx.reserve(asset)
		if err != nil {
			return err
		}
		if err := requireActive(r); err != nil {
			return err
		}
		p := tx.collateralPosition(caller, asset)
		if p.ScaledBalance.IsZero() {
			return ErrUnderlyingBalanceZero
		}
		e.setCollateralUsage(tx, p, useAsCollateral)
		if !useAsCollateral {
			return e.requireHealthy(tx, caller)
		}
		return nil
	})
}

func cloneAmount(amount *uint256.Int) *uint256.Int {
	if amount == nil {
		return nil
	}
	return new(uint256.Int).Set(amount)
}
