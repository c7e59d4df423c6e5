package lending

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"meldlend/core/events"
)

// ApproveDelegation sets how much of asset delegatee may borrow in mode
// against delegator's collateral. The allowance is replaced, not increased.
func (e *Engine) ApproveDelegation(delegator, delegatee, asset common.Address, mode InterestRateMode, amount *uint256.Int) error {
	amount = cloneAmount(amount)
	if amount == nil {
		amount = new(uint256.Int)
	}
	return e.execute("approve_delegation", func(tx *txn) error {
		if !mode.Valid() {
			return ErrInvalidInterestRateMode
		}
		if _, err := tx.reserve(asset); err != nil {
			return err
		}
		key := AllowanceKey{Delegator: delegator, Delegatee: delegatee, Asset: asset, Mode: mode}
		tx.allowance(key).Set(amount)
		tx.emit(events.LendingDelegation{
			Asset:     asset,
			Delegator: delegator,
			Delegatee: delegatee,
			Mode:      mode.String(),
			Amount:    amount,
		})
		return nil
	})
}

// BorrowAllowance returns the remaining allowance delegatee holds from
// delegator for asset in mode.
func (e *Engine) BorrowAllowance(delegator, delegatee, asset common.Address, mode InterestRateMode) *uint256.Int {
	if e == nil || e.state == nil {
		return new(uint256.Int)
	}
	key := AllowanceKey{Delegator: delegator, Delegatee: delegatee, Asset: asset, Mode: mode}
	if a, ok := e.state.allowances[key]; ok {
		return new(uint256.Int).Set(a)
	}
	return new(uint256.Int)
}

func (e *Engine) consumeAllowance(tx *txn, delegator, delegatee, asset common.Address, mode InterestRateMode, amount *uint256.Int) error {
	allowance := tx.allowance(AllowanceKey{Delegator: delegator, Delegatee: delegatee, Asset: asset, Mode: mode})
	if allowance.Lt(amount) {
		return fmt.Errorf("%w: %s may borrow %s, requested %s", ErrInsufficientAllowance, delegatee.Hex(), allowance.Dec(), amount.Dec())
	}
	allowance.Sub(allowance, amount)
	return nil
}
