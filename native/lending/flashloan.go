package lending

import (
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"meldlend/core/events"
	"meldlend/native/lending/wadray"
)

// Wallet gives a flash loan receiver access to its own underlying balances
// for the duration of the callback.
type Wallet interface {
	Address() common.Address
	BalanceOf(asset common.Address) *uint256.Int
	Transfer(asset, to common.Address, amount *uint256.Int) error
}

// FlashLoanReceiver is invoked after the loaned amounts have been sent to it.
// By the time it returns the wallet must hold amount plus premium of every
// asset; returning an error aborts the whole loan.
type FlashLoanReceiver interface {
	ExecuteOperation(wallet Wallet, assets []common.Address, amounts, premiums []*uint256.Int, initiator common.Address, params []byte) error
}

type txnWallet struct {
	tx    *txn
	owner common.Address
}

func (w *txnWallet) Address() common.Address { return w.owner }

func (w *txnWallet) BalanceOf(asset common.Address) *uint256.Int {
	return new(uint256.Int).Set(w.tx.balance(asset, w.owner))
}

func (w *txnWallet) Transfer(asset, to common.Address, amount *uint256.Int) error {
	if amount == nil {
		return ErrInvalidAmount
	}
	return w.tx.transfer(asset, w.owner, to, amount)
}

// FlashLoan lends amounts of assets to target for the span of one callback.
// The loan plus FlashLoanPremium is pulled back from target afterwards and
// the premium is distributed to the reserve's suppliers.
func (e *Engine) FlashLoan(initiator, target common.Address, receiver FlashLoanReceiver, assets []common.Address, amounts []*uint256.Int, params []byte) error {
	if receiver == nil {
		return fmt.Errorf("%w: no receiver", ErrInvalidFlashLoan)
	}
	if len(assets) == 0 || len(assets) != len(amounts) {
		return fmt.Errorf("%w: %d assets, %d amounts", ErrInvalidFlashLoan, len(assets), len(amounts))
	}
	loaned := make([]*uint256.Int, len(amounts))
	for i, amount := range amounts {
		loaned[i] = cloneAmount(amount)
	}
	return e.execute("flash_loan", func(tx *txn) error {
		seen := make(map[common.Address]struct{}, len(assets))
		premiums := make([]*uint256.Int, len(assets))
		for i, asset := range assets {
			if _, dup := seen[asset]; dup {
				return fmt.Errorf("%w: duplicate asset %s", ErrInvalidFlashLoan, asset.Hex())
			}
			seen[asset] = struct{}{}
			r, err := tx.reserve(asset)
			if err != nil {
				return err
			}
			if err := e.updateState(tx, r); err != nil {
				return err
			}
			if err := e.validateFlashLoan(r, loaned[i]); err != nil {
				return err
			}
			premium, err := wadray.PercentMul(loaned[i], e.params.FlashLoanPremium)
			if err != nil {
				return mathErr(err)
			}
			premiums[i] = premium
			r.AvailableLiquidity.Sub(&r.AvailableLiquidity, loaned[i])
			if err := tx.transfer(asset, e.params.Custody, target, loaned[i]); err != nil {
				return err
			}
		}

		if err := receiver.ExecuteOperation(&txnWallet{tx: tx, owner: target}, append([]common.Address(nil), assets...), cloneAmounts(loaned), cloneAmounts(premiums), initiator, params); err != nil {
			return fmt.Errorf("%w: receiver: %w", ErrFlashLoanNotRepaid, err)
		}

		for i, asset := range assets {
			r, err := tx.reserve(asset)
			if err != nil {
				return err
			}
			var c wadray.Calc
			owed := c.Add(loaned[i], premiums[i])
			if err := c.Err(); err != nil {
				return mathErr(err)
			}
			if tx.balance(asset, target).Lt(owed) {
				return fmt.Errorf("%w: %s owes %s of %s", ErrFlashLoanNotRepaid, target.Hex(), owed.Dec(), asset.Hex())
			}
			income, err := normalizedIncome(r, e.timestamp)
			if err != nil {
				return err
			}
			totalLiquidity, err := wadray.RayMul(&r.TotalScaledSupply, income)
			if err != nil {
				return mathErr(err)
			}
			if err := cumulateToLiquidityIndex(r, totalLiquidity, premiums[i]); err != nil {
				return err
			}
			if err := e.updateInterestRates(tx, r, owed, nil); err != nil {
				return err
			}
			if err := tx.transfer(asset, target, e.params.Custody, owed); err != nil {
				return err
			}
			if err := addTo(&r.AvailableLiquidity, owed); err != nil {
				return err
			}
			tx.emit(events.LendingFlashLoan{Asset: asset, Target: target, Initiator: initiator, Amount: loaned[i], Premium: premiums[i]})
			e.logger().Info("lending flash loan",
				slog.String("asset", asset.Hex()),
				slog.String("target", target.Hex()),
				slog.String("initiator", initiator.Hex()),
				slog.String("amount", loaned[i].Dec()),
				slog.String("premium", premiums[i].Dec()))
		}
		return nil
	})
}

func (e *Engine) validateFlashLoan(r *Reserve, amount *uint256.Int) error {
	if err := requirePositive(amount); err != nil {
		return err
	}
	if err := requireActive(r); err != nil {
		return err
	}
	if amount.Gt(&r.AvailableLiquidity) {
		return fmt.Errorf("%w: flash loan %s, available %s", ErrNotEnoughLiquidity, amount.Dec(), r.AvailableLiquidity.Dec())
	}
	limit := r.Configuration.FlashLoanLimitUSD()
	if limit == 0 {
		return nil
	}
	price, err := e.price(r.Asset)
	if err != nil {
		return err
	}
	value, err := usdValue(amount, price, r.Configuration.Decimals())
	if err != nil {
		return err
	}
	if capExceeded(value, limit) {
		return fmt.Errorf("%w: %s", ErrFlashLoanLimitExceeded, r.Asset.Hex())
	}
	return nil
}

func cloneAmounts(in []*uint256.Int) []*uint256.Int {
	out := make([]*uint256.Int, len(in))
	for i, v := range in {
		out[i] = new(uint256.Int).Set(v)
	}
	return out
}
