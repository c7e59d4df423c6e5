package lending

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"meldlend/native/lending/wadray"
)

// ProtocolParams captures the protocol-wide constants shared by every
// reserve.
type ProtocolParams struct {
	// Custody holds the underlying liquidity of every reserve.
	Custody common.Address
	// Treasury receives the reserve factor share of accrued interest as
	// collateral tokens.
	Treasury common.Address
	// CloseFactor caps the share of a borrower's debt one liquidation may
	// repay, in bps.
	CloseFactor uint64
	// FullCloseHealthFactor is the wad health factor below which the close
	// factor widens to 100%.
	FullCloseHealthFactor uint256.Int
	// MaxStableBorrowPercent caps a single stable borrow relative to the
	// reserve's available liquidity, in bps.
	MaxStableBorrowPercent uint64
	// FlashLoanPremium is the fee charged on flash loans, in bps.
	FlashLoanPremium uint64
}

// DefaultProtocolParams returns the standard protocol constants.
func DefaultProtocolParams(custody, treasury common.Address) ProtocolParams {
	p := ProtocolParams{
		Custody:                custody,
		Treasury:               treasury,
		CloseFactor:            5_000,
		MaxStableBorrowPercent: 2_500,
		FlashLoanPremium:       9,
	}
	p.FullCloseHealthFactor.Set(wadray.MustParseWad("0.95"))
	return p
}

// Validate checks the parameters are internally consistent.
func (p ProtocolParams) Validate() error {
	if p.Custody == (common.Address{}) {
		return fmt.Errorf("%w: custody address required", ErrInvalidParams)
	}
	if p.Treasury == (common.Address{}) {
		return fmt.Errorf("%w: treasury address required", ErrInvalidParams)
	}
	if p.Custody == p.Treasury {
		return fmt.Errorf("%w: custody and treasury must differ", ErrInvalidParams)
	}
	if p.CloseFactor == 0 || p.CloseFactor > wadray.PercentageFactor {
		return fmt.Errorf("%w: close factor %d out of range", ErrInvalidParams, p.CloseFactor)
	}
	if p.FullCloseHealthFactor.Gt(wadray.Wad()) {
		return fmt.Errorf("%w: full close health factor above 1", ErrInvalidParams)
	}
	if p.MaxStableBorrowPercent > wadray.PercentageFactor {
		return fmt.Errorf("%w: max stable borrow percent %d out of range", ErrInvalidParams, p.MaxStableBorrowPercent)
	}
	if p.FlashLoanPremium > wadray.PercentageFactor {
		return fmt.Errorf("%w: flash loan premium %d out of range", ErrInvalidParams, p.FlashLoanPremium)
	}
	return nil
}
