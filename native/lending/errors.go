package lending

import "errors"

// Validation failures. Every rejected call returns one of these, possibly
// wrapped with context, and leaves the protocol state untouched.
var (
	ErrNilState                        = errors.New("lending engine: state not configured")
	ErrInvalidAmount                   = errors.New("lending engine: amount must be positive")
	ErrReserveNotFound                 = errors.New("lending engine: reserve not initialised")
	ErrReserveAlreadyInitialized       = errors.New("lending engine: reserve already initialised")
	ErrReserveInactive                 = errors.New("lending engine: reserve inactive")
	ErrReserveFrozen                   = errors.New("lending engine: reserve frozen")
	ErrBorrowingNotEnabled             = errors.New("lending engine: borrowing not enabled")
	ErrStableBorrowingNotEnabled       = errors.New("lending engine: stable borrowing not enabled")
	ErrInvalidInterestRateMode         = errors.New("lending engine: invalid interest rate mode")
	ErrCollateralBalanceZero           = errors.New("lending engine: collateral balance is zero")
	ErrHealthFactorTooLow              = errors.New("lending engine: health factor below 1")
	ErrCollateralCannotCoverBorrow     = errors.New("lending engine: collateral cannot cover new borrow")
	ErrCollateralSameAsBorrowing       = errors.New("lending engine: collateral is the borrowed currency")
	ErrAmountExceedsMaxStableLoan      = errors.New("lending engine: amount exceeds max stable loan size")
	ErrNotEnoughLiquidity              = errors.New("lending engine: insufficient reserve liquidity")
	ErrSupplyCapExceeded               = errors.New("lending engine: supply cap exceeded")
	ErrBorrowCapExceeded               = errors.New("lending engine: borrow cap exceeded")
	ErrFlashLoanLimitExceeded          = errors.New("lending engine: flash loan limit exceeded")
	ErrInsufficientAllowance           = errors.New("lending engine: borrow allowance exceeded")
	ErrNoDebtOfSelectedType            = errors.New("lending engine: no debt of selected type")
	ErrNoExplicitAmountToRepayOnBehalf = errors.New("lending engine: explicit amount required to repay on behalf")
	ErrNotEnoughBalance                = errors.New("lending engine: insufficient balance")
	ErrUnderlyingBalanceZero           = errors.New("lending engine: underlying balance is zero")
	ErrHealthFactorNotBelowThreshold   = errors.New("lending engine: health factor not below threshold")
	ErrCollateralCannotBeLiquidated    = errors.New("lending engine: collateral cannot be liquidated")
	ErrSpecifiedCurrencyNotBorrowed    = errors.New("lending engine: specified currency not borrowed by user")
	ErrNotEnoughLiquidityToLiquidate   = errors.New("lending engine: insufficient liquidity to release collateral")
	ErrOracleFailure                   = errors.New("lending engine: price oracle failure")
	ErrFlashLoanNotRepaid              = errors.New("lending engine: flash loan not repaid")
	ErrInvalidFlashLoan                = errors.New("lending engine: invalid flash loan request")
	ErrInvalidConfiguration            = errors.New("lending engine: invalid reserve configuration")
	ErrInvalidParams                   = errors.New("lending engine: invalid protocol parameters")
)

// Internal failures. These indicate arithmetic that left the representable
// range and always abort the call.
var (
	ErrMathOverflow  = errors.New("lending engine: arithmetic overflow")
	ErrIndexOverflow = errors.New("lending engine: index overflow")
)
