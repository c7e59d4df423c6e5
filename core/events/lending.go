package events

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"meldlend/core/types"
)

const (
	// TypeLendingReserveInitialized marks the listing of a new reserve.
	TypeLendingReserveInitialized = "lending.reserve.initialized"
	// TypeLendingReserveConfigured marks a change of reserve parameters.
	TypeLendingReserveConfigured = "lending.reserve.configured"
	// TypeLendingReserveDataUpdated carries refreshed rates and indexes.
	TypeLendingReserveDataUpdated = "lending.reserve.updated"
	// TypeLendingTreasuryAccrued marks the reserve factor share minted to the
	// treasury during accrual.
	TypeLendingTreasuryAccrued = "lending.treasury.accrued"
	TypeLendingDeposit         = "lending.deposit"
	TypeLendingWithdraw        = "lending.withdraw"
	TypeLendingBorrow          = "lending.borrow"
	TypeLendingRepay           = "lending.repay"
	TypeLendingRateModeSwapped = "lending.rate_mode.swapped"
	TypeLendingCollateralUsage = "lending.collateral.usage"
	// TypeLendingDelegation marks a credit delegation allowance being set.
	TypeLendingDelegation  = "lending.delegation.approved"
	TypeLendingLiquidation = "lending.liquidation"
	TypeLendingFlashLoan   = "lending.flash_loan"
)

// LendingReserveInitialized records a reserve being listed.
type LendingReserveInitialized struct {
	Asset    common.Address
	ID       uint16
	Decimals uint8
}

// EventType satisfies the events.Event interface.
func (LendingReserveInitialized) EventType() string { return TypeLendingReserveInitialized }

// Event converts the payload into a broadcastable event.
func (e LendingReserveInitialized) Event() *types.Event {
	return &types.Event{Type: TypeLendingReserveInitialized, Attributes: map[string]string{
		"asset":    e.Asset.Hex(),
		"id":       strconv.FormatUint(uint64(e.ID), 10),
		"decimals": strconv.FormatUint(uint64(e.Decimals), 10),
	}}
}

// LendingReserveConfigured records a reserve configuration change.
type LendingReserveConfigured struct {
	Asset         common.Address
	Configuration *uint256.Int
}

// EventType satisfies the events.Event interface.
func (LendingReserveConfigured) EventType() string { return TypeLendingReserveConfigured }

// Event converts the payload into a broadcastable event.
func (e LendingReserveConfigured) Event() *types.Event {
	attrs := map[string]string{"asset": e.Asset.Hex()}
	putAmount(attrs, "configuration", e.Configuration)
	return &types.Event{Type: TypeLendingReserveConfigured, Attributes: attrs}
}

// LendingReserveDataUpdated carries the rates and indexes of a reserve after
// an operation touched it.
type LendingReserveDataUpdated struct {
	Asset               common.Address
	LiquidityRate       *uint256.Int
	StableBorrowRate    *uint256.Int
	VariableBorrowRate  *uint256.Int
	LiquidityIndex      *uint256.Int
	VariableBorrowIndex *uint256.Int
}

// EventType satisfies the events.Event interface.
func (LendingReserveDataUpdated) EventType() string { return TypeLendingReserveDataUpdated }

// Event converts the payload into a broadcastable event.
func (e LendingReserveDataUpdated) Event() *types.Event {
	attrs := map[string]string{"asset": e.Asset.Hex()}
	putAmount(attrs, "liquidityRate", e.LiquidityRate)
	putAmount(attrs, "stableBorrowRate", e.StableBorrowRate)
	putAmount(attrs, "variableBorrowRate", e.VariableBorrowRate)
	putAmount(attrs, "liquidityIndex", e.LiquidityIndex)
	putAmount(attrs, "variableBorrowIndex", e.VariableBorrowIndex)
	return &types.Event{Type: TypeLendingReserveDataUpdated, Attributes: attrs}
}

// LendingTreasuryAccrued records the amount credited to the treasury.
type LendingTreasuryAccrued struct {
	Asset    common.Address
	Treasury common.Address
	Amount   *uint256.Int
}

// EventType satisfies the events.Event interface.
func (LendingTreasuryAccrued) EventType() string { return TypeLendingTreasuryAccrued }

// Event converts the payload into a broadcastable event.
func (e LendingTreasuryAccrued) Event() *types.Event {
	attrs := map[string]string{"asset": e.Asset.Hex(), "treasury": e.Treasury.Hex()}
	putAmount(attrs, "amount", e.Amount)
	return &types.Event{Type: TypeLendingTreasuryAccrued, Attributes: attrs}
}

// LendingDeposit records underlying supplied to a reserve.
type LendingDeposit struct {
	Asset      common.Address
	User       common.Address
	OnBehalfOf common.Address
	Amount     *uint256.Int
}

// EventType satisfies the events.Event interface.
func (LendingDeposit) EventType() string { return TypeLendingDeposit }

// Event converts the payload into a broadcastable event.
func (e LendingDeposit) Event() *types.Event {
	attrs := map[string]string{"asset": e.Asset.Hex(), "user": e.User.Hex(), "onBehalfOf": e.OnBehalfOf.Hex()}
	putAmount(attrs, "amount", e.Amount)
	return &types.Event{Type: TypeLendingDeposit, Attributes: attrs}
}

// LendingWithdraw records underlying redeemed from a reserve.
type LendingWithdraw struct {
	Asset  common.Address
	User   common.Address
	To     common.Address
	Amount *uint256.Int
}

// EventType satisfies the events.Event interface.
func (LendingWithdraw) EventType() string { return TypeLendingWithdraw }

// Event converts the payload into a broadcastable event.
func (e LendingWithdraw) Event() *types.Event {
	attrs := map[string]string{"asset": e.Asset.Hex(), "user": e.User.Hex(), "to": e.To.Hex()}
	putAmount(attrs, "amount", e.Amount)
	return &types.Event{Type: TypeLendingWithdraw, Attributes: attrs}
}

// LendingBorrow records a new borrow. Rate is the annual wad rate of the
// minted debt.
type LendingBorrow struct {
	Asset      common.Address
	User       common.Address
	OnBehalfOf common.Address
	Amount     *uint256.Int
	Mode       string
	Rate       *uint256.Int
}

// EventType satisfies the events.Event interface.
func (LendingBorrow) EventType() string { return TypeLendingBorrow }

// Event converts the payload into a broadcastable event.
func (e LendingBorrow) Event() *types.Event {
	attrs := map[string]string{
		"asset":      e.Asset.Hex(),
		"user":       e.User.Hex(),
		"onBehalfOf": e.OnBehalfOf.Hex(),
		"mode":       e.Mode,
	}
	putAmount(attrs, "amount", e.Amount)
	putAmount(attrs, "rate", e.Rate)
	return &types.Event{Type: TypeLendingBorrow, Attributes: attrs}
}

// LendingRepay records debt being repaid.
type LendingRepay struct {
	Asset   common.Address
	User    common.Address
	Repayer common.Address
	Amount  *uint256.Int
	Mode    string
}

// EventType satisfies the events.Event interface.
func (LendingRepay) EventType() string { return TypeLendingRepay }

// Event converts the payload into a broadcastable event.
func (e LendingRepay) Event() *types.Event {
	attrs := map[string]string{
		"asset":   e.Asset.Hex(),
		"user":    e.User.Hex(),
		"repayer": e.Repayer.Hex(),
		"mode":    e.Mode,
	}
	putAmount(attrs, "amount", e.Amount)
	return &types.Event{Type: TypeLendingRepay, Attributes: attrs}
}

// LendingRateModeSwapped records a user moving debt between rate modes. Mode
// is the mode the debt now accrues in.
type LendingRateModeSwapped struct {
	Asset  common.Address
	User   common.Address
	Mode   string
	Amount *uint256.Int
}

// EventType satisfies the events.Event interface.
func (LendingRateModeSwapped) EventType() string { return TypeLendingRateModeSwapped }

// Event converts the payload into a broadcastable event.
func (e LendingRateModeSwapped) Event() *types.Event {
	attrs := map[string]string{"asset": e.Asset.Hex(), "user": e.User.Hex(), "mode": e.Mode}
	putAmount(attrs, "amount", e.Amount)
	return &types.Event{Type: TypeLendingRateModeSwapped, Attributes: attrs}
}

// LendingCollateralUsage records a deposit being enabled or disabled as
// collateral.
type LendingCollateralUsage struct {
	Asset   common.Address
	User    common.Address
	Enabled bool
}

// EventType satisfies the events.Event interface.
func (LendingCollateralUsage) EventType() string { return TypeLendingCollateralUsage }

// Event converts the payload into a broadcastable event.
func (e LendingCollateralUsage) Event() *types.Event {
	return &types.Event{Type: TypeLendingCollateralUsage, Attributes: map[string]string{
		"asset":   e.Asset.Hex(),
		"user":    e.User.Hex(),
		"enabled": strconv.FormatBool(e.Enabled),
	}}
}

// LendingDelegation records a borrow allowance being set.
type LendingDelegation struct {
	Asset     common.Address
	Delegator common.Address
	Delegatee common.Address
	Mode      string
	Amount    *uint256.Int
}

// EventType satisfies the events.Event interface.
func (LendingDelegation) EventType() string { return TypeLendingDelegation }

// Event converts the payload into a broadcastable event.
func (e LendingDelegation) Event() *types.Event {
	attrs := map[string]string{
		"asset":     e.Asset.Hex(),
		"delegator": e.Delegator.Hex(),
		"delegatee": e.Delegatee.Hex(),
		"mode":      e.Mode,
	}
	putAmount(attrs, "amount", e.Amount)
	return &types.Event{Type: TypeLendingDelegation, Attributes: attrs}
}

// LendingLiquidation records a liquidation call.
type LendingLiquidation struct {
	CollateralAsset        common.Address
	DebtAsset              common.Address
	User                   common.Address
	Liquidator             common.Address
	DebtCovered            *uint256.Int
	CollateralSeized       *uint256.Int
	ReceiveCollateralToken bool
}

// EventType satisfies the events.Event interface.
func (LendingLiquidation) EventType() string { return TypeLendingLiquidation }

// Event converts the payload into a broadcastable event.
func (e LendingLiquidation) Event() *types.Event {
	attrs := map[string]string{
		"collateralAsset":        e.CollateralAsset.Hex(),
		"debtAsset":              e.DebtAsset.Hex(),
		"user":                   e.User.Hex(),
		"liquidator":             e.Liquidator.Hex(),
		"receiveCollateralToken": strconv.FormatBool(e.ReceiveCollateralToken),
	}
	putAmount(attrs, "debtCovered", e.DebtCovered)
	putAmount(attrs, "collateralSeized", e.CollateralSeized)
	return &types.Event{Type: TypeLendingLiquidation, Attributes: attrs}
}

// LendingFlashLoan records a repaid flash loan.
type LendingFlashLoan struct {
	Asset     common.Address
	Target    common.Address
	Initiator common.Address
	Amount    *uint256.Int
	Premium   *uint256.Int
}

// EventType satisfies the events.Event interface.
func (LendingFlashLoan) EventType() string { return TypeLendingFlashLoan }

// Event converts the payload into a broadcastable event.
func (e LendingFlashLoan) Event() *types.Event {
	attrs := map[string]string{
		"asset":     e.Asset.Hex(),
		"target":    e.Target.Hex(),
		"initiator": e.Initiator.Hex(),
	}
	putAmount(attrs, "amount", e.Amount)
	putAmount(attrs, "premium", e.Premium)
	return &types.Event{Type: TypeLendingFlashLoan, Attributes: attrs}
}
