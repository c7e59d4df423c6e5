package lending

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"meldlend/native/lending/rates"
	"meldlend/native/lending/wadray"
)

// InterestRateMode selects the debt flavour of a borrow, repay or swap.
type InterestRateMode uint8

const (
	RateModeNone InterestRateMode = iota
	RateModeStable
	RateModeVariable
)

func (m InterestRateMode) String() string {
	switch m {
	case RateModeStable:
		return "stable"
	case RateModeVariable:
		return "variable"
	default:
		return "none"
	}
}

// Valid reports whether m names a borrowable rate mode.
func (m InterestRateMode) Valid() bool { return m == RateModeStable || m == RateModeVariable }

// ParseInterestRateMode maps "stable" and "variable" onto rate modes.
func ParseInterestRateMode(s string) (InterestRateMode, error) {
	switch s {
	case "stable":
		return RateModeStable, nil
	case "variable":
		return RateModeVariable, nil
	default:
		return RateModeNone, ErrInvalidInterestRateMode
	}
}

// FullAmount is the sentinel amount meaning "the entire balance" for
// withdrawals, repayments and liquidations.
func FullAmount() *uint256.Int { return wadray.Max() }

func isFullAmount(x *uint256.Int) bool { return wadray.IsMax(x) }

// Reserve captures the accounting state of a single listed asset.
type Reserve struct {
	// Asset identifies the underlying token.
	Asset common.Address
	// ID is the reserve's position in the ordered reserves list.
	ID uint16
	// Configuration packs the risk parameters and flags.
	Configuration ReserveConfiguration
	// Strategy prices borrow and liquidity rates from utilisation.
	Strategy rates.Strategy
	// LiquidityIndex is the ray index converting scaled collateral balances
	// into underlying amounts.
	LiquidityIndex uint256.Int
	// VariableBorrowIndex is the ray index converting scaled variable debt
	// into underlying amounts.
	VariableBorrowIndex uint256.Int
	// CurrentLiquidityRate is the annual wad rate earned by suppliers.
	CurrentLiquidityRate uint256.Int
	// CurrentVariableBorrowRate is the annual wad rate paid by variable
	// borrowers.
	CurrentVariableBorrowRate uint256.Int
	// CurrentStableBorrowRate is the annual wad rate locked in by new stable
	// borrows.
	CurrentStableBorrowRate uint256.Int
	// LastUpdateTimestamp records when the indexes were last advanced.
	LastUpdateTimestamp uint64
	// AvailableLiquidity is the underlying held in custody for this reserve.
	AvailableLiquidity uint256.Int
	// TotalScaledSupply sums every scaled collateral balance.
	TotalScaledSupply uint256.Int
	// TotalScaledVariableDebt sums every scaled variable debt balance.
	TotalScaledVariableDebt uint256.Int
	// TotalPrincipalStableDebt is the stable debt supply as of
	// StableDebtLastUpdateTimestamp.
	TotalPrincipalStableDebt uint256.Int
	// AverageStableBorrowRate is the principal weighted wad stable rate.
	AverageStableBorrowRate uint256.Int
	// StableDebtLastUpdateTimestamp records when the stable supply was last
	// rebased.
	StableDebtLastUpdateTimestamp uint64
}

// Clone returns a deep copy of the reserve.
func (r *Reserve) Clone() *Reserve {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

// CollateralPosition is a user's interest-bearing deposit in one reserve.
type CollateralPosition struct {
	User  common.Address
	Asset common.Address
	// ScaledBalance multiplied by the liquidity index gives the underlying
	// balance.
	ScaledBalance uint256.Int
	// UsageAsCollateralEnabled marks the deposit as backing the user's debt.
	UsageAsCollateralEnabled bool
}

// Clone returns a deep copy of the position.
func (p *CollateralPosition) Clone() *CollateralPosition {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

// StableDebtPosition is a user's fixed-rate debt in one reserve.
type StableDebtPosition struct {
	User  common.Address
	Asset common.Address
	// Principal is the balance as of LastUpdateTimestamp.
	Principal uint256.Int
	// Rate is the user's weighted annual wad stable rate.
	Rate                uint256.Int
	LastUpdateTimestamp uint64
}

// Clone returns a deep copy of the position.
func (p *StableDebtPosition) Clone() *StableDebtPosition {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

// VariableDebtPosition is a user's floating-rate debt in one reserve.
type VariableDebtPosition struct {
	User  common.Address
	Asset common.Address
	// ScaledBalance multiplied by the variable borrow index gives the debt.
	ScaledBalance uint256.Int
}

// Clone returns a deep copy of the position.
func (p *VariableDebtPosition) Clone() *VariableDebtPosition {
	if p == nil {
		return nil
	}
	clone := *p
	return &clone
}

// AllowanceKey identifies one credit delegation.
type AllowanceKey struct {
	Delegator common.Address
	Delegatee common.Address
	Asset     common.Address
	Mode      InterestRateMode
}

// Allowance is a stored credit delegation.
type Allowance struct {
	AllowanceKey
	Amount uint256.Int
}

// Balance is a stored underlying token balance.
type Balance struct {
	Asset  common.Address
	Holder common.Address
	Amount uint256.Int
}

// AccountData summarises a user's position across every reserve. Values are
// wad USD unless noted.
type AccountData struct {
	TotalCollateralUSD  *uint256.Int
	TotalDebtUSD        *uint256.Int
	AvailableBorrowsUSD *uint256.Int
	// CurrentLTV is the collateral weighted loan to value in bps.
	CurrentLTV uint64
	// CurrentLiquidationThreshold is the collateral weighted threshold in bps.
	CurrentLiquidationThreshold uint64
	// HealthFactor is a wad; it is FullAmount() when the user has no debt.
	HealthFactor *uint256.Int
}

// ReserveData is a read-only view of a reserve with derived totals brought up
// to the engine's current timestamp.
type ReserveData struct {
	Reserve           *Reserve
	TotalSupply       *uint256.Int
	TotalStableDebt   *uint256.Int
	TotalVariableDebt *uint256.Int
	// NormalizedIncome is the liquidity index as of now.
	NormalizedIncome *uint256.Int
	// NormalizedVariableDebt is the variable borrow index as of now.
	NormalizedVariableDebt *uint256.Int
}

// LiquidationResult reports what a liquidation moved.
type LiquidationResult struct {
	DebtRepaid       *uint256.Int
	CollateralSeized *uint256.Int
}

type positionKey struct {
	user  common.Address
	asset common.Address
}

type balanceKey struct {
	asset  common.Address
	holder common.Address
}
