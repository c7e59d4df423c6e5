package lending

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"meldlend/core/events"
	nativecommon "meldlend/native/common"
	"meldlend/native/lending/rates"
	"meldlend/native/lending/wadray"
)

const moduleName = "lending"

// Metrics receives engine activity. *metrics.LendingMetrics satisfies it.
type Metrics interface {
	RecordAction(action, outcome string, elapsed time.Duration)
	RecordLiquidation(collateral, debt string)
	ObserveReserve(asset string, utilization, liquidityRate, variableRate, stableRate, liquidityIndex, variableIndex float64)
}

// Engine orchestrates every state transition of the lending protocol. Calls
// are serialised by the caller; each one either applies in full or leaves the
// state untouched.
type Engine struct {
	state      *ProtocolState
	params     ProtocolParams
	oracle     PriceOracle
	rateOracle LendingRateOracle
	pauses     nativecommon.PauseView
	emitter    events.Emitter
	metrics    Metrics
	log        *slog.Logger
	timestamp  uint64
}

// NewEngine constructs an engine over state with the supplied protocol
// parameters.
func NewEngine(state *ProtocolState, params ProtocolParams) (*Engine, error) {
	if state == nil {
		return nil, ErrNilState
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		state:   state,
		params:  params,
		emitter: events.NoopEmitter{},
	}, nil
}

// State exposes the underlying protocol state for persistence.
func (e *Engine) State() *ProtocolState {
	if e == nil {
		return nil
	}
	return e.state
}

// Params returns the protocol parameters.
func (e *Engine) Params() ProtocolParams {
	if e == nil {
		return ProtocolParams{}
	}
	return e.params
}

// SetPriceOracle wires the USD price source.
func (e *Engine) SetPriceOracle(oracle PriceOracle) {
	if e == nil {
		return
	}
	e.oracle = oracle
}

// SetLendingRateOracle wires the optional market borrow rate source.
func (e *Engine) SetLendingRateOracle(oracle LendingRateOracle) {
	if e == nil {
		return
	}
	e.rateOracle = oracle
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures the event emitter used for lending events.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetMetrics wires the metrics sink.
func (e *Engine) SetMetrics(m Metrics) {
	if e == nil {
		return
	}
	e.metrics = m
}

// SetLogger overrides the default slog logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if e == nil {
		return
	}
	e.log = logger
}

// SetTimestamp records the unix time used when accruing interest. Time never
// moves backwards; earlier values are ignored.
func (e *Engine) SetTimestamp(ts uint64) {
	if e == nil || ts < e.timestamp {
		return
	}
	e.timestamp = ts
}

// Timestamp returns the engine's current unix time.
func (e *Engine) Timestamp() uint64 {
	if e == nil {
		return 0
	}
	return e.timestamp
}

func (e *Engine) logger() *slog.Logger {
	if e.log != nil {
		return e.log
	}
	return slog.Default()
}

// execute runs fn against a fresh overlay. The overlay is committed and its
// events emitted only when fn succeeds.
func (e *Engine) execute(action string, fn func(tx *txn) error) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		e.record(action, "paused", 0)
		return err
	}
	start := time.Now()
	tx := e.state.begin()
	if err := fn(tx); err != nil {
		e.record(action, "rejected", time.Since(start))
		e.logger().Debug("lending action rejected",
			slog.String("action", action),
			slog.Uint64("timestamp", e.timestamp),
			slog.Any("error", err))
		return err
	}
	tx.commit()
	for _, evt := range tx.events {
		e.emitter.Emit(evt)
	}
	e.observeReserves(tx)
	e.record(action, "ok", time.Since(start))
	return nil
}

// view runs a read-only fn against a discarded overlay.
func (e *Engine) view(fn func(tx *txn) error) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	return fn(e.state.begin())
}

func (e *Engine) record(action, outcome string, elapsed time.Duration) {
	if e.metrics == nil {
		return
	}
	e.metrics.RecordAction(action, outcome, elapsed)
}

func (e *Engine) observeReserves(tx *txn) {
	if e.metrics == nil {
		return
	}
	for asset, utilization := range tx.utilization {
		r := e.state.reserves[asset]
		if r == nil {
			continue
		}
		e.metrics.ObserveReserve(asset.Hex(),
			wadray.ToFloat(utilization, 18),
			wadray.ToFloat(&r.CurrentLiquidityRate, 18),
			wadray.ToFloat(&r.CurrentVariableBorrowRate, 18),
			wadray.ToFloat(&r.CurrentStableBorrowRate, 18),
			wadray.ToFloat(&r.LiquidityIndex, 27),
			wadray.ToFloat(&r.VariableBorrowIndex, 27))
	}
}

// InitReserve lists a new asset. Indexes start at one ray and the initial
// rates are priced for an empty reserve.
func (e *Engine) InitReserve(asset common.Address, cfg ReserveConfiguration, strategy rates.Strategy) error {
	return e.execute("init_reserve", func(tx *txn) error {
		if asset == (common.Address{}) {
			return fmt.Errorf("%w: zero asset address", ErrInvalidConfiguration)
		}
		if tx.hasReserve(asset) {
			return fmt.Errorf("%w: %s", ErrReserveAlreadyInitialized, asset.Hex())
		}
		if _, err := ReserveConfigurationFromWord(cfg.Word()); err != nil {
			return err
		}
		if err := strategy.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
		}
		if len(tx.reserveAssets()) >= 1<<16 {
			return fmt.Errorf("%w: reserve list full", ErrInvalidConfiguration)
		}
		r := &Reserve{
			Asset:                         asset,
			Configuration:                 cfg,
			Strategy:                      strategy,
			LastUpdateTimestamp:           e.timestamp,
			StableDebtLastUpdateTimestamp: e.timestamp,
		}
		r.LiquidityIndex.Set(wadray.Ray())
		r.VariableBorrowIndex.Set(wadray.Ray())
		tx.addReserve(r)
		tx.emit(events.LendingReserveInitialized{Asset: asset, ID: r.ID, Decimals: cfg.Decimals()})
		return e.updateInterestRates(tx, r, nil, nil)
	})
}

// SetReserveConfiguration replaces a reserve's risk parameters. Interest is
// accrued under the old parameters first.
func (e *Engine) SetReserveConfiguration(asset common.Address, cfg ReserveConfiguration) error {
	return e.execute("configure_reserve", func(tx *txn) error {
		if _, err := ReserveConfigurationFromWord(cfg.Word()); err != nil {
			return err
		}
		r, err := tx.reserve(asset)
		if err != nil {
			return err
		}
		if err := e.updateState(tx, r); err != nil {
			return err
		}
		r.Configuration = cfg
		tx.emit(events.LendingReserveConfigured{Asset: asset, Configuration: cfg.Word()})
		return e.updateInterestRates(tx, r, nil, nil)
	})
}

// SetReserveStrategy replaces a reserve's interest rate strategy.
func (e *Engine) SetReserveStrategy(asset common.Address, strategy rates.Strategy) error {
	return e.execute("configure_strategy", func(tx *txn) error {
		if err := strategy.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
		}
		r, err := tx.reserve(asset)
		if err != nil {
			return err
		}
		if err := e.updateState(tx, r); err != nil {
			return err
		}
		r.Strategy = strategy
		return e.updateInterestRates(tx, r, nil, nil)
	})
}

// UpdateState accrues a reserve's interest up to the current timestamp.
func (e *Engine) UpdateState(asset common.Address) error {
	return e.execute("update_state", func(tx *txn) error {
		r, err := tx.reserve(asset)
		if err != nil {
			return err
		}
		return e.updateState(tx, r)
	})
}

// ReservesList returns the listed assets in listing order.
func (e *Engine) ReservesList() []common.Address {
	if e == nil || e.state == nil {
		return nil
	}
	return append([]common.Address(nil), e.state.reservesList...)
}

// GetReserveData returns a copy of the reserve with totals and indexes brought
// up to the current timestamp.
func (e *Engine) GetReserveData(asset common.Address) (*ReserveData, error) {
	var out *ReserveData
	err := e.view(func(tx *txn) error {
		r, err := tx.reserve(asset)
		if err != nil {
			return err
		}
		income, err := normalizedIncome(r, e.timestamp)
		if err != nil {
			return err
		}
		debtIndex, err := normalizedVariableDebt(r, e.timestamp)
		if err != nil {
			return err
		}
		stable, err := totalStableDebt(r, e.timestamp)
		if err != nil {
			return err
		}
		var c wadray.Calc
		supply := c.RayMul(&r.TotalScaledSupply, income)
		variable := c.RayMul(&r.TotalScaledVariableDebt, debtIndex)
		if err := c.Err(); err != nil {
			return mathErr(err)
		}
		out = &ReserveData{
			Reserve:                r.Clone(),
			TotalSupply:            supply,
			TotalStableDebt:        stable,
			TotalVariableDebt:      variable,
			NormalizedIncome:       income,
			NormalizedVariableDebt: debtIndex,
		}
		return nil
	})
	return out, err
}

// GetUserAccountData aggregates a user's collateral, debt and health factor
// across every reserve at current prices.
func (e *Engine) GetUserAccountData(user common.Address) (AccountData, error) {
	var out AccountData
	err := e.view(func(tx *txn) error {
		data, err := e.accountData(tx, user)
		out = data
		return err
	})
	return out, err
}

// CollateralBalance returns user's current underlying balance in asset
// including accrued interest.
func (e *Engine) CollateralBalance(user, asset common.Address) (*uint256.Int, error) {
	var out *uint256.Int
	err := e.view(func(tx *txn) error {
		r, err := tx.reserve(asset)
		if err != nil {
			return err
		}
		out, err = collateralBalance(r, tx.collateralPosition(user, asset), e.timestamp)
		return err
	})
	return out, err
}

// UsingAsCollateral reports whether user's deposit in asset backs their debt.
func (e *Engine) UsingAsCollateral(user, asset common.Address) bool {
	if e == nil || e.state == nil {
		return false
	}
	p := e.state.collateral[positionKey{user: user, asset: asset}]
	return p != nil && p.UsageAsCollateralEnabled
}

// StableDebtBalance returns user's stable debt in asset including accrued
// interest.
func (e *Engine) StableDebtBalance(user, asset common.Address) (*uint256.Int, error) {
	var out *uint256.Int
	err := e.view(func(tx *txn) error {
		if _, err := tx.reserve(asset); err != nil {
			return err
		}
		var err error
		out, err = stableDebtBalance(tx.stablePosition(user, asset), e.timestamp)
		return err
	})
	return out, err
}

// VariableDebtBalance returns user's variable debt in asset including accrued
// interest.
func (e *Engine) VariableDebtBalance(user, asset common.Address) (*uint256.Int, error) {
	var out *uint256.Int
	err := e.view(func(tx *txn) error {
		r, err := tx.reserve(asset)
		if err != nil {
			return err
		}
		out, err = variableDebtBalance(r, tx.variablePosition(user, asset), e.timestamp)
		return err
	})
	return out, err
}

// UnderlyingBalance returns holder's balance of the underlying asset.
func (e *Engine) UnderlyingBalance(asset, holder common.Address) *uint256.Int {
	if e == nil || e.state == nil {
		return new(uint256.Int)
	}
	if b, ok := e.state.balances[balanceKey{asset: asset, holder: holder}]; ok {
		return new(uint256.Int).Set(b)
	}
	return new(uint256.Int)
}
