package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"meldlend/config"
	"meldlend/core/events"
	"meldlend/core/types"
	nativecommon "meldlend/native/common"
	"meldlend/native/lending"
	"meldlend/native/lending/oracle"
	"meldlend/native/lending/wadray"
)

// Scenario is a scripted sequence of protocol interactions.
type Scenario struct {
	// Start sets the clock when the state is fresh.
	Start uint64 `yaml:"start"`
	Steps []Step `yaml:"steps"`
}

// Step is one scripted interaction. Fields not used by an action are ignored.
type Step struct {
	Action            string `yaml:"action"`
	User              string `yaml:"user"`
	Asset             string `yaml:"asset"`
	Amount            string `yaml:"amount"`
	Mode              string `yaml:"mode"`
	OnBehalfOf        string `yaml:"on_behalf_of"`
	To                string `yaml:"to"`
	Delegatee         string `yaml:"delegatee"`
	Borrower          string `yaml:"borrower"`
	Collateral        string `yaml:"collateral"`
	ReceiveCollateral bool   `yaml:"receive_collateral"`
	Enabled           *bool  `yaml:"enabled"`
	USD               string `yaml:"usd"`
	Duration          string `yaml:"duration"`
	Module            string `yaml:"module"`
	// ExpectError marks the step as expected to fail with an error containing
	// this text.
	ExpectError string `yaml:"expect_error"`
}

// LoadScenario decodes a YAML scenario file.
func LoadScenario(path string) (*Scenario, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario: %w", err)
	}
	defer file.Close()
	return DecodeScenario(file)
}

// DecodeScenario decodes a YAML scenario, rejecting unknown fields.
func DecodeScenario(r io.Reader) (*Scenario, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	for i := range sc.Steps {
		sc.Steps[i].Action = strings.ToLower(strings.TrimSpace(sc.Steps[i].Action))
		if sc.Steps[i].Action == "" {
			return nil, fmt.Errorf("step %d: action required", i+1)
		}
	}
	return &sc, nil
}

// simulator drives an engine through scenario steps.
type simulator struct {
	markets   *config.Markets
	engine    *lending.Engine
	prices    *oracle.Manual
	pauses    *nativecommon.PauseSet
	collector *events.Collector
	log       *slog.Logger
	users     map[string]common.Address
}

func newSimulator(markets *config.Markets, engine *lending.Engine, logger *slog.Logger) (*simulator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &simulator{
		markets:   markets,
		engine:    engine,
		prices:    oracle.NewManual(markets.PriceMaxAge()),
		pauses:    markets.PauseSet(),
		collector: &events.Collector{},
		log:       logger,
		users:     make(map[string]common.Address),
	}
	s.prices.SetClock(s.now)
	if err := markets.SeedOracle(s.prices, s.now()); err != nil {
		return nil, err
	}
	engine.SetPriceOracle(s.prices)
	engine.SetLendingRateOracle(s.prices)
	engine.SetEmitter(s.collector)
	engine.SetLogger(logger)
	return s, nil
}

func (s *simulator) now() time.Time {
	return time.Unix(int64(s.engine.Timestamp()), 0).UTC()
}

// Run replays every step. A step failing unexpectedly aborts the run.
// Configured pauses take effect from the first step.
func (s *simulator) Run(ctx context.Context, sc *Scenario) error {
	s.engine.SetPauses(s.pauses)
	for i, step := range sc.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.apply(step)
		logger := s.log.With(slog.Int("step", i+1), slog.String("action", step.Action))
		switch {
		case step.ExpectError == "" && err != nil:
			return fmt.Errorf("step %d (%s): %w", i+1, step.Action, err)
		case step.ExpectError != "" && err == nil:
			return fmt.Errorf("step %d (%s): expected error containing %q", i+1, step.Action, step.ExpectError)
		case step.ExpectError != "" && !strings.Contains(err.Error(), step.ExpectError):
			return fmt.Errorf("step %d (%s): expected error containing %q, got %w", i+1, step.Action, step.ExpectError, err)
		case err != nil:
			logger.Info("step rejected as expected", slog.String("reason", err.Error()))
		default:
			logger.Info("step applied", slog.Uint64("timestamp", s.engine.Timestamp()))
		}
	}
	return nil
}

func (s *simulator) apply(step Step) error {
	switch step.Action {
	case "fund":
		r, amount, err := s.reserveAmount(step.Asset, step.Amount, false)
		if err != nil {
			return err
		}
		return s.engine.State().Credit(r.Address(), s.user(step.User), amount)
	case "price":
		r, err := s.reserve(step.Asset)
		if err != nil {
			return err
		}
		return s.prices.SetPriceDecimal(r.Address(), step.USD, s.now())
	case "market_rate":
		r, err := s.reserve(step.Asset)
		if err != nil {
			return err
		}
		return s.prices.SetMarketRate(r.Address(), step.Amount)
	case "deposit":
		r, amount, err := s.reserveAmount(step.Asset, step.Amount, false)
		if err != nil {
			return err
		}
		return s.engine.Deposit(s.user(step.User), r.Address(), amount, s.userOr(step.OnBehalfOf, step.User))
	case "withdraw":
		r, amount, err := s.reserveAmount(step.Asset, step.Amount, true)
		if err != nil {
			return err
		}
		_, err = s.engine.Withdraw(s.user(step.User), r.Address(), amount, s.userOr(step.To, step.User))
		return err
	case "borrow":
		r, amount, err := s.reserveAmount(step.Asset, step.Amount, false)
		if err != nil {
			return err
		}
		mode, err := lending.ParseInterestRateMode(step.Mode)
		if err != nil {
			return err
		}
		return s.engine.Borrow(s.user(step.User), r.Address(), amount, mode, s.userOr(step.OnBehalfOf, step.User))
	case "repay":
		r, amount, err := s.reserveAmount(step.Asset, step.Amount, true)
		if err != nil {
			return err
		}
		mode, err := lending.ParseInterestRateMode(step.Mode)
		if err != nil {
			return err
		}
		_, err = s.engine.Repay(s.user(step.User), r.Address(), amount, mode, s.userOr(step.OnBehalfOf, step.User))
		return err
	case "swap_rate_mode":
		r, err := s.reserve(step.Asset)
		if err != nil {
			return err
		}
		mode, err := lending.ParseInterestRateMode(step.Mode)
		if err != nil {
			return err
		}
		return s.engine.SwapBorrowRateMode(s.user(step.User), r.Address(), mode)
	case "collateral":
		r, err := s.reserve(step.Asset)
		if err != nil {
			return err
		}
		if step.Enabled == nil {
			return fmt.Errorf("collateral step requires enabled")
		}
		return s.engine.SetUserUseReserveAsCollateral(s.user(step.User), r.Address(), *step.Enabled)
	case "delegate":
		r, amount, err := s.reserveAmount(step.Asset, step.Amount, false)
		if err != nil {
			return err
		}
		mode, err := lending.ParseInterestRateMode(step.Mode)
		if err != nil {
			return err
		}
		return s.engine.ApproveDelegation(s.user(step.User), s.user(step.Delegatee), r.Address(), mode, amount)
	case "liquidate":
		collateral, err := s.reserve(step.Collateral)
		if err != nil {
			return err
		}
		debt, amount, err := s.reserveAmount(step.Asset, step.Amount, true)
		if err != nil {
			return err
		}
		result, err := s.engine.LiquidationCall(s.user(step.User), collateral.Address(), debt.Address(), s.user(step.Borrower), amount, step.ReceiveCollateral)
		if err != nil {
			return err
		}
		s.log.Info("liquidation settled",
			slog.String("borrower", step.Borrower),
			slog.String("debtRepaid", wadray.FormatUnits(result.DebtRepaid, debt.Decimals)),
			slog.String("collateralSeized", wadray.FormatUnits(result.CollateralSeized, collateral.Decimals)))
		return nil
	case "advance":
		d, err := time.ParseDuration(step.Duration)
		if err != nil {
			return fmt.Errorf("advance: %w", err)
		}
		if d <= 0 {
			return fmt.Errorf("advance: duration must be positive")
		}
		s.engine.SetTimestamp(s.engine.Timestamp() + uint64(d/time.Second))
		for _, asset := range s.engine.ReservesList() {
			if err := s.engine.UpdateState(asset); err != nil {
				return err
			}
		}
		return nil
	case "pause":
		s.pauses.Pause(strings.ToLower(strings.TrimSpace(step.Module)))
		return nil
	case "resume":
		s.pauses.Resume(strings.ToLower(strings.TrimSpace(step.Module)))
		return nil
	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}
}

func (s *simulator) reserve(name string) (config.Reserve, error) {
	r, ok := s.markets.Lookup(name)
	if !ok {
		return config.Reserve{}, fmt.Errorf("%w: %s", lending.ErrReserveNotFound, name)
	}
	return r, nil
}

// reserveAmount resolves the asset and parses amount in its units. "max" is
// accepted where the engine understands the full amount sentinel.
func (s *simulator) reserveAmount(asset, amount string, allowMax bool) (config.Reserve, *uint256.Int, error) {
	r, err := s.reserve(asset)
	if err != nil {
		return r, nil, err
	}
	if allowMax && strings.EqualFold(strings.TrimSpace(amount), "max") {
		return r, lending.FullAmount(), nil
	}
	parsed, err := wadray.ParseUnits(strings.TrimSpace(amount), r.Decimals)
	if err != nil {
		return r, nil, err
	}
	return r, parsed, nil
}

func (s *simulator) user(alias string) common.Address {
	alias = strings.TrimSpace(alias)
	addr := config.ResolveAddress(alias)
	if alias != "" {
		s.users[alias] = addr
	}
	return addr
}

func (s *simulator) userOr(alias, fallback string) common.Address {
	if strings.TrimSpace(alias) == "" {
		return s.user(fallback)
	}
	return s.user(alias)
}

// UserReport summarises one account after the run.
type UserReport struct {
	Alias               string            `json:"alias"`
	Address             string            `json:"address"`
	TotalCollateralUSD  string            `json:"totalCollateralUSD"`
	TotalDebtUSD        string            `json:"totalDebtUSD"`
	AvailableBorrowsUSD string            `json:"availableBorrowsUSD"`
	HealthFactor        string            `json:"healthFactor"`
	Collateral          map[string]string `json:"collateral,omitempty"`
	StableDebt          map[string]string `json:"stableDebt,omitempty"`
	VariableDebt        map[string]string `json:"variableDebt,omitempty"`
	Wallet              map[string]string `json:"wallet,omitempty"`
}

// ReserveReport summarises one reserve after the run.
type ReserveReport struct {
	Symbol             string `json:"symbol"`
	Asset              string `json:"asset"`
	AvailableLiquidity string `json:"availableLiquidity"`
	TotalSupply        string `json:"totalSupply"`
	TotalStableDebt    string `json:"totalStableDebt"`
	TotalVariableDebt  string `json:"totalVariableDebt"`
	LiquidityRate      string `json:"liquidityRate"`
	VariableBorrowRate string `json:"variableBorrowRate"`
	StableBorrowRate   string `json:"stableBorrowRate"`
	LiquidityIndex     string `json:"liquidityIndex"`
	VariableIndex      string `json:"variableBorrowIndex"`
}

// Report is the simulator's final output.
type Report struct {
	Timestamp uint64          `json:"timestamp"`
	Reserves  []ReserveReport `json:"reserves"`
	Users     []UserReport    `json:"users"`
	Events    []*types.Event  `json:"events"`
}

func (s *simulator) Report() (*Report, error) {
	out := &Report{Timestamp: s.engine.Timestamp()}
	for _, r := range s.markets.Reserves {
		data, err := s.engine.GetReserveData(r.Address())
		if err != nil {
			return nil, fmt.Errorf("reserve %s: %w", r.Symbol, err)
		}
		out.Reserves = append(out.Reserves, ReserveReport{
			Symbol:             r.Symbol,
			Asset:              r.Address().Hex(),
			AvailableLiquidity: wadray.FormatUnits(&data.Reserve.AvailableLiquidity, r.Decimals),
			TotalSupply:        wadray.FormatUnits(data.TotalSupply, r.Decimals),
			TotalStableDebt:    wadray.FormatUnits(data.TotalStableDebt, r.Decimals),
			TotalVariableDebt:  wadray.FormatUnits(data.TotalVariableDebt, r.Decimals),
			LiquidityRate:      wadray.FormatUnits(&data.Reserve.CurrentLiquidityRate, 18),
			VariableBorrowRate: wadray.FormatUnits(&data.Reserve.CurrentVariableBorrowRate, 18),
			StableBorrowRate:   wadray.FormatUnits(&data.Reserve.CurrentStableBorrowRate, 18),
			LiquidityIndex:     wadray.FormatUnits(data.NormalizedIncome, 27),
			VariableIndex:      wadray.FormatUnits(data.NormalizedVariableDebt, 27),
		})
	}

	aliases := make([]string, 0, len(s.users))
	for alias := range s.users {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	for _, alias := range aliases {
		addr := s.users[alias]
		account, err := s.engine.GetUserAccountData(addr)
		if err != nil {
			return nil, fmt.Errorf("user %s: %w", alias, err)
		}
		user := UserReport{
			Alias:               alias,
			Address:             addr.Hex(),
			TotalCollateralUSD:  wadray.FormatUnits(account.TotalCollateralUSD, 18),
			TotalDebtUSD:        wadray.FormatUnits(account.TotalDebtUSD, 18),
			AvailableBorrowsUSD: wadray.FormatUnits(account.AvailableBorrowsUSD, 18),
			HealthFactor:        "inf",
			Collateral:          map[string]string{},
			StableDebt:          map[string]string{},
			VariableDebt:        map[string]string{},
			Wallet:              map[string]string{},
		}
		if !account.HealthFactor.Eq(lending.FullAmount()) {
			user.HealthFactor = wadray.FormatUnits(account.HealthFactor, 18)
		}
		for _, r := range s.markets.Reserves {
			asset := r.Address()
			if err := putNonZero(user.Collateral, r, func() (*uint256.Int, error) { return s.engine.CollateralBalance(addr, asset) }); err != nil {
				return nil, err
			}
			if err := putNonZero(user.StableDebt, r, func() (*uint256.Int, error) { return s.engine.StableDebtBalance(addr, asset) }); err != nil {
				return nil, err
			}
			if err := putNonZero(user.VariableDebt, r, func() (*uint256.Int, error) { return s.engine.VariableDebtBalance(addr, asset) }); err != nil {
				return nil, err
			}
			if err := putNonZero(user.Wallet, r, func() (*uint256.Int, error) { return s.engine.UnderlyingBalance(asset, addr), nil }); err != nil {
				return nil, err
			}
		}
		out.Users = append(out.Users, user)
	}

	out.Events = s.collector.Records()
	return out, nil
}

func putNonZero(dst map[string]string, r config.Reserve, fetch func() (*uint256.Int, error)) error {
	amount, err := fetch()
	if err != nil {
		if errors.Is(err, lending.ErrReserveNotFound) {
			return nil
		}
		return fmt.Errorf("%s balance: %w", r.Symbol, err)
	}
	if amount != nil && !amount.IsZero() {
		dst[r.Symbol] = wadray.FormatUnits(amount, r.Decimals)
	}
	return nil
}
