package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	nativecommon "meldlend/native/common"
	"meldlend/native/lending"
	"meldlend/native/lending/oracle"
	"meldlend/native/lending/rates"
	"meldlend/native/lending/wadray"
)

// Markets is the on-disk description of a lending market: protocol
// constants plus every listed reserve.
type Markets struct {
	Protocol Protocol  `toml:"protocol"`
	Reserves []Reserve `toml:"reserve"`
	// Paused lists modules that start paused.
	Paused []string `toml:"Paused"`
}

// Protocol holds the protocol-wide constants. Percentages are decimal
// fractions ("0.5" is 50%).
type Protocol struct {
	Custody                string `toml:"Custody"`
	Treasury               string `toml:"Treasury"`
	CloseFactor            string `toml:"CloseFactor"`
	FullCloseHealthFactor  string `toml:"FullCloseHealthFactor"`
	MaxStableBorrowPercent string `toml:"MaxStableBorrowPercent"`
	FlashLoanPremium       string `toml:"FlashLoanPremium"`
	// PriceMaxAgeSeconds bounds oracle quote age; 0 disables the check.
	PriceMaxAgeSeconds uint64 `toml:"PriceMaxAgeSeconds"`
}

// Reserve describes one listed asset.
type Reserve struct {
	Symbol                 string   `toml:"Symbol"`
	Asset                  string   `toml:"Asset"`
	Decimals               uint8    `toml:"Decimals"`
	LTV                    string   `toml:"LTV"`
	LiquidationThreshold   string   `toml:"LiquidationThreshold"`
	LiquidationBonus       string   `toml:"LiquidationBonus"`
	ReserveFactor          string   `toml:"ReserveFactor"`
	Frozen                 bool     `toml:"Frozen"`
	BorrowingEnabled       bool     `toml:"BorrowingEnabled"`
	StableBorrowingEnabled bool     `toml:"StableBorrowingEnabled"`
	SupplyCapUSD           uint64   `toml:"SupplyCapUSD"`
	BorrowCapUSD           uint64   `toml:"BorrowCapUSD"`
	FlashLoanLimitUSD      uint64   `toml:"FlashLoanLimitUSD"`
	PriceUSD               string   `toml:"PriceUSD"`
	MarketBorrowRate       string   `toml:"MarketBorrowRate"`
	Strategy               Strategy `toml:"strategy"`
}

// Strategy holds the interest rate curve as decimal fractions.
type Strategy struct {
	OptimalUtilization     string `toml:"OptimalUtilization"`
	BaseVariableBorrowRate string `toml:"BaseVariableBorrowRate"`
	VariableRateSlope1     string `toml:"VariableRateSlope1"`
	VariableRateSlope2     string `toml:"VariableRateSlope2"`
	StableRateSlope1       string `toml:"StableRateSlope1"`
	StableRateSlope2       string `toml:"StableRateSlope2"`
}

// LoadMarkets loads the market configuration from the given path, writing a
// default file first when none exists.
func LoadMarkets(path string) (*Markets, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	m := &Markets{}
	meta, err := toml.DecodeFile(path, m)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("markets file %s has unknown keys: %s", path, strings.Join(keys, ", "))
	}

	m.normalize()
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("markets file %s: %w", path, err)
	}
	return m, nil
}

// DefaultMarkets returns a three asset market suitable for local simulation.
func DefaultMarkets() *Markets {
	stable := Strategy{
		OptimalUtilization:     "0.8",
		BaseVariableBorrowRate: "0",
		VariableRateSlope1:     "0.04",
		VariableRateSlope2:     "0.75",
		StableRateSlope1:       "0.02",
		StableRateSlope2:       "0.6",
	}
	volatile := Strategy{
		OptimalUtilization:     "0.65",
		BaseVariableBorrowRate: "0",
		VariableRateSlope1:     "0.08",
		VariableRateSlope2:     "1",
		StableRateSlope1:       "0.1",
		StableRateSlope2:       "1",
	}
	m := &Markets{
		Reserves: []Reserve{
			{Symbol: "DAI", Decimals: 18, LTV: "0.75", LiquidationThreshold: "0.8", LiquidationBonus: "1.05", ReserveFactor: "0.1",
				BorrowingEnabled: true, StableBorrowingEnabled: true, PriceUSD: "1", Strategy: stable},
			{Symbol: "USDC", Decimals: 6, LTV: "0.75", LiquidationThreshold: "0.8", LiquidationBonus: "1.05", ReserveFactor: "0.1",
				BorrowingEnabled: true, StableBorrowingEnabled: true, PriceUSD: "1", Strategy: stable},
			{Symbol: "WETH", Decimals: 18, LTV: "0.8", LiquidationThreshold: "0.825", LiquidationBonus: "1.05", ReserveFactor: "0.1",
				BorrowingEnabled: true, PriceUSD: "2000", Strategy: volatile},
		},
		Paused: []string{},
	}
	m.normalize()
	return m
}

func createDefault(path string) (*Markets, error) {
	m := DefaultMarkets()
	if err := persist(path, m); err != nil {
		return nil, err
	}
	return m, nil
}

func persist(path string, m *Markets) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(m)
}

func (m *Markets) normalize() {
	p := &m.Protocol
	p.Custody = strings.TrimSpace(p.Custody)
	if p.Custody == "" {
		p.Custody = "custody"
	}
	p.Treasury = strings.TrimSpace(p.Treasury)
	if p.Treasury == "" {
		p.Treasury = "treasury"
	}
	defaultString(&p.CloseFactor, "0.5")
	defaultString(&p.FullCloseHealthFactor, "0.95")
	defaultString(&p.MaxStableBorrowPercent, "0.25")
	defaultString(&p.FlashLoanPremium, "0.0009")

	for i := range m.Reserves {
		r := &m.Reserves[i]
		r.Symbol = strings.ToUpper(strings.TrimSpace(r.Symbol))
		r.Asset = strings.TrimSpace(r.Asset)
		defaultString(&r.LiquidationBonus, "0")
		defaultString(&r.ReserveFactor, "0")
		defaultString(&r.Strategy.BaseVariableBorrowRate, "0")
		defaultString(&r.Strategy.VariableRateSlope1, "0")
		defaultString(&r.Strategy.VariableRateSlope2, "0")
		defaultString(&r.Strategy.StableRateSlope1, "0")
		defaultString(&r.Strategy.StableRateSlope2, "0")
	}
	if m.Paused == nil {
		m.Paused = []string{}
	}
	for i, module := range m.Paused {
		m.Paused[i] = strings.ToLower(strings.TrimSpace(module))
	}
}

func defaultString(field *string, fallback string) {
	*field = strings.TrimSpace(*field)
	if *field == "" {
		*field = fallback
	}
}

func (m *Markets) validate() error {
	if _, err := m.ProtocolParams(); err != nil {
		return err
	}
	if len(m.Reserves) == 0 {
		return fmt.Errorf("no reserves configured")
	}
	symbols := make(map[string]struct{}, len(m.Reserves))
	assets := make(map[common.Address]string, len(m.Reserves))
	for _, r := range m.Reserves {
		if r.Symbol == "" {
			return fmt.Errorf("reserve symbol required")
		}
		if _, dup := symbols[r.Symbol]; dup {
			return fmt.Errorf("reserve %s: duplicate symbol", r.Symbol)
		}
		symbols[r.Symbol] = struct{}{}
		addr := r.Address()
		if other, dup := assets[addr]; dup {
			return fmt.Errorf("reserve %s: asset %s already listed by %s", r.Symbol, addr.Hex(), other)
		}
		assets[addr] = r.Symbol

		if _, err := r.Configuration(); err != nil {
			return fmt.Errorf("reserve %s: %w", r.Symbol, err)
		}
		if _, err := r.RateStrategy(); err != nil {
			return fmt.Errorf("reserve %s: %w", r.Symbol, err)
		}
		if r.PriceUSD != "" {
			price, err := wadray.ParseWad(r.PriceUSD)
			if err != nil {
				return fmt.Errorf("reserve %s: price: %w", r.Symbol, err)
			}
			if price.IsZero() {
				return fmt.Errorf("reserve %s: price must be positive", r.Symbol)
			}
		}
		if r.MarketBorrowRate != "" {
			if _, err := wadray.ParseWad(r.MarketBorrowRate); err != nil {
				return fmt.Errorf("reserve %s: market borrow rate: %w", r.Symbol, err)
			}
		}
	}
	return nil
}

// ProtocolParams converts the protocol section into engine parameters.
func (m *Markets) ProtocolParams() (lending.ProtocolParams, error) {
	p := lending.DefaultProtocolParams(ResolveAddress(m.Protocol.Custody), ResolveAddress(m.Protocol.Treasury))
	var err error
	if p.CloseFactor, err = wadray.ParseBps(m.Protocol.CloseFactor); err != nil {
		return p, fmt.Errorf("protocol close factor: %w", err)
	}
	fullClose, err := wadray.ParseWad(m.Protocol.FullCloseHealthFactor)
	if err != nil {
		return p, fmt.Errorf("protocol full close health factor: %w", err)
	}
	p.FullCloseHealthFactor.Set(fullClose)
	if p.MaxStableBorrowPercent, err = wadray.ParseBps(m.Protocol.MaxStableBorrowPercent); err != nil {
		return p, fmt.Errorf("protocol max stable borrow percent: %w", err)
	}
	if p.FlashLoanPremium, err = wadray.ParseBps(m.Protocol.FlashLoanPremium); err != nil {
		return p, fmt.Errorf("protocol flash loan premium: %w", err)
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// PriceMaxAge returns the configured oracle staleness bound.
func (m *Markets) PriceMaxAge() time.Duration {
	return time.Duration(m.Protocol.PriceMaxAgeSeconds) * time.Second
}

// Address returns the configured asset address, or one derived from the
// symbol when none is set.
func (r Reserve) Address() common.Address {
	if r.Asset != "" {
		return ResolveAddress(r.Asset)
	}
	return ResolveAddress("asset:" + r.Symbol)
}

// Configuration packs the reserve's risk parameters.
func (r Reserve) Configuration() (lending.ReserveConfiguration, error) {
	params := lending.ReserveParams{
		Decimals:               r.Decimals,
		Active:                 true,
		Frozen:                 r.Frozen,
		BorrowingEnabled:       r.BorrowingEnabled,
		StableBorrowingEnabled: r.StableBorrowingEnabled,
		SupplyCapUSD:           r.SupplyCapUSD,
		BorrowCapUSD:           r.BorrowCapUSD,
		FlashLoanLimitUSD:      r.FlashLoanLimitUSD,
	}
	fields := []struct {
		name  string
		value string
		dst   *uint64
	}{
		{"ltv", r.LTV, &params.LTV},
		{"liquidation threshold", r.LiquidationThreshold, &params.LiquidationThreshold},
		{"liquidation bonus", r.LiquidationBonus, &params.LiquidationBonus},
		{"reserve factor", r.ReserveFactor, &params.ReserveFactor},
	}
	for _, f := range fields {
		bps, err := wadray.ParseBps(f.value)
		if err != nil {
			return lending.ReserveConfiguration{}, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = bps
	}
	return lending.NewReserveConfiguration(params)
}

// RateStrategy parses the reserve's interest rate curve.
func (r Reserve) RateStrategy() (rates.Strategy, error) {
	s := r.Strategy
	values := []string{s.OptimalUtilization, s.BaseVariableBorrowRate, s.VariableRateSlope1, s.VariableRateSlope2, s.StableRateSlope1, s.StableRateSlope2}
	parsed := make([]*uint256.Int, len(values))
	for i, v := range values {
		w, err := wadray.ParseWad(v)
		if err != nil {
			return rates.Strategy{}, fmt.Errorf("strategy: %w", err)
		}
		parsed[i] = w
	}
	strategy := rates.NewStrategy(parsed[0], parsed[1], parsed[2], parsed[3], parsed[4], parsed[5])
	if err := strategy.Validate(); err != nil {
		return rates.Strategy{}, err
	}
	return strategy, nil
}

// Lookup finds a reserve by symbol or asset address.
func (m *Markets) Lookup(name string) (Reserve, bool) {
	symbol := strings.ToUpper(strings.TrimSpace(name))
	for _, r := range m.Reserves {
		if r.Symbol == symbol {
			return r, true
		}
	}
	if common.IsHexAddress(name) {
		addr := common.HexToAddress(name)
		for _, r := range m.Reserves {
			if r.Address() == addr {
				return r, true
			}
		}
	}
	return Reserve{}, false
}

// Apply lists every configured reserve on the engine. Reserves already
// present, for example after loading a snapshot, are reconfigured instead.
func (m *Markets) Apply(engine *lending.Engine) error {
	listed := make(map[common.Address]struct{})
	for _, asset := range engine.ReservesList() {
		listed[asset] = struct{}{}
	}
	for _, r := range m.Reserves {
		cfg, err := r.Configuration()
		if err != nil {
			return fmt.Errorf("reserve %s: %w", r.Symbol, err)
		}
		strategy, err := r.RateStrategy()
		if err != nil {
			return fmt.Errorf("reserve %s: %w", r.Symbol, err)
		}
		asset := r.Address()
		if _, ok := listed[asset]; ok {
			if err := engine.SetReserveConfiguration(asset, cfg); err != nil {
				return fmt.Errorf("reserve %s: %w", r.Symbol, err)
			}
			if err := engine.SetReserveStrategy(asset, strategy); err != nil {
				return fmt.Errorf("reserve %s: %w", r.Symbol, err)
			}
			continue
		}
		if err := engine.InitReserve(asset, cfg, strategy); err != nil {
			return fmt.Errorf("reserve %s: %w", r.Symbol, err)
		}
	}
	return nil
}

// SeedOracle records the configured prices and market rates observed at ts.
func (m *Markets) SeedOracle(o *oracle.Manual, ts time.Time) error {
	for _, r := range m.Reserves {
		if r.PriceUSD != "" {
			if err := o.SetPriceDecimal(r.Address(), r.PriceUSD, ts); err != nil {
				return fmt.Errorf("reserve %s: %w", r.Symbol, err)
			}
		}
		if r.MarketBorrowRate != "" {
			if err := o.SetMarketRate(r.Address(), r.MarketBorrowRate); err != nil {
				return fmt.Errorf("reserve %s: %w", r.Symbol, err)
			}
		}
	}
	return nil
}

// PauseSet returns a pause registry seeded with the configured modules.
func (m *Markets) PauseSet() *nativecommon.PauseSet {
	return nativecommon.NewPauseSet(m.Paused...)
}

// ResolveAddress accepts a hex address or an alias. Aliases map to the last
// 20 bytes of their keccak256 hash.
func ResolveAddress(s string) common.Address {
	s = strings.TrimSpace(s)
	if common.IsHexAddress(s) {
		return common.HexToAddress(s)
	}
	return common.BytesToAddress(crypto.Keccak256([]byte(strings.ToLower(s)))[12:])
}
