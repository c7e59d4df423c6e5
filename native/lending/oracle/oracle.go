package oracle

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"meldlend/native/lending/wadray"
)

var (
	// ErrPriceNotFound is returned for assets that were never priced.
	ErrPriceNotFound = errors.New("oracle: price not found")
	// ErrPriceStale is returned when a quote is older than the configured
	// maximum age.
	ErrPriceStale = errors.New("oracle: price stale")
	// ErrRateNotFound is returned for assets without a market borrow rate.
	ErrRateNotFound = errors.New("oracle: market rate not found")
)

type quote struct {
	value     uint256.Int
	updatedAt time.Time
}

// Manual is an operator-fed price and market rate oracle. It satisfies both
// lending.PriceOracle and lending.LendingRateOracle.
type Manual struct {
	mu     sync.RWMutex
	prices map[common.Address]quote
	rates  map[common.Address]uint256.Int
	maxAge time.Duration
	now    func() time.Time
}

// NewManual constructs an empty oracle. A zero maxAge disables staleness
// checks.
func NewManual(maxAge time.Duration) *Manual {
	return &Manual{
		prices: make(map[common.Address]quote),
		rates:  make(map[common.Address]uint256.Int),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// SetClock overrides the clock used for staleness checks.
func (m *Manual) SetClock(now func() time.Time) {
	if m == nil || now == nil {
		return
	}
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// SetPrice records a wad USD price for asset observed at ts.
func (m *Manual) SetPrice(asset common.Address, price *uint256.Int, ts time.Time) error {
	if m == nil {
		return fmt.Errorf("oracle not configured")
	}
	if price == nil || price.IsZero() {
		return fmt.Errorf("oracle: price for %s must be positive", asset.Hex())
	}
	var q quote
	q.value.Set(price)
	q.updatedAt = ts
	m.mu.Lock()
	m.prices[asset] = q
	m.mu.Unlock()
	return nil
}

// SetPriceDecimal parses a decimal USD price such as "1999.5" and records it.
func (m *Manual) SetPriceDecimal(asset common.Address, usd string, ts time.Time) error {
	price, err := wadray.ParseWad(usd)
	if err != nil {
		return err
	}
	return m.SetPrice(asset, price, ts)
}

// SetMarketRate records the market borrow rate for asset as a decimal
// fraction such as "0.05".
func (m *Manual) SetMarketRate(asset common.Address, rate string) error {
	if m == nil {
		return fmt.Errorf("oracle not configured")
	}
	parsed, err := wadray.ParseWad(rate)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.rates[asset] = *parsed
	m.mu.Unlock()
	return nil
}

// AssetPriceUSD returns the wad USD price of one whole unit of asset.
func (m *Manual) AssetPriceUSD(asset common.Address) (*uint256.Int, error) {
	if m == nil {
		return nil, fmt.Errorf("oracle not configured")
	}
	m.mu.RLock()
	q, ok := m.prices[asset]
	now := m.now
	maxAge := m.maxAge
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPriceNotFound, asset.Hex())
	}
	if maxAge > 0 {
		if age := now().Sub(q.updatedAt); age > maxAge {
			return nil, fmt.Errorf("%w: %s is %s old", ErrPriceStale, asset.Hex(), age.Truncate(time.Second))
		}
	}
	return new(uint256.Int).Set(&q.value), nil
}

// MarketBorrowRate returns the annual wad market borrow rate for asset.
func (m *Manual) MarketBorrowRate(asset common.Address) (*uint256.Int, error) {
	if m == nil {
		return nil, fmt.Errorf("oracle not configured")
	}
	m.mu.RLock()
	rate, ok := m.rates[asset]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRateNotFound, asset.Hex())
	}
	return new(uint256.Int).Set(&rate), nil
}
