package lending

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// PriceOracle reports the USD price of one whole unit of an asset as a wad.
// Implementations return an error for unknown, unset or stale prices.
type PriceOracle interface {
	AssetPriceUSD(asset common.Address) (*uint256.Int, error)
}

// LendingRateOracle reports the market borrow rate seeding a reserve's stable
// rate, as an annual wad.
type LendingRateOracle interface {
	MarketBorrowRate(asset common.Address) (*uint256.Int, error)
}

// price fetches a non-zero price for asset. Any oracle failure surfaces as
// ErrOracleFailure.
func (e *Engine) price(asset common.Address) (*uint256.Int, error) {
	if e.oracle == nil {
		return nil, fmt.Errorf("%w: no price oracle configured", ErrOracleFailure)
	}
	p, err := e.oracle.AssetPriceUSD(asset)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrOracleFailure, asset.Hex(), err)
	}
	if p == nil || p.IsZero() {
		return nil, fmt.Errorf("%w: %s: zero price", ErrOracleFailure, asset.Hex())
	}
	return p, nil
}

// marketBorrowRate returns nil when no lending rate oracle is configured or it
// cannot answer; the strategy then falls back to its base rate.
func (e *Engine) marketBorrowRate(asset common.Address) *uint256.Int {
	if e.rateOracle == nil {
		return nil
	}
	rate, err := e.rateOracle.MarketBorrowRate(asset)
	if err != nil || rate == nil {
		if err == nil {
			err = errors.New("empty rate")
		}
		e.logger().Warn("lending rate oracle unavailable",
			slog.String("asset", asset.Hex()),
			slog.Any("error", err))
		return nil
	}
	return rate
}
