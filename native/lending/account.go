package lending

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"meldlend/native/lending/wadray"
)

// accountData values every reserve the user touches at current prices. Only
// deposits flagged as collateral in reserves with a non-zero liquidation
// threshold count towards collateral. A price is required for every reserve
// the user holds collateral or debt in.
func (e *Engine) accountData(tx *txn, user common.Address) (AccountData, error) {
	now := e.timestamp
	var c wadray.Calc
	totalCollateral := new(uint256.Int)
	totalDebt := new(uint256.Int)
	ltvWeighted := new(uint256.Int)
	thresholdWeighted := new(uint256.Int)

	for _, asset := range tx.reserveAssets() {
		r, err := tx.reserve(asset)
		if err != nil {
			return AccountData{}, err
		}
		cfg := r.Configuration
		collateral := tx.collateralPosition(user, asset)
		stable := tx.stablePosition(user, asset)
		variable := tx.variablePosition(user, asset)

		countsAsCollateral := collateral.UsageAsCollateralEnabled &&
			!collateral.ScaledBalance.IsZero() &&
			cfg.LiquidationThreshold() != 0
		borrowing := !stable.Principal.IsZero() || !variable.ScaledBalance.IsZero()
		if !countsAsCollateral && !borrowing {
			continue
		}
		price, err := e.price(asset)
		if err != nil {
			return AccountData{}, err
		}

		if countsAsCollateral {
			balance, err := collateralBalance(r, collateral, now)
			if err != nil {
				return AccountData{}, err
			}
			value, err := usdValue(balance, price, cfg.Decimals())
			if err != nil {
				return AccountData{}, err
			}
			totalCollateral = c.Add(totalCollateral, value)
			ltvWeighted = c.Add(ltvWeighted, c.Mul(value, uint256.NewInt(cfg.LTV())))
			thresholdWeighted = c.Add(thresholdWeighted, c.Mul(value, uint256.NewInt(cfg.LiquidationThreshold())))
		}
		if borrowing {
			debt, err := userDebt(r, stable, variable, now)
			if err != nil {
				return AccountData{}, err
			}
			value, err := usdValue(debt, price, cfg.Decimals())
			if err != nil {
				return AccountData{}, err
			}
			totalDebt = c.Add(totalDebt, value)
		}
	}
	if err := c.Err(); err != nil {
		return AccountData{}, mathErr(err)
	}

	var avgLTV, avgThreshold uint64
	if !totalCollateral.IsZero() {
		avgLTV = new(uint256.Int).Div(ltvWeighted, totalCollateral).Uint64()
		avgThreshold = new(uint256.Int).Div(thresholdWeighted, totalCollateral).Uint64()
	}
	health := FullAmount()
	if !totalDebt.IsZero() {
		health = c.WadDiv(c.PercentMul(totalCollateral, avgThreshold), totalDebt)
	}
	available := c.SubFloor(c.PercentMul(totalCollateral, avgLTV), totalDebt)
	if err := c.Err(); err != nil {
		return AccountData{}, mathErr(err)
	}
	return AccountData{
		TotalCollateralUSD:          totalCollateral,
		TotalDebtUSD:                totalDebt,
		AvailableBorrowsUSD:         available,
		CurrentLTV:                  avgLTV,
		CurrentLiquidationThreshold: avgThreshold,
		HealthFactor:                health,
	}, nil
}

func userDebt(r *Reserve, stable *StableDebtPosition, variable *VariableDebtPosition, now uint64) (*uint256.Int, error) {
	stableDebt, err := stableDebtBalance(stable, now)
	if err != nil {
		return nil, err
	}
	variableDebt, err := variableDebtBalance(r, variable, now)
	if err != nil {
		return nil, err
	}
	var c wadray.Calc
	out := c.Add(stableDebt, variableDebt)
	return out, mathErr(c.Err())
}

// hasDebt reports whether user owes stable or variable debt in any reserve.
func hasDebt(tx *txn, user common.Address) bool {
	for _, asset := range tx.reserveAssets() {
		if !tx.stablePosition(user, asset).Principal.IsZero() ||
			!tx.variablePosition(user, asset).ScaledBalance.IsZero() {
			return true
		}
	}
	return false
}

// requireHealthy fails with ErrHealthFactorTooLow when user's health factor
// is below one. It is evaluated against the overlay, so it sees the effect of
// the mutation under way. Users without debt are always healthy and need no
// prices.
func (e *Engine) requireHealthy(tx *txn, user common.Address) error {
	if !hasDebt(tx, user) {
		return nil
	}
	data, err := e.accountData(tx, user)
	if err != nil {
		return err
	}
	if data.HealthFactor.Lt(wadray.Wad()) {
		return ErrHealthFactorTooLow
	}
	return nil
}
