package store

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"meldlend/native/lending"
	"meldlend/native/lending/rates"
	"meldlend/storage"
)

var (
	reservePrefix    = []byte("lending/reserve/")
	collateralPrefix = []byte("lending/collateral/")
	stablePrefix     = []byte("lending/stable/")
	variablePrefix   = []byte("lending/variable/")
	allowancePrefix  = []byte("lending/allowance/")
	balancePrefix    = []byte("lending/balance/")
	timestampKey     = []byte("lending/meta/timestamp")

	recordPrefixes = [][]byte{reservePrefix, collateralPrefix, stablePrefix, variablePrefix, allowancePrefix, balancePrefix}
)

// Store persists lending protocol snapshots as RLP records keyed by prefix.
type Store struct {
	db storage.Database
}

// New creates a lending store backed by the provided database.
func New(db storage.Database) *Store {
	return &Store{db: db}
}

type reserveRecord struct {
	Asset                         common.Address
	ID                            uint64
	Configuration                 *big.Int
	OptimalUtilization            *big.Int
	BaseVariableBorrowRate        *big.Int
	VariableRateSlope1            *big.Int
	VariableRateSlope2            *big.Int
	StableRateSlope1              *big.Int
	StableRateSlope2              *big.Int
	LiquidityIndex                *big.Int
	VariableBorrowIndex           *big.Int
	CurrentLiquidityRate          *big.Int
	CurrentVariableBorrowRate     *big.Int
	CurrentStableBorrowRate       *big.Int
	LastUpdateTimestamp           uint64
	AvailableLiquidity            *big.Int
	TotalScaledSupply             *big.Int
	TotalScaledVariableDebt       *big.Int
	TotalPrincipalStableDebt      *big.Int
	AverageStableBorrowRate       *big.Int
	StableDebtLastUpdateTimestamp uint64
}

type collateralRecord struct {
	User          common.Address
	Asset         common.Address
	ScaledBalance *big.Int
	Enabled       bool
}

type stableRecord struct {
	User                common.Address
	Asset               common.Address
	Principal           *big.Int
	Rate                *big.Int
	LastUpdateTimestamp uint64
}

type variableRecord struct {
	User          common.Address
	Asset         common.Address
	ScaledBalance *big.Int
}

type allowanceRecord struct {
	Delegator common.Address
	Delegatee common.Address
	Asset     common.Address
	Mode      uint64
	Amount    *big.Int
}

type balanceRecord struct {
	Asset  common.Address
	Holder common.Address
	Amount *big.Int
}

// Save writes every record and removes stored records that no longer exist,
// so a Load after Save reproduces records exactly.
func (s *Store) Save(records *lending.Records, timestamp uint64) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("lending store uninitialised")
	}
	if records == nil {
		records = &lending.Records{}
	}
	written := make(map[string]struct{})
	put := func(key []byte, value interface{}) error {
		encoded, err := rlp.EncodeToBytes(value)
		if err != nil {
			return fmt.Errorf("encode %q: %w", key, err)
		}
		if err := s.db.Put(key, encoded); err != nil {
			return fmt.Errorf("put %q: %w", key, err)
		}
		written[string(key)] = struct{}{}
		return nil
	}

	for _, r := range records.Reserves {
		if err := put(joinKey(reservePrefix, r.Asset[:]), newReserveRecord(r)); err != nil {
			return err
		}
	}
	for _, p := range records.Collateral {
		rec := collateralRecord{User: p.User, Asset: p.Asset, ScaledBalance: p.ScaledBalance.ToBig(), Enabled: p.UsageAsCollateralEnabled}
		if err := put(joinKey(collateralPrefix, p.User[:], p.Asset[:]), rec); err != nil {
			return err
		}
	}
	for _, p := range records.StableDebt {
		rec := stableRecord{User: p.User, Asset: p.Asset, Principal: p.Principal.ToBig(), Rate: p.Rate.ToBig(), LastUpdateTimestamp: p.LastUpdateTimestamp}
		if err := put(joinKey(stablePrefix, p.User[:], p.Asset[:]), rec); err != nil {
			return err
		}
	}
	for _, p := range records.VariableDebt {
		rec := variableRecord{User: p.User, Asset: p.Asset, ScaledBalance: p.ScaledBalance.ToBig()}
		if err := put(joinKey(variablePrefix, p.User[:], p.Asset[:]), rec); err != nil {
			return err
		}
	}
	for _, a := range records.Allowances {
		rec := allowanceRecord{Delegator: a.Delegator, Delegatee: a.Delegatee, Asset: a.Asset, Mode: uint64(a.Mode), Amount: a.Amount.ToBig()}
		if err := put(joinKey(allowancePrefix, a.Delegator[:], a.Delegatee[:], a.Asset[:], []byte{byte(a.Mode)}), rec); err != nil {
			return err
		}
	}
	for _, b := range records.Balances {
		rec := balanceRecord{Asset: b.Asset, Holder: b.Holder, Amount: b.Amount.ToBig()}
		if err := put(joinKey(balancePrefix, b.Asset[:], b.Holder[:]), rec); err != nil {
			return err
		}
	}

	for _, prefix := range recordPrefixes {
		var stale [][]byte
		if err := s.db.Iterate(prefix, func(key, _ []byte) error {
			if _, ok := written[string(key)]; !ok {
				stale = append(stale, key)
			}
			return nil
		}); err != nil {
			return err
		}
		for _, key := range stale {
			if err := s.db.Delete(key); err != nil {
				return fmt.Errorf("delete %q: %w", key, err)
			}
		}
	}

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], timestamp)
	return s.db.Put(timestampKey, ts[:])
}

// Load rebuilds the protocol state and the clock it was saved at. An empty
// database yields an empty state at timestamp zero.
func (s *Store) Load() (*lending.ProtocolState, uint64, error) {
	if s == nil || s.db == nil {
		return nil, 0, fmt.Errorf("lending store uninitialised")
	}
	records, err := s.loadRecords()
	if err != nil {
		return nil, 0, err
	}
	state, err := lending.NewProtocolStateFromRecords(records)
	if err != nil {
		return nil, 0, err
	}
	var timestamp uint64
	raw, err := s.db.Get(timestampKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return nil, 0, fmt.Errorf("load timestamp: %w", err)
	case len(raw) != 8:
		return nil, 0, fmt.Errorf("load timestamp: malformed value")
	default:
		timestamp = binary.BigEndian.Uint64(raw)
	}
	return state, timestamp, nil
}

func (s *Store) loadRecords() (*lending.Records, error) {
	out := &lending.Records{}

	err := s.db.Iterate(reservePrefix, func(key, value []byte) error {
		var rec reserveRecord
		if err := rlp.DecodeBytes(value, &rec); err != nil {
			return fmt.Errorf("decode %q: %w", key, err)
		}
		reserve, err := rec.toReserve()
		if err != nil {
			return fmt.Errorf("decode %q: %w", key, err)
		}
		out.Reserves = append(out.Reserves, reserve)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.db.Iterate(collateralPrefix, func(key, value []byte) error {
		var rec collateralRecord
		if err := rlp.DecodeBytes(value, &rec); err != nil {
			return fmt.Errorf("decode %q: %w", key, err)
		}
		p := &lending.CollateralPosition{User: rec.User, Asset: rec.Asset, UsageAsCollateralEnabled: rec.Enabled}
		if err := setBig(&p.ScaledBalance, rec.ScaledBalance); err != nil {
			return fmt.Errorf("decode %q: %w", key, err)
		}
		out.Collateral = append(out.Collateral, p)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.db.Iterate(stablePrefix, func(key, value []byte) error {
		var rec stableRecord
		if err := rlp.DecodeBytes(value, &rec); err != nil {
			return fmt.Errorf("decode %q: %w", key, err)
		}
		p := &lending.StableDebtPosition{User: rec.User, Asset: rec.Asset, LastUpdateTimestamp: rec.LastUpdateTimestamp}
		if err := setBigs(&p.Principal, rec.Principal, &p.Rate, rec.Rate); err != nil {
			return fmt.Errorf("decode %q: %w", key, err)
		}
		out.StableDebt = append(out.StableDebt, p)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.db.Iterate(variablePrefix, func(key, value []byte) error {
		var rec variableRecord
		if err := rlp.DecodeBytes(value, &rec); err != nil {
			return fmt.Errorf("decode %q: %w", key, err)
		}
		p := &lending.VariableDebtPosition{User: rec.User, Asset: rec.Asset}
		if err := setBig(&p.ScaledBalance, rec.ScaledBalance); err != nil {
			return fmt.Errorf("decode %q: %w", key, err)
		}
		out.VariableDebt = append(out.VariableDebt, p)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.db.Iterate(allowancePrefix, func(key, value []byte) error {
		var rec allowanceRecord
		if err := rlp.DecodeBytes(value, &rec); err != nil {
			return fmt.Errorf("decode %q: %w", key, err)
		}
		mode := lending.InterestRateMode(rec.Mode)
		if rec.Mode > 0xff || !mode.Valid() {
			return fmt.Errorf("decode %q: %w", key, lending.ErrInvalidInterestRateMode)
		}
		a := &lending.Allowance{AllowanceKey: lending.AllowanceKey{Delegator: rec.Delegator, Delegatee: rec.Delegatee, Asset: rec.Asset, Mode: mode}}
		if err := setBig(&a.Amount, rec.Amount); err != nil {
			return fmt.Errorf("decode %q: %w", key, err)
		}
		out.Allowances = append(out.Allowances, a)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.db.Iterate(balancePrefix, func(key, value []byte) error {
		var rec balanceRecord
		if err := rlp.DecodeBytes(value, &rec); err != nil {
			return fmt.Errorf("decode %q: %w", key, err)
		}
		b := &lending.Balance{Asset: rec.Asset, Holder: rec.Holder}
		if err := setBig(&b.Amount, rec.Amount); err != nil {
			return fmt.Errorf("decode %q: %w", key, err)
		}
		out.Balances = append(out.Balances, b)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func newReserveRecord(r *lending.Reserve) reserveRecord {
	return reserveRecord{
		Asset:                         r.Asset,
		ID:                            uint64(r.ID),
		Configuration:                 r.Configuration.Word().ToBig(),
		OptimalUtilization:            r.Strategy.OptimalUtilization.ToBig(),
		BaseVariableBorrowRate:        r.Strategy.BaseVariableBorrowRate.ToBig(),
		VariableRateSlope1:            r.Strategy.VariableRateSlope1.ToBig(),
		VariableRateSlope2:            r.Strategy.VariableRateSlope2.ToBig(),
		StableRateSlope1:              r.Strategy.StableRateSlope1.ToBig(),
		StableRateSlope2:              r.Strategy.StableRateSlope2.ToBig(),
		LiquidityIndex:                r.LiquidityIndex.ToBig(),
		VariableBorrowIndex:           r.VariableBorrowIndex.ToBig(),
		CurrentLiquidityRate:          r.CurrentLiquidityRate.ToBig(),
		CurrentVariableBorrowRate:     r.CurrentVariableBorrowRate.ToBig(),
		CurrentStableBorrowRate:       r.CurrentStableBorrowRate.ToBig(),
		LastUpdateTimestamp:           r.LastUpdateTimestamp,
		AvailableLiquidity:            r.AvailableLiquidity.ToBig(),
		TotalScaledSupply:             r.TotalScaledSupply.ToBig(),
		TotalScaledVariableDebt:       r.TotalScaledVariableDebt.ToBig(),
		TotalPrincipalStableDebt:      r.TotalPrincipalStableDebt.ToBig(),
		AverageStableBorrowRate:       r.AverageStableBorrowRate.ToBig(),
		StableDebtLastUpdateTimestamp: r.StableDebtLastUpdateTimestamp,
	}
}

func (rec reserveRecord) toReserve() (*lending.Reserve, error) {
	if rec.ID > 0xffff {
		return nil, fmt.Errorf("reserve id %d out of range", rec.ID)
	}
	word, overflow := uint256.FromBig(orZero(rec.Configuration))
	if overflow {
		return nil, fmt.Errorf("configuration word overflows 256 bits")
	}
	cfg, err := lending.ReserveConfigurationFromWord(word)
	if err != nil {
		return nil, err
	}
	r := &lending.Reserve{
		Asset:                         rec.Asset,
		ID:                            uint16(rec.ID),
		Configuration:                 cfg,
		LastUpdateTimestamp:           rec.LastUpdateTimestamp,
		StableDebtLastUpdateTimestamp: rec.StableDebtLastUpdateTimestamp,
	}
	var strategy rates.Strategy
	err = setBigs(
		&strategy.OptimalUtilization, rec.OptimalUtilization,
		&strategy.BaseVariableBorrowRate, rec.BaseVariableBorrowRate,
		&strategy.VariableRateSlope1, rec.VariableRateSlope1,
		&strategy.VariableRateSlope2, rec.VariableRateSlope2,
		&strategy.StableRateSlope1, rec.StableRateSlope1,
		&strategy.StableRateSlope2, rec.StableRateSlope2,
		&r.LiquidityIndex, rec.LiquidityIndex,
		&r.VariableBorrowIndex, rec.VariableBorrowIndex,
		&r.CurrentLiquidityRate, rec.CurrentLiquidityRate,
		&r.CurrentVariableBorrowRate, rec.CurrentVariableBorrowRate,
		&r.CurrentStableBorrowRate, rec.CurrentStableBorrowRate,
		&r.AvailableLiquidity, rec.AvailableLiquidity,
		&r.TotalScaledSupply, rec.TotalScaledSupply,
		&r.TotalScaledVariableDebt, rec.TotalScaledVariableDebt,
		&r.TotalPrincipalStableDebt, rec.TotalPrincipalStableDebt,
		&r.AverageStableBorrowRate, rec.AverageStableBorrowRate,
	)
	if err != nil {
		return nil, err
	}
	r.Strategy = strategy
	return r, nil
}

func joinKey(prefix []byte, parts ...[]byte) []byte {
	return append(append([]byte(nil), prefix...), bytes.Join(parts, nil)...)
}

func orZero(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return x
}

func setBig(dst *uint256.Int, src *big.Int) error {
	if dst.SetFromBig(orZero(src)) {
		return fmt.Errorf("value overflows 256 bits")
	}
	return nil
}

// setBigs takes alternating destination and source arguments.
func setBigs(pairs ...interface{}) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if err := setBig(pairs[i].(*uint256.Int), pairs[i+1].(*big.Int)); err != nil {
			return err
		}
	}
	return nil
}
