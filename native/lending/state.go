package lending

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"meldlend/core/events"
)

// ProtocolState owns every reserve, user position, credit delegation and
// underlying balance. It is mutated only through the engine, one call at a
// time; each call works on a txn overlay that is committed on success and
// dropped on failure.
type ProtocolState struct {
	reserves     map[common.Address]*Reserve
	reservesList []common.Address
	collateral   map[positionKey]*CollateralPosition
	stableDebt   map[positionKey]*StableDebtPosition
	variableDebt map[positionKey]*VariableDebtPosition
	allowances   map[AllowanceKey]*uint256.Int
	balances     map[balanceKey]*uint256.Int
}

// NewProtocolState returns an empty state.
func NewProtocolState() *ProtocolState {
	return &ProtocolState{
		reserves:     make(map[common.Address]*Reserve),
		collateral:   make(map[positionKey]*CollateralPosition),
		stableDebt:   make(map[positionKey]*StableDebtPosition),
		variableDebt: make(map[positionKey]*VariableDebtPosition),
		allowances:   make(map[AllowanceKey]*uint256.Int),
		balances:     make(map[balanceKey]*uint256.Int),
	}
}

// Credit adds amount to holder's underlying balance of asset. It stands in for
// the external token ledger when bootstrapping accounts.
func (s *ProtocolState) Credit(asset, holder common.Address, amount *uint256.Int) error {
	if s == nil {
		return ErrNilState
	}
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	key := balanceKey{asset: asset, holder: holder}
	current := s.balances[key]
	if current == nil {
		current = new(uint256.Int)
	}
	next, overflow := new(uint256.Int).AddOverflow(current, amount)
	if overflow {
		return ErrMathOverflow
	}
	s.balances[key] = next
	return nil
}

// Records is a deterministic, fully copied view of every record in the state.
type Records struct {
	Reserves     []*Reserve
	Collateral   []*CollateralPosition
	StableDebt   []*StableDebtPosition
	VariableDebt []*VariableDebtPosition
	Allowances   []*Allowance
	Balances     []*Balance
}

// Records exports the state in reserve-list order, positions sorted by user
// then asset.
func (s *ProtocolState) Records() *Records {
	out := &Records{}
	if s == nil {
		return out
	}
	for _, asset := range s.reservesList {
		out.Reserves = append(out.Reserves, s.reserves[asset].Clone())
	}
	for _, p := range s.collateral {
		out.Collateral = append(out.Collateral, p.Clone())
	}
	sort.Slice(out.Collateral, func(i, j int) bool {
		return lessPair(out.Collateral[i].User, out.Collateral[i].Asset, out.Collateral[j].User, out.Collateral[j].Asset)
	})
	for _, p := range s.stableDebt {
		out.StableDebt = append(out.StableDebt, p.Clone())
	}
	sort.Slice(out.StableDebt, func(i, j int) bool {
		return lessPair(out.StableDebt[i].User, out.StableDebt[i].Asset, out.StableDebt[j].User, out.StableDebt[j].Asset)
	})
	for _, p := range s.variableDebt {
		out.VariableDebt = append(out.VariableDebt, p.Clone())
	}
	sort.Slice(out.VariableDebt, func(i, j int) bool {
		return lessPair(out.VariableDebt[i].User, out.VariableDebt[i].Asset, out.VariableDebt[j].User, out.VariableDebt[j].Asset)
	})
	for key, amount := range s.allowances {
		a := &Allowance{AllowanceKey: key}
		a.Amount.Set(amount)
		out.Allowances = append(out.Allowances, a)
	}
	sort.Slice(out.Allowances, func(i, j int) bool {
		a, b := out.Allowances[i], out.Allowances[j]
		if a.Delegator != b.Delegator {
			return bytes.Compare(a.Delegator[:], b.Delegator[:]) < 0
		}
		if a.Delegatee != b.Delegatee {
			return bytes.Compare(a.Delegatee[:], b.Delegatee[:]) < 0
		}
		if a.Asset != b.Asset {
			return bytes.Compare(a.Asset[:], b.Asset[:]) < 0
		}
		return a.Mode < b.Mode
	})
	for key, amount := range s.balances {
		b := &Balance{Asset: key.asset, Holder: key.holder}
		b.Amount.Set(amount)
		out.Balances = append(out.Balances, b)
	}
	sort.Slice(out.Balances, func(i, j int) bool {
		return lessPair(out.Balances[i].Asset, out.Balances[i].Holder, out.Balances[j].Asset, out.Balances[j].Holder)
	})
	return out
}

// NewProtocolStateFromRecords rebuilds a state from exported records.
// Reserves are ordered by ID, which must form the sequence 0..n-1.
func NewProtocolStateFromRecords(r *Records) (*ProtocolState, error) {
	s := NewProtocolState()
	if r == nil {
		return s, nil
	}
	reserves := make([]*Reserve, len(r.Reserves))
	for _, reserve := range r.Reserves {
		if reserve == nil {
			return nil, fmt.Errorf("lending: nil reserve record")
		}
		if int(reserve.ID) >= len(reserves) || reserves[reserve.ID] != nil {
			return nil, fmt.Errorf("lending: reserve %s has invalid id %d", reserve.Asset.Hex(), reserve.ID)
		}
		if _, err := ReserveConfigurationFromWord(reserve.Configuration.Word()); err != nil {
			return nil, fmt.Errorf("lending: reserve %s: %w", reserve.Asset.Hex(), err)
		}
		reserves[reserve.ID] = reserve.Clone()
	}
	for _, reserve := range reserves {
		if _, exists := s.reserves[reserve.Asset]; exists {
			return nil, fmt.Errorf("lending: duplicate reserve %s", reserve.Asset.Hex())
		}
		s.reserves[reserve.Asset] = reserve
		s.reservesList = append(s.reservesList, reserve.Asset)
	}
	for _, p := range r.Collateral {
		s.collateral[positionKey{user: p.User, asset: p.Asset}] = p.Clone()
	}
	for _, p := range r.StableDebt {
		s.stableDebt[positionKey{user: p.User, asset: p.Asset}] = p.Clone()
	}
	for _, p := range r.VariableDebt {
		s.variableDebt[positionKey{user: p.User, asset: p.Asset}] = p.Clone()
	}
	for _, a := range r.Allowances {
		s.allowances[a.AllowanceKey] = new(uint256.Int).Set(&a.Amount)
	}
	for _, b := range r.Balances {
		s.balances[balanceKey{asset: b.Asset, holder: b.Holder}] = new(uint256.Int).Set(&b.Amount)
	}
	return s, nil
}

func lessPair(a1, a2, b1, b2 common.Address) bool {
	if c := bytes.Compare(a1[:], b1[:]); c != 0 {
		return c < 0
	}
	return bytes.Compare(a2[:], b2[:]) < 0
}

// txn is a copy-on-access overlay over ProtocolState. Records fetched through
// it are private working copies; nothing reaches the base state until commit.
type txn struct {
	base         *ProtocolState
	reserves     map[common.Address]*Reserve
	newReserves  []common.Address
	collateral   map[positionKey]*CollateralPosition
	stableDebt   map[positionKey]*StableDebtPosition
	variableDebt map[positionKey]*VariableDebtPosition
	allowances   map[AllowanceKey]*uint256.Int
	balances     map[balanceKey]*uint256.Int
	events       []events.Event
	utilization  map[common.Address]*uint256.Int
}

func (s *ProtocolState) begin() *txn {
	return &txn{
		base:         s,
		reserves:     make(map[common.Address]*Reserve),
		collateral:   make(map[positionKey]*CollateralPosition),
		stableDebt:   make(map[positionKey]*StableDebtPosition),
		variableDebt: make(map[positionKey]*VariableDebtPosition),
		allowances:   make(map[AllowanceKey]*uint256.Int),
		balances:     make(map[balanceKey]*uint256.Int),
		utilization:  make(map[common.Address]*uint256.Int),
	}
}

func (t *txn) emit(evt events.Event) { t.events = append(t.events, evt) }

func (t *txn) reserveAssets() []common.Address {
	out := make([]common.Address, 0, len(t.base.reservesList)+len(t.newReserves))
	out = append(out, t.base.reservesList...)
	return append(out, t.newReserves...)
}

func (t *txn) hasReserve(asset common.Address) bool {
	if _, ok := t.reserves[asset]; ok {
		return true
	}
	_, ok := t.base.reserves[asset]
	return ok
}

func (t *txn) reserve(asset common.Address) (*Reserve, error) {
	if r, ok := t.reserves[asset]; ok {
		return r, nil
	}
	base, ok := t.base.reserves[asset]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrReserveNotFound, asset.Hex())
	}
	r := base.Clone()
	t.reserves[asset] = r
	return r, nil
}

func (t *txn) addReserve(r *Reserve) {
	r.ID = uint16(len(t.base.reservesList) + len(t.newReserves))
	t.reserves[r.Asset] = r
	t.newReserves = append(t.newReserves, r.Asset)
}

func (t *txn) collateralPosition(user, asset common.Address) *CollateralPosition {
	key := positionKey{user: user, asset: asset}
	if p, ok := t.collateral[key]; ok {
		return p
	}
	p := t.base.collateral[key].Clone()
	if p == nil {
		p = &CollateralPosition{User: user, Asset: asset}
	}
	t.collateral[key] = p
	return p
}

func (t *txn) stablePosition(user, asset common.Address) *StableDebtPosition {
	key := positionKey{user: user, asset: asset}
	if p, ok := t.stableDebt[key]; ok {
		return p
	}
	p := t.base.stableDebt[key].Clone()
	if p == nil {
		p = &StableDebtPosition{User: user, Asset: asset}
	}
	t.stableDebt[key] = p
	return p
}

func (t *txn) variablePosition(user, asset common.Address) *VariableDebtPosition {
	key := positionKey{user: user, asset: asset}
	if p, ok := t.variableDebt[key]; ok {
		return p
	}
	p := t.base.variableDebt[key].Clone()
	if p == nil {
		p = &VariableDebtPosition{User: user, Asset: asset}
	}
	t.variableDebt[key] = p
	return p
}

func (t *txn) allowance(key AllowanceKey) *uint256.Int {
	if a, ok := t.allowances[key]; ok {
		return a
	}
	a := new(uint256.Int)
	if base, ok := t.base.allowances[key]; ok {
		a.Set(base)
	}
	t.allowances[key] = a
	return a
}

func (t *txn) balance(asset, holder common.Address) *uint256.Int {
	key := balanceKey{asset: asset, holder: holder}
	if b, ok := t.balances[key]; ok {
		return b
	}
	b := new(uint256.Int)
	if base, ok := t.base.balances[key]; ok {
		b.Set(base)
	}
	t.balances[key] = b
	return b
}

// transfer moves underlying between holders.
func (t *txn) transfer(asset, from, to common.Address, amount *uint256.Int) error {
	if amount.IsZero() || from == to {
		return nil
	}
	src := t.balance(asset, from)
	if src.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s of %s, needs %s", ErrNotEnoughBalance, from.Hex(), src.Dec(), asset.Hex(), amount.Dec())
	}
	dst := t.balance(asset, to)
	if _, overflow := new(uint256.Int).AddOverflow(dst, amount); overflow {
		return ErrMathOverflow
	}
	src.Sub(src, amount)
	dst.Add(dst, amount)
	return nil
}

// commit writes every working copy back to the base state. Positions and
// allowances that reached zero are removed.
func (t *txn) commit() {
	s := t.base
	for asset, r := range t.reserves {
		s.reserves[asset] = r
	}
	s.reservesList = append(s.reservesList, t.newReserves...)
	for key, p := range t.collateral {
		if p.ScaledBalance.IsZero() && !p.UsageAsCollateralEnabled {
			delete(s.collateral, key)
			continue
		}
		s.collateral[key] = p
	}
	for key, p := range t.stableDebt {
		if p.Principal.IsZero() {
			delete(s.stableDebt, key)
			continue
		}
		s.stableDebt[key] = p
	}
	for key, p := range t.variableDebt {
		if p.ScaledBalance.IsZero() {
			delete(s.variableDebt, key)
			continue
		}
		s.variableDebt[key] = p
	}
	for key, a := range t.allowances {
		if a.IsZero() {
			delete(s.allowances, key)
			continue
		}
		s.allowances[key] = a
	}
	for key, b := range t.balances {
		if b.IsZero() {
			delete(s.balances, key)
			continue
		}
		s.balances[key] = b
	}
}
