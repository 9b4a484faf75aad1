package credit

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

type memState struct {
	rates     *RateState
	borrowers []*Borrower
	vaults    []*Vault
	loans     []*Loan
	debts     []*Debt
	tranches  []*Tranche
}

func newMemState() *memState { return &memState{} }

// Transact snapshots the whole store and restores it when fn fails, matching
// the all-or-nothing contract of the sqlite-backed store. Entities are never
// mutated in place (Put always stores a clone), so copying the slice headers
// into fresh backing arrays is a full snapshot.
func (m *memState) Transact(fn func(EngineState) error) error {
	snapshot := memState{
		rates:     m.rates.Clone(),
		borrowers: append([]*Borrower(nil), m.borrowers...),
		vaults:    append([]*Vault(nil), m.vaults...),
		loans:     append([]*Loan(nil), m.loans...),
		debts:     append([]*Debt(nil), m.debts...),
		tranches:  append([]*Tranche(nil), m.tranches...),
	}
	if err := fn(m); err != nil {
		*m = snapshot
		return err
	}
	return nil
}

func (m *memState) RateState() (*RateState, error) { return m.rates.Clone(), nil }

func (m *memState) PutRateState(rs *RateState) error {
	m.rates = rs.Clone()
	return nil
}

func (m *memState) BorrowerCount() (uint64, error) { return uint64(len(m.borrowers)), nil }

func (m *memState) BorrowerByIndex(index uint64) (*Borrower, error) {
	if index >= uint64(len(m.borrowers)) {
		return nil, nil
	}
	return m.borrowers[index].Clone(), nil
}

func (m *memState) BorrowerByAddr(addr string) (*Borrower, error) {
	for _, b := range m.borrowers {
		if b.Addr == addr {
			return b.Clone(), nil
		}
	}
	return nil, nil
}

func (m *memState) PutBorrower(b *Borrower) error {
	if b == nil {
		return nil
	}
	if b.Index == uint64(len(m.borrowers)) {
		m.borrowers = append(m.borrowers, b.Clone())
		return nil
	}
	if b.Index > uint64(len(m.borrowers)) {
		return fmt.Errorf("sparse borrower index %d", b.Index)
	}
	m.borrowers[b.Index] = b.Clone()
	return nil
}

func (m *memState) VaultCount() (uint64, error) { return uint64(len(m.vaults)), nil }

func (m *memState) VaultByIndex(index uint64) (*Vault, error) {
	if index >= uint64(len(m.vaults)) {
		return nil, nil
	}
	return m.vaults[index].Clone(), nil
}

func (m *memState) VaultByAddr(addr string) (*Vault, error) {
	for _, v := range m.vaults {
		if v.Addr == addr {
			return v.Clone(), nil
		}
	}
	return nil, nil
}

func (m *memState) PutVault(v *Vault) error {
	if v == nil {
		return nil
	}
	if v.Index == uint64(len(m.vaults)) {
		m.vaults = append(m.vaults, v.Clone())
		return nil
	}
	if v.Index > uint64(len(m.vaults)) {
		return fmt.Errorf("sparse vault index %d", v.Index)
	}
	m.vaults[v.Index] = v.Clone()
	return nil
}

func (m *memState) LoanCount() (uint64, error) { return uint64(len(m.loans)), nil }

func (m *memState) LoanByIndex(index uint64) (*Loan, error) {
	if index >= uint64(len(m.loans)) {
		return nil, nil
	}
	return m.loans[index].Clone(), nil
}

func (m *memState) PutLoan(l *Loan) error {
	if l == nil {
		return nil
	}
	if l.Index == uint64(len(m.loans)) {
		m.loans = append(m.loans, l.Clone())
		return nil
	}
	if l.Index > uint64(len(m.loans)) {
		return fmt.Errorf("sparse loan index %d", l.Index)
	}
	m.loans[l.Index] = l.Clone()
	return nil
}

func (m *memState) LoansByBorrower(addr string) ([]*Loan, error) {
	var out []*Loan
	for _, l := range m.loans {
		if l.Borrower == addr {
			out = append(out, l.Clone())
		}
	}
	return out, nil
}

func (m *memState) DebtCount() (uint64, error) { return uint64(len(m.debts)), nil }

func (m *memState) DebtByIndex(index uint64) (*Debt, error) {
	if index >= uint64(len(m.debts)) {
		return nil, nil
	}
	return m.debts[index].Clone(), nil
}

func (m *memState) PutDebt(d *Debt) error {
	if d == nil {
		return nil
	}
	if d.Index == uint64(len(m.debts)) {
		m.debts = append(m.debts, d.Clone())
		return nil
	}
	if d.Index > uint64(len(m.debts)) {
		return fmt.Errorf("sparse debt index %d", d.Index)
	}
	m.debts[d.Index] = d.Clone()
	return nil
}

func (m *memState) DebtsByLoan(loan uint64) ([]*Debt, error) {
	var out []*Debt
	for _, d := range m.debts {
		if d.Loan == loan {
			out = append(out, d.Clone())
		}
	}
	return out, nil
}

func (m *memState) DebtsByBorrower(addr string) ([]*Debt, error) {
	var out []*Debt
	for _, d := range m.debts {
		if d.Borrower == addr {
			out = append(out, d.Clone())
		}
	}
	return out, nil
}

func (m *memState) TrancheCount() (uint64, error) { return uint64(len(m.tranches)), nil }

func (m *memState) TrancheByIndex(index uint64) (*Tranche, error) {
	if index >= uint64(len(m.tranches)) {
		return nil, nil
	}
	return m.tranches[index].Clone(), nil
}

func (m *memState) PutTranche(t *Tranche) error {
	if t == nil {
		return nil
	}
	if t.Index == uint64(len(m.tranches)) {
		m.tranches = append(m.tranches, t.Clone())
		return nil
	}
	if t.Index > uint64(len(m.tranches)) {
		return fmt.Errorf("sparse tranche index %d", t.Index)
	}
	m.tranches[t.Index] = t.Clone()
	return nil
}

func (m *memState) TranchesByDebt(debt uint64) ([]*Tranche, error) {
	var out []*Tranche
	for _, t := range m.tranches {
		if t.Debt == debt {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

func (m *memState) TranchesByVault(vault uint64) ([]*Tranche, error) {
	var out []*Tranche
	for _, t := range m.tranches {
		if t.Vault == vault {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

// memFunding is a balance-map funding source.
type memFunding struct {
	balances map[string]*big.Int
}

func newMemFunding() *memFunding { return &memFunding{balances: make(map[string]*big.Int)} }

func (f *memFunding) set(addr string, amount int64) {
	f.balances[addr] = big.NewInt(amount)
}

func (f *memFunding) Balance(vault string) (*big.Int, error) {
	if bal, ok := f.balances[vault]; ok {
		return new(big.Int).Set(bal), nil
	}
	return big.NewInt(0), nil
}

func (f *memFunding) Transfer(from, to string, amount *big.Int) error {
	src := f.balances[from]
	if src == nil {
		src = big.NewInt(0)
	}
	if src.Cmp(amount) < 0 {
		return fmt.Errorf("funding: insufficient balance for %s", from)
	}
	f.balances[from] = new(big.Int).Sub(src, amount)
	dst := f.balances[to]
	if dst == nil {
		dst = big.NewInt(0)
	}
	f.balances[to] = new(big.Int).Add(dst, amount)
	return nil
}

// stubEligibility admits everyone except listed identities.
type stubEligibility struct {
	denied   map[string]bool
	excluded map[string]bool
}

func (s *stubEligibility) IsEligible(identity string) bool { return !s.denied[identity] }
func (s *stubEligibility) IsExcluded(identity string) bool { return s.excluded[identity] }

// stubAuthorizer grants the operator capability to a fixed set of callers.
type stubAuthorizer struct {
	operators map[string]bool
}

func (s *stubAuthorizer) Authorize(caller, capability string) error {
	if capability == CapabilityOperator && s.operators[caller] {
		return nil
	}
	return fmt.Errorf("unauthorized: %s requires %s", caller, capability)
}

type fakeClock struct {
	now int64
}

func (c *fakeClock) Now() int64        { return c.now }
func (c *fakeClock) Advance(sec int64) { c.now += sec }

const (
	secondsPerDay  = 86_400
	secondsPerYear = 31_536_000
)

// testTiers builds a strictly increasing tier table: tier 0 is the reserved
// 1.0 sentinel, tier i adds roughly i percent annualized.
func testTiers(n int) []*uint256.Int {
	onePctPerSecond := uint64(317_097_920) // ~1% APR compounded per second, 1e18 scale
	tiers := make([]*uint256.Int, n)
	for i := range tiers {
		tiers[i] = new(uint256.Int).AddUint64(rateScale, uint64(i)*onePctPerSecond)
	}
	return tiers
}

type testEnv struct {
	engine      *Engine
	state       *memState
	funding     *memFunding
	clock       *fakeClock
	eligibility *stubEligibility
}

const (
	operatorAddr = "op-1"
	borrowerAddr = "borrower-1"
	vaultAddr    = "vault-1"
	vaultAddr2   = "vault-2"
	vaultAddr3   = "vault-3"
)

func newTestEnv(tierCount int) *testEnv {
	clock := &fakeClock{now: 1_700_000_000}
	state := newMemState()
	rs, err := NewRateState(testTiers(tierCount), clock.now)
	if err != nil {
		panic(err)
	}
	state.rates = rs

	engine := NewEngine(DefaultParams())
	engine.SetState(state)
	engine.SetClock(clock.Now)
	eligibility := &stubEligibility{denied: map[string]bool{}, excluded: map[string]bool{}}
	engine.SetEligibility(eligibility)
	engine.SetAuthorizer(&stubAuthorizer{operators: map[string]bool{operatorAddr: true}})
	funding := newMemFunding()
	engine.SetFunding(funding)

	return &testEnv{engine: engine, state: state, funding: funding, clock: clock, eligibility: eligibility}
}

func (env *testEnv) addVault(addr string, balance int64, minPct, maxPct uint32) error {
	count, _ := env.state.VaultCount()
	_, err := env.engine.UpdateTrustedVaults(operatorAddr, Vault{
		Addr:   addr,
		Asset:  env.engine.Params().LoanAsset,
		MinPct: minPct,
		MaxPct: maxPct,
	}, count)
	if err != nil {
		return err
	}
	env.funding.set(addr, balance)
	return nil
}

func (env *testEnv) joinAndAgree(addr string, ceiling int64) error {
	if _, err := env.engine.Join(addr); err != nil {
		return err
	}
	return env.engine.Agree(operatorAddr, addr, big.NewInt(ceiling))
}
