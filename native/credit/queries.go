package credit

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// Read accessors. All reads value debt at the last-piled accumulators and
// never mutate state; callers wanting up-to-the-second figures invoke Pile
// first.

// Borrower returns the borrower at the given sequence number.
func (e *Engine) Borrower(index uint64) (*Borrower, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()
	borrower, err := e.state.BorrowerByIndex(index)
	if err != nil {
		return nil, err
	}
	if borrower == nil {
		return nil, fmt.Errorf("%w: borrower %d", ErrNotTrustedBorrower, index)
	}
	return borrower.Clone(), nil
}

// BorrowerByAddr returns the borrower registered under the given identity.
func (e *Engine) BorrowerByAddr(addr string) (*Borrower, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()
	borrower, err := e.state.BorrowerByAddr(addr)
	if err != nil {
		return nil, err
	}
	if borrower == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotTrustedBorrower, addr)
	}
	return borrower.Clone(), nil
}

// Vault returns the vault at the given sequence number.
func (e *Engine) Vault(index uint64) (*Vault, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()
	vault, err := e.state.VaultByIndex(index)
	if err != nil {
		return nil, err
	}
	if vault == nil {
		return nil, fmt.Errorf("%w: index %d", ErrNotValidVault, index)
	}
	return vault.Clone(), nil
}

// VaultByAddr returns the vault registered under the given identity.
func (e *Engine) VaultByAddr(addr string) (*Vault, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()
	vault, err := e.state.VaultByAddr(addr)
	if err != nil {
		return nil, err
	}
	if vault == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotValidVault, addr)
	}
	return vault.Clone(), nil
}

// Loan returns the loan at the given sequence number.
func (e *Engine) Loan(index uint64) (*Loan, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()
	loan, err := e.state.LoanByIndex(index)
	if err != nil {
		return nil, err
	}
	if loan == nil {
		return nil, fmt.Errorf("%w: index %d", ErrNotValidLoan, index)
	}
	return loan.Clone(), nil
}

// Debt returns the debt at the given sequence number.
func (e *Engine) Debt(index uint64) (*Debt, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()
	debt, err := e.state.DebtByIndex(index)
	if err != nil {
		return nil, err
	}
	if debt == nil {
		return nil, fmt.Errorf("%w: index %d", ErrNotValidDebt, index)
	}
	return debt.Clone(), nil
}

// Tranche returns the tranche at the given sequence number.
func (e *Engine) Tranche(index uint64) (*Tranche, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()
	tranche, err := e.state.TrancheByIndex(index)
	if err != nil {
		return nil, err
	}
	if tranche == nil {
		return nil, fmt.Errorf("%w: index %d", ErrNotValidTranche, index)
	}
	return tranche.Clone(), nil
}

// RateTier returns the per-second growth factor at the given tier index.
func (e *Engine) RateTier(index uint32) (*uint256.Int, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()
	rs, err := e.rateState()
	if err != nil {
		return nil, err
	}
	if uint64(index) >= uint64(len(rs.Tiers)) {
		return nil, fmt.Errorf("%w: index %d", ErrNotValidRateTier, index)
	}
	return new(uint256.Int).Set(rs.Tiers[index]), nil
}

// AccumulatedRate returns the accumulated index at the given tier, as of the
// last pile.
func (e *Engine) AccumulatedRate(index uint32) (*uint256.Int, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()
	rs, err := e.rateState()
	if err != nil {
		return nil, err
	}
	if uint64(index) >= uint64(len(rs.Accumulated)) {
		return nil, fmt.Errorf("%w: index %d", ErrNotValidRateTier, index)
	}
	return new(uint256.Int).Set(rs.Accumulated[index]), nil
}

// OwedAmount returns the debt's current owed amount at the last-piled
// accumulators, ceiling rounded.
func (e *Engine) OwedAmount(debtIndex uint64) (*big.Int, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()
	debt, err := e.state.DebtByIndex(debtIndex)
	if err != nil {
		return nil, err
	}
	if debt == nil {
		return nil, fmt.Errorf("%w: index %d", ErrNotValidDebt, debtIndex)
	}
	if !debt.Status.Outstanding() {
		return big.NewInt(0), nil
	}
	rs, err := e.rateState()
	if err != nil {
		return nil, err
	}
	return owedAmount(debt.Normalized, rs.Accumulated[debt.RateTier]), nil
}

// TranchesOfDebt returns every tranche funding the given debt.
func (e *Engine) TranchesOfDebt(debtIndex uint64) ([]*Tranche, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()
	return cloneTranches(e.state.TranchesByDebt(debtIndex))
}

// TranchesOfVault returns every tranche funded by the given vault.
func (e *Engine) TranchesOfVault(vaultIndex uint64) ([]*Tranche, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()
	return cloneTranches(e.state.TranchesByVault(vaultIndex))
}

// TranchesOfLoan returns every tranche across the loan's debts.
func (e *Engine) TranchesOfLoan(loanIndex uint64) ([]*Tranche, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()
	debts, err := e.state.DebtsByLoan(loanIndex)
	if err != nil {
		return nil, err
	}
	var out []*Tranche
	for _, debt := range debts {
		tranches, err := e.state.TranchesByDebt(debt.Index)
		if err != nil {
			return nil, err
		}
		for _, tranche := range tranches {
			out = append(out, tranche.Clone())
		}
	}
	return out, nil
}

// TranchesOfBorrower returns every tranche across the borrower's debts.
func (e *Engine) TranchesOfBorrower(addr string) ([]*Tranche, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()
	debts, err := e.state.DebtsByBorrower(addr)
	if err != nil {
		return nil, err
	}
	var out []*Tranche
	for _, debt := range debts {
		tranches, err := e.state.TranchesByDebt(debt.Index)
		if err != nil {
			return nil, err
		}
		for _, tranche := range tranches {
			out = append(out, tranche.Clone())
		}
	}
	return out, nil
}

// DebtsOfLoan returns every debt drawn against the loan.
func (e *Engine) DebtsOfLoan(loanIndex uint64) ([]*Debt, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()
	return cloneDebts(e.state.DebtsByLoan(loanIndex))
}

// DebtsOfBorrower returns every debt belonging to the borrower.
func (e *Engine) DebtsOfBorrower(addr string) ([]*Debt, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()
	return cloneDebts(e.state.DebtsByBorrower(addr))
}

// LoansOfBorrower returns every loan belonging to the borrower.
func (e *Engine) LoansOfBorrower(addr string) ([]*Loan, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()
	loans, err := e.state.LoansByBorrower(addr)
	if err != nil {
		return nil, err
	}
	out := make([]*Loan, 0, len(loans))
	for _, loan := range loans {
		out = append(out, loan.Clone())
	}
	return out, nil
}

// TotalDebtOfBorrower sums the current owed amount across the borrower's
// outstanding debts at the last-piled accumulators.
func (e *Engine) TotalDebtOfBorrower(addr string) (*big.Int, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()
	rs, err := e.rateState()
	if err != nil {
		return nil, err
	}
	debts, err := e.state.DebtsByBorrower(addr)
	if err != nil {
		return nil, err
	}
	total := big.NewInt(0)
	for _, debt := range debts {
		if debt == nil || !debt.Status.Outstanding() {
			continue
		}
		total.Add(total, owedAmount(debt.Normalized, rs.Accumulated[debt.RateTier]))
	}
	return total, nil
}

// TotalDebtOfVault sums the current owed amount across the vault's tranches
// at the last-piled accumulators. Summed over all vaults this always agrees
// with the borrower-side view within the rounding tolerance.
func (e *Engine) TotalDebtOfVault(addr string) (*big.Int, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()
	vault, err := e.state.VaultByAddr(addr)
	if err != nil {
		return nil, err
	}
	if vault == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotValidVault, addr)
	}
	rs, err := e.rateState()
	if err != nil {
		return nil, err
	}
	return e.vaultOutstanding(vault.Index, rs)
}

// rateState loads the accumulators; callers hold the engine lock.
func (e *Engine) rateState() (*RateState, error) {
	rs, err := e.state.RateState()
	if err != nil {
		return nil, err
	}
	if rs == nil {
		return nil, ErrNilRateState
	}
	return rs, nil
}

func cloneTranches(tranches []*Tranche, err error) ([]*Tranche, error) {
	if err != nil {
		return nil, err
	}
	out := make([]*Tranche, 0, len(tranches))
	for _, tranche := range tranches {
		out = append(out, tranche.Clone())
	}
	return out, nil
}

func cloneDebts(debts []*Debt, err error) ([]*Debt, error) {
	if err != nil {
		return nil, err
	}
	out := make([]*Debt, 0, len(debts))
	for _, debt := range debts {
		out = append(out, debt.Clone())
	}
	return out, nil
}
