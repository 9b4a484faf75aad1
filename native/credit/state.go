package credit

// EngineState is the persistence contract the engine is wired to. Entities
// live in dense zero-based sequences; implementations must hand out copies
// callers can mutate freely and must treat Put of an existing index as an
// overwrite.
type EngineState interface {
	// Transact runs fn against a view whose writes commit together or not at
	// all. Implementations backed by a transactional store that also serves
	// as the funding source should hand fn a view that joins transfers to
	// the same transaction.
	Transact(fn func(EngineState) error) error

	RateState() (*RateState, error)
	PutRateState(*RateState) error

	BorrowerCount() (uint64, error)
	BorrowerByIndex(index uint64) (*Borrower, error)
	BorrowerByAddr(addr string) (*Borrower, error)
	PutBorrower(*Borrower) error

	VaultCount() (uint64, error)
	VaultByIndex(index uint64) (*Vault, error)
	VaultByAddr(addr string) (*Vault, error)
	PutVault(*Vault) error

	LoanCount() (uint64, error)
	LoanByIndex(index uint64) (*Loan, error)
	PutLoan(*Loan) error
	LoansByBorrower(addr string) ([]*Loan, error)

	DebtCount() (uint64, error)
	DebtByIndex(index uint64) (*Debt, error)
	PutDebt(*Debt) error
	DebtsByLoan(loan uint64) ([]*Debt, error)
	DebtsByBorrower(addr string) ([]*Debt, error)

	TrancheCount() (uint64, error)
	TrancheByIndex(index uint64) (*Tranche, error)
	PutTranche(*Tranche) error
	TranchesByDebt(debt uint64) ([]*Tranche, error)
	TranchesByVault(vault uint64) ([]*Tranche, error)
}
