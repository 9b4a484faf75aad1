package credit

import "math/big"

// LoanStatus represents the lifecycle states of a credit line.
type LoanStatus uint8

const (
	LoanPending LoanStatus = iota
	LoanApproved
)

// Valid reports whether the status value is within the supported range.
func (s LoanStatus) Valid() bool {
	switch s {
	case LoanPending, LoanApproved:
		return true
	default:
		return false
	}
}

// DebtStatus represents the lifecycle states of a single draw.
type DebtStatus uint8

const (
	DebtActive DebtStatus = iota
	DebtRepaid
	DebtDefaulted
	DebtClosed
)

// Valid reports whether the status value is within the supported range.
func (s DebtStatus) Valid() bool {
	switch s {
	case DebtActive, DebtRepaid, DebtDefaulted, DebtClosed:
		return true
	default:
		return false
	}
}

// Outstanding reports whether the debt still carries an obligation that
// counts toward borrower and vault exposure.
func (s DebtStatus) Outstanding() bool {
	return s == DebtActive || s == DebtDefaulted
}

// Borrower captures a trusted borrower record. Ceiling is the maximum
// aggregate exposure approved for the borrower; Used is the portion currently
// reserved by pending and approved loans plus drawn principal. Remaining is
// always derived, never stored, so the two views cannot drift.
type Borrower struct {
	Index   uint64
	Addr    string
	Ceiling *big.Int
	Used    *big.Int
}

// Remaining returns the unreserved portion of the borrower ceiling.
func (b *Borrower) Remaining() *big.Int {
	if b == nil || b.Ceiling == nil {
		return big.NewInt(0)
	}
	used := b.Used
	if used == nil {
		used = big.NewInt(0)
	}
	remaining := new(big.Int).Sub(b.Ceiling, used)
	if remaining.Sign() < 0 {
		return big.NewInt(0)
	}
	return remaining
}

// Clone returns a deep copy of the borrower record.
func (b *Borrower) Clone() *Borrower {
	if b == nil {
		return nil
	}
	clone := *b
	clone.Ceiling = cloneAmount(b.Ceiling)
	clone.Used = cloneAmount(b.Used)
	return &clone
}

// Vault captures a trusted capital provider. MinPct and MaxPct are advisory
// shares of total system debt in parts-per-million (1,000,000 = 100%); the
// allocator uses them as ordering guidance, not hard caps.
type Vault struct {
	Index  uint64
	Addr   string
	Asset  string
	MinPct uint32
	MaxPct uint32
}

// Clone returns a copy of the vault record.
func (v *Vault) Clone() *Vault {
	if v == nil {
		return nil
	}
	clone := *v
	return &clone
}

// Loan is one approved credit line belonging to a single borrower. Requested
// preserves the original ask, Ceiling the approved amount (clamped to the
// request), Remaining the undrawn portion of the ceiling. NormalizedDrawn
// accumulates the normalized principal of the loan's debts.
type Loan struct {
	Index           uint64
	Borrower        string
	Requested       *big.Int
	Ceiling         *big.Int
	Remaining       *big.Int
	RateTier        uint32
	NormalizedDrawn *big.Int
	Status          LoanStatus
}

// Clone returns a deep copy of the loan record.
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	clone := *l
	clone.Requested = cloneAmount(l.Requested)
	clone.Ceiling = cloneAmount(l.Ceiling)
	clone.Remaining = cloneAmount(l.Remaining)
	clone.NormalizedDrawn = cloneAmount(l.NormalizedDrawn)
	return &clone
}

// Debt is one draw against a loan. Principal is the raw principal still
// outstanding; Normalized is the principal divided by the accumulated rate of
// the assigned tier at creation (or re-base) time, so the current owed amount
// is always Normalized x AccumulatedRate[RateTier], ceiling rounded.
type Debt struct {
	Index      uint64
	Loan       uint64
	Borrower   string
	Principal  *big.Int
	Normalized *big.Int
	RateTier   uint32
	Start      int64
	Maturity   int64
	Status     DebtStatus
}

// Clone returns a deep copy of the debt record.
func (d *Debt) Clone() *Debt {
	if d == nil {
		return nil
	}
	clone := *d
	clone.Principal = cloneAmount(d.Principal)
	clone.Normalized = cloneAmount(d.Normalized)
	return &clone
}

// Tranche records the normalized portion of one debt funded by one vault.
// For every debt the sum of its tranches equals the debt's normalized
// principal exactly; repayments shrink every tranche proportionally.
type Tranche struct {
	Index      uint64
	Vault      uint64
	Debt       uint64
	Normalized *big.Int
}

// Clone returns a deep copy of the tranche record.
func (t *Tranche) Clone() *Tranche {
	if t == nil {
		return nil
	}
	clone := *t
	clone.Normalized = cloneAmount(t.Normalized)
	return &clone
}

func cloneAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
