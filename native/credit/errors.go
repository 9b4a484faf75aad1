package credit

import "errors"

var (
	ErrNilState             = errors.New("credit: state not configured")
	ErrNilRateState         = errors.New("credit: rate accumulators not initialised")
	ErrFundingNotConfigured = errors.New("credit: funding source not configured")

	ErrZeroIdentity         = errors.New("credit: zero identity")
	ErrInvalidAmount        = errors.New("credit: amount must be positive")
	ErrBorrowerExists       = errors.New("credit: borrower already exists")
	ErrNotTrustedBorrower   = errors.New("credit: not a trusted borrower")
	ErrUpdateCeilingDirect  = errors.New("credit: ceiling already agreed, use the limit update path")
	ErrCeilingBelowUsed     = errors.New("credit: ceiling limit below used limit")
	ErrCeilingBelowReserved = errors.New("credit: ceiling limit below remaining limit")
	ErrCeilingOverRemaining = errors.New("credit: loan ceiling exceeds borrower remaining limit")

	ErrNotValidLoan     = errors.New("credit: not a valid loan")
	ErrNotPendingLoan   = errors.New("credit: loan is not pending")
	ErrNotLoanOwner     = errors.New("credit: caller does not own the loan")
	ErrNotValidRateTier = errors.New("credit: rate tier invalid or zero")
	ErrMaturityInPast   = errors.New("credit: maturity time must be after the current timestamp")
	ErrBorrowOverLimit  = errors.New("credit: borrow amount over loan remaining limit")
	ErrNoVaultCapacity  = errors.New("credit: no vault capacity available")

	ErrNotValidDebt     = errors.New("credit: not a valid debt")
	ErrNotValidTranche  = errors.New("credit: not a valid tranche")
	ErrNoOutstanding    = errors.New("credit: no outstanding debt")
	ErrNotMaturedDebt   = errors.New("credit: debt has not matured")
	ErrNotDefaultedDebt = errors.New("credit: debt is not defaulted")
	ErrRepayTooLittle   = errors.New("credit: repayment below accrued interest")
	ErrResidualTooLarge = errors.New("credit: defaulted debt residual above tolerance")

	ErrNotValidVault = errors.New("credit: not a valid vault")
	ErrVaultAsset    = errors.New("credit: vault asset does not match loan asset")
	ErrVaultBounds   = errors.New("credit: vault percentage bounds invalid")

	ErrRateOverflow   = errors.New("credit: rate accumulator overflow")
	ErrRateTableEmpty = errors.New("credit: rate tier table empty")
	ErrRateTableOrder = errors.New("credit: rate tiers must be strictly increasing and non-zero")
)
