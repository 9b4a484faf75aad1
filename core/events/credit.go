package events

import (
	"math/big"
	"strconv"

	"creditpool/core/types"
)

const (
	// TypeBorrowerJoined is emitted when a new trusted borrower registers.
	TypeBorrowerJoined = "credit.borrowerJoined"
	// TypeCeilingAgreed is emitted when an operator fixes a borrower ceiling.
	TypeCeilingAgreed = "credit.ceilingAgreed"
	// TypeBorrowerLimitUpdated captures subsequent ceiling adjustments.
	TypeBorrowerLimitUpdated = "credit.borrowerLimitUpdated"
	// TypeLoanRequested is emitted when a borrower opens a pending loan.
	TypeLoanRequested = "credit.loanRequested"
	// TypeLoanApproved is emitted when an operator approves a pending loan.
	TypeLoanApproved = "credit.loanApproved"
	// TypeLoanLimitUpdated captures post-origination ceiling changes.
	TypeLoanLimitUpdated = "credit.loanLimitUpdated"
	// TypeLoanRateUpdated captures post-origination rate tier changes.
	TypeLoanRateUpdated = "credit.loanRateUpdated"
	// TypeDrawExecuted is emitted for every borrow, whether fully funded or not.
	TypeDrawExecuted = "credit.drawExecuted"
	// TypeDebtRepaid is emitted for every accepted repayment.
	TypeDebtRepaid = "credit.repaid"
	// TypeDebtDefaulted is emitted when a matured debt is marked defaulted.
	TypeDebtDefaulted = "credit.defaulted"
	// TypeDebtRecovered is emitted for recovery payments on defaulted debt.
	TypeDebtRecovered = "credit.recovered"
	// TypeDebtClosed is emitted when a defaulted debt is written off.
	TypeDebtClosed = "credit.closed"
	// TypeVaultUpdated is emitted when a trusted vault is added or overwritten.
	TypeVaultUpdated = "credit.vaultUpdated"
	// TypeAccumulatorsRefreshed is emitted after every effective pile.
	TypeAccumulatorsRefreshed = "credit.accumulatorsRefreshed"
)

// BorrowerJoined records a successful borrower registration.
type BorrowerJoined struct {
	Borrower string
	Index    uint64
}

// EventType satisfies the Event interface.
func (BorrowerJoined) EventType() string { return TypeBorrowerJoined }

// Event converts the structured payload into a broadcastable event.
func (e BorrowerJoined) Event() *types.Event {
	return &types.Event{Type: TypeBorrowerJoined, Attributes: map[string]string{
		"borrower": e.Borrower,
		"index":    strconv.FormatUint(e.Index, 10),
	}}
}

// CeilingAgreed records the one-time ceiling assignment for a borrower.
type CeilingAgreed struct {
	Borrower string
	Ceiling  *big.Int
}

func (CeilingAgreed) EventType() string { return TypeCeilingAgreed }

// Event converts the structured payload into a broadcastable event.
func (e CeilingAgreed) Event() *types.Event {
	return &types.Event{Type: TypeCeilingAgreed, Attributes: map[string]string{
		"borrower": e.Borrower,
		"ceiling":  formatAmount(e.Ceiling),
	}}
}

// BorrowerLimitUpdated records an explicit borrower ceiling adjustment.
type BorrowerLimitUpdated struct {
	Borrower string
	Ceiling  *big.Int
}

func (BorrowerLimitUpdated) EventType() string { return TypeBorrowerLimitUpdated }

// Event converts the structured payload into a broadcastable event.
func (e BorrowerLimitUpdated) Event() *types.Event {
	return &types.Event{Type: TypeBorrowerLimitUpdated, Attributes: map[string]string{
		"borrower": e.Borrower,
		"ceiling":  formatAmount(e.Ceiling),
	}}
}

// LoanRequested records a new pending credit line.
type LoanRequested struct {
	Borrower string
	Loan     uint64
	Amount   *big.Int
}

func (LoanRequested) EventType() string { return TypeLoanRequested }

// Event converts the structured payload into a broadcastable event.
func (e LoanRequested) Event() *types.Event {
	return &types.Event{Type: TypeLoanRequested, Attributes: map[string]string{
		"borrower": e.Borrower,
		"loan":     strconv.FormatUint(e.Loan, 10),
		"amount":   formatAmount(e.Amount),
	}}
}

// LoanApproved records operator approval of a pending loan.
type LoanApproved struct {
	Loan     uint64
	Ceiling  *big.Int
	RateTier uint32
}

func (LoanApproved) EventType() string { return TypeLoanApproved }

// Event converts the structured payload into a broadcastable event.
func (e LoanApproved) Event() *types.Event {
	return &types.Event{Type: TypeLoanApproved, Attributes: map[string]string{
		"loan":     strconv.FormatUint(e.Loan, 10),
		"ceiling":  formatAmount(e.Ceiling),
		"rateTier": strconv.FormatUint(uint64(e.RateTier), 10),
	}}
}

// LoanLimitUpdated records a post-origination loan ceiling change.
type LoanLimitUpdated struct {
	Loan    uint64
	Ceiling *big.Int
}

func (LoanLimitUpdated) EventType() string { return TypeLoanLimitUpdated }

// Event converts the structured payload into a broadcastable event.
func (e LoanLimitUpdated) Event() *types.Event {
	return &types.Event{Type: TypeLoanLimitUpdated, Attributes: map[string]string{
		"loan":    strconv.FormatUint(e.Loan, 10),
		"ceiling": formatAmount(e.Ceiling),
	}}
}

// LoanRateUpdated records a post-origination loan rate tier change.
type LoanRateUpdated struct {
	Loan     uint64
	RateTier uint32
}

func (LoanRateUpdated) EventType() string { return TypeLoanRateUpdated }

// Event converts the structured payload into a broadcastable event.
func (e LoanRateUpdated) Event() *types.Event {
	return &types.Event{Type: TypeLoanRateUpdated, Attributes: map[string]string{
		"loan":     strconv.FormatUint(e.Loan, 10),
		"rateTier": strconv.FormatUint(uint64(e.RateTier), 10),
	}}
}

// DrawExecuted records a borrow, including the partial-fill outcome.
type DrawExecuted struct {
	Loan         uint64
	Debt         uint64
	Requested    *big.Int
	Sourced      *big.Int
	AllSatisfied bool
	Maturity     int64
}

func (DrawExecuted) EventType() string { return TypeDrawExecuted }

// Event converts the structured payload into a broadcastable event.
func (e DrawExecuted) Event() *types.Event {
	return &types.Event{Type: TypeDrawExecuted, Attributes: map[string]string{
		"loan":         strconv.FormatUint(e.Loan, 10),
		"debt":         strconv.FormatUint(e.Debt, 10),
		"requested":    formatAmount(e.Requested),
		"sourced":      formatAmount(e.Sourced),
		"allSatisfied": strconv.FormatBool(e.AllSatisfied),
		"maturity":     strconv.FormatInt(e.Maturity, 10),
	}}
}

// DebtRepaid records an accepted repayment and the split between interest and
// principal.
type DebtRepaid struct {
	Debt          uint64
	Paid          *big.Int
	InterestPaid  *big.Int
	PrincipalPaid *big.Int
	Outstanding   *big.Int
}

func (DebtRepaid) EventType() string { return TypeDebtRepaid }

// Event converts the structured payload into a broadcastable event.
func (e DebtRepaid) Event() *types.Event {
	return &types.Event{Type: TypeDebtRepaid, Attributes: map[string]string{
		"debt":          strconv.FormatUint(e.Debt, 10),
		"paid":          formatAmount(e.Paid),
		"interestPaid":  formatAmount(e.InterestPaid),
		"principalPaid": formatAmount(e.PrincipalPaid),
		"outstanding":   formatAmount(e.Outstanding),
	}}
}

// DebtDefaulted records a default marking and the penalty tier re-base.
type DebtDefaulted struct {
	Debt     uint64
	RateTier uint32
	Owed     *big.Int
}

func (DebtDefaulted) EventType() string { return TypeDebtDefaulted }

// Event converts the structured payload into a broadcastable event.
func (e DebtDefaulted) Event() *types.Event {
	return &types.Event{Type: TypeDebtDefaulted, Attributes: map[string]string{
		"debt":     strconv.FormatUint(e.Debt, 10),
		"rateTier": strconv.FormatUint(uint64(e.RateTier), 10),
		"owed":     formatAmount(e.Owed),
	}}
}

// DebtRecovered records a recovery payment on a defaulted debt.
type DebtRecovered struct {
	Debt        uint64
	Paid        *big.Int
	Outstanding *big.Int
}

func (DebtRecovered) EventType() string { return TypeDebtRecovered }

// Event converts the structured payload into a broadcastable event.
func (e DebtRecovered) Event() *types.Event {
	return &types.Event{Type: TypeDebtRecovered, Attributes: map[string]string{
		"debt":        strconv.FormatUint(e.Debt, 10),
		"paid":        formatAmount(e.Paid),
		"outstanding": formatAmount(e.Outstanding),
	}}
}

// DebtClosed records the administrative write-off of a defaulted debt, with
// the residual amount retained for audit.
type DebtClosed struct {
	Debt     uint64
	Residual *big.Int
}

func (DebtClosed) EventType() string { return TypeDebtClosed }

// Event converts the structured payload into a broadcastable event.
func (e DebtClosed) Event() *types.Event {
	return &types.Event{Type: TypeDebtClosed, Attributes: map[string]string{
		"debt":     strconv.FormatUint(e.Debt, 10),
		"residual": formatAmount(e.Residual),
	}}
}

// VaultUpdated records a trusted vault registration or in-place overwrite.
type VaultUpdated struct {
	Vault    string
	Index    uint64
	Appended bool
	MinPct   uint32
	MaxPct   uint32
}

func (VaultUpdated) EventType() string { return TypeVaultUpdated }

// Event converts the structured payload into a broadcastable event.
func (e VaultUpdated) Event() *types.Event {
	return &types.Event{Type: TypeVaultUpdated, Attributes: map[string]string{
		"vault":    e.Vault,
		"index":    strconv.FormatUint(e.Index, 10),
		"appended": strconv.FormatBool(e.Appended),
		"minPct":   strconv.FormatUint(uint64(e.MinPct), 10),
		"maxPct":   strconv.FormatUint(uint64(e.MaxPct), 10),
	}}
}

// AccumulatorsRefreshed records an effective pile.
type AccumulatorsRefreshed struct {
	Timestamp int64
}

func (AccumulatorsRefreshed) EventType() string { return TypeAccumulatorsRefreshed }

// Event converts the structured payload into a broadcastable event.
func (e AccumulatorsRefreshed) Event() *types.Event {
	return &types.Event{Type: TypeAccumulatorsRefreshed, Attributes: map[string]string{
		"timestamp": strconv.FormatInt(e.Timestamp, 10),
	}}
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
