package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"creditpool/native/credit"
)

type borrowerView struct {
	Index     uint64 `json:"index"`
	Addr      string `json:"addr"`
	Ceiling   string `json:"ceiling"`
	Used      string `json:"used"`
	Remaining string `json:"remaining"`
	TotalDebt string `json:"total_debt,omitempty"`
}

type vaultView struct {
	Index       uint64 `json:"index"`
	Addr        string `json:"addr"`
	Asset       string `json:"asset"`
	MinPct      uint32 `json:"min_pct"`
	MaxPct      uint32 `json:"max_pct"`
	Outstanding string `json:"outstanding,omitempty"`
}

type loanView struct {
	Index     uint64 `json:"index"`
	Borrower  string `json:"borrower"`
	Requested string `json:"requested"`
	Ceiling   string `json:"ceiling"`
	Remaining string `json:"remaining"`
	RateTier  uint32 `json:"rate_tier"`
	Status    string `json:"status"`
}

type trancheView struct {
	Index      uint64 `json:"index"`
	Vault      uint64 `json:"vault"`
	Normalized string `json:"normalized"`
}

type debtView struct {
	Index    uint64        `json:"index"`
	Loan     uint64        `json:"loan"`
	Borrower string        `json:"borrower"`
	Owed     string        `json:"owed"`
	RateTier uint32        `json:"rate_tier"`
	Start    int64         `json:"start"`
	Maturity int64         `json:"maturity"`
	Status   string        `json:"status"`
	Tranches []trancheView `json:"tranches"`
}

func loanStatusString(s credit.LoanStatus) string {
	switch s {
	case credit.LoanPending:
		return "PENDING"
	case credit.LoanApproved:
		return "APPROVED"
	default:
		return "UNKNOWN"
	}
}

func debtStatusString(s credit.DebtStatus) string {
	switch s {
	case credit.DebtActive:
		return "ACTIVE"
	case credit.DebtRepaid:
		return "REPAID"
	case credit.DebtDefaulted:
		return "DEFAULTED"
	case credit.DebtClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

func newLoanView(loan *credit.Loan) loanView {
	return loanView{
		Index:     loan.Index,
		Borrower:  loan.Borrower,
		Requested: formatAmount(loan.Requested),
		Ceiling:   formatAmount(loan.Ceiling),
		Remaining: formatAmount(loan.Remaining),
		RateTier:  loan.RateTier,
		Status:    loanStatusString(loan.Status),
	}
}

// Pile refreshes every rate accumulator. Any authenticated identity may
// trigger it.
func (s *Server) Pile(w http.ResponseWriter, r *http.Request) {
	moved, err := s.engine.Pile()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"moved": moved})
}

// Join registers the caller as a trusted borrower.
func (s *Server) Join(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(r)
	if !ok {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	borrower, err := s.engine.Join(caller)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, borrowerView{
		Index:     borrower.Index,
		Addr:      borrower.Addr,
		Ceiling:   formatAmount(borrower.Ceiling),
		Used:      formatAmount(borrower.Used),
		Remaining: formatAmount(borrower.Remaining()),
	})
}

// GetBorrower returns the borrower record with its live owed total.
func (s *Server) GetBorrower(w http.ResponseWriter, r *http.Request) {
	addr := chi.URLParam(r, "addr")
	borrower, err := s.engine.BorrowerByAddr(addr)
	if err != nil {
		s.writeError(w, err)
		return
	}
	total, err := s.engine.TotalDebtOfBorrower(addr)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, borrowerView{
		Index:     borrower.Index,
		Addr:      borrower.Addr,
		Ceiling:   formatAmount(borrower.Ceiling),
		Used:      formatAmount(borrower.Used),
		Remaining: formatAmount(borrower.Remaining()),
		TotalDebt: formatAmount(total),
	})
}

// Agree fixes the one-time borrower ceiling.
func (s *Server) Agree(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(r)
	if !ok {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	var req struct {
		Ceiling string `json:"ceiling"`
	}
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	ceiling, ok := parseAmountField(req.Ceiling)
	if !ok {
		http.Error(w, "invalid ceiling", http.StatusBadRequest)
		return
	}
	if err := s.engine.Agree(caller, chi.URLParam(r, "addr"), ceiling); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"ceiling": ceiling.String()})
}

// UpdateBorrowerLimit adjusts an already agreed borrower ceiling.
func (s *Server) UpdateBorrowerLimit(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(r)
	if !ok {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	var req struct {
		Ceiling string `json:"ceiling"`
	}
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	ceiling, ok := parseAmountField(req.Ceiling)
	if !ok {
		http.Error(w, "invalid ceiling", http.StatusBadRequest)
		return
	}
	if err := s.engine.UpdateBorrowerLimit(caller, chi.URLParam(r, "addr"), ceiling); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"ceiling": ceiling.String()})
}

// UpsertVault registers or overwrites a trusted vault.
func (s *Server) UpsertVault(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(r)
	if !ok {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	var req struct {
		Addr      string `json:"addr"`
		Asset     string `json:"asset"`
		MinPct    uint32 `json:"min_pct"`
		MaxPct    uint32 `json:"max_pct"`
		IndexHint uint64 `json:"index_hint"`
	}
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	overwritten, err := s.engine.UpdateTrustedVaults(caller, credit.Vault{
		Addr:   req.Addr,
		Asset:  req.Asset,
		MinPct: req.MinPct,
		MaxPct: req.MaxPct,
	}, req.IndexHint)
	if err != nil {
		s.writeError(w, err)
		return
	}
	status := http.StatusCreated
	if overwritten {
		status = http.StatusOK
	}
	s.writeJSON(w, status, map[string]bool{"overwritten": overwritten})
}

// GetVault returns the vault record with its live funded exposure.
func (s *Server) GetVault(w http.ResponseWriter, r *http.Request) {
	addr := chi.URLParam(r, "addr")
	vault, err := s.engine.VaultByAddr(addr)
	if err != nil {
		s.writeError(w, err)
		return
	}
	outstanding, err := s.engine.TotalDebtOfVault(addr)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, vaultView{
		Index:       vault.Index,
		Addr:        vault.Addr,
		Asset:       vault.Asset,
		MinPct:      vault.MinPct,
		MaxPct:      vault.MaxPct,
		Outstanding: formatAmount(outstanding),
	})
}

// Deposit credits external funds to an account. Operators only; this is the
// funding door for vault capital.
func (s *Server) Deposit(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(r)
	if !ok {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	if !s.operators.Contains(caller) {
		http.Error(w, "operator capability required", http.StatusForbidden)
		return
	}
	var req struct {
		Amount string `json:"amount"`
	}
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	amount, ok := parseAmountField(req.Amount)
	if !ok {
		http.Error(w, "invalid amount", http.StatusBadRequest)
		return
	}
	balance, err := s.store.Deposit(chi.URLParam(r, "addr"), amount)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"balance": balance.String()})
}

// RequestLoan opens a pending loan for the caller.
func (s *Server) RequestLoan(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(r)
	if !ok {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	var req struct {
		Amount string `json:"amount"`
	}
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	amount, ok := parseAmountField(req.Amount)
	if !ok {
		http.Error(w, "invalid amount", http.StatusBadRequest)
		return
	}
	loan, err := s.engine.Request(caller, amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, newLoanView(loan))
}

// GetLoan returns one loan record.
func (s *Server) GetLoan(w http.ResponseWriter, r *http.Request) {
	index, err := parseIndex(r)
	if err != nil {
		http.Error(w, "invalid loan index", http.StatusBadRequest)
		return
	}
	loan, err := s.engine.Loan(index)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newLoanView(loan))
}

// ApproveLoan approves a pending loan at a rate tier.
func (s *Server) ApproveLoan(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(r)
	if !ok {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	index, err := parseIndex(r)
	if err != nil {
		http.Error(w, "invalid loan index", http.StatusBadRequest)
		return
	}
	var req struct {
		Ceiling  string `json:"ceiling"`
		RateTier uint32 `json:"rate_tier"`
	}
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	ceiling, ok := parseAmountField(req.Ceiling)
	if !ok {
		http.Error(w, "invalid ceiling", http.StatusBadRequest)
		return
	}
	if err := s.engine.Approve(caller, index, ceiling, req.RateTier); err != nil {
		s.writeError(w, err)
		return
	}
	loan, err := s.engine.Loan(index)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, newLoanView(loan))
}

// UpdateLoanLimit adjusts an approved loan ceiling.
func (s *Server) UpdateLoanLimit(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(r)
	if !ok {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	index, err := parseIndex(r)
	if err != nil {
		http.Error(w, "invalid loan index", http.StatusBadRequest)
		return
	}
	var req struct {
		Ceiling string `json:"ceiling"`
	}
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	ceiling, ok := parseAmountField(req.Ceiling)
	if !ok {
		http.Error(w, "invalid ceiling", http.StatusBadRequest)
		return
	}
	if err := s.engine.UpdateLoanLimit(caller, index, ceiling); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"ceiling": ceiling.String()})
}

// UpdateLoanRate reassigns the rate tier applied to future draws.
func (s *Server) UpdateLoanRate(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(r)
	if !ok {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	index, err := parseIndex(r)
	if err != nil {
		http.Error(w, "invalid loan index", http.StatusBadRequest)
		return
	}
	var req struct {
		RateTier uint32 `json:"rate_tier"`
	}
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if err := s.engine.UpdateLoanInterestRate(caller, index, req.RateTier); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]uint32{"rate_tier": req.RateTier})
}

// Draw executes a borrow against an approved loan.
func (s *Server) Draw(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(r)
	if !ok {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	index, err := parseIndex(r)
	if err != nil {
		http.Error(w, "invalid loan index", http.StatusBadRequest)
		return
	}
	var req struct {
		Amount   string `json:"amount"`
		Maturity int64  `json:"maturity"`
	}
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	amount, ok := parseAmountField(req.Amount)
	if !ok {
		http.Error(w, "invalid amount", http.StatusBadRequest)
		return
	}
	result, err := s.engine.Borrow(caller, index, amount, req.Maturity)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"debt":          result.Debt.Index,
		"sourced":       formatAmount(result.Sourced),
		"all_satisfied": result.AllSatisfied,
	})
}

// GetDebt returns one debt with its live owed amount and tranche breakdown.
func (s *Server) GetDebt(w http.ResponseWriter, r *http.Request) {
	index, err := parseIndex(r)
	if err != nil {
		http.Error(w, "invalid debt index", http.StatusBadRequest)
		return
	}
	debt, err := s.engine.Debt(index)
	if err != nil {
		s.writeError(w, err)
		return
	}
	owed, err := s.engine.OwedAmount(index)
	if err != nil {
		s.writeError(w, err)
		return
	}
	tranches, err := s.engine.TranchesOfDebt(index)
	if err != nil {
		s.writeError(w, err)
		return
	}
	views := make([]trancheView, 0, len(tranches))
	for _, tranche := range tranches {
		views = append(views, trancheView{
			Index:      tranche.Index,
			Vault:      tranche.Vault,
			Normalized: formatAmount(tranche.Normalized),
		})
	}
	s.writeJSON(w, http.StatusOK, debtView{
		Index:    debt.Index,
		Loan:     debt.Loan,
		Borrower: debt.Borrower,
		Owed:     formatAmount(owed),
		RateTier: debt.RateTier,
		Start:    debt.Start,
		Maturity: debt.Maturity,
		Status:   debtStatusString(debt.Status),
		Tranches: views,
	})
}

// Repay settles part or all of an active debt.
func (s *Server) Repay(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(r)
	if !ok {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	index, err := parseIndex(r)
	if err != nil {
		http.Error(w, "invalid debt index", http.StatusBadRequest)
		return
	}
	var req struct {
		Amount string `json:"amount"`
	}
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	amount, ok := parseAmountField(req.Amount)
	if !ok {
		http.Error(w, "invalid amount", http.StatusBadRequest)
		return
	}
	paid, err := s.engine.Repay(caller, index, amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"paid": paid.String()})
}

// MarkDefaulted moves a matured debt onto the penalty tier.
func (s *Server) MarkDefaulted(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(r)
	if !ok {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	index, err := parseIndex(r)
	if err != nil {
		http.Error(w, "invalid debt index", http.StatusBadRequest)
		return
	}
	var req struct {
		Borrower string `json:"borrower"`
		RateTier uint32 `json:"rate_tier"`
	}
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if err := s.engine.Defaulted(caller, req.Borrower, index, req.RateTier); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "DEFAULTED"})
}

// Recover applies a recovery payment to a defaulted debt.
func (s *Server) Recover(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(r)
	if !ok {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	index, err := parseIndex(r)
	if err != nil {
		http.Error(w, "invalid debt index", http.StatusBadRequest)
		return
	}
	var req struct {
		Borrower string `json:"borrower"`
		Amount   string `json:"amount"`
	}
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	amount, ok := parseAmountField(req.Amount)
	if !ok {
		http.Error(w, "invalid amount", http.StatusBadRequest)
		return
	}
	paid, err := s.engine.Recovery(caller, req.Borrower, index, amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"paid": paid.String()})
}

// CloseDebt writes off a recovered defaulted debt.
func (s *Server) CloseDebt(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(r)
	if !ok {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	index, err := parseIndex(r)
	if err != nil {
		http.Error(w, "invalid debt index", http.StatusBadRequest)
		return
	}
	var req struct {
		Borrower string `json:"borrower"`
	}
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	residual, err := s.engine.Close(caller, req.Borrower, index)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "CLOSED", "residual": residual.String()})
}

// Audit exposes the persisted mutation trail to operators.
func (s *Server) Audit(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(r)
	if !ok {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	if !s.operators.Contains(caller) {
		http.Error(w, "operator capability required", http.StatusForbidden)
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	entries, err := s.store.AuditTrail(r.URL.Query().Get("entity"), limit)
	if err != nil {
		s.writeError(w, fmt.Errorf("audit trail: %w", err))
		return
	}
	type auditView struct {
		Entity    string `json:"entity"`
		EntitySeq uint64 `json:"entity_seq"`
		Action    string `json:"action"`
		Details   string `json:"details"`
	}
	views := make([]auditView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, auditView{
			Entity:    entry.Entity,
			EntitySeq: entry.EntitySeq,
			Action:    entry.Action,
			Details:   entry.Details,
		})
	}
	s.writeJSON(w, http.StatusOK, views)
}
