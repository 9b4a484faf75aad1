package credit

import (
	"fmt"
	"math/big"

	"creditpool/core/events"
	"creditpool/native/common"
)

// DrawResult reports the outcome of a borrow. Sourced may be smaller than the
// requested amount when aggregate vault capacity is insufficient; that is an
// observable outcome, not an error.
type DrawResult struct {
	Debt         *Debt
	Sourced      *big.Int
	AllSatisfied bool
}

// Request opens a pending credit line for the caller and pessimistically
// reserves the full requested amount against the borrower ceiling. The
// reservation is trimmed back at approval time if the operator approves less.
func (e *Engine) Request(caller string, amount *big.Int) (*Loan, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()

	var loan *Loan
	err := e.inTx(func() error {
		if amount == nil || amount.Sign() <= 0 {
			return ErrInvalidAmount
		}
		if err := common.CheckEligibility(e.eligibility, caller); err != nil {
			return err
		}
		borrower, err := e.loadBorrower(caller)
		if err != nil {
			return err
		}
		remaining := borrower.Remaining()
		if amount.Cmp(remaining) > 0 {
			return fmt.Errorf("%w: requested %s, available %s", ErrCeilingOverRemaining, amount, remaining)
		}

		count, err := e.state.LoanCount()
		if err != nil {
			return err
		}
		loan = &Loan{
			Index:           count,
			Borrower:        borrower.Addr,
			Requested:       new(big.Int).Set(amount),
			Ceiling:         new(big.Int).Set(amount),
			Remaining:       new(big.Int).Set(amount),
			NormalizedDrawn: big.NewInt(0),
			Status:          LoanPending,
		}
		borrower.Used = new(big.Int).Add(borrower.Used, amount)

		if err := e.state.PutLoan(loan); err != nil {
			return err
		}
		if err := e.state.PutBorrower(borrower); err != nil {
			return err
		}
		e.emit(events.LoanRequested{Borrower: borrower.Addr, Loan: loan.Index, Amount: amount})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return loan.Clone(), nil
}

// Approve transitions a pending loan to approved, assigning its rate tier.
// The approved ceiling is clamped to the originally requested amount and any
// excess reservation flows back to the borrower.
func (e *Engine) Approve(caller string, loanIndex uint64, ceiling *big.Int, rateTier uint32) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()

	return e.inTx(func() error {
		if err := common.Authorize(e.auth, caller, CapabilityOperator); err != nil {
			return err
		}
		if ceiling == nil || ceiling.Sign() <= 0 {
			return ErrInvalidAmount
		}
		loan, err := e.state.LoanByIndex(loanIndex)
		if err != nil {
			return err
		}
		if loan == nil {
			return fmt.Errorf("%w: index %d", ErrNotValidLoan, loanIndex)
		}
		if loan.Status != LoanPending {
			return ErrNotPendingLoan
		}
		rs, err := e.state.RateState()
		if err != nil {
			return err
		}
		if !rs.ValidTier(rateTier) {
			return fmt.Errorf("%w: index %d", ErrNotValidRateTier, rateTier)
		}

		approved := minAmount(ceiling, loan.Requested)
		released := new(big.Int).Sub(loan.Ceiling, approved)
		loan.Ceiling = approved
		loan.Remaining = new(big.Int).Set(approved)
		loan.RateTier = rateTier
		loan.Status = LoanApproved

		borrower, err := e.loadBorrower(loan.Borrower)
		if err != nil {
			return err
		}
		if released.Sign() > 0 {
			borrower.Used = new(big.Int).Sub(borrower.Used, released)
			if borrower.Used.Sign() < 0 {
				borrower.Used = big.NewInt(0)
			}
		}

		if err := e.state.PutLoan(loan); err != nil {
			return err
		}
		if err := e.state.PutBorrower(borrower); err != nil {
			return err
		}
		e.emit(events.LoanApproved{Loan: loan.Index, Ceiling: approved, RateTier: rateTier})
		return nil
	})
}

// Borrow draws against an approved loan, sourcing the amount from trusted
// vaults and creating one debt plus one tranche per contributing vault. The
// draw may be partially satisfied; the result carries the sourced amount and
// the all-satisfied flag.
func (e *Engine) Borrow(caller string, loanIndex uint64, amount *big.Int, maturity int64) (*DrawResult, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()

	var result *DrawResult
	err := e.inTx(func() error {
		if amount == nil || amount.Sign() <= 0 {
			return ErrInvalidAmount
		}
		if err := common.CheckEligibility(e.eligibility, caller); err != nil {
			return err
		}
		loan, err := e.state.LoanByIndex(loanIndex)
		if err != nil {
			return err
		}
		if loan == nil || loan.Status != LoanApproved {
			return fmt.Errorf("%w: index %d", ErrNotValidLoan, loanIndex)
		}
		if loan.Borrower != caller {
			return ErrNotLoanOwner
		}
		now := e.now()
		if maturity <= now {
			return fmt.Errorf("%w: maturity %d, now %d", ErrMaturityInPast, maturity, now)
		}
		if amount.Cmp(loan.Remaining) > 0 {
			return fmt.Errorf("%w: requested %s, available %s", ErrBorrowOverLimit, amount, loan.Remaining)
		}
		if e.funding == nil {
			return ErrFundingNotConfigured
		}

		rs, err := e.refreshRates(now)
		if err != nil {
			return err
		}
		allocations, sourced, allSatisfied, err := e.allocateDraw(amount, rs)
		if err != nil {
			return err
		}
		if sourced.Sign() == 0 {
			return ErrNoVaultCapacity
		}

		acc := rs.Accumulated[loan.RateTier]
		normalized := normalizeAmount(sourced, acc)
		debtCount, err := e.state.DebtCount()
		if err != nil {
			return err
		}
		debt := &Debt{
			Index:      debtCount,
			Loan:       loan.Index,
			Borrower:   loan.Borrower,
			Principal:  new(big.Int).Set(sourced),
			Normalized: normalized,
			RateTier:   loan.RateTier,
			Start:      now,
			Maturity:   maturity,
			Status:     DebtActive,
		}

		// Tranche normalized shares are floored proportionally, with the final
		// contributor absorbing the rounding remainder so the tranche sum equals
		// the debt's normalized principal exactly.
		trancheCount, err := e.state.TrancheCount()
		if err != nil {
			return err
		}
		tranches := make([]*Tranche, len(allocations))
		assigned := big.NewInt(0)
		for i, alloc := range allocations {
			var share *big.Int
			if i == len(allocations)-1 {
				share = new(big.Int).Sub(normalized, assigned)
			} else {
				share = mulDivFloor(alloc.amount, normalized, sourced)
				assigned.Add(assigned, share)
			}
			tranches[i] = &Tranche{
				Index:      trancheCount + uint64(i),
				Vault:      alloc.vault.Index,
				Debt:       debt.Index,
				Normalized: share,
			}
		}

		loan.Remaining = new(big.Int).Sub(loan.Remaining, sourced)
		loan.NormalizedDrawn = new(big.Int).Add(loan.NormalizedDrawn, normalized)

		if err := e.state.PutDebt(debt); err != nil {
			return err
		}
		for _, tranche := range tranches {
			if err := e.state.PutTranche(tranche); err != nil {
				return err
			}
		}
		if err := e.state.PutLoan(loan); err != nil {
			return err
		}

		// A failed transfer aborts the transaction, rolling the draw back.
		for _, alloc := range allocations {
			if err := e.funding.Transfer(alloc.vault.Addr, loan.Borrower, alloc.amount); err != nil {
				return err
			}
		}

		e.emit(events.DrawExecuted{
			Loan:         loan.Index,
			Debt:         debt.Index,
			Requested:    amount,
			Sourced:      sourced,
			AllSatisfied: allSatisfied,
			Maturity:     maturity,
		})
		result = &DrawResult{Debt: debt.Clone(), Sourced: sourced, AllSatisfied: allSatisfied}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Repay applies a payment to an active debt, interest first and principal
// second, shrinking every tranche proportionally. The accepted amount is
// returned; it is capped at the current owed amount.
func (e *Engine) Repay(caller string, debtIndex uint64, amount *big.Int) (*big.Int, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()

	var paid *big.Int
	err := e.inTx(func() error {
		if err := common.CheckEligibility(e.eligibility, caller); err != nil {
			return err
		}
		debt, err := e.loadDebt(debtIndex)
		if err != nil {
			return err
		}
		if debt.Status != DebtActive {
			return fmt.Errorf("%w: index %d", ErrNotValidDebt, debtIndex)
		}
		if debt.Borrower != caller {
			return ErrNotLoanOwner
		}

		rs, err := e.refreshRates(e.now())
		if err != nil {
			return err
		}
		result, err := e.settle(debt, amount, rs)
		if err != nil {
			return err
		}
		if result.outstanding.Sign() == 0 {
			debt.Status = DebtRepaid
			if err := e.state.PutDebt(debt); err != nil {
				return err
			}
		}
		e.emit(events.DebtRepaid{
			Debt:          debt.Index,
			Paid:          result.paid,
			InterestPaid:  result.interestPaid,
			PrincipalPaid: result.principalPaid,
			Outstanding:   result.outstanding,
		})
		paid = result.paid
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

// Defaulted marks a matured, still-active debt as defaulted and re-bases its
// normalized principal onto the supplied penalty tier so compounding
// continues at the new rate. Small rounding deltas against the pre-default
// owed amount are expected.
func (e *Engine) Defaulted(caller, borrowerAddr string, debtIndex uint64, rateTier uint32) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()

	return e.inTx(func() error {
		if err := common.Authorize(e.auth, caller, CapabilityOperator); err != nil {
			return err
		}
		debt, err := e.loadDebt(debtIndex)
		if err != nil {
			return err
		}
		if debt.Borrower != borrowerAddr {
			return fmt.Errorf("%w: debt %d does not belong to %s", ErrNotValidDebt, debtIndex, borrowerAddr)
		}
		if debt.Status != DebtActive {
			return fmt.Errorf("%w: index %d", ErrNotValidDebt, debtIndex)
		}
		now := e.now()
		if now <= debt.Maturity {
			return fmt.Errorf("%w: maturity %d, now %d", ErrNotMaturedDebt, debt.Maturity, now)
		}

		rs, err := e.refreshRates(now)
		if err != nil {
			return err
		}
		if !rs.ValidTier(rateTier) {
			return fmt.Errorf("%w: index %d", ErrNotValidRateTier, rateTier)
		}

		owed := owedAmount(debt.Normalized, rs.Accumulated[debt.RateTier])
		rebased := normalizeAmount(owed, rs.Accumulated[rateTier])
		oldNormalized := debt.Normalized

		tranches, err := e.state.TranchesByDebt(debt.Index)
		if err != nil {
			return err
		}
		rescaleTranches(tranches, oldNormalized, rebased)
		for _, tranche := range tranches {
			if err := e.state.PutTranche(tranche); err != nil {
				return err
			}
		}

		loan, err := e.state.LoanByIndex(debt.Loan)
		if err != nil {
			return err
		}
		if loan != nil {
			loan.NormalizedDrawn = new(big.Int).Add(loan.NormalizedDrawn, rebased)
			loan.NormalizedDrawn.Sub(loan.NormalizedDrawn, oldNormalized)
			if loan.NormalizedDrawn.Sign() < 0 {
				loan.NormalizedDrawn = big.NewInt(0)
			}
			if err := e.state.PutLoan(loan); err != nil {
				return err
			}
		}

		debt.Normalized = rebased
		debt.RateTier = rateTier
		debt.Status = DebtDefaulted
		if err := e.state.PutDebt(debt); err != nil {
			return err
		}
		e.emit(events.DebtDefaulted{Debt: debt.Index, RateTier: rateTier, Owed: owed})
		return nil
	})
}

// Recovery applies a payment to a defaulted debt with the same mechanics as
// Repay. The debt stays defaulted until Close writes it off; recovery may be
// partial.
func (e *Engine) Recovery(caller, borrowerAddr string, debtIndex uint64, amount *big.Int) (*big.Int, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()

	var paid *big.Int
	err := e.inTx(func() error {
		if err := common.Authorize(e.auth, caller, CapabilityOperator); err != nil {
			return err
		}
		debt, err := e.loadDebt(debtIndex)
		if err != nil {
			return err
		}
		if debt.Borrower != borrowerAddr {
			return fmt.Errorf("%w: debt %d does not belong to %s", ErrNotValidDebt, debtIndex, borrowerAddr)
		}
		if debt.Status != DebtDefaulted {
			return ErrNotDefaultedDebt
		}

		rs, err := e.refreshRates(e.now())
		if err != nil {
			return err
		}
		result, err := e.settle(debt, amount, rs)
		if err != nil {
			return err
		}
		e.emit(events.DebtRecovered{Debt: debt.Index, Paid: result.paid, Outstanding: result.outstanding})
		paid = result.paid
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

// Close writes off a defaulted debt once its residual is at or below the
// facility close tolerance, releasing the remaining principal reservation and
// emitting the final residual for audit.
func (e *Engine) Close(caller, borrowerAddr string, debtIndex uint64) (*big.Int, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()

	var residual *big.Int
	err := e.inTx(func() error {
		if err := common.Authorize(e.auth, caller, CapabilityOperator); err != nil {
			return err
		}
		debt, err := e.loadDebt(debtIndex)
		if err != nil {
			return err
		}
		if debt.Borrower != borrowerAddr {
			return fmt.Errorf("%w: debt %d does not belong to %s", ErrNotValidDebt, debtIndex, borrowerAddr)
		}
		if debt.Status != DebtDefaulted {
			return ErrNotDefaultedDebt
		}

		rs, err := e.refreshRates(e.now())
		if err != nil {
			return err
		}
		residual = owedAmount(debt.Normalized, rs.Accumulated[debt.RateTier])
		if residual.Cmp(e.params.CloseTolerance) > 0 {
			return fmt.Errorf("%w: residual %s, tolerance %s", ErrResidualTooLarge, residual, e.params.CloseTolerance)
		}

		tranches, err := e.state.TranchesByDebt(debt.Index)
		if err != nil {
			return err
		}
		rescaleTranches(tranches, debt.Normalized, big.NewInt(0))
		for _, tranche := range tranches {
			if err := e.state.PutTranche(tranche); err != nil {
				return err
			}
		}

		loan, err := e.state.LoanByIndex(debt.Loan)
		if err != nil {
			return err
		}
		if loan != nil {
			loan.NormalizedDrawn = new(big.Int).Sub(loan.NormalizedDrawn, debt.Normalized)
			if loan.NormalizedDrawn.Sign() < 0 {
				loan.NormalizedDrawn = big.NewInt(0)
			}
			if err := e.state.PutLoan(loan); err != nil {
				return err
			}
		}

		borrower, err := e.loadBorrower(debt.Borrower)
		if err != nil {
			return err
		}
		if debt.Principal.Sign() > 0 {
			borrower.Used = new(big.Int).Sub(borrower.Used, debt.Principal)
			if borrower.Used.Sign() < 0 {
				borrower.Used = big.NewInt(0)
			}
			if err := e.state.PutBorrower(borrower); err != nil {
				return err
			}
		}

		debt.Normalized = big.NewInt(0)
		debt.Principal = big.NewInt(0)
		debt.Status = DebtClosed
		if err := e.state.PutDebt(debt); err != nil {
			return err
		}
		e.emit(events.DebtClosed{Debt: debt.Index, Residual: residual})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return residual, nil
}

// UpdateLoanLimit adjusts a loan's ceiling after origination. The new ceiling
// may not drop below the amount already drawn, and increases must fit in the
// borrower's remaining capacity.
func (e *Engine) UpdateLoanLimit(caller string, loanIndex uint64, ceiling *big.Int) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()

	return e.inTx(func() error {
		if err := common.Authorize(e.auth, caller, CapabilityOperator); err != nil {
			return err
		}
		if ceiling == nil || ceiling.Sign() <= 0 {
			return ErrInvalidAmount
		}
		loan, err := e.state.LoanByIndex(loanIndex)
		if err != nil {
			return err
		}
		if loan == nil || loan.Status != LoanApproved {
			return fmt.Errorf("%w: index %d", ErrNotValidLoan, loanIndex)
		}
		borrower, err := e.loadBorrower(loan.Borrower)
		if err != nil {
			return err
		}
		if err := common.CheckEligibility(e.eligibility, borrower.Addr); err != nil {
			return err
		}

		drawn := new(big.Int).Sub(loan.Ceiling, loan.Remaining)
		if ceiling.Cmp(drawn) < 0 {
			return fmt.Errorf("%w: requested %s, drawn %s", ErrCeilingBelowUsed, ceiling, drawn)
		}
		delta := new(big.Int).Sub(ceiling, loan.Ceiling)
		used := new(big.Int).Add(borrower.Used, delta)
		if used.Sign() < 0 {
			used = big.NewInt(0)
		}
		if used.Cmp(borrower.Ceiling) > 0 {
			return fmt.Errorf("%w: requested %s, available %s", ErrCeilingOverRemaining, delta, borrower.Remaining())
		}

		borrower.Used = used
		loan.Ceiling = new(big.Int).Set(ceiling)
		loan.Remaining = new(big.Int).Sub(ceiling, drawn)

		if err := e.state.PutLoan(loan); err != nil {
			return err
		}
		if err := e.state.PutBorrower(borrower); err != nil {
			return err
		}
		e.emit(events.LoanLimitUpdated{Loan: loan.Index, Ceiling: ceiling})
		return nil
	})
}

// UpdateLoanInterestRate changes the tier applied to future draws of a loan.
// Existing debts keep the tier they were normalized against.
func (e *Engine) UpdateLoanInterestRate(caller string, loanIndex uint64, rateTier uint32) error {
	if err := e.begin(); err != nil {
		return err
	}
	defer e.end()

	return e.inTx(func() error {
		if err := common.Authorize(e.auth, caller, CapabilityOperator); err != nil {
			return err
		}
		loan, err := e.state.LoanByIndex(loanIndex)
		if err != nil {
			return err
		}
		if loan == nil || loan.Status != LoanApproved {
			return fmt.Errorf("%w: index %d", ErrNotValidLoan, loanIndex)
		}
		borrower, err := e.loadBorrower(loan.Borrower)
		if err != nil {
			return err
		}
		if err := common.CheckEligibility(e.eligibility, borrower.Addr); err != nil {
			return err
		}
		rs, err := e.state.RateState()
		if err != nil {
			return err
		}
		if !rs.ValidTier(rateTier) {
			return fmt.Errorf("%w: index %d", ErrNotValidRateTier, rateTier)
		}
		loan.RateTier = rateTier
		if err := e.state.PutLoan(loan); err != nil {
			return err
		}
		e.emit(events.LoanRateUpdated{Loan: loan.Index, RateTier: rateTier})
		return nil
	})
}

type settlement struct {
	paid          *big.Int
	interestPaid  *big.Int
	principalPaid *big.Int
	outstanding   *big.Int
}

// settle applies a payment to a debt under the current accumulators: interest
// first, principal second, every tranche shrunk proportionally. The caller
// handles the resulting status transition.
func (e *Engine) settle(debt *Debt, amount *big.Int, rs *RateState) (*settlement, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	acc := rs.Accumulated[debt.RateTier]
	owed := owedAmount(debt.Normalized, acc)
	if owed.Sign() == 0 {
		return nil, ErrNoOutstanding
	}

	pay := minAmount(amount, owed)
	principal := debt.Principal
	if principal == nil {
		principal = big.NewInt(0)
	}
	interest := new(big.Int).Sub(owed, principal)
	if interest.Sign() < 0 {
		interest = big.NewInt(0)
	}
	// A partial payment that cannot clear the accrued interest beyond the
	// dust threshold would never reduce principal; reject it outright.
	if pay.Cmp(owed) < 0 && interest.Cmp(e.params.DustThreshold) > 0 && pay.Cmp(interest) < 0 {
		return nil, fmt.Errorf("%w: paid %s, interest %s", ErrRepayTooLittle, pay, interest)
	}

	interestPaid := minAmount(pay, interest)
	principalPaid := new(big.Int).Sub(pay, interestPaid)
	outstanding := new(big.Int).Sub(owed, pay)

	oldNormalized := debt.Normalized
	var normalized *big.Int
	if outstanding.Sign() == 0 {
		normalized = big.NewInt(0)
	} else {
		normalized = normalizeAmount(outstanding, acc)
		if normalized.Cmp(oldNormalized) > 0 {
			normalized = new(big.Int).Set(oldNormalized)
		}
	}

	tranches, err := e.state.TranchesByDebt(debt.Index)
	if err != nil {
		return nil, err
	}
	// Capture the pre-shrink shares for routing the payment back to vaults.
	oldShares := make([]*big.Int, len(tranches))
	for i, tranche := range tranches {
		oldShares[i] = cloneAmount(tranche.Normalized)
	}
	rescaleTranches(tranches, oldNormalized, normalized)
	for _, tranche := range tranches {
		if err := e.state.PutTranche(tranche); err != nil {
			return nil, err
		}
	}

	loan, err := e.state.LoanByIndex(debt.Loan)
	if err != nil {
		return nil, err
	}
	if loan != nil {
		shrunk := new(big.Int).Sub(oldNormalized, normalized)
		loan.NormalizedDrawn = new(big.Int).Sub(loan.NormalizedDrawn, shrunk)
		if loan.NormalizedDrawn.Sign() < 0 {
			loan.NormalizedDrawn = big.NewInt(0)
		}
		if err := e.state.PutLoan(loan); err != nil {
			return nil, err
		}
	}

	if principalPaid.Sign() > 0 {
		borrower, err := e.loadBorrower(debt.Borrower)
		if err != nil {
			return nil, err
		}
		borrower.Used = new(big.Int).Sub(borrower.Used, principalPaid)
		if borrower.Used.Sign() < 0 {
			borrower.Used = big.NewInt(0)
		}
		if err := e.state.PutBorrower(borrower); err != nil {
			return nil, err
		}
	}

	debt.Normalized = normalized
	if outstanding.Sign() == 0 {
		debt.Principal = big.NewInt(0)
	} else {
		debt.Principal = new(big.Int).Sub(principal, principalPaid)
		if debt.Principal.Sign() < 0 {
			debt.Principal = big.NewInt(0)
		}
	}
	if err := e.state.PutDebt(debt); err != nil {
		return nil, err
	}

	// Route the payment back to the funding vaults in proportion to their
	// pre-shrink tranche shares. A failed transfer aborts the enclosing
	// transaction, so the ledger writes above never outlive the payment.
	if e.funding != nil {
		if err := e.routePayment(debt.Borrower, pay, tranches, oldShares, oldNormalized); err != nil {
			return nil, err
		}
	}

	return &settlement{
		paid:          pay,
		interestPaid:  interestPaid,
		principalPaid: principalPaid,
		outstanding:   outstanding,
	}, nil
}

func (e *Engine) routePayment(from string, pay *big.Int, tranches []*Tranche, shares []*big.Int, total *big.Int) error {
	if total == nil || total.Sign() == 0 {
		return nil
	}
	distributed := big.NewInt(0)
	last := -1
	for i, share := range shares {
		if share.Sign() > 0 {
			last = i
		}
	}
	for i, tranche := range tranches {
		if shares[i].Sign() == 0 {
			continue
		}
		var portion *big.Int
		if i == last {
			portion = new(big.Int).Sub(pay, distributed)
		} else {
			portion = mulDivFloor(pay, shares[i], total)
			distributed.Add(distributed, portion)
		}
		if portion.Sign() == 0 {
			continue
		}
		vault, err := e.state.VaultByIndex(tranche.Vault)
		if err != nil {
			return err
		}
		if vault == nil {
			return fmt.Errorf("%w: index %d", ErrNotValidVault, tranche.Vault)
		}
		if err := e.funding.Transfer(from, vault.Addr, portion); err != nil {
			return err
		}
	}
	return nil
}

// rescaleTranches shrinks (or re-bases) every tranche proportionally from the
// old debt normalized principal to the new one. Shares are floored and the
// last funded tranche absorbs the remainder so the sum is exact.
func rescaleTranches(tranches []*Tranche, oldNormalized, newNormalized *big.Int) {
	if oldNormalized == nil || oldNormalized.Sign() == 0 {
		for _, tranche := range tranches {
			tranche.Normalized = big.NewInt(0)
		}
		return
	}
	last := -1
	for i, tranche := range tranches {
		if tranche.Normalized != nil && tranche.Normalized.Sign() > 0 {
			last = i
		}
	}
	assigned := big.NewInt(0)
	for i, tranche := range tranches {
		if tranche.Normalized == nil || tranche.Normalized.Sign() == 0 {
			tranche.Normalized = big.NewInt(0)
			continue
		}
		if i == last {
			tranche.Normalized = new(big.Int).Sub(newNormalized, assigned)
			if tranche.Normalized.Sign() < 0 {
				tranche.Normalized = big.NewInt(0)
			}
			continue
		}
		share := mulDivFloor(tranche.Normalized, newNormalized, oldNormalized)
		assigned.Add(assigned, share)
		tranche.Normalized = share
	}
}

func (e *Engine) loadDebt(index uint64) (*Debt, error) {
	debt, err := e.state.DebtByIndex(index)
	if err != nil {
		return nil, err
	}
	if debt == nil {
		return nil, fmt.Errorf("%w: index %d", ErrNotValidDebt, index)
	}
	if debt.Principal == nil {
		debt.Principal = big.NewInt(0)
	}
	if debt.Normalized == nil {
		debt.Normalized = big.NewInt(0)
	}
	return debt, nil
}
