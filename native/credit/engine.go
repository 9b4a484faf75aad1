package credit

import (
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"creditpool/core/events"
	"creditpool/native/common"
)

// Engine orchestrates the credit facility: borrower and vault registries,
// the rate accumulators and the loan/debt/tranche lifecycle. A mutex
// serializes entry points so operations run one at a time to completion;
// mutating operations commit through a single state transaction, and events
// queued during an operation are delivered only after the lock is released.
type Engine struct {
	state       EngineState
	emitter     events.Emitter
	eligibility common.EligibilityView
	auth        common.Authorizer
	funding     common.FundingSource
	params      Params
	nowFn       func() int64

	mu      sync.Mutex
	pending []events.Event
}

// NewEngine constructs a credit engine with the supplied facility params.
func NewEngine(params Params) *Engine {
	if params.DustThreshold == nil {
		params.DustThreshold = DefaultParams().DustThreshold
	}
	if params.CloseTolerance == nil {
		params.CloseTolerance = DefaultParams().CloseTolerance
	}
	return &Engine{params: params.Clone(), emitter: events.NoopEmitter{}}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state EngineState) { e.state = state }

// SetEmitter wires the engine to an event subscriber.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// SetEligibility wires the external membership checks consulted before
// join, agree, request, borrow, repay and limit updates.
func (e *Engine) SetEligibility(view common.EligibilityView) {
	if e == nil {
		return
	}
	e.eligibility = view
}

// SetAuthorizer wires the capability checks gating operator-only operations.
func (e *Engine) SetAuthorizer(auth common.Authorizer) {
	if e == nil {
		return
	}
	e.auth = auth
}

// SetFunding wires the service that moves the loan asset between vaults and
// borrowers.
func (e *Engine) SetFunding(funding common.FundingSource) {
	if e == nil {
		return
	}
	e.funding = funding
}

// SetClock overrides the time source used for accrual and maturity checks.
func (e *Engine) SetClock(now func() int64) {
	if e == nil {
		return
	}
	e.nowFn = now
}

// Params returns a copy of the engine's facility params.
func (e *Engine) Params() Params {
	if e == nil {
		return DefaultParams()
	}
	return e.params.Clone()
}

func (e *Engine) now() int64 {
	if e != nil && e.nowFn != nil {
		return e.nowFn()
	}
	return time.Now().Unix()
}

func (e *Engine) begin() error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	e.mu.Lock()
	return nil
}

// end releases the lock and then delivers the events queued during the
// operation, so subscribers always observe committed state and may call back
// into the engine without deadlocking.
func (e *Engine) end() {
	queued := e.pending
	e.pending = nil
	emitter := e.emitter
	e.mu.Unlock()
	if emitter == nil {
		return
	}
	for _, ev := range queued {
		emitter.Emit(ev)
	}
}

func (e *Engine) emit(ev events.Event) {
	if e == nil || ev == nil {
		return
	}
	e.pending = append(e.pending, ev)
}

// inTx runs fn with e.state swapped for a transactional view, so every write
// of the operation commits atomically or not at all. When the funding source
// is the state store itself the transfers join the same transaction and roll
// back with the writes. The swap is safe because e.mu is held.
func (e *Engine) inTx(fn func() error) error {
	outerState := e.state
	outerFunding := e.funding
	fundingIsState := false
	if fs, ok := outerState.(common.FundingSource); ok {
		fundingIsState = fs == outerFunding
	}
	return outerState.Transact(func(tx EngineState) error {
		e.state = tx
		if fundingIsState {
			if f, ok := tx.(common.FundingSource); ok {
				e.funding = f
			}
		}
		defer func() {
			e.state = outerState
			e.funding = outerFunding
		}()
		return fn()
	})
}

// refreshRates advances every accumulator to the current time, persisting the
// result when anything moved. Every operation that reads a current owed
// amount calls this first.
func (e *Engine) refreshRates(now int64) (*RateState, error) {
	rs, err := e.state.RateState()
	if err != nil {
		return nil, err
	}
	if rs == nil {
		return nil, ErrNilRateState
	}
	moved, err := rs.Advance(now)
	if err != nil {
		return nil, err
	}
	if moved {
		if err := e.state.PutRateState(rs); err != nil {
			return nil, err
		}
		e.emit(events.AccumulatorsRefreshed{Timestamp: now})
	}
	return rs, nil
}

// Pile refreshes every rate accumulator to the current time. The operation is
// permissionless, idempotent for equal timestamps, and reports whether any
// index moved.
func (e *Engine) Pile() (bool, error) {
	if err := e.begin(); err != nil {
		return false, err
	}
	defer e.end()

	var moved bool
	err := e.inTx(func() error {
		rs, err := e.state.RateState()
		if err != nil {
			return err
		}
		if rs == nil {
			return ErrNilRateState
		}
		now := e.now()
		moved, err = rs.Advance(now)
		if err != nil {
			return err
		}
		if !moved {
			return nil
		}
		if err := e.state.PutRateState(rs); err != nil {
			return err
		}
		e.emit(events.AccumulatorsRefreshed{Timestamp: now})
		return nil
	})
	if err != nil {
		return false, err
	}
	return moved, nil
}

// Join registers the caller as a trusted borrower with a zero ceiling. The
// ceiling is assigned later by Agree.
func (e *Engine) Join(caller string) (*Borrower, error) {
	if err := e.begin(); err != nil {
		return nil, err
	}
	defer e.end()

	var borrower *Borrower
	err := e.inTx(func() error {
		caller = strings.TrimSpace(caller)
		if caller == "" {
			return ErrZeroIdentity
		}
		if err := common.CheckEligibility(e.eligibility, caller); err != nil {
			return err
		}
		existing, err := e.state.BorrowerByAddr(caller)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: %s", ErrBorrowerExists, caller)
		}
		count, err := e.state.BorrowerCount()
		if err != nil {
			return err
		}
		borrower = &Borrower{
			Index:   count,
			Addr:    caller,
			Ceiling: big.NewInt(0),
			Used:    big.NewInt(0),
		}
		if err := e.state.PutBorrower(borrower); err != nil {
			return err
		}
		e.emit(events.BorrowerJoined{Borrower: caller, Index: borrower.Index})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return borrower.Clone(), nil
}

// Agree fixes a borrower's ceiling exactly once. Subsequent changes must go
// through UpdateBorrowerLimit.
func (e *Engine) Agree(caller, borrowerAddr string, ceiling *big.Int) error {
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
		borrower, err := e.loadBorrower(borrowerAddr)
		if err != nil {
			return err
		}
		if err := common.CheckEligibility(e.eligibility, borrower.Addr); err != nil {
			return err
		}
		if borrower.Ceiling.Sign() != 0 {
			return ErrUpdateCeilingDirect
		}
		borrower.Ceiling = new(big.Int).Set(ceiling)
		if err := e.state.PutBorrower(borrower); err != nil {
			return err
		}
		e.emit(events.CeilingAgreed{Borrower: borrower.Addr, Ceiling: ceiling})
		return nil
	})
}

// UpdateBorrowerLimit adjusts a borrower ceiling after the initial agreement.
// The new ceiling may never fall below the principal currently drawn, nor
// below the capacity still committed to open loans.
func (e *Engine) UpdateBorrowerLimit(caller, borrowerAddr string, ceiling *big.Int) error {
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
		borrower, err := e.loadBorrower(borrowerAddr)
		if err != nil {
			return err
		}
		if err := common.CheckEligibility(e.eligibility, borrower.Addr); err != nil {
			return err
		}
		drawn, err := e.drawnPrincipal(borrower.Addr)
		if err != nil {
			return err
		}
		if ceiling.Cmp(drawn) < 0 {
			return fmt.Errorf("%w: requested %s, used %s", ErrCeilingBelowUsed, ceiling, drawn)
		}
		if ceiling.Cmp(borrower.Used) < 0 {
			return fmt.Errorf("%w: requested %s, reserved %s", ErrCeilingBelowReserved, ceiling, borrower.Used)
		}
		borrower.Ceiling = new(big.Int).Set(ceiling)
		if err := e.state.PutBorrower(borrower); err != nil {
			return err
		}
		e.emit(events.BorrowerLimitUpdated{Borrower: borrower.Addr, Ceiling: ceiling})
		return nil
	})
}

// UpdateTrustedVaults upserts a trusted vault. When the index hint names the
// same vault the record is overwritten in place; otherwise the vault is
// appended at the next free slot. The returned flag reports whether an
// existing slot was overwritten.
func (e *Engine) UpdateTrustedVaults(caller string, vault Vault, indexHint uint64) (bool, error) {
	if err := e.begin(); err != nil {
		return false, err
	}
	defer e.end()

	overwritten := false
	err := e.inTx(func() error {
		if err := common.Authorize(e.auth, caller, CapabilityOperator); err != nil {
			return err
		}
		vault.Addr = strings.TrimSpace(vault.Addr)
		if vault.Addr == "" {
			return ErrZeroIdentity
		}
		if !strings.EqualFold(strings.TrimSpace(vault.Asset), e.params.LoanAsset) {
			return fmt.Errorf("%w: vault holds %q, facility lends %q", ErrVaultAsset, vault.Asset, e.params.LoanAsset)
		}
		vault.Asset = e.params.LoanAsset
		if vault.MinPct > vault.MaxPct || vault.MaxPct > ppmScale {
			return fmt.Errorf("%w: min %d, max %d", ErrVaultBounds, vault.MinPct, vault.MaxPct)
		}

		if hinted, err := e.state.VaultByIndex(indexHint); err != nil {
			return err
		} else if hinted != nil && hinted.Addr == vault.Addr {
			vault.Index = hinted.Index
			overwritten = true
		}
		if !overwritten {
			if existing, err := e.state.VaultByAddr(vault.Addr); err != nil {
				return err
			} else if existing != nil {
				vault.Index = existing.Index
				overwritten = true
			}
		}
		if !overwritten {
			count, err := e.state.VaultCount()
			if err != nil {
				return err
			}
			vault.Index = count
		}
		if err := e.state.PutVault(&vault); err != nil {
			return err
		}
		e.emit(events.VaultUpdated{
			Vault:    vault.Addr,
			Index:    vault.Index,
			Appended: !overwritten,
			MinPct:   vault.MinPct,
			MaxPct:   vault.MaxPct,
		})
		return nil
	})
	if err != nil {
		return false, err
	}
	return overwritten, nil
}

func (e *Engine) loadBorrower(addr string) (*Borrower, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, ErrZeroIdentity
	}
	borrower, err := e.state.BorrowerByAddr(addr)
	if err != nil {
		return nil, err
	}
	if borrower == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotTrustedBorrower, addr)
	}
	if borrower.Ceiling == nil {
		borrower.Ceiling = big.NewInt(0)
	}
	if borrower.Used == nil {
		borrower.Used = big.NewInt(0)
	}
	return borrower, nil
}

// drawnPrincipal sums the raw principal still outstanding across every debt
// of the borrower.
func (e *Engine) drawnPrincipal(addr string) (*big.Int, error) {
	debts, err := e.state.DebtsByBorrower(addr)
	if err != nil {
		return nil, err
	}
	total := big.NewInt(0)
	for _, debt := range debts {
		if debt == nil || !debt.Status.Outstanding() {
			continue
		}
		if debt.Principal != nil {
			total.Add(total, debt.Principal)
		}
	}
	return total, nil
}
