package credit

import "github.com/holiman/uint256"

// RateState pairs the immutable rate tier table with its parallel array of
// accumulated growth indices. Tier zero is the reserved no-interest sentinel;
// loans and debts are always assigned tiers at index one or above.
type RateState struct {
	Tiers       []*uint256.Int
	Accumulated []*uint256.Int
	LastAccrual int64
}

// NewRateState validates the tier table and initialises every accumulator at
// 1.0. Tiers are per-second growth factors at 1e18 scale and must be strictly
// increasing with no zero entries.
func NewRateState(tiers []*uint256.Int, now int64) (*RateState, error) {
	if len(tiers) == 0 {
		return nil, ErrRateTableEmpty
	}
	frozen := make([]*uint256.Int, len(tiers))
	accumulated := make([]*uint256.Int, len(tiers))
	for i, tier := range tiers {
		if tier == nil || tier.IsZero() {
			return nil, ErrRateTableOrder
		}
		if i > 0 && tier.Cmp(frozen[i-1]) <= 0 {
			return nil, ErrRateTableOrder
		}
		frozen[i] = new(uint256.Int).Set(tier)
		accumulated[i] = new(uint256.Int).Set(rateScale)
	}
	return &RateState{Tiers: frozen, Accumulated: accumulated, LastAccrual: now}, nil
}

// Advance compounds every accumulator by the seconds elapsed since the last
// accrual. It is a no-op when called twice at the same instant and reports
// whether any index moved. Elapsed time is always measured from the
// accumulator's own timestamp, which keeps the update O(tiers) regardless of
// how many debts exist.
func (r *RateState) Advance(now int64) (bool, error) {
	if r == nil {
		return false, ErrNilRateState
	}
	if now <= r.LastAccrual {
		return false, nil
	}
	elapsed := uint64(now - r.LastAccrual)
	next := make([]*uint256.Int, len(r.Tiers))
	for i, tier := range r.Tiers {
		factor, err := rpow(tier, elapsed)
		if err != nil {
			return false, err
		}
		advanced, err := mulScaled(r.Accumulated[i], factor)
		if err != nil {
			return false, err
		}
		next[i] = advanced
	}
	// All factors computed without overflow, safe to commit.
	copy(r.Accumulated, next)
	r.LastAccrual = now
	return true, nil
}

// ValidTier reports whether the index names an assignable tier. Index zero is
// the reserved sentinel and never assignable to a loan or debt.
func (r *RateState) ValidTier(index uint32) bool {
	return r != nil && index > 0 && uint64(index) < uint64(len(r.Tiers))
}

// Clone returns a deep copy of the rate state.
func (r *RateState) Clone() *RateState {
	if r == nil {
		return nil
	}
	clone := &RateState{
		Tiers:       make([]*uint256.Int, len(r.Tiers)),
		Accumulated: make([]*uint256.Int, len(r.Accumulated)),
		LastAccrual: r.LastAccrual,
	}
	for i, tier := range r.Tiers {
		clone.Tiers[i] = new(uint256.Int).Set(tier)
	}
	for i, acc := range r.Accumulated {
		clone.Accumulated[i] = new(uint256.Int).Set(acc)
	}
	return clone
}
