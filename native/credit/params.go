package credit

import "math/big"

// CapabilityOperator names the capability operator-only entry points require
// from the injected authorizer.
const CapabilityOperator = "credit.operator"

// Params groups the facility-level constants applied by the engine.
type Params struct {
	// LoanAsset is the asset symbol every trusted vault must hold.
	LoanAsset string
	// DustThreshold bounds the accrued interest a partial repayment may leave
	// unpaid; smaller payments are rejected so dust repayments can never
	// stall principal reduction.
	DustThreshold *big.Int
	// CloseTolerance is the residual at or below which a defaulted debt may
	// be administratively closed.
	CloseTolerance *big.Int
}

// DefaultParams returns the facility defaults used when no configuration is
// supplied.
func DefaultParams() Params {
	return Params{
		LoanAsset:      "USD",
		DustThreshold:  big.NewInt(100),
		CloseTolerance: big.NewInt(8),
	}
}

// Clone returns a deep copy of the params.
func (p Params) Clone() Params {
	clone := p
	clone.DustThreshold = cloneAmount(p.DustThreshold)
	clone.CloseTolerance = cloneAmount(p.CloseTolerance)
	return clone
}
