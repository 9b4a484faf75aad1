package common

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	// ErrNotEligible is returned when the eligibility service rejects an identity.
	ErrNotEligible = errors.New("identity not eligible")
	// ErrExcluded is returned when the eligibility service excludes an identity.
	ErrExcluded = errors.New("identity excluded")
	// ErrUnauthorized is returned when the authorizer denies a capability.
	// Implementations should wrap it so callers can classify the failure.
	ErrUnauthorized = errors.New("caller unauthorized")
)

// EligibilityView answers membership questions for an identity. The concrete
// implementation (allow-list, deny-list, KYC registry) lives outside the
// ledger.
type EligibilityView interface {
	IsEligible(identity string) bool
	IsExcluded(identity string) bool
}

// Authorizer gates operator-only operations. Rejections must name the
// required capability so callers can diagnose the failure.
type Authorizer interface {
	Authorize(caller, capability string) error
}

// FundingSource moves the loan asset between vaults and borrowers and reports
// the capacity a vault can currently contribute.
type FundingSource interface {
	Balance(vault string) (*big.Int, error)
	Transfer(from, to string, amount *big.Int) error
}

// CheckEligibility verifies the identity against both membership lists. A nil
// view admits everyone, mirroring the nil-tolerant guard convention used
// across the native modules.
func CheckEligibility(view EligibilityView, identity string) error {
	if view == nil {
		return nil
	}
	if !view.IsEligible(identity) {
		return fmt.Errorf("%w: %s", ErrNotEligible, identity)
	}
	if view.IsExcluded(identity) {
		return fmt.Errorf("%w: %s", ErrExcluded, identity)
	}
	return nil
}

// Authorize checks the caller against the required capability. A nil
// authorizer admits everyone.
func Authorize(auth Authorizer, caller, capability string) error {
	if auth == nil {
		return nil
	}
	return auth.Authorize(caller, capability)
}
