package server

import (
	"errors"
	"net/http"

	"creditpool/native/common"
	"creditpool/native/credit"
)

// toStatus maps ledger errors onto HTTP status codes. Unrecognised errors
// surface as 500 so they stand out in monitoring.
func toStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK

	case errors.Is(err, credit.ErrNotTrustedBorrower),
		errors.Is(err, credit.ErrNotValidLoan),
		errors.Is(err, credit.ErrNotValidDebt),
		errors.Is(err, credit.ErrNotValidTranche),
		errors.Is(err, credit.ErrNotValidVault):
		return http.StatusNotFound

	case errors.Is(err, credit.ErrZeroIdentity),
		errors.Is(err, credit.ErrInvalidAmount),
		errors.Is(err, credit.ErrNotValidRateTier),
		errors.Is(err, credit.ErrMaturityInPast),
		errors.Is(err, credit.ErrVaultAsset),
		errors.Is(err, credit.ErrVaultBounds):
		return http.StatusBadRequest

	case errors.Is(err, common.ErrNotEligible),
		errors.Is(err, common.ErrExcluded),
		errors.Is(err, common.ErrUnauthorized),
		errors.Is(err, credit.ErrNotLoanOwner):
		return http.StatusForbidden

	case errors.Is(err, credit.ErrBorrowerExists),
		errors.Is(err, credit.ErrUpdateCeilingDirect),
		errors.Is(err, credit.ErrNotPendingLoan),
		errors.Is(err, credit.ErrNotMaturedDebt),
		errors.Is(err, credit.ErrNotDefaultedDebt),
		errors.Is(err, credit.ErrNoOutstanding):
		return http.StatusConflict

	case errors.Is(err, credit.ErrCeilingBelowUsed),
		errors.Is(err, credit.ErrCeilingBelowReserved),
		errors.Is(err, credit.ErrCeilingOverRemaining),
		errors.Is(err, credit.ErrBorrowOverLimit),
		errors.Is(err, credit.ErrNoVaultCapacity),
		errors.Is(err, credit.ErrRepayTooLittle),
		errors.Is(err, credit.ErrResidualTooLarge):
		return http.StatusUnprocessableEntity

	default:
		return http.StatusInternalServerError
	}
}
