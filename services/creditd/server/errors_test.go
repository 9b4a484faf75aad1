package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"creditpool/native/common"
	"creditpool/native/credit"
)

func TestToStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{credit.ErrNotValidLoan, http.StatusNotFound},
		{credit.ErrNotTrustedBorrower, http.StatusNotFound},
		{credit.ErrInvalidAmount, http.StatusBadRequest},
		{credit.ErrMaturityInPast, http.StatusBadRequest},
		{common.ErrNotEligible, http.StatusForbidden},
		{common.ErrUnauthorized, http.StatusForbidden},
		{credit.ErrNotLoanOwner, http.StatusForbidden},
		{credit.ErrBorrowerExists, http.StatusConflict},
		{credit.ErrNotMaturedDebt, http.StatusConflict},
		{credit.ErrBorrowOverLimit, http.StatusUnprocessableEntity},
		{credit.ErrRepayTooLittle, http.StatusUnprocessableEntity},
		{credit.ErrNoVaultCapacity, http.StatusUnprocessableEntity},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := toStatus(tc.err); got != tc.want {
			t.Fatalf("toStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}

	// Wrapped sentinels classify the same as bare ones.
	wrapped := fmt.Errorf("%w: loan 7", credit.ErrNotValidLoan)
	if got := toStatus(wrapped); got != http.StatusNotFound {
		t.Fatalf("wrapped sentinel mapped to %d", got)
	}
}
