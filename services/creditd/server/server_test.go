package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"creditpool/native/credit"
	"creditpool/services/creditd/auth"
	"creditpool/storage"
)

const (
	testSecret   = "test-secret"
	testIssuer   = "creditd-test"
	operatorSub  = "ops-1"
	borrowerSub  = "borrower-1"
	testVaultSub = "vault-1"
)

type testServer struct {
	srv   *Server
	store *storage.Store
	now   *int64
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store, err := storage.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	now := int64(1_700_000_000)
	scale := uint256.MustFromDecimal("1000000000000000000")
	tier := uint256.MustFromDecimal("1000000000315522921")
	rs, err := credit.NewRateState([]*uint256.Int{scale, tier}, now)
	require.NoError(t, err)
	require.NoError(t, store.PutRateState(rs))

	operators := auth.NewOperatorSet([]string{operatorSub})
	engine := credit.NewEngine(credit.DefaultParams())
	engine.SetState(store)
	engine.SetFunding(store)
	engine.SetAuthorizer(operators)
	engine.SetClock(func() int64 { return now })

	verifier, err := auth.NewVerifier(testSecret, testIssuer)
	require.NoError(t, err)

	srv := New(Config{
		Engine:    engine,
		Store:     store,
		Verifier:  verifier,
		Operators: operators,
	})
	return &testServer{srv: srv, store: store, now: &now}
}

func (ts *testServer) request(t *testing.T, subject, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if subject != "" {
		token, err := auth.IssueToken(testSecret, testIssuer, subject, time.Minute)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	recorder := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(recorder, req)
	return recorder
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, into any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(into))
}

func TestRequestsRequireBearerToken(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, "", http.MethodPost, "/api/v1/borrowers", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/borrowers", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	recorder := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(recorder, req)
	require.Equal(t, http.StatusUnauthorized, recorder.Code)

	// Health and metrics stay public.
	health := ts.request(t, "", http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, health.Code)
}

func TestOperatorOnlyEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, borrowerSub, http.MethodPost, "/api/v1/borrowers", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	// A borrower cannot fix their own ceiling; the engine denies the
	// capability.
	rec = ts.request(t, borrowerSub, http.MethodPost, "/api/v1/borrowers/"+borrowerSub+"/agree", map[string]string{"ceiling": "1000"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.request(t, borrowerSub, http.MethodPost, "/api/v1/accounts/vault-1/deposit", map[string]string{"amount": "1000"})
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.request(t, borrowerSub, http.MethodGet, "/api/v1/audit", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)

	// Operator registers and funds a vault.
	rec := ts.request(t, operatorSub, http.MethodPost, "/api/v1/vaults", map[string]any{
		"addr":    testVaultSub,
		"asset":   "USD",
		"min_pct": 0,
		"max_pct": 1_000_000,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.request(t, operatorSub, http.MethodPost, "/api/v1/accounts/"+testVaultSub+"/deposit", map[string]string{"amount": "1000000"})
	require.Equal(t, http.StatusOK, rec.Code)

	// Borrower joins and the operator fixes the ceiling.
	rec = ts.request(t, borrowerSub, http.MethodPost, "/api/v1/borrowers", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.request(t, operatorSub, http.MethodPost, "/api/v1/borrowers/"+borrowerSub+"/agree", map[string]string{"ceiling": "1000000"})
	require.Equal(t, http.StatusOK, rec.Code)

	// Borrower opens a loan; the operator approves tier 1.
	rec = ts.request(t, borrowerSub, http.MethodPost, "/api/v1/loans", map[string]string{"amount": "500000"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var loan loanView
	decodeInto(t, rec, &loan)
	require.Equal(t, "PENDING", loan.Status)

	rec = ts.request(t, operatorSub, http.MethodPost, fmt.Sprintf("/api/v1/loans/%d/approve", loan.Index), map[string]any{
		"ceiling":   "500000",
		"rate_tier": 1,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	decodeInto(t, rec, &loan)
	require.Equal(t, "APPROVED", loan.Status)

	// Borrower draws 300k maturing in 30 days.
	maturity := *ts.now + 30*86_400
	rec = ts.request(t, borrowerSub, http.MethodPost, fmt.Sprintf("/api/v1/loans/%d/draw", loan.Index), map[string]any{
		"amount":   "300000",
		"maturity": maturity,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var draw struct {
		Debt         uint64 `json:"debt"`
		Sourced      string `json:"sourced"`
		AllSatisfied bool   `json:"all_satisfied"`
	}
	decodeInto(t, rec, &draw)
	require.True(t, draw.AllSatisfied)
	require.Equal(t, "300000", draw.Sourced)

	// The debt view shows the tranche and a live owed amount.
	*ts.now += 10 * 86_400
	rec = ts.request(t, borrowerSub, http.MethodPost, "/api/v1/pile", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.request(t, borrowerSub, http.MethodGet, fmt.Sprintf("/api/v1/debts/%d", draw.Debt), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var debt debtView
	decodeInto(t, rec, &debt)
	require.Equal(t, "ACTIVE", debt.Status)
	require.Len(t, debt.Tranches, 1)

	// Repay everything.
	rec = ts.request(t, operatorSub, http.MethodPost, "/api/v1/accounts/"+borrowerSub+"/deposit", map[string]string{"amount": "600000"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.request(t, borrowerSub, http.MethodPost, fmt.Sprintf("/api/v1/debts/%d/repay", draw.Debt), map[string]string{"amount": "600000"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.request(t, borrowerSub, http.MethodGet, fmt.Sprintf("/api/v1/debts/%d", draw.Debt), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeInto(t, rec, &debt)
	require.Equal(t, "REPAID", debt.Status)
	require.Equal(t, "0", debt.Owed)

	// The audit trail recorded the whole story for operators.
	rec = ts.request(t, operatorSub, http.MethodGet, "/api/v1/audit?entity=debt", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []map[string]any
	decodeInto(t, rec, &entries)
	require.NotEmpty(t, entries)
}

func TestDrawValidationErrorsSurfaceAsHTTPStatus(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, borrowerSub, http.MethodPost, "/api/v1/borrowers", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = ts.request(t, operatorSub, http.MethodPost, "/api/v1/borrowers/"+borrowerSub+"/agree", map[string]string{"ceiling": "1000"})
	require.Equal(t, http.StatusOK, rec.Code)

	// Asking beyond the ceiling maps onto 422.
	rec = ts.request(t, borrowerSub, http.MethodPost, "/api/v1/loans", map[string]string{"amount": "5000"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// Unknown loan index maps onto 404.
	rec = ts.request(t, borrowerSub, http.MethodGet, "/api/v1/loans/99", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	// Malformed amounts are rejected before reaching the engine.
	rec = ts.request(t, borrowerSub, http.MethodPost, "/api/v1/loans", map[string]string{"amount": "lots"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
