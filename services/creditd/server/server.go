package server

import (
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"creditpool/native/credit"
	"creditpool/observability/metrics"
	"creditpool/services/creditd/auth"
	"creditpool/storage"
)

// Config captures the dependencies required to construct the server.
type Config struct {
	Engine    *credit.Engine
	Store     *storage.Store
	Verifier  *auth.Verifier
	Operators *auth.OperatorSet
	Log       *slog.Logger
}

// Server exposes the credit facility over HTTP. Authentication establishes
// the caller identity; the engine enforces eligibility and operator
// capability on every operation.
type Server struct {
	engine    *credit.Engine
	store     *storage.Store
	verifier  *auth.Verifier
	operators *auth.OperatorSet
	log       *slog.Logger
	metrics   *metrics.CreditMetrics

	router http.Handler
}

// New constructs a configured HTTP router.
func New(cfg Config) *Server {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	srv := &Server{
		engine:    cfg.Engine,
		store:     cfg.Store,
		verifier:  cfg.Verifier,
		operators: cfg.Operators,
		log:       log,
		metrics:   metrics.Credit(),
	}
	srv.router = srv.buildRouter()
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(s.verifier.Middleware)

		api.Post("/pile", s.Pile)

		api.Post("/borrowers", s.Join)
		api.Get("/borrowers/{addr}", s.GetBorrower)
		api.Post("/borrowers/{addr}/agree", s.Agree)
		api.Post("/borrowers/{addr}/limit", s.UpdateBorrowerLimit)

		api.Post("/vaults", s.UpsertVault)
		api.Get("/vaults/{addr}", s.GetVault)
		api.Post("/accounts/{addr}/deposit", s.Deposit)

		api.Post("/loans", s.RequestLoan)
		api.Get("/loans/{index}", s.GetLoan)
		api.Post("/loans/{index}/approve", s.ApproveLoan)
		api.Post("/loans/{index}/limit", s.UpdateLoanLimit)
		api.Post("/loans/{index}/rate", s.UpdateLoanRate)
		api.Post("/loans/{index}/draw", s.Draw)

		api.Get("/debts/{index}", s.GetDebt)
		api.Post("/debts/{index}/repay", s.Repay)
		api.Post("/debts/{index}/default", s.MarkDefaulted)
		api.Post("/debts/{index}/recover", s.Recover)
		api.Post("/debts/{index}/close", s.CloseDebt)

		api.Get("/audit", s.Audit)
	})

	return r
}

// observe records request latency per route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(recorder, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unmatched"
		}
		s.metrics.ObserveRequest(route, strconv.Itoa(recorder.Status()), time.Since(start).Seconds())
	})
}

func (s *Server) caller(r *http.Request) (string, bool) {
	claims, err := auth.FromContext(r.Context())
	if err != nil {
		return "", false
	}
	return claims.Subject, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("encode response", slog.String("error", err.Error()))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := toStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", slog.String("error", err.Error()))
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(r *http.Request, into any) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(into)
}

func parseIndex(r *http.Request) (uint64, error) {
	raw := chi.URLParam(r, "index")
	return strconv.ParseUint(raw, 10, 64)
}

func parseAmountField(raw string) (*big.Int, bool) {
	value, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, false
	}
	return value, true
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
