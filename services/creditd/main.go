package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"creditpool/config"
	"creditpool/native/credit"
	"creditpool/observability/logging"
	"creditpool/observability/metrics"
	"creditpool/services/creditd/auth"
	"creditpool/services/creditd/server"
	"creditpool/storage"
)

func main() {
	configPath := flag.String("config", "creditd.toml", "path to the facility configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := logging.Setup("creditd", cfg.Environment, logging.WithFile(cfg.LogFile))

	if err := run(cfg, log); err != nil {
		log.Error("creditd exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	store, err := storage.Open(cfg.DatabasePath())
	if err != nil {
		return err
	}
	defer store.Close()

	if err := seedRateState(cfg, store); err != nil {
		return err
	}

	engine, err := buildEngine(cfg, store, log)
	if err != nil {
		return err
	}

	secret, err := cfg.JWTSecret()
	if err != nil {
		return err
	}
	verifier, err := auth.NewVerifier(secret, cfg.Auth.Issuer)
	if err != nil {
		return err
	}

	srv := server.New(server.Config{
		Engine:    engine,
		Store:     store,
		Verifier:  verifier,
		Operators: auth.NewOperatorSet(cfg.Auth.Operators),
		Log:       log,
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("creditd listening", slog.String("addr", cfg.ListenAddress))
		errCh <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case sig := <-stop:
		log.Info("shutting down", slog.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			return err
		}
	}
	return nil
}

// seedRateState installs the configured tier table on first boot. An
// existing accumulator row always wins; tier tables are immutable once the
// facility is live.
func seedRateState(cfg *config.Config, store *storage.Store) error {
	existing, err := store.RateState()
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	tiers, err := cfg.ParsedRateTiers()
	if err != nil {
		return err
	}
	rs, err := credit.NewRateState(tiers, time.Now().Unix())
	if err != nil {
		return err
	}
	return store.PutRateState(rs)
}

func buildEngine(cfg *config.Config, store *storage.Store, log *slog.Logger) (*credit.Engine, error) {
	dust, err := cfg.ParsedDustThreshold()
	if err != nil {
		return nil, err
	}
	tolerance, err := cfg.ParsedCloseTolerance()
	if err != nil {
		return nil, err
	}

	engine := credit.NewEngine(credit.Params{
		LoanAsset:      cfg.Facility.LoanAsset,
		DustThreshold:  dust,
		CloseTolerance: tolerance,
	})
	engine.SetState(store)
	engine.SetFunding(store)
	engine.SetAuthorizer(auth.NewOperatorSet(cfg.Auth.Operators))
	engine.SetEmitter(server.NewLedgerEmitter(log, metrics.Credit()))
	return engine, nil
}
