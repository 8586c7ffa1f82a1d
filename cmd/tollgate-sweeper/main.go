package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Tollgate/internal/config"
	"github.com/shaiso/Tollgate/internal/engine"
	"github.com/shaiso/Tollgate/internal/guard"
	"github.com/shaiso/Tollgate/internal/records"
	"github.com/shaiso/Tollgate/internal/recovery"
	"github.com/shaiso/Tollgate/internal/repo"
	"github.com/shaiso/Tollgate/internal/steps"
	"github.com/shaiso/Tollgate/internal/telemetry"
)

func main() {
	logger := telemetry.SetupLogger("tollgate-sweeper")
	logger.Info("starting tollgate-sweeper")

	if err := run(logger); err != nil {
		logger.Error("tollgate-sweeper failed", "error", err)
		os.Exit(1)
	}
	logger.Info("stopped")
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.CheckSweeper(); err != nil {
		return fmt.Errorf("check config: %w", err)
	}
	if err := recovery.ValidateSchedule(cfg.Sweeper.Schedule); err != nil {
		return err
	}

	catalog, err := engine.LoadCatalog(cfg.PlanDir, steps.DefaultRegistry().Has)
	if err != nil {
		return fmt.Errorf("load plans: %w", err)
	}
	calls, retries := catalog.LongestSegment(cfg.Retry.Enabled)
	if err := cfg.CheckSweepGrace(calls, retries); err != nil {
		return fmt.Errorf("check config: %w", err)
	}
	logger.Info("sweep grace checked",
		"grace", cfg.Sweeper.Grace,
		"segment_budget", cfg.SegmentBudget(calls, retries),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := repo.NewPool(ctx, cfg.DB.URL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()
	logger.Info("connected to database")

	store, err := records.NewMySQLStore(ctx, records.WithDSN(cfg.Records.DSN))
	if err != nil {
		return fmt.Errorf("connect to records store: %w", err)
	}
	defer store.Close()

	journal := repo.NewUndoJournalRepo(pool)
	leader := repo.NewAdvisoryLeader(pool, repo.SweeperLockKey)
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		if err := leader.Close(closeCtx); err != nil {
			logger.Warn("failed to release leadership", "error", err)
		}
	}()

	sweeper := recovery.New(recovery.Config{
		Journal:   journal,
		Restorer:  guard.NewRestorer(store, journal, logger),
		Leader:    leader,
		Schedule:  cfg.Sweeper.Schedule,
		Grace:     cfg.Sweeper.Grace,
		BatchSize: cfg.Sweeper.BatchSize,
		Logger:    logger,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	addr := ":" + cfg.Sweeper.Port
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http error", "error", err)
			cancel()
		}
	}()

	runErr := sweeper.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	return runErr
}
