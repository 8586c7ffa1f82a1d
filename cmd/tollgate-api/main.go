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

	"github.com/shaiso/Tollgate/internal/api"
	"github.com/shaiso/Tollgate/internal/config"
	"github.com/shaiso/Tollgate/internal/engine"
	"github.com/shaiso/Tollgate/internal/gateway"
	"github.com/shaiso/Tollgate/internal/guard"
	"github.com/shaiso/Tollgate/internal/lock"
	"github.com/shaiso/Tollgate/internal/mq"
	"github.com/shaiso/Tollgate/internal/orchestrator"
	"github.com/shaiso/Tollgate/internal/progress"
	"github.com/shaiso/Tollgate/internal/records"
	"github.com/shaiso/Tollgate/internal/repo"
	"github.com/shaiso/Tollgate/internal/steps"
	"github.com/shaiso/Tollgate/internal/telemetry"
)

var startTime = time.Now()

func main() {
	logger := telemetry.SetupLogger("tollgate-api")
	logger.Info("starting tollgate-api")

	if err := run(logger); err != nil {
		logger.Error("tollgate-api failed", "error", err)
		os.Exit(1)
	}
	logger.Info("stopped")
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.CheckAPI(); err != nil {
		return fmt.Errorf("check config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Планы шагов
	registry := steps.DefaultRegistry()
	catalog, err := engine.LoadCatalog(cfg.PlanDir, registry.Has)
	if err != nil {
		return fmt.Errorf("load plans: %w", err)
	}
	logger.Info("plans loaded", "dir", cfg.PlanDir)

	orchCfg := orchestrator.Config{
		Catalog:  catalog,
		Registry: registry,
		Retry: orchestrator.RetryConfig{
			Enabled:   cfg.Retry.Enabled,
			BaseDelay: cfg.Retry.BaseDelay,
			MaxDelay:  cfg.Retry.MaxDelay,
		},
		Logger: logger,
	}
	handlerCfg := api.Config{Logger: logger}

	// Журнал сессий и журнал отката
	var journal guard.Journal
	if cfg.DB.URL != "" {
		pool, err := repo.NewPool(ctx, cfg.DB.URL)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer pool.Close()
		logger.Info("connected to database")

		sessions := repo.NewSessionRepo(pool)
		orchCfg.Sessions = sessions
		handlerCfg.Sessions = sessions
		journal = repo.NewUndoJournalRepo(pool)
	} else {
		logger.Warn("DB_URL is not set, session log and undo journal are disabled")
	}

	// Guard
	if cfg.Guard.Enabled {
		store, err := records.NewMySQLStore(ctx, records.WithDSN(cfg.Records.DSN))
		if err != nil {
			return fmt.Errorf("connect to records store: %w", err)
		}
		defer store.Close()

		orchCfg.Guard = guard.New(guard.Config{
			Store:         store,
			Journal:       journal,
			ActiveStatus:  records.StatusActive,
			ReapplyStatus: records.StatusReapplyAllowed,
			MutateAll:     cfg.Guard.MutateAll,
			Logger:        logger,
		})
		logger.Info("duplicate guard enabled", "mutate_all", cfg.Guard.MutateAll)
	}

	// Блокировка resume
	if cfg.Redis.Addr != "" {
		client, err := lock.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer client.Close()
		orchCfg.Lock = lock.NewResumeLock(client, lock.Config{TTL: cfg.Redis.LockTTL})
		logger.Info("resume lock enabled", "ttl", cfg.Redis.LockTTL)
	}

	// Шлюз
	if cfg.Gateway.SandboxOnly {
		orchCfg.Gateway = gateway.NewSandbox()
		logger.Warn("GATEWAY_SANDBOX is set, all sessions use the sandbox gateway")
	} else {
		orchCfg.Gateway = gateway.NewHTTPGateway(gateway.HTTPConfig{
			BaseURL:      cfg.Gateway.BaseURL,
			AppID:        cfg.Gateway.AppID,
			Secret:       cfg.Gateway.Secret,
			Timeout:      cfg.Gateway.Timeout,
			SuccessField: cfg.Gateway.SuccessField,
			SuccessValue: cfg.Gateway.SuccessValue,
			Logger:       logger,
		})
	}

	// Прогресс
	hub := progress.NewHub(logger)
	go hub.Run(ctx)
	handlerCfg.Stream = hub

	logSink := progress.NewLogSink(logger)
	if cfg.MQ.URL != "" {
		conn, err := mq.NewConnection(mq.Config{URL: cfg.MQ.URL, Logger: logger})
		if err != nil {
			return fmt.Errorf("connect to rabbitmq: %w", err)
		}
		defer conn.Close()

		if err := mq.SetupTopology(ctx, conn); err != nil {
			return fmt.Errorf("setup topology: %w", err)
		}
		logger.Info("rabbitmq topology ready", "topology", mq.TopologyInfo())

		// События уходят в брокер, hub получает их обратно через
		// эксклюзивную очередь этого экземпляра.
		orchCfg.Progress = progress.Fanout{logSink, progress.NewMQSink(mq.NewPublisher(conn, logger))}

		consumer := mq.NewConsumer(conn, mq.ConsumerConfig{
			Setup:   mq.DeclareListener,
			Handler: progress.Relay(hub, logger),
			Logger:  logger,
		})
		go func() {
			if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("progress consumer stopped", "error", err)
			}
		}()
	} else {
		orchCfg.Progress = progress.Fanout{logSink, hub}
	}

	handlerCfg.Applications = orchestrator.New(orchCfg)
	handler := api.NewHandler(handlerCfg)

	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	handler.RegisterRoutes(mux)

	addr := ":" + cfg.API.Port
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	}
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	if err := hub.Wait(shutdownCtx); err != nil {
		logger.Warn("websocket clients did not finish", "error", err)
	}
	return nil
}
