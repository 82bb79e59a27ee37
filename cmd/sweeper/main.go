package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"slotbook/internal/config"
	"slotbook/internal/database"
	"slotbook/internal/domain"
	"slotbook/internal/events"
	"slotbook/internal/logging"
	"slotbook/internal/metrics"
	"slotbook/internal/repository"
	"slotbook/internal/service"
	"slotbook/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// The sweeper runs the expiry reconciler on its own, for deployments with
// several API instances and the in-process sweeper turned off.
func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}
	logger := logging.Component(baseLogger, "sweeper-main")

	db, err := database.NewDB(cfg.Database.Path, logging.Component(baseLogger, "database"))
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	locker, cleanup, err := initLocker(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	bus := events.NewEventBus()
	bus.Subscribe(events.All, events.LogHandler(logging.Component(baseLogger, "events")))
	scheduler := service.NewSchedulingService(db, bus, domain.RealClock{}, service.PolicyFromConfig(cfg.Scheduling),
		logging.Component(baseLogger, "scheduler"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go serveMetrics(ctx, cfg.Monitoring.PrometheusPort, logger)
	}

	sweeper := worker.NewSweeper(scheduler, locker, cfg.Sweeper, logging.Component(baseLogger, "sweeper"))
	if err := sweeper.Start(ctx); err != nil {
		return err
	}

	logger.Info().Str("schedule", cfg.Sweeper.Schedule).Msg("Sweeper running")
	<-ctx.Done()
	sweeper.Stop()
	logger.Info().Msg("Sweeper exited")
	return nil
}

func initLocker(cfg *config.Config, logger *zerolog.Logger) (domain.Locker, func(), error) {
	if cfg.Redis.Address == "" {
		if cfg.Sweeper.RequireLease {
			return nil, nil, errors.New("sweeper.require_lease needs redis.address")
		}
		logger.Warn().Msg("No redis configured, sweeper lease is local to this process")
		return repository.NewMemoryLocker(), func() {}, nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(context.Background(), client); err != nil {
		_ = client.Close()
		if cfg.Sweeper.RequireLease {
			return nil, nil, err
		}
		logger.Warn().Err(err).Msg("redis connection failed, sweeper lease is local to this process")
		return repository.NewMemoryLocker(), func() {}, nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return repository.NewRedisLocker(client, ""), func() { _ = repository.Close(client) }, nil
}

func serveMetrics(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
