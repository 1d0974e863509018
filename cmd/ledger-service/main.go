package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	lhttp "github.com/radieske/chess-market-poc/internal/ledger-service/http"
	"github.com/radieske/chess-market-poc/internal/ledger-service/repo"
	"github.com/radieske/chess-market-poc/internal/shared/bus"
	"github.com/radieske/chess-market-poc/internal/shared/config"
	"github.com/radieske/chess-market-poc/internal/shared/db"
	"github.com/radieske/chess-market-poc/internal/shared/logger"
	"github.com/radieske/chess-market-poc/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "ledger-service"
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Postgres + migrations
	pg, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("pg", zap.Error(err))
	}
	defer pg.Close()
	version, err := db.MigrateUp(pg)
	if err != nil {
		log.Fatal("migrate", zap.Error(err))
	}
	log.Info("postgres ready", zap.Uint("schemaVersion", version))

	// Change Bus (só publica)
	b, err := bus.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("bus", zap.String("backend", cfg.BusBackend), zap.Error(err))
	}
	defer b.Close()

	m := lhttp.NewMetrics()
	prometheus.MustRegister(m.Collectors()...)

	repository := repo.NewPostgres(pg)
	api := lhttp.NewServer(log, repository, b, cfg.TournamentTopic, m)
	apiSrv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	metricsSrv := metrics.StartMetricsServer(log, cfg.MetricsPort, func(ctx context.Context) error {
		if err := repository.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		if err := b.Ping(ctx); err != nil {
			return fmt.Errorf("bus: %w", err)
		}
		return nil
	})

	go func() {
		log.Info("ledger-service listening", zap.String("addr", apiSrv.Addr), zap.String("bus", cfg.BusBackend))
		if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("api", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = apiSrv.Shutdown(sctx)
	_ = metricsSrv.Shutdown(sctx)
}
