package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/chess-market-poc/internal/shared/bus"
	"github.com/radieske/chess-market-poc/internal/shared/config"
	"github.com/radieske/chess-market-poc/internal/shared/logger"
	"github.com/radieske/chess-market-poc/internal/shared/metrics"
	"github.com/radieske/chess-market-poc/internal/ws-gateway/ws"
)

func main() {
	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "ws-gateway"
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := bus.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("bus", zap.String("backend", cfg.BusBackend), zap.Error(err))
	}
	defer b.Close()

	m := ws.NewMetrics()
	prometheus.MustRegister(m.Collectors()...)

	// CORS do WS: em local libera tudo, senão só origens da mesma máquina
	allowOrigin := func(r *http.Request) bool {
		if cfg.Env == "local" {
			return true
		}
		origin := r.Header.Get("Origin")
		return origin == "" || strings.Contains(origin, "localhost")
	}
	hub := ws.NewHub(log, m, allowOrigin)

	if err := ws.StartBusPump(ctx, b, cfg.TournamentTopic, hub, log); err != nil {
		log.Fatal("bus pump", zap.String("topic", cfg.TournamentTopic), zap.Error(err))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.HandleWS)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	metricsSrv := metrics.StartMetricsServer(log, cfg.MetricsPort, b.Ping)

	go func() {
		log.Info("ws-gateway listening", zap.String("addr", srv.Addr), zap.String("topic", cfg.TournamentTopic))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("ws", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(sctx)
	_ = metricsSrv.Shutdown(sctx)
}
