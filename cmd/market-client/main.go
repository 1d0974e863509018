package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/chess-market-poc/internal/market-client/ledger"
	"github.com/radieske/chess-market-poc/internal/market-client/projection"
	"github.com/radieske/chess-market-poc/internal/market-client/session"
	"github.com/radieske/chess-market-poc/internal/market-client/simulator"
	"github.com/radieske/chess-market-poc/internal/market-client/wsclient"
	"github.com/radieske/chess-market-poc/internal/shared/bus"
	"github.com/radieske/chess-market-poc/internal/shared/config"
	"github.com/radieske/chess-market-poc/internal/shared/logger"
	"github.com/radieske/chess-market-poc/internal/shared/metrics"
	"github.com/radieske/chess-market-poc/internal/shared/pricing"
)

var (
	eventsApplied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "market_client_events_total",
		Help: "Eventos aplicados na projeção, por resultado",
	}, []string{"event", "outcome"})
	eventsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "market_client_events_dropped_total",
		Help: "Eventos descartados antes de chegar na projeção",
	}, []string{"reason"})
	rollbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "market_client_rollbacks_total",
		Help: "Escritas otimistas desfeitas por falha no ledger",
	}, []string{"kind"})
)

func main() {
	simulate := flag.Bool("simulate", false, "gera partidas e apostas aleatórias")
	interval := flag.Duration("interval", 3*time.Second, "intervalo entre ações simuladas")
	report := flag.Duration("report", 10*time.Second, "intervalo do resumo dos mercados no log")
	flag.Parse()

	cfg := config.Load()
	if cfg.ServiceName == "" {
		cfg.ServiceName = "market-client"
	}
	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(fmt.Errorf("logger init: %w", err))
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prometheus.MustRegister(eventsApplied, eventsDropped, rollbacks)

	// BUS_BACKEND=ws recebe os eventos pelo ws-gateway; os demais assinam o bus direto
	var (
		sub    bus.Subscriber
		health metrics.HealthFunc
	)
	if cfg.BusBackend == "ws" {
		sub = wsclient.New(cfg.GatewayURL, log)
	} else {
		b, err := bus.New(ctx, cfg, log)
		if err != nil {
			log.Fatal("bus", zap.String("backend", cfg.BusBackend), zap.Error(err))
		}
		defer b.Close()
		sub, health = b, b.Ping
	}

	store := ledger.New(cfg.LedgerURL)
	sess := session.New(log, store, sub, session.Options{
		Topic:           cfg.TournamentTopic,
		StoreTimeout:    cfg.StoreTimeout,
		StartingBalance: cfg.StartingBalance,
		Fees:            pricing.FlatFee{Rate: cfg.PlatformFeeRate},
		OnApplied: func(event string, o projection.Outcome) {
			eventsApplied.WithLabelValues(event, o.String()).Inc()
		},
		OnDropped:  func(reason string) { eventsDropped.WithLabelValues(reason).Inc() },
		OnRollback: func(kind string) { rollbacks.WithLabelValues(kind).Inc() },
	})
	defer sess.Close()

	metricsSrv := metrics.StartMetricsServer(log, cfg.MetricsPort, health)
	defer metricsSrv.Close()

	// assina antes do snapshot; o que chegar no meio é reaplicado depois
	runErr := make(chan error, 1)
	go func() { runErr <- sess.Run(ctx) }()

	if err := sess.Bootstrap(ctx); err != nil {
		log.Fatal("bootstrap", zap.String("ledger", cfg.LedgerURL), zap.Error(err))
	}
	if u, ok := sess.CurrentUser(); ok {
		log.Info("playing as", zap.String("userId", u.ID), zap.String("name", u.Name), zap.Float64("balance", u.Balance))
	}

	if *simulate {
		sim := simulator.New(log, sess, simulator.Options{Interval: *interval})
		go sim.Run(ctx)
	}

	ticker := time.NewTicker(*report)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("shutting down")
			return
		case err := <-runErr:
			if err != nil {
				log.Fatal("subscription", zap.Error(err))
			}
			log.Info("subscription ended")
			return
		case <-ticker.C:
			logMarkets(log, sess)
		}
	}
}

// logMarkets escreve o resumo de cada mercado aberto
func logMarkets(log *zap.Logger, sess *session.Session) {
	snap := sess.Snapshot()
	for _, g := range snap.Games {
		for _, m := range sess.Markets(g.ID) {
			log.Info("market",
				zap.String("game", g.Player1+" vs "+g.Player2),
				zap.String("condition", m.Condition),
				zap.Float64("probability", m.Quote.DisplayProbability()),
				zap.Float64("yes", m.Quote.DisplayYesPrice()),
				zap.Float64("no", m.Quote.DisplayNoPrice()),
				zap.String("odds", m.Odds.String()),
				zap.Int("bets", m.Odds.BetCount),
			)
		}
	}
	if u, ok := sess.CurrentUser(); ok {
		log.Info("account",
			zap.String("userId", u.ID),
			zap.Float64("balance", u.Balance),
			zap.Float64("platformFees", snap.Platform.TotalFees),
			zap.Int("pending", snap.Pending),
		)
	}
}
