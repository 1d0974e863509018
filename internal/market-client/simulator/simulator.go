package simulator

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/brianvoe/gofakeit"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/radieske/chess-market-poc/internal/market-client/projection"
	"github.com/radieske/chess-market-poc/internal/market-client/session"
	"github.com/radieske/chess-market-poc/pkg/contracts/models"
)

// Catálogo fixo de condições usadas nas apostas simuladas
var conditions = []string{
	"White wins",
	"Black wins",
	"Draw",
	"Game lasts over 40 moves",
	"Queen traded before move 20",
}

// Market é o pedaço da sessão que o simulador usa
type Market interface {
	AddGame(ctx context.Context, player1, player2 string) (models.Game, error)
	PlaceBet(ctx context.Context, in session.BetInput) (models.Bet, error)
	Snapshot() projection.Snapshot
}

type Options struct {
	Interval time.Duration // intervalo entre ações
	MaxGames int           // acima disso o simulador só aposta
	MaxStake float64
}

// Simulator gera partidas e apostas aleatórias contra a sessão,
// no ritmo de um rate.Limiter
type Simulator struct {
	log  *zap.Logger
	mkt  Market
	opts Options
	lim  *rate.Limiter
}

func New(log *zap.Logger, mkt Market, opts Options) *Simulator {
	if opts.Interval <= 0 {
		opts.Interval = 3 * time.Second
	}
	if opts.MaxGames <= 0 {
		opts.MaxGames = 4
	}
	switch {
	case opts.MaxStake <= 0:
		opts.MaxStake = 50
	case opts.MaxStake < 1:
		opts.MaxStake = 1
	}
	gofakeit.Seed(time.Now().UnixNano())
	return &Simulator{log: log, mkt: mkt, opts: opts, lim: rate.NewLimiter(rate.Every(opts.Interval), 1)}
}

// Run executa Step até ctx terminar
func (s *Simulator) Run(ctx context.Context) {
	for {
		// Wait só falha por causa do ctx (cancelado ou prazo curto demais)
		if err := s.lim.Wait(ctx); err != nil {
			return
		}
		if err := s.Step(ctx); err != nil {
			s.log.Warn("simulated action failed", zap.Error(err))
		}
	}
}

// Step cria uma partida enquanto houver poucas, senão aposta numa partida existente
func (s *Simulator) Step(ctx context.Context) error {
	snap := s.mkt.Snapshot()
	if len(snap.Games) < s.opts.MaxGames {
		g, err := s.mkt.AddGame(ctx, gofakeit.Name(), gofakeit.Name())
		if err != nil {
			return err
		}
		s.log.Info("simulated game", zap.String("gameId", g.ID), zap.String("player1", g.Player1), zap.String("player2", g.Player2))
		return nil
	}

	g := snap.Games[rand.IntN(len(snap.Games))]
	in := session.BetInput{
		GameID:    g.ID,
		Amount:    float64(1 + rand.IntN(int(s.opts.MaxStake))),
		Condition: conditions[rand.IntN(len(conditions))],
		Certainty: float64(rand.IntN(101)),
	}
	if rand.IntN(4) == 0 {
		in.BetType = models.BetTypeOther
	}
	b, err := s.mkt.PlaceBet(ctx, in)
	if errors.Is(err, session.ErrInsufficientFunds) {
		s.log.Debug("simulated bet skipped", zap.Error(err))
		return nil
	}
	if err != nil {
		return err
	}
	s.log.Info("simulated bet",
		zap.String("betId", b.ID),
		zap.String("gameId", b.GameID),
		zap.String("condition", b.Condition),
		zap.Float64("amount", b.Amount),
		zap.Float64("certainty", b.Certainty),
	)
	return nil
}
