package simulator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/chess-market-poc/internal/market-client/projection"
	"github.com/radieske/chess-market-poc/internal/market-client/session"
	"github.com/radieske/chess-market-poc/pkg/contracts/models"
)

type fakeMarket struct {
	games  []models.Game
	bets   []session.BetInput
	betErr error
}

func (f *fakeMarket) AddGame(_ context.Context, p1, p2 string) (models.Game, error) {
	g := models.Game{ID: fmt.Sprintf("game_%d", len(f.games)), Player1: p1, Player2: p2}
	f.games = append(f.games, g)
	return g, nil
}

func (f *fakeMarket) PlaceBet(_ context.Context, in session.BetInput) (models.Bet, error) {
	if f.betErr != nil {
		return models.Bet{}, f.betErr
	}
	f.bets = append(f.bets, in)
	return models.Bet{ID: "bet", GameID: in.GameID, Amount: in.Amount, Condition: in.Condition, Certainty: in.Certainty}, nil
}

func (f *fakeMarket) Snapshot() projection.Snapshot {
	return projection.Snapshot{Games: append([]models.Game(nil), f.games...)}
}

func TestStep_CreatesGamesThenBets(t *testing.T) {
	mkt := &fakeMarket{}
	s := New(zap.NewNop(), mkt, Options{MaxGames: 2, MaxStake: 10})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Step(ctx))
	}

	require.Len(t, mkt.games, 2)
	for _, g := range mkt.games {
		assert.NotEmpty(t, g.Player1)
		assert.NotEmpty(t, g.Player2)
	}
	require.Len(t, mkt.bets, 3)
	for _, b := range mkt.bets {
		assert.Contains(t, []string{"game_0", "game_1"}, b.GameID)
		assert.GreaterOrEqual(t, b.Amount, 1.0)
		assert.LessOrEqual(t, b.Amount, 10.0)
		assert.GreaterOrEqual(t, b.Certainty, 0.0)
		assert.LessOrEqual(t, b.Certainty, 100.0)
		assert.Contains(t, conditions, b.Condition)
	}
}

func TestStep_InsufficientFundsIsNotAnError(t *testing.T) {
	mkt := &fakeMarket{games: []models.Game{{ID: "g1"}}, betErr: session.ErrInsufficientFunds}
	s := New(zap.NewNop(), mkt, Options{MaxGames: 1})
	assert.NoError(t, s.Step(context.Background()))

	mkt.betErr = session.ErrWriteFailed
	assert.ErrorIs(t, s.Step(context.Background()), session.ErrWriteFailed)
}

func TestRun_StopsOnCancel(t *testing.T) {
	mkt := &fakeMarket{}
	s := New(zap.NewNop(), mkt, Options{Interval: time.Millisecond, MaxGames: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	s.Run(ctx)
	assert.Len(t, mkt.games, 1)
	assert.NotEmpty(t, mkt.bets)
}

func TestStep_FractionalMaxStake(t *testing.T) {
	mkt := &fakeMarket{games: []models.Game{{ID: "g1"}}}
	s := New(zap.NewNop(), mkt, Options{MaxGames: 1, MaxStake: 0.5})

	require.NotPanics(t, func() { require.NoError(t, s.Step(context.Background())) })
	require.Len(t, mkt.bets, 1)
	assert.Equal(t, 1.0, mkt.bets[0].Amount)
}
