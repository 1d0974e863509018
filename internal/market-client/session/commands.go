package session

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/radieske/chess-market-poc/internal/shared/pricing"
	"github.com/radieske/chess-market-poc/pkg/contracts/events"
	"github.com/radieske/chess-market-poc/pkg/contracts/models"
	"github.com/radieske/chess-market-poc/pkg/contracts/topics"
)

// BetInput são os dados que o usuário informa ao apostar
type BetInput struct {
	GameID    string
	Amount    float64
	Condition string
	Certainty float64
	BetType   string // hedged (default) | other
}

func (s *Session) liveLocked() error {
	if s.state != Live {
		return fmt.Errorf("%w: %s", ErrNotLive, s.state)
	}
	return nil
}

// rollback desfaz as alterações tentativas e devolve o erro de escrita
func (s *Session) rollback(kind string, cause error, ids ...string) error {
	s.mu.Lock()
	for _, id := range ids {
		s.proj.Rollback(id)
	}
	s.mu.Unlock()
	s.opts.OnRollback(kind)
	s.log.Warn("write failed, rolled back", zap.String("kind", kind), zap.Strings("ids", ids), zap.Error(cause))
	return fmt.Errorf("%w: %s: %w", ErrWriteFailed, kind, cause)
}

// AddGame cria uma partida. Ela aparece na projeção antes da escrita
// e some se o store recusar.
func (s *Session) AddGame(ctx context.Context, player1, player2 string) (models.Game, error) {
	player1, player2 = strings.TrimSpace(player1), strings.TrimSpace(player2)
	if player1 == "" || player2 == "" {
		return models.Game{}, fmt.Errorf("%w: both players are required", ErrInvalidCommand)
	}

	s.mu.Lock()
	if err := s.liveLocked(); err != nil {
		s.mu.Unlock()
		return models.Game{}, err
	}
	g := models.Game{
		ID:        s.opts.NewID("game"),
		Player1:   player1,
		Player2:   player2,
		Status:    models.GameUpcoming,
		CreatedAt: s.opts.Clock(),
	}
	if err := s.proj.AddTentativeGame(g); err != nil {
		s.mu.Unlock()
		return models.Game{}, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	s.mu.Unlock()

	wctx, cancel := s.storeCtx(ctx)
	saved, err := s.store.SaveGame(wctx, g)
	cancel()
	if err != nil {
		return models.Game{}, s.rollback("game", err, g.ID)
	}

	s.mu.Lock()
	s.applyChange(events.Change{Name: topics.EventNewGame, NewGame: &events.NewGame{Game: saved}})
	s.mu.Unlock()
	return saved, nil
}

// PlaceBet precifica a aposta com a cotação atual do mercado, aplica a
// aposta e o débito do usuário de forma otimista e grava no store.
func (s *Session) PlaceBet(ctx context.Context, in BetInput) (models.Bet, error) {
	in.Condition = strings.TrimSpace(in.Condition)
	switch {
	case in.Condition == "":
		return models.Bet{}, fmt.Errorf("%w: condition is required", ErrInvalidCommand)
	case in.Amount <= 0:
		return models.Bet{}, fmt.Errorf("%w: amount must be positive", ErrInvalidCommand)
	case in.Certainty < 0 || in.Certainty > 100:
		return models.Bet{}, fmt.Errorf("%w: certainty must be within 0..100", ErrInvalidCommand)
	}
	if in.BetType == "" {
		in.BetType = models.BetTypeHedged
	}

	s.mu.Lock()
	if err := s.liveLocked(); err != nil {
		s.mu.Unlock()
		return models.Bet{}, err
	}
	if _, ok := s.proj.Game(in.GameID); !ok {
		s.mu.Unlock()
		return models.Bet{}, fmt.Errorf("%w: unknown game %q", ErrInvalidCommand, in.GameID)
	}
	user, ok := s.proj.User(s.userID)
	if !ok {
		s.mu.Unlock()
		return models.Bet{}, fmt.Errorf("%w: no current user", ErrInvalidCommand)
	}

	bets := s.proj.Bets(in.GameID)
	before := pricing.MarketProbability(bets, in.Condition)
	costing := s.opts.Fees.Price(in.Amount, in.Certainty, in.BetType, before)
	if costing.ActualCost > user.Balance {
		s.mu.Unlock()
		return models.Bet{}, fmt.Errorf("%w: balance %.2f, cost %.2f", ErrInsufficientFunds, user.Balance, costing.ActualCost)
	}

	b := models.Bet{
		ID:        s.opts.NewID("bet"),
		GameID:    in.GameID,
		UserID:    user.ID,
		UserName:  user.Name,
		Amount:    in.Amount,
		Condition: in.Condition,
		Certainty: in.Certainty,
		BetType:   in.BetType,
		CreatedAt: s.opts.Clock(),
	}
	pricing.ApplyCosting(&b, costing)
	after := pricing.MarketProbability(append(bets, b), in.Condition).Probability

	writeID := s.opts.NewID("write")
	if _, err := s.proj.SetTentativeUser(writeID, user.ID, func(u *models.User) { u.Balance -= costing.ActualCost }); err != nil {
		s.mu.Unlock()
		return models.Bet{}, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	if err := s.proj.AddTentativeBet(b); err != nil {
		s.proj.Rollback(writeID)
		s.mu.Unlock()
		return models.Bet{}, fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}
	s.mu.Unlock()

	wctx, cancel := s.storeCtx(ctx)
	res, err := s.store.SaveBet(wctx, in.GameID, b, after)
	cancel()
	if err != nil {
		return models.Bet{}, s.rollback("bet", err, b.ID, writeID)
	}

	s.mu.Lock()
	if res.MarketProbability == nil {
		res.MarketProbability = &after
	}
	s.applyChange(events.Change{Name: topics.EventNewBet, NewBet: &events.NewBet{GameID: in.GameID, Bet: res.Bet, MarketProbability: res.MarketProbability}})
	var echo *models.User
	if res.User.ID != "" {
		echo = &res.User
	}
	s.confirmUserLocked(writeID, echo)
	if res.PlatformAccount.Version > 0 {
		platform := res.PlatformAccount
		s.applyChange(events.Change{Name: topics.EventPlatformUpdate, PlatformUpdate: &events.PlatformUpdate{PlatformAccount: &platform}})
	}
	s.mu.Unlock()
	return res.Bet, nil
}

// Rename troca o nome do usuário atual
func (s *Session) Rename(ctx context.Context, name string) (models.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.User{}, fmt.Errorf("%w: name is required", ErrInvalidCommand)
	}
	return s.updateUser(ctx, "rename", "", func(u *models.User) { u.Name = name })
}

// UpdateBalance ajusta o saldo de um usuário (operação administrativa)
func (s *Session) UpdateBalance(ctx context.Context, userID string, balance float64) (models.User, error) {
	if balance < 0 {
		return models.User{}, fmt.Errorf("%w: balance must not be negative", ErrInvalidCommand)
	}
	return s.updateUser(ctx, "balance", userID, func(u *models.User) { u.Balance = balance })
}

// updateUser grava uma alteração do usuário. O registro enviado é a última
// versão do store com só esta alteração; débitos ainda em voo não vão junto.
func (s *Session) updateUser(ctx context.Context, kind, userID string, mutate func(*models.User)) (models.User, error) {
	s.mu.Lock()
	if err := s.liveLocked(); err != nil {
		s.mu.Unlock()
		return models.User{}, err
	}
	if userID == "" {
		userID = s.userID
	}
	writeID := s.opts.NewID("write")
	next, err := s.proj.SetTentativeUser(writeID, userID, mutate)
	if err != nil {
		s.mu.Unlock()
		return models.User{}, fmt.Errorf("%w: user %q: %w", ErrInvalidCommand, userID, err)
	}
	s.mu.Unlock()

	wctx, cancel := s.storeCtx(ctx)
	var saved models.User
	if kind == "balance" {
		saved, err = s.store.UpdateUserBalance(wctx, next.ID, next.Balance, next.Version)
	} else {
		saved, err = s.store.SaveUser(wctx, next, next.Version)
	}
	cancel()
	if err != nil {
		return models.User{}, s.rollback(kind, err, writeID)
	}

	s.mu.Lock()
	s.confirmUserLocked(writeID, &saved)
	s.mu.Unlock()
	return saved, nil
}

// confirmUserLocked aplica o eco do store para a alteração writeID.
// echo nil: o store não devolveu o usuário e a alteração passa a valer como está.
func (s *Session) confirmUserLocked(writeID string, echo *models.User) {
	out := s.proj.ConfirmUser(writeID, echo)
	s.opts.OnApplied(topics.EventUserUpdate, out)
}
