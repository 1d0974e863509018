package repo

import (
	"database/sql"
	"errors"

	"github.com/radieske/chess-market-poc/pkg/contracts/models"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict")
	ErrUnknownGame     = errors.New("unknown game")
	ErrUnknownUser     = errors.New("unknown user")
)

// Colunas em snake_case; o mapeamento para os campos camelCase dos contratos
// acontece só aqui, nos scan* abaixo.
const (
	userColumns     = `id, name, balance, is_admin, version`
	gameColumns     = `id, player1, player2, status, created_at`
	betColumns      = `id, game_id, user_id, user_name, amount, condition, certainty, bet_type, yes_tokens, no_tokens, actual_cost, platform_fee, net_cost, created_at`
	platformColumns = `balance, total_fees, transaction_count, version`
)

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (models.User, error) {
	var u models.User
	err := s.Scan(&u.ID, &u.Name, &u.Balance, &u.IsAdmin, &u.Version)
	return u, err
}

func scanGame(s scanner) (models.Game, error) {
	var g models.Game
	err := s.Scan(&g.ID, &g.Player1, &g.Player2, &g.Status, &g.CreatedAt)
	return g, err
}

func scanBet(s scanner) (models.Bet, error) {
	var b models.Bet
	err := s.Scan(
		&b.ID, &b.GameID, &b.UserID, &b.UserName,
		&b.Amount, &b.Condition, &b.Certainty, &b.BetType,
		&b.YesTokens, &b.NoTokens, &b.ActualCost, &b.PlatformFee, &b.NetCost,
		&b.CreatedAt,
	)
	return b, err
}

func scanPlatform(s scanner) (models.PlatformAccount, error) {
	var a models.PlatformAccount
	err := s.Scan(&a.Balance, &a.TotalFees, &a.TransactionCount, &a.Version)
	return a, err
}

// BetResult é o efeito de uma aposta gravada: a aposta, o usuário debitado e
// a conta da plataforma com a taxa acumulada. Created=false indica replay do mesmo id.
type BetResult struct {
	Bet      models.Bet
	User     models.User
	Platform models.PlatformAccount
	Created  bool
}

func notFound(err error, sentinel error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel
	}
	return err
}
