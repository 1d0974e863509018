package dto

import "github.com/radieske/chess-market-poc/pkg/contracts/models"

// SaveUserRequest cria ou substitui um usuário (POST /v1/users).
// ExpectedVersion > 0 liga o controle otimista de concorrência.
type SaveUserRequest struct {
	User            models.User `json:"user"`
	ExpectedVersion int64       `json:"expectedVersion,omitempty" validate:"gte=0"`
}

type UserUpdates struct {
	Balance *float64 `json:"balance" validate:"required"`
}

// UpdateUserRequest altera campos de um usuário existente (PUT /v1/users)
type UpdateUserRequest struct {
	UserID          string      `json:"userId" validate:"required"`
	Updates         UserUpdates `json:"updates"`
	ExpectedVersion int64       `json:"expectedVersion,omitempty" validate:"gte=0"`
}

type CreateGameRequest struct {
	Game models.Game `json:"game"`
}

// PlaceBetRequest é o mesmo formato do evento new-bet.
// MarketProbability do cliente é só informativa; o servidor recalcula.
type PlaceBetRequest struct {
	GameID            string     `json:"gameId" validate:"required"`
	Bet               models.Bet `json:"bet"`
	MarketProbability *float64   `json:"marketProbability,omitempty" validate:"omitempty,gte=0,lte=100"`
}

type SavePlatformRequest struct {
	PlatformAccount *models.PlatformAccount `json:"platformAccount" validate:"required"`
}
