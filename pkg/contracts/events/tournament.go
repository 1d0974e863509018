package events

import "github.com/radieske/chess-market-poc/pkg/contracts/models"

// NeutralProbability é o prior usado quando o mercado não tem apostas
// ou quando o evento não informa a probabilidade
const NeutralProbability = 50.0

// Evento "new-game"
type NewGame struct {
	Game models.Game `json:"game"`
}

// Evento "new-bet". MarketProbability é a probabilidade do mercado já com a aposta incluída.
type NewBet struct {
	GameID            string     `json:"gameId" validate:"required"`
	Bet               models.Bet `json:"bet"`
	MarketProbability *float64   `json:"marketProbability,omitempty" validate:"omitempty,gte=0,lte=100"`
}

// Probability retorna a probabilidade do evento ou o prior neutro
func (e NewBet) Probability() float64 {
	if e.MarketProbability == nil {
		return NeutralProbability
	}
	return *e.MarketProbability
}

// Evento "user-update"
type UserUpdate struct {
	UserID string      `json:"userId" validate:"required"`
	User   models.User `json:"user"`
}

// Evento "platform-update"
type PlatformUpdate struct {
	PlatformAccount *models.PlatformAccount `json:"platformAccount" validate:"required"`
}
