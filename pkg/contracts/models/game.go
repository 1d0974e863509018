package models

import "time"

// Status da partida. Transições não são aplicadas pelo core; o valor é livre.
const (
	GameUpcoming = "upcoming"
	GameActive   = "active"
	GameFinished = "finished"
)

type Game struct {
	ID        string    `json:"id" validate:"required"`
	Player1   string    `json:"player1" validate:"required"`
	Player2   string    `json:"player2" validate:"required"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}
