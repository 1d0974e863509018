package dto

import (
	"github.com/radieske/chess-market-poc/internal/shared/pricing"
	"github.com/radieske/chess-market-poc/pkg/contracts/models"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// MarketResponse é um mercado da partida já precificado
type MarketResponse struct {
	Condition   string  `json:"condition"`
	Key         string  `json:"key"`
	Probability float64 `json:"probability"`
	YesPrice    float64 `json:"yesPrice"`
	NoPrice     float64 `json:"noPrice"`
	Odds        string  `json:"odds"`
	TotalAmount float64 `json:"totalAmount"`
	BetCount    int     `json:"betCount"`
}

func NewMarketResponse(m pricing.Market) MarketResponse {
	return MarketResponse{
		Condition:   m.Condition,
		Key:         m.Key,
		Probability: m.Quote.DisplayProbability(),
		YesPrice:    m.Quote.DisplayYesPrice(),
		NoPrice:     m.Quote.DisplayNoPrice(),
		Odds:        m.Odds.String(),
		TotalAmount: m.Odds.TotalAmount,
		BetCount:    m.Odds.BetCount,
	}
}

type HealthResponse struct {
	Status     string `json:"status"`
	Database   string `json:"database"`
	Bus        string `json:"bus"`
	UsersCount int    `json:"usersCount"`
	Timestamp  string `json:"timestamp"`
}

// PlaceBetResponse traz os três registros alterados pela aposta
type PlaceBetResponse struct {
	Bet               models.Bet             `json:"bet"`
	User              models.User            `json:"user"`
	PlatformAccount   models.PlatformAccount `json:"platformAccount"`
	MarketProbability *float64               `json:"marketProbability,omitempty"`
}
