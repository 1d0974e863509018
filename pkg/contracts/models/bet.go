package models

import "time"

const (
	BetTypeHedged = "hedged" // divide o custo entre YES e NO conforme a certeza
	BetTypeOther  = "other"  // custo inteiro em YES
)

// Bet é imutável depois de criada. UserName é desnormalizado no momento da escrita.
type Bet struct {
	ID          string    `json:"id" validate:"required"`
	GameID      string    `json:"gameId,omitempty"`
	UserID      string    `json:"userId" validate:"required"`
	UserName    string    `json:"userName"`
	Amount      float64   `json:"amount" validate:"gt=0"`
	Condition   string    `json:"condition" validate:"required"`
	Certainty   float64   `json:"certainty" validate:"gte=0,lte=100"`
	BetType     string    `json:"betType"`
	YesTokens   float64   `json:"yesTokens"`
	NoTokens    float64   `json:"noTokens"`
	ActualCost  float64   `json:"actualCost"`
	PlatformFee float64   `json:"platformFee"`
	NetCost     float64   `json:"netCost"`
	CreatedAt   time.Time `json:"createdAt"`
}
