package pricing

import "github.com/radieske/chess-market-poc/pkg/contracts/models"

// DefaultFeeRate é a taxa da casa sobre o valor apostado
const DefaultFeeRate = 0.02

// Costing é o custo de uma aposta e os tokens comprados com ele
type Costing struct {
	ActualCost  float64
	PlatformFee float64
	NetCost     float64
	YesTokens   float64
	NoTokens    float64
}

// FeePolicy define taxa e tokens de uma aposta a partir da cotação anterior a ela
type FeePolicy interface {
	Price(amount, certainty float64, betType string, before Quote) Costing
}

// FlatFee cobra Rate sobre o valor e compra tokens com o restante
type FlatFee struct {
	Rate float64
}

func (f FlatFee) Price(amount, certainty float64, betType string, before Quote) Costing {
	fee := Round(amount*f.Rate, 2)
	c := Costing{
		ActualCost:  amount,
		PlatformFee: fee,
		NetCost:     amount - fee,
	}

	yesShare := 1.0
	if betType == models.BetTypeHedged || betType == "" {
		yesShare = certainty / 100
	}
	c.YesTokens = tokens(c.NetCost*yesShare, before.YesPrice)
	c.NoTokens = tokens(c.NetCost*(1-yesShare), before.NoPrice)
	return c
}

func tokens(spend, price float64) float64 {
	if price <= 0 || spend <= 0 {
		return 0
	}
	return Round(spend/price, 2)
}

// ApplyCosting copia os valores calculados para a aposta
func ApplyCosting(b *models.Bet, c Costing) {
	b.ActualCost = c.ActualCost
	b.PlatformFee = c.PlatformFee
	b.NetCost = c.NetCost
	b.YesTokens = c.YesTokens
	b.NoTokens = c.NoTokens
}
