// Package pricing calcula probabilidade, preços YES/NO e odds de um mercado
// a partir das apostas. Funções puras: nada é cacheado, tudo é recalculado
// a partir da lista de apostas a cada leitura.
package pricing

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/radieske/chess-market-poc/pkg/contracts/models"
)

// NeutralProbability é o prior de um mercado sem apostas (em %)
const NeutralProbability = 50.0

// NormalizeCondition define a chave do mercado: minúsculas e sem espaços nas pontas
func NormalizeCondition(condition string) string {
	return strings.ToLower(strings.TrimSpace(condition))
}

// MarketKey identifica um mercado (partida, condição normalizada)
type MarketKey struct {
	GameID    string
	Condition string
}

func KeyOf(gameID, condition string) MarketKey {
	return MarketKey{GameID: gameID, Condition: NormalizeCondition(condition)}
}

func (k MarketKey) String() string { return k.GameID + "-" + k.Condition }

// MarketBets filtra as apostas cuja condição normalizada é igual à informada
func MarketBets(bets []models.Bet, condition string) []models.Bet {
	want := NormalizeCondition(condition)
	var out []models.Bet
	for _, b := range bets {
		if NormalizeCondition(b.Condition) == want {
			out = append(out, b)
		}
	}
	return out
}

// weighted retorna Σ(certainty×amount), Σ(amount) e a contagem
func weighted(bets []models.Bet) (sumWeighted, sumAmount float64, n int) {
	for _, b := range bets {
		sumWeighted += b.Certainty * b.Amount
		sumAmount += b.Amount
	}
	return sumWeighted, sumAmount, len(bets)
}

// Quote é o estado de preço de um mercado. Probability, YesPrice e NoPrice
// guardam os valores sem arredondamento; use os métodos Display* para exibir.
type Quote struct {
	Probability float64 // 0..100
	YesPrice    float64 // 0..1
	NoPrice     float64 // 1 - YesPrice
	Empty       bool
}

// MarketProbability calcula a média de certeza ponderada pelo valor apostado
func MarketProbability(bets []models.Bet, condition string) Quote {
	return quoteOf(MarketBets(bets, condition))
}

func quoteOf(market []models.Bet) Quote {
	sw, sa, n := weighted(market)
	if n == 0 || sa == 0 {
		return Quote{Probability: NeutralProbability, YesPrice: 0.5, NoPrice: 0.5, Empty: n == 0}
	}
	p := mean(market, sw, sa)
	yes := p / 100
	return Quote{Probability: p, YesPrice: yes, NoPrice: 1 - yes}
}

func (q Quote) DisplayProbability() float64 { return Round(q.Probability, 1) }
func (q Quote) DisplayYesPrice() float64    { return Round(q.YesPrice, 2) }
func (q Quote) DisplayNoPrice() float64     { return Round(q.NoPrice, 2) }

// OddsKind distingue mercado vazio e odds infinitas de um valor numérico
type OddsKind int

const (
	NoMarket OddsKind = iota
	Finite
	Unbounded // todas as certezas em zero
)

// OddsResult é o resultado de Odds. Ratio só é válido quando Kind == Finite.
type OddsResult struct {
	Kind         OddsKind
	Ratio        float64
	AvgCertainty float64
	TotalAmount  float64
	BetCount     int
}

// Odds calcula as odds "X:1" implícitas pela probabilidade ponderada
func Odds(bets []models.Bet, condition string) OddsResult {
	return oddsOf(MarketBets(bets, condition))
}

func oddsOf(market []models.Bet) OddsResult {
	sw, sa, n := weighted(market)
	if n == 0 {
		return OddsResult{Kind: NoMarket}
	}
	res := OddsResult{TotalAmount: sa, BetCount: n}
	if sa > 0 {
		res.AvgCertainty = mean(market, sw, sa)
	}
	// certeza subnormal: 1/implied estoura para +Inf
	ratio := 1 / (res.AvgCertainty / 100)
	if math.IsInf(ratio, 0) || math.IsNaN(ratio) {
		res.Kind = Unbounded
		return res
	}
	res.Kind = Finite
	res.Ratio = ratio
	return res
}

// mean é Σ(certainty×amount)/Σ(amount). Se as somas estouram o float64,
// recalcula com os valores escalados por MaxFloat64.
func mean(market []models.Bet, sw, sa float64) float64 {
	if p := sw / sa; !math.IsInf(p, 0) && !math.IsNaN(p) {
		return p
	}
	var total float64
	for _, b := range market {
		total += b.Amount / math.MaxFloat64
	}
	var p float64
	for _, b := range market {
		p += b.Certainty * (b.Amount / math.MaxFloat64 / total)
	}
	return p
}

// String renderiza as odds como no painel: "1.67:1", "∞:1" ou "No bets"
func (o OddsResult) String() string {
	switch o.Kind {
	case Finite:
		if math.IsInf(o.Ratio, 0) || math.IsNaN(o.Ratio) {
			return "∞:1"
		}
		return decimal.NewFromFloat(o.Ratio).StringFixed(2) + ":1"
	case Unbounded:
		return "∞:1"
	default:
		return "No bets"
	}
}

// Conditions lista as condições distintas (texto original) na ordem em que apareceram
func Conditions(bets []models.Bet) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, b := range bets {
		if _, ok := seen[b.Condition]; ok {
			continue
		}
		seen[b.Condition] = struct{}{}
		out = append(out, b.Condition)
	}
	return out
}

// Market agrega cotação e odds de um mercado
type Market struct {
	Condition string // primeira grafia vista
	Key       string // condição normalizada
	Quote     Quote
	Odds      OddsResult
}

// Markets agrupa as apostas por condição normalizada, na ordem de primeira aparição
func Markets(bets []models.Bet) []Market {
	idx := make(map[string]int)
	var groups [][]models.Bet
	var out []Market
	for _, b := range bets {
		k := NormalizeCondition(b.Condition)
		i, ok := idx[k]
		if !ok {
			i = len(groups)
			idx[k] = i
			groups = append(groups, nil)
			out = append(out, Market{Condition: b.Condition, Key: k})
		}
		groups[i] = append(groups[i], b)
	}
	for i := range out {
		out[i].Quote = quoteOf(groups[i])
		out[i].Odds = oddsOf(groups[i])
	}
	return out
}

// Round arredonda para places casas, metade para longe do zero.
// NaN e ±Inf voltam sem alteração.
func Round(v float64, places int32) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return v
	}
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}

func (q Quote) String() string {
	return fmt.Sprintf("p=%.1f%% yes=%.2f no=%.2f", q.DisplayProbability(), q.DisplayYesPrice(), q.DisplayNoPrice())
}
