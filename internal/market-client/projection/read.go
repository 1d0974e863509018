package projection

import (
	"github.com/radieske/chess-market-poc/internal/shared/pricing"
	"github.com/radieske/chess-market-poc/pkg/contracts/models"
)

// Snapshot é uma cópia do estado, segura para ler fora do lock do chamador
type Snapshot struct {
	Users    []models.User           `json:"users"`
	Games    []models.Game           `json:"games"`
	Bets     map[string][]models.Bet `json:"bets"`
	Platform models.PlatformAccount  `json:"platformAccount"`
	Pending  int                     `json:"pending"`
}

func (p *Projection) Snapshot() Snapshot {
	bets := make(map[string][]models.Bet, len(p.bets))
	for gameID := range p.bets {
		bets[gameID] = p.Bets(gameID)
	}
	return Snapshot{
		Users:    p.Users(),
		Games:    p.Games(),
		Bets:     bets,
		Platform: p.platform,
		Pending:  len(p.pending) + len(p.writeOwner),
	}
}

// Users retorna os usuários na ordem em que foram vistos
func (p *Projection) Users() []models.User {
	out := make([]models.User, 0, len(p.userOrder))
	for _, id := range p.userOrder {
		out = append(out, p.users[id])
	}
	return out
}

func (p *Projection) User(id string) (models.User, bool) {
	u, ok := p.users[id]
	return u, ok
}

func (p *Projection) Games() []models.Game {
	return append([]models.Game(nil), p.games...)
}

func (p *Projection) Game(id string) (models.Game, bool) {
	i, ok := p.gameIndex[id]
	if !ok {
		return models.Game{}, false
	}
	return p.games[i], true
}

func (p *Projection) Bets(gameID string) []models.Bet {
	return append([]models.Bet(nil), p.bets[gameID]...)
}

func (p *Projection) Platform() models.PlatformAccount { return p.platform }

// History retorna as últimas amostras do mercado (partida, condição normalizada)
func (p *Projection) History(gameID, condition string) []Sample {
	return append([]Sample(nil), p.history[pricing.KeyOf(gameID, condition)]...)
}

// IsTentative indica se o id (partida, aposta, usuário ou writeID) tem uma
// escrita local ainda não confirmada
func (p *Projection) IsTentative(id string) bool {
	if _, ok := p.pending[id]; ok {
		return true
	}
	if _, ok := p.drafts[id]; ok {
		return true
	}
	_, ok := p.writeOwner[id]
	return ok
}
