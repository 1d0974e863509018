// Package projection mantém o estado local de um cliente do torneio:
// usuários, partidas, apostas, conta da plataforma e histórico dos mercados.
// É um reducer: eventos remotos e resultados de escrita passam por Apply,
// e alterações otimistas ficam marcadas como tentativas até serem confirmadas.
//
// Projection não é segura para uso concorrente; quem a usa serializa o acesso.
package projection

import (
	"errors"
	"time"

	"github.com/radieske/chess-market-poc/internal/shared/pricing"
	"github.com/radieske/chess-market-poc/pkg/contracts/events"
	"github.com/radieske/chess-market-poc/pkg/contracts/models"
)

// HistoryLimit é quantas amostras de probabilidade cada mercado guarda
const HistoryLimit = 10

var (
	ErrDuplicateID = errors.New("id already present")
	ErrUnknownUser = errors.New("unknown user")
)

// Outcome é o resultado de aplicar uma mudança
type Outcome int

const (
	Applied   Outcome = iota // registro novo ou versão mais nova
	Confirmed                // eco autoritativo de uma alteração tentativa
	Duplicate                // já visto; nada muda
	Stale                    // versão antiga; descartado
	Rejected                 // payload inválido; nunca aplicado
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Confirmed:
		return "confirmed"
	case Duplicate:
		return "duplicate"
	case Stale:
		return "stale"
	default:
		return "rejected"
	}
}

// Sample é um ponto do histórico de probabilidade de um mercado
type Sample struct {
	At          time.Time `json:"timestamp"`
	Probability float64   `json:"probability"`
}

type kind int

const (
	kindGame kind = iota
	kindBet
)

// tentative guarda o necessário para desfazer uma partida ou aposta otimista
type tentative struct {
	kind   kind
	gameID string // kindBet
}

// userWrite é uma alteração otimista de usuário, identificada pelo comando que a gerou
type userWrite struct {
	id     string
	mutate func(*models.User)
}

// userDraft é a última versão do store de um usuário mais as alterações em voo
type userDraft struct {
	base   models.User
	writes []userWrite
}

type Projection struct {
	users      map[string]models.User
	userOrder  []string
	games      []models.Game
	gameIndex  map[string]int
	bets       map[string][]models.Bet
	betGame    map[string]string // betID -> gameID
	platform   models.PlatformAccount
	history    map[pricing.MarketKey][]Sample
	pending    map[string]tentative
	drafts     map[string]*userDraft // userID -> alterações em voo
	writeOwner map[string]string     // writeID -> userID
	now        func() time.Time
}

func New() *Projection {
	p := &Projection{now: func() time.Time { return time.Now().UTC() }}
	p.reset()
	return p
}

// WithClock troca o relógio usado nas amostras do histórico
func (p *Projection) WithClock(now func() time.Time) *Projection {
	p.now = now
	return p
}

func (p *Projection) reset() {
	p.users = make(map[string]models.User)
	p.userOrder = nil
	p.games = nil
	p.gameIndex = make(map[string]int)
	p.bets = make(map[string][]models.Bet)
	p.betGame = make(map[string]string)
	p.platform = models.PlatformAccount{}
	p.history = make(map[pricing.MarketKey][]Sample)
	p.pending = make(map[string]tentative)
	p.drafts = make(map[string]*userDraft)
	p.writeOwner = make(map[string]string)
}

// Load substitui todo o estado pelo snapshot do store.
// users vem em ordem de criação; bets agrupadas por partida, em ordem de chegada.
// O histórico não é reconstruído: só eventos observados geram amostras.
func (p *Projection) Load(users []models.User, games []models.Game, bets map[string][]models.Bet, platform models.PlatformAccount) {
	p.reset()
	for _, u := range users {
		p.putUser(u)
	}
	for _, g := range games {
		p.appendGame(g)
	}
	for gameID, list := range bets {
		for _, b := range list {
			if _, seen := p.betGame[b.ID]; seen {
				continue
			}
			if b.GameID == "" {
				b.GameID = gameID
			}
			p.appendBet(b)
		}
	}
	p.platform = platform
}

// ApplyEnvelope decodifica e aplica um envelope do Change Bus
func (p *Projection) ApplyEnvelope(env events.Envelope) (Outcome, error) {
	c, err := events.DecodeEnvelope(env)
	if err != nil {
		return Rejected, err
	}
	return p.Apply(c), nil
}

// Apply aplica uma mudança já decodificada seguindo a política de merge:
// partidas e apostas são imutáveis (entram se o id é novo), usuários e a
// conta da plataforma são substituídos por versão.
func (p *Projection) Apply(c events.Change) Outcome {
	switch {
	case c.NewGame != nil:
		return p.applyGame(c.NewGame.Game)
	case c.NewBet != nil:
		return p.applyBet(*c.NewBet)
	case c.UserUpdate != nil:
		return p.applyUser(c.UserUpdate.User)
	case c.PlatformUpdate != nil && c.PlatformUpdate.PlatformAccount != nil:
		return p.applyPlatform(*c.PlatformUpdate.PlatformAccount)
	default:
		return Rejected
	}
}

func (p *Projection) applyGame(g models.Game) Outcome {
	i, seen := p.gameIndex[g.ID]
	if !seen {
		p.appendGame(g)
		return Applied
	}
	if t, ok := p.pending[g.ID]; ok && t.kind == kindGame {
		delete(p.pending, g.ID)
		p.games[i] = g
		return Confirmed
	}
	return Duplicate
}

func (p *Projection) applyBet(e events.NewBet) Outcome {
	b := e.Bet
	if b.GameID == "" {
		b.GameID = e.GameID
	}
	gameID, seen := p.betGame[b.ID]
	if !seen {
		p.appendBet(b)
		p.sample(b.GameID, b.Condition, e.Probability())
		return Applied
	}
	if t, ok := p.pending[b.ID]; ok && t.kind == kindBet {
		delete(p.pending, b.ID)
		list := p.bets[gameID]
		for i := range list {
			if list[i].ID == b.ID {
				list[i] = b
				break
			}
		}
		p.sample(b.GameID, b.Condition, e.Probability())
		return Confirmed
	}
	return Duplicate
}

func (p *Projection) applyUser(u models.User) Outcome {
	if d, ok := p.drafts[u.ID]; ok {
		// alterações locais em voo: a base avança e elas são reaplicadas por cima
		switch {
		case u.Version > d.base.Version:
			d.base = u
			p.recompute(u.ID)
			return Applied
		case u == d.base:
			return Duplicate
		default:
			return Stale
		}
	}
	cur, ok := p.users[u.ID]
	switch {
	case !ok, u.Version > cur.Version:
		p.putUser(u)
		return Applied
	case u.Version == cur.Version:
		if u == cur {
			return Duplicate
		}
		p.putUser(u)
		return Applied
	default:
		return Stale
	}
}

func (p *Projection) applyPlatform(a models.PlatformAccount) Outcome {
	switch {
	case a.Version > p.platform.Version:
		p.platform = a
		return Applied
	case a.Version == p.platform.Version:
		if a == p.platform {
			return Duplicate
		}
		p.platform = a
		return Applied
	default:
		return Stale
	}
}

func (p *Projection) putUser(u models.User) {
	if _, ok := p.users[u.ID]; !ok {
		p.userOrder = append(p.userOrder, u.ID)
	}
	p.users[u.ID] = u
}

func (p *Projection) appendGame(g models.Game) {
	p.gameIndex[g.ID] = len(p.games)
	p.games = append(p.games, g)
}

func (p *Projection) appendBet(b models.Bet) {
	p.betGame[b.ID] = b.GameID
	p.bets[b.GameID] = append(p.bets[b.GameID], b)
}

func (p *Projection) sample(gameID, condition string, probability float64) {
	key := pricing.KeyOf(gameID, condition)
	h := append(p.history[key], Sample{At: p.now(), Probability: probability})
	if len(h) > HistoryLimit {
		h = append([]Sample(nil), h[len(h)-HistoryLimit:]...)
	}
	p.history[key] = h
}
