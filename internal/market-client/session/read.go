package session

import (
	"github.com/radieske/chess-market-poc/internal/market-client/projection"
	"github.com/radieske/chess-market-poc/internal/shared/pricing"
	"github.com/radieske/chess-market-poc/pkg/contracts/models"
)

func (s *Session) Snapshot() projection.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proj.Snapshot()
}

// CurrentUser retorna a identidade adotada no bootstrap
func (s *Session) CurrentUser() (models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userID == "" {
		return models.User{}, false
	}
	return s.proj.User(s.userID)
}

func (s *Session) Quote(gameID, condition string) pricing.Quote {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pricing.MarketProbability(s.proj.Bets(gameID), condition)
}

func (s *Session) Odds(gameID, condition string) pricing.OddsResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pricing.Odds(s.proj.Bets(gameID), condition)
}

// Conditions lista as condições apostadas na partida, na ordem em que apareceram
func (s *Session) Conditions(gameID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pricing.Conditions(s.proj.Bets(gameID))
}

func (s *Session) Markets(gameID string) []pricing.Market {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pricing.Markets(s.proj.Bets(gameID))
}

func (s *Session) History(gameID, condition string) []projection.Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proj.History(gameID, condition)
}
