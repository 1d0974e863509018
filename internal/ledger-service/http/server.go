package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/radieske/chess-market-poc/internal/ledger-service/dto"
	"github.com/radieske/chess-market-poc/internal/ledger-service/repo"
	"github.com/radieske/chess-market-poc/internal/shared/bus"
	"github.com/radieske/chess-market-poc/internal/shared/pricing"
	"github.com/radieske/chess-market-poc/pkg/contracts/events"
	"github.com/radieske/chess-market-poc/pkg/contracts/models"
	"github.com/radieske/chess-market-poc/pkg/contracts/topics"
)

const publishTimeout = 2 * time.Second

// Repo define as operações do Ledger Store usadas pela API
type Repo interface {
	ListUsers(ctx context.Context) ([]models.User, error)
	UpsertUser(ctx context.Context, u models.User, expectedVersion int64) (models.User, error)
	UpdateUserBalance(ctx context.Context, userID string, balance float64, expectedVersion int64) (models.User, error)
	ListGames(ctx context.Context) ([]models.Game, error)
	InsertGame(ctx context.Context, g models.Game) (models.Game, bool, error)
	ListBets(ctx context.Context) ([]models.Bet, error)
	ListBetsByGame(ctx context.Context, gameID string) ([]models.Bet, error)
	InsertBet(ctx context.Context, b models.Bet) (repo.BetResult, error)
	GetPlatformAccount(ctx context.Context) (models.PlatformAccount, error)
	SavePlatformAccount(ctx context.Context, a models.PlatformAccount) (models.PlatformAccount, error)
}

// Server expõe o Ledger Store via REST e publica uma mudança no Change Bus
// depois de cada escrita bem-sucedida
type Server struct {
	log      *zap.Logger
	repo     Repo
	pub      bus.Publisher
	topic    string
	metrics  *Metrics
	validate *validator.Validate
	policy   *bluemonday.Policy
}

func NewServer(log *zap.Logger, r Repo, pub bus.Publisher, topic string, m *Metrics) *Server {
	if topic == "" {
		topic = topics.Tournament
	}
	if m == nil {
		m = NewMetrics()
	}
	return &Server{log: log, repo: r, pub: pub, topic: topic, metrics: m, validate: validator.New(), policy: bluemonday.StrictPolicy()}
}

// Router retorna o roteador HTTP com os endpoints REST
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)

	r.Get("/v1/users", s.listUsers)   // mapa id -> usuário; ?order=created devolve lista
	r.Post("/v1/users", s.saveUser)   // upsert
	r.Put("/v1/users", s.updateUser)  // {userId, updates:{balance}}
	r.Get("/v1/games", s.listGames)   // mais recentes primeiro
	r.Post("/v1/games", s.createGame) // idempotente por id
	r.Get("/v1/games/{id}/markets", s.listMarkets)
	r.Get("/v1/bets", s.listBets)  // mapa gameId -> apostas
	r.Post("/v1/bets", s.placeBet) // grava, debita e acumula taxa
	r.Get("/v1/platform", s.getPlatform)
	r.Post("/v1/platform", s.savePlatform)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(r)
}

// writeJSON serializa a resposta em JSON e define o status HTTP
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, collection string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, repo.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, repo.ErrVersionConflict):
		status = http.StatusConflict
	case errors.Is(err, repo.ErrUnknownGame), errors.Is(err, repo.ErrUnknownUser):
		status = http.StatusUnprocessableEntity
	default:
		s.log.Error("ledger write failed", zap.String("collection", collection), zap.Error(err))
	}
	s.metrics.Writes.WithLabelValues(collection, "error").Inc()
	writeJSON(w, status, dto.ErrorResponse{Error: err.Error()})
}

// decode lê o corpo JSON e aplica as tags de validação
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "bad json"})
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: fmt.Sprintf("invalid payload: %v", err)})
		return false
	}
	return true
}

// clean remove marcação dos textos livres (nomes, jogadores, condição)
func (s *Server) clean(v string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(v)))
}

// publish nunca falha a requisição: a escrita já foi feita
func (s *Server) publish(ctx context.Context, event string, payload any) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.pub.Publish(ctx, s.topic, event, payload); err != nil {
		s.metrics.PublishErrors.WithLabelValues(event).Inc()
		s.log.Warn("publish failed", zap.String("event", event), zap.Error(err))
		return
	}
	s.metrics.Published.WithLabelValues(event).Inc()
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := dto.HealthResponse{Status: "ok", Database: "ok", Bus: "ok", Timestamp: time.Now().UTC().Format(time.RFC3339)}
	status := http.StatusOK
	if users, err := s.repo.ListUsers(r.Context()); err != nil {
		resp.Status, resp.Database, status = "degraded", err.Error(), http.StatusServiceUnavailable
	} else {
		resp.UsersCount = len(users)
	}
	if p, ok := s.pub.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(r.Context()); err != nil {
			resp.Status, resp.Bus, status = "degraded", err.Error(), http.StatusServiceUnavailable
		}
	}
	writeJSON(w, status, resp)
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.repo.ListUsers(r.Context())
	if err != nil {
		s.writeError(w, "users", err)
		return
	}
	// o mapa não preserva ordem; quem precisa do "primeiro usuário" pede a lista
	if r.URL.Query().Get("order") == "created" {
		if users == nil {
			users = []models.User{}
		}
		writeJSON(w, http.StatusOK, users)
		return
	}
	out := make(map[string]models.User, len(users))
	for _, u := range users {
		out[u.ID] = u
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) saveUser(w http.ResponseWriter, r *http.Request) {
	var req dto.SaveUserRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.User.Name = s.clean(req.User.Name)
	u, err := s.repo.UpsertUser(r.Context(), req.User, req.ExpectedVersion)
	if err != nil {
		s.writeError(w, "users", err)
		return
	}
	s.metrics.Writes.WithLabelValues("users", "ok").Inc()
	s.publish(r.Context(), topics.EventUserUpdate, events.UserUpdate{UserID: u.ID, User: u})
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	var req dto.UpdateUserRequest
	if !s.decode(w, r, &req) {
		return
	}
	u, err := s.repo.UpdateUserBalance(r.Context(), req.UserID, *req.Updates.Balance, req.ExpectedVersion)
	if err != nil {
		s.writeError(w, "users", err)
		return
	}
	s.metrics.Writes.WithLabelValues("users", "ok").Inc()
	s.publish(r.Context(), topics.EventUserUpdate, events.UserUpdate{UserID: u.ID, User: u})
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) listGames(w http.ResponseWriter, r *http.Request) {
	games, err := s.repo.ListGames(r.Context())
	if err != nil {
		s.writeError(w, "games", err)
		return
	}
	if games == nil {
		games = []models.Game{}
	}
	writeJSON(w, http.StatusOK, games)
}

func (s *Server) createGame(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateGameRequest
	if !s.decode(w, r, &req) {
		return
	}
	req.Game.Player1, req.Game.Player2 = s.clean(req.Game.Player1), s.clean(req.Game.Player2)
	if req.Game.Player1 == "" || req.Game.Player2 == "" {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "invalid payload: players required"})
		return
	}
	g, created, err := s.repo.InsertGame(r.Context(), req.Game)
	if err != nil {
		s.writeError(w, "games", err)
		return
	}
	s.metrics.Writes.WithLabelValues("games", "ok").Inc()
	// replay também republica: o cliente deduplica por id
	s.publish(r.Context(), topics.EventNewGame, events.NewGame{Game: g})
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, g)
}

func (s *Server) listBets(w http.ResponseWriter, r *http.Request) {
	bets, err := s.repo.ListBets(r.Context())
	if err != nil {
		s.writeError(w, "bets", err)
		return
	}
	out := make(map[string][]models.Bet)
	for _, b := range bets {
		out[b.GameID] = append(out[b.GameID], b)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listMarkets(w http.ResponseWriter, r *http.Request) {
	bets, err := s.repo.ListBetsByGame(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, "bets", err)
		return
	}
	markets := pricing.Markets(bets)
	out := make([]dto.MarketResponse, 0, len(markets))
	for _, m := range markets {
		out = append(out, dto.NewMarketResponse(m))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) placeBet(w http.ResponseWriter, r *http.Request) {
	var req dto.PlaceBetRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Bet.GameID != "" && req.Bet.GameID != req.GameID {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "bet.gameId does not match gameId"})
		return
	}
	req.Bet.GameID = req.GameID
	req.Bet.UserName = s.clean(req.Bet.UserName)
	if req.Bet.Condition = s.clean(req.Bet.Condition); req.Bet.Condition == "" {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "invalid payload: condition required"})
		return
	}

	res, err := s.repo.InsertBet(r.Context(), req.Bet)
	if err != nil {
		s.writeError(w, "bets", err)
		return
	}
	s.metrics.Writes.WithLabelValues("bets", "ok").Inc()

	// Probabilidade autoritativa: recalculada com a aposta já gravada
	prob := req.MarketProbability
	if bets, err := s.repo.ListBetsByGame(r.Context(), req.GameID); err != nil {
		s.log.Warn("market probability fallback", zap.String("gameId", req.GameID), zap.Error(err))
	} else {
		p := pricing.MarketProbability(bets, res.Bet.Condition).Probability
		prob = &p
	}

	s.publish(r.Context(), topics.EventNewBet, events.NewBet{GameID: req.GameID, Bet: res.Bet, MarketProbability: prob})
	if res.Created {
		s.publish(r.Context(), topics.EventUserUpdate, events.UserUpdate{UserID: res.User.ID, User: res.User})
		platform := res.Platform
		s.publish(r.Context(), topics.EventPlatformUpdate, events.PlatformUpdate{PlatformAccount: &platform})
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, dto.PlaceBetResponse{
		Bet:               res.Bet,
		User:              res.User,
		PlatformAccount:   res.Platform,
		MarketProbability: prob,
	})
}

func (s *Server) getPlatform(w http.ResponseWriter, r *http.Request) {
	a, err := s.repo.GetPlatformAccount(r.Context())
	if err != nil {
		s.writeError(w, "platform", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) savePlatform(w http.ResponseWriter, r *http.Request) {
	var req dto.SavePlatformRequest
	if !s.decode(w, r, &req) {
		return
	}
	a, err := s.repo.SavePlatformAccount(r.Context(), *req.PlatformAccount)
	if err != nil {
		s.writeError(w, "platform", err)
		return
	}
	s.metrics.Writes.WithLabelValues("platform", "ok").Inc()
	s.publish(r.Context(), topics.EventPlatformUpdate, events.PlatformUpdate{PlatformAccount: &a})
	writeJSON(w, http.StatusOK, a)
}
