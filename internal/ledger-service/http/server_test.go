package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	httpapi "github.com/radieske/chess-market-poc/internal/ledger-service/http"
	"github.com/radieske/chess-market-poc/internal/ledger-service/repo"
	"github.com/radieske/chess-market-poc/internal/shared/bus"
	"github.com/radieske/chess-market-poc/pkg/contracts/events"
	"github.com/radieske/chess-market-poc/pkg/contracts/models"
	"github.com/radieske/chess-market-poc/pkg/contracts/topics"
)

// fakeRepo reproduz em memória as regras do repositório Postgres
type fakeRepo struct {
	mu       sync.Mutex
	users    []models.User
	games    []models.Game
	bets     []models.Bet
	platform models.PlatformAccount
}

func (f *fakeRepo) ListUsers(context.Context) ([]models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.User(nil), f.users...), nil
}

func (f *fakeRepo) findUser(id string) int {
	for i, u := range f.users {
		if u.ID == id {
			return i
		}
	}
	return -1
}

func (f *fakeRepo) UpsertUser(_ context.Context, u models.User, expected int64) (models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.findUser(u.ID)
	if i < 0 {
		u.Version = 1
		f.users = append(f.users, u)
		return u, nil
	}
	if expected > 0 && f.users[i].Version != expected {
		return models.User{}, repo.ErrVersionConflict
	}
	u.Version = f.users[i].Version + 1
	f.users[i] = u
	return u, nil
}

func (f *fakeRepo) UpdateUserBalance(_ context.Context, id string, balance float64, expected int64) (models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.findUser(id)
	if i < 0 {
		return models.User{}, repo.ErrNotFound
	}
	if expected > 0 && f.users[i].Version != expected {
		return models.User{}, repo.ErrVersionConflict
	}
	f.users[i].Balance = balance
	f.users[i].Version++
	return f.users[i], nil
}

func (f *fakeRepo) ListGames(context.Context) ([]models.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Game(nil), f.games...), nil
}

func (f *fakeRepo) InsertGame(_ context.Context, g models.Game) (models.Game, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.games {
		if existing.ID == g.ID {
			return existing, false, nil
		}
	}
	if g.Status == "" {
		g.Status = models.GameUpcoming
	}
	f.games = append(f.games, g)
	return g, true, nil
}

func (f *fakeRepo) ListBets(context.Context) ([]models.Bet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Bet(nil), f.bets...), nil
}

func (f *fakeRepo) ListBetsByGame(_ context.Context, gameID string) ([]models.Bet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Bet
	for _, b := range f.bets {
		if b.GameID == gameID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeRepo) InsertBet(_ context.Context, b models.Bet) (repo.BetResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.bets {
		if existing.ID == b.ID {
			return repo.BetResult{Bet: existing, User: f.users[f.findUser(existing.UserID)], Platform: f.platform}, nil
		}
	}
	known := false
	for _, g := range f.games {
		known = known || g.ID == b.GameID
	}
	if !known {
		return repo.BetResult{}, repo.ErrUnknownGame
	}
	i := f.findUser(b.UserID)
	if i < 0 {
		return repo.BetResult{}, repo.ErrUnknownUser
	}
	f.users[i].Balance -= b.ActualCost
	f.users[i].Version++
	f.bets = append(f.bets, b)
	f.platform.Balance += b.PlatformFee
	f.platform.TotalFees += b.PlatformFee
	f.platform.TransactionCount++
	f.platform.Version++
	return repo.BetResult{Bet: b, User: f.users[i], Platform: f.platform, Created: true}, nil
}

func (f *fakeRepo) GetPlatformAccount(context.Context) (models.PlatformAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.platform, nil
}

func (f *fakeRepo) SavePlatformAccount(_ context.Context, a models.PlatformAccount) (models.PlatformAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a.Version = f.platform.Version + 1
	f.platform = a
	return a, nil
}

func (f *fakeRepo) seed(users []models.User, games []models.Game, bets []models.Bet) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users, f.games, f.bets = users, games, bets
}

func (f *fakeRepo) state() ([]models.User, []models.Game, []models.Bet, models.PlatformAccount) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.User(nil), f.users...), append([]models.Game(nil), f.games...),
		append([]models.Bet(nil), f.bets...), f.platform
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string, string, any) error {
	return errors.New("bus down")
}

func newTestServer(t *testing.T, pub bus.Publisher) (*httptest.Server, *fakeRepo) {
	t.Helper()
	r := &fakeRepo{}
	srv := httpapi.NewServer(zap.NewNop(), r, pub, topics.Tournament, httpapi.NewMetrics())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts, r
}

func subscribe(t *testing.T, m *bus.Memory) bus.Subscription {
	t.Helper()
	sub, err := m.Subscribe(context.Background(), topics.Tournament)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })
	return sub
}

func nextChange(t *testing.T, sub bus.Subscription) events.Change {
	t.Helper()
	select {
	case env := <-sub.Events():
		c, err := events.DecodeEnvelope(env)
		require.NoError(t, err)
		return c
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
	return events.Change{}
}

func assertNoEvent(t *testing.T, sub bus.Subscription) {
	t.Helper()
	select {
	case env := <-sub.Events():
		t.Fatalf("unexpected event %s", env.Event)
	case <-time.After(50 * time.Millisecond):
	}
}

func do(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestCreateGame_RequiresPlayers(t *testing.T) {
	m := bus.NewMemory()
	ts, _ := newTestServer(t, m)
	sub := subscribe(t, m)

	resp := do(t, http.MethodPost, ts.URL+"/v1/games", map[string]any{
		"game": map[string]any{"id": "g1", "player1": "Magnus"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assertNoEvent(t, sub)
}

func TestCreateGame_PublishesNewGameAndIsIdempotent(t *testing.T) {
	m := bus.NewMemory()
	ts, r := newTestServer(t, m)
	sub := subscribe(t, m)

	body := map[string]any{"game": map[string]any{"id": "g1", "player1": "Magnus", "player2": "Hikaru"}}
	resp := do(t, http.MethodPost, ts.URL+"/v1/games", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	c := nextChange(t, sub)
	require.NotNil(t, c.NewGame)
	assert.Equal(t, "g1", c.NewGame.Game.ID)
	assert.Equal(t, models.GameUpcoming, c.NewGame.Game.Status)

	resp = do(t, http.MethodPost, ts.URL+"/v1/games", body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_, games, _, _ := r.state()
	assert.Len(t, games, 1)
}

func TestPlaceBet_DebitsAccruesAndPublishes(t *testing.T) {
	m := bus.NewMemory()
	ts, r := newTestServer(t, m)
	r.seed(
		[]models.User{{ID: "u1", Name: "Ana", Balance: 1000, Version: 1}},
		[]models.Game{{ID: "g1", Player1: "A", Player2: "B"}},
		[]models.Bet{{ID: "b0", GameID: "g1", UserID: "u1", Amount: 100, Condition: "White wins", Certainty: 70}},
	)
	sub := subscribe(t, m)

	clientProb := 99.0
	resp := do(t, http.MethodPost, ts.URL+"/v1/bets", map[string]any{
		"gameId": "g1",
		"bet": models.Bet{
			ID: "b1", UserID: "u1", Amount: 50, Condition: " white WINS ", Certainty: 40,
			ActualCost: 50, PlatformFee: 1, NetCost: 49,
		},
		"marketProbability": clientProb,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	c := nextChange(t, sub)
	require.NotNil(t, c.NewBet)
	assert.Equal(t, "b1", c.NewBet.Bet.ID)
	assert.Equal(t, "g1", c.NewBet.Bet.GameID)
	// (100×70 + 50×40) / 150, calculado no servidor
	assert.InDelta(t, 60.0, c.NewBet.Probability(), 1e-9)

	c = nextChange(t, sub)
	require.NotNil(t, c.UserUpdate)
	assert.Equal(t, 950.0, c.UserUpdate.User.Balance)
	assert.Equal(t, int64(2), c.UserUpdate.User.Version)

	c = nextChange(t, sub)
	require.NotNil(t, c.PlatformUpdate)
	assert.Equal(t, 1.0, c.PlatformUpdate.PlatformAccount.TotalFees)
	assert.Equal(t, int64(1), c.PlatformUpdate.PlatformAccount.TransactionCount)
}

func TestPlaceBet_ReplayDoesNotAccrueTwice(t *testing.T) {
	m := bus.NewMemory()
	ts, r := newTestServer(t, m)
	r.seed([]models.User{{ID: "u1", Balance: 1000, Version: 1}}, []models.Game{{ID: "g1", Player1: "A", Player2: "B"}}, nil)

	body := map[string]any{
		"gameId": "g1",
		"bet":    models.Bet{ID: "b1", UserID: "u1", Amount: 10, Condition: "draw", Certainty: 50, ActualCost: 10, PlatformFee: 0.2},
	}
	require.Equal(t, http.StatusCreated, do(t, http.MethodPost, ts.URL+"/v1/bets", body).StatusCode)

	sub := subscribe(t, m)
	require.Equal(t, http.StatusOK, do(t, http.MethodPost, ts.URL+"/v1/bets", body).StatusCode)

	c := nextChange(t, sub)
	require.NotNil(t, c.NewBet)
	assertNoEvent(t, sub)
	users, _, _, platform := r.state()
	assert.Equal(t, int64(1), platform.TransactionCount)
	assert.Equal(t, 990.0, users[0].Balance)
}

func TestPlaceBet_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		body   map[string]any
		status int
	}{
		{"amount zero", map[string]any{"gameId": "g1", "bet": models.Bet{ID: "b1", UserID: "u1", Condition: "x", Certainty: 10}}, http.StatusBadRequest},
		{"certainty above 100", map[string]any{"gameId": "g1", "bet": models.Bet{ID: "b1", UserID: "u1", Amount: 1, Condition: "x", Certainty: 101}}, http.StatusBadRequest},
		{"game mismatch", map[string]any{"gameId": "g1", "bet": models.Bet{ID: "b1", GameID: "g2", UserID: "u1", Amount: 1, Condition: "x"}}, http.StatusBadRequest},
		{"unknown game", map[string]any{"gameId": "nope", "bet": models.Bet{ID: "b1", UserID: "u1", Amount: 1, Condition: "x"}}, http.StatusUnprocessableEntity},
		{"unknown user", map[string]any{"gameId": "g1", "bet": models.Bet{ID: "b1", UserID: "ghost", Amount: 1, Condition: "x"}}, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts, r := newTestServer(t, bus.NewMemory())
			r.seed([]models.User{{ID: "u1", Version: 1}}, []models.Game{{ID: "g1", Player1: "A", Player2: "B"}}, nil)
			resp := do(t, http.MethodPost, ts.URL+"/v1/bets", tc.body)
			assert.Equal(t, tc.status, resp.StatusCode)
			_, _, bets, _ := r.state()
			assert.Empty(t, bets)
		})
	}
}

func TestUpdateUser_VersionConflict(t *testing.T) {
	m := bus.NewMemory()
	ts, r := newTestServer(t, m)
	r.seed([]models.User{{ID: "u1", Balance: 1000, Version: 3}}, nil, nil)
	sub := subscribe(t, m)

	resp := do(t, http.MethodPut, ts.URL+"/v1/users", map[string]any{
		"userId": "u1", "updates": map[string]any{"balance": 10}, "expectedVersion": 2,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assertNoEvent(t, sub)

	resp = do(t, http.MethodPut, ts.URL+"/v1/users", map[string]any{
		"userId": "u1", "updates": map[string]any{"balance": 10}, "expectedVersion": 3,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	c := nextChange(t, sub)
	require.NotNil(t, c.UserUpdate)
	assert.Equal(t, 10.0, c.UserUpdate.User.Balance)
	assert.Equal(t, int64(4), c.UserUpdate.User.Version)
}

func TestUpdateUser_UnknownIs404(t *testing.T) {
	ts, _ := newTestServer(t, bus.NewMemory())
	resp := do(t, http.MethodPut, ts.URL+"/v1/users", map[string]any{
		"userId": "ghost", "updates": map[string]any{"balance": 1},
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListUsers_KeyedByID(t *testing.T) {
	ts, r := newTestServer(t, bus.NewMemory())
	r.seed([]models.User{{ID: "u1", Name: "Ana"}, {ID: "u2", Name: "Bia"}}, nil, nil)

	resp := do(t, http.MethodGet, ts.URL+"/v1/users", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out map[string]models.User
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "Bia", out["u2"].Name)
	assert.Len(t, out, 2)
}

func TestListMarkets(t *testing.T) {
	ts, r := newTestServer(t, bus.NewMemory())
	r.seed(nil, nil, []models.Bet{
		{ID: "b1", GameID: "g1", Amount: 100, Condition: "White wins", Certainty: 70},
		{ID: "b2", GameID: "g1", Amount: 50, Condition: "white wins ", Certainty: 40},
		{ID: "b3", GameID: "g2", Amount: 10, Condition: "draw", Certainty: 10},
	})

	resp := do(t, http.MethodGet, ts.URL+"/v1/games/g1/markets", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out, 1)
	assert.Equal(t, "white wins", out[0]["key"])
	assert.Equal(t, 60.0, out[0]["probability"])
	assert.Equal(t, "1.67:1", out[0]["odds"])
	assert.Equal(t, 2.0, out[0]["betCount"])
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	ts, r := newTestServer(t, failingPublisher{})
	resp := do(t, http.MethodPost, ts.URL+"/v1/users", map[string]any{
		"user": models.User{ID: "u1", Name: "Ana", Balance: 1000},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	users, _, _, _ := r.state()
	require.Len(t, users, 1)
	assert.Equal(t, int64(1), users[0].Version)
}

func TestSavePlatform(t *testing.T) {
	m := bus.NewMemory()
	ts, _ := newTestServer(t, m)
	sub := subscribe(t, m)

	resp := do(t, http.MethodPost, ts.URL+"/v1/platform", map[string]any{
		"platformAccount": models.PlatformAccount{Balance: 5, TotalFees: 5, TransactionCount: 2},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	c := nextChange(t, sub)
	require.NotNil(t, c.PlatformUpdate)
	assert.Equal(t, int64(1), c.PlatformUpdate.PlatformAccount.Version)

	resp = do(t, http.MethodPost, ts.URL+"/v1/platform", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateGame_StripsMarkup(t *testing.T) {
	ts, r := newTestServer(t, bus.NewMemory())

	resp := do(t, http.MethodPost, ts.URL+"/v1/games", map[string]any{
		"game": map[string]any{"id": "g1", "player1": "<b>Magnus</b>", "player2": "Hikaru & co"},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	_, games, _, _ := r.state()
	require.Len(t, games, 1)
	assert.Equal(t, "Magnus", games[0].Player1)
	assert.Equal(t, "Hikaru & co", games[0].Player2)

	resp = do(t, http.MethodPost, ts.URL+"/v1/games", map[string]any{
		"game": map[string]any{"id": "g2", "player1": "<script></script>", "player2": "x"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListUsers_CreationOrder(t *testing.T) {
	ts, r := newTestServer(t, bus.NewMemory())
	r.seed([]models.User{{ID: "zeta"}, {ID: "alpha"}}, nil, nil)

	resp := do(t, http.MethodGet, ts.URL+"/v1/users?order=created", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out []models.User
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out, 2)
	assert.Equal(t, "zeta", out[0].ID)
}
