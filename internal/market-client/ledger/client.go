package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/radieske/chess-market-poc/internal/ledger-service/dto"
	"github.com/radieske/chess-market-poc/pkg/contracts/models"
)

var (
	ErrNotFound        = errors.New("ledger: not found")
	ErrVersionConflict = errors.New("ledger: version conflict")
	ErrRejected        = errors.New("ledger: request rejected")
)

// Client fala com a API REST do ledger-service
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func New(base string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(base, "/"),
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		var e dto.ErrorResponse
		_ = json.NewDecoder(res.Body).Decode(&e)
		switch res.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s %s: %s", ErrNotFound, method, path, e.Error)
		case http.StatusConflict:
			return fmt.Errorf("%w: %s %s: %s", ErrVersionConflict, method, path, e.Error)
		case http.StatusBadRequest, http.StatusUnprocessableEntity:
			return fmt.Errorf("%w: %s %s: %s", ErrRejected, method, path, e.Error)
		default:
			return fmt.Errorf("ledger %s %s http %d: %s", method, path, res.StatusCode, e.Error)
		}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}

// ListUsers retorna os usuários em ordem de criação
func (c *Client) ListUsers(ctx context.Context) ([]models.User, error) {
	var out []models.User
	err := c.do(ctx, http.MethodGet, "/v1/users?order=created", nil, &out)
	return out, err
}

func (c *Client) ListGames(ctx context.Context) ([]models.Game, error) {
	var out []models.Game
	err := c.do(ctx, http.MethodGet, "/v1/games", nil, &out)
	return out, err
}

// ListBets retorna as apostas agrupadas por partida
func (c *Client) ListBets(ctx context.Context) (map[string][]models.Bet, error) {
	out := make(map[string][]models.Bet)
	err := c.do(ctx, http.MethodGet, "/v1/bets", nil, &out)
	return out, err
}

func (c *Client) GetPlatformAccount(ctx context.Context) (models.PlatformAccount, error) {
	var out models.PlatformAccount
	err := c.do(ctx, http.MethodGet, "/v1/platform", nil, &out)
	return out, err
}

func (c *Client) SaveUser(ctx context.Context, u models.User, expectedVersion int64) (models.User, error) {
	var out models.User
	err := c.do(ctx, http.MethodPost, "/v1/users", dto.SaveUserRequest{User: u, ExpectedVersion: expectedVersion}, &out)
	return out, err
}

func (c *Client) UpdateUserBalance(ctx context.Context, userID string, balance float64, expectedVersion int64) (models.User, error) {
	var out models.User
	req := dto.UpdateUserRequest{UserID: userID, Updates: dto.UserUpdates{Balance: &balance}, ExpectedVersion: expectedVersion}
	err := c.do(ctx, http.MethodPut, "/v1/users", req, &out)
	return out, err
}

func (c *Client) SaveGame(ctx context.Context, g models.Game) (models.Game, error) {
	var out models.Game
	err := c.do(ctx, http.MethodPost, "/v1/games", dto.CreateGameRequest{Game: g}, &out)
	return out, err
}

func (c *Client) SaveBet(ctx context.Context, gameID string, b models.Bet, marketProbability float64) (dto.PlaceBetResponse, error) {
	var out dto.PlaceBetResponse
	req := dto.PlaceBetRequest{GameID: gameID, Bet: b, MarketProbability: &marketProbability}
	err := c.do(ctx, http.MethodPost, "/v1/bets", req, &out)
	return out, err
}

func (c *Client) SavePlatformAccount(ctx context.Context, a models.PlatformAccount) (models.PlatformAccount, error) {
	var out models.PlatformAccount
	err := c.do(ctx, http.MethodPost, "/v1/platform", dto.SavePlatformRequest{PlatformAccount: &a}, &out)
	return out, err
}

// Markets consulta os mercados precificados de uma partida
func (c *Client) Markets(ctx context.Context, gameID string) ([]dto.MarketResponse, error) {
	var out []dto.MarketResponse
	err := c.do(ctx, http.MethodGet, "/v1/games/"+gameID+"/markets", nil, &out)
	return out, err
}
