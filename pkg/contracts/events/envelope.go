package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/radieske/chess-market-poc/pkg/contracts/topics"
)

var (
	ErrUnknownEvent = errors.New("unknown event")
	ErrMalformed    = errors.New("malformed event payload")
)

var validate = validator.New()

// Envelope é o formato trafegado no Change Bus e no WebSocket do gateway
type Envelope struct {
	Topic string          `json:"topic,omitempty"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Ts    time.Time       `json:"ts"`
}

// NewEnvelope serializa o payload de um evento
func NewEnvelope(topic, event string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return Envelope{Topic: topic, Event: event, Data: b, Ts: time.Now().UTC()}, nil
}

// Change é um evento já decodificado e validado; apenas um dos ponteiros é preenchido
type Change struct {
	Name           string
	NewGame        *NewGame
	NewBet         *NewBet
	UserUpdate     *UserUpdate
	PlatformUpdate *PlatformUpdate
}

// Decode interpreta o payload conforme o nome do evento e valida os campos obrigatórios.
// Payloads inválidos retornam erro envolvendo ErrMalformed e nunca devem ser aplicados.
func Decode(name string, data []byte) (Change, error) {
	c := Change{Name: name}
	var target any
	switch name {
	case topics.EventNewGame:
		c.NewGame = &NewGame{}
		target = c.NewGame
	case topics.EventNewBet:
		c.NewBet = &NewBet{}
		target = c.NewBet
	case topics.EventUserUpdate:
		c.UserUpdate = &UserUpdate{}
		target = c.UserUpdate
	case topics.EventPlatformUpdate:
		c.PlatformUpdate = &PlatformUpdate{}
		target = c.PlatformUpdate
	default:
		return Change{}, fmt.Errorf("%w: %q", ErrUnknownEvent, name)
	}

	if err := json.Unmarshal(data, target); err != nil {
		return Change{}, fmt.Errorf("%w: %s: %v", ErrMalformed, name, err)
	}
	if err := validate.Struct(target); err != nil {
		return Change{}, fmt.Errorf("%w: %s: %v", ErrMalformed, name, err)
	}

	// o id do envelope precisa bater com o registro
	if c.UserUpdate != nil && c.UserUpdate.UserID != c.UserUpdate.User.ID {
		return Change{}, fmt.Errorf("%w: user-update id mismatch", ErrMalformed)
	}
	if c.NewBet != nil {
		if c.NewBet.Bet.GameID != "" && c.NewBet.Bet.GameID != c.NewBet.GameID {
			return Change{}, fmt.Errorf("%w: new-bet game mismatch", ErrMalformed)
		}
		c.NewBet.Bet.GameID = c.NewBet.GameID
	}
	return c, nil
}

// DecodeEnvelope é um atalho para Decode(env.Event, env.Data)
func DecodeEnvelope(env Envelope) (Change, error) {
	return Decode(env.Event, env.Data)
}
