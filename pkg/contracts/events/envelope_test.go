package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/chess-market-poc/pkg/contracts/models"
	"github.com/radieske/chess-market-poc/pkg/contracts/topics"
)

func TestDecode_NewBet(t *testing.T) {
	data := []byte(`{"gameId":"game_1","bet":{"id":"bet_1","userId":"user_1","userName":"Spore Morel Weaver","amount":100,"condition":"Checkmate","certainty":70},"marketProbability":70}`)

	c, err := Decode(topics.EventNewBet, data)
	require.NoError(t, err)
	require.NotNil(t, c.NewBet)
	assert.Equal(t, "game_1", c.NewBet.Bet.GameID)
	assert.Equal(t, 70.0, c.NewBet.Probability())
}

func TestDecode_NewBetDefaultsProbability(t *testing.T) {
	data := []byte(`{"gameId":"game_1","bet":{"id":"bet_1","userId":"user_1","amount":10,"condition":"draw","certainty":20}}`)

	c, err := Decode(topics.EventNewBet, data)
	require.NoError(t, err)
	assert.Equal(t, NeutralProbability, c.NewBet.Probability())
}

func TestDecode_RejectsMalformed(t *testing.T) {
	tests := []struct {
		name  string
		event string
		data  string
	}{
		{"game without id", topics.EventNewGame, `{"game":{"player1":"a","player2":"b"}}`},
		{"game without players", topics.EventNewGame, `{"game":{"id":"g"}}`},
		{"bet without id", topics.EventNewBet, `{"gameId":"g","bet":{"userId":"u","amount":1,"condition":"x","certainty":1}}`},
		{"bet zero amount", topics.EventNewBet, `{"gameId":"g","bet":{"id":"b","userId":"u","amount":0,"condition":"x","certainty":1}}`},
		{"bet certainty out of range", topics.EventNewBet, `{"gameId":"g","bet":{"id":"b","userId":"u","amount":1,"condition":"x","certainty":101}}`},
		{"bet without game", topics.EventNewBet, `{"bet":{"id":"b","userId":"u","amount":1,"condition":"x","certainty":1}}`},
		{"bet game mismatch", topics.EventNewBet, `{"gameId":"g","bet":{"id":"b","gameId":"h","userId":"u","amount":1,"condition":"x","certainty":1}}`},
		{"user id mismatch", topics.EventUserUpdate, `{"userId":"u1","user":{"id":"u2"}}`},
		{"user missing id", topics.EventUserUpdate, `{"userId":"u1","user":{}}`},
		{"platform missing", topics.EventPlatformUpdate, `{}`},
		{"not json", topics.EventNewGame, `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.event, []byte(tt.data))
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestDecode_UnknownEvent(t *testing.T) {
	_, err := Decode("game-over", []byte(`{}`))
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestNewEnvelope_RoundTrip(t *testing.T) {
	env, err := NewEnvelope(topics.Tournament, topics.EventPlatformUpdate, PlatformUpdate{
		PlatformAccount: &models.PlatformAccount{Balance: 4, TotalFees: 4, TransactionCount: 2, Version: 3},
	})
	require.NoError(t, err)
	assert.Equal(t, topics.Tournament, env.Topic)
	assert.False(t, env.Ts.IsZero())

	c, err := DecodeEnvelope(env)
	require.NoError(t, err)
	assert.Equal(t, int64(3), c.PlatformUpdate.PlatformAccount.Version)
}
