package bus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/chess-market-poc/pkg/contracts/events"
	"github.com/radieske/chess-market-poc/pkg/contracts/models"
	"github.com/radieske/chess-market-poc/pkg/contracts/topics"
)

func recv(t *testing.T, sub Subscription) events.Envelope {
	t.Helper()
	select {
	case env, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return env
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
	return events.Envelope{}
}

func TestMemory_PublishReachesAllSubscribers(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	a, err := m.Subscribe(ctx, topics.Tournament)
	require.NoError(t, err)
	b, err := m.Subscribe(ctx, topics.Tournament)
	require.NoError(t, err)
	other, err := m.Subscribe(ctx, "other")
	require.NoError(t, err)

	game := models.Game{ID: "game_1", Player1: "Carlsen", Player2: "Nakamura"}
	require.NoError(t, m.Publish(ctx, topics.Tournament, topics.EventNewGame, events.NewGame{Game: game}))

	for _, sub := range []Subscription{a, b} {
		env := recv(t, sub)
		assert.Equal(t, topics.EventNewGame, env.Event)
		c, err := events.DecodeEnvelope(env)
		require.NoError(t, err)
		assert.Equal(t, "game_1", c.NewGame.Game.ID)
	}

	select {
	case <-other.Events():
		t.Fatal("other topic must not receive tournament events")
	default:
	}
}

func TestMemory_CloseUnsubscribes(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	sub, err := m.Subscribe(ctx, topics.Tournament)
	require.NoError(t, err)
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close()) // idempotente

	_, ok := <-sub.Events()
	assert.False(t, ok)

	require.NoError(t, m.Publish(ctx, topics.Tournament, topics.EventNewGame, events.NewGame{}))
	assert.Empty(t, m.subs)
}

func TestMemory_ContextCancelClosesSubscription(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := m.Subscribe(ctx, topics.Tournament)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-sub.Events():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed after cancel")
	}
}

func TestDecode_RejectsEnvelopeWithoutEvent(t *testing.T) {
	_, err := decode([]byte(`{"data":{}}`))
	assert.Error(t, err)

	_, err = decode([]byte(`nope`))
	assert.Error(t, err)

	env, err := decode([]byte(`{"event":"new-game","data":{"game":{}}}`))
	require.NoError(t, err)
	assert.Equal(t, "new-game", env.Event)
}

func TestMemory_PublishHonorsContextWhenSubscriberIsFull(t *testing.T) {
	m := NewMemory()
	sub, err := m.Subscribe(context.Background(), topics.Tournament)
	require.NoError(t, err)
	defer sub.Close()

	game := events.NewGame{Game: models.Game{ID: "g1", Player1: "A", Player2: "B"}}
	for i := 0; i < subscriptionBuffer; i++ {
		require.NoError(t, m.Publish(context.Background(), topics.Tournament, topics.EventNewGame, game))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = m.Publish(ctx, topics.Tournament, topics.EventNewGame, game)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	recv(t, sub)
	require.NoError(t, m.Publish(context.Background(), topics.Tournament, topics.EventNewGame, game))
	assert.Len(t, sub.Events(), subscriptionBuffer)
}
