package wsclient_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/chess-market-poc/internal/market-client/wsclient"
	"github.com/radieske/chess-market-poc/internal/shared/bus"
	"github.com/radieske/chess-market-poc/internal/ws-gateway/ws"
	"github.com/radieske/chess-market-poc/pkg/contracts/events"
	"github.com/radieske/chess-market-poc/pkg/contracts/models"
	"github.com/radieske/chess-market-poc/pkg/contracts/topics"
)

func wsURL(srv *httptest.Server) string { return "ws" + strings.TrimPrefix(srv.URL, "http") }

func receive(t *testing.T, sub bus.Subscription) events.Envelope {
	t.Helper()
	select {
	case env, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("no envelope received")
	}
	return events.Envelope{}
}

func TestSubscriber_ThroughGateway(t *testing.T) {
	hub := ws.NewHub(zap.NewNop(), ws.NewMetrics(), func(*http.Request) bool { return true })
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	m := bus.NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, ws.StartBusPump(ctx, m, topics.Tournament, hub, zap.NewNop()))

	sub, err := wsclient.New(wsURL(srv), zap.NewNop()).Subscribe(ctx, topics.Tournament)
	require.NoError(t, err)
	defer sub.Close()

	require.Eventually(t, func() bool { return hub.Subscribers(topics.Tournament) == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, m.Publish(ctx, topics.Tournament, topics.EventNewGame, events.NewGame{Game: models.Game{ID: "g1", Player1: "A", Player2: "B"}}))

	env := receive(t, sub)
	c, err := events.DecodeEnvelope(env)
	require.NoError(t, err)
	assert.Equal(t, "g1", c.NewGame.Game.ID)
}

func TestSubscriber_ReconnectsAndResubscribes(t *testing.T) {
	var conns atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var msg ws.ClientMsg
		if err := conn.ReadJSON(&msg); err != nil || msg.Type != ws.MsgSubscribe {
			return
		}
		if conns.Add(1) == 1 {
			return // derruba a primeira conexão
		}
		_ = conn.WriteJSON(ws.ControlMsg{Type: ws.MsgSubscribed, Topic: msg.Topic})
		env, _ := events.NewEnvelope(msg.Topic, topics.EventPlatformUpdate, events.PlatformUpdate{PlatformAccount: &models.PlatformAccount{Version: 1}})
		_ = conn.WriteJSON(env)
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	s := wsclient.New(wsURL(srv), zap.NewNop())
	s.MinBackoff = 10 * time.Millisecond
	sub, err := s.Subscribe(context.Background(), topics.Tournament)
	require.NoError(t, err)

	env := receive(t, sub)
	assert.Equal(t, topics.EventPlatformUpdate, env.Event)
	assert.GreaterOrEqual(t, conns.Load(), int32(2))

	require.NoError(t, sub.Close())
	_, ok := <-sub.Events()
	assert.False(t, ok)
}

func TestSubscriber_FirstDialFails(t *testing.T) {
	_, err := wsclient.New("ws://127.0.0.1:1/ws", zap.NewNop()).Subscribe(context.Background(), topics.Tournament)
	assert.Error(t, err)
}
