// Package wsclient assina tópicos do Change Bus através do ws-gateway,
// para clientes que não falam direto com Redis/Kafka/NATS.
package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/radieske/chess-market-poc/internal/shared/bus"
	"github.com/radieske/chess-market-poc/internal/ws-gateway/ws"
	"github.com/radieske/chess-market-poc/pkg/contracts/events"
)

const (
	defaultMinBackoff = 500 * time.Millisecond
	defaultMaxBackoff = 10 * time.Second
	bufferSize        = 64
)

// Subscriber implementa bus.Subscriber sobre o WebSocket do gateway.
// Em caso de queda, reconecta com backoff exponencial e assina de novo.
type Subscriber struct {
	URL        string
	Log        *zap.Logger
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

var _ bus.Subscriber = (*Subscriber)(nil)

func New(url string, log *zap.Logger) *Subscriber {
	return &Subscriber{URL: url, Log: log, MinBackoff: defaultMinBackoff, MaxBackoff: defaultMaxBackoff}
}

// frame é o que chega do gateway: um envelope ou uma mensagem de controle (type)
type frame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
	events.Envelope
}

type subscription struct {
	out    chan events.Envelope
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (s *subscription) Events() <-chan events.Envelope { return s.out }

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}

// Subscribe conecta e assina o tópico. A primeira conexão é síncrona:
// se falhar, o erro volta para o chamador.
func (c *Subscriber) Subscribe(ctx context.Context, topic string) (bus.Subscription, error) {
	conn, err := c.dial(ctx, topic)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &subscription{out: make(chan events.Envelope, bufferSize), cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		defer close(sub.out)
		c.loop(ctx, topic, conn, sub.out)
	}()
	return sub, nil
}

func (c *Subscriber) dial(ctx context.Context, topic string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial gateway: %w", err)
	}
	if err := conn.WriteJSON(ws.ClientMsg{Type: ws.MsgSubscribe, Topic: topic}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}
	c.Log.Info("connected to gateway", zap.String("url", c.URL), zap.String("topic", topic))
	return conn, nil
}

// loop escuta a conexão atual e reconecta até ctx terminar
func (c *Subscriber) loop(ctx context.Context, topic string, conn *websocket.Conn, out chan<- events.Envelope) {
	backoff := c.MinBackoff
	for {
		if conn != nil {
			err := c.listen(ctx, conn, out)
			if ctx.Err() != nil {
				return
			}
			c.Log.Warn("gateway connection closed", zap.Error(err))
			backoff = c.MinBackoff
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}

		var err error
		if conn, err = c.dial(ctx, topic); err != nil {
			c.Log.Warn("reconnect failed", zap.Error(err), zap.Duration("backoff", backoff))
			backoff = min(backoff*2, c.MaxBackoff)
		}
	}
}

func (c *Subscriber) listen(ctx context.Context, conn *websocket.Conn, out chan<- events.Envelope) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		_ = conn.Close()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		var f frame
		if err := json.Unmarshal(message, &f); err != nil {
			c.Log.Warn("invalid message", zap.Error(err))
			continue
		}
		if f.Type != "" {
			if f.Error != "" {
				c.Log.Warn("gateway error", zap.String("error", f.Error))
			} else {
				c.Log.Debug("gateway control", zap.String("type", f.Type))
			}
			continue
		}
		if f.Event == "" {
			continue
		}
		select {
		case out <- f.Envelope:
		case <-ctx.Done():
			return nil
		}
	}
}
