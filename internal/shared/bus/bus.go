// Package bus implementa o Change Bus: publish/subscribe por tópico com entrega
// at-least-once e sem garantia de ordem entre eventos.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/radieske/chess-market-poc/internal/shared/config"
	"github.com/radieske/chess-market-poc/pkg/contracts/events"
)

const subscriptionBuffer = 64

var errSubscriptionClosed = errors.New("subscription closed")

type Publisher interface {
	Publish(ctx context.Context, topic, event string, payload any) error
}

// Subscription entrega os envelopes recebidos; Close cancela a assinatura (unsubscribe)
type Subscription interface {
	Events() <-chan events.Envelope
	Close() error
}

type Subscriber interface {
	Subscribe(ctx context.Context, topic string) (Subscription, error)
}

type Bus interface {
	Publisher
	Subscriber
	Ping(ctx context.Context) error
	Close() error
}

// New cria o backend configurado em cfg.BusBackend
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (Bus, error) {
	switch cfg.BusBackend {
	case "redis", "":
		return NewRedis(ctx, cfg.RedisAddr, log)
	case "kafka":
		return NewKafka(cfg.KafkaBrokers, log), nil
	case "nats":
		return NewNATS(cfg.NatsURL, cfg.ServiceName, log)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown bus backend %q", cfg.BusBackend)
	}
}

func encode(topic, event string, payload any) ([]byte, error) {
	env, err := events.NewEnvelope(topic, event, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

func decode(b []byte) (events.Envelope, error) {
	var env events.Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return events.Envelope{}, err
	}
	if env.Event == "" {
		return events.Envelope{}, fmt.Errorf("envelope without event name")
	}
	return env, nil
}

// subscription é a base comum dos backends: um canal de saída
// que só é fechado depois que nenhum produtor pode mais escrever nele
type subscription struct {
	out     chan events.Envelope
	done    chan struct{}
	closeFn func() error

	once   sync.Once
	err    error
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

func newSubscription(closeFn func() error) *subscription {
	return &subscription{
		out:     make(chan events.Envelope, subscriptionBuffer),
		done:    make(chan struct{}),
		closeFn: closeFn,
	}
}

// watch fecha a assinatura quando ctx termina; chamar só depois do setup
func (s *subscription) watch(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()
}

func (s *subscription) Events() <-chan events.Envelope { return s.out }

// deliver bloqueia até haver espaço no buffer ou a assinatura fechar
func (s *subscription) deliver(env events.Envelope) bool {
	return s.deliverCtx(context.Background(), env) == nil
}

// deliverCtx é o deliver com prazo; devolve ctx.Err() se o buffer não
// esvaziar a tempo e errSubscriptionClosed se a assinatura fechar
func (s *subscription) deliverCtx(ctx context.Context, env events.Envelope) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errSubscriptionClosed
	}
	select {
	case s.out <- env:
		return nil
	case <-s.done:
		return errSubscriptionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		if s.closeFn != nil {
			s.err = s.closeFn()
		}
		s.wg.Wait()

		s.mu.Lock()
		s.closed = true
		close(s.out)
		s.mu.Unlock()
	})
	return s.err
}
