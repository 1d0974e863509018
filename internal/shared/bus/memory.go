package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/radieske/chess-market-poc/pkg/contracts/events"
)

// Memory é um bus em processo, usado em testes e em execuções locais
// com um único processo. Cada Publish passa pelo mesmo envelope JSON dos
// outros backends.
type Memory struct {
	mu   sync.RWMutex
	subs map[string]map[*subscription]struct{}
}

func NewMemory() *Memory {
	return &Memory{subs: make(map[string]map[*subscription]struct{})}
}

// Publish entrega a cada assinante, esperando buffer cheio até ctx terminar
func (m *Memory) Publish(ctx context.Context, topic, event string, payload any) error {
	msg, err := encode(topic, event, payload)
	if err != nil {
		return err
	}
	env, err := decode(msg)
	if err != nil {
		return err
	}

	m.mu.RLock()
	targets := make([]*subscription, 0, len(m.subs[topic]))
	for s := range m.subs[topic] {
		targets = append(targets, s)
	}
	m.mu.RUnlock()

	for _, s := range targets {
		if err := s.deliverCtx(ctx, env); err != nil && !errors.Is(err, errSubscriptionClosed) {
			return fmt.Errorf("memory publish %s/%s: %w", topic, event, err)
		}
	}
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	var sub *subscription
	sub = newSubscription(func() error {
		m.mu.Lock()
		delete(m.subs[topic], sub)
		if len(m.subs[topic]) == 0 {
			delete(m.subs, topic)
		}
		m.mu.Unlock()
		return nil
	})

	m.mu.Lock()
	if _, ok := m.subs[topic]; !ok {
		m.subs[topic] = make(map[*subscription]struct{})
	}
	m.subs[topic][sub] = struct{}{}
	m.mu.Unlock()
	sub.watch(ctx)
	return sub, nil
}

// Inject entrega um payload bruto aos assinantes, sem passar pela validação
// do envelope; útil para simular mensagens corrompidas
func (m *Memory) Inject(topic, event string, raw json.RawMessage) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for s := range m.subs[topic] {
		s.deliver(events.Envelope{Topic: topic, Event: event, Data: raw, Ts: time.Now().UTC()})
	}
}

// Subscribers retorna quantas assinaturas o tópico tem
func (m *Memory) Subscribers(topic string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs[topic])
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error {
	m.mu.Lock()
	subs := m.subs
	m.subs = make(map[string]map[*subscription]struct{})
	m.mu.Unlock()
	for _, set := range subs {
		for s := range set {
			_ = s.Close()
		}
	}
	return nil
}
