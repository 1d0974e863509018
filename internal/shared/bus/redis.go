package bus

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radieske/chess-market-poc/internal/shared/cache"
)

// RedisBus usa Redis Pub/Sub: o canal é o próprio tópico.
// Clientes desconectados no momento do publish perdem o evento.
type RedisBus struct {
	r   *redis.Client
	log *zap.Logger
}

func NewRedis(ctx context.Context, addr string, log *zap.Logger) (*RedisBus, error) {
	r, err := cache.ConnectRedis(ctx, addr)
	if err != nil {
		return nil, err
	}
	return NewRedisFromClient(r, log), nil
}

func NewRedisFromClient(r *redis.Client, log *zap.Logger) *RedisBus {
	return &RedisBus{r: r, log: log}
}

func (b *RedisBus) Publish(ctx context.Context, topic, event string, payload any) error {
	msg, err := encode(topic, event, payload)
	if err != nil {
		return err
	}
	if err := b.r.Publish(ctx, topic, msg).Err(); err != nil {
		return fmt.Errorf("redis publish %s/%s: %w", topic, event, err)
	}
	return nil
}

// Subscribe confirma a inscrição antes de retornar, para não perder eventos
// publicados logo em seguida
func (b *RedisBus) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	ps := b.r.Subscribe(ctx, topic)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", topic, err)
	}

	sub := newSubscription(ps.Close) // ps.Close encerra o canal abaixo
	ch := ps.Channel()
	sub.wg.Add(1)
	go func() {
		defer sub.wg.Done()
		for msg := range ch {
			env, err := decode([]byte(msg.Payload))
			if err != nil {
				b.log.Warn("redis bus: invalid envelope", zap.String("topic", topic), zap.Error(err))
				continue
			}
			if !sub.deliver(env) {
				return
			}
		}
	}()
	sub.watch(ctx)
	return sub, nil
}

func (b *RedisBus) Ping(ctx context.Context) error { return b.r.Ping(ctx).Err() }

func (b *RedisBus) Close() error { return b.r.Close() }
