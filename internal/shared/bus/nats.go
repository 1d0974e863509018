package bus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSBus usa core NATS (sem JetStream): entrega best-effort, o subject é o tópico
type NATSBus struct {
	nc  *nats.Conn
	log *zap.Logger
}

func NewNATS(url, name string, log *zap.Logger) (*NATSBus, error) {
	opts := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info("nats reconnected")
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return &NATSBus{nc: nc, log: log}, nil
}

func (b *NATSBus) Publish(_ context.Context, topic, event string, payload any) error {
	msg, err := encode(topic, event, payload)
	if err != nil {
		return err
	}
	if err := b.nc.Publish(topic, msg); err != nil {
		return fmt.Errorf("nats publish %s/%s: %w", topic, event, err)
	}
	return nil
}

func (b *NATSBus) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	sub := newSubscription(nil)
	ns, err := b.nc.Subscribe(topic, func(m *nats.Msg) {
		env, err := decode(m.Data)
		if err != nil {
			b.log.Warn("nats bus: invalid envelope", zap.String("topic", topic), zap.Error(err))
			return
		}
		sub.deliver(env)
	})
	if err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("nats subscribe %s: %w", topic, err)
	}
	sub.closeFn = ns.Unsubscribe
	// garante que o servidor registrou a inscrição antes de retornar
	if err := b.nc.FlushWithContext(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("nats flush: %w", err)
	}
	sub.watch(ctx)
	return sub, nil
}

func (b *NATSBus) Ping(_ context.Context) error {
	if !b.nc.IsConnected() {
		return errors.New("nats not connected")
	}
	return nil
}

func (b *NATSBus) Close() error {
	b.nc.Close()
	return nil
}
