package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	skafka "github.com/radieske/chess-market-poc/internal/shared/kafka"
)

// KafkaBus publica cada evento como mensagem JSON no tópico Kafka de mesmo nome.
// Assinantes leem do fim do tópico sem consumer group, então todos recebem tudo.
type KafkaBus struct {
	brokers string
	log     *zap.Logger

	mu      sync.Mutex
	writers map[string]*skafka.Writer
}

func NewKafka(brokers string, log *zap.Logger) *KafkaBus {
	return &KafkaBus{brokers: brokers, log: log, writers: make(map[string]*skafka.Writer)}
}

func (b *KafkaBus) writer(topic string) *skafka.Writer {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.writers[topic]
	if !ok {
		w = skafka.NewWriter(b.brokers, topic)
		b.writers[topic] = w
	}
	return w
}

func (b *KafkaBus) Publish(ctx context.Context, topic, event string, payload any) error {
	msg, err := encode(topic, event, payload)
	if err != nil {
		return err
	}
	if err := skafka.WriteJSON(ctx, b.writer(topic), event, msg); err != nil {
		return fmt.Errorf("kafka publish %s/%s: %w", topic, event, err)
	}
	return nil
}

func (b *KafkaBus) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	reader := skafka.NewTailReader(b.brokers, topic)
	rctx, cancel := context.WithCancel(context.Background())

	sub := newSubscription(func() error {
		cancel()
		return reader.Close()
	})
	sub.wg.Add(1)
	go func() {
		defer sub.wg.Done()
		for {
			_, value, err := skafka.ReadNext(rctx, reader)
			if err != nil {
				if rctx.Err() != nil || errors.Is(err, context.Canceled) {
					return
				}
				b.log.Warn("kafka bus: read failed", zap.String("topic", topic), zap.Error(err))
				continue
			}
			env, err := decode(value)
			if err != nil {
				b.log.Warn("kafka bus: invalid envelope", zap.String("topic", topic), zap.Error(err))
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

// Ping testa a conexão com o primeiro broker
func (b *KafkaBus) Ping(ctx context.Context) error {
	brokers := skafka.Brokers(b.brokers)
	if len(brokers) == 0 {
		return errors.New("kafka brokers not provided")
	}
	conn, err := skafka.Dial(ctx, brokers[0])
	if err != nil {
		return err
	}
	return conn.Close()
}

func (b *KafkaBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var errs []error
	for topic, w := range b.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close writer %s: %w", topic, err))
		}
	}
	b.writers = make(map[string]*skafka.Writer)
	return errors.Join(errs...)
}
