package ws

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/radieske/chess-market-poc/internal/shared/bus"
)

// StartBusPump assina o tópico no Change Bus e repassa cada envelope
// para os clientes WebSocket conectados via Hub.
// A assinatura é encerrada quando ctx termina.
func StartBusPump(ctx context.Context, b bus.Subscriber, topic string, hub *Hub, log *zap.Logger) error {
	sub, err := b.Subscribe(ctx, topic)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case env, ok := <-sub.Events():
				if !ok {
					log.Warn("bus subscription closed", zap.String("topic", topic))
					return
				}
				if env.Topic == "" {
					env.Topic = topic
				}
				hub.Broadcast(env)
			}
		}
	}()
	return nil
}
