package events

import (
	"context"
	"sync"

	"go.uber.org/zap"

	sharedBus "github.com/smarcilla/football-oracle-monorepo/internal/shared/infra/platform/bus"
)

// InMemoryEventBus es un bus por topics para modo local y tests.
type InMemoryEventBus struct {
	subscribers map[string][]chan sharedBus.Message
	mu          sync.RWMutex
}

// Verifica en tiempo de compilación que cumple la interfaz
var _ sharedBus.EventPublisher = (*InMemoryEventBus)(nil)

func NewInMemoryEventBus() *InMemoryEventBus {
	return &InMemoryEventBus{subscribers: make(map[string][]chan sharedBus.Message)}
}

// Publish entrega el mensaje a cada suscriptor del topic. Con el buffer lleno
// devuelve el error del contexto en lugar de perder el mensaje.
func (b *InMemoryEventBus) Publish(ctx context.Context, msg sharedBus.Message) error {
	b.mu.RLock()
	subs := b.subscribers[msg.Topic]
	b.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribe devuelve un canal que recibe los mensajes de los topics indicados.
func (b *InMemoryEventBus) Subscribe(bufferSize int, topics ...string) <-chan sharedBus.Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan sharedBus.Message, bufferSize)
	for _, topic := range topics {
		b.subscribers[topic] = append(b.subscribers[topic], ch)
	}
	return ch
}

// BackgroundConsumerChan lanza una goroutine que pasa los mensajes del canal al handler.
func BackgroundConsumerChan(ctx context.Context, ch <-chan sharedBus.Message, handler sharedBus.MessageHandler, log *zap.Logger) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				log.Info("In-memory consumer stopped")
				return
			case msg := <-ch:
				if err := handler.HandleMessage(ctx, msg); err != nil {
					log.Warn("Failed to handle in-memory message", zap.String("topic", msg.Topic), zap.Error(err))
				}
			}
		}
	}()
}
