package events

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	sharedBus "github.com/smarcilla/football-oracle-monorepo/internal/shared/infra/platform/bus"
	sharedUtils "github.com/smarcilla/football-oracle-monorepo/internal/shared/infra/utils"
)

const (
	handleAttempts = 3
	handleBackoff  = 200 * time.Millisecond
)

// MessageReader es la parte de *kafka.Reader que usa el adapter.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerAdapter es el "oído" que escucha en Kafka.
// Confirma el offset solo después de pasar el mensaje al handler (at-least-once).
type ConsumerAdapter struct {
	reader  MessageReader
	handler sharedBus.MessageHandler
	name    string
	log     *zap.Logger
}

// NewKafkaReader crea un reader de grupo sobre varios topics.
func NewKafkaReader(brokers []string, groupID, clientID string, topics []string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		GroupTopics: topics,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
		Dialer:      &kafka.Dialer{ClientID: clientID, Timeout: 10 * time.Second},
	})
}

func NewConsumerAdapter(name string, reader MessageReader, handler sharedBus.MessageHandler, log *zap.Logger) *ConsumerAdapter {
	return &ConsumerAdapter{
		reader:  reader,
		handler: handler,
		name:    name,
		log:     log.With(zap.String("consumer", name)),
	}
}

// Run consume hasta que ctx se cancele. Devuelve nil en un apagado limpio.
func (c *ConsumerAdapter) Run(ctx context.Context) error {
	c.log.Info("🎧 Iniciando consumidor de Kafka...")
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.log.Warn("Error al cerrar reader de Kafka", zap.Error(err))
		}
	}()

	for {
		km, err := c.reader.FetchMessage(ctx)
		if err != nil {
			// Si el contexto se cancela, el error es normal y salimos limpiamente.
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.log.Info("Consumidor de Kafka detenido.")
				return nil
			}
			c.log.Error("Error al leer mensaje de Kafka", zap.Error(err))
			select {
			case <-time.After(time.Second):
				continue
			case <-ctx.Done():
				return nil
			}
		}

		msg := FromKafkaMessage(km)
		err = sharedUtils.Retry(ctx, handleAttempts, handleBackoff, func() error {
			return c.handler.HandleMessage(ctx, msg)
		})
		if err != nil {
			// Se descarta tras agotar reintentos para no bloquear la partición.
			c.log.Error("❌ Mensaje descartado tras reintentos",
				zap.String("topic", km.Topic),
				zap.Int64("offset", km.Offset),
				zap.Error(err),
			)
		}

		if err := c.reader.CommitMessages(ctx, km); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Warn("⚠️ Error al confirmar offset", zap.String("topic", km.Topic), zap.Int64("offset", km.Offset), zap.Error(err))
		}
	}
}
