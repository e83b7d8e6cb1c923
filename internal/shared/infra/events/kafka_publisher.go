package events

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	sharedBus "github.com/smarcilla/football-oracle-monorepo/internal/shared/infra/platform/bus"
)

const defaultWriteTimeout = 5 * time.Second

// MessageWriter es la parte de *kafka.Writer que usa el publisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaPublisher publica cada mensaje en su propio topic con un único writer.
type KafkaPublisher struct {
	writer  MessageWriter
	timeout time.Duration
	log     *zap.Logger
}

// NewKafkaWriter construye un writer sin topic fijo: el topic viaja en cada mensaje.
// El balanceo por hash de la clave mantiene juntos los eventos de un mismo partido.
func NewKafkaWriter(brokers []string, clientID string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		Transport:              &kafka.Transport{ClientID: clientID},
	}
}

// NewKafkaPublisher: un timeout <= 0 usa el valor por defecto.
func NewKafkaPublisher(writer MessageWriter, timeout time.Duration, log *zap.Logger) *KafkaPublisher {
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	return &KafkaPublisher{writer: writer, timeout: timeout, log: log}
}

// Publish entrega o falla dentro del timeout del adapter.
func (p *KafkaPublisher) Publish(ctx context.Context, msg sharedBus.Message) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := p.writer.WriteMessages(ctx, ToKafkaMessage(msg)); err != nil {
		p.log.Error("Error publishing to Kafka",
			zap.String("topic", msg.Topic),
			zap.String("event_id", msg.ID),
			zap.Error(err),
		)
		return fmt.Errorf("kafka publish %s: %w", msg.Topic, err)
	}

	p.log.Debug("Event published successfully", zap.String("topic", msg.Topic), zap.String("event_id", msg.ID))
	return nil
}

// ToKafkaMessage traduce un Message al formato de cable. El valor es el payload JSON tal cual.
func ToKafkaMessage(msg sharedBus.Message) kafka.Message {
	km := kafka.Message{
		Topic: msg.Topic,
		Value: msg.Payload,
		Headers: []kafka.Header{
			{Key: sharedBus.HeaderEventID, Value: []byte(msg.ID)},
			{Key: sharedBus.HeaderEventTopic, Value: []byte(msg.Topic)},
		},
	}
	if msg.Key != "" {
		km.Key = []byte(msg.Key)
	}
	return km
}

// FromKafkaMessage es la operación inversa, usada por los consumidores.
func FromKafkaMessage(km kafka.Message) sharedBus.Message {
	msg := sharedBus.Message{
		Topic:   km.Topic,
		Key:     string(km.Key),
		Payload: km.Value,
	}
	for _, h := range km.Headers {
		if h.Key == sharedBus.HeaderEventID {
			msg.ID = string(h.Value)
		}
	}
	return msg
}

// Verificación estática
var (
	_ sharedBus.EventPublisher = (*KafkaPublisher)(nil)
	_ MessageWriter            = (*kafka.Writer)(nil)
)
