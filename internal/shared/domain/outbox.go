package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus es el estado de una entrada del outbox.
type OutboxStatus string

const (
	OutboxPending   OutboxStatus = "PENDING"
	OutboxProcessed OutboxStatus = "PROCESSED"
	OutboxFailed    OutboxStatus = "FAILED"
)

func (s OutboxStatus) IsValid() bool {
	switch s {
	case OutboxPending, OutboxProcessed, OutboxFailed:
		return true
	}
	return false
}

// OutboxEntry representa una notificación pendiente de publicar en el broker.
// El payload es una foto tomada en el commit; nunca se vuelve a derivar.
type OutboxEntry struct {
	ID            uuid.UUID       `json:"id"`
	AggregateType string          `json:"aggregate_type"` // ej. "match", "season"
	AggregateID   string          `json:"aggregate_id"`
	Topic         string          `json:"topic"` // ej. "match.data.scraped"
	Payload       json.RawMessage `json:"payload"`
	Status        OutboxStatus    `json:"status"`
	Retries       int             `json:"retries"`
	CreatedAt     time.Time       `json:"created_at"`
	ProcessedAt   *time.Time      `json:"processed_at,omitempty"`
}

// NewOutboxEntry serializa el payload y devuelve una entrada PENDING lista para insertar.
func NewOutboxEntry(aggregateType, aggregateID, topic string, payload interface{}) (OutboxEntry, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return OutboxEntry{}, fmt.Errorf("marshal outbox payload for %s: %w", topic, err)
	}
	return OutboxEntry{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Topic:         topic,
		Payload:       data,
		Status:        OutboxPending,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// OutboxRepository define el contrato que el relay necesita sobre la tabla outbox.
// Las entradas solo se crean dentro de la transacción del repositorio de entidades.
type OutboxRepository interface {
	// FetchPending devuelve hasta 'limit' entradas PENDING con retries < maxRetries, las más antiguas primero.
	FetchPending(ctx context.Context, limit, maxRetries int) ([]OutboxEntry, error)
	// MarkProcessed pasa la entrada a PROCESSED. Llamarlo dos veces no es un error.
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	// IncrementRetries suma un reintento y pasa a FAILED al llegar a maxRetries.
	// Si la entrada no existe no hace nada.
	IncrementRetries(ctx context.Context, id uuid.UUID, maxRetries int) error
}

// OutboxReader es la vista de solo lectura usada para inspección.
type OutboxReader interface {
	ListByStatus(ctx context.Context, status OutboxStatus, limit int) ([]OutboxEntry, error)
}

var ErrOutboxEntryNotFound = errors.New("outbox entry not found")
