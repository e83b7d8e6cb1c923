package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	sharedDomain "github.com/smarcilla/football-oracle-monorepo/internal/shared/domain"
	sharedBus "github.com/smarcilla/football-oracle-monorepo/internal/shared/infra/platform/bus"
)

// MockOutboxRepository simula el store del outbox que usa el relay.
type MockOutboxRepository struct {
	mock.Mock
}

func (m *MockOutboxRepository) FetchPending(ctx context.Context, limit, maxRetries int) ([]sharedDomain.OutboxEntry, error) {
	args := m.Called(ctx, limit, maxRetries)
	entries, _ := args.Get(0).([]sharedDomain.OutboxEntry)
	return entries, args.Error(1)
}

func (m *MockOutboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockOutboxRepository) IncrementRetries(ctx context.Context, id uuid.UUID, maxRetries int) error {
	args := m.Called(ctx, id, maxRetries)
	return args.Error(0)
}

// MockPublisher simula un publisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, msg sharedBus.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// MessageWithID compara mensajes por id de entrada.
func MessageWithID(id uuid.UUID) interface{} {
	return mock.MatchedBy(func(msg sharedBus.Message) bool { return msg.ID == id.String() })
}

// Verificación estática
var (
	_ sharedDomain.OutboxRepository = (*MockOutboxRepository)(nil)
	_ sharedBus.EventPublisher      = (*MockPublisher)(nil)
)
