package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/smarcilla/football-oracle-monorepo/internal/match/application"
	matchDomain "github.com/smarcilla/football-oracle-monorepo/internal/match/domain"
	sharedEvents "github.com/smarcilla/football-oracle-monorepo/internal/shared/domain/events"
	sharedInfraEvents "github.com/smarcilla/football-oracle-monorepo/internal/shared/infra/events"
	sharedBus "github.com/smarcilla/football-oracle-monorepo/internal/shared/infra/platform/bus"
	"github.com/smarcilla/football-oracle-monorepo/tests/mocks"
)

func newConsumer(t *testing.T) (*MatchConsumer, *mocks.InMemoryMatchRepo, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.InfoLevel)
	log := zap.New(core)
	repo := mocks.NewInMemoryMatchRepo()
	service := application.NewMatchService(repo, mocks.NewDummyCache(), time.Minute, zap.NewNop())
	return NewMatchConsumer(service, log), repo, logs
}

func message(topic, payload string) sharedBus.Message {
	return sharedBus.Message{ID: "evt-1", Topic: topic, Key: "1", Payload: []byte(payload)}
}

func TestMatchConsumer_DrivesFullPipeline(t *testing.T) {
	consumer, repo, _ := newConsumer(t)
	repo.Seed(1, matchDomain.StatusIdentified)
	ctx := context.Background()

	steps := []sharedBus.Message{
		message(sharedEvents.WorkerAnalysisRequested, `{"matchId":"1"}`),
		message(sharedEvents.WorkerDataExtracted, `{"matchId":"1","shots":[{"xg":0.3},{"xg":0.1}]}`),
		message(sharedEvents.WorkerSimulationCompleted, `{"matchId":"1","iterations":5000,"results":{"homeWinProb":0.2,"drawProb":0.3,"awayWinProb":0.5}}`),
		message(sharedEvents.WorkerReportReady, `{"matchId":"1","title":"Crónica","content":"El visitante dominó el partido","provider":"gemini","generatedAt":"2024-08-19T10:00:00Z"}`),
	}
	for _, msg := range steps {
		require.NoError(t, consumer.HandleMessage(ctx, msg), msg.Topic)
	}

	m := repo.Matches[1]
	assert.Equal(t, matchDomain.StatusCompleted, m.Status)
	assert.Equal(t, 2, m.ShotsCount())
	require.NotNil(t, m.Simulation)
	assert.Equal(t, 5000, m.Simulation.Results.Iterations)
	require.NotNil(t, m.Report)
	assert.Equal(t, "gemini", m.Report.Provider)
	assert.Equal(t, []string{
		sharedEvents.MatchDataScraped,
		sharedEvents.MatchSimulationCompleted,
		sharedEvents.MatchReportGenerated,
	}, repo.OutboxTopics())
}

func TestMatchConsumer_DuplicatesAreIgnored(t *testing.T) {
	consumer, repo, logs := newConsumer(t)
	repo.Seed(1, matchDomain.StatusSimulating)
	msg := message(sharedEvents.WorkerSimulationCompleted, `{"matchId":"1","iterations":100,"results":{"homeWinProb":0.6,"drawProb":0.2,"awayWinProb":0.2}}`)

	require.NoError(t, consumer.HandleMessage(context.Background(), msg))
	require.NoError(t, consumer.HandleMessage(context.Background(), msg))

	assert.Equal(t, []string{sharedEvents.MatchSimulationCompleted}, repo.OutboxTopics())
	assert.Equal(t, 1, logs.FilterMessage("Evento duplicado ignorado").Len())
}

func TestMatchConsumer_DropsWhatCannotSucceed(t *testing.T) {
	tests := []struct {
		name   string
		seed   matchDomain.MatchStatus
		msg    sharedBus.Message
		logMsg string
	}{
		{"transición ilegal", matchDomain.StatusIdentified,
			message(sharedEvents.WorkerReportReady, `{"matchId":"1","content":"Informe demasiado pronto"}`), "Evento rechazado por el dominio"},
		{"datos inválidos", matchDomain.StatusSimulating,
			message(sharedEvents.WorkerSimulationCompleted, `{"matchId":"1","iterations":0,"results":{"homeWinProb":0.6,"drawProb":0.2,"awayWinProb":0.2}}`), "Evento rechazado por el dominio"},
		{"partido inexistente", matchDomain.StatusIdentified,
			message(sharedEvents.WorkerAnalysisRequested, `{"matchId":"77"}`), "Evento para un partido inexistente descartado"},
		{"json roto", matchDomain.StatusIdentified,
			message(sharedEvents.WorkerAnalysisRequested, `{"matchId":`), "Failed to decode worker event"},
		{"matchId no numérico", matchDomain.StatusIdentified,
			message(sharedEvents.WorkerAnalysisRequested, `{"matchId":"abc"}`), "Failed to decode worker event"},
		{"topic desconocido", matchDomain.StatusIdentified,
			message("match.unknown", `{}`), "Unknown worker topic"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			consumer, repo, logs := newConsumer(t)
			repo.Seed(1, tt.seed)

			err := consumer.HandleMessage(context.Background(), tt.msg)

			assert.NoError(t, err)
			assert.Empty(t, repo.OutboxTopics())
			assert.Equal(t, tt.seed, repo.Matches[1].Status)
			assert.Equal(t, 1, logs.FilterMessage(tt.logMsg).Len())
		})
	}
}

func TestMatchConsumer_StoreErrorsAreReturnedForRetry(t *testing.T) {
	consumer, repo, _ := newConsumer(t)
	repo.Seed(1, matchDomain.StatusIdentified)
	repo.Err = errors.New("database is locked")

	err := consumer.HandleMessage(context.Background(), message(sharedEvents.WorkerAnalysisRequested, `{"matchId":"1"}`))

	assert.ErrorContains(t, err, "database is locked")
}

func TestMatchConsumer_OverInMemoryBus(t *testing.T) {
	consumer, repo, _ := newConsumer(t)
	repo.Seed(3, matchDomain.StatusIdentified)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := sharedInfraEvents.NewInMemoryEventBus()
	ch := bus.Subscribe(8, sharedEvents.WorkerTopics()...)
	sharedInfraEvents.BackgroundConsumerChan(ctx, ch, consumer, zap.NewNop())

	require.NoError(t, bus.Publish(ctx, message(sharedEvents.WorkerAnalysisRequested, `{"matchId":"3"}`)))

	assert.Eventually(t, func() bool {
		m, err := repo.GetByID(ctx, 3)
		return err == nil && m.Status == matchDomain.StatusScraping
	}, time.Second, 5*time.Millisecond)
}
