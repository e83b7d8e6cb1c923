// en internal/match/infra/inbound/events/match_consumer.go
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	matchDomain "github.com/smarcilla/football-oracle-monorepo/internal/match/domain"

	// --- Importaciones compartidas ---
	sharedEvents "github.com/smarcilla/football-oracle-monorepo/internal/shared/domain/events"
	sharedBus "github.com/smarcilla/football-oracle-monorepo/internal/shared/infra/platform/bus"
	sharedUtils "github.com/smarcilla/football-oracle-monorepo/internal/shared/infra/utils"
)

const handleTimeout = 5 * time.Second

// MatchService es la interfaz que define los métodos que el consumidor necesita.
type MatchService interface {
	GetMatch(ctx context.Context, id int64) (*matchDomain.Match, error)
	UpdateMatchStatus(ctx context.Context, id int64, next matchDomain.MatchStatus) (*matchDomain.Match, error)
	UpdateMatchData(ctx context.Context, id int64, shots json.RawMessage) (*matchDomain.Match, error)
	RecordSimulation(ctx context.Context, id int64, results matchDomain.SimulationResults) (*matchDomain.Match, error)
	RecordReport(ctx context.Context, id int64, draft matchDomain.ReportDraft) (*matchDomain.Match, error)
}

// MatchConsumer traduce los eventos de los workers (scraper, engine, journalist)
// en transiciones. Solo devuelve error cuando reintentar tiene sentido.
type MatchConsumer struct {
	service MatchService
	log     *zap.Logger
}

// Verificación estática
var _ sharedBus.MessageHandler = (*MatchConsumer)(nil)

// NewMatchConsumer es el constructor.
func NewMatchConsumer(service MatchService, logger *zap.Logger) *MatchConsumer {
	return &MatchConsumer{service: service, log: logger}
}

// HandleMessage es el punto de entrada para un nuevo mensaje/evento.
func (c *MatchConsumer) HandleMessage(ctx context.Context, msg sharedBus.Message) error {
	var err error
	switch msg.Topic {
	case sharedEvents.WorkerAnalysisRequested:
		err = sharedUtils.UnmarshalAndHandle(msg.Payload, func(evt sharedEvents.AnalysisRequested) error {
			return c.apply(ctx, msg.Topic, evt.MatchID, matchDomain.StatusScraping, func(ctx context.Context, id int64) error {
				_, err := c.service.UpdateMatchStatus(ctx, id, matchDomain.StatusScraping)
				return err
			})
		})

	case sharedEvents.WorkerDataExtracted:
		err = sharedUtils.UnmarshalAndHandle(msg.Payload, func(evt sharedEvents.DataExtracted) error {
			return c.apply(ctx, msg.Topic, evt.MatchID, matchDomain.StatusScraped, func(ctx context.Context, id int64) error {
				_, err := c.service.UpdateMatchData(ctx, id, evt.Shots)
				return err
			})
		})

	case sharedEvents.WorkerSimulationCompleted:
		err = sharedUtils.UnmarshalAndHandle(msg.Payload, func(evt sharedEvents.SimulationCompleted) error {
			return c.apply(ctx, msg.Topic, evt.MatchID, matchDomain.StatusSimulated, func(ctx context.Context, id int64) error {
				_, err := c.service.RecordSimulation(ctx, id, matchDomain.SimulationResults{
					HomeWinProb: evt.Results.HomeWinProb,
					DrawProb:    evt.Results.DrawProb,
					AwayWinProb: evt.Results.AwayWinProb,
					Iterations:  evt.Iterations,
				})
				return err
			})
		})

	case sharedEvents.WorkerReportReady:
		err = sharedUtils.UnmarshalAndHandle(msg.Payload, func(evt sharedEvents.ReportReady) error {
			return c.apply(ctx, msg.Topic, evt.MatchID, matchDomain.StatusCompleted, func(ctx context.Context, id int64) error {
				_, err := c.service.RecordReport(ctx, id, matchDomain.ReportDraft{Content: evt.Content, Provider: evt.Provider})
				return err
			})
		})

	default:
		c.log.Warn("Unknown worker topic", zap.String("topic", msg.Topic), zap.String("key", msg.Key))
		return nil
	}

	if errors.Is(err, sharedUtils.ErrMalformedPayload) {
		c.log.Warn("Failed to decode worker event", zap.String("topic", msg.Topic), zap.String("event_id", msg.ID), zap.Error(err))
		return nil
	}
	return err
}

// apply resuelve el id, descarta duplicados y ejecuta la acción con un timeout propio.
// Los rechazos del dominio se registran y se descartan; el resto se devuelve para reintentar.
func (c *MatchConsumer) apply(ctx context.Context, topic, rawID string, target matchDomain.MatchStatus, action func(ctx context.Context, id int64) error) error {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("%w: matchId %q is not a positive integer", sharedUtils.ErrMalformedPayload, rawID)
	}
	log := c.log.With(zap.String("topic", topic), zap.Int64("match_id", id))

	ctxMatch, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	current, err := c.service.GetMatch(ctxMatch, id)
	if err != nil {
		if errors.Is(err, matchDomain.ErrMatchNotFound) {
			log.Warn("Evento para un partido inexistente descartado")
			return nil
		}
		return err
	}
	// LÓGICA DE IDEMPOTENCIA: la transición ya se aplicó
	if current.Status == target {
		log.Info("Evento duplicado ignorado", zap.String("status", string(current.Status)))
		return nil
	}

	if err := action(ctxMatch, id); err != nil {
		// La lectura pudo salir de una caché aún no invalidada; el repositorio tiene la última palabra
		var te *matchDomain.TransitionError
		if errors.As(err, &te) && te.From == target {
			log.Info("Evento duplicado ignorado", zap.String("status", string(te.From)))
			return nil
		}
		if errors.Is(err, matchDomain.ErrInvalidTransition) ||
			errors.Is(err, matchDomain.ErrInvalidMatch) ||
			errors.Is(err, matchDomain.ErrMatchNotFound) {
			log.Warn("Evento rechazado por el dominio", zap.String("current", string(current.Status)), zap.Error(err))
			return nil
		}
		return err
	}

	log.Info("Match updated via worker event", zap.String("status", string(target)))
	return nil
}
