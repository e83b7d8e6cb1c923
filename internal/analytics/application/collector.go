// en internal/analytics/application/collector.go
package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	analyticsDomain "github.com/smarcilla/football-oracle-monorepo/internal/analytics/domain"
	sharedBus "github.com/smarcilla/football-oracle-monorepo/internal/shared/infra/platform/bus"
	sharedUtils "github.com/smarcilla/football-oracle-monorepo/internal/shared/infra/utils"
)

const (
	defaultBatchSize     = 100
	defaultFlushInterval = 5 * time.Second
	flushTimeout         = 10 * time.Second
	// maxBufferedBatches limita lo que se retiene mientras ClickHouse no responde.
	maxBufferedBatches = 10
)

// CollectorConfig controla el tamaño y la frecuencia de los lotes.
type CollectorConfig struct {
	BatchSize     int
	FlushInterval time.Duration
}

// Collector acumula las notificaciones publicadas y las vuelca por lotes.
// Se vacía al llenarse el lote, en cada intervalo y al apagarse.
type Collector struct {
	repo     analyticsDomain.PipelineAnalyticsRepository
	cfg      CollectorConfig
	log      *zap.Logger
	now      func() time.Time
	mu       sync.Mutex
	buf      []analyticsDomain.PipelineEvent
	flushing sync.Mutex
}

// Verificación estática
var _ sharedBus.MessageHandler = (*Collector)(nil)

func NewCollector(repo analyticsDomain.PipelineAnalyticsRepository, cfg CollectorConfig, log *zap.Logger) *Collector {
	cfg.BatchSize = sharedUtils.Ternary(cfg.BatchSize > 0, cfg.BatchSize, defaultBatchSize)
	cfg.FlushInterval = sharedUtils.Ternary(cfg.FlushInterval > 0, cfg.FlushInterval, defaultFlushInterval)
	return &Collector{repo: repo, cfg: cfg, log: log, now: time.Now}
}

type matchRef struct {
	MatchID int64 `json:"matchId"`
}

// HandleMessage registra el evento. Nunca pide reintento: un fallo de
// ClickHouse no debe bloquear el consumo de los topics.
func (c *Collector) HandleMessage(ctx context.Context, msg sharedBus.Message) error {
	err := sharedUtils.UnmarshalAndHandle(msg.Payload, func(ref matchRef) error {
		c.mu.Lock()
		c.buf = append(c.buf, analyticsDomain.PipelineEvent{
			EventID:     msg.ID,
			Topic:       msg.Topic,
			MatchID:     ref.MatchID, // 0 en league.synced
			PublishedAt: c.now().UTC(),
		})
		full := len(c.buf) >= c.cfg.BatchSize
		c.mu.Unlock()

		if full {
			c.Flush(ctx)
		}
		return nil
	})
	if errors.Is(err, sharedUtils.ErrMalformedPayload) {
		c.log.Warn("Evento no registrado en analítica", zap.String("topic", msg.Topic), zap.String("event_id", msg.ID), zap.Error(err))
	}
	return nil
}

// Flush vuelca lo acumulado. Si falla, el lote vuelve al buffer para el siguiente intento.
func (c *Collector) Flush(ctx context.Context) {
	c.flushing.Lock()
	defer c.flushing.Unlock()

	c.mu.Lock()
	batch := c.buf
	c.buf = nil
	c.mu.Unlock()
	if len(batch) == 0 {
		return
	}

	if err := c.repo.LogBatch(ctx, batch); err != nil {
		c.log.Warn("⚠️ Error al volcar eventos a ClickHouse", zap.Int("events", len(batch)), zap.Error(err))
		c.requeue(batch)
		return
	}
	c.log.Debug("Eventos volcados a ClickHouse", zap.Int("events", len(batch)))
}

func (c *Collector) requeue(batch []analyticsDomain.PipelineEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf = append(batch, c.buf...)
	if limit := c.cfg.BatchSize * maxBufferedBatches; len(c.buf) > limit {
		dropped := len(c.buf) - limit
		c.buf = c.buf[dropped:]
		c.log.Error("❌ Buffer de analítica lleno, se descartan los eventos más antiguos", zap.Int("dropped", dropped))
	}
}

// Pending devuelve cuántos eventos esperan volcado.
func (c *Collector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}

// Run vuelca en cada intervalo hasta que ctx se cancele y hace un último volcado.
func (c *Collector) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.Flush(ctx)
		case <-ctx.Done():
			finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
			c.Flush(finalCtx)
			cancel()
			c.log.Info("🛑 Colector de analítica detenido")
			return nil
		}
	}
}
