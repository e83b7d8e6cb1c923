package relayer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	sharedDomain "github.com/smarcilla/football-oracle-monorepo/internal/shared/domain"
	sharedBus "github.com/smarcilla/football-oracle-monorepo/internal/shared/infra/platform/bus"
)

const (
	DefaultInterval   = time.Second
	DefaultBatchSize  = 10
	DefaultMaxRetries = 5
)

var ErrRelayRunning = errors.New("outbox relay already running")

// Config es toda la superficie configurable del relay.
type Config struct {
	Interval   time.Duration
	BatchSize  int
	MaxRetries int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	return c
}

// Estados del relay.
const (
	stateIdle int32 = iota
	stateDraining
)

// DrainResult resume un ciclo de vaciado.
type DrainResult struct {
	Skipped   bool // ya había un ciclo en curso
	Fetched   int
	Published int
	Failed    int
	// Unmarked son entradas publicadas cuyo MarkProcessed falló: siguen
	// PENDING y se volverán a publicar.
	Unmarked int
}

// outcome es el resultado de entregar una entrada.
type outcome int

const (
	outcomePublished outcome = iota
	outcomeUnmarked
	outcomeFailed
)

// Relay vacía el outbox hacia el broker con entrega at-least-once.
type Relay struct {
	repo      sharedDomain.OutboxRepository
	publisher sharedBus.EventPublisher
	cfg       Config
	log       *zap.Logger
	metrics   *Metrics

	state atomic.Int32

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	inflight sync.WaitGroup
}

// New construye el relay. metrics puede ser nil.
func New(repo sharedDomain.OutboxRepository, publisher sharedBus.EventPublisher, cfg Config, log *zap.Logger, metrics *Metrics) *Relay {
	return &Relay{
		repo:      repo,
		publisher: publisher,
		cfg:       cfg.withDefaults(),
		log:       log,
		metrics:   metrics,
	}
}

// Config devuelve la configuración efectiva, con los valores por defecto aplicados.
func (r *Relay) Config() Config {
	return r.cfg
}

// RunOnce ejecuta un ciclo de vaciado. Si ya hay uno en curso vuelve de inmediato
// con Skipped=true: el tick se descarta, no se encola.
func (r *Relay) RunOnce(ctx context.Context) DrainResult {
	if !r.state.CompareAndSwap(stateIdle, stateDraining) {
		r.metrics.incSkipped()
		r.log.Debug("⏭️ Ciclo de outbox en curso, tick descartado")
		return DrainResult{Skipped: true}
	}
	defer r.state.Store(stateIdle)

	start := time.Now()
	defer func() { r.metrics.observeDrain(time.Since(start)) }()

	entries, err := r.repo.FetchPending(ctx, r.cfg.BatchSize, r.cfg.MaxRetries)
	if err != nil {
		r.log.Error("❌ Error al obtener entradas pendientes del outbox", zap.Error(err))
		return DrainResult{}
	}

	result := DrainResult{Fetched: len(entries)}
	if len(entries) == 0 {
		return result
	}
	r.log.Info(fmt.Sprintf("📬 %d entradas de outbox para publicar", len(entries)))

	// Cada entrada se liquida por separado: ninguna goroutine devuelve error,
	// así Wait espera a todas y un fallo no cancela a sus hermanas.
	var published, unmarked, failed atomic.Int64
	var g errgroup.Group
	for _, entry := range entries {
		g.Go(func() error {
			switch r.deliver(ctx, entry) {
			case outcomePublished:
				published.Add(1)
			case outcomeUnmarked:
				unmarked.Add(1)
			default:
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	result.Published = int(published.Load())
	result.Unmarked = int(unmarked.Load())
	result.Failed = int(failed.Load())
	return result
}

// deliver publica una entrada y registra el resultado en el store.
func (r *Relay) deliver(ctx context.Context, entry sharedDomain.OutboxEntry) (res outcome) {
	fields := []zap.Field{
		zap.String("event_id", entry.ID.String()),
		zap.String("topic", entry.Topic),
	}

	defer func() {
		if p := recover(); p != nil {
			r.log.Error("💥 Panic al publicar entrada del outbox", append(fields, zap.Any("panic", p))...)
			r.fail(ctx, entry, fields)
			res = outcomeFailed
		}
	}()

	msg := sharedBus.Message{
		ID:      entry.ID.String(),
		Topic:   entry.Topic,
		Key:     entry.AggregateID,
		Payload: entry.Payload,
	}
	if err := r.publisher.Publish(ctx, msg); err != nil {
		r.log.Warn("⚠️ No se pudo publicar entrada del outbox",
			append(fields, zap.Int("attempt", entry.Retries+1), zap.Error(err))...)
		r.fail(ctx, entry, fields)
		return outcomeFailed
	}

	if err := r.repo.MarkProcessed(ctx, entry.ID); err != nil {
		// Se volverá a publicar en el siguiente ciclo; los consumidores son idempotentes.
		r.metrics.incUnmarked(entry.Topic)
		r.log.Warn("⚠️ Entrada publicada pero no marcada como procesada", append(fields, zap.Error(err))...)
		return outcomeUnmarked
	}

	r.metrics.incPublished(entry.Topic)
	r.log.Debug("✅ Entrada publicada y marcada", fields...)
	return outcomePublished
}

func (r *Relay) fail(ctx context.Context, entry sharedDomain.OutboxEntry, fields []zap.Field) {
	r.metrics.incFailure(entry.Topic)
	if err := r.repo.IncrementRetries(ctx, entry.ID, r.cfg.MaxRetries); err != nil {
		r.log.Error("❌ No se pudo incrementar reintentos", append(fields, zap.Error(err))...)
		return
	}
	if entry.Retries+1 >= r.cfg.MaxRetries {
		r.log.Error("🪦 Entrada de outbox marcada como FAILED", append(fields, zap.Int("retries", entry.Retries+1))...)
	}
}

// Start programa un ciclo por tick. Devuelve ErrRelayRunning si ya estaba arrancado.
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done != nil {
		return ErrRelayRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.loop(loopCtx, r.done)
	return nil
}

// Stop cancela los ticks futuros y espera al ciclo en curso, que termina con
// normalidad. Si ctx vence antes, devuelve ctx.Err() y el ciclo sigue hasta acabar.
func (r *Relay) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if done == nil {
		return nil
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Relay) loop(ctx context.Context, done chan struct{}) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	defer func() {
		r.inflight.Wait()
		close(done)
	}()

	// Los ciclos no heredan la cancelación del schedule.
	drainCtx := context.WithoutCancel(ctx)

	r.log.Info("🚀 Outbox relay iniciado",
		zap.Duration("interval", r.cfg.Interval),
		zap.Int("batch_size", r.cfg.BatchSize),
		zap.Int("max_retries", r.cfg.MaxRetries),
	)

	for {
		select {
		case <-ctx.Done():
			r.log.Info("🛑 Outbox relay detenido.")
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				r.log.Info("🛑 Outbox relay detenido.")
				return
			}
			r.inflight.Add(1)
			go func() {
				defer r.inflight.Done()
				r.RunOnce(drainCtx)
			}()
		}
	}
}
