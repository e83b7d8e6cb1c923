package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/smarcilla/football-oracle-monorepo/internal/config"
	matchApp "github.com/smarcilla/football-oracle-monorepo/internal/match/application"
	matchEvents "github.com/smarcilla/football-oracle-monorepo/internal/match/infra/inbound/events"
	matchHttp "github.com/smarcilla/football-oracle-monorepo/internal/match/infra/inbound/http"
	sharedEvents "github.com/smarcilla/football-oracle-monorepo/internal/shared/domain/events"
	infraEvents "github.com/smarcilla/football-oracle-monorepo/internal/shared/infra/events"
	sharedBus "github.com/smarcilla/football-oracle-monorepo/internal/shared/infra/platform/bus"
	"github.com/smarcilla/football-oracle-monorepo/internal/shared/infra/relayer"
	"github.com/smarcilla/football-oracle-monorepo/pkg/logger"
)

// ---------------- Main ----------------
func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() // flush buffers al salir

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("data-registry terminó con error", zap.Error(err))
	}
	log.Info("👋 data-registry detenido")
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// ---------------- Store ----------------
	st, err := openStore(ctx, cfg.Store, log)
	if err != nil {
		return err
	}
	defer st.close()

	// ---------------- Cache ----------------
	matchCache, closeCache := newCache(ctx, cfg.Redis, log)
	defer closeCache()

	// --------------- Servicio --------------
	matchService := matchApp.NewMatchService(st.matches, matchCache, cfg.Redis.CacheTTL, log)
	matchConsumer := matchEvents.NewMatchConsumer(matchService, log)

	g, gctx := errgroup.WithContext(ctx)

	// ---------------- Events ---------------
	var publisher sharedBus.EventPublisher
	if cfg.Kafka.Enabled {
		log.Info("🚀 Usando Kafka como bus de eventos", zap.Strings("brokers", cfg.Kafka.Brokers))
		writer := infraEvents.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.ClientID)
		defer writer.Close()
		publisher = infraEvents.NewKafkaPublisher(writer, cfg.Kafka.WriteTimeout, log)

		reader := infraEvents.NewKafkaReader(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.ClientID, sharedEvents.WorkerTopics())
		adapter := infraEvents.NewConsumerAdapter("workers", reader, matchConsumer, log)
		g.Go(func() error { return adapter.Run(gctx) })
	} else {
		log.Info("⚡️ Usando bus de eventos en memoria (canales de Go)")
		bus := infraEvents.NewInMemoryEventBus()
		publisher = bus
		ch := bus.Subscribe(64, sharedEvents.WorkerTopics()...)
		infraEvents.BackgroundConsumerChan(gctx, ch, matchConsumer, log)
	}

	// -------------- Analytics --------------
	var analyticsHandler *matchHttp.AnalyticsHandler
	if cfg.Analytics.Enabled {
		a, err := startAnalytics(gctx, g, cfg, log)
		if err != nil {
			return err
		}
		defer a.close()
		analyticsHandler = matchHttp.NewAnalyticsHandler(a.repo, log)
	}

	// ------------ Outbox Relay -------------
	relay := relayer.New(st.outbox, publisher, relayer.Config{
		Interval:   cfg.Outbox.Interval,
		BatchSize:  cfg.Outbox.BatchSize,
		MaxRetries: cfg.Outbox.MaxRetries,
	}, log, relayer.NewMetrics(reg))
	if err := relay.Start(gctx); err != nil {
		return err
	}

	// ---------------- HTTP ----------------
	gin.SetMode(gin.ReleaseMode)
	router := matchHttp.NewRouter(matchHttp.RouterConfig{
		Matches:   matchHttp.NewMatchHandler(matchService, log),
		Outbox:    matchHttp.NewOutboxHandler(st.outboxReader, log),
		Analytics: analyticsHandler,
		APIKey:    cfg.Auth.APIKey,
		Gatherer:  reg,
		Log:       log,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           router,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
	}
	g.Go(func() error {
		log.Info("🚀 Server running", zap.String("url", "http://localhost:"+cfg.HTTP.Port), zap.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// ------------- Apagado -------------
	g.Go(func() error {
		<-gctx.Done()
		log.Info("🛑 Apagando data-registry...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		// El ciclo en curso termina antes de cerrar el store
		if err := relay.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("relay stop: %w", err))
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}
