package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	analyticsApp "github.com/smarcilla/football-oracle-monorepo/internal/analytics/application"
	analyticsClickhouse "github.com/smarcilla/football-oracle-monorepo/internal/analytics/infra/outbound/clickhouse"
	"github.com/smarcilla/football-oracle-monorepo/internal/config"
	matchDomain "github.com/smarcilla/football-oracle-monorepo/internal/match/domain"
	matchCache "github.com/smarcilla/football-oracle-monorepo/internal/match/infra/outbound/cache"
	matchMongo "github.com/smarcilla/football-oracle-monorepo/internal/match/infra/outbound/db/mongodb"
	matchPostgres "github.com/smarcilla/football-oracle-monorepo/internal/match/infra/outbound/db/postgre"
	matchSQLite "github.com/smarcilla/football-oracle-monorepo/internal/match/infra/outbound/db/sqlite"
	sharedDomain "github.com/smarcilla/football-oracle-monorepo/internal/shared/domain"
	sharedEvents "github.com/smarcilla/football-oracle-monorepo/internal/shared/domain/events"
	infraEvents "github.com/smarcilla/football-oracle-monorepo/internal/shared/infra/events"
	sharedCache "github.com/smarcilla/football-oracle-monorepo/internal/shared/infra/platform/cache"
	sharedMongo "github.com/smarcilla/football-oracle-monorepo/internal/shared/infra/platform/db/mongodb"
	sharedPostgres "github.com/smarcilla/football-oracle-monorepo/internal/shared/infra/platform/db/postgres"
	sharedSQLite "github.com/smarcilla/football-oracle-monorepo/internal/shared/infra/platform/db/sqlite"
)

const connectTimeout = 10 * time.Second

// outboxStore es lo que el relay y GET /outbox necesitan del mismo almacén.
type outboxStore interface {
	sharedDomain.OutboxRepository
	sharedDomain.OutboxReader
}

// store agrupa los repositorios de un driver; entidades y outbox comparten base de datos.
type store struct {
	matches      matchDomain.MatchRepository
	outbox       sharedDomain.OutboxRepository
	outboxReader sharedDomain.OutboxReader
	close        func()
}

func newStore(matches matchDomain.MatchRepository, outbox outboxStore, closeFn func()) *store {
	return &store{matches: matches, outbox: outbox, outboxReader: outbox, close: closeFn}
}

func openStore(ctx context.Context, cfg config.StoreConfig, log *zap.Logger) (*store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		db, err := sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		if err := matchPostgres.InitPostgres(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("init postgres schema: %w", err)
		}
		log.Info("🐘 PostgreSQL conectado")
		return newStore(matchPostgres.NewMatchRepoPostgres(db), sharedPostgres.NewOutboxRepoPostgres(db), func() { db.Close() }), nil

	case config.DriverMongoDB:
		connCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		client, err := mongo.Connect(connCtx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("connect mongodb: %w", err)
		}
		disconnect := func() { _ = client.Disconnect(context.Background()) }

		repo, err := matchMongo.NewMatchRepoMongoDB(connCtx, client, cfg.MongoDatabase)
		if err != nil {
			disconnect()
			return nil, err
		}
		outbox := sharedMongo.NewOutboxRepoMongoDB(client, cfg.MongoDatabase)
		if err := repo.EnsureIndexes(connCtx); err != nil {
			disconnect()
			return nil, fmt.Errorf("mongodb indexes: %w", err)
		}
		if err := outbox.EnsureIndexes(connCtx); err != nil {
			disconnect()
			return nil, fmt.Errorf("mongodb outbox indexes: %w", err)
		}
		log.Info("🍃 MongoDB conectado", zap.String("database", cfg.MongoDatabase))
		return newStore(repo, outbox, disconnect), nil

	default:
		db, err := sharedSQLite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		if err := matchSQLite.InitSQLite(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("init sqlite schema: %w", err)
		}
		log.Info("🪶 SQLite abierto", zap.String("path", cfg.SQLitePath))
		return newStore(matchSQLite.NewMatchRepoSQLite(db), sharedSQLite.NewOutboxRepoSQLite(db), func() { db.Close() }), nil
	}
}

// newCache usa Redis si está configurado y responde; si no, la caché en memoria.
func newCache(ctx context.Context, cfg config.RedisConfig, log *zap.Logger) (sharedCache.Cache, func()) {
	if cfg.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
		pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		err := rdb.Ping(pingCtx).Err()
		if err == nil {
			log.Info("✅ Redis conectado, cache habilitado")
			return matchCache.NewRedisCache(rdb, cfg.CacheTTL), func() { rdb.Close() }
		}
		log.Warn("⚠️ Redis no disponible, cache en memoria", zap.Error(err))
		rdb.Close()
	}
	mem := matchCache.NewInMemoryCache(cfg.CacheTTL, 3*cfg.CacheTTL)
	return mem, mem.Stop
}

type analytics struct {
	repo  *analyticsClickhouse.PipelineAnalyticsRepo
	close func()
}

// startAnalytics conecta ClickHouse y lanza el colector alimentado por los topics publicados.
func startAnalytics(ctx context.Context, g *errgroup.Group, cfg *config.Config, log *zap.Logger) (*analytics, error) {
	connCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	repo, err := analyticsClickhouse.NewPipelineAnalyticsRepo(connCtx, cfg.Analytics.ClickHouseAddr, cfg.Analytics.Database)
	if err != nil {
		return nil, err
	}
	if err := repo.InitSchema(connCtx); err != nil {
		repo.Close()
		return nil, fmt.Errorf("init clickhouse schema: %w", err)
	}

	collector := analyticsApp.NewCollector(repo, analyticsApp.CollectorConfig{
		BatchSize:     cfg.Analytics.BatchSize,
		FlushInterval: cfg.Analytics.FlushInterval,
	}, log)
	reader := infraEvents.NewKafkaReader(cfg.Kafka.Brokers, cfg.Kafka.AnalyticsGroupID, cfg.Kafka.ClientID, sharedEvents.OutboundTopics())
	adapter := infraEvents.NewConsumerAdapter("analytics", reader, collector, log)

	g.Go(func() error { return collector.Run(ctx) })
	g.Go(func() error { return adapter.Run(ctx) })

	log.Info("📊 Analítica de pipeline habilitada", zap.String("clickhouse", cfg.Analytics.ClickHouseAddr))
	return &analytics{repo: repo, close: func() { repo.Close() }}, nil
}
