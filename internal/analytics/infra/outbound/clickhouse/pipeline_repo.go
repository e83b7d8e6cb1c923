package clickhouse

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	analyticsDomain "github.com/smarcilla/football-oracle-monorepo/internal/analytics/domain"
)

// PipelineAnalyticsRepo implementa PipelineAnalyticsRepository para ClickHouse.
type PipelineAnalyticsRepo struct {
	db *sql.DB
}

// NewPipelineAnalyticsRepo abre la conexión y comprueba que responde.
func NewPipelineAnalyticsRepo(ctx context.Context, addr, dbName string) (*PipelineAnalyticsRepo, error) {
	conn := clickhouse.OpenDB(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: dbName,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
	})

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("could not ping clickhouse: %w", err)
	}
	return &PipelineAnalyticsRepo{db: conn}, nil
}

func (r *PipelineAnalyticsRepo) Close() error {
	return r.db.Close()
}

// InitSchema crea la tabla si no existe. Se particiona por mes y se ordena
// por topic y fecha, que es como se consulta.
func (r *PipelineAnalyticsRepo) InitSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS pipeline_events (
			event_id     String,
			topic        LowCardinality(String),
			match_id     Int64,
			published_at DateTime64(3)
		) ENGINE = MergeTree()
		PARTITION BY toYYYYMM(published_at)
		ORDER BY (topic, published_at);
	`
	_, err := r.db.ExecContext(ctx, query)
	return err
}

// LogBatch inserta el lote en una sola transacción; ClickHouse lo envía como un bloque.
func (r *PipelineAnalyticsRepo) LogBatch(ctx context.Context, events []analyticsDomain.PipelineEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO pipeline_events (event_id, topic, match_id, published_at)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx, e.EventID, e.Topic, e.MatchID, e.PublishedAt); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to exec statement for event %s: %w", e.EventID, err)
		}
	}
	return tx.Commit()
}

// GetDailyTrend cuenta eventos distintos por día y topic. La entrega es
// at-least-once, así que se cuentan event_id únicos.
func (r *PipelineAnalyticsRepo) GetDailyTrend(ctx context.Context, from, to time.Time) ([]analyticsDomain.DailyCount, error) {
	query := `
		SELECT
			toStartOfDay(published_at) AS day,
			topic,
			uniqExact(event_id) AS events
		FROM pipeline_events
		WHERE published_at BETWEEN ? AND ?
		GROUP BY day, topic
		ORDER BY day, topic
	`
	rows, err := r.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trend []analyticsDomain.DailyCount
	for rows.Next() {
		var dc analyticsDomain.DailyCount
		if err := rows.Scan(&dc.Day, &dc.Topic, &dc.Count); err != nil {
			return nil, err
		}
		trend = append(trend, dc)
	}
	return trend, rows.Err()
}

// Verificación estática de la interfaz.
var _ analyticsDomain.PipelineAnalyticsRepository = (*PipelineAnalyticsRepo)(nil)
