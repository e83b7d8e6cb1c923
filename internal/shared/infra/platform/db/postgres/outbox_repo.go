package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // Driver de PostgreSQL

	sharedDomain "github.com/smarcilla/football-oracle-monorepo/internal/shared/domain"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var outboxColumns = []string{"id", "aggregate_type", "aggregate_id", "topic", "payload", "status", "retries", "created_at", "processed_at"}

// OutboxRepoPostgres implementa sharedDomain.OutboxRepository y sharedDomain.OutboxReader.
type OutboxRepoPostgres struct {
	db *sql.DB
}

func NewOutboxRepoPostgres(db *sql.DB) *OutboxRepoPostgres {
	return &OutboxRepoPostgres{db: db}
}

// InitOutboxSchema crea la tabla outbox. 'seq' desempata entradas con el mismo created_at.
func InitOutboxSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS outbox (
			id             UUID PRIMARY KEY,
			seq            BIGSERIAL NOT NULL,
			aggregate_type TEXT NOT NULL,
			aggregate_id   TEXT NOT NULL,
			topic          TEXT NOT NULL,
			payload        JSONB NOT NULL,
			status         TEXT NOT NULL DEFAULT 'PENDING' CHECK (status IN ('PENDING','PROCESSED','FAILED')),
			retries        INTEGER NOT NULL DEFAULT 0 CHECK (retries >= 0),
			created_at     TIMESTAMP WITH TIME ZONE NOT NULL,
			processed_at   TIMESTAMP WITH TIME ZONE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox (status, created_at, seq)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create outbox table: %w", err)
		}
	}
	return nil
}

// InsertOutboxTx inserta la entrada dentro de la transacción del repositorio de entidades.
func InsertOutboxTx(ctx context.Context, tx *sql.Tx, e sharedDomain.OutboxEntry) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO outbox (id, aggregate_type, aggregate_id, topic, payload, status, retries, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.AggregateType, e.AggregateID, e.Topic, []byte(e.Payload), string(e.Status), e.Retries, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry %s: %w", e.ID, err)
	}
	return nil
}

func (r *OutboxRepoPostgres) FetchPending(ctx context.Context, limit, maxRetries int) ([]sharedDomain.OutboxEntry, error) {
	query, args, err := psql.Select(outboxColumns...).
		From("outbox").
		Where(sq.Eq{"status": string(sharedDomain.OutboxPending)}).
		Where(sq.Lt{"retries": maxRetries}).
		OrderBy("created_at ASC", "seq ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}
	return r.query(ctx, query, args...)
}

func (r *OutboxRepoPostgres) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE outbox SET status = 'PROCESSED', processed_at = COALESCE(processed_at, $1)
		 WHERE id = $2 AND status IN ('PENDING', 'PROCESSED')`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get RowsAffected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", sharedDomain.ErrOutboxEntryNotFound, id)
	}
	return nil
}

// IncrementRetries es una única sentencia condicional; sin filas afectadas no hace nada.
func (r *OutboxRepoPostgres) IncrementRetries(ctx context.Context, id uuid.UUID, maxRetries int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE outbox
		 SET retries = retries + 1,
		     status  = CASE WHEN retries + 1 >= $1 THEN 'FAILED' ELSE 'PENDING' END
		 WHERE id = $2 AND status = 'PENDING'`,
		maxRetries, id,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *OutboxRepoPostgres) ListByStatus(ctx context.Context, status sharedDomain.OutboxStatus, limit int) ([]sharedDomain.OutboxEntry, error) {
	b := psql.Select(outboxColumns...).From("outbox").OrderBy("created_at DESC", "seq DESC").Limit(uint64(limit))
	if status != "" {
		b = b.Where(sq.Eq{"status": string(status)})
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	return r.query(ctx, query, args...)
}

func (r *OutboxRepoPostgres) query(ctx context.Context, query string, args ...interface{}) ([]sharedDomain.OutboxEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var entries []sharedDomain.OutboxEntry
	for rows.Next() {
		var (
			e           sharedDomain.OutboxEntry
			payload     []byte // JSONB
			status      string
			processedAt sql.NullTime
		)
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.Topic, &payload, &status, &e.Retries, &e.CreatedAt, &processedAt); err != nil {
			return nil, fmt.Errorf("db scan error: %w", err)
		}
		e.Payload = payload
		e.Status = sharedDomain.OutboxStatus(status)
		if processedAt.Valid {
			t := processedAt.Time
			e.ProcessedAt = &t
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Verificación en tiempo de compilación.
var (
	_ sharedDomain.OutboxRepository = (*OutboxRepoPostgres)(nil)
	_ sharedDomain.OutboxReader     = (*OutboxRepoPostgres)(nil)
)
