// en internal/shared/infra/platform/db/sqlite/outbox_repo.go
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/smarcilla/football-oracle-monorepo/internal/shared/domain"
)

var outboxColumns = []string{"id", "aggregate_type", "aggregate_id", "topic", "payload", "status", "retries", "created_at", "processed_at"}

// OutboxRepoSQLite implementa domain.OutboxRepository y domain.OutboxReader.
type OutboxRepoSQLite struct {
	db *sql.DB
}

func NewOutboxRepoSQLite(db *sql.DB) *OutboxRepoSQLite {
	return &OutboxRepoSQLite{db: db}
}

// InsertOutboxTx inserta la entrada dentro de la transacción del repositorio de entidades.
func InsertOutboxTx(ctx context.Context, tx *sql.Tx, e domain.OutboxEntry) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO outbox (id, aggregate_type, aggregate_id, topic, payload, status, retries, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(), e.AggregateType, e.AggregateID, e.Topic, string(e.Payload), string(e.Status), e.Retries, e.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry %s: %w", e.ID, err)
	}
	return nil
}

// FetchPending obtiene las entradas PENDING más antiguas por debajo del techo de reintentos.
func (r *OutboxRepoSQLite) FetchPending(ctx context.Context, limit, maxRetries int) ([]domain.OutboxEntry, error) {
	query, args, err := sq.Select(outboxColumns...).
		From("outbox").
		Where(sq.Eq{"status": string(domain.OutboxPending)}).
		Where(sq.Lt{"retries": maxRetries}).
		OrderBy("created_at ASC", "rowid ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}
	return r.query(ctx, query, args...)
}

// MarkProcessed conserva el primer processed_at si se llama dos veces.
func (r *OutboxRepoSQLite) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE outbox SET status = 'PROCESSED', processed_at = COALESCE(processed_at, ?)
		 WHERE id = ? AND status IN ('PENDING', 'PROCESSED')`,
		time.Now().UTC(), id.String(),
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get RowsAffected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", domain.ErrOutboxEntryNotFound, id)
	}
	return nil
}

// IncrementRetries resuelve lectura, incremento y techo en una sola sentencia.
// Sin filas afectadas (id inexistente o ya terminal) no es un error.
func (r *OutboxRepoSQLite) IncrementRetries(ctx context.Context, id uuid.UUID, maxRetries int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE outbox
		 SET retries = retries + 1,
		     status  = CASE WHEN retries + 1 >= ? THEN 'FAILED' ELSE 'PENDING' END
		 WHERE id = ? AND status = 'PENDING'`,
		maxRetries, id.String(),
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ListByStatus lista entradas para inspección; status vacío devuelve todas.
func (r *OutboxRepoSQLite) ListByStatus(ctx context.Context, status domain.OutboxStatus, limit int) ([]domain.OutboxEntry, error) {
	b := sq.Select(outboxColumns...).From("outbox").OrderBy("created_at DESC", "rowid DESC").Limit(uint64(limit))
	if status != "" {
		b = b.Where(sq.Eq{"status": string(status)})
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	return r.query(ctx, query, args...)
}

func (r *OutboxRepoSQLite) query(ctx context.Context, query string, args ...interface{}) ([]domain.OutboxEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var entries []domain.OutboxEntry
	for rows.Next() {
		var (
			e           domain.OutboxEntry
			payload     string
			status      string
			processedAt sql.NullTime
		)
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.Topic, &payload, &status, &e.Retries, &e.CreatedAt, &processedAt); err != nil {
			return nil, fmt.Errorf("db scan error: %w", err)
		}
		e.Payload = []byte(payload)
		e.Status = domain.OutboxStatus(status)
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
	_ domain.OutboxRepository = (*OutboxRepoSQLite)(nil)
	_ domain.OutboxReader     = (*OutboxRepoSQLite)(nil)
)
