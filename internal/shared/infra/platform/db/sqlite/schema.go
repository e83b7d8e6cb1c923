package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // Driver puro Go, sin cgo
)

// Open abre la base de datos con las pragmas que necesita el registro.
// SQLite admite un solo escritor: con una única conexión las transacciones
// se serializan en lugar de fallar con SQLITE_BUSY.
func Open(path string) (*sql.DB, error) {
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	dsn += sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_time_format=sqlite"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

var outboxSchema = []string{
	`CREATE TABLE IF NOT EXISTS outbox (
		id             TEXT PRIMARY KEY,
		aggregate_type TEXT NOT NULL,
		aggregate_id   TEXT NOT NULL,
		topic          TEXT NOT NULL,
		payload        TEXT NOT NULL,
		status         TEXT NOT NULL DEFAULT 'PENDING' CHECK (status IN ('PENDING','PROCESSED','FAILED')),
		retries        INTEGER NOT NULL DEFAULT 0 CHECK (retries >= 0),
		created_at     DATETIME NOT NULL,
		processed_at   DATETIME
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox (status, created_at)`,
}

// InitOutboxSchema crea la tabla outbox si no existe.
func InitOutboxSchema(db *sql.DB) error {
	for _, stmt := range outboxSchema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("init outbox schema: %w", err)
		}
	}
	return nil
}
