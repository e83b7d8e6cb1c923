package sqlite

import (
	"database/sql"
	"fmt"

	sharedSQLite "github.com/smarcilla/football-oracle-monorepo/internal/shared/infra/platform/db/sqlite"
)

var matchSchema = []string{
	`CREATE TABLE IF NOT EXISTS seasons (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		league_id  TEXT NOT NULL,
		name       TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		UNIQUE (league_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS matches (
		id           INTEGER PRIMARY KEY,
		season_id    INTEGER NOT NULL REFERENCES seasons(id),
		home_team_id INTEGER NOT NULL,
		away_team_id INTEGER NOT NULL,
		date         DATETIME NOT NULL,
		status       TEXT NOT NULL DEFAULT 'IDENTIFIED' CHECK (status IN (
			'IDENTIFIED','SCRAPING','SCRAPED','SIMULATING','SIMULATED','REPORTING','COMPLETED','FAILED')),
		shots        TEXT,
		created_at   DATETIME NOT NULL,
		updated_at   DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_matches_season ON matches (season_id)`,
	`CREATE INDEX IF NOT EXISTS idx_matches_status ON matches (status)`,
	`CREATE TABLE IF NOT EXISTS simulations (
		match_id   INTEGER PRIMARY KEY REFERENCES matches(id),
		results    TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS reports (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		match_id   INTEGER NOT NULL UNIQUE REFERENCES matches(id),
		content    TEXT NOT NULL,
		provider   TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
}

// InitSQLite crea las tablas del registro y la del outbox si no existen.
func InitSQLite(db *sql.DB) error {
	for _, stmt := range matchSchema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("init match schema: %w", err)
		}
	}
	return sharedSQLite.InitOutboxSchema(db)
}
