package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib" // Driver de PostgreSQL

	// --- Importaciones del dominio y compartidas ---
	matchDomain "github.com/smarcilla/football-oracle-monorepo/internal/match/domain"
	sharedDomain "github.com/smarcilla/football-oracle-monorepo/internal/shared/domain"
	sharedPostgres "github.com/smarcilla/football-oracle-monorepo/internal/shared/infra/platform/db/postgres"
	"github.com/smarcilla/football-oracle-monorepo/internal/shared/infra/platform/db/sqlcriteria"
	sharedQuery "github.com/smarcilla/football-oracle-monorepo/internal/shared/infra/platform/query"
	sharedUtils "github.com/smarcilla/football-oracle-monorepo/internal/shared/infra/utils"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var matchColumns = []string{
	"m.id", "m.season_id", "m.home_team_id", "m.away_team_id", "m.date", "m.status", "m.shots",
	"m.created_at", "m.updated_at", "s.id", "s.league_id", "s.name",
}

var filterColumns = sqlcriteria.Columns{
	matchDomain.FieldLeagueID: "s.league_id",
	matchDomain.FieldSeasonID: "m.season_id",
	matchDomain.FieldStatus:   "m.status",
	"id":                      "m.id",
	"date":                    "m.date",
	"created_at":              "m.created_at",
	"updated_at":              "m.updated_at",
}

var matchSchema = []string{
	`CREATE TABLE IF NOT EXISTS seasons (
		id         BIGSERIAL PRIMARY KEY,
		league_id  TEXT NOT NULL,
		name       TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE (league_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS matches (
		id           BIGINT PRIMARY KEY,
		season_id    BIGINT NOT NULL REFERENCES seasons(id),
		home_team_id BIGINT NOT NULL,
		away_team_id BIGINT NOT NULL,
		date         TIMESTAMPTZ NOT NULL,
		status       TEXT NOT NULL DEFAULT 'IDENTIFIED' CHECK (status IN (
			'IDENTIFIED','SCRAPING','SCRAPED','SIMULATING','SIMULATED','REPORTING','COMPLETED','FAILED')),
		shots        JSONB,
		created_at   TIMESTAMPTZ NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_matches_season ON matches (season_id)`,
	`CREATE INDEX IF NOT EXISTS idx_matches_status ON matches (status)`,
	`CREATE TABLE IF NOT EXISTS simulations (
		match_id   BIGINT PRIMARY KEY REFERENCES matches(id),
		results    JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS reports (
		id         BIGSERIAL PRIMARY KEY,
		match_id   BIGINT NOT NULL UNIQUE REFERENCES matches(id),
		content    TEXT NOT NULL,
		provider   TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
}

// InitPostgres crea las tablas del registro y la del outbox si no existen.
func InitPostgres(db *sql.DB) error {
	for _, stmt := range matchSchema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("init match schema: %w", err)
		}
	}
	return sharedPostgres.InitOutboxSchema(db)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// MatchRepoPostgres implementa MatchRepository para PostgreSQL.
type MatchRepoPostgres struct {
	db *sql.DB
}

// NewMatchRepoPostgres es el constructor del repositorio.
func NewMatchRepoPostgres(db *sql.DB) *MatchRepoPostgres {
	return &MatchRepoPostgres{db: db}
}

// ------------------ Lectura ------------------

// GetByID recupera el partido con su temporada, simulación e informe.
func (r *MatchRepoPostgres) GetByID(ctx context.Context, id int64) (*matchDomain.Match, error) {
	m, err := loadMatch(ctx, r.db, id, false)
	if err != nil {
		return nil, err
	}
	if m.Simulation, err = loadSimulation(ctx, r.db, id); err != nil {
		return nil, err
	}
	if m.Report, err = loadReport(ctx, r.db, id); err != nil {
		return nil, err
	}
	return m, nil
}

// ListByCriteria recupera partidos aplicando filtros, paginación y ordenamiento.
func (r *MatchRepoPostgres) ListByCriteria(ctx context.Context, criteria sharedDomain.Criteria, pagination sharedQuery.OffsetPagination, sort sharedQuery.Sort) ([]*matchDomain.Match, error) {
	where, err := sqlcriteria.Where(criteria, filterColumns)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", matchDomain.ErrInvalidMatch, err)
	}
	if !matchDomain.SortableFields[sort.Field] {
		sort = matchDomain.DefaultSort
	}
	orderBy, _ := sqlcriteria.OrderBy(sort.Field, sort.Desc, filterColumns)

	pagination = pagination.Normalize()
	b := psql.Select(matchColumns...).
		From("matches m").
		Join("seasons s ON s.id = m.season_id").
		OrderBy(orderBy, sharedUtils.Ternary(sort.Desc, "m.id DESC", "m.id ASC")).
		Limit(uint64(pagination.Limit)).
		Offset(uint64(pagination.Offset))
	if where != nil {
		b = b.Where(where)
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var matches []*matchDomain.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("db scan error: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// ------------------ Transición + Outbox ------------------

// ApplyTransition bloquea la fila con FOR UPDATE: dos transiciones sobre el
// mismo partido se serializan y la segunda valida contra el estado ya confirmado.
func (r *MatchRepoPostgres) ApplyTransition(ctx context.Context, id int64, next matchDomain.MatchStatus, change matchDomain.TransitionChange) (*matchDomain.Match, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	m, err := loadMatch(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}
	if err := matchDomain.ValidateTransition(m.Status, next); err != nil {
		return nil, err
	}
	if err := change.Validate(next); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var shots interface{}
	if len(change.Shots) > 0 {
		shots = string(change.Shots)
		m.Shots = change.Shots
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE matches SET status = $1, shots = COALESCE($2::jsonb, shots), updated_at = $3 WHERE id = $4`,
		string(next), shots, now, id,
	); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	m.Status = next
	m.UpdatedAt = now

	if err := attachStageData(ctx, tx, m, change, now); err != nil {
		return nil, err
	}

	entry, ok, err := matchDomain.NotificationFor(m)
	if err != nil {
		return nil, err
	}
	if ok {
		if err := sharedPostgres.InsertOutboxTx(ctx, tx, entry); err != nil {
			return nil, fmt.Errorf("failed to insert outbox: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition %d -> %s: %w", id, next, err)
	}
	return m, nil
}

func attachStageData(ctx context.Context, tx *sql.Tx, m *matchDomain.Match, change matchDomain.TransitionChange, now time.Time) error {
	var err error
	switch {
	case change.Simulation != nil:
		results, mErr := json.Marshal(change.Simulation)
		if mErr != nil {
			return fmt.Errorf("failed to marshal simulation: %w", mErr)
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO simulations (match_id, results, created_at, updated_at) VALUES ($1, $2, $3, $3)
			 ON CONFLICT (match_id) DO UPDATE SET results = EXCLUDED.results, updated_at = EXCLUDED.updated_at`,
			m.ID, string(results), now,
		); err != nil {
			return fmt.Errorf("upsert simulation: %w", err)
		}
		m.Simulation, err = loadSimulation(ctx, tx, m.ID)
	case m.Status == matchDomain.StatusSimulated:
		m.Simulation, err = loadSimulation(ctx, tx, m.ID)
	}
	if err != nil {
		return err
	}

	switch {
	case change.Report != nil:
		rep := matchDomain.Report{MatchID: m.ID, Content: change.Report.Content, Provider: change.Report.Provider}
		err = tx.QueryRowContext(ctx,
			`INSERT INTO reports (match_id, content, provider, created_at, updated_at) VALUES ($1, $2, $3, $4, $4)
			 ON CONFLICT (match_id) DO UPDATE SET content = EXCLUDED.content, provider = EXCLUDED.provider, updated_at = EXCLUDED.updated_at
			 RETURNING id, created_at, updated_at`,
			m.ID, rep.Content, rep.Provider, now,
		).Scan(&rep.ID, &rep.CreatedAt, &rep.UpdatedAt)
		if err != nil {
			return fmt.Errorf("upsert report: %w", err)
		}
		m.Report = &rep
	case m.Status == matchDomain.StatusCompleted:
		m.Report, err = loadReport(ctx, tx, m.ID)
	}
	return err
}

// ------------------ Ingesta masiva ------------------

// BulkUpsert hace la ingesta de una temporada en una sola transacción.
func (r *MatchRepoPostgres) BulkUpsert(ctx context.Context, batch matchDomain.BulkMatches) (int, error) {
	if err := batch.Validate(); err != nil {
		return 0, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	season := matchDomain.Season{LeagueID: batch.LeagueID, Name: batch.SeasonName}
	// DO UPDATE sin cambios para que RETURNING devuelva también la fila existente.
	if err := tx.QueryRowContext(ctx,
		`INSERT INTO seasons (league_id, name, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT (league_id, name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id`,
		batch.LeagueID, batch.SeasonName, now,
	).Scan(&season.ID); err != nil {
		return 0, fmt.Errorf("upsert season: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO matches (id, season_id, home_team_id, away_team_id, date, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, 'IDENTIFIED', $6, $6)
		 ON CONFLICT (id) DO UPDATE SET date = EXCLUDED.date, updated_at = EXCLUDED.updated_at`)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, item := range batch.Matches {
		if _, err := stmt.ExecContext(ctx, item.ID, season.ID, item.HomeTeamID, item.AwayTeamID, item.Date.UTC(), now); err != nil {
			return 0, fmt.Errorf("upsert match %d: %w", item.ID, err)
		}
	}

	entry, err := matchDomain.LeagueSyncedEntry(season, len(batch.Matches))
	if err != nil {
		return 0, err
	}
	if err := sharedPostgres.InsertOutboxTx(ctx, tx, entry); err != nil {
		return 0, fmt.Errorf("failed to insert outbox: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit bulk upsert: %w", err)
	}
	return len(batch.Matches), nil
}

// ------------------ Helpers ------------------

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMatch(row rowScanner) (*matchDomain.Match, error) {
	var (
		m      matchDomain.Match
		s      matchDomain.Season
		status string
		shots  []byte
	)
	if err := row.Scan(&m.ID, &m.SeasonID, &m.HomeTeamID, &m.AwayTeamID, &m.Date, &status, &shots,
		&m.CreatedAt, &m.UpdatedAt, &s.ID, &s.LeagueID, &s.Name); err != nil {
		return nil, err
	}
	m.Status = matchDomain.MatchStatus(status)
	if len(shots) > 0 {
		m.Shots = json.RawMessage(shots)
	}
	m.Season = &s
	return &m, nil
}

func loadMatch(ctx context.Context, q querier, id int64, forUpdate bool) (*matchDomain.Match, error) {
	b := psql.Select(matchColumns...).
		From("matches m").
		Join("seasons s ON s.id = m.season_id").
		Where(sq.Eq{"m.id": id})
	if forUpdate {
		b = b.Suffix("FOR UPDATE OF m")
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}

	m, err := scanMatch(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, matchDomain.ErrMatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db scan error: %w", err)
	}
	return m, nil
}

func loadSimulation(ctx context.Context, q querier, matchID int64) (*matchDomain.Simulation, error) {
	var (
		sim     = matchDomain.Simulation{MatchID: matchID}
		results []byte
	)
	err := q.QueryRowContext(ctx,
		`SELECT results, created_at, updated_at FROM simulations WHERE match_id = $1`, matchID,
	).Scan(&results, &sim.CreatedAt, &sim.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load simulation %d: %w", matchID, err)
	}
	if err := json.Unmarshal(results, &sim.Results); err != nil {
		return nil, fmt.Errorf("invalid simulation results for match %d: %w", matchID, err)
	}
	return &sim, nil
}

func loadReport(ctx context.Context, q querier, matchID int64) (*matchDomain.Report, error) {
	rep := matchDomain.Report{MatchID: matchID}
	err := q.QueryRowContext(ctx,
		`SELECT id, content, provider, created_at, updated_at FROM reports WHERE match_id = $1`, matchID,
	).Scan(&rep.ID, &rep.Content, &rep.Provider, &rep.CreatedAt, &rep.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load report %d: %w", matchID, err)
	}
	return &rep, nil
}

// Verificación estática
var _ matchDomain.MatchRepository = (*MatchRepoPostgres)(nil)
