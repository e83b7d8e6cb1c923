package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	matchDomain "github.com/smarcilla/football-oracle-monorepo/internal/match/domain"
	sharedDomain "github.com/smarcilla/football-oracle-monorepo/internal/shared/domain"
	"github.com/smarcilla/football-oracle-monorepo/internal/shared/infra/platform/db/sqlcriteria"
	sharedSQLite "github.com/smarcilla/football-oracle-monorepo/internal/shared/infra/platform/db/sqlite"
	sharedQuery "github.com/smarcilla/football-oracle-monorepo/internal/shared/infra/platform/query"
	sharedUtils "github.com/smarcilla/football-oracle-monorepo/internal/shared/infra/utils"
)

var matchColumns = []string{
	"m.id", "m.season_id", "m.home_team_id", "m.away_team_id", "m.date", "m.status", "m.shots",
	"m.created_at", "m.updated_at", "s.id", "s.league_id", "s.name",
}

// filterColumns traduce los campos lógicos de filtro y orden a columnas SQL.
var filterColumns = sqlcriteria.Columns{
	matchDomain.FieldLeagueID: "s.league_id",
	matchDomain.FieldSeasonID: "m.season_id",
	matchDomain.FieldStatus:   "m.status",
	"id":                      "m.id",
	"date":                    "m.date",
	"created_at":              "m.created_at",
	"updated_at":              "m.updated_at",
}

// querier es lo común a *sql.DB y *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// MatchRepoSQLite implementa MatchRepository sobre SQLite.
// Con una sola conexión abierta, cada transacción excluye a las demás.
type MatchRepoSQLite struct {
	db *sql.DB
}

func NewMatchRepoSQLite(db *sql.DB) *MatchRepoSQLite {
	return &MatchRepoSQLite{db: db}
}

// ------------------ Lectura ------------------

func (r *MatchRepoSQLite) GetByID(ctx context.Context, id int64) (*matchDomain.Match, error) {
	m, err := loadMatch(ctx, r.db, id)
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

// ListByCriteria no carga simulaciones ni informes: es la vista de listado.
func (r *MatchRepoSQLite) ListByCriteria(ctx context.Context, criteria sharedDomain.Criteria, pagination sharedQuery.OffsetPagination, sort sharedQuery.Sort) ([]*matchDomain.Match, error) {
	where, err := sqlcriteria.Where(criteria, filterColumns)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", matchDomain.ErrInvalidMatch, err)
	}

	if !matchDomain.SortableFields[sort.Field] {
		sort = matchDomain.DefaultSort
	}
	orderBy, _ := sqlcriteria.OrderBy(sort.Field, sort.Desc, filterColumns)

	pagination = pagination.Normalize()
	b := sq.Select(matchColumns...).
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
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// ------------------ Transición + Outbox ------------------

// ApplyTransition valida contra el estado leído dentro de la transacción y
// escribe estado, datos asociados y entrada de outbox en un solo commit.
func (r *MatchRepoSQLite) ApplyTransition(ctx context.Context, id int64, next matchDomain.MatchStatus, change matchDomain.TransitionChange) (*matchDomain.Match, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback() // Se ignora si el Commit() es exitoso

	m, err := loadMatch(ctx, tx, id)
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
	res, err := tx.ExecContext(ctx,
		`UPDATE matches SET status = ?, shots = COALESCE(?, shots), updated_at = ? WHERE id = ? AND status = ?`,
		string(next), shots, now, id, string(m.Status),
	)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return nil, &matchDomain.TransitionError{From: m.Status, To: next}
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
		if err := sharedSQLite.InsertOutboxTx(ctx, tx, entry); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition %d -> %s: %w", id, next, err)
	}
	return m, nil
}

// attachStageData guarda la simulación o el informe que acompañan a la
// transición, o carga los ya guardados para la foto de la notificación.
func attachStageData(ctx context.Context, tx *sql.Tx, m *matchDomain.Match, change matchDomain.TransitionChange, now time.Time) error {
	var err error
	switch {
	case change.Simulation != nil:
		results, mErr := json.Marshal(change.Simulation)
		if mErr != nil {
			return fmt.Errorf("failed to marshal simulation: %w", mErr)
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO simulations (match_id, results, created_at, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(match_id) DO UPDATE SET results = excluded.results, updated_at = excluded.updated_at`,
			m.ID, string(results), now, now,
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
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO reports (match_id, content, provider, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(match_id) DO UPDATE SET content = excluded.content, provider = excluded.provider, updated_at = excluded.updated_at`,
			m.ID, change.Report.Content, change.Report.Provider, now, now,
		); err != nil {
			return fmt.Errorf("upsert report: %w", err)
		}
		m.Report, err = loadReport(ctx, tx, m.ID)
	case m.Status == matchDomain.StatusCompleted:
		m.Report, err = loadReport(ctx, tx, m.ID)
	}
	return err
}

// ------------------ Ingesta masiva ------------------

// BulkUpsert crea la temporada si no existe, inserta o actualiza la fecha de
// cada partido y deja una única entrada league.synced, todo en una transacción.
func (r *MatchRepoSQLite) BulkUpsert(ctx context.Context, batch matchDomain.BulkMatches) (int, error) {
	if err := batch.Validate(); err != nil {
		return 0, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO seasons (league_id, name, created_at) VALUES (?, ?, ?) ON CONFLICT(league_id, name) DO NOTHING`,
		batch.LeagueID, batch.SeasonName, now,
	); err != nil {
		return 0, fmt.Errorf("upsert season: %w", err)
	}
	season := matchDomain.Season{LeagueID: batch.LeagueID, Name: batch.SeasonName}
	if err := tx.QueryRowContext(ctx,
		`SELECT id FROM seasons WHERE league_id = ? AND name = ?`, batch.LeagueID, batch.SeasonName,
	).Scan(&season.ID); err != nil {
		return 0, fmt.Errorf("load season: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO matches (id, season_id, home_team_id, away_team_id, date, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 'IDENTIFIED', ?, ?)
		 ON CONFLICT(id) DO UPDATE SET date = excluded.date, updated_at = excluded.updated_at`)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, item := range batch.Matches {
		if _, err := stmt.ExecContext(ctx, item.ID, season.ID, item.HomeTeamID, item.AwayTeamID, item.Date.UTC(), now, now); err != nil {
			return 0, fmt.Errorf("upsert match %d: %w", item.ID, err)
		}
	}

	entry, err := matchDomain.LeagueSyncedEntry(season, len(batch.Matches))
	if err != nil {
		return 0, err
	}
	if err := sharedSQLite.InsertOutboxTx(ctx, tx, entry); err != nil {
		return 0, err
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
		shots  sql.NullString
	)
	if err := row.Scan(&m.ID, &m.SeasonID, &m.HomeTeamID, &m.AwayTeamID, &m.Date, &status, &shots,
		&m.CreatedAt, &m.UpdatedAt, &s.ID, &s.LeagueID, &s.Name); err != nil {
		return nil, err
	}
	m.Status = matchDomain.MatchStatus(status)
	if shots.Valid {
		m.Shots = json.RawMessage(shots.String)
	}
	m.Season = &s
	return &m, nil
}

func loadMatch(ctx context.Context, q querier, id int64) (*matchDomain.Match, error) {
	query, args, err := sq.Select(matchColumns...).
		From("matches m").
		Join("seasons s ON s.id = m.season_id").
		Where(sq.Eq{"m.id": id}).
		ToSql()
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
		results string
	)
	err := q.QueryRowContext(ctx,
		`SELECT results, created_at, updated_at FROM simulations WHERE match_id = ?`, matchID,
	).Scan(&results, &sim.CreatedAt, &sim.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load simulation %d: %w", matchID, err)
	}
	if err := json.Unmarshal([]byte(results), &sim.Results); err != nil {
		return nil, fmt.Errorf("invalid simulation results for match %d: %w", matchID, err)
	}
	return &sim, nil
}

func loadReport(ctx context.Context, q querier, matchID int64) (*matchDomain.Report, error) {
	rep := matchDomain.Report{MatchID: matchID}
	err := q.QueryRowContext(ctx,
		`SELECT id, content, provider, created_at, updated_at FROM reports WHERE match_id = ?`, matchID,
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
var (
	_ matchDomain.MatchRepository = (*MatchRepoSQLite)(nil)
	_ querier                     = (*sql.DB)(nil)
	_ querier                     = (*sql.Tx)(nil)
)
