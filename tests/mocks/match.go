package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	matchDomain "github.com/smarcilla/football-oracle-monorepo/internal/match/domain"
	sharedDomain "github.com/smarcilla/football-oracle-monorepo/internal/shared/domain"
	sharedQuery "github.com/smarcilla/football-oracle-monorepo/internal/shared/infra/platform/query"
)

// InMemoryMatchRepo simula MatchRepository con outbox incluido. Aplica la
// misma máquina de estados que los repositorios reales.
type InMemoryMatchRepo struct {
	Matches map[int64]*matchDomain.Match
	Seasons []matchDomain.Season
	Outbox  []sharedDomain.OutboxEntry
	mu      sync.Mutex

	// Err, si no es nil, lo devuelven todas las operaciones.
	Err      error
	GetCalls int
	// AfterGet, si no es nil, se ejecuta tras cada lectura con el lock liberado.
	AfterGet func(id int64)
}

func NewInMemoryMatchRepo() *InMemoryMatchRepo {
	return &InMemoryMatchRepo{Matches: make(map[int64]*matchDomain.Match)}
}

// Seed añade un partido en el estado indicado sin generar outbox.
func (r *InMemoryMatchRepo) Seed(id int64, status matchDomain.MatchStatus) *matchDomain.Match {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	m := &matchDomain.Match{ID: id, SeasonID: 1, HomeTeamID: 1, AwayTeamID: 2, Date: now, Status: status, CreatedAt: now, UpdatedAt: now}
	r.Matches[id] = m
	return m
}

func (r *InMemoryMatchRepo) GetByID(ctx context.Context, id int64) (*matchDomain.Match, error) {
	m, err := r.getByID(id)
	if r.AfterGet != nil {
		r.AfterGet(id)
	}
	return m, err
}

func (r *InMemoryMatchRepo) getByID(id int64) (*matchDomain.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.GetCalls++
	if r.Err != nil {
		return nil, r.Err
	}
	m, ok := r.Matches[id]
	if !ok {
		return nil, matchDomain.ErrMatchNotFound
	}
	cp := *m
	return &cp, nil
}

// ListByCriteria solo entiende igualdades sobre status y season_id.
func (r *InMemoryMatchRepo) ListByCriteria(ctx context.Context, criteria sharedDomain.Criteria, pagination sharedQuery.OffsetPagination, s sharedQuery.Sort) ([]*matchDomain.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}

	var out []*matchDomain.Match
	for _, m := range r.Matches {
		if matches(m, criteria) {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if s.Desc {
			return out[i].ID > out[j].ID
		}
		return out[i].ID < out[j].ID
	})

	p := pagination.Normalize()
	if p.Offset >= len(out) {
		return []*matchDomain.Match{}, nil
	}
	end := p.Offset + p.Limit
	if end > len(out) {
		end = len(out)
	}
	return out[p.Offset:end], nil
}

func matches(m *matchDomain.Match, criteria sharedDomain.Criteria) bool {
	if criteria == nil {
		return true
	}
	for _, c := range criteria.ToConditions() {
		switch c.Field {
		case matchDomain.FieldStatus:
			if string(m.Status) != c.Value {
				return false
			}
		case matchDomain.FieldSeasonID:
			if m.SeasonID != c.Value {
				return false
			}
		}
	}
	return true
}

func (r *InMemoryMatchRepo) ApplyTransition(ctx context.Context, id int64, next matchDomain.MatchStatus, change matchDomain.TransitionChange) (*matchDomain.Match, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	stored, ok := r.Matches[id]
	if !ok {
		return nil, matchDomain.ErrMatchNotFound
	}
	if err := matchDomain.ValidateTransition(stored.Status, next); err != nil {
		return nil, err
	}
	if err := change.Validate(next); err != nil {
		return nil, err
	}

	m := *stored
	m.Status = next
	m.UpdatedAt = time.Now().UTC()
	if len(change.Shots) > 0 {
		m.Shots = change.Shots
	}
	if change.Simulation != nil {
		m.Simulation = &matchDomain.Simulation{MatchID: id, Results: *change.Simulation, CreatedAt: m.UpdatedAt, UpdatedAt: m.UpdatedAt}
	}
	if change.Report != nil {
		m.Report = &matchDomain.Report{ID: int64(len(r.Outbox) + 1), MatchID: id, Content: change.Report.Content, Provider: change.Report.Provider}
	}

	entry, notify, err := matchDomain.NotificationFor(&m)
	if err != nil {
		return nil, err
	}
	r.Matches[id] = &m
	if notify {
		r.Outbox = append(r.Outbox, entry)
	}
	cp := m
	return &cp, nil
}

func (r *InMemoryMatchRepo) BulkUpsert(ctx context.Context, batch matchDomain.BulkMatches) (int, error) {
	if err := batch.Validate(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return 0, r.Err
	}

	var season *matchDomain.Season
	for i := range r.Seasons {
		if r.Seasons[i].LeagueID == batch.LeagueID && r.Seasons[i].Name == batch.SeasonName {
			season = &r.Seasons[i]
		}
	}
	if season == nil {
		r.Seasons = append(r.Seasons, matchDomain.Season{ID: int64(len(r.Seasons) + 1), LeagueID: batch.LeagueID, Name: batch.SeasonName})
		season = &r.Seasons[len(r.Seasons)-1]
	}

	now := time.Now().UTC()
	for _, item := range batch.Matches {
		if m, ok := r.Matches[item.ID]; ok {
			m.Date = item.Date
			m.UpdatedAt = now
			continue
		}
		r.Matches[item.ID] = &matchDomain.Match{
			ID: item.ID, SeasonID: season.ID, HomeTeamID: item.HomeTeamID, AwayTeamID: item.AwayTeamID,
			Date: item.Date, Status: matchDomain.StatusIdentified, CreatedAt: now, UpdatedAt: now,
		}
	}

	entry, err := matchDomain.LeagueSyncedEntry(*season, len(batch.Matches))
	if err != nil {
		return 0, err
	}
	r.Outbox = append(r.Outbox, entry)
	return len(batch.Matches), nil
}

// OutboxTopics devuelve los topics encolados en orden.
func (r *InMemoryMatchRepo) OutboxTopics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	topics := make([]string, 0, len(r.Outbox))
	for _, e := range r.Outbox {
		topics = append(topics, e.Topic)
	}
	return topics
}

// Verificación estática
var _ matchDomain.MatchRepository = (*InMemoryMatchRepo)(nil)
