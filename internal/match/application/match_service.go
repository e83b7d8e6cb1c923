// en internal/match/application/match_service.go
package application

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	// --- Importaciones del dominio y compartidas ---
	matchDomain "github.com/smarcilla/football-oracle-monorepo/internal/match/domain"
	sharedDomain "github.com/smarcilla/football-oracle-monorepo/internal/shared/domain"
	sharedCache "github.com/smarcilla/football-oracle-monorepo/internal/shared/infra/platform/cache"
	sharedQuery "github.com/smarcilla/football-oracle-monorepo/internal/shared/infra/platform/query"
	sharedUtils "github.com/smarcilla/football-oracle-monorepo/internal/shared/infra/utils"
)

const (
	defaultCacheTTL = 2 * time.Minute
	cacheOpTimeout  = 200 * time.Millisecond
	readAttempts      = 3
	readBackoff       = 100 * time.Millisecond
)

// MatchFilter son los filtros opcionales de un listado. Los campos vacíos no filtran.
type MatchFilter struct {
	LeagueID   string
	SeasonID   int64
	Status     matchDomain.MatchStatus
	Pagination sharedQuery.OffsetPagination
	Sort       sharedQuery.Sort
}

// MatchService define los casos de uso del ciclo de vida de los partidos.
// Todas las escrituras pasan por el repositorio, que encola la notificación
// en la misma transacción.
type MatchService struct {
	repo     matchDomain.MatchRepository
	cache    sharedCache.Cache
	cacheTTL time.Duration
	log      *zap.Logger

	// fillMu ordena rellenos e invalidaciones; gen cuenta las invalidaciones.
	fillMu sync.Mutex
	gen    uint64
}

// NewMatchService: cache puede ser nil; un ttl <= 0 usa el valor por defecto.
func NewMatchService(repo matchDomain.MatchRepository, cache sharedCache.Cache, cacheTTL time.Duration, log *zap.Logger) *MatchService {
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	return &MatchService{repo: repo, cache: cache, cacheTTL: cacheTTL, log: log}
}

// GetMatch usa cache-aside con reintentos contra el repositorio.
func (s *MatchService) GetMatch(ctx context.Context, id int64) (*matchDomain.Match, error) {
	key := matchDomain.MatchCacheKeyByID(id)
	if s.cache != nil {
		var m matchDomain.Match
		if hit, _ := s.cache.Get(ctx, key, &m); hit {
			return &m, nil
		}
	}

	gen := s.generation()
	var match *matchDomain.Match
	err := sharedUtils.Retry(ctx, readAttempts, readBackoff, func() error {
		var errRetry error
		match, errRetry = s.repo.GetByID(ctx, id)
		if errors.Is(errRetry, matchDomain.ErrMatchNotFound) {
			return sharedUtils.Permanent(errRetry)
		}
		return errRetry
	})
	if err != nil {
		if errors.Is(err, matchDomain.ErrMatchNotFound) {
			s.log.Warn("Match not found", zap.Int64("match_id", id))
		} else {
			s.log.Error("Failed to fetch match", zap.Int64("match_id", id), zap.Error(err))
		}
		return nil, err
	}

	s.fill(ctx, key, gen, match)
	return match, nil
}

// ListMatches combina los filtros presentes con AND.
func (s *MatchService) ListMatches(ctx context.Context, f MatchFilter) ([]*matchDomain.Match, error) {
	var parts []sharedDomain.Criteria
	if f.LeagueID != "" {
		parts = append(parts, matchDomain.LeagueCriteria{LeagueID: f.LeagueID})
	}
	if f.SeasonID > 0 {
		parts = append(parts, matchDomain.SeasonCriteria{SeasonID: f.SeasonID})
	}
	if f.Status != "" {
		if !f.Status.IsValid() {
			return nil, matchDomain.ErrInvalidMatch
		}
		parts = append(parts, matchDomain.StatusCriteria{Status: f.Status})
	}
	return s.repo.ListByCriteria(ctx, sharedDomain.And(parts...), f.Pagination.Normalize(), f.Sort)
}

// UpdateMatchStatus mueve el partido sin datos asociados.
func (s *MatchService) UpdateMatchStatus(ctx context.Context, id int64, next matchDomain.MatchStatus) (*matchDomain.Match, error) {
	return s.transition(ctx, id, next, matchDomain.TransitionChange{})
}

// UpdateMatchData adjunta los tiros extraídos y mueve el partido a SCRAPED.
func (s *MatchService) UpdateMatchData(ctx context.Context, id int64, shots json.RawMessage) (*matchDomain.Match, error) {
	return s.transition(ctx, id, matchDomain.StatusScraped, matchDomain.TransitionChange{Shots: shots})
}

// RecordSimulation guarda el resultado y mueve el partido a SIMULATED.
func (s *MatchService) RecordSimulation(ctx context.Context, id int64, results matchDomain.SimulationResults) (*matchDomain.Match, error) {
	return s.transition(ctx, id, matchDomain.StatusSimulated, matchDomain.TransitionChange{Simulation: &results})
}

// RecordReport guarda el informe y cierra el pipeline del partido.
func (s *MatchService) RecordReport(ctx context.Context, id int64, draft matchDomain.ReportDraft) (*matchDomain.Match, error) {
	return s.transition(ctx, id, matchDomain.StatusCompleted, matchDomain.TransitionChange{Report: &draft})
}

// BulkCreateMatches hace la ingesta de una temporada con una sola notificación.
func (s *MatchService) BulkCreateMatches(ctx context.Context, batch matchDomain.BulkMatches) (int, error) {
	n, err := s.repo.BulkUpsert(ctx, batch)
	if err != nil {
		s.log.Error("Failed to ingest matches",
			zap.String("league", batch.LeagueID),
			zap.String("season", batch.SeasonName),
			zap.Error(err))
		return 0, err
	}

	// Los partidos existentes pudieron cambiar de fecha
	for _, item := range batch.Matches {
		s.invalidate(ctx, item.ID)
	}
	s.log.Info("📥 Ingesta completada",
		zap.String("league", batch.LeagueID),
		zap.String("season", batch.SeasonName),
		zap.Int("matches", n))
	return n, nil
}

func (s *MatchService) transition(ctx context.Context, id int64, next matchDomain.MatchStatus, change matchDomain.TransitionChange) (*matchDomain.Match, error) {
	m, err := s.repo.ApplyTransition(ctx, id, next, change)
	if err != nil {
		if errors.Is(err, matchDomain.ErrInvalidTransition) || errors.Is(err, matchDomain.ErrMatchNotFound) {
			s.log.Warn("Transition rejected", zap.Int64("match_id", id), zap.String("next", string(next)), zap.Error(err))
		} else {
			s.log.Error("Failed to apply transition", zap.Int64("match_id", id), zap.String("next", string(next)), zap.Error(err))
		}
		return nil, err
	}

	s.invalidate(ctx, id)
	s.log.Info("✅ Transición aplicada", zap.Int64("match_id", id), zap.String("status", string(m.Status)))
	return m, nil
}

func (s *MatchService) generation() uint64 {
	s.fillMu.Lock()
	defer s.fillMu.Unlock()
	return s.gen
}

// fill escribe la lectura en caché antes de responder. Si hubo una invalidación
// desde que empezó la lectura, el valor puede ser anterior a ella y no se guarda.
func (s *MatchService) fill(ctx context.Context, key string, gen uint64, m *matchDomain.Match) {
	if s.cache == nil {
		return
	}
	s.fillMu.Lock()
	defer s.fillMu.Unlock()
	if s.gen != gen {
		s.log.Debug("Cache fill skipped after invalidation", zap.String("key", key))
		return
	}
	cacheCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheOpTimeout)
	defer cancel()
	if err := s.cache.Set(cacheCtx, key, m, s.cacheTTL); err != nil {
		s.log.Warn("Cache update failed", zap.String("key", key), zap.Error(err))
	}
}

// invalidate borra la entrada de caché antes de responder: una lectura
// posterior no puede ver el estado anterior a la transición.
func (s *MatchService) invalidate(ctx context.Context, id int64) {
	if s.cache == nil {
		return
	}
	s.fillMu.Lock()
	defer s.fillMu.Unlock()
	s.gen++
	cacheCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheOpTimeout)
	defer cancel()
	if err := s.cache.Delete(cacheCtx, matchDomain.MatchCacheKeyByID(id)); err != nil {
		s.log.Warn("⚠️ Cache invalidation failed", zap.Int64("match_id", id), zap.Error(err))
	}
}
