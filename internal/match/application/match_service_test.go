// en internal/match/application/match_service_test.go
package application

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	matchDomain "github.com/smarcilla/football-oracle-monorepo/internal/match/domain"
	matchCache "github.com/smarcilla/football-oracle-monorepo/internal/match/infra/outbound/cache"
	sharedCache "github.com/smarcilla/football-oracle-monorepo/internal/shared/infra/platform/cache"
	sharedQuery "github.com/smarcilla/football-oracle-monorepo/internal/shared/infra/platform/query"
	"github.com/smarcilla/football-oracle-monorepo/tests/mocks"
)

func newService(repo *mocks.InMemoryMatchRepo, cache sharedCache.Cache) *MatchService {
	return NewMatchService(repo, cache, time.Minute, zap.NewNop())
}

func TestGetMatch_CacheAside(t *testing.T) {
	// Arrange
	repo := mocks.NewInMemoryMatchRepo()
	repo.Seed(42, matchDomain.StatusIdentified)
	cache := mocks.NewDummyCache()
	service := newService(repo, cache)
	key := matchDomain.MatchCacheKeyByID(42)

	// Act: primera lectura va al repositorio y rellena la caché antes de volver
	m, err := service.GetMatch(context.Background(), 42)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, int64(42), m.ID)
	assert.True(t, cache.Has(key))

	// La segunda lectura sale de la caché
	_, err = service.GetMatch(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.GetCalls)
}

func TestGetMatch_NotFoundIsNotRetried(t *testing.T) {
	repo := mocks.NewInMemoryMatchRepo()
	service := newService(repo, mocks.NewDummyCache())

	_, err := service.GetMatch(context.Background(), 404)

	assert.ErrorIs(t, err, matchDomain.ErrMatchNotFound)
	assert.Equal(t, 1, repo.GetCalls)
}

func TestGetMatch_StoreErrorIsRetried(t *testing.T) {
	repo := mocks.NewInMemoryMatchRepo()
	repo.Err = errors.New("database is locked")
	service := newService(repo, nil)

	_, err := service.GetMatch(context.Background(), 1)

	assert.ErrorContains(t, err, "database is locked")
	assert.Equal(t, readAttempts, repo.GetCalls)
}

func TestGetMatch_ReadAfterTransitionSeesNewStatus(t *testing.T) {
	repo := mocks.NewInMemoryMatchRepo()
	cache := matchCache.NewInMemoryCache(time.Minute, time.Hour)
	t.Cleanup(cache.Stop)
	service := newService(repo, cache)
	ctx := context.Background()

	stale := 0
	for id := int64(1); id <= 200; id++ {
		repo.Seed(id, matchDomain.StatusIdentified)
		_, err := service.GetMatch(ctx, id)
		require.NoError(t, err)
		_, err = service.UpdateMatchStatus(ctx, id, matchDomain.StatusScraping)
		require.NoError(t, err)

		m, err := service.GetMatch(ctx, id)
		require.NoError(t, err)
		if m.Status != matchDomain.StatusScraping {
			stale++
		}
	}
	assert.Zero(t, stale, "lecturas con el estado anterior a la transición")
}

func TestGetMatch_SkipsFillWhenInvalidatedDuringRead(t *testing.T) {
	// Arrange: la transición se confirma entre la lectura del store y el relleno
	repo := mocks.NewInMemoryMatchRepo()
	repo.Seed(5, matchDomain.StatusIdentified)
	cache := matchCache.NewInMemoryCache(time.Minute, time.Hour)
	t.Cleanup(cache.Stop)
	service := newService(repo, cache)
	ctx := context.Background()
	fired := false
	repo.AfterGet = func(id int64) {
		if fired {
			return
		}
		fired = true
		_, err := service.UpdateMatchStatus(ctx, id, matchDomain.StatusScraping)
		require.NoError(t, err)
	}

	// Act
	m, err := service.GetMatch(ctx, 5)

	// Assert: la lectura devuelve lo que vio, pero no lo deja en caché
	require.NoError(t, err)
	assert.Equal(t, matchDomain.StatusIdentified, m.Status)
	var cached matchDomain.Match
	hit, err := cache.Get(ctx, matchDomain.MatchCacheKeyByID(5), &cached)
	require.NoError(t, err)
	assert.False(t, hit)

	m, err = service.GetMatch(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, matchDomain.StatusScraping, m.Status)
}

func TestUpdateMatchStatus_InvalidatesCacheBeforeReturning(t *testing.T) {
	repo := mocks.NewInMemoryMatchRepo()
	repo.Seed(7, matchDomain.StatusIdentified)
	cache := mocks.NewDummyCache()
	key := matchDomain.MatchCacheKeyByID(7)
	require.NoError(t, cache.Set(context.Background(), key, &matchDomain.Match{ID: 7, Status: matchDomain.StatusIdentified}, 0))
	service := newService(repo, cache)

	m, err := service.UpdateMatchStatus(context.Background(), 7, matchDomain.StatusScraping)

	require.NoError(t, err)
	assert.Equal(t, matchDomain.StatusScraping, m.Status)
	assert.False(t, cache.Has(key), "la caché se invalida de forma síncrona")
	assert.Empty(t, repo.Outbox, "SCRAPING no notifica")
}

func TestUpdateMatchStatus_InvalidTransition(t *testing.T) {
	// Arrange
	repo := mocks.NewInMemoryMatchRepo()
	repo.Seed(7, matchDomain.StatusIdentified)
	core, logs := observer.New(zapcore.WarnLevel)
	service := NewMatchService(repo, mocks.NewDummyCache(), 0, zap.New(core))

	// Act
	_, err := service.UpdateMatchStatus(context.Background(), 7, matchDomain.StatusCompleted)

	// Assert
	assert.ErrorIs(t, err, matchDomain.ErrInvalidTransition)
	assert.Empty(t, repo.Outbox)
	assert.Equal(t, 1, logs.FilterMessage("Transition rejected").Len())
	m, _ := repo.GetByID(context.Background(), 7)
	assert.Equal(t, matchDomain.StatusIdentified, m.Status)
}

func TestPipeline_EmitsOneNotificationPerStage(t *testing.T) {
	repo := mocks.NewInMemoryMatchRepo()
	repo.Seed(1, matchDomain.StatusIdentified)
	service := newService(repo, mocks.NewDummyCache())
	ctx := context.Background()

	_, err := service.UpdateMatchData(ctx, 1, json.RawMessage(`[{"xg":0.2}]`))
	require.NoError(t, err)
	_, err = service.RecordSimulation(ctx, 1, matchDomain.SimulationResults{HomeWinProb: 0.3, DrawProb: 0.3, AwayWinProb: 0.4, Iterations: 500})
	require.NoError(t, err)
	m, err := service.RecordReport(ctx, 1, matchDomain.ReportDraft{Content: "Victoria visitante ajustada."})
	require.NoError(t, err)

	assert.Equal(t, matchDomain.StatusCompleted, m.Status)
	assert.Equal(t, []string{"match.data.scraped", "match.simulation.completed", "match.report.generated"}, repo.OutboxTopics())
	assert.JSONEq(t, `{"matchId":1,"winnerProb":"away"}`, string(repo.Outbox[1].Payload))
}

func TestRecordSimulation_RejectsBadProbabilities(t *testing.T) {
	repo := mocks.NewInMemoryMatchRepo()
	repo.Seed(1, matchDomain.StatusScraped)
	service := newService(repo, nil)

	_, err := service.RecordSimulation(context.Background(), 1, matchDomain.SimulationResults{HomeWinProb: 2, Iterations: 1})

	assert.ErrorIs(t, err, matchDomain.ErrInvalidMatch)
	assert.Empty(t, repo.Outbox)
}

func TestBulkCreateMatches(t *testing.T) {
	repo := mocks.NewInMemoryMatchRepo()
	cache := mocks.NewDummyCache()
	service := newService(repo, cache)
	date := time.Date(2024, 8, 18, 19, 0, 0, 0, time.UTC)

	n, err := service.BulkCreateMatches(context.Background(), matchDomain.BulkMatches{
		LeagueID: "LaLiga", SeasonName: "2024/2025",
		Matches: []matchDomain.BulkMatchItem{
			{ID: 1, Date: date, HomeTeamID: 1, AwayTeamID: 2},
			{ID: 2, Date: date, HomeTeamID: 3, AwayTeamID: 4},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"league.synced"}, repo.OutboxTopics())
	assert.JSONEq(t, `{"league":"LaLiga","year":"2024/2025","matchesCount":2}`, string(repo.Outbox[0].Payload))
	_, _, deletes := cache.Counts()
	assert.Equal(t, 2, deletes)
}

func TestListMatches_Filters(t *testing.T) {
	repo := mocks.NewInMemoryMatchRepo()
	repo.Seed(1, matchDomain.StatusIdentified)
	repo.Seed(2, matchDomain.StatusScraped)
	repo.Seed(3, matchDomain.StatusScraped)
	service := newService(repo, nil)

	got, err := service.ListMatches(context.Background(), MatchFilter{
		Status: matchDomain.StatusScraped,
		Sort:   sharedQuery.Sort{Field: "id", Desc: true},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(3), got[0].ID)

	_, err = service.ListMatches(context.Background(), MatchFilter{Status: "ARCHIVED"})
	assert.ErrorIs(t, err, matchDomain.ErrInvalidMatch)
}
