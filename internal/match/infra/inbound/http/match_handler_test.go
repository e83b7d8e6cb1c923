package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	analyticsDomain "github.com/smarcilla/football-oracle-monorepo/internal/analytics/domain"
	"github.com/smarcilla/football-oracle-monorepo/internal/match/application"
	matchDomain "github.com/smarcilla/football-oracle-monorepo/internal/match/domain"
	sharedDomain "github.com/smarcilla/football-oracle-monorepo/internal/shared/domain"
	"github.com/smarcilla/football-oracle-monorepo/internal/shared/domain/events"
	"github.com/smarcilla/football-oracle-monorepo/tests/mocks"
)

const testAPIKey = "secret-key"

type envelope struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details"`
}

type fakeOutboxReader struct {
	entries    []sharedDomain.OutboxEntry
	lastStatus sharedDomain.OutboxStatus
	lastLimit  int
}

func (f *fakeOutboxReader) ListByStatus(ctx context.Context, status sharedDomain.OutboxStatus, limit int) ([]sharedDomain.OutboxEntry, error) {
	f.lastStatus, f.lastLimit = status, limit
	return f.entries, nil
}

type fakeTrendReader struct {
	from, to time.Time
	err      error
}

func (f *fakeTrendReader) GetDailyTrend(ctx context.Context, from, to time.Time) ([]analyticsDomain.DailyCount, error) {
	f.from, f.to = from, to
	if f.err != nil {
		return nil, f.err
	}
	return []analyticsDomain.DailyCount{{Day: from, Topic: events.MatchDataScraped, Count: 3}}, nil
}

type testServer struct {
	router *gin.Engine
	repo   *mocks.InMemoryMatchRepo
	outbox *fakeOutboxReader
	trend  *fakeTrendReader
}

func newTestServer(t *testing.T, apiKey string) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	repo := mocks.NewInMemoryMatchRepo()
	service := application.NewMatchService(repo, mocks.NewDummyCache(), time.Minute, zap.NewNop())
	outbox := &fakeOutboxReader{}
	trend := &fakeTrendReader{}

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "registry_test_total", Help: "test"}))

	router := NewRouter(RouterConfig{
		Matches:   NewMatchHandler(service, zap.NewNop()),
		Outbox:    NewOutboxHandler(outbox, zap.NewNop()),
		Analytics: NewAnalyticsHandler(trend, zap.NewNop()),
		APIKey:    apiKey,
		Gatherer:  reg,
		Log:       zap.NewNop(),
	})
	return &testServer{router: router, repo: repo, outbox: outbox, trend: trend}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apiKeyHeader, testAPIKey)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var env envelope
	if rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestHealthAndMetricsAreOpen(t *testing.T) {
	s := newTestServer(t, testAPIKey)

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"success","data":{"status":"ok"}}`, rec.Body.String())

	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "registry_test_total")
}

func TestAPIKey(t *testing.T) {
	s := newTestServer(t, testAPIKey)
	s.repo.Seed(1, matchDomain.StatusIdentified)

	for name, key := range map[string]string{"missing": "", "wrong": "nope"} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/matches/1", nil)
			if key != "" {
				req.Header.Set(apiKeyHeader, key)
			}
			rec := httptest.NewRecorder()
			s.router.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.JSONEq(t, `{"status":"error","message":"Unauthorized: Invalid or missing API Key"}`, rec.Body.String())
		})
	}

	t.Run("sin clave configurada la API queda abierta", func(t *testing.T) {
		open := newTestServer(t, "")
		open.repo.Seed(1, matchDomain.StatusIdentified)
		rec := httptest.NewRecorder()
		open.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/matches/1", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestGetMatch(t *testing.T) {
	s := newTestServer(t, testAPIKey)
	s.repo.Seed(7, matchDomain.StatusIdentified)

	rec, env := s.do(t, http.MethodGet, "/matches/7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", env.Status)
	var m matchDomain.Match
	require.NoError(t, json.Unmarshal(env.Data, &m))
	assert.Equal(t, int64(7), m.ID)
	assert.Equal(t, matchDomain.StatusIdentified, m.Status)

	rec, env = s.do(t, http.MethodGet, "/matches/99", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "error", env.Status)

	for _, bad := range []string{"abc", "0", "-3"} {
		rec, env = s.do(t, http.MethodGet, "/matches/"+bad, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
		assert.Equal(t, "Invalid match ID", env.Message)
	}
}

func TestListMatches(t *testing.T) {
	s := newTestServer(t, testAPIKey)
	s.repo.Seed(1, matchDomain.StatusIdentified)
	s.repo.Seed(2, matchDomain.StatusScraped)
	s.repo.Seed(3, matchDomain.StatusScraped)

	rec, env := s.do(t, http.MethodGet, "/matches?status=SCRAPED&sort_field=id&sort_desc=false", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []matchDomain.Match
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 2)
	assert.Equal(t, int64(2), list[0].ID)

	rec, _ = s.do(t, http.MethodGet, "/matches?status=PLAYING", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/matches?seasonId=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Sin resultados devuelve una lista vacía, no null
	rec, env = s.do(t, http.MethodGet, "/matches?status=COMPLETED", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, string(env.Data))
}

func TestMatchPipelineOverHTTP(t *testing.T) {
	s := newTestServer(t, testAPIKey)

	rec, env := s.do(t, http.MethodPost, "/matches/bulk", map[string]interface{}{
		"leagueId":   "LaLiga",
		"seasonName": "2024/2025",
		"matches": []map[string]interface{}{
			{"id": 10, "date": "2024-08-18T19:00:00Z", "homeTeamId": 1, "awayTeamId": 2},
			{"id": 11, "date": "2024-08-19T19:00:00Z", "homeTeamId": 3, "awayTeamId": 4},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"count":2}`, string(env.Data))

	rec, _ = s.do(t, http.MethodPatch, "/matches/10/status", map[string]string{"status": "SCRAPING"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = s.do(t, http.MethodPatch, "/matches/10/data", `{"shots":[{"xg":0.1},{"xg":0.4}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var m matchDomain.Match
	require.NoError(t, json.Unmarshal(env.Data, &m))
	assert.Equal(t, matchDomain.StatusScraped, m.Status)
	assert.Equal(t, 2, m.ShotsCount())

	rec, _ = s.do(t, http.MethodPatch, "/matches/10/status", map[string]string{"status": "SIMULATING"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, env = s.do(t, http.MethodPost, "/simulations", map[string]interface{}{
		"matchId": 10,
		"results": map[string]interface{}{"homeWinProb": 0.5, "drawProb": 0.3, "awayWinProb": 0.2, "iterations": 10000},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var sim matchDomain.Simulation
	require.NoError(t, json.Unmarshal(env.Data, &sim))
	assert.Equal(t, 10000, sim.Results.Iterations)

	rec, _ = s.do(t, http.MethodPatch, "/matches/10/status", map[string]string{"status": "REPORTING"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = s.do(t, http.MethodPost, "/reports", map[string]string{"matchId": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, env = s.do(t, http.MethodPost, "/reports", map[string]interface{}{"matchId": 10, "content": "Victoria local merecida", "provider": "gemini"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var report matchDomain.Report
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.Equal(t, "gemini", report.Provider)

	assert.Equal(t, []string{
		events.LeagueSynced,
		events.MatchDataScraped,
		events.MatchSimulationCompleted,
		events.MatchReportGenerated,
	}, s.repo.OutboxTopics())
}

func TestWriteErrors(t *testing.T) {
	s := newTestServer(t, testAPIKey)
	s.repo.Seed(5, matchDomain.StatusIdentified)

	t.Run("transición inválida es 400 con el mensaje del dominio", func(t *testing.T) {
		rec, env := s.do(t, http.MethodPatch, "/matches/5/status", map[string]string{"status": "COMPLETED"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid status transition from IDENTIFIED to COMPLETED", env.Message)
		assert.JSONEq(t, `{"from":"IDENTIFIED","to":"COMPLETED","allowed":["SCRAPING","SCRAPED","FAILED"]}`, string(env.Details))
	})

	t.Run("desde un estado terminal no hay destinos", func(t *testing.T) {
		s.repo.Seed(6, matchDomain.StatusCompleted)
		rec, env := s.do(t, http.MethodPatch, "/matches/6/status", map[string]string{"status": "FAILED"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"from":"COMPLETED","to":"FAILED","allowed":[]}`, string(env.Details))
	})

	t.Run("los demás errores no llevan detalle", func(t *testing.T) {
		rec, env := s.do(t, http.MethodGet, "/matches/404", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Empty(t, env.Details)
	})

	t.Run("estado desconocido es 400", func(t *testing.T) {
		rec, _ := s.do(t, http.MethodPatch, "/matches/5/status", map[string]string{"status": "PLAYING"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("probabilidades fuera de rango son 400", func(t *testing.T) {
		rec, _ := s.do(t, http.MethodPost, "/simulations", map[string]interface{}{
			"matchId": 5,
			"results": map[string]interface{}{"homeWinProb": 1.5, "drawProb": 0, "awayWinProb": 0, "iterations": 1},
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("iteraciones fuera de results son 400", func(t *testing.T) {
		rec, _ := s.do(t, http.MethodPost, "/simulations", `{"matchId":5,"iterations":10,"results":{"homeWinProb":0.3,"drawProb":0.3,"awayWinProb":0.4}}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("informe corto es 400", func(t *testing.T) {
		rec, _ := s.do(t, http.MethodPost, "/reports", map[string]interface{}{"matchId": 5, "content": "corto"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("partido inexistente es 404", func(t *testing.T) {
		rec, _ := s.do(t, http.MethodPatch, "/matches/404/status", map[string]string{"status": "SCRAPING"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("errores internos son 500 sin detalle", func(t *testing.T) {
		s.repo.Err = errors.New("disk I/O error")
		defer func() { s.repo.Err = nil }()
		rec, env := s.do(t, http.MethodPatch, "/matches/5/status", map[string]string{"status": "SCRAPING"})
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Failed to update match status", env.Message)
	})

	t.Run("bulk sin leagueId es 400", func(t *testing.T) {
		rec, _ := s.do(t, http.MethodPost, "/matches/bulk", map[string]interface{}{"seasonName": "2024/2025", "matches": []interface{}{}})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestListOutbox(t *testing.T) {
	s := newTestServer(t, testAPIKey)
	s.outbox.entries = []sharedDomain.OutboxEntry{{Topic: events.MatchDataScraped, Status: sharedDomain.OutboxFailed}}

	rec, env := s.do(t, http.MethodGet, "/outbox?status=FAILED", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, sharedDomain.OutboxFailed, s.outbox.lastStatus)
	assert.Positive(t, s.outbox.lastLimit)
	assert.Contains(t, string(env.Data), events.MatchDataScraped)

	rec, _ = s.do(t, http.MethodGet, "/outbox?status=LOST", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDailyTrend(t *testing.T) {
	s := newTestServer(t, testAPIKey)

	rec, env := s.do(t, http.MethodGet, "/analytics/daily?from=2024-08-01&to=2024-08-31", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC), s.trend.from)
	assert.Equal(t, 31, s.trend.to.Day())
	assert.Contains(t, string(env.Data), events.MatchDataScraped)

	rec, _ = s.do(t, http.MethodGet, "/analytics/daily?from=01-08-2024", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = s.do(t, http.MethodGet, "/analytics/daily?from=2024-09-01&to=2024-08-01", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	s.trend.err = errors.New("clickhouse down")
	rec, _ = s.do(t, http.MethodGet, "/analytics/daily", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
