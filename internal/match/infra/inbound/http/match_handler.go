// en internal/match/infra/inbound/http/match_handler.go
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smarcilla/football-oracle-monorepo/internal/match/application"
	matchDomain "github.com/smarcilla/football-oracle-monorepo/internal/match/domain"
	sharedQuery "github.com/smarcilla/football-oracle-monorepo/internal/shared/infra/platform/query"
	"github.com/smarcilla/football-oracle-monorepo/pkg/utils"
)

// MatchService son los casos de uso que expone la API.
type MatchService interface {
	GetMatch(ctx context.Context, id int64) (*matchDomain.Match, error)
	ListMatches(ctx context.Context, f application.MatchFilter) ([]*matchDomain.Match, error)
	UpdateMatchStatus(ctx context.Context, id int64, next matchDomain.MatchStatus) (*matchDomain.Match, error)
	UpdateMatchData(ctx context.Context, id int64, shots json.RawMessage) (*matchDomain.Match, error)
	RecordSimulation(ctx context.Context, id int64, results matchDomain.SimulationResults) (*matchDomain.Match, error)
	RecordReport(ctx context.Context, id int64, draft matchDomain.ReportDraft) (*matchDomain.Match, error)
	BulkCreateMatches(ctx context.Context, batch matchDomain.BulkMatches) (int, error)
}

// Verificación estática
var _ MatchService = (*application.MatchService)(nil)

// MatchHandler encapsula los endpoints HTTP relacionados con Match.
type MatchHandler struct {
	service MatchService
	log     *zap.Logger
}

// NewMatchHandler crea un nuevo MatchHandler.
func NewMatchHandler(service MatchService, log *zap.Logger) *MatchHandler {
	return &MatchHandler{service: service, log: log}
}

// --- Lectura ---

type listMatchesQuery struct {
	LeagueID  string `form:"leagueId"`
	SeasonID  int64  `form:"seasonId" binding:"omitempty,gt=0"`
	Status    string `form:"status"`
	Limit     int    `form:"limit" binding:"omitempty,gt=0,lte=500"`
	Offset    int    `form:"offset" binding:"omitempty,gte=0"`
	SortField string `form:"sort_field"`
	SortDesc  *bool  `form:"sort_desc"`
}

// ListMatches endpoint GET /matches
func (h *MatchHandler) ListMatches(c *gin.Context) {
	var q listMatchesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		utils.SendBadRequest(c, "Invalid query parameters")
		return
	}
	status := matchDomain.MatchStatus(q.Status)
	if q.Status != "" && !status.IsValid() {
		utils.SendBadRequest(c, "Invalid query parameters")
		return
	}

	sort := matchDomain.DefaultSort
	if q.SortField != "" {
		sort.Field = q.SortField
	}
	if q.SortDesc != nil {
		sort.Desc = *q.SortDesc
	}

	matches, err := h.service.ListMatches(c.Request.Context(), application.MatchFilter{
		LeagueID:   q.LeagueID,
		SeasonID:   q.SeasonID,
		Status:     status,
		Pagination: sharedQuery.OffsetPagination{Limit: q.Limit, Offset: q.Offset},
		Sort:       sort,
	})
	if err != nil {
		h.writeError(c, err, "Failed to fetch matches")
		return
	}
	if matches == nil {
		matches = []*matchDomain.Match{}
	}
	utils.SendSuccess(c, http.StatusOK, matches)
}

// GetMatch endpoint GET /matches/:id
func (h *MatchHandler) GetMatch(c *gin.Context) {
	id, ok := parseMatchID(c)
	if !ok {
		return
	}

	match, err := h.service.GetMatch(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err, "Failed to fetch match")
		return
	}
	utils.SendSuccess(c, http.StatusOK, match)
}

// --- Escritura ---

type bulkMatchItem struct {
	ID         int64     `json:"id" binding:"required,gt=0"`
	Date       time.Time `json:"date" binding:"required"`
	HomeTeamID int64     `json:"homeTeamId" binding:"required,gt=0"`
	AwayTeamID int64     `json:"awayTeamId" binding:"required,gt=0"`
}

type bulkMatchesRequest struct {
	LeagueID   string          `json:"leagueId" binding:"required"`
	SeasonName string          `json:"seasonName" binding:"required"`
	Matches    []bulkMatchItem `json:"matches" binding:"required,dive"`
}

// BulkCreateMatches endpoint POST /matches/bulk
func (h *MatchHandler) BulkCreateMatches(c *gin.Context) {
	var req bulkMatchesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequest(c, "Invalid request body")
		return
	}

	batch := matchDomain.BulkMatches{LeagueID: req.LeagueID, SeasonName: req.SeasonName}
	for _, m := range req.Matches {
		batch.Matches = append(batch.Matches, matchDomain.BulkMatchItem(m))
	}

	count, err := h.service.BulkCreateMatches(c.Request.Context(), batch)
	if err != nil {
		h.writeError(c, err, "Failed to create matches")
		return
	}
	utils.SendSuccess(c, http.StatusCreated, gin.H{"count": count})
}

// UpdateMatchStatus endpoint PATCH /matches/:id/status
func (h *MatchHandler) UpdateMatchStatus(c *gin.Context) {
	id, ok := parseMatchID(c)
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequest(c, "Invalid request body")
		return
	}

	match, err := h.service.UpdateMatchStatus(c.Request.Context(), id, matchDomain.MatchStatus(req.Status))
	if err != nil {
		h.writeError(c, err, "Failed to update match status")
		return
	}
	utils.SendSuccess(c, http.StatusOK, match)
}

// UpdateMatchData endpoint PATCH /matches/:id/data
func (h *MatchHandler) UpdateMatchData(c *gin.Context) {
	id, ok := parseMatchID(c)
	if !ok {
		return
	}
	var req struct {
		Shots json.RawMessage `json:"shots" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequest(c, "Invalid request body")
		return
	}

	match, err := h.service.UpdateMatchData(c.Request.Context(), id, req.Shots)
	if err != nil {
		h.writeError(c, err, "Failed to update match data")
		return
	}
	utils.SendSuccess(c, http.StatusOK, match)
}

type simulationRequest struct {
	MatchID int64 `json:"matchId" binding:"required,gt=0"`
	Results struct {
		HomeWinProb *float64 `json:"homeWinProb" binding:"required,gte=0,lte=1"`
		DrawProb    *float64 `json:"drawProb" binding:"required,gte=0,lte=1"`
		AwayWinProb *float64 `json:"awayWinProb" binding:"required,gte=0,lte=1"`
		Iterations  int      `json:"iterations" binding:"required,gt=0"`
	} `json:"results" binding:"required"`
}

// CreateSimulation endpoint POST /simulations
func (h *MatchHandler) CreateSimulation(c *gin.Context) {
	var req simulationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequest(c, "Invalid request body")
		return
	}

	match, err := h.service.RecordSimulation(c.Request.Context(), req.MatchID, matchDomain.SimulationResults{
		HomeWinProb: *req.Results.HomeWinProb,
		DrawProb:    *req.Results.DrawProb,
		AwayWinProb: *req.Results.AwayWinProb,
		Iterations:  req.Results.Iterations,
	})
	if err != nil {
		h.writeError(c, err, "Failed to create simulation")
		return
	}
	utils.SendSuccess(c, http.StatusCreated, match.Simulation)
}

// CreateReport endpoint POST /reports
func (h *MatchHandler) CreateReport(c *gin.Context) {
	var req struct {
		MatchID  int64  `json:"matchId" binding:"required,gt=0"`
		Content  string `json:"content" binding:"required,min=10"`
		Provider string `json:"provider"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequest(c, "Invalid request body")
		return
	}

	match, err := h.service.RecordReport(c.Request.Context(), req.MatchID, matchDomain.ReportDraft{Content: req.Content, Provider: req.Provider})
	if err != nil {
		h.writeError(c, err, "Failed to create report")
		return
	}
	utils.SendSuccess(c, http.StatusCreated, match.Report)
}

// --- Helpers ---

func parseMatchID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		utils.SendBadRequest(c, "Invalid match ID")
		return 0, false
	}
	return id, true
}

// writeError traduce errores de dominio a códigos HTTP. Los 500 no filtran el detalle interno.
type transitionDetails struct {
	From    matchDomain.MatchStatus   `json:"from"`
	To      matchDomain.MatchStatus   `json:"to"`
	Allowed []matchDomain.MatchStatus `json:"allowed"`
}

func (h *MatchHandler) writeError(c *gin.Context, err error, fallback string) {
	var terr *matchDomain.TransitionError
	switch {
	case errors.As(err, &terr):
		utils.SendBadRequestWithDetails(c, err.Error(), transitionDetails{
			From:    terr.From,
			To:      terr.To,
			Allowed: matchDomain.AllowedTransitions(terr.From),
		})
	case errors.Is(err, matchDomain.ErrMatchNotFound):
		utils.SendNotFound(c, "Match not found")
	case errors.Is(err, matchDomain.ErrInvalidTransition), errors.Is(err, matchDomain.ErrInvalidMatch):
		utils.SendBadRequest(c, err.Error())
	default:
		h.log.Error("HTTP handler error", zap.String("path", c.FullPath()), zap.Error(err))
		utils.SendInternalServerError(c, fallback)
	}
}
