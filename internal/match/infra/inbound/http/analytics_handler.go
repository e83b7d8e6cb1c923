package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	analyticsDomain "github.com/smarcilla/football-oracle-monorepo/internal/analytics/domain"
	"github.com/smarcilla/football-oracle-monorepo/pkg/utils"
)

const defaultTrendWindow = 7 * 24 * time.Hour

// TrendReader es la parte de analítica que consulta la API.
type TrendReader interface {
	GetDailyTrend(ctx context.Context, from, to time.Time) ([]analyticsDomain.DailyCount, error)
}

type AnalyticsHandler struct {
	reader TrendReader
	log    *zap.Logger
	now    func() time.Time
}

func NewAnalyticsHandler(reader TrendReader, log *zap.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{reader: reader, log: log, now: time.Now}
}

// DailyTrend endpoint GET /analytics/daily?from=2024-08-01&to=2024-08-31
// Sin rango devuelve los últimos siete días.
func (h *AnalyticsHandler) DailyTrend(c *gin.Context) {
	to := h.now().UTC()
	from := to.Add(-defaultTrendWindow)

	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			utils.SendBadRequest(c, "Invalid 'from' date, expected YYYY-MM-DD")
			return
		}
		from = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.DateOnly, v)
		if err != nil {
			utils.SendBadRequest(c, "Invalid 'to' date, expected YYYY-MM-DD")
			return
		}
		to = t.Add(24*time.Hour - time.Nanosecond)
	}
	if from.After(to) {
		utils.SendBadRequest(c, "'from' must not be after 'to'")
		return
	}

	trend, err := h.reader.GetDailyTrend(c.Request.Context(), from, to)
	if err != nil {
		h.log.Error("Failed to query daily trend", zap.Error(err))
		utils.SendInternalServerError(c, "Failed to query analytics")
		return
	}
	if trend == nil {
		trend = []analyticsDomain.DailyCount{}
	}
	utils.SendSuccess(c, http.StatusOK, trend)
}
