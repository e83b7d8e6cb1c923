package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	sharedDomain "github.com/smarcilla/football-oracle-monorepo/internal/shared/domain"
	sharedQuery "github.com/smarcilla/football-oracle-monorepo/internal/shared/infra/platform/query"
	"github.com/smarcilla/football-oracle-monorepo/pkg/utils"
)

// OutboxHandler expone el outbox en solo lectura para operadores.
type OutboxHandler struct {
	reader sharedDomain.OutboxReader
	log    *zap.Logger
}

func NewOutboxHandler(reader sharedDomain.OutboxReader, log *zap.Logger) *OutboxHandler {
	return &OutboxHandler{reader: reader, log: log}
}

// ListOutbox endpoint GET /outbox
func (h *OutboxHandler) ListOutbox(c *gin.Context) {
	var q struct {
		Status string `form:"status"`
		Limit  int    `form:"limit" binding:"omitempty,gt=0,lte=500"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		utils.SendBadRequest(c, "Invalid query parameters")
		return
	}
	status := sharedDomain.OutboxStatus(q.Status)
	if q.Status != "" && !status.IsValid() {
		utils.SendBadRequest(c, "Invalid outbox status")
		return
	}

	limit := sharedQuery.OffsetPagination{Limit: q.Limit}.Normalize().Limit
	entries, err := h.reader.ListByStatus(c.Request.Context(), status, limit)
	if err != nil {
		h.log.Error("Failed to list outbox", zap.Error(err))
		utils.SendInternalServerError(c, "Failed to list outbox")
		return
	}
	if entries == nil {
		entries = []sharedDomain.OutboxEntry{}
	}
	utils.SendSuccess(c, http.StatusOK, entries)
}
