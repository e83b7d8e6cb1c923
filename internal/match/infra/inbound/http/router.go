package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/smarcilla/football-oracle-monorepo/pkg/utils"
)

// RouterConfig reúne los handlers y dependencias del router. Analytics es opcional.
type RouterConfig struct {
	Matches   *MatchHandler
	Outbox    *OutboxHandler
	Analytics *AnalyticsHandler
	APIKey    string
	Gatherer  prometheus.Gatherer
	Log       *zap.Logger
}

// NewRouter construye el engine con health y métricas abiertas y el resto tras la API key.
func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(cfg.Log))

	r.GET("/health", func(c *gin.Context) {
		utils.SendSuccess(c, http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	api := r.Group("/", APIKey(cfg.APIKey, cfg.Log))
	RegisterMatchRoutes(api, cfg.Matches)
	if cfg.Outbox != nil {
		api.GET("/outbox", cfg.Outbox.ListOutbox)
	}
	if cfg.Analytics != nil {
		api.GET("/analytics/daily", cfg.Analytics.DailyTrend)
	}
	return r
}

// RegisterMatchRoutes registra las rutas HTTP del dominio de partidos.
func RegisterMatchRoutes(r gin.IRoutes, handler *MatchHandler) {
	r.GET("/matches", handler.ListMatches)                    // Listar con filtros
	r.GET("/matches/:id", handler.GetMatch)                   // Obtener por ID
	r.POST("/matches/bulk", handler.BulkCreateMatches)        // Ingesta de temporada
	r.PATCH("/matches/:id/status", handler.UpdateMatchStatus) // Transición de estado
	r.PATCH("/matches/:id/data", handler.UpdateMatchData)     // Tiros extraídos
	r.POST("/simulations", handler.CreateSimulation)          // Resultado del motor
	r.POST("/reports", handler.CreateReport)                  // Informe final
}
