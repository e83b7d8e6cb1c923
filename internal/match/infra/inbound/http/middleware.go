package http

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/smarcilla/football-oracle-monorepo/pkg/utils"
)

const apiKeyHeader = "x-api-key"

// APIKey exige la cabecera x-api-key. Con una clave vacía la API queda abierta.
func APIKey(expected string, log *zap.Logger) gin.HandlerFunc {
	if expected == "" {
		log.Warn("⚠️ API key no configurada: la API no está protegida")
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		got := c.GetHeader(apiKeyHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			utils.AbortWithError(c, http.StatusUnauthorized, "Unauthorized: Invalid or missing API Key")
			return
		}
		c.Next()
	}
}

// RequestLogger registra cada petición con zap.
func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
