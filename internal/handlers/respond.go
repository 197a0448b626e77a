// Package handlers regroupe les helpers HTTP partagés par les handlers gin.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"bazaar_back_end/internal/apperr"
)

// Error répond {"error": message} avec le code associé au type d'erreur.
// La cause d'une erreur interne reste dans les logs.
func Error(c *gin.Context, err error) {
	status := apperr.Status(err)
	if status >= http.StatusInternalServerError {
		zap.S().Errorf("❌ %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": apperr.Message(err)})
}

// BindJSON décode le body; un JSON invalide est une erreur de validation.
func BindJSON(c *gin.Context, dst interface{}) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return apperr.Invalid("Body JSON invalide")
	}
	return nil
}

// Check est une dépendance testée par /health.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// Health renvoie 200 si toutes les dépendances répondent, 503 sinon.
func Health(checks ...Check) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		report := gin.H{}
		for _, chk := range checks {
			if err := chk.Ping(ctx); err != nil {
				zap.S().Warnf("⚠️ Health %s: %v", chk.Name, err)
				report[chk.Name] = "down"
				status = http.StatusServiceUnavailable
				continue
			}
			report[chk.Name] = "up"
		}

		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		c.JSON(status, gin.H{"status": state, "services": report, "time": time.Now().UTC()})
	}
}
