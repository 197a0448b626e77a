package admin

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"bazaar_back_end/internal/apperr"
	"bazaar_back_end/internal/handlers"
	"bazaar_back_end/internal/middleware"
	"bazaar_back_end/internal/services"
	"bazaar_back_end/internal/utils"
)

const (
	defaultLogLimit = 100
	maxLogLimit     = 500
)

// Handler regroupe les routes réservées aux administrateurs.
type Handler struct {
	users     *services.UserService
	reporting *services.ReportingService
	audit     *utils.Auditor
}

func New(users *services.UserService, reporting *services.ReportingService, audit *utils.Auditor) *Handler {
	return &Handler{users: users, reporting: reporting, audit: audit}
}

func (h *Handler) GetUsers(c *gin.Context) {
	page, err := h.users.ListUsers(c.Request.Context(), c.Query("page"), c.Query("limit"), c.Query("search"))
	if err != nil {
		handlers.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// UpdateUserStatus active ou désactive un compte.
func (h *Handler) UpdateUserStatus(c *gin.Context) {
	var req struct {
		UserID        string `json:"userId"`
		UpdatedStatus *bool  `json:"updatedStatus"`
	}
	if err := handlers.BindJSON(c, &req); err != nil {
		handlers.Error(c, err)
		return
	}
	if req.UpdatedStatus == nil {
		handlers.Error(c, apperr.Invalid("updatedStatus requis"))
		return
	}
	u, err := h.users.SetActive(c.Request.Context(), middleware.Actor(c), req.UserID, *req.UpdatedStatus)
	if err != nil {
		handlers.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Statut utilisateur mis à jour", "user": u})
}

func (h *Handler) UpdateUserRole(c *gin.Context) {
	var req struct {
		CurrentUserID string `json:"currentUserId"`
		UpdatedRole   string `json:"updatedRole"`
	}
	if err := handlers.BindJSON(c, &req); err != nil {
		handlers.Error(c, err)
		return
	}
	u, err := h.users.SetRole(c.Request.Context(), middleware.Actor(c), req.CurrentUserID, req.UpdatedRole)
	if err != nil {
		handlers.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Rôle mis à jour", "user": u})
}

// AdminStats renvoie le tableau de bord (?recent= nombre de réservations récentes).
func (h *Handler) AdminStats(c *gin.Context) {
	stats, err := h.reporting.Stats(c.Request.Context(), c.Query("recent"))
	if err != nil {
		handlers.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func logLimit(c *gin.Context) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil || n < 1 {
		return defaultLogLimit
	}
	if n > maxLogLimit {
		return maxLogLimit
	}
	return n
}

// AuditLogs liste le journal d'une ressource, ou d'une entité avec ?resourceId=.
func (h *Handler) AuditLogs(c *gin.Context) {
	resource := c.Query("resource")
	if resource == "" {
		handlers.Error(c, apperr.Invalid("paramètre resource requis"))
		return
	}
	logs, err := h.audit.Logs(c.Request.Context(), resource, c.Query("resourceId"), logLimit(c))
	if err != nil {
		handlers.Error(c, apperr.Internalf(err, "lecture logs audit"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs, "count": len(logs)})
}

// StockMovements liste l'historique de stock d'un produit.
func (h *Handler) StockMovements(c *gin.Context) {
	productID := c.Query("productId")
	if productID == "" {
		handlers.Error(c, apperr.Invalid("paramètre productId requis"))
		return
	}
	moves, err := h.audit.Movements(c.Request.Context(), productID, logLimit(c))
	if err != nil {
		handlers.Error(c, apperr.Internalf(err, "lecture mouvements de stock"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"movements": moves, "count": len(moves)})
}
