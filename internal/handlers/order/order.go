package order

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"bazaar_back_end/internal/apperr"
	"bazaar_back_end/internal/handlers"
	"bazaar_back_end/internal/middleware"
	"bazaar_back_end/internal/models"
	"bazaar_back_end/internal/services"
	"bazaar_back_end/internal/utils"
)

// Handler expose les commandes, réservations et factures.
type Handler struct {
	orders *services.OrderService
	pdf    utils.PDFRenderer
}

// New prend un PDFRenderer nil si Chrome n'est pas disponible: format=pdf répond alors 400.
func New(orders *services.OrderService, pdf utils.PDFRenderer) *Handler {
	return &Handler{orders: orders, pdf: pdf}
}

// BuyProducts passe une commande payée à la livraison.
func (h *Handler) BuyProducts(c *gin.Context) {
	var lines []models.OrderLine
	if err := handlers.BindJSON(c, &lines); err != nil {
		handlers.Error(c, err)
		return
	}

	res, err := h.orders.Checkout(c.Request.Context(), middleware.Actor(c), lines)
	if err != nil {
		handlers.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":     "Commande enregistrée",
		"bookings":    res.Bookings,
		"totalAmount": res.TotalAmount,
	})
}

// ManageBookedProduct liste les réservations; un admin voit toutes celles de la boutique.
func (h *Handler) ManageBookedProduct(c *gin.Context) {
	page, err := h.orders.ListBookings(c.Request.Context(), middleware.Actor(c), middleware.IsAdmin(c), services.BookingQuery{
		Page:   c.Query("page"),
		Limit:  c.Query("limit"),
		Status: c.Query("status"),
		Search: c.Query("search"),
	})
	if err != nil {
		handlers.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

type statusRequest struct {
	BookingID string `json:"bookingId"`
	// ProductID est l'ancien nom du champ, il contient aussi l'id de réservation.
	ProductID string `json:"productId"`
	Status    string `json:"status"`
}

// ChangeStatus modifie le statut d'une réservation (admin).
func (h *Handler) ChangeStatus(c *gin.Context) {
	var req statusRequest
	if err := handlers.BindJSON(c, &req); err != nil {
		handlers.Error(c, err)
		return
	}
	id := req.BookingID
	if id == "" {
		id = req.ProductID
	}

	b, err := h.orders.ChangeStatus(c.Request.Context(), middleware.Actor(c), id, req.Status)
	if err != nil {
		handlers.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Statut mis à jour", "booking": b})
}

func (h *Handler) CancelOrder(c *gin.Context) {
	var req struct {
		BookingID string `json:"bookingId"`
	}
	if err := handlers.BindJSON(c, &req); err != nil {
		handlers.Error(c, err)
		return
	}

	b, err := h.orders.CancelOrder(c.Request.Context(), middleware.Actor(c), req.BookingID)
	if err != nil {
		handlers.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Commande annulée", "booking": b})
}

// GenerateBill renvoie la facture d'une réservation (?bookingId=) ou de toutes celles de l'utilisateur.
// format: json (défaut), html ou pdf.
func (h *Handler) GenerateBill(c *gin.Context) {
	ctx := c.Request.Context()
	var (
		bill *models.Bill
		err  error
	)
	if id := c.Query("bookingId"); id != "" {
		bill, err = h.orders.Bill(ctx, middleware.Actor(c), middleware.IsAdmin(c), id)
	} else {
		bill, err = h.orders.AggregateBill(ctx, middleware.UserID(c))
	}
	if err != nil {
		handlers.Error(c, err)
		return
	}

	switch format := c.DefaultQuery("format", "json"); format {
	case "json":
		c.JSON(http.StatusOK, bill)
	case "html", "pdf":
		html, err := utils.RenderBillHTML(*bill)
		if err != nil {
			handlers.Error(c, apperr.Internalf(err, "rendu facture"))
			return
		}
		if format == "html" {
			c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
			return
		}
		if h.pdf == nil {
			handlers.Error(c, apperr.Invalid("Export PDF indisponible"))
			return
		}
		doc, err := h.pdf.PDF(ctx, html)
		if err != nil {
			handlers.Error(c, apperr.Internalf(err, "génération PDF facture"))
			return
		}
		zap.S().Infof("🧾 Facture PDF générée: %s", bill.Reference)
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.pdf"`, bill.Reference))
		c.Data(http.StatusOK, "application/pdf", doc)
	default:
		handlers.Error(c, apperr.Invalid("format invalide (json, html ou pdf)"))
	}
}

// ExportBookings exporte les réservations en CSV (admin), filtrées par ?status=.
func (h *Handler) ExportBookings(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.orders.ExportCSV(c.Request.Context(), &buf, c.Query("status")); err != nil {
		handlers.Error(c, err)
		return
	}
	name := fmt.Sprintf("bookings-%s.csv", time.Now().Format("20060102-150405"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}
