package payment

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"bazaar_back_end/internal/apperr"
	"bazaar_back_end/internal/handlers"
	"bazaar_back_end/internal/middleware"
	"bazaar_back_end/internal/models"
	"bazaar_back_end/internal/services"
)

const maxWebhookBytes = int64(65536)

// Handler expose les paiements eSewa et Stripe.
type Handler struct {
	payments *services.PaymentService
}

func New(payments *services.PaymentService) *Handler {
	return &Handler{payments: payments}
}

func (h *Handler) bindLines(c *gin.Context) ([]models.OrderLine, bool) {
	var lines []models.OrderLine
	if err := handlers.BindJSON(c, &lines); err != nil {
		handlers.Error(c, err)
		return nil, false
	}
	return lines, true
}

// InitiateEsewa renvoie les champs signés du formulaire eSewa.
func (h *Handler) InitiateEsewa(c *gin.Context) {
	lines, ok := h.bindLines(c)
	if !ok {
		return
	}
	form, err := h.payments.InitiateEsewa(c.Request.Context(), middleware.Actor(c), lines)
	if err != nil {
		handlers.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, form)
}

// VerifyEsewa valide le retour eSewa (?data=) et crée les réservations.
func (h *Handler) VerifyEsewa(c *gin.Context) {
	data := c.Query("data")
	if data == "" {
		handlers.Error(c, apperr.Invalid("paramètre data requis"))
		return
	}
	res, err := h.payments.VerifyEsewa(c.Request.Context(), data)
	if err != nil {
		handlers.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":     "Paiement vérifié",
		"bookings":    res.Bookings,
		"totalAmount": res.TotalAmount,
	})
}

// InitiateStripe crée le PaymentIntent et renvoie son client_secret.
func (h *Handler) InitiateStripe(c *gin.Context) {
	lines, ok := h.bindLines(c)
	if !ok {
		return
	}
	checkout, err := h.payments.InitiateStripe(c.Request.Context(), middleware.Actor(c), lines)
	if err != nil {
		handlers.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, checkout)
}

// StripeWebhook reçoit les événements Stripe signés.
func (h *Handler) StripeWebhook(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBytes)
	payload, err := c.GetRawData()
	if err != nil {
		zap.S().Warnf("❌ Lecture payload échouée: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Échec lecture body"})
		return
	}

	if err := h.payments.HandleStripeWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); err != nil {
		handlers.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}
