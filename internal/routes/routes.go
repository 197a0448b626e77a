package routes

import (
	"github.com/gin-gonic/gin"

	"bazaar_back_end/internal/handlers"
	"bazaar_back_end/internal/handlers/admin"
	"bazaar_back_end/internal/handlers/order"
	"bazaar_back_end/internal/handlers/payment"
	"bazaar_back_end/internal/handlers/product"
	"bazaar_back_end/internal/handlers/user"
	"bazaar_back_end/internal/middleware"
)

// Handlers regroupe tout ce que RegisterRoutes branche.
type Handlers struct {
	Auth     gin.HandlerFunc
	Limiter  *middleware.RateLimiter
	Users    *user.Handler
	Products *product.Handler
	Orders   *order.Handler
	Payments *payment.Handler
	Admin    *admin.Handler
	Health   []handlers.Check
}

func RegisterRoutes(r *gin.Engine, h Handlers) {
	r.GET("/health", handlers.Health(h.Health...))

	// Webhook Stripe: signé, hors limite de débit
	r.POST("/stripe-webhook", h.Payments.StripeWebhook)

	public := r.Group("/", h.Limiter.API())
	{
		public.POST("/send_mail", h.Limiter.OTP(), h.Users.SendMail)
		public.POST("/mail_verify", h.Users.MailVerify)
		public.POST("/register", h.Users.Register)
		public.POST("/login", h.Limiter.Login(), h.Users.Login)
		public.POST("/refresh", h.Users.Refresh)
		public.GET("/verify-esewa", h.Payments.VerifyEsewa)
	}

	auth := r.Group("/", h.Limiter.API(), h.Auth)
	{
		auth.POST("/logout", h.Users.Logout)
		auth.POST("/verifyToken", h.Users.VerifyToken)

		// Le rôle du propriétaire est contrôlé par le catalogue, après le doublon
		auth.POST("/saveProduct", h.Products.SaveProduct)
		auth.GET("/getProducts", h.Products.GetProducts)
		auth.GET("/search-products", h.Products.SearchProducts)

		auth.POST("/buy-products", h.Orders.BuyProducts)
		auth.GET("/manage-booked-product", h.Orders.ManageBookedProduct)
		auth.POST("/cancel-order", h.Orders.CancelOrder)
		auth.GET("/generate-bill", h.Orders.GenerateBill)

		auth.POST("/initiate-esewa", h.Payments.InitiateEsewa)
		auth.POST("/initiate-stripe", h.Payments.InitiateStripe)
	}

	adm := auth.Group("/", middleware.RequireAdmin)
	{
		adm.PUT("/edit-product", h.Products.EditProduct)
		adm.DELETE("/deleteProduct", h.Products.DeleteProduct)
		adm.DELETE("/change-available", h.Products.ChangeAvailable)
		adm.GET("/stock-movements", h.Admin.StockMovements)

		adm.POST("/change-status-of-booked-items", h.Orders.ChangeStatus)
		adm.GET("/export-bookings", h.Orders.ExportBookings)

		adm.GET("/admin-stats", h.Admin.AdminStats)
		adm.GET("/get-users", h.Admin.GetUsers)
		adm.PUT("/deactivate-activate-user", h.Admin.UpdateUserStatus)
		adm.PATCH("/update-user-role", h.Admin.UpdateUserRole)
		adm.GET("/audit-logs", h.Admin.AuditLogs)
	}
}
