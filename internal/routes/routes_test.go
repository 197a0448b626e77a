package routes

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"bazaar_back_end/internal/cache"
	"bazaar_back_end/internal/config"
	"bazaar_back_end/internal/handlers"
	"bazaar_back_end/internal/handlers/admin"
	"bazaar_back_end/internal/handlers/order"
	"bazaar_back_end/internal/handlers/payment"
	"bazaar_back_end/internal/handlers/product"
	"bazaar_back_end/internal/handlers/user"
	"bazaar_back_end/internal/middleware"
	"bazaar_back_end/internal/models"
	gateway "bazaar_back_end/internal/payment"
	"bazaar_back_end/internal/repository/memory"
	"bazaar_back_end/internal/services"
	"bazaar_back_end/internal/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type server struct {
	router *gin.Engine
	tokens *utils.TokenManager
	admin  models.User
	buyer  models.User
}

func newServer(t *testing.T, down bool) *server {
	t.Helper()
	store := memory.New().Store()
	c := cache.NewMemory()
	s := &server{tokens: utils.NewTokenManager("secret-routes", time.Hour)}
	s.admin = models.User{ID: models.NewID(), UserName: "admin", Email: "admin@bazaar.test", Role: models.RoleAdmin, IsActive: true}
	s.buyer = models.User{ID: models.NewID(), UserName: "maya", Email: "maya@bazaar.test", Role: models.RoleUser, IsActive: true}
	for _, u := range []*models.User{&s.admin, &s.buyer} {
		if err := store.Users.Create(context.Background(), u); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}

	mailer := utils.LogMailer{}
	catalog := services.NewCatalogService(store, nil, services.NoopIndexer{}, nil, 10)
	orders := services.NewOrderService(store, nil, mailer, config.OrdersConfig{})
	payments := services.NewPaymentService(store, orders,
		gateway.NewEsewa(config.EsewaConfig{MerchantCode: "EPAYTEST", SecretKey: "secret"}),
		gateway.NewStripe(config.StripeConfig{}), nil, time.Hour)
	otp := services.NewOTPService(c, mailer, time.Minute, time.Minute)
	users := services.NewUserService(store, c, s.tokens, cache.NewRefreshTokens(c, time.Hour), otp, nil, config.AuthConfig{})

	ping := func(context.Context) error { return nil }
	if down {
		ping = func(context.Context) error { return errors.New("connection refused") }
	}

	r := gin.New()
	RegisterRoutes(r, Handlers{
		Auth:     middleware.AuthRequired(s.tokens, users),
		Limiter:  middleware.NewRateLimiter(c, config.RateLimitConfig{APIMaxRequests: 1000}),
		Users:    user.New(users, otp),
		Products: product.New(catalog, 1),
		Orders:   order.New(orders, nil),
		Payments: payment.New(payments),
		Admin:    admin.New(users, services.NewReportingService(store, orders, 10), nil),
		Health:   []handlers.Check{{Name: "mongodb", Ping: ping}},
	})
	s.router = r
	return s
}

func (s *server) request(t *testing.T, method, path string, as *models.User) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	if as != nil {
		token, err := s.tokens.GenerateJWT(*as)
		if err != nil {
			t.Fatalf("GenerateJWT: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestRouteProtection(t *testing.T) {
	s := newServer(t, false)
	cases := []struct {
		method, path string
		as           *models.User
		want         int
	}{
		{http.MethodGet, "/getProducts", nil, http.StatusUnauthorized},
		{http.MethodGet, "/getProducts", &s.buyer, http.StatusOK},
		{http.MethodGet, "/admin-stats", &s.buyer, http.StatusForbidden},
		{http.MethodGet, "/admin-stats", &s.admin, http.StatusOK},
		{http.MethodGet, "/get-users", &s.buyer, http.StatusForbidden},
		{http.MethodDelete, "/deleteProduct?productId=x", &s.buyer, http.StatusForbidden},
		{http.MethodDelete, "/deleteProduct?productId=x", &s.admin, http.StatusNotFound},
		{http.MethodGet, "/export-bookings", &s.admin, http.StatusOK},
		{http.MethodPost, "/verifyToken", &s.buyer, http.StatusOK},
		{http.MethodGet, "/verify-esewa", nil, http.StatusBadRequest},
		{http.MethodPost, "/stripe-webhook", nil, http.StatusBadRequest},
		{http.MethodPost, "/login", nil, http.StatusBadRequest},
	}
	for _, tc := range cases {
		if w := s.request(t, tc.method, tc.path, tc.as); w.Code != tc.want {
			t.Errorf("%s %s = %d, want %d (%s)", tc.method, tc.path, w.Code, tc.want, w.Body.String())
		}
	}
}

func TestHealth(t *testing.T) {
	if w := newServer(t, false).request(t, http.MethodGet, "/health", nil); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"mongodb":"up"`) {
		t.Fatalf("health = %d (%s)", w.Code, w.Body.String())
	}
	if w := newServer(t, true).request(t, http.MethodGet, "/health", nil); w.Code != http.StatusServiceUnavailable || !strings.Contains(w.Body.String(), "degraded") {
		t.Fatalf("degraded health = %d (%s)", w.Code, w.Body.String())
	}
}
