package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"bazaar_back_end/internal/cache"
	"bazaar_back_end/internal/config"
	"bazaar_back_end/internal/middleware"
	"bazaar_back_end/internal/models"
	"bazaar_back_end/internal/repository"
	"bazaar_back_end/internal/repository/memory"
	"bazaar_back_end/internal/services"
	"bazaar_back_end/internal/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	store  repository.Store
	audit  *utils.MemoryAuditStore
	router *gin.Engine
	admin  models.User
	buyer  models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: memory.New().Store(), audit: utils.NewMemoryAuditStore()}
	f.admin = models.User{ID: models.NewID(), UserName: "admin", Email: "admin@bazaar.test", Role: models.RoleAdmin, IsActive: true, CreatedAt: time.Now()}
	f.buyer = models.User{ID: models.NewID(), UserName: "prakash", Email: "prakash@bazaar.test", Role: models.RoleUser, IsActive: true, CreatedAt: time.Now()}
	for _, u := range []*models.User{&f.admin, &f.buyer} {
		if err := f.store.Users.Create(context.Background(), u); err != nil {
			t.Fatalf("create user: %v", err)
		}
	}

	auditor := utils.NewSyncAuditor(f.audit)
	c := cache.NewMemory()
	users := services.NewUserService(f.store, c, utils.NewTokenManager("secret", time.Hour), cache.NewRefreshTokens(c, time.Hour),
		services.NewOTPService(c, utils.LogMailer{}, time.Minute, time.Minute), auditor, config.AuthConfig{})
	orders := services.NewOrderService(f.store, auditor, utils.LogMailer{}, config.OrdersConfig{})
	h := New(users, services.NewReportingService(f.store, orders, 10), auditor)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.KeyUserID, f.admin.ID)
		c.Set(middleware.KeyRole, string(models.RoleAdmin))
	})
	r.GET("/get-users", h.GetUsers)
	r.PUT("/deactivate-activate-user", h.UpdateUserStatus)
	r.PATCH("/update-user-role", h.UpdateUserRole)
	r.GET("/admin-stats", h.AdminStats)
	r.GET("/audit-logs", h.AuditLogs)
	r.GET("/stock-movements", h.StockMovements)
	f.router = r
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestGetUsers(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodGet, "/get-users?limit=1", "")
	var page services.UserPage
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil || w.Code != http.StatusOK {
		t.Fatalf("get-users = %d %v", w.Code, err)
	}
	if page.TotalUsers != 2 || page.TotalPages != 2 || len(page.Users) != 1 {
		t.Fatalf("page = %+v", page)
	}
}

func TestUpdateUserStatus(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name, body string
		want       int
	}{
		{"missing status", `{"userId":"` + f.buyer.ID + `"}`, http.StatusBadRequest},
		{"self deactivation", `{"userId":"` + f.admin.ID + `","updatedStatus":false}`, http.StatusForbidden},
		{"unknown user", `{"userId":"nope","updatedStatus":false}`, http.StatusNotFound},
		{"deactivate buyer", `{"userId":"` + f.buyer.ID + `","updatedStatus":false}`, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if w := f.do(http.MethodPut, "/deactivate-activate-user", tc.body); w.Code != tc.want {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tc.want, w.Body.String())
			}
		})
	}

	got, _ := f.store.Users.FindByID(context.Background(), f.buyer.ID)
	if got.IsActive {
		t.Fatalf("buyer still active")
	}

	w := f.do(http.MethodGet, "/audit-logs?resource=user&resourceId="+f.buyer.ID, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), utils.ACTION_USER_STATUS) {
		t.Fatalf("audit-logs = %d (%s)", w.Code, w.Body.String())
	}
}

func TestUpdateUserRole(t *testing.T) {
	f := newFixture(t)
	if w := f.do(http.MethodPatch, "/update-user-role", `{"currentUserId":"`+f.buyer.ID+`","updatedRole":"superuser"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid role = %d", w.Code)
	}
	if w := f.do(http.MethodPatch, "/update-user-role", `{"currentUserId":"`+f.admin.ID+`","updatedRole":"user"}`); w.Code != http.StatusForbidden {
		t.Fatalf("self demotion = %d", w.Code)
	}
	if w := f.do(http.MethodPatch, "/update-user-role", `{"currentUserId":"`+f.buyer.ID+`","updatedRole":"admin"}`); w.Code != http.StatusOK {
		t.Fatalf("promotion = %d (%s)", w.Code, w.Body.String())
	}
	got, _ := f.store.Users.FindByID(context.Background(), f.buyer.ID)
	if got.Role != models.RoleAdmin {
		t.Fatalf("role = %s", got.Role)
	}
}

func TestAdminStats(t *testing.T) {
	f := newFixture(t)
	p := models.Product{ID: models.NewID(), Name: "Sel", Price: 30, Stock: 0, Category: models.CategoryGroceries, IsAvailable: true, CreatedAt: time.Now()}
	_ = f.store.Products.Create(context.Background(), &p)

	w := f.do(http.MethodGet, "/admin-stats?recent=3", "")
	var stats models.DashboardStats
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil || w.Code != http.StatusOK {
		t.Fatalf("admin-stats = %d %v", w.Code, err)
	}
	if stats.TotalUsersCount != 2 || stats.TotalProductsCount != 1 || stats.OutOfStockProductsCount != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestAuditQueriesRequireTarget(t *testing.T) {
	f := newFixture(t)
	if w := f.do(http.MethodGet, "/audit-logs", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("audit-logs without resource = %d", w.Code)
	}
	if w := f.do(http.MethodGet, "/stock-movements", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("stock-movements without product = %d", w.Code)
	}
	if w := f.do(http.MethodGet, "/stock-movements?productId=p1&limit=9999", ""); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"count":0`) {
		t.Fatalf("stock-movements = %d (%s)", w.Code, w.Body.String())
	}
}
