package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"bazaar_back_end/internal/apperr"
	"bazaar_back_end/internal/config"
	"bazaar_back_end/internal/models"
	"bazaar_back_end/internal/repository"
	"bazaar_back_end/internal/repository/memory"
	"bazaar_back_end/internal/utils"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []utils.Mail
}

func (m *recordingMailer) Send(_ context.Context, mail utils.Mail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, mail)
	return nil
}

func (m *recordingMailer) last() (utils.Mail, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return utils.Mail{}, false
	}
	return m.sent[len(m.sent)-1], true
}

type fakeImages struct {
	uploaded []string
	deleted  []string
}

func (f *fakeImages) Upload(_ context.Context, img ImageUpload) (string, error) {
	f.uploaded = append(f.uploaded, img.Filename)
	return "http://minio.local/products/" + img.Filename, nil
}

func (f *fakeImages) Delete(_ context.Context, url string) error {
	f.deleted = append(f.deleted, url)
	return nil
}

type env struct {
	store  repository.Store
	audit  *utils.MemoryAuditStore
	mailer *recordingMailer
	admin  models.User
	buyer  models.User
}

func newEnv(t *testing.T) *env {
	t.Helper()
	auditStore := utils.NewMemoryAuditStore()
	e := &env{
		store:  memory.New().Store(),
		audit:  auditStore,
		mailer: &recordingMailer{},
	}
	e.admin = e.addUser(t, "admin", models.RoleAdmin)
	e.buyer = e.addUser(t, "ramesh", models.RoleUser)
	return e
}

func (e *env) auditor() *utils.Auditor { return utils.NewSyncAuditor(e.audit) }

func (e *env) addUser(t *testing.T, userName string, role models.Role) models.User {
	t.Helper()
	u := models.User{
		ID:        models.NewID(),
		FullName:  strings.ToUpper(userName[:1]) + userName[1:] + " Sharma",
		UserName:  userName,
		Email:     userName + "@bazaar.test",
		Role:      role,
		IsActive:  true,
		CreatedAt: time.Now(),
	}
	if err := e.store.Users.Create(context.Background(), &u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func (e *env) addProduct(t *testing.T, name string, price float64, stock int) models.Product {
	t.Helper()
	p := models.Product{
		ID:          models.NewID(),
		Name:        name,
		Description: "description de " + name,
		Price:       price,
		Stock:       stock,
		Category:    models.CategoryGroceries,
		IsAvailable: true,
		Admin:       e.admin.ID,
		CreatedAt:   time.Now(),
	}
	if err := e.store.Products.Create(context.Background(), &p); err != nil {
		t.Fatalf("create product: %v", err)
	}
	return p
}

func (e *env) patch(t *testing.T, id string, pp models.ProductPatch) {
	t.Helper()
	if _, err := e.store.Products.Patch(context.Background(), id, pp, time.Now()); err != nil {
		t.Fatalf("patch product: %v", err)
	}
}

func (e *env) stock(t *testing.T, id string) int {
	t.Helper()
	p, err := e.store.Products.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("find product: %v", err)
	}
	return p.Stock
}

func (e *env) bookingCount(t *testing.T) int {
	t.Helper()
	_, total, err := e.store.Bookings.List(context.Background(), models.BookingFilter{Page: 1, Limit: 100})
	if err != nil {
		t.Fatalf("list bookings: %v", err)
	}
	return total
}

func (e *env) orders(strict bool) *OrderService {
	return NewOrderService(e.store, e.auditor(), e.mailer, config.OrdersConfig{StrictTransitions: strict, PageSize: 10})
}

func (e *env) catalog() *CatalogService {
	return NewCatalogService(e.store, &fakeImages{}, NoopIndexer{}, e.auditor(), 10)
}

func line(userID string, p models.Product, qty int) models.OrderLine {
	return models.OrderLine{ProductID: p.ID, UserID: userID, TotalItem: qty, TotalPrice: p.Price * float64(qty)}
}

func wantKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := apperr.KindOf(err); got != kind {
		t.Fatalf("error kind = %s (%v), want %s", got, err, kind)
	}
}

func names(products []models.Product) string {
	out := make([]string, 0, len(products))
	for _, p := range products {
		out = append(out, p.Name)
	}
	return fmt.Sprint(out)
}
