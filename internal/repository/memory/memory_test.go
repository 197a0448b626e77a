package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"bazaar_back_end/internal/models"
	"bazaar_back_end/internal/repository"
)

func seedProduct(t *testing.T, s repository.Store, id string, stock int) {
	t.Helper()
	p := &models.Product{ID: id, Name: "produit " + id, Price: 10, Stock: stock, IsAvailable: true, Category: models.CategoryBooks}
	if err := s.Products.Create(context.Background(), p); err != nil {
		t.Fatalf("create %s: %v", id, err)
	}
}

func TestDecrementStockNeverNegative(t *testing.T) {
	ctx := context.Background()
	s := New().Store()
	seedProduct(t, s, "p1", 3)

	if _, err := s.Products.DecrementStock(ctx, "p1", 4); !errors.Is(err, repository.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	p, err := s.Products.DecrementStock(ctx, "p1", 3)
	if err != nil || p.Stock != 0 {
		t.Fatalf("DecrementStock = %+v, %v", p, err)
	}
	if _, err := s.Products.DecrementStock(ctx, "missing", 1); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestIncrementStockCapped(t *testing.T) {
	s := New().Store()
	seedProduct(t, s, "p1", 98)

	p, err := s.Products.IncrementStock(context.Background(), "p1", 5, models.MaxStock)
	if err != nil || p.Stock != models.MaxStock {
		t.Fatalf("IncrementStock = %+v, %v", p, err)
	}
}

func TestTransactionRollback(t *testing.T) {
	ctx := context.Background()
	s := New().Store()
	seedProduct(t, s, "p1", 5)

	boom := errors.New("boom")
	err := s.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.Products.DecrementStock(ctx, "p1", 2); err != nil {
			return err
		}
		if err := s.Bookings.Create(ctx, &models.Booking{ID: "b1", User: "u1", Product: "p1"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithTransaction = %v", err)
	}

	p, _ := s.Products.FindByID(ctx, "p1")
	if p.Stock != 5 {
		t.Fatalf("stock = %d after rollback, want 5", p.Stock)
	}
	if _, err := s.Bookings.FindByID(ctx, "b1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("booking survived rollback")
	}
}

func TestProductListInsertionOrderAndPaging(t *testing.T) {
	ctx := context.Background()
	s := New().Store()
	ids := []string{"a", "b", "c", "d", "e"}
	for _, id := range ids {
		seedProduct(t, s, id, 1)
	}

	items, total, err := s.Products.List(ctx, models.ProductFilter{Page: 2, Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if total != 5 || len(items) != 2 || items[0].ID != "c" || items[1].ID != "d" {
		t.Fatalf("List = %v (total %d)", items, total)
	}

	items, _, _ = s.Products.List(ctx, models.ProductFilter{Page: 4, Limit: 2})
	if len(items) != 0 {
		t.Fatalf("page beyond end = %v", items)
	}
}

func TestBookingUpdateStatusConditional(t *testing.T) {
	ctx := context.Background()
	s := New().Store()
	_ = s.Bookings.Create(ctx, &models.Booking{ID: "b1", Status: models.StatusPending})

	if _, err := s.Bookings.UpdateStatus(ctx, "b1", models.StatusCompleted, models.StatusCancelled); !errors.Is(err, repository.ErrStaleState) {
		t.Fatalf("expected ErrStaleState, got %v", err)
	}
	b, err := s.Bookings.UpdateStatus(ctx, "b1", models.StatusPending, models.StatusCompleted)
	if err != nil || b.Status != models.StatusCompleted {
		t.Fatalf("UpdateStatus = %+v, %v", b, err)
	}
}

func TestBookingListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New().Store()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "mid", "new"} {
		_ = s.Bookings.Create(ctx, &models.Booking{ID: id, User: "u1", Status: models.StatusPending, CreatedAt: base.Add(time.Duration(i) * time.Hour)})
	}

	items, total, _ := s.Bookings.List(ctx, models.BookingFilter{User: "u1", Page: 1, Limit: 10})
	if total != 3 || items[0].ID != "new" || items[2].ID != "old" {
		t.Fatalf("List = %v", items)
	}
	byUser, _ := s.Bookings.ListByUser(ctx, "u1")
	if byUser[0].ID != "old" {
		t.Fatalf("ListByUser should be oldest first, got %v", byUser)
	}
}

func TestUserUniqueness(t *testing.T) {
	ctx := context.Background()
	s := New().Store()
	_ = s.Users.Create(ctx, &models.User{ID: "u1", Email: "ram@example.com", UserName: "ram", PhoneNumber: "9800000000"})

	field, _ := s.Users.Taken(ctx, "other@example.com", "9800000000", "other")
	if field != "phoneNumber" {
		t.Fatalf("Taken = %q", field)
	}
	err := s.Users.Create(ctx, &models.User{ID: "u2", Email: "RAM@example.com", UserName: "x", PhoneNumber: "1"})
	if !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("duplicate email accepted: %v", err)
	}
}

func TestPaymentSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New().Store()
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	_ = s.Payments.Create(ctx, &models.PaymentSession{TransactionUUID: "t1", Status: models.SessionInitiated, CreatedAt: created})
	_ = s.Payments.Create(ctx, &models.PaymentSession{TransactionUUID: "t2", Status: models.SessionInitiated, CreatedAt: created})

	if err := s.Payments.Complete(ctx, "t1", "REF", []string{"b1"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Payments.Complete(ctx, "t1", "REF", nil); !errors.Is(err, repository.ErrStaleState) {
		t.Fatalf("second Complete = %v", err)
	}

	n, _ := s.Payments.ExpireBefore(ctx, created.Add(time.Minute))
	if n != 1 {
		t.Fatalf("expired %d sessions, want 1", n)
	}
	t2, _ := s.Payments.FindByTransaction(ctx, "t2")
	if t2.Status != models.SessionExpired {
		t.Fatalf("t2 status = %s", t2.Status)
	}
}

func TestDisableExpired(t *testing.T) {
	ctx := context.Background()
	s := New().Store()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	_ = s.Products.Create(ctx, &models.Product{ID: "p1", Name: "lait", IsAvailable: true, ExpiryDate: &past})
	_ = s.Products.Create(ctx, &models.Product{ID: "p2", Name: "yaourt", IsAvailable: true, ExpiryDate: &future})
	_ = s.Products.Create(ctx, &models.Product{ID: "p3", Name: "sel", IsAvailable: true})

	n, _ := s.Products.DisableExpired(ctx, now)
	if n != 1 {
		t.Fatalf("disabled %d, want 1", n)
	}
	p1, _ := s.Products.FindByID(ctx, "p1")
	if p1.IsAvailable {
		t.Fatalf("expired product still available")
	}
}

func TestProductNameUniquePerAdmin(t *testing.T) {
	ctx := context.Background()
	s := New().Store()
	_ = s.Products.Create(ctx, &models.Product{ID: "p1", Name: "Ghee", Admin: "a1"})

	if err := s.Products.Create(ctx, &models.Product{ID: "p2", Name: "GHEE", Admin: "a1"}); !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if err := s.Products.Create(ctx, &models.Product{ID: "p3", Name: "Ghee", Admin: "a2"}); err != nil {
		t.Fatalf("other admin: %v", err)
	}
	_ = s.Products.Create(ctx, &models.Product{ID: "p4", Name: "Beurre", Admin: "a1"})
	name := "ghee"
	if _, err := s.Products.Patch(ctx, "p4", models.ProductPatch{Name: &name}, time.Now()); !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("rename: expected ErrDuplicate, got %v", err)
	}
}

func TestPatchKeepsConcurrentStock(t *testing.T) {
	ctx := context.Background()
	s := New().Store()
	seedProduct(t, s, "p1", 10)

	if _, err := s.Products.DecrementStock(ctx, "p1", 3); err != nil {
		t.Fatal(err)
	}
	desc := "nouvelle description"
	before, err := s.Products.Patch(ctx, "p1", models.ProductPatch{Description: &desc}, time.Now())
	if err != nil || before.Stock != 7 || before.Description != "" {
		t.Fatalf("Patch = %+v, %v", before, err)
	}
	p, _ := s.Products.FindByID(ctx, "p1")
	if p.Stock != 7 || p.Description != desc {
		t.Fatalf("product = %+v", p)
	}
	if _, err := s.Products.Patch(ctx, "missing", models.ProductPatch{}, time.Now()); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetAvailableConditional(t *testing.T) {
	ctx := context.Background()
	s := New().Store()
	seedProduct(t, s, "p1", 5)

	p, err := s.Products.SetAvailable(ctx, "p1", false, time.Now())
	if err != nil || p.IsAvailable {
		t.Fatalf("SetAvailable = %+v, %v", p, err)
	}
	if _, err := s.Products.SetAvailable(ctx, "p1", false, time.Now()); !errors.Is(err, repository.ErrStaleState) {
		t.Fatalf("expected ErrStaleState, got %v", err)
	}
	if _, err := s.Products.SetAvailable(ctx, "missing", true, time.Now()); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
