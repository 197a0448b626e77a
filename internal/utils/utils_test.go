package utils

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"bazaar_back_end/internal/models"
)

func TestTokenManagerRoundTrip(t *testing.T) {
	m := NewTokenManager("secret", time.Hour)
	token, err := m.GenerateJWT(models.User{ID: "u1", Email: "ram@example.com", Role: models.RoleAdmin})
	if err != nil {
		t.Fatal(err)
	}

	claims, err := m.ParseJWT(token)
	if err != nil {
		t.Fatalf("ParseJWT: %v", err)
	}
	if claims.UserID != "u1" || claims.Email != "ram@example.com" || claims.Role != models.RoleAdmin {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestTokenManagerRejects(t *testing.T) {
	m := NewTokenManager("secret", time.Hour)
	token, _ := m.GenerateJWT(models.User{ID: "u1"})

	if _, err := NewTokenManager("autre", time.Hour).ParseJWT(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong secret accepted: %v", err)
	}

	expired := NewTokenManager("secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _ := expired.GenerateJWT(models.User{ID: "u1"})
	if _, err := m.ParseJWT(old); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token accepted: %v", err)
	}

	if _, err := m.ParseJWT("pas.un.jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage accepted: %v", err)
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("Secret#123")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Fatalf("hash = %s", hash)
	}
	if ok, err := VerifyPassword("Secret#123", hash); err != nil || !ok {
		t.Fatalf("VerifyPassword(good) = %v, %v", ok, err)
	}
	if ok, _ := VerifyPassword("secret#123", hash); ok {
		t.Fatalf("wrong password accepted")
	}
	if _, err := VerifyPassword("x", "$2a$10$bcrypt"); !errors.Is(err, ErrInvalidHash) {
		t.Fatalf("non-argon hash: %v", err)
	}
}

func TestCheckPasswordStrength(t *testing.T) {
	cases := map[string]bool{
		"Secret#123": true,
		"short#1A":   true,
		"Sh#1":       false,
		"secret#123": false,
		"Secret1234": false,
		"Secret####": false,
	}
	for pw, ok := range cases {
		if err := CheckPasswordStrength(pw); (err == nil) != ok {
			t.Errorf("CheckPasswordStrength(%q) = %v, want ok=%v", pw, err, ok)
		}
	}
}

func TestRenderBillHTML(t *testing.T) {
	bill := models.Bill{
		Reference: "BILL-1",
		BuyerName: "Ram <Thapa>",
		Lines: []models.BillLine{
			{ProductName: "Livre", Quantity: 2, UnitPrice: 125, Total: 250},
			{ProductName: "Stylo", Quantity: 3, UnitPrice: 125, Total: 375},
		},
		TotalAmount: 625,
		IssuedAt:    time.Date(2026, 1, 2, 3, 4, 0, 0, time.UTC),
	}

	html, err := RenderBillHTML(bill)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"BILL-1", "Rs. 625.00", "Rs. 375.00", "Livre", "data:image/png;base64,", "Ram &lt;Thapa&gt;"} {
		if !strings.Contains(html, want) {
			t.Errorf("bill html missing %q", want)
		}
	}
}

func TestEmailTemplates(t *testing.T) {
	html, err := OTPEmailHTML("123456", 5*time.Minute)
	if err != nil || !strings.Contains(html, "123456") || !strings.Contains(html, "5 minutes") {
		t.Fatalf("OTP html = %v", err)
	}

	m, err := BookingStatusEmail("ram@example.com", models.Booking{ID: "b1", Status: models.StatusCancelled, TotalItems: 2, Price: 250}, "Livre")
	if err != nil {
		t.Fatal(err)
	}
	if m.To != "ram@example.com" || !strings.Contains(m.Subject, "annulée") || !strings.Contains(m.HTML, "Rs. 250.00") {
		t.Fatalf("status mail = %+v", m)
	}
}

func TestSyncAuditor(t *testing.T) {
	store := NewMemoryAuditStore()
	a := NewSyncAuditor(store)

	a.LogAction(Actor{UserID: "admin", IP: "127.0.0.1"}, ACTION_PRODUCT_CREATE, RESOURCE_PRODUCT, "p1", nil, map[string]int{"stock": 5})
	a.LogFailedAction(Actor{UserID: "u1"}, ACTION_PRODUCT_DELETE, RESOURCE_PRODUCT, "p1", "admin requis")
	a.LogMovement(models.StockMovement{ProductID: "p1", Type: models.MovementSale, Quantity: 2})

	logs, _ := a.Logs(context.Background(), RESOURCE_PRODUCT, "p1", 10)
	if len(logs) != 2 || logs[0].Success || !logs[1].Success || logs[1].NewValue != `{"stock":5}` {
		t.Fatalf("logs = %+v", logs)
	}
	moves, _ := a.Movements(context.Background(), "p1", 10)
	if len(moves) != 1 || moves[0].CreatedAt.IsZero() {
		t.Fatalf("movements = %+v", moves)
	}
}

func TestNilAuditorIsNoop(t *testing.T) {
	var a *Auditor
	a.LogAction(Actor{}, ACTION_ORDER_CREATE, RESOURCE_ORDER, "b1", nil, nil)
	logs, err := a.Logs(context.Background(), RESOURCE_ORDER, "", 5)
	if err != nil || len(logs) != 0 {
		t.Fatalf("Logs = %v, %v", logs, err)
	}
}
