package models

import "testing"

func TestTransitionTables(t *testing.T) {
	cases := []struct {
		name   string
		strict bool
		from   BookingStatus
		to     BookingStatus
		want   bool
	}{
		{"lax completed to pending", false, StatusCompleted, StatusPending, true},
		{"lax cancelled to completed", false, StatusCancelled, StatusCompleted, true},
		{"strict pending to completed", true, StatusPending, StatusCompleted, true},
		{"strict pending to cancelled", true, StatusPending, StatusCancelled, true},
		{"strict completed to pending", true, StatusCompleted, StatusPending, false},
		{"strict cancelled to completed", true, StatusCancelled, StatusCompleted, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := BookingTransitions(tc.strict).Allows(tc.from, tc.to); got != tc.want {
				t.Fatalf("Allows(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
			}
		})
	}
}

func TestParseCategory(t *testing.T) {
	if c, ok := ParseCategory("  Electronics "); !ok || c != CategoryElectronics {
		t.Fatalf("ParseCategory = %q, %v", c, ok)
	}
	if _, ok := ParseCategory("weapons"); ok {
		t.Fatalf("unknown category accepted")
	}
}

func TestLowStock(t *testing.T) {
	cases := []struct {
		stock, threshold int
		want             bool
	}{
		{0, 0, false},
		{5, 0, true},
		{10, 0, false},
		{15, 20, true},
		{20, 20, false},
	}
	for _, tc := range cases {
		p := Product{Stock: tc.stock, LowStockThreshold: tc.threshold}
		if got := p.IsLowStock(DefaultLowStockThreshold); got != tc.want {
			t.Errorf("stock=%d threshold=%d: IsLowStock = %v, want %v", tc.stock, tc.threshold, got, tc.want)
		}
	}
}

func TestProductPatchApply(t *testing.T) {
	name := "Thé vert"
	stock := 42
	p := Product{Name: "Thé", Stock: 3, Price: 120}

	got := ProductPatch{Name: &name, Stock: &stock}.Apply(p)

	if got.Name != name || got.Stock != stock || got.Price != 120 {
		t.Fatalf("Apply = %+v", got)
	}
	if p.Name != "Thé" {
		t.Fatalf("original mutated")
	}
}

func TestSessionOrderLines(t *testing.T) {
	s := PaymentSession{
		User:  "u1",
		Lines: []SessionLine{{Product: "p1", Quantity: 2, UnitPrice: 50, TotalPrice: 100}},
	}
	lines := s.OrderLines()
	if len(lines) != 1 || lines[0].UserID != "u1" || lines[0].TotalItem != 2 || lines[0].ProductID != "p1" {
		t.Fatalf("OrderLines = %+v", lines)
	}
}
