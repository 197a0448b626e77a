package services

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"bazaar_back_end/internal/apperr"
	"bazaar_back_end/internal/models"
)

func TestCheckoutCreatesBookings(t *testing.T) {
	e := newEnv(t)
	o := e.orders(false)
	a := e.addProduct(t, "Riz basmati", 250, 10)
	b := e.addProduct(t, "Dal", 125, 10)
	actor := Actor{UserID: e.buyer.ID}

	res, err := o.Checkout(context.Background(), actor, []models.OrderLine{line(e.buyer.ID, a, 1), line(e.buyer.ID, b, 3)})
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if len(res.Bookings) != 2 || res.TotalAmount != 625 {
		t.Fatalf("result = %d bookings, total %.2f", len(res.Bookings), res.TotalAmount)
	}
	for _, bk := range res.Bookings {
		if bk.Status != models.StatusPending || bk.PaymentGateway != models.GatewayCash {
			t.Fatalf("booking = %+v", bk)
		}
	}
	if res.Bookings[1].UnitPrice != 125 || res.Bookings[1].Price != 375 {
		t.Fatalf("price snapshot = %+v", res.Bookings[1])
	}
	if e.stock(t, a.ID) != 9 || e.stock(t, b.ID) != 7 {
		t.Fatalf("stock = %d/%d", e.stock(t, a.ID), e.stock(t, b.ID))
	}

	moves, _ := e.audit.ListMovements(context.Background(), b.ID, 10)
	if len(moves) != 1 || moves[0].PrevStock != 10 || moves[0].NewStock != 7 {
		t.Fatalf("movements = %+v", moves)
	}
}

func TestCheckoutOutOfStock(t *testing.T) {
	e := newEnv(t)
	p := e.addProduct(t, "Épuisé", 100, 0)

	_, err := e.orders(false).Checkout(context.Background(), Actor{UserID: e.buyer.ID}, []models.OrderLine{line(e.buyer.ID, p, 1)})
	wantKind(t, err, apperr.OutOfStock)
	if n := e.bookingCount(t); n != 0 {
		t.Fatalf("%d bookings created", n)
	}
}

func TestCheckoutQuantityAboveStock(t *testing.T) {
	e := newEnv(t)
	p := e.addProduct(t, "Huile", 300, 2)

	_, err := e.orders(false).Checkout(context.Background(), Actor{UserID: e.buyer.ID}, []models.OrderLine{line(e.buyer.ID, p, 3)})
	wantKind(t, err, apperr.OutOfStock)
	if e.stock(t, p.ID) != 2 {
		t.Fatalf("stock = %d, want 2", e.stock(t, p.ID))
	}
}

func TestCheckoutIsAllOrNothing(t *testing.T) {
	e := newEnv(t)
	ok := e.addProduct(t, "Sucre", 80, 5)
	empty := e.addProduct(t, "Sel", 20, 0)

	_, err := e.orders(false).Checkout(context.Background(), Actor{UserID: e.buyer.ID},
		[]models.OrderLine{line(e.buyer.ID, ok, 2), line(e.buyer.ID, empty, 1)})
	wantKind(t, err, apperr.OutOfStock)

	if e.stock(t, ok.ID) != 5 {
		t.Fatalf("first line not rolled back: stock = %d", e.stock(t, ok.ID))
	}
	if n := e.bookingCount(t); n != 0 {
		t.Fatalf("%d bookings kept after failed batch", n)
	}
}

func TestCheckoutBatchValidation(t *testing.T) {
	e := newEnv(t)
	o := e.orders(false)
	p := e.addProduct(t, "Miel", 450, 5)
	actor := Actor{UserID: e.buyer.ID}
	ctx := context.Background()

	_, err := o.Checkout(ctx, actor, nil)
	wantKind(t, err, apperr.Validation)

	_, err = o.Checkout(ctx, actor, []models.OrderLine{line(e.admin.ID, p, 1)})
	wantKind(t, err, apperr.Validation)
	if apperr.Message(err) != "batch mismatch" {
		t.Fatalf("message = %q", apperr.Message(err))
	}

	_, err = o.Checkout(ctx, actor, []models.OrderLine{line(e.buyer.ID, p, 0)})
	wantKind(t, err, apperr.Validation)

	bad := line(e.buyer.ID, p, 2)
	bad.TotalPrice = 10
	_, err = o.Checkout(ctx, actor, []models.OrderLine{bad})
	wantKind(t, err, apperr.Validation)

	_, err = o.Checkout(ctx, actor, []models.OrderLine{{ProductID: models.NewID(), UserID: e.buyer.ID, TotalItem: 1}})
	wantKind(t, err, apperr.NotFound)

	if e.stock(t, p.ID) != 5 {
		t.Fatalf("stock changed by rejected batches")
	}
}

func TestCheckoutKeepsHistoricalPrice(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	p := e.addProduct(t, "Thé vert", 100, 5)

	res, err := e.orders(false).Checkout(ctx, Actor{UserID: e.buyer.ID}, []models.OrderLine{line(e.buyer.ID, p, 2)})
	if err != nil {
		t.Fatal(err)
	}
	price := 999.0
	e.patch(t, p.ID, models.ProductPatch{Price: &price})
	b, _ := e.store.Bookings.FindByID(ctx, res.Bookings[0].ID)
	if b.Price != 200 {
		t.Fatalf("booking price = %.2f, want 200", b.Price)
	}
}

func completeAll(t *testing.T, o *OrderService, admin string, bookings []models.Booking) {
	t.Helper()
	for _, b := range bookings {
		if _, err := o.ChangeStatus(context.Background(), Actor{UserID: admin}, b.ID, "completed"); err != nil {
			t.Fatalf("ChangeStatus: %v", err)
		}
	}
}

func TestAggregateBill(t *testing.T) {
	e := newEnv(t)
	o := e.orders(false)
	ctx := context.Background()
	a := e.addProduct(t, "Riz", 250, 10)
	b := e.addProduct(t, "Dal", 125, 10)

	res, err := o.Checkout(ctx, Actor{UserID: e.buyer.ID}, []models.OrderLine{line(e.buyer.ID, a, 1), line(e.buyer.ID, b, 3)})
	if err != nil {
		t.Fatal(err)
	}

	_, err = o.AggregateBill(ctx, e.buyer.ID)
	wantKind(t, err, apperr.DomainState)
	if !strings.Contains(apperr.Message(err), res.Bookings[0].ID) {
		t.Fatalf("message %q does not name %s", apperr.Message(err), res.Bookings[0].ID)
	}

	completeAll(t, o, e.admin.ID, res.Bookings)
	bill, err := o.AggregateBill(ctx, e.buyer.ID)
	if err != nil {
		t.Fatalf("AggregateBill: %v", err)
	}
	if bill.TotalAmount != 625 || len(bill.Lines) != 2 || bill.BuyerName != "Ramesh Sharma" {
		t.Fatalf("bill = %+v", bill)
	}
	if bill.Lines[0].ProductName != "Riz" || bill.Lines[1].Quantity != 3 {
		t.Fatalf("lines = %+v", bill.Lines)
	}
}

func TestAggregateBillWithoutBookings(t *testing.T) {
	e := newEnv(t)
	_, err := e.orders(false).AggregateBill(context.Background(), e.buyer.ID)
	wantKind(t, err, apperr.NotFound)
}

func TestSingleBill(t *testing.T) {
	e := newEnv(t)
	o := e.orders(false)
	ctx := context.Background()
	p := e.addProduct(t, "Ghee", 300, 5)
	res, _ := o.Checkout(ctx, Actor{UserID: e.buyer.ID}, []models.OrderLine{line(e.buyer.ID, p, 2)})
	id := res.Bookings[0].ID

	_, err := o.Bill(ctx, Actor{UserID: e.buyer.ID}, false, id)
	wantKind(t, err, apperr.DomainState)

	completeAll(t, o, e.admin.ID, res.Bookings)
	bill, err := o.Bill(ctx, Actor{UserID: e.buyer.ID}, false, id)
	if err != nil {
		t.Fatalf("Bill: %v", err)
	}
	if bill.Reference != "BILL-"+id || bill.TotalAmount != 600 || bill.Lines[0].UnitPrice != 300 {
		t.Fatalf("bill = %+v", bill)
	}

	stranger := e.addUser(t, "sita", models.RoleUser)
	_, err = o.Bill(ctx, Actor{UserID: stranger.ID}, false, id)
	wantKind(t, err, apperr.NotFound)
	if _, err := o.Bill(ctx, Actor{UserID: e.admin.ID}, true, id); err != nil {
		t.Fatalf("admin bill: %v", err)
	}
}

func TestCancelOrderRestoresStock(t *testing.T) {
	e := newEnv(t)
	o := e.orders(false)
	ctx := context.Background()
	p := e.addProduct(t, "Lait", 60, 5)
	res, _ := o.Checkout(ctx, Actor{UserID: e.buyer.ID}, []models.OrderLine{line(e.buyer.ID, p, 3)})
	id := res.Bookings[0].ID

	stranger := e.addUser(t, "hari", models.RoleUser)
	_, err := o.CancelOrder(ctx, Actor{UserID: stranger.ID}, id)
	wantKind(t, err, apperr.NotFound)

	b, err := o.CancelOrder(ctx, Actor{UserID: e.buyer.ID}, id)
	if err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if b.Status != models.StatusCancelled || e.stock(t, p.ID) != 5 {
		t.Fatalf("status %s, stock %d", b.Status, e.stock(t, p.ID))
	}

	_, err = o.CancelOrder(ctx, Actor{UserID: e.buyer.ID}, id)
	wantKind(t, err, apperr.DomainState)
}

func TestRestockIsCapped(t *testing.T) {
	e := newEnv(t)
	o := e.orders(false)
	ctx := context.Background()
	p := e.addProduct(t, "Oeufs", 15, 10)
	res, _ := o.Checkout(ctx, Actor{UserID: e.buyer.ID}, []models.OrderLine{line(e.buyer.ID, p, 5)})

	full := 98
	e.patch(t, p.ID, models.ProductPatch{Stock: &full})
	if _, err := o.ChangeStatus(ctx, Actor{UserID: e.admin.ID}, res.Bookings[0].ID, "cancelled"); err != nil {
		t.Fatal(err)
	}
	if got := e.stock(t, p.ID); got != models.MaxStock {
		t.Fatalf("stock = %d, want %d", got, models.MaxStock)
	}
}

func TestChangeStatusTransitions(t *testing.T) {
	ctx := context.Background()

	t.Run("lax table", func(t *testing.T) {
		e := newEnv(t)
		o := e.orders(false)
		p := e.addProduct(t, "Pain", 40, 5)
		res, _ := o.Checkout(ctx, Actor{UserID: e.buyer.ID}, []models.OrderLine{line(e.buyer.ID, p, 2)})
		id := res.Bookings[0].ID
		admin := Actor{UserID: e.admin.ID}

		for _, st := range []string{"completed", "pending", "cancelled", "completed"} {
			b, err := o.ChangeStatus(ctx, admin, id, st)
			if err != nil || string(b.Status) != st {
				t.Fatalf("-> %s: %+v, %v", st, b, err)
			}
		}
		// annulée puis réactivée : le stock est repris
		if got := e.stock(t, p.ID); got != 3 {
			t.Fatalf("stock = %d, want 3", got)
		}
		logs, _ := e.audit.ListAudit(ctx, "order", id, 20)
		if len(logs) < 4 {
			t.Fatalf("audit entries = %d", len(logs))
		}
	})

	t.Run("strict table", func(t *testing.T) {
		e := newEnv(t)
		o := e.orders(true)
		p := e.addProduct(t, "Pain", 40, 5)
		res, _ := o.Checkout(ctx, Actor{UserID: e.buyer.ID}, []models.OrderLine{line(e.buyer.ID, p, 1)})
		id := res.Bookings[0].ID
		admin := Actor{UserID: e.admin.ID}

		if _, err := o.ChangeStatus(ctx, admin, id, "completed"); err != nil {
			t.Fatal(err)
		}
		_, err := o.ChangeStatus(ctx, admin, id, "pending")
		wantKind(t, err, apperr.DomainState)
		if b, err := o.ChangeStatus(ctx, admin, id, "completed"); err != nil || b.Status != models.StatusCompleted {
			t.Fatalf("same status: %+v, %v", b, err)
		}
	})

	t.Run("invalid input", func(t *testing.T) {
		e := newEnv(t)
		o := e.orders(false)
		_, err := o.ChangeStatus(ctx, Actor{}, models.NewID(), "shipped")
		wantKind(t, err, apperr.Validation)
		_, err = o.ChangeStatus(ctx, Actor{}, models.NewID(), "completed")
		wantKind(t, err, apperr.NotFound)
	})
}

func TestReactivateWithoutStock(t *testing.T) {
	e := newEnv(t)
	o := e.orders(false)
	ctx := context.Background()
	p := e.addProduct(t, "Beurre", 90, 2)
	res, _ := o.Checkout(ctx, Actor{UserID: e.buyer.ID}, []models.OrderLine{line(e.buyer.ID, p, 2)})
	id := res.Bookings[0].ID
	admin := Actor{UserID: e.admin.ID}

	if _, err := o.ChangeStatus(ctx, admin, id, "cancelled"); err != nil {
		t.Fatal(err)
	}
	other := e.addUser(t, "gita", models.RoleUser)
	if _, err := o.Checkout(ctx, Actor{UserID: other.ID}, []models.OrderLine{line(other.ID, p, 2)}); err != nil {
		t.Fatal(err)
	}

	_, err := o.ChangeStatus(ctx, admin, id, "pending")
	wantKind(t, err, apperr.OutOfStock)
	b, _ := e.store.Bookings.FindByID(ctx, id)
	if b.Status != models.StatusCancelled {
		t.Fatalf("status = %s after failed reactivation", b.Status)
	}
}

func TestListBookingsScope(t *testing.T) {
	e := newEnv(t)
	o := e.orders(false)
	ctx := context.Background()
	riz := e.addProduct(t, "Riz", 100, 20)
	dal := e.addProduct(t, "Dal", 50, 20)
	other := e.addUser(t, "krishna", models.RoleUser)

	if _, err := o.Checkout(ctx, Actor{UserID: e.buyer.ID}, []models.OrderLine{line(e.buyer.ID, riz, 1), line(e.buyer.ID, dal, 1)}); err != nil {
		t.Fatal(err)
	}
	if _, err := o.Checkout(ctx, Actor{UserID: other.ID}, []models.OrderLine{line(other.ID, riz, 2)}); err != nil {
		t.Fatal(err)
	}

	all, err := o.ListBookings(ctx, Actor{UserID: e.admin.ID}, true, BookingQuery{})
	if err != nil || all.TotalBookings != 3 {
		t.Fatalf("admin list = %+v, %v", all, err)
	}
	if all.Bookings[0].UserName != "krishna" || all.Bookings[0].ProductName != "Riz" {
		t.Fatalf("newest first with joins, got %+v", all.Bookings[0])
	}

	byUser, _ := o.ListBookings(ctx, Actor{UserID: e.admin.ID}, true, BookingQuery{Search: "RAM"})
	if byUser.TotalBookings != 2 {
		t.Fatalf("admin search = %d", byUser.TotalBookings)
	}

	mine, _ := o.ListBookings(ctx, Actor{UserID: e.buyer.ID}, false, BookingQuery{})
	if mine.TotalBookings != 2 {
		t.Fatalf("own bookings = %d", mine.TotalBookings)
	}
	mineDal, _ := o.ListBookings(ctx, Actor{UserID: e.buyer.ID}, false, BookingQuery{Search: "dal"})
	if mineDal.TotalBookings != 1 || mineDal.Bookings[0].ProductName != "Dal" {
		t.Fatalf("own search = %+v", mineDal)
	}
	none, _ := o.ListBookings(ctx, Actor{UserID: e.buyer.ID}, false, BookingQuery{Search: "zzz"})
	if none.TotalBookings != 0 || len(none.Bookings) != 0 {
		t.Fatalf("no match = %+v", none)
	}

	completed, _ := o.ListBookings(ctx, Actor{UserID: e.admin.ID}, true, BookingQuery{Status: "completed"})
	if completed.TotalBookings != 0 {
		t.Fatalf("completed = %d", completed.TotalBookings)
	}
	_, err = o.ListBookings(ctx, Actor{UserID: e.admin.ID}, true, BookingQuery{Status: "shipped"})
	wantKind(t, err, apperr.Validation)
}

func TestExportCSV(t *testing.T) {
	e := newEnv(t)
	o := e.orders(false)
	ctx := context.Background()
	p := e.addProduct(t, "Riz", 100, 20)
	if _, err := o.Checkout(ctx, Actor{UserID: e.buyer.ID}, []models.OrderLine{line(e.buyer.ID, p, 2)}); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := o.ExportCSV(ctx, &buf, ""); err != nil {
		t.Fatalf("ExportCSV: %v", err)
	}
	rows := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(rows) != 2 || !strings.HasPrefix(rows[0], "booking_id,") {
		t.Fatalf("csv = %q", buf.String())
	}
	if !strings.Contains(rows[1], "ramesh") || !strings.Contains(rows[1], "pending") {
		t.Fatalf("row = %q", rows[1])
	}

	buf.Reset()
	if err := o.ExportCSV(ctx, &buf, "completed"); err != nil {
		t.Fatal(err)
	}
	if rows := strings.Split(strings.TrimSpace(buf.String()), "\n"); len(rows) != 1 {
		t.Fatalf("completed export = %q", buf.String())
	}
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	e := newEnv(t)
	o := e.orders(false)
	ctx := context.Background()
	p := e.addProduct(t, "Beurre", 90, 5)

	const buyers = 24
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		sold     int
		accepted int
		rejected int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(qty int) {
			defer wg.Done()
			res, err := o.Checkout(ctx, Actor{UserID: e.buyer.ID}, []models.OrderLine{line(e.buyer.ID, p, qty)})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
				sold += res.Bookings[0].TotalItems
			case apperr.KindOf(err) == apperr.OutOfStock:
				rejected++
			default:
				t.Errorf("checkout: %v", err)
			}
		}(1 + i%2)
	}
	wg.Wait()

	stock := e.stock(t, p.ID)
	if stock < 0 || sold+stock != 5 {
		t.Fatalf("stock = %d, sold = %d, want sold+stock = 5", stock, sold)
	}
	if accepted+rejected != buyers || e.bookingCount(t) != accepted {
		t.Fatalf("accepted %d, rejected %d, bookings %d", accepted, rejected, e.bookingCount(t))
	}
}
