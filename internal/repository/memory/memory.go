// Package memory implémente les dépôts en mémoire, avec transactions sérialisées.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"bazaar_back_end/internal/models"
	"bazaar_back_end/internal/repository"
)

type txKey struct{}

type productRow struct {
	models.Product
	seq int64
}

type bookingRow struct {
	models.Booking
	seq int64
}

type userRow struct {
	models.User
	seq int64
}

type tables struct {
	products map[string]productRow
	bookings map[string]bookingRow
	users    map[string]userRow
	payments map[string]models.PaymentSession
}

func (t tables) clone() tables {
	c := tables{
		products: make(map[string]productRow, len(t.products)),
		bookings: make(map[string]bookingRow, len(t.bookings)),
		users:    make(map[string]userRow, len(t.users)),
		payments: make(map[string]models.PaymentSession, len(t.payments)),
	}
	for k, v := range t.products {
		c.products[k] = v
	}
	for k, v := range t.bookings {
		c.bookings[k] = v
	}
	for k, v := range t.users {
		c.users[k] = v
	}
	for k, v := range t.payments {
		c.payments[k] = v
	}
	return c
}

// DB est une base en mémoire. Une transaction a l'exclusivité de la base jusqu'à son issue.
type DB struct {
	txMu sync.RWMutex
	mu   sync.Mutex
	seq  int64
	data tables
	now  func() time.Time
}

func New() *DB {
	return &DB{
		data: tables{
			products: make(map[string]productRow),
			bookings: make(map[string]bookingRow),
			users:    make(map[string]userRow),
			payments: make(map[string]models.PaymentSession),
		},
		now: time.Now,
	}
}

// Store renvoie les dépôts adossés à cette base.
func (db *DB) Store() repository.Store {
	return repository.Store{
		Tx:       db,
		Products: &products{db},
		Bookings: &bookings{db},
		Users:    &users{db},
		Payments: &payments{db},
	}
}

func (db *DB) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*DB)
	return owner == db
}

func (db *DB) enter(ctx context.Context) func() {
	if db.inTx(ctx) {
		db.mu.Lock()
		return db.mu.Unlock
	}
	db.txMu.RLock()
	db.mu.Lock()
	return func() {
		db.mu.Unlock()
		db.txMu.RUnlock()
	}
}

func (db *DB) next() int64 {
	db.seq++
	return db.seq
}

func (db *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if db.inTx(ctx) {
		return fn(ctx)
	}

	db.txMu.Lock()
	defer db.txMu.Unlock()

	db.mu.Lock()
	snapshot := db.data.clone()
	db.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, db)); err != nil {
		db.mu.Lock()
		db.data = snapshot
		db.mu.Unlock()
		return err
	}
	return nil
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func page[T any](items []T, skip, limit int) []T {
	if limit <= 0 {
		return items
	}
	if skip >= len(items) {
		return []T{}
	}
	end := skip + limit
	if end > len(items) {
		end = len(items)
	}
	return items[skip:end]
}

func inSet[T comparable](set []T, v T) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// --- Produits ---

type products struct{ db *DB }

func (r *products) Create(ctx context.Context, p *models.Product) error {
	defer r.db.enter(ctx)()
	if _, ok := r.db.data.products[p.ID]; ok {
		return repository.ErrDuplicate
	}
	if r.nameTaken(p.ID, p.Admin, p.Name) {
		return repository.ErrDuplicate
	}
	r.db.data.products[p.ID] = productRow{Product: *p, seq: r.db.next()}
	return nil
}

func (r *products) FindByID(ctx context.Context, id string) (*models.Product, error) {
	defer r.db.enter(ctx)()
	row, ok := r.db.data.products[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	p := row.Product
	return &p, nil
}

func (r *products) FindByIDs(ctx context.Context, ids []string) (map[string]models.Product, error) {
	defer r.db.enter(ctx)()
	out := make(map[string]models.Product, len(ids))
	for _, id := range ids {
		if row, ok := r.db.data.products[id]; ok {
			out[id] = row.Product
		}
	}
	return out, nil
}

func (r *products) FindByNameAndAdmin(ctx context.Context, name, admin string) (*models.Product, error) {
	defer r.db.enter(ctx)()
	for _, row := range r.db.data.products {
		if row.Admin == admin && strings.EqualFold(row.Name, name) {
			p := row.Product
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *products) sorted() []productRow {
	rows := make([]productRow, 0, len(r.db.data.products))
	for _, row := range r.db.data.products {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	return rows
}

func matchProduct(p models.Product, f models.ProductFilter) bool {
	if f.Search != "" && !containsFold(p.Name, f.Search) && !containsFold(p.Description, f.Search) {
		return false
	}
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	switch f.Availability {
	case models.AvailabilityInStock:
		if p.Stock <= 0 {
			return false
		}
	case models.AvailabilityOutOfStock:
		if p.Stock != 0 {
			return false
		}
	}
	if f.Enabled != nil && p.IsAvailable != *f.Enabled {
		return false
	}
	if f.Admin != "" && p.Admin != f.Admin {
		return false
	}
	return true
}

func (r *products) List(ctx context.Context, f models.ProductFilter) ([]models.Product, int, error) {
	defer r.db.enter(ctx)()
	var matched []models.Product
	for _, row := range r.sorted() {
		if matchProduct(row.Product, f) {
			matched = append(matched, row.Product)
		}
	}
	return page(matched, f.Skip(), f.Limit), len(matched), nil
}

func (r *products) IDsByName(ctx context.Context, search string) ([]string, error) {
	defer r.db.enter(ctx)()
	var ids []string
	for _, row := range r.sorted() {
		if containsFold(row.Name, search) {
			ids = append(ids, row.ID)
		}
	}
	return ids, nil
}

func (r *products) All(ctx context.Context) ([]models.Product, error) {
	defer r.db.enter(ctx)()
	rows := r.sorted()
	out := make([]models.Product, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Product)
	}
	return out, nil
}

// nameTaken reproduit l'index unique {admin, name} insensible à la casse.
func (r *products) nameTaken(id, admin, name string) bool {
	for _, row := range r.db.data.products {
		if row.ID != id && row.Admin == admin && strings.EqualFold(row.Name, name) {
			return true
		}
	}
	return false
}

func (r *products) Patch(ctx context.Context, id string, patch models.ProductPatch, now time.Time) (*models.Product, error) {
	defer r.db.enter(ctx)()
	row, ok := r.db.data.products[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if patch.Name != nil && r.nameTaken(id, row.Admin, *patch.Name) {
		return nil, repository.ErrDuplicate
	}
	before := row.Product
	row.Product = patch.Apply(row.Product)
	row.UpdatedAt = now
	r.db.data.products[id] = row
	return &before, nil
}

func (r *products) SetAvailable(ctx context.Context, id string, available bool, now time.Time) (*models.Product, error) {
	defer r.db.enter(ctx)()
	row, ok := r.db.data.products[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if row.IsAvailable == available {
		return nil, repository.ErrStaleState
	}
	row.IsAvailable = available
	row.UpdatedAt = now
	r.db.data.products[id] = row
	p := row.Product
	return &p, nil
}

func (r *products) Delete(ctx context.Context, id string) error {
	defer r.db.enter(ctx)()
	if _, ok := r.db.data.products[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.db.data.products, id)
	return nil
}

func (r *products) DecrementStock(ctx context.Context, id string, qty int) (*models.Product, error) {
	defer r.db.enter(ctx)()
	row, ok := r.db.data.products[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if row.Stock < qty {
		return nil, repository.ErrInsufficientStock
	}
	row.Stock -= qty
	row.UpdatedAt = r.db.now()
	r.db.data.products[id] = row
	p := row.Product
	return &p, nil
}

func (r *products) IncrementStock(ctx context.Context, id string, qty, max int) (*models.Product, error) {
	defer r.db.enter(ctx)()
	row, ok := r.db.data.products[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	row.Stock += qty
	if row.Stock > max {
		row.Stock = max
	}
	row.UpdatedAt = r.db.now()
	r.db.data.products[id] = row
	p := row.Product
	return &p, nil
}

func (r *products) DisableExpired(ctx context.Context, now time.Time) (int, error) {
	defer r.db.enter(ctx)()
	n := 0
	for id, row := range r.db.data.products {
		if row.IsAvailable && row.ExpiryDate != nil && !row.ExpiryDate.After(now) {
			row.IsAvailable = false
			row.UpdatedAt = now
			r.db.data.products[id] = row
			n++
		}
	}
	return n, nil
}

// --- Réservations ---

type bookings struct{ db *DB }

func (r *bookings) Create(ctx context.Context, b *models.Booking) error {
	defer r.db.enter(ctx)()
	if _, ok := r.db.data.bookings[b.ID]; ok {
		return repository.ErrDuplicate
	}
	r.db.data.bookings[b.ID] = bookingRow{Booking: *b, seq: r.db.next()}
	return nil
}

func (r *bookings) FindByID(ctx context.Context, id string) (*models.Booking, error) {
	defer r.db.enter(ctx)()
	row, ok := r.db.data.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	b := row.Booking
	return &b, nil
}

func (r *bookings) sorted(newestFirst bool) []bookingRow {
	rows := make([]bookingRow, 0, len(r.db.data.bookings))
	for _, row := range r.db.data.bookings {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if newestFirst {
				return a.CreatedAt.After(b.CreatedAt)
			}
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if newestFirst {
			return a.seq > b.seq
		}
		return a.seq < b.seq
	})
	return rows
}

func matchBooking(b models.Booking, f models.BookingFilter) bool {
	if f.User != "" && b.User != f.User {
		return false
	}
	if len(f.Products) > 0 && !inSet(f.Products, b.Product) {
		return false
	}
	if len(f.Users) > 0 && !inSet(f.Users, b.User) {
		return false
	}
	if len(f.Statuses) > 0 && !inSet(f.Statuses, b.Status) {
		return false
	}
	return true
}

func (r *bookings) List(ctx context.Context, f models.BookingFilter) ([]models.Booking, int, error) {
	defer r.db.enter(ctx)()
	var matched []models.Booking
	for _, row := range r.sorted(true) {
		if matchBooking(row.Booking, f) {
			matched = append(matched, row.Booking)
		}
	}
	return page(matched, f.Skip(), f.Limit), len(matched), nil
}

func (r *bookings) ListByUser(ctx context.Context, userID string) ([]models.Booking, error) {
	defer r.db.enter(ctx)()
	var out []models.Booking
	for _, row := range r.sorted(false) {
		if row.User == userID {
			out = append(out, row.Booking)
		}
	}
	return out, nil
}

func (r *bookings) UpdateStatus(ctx context.Context, id string, from, to models.BookingStatus) (*models.Booking, error) {
	defer r.db.enter(ctx)()
	row, ok := r.db.data.bookings[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if row.Status != from {
		return nil, repository.ErrStaleState
	}
	row.Status = to
	row.UpdatedAt = r.db.now()
	r.db.data.bookings[id] = row
	b := row.Booking
	return &b, nil
}

func (r *bookings) Recent(ctx context.Context, n int) ([]models.Booking, error) {
	defer r.db.enter(ctx)()
	rows := r.sorted(true)
	if n < len(rows) {
		rows = rows[:n]
	}
	out := make([]models.Booking, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Booking)
	}
	return out, nil
}

func (r *bookings) Summary(ctx context.Context) (models.BookingSummary, error) {
	defer r.db.enter(ctx)()
	var s models.BookingSummary
	for _, row := range r.db.data.bookings {
		switch row.Status {
		case models.StatusCompleted:
			s.Completed++
			s.Revenue += row.Price
		case models.StatusPending:
			s.Pending++
		case models.StatusCancelled:
			s.Cancelled++
		}
	}
	return s, nil
}

// --- Utilisateurs ---

type users struct{ db *DB }

func (r *users) taken(email, phone, userName string) string {
	for _, row := range r.db.data.users {
		switch {
		case email != "" && strings.EqualFold(row.Email, email):
			return "email"
		case phone != "" && row.PhoneNumber == phone:
			return "phoneNumber"
		case userName != "" && strings.EqualFold(row.UserName, userName):
			return "userName"
		}
	}
	return ""
}

func (r *users) Create(ctx context.Context, u *models.User) error {
	defer r.db.enter(ctx)()
	if _, ok := r.db.data.users[u.ID]; ok {
		return repository.ErrDuplicate
	}
	if r.taken(u.Email, u.PhoneNumber, u.UserName) != "" {
		return repository.ErrDuplicate
	}
	r.db.data.users[u.ID] = userRow{User: *u, seq: r.db.next()}
	return nil
}

func (r *users) FindByID(ctx context.Context, id string) (*models.User, error) {
	defer r.db.enter(ctx)()
	row, ok := r.db.data.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	u := row.User
	return &u, nil
}

func (r *users) FindByIDs(ctx context.Context, ids []string) (map[string]models.User, error) {
	defer r.db.enter(ctx)()
	out := make(map[string]models.User, len(ids))
	for _, id := range ids {
		if row, ok := r.db.data.users[id]; ok {
			out[id] = row.User
		}
	}
	return out, nil
}

func (r *users) findBy(match func(models.User) bool) (*models.User, error) {
	for _, row := range r.db.data.users {
		if match(row.User) {
			u := row.User
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *users) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	defer r.db.enter(ctx)()
	return r.findBy(func(u models.User) bool { return strings.EqualFold(u.Email, email) })
}

func (r *users) FindByUserName(ctx context.Context, userName string) (*models.User, error) {
	defer r.db.enter(ctx)()
	return r.findBy(func(u models.User) bool { return strings.EqualFold(u.UserName, userName) })
}

func (r *users) Taken(ctx context.Context, email, phone, userName string) (string, error) {
	defer r.db.enter(ctx)()
	return r.taken(email, phone, userName), nil
}

func (r *users) sorted() []userRow {
	rows := make([]userRow, 0, len(r.db.data.users))
	for _, row := range r.db.data.users {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	return rows
}

func (r *users) List(ctx context.Context, f models.UserFilter) ([]models.User, int, error) {
	defer r.db.enter(ctx)()
	var matched []models.User
	for _, row := range r.sorted() {
		u := row.User
		if f.Search != "" && !containsFold(u.UserName, f.Search) && !containsFold(u.FullName, f.Search) && !containsFold(u.Email, f.Search) {
			continue
		}
		matched = append(matched, u)
	}
	return page(matched, f.Skip(), f.Limit), len(matched), nil
}

func (r *users) IDsByUserName(ctx context.Context, search string) ([]string, error) {
	defer r.db.enter(ctx)()
	var ids []string
	for _, row := range r.sorted() {
		if containsFold(row.UserName, search) {
			ids = append(ids, row.ID)
		}
	}
	return ids, nil
}

func (r *users) SetActive(ctx context.Context, id string, active bool) error {
	defer r.db.enter(ctx)()
	row, ok := r.db.data.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	row.IsActive = active
	r.db.data.users[id] = row
	return nil
}

func (r *users) SetRole(ctx context.Context, id string, role models.Role) error {
	defer r.db.enter(ctx)()
	row, ok := r.db.data.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	row.Role = role
	r.db.data.users[id] = row
	return nil
}

func (r *users) Count(ctx context.Context) (int, int, error) {
	defer r.db.enter(ctx)()
	active := 0
	for _, row := range r.db.data.users {
		if row.IsActive {
			active++
		}
	}
	return len(r.db.data.users), active, nil
}

// --- Sessions de paiement ---

type payments struct{ db *DB }

func (r *payments) Create(ctx context.Context, s *models.PaymentSession) error {
	defer r.db.enter(ctx)()
	if _, ok := r.db.data.payments[s.TransactionUUID]; ok {
		return repository.ErrDuplicate
	}
	r.db.data.payments[s.TransactionUUID] = *s
	return nil
}

func (r *payments) FindByTransaction(ctx context.Context, uuid string) (*models.PaymentSession, error) {
	defer r.db.enter(ctx)()
	s, ok := r.db.data.payments[uuid]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

func (r *payments) Complete(ctx context.Context, uuid, gatewayRef string, bookingIDs []string) error {
	defer r.db.enter(ctx)()
	s, ok := r.db.data.payments[uuid]
	if !ok {
		return repository.ErrNotFound
	}
	if s.Status == models.SessionCompleted {
		return repository.ErrStaleState
	}
	s.Status = models.SessionCompleted
	s.GatewayRef = gatewayRef
	s.BookingIDs = append([]string(nil), bookingIDs...)
	s.UpdatedAt = r.db.now()
	r.db.data.payments[uuid] = s
	return nil
}

func (r *payments) SetStatus(ctx context.Context, uuid string, from, to models.SessionStatus) error {
	defer r.db.enter(ctx)()
	s, ok := r.db.data.payments[uuid]
	if !ok {
		return repository.ErrNotFound
	}
	if s.Status != from {
		return repository.ErrStaleState
	}
	s.Status = to
	s.UpdatedAt = r.db.now()
	r.db.data.payments[uuid] = s
	return nil
}

func (r *payments) ExpireBefore(ctx context.Context, cutoff time.Time) (int, error) {
	defer r.db.enter(ctx)()
	n := 0
	for id, s := range r.db.data.payments {
		if s.Status == models.SessionInitiated && s.CreatedAt.Before(cutoff) {
			s.Status = models.SessionExpired
			s.UpdatedAt = r.db.now()
			r.db.data.payments[id] = s
			n++
		}
	}
	return n, nil
}
