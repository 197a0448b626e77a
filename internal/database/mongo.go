package database

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"bazaar_back_end/internal/models"
	"bazaar_back_end/internal/repository"
)

const (
	colProducts = "products"
	colBookings = "bookings"
	colUsers    = "users"
	colPayments = "payment_sessions"
)

// caseInsensitive compare les chaînes sans tenir compte de la casse (pseudo, email).
var caseInsensitive = &options.Collation{Locale: "en", Strength: 2}

// Store renvoie les dépôts MongoDB de la base.
func Store(client *mongo.Client, db *mongo.Database) repository.Store {
	return repository.Store{
		Tx:       &mongoTx{client: client},
		Products: &productRepo{col: db.Collection(colProducts)},
		Bookings: &bookingRepo{col: db.Collection(colBookings)},
		Users:    &userRepo{col: db.Collection(colUsers)},
		Payments: &paymentRepo{col: db.Collection(colPayments)},
	}
}

// EnsureIndexes crée les index uniques et de tri. Idempotent.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	unique := func() *options.IndexOptions { return options.Index().SetUnique(true) }
	indexes := map[string][]mongo.IndexModel{
		colUsers: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: unique().SetCollation(caseInsensitive)},
			{Keys: bson.D{{Key: "user_name", Value: 1}}, Options: unique().SetCollation(caseInsensitive)},
			{Keys: bson.D{{Key: "phone_number", Value: 1}}, Options: unique()},
		},
		colProducts: {
			{Keys: bson.D{{Key: "admin", Value: 1}, {Key: "name", Value: 1}}, Options: unique().SetCollation(caseInsensitive)},
			{Keys: bson.D{{Key: "category", Value: 1}}},
			{Keys: bson.D{{Key: "is_available", Value: 1}, {Key: "expiry_date", Value: 1}}},
		},
		colBookings: {
			{Keys: bson.D{{Key: "user", Value: 1}, {Key: "created_at", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "product", Value: 1}}},
		},
		colPayments: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
		},
	}
	for name, idx := range indexes {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("index %s: %w", name, err)
		}
	}
	return nil
}

// --- Transactions ---

type mongoTx struct{ client *mongo.Client }

// WithTransaction ouvre une session; si ctx porte déjà une session, fn s'exécute dedans.
func (t *mongoTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}
	sess, err := t.client.StartSession()
	if err != nil {
		return fmt.Errorf("ouverture session MongoDB: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

// --- Helpers ---

func notFound(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return repository.ErrNotFound
	}
	return err
}

func insertErr(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return repository.ErrDuplicate
	}
	return err
}

func contains(search string) primitive.Regex {
	return primitive.Regex{Pattern: regexp.QuoteMeta(search), Options: "i"}
}

func findOpts(sort bson.D, skip, limit int) *options.FindOptions {
	opts := options.Find().SetSort(sort)
	if limit > 0 {
		opts.SetSkip(int64(skip)).SetLimit(int64(limit))
	}
	return opts
}

func findAll[T any](ctx context.Context, col *mongo.Collection, filter interface{}, opts ...*options.FindOptions) ([]T, error) {
	cursor, err := col.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := []T{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type idRow struct {
	ID string `bson:"_id"`
}

func findIDs(ctx context.Context, col *mongo.Collection, filter interface{}) ([]string, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetProjection(bson.D{{Key: "_id", Value: 1}})
	rows, err := findAll[idRow](ctx, col, filter, opts)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

// exists distingue "absent" de "pas dans l'état attendu" après une mise à jour conditionnelle ratée.
func exists(ctx context.Context, col *mongo.Collection, id string) (bool, error) {
	n, err := col.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	return n > 0, err
}

func staleOrMissing(ctx context.Context, col *mongo.Collection, id string, stale error) error {
	ok, err := exists(ctx, col, id)
	if err != nil {
		return err
	}
	if !ok {
		return repository.ErrNotFound
	}
	return stale
}

// --- Produits ---

type productRepo struct{ col *mongo.Collection }

func (r *productRepo) Create(ctx context.Context, p *models.Product) error {
	_, err := r.col.InsertOne(ctx, p)
	return insertErr(err)
}

func (r *productRepo) FindByID(ctx context.Context, id string) (*models.Product, error) {
	var p models.Product
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *productRepo) FindByIDs(ctx context.Context, ids []string) (map[string]models.Product, error) {
	out := make(map[string]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := findAll[models.Product](ctx, r.col, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	for _, p := range rows {
		out[p.ID] = p
	}
	return out, nil
}

func (r *productRepo) FindByNameAndAdmin(ctx context.Context, name, admin string) (*models.Product, error) {
	var p models.Product
	opts := options.FindOne().SetCollation(caseInsensitive)
	if err := r.col.FindOne(ctx, bson.M{"admin": admin, "name": name}, opts).Decode(&p); err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func productFilter(f models.ProductFilter) bson.M {
	filter := bson.M{}
	if f.Search != "" {
		re := contains(f.Search)
		filter["$or"] = bson.A{bson.M{"name": re}, bson.M{"description": re}}
	}
	if f.Category != "" {
		filter["category"] = f.Category
	}
	switch f.Availability {
	case models.AvailabilityInStock:
		filter["stock"] = bson.M{"$gt": 0}
	case models.AvailabilityOutOfStock:
		filter["stock"] = 0
	}
	if f.Enabled != nil {
		filter["is_available"] = *f.Enabled
	}
	if f.Admin != "" {
		filter["admin"] = f.Admin
	}
	return filter
}

func (r *productRepo) List(ctx context.Context, f models.ProductFilter) ([]models.Product, int, error) {
	filter := productFilter(f)
	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	items, err := findAll[models.Product](ctx, r.col, filter, findOpts(bson.D{{Key: "_id", Value: 1}}, f.Skip(), f.Limit))
	if err != nil {
		return nil, 0, err
	}
	return items, int(total), nil
}

func (r *productRepo) IDsByName(ctx context.Context, search string) ([]string, error) {
	return findIDs(ctx, r.col, bson.M{"name": contains(search)})
}

func (r *productRepo) All(ctx context.Context) ([]models.Product, error) {
	return findAll[models.Product](ctx, r.col, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
}

// patchSet traduit un patch en $set; les champs nil ne sont pas écrits.
func patchSet(pp models.ProductPatch, now time.Time) bson.M {
	set := bson.M{"updated_at": now}
	if pp.Name != nil {
		set["name"] = *pp.Name
	}
	if pp.Description != nil {
		set["description"] = *pp.Description
	}
	if pp.Price != nil {
		set["price"] = *pp.Price
	}
	if pp.Stock != nil {
		set["stock"] = *pp.Stock
	}
	if pp.LowStockThreshold != nil {
		set["low_stock_threshold"] = *pp.LowStockThreshold
	}
	if pp.Category != nil {
		set["category"] = *pp.Category
	}
	if pp.ExpiryDate != nil {
		set["expiry_date"] = *pp.ExpiryDate
	}
	if pp.ImageURL != nil {
		set["image_url"] = *pp.ImageURL
	}
	return set
}

func (r *productRepo) Patch(ctx context.Context, id string, patch models.ProductPatch, now time.Time) (*models.Product, error) {
	var before models.Product
	err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": id},
		bson.M{"$set": patchSet(patch, now)},
		options.FindOneAndUpdate().SetReturnDocument(options.Before),
	).Decode(&before)
	if err != nil {
		return nil, insertErr(notFound(err))
	}
	return &before, nil
}

func (r *productRepo) SetAvailable(ctx context.Context, id string, available bool, now time.Time) (*models.Product, error) {
	var p models.Product
	err := r.col.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "is_available": !available},
		bson.M{"$set": bson.M{"is_available": available, "updated_at": now}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, staleOrMissing(ctx, r.col, id, repository.ErrStaleState)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *productRepo) Delete(ctx context.Context, id string) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *productRepo) DecrementStock(ctx context.Context, id string, qty int) (*models.Product, error) {
	var p models.Product
	err := r.col.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "stock": bson.M{"$gte": qty}},
		bson.M{
			"$inc": bson.M{"stock": -qty},
			"$set": bson.M{"updated_at": time.Now()},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, staleOrMissing(ctx, r.col, id, repository.ErrInsufficientStock)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *productRepo) IncrementStock(ctx context.Context, id string, qty, max int) (*models.Product, error) {
	// Pipeline de mise à jour : le plafond est appliqué côté serveur.
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "stock", Value: bson.D{{Key: "$min", Value: bson.A{
				bson.D{{Key: "$add", Value: bson.A{"$stock", qty}}}, max,
			}}}},
			{Key: "updated_at", Value: time.Now()},
		}}},
	}
	var p models.Product
	err := r.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&p)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (r *productRepo) DisableExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.col.UpdateMany(ctx,
		bson.M{"is_available": true, "expiry_date": bson.M{"$lte": now}},
		bson.M{"$set": bson.M{"is_available": false, "updated_at": now}},
	)
	if err != nil {
		return 0, err
	}
	return int(res.ModifiedCount), nil
}

// --- Réservations ---

type bookingRepo struct{ col *mongo.Collection }

var (
	newestFirst = bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}
	oldestFirst = bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}
)

func (r *bookingRepo) Create(ctx context.Context, b *models.Booking) error {
	_, err := r.col.InsertOne(ctx, b)
	return insertErr(err)
}

func (r *bookingRepo) FindByID(ctx context.Context, id string) (*models.Booking, error) {
	var b models.Booking
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&b); err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

func bookingFilter(f models.BookingFilter) bson.M {
	filter := bson.M{}
	users := bson.M{}
	if f.User != "" {
		users["$eq"] = f.User
	}
	if len(f.Users) > 0 {
		users["$in"] = f.Users
	}
	if len(users) > 0 {
		filter["user"] = users
	}
	if len(f.Products) > 0 {
		filter["product"] = bson.M{"$in": f.Products}
	}
	if len(f.Statuses) > 0 {
		filter["status"] = bson.M{"$in": f.Statuses}
	}
	return filter
}

func (r *bookingRepo) List(ctx context.Context, f models.BookingFilter) ([]models.Booking, int, error) {
	filter := bookingFilter(f)
	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	items, err := findAll[models.Booking](ctx, r.col, filter, findOpts(newestFirst, f.Skip(), f.Limit))
	if err != nil {
		return nil, 0, err
	}
	return items, int(total), nil
}

func (r *bookingRepo) ListByUser(ctx context.Context, userID string) ([]models.Booking, error) {
	return findAll[models.Booking](ctx, r.col, bson.M{"user": userID}, options.Find().SetSort(oldestFirst))
}

func (r *bookingRepo) UpdateStatus(ctx context.Context, id string, from, to models.BookingStatus) (*models.Booking, error) {
	var b models.Booking
	err := r.col.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": from},
		bson.M{"$set": bson.M{"status": to, "updated_at": time.Now()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&b)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, staleOrMissing(ctx, r.col, id, repository.ErrStaleState)
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *bookingRepo) Recent(ctx context.Context, n int) ([]models.Booking, error) {
	return findAll[models.Booking](ctx, r.col, bson.M{}, options.Find().SetSort(newestFirst).SetLimit(int64(n)))
}

func (r *bookingRepo) Summary(ctx context.Context) (models.BookingSummary, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$status"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "revenue", Value: bson.D{{Key: "$sum", Value: "$price"}}},
		}}},
	}
	cursor, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return models.BookingSummary{}, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status  models.BookingStatus `bson:"_id"`
		Count   int                  `bson:"count"`
		Revenue float64              `bson:"revenue"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return models.BookingSummary{}, err
	}

	var s models.BookingSummary
	for _, row := range rows {
		switch row.Status {
		case models.StatusCompleted:
			s.Completed = row.Count
			s.Revenue = row.Revenue
		case models.StatusPending:
			s.Pending = row.Count
		case models.StatusCancelled:
			s.Cancelled = row.Count
		}
	}
	return s, nil
}

// --- Utilisateurs ---

type userRepo struct{ col *mongo.Collection }

func (r *userRepo) Create(ctx context.Context, u *models.User) error {
	_, err := r.col.InsertOne(ctx, u)
	return insertErr(err)
}

func (r *userRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (r *userRepo) FindByIDs(ctx context.Context, ids []string) (map[string]models.User, error) {
	out := make(map[string]models.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := findAll[models.User](ctx, r.col, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	for _, u := range rows {
		out[u.ID] = u
	}
	return out, nil
}

func (r *userRepo) findOne(ctx context.Context, field, value string) (*models.User, error) {
	var u models.User
	opts := options.FindOne().SetCollation(caseInsensitive)
	if err := r.col.FindOne(ctx, bson.M{field: value}, opts).Decode(&u); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

func (r *userRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, "email", email)
}

func (r *userRepo) FindByUserName(ctx context.Context, userName string) (*models.User, error) {
	return r.findOne(ctx, "user_name", userName)
}

func (r *userRepo) Taken(ctx context.Context, email, phone, userName string) (string, error) {
	checks := []struct{ name, field, value string }{
		{"email", "email", email},
		{"phoneNumber", "phone_number", phone},
		{"userName", "user_name", userName},
	}
	for _, c := range checks {
		if c.value == "" {
			continue
		}
		opts := options.Count().SetLimit(1).SetCollation(caseInsensitive)
		n, err := r.col.CountDocuments(ctx, bson.M{c.field: c.value}, opts)
		if err != nil {
			return "", err
		}
		if n > 0 {
			return c.name, nil
		}
	}
	return "", nil
}

func (r *userRepo) List(ctx context.Context, f models.UserFilter) ([]models.User, int, error) {
	filter := bson.M{}
	if f.Search != "" {
		re := contains(f.Search)
		filter["$or"] = bson.A{bson.M{"user_name": re}, bson.M{"full_name": re}, bson.M{"email": re}}
	}
	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	items, err := findAll[models.User](ctx, r.col, filter, findOpts(bson.D{{Key: "_id", Value: 1}}, f.Skip(), f.Limit))
	if err != nil {
		return nil, 0, err
	}
	return items, int(total), nil
}

func (r *userRepo) IDsByUserName(ctx context.Context, search string) ([]string, error) {
	return findIDs(ctx, r.col, bson.M{"user_name": contains(search)})
}

func (r *userRepo) set(ctx context.Context, id string, fields bson.M) error {
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *userRepo) SetActive(ctx context.Context, id string, active bool) error {
	return r.set(ctx, id, bson.M{"is_active": active})
}

func (r *userRepo) SetRole(ctx context.Context, id string, role models.Role) error {
	return r.set(ctx, id, bson.M{"role": role})
}

func (r *userRepo) Count(ctx context.Context) (int, int, error) {
	total, err := r.col.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, 0, err
	}
	active, err := r.col.CountDocuments(ctx, bson.M{"is_active": true})
	if err != nil {
		return 0, 0, err
	}
	return int(total), int(active), nil
}

// --- Sessions de paiement ---

type paymentRepo struct{ col *mongo.Collection }

func (r *paymentRepo) Create(ctx context.Context, s *models.PaymentSession) error {
	_, err := r.col.InsertOne(ctx, s)
	return insertErr(err)
}

func (r *paymentRepo) FindByTransaction(ctx context.Context, uuid string) (*models.PaymentSession, error) {
	var s models.PaymentSession
	if err := r.col.FindOne(ctx, bson.M{"_id": uuid}).Decode(&s); err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (r *paymentRepo) Complete(ctx context.Context, uuid, gatewayRef string, bookingIDs []string) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": uuid, "status": bson.M{"$ne": models.SessionCompleted}},
		bson.M{"$set": bson.M{
			"status":      models.SessionCompleted,
			"gateway_ref": gatewayRef,
			"booking_ids": bookingIDs,
			"updated_at":  time.Now(),
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return staleOrMissing(ctx, r.col, uuid, repository.ErrStaleState)
	}
	return nil
}

func (r *paymentRepo) SetStatus(ctx context.Context, uuid string, from, to models.SessionStatus) error {
	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": uuid, "status": from},
		bson.M{"$set": bson.M{"status": to, "updated_at": time.Now()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return staleOrMissing(ctx, r.col, uuid, repository.ErrStaleState)
	}
	return nil
}

func (r *paymentRepo) ExpireBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.col.UpdateMany(ctx,
		bson.M{"status": models.SessionInitiated, "created_at": bson.M{"$lt": cutoff}},
		bson.M{"$set": bson.M{"status": models.SessionExpired, "updated_at": time.Now()}},
	)
	if err != nil {
		return 0, err
	}
	return int(res.ModifiedCount), nil
}
