package database

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"

	"bazaar_back_end/internal/models"
)

// auditSchema est appliqué au démarrage; les tables sont partitionnées par ressource et par produit.
var auditSchema = []string{
	`CREATE TABLE IF NOT EXISTS audit_logs_by_resource (
		resource text, id timeuuid, resource_id text, user_id text, action text,
		old_value text, new_value text, ip_address text, success boolean, error_msg text, timestamp timestamp,
		PRIMARY KEY ((resource), id)
	) WITH CLUSTERING ORDER BY (id DESC)`,
	`CREATE TABLE IF NOT EXISTS audit_logs_by_entity (
		resource text, resource_id text, id timeuuid, user_id text, action text,
		old_value text, new_value text, ip_address text, success boolean, error_msg text, timestamp timestamp,
		PRIMARY KEY ((resource, resource_id), id)
	) WITH CLUSTERING ORDER BY (id DESC)`,
	`CREATE TABLE IF NOT EXISTS stock_movements (
		product_id text, id timeuuid, type text, quantity int, prev_stock int, new_stock int,
		reason text, booking_id text, user_id text, created_at timestamp,
		PRIMARY KEY ((product_id), id)
	) WITH CLUSTERING ORDER BY (id DESC)`,
}

// EnsureAuditTables crée les tables du journal d'audit si besoin.
func EnsureAuditTables(session *gocql.Session) error {
	for _, stmt := range auditSchema {
		if err := session.Query(stmt).Exec(); err != nil {
			return err
		}
	}
	return nil
}

// ScyllaAuditStore implémente utils.AuditStore sur ScyllaDB.
type ScyllaAuditStore struct {
	session *gocql.Session
}

func NewScyllaAuditStore(session *gocql.Session) *ScyllaAuditStore {
	return &ScyllaAuditStore{session: session}
}

// cqlLimit : CQL refuse LIMIT 0.
func cqlLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}

const auditColumns = `id, resource, resource_id, user_id, action, old_value, new_value, ip_address, success, error_msg, timestamp`

func (s *ScyllaAuditStore) InsertAudit(ctx context.Context, e models.AuditLog) error {
	args := []interface{}{
		e.ID, e.Resource, e.ResourceID, e.UserID, e.Action, e.OldValue, e.NewValue,
		e.IPAddress, e.Success, e.ErrorMsg, e.Timestamp,
	}
	b := s.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	b.Query(`INSERT INTO audit_logs_by_resource (`+auditColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if e.ResourceID != "" {
		b.Query(`INSERT INTO audit_logs_by_entity (`+auditColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	}
	if err := s.session.ExecuteBatch(b); err != nil {
		return fmt.Errorf("insertion audit: %w", err)
	}
	return nil
}

func (s *ScyllaAuditStore) ListAudit(ctx context.Context, resource, resourceID string, limit int) ([]models.AuditLog, error) {
	limit = cqlLimit(limit)
	var q *gocql.Query
	if resourceID != "" {
		q = s.session.Query(`SELECT `+auditColumns+` FROM audit_logs_by_entity WHERE resource = ? AND resource_id = ? LIMIT ?`,
			resource, resourceID, limit)
	} else {
		q = s.session.Query(`SELECT `+auditColumns+` FROM audit_logs_by_resource WHERE resource = ? LIMIT ?`,
			resource, limit)
	}
	iter := q.WithContext(ctx).Iter()

	logs := []models.AuditLog{}
	var e models.AuditLog
	for iter.Scan(&e.ID, &e.Resource, &e.ResourceID, &e.UserID, &e.Action, &e.OldValue, &e.NewValue,
		&e.IPAddress, &e.Success, &e.ErrorMsg, &e.Timestamp) {
		logs = append(logs, e)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("lecture audit: %w", err)
	}
	return logs, nil
}

const movementColumns = `id, product_id, type, quantity, prev_stock, new_stock, reason, booking_id, user_id, created_at`

func (s *ScyllaAuditStore) InsertMovement(ctx context.Context, m models.StockMovement) error {
	err := s.session.Query(`INSERT INTO stock_movements (`+movementColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ProductID, m.Type, m.Quantity, m.PrevStock, m.NewStock, m.Reason, m.BookingID, m.UserID, m.CreatedAt,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("insertion mouvement stock: %w", err)
	}
	return nil
}

// ListMovements sans productID lit toutes les partitions, sans ordre garanti.
func (s *ScyllaAuditStore) ListMovements(ctx context.Context, productID string, limit int) ([]models.StockMovement, error) {
	limit = cqlLimit(limit)
	var q *gocql.Query
	if productID != "" {
		q = s.session.Query(`SELECT `+movementColumns+` FROM stock_movements WHERE product_id = ? LIMIT ?`, productID, limit)
	} else {
		q = s.session.Query(`SELECT `+movementColumns+` FROM stock_movements LIMIT ?`, limit)
	}
	iter := q.WithContext(ctx).Iter()

	movements := []models.StockMovement{}
	var m models.StockMovement
	for iter.Scan(&m.ID, &m.ProductID, &m.Type, &m.Quantity, &m.PrevStock, &m.NewStock,
		&m.Reason, &m.BookingID, &m.UserID, &m.CreatedAt) {
		movements = append(movements, m)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("lecture mouvements stock: %w", err)
	}
	return movements, nil
}
