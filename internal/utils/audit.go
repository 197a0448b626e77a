package utils

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"bazaar_back_end/internal/models"
)

// Actions d'audit
const (
	ACTION_PRODUCT_CREATE = "product.create"
	ACTION_PRODUCT_UPDATE = "product.update"
	ACTION_PRODUCT_DELETE = "product.delete"
	ACTION_PRODUCT_TOGGLE = "product.toggle_availability"

	ACTION_ORDER_CREATE = "order.create"
	ACTION_ORDER_STATUS = "order.status_change"
	ACTION_ORDER_CANCEL = "order.cancel"

	ACTION_PAYMENT_VERIFIED = "payment.verified"
	ACTION_PAYMENT_FAILED   = "payment.failed"

	ACTION_USER_CREATE = "user.create"
	ACTION_USER_STATUS = "user.status_change"
	ACTION_USER_ROLE   = "user.role_change"

	ACTION_LOGIN_SUCCESS = "auth.login_success"
	ACTION_LOGIN_FAILED  = "auth.login_failed"
)

// Ressources d'audit
const (
	RESOURCE_PRODUCT = "product"
	RESOURCE_ORDER   = "order"
	RESOURCE_PAYMENT = "payment"
	RESOURCE_USER    = "user"
	RESOURCE_AUTH    = "auth"
)

// Actor identifie l'auteur d'une action.
type Actor struct {
	UserID string
	IP     string
}

// AuditStore persiste le journal d'audit et les mouvements de stock.
type AuditStore interface {
	InsertAudit(ctx context.Context, entry models.AuditLog) error
	InsertMovement(ctx context.Context, m models.StockMovement) error
	ListAudit(ctx context.Context, resource, resourceID string, limit int) ([]models.AuditLog, error)
	ListMovements(ctx context.Context, productID string, limit int) ([]models.StockMovement, error)
}

// Auditor écrit le journal de façon asynchrone; les erreurs sont seulement journalisées.
type Auditor struct {
	store AuditStore
	now   func() time.Time
	// sync force l'écriture synchrone (tests).
	sync bool
}

func NewAuditor(store AuditStore) *Auditor {
	return &Auditor{store: store, now: time.Now}
}

// NewSyncAuditor écrit immédiatement, sans goroutine.
func NewSyncAuditor(store AuditStore) *Auditor {
	return &Auditor{store: store, now: time.Now, sync: true}
}

func toJSON(v interface{}) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func (a *Auditor) run(fn func(ctx context.Context) error) {
	if a == nil || a.store == nil {
		return
	}
	if a.sync {
		if err := fn(context.Background()); err != nil {
			zap.S().Errorf("❌ Erreur enregistrement log audit: %v", err)
		}
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := fn(ctx); err != nil {
			zap.S().Errorf("❌ Erreur enregistrement log audit: %v", err)
		}
	}()
}

// LogAction enregistre une action réussie.
func (a *Auditor) LogAction(actor Actor, action, resource, resourceID string, oldValue, newValue interface{}) {
	entry := models.AuditLog{
		ID:         gocql.TimeUUID(),
		UserID:     actor.UserID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		OldValue:   toJSON(oldValue),
		NewValue:   toJSON(newValue),
		IPAddress:  actor.IP,
		Success:    true,
	}
	a.run(func(ctx context.Context) error {
		entry.Timestamp = a.now()
		return a.store.InsertAudit(ctx, entry)
	})
}

// LogFailedAction enregistre une action refusée ou échouée.
func (a *Auditor) LogFailedAction(actor Actor, action, resource, resourceID, errorMsg string) {
	entry := models.AuditLog{
		ID:         gocql.TimeUUID(),
		UserID:     actor.UserID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		IPAddress:  actor.IP,
		Success:    false,
		ErrorMsg:   errorMsg,
	}
	a.run(func(ctx context.Context) error {
		entry.Timestamp = a.now()
		return a.store.InsertAudit(ctx, entry)
	})
}

// LogMovement enregistre un mouvement de stock.
func (a *Auditor) LogMovement(m models.StockMovement) {
	if m.ID == (gocql.UUID{}) {
		m.ID = gocql.TimeUUID()
	}
	a.run(func(ctx context.Context) error {
		if m.CreatedAt.IsZero() {
			m.CreatedAt = a.now()
		}
		return a.store.InsertMovement(ctx, m)
	})
}

// Logs liste les dernières entrées d'une ressource; vide si l'audit est désactivé.
func (a *Auditor) Logs(ctx context.Context, resource, resourceID string, limit int) ([]models.AuditLog, error) {
	if a == nil || a.store == nil {
		return []models.AuditLog{}, nil
	}
	return a.store.ListAudit(ctx, resource, resourceID, limit)
}

// Movements liste les derniers mouvements de stock d'un produit.
func (a *Auditor) Movements(ctx context.Context, productID string, limit int) ([]models.StockMovement, error) {
	if a == nil || a.store == nil {
		return []models.StockMovement{}, nil
	}
	return a.store.ListMovements(ctx, productID, limit)
}
