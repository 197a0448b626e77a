package utils

import (
	"context"
	"sync"

	"bazaar_back_end/internal/models"
)

// MemoryAuditStore garde le journal en mémoire, du plus récent au plus ancien.
type MemoryAuditStore struct {
	mu        sync.Mutex
	logs      []models.AuditLog
	movements []models.StockMovement
}

func NewMemoryAuditStore() *MemoryAuditStore { return &MemoryAuditStore{} }

func (m *MemoryAuditStore) InsertAudit(_ context.Context, entry models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append([]models.AuditLog{entry}, m.logs...)
	return nil
}

func (m *MemoryAuditStore) InsertMovement(_ context.Context, mv models.StockMovement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.movements = append([]models.StockMovement{mv}, m.movements...)
	return nil
}

func (m *MemoryAuditStore) ListAudit(_ context.Context, resource, resourceID string, limit int) ([]models.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.AuditLog{}
	for _, l := range m.logs {
		if l.Resource == resource && (resourceID == "" || l.ResourceID == resourceID) {
			out = append(out, l)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *MemoryAuditStore) ListMovements(_ context.Context, productID string, limit int) ([]models.StockMovement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.StockMovement{}
	for _, mv := range m.movements {
		if productID == "" || mv.ProductID == productID {
			out = append(out, mv)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}
