package models

import (
	"time"

	"github.com/gocql/gocql"
)

const (
	MovementSale       = "sale"
	MovementRestock    = "restock"
	MovementAdjustment = "adjustment"
)

type StockMovement struct {
	ID        gocql.UUID `json:"id"`
	ProductID string     `json:"productId"`
	Type      string     `json:"type"` // "sale", "restock", "adjustment"
	Quantity  int        `json:"quantity"`
	PrevStock int        `json:"prevStock"`
	NewStock  int        `json:"newStock"`
	Reason    string     `json:"reason"`
	BookingID string     `json:"bookingId,omitempty"`
	UserID    string     `json:"userId"`
	CreatedAt time.Time  `json:"createdAt"`
}
