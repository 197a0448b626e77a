package models

import "time"

type SessionStatus string

const (
	SessionInitiated SessionStatus = "initiated"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionExpired   SessionStatus = "expired"
)

// PaymentSession est un checkout passerelle en attente de confirmation.
type PaymentSession struct {
	TransactionUUID string         `bson:"_id" json:"transactionUuid"`
	User            string         `bson:"user" json:"user"`
	Lines           []SessionLine  `bson:"lines" json:"lines"`
	TotalAmount     float64        `bson:"total_amount" json:"totalAmount"`
	Gateway         PaymentGateway `bson:"gateway" json:"gateway"`
	Status          SessionStatus  `bson:"status" json:"status"`
	GatewayRef      string         `bson:"gateway_ref,omitempty" json:"gatewayRef,omitempty"`
	BookingIDs      []string       `bson:"booking_ids,omitempty" json:"bookingIds,omitempty"`
	CreatedAt       time.Time      `bson:"created_at" json:"createdAt"`
	UpdatedAt       time.Time      `bson:"updated_at" json:"updatedAt"`
}

type SessionLine struct {
	Product    string  `bson:"product" json:"product"`
	Quantity   int     `bson:"quantity" json:"quantity"`
	UnitPrice  float64 `bson:"unit_price" json:"unitPrice"`
	TotalPrice float64 `bson:"total_price" json:"totalPrice"`
}

// OrderLines reconstruit le lot de checkout de la session.
func (s PaymentSession) OrderLines() []OrderLine {
	lines := make([]OrderLine, 0, len(s.Lines))
	for _, l := range s.Lines {
		lines = append(lines, OrderLine{
			ProductID:  l.Product,
			UserID:     s.User,
			TotalItem:  l.Quantity,
			TotalPrice: l.TotalPrice,
			UnitPrice:  l.UnitPrice,
		})
	}
	return lines
}
