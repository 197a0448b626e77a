package models

import "time"

// OrderLine est une ligne de panier envoyée au checkout.
type OrderLine struct {
	ProductID  string  `json:"productId"`
	UserID     string  `json:"userId"`
	TotalItem  int     `json:"totalItem"`
	TotalPrice float64 `json:"totalPrice"`
	// UnitPrice fige le prix payé en passerelle; 0 = prix catalogue.
	UnitPrice float64 `json:"-"`
}

// Checkout décrit un lot validé prêt à être transformé en réservations.
type Checkout struct {
	User       string
	Gateway    PaymentGateway
	PaymentRef string
	Lines      []OrderLine
}

// CheckoutResult est renvoyé après un checkout réussi.
type CheckoutResult struct {
	Bookings    []Booking `json:"bookings"`
	TotalAmount float64   `json:"totalAmount"`
}

// BillLine est une ligne de facture.
type BillLine struct {
	BookingID   string         `json:"bookingId"`
	ProductID   string         `json:"productId"`
	ProductName string         `json:"productName"`
	Quantity    int            `json:"quantity"`
	UnitPrice   float64        `json:"unitPrice"`
	Total       float64        `json:"total"`
	Gateway     PaymentGateway `json:"paymentGateway"`
	PurchasedAt time.Time      `json:"purchasedAt"`
}

// Bill regroupe une ou plusieurs lignes terminées d'un acheteur.
type Bill struct {
	Reference   string     `json:"reference"`
	BuyerID     string     `json:"buyerId"`
	BuyerName   string     `json:"buyerName"`
	BuyerEmail  string     `json:"buyerEmail"`
	Lines       []BillLine `json:"lines"`
	TotalAmount float64    `json:"totalAmount"`
	IssuedAt    time.Time  `json:"issuedAt"`
}
