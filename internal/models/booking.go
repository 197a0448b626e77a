package models

import "time"

type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusCompleted BookingStatus = "completed"
	StatusCancelled BookingStatus = "cancelled"
)

// BookingStatuses liste les statuts valides.
var BookingStatuses = []BookingStatus{StatusPending, StatusCompleted, StatusCancelled}

func ParseBookingStatus(s string) (BookingStatus, bool) {
	for _, st := range BookingStatuses {
		if BookingStatus(s) == st {
			return st, true
		}
	}
	return "", false
}

type PaymentGateway string

const (
	GatewayCash   PaymentGateway = "cash"
	GatewayEsewa  PaymentGateway = "esewa"
	GatewayStripe PaymentGateway = "stripe"
)

// Booking est une ligne d'achat : un utilisateur, un produit, une quantité.
// Price est figé à la création.
type Booking struct {
	ID             string         `bson:"_id" json:"_id"`
	User           string         `bson:"user" json:"user"`
	Product        string         `bson:"product" json:"product"`
	TotalItems     int            `bson:"total_items" json:"totalItems"`
	UnitPrice      float64        `bson:"unit_price" json:"unitPrice"`
	Price          float64        `bson:"price" json:"price"`
	PaymentGateway PaymentGateway `bson:"payment_gateway" json:"paymentGateway"`
	PaymentRef     string         `bson:"payment_ref,omitempty" json:"paymentRef,omitempty"`
	Status         BookingStatus  `bson:"status" json:"status"`
	CreatedAt      time.Time      `bson:"created_at" json:"createdAt"`
	UpdatedAt      time.Time      `bson:"updated_at" json:"updatedAt"`
}

// BookingView est une réservation enrichie des champs d'affichage utilisateur et produit.
type BookingView struct {
	Booking
	UserName     string   `json:"userName"`
	FullName     string   `json:"fullName"`
	Email        string   `json:"email"`
	ProductName  string   `json:"productName"`
	ProductImage string   `json:"productImage,omitempty"`
	Category     Category `json:"category,omitempty"`
}

// BookingFilter décrit une requête de listing des réservations.
type BookingFilter struct {
	User     string
	Products []string
	Users    []string
	Statuses []BookingStatus
	Page     int
	Limit    int
}

func (f BookingFilter) Skip() int {
	return (f.Page - 1) * f.Limit
}

// TransitionTable liste, pour chaque statut, les statuts atteignables.
type TransitionTable map[BookingStatus][]BookingStatus

// LaxTransitions autorise tout passage d'un statut à un autre.
var LaxTransitions = TransitionTable{
	StatusPending:   {StatusPending, StatusCompleted, StatusCancelled},
	StatusCompleted: {StatusPending, StatusCompleted, StatusCancelled},
	StatusCancelled: {StatusPending, StatusCompleted, StatusCancelled},
}

// StrictTransitions : seule une réservation en attente peut changer de statut.
var StrictTransitions = TransitionTable{
	StatusPending: {StatusCompleted, StatusCancelled},
}

// BookingTransitions choisit la table selon la configuration.
func BookingTransitions(strict bool) TransitionTable {
	if strict {
		return StrictTransitions
	}
	return LaxTransitions
}

func (t TransitionTable) Allows(from, to BookingStatus) bool {
	for _, s := range t[from] {
		if s == to {
			return true
		}
	}
	return false
}
