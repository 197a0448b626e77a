package models

import "time"

type CategoryShare struct {
	Category   Category `json:"category"`
	Count      int      `json:"count"`
	Percentage float64  `json:"percentage"`
}

// DashboardStats est le tableau de bord admin, calculé à la demande.
type DashboardStats struct {
	TotalUsersCount         int             `json:"totalUsersCount"`
	ActiveUsersCount        int             `json:"activeUsersCount"`
	TotalProductsCount      int             `json:"totalProductsCount"`
	OutOfStockProductsCount int             `json:"outOfStockProductsCount"`
	LowStockProductsCount   int             `json:"lowStockProductsCount"`
	TotalRevenue            float64         `json:"totalRevenue"`
	TotalCompletedPurchases int             `json:"totalCompletedPurchases"`
	PendingBookingsCount    int             `json:"pendingBookingsCount"`
	CategoryDistribution    []CategoryShare `json:"categoryDistribution"`
	RecentBookings          []BookingView   `json:"recentBookings"`
	GeneratedAt             time.Time       `json:"generatedAt"`
}

// BookingSummary agrège les réservations par statut.
type BookingSummary struct {
	Revenue   float64
	Completed int
	Pending   int
	Cancelled int
}
