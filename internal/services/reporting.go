package services

import (
	"context"
	"time"

	"bazaar_back_end/internal/apperr"
	"bazaar_back_end/internal/models"
	"bazaar_back_end/internal/repository"
)

const (
	defaultRecentBookings = 5
	maxRecentBookings     = 50
)

// ReportingService calcule le tableau de bord admin à chaque appel, sans cache.
type ReportingService struct {
	store    repository.Store
	orders   *OrderService
	lowStock int
	now      clock
}

func NewReportingService(store repository.Store, orders *OrderService, lowStock int) *ReportingService {
	return &ReportingService{store: store, orders: orders, lowStock: lowStock, now: time.Now}
}

func (s *ReportingService) Stats(ctx context.Context, recent string) (*models.DashboardStats, error) {
	n := parsePage(recent, defaultRecentBookings, maxRecentBookings)

	total, active, err := s.store.Users.Count(ctx)
	if err != nil {
		return nil, apperr.Internalf(err, "comptage utilisateurs")
	}
	products, err := s.store.Products.All(ctx)
	if err != nil {
		return nil, apperr.Internalf(err, "lecture produits")
	}
	summary, err := s.store.Bookings.Summary(ctx)
	if err != nil {
		return nil, apperr.Internalf(err, "agrégat réservations")
	}

	stats := &models.DashboardStats{
		TotalUsersCount:         total,
		ActiveUsersCount:        active,
		TotalProductsCount:      len(products),
		TotalRevenue:            round2(summary.Revenue),
		TotalCompletedPurchases: summary.Completed,
		PendingBookingsCount:    summary.Pending,
		CategoryDistribution:    []models.CategoryShare{},
		GeneratedAt:             s.now(),
	}

	counts := make(map[models.Category]int)
	for _, p := range products {
		if p.Stock == 0 {
			stats.OutOfStockProductsCount++
		}
		if p.IsLowStock(s.lowStock) {
			stats.LowStockProductsCount++
		}
		counts[p.Category]++
	}
	// ordre d'affichage fixe des catégories
	for _, c := range models.Categories {
		if counts[c] == 0 {
			continue
		}
		stats.CategoryDistribution = append(stats.CategoryDistribution, models.CategoryShare{
			Category:   c,
			Count:      counts[c],
			Percentage: round2(float64(counts[c]) / float64(len(products)) * 100),
		})
		delete(counts, c)
	}
	for c, count := range counts {
		stats.CategoryDistribution = append(stats.CategoryDistribution, models.CategoryShare{
			Category: c, Count: count, Percentage: round2(float64(count) / float64(len(products)) * 100),
		})
	}

	latest, err := s.store.Bookings.Recent(ctx, n)
	if err != nil {
		return nil, apperr.Internalf(err, "dernières réservations")
	}
	if stats.RecentBookings, err = s.orders.views(ctx, latest); err != nil {
		return nil, err
	}
	return stats, nil
}
