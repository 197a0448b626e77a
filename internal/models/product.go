package models

import (
	"strings"
	"time"
)

const (
	MaxStock                 = 100
	DefaultLowStockThreshold = 10
)

type Category string

const (
	CategoryElectronics Category = "electronics"
	CategoryClothing    Category = "clothing"
	CategoryGroceries   Category = "groceries"
	CategoryBooks       Category = "books"
	CategoryHome        Category = "home"
	CategoryBeauty      Category = "beauty"
	CategorySports      Category = "sports"
	CategoryToys        Category = "toys"
	CategoryOther       Category = "other"
)

// Categories liste les catégories acceptées, dans l'ordre d'affichage.
var Categories = []Category{
	CategoryElectronics, CategoryClothing, CategoryGroceries, CategoryBooks,
	CategoryHome, CategoryBeauty, CategorySports, CategoryToys, CategoryOther,
}

// ParseCategory normalise et valide une catégorie.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c, true
		}
	}
	return "", false
}

type Product struct {
	ID                string     `bson:"_id" json:"_id"`
	Name              string     `bson:"name" json:"name"`
	Description       string     `bson:"description" json:"description"`
	Price             float64    `bson:"price" json:"price"`
	Stock             int        `bson:"stock" json:"stock"`
	LowStockThreshold int        `bson:"low_stock_threshold" json:"lowStockThreshold"`
	Category          Category   `bson:"category" json:"category"`
	IsAvailable       bool       `bson:"is_available" json:"isAvailable"`
	ImageURL          string     `bson:"image_url,omitempty" json:"imageUrl,omitempty"`
	ExpiryDate        *time.Time `bson:"expiry_date,omitempty" json:"expiryDate,omitempty"`
	Admin             string     `bson:"admin" json:"admin"`
	CreatedAt         time.Time  `bson:"created_at" json:"createdAt"`
	UpdatedAt         time.Time  `bson:"updated_at" json:"updatedAt"`
}

// Threshold renvoie le seuil de stock bas effectif du produit.
func (p Product) Threshold(fallback int) int {
	if p.LowStockThreshold > 0 {
		return p.LowStockThreshold
	}
	if fallback > 0 {
		return fallback
	}
	return DefaultLowStockThreshold
}

// IsLowStock : stock positif mais sous le seuil.
func (p Product) IsLowStock(fallback int) bool {
	return p.Stock > 0 && p.Stock < p.Threshold(fallback)
}

// Availability filtre le catalogue sur le stock.
type Availability int

const (
	AvailabilityAll Availability = iota
	AvailabilityInStock
	AvailabilityOutOfStock
)

// ProductFilter décrit une requête de listing du catalogue.
type ProductFilter struct {
	Search       string
	Category     Category
	Availability Availability
	// Enabled nil = tous les produits, sinon filtre sur isAvailable.
	Enabled *bool
	Admin   string
	Page    int
	Limit   int
}

// Skip renvoie le décalage de pagination.
func (f ProductFilter) Skip() int {
	return (f.Page - 1) * f.Limit
}

// ProductPatch contient les champs modifiables d'un produit; nil = inchangé.
type ProductPatch struct {
	Name              *string
	Description       *string
	Price             *float64
	Stock             *int
	LowStockThreshold *int
	Category          *Category
	ExpiryDate        *time.Time
	ImageURL          *string
}

// Apply reporte le patch sur une copie du produit.
func (pp ProductPatch) Apply(p Product) Product {
	if pp.Name != nil {
		p.Name = *pp.Name
	}
	if pp.Description != nil {
		p.Description = *pp.Description
	}
	if pp.Price != nil {
		p.Price = *pp.Price
	}
	if pp.Stock != nil {
		p.Stock = *pp.Stock
	}
	if pp.LowStockThreshold != nil {
		p.LowStockThreshold = *pp.LowStockThreshold
	}
	if pp.Category != nil {
		p.Category = *pp.Category
	}
	if pp.ExpiryDate != nil {
		t := *pp.ExpiryDate
		p.ExpiryDate = &t
	}
	if pp.ImageURL != nil {
		p.ImageURL = *pp.ImageURL
	}
	return p
}
