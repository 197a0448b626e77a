package services

import (
	"context"
	"errors"

	"bazaar_back_end/internal/models"
)

// ErrIndexUnavailable : pas d'index de recherche configuré.
var ErrIndexUnavailable = errors.New("index de recherche indisponible")

// ProductIndexer maintient l'index plein texte du catalogue.
type ProductIndexer interface {
	Index(ctx context.Context, p models.Product) error
	Remove(ctx context.Context, id string) error
	// Search renvoie les identifiants des produits correspondants, par pertinence.
	Search(ctx context.Context, query string, limit int) ([]string, error)
}

// NoopIndexer est utilisé quand Elasticsearch n'est pas configuré.
type NoopIndexer struct{}

func (NoopIndexer) Index(context.Context, models.Product) error { return nil }
func (NoopIndexer) Remove(context.Context, string) error         { return nil }
func (NoopIndexer) Search(context.Context, string, int) ([]string, error) {
	return nil, ErrIndexUnavailable
}
