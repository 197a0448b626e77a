package services

import (
	"context"
	"io"
)

// ImageUpload est une image reçue avec le formulaire produit.
type ImageUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// ImageStore héberge les images produits et renvoie leur URL.
type ImageStore interface {
	Upload(ctx context.Context, img ImageUpload) (string, error)
	Delete(ctx context.Context, url string) error
}
