package services

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// presignedTTL : durée maximale acceptée par S3 pour une URL signée.
const presignedTTL = 7 * 24 * time.Hour

// MinioImageStore stocke les images produits dans un bucket MinIO.
type MinioImageStore struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

func NewMinioImageStore(client *minio.Client, bucket, publicURL string) *MinioImageStore {
	return &MinioImageStore{client: client, bucket: bucket, publicURL: strings.TrimRight(publicURL, "/")}
}

func (s *MinioImageStore) Upload(ctx context.Context, img ImageUpload) (string, error) {
	if s.client == nil {
		return "", fmt.Errorf("MinIO non initialisé")
	}

	object := "products/" + uuid.NewString() + strings.ToLower(path.Ext(img.Filename))
	_, err := s.client.PutObject(ctx, s.bucket, object, img.Body, img.Size,
		minio.PutObjectOptions{ContentType: img.ContentType})
	if err != nil {
		return "", fmt.Errorf("upload MinIO: %w", err)
	}
	zap.S().Infof("🖼️ Image produit envoyée: %s/%s", s.bucket, object)

	if s.publicURL != "" {
		return fmt.Sprintf("%s/%s/%s", s.publicURL, s.bucket, object), nil
	}

	signed, err := s.client.PresignedGetObject(ctx, s.bucket, object, presignedTTL, url.Values{})
	if err != nil {
		return "", fmt.Errorf("URL signée MinIO: %w", err)
	}
	return signed.String(), nil
}

// objectKey retrouve la clé d'objet depuis une URL publique ou signée.
func (s *MinioImageStore) objectKey(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	prefix := "/" + s.bucket + "/"
	if !strings.HasPrefix(u.Path, prefix) {
		return "", false
	}
	return strings.TrimPrefix(u.Path, prefix), true
}

func (s *MinioImageStore) Delete(ctx context.Context, raw string) error {
	key, ok := s.objectKey(raw)
	if !ok {
		return nil
	}
	return s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}
