package cache

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidRefreshToken : token absent, expiré ou différent de celui enregistré.
var ErrInvalidRefreshToken = errors.New("refresh token invalide")

// RefreshTokens stocke un refresh token opaque par utilisateur.
type RefreshTokens struct {
	store Store
	ttl   time.Duration
}

func NewRefreshTokens(store Store, ttl time.Duration) *RefreshTokens {
	return &RefreshTokens{store: store, ttl: ttl}
}

func refreshKey(userID string) string { return fmt.Sprintf("refresh:%s", userID) }

// Store enregistre le refresh token d'un utilisateur, remplaçant le précédent.
func (r *RefreshTokens) Store(ctx context.Context, userID, token string) error {
	return r.store.Set(ctx, refreshKey(userID), token, r.ttl)
}

// Validate compare le token fourni à celui enregistré.
func (r *RefreshTokens) Validate(ctx context.Context, userID, token string) error {
	stored, err := r.store.Get(ctx, refreshKey(userID))
	if errors.Is(err, ErrMiss) {
		return ErrInvalidRefreshToken
	}
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(token)) != 1 {
		return ErrInvalidRefreshToken
	}
	return nil
}

// Delete supprime le refresh token (logout).
func (r *RefreshTokens) Delete(ctx context.Context, userID string) error {
	return r.store.Del(ctx, refreshKey(userID))
}
