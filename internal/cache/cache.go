// Package cache expose un stockage clé/valeur avec expiration (Redis en production).
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bazaar_back_end/internal/models"
)

// ErrMiss est renvoyée quand la clé n'existe pas ou a expiré.
var ErrMiss = errors.New("cache: clé absente")

type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	// Incr incrémente un compteur; l'expiration est posée à la création de la clé.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
}

const UserCacheTTL = 5 * time.Minute

func userKey(userID string) string { return "user:" + userID }

// GetUser lit un utilisateur mis en cache.
func GetUser(ctx context.Context, s Store, userID string) (*models.User, error) {
	data, err := s.Get(ctx, userKey(userID))
	if err != nil {
		return nil, err
	}
	var user models.User
	if err := json.Unmarshal([]byte(data), &user); err != nil {
		return nil, fmt.Errorf("cache utilisateur corrompu: %w", err)
	}
	return &user, nil
}

// SetUser met un utilisateur en cache pour UserCacheTTL.
func SetUser(ctx context.Context, s Store, user models.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return s.Set(ctx, userKey(user.ID), string(data), UserCacheTTL)
}

// InvalidateUser supprime l'utilisateur du cache après un changement de rôle ou de statut.
func InvalidateUser(ctx context.Context, s Store, userID string) error {
	return s.Del(ctx, userKey(userID))
}
