package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"bazaar_back_end/internal/cache"
	"bazaar_back_end/internal/config"
)

const apiWindow = time.Minute

// RateLimiter applique les limites de requêtes sur le cache partagé (Redis en production).
// Une panne du cache laisse passer la requête.
type RateLimiter struct {
	store cache.Store
	cfg   config.RateLimitConfig
}

func NewRateLimiter(store cache.Store, cfg config.RateLimitConfig) *RateLimiter {
	return &RateLimiter{store: store, cfg: cfg}
}

func tooMany(c *gin.Context, msg string, retry time.Duration) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error":       msg,
		"retry_after": int(retry.Seconds()),
	})
}

// peekBody lit le champ demandé du body JSON et remet le body en place.
func peekBody(c *gin.Context, fields ...string) string {
	if c.Request.Body == nil {
		return ""
	}
	bodyBytes, err := io.ReadAll(c.Request.Body)
	c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
	if err != nil {
		return ""
	}
	var input map[string]interface{}
	if err := json.Unmarshal(bodyBytes, &input); err != nil {
		return ""
	}
	for _, f := range fields {
		if v, ok := input[f].(string); ok && strings.TrimSpace(v) != "" {
			return strings.ToLower(strings.TrimSpace(v))
		}
	}
	return ""
}

func (l *RateLimiter) cooldown(c *gin.Context, key string) (time.Duration, bool) {
	ttl, err := l.store.TTL(c.Request.Context(), key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			zap.S().Warnf("⚠️ Rate limit indisponible: %v", err)
		}
		return 0, false
	}
	return ttl, true
}

// Login limite les tentatives de connexion par identifiant (email ou nom d'utilisateur).
// Après LoginMaxAttempts échecs, l'identifiant est bloqué pendant LoginCooldown.
func (l *RateLimiter) Login() gin.HandlerFunc {
	return func(c *gin.Context) {
		login := peekBody(c, "email", "userName")
		if login == "" || l.cfg.LoginMaxAttempts <= 0 {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		key := "login_attempts:" + login
		cooldownKey := "login_cooldown:" + login

		if ttl, blocked := l.cooldown(c, cooldownKey); blocked {
			tooMany(c, fmt.Sprintf("Trop de tentatives échouées. Réessayez dans %d minutes", int(ttl.Minutes())+1), ttl)
			return
		}

		c.Next()

		switch c.Writer.Status() {
		case http.StatusUnauthorized:
			attempts, err := l.store.Incr(ctx, key, l.cfg.LoginCooldown)
			if err != nil {
				return
			}
			if attempts >= int64(l.cfg.LoginMaxAttempts) {
				_ = l.store.Set(ctx, cooldownKey, "1", l.cfg.LoginCooldown)
				_ = l.store.Del(ctx, key)
				zap.S().Warnf("🚫 Connexion bloquée pour %s après %d échecs", login, attempts)
			}
		case http.StatusOK:
			_ = l.store.Del(ctx, key, cooldownKey)
		}
	}
}

// OTP limite les envois de code par adresse email.
func (l *RateLimiter) OTP() gin.HandlerFunc {
	return func(c *gin.Context) {
		email := peekBody(c, "email")
		if email == "" || l.cfg.OTPMaxRequests <= 0 {
			c.Next()
			return
		}
		key := "otp_requests:" + email
		n, err := l.store.Incr(c.Request.Context(), key, l.cfg.OTPWindow)
		if err != nil {
			zap.S().Warnf("⚠️ Rate limit indisponible: %v", err)
			c.Next()
			return
		}
		if n > int64(l.cfg.OTPMaxRequests) {
			ttl, _ := l.cooldown(c, key)
			tooMany(c, "Trop de demandes de code. Réessayez plus tard", ttl)
			return
		}
		c.Next()
	}
}

// API limite le nombre de requêtes par IP et par minute.
func (l *RateLimiter) API() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.cfg.APIMaxRequests <= 0 {
			c.Next()
			return
		}
		key := "api_requests:" + c.ClientIP()
		n, err := l.store.Incr(c.Request.Context(), key, apiWindow)
		if err != nil {
			zap.S().Warnf("⚠️ Rate limit indisponible: %v", err)
			c.Next()
			return
		}
		if n > int64(l.cfg.APIMaxRequests) {
			tooMany(c, "Trop de requêtes. Réessayez dans 1 minute", apiWindow)
			return
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", l.cfg.APIMaxRequests))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", int64(l.cfg.APIMaxRequests)-n))
		c.Next()
	}
}
