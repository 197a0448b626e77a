package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"go.uber.org/zap"

	"bazaar_back_end/internal/apperr"
	"bazaar_back_end/internal/cache"
	"bazaar_back_end/internal/utils"
)

const (
	otpDigits      = 6
	otpMaxAttempts = 5
)

// OTPService gère la vérification d'email par code à usage unique.
type OTPService struct {
	cache       cache.Store
	mailer      utils.Mailer
	ttl         time.Duration
	verifiedTTL time.Duration
}

func NewOTPService(store cache.Store, mailer utils.Mailer, ttl, verifiedTTL time.Duration) *OTPService {
	return &OTPService{cache: store, mailer: mailer, ttl: ttl, verifiedTTL: verifiedTTL}
}

func otpKey(email string) string         { return "otp:" + email }
func otpAttemptsKey(email string) string { return "otp_attempts:" + email }
func verifiedKey(email string) string    { return "verified:" + email }

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func generateOTP() (string, error) {
	max := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpDigits, n.Int64()), nil
}

// Send génère un code, le stocke pour la durée configurée et l'envoie par mail.
func (s *OTPService) Send(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if !validEmail(email) {
		return apperr.Invalid("email invalide")
	}

	code, err := generateOTP()
	if err != nil {
		return apperr.Internalf(err, "génération OTP")
	}
	if err := s.cache.Set(ctx, otpKey(email), code, s.ttl); err != nil {
		return apperr.Internalf(err, "stockage OTP")
	}
	_ = s.cache.Del(ctx, otpAttemptsKey(email))

	html, err := utils.OTPEmailHTML(code, s.ttl)
	if err != nil {
		return apperr.Internalf(err, "rendu mail OTP")
	}
	if err := s.mailer.Send(ctx, utils.Mail{To: email, Subject: "Votre code de vérification", HTML: html}); err != nil {
		return apperr.Internalf(err, "envoi mail OTP")
	}
	zap.S().Infof("📧 OTP envoyé à %s", email)
	return nil
}

// Verify consomme le code s'il est correct et marque l'email vérifié.
func (s *OTPService) Verify(ctx context.Context, email, code string) error {
	email = normalizeEmail(email)
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return apperr.Invalid("email et otp requis")
	}

	stored, err := s.cache.Get(ctx, otpKey(email))
	if errors.Is(err, cache.ErrMiss) {
		return apperr.Invalid("code expiré ou inexistant")
	}
	if err != nil {
		return apperr.Internalf(err, "lecture OTP")
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		attempts, err := s.cache.Incr(ctx, otpAttemptsKey(email), s.ttl)
		if err == nil && attempts >= otpMaxAttempts {
			_ = s.cache.Del(ctx, otpKey(email), otpAttemptsKey(email))
			return apperr.Invalid("trop de tentatives, demandez un nouveau code")
		}
		return apperr.Invalid("code incorrect")
	}

	if err := s.cache.Del(ctx, otpKey(email), otpAttemptsKey(email)); err != nil {
		return apperr.Internalf(err, "suppression OTP")
	}
	if err := s.cache.Set(ctx, verifiedKey(email), "1", s.verifiedTTL); err != nil {
		return apperr.Internalf(err, "marquage email vérifié")
	}
	return nil
}

// IsVerified rapporte si l'email a été vérifié récemment.
func (s *OTPService) IsVerified(ctx context.Context, email string) (bool, error) {
	_, err := s.cache.Get(ctx, verifiedKey(normalizeEmail(email)))
	if errors.Is(err, cache.ErrMiss) {
		return false, nil
	}
	return err == nil, err
}

// ConsumeVerified retire le marqueur après une inscription réussie.
func (s *OTPService) ConsumeVerified(ctx context.Context, email string) {
	_ = s.cache.Del(ctx, verifiedKey(normalizeEmail(email)))
}
