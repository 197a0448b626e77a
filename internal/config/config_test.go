package config

import (
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Esewa.MerchantCode != "EPAYTEST" {
		t.Errorf("merchant = %q", cfg.Esewa.MerchantCode)
	}
	if cfg.Esewa.SuccessURL != "http://localhost:5173/payment-success" {
		t.Errorf("success url = %q", cfg.Esewa.SuccessURL)
	}
	if cfg.Orders.StrictTransitions {
		t.Errorf("strict transitions should default to false")
	}
	if cfg.Orders.PaymentSessionTTL != time.Hour {
		t.Errorf("session ttl = %v", cfg.Orders.PaymentSessionTTL)
	}
	if !cfg.Auth.RequireEmailVerification {
		t.Errorf("email verification should default to true")
	}
	if cfg.Scylla.Enabled() || cfg.Elastic.Enabled() || cfg.MinIO.Enabled() || cfg.Stripe.Enabled() {
		t.Errorf("optional backends should be disabled by default")
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("ORDERS_STRICT_TRANSITIONS", "true")
	t.Setenv("ORDERS_PAYMENT_SESSION_TTL", "30m")
	t.Setenv("ESEWA_MERCHANT_CODE", "SHOP01")
	t.Setenv("SCYLLA_HOSTS", "10.0.0.1")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if !cfg.Orders.StrictTransitions {
		t.Errorf("strict transitions not set")
	}
	if cfg.Orders.PaymentSessionTTL != 30*time.Minute {
		t.Errorf("session ttl = %v", cfg.Orders.PaymentSessionTTL)
	}
	if cfg.Esewa.MerchantCode != "SHOP01" {
		t.Errorf("merchant = %q", cfg.Esewa.MerchantCode)
	}
	if !cfg.Scylla.Enabled() {
		t.Errorf("scylla should be enabled")
	}
}

func TestFromEnvRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	if _, err := FromEnv(); err == nil {
		t.Fatalf("expected error without JWT secret")
	}
}
