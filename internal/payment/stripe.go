package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/paymentintent"
	"github.com/stripe/stripe-go/v83/webhook"

	"bazaar_back_end/internal/config"
)

const (
	EventIntentSucceeded = "payment_intent.succeeded"
	EventIntentFailed    = "payment_intent.payment_failed"

	metadataTransaction = "transaction_uuid"
	metadataUser        = "user_id"
)

var (
	ErrStripeDisabled  = errors.New("Stripe non configuré")
	ErrWebhookRejected = errors.New("signature webhook Stripe invalide")
)

// Intent est la partie d'un PaymentIntent utile au client.
type Intent struct {
	ID           string `json:"payment_intent_id"`
	ClientSecret string `json:"client_secret"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

// IntentEvent est un événement webhook vérifié concernant un PaymentIntent.
type IntentEvent struct {
	Type            string
	IntentID        string
	TransactionUUID string
	Amount          int64
}

type Stripe struct {
	cfg       config.StripeConfig
	newIntent func(*stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

func NewStripe(cfg config.StripeConfig) *Stripe {
	if cfg.SecretKey != "" {
		stripe.Key = cfg.SecretKey
	}
	return &Stripe{cfg: cfg, newIntent: paymentintent.New}
}

// WithIntentFunc remplace l'appel à l'API Stripe.
func (s *Stripe) WithIntentFunc(fn func(*stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)) *Stripe {
	s.newIntent = fn
	return s
}

// MinorUnits convertit un montant en plus petite unité monétaire.
func MinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// CreateIntent crée un PaymentIntent portant la transaction en métadonnée.
func (s *Stripe) CreateIntent(transactionUUID, userID string, total float64) (*Intent, error) {
	if !s.cfg.Enabled() {
		return nil, ErrStripeDisabled
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(MinorUnits(total)),
		Currency: stripe.String(s.cfg.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.AddMetadata(metadataTransaction, transactionUUID)
	params.AddMetadata(metadataUser, userID)

	pi, err := s.newIntent(params)
	if err != nil {
		return nil, fmt.Errorf("création PaymentIntent: %w", err)
	}
	return &Intent{ID: pi.ID, ClientSecret: pi.ClientSecret, Amount: pi.Amount, Currency: string(pi.Currency)}, nil
}

// ParseEvent vérifie l'en-tête Stripe-Signature et extrait le PaymentIntent.
// Les événements sans rapport avec un PaymentIntent sont renvoyés avec un IntentID vide.
func (s *Stripe) ParseEvent(payload []byte, signatureHeader string) (*IntentEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, s.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWebhookRejected, err)
	}

	out := &IntentEvent{Type: string(event.Type)}
	if out.Type != EventIntentSucceeded && out.Type != EventIntentFailed {
		return out, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	out.IntentID = pi.ID
	out.Amount = pi.Amount
	out.TransactionUUID = pi.Metadata[metadataTransaction]
	return out, nil
}
