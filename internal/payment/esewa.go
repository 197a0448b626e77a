// Package payment construit et vérifie les échanges signés avec les passerelles eSewa et Stripe.
package payment

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"bazaar_back_end/internal/config"
)

var (
	ErrInvalidSignature  = errors.New("signature eSewa invalide")
	ErrMalformedPayload  = errors.New("réponse eSewa illisible")
	ErrPaymentIncomplete = errors.New("paiement eSewa non complété")
	ErrMerchantMismatch  = errors.New("code marchand eSewa inattendu")
)

// FormSignedFields : champs signés du formulaire de paiement, dans l'ordre.
const FormSignedFields = "total_amount,transaction_uuid,product_code"

const statusComplete = "COMPLETE"

// Sign calcule base64(HMAC-SHA256(secret, message)).
func Sign(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// FormatAmount formate un montant avec deux décimales.
func FormatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// ParseAmount lit un montant renvoyé par la passerelle ("1,000.0" compris).
func ParseAmount(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", ""), 64)
}

// EsewaForm contient les champs à poster sur le formulaire eSewa.
type EsewaForm struct {
	Amount                string `json:"amount"`
	TaxAmount             string `json:"tax_amount"`
	TotalAmount           string `json:"total_amount"`
	TransactionUUID       string `json:"transaction_uuid"`
	ProductCode           string `json:"product_code"`
	ProductServiceCharge  string `json:"product_service_charge"`
	ProductDeliveryCharge string `json:"product_delivery_charge"`
	SuccessURL            string `json:"success_url"`
	FailureURL            string `json:"failure_url"`
	SignedFieldNames      string `json:"signed_field_names"`
	Signature             string `json:"signature"`
	PaymentURL            string `json:"esewa_payment_url"`
}

// EsewaCallback est le contenu décodé et vérifié du paramètre data.
type EsewaCallback struct {
	TransactionCode string
	Status          string
	TotalAmount     string
	TransactionUUID string
	ProductCode     string
	Fields          map[string]string
}

type Esewa struct {
	cfg config.EsewaConfig
}

func NewEsewa(cfg config.EsewaConfig) *Esewa {
	return &Esewa{cfg: cfg}
}

func (e *Esewa) MerchantCode() string { return e.cfg.MerchantCode }

// BuildForm prépare le formulaire signé pour une transaction; taxes et frais sont nuls.
func (e *Esewa) BuildForm(transactionUUID string, total float64) EsewaForm {
	amount := FormatAmount(total)
	zero := FormatAmount(0)
	message := fmt.Sprintf("total_amount=%s,transaction_uuid=%s,product_code=%s", amount, transactionUUID, e.cfg.MerchantCode)

	return EsewaForm{
		Amount:                amount,
		TaxAmount:             zero,
		TotalAmount:           amount,
		TransactionUUID:       transactionUUID,
		ProductCode:           e.cfg.MerchantCode,
		ProductServiceCharge:  zero,
		ProductDeliveryCharge: zero,
		SuccessURL:            e.cfg.SuccessURL,
		FailureURL:            e.cfg.FailureURL,
		SignedFieldNames:      FormSignedFields,
		Signature:             Sign(e.cfg.SecretKey, message),
		PaymentURL:            e.cfg.PaymentURL,
	}
}

// decodeData accepte l'alphabet base64 standard ou URL, avec ou sans padding.
// Un '+' transformé en espace par le décodage de la query est restauré.
func decodeData(data string) ([]byte, error) {
	data = strings.ReplaceAll(strings.TrimSpace(data), " ", "+")
	encodings := []*base64.Encoding{
		base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding,
	}
	for _, enc := range encodings {
		if raw, err := enc.DecodeString(data); err == nil {
			return raw, nil
		}
	}
	return nil, ErrMalformedPayload
}

func fieldString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}

// Verify décode data, recalcule la signature sur signed_field_names et contrôle statut et marchand.
func (e *Esewa) Verify(data string) (*EsewaCallback, error) {
	if data == "" {
		return nil, ErrMalformedPayload
	}
	raw, err := decodeData(data)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	fields := make(map[string]string, len(payload))
	for k, v := range payload {
		if s, ok := fieldString(v); ok {
			fields[k] = s
		}
	}

	names := fields["signed_field_names"]
	signature := fields["signature"]
	if names == "" || signature == "" {
		return nil, ErrMalformedPayload
	}

	parts := make([]string, 0, 8)
	for _, name := range strings.Split(names, ",") {
		name = strings.TrimSpace(name)
		value, ok := fields[name]
		if !ok {
			return nil, fmt.Errorf("%w: champ signé absent %q", ErrMalformedPayload, name)
		}
		parts = append(parts, name+"="+value)
	}

	expected := Sign(e.cfg.SecretKey, strings.Join(parts, ","))
	if subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) != 1 {
		return nil, ErrInvalidSignature
	}

	cb := &EsewaCallback{
		TransactionCode: fields["transaction_code"],
		Status:          fields["status"],
		TotalAmount:     fields["total_amount"],
		TransactionUUID: fields["transaction_uuid"],
		ProductCode:     fields["product_code"],
		Fields:          fields,
	}
	if cb.TransactionUUID == "" || cb.TotalAmount == "" {
		return nil, ErrMalformedPayload
	}
	if cb.Status != statusComplete {
		return nil, ErrPaymentIncomplete
	}
	if cb.ProductCode != e.cfg.MerchantCode {
		return nil, ErrMerchantMismatch
	}
	return cb, nil
}
