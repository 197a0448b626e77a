package services

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bazaar_back_end/internal/apperr"
	"bazaar_back_end/internal/models"
	"bazaar_back_end/internal/payment"
	"bazaar_back_end/internal/repository"
	"bazaar_back_end/internal/utils"
)

// StripeCheckout est la réponse de POST /initiate-stripe.
type StripeCheckout struct {
	TransactionUUID string  `json:"transaction_uuid"`
	ClientSecret    string  `json:"client_secret"`
	PaymentIntentID string  `json:"payment_intent_id"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
}

type PaymentService struct {
	store      repository.Store
	orders     *OrderService
	esewa      *payment.Esewa
	stripe     *payment.Stripe
	audit      *utils.Auditor
	sessionTTL time.Duration
	now        clock
}

func NewPaymentService(store repository.Store, orders *OrderService, esewa *payment.Esewa, stripe *payment.Stripe, audit *utils.Auditor, sessionTTL time.Duration) *PaymentService {
	if sessionTTL <= 0 {
		sessionTTL = time.Hour
	}
	return &PaymentService{
		store: store, orders: orders, esewa: esewa, stripe: stripe,
		audit: audit, sessionTTL: sessionTTL, now: time.Now,
	}
}

// prepare valide le lot contre le stock courant, sans le décrémenter, et construit la session.
func (s *PaymentService) prepare(ctx context.Context, actor Actor, lines []models.OrderLine, gateway models.PaymentGateway) (*models.PaymentSession, error) {
	if err := validateBatch(actor, lines); err != nil {
		return nil, err
	}

	now := s.now()
	session := &models.PaymentSession{
		TransactionUUID: uuid.NewString(),
		User:            actor.UserID,
		Gateway:         gateway,
		Status:          models.SessionInitiated,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	var total float64
	for _, line := range lines {
		p, err := s.store.Products.FindByID(ctx, line.ProductID)
		if err != nil {
			return nil, storeErr(err, "produit introuvable: "+line.ProductID, "lecture produit")
		}
		if !p.IsAvailable || p.Stock <= 0 {
			return nil, apperr.Newf(apperr.OutOfStock, "produit en rupture de stock: %s", p.Name)
		}
		if p.Stock < line.TotalItem {
			return nil, apperr.Newf(apperr.OutOfStock, "stock insuffisant pour %s (%d disponibles)", p.Name, p.Stock)
		}
		lineTotal := round2(p.Price * float64(line.TotalItem))
		if line.TotalPrice > 0 && math.Abs(line.TotalPrice-lineTotal) > priceTolerance {
			return nil, apperr.Newf(apperr.Validation, "le total de %s ne correspond pas au prix du produit", p.Name)
		}
		session.Lines = append(session.Lines, models.SessionLine{
			Product: p.ID, Quantity: line.TotalItem, UnitPrice: p.Price, TotalPrice: lineTotal,
		})
		total += lineTotal
	}
	session.TotalAmount = round2(total)
	return session, nil
}

// InitiateEsewa enregistre une session et renvoie le formulaire signé à poster vers eSewa.
func (s *PaymentService) InitiateEsewa(ctx context.Context, actor Actor, lines []models.OrderLine) (*payment.EsewaForm, error) {
	session, err := s.prepare(ctx, actor, lines, models.GatewayEsewa)
	if err != nil {
		return nil, err
	}
	if err := s.store.Payments.Create(ctx, session); err != nil {
		return nil, apperr.Internalf(err, "création session de paiement")
	}

	form := s.esewa.BuildForm(session.TransactionUUID, session.TotalAmount)
	zap.S().Infof("💳 Session eSewa %s initiée: %s", session.TransactionUUID, form.TotalAmount)
	return &form, nil
}

// VerifyEsewa vérifie le retour eSewa puis finalise la commande.
func (s *PaymentService) VerifyEsewa(ctx context.Context, data string) (*models.CheckoutResult, error) {
	cb, err := s.esewa.Verify(data)
	switch {
	case errors.Is(err, payment.ErrInvalidSignature), errors.Is(err, payment.ErrMerchantMismatch):
		s.audit.LogFailedAction(Actor{}, utils.ACTION_PAYMENT_FAILED, utils.RESOURCE_PAYMENT, "", err.Error())
		return nil, apperr.Wrap(apperr.Signature, "signature du paiement invalide", err)
	case errors.Is(err, payment.ErrPaymentIncomplete):
		return nil, apperr.Wrap(apperr.Validation, "paiement non complété", err)
	case err != nil:
		return nil, apperr.Wrap(apperr.Validation, "données de paiement invalides", err)
	}

	session, err := s.store.Payments.FindByTransaction(ctx, cb.TransactionUUID)
	if err != nil {
		return nil, storeErr(err, "transaction inconnue", "lecture session de paiement")
	}
	if session.Gateway != models.GatewayEsewa {
		return nil, apperr.New(apperr.Signature, "transaction inconnue")
	}

	paid, err := payment.ParseAmount(cb.TotalAmount)
	if err != nil || math.Abs(paid-session.TotalAmount) > priceTolerance {
		s.audit.LogFailedAction(Actor{UserID: session.User}, utils.ACTION_PAYMENT_FAILED, utils.RESOURCE_PAYMENT,
			session.TransactionUUID, "montant eSewa différent de la session")
		return nil, apperr.New(apperr.Signature, "montant du paiement incohérent")
	}

	return s.finalize(ctx, session, cb.TransactionCode)
}

// finalize transforme une session payée en réservations. Rejouer une session déjà terminée
// renvoie ses réservations sans autre effet.
func (s *PaymentService) finalize(ctx context.Context, session *models.PaymentSession, ref string) (*models.CheckoutResult, error) {
	if session.Status == models.SessionCompleted {
		return s.completed(ctx, session)
	}

	actor := Actor{UserID: session.User}
	var res *placed
	err := s.store.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		res, err = s.orders.place(ctx, models.Checkout{
			User: session.User, Gateway: session.Gateway, PaymentRef: ref, Lines: session.OrderLines(),
		})
		if err != nil {
			return err
		}
		ids := make([]string, 0, len(res.bookings))
		for _, b := range res.bookings {
			ids = append(ids, b.ID)
		}
		return s.store.Payments.Complete(ctx, session.TransactionUUID, ref, ids)
	})

	if errors.Is(err, repository.ErrStaleState) {
		fresh, ferr := s.store.Payments.FindByTransaction(ctx, session.TransactionUUID)
		if ferr != nil {
			return nil, apperr.Internalf(ferr, "relecture session de paiement")
		}
		return s.completed(ctx, fresh)
	}
	if err != nil {
		if apperr.Is(err, apperr.OutOfStock) || apperr.Is(err, apperr.NotFound) {
			if serr := s.store.Payments.SetStatus(ctx, session.TransactionUUID, session.Status, models.SessionFailed); serr != nil {
				zap.S().Warnf("⚠️ Session %s non marquée en échec: %v", session.TransactionUUID, serr)
			}
			s.audit.LogFailedAction(actor, utils.ACTION_PAYMENT_FAILED, utils.RESOURCE_PAYMENT, session.TransactionUUID, apperr.Message(err))
			zap.S().Errorf("❌ Paiement %s reçu mais commande impossible: %v", session.TransactionUUID, err)
		}
		return nil, err
	}

	s.orders.afterCheckout(actor, session.Gateway, res)
	s.audit.LogAction(actor, utils.ACTION_PAYMENT_VERIFIED, utils.RESOURCE_PAYMENT, session.TransactionUUID,
		nil, map[string]interface{}{"gatewayRef": ref, "total": res.total})
	zap.S().Infof("✅ Paiement %s %s vérifié", session.Gateway, session.TransactionUUID)
	return &models.CheckoutResult{Bookings: res.bookings, TotalAmount: res.total}, nil
}

func (s *PaymentService) completed(ctx context.Context, session *models.PaymentSession) (*models.CheckoutResult, error) {
	out := &models.CheckoutResult{Bookings: []models.Booking{}, TotalAmount: session.TotalAmount}
	for _, id := range session.BookingIDs {
		b, err := s.store.Bookings.FindByID(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, apperr.Internalf(err, "lecture réservation")
		}
		out.Bookings = append(out.Bookings, *b)
	}
	return out, nil
}

// InitiateStripe crée le PaymentIntent puis la session qui le référence.
func (s *PaymentService) InitiateStripe(ctx context.Context, actor Actor, lines []models.OrderLine) (*StripeCheckout, error) {
	session, err := s.prepare(ctx, actor, lines, models.GatewayStripe)
	if err != nil {
		return nil, err
	}

	intent, err := s.stripe.CreateIntent(session.TransactionUUID, actor.UserID, session.TotalAmount)
	if errors.Is(err, payment.ErrStripeDisabled) {
		return nil, apperr.Wrap(apperr.Validation, "paiement Stripe indisponible", err)
	}
	if err != nil {
		return nil, apperr.Internalf(err, "création PaymentIntent")
	}

	session.GatewayRef = intent.ID
	if err := s.store.Payments.Create(ctx, session); err != nil {
		return nil, apperr.Internalf(err, "création session de paiement")
	}
	zap.S().Infof("💳 Session Stripe %s initiée: %s", session.TransactionUUID, intent.ID)

	return &StripeCheckout{
		TransactionUUID: session.TransactionUUID,
		ClientSecret:    intent.ClientSecret,
		PaymentIntentID: intent.ID,
		Amount:          session.TotalAmount,
		Currency:        intent.Currency,
	}, nil
}

// HandleStripeWebhook traite un événement Stripe signé. Les événements non gérés sont ignorés.
func (s *PaymentService) HandleStripeWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.stripe.ParseEvent(payload, signature)
	if errors.Is(err, payment.ErrWebhookRejected) {
		s.audit.LogFailedAction(Actor{}, utils.ACTION_PAYMENT_FAILED, utils.RESOURCE_PAYMENT, "", err.Error())
		return apperr.Wrap(apperr.Signature, "signature webhook invalide", err)
	}
	if err != nil {
		return apperr.Wrap(apperr.Validation, "événement Stripe illisible", err)
	}
	if event.IntentID == "" {
		zap.S().Debugf("Événement Stripe ignoré: %s", event.Type)
		return nil
	}
	if event.TransactionUUID == "" {
		return apperr.Invalid("PaymentIntent sans transaction_uuid")
	}

	session, err := s.store.Payments.FindByTransaction(ctx, event.TransactionUUID)
	if err != nil {
		return storeErr(err, "transaction inconnue", "lecture session de paiement")
	}
	if session.Gateway != models.GatewayStripe || session.GatewayRef != event.IntentID {
		return apperr.New(apperr.Signature, "PaymentIntent inattendu pour cette transaction")
	}

	switch event.Type {
	case payment.EventIntentSucceeded:
		if event.Amount != payment.MinorUnits(session.TotalAmount) {
			return apperr.New(apperr.Signature, "montant du paiement incohérent")
		}
		_, err := s.finalize(ctx, session, event.IntentID)
		return err
	case payment.EventIntentFailed:
		if session.Status != models.SessionInitiated {
			return nil
		}
		if err := s.store.Payments.SetStatus(ctx, session.TransactionUUID, models.SessionInitiated, models.SessionFailed); err != nil && !errors.Is(err, repository.ErrStaleState) {
			return apperr.Internalf(err, "mise à jour session de paiement")
		}
		s.audit.LogFailedAction(Actor{UserID: session.User}, utils.ACTION_PAYMENT_FAILED, utils.RESOURCE_PAYMENT,
			session.TransactionUUID, "paiement Stripe refusé")
		zap.S().Warnf("⚠️ Paiement Stripe refusé: %s", session.TransactionUUID)
	}
	return nil
}

// ExpireStaleSessions marque expirées les sessions restées initiated au-delà du TTL.
func (s *PaymentService) ExpireStaleSessions(ctx context.Context) (int, error) {
	n, err := s.store.Payments.ExpireBefore(ctx, s.now().Add(-s.sessionTTL))
	if err != nil {
		return 0, apperr.Internalf(err, "expiration sessions de paiement")
	}
	return n, nil
}
