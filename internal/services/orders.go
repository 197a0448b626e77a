package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"go.uber.org/zap"

	"bazaar_back_end/internal/apperr"
	"bazaar_back_end/internal/config"
	"bazaar_back_end/internal/models"
	"bazaar_back_end/internal/repository"
	"bazaar_back_end/internal/utils"
)

const (
	mailTimeout     = 15 * time.Second
	deletedProduct  = "Produit supprimé"
	billRefPrefix   = "BILL-"
	exportPageLimit = 0
)

// BookingQuery reprend les paramètres de GET /manage-booked-product.
type BookingQuery struct {
	Page   string
	Limit  string
	Status string
	Search string
}

type BookingPage struct {
	Bookings      []models.BookingView `json:"bookings"`
	CurrentPage   int                  `json:"currentPage"`
	TotalPages    int                  `json:"totalPages"`
	TotalBookings int                  `json:"totalBookings"`
}

type OrderService struct {
	store       repository.Store
	audit       *utils.Auditor
	mailer      utils.Mailer
	transitions models.TransitionTable
	pageSize    int
	now         clock
}

func NewOrderService(store repository.Store, audit *utils.Auditor, mailer utils.Mailer, cfg config.OrdersConfig) *OrderService {
	pageSize := cfg.PageSize
	if pageSize < 1 {
		pageSize = 10
	}
	return &OrderService{
		store:       store,
		audit:       audit,
		mailer:      mailer,
		transitions: models.BookingTransitions(cfg.StrictTransitions),
		pageSize:    pageSize,
		now:         time.Now,
	}
}

// placed est le résultat d'un checkout, avant commit.
type placed struct {
	bookings  []models.Booking
	movements []models.StockMovement
	names     map[string]string
	total     float64
}

// validateBatch contrôle la forme du lot : non vide, quantités >= 1, lignes de l'utilisateur authentifié.
func validateBatch(actor Actor, lines []models.OrderLine) error {
	if len(lines) == 0 {
		return apperr.Invalid("le panier est vide")
	}
	for _, l := range lines {
		if l.ProductID == "" {
			return apperr.Invalid("productId requis")
		}
		if l.TotalItem < 1 {
			return apperr.Invalid("la quantité doit être au moins 1")
		}
		if l.UserID != actor.UserID {
			return apperr.Invalid("batch mismatch")
		}
	}
	return nil
}

// place crée les réservations du lot. Doit tourner dans une transaction.
func (s *OrderService) place(ctx context.Context, c models.Checkout) (*placed, error) {
	now := s.now()
	out := &placed{names: make(map[string]string, len(c.Lines))}

	for _, line := range c.Lines {
		p, err := s.store.Products.FindByID(ctx, line.ProductID)
		if err != nil {
			return nil, storeErr(err, "produit introuvable: "+line.ProductID, "lecture produit")
		}
		if !p.IsAvailable || p.Stock <= 0 {
			return nil, apperr.Newf(apperr.OutOfStock, "produit en rupture de stock: %s", p.Name)
		}

		unit := p.Price
		locked := line.UnitPrice > 0
		if locked {
			unit = line.UnitPrice
		}
		total := round2(unit * float64(line.TotalItem))
		if !locked && line.TotalPrice > 0 && math.Abs(line.TotalPrice-total) > priceTolerance {
			return nil, apperr.Newf(apperr.Validation, "le total de %s ne correspond pas au prix du produit", p.Name)
		}

		updated, err := s.store.Products.DecrementStock(ctx, p.ID, line.TotalItem)
		if errors.Is(err, repository.ErrInsufficientStock) {
			return nil, apperr.Newf(apperr.OutOfStock, "stock insuffisant pour %s (%d disponibles)", p.Name, p.Stock)
		}
		if err != nil {
			return nil, storeErr(err, "produit introuvable: "+p.ID, "décrément stock")
		}

		b := models.Booking{
			ID:             models.NewID(),
			User:           c.User,
			Product:        p.ID,
			TotalItems:     line.TotalItem,
			UnitPrice:      unit,
			Price:          total,
			PaymentGateway: c.Gateway,
			PaymentRef:     c.PaymentRef,
			Status:         models.StatusPending,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.store.Bookings.Create(ctx, &b); err != nil {
			return nil, storeErr(err, "réservation introuvable", "création réservation")
		}

		out.bookings = append(out.bookings, b)
		out.names[p.ID] = p.Name
		out.total += total
		out.movements = append(out.movements, models.StockMovement{
			ProductID: p.ID, Type: models.MovementSale, Quantity: -line.TotalItem,
			PrevStock: updated.Stock + line.TotalItem, NewStock: updated.Stock,
			Reason: "achat " + string(c.Gateway), BookingID: b.ID, UserID: c.User,
		})
	}
	out.total = round2(out.total)
	return out, nil
}

// Checkout transforme un lot payé en espèces en réservations, tout ou rien.
func (s *OrderService) Checkout(ctx context.Context, actor Actor, lines []models.OrderLine) (*models.CheckoutResult, error) {
	if err := validateBatch(actor, lines); err != nil {
		return nil, err
	}

	var res *placed
	err := s.store.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		res, err = s.place(ctx, models.Checkout{User: actor.UserID, Gateway: models.GatewayCash, Lines: lines})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.afterCheckout(actor, models.GatewayCash, res)
	return &models.CheckoutResult{Bookings: res.bookings, TotalAmount: res.total}, nil
}

// afterCheckout journalise les mouvements et envoie la confirmation, une fois la transaction validée.
func (s *OrderService) afterCheckout(actor Actor, gateway models.PaymentGateway, res *placed) {
	for _, m := range res.movements {
		s.audit.LogMovement(m)
	}
	for _, b := range res.bookings {
		s.audit.LogAction(actor, utils.ACTION_ORDER_CREATE, utils.RESOURCE_ORDER, b.ID, nil, b)
	}
	zap.S().Infof("🛒 Checkout %s: %d réservation(s), total %.2f", gateway, len(res.bookings), res.total)

	if s.mailer == nil || len(res.bookings) == 0 {
		return
	}
	userID := res.bookings[0].User
	lines := make([]models.BillLine, 0, len(res.bookings))
	for _, b := range res.bookings {
		lines = append(lines, billLine(b, res.names[b.Product]))
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), mailTimeout)
		defer cancel()

		u, err := s.store.Users.FindByID(ctx, userID)
		if err != nil {
			zap.S().Warnf("⚠️ Confirmation de commande non envoyée, utilisateur %s: %v", userID, err)
			return
		}
		html, err := utils.OrderConfirmationHTML(u.DisplayName(), gateway, lines, res.total)
		if err != nil {
			zap.S().Errorf("❌ Erreur rendu mail de confirmation: %v", err)
			return
		}
		if err := s.mailer.Send(ctx, utils.Mail{To: u.Email, Subject: "Confirmation de votre commande", HTML: html}); err != nil {
			zap.S().Errorf("❌ Erreur envoi mail de confirmation à %s: %v", u.Email, err)
		}
	}()
}

// views joint les champs d'affichage utilisateur et produit.
func (s *OrderService) views(ctx context.Context, bookings []models.Booking) ([]models.BookingView, error) {
	userIDs := make([]string, 0, len(bookings))
	productIDs := make([]string, 0, len(bookings))
	for _, b := range bookings {
		userIDs = append(userIDs, b.User)
		productIDs = append(productIDs, b.Product)
	}
	users, err := s.store.Users.FindByIDs(ctx, userIDs)
	if err != nil {
		return nil, apperr.Internalf(err, "lecture utilisateurs")
	}
	products, err := s.store.Products.FindByIDs(ctx, productIDs)
	if err != nil {
		return nil, apperr.Internalf(err, "lecture produits")
	}

	out := make([]models.BookingView, 0, len(bookings))
	for _, b := range bookings {
		v := models.BookingView{Booking: b, ProductName: deletedProduct}
		if u, ok := users[b.User]; ok {
			v.UserName, v.FullName, v.Email = u.UserName, u.FullName, u.Email
		}
		if p, ok := products[b.Product]; ok {
			v.ProductName, v.ProductImage, v.Category = p.Name, p.ImageURL, p.Category
		}
		out = append(out, v)
	}
	return out, nil
}

// ListBookings liste toutes les réservations pour un admin, les siennes pour un utilisateur.
func (s *OrderService) ListBookings(ctx context.Context, actor Actor, admin bool, q BookingQuery) (*BookingPage, error) {
	f := models.BookingFilter{
		Page:  parsePage(q.Page, 1, 0),
		Limit: parsePage(q.Limit, s.pageSize, maxPageSize),
	}
	empty := &BookingPage{Bookings: []models.BookingView{}, CurrentPage: f.Page}

	switch st := strings.TrimSpace(q.Status); st {
	case "", "all":
	default:
		parsed, ok := models.ParseBookingStatus(st)
		if !ok {
			return nil, apperr.Invalid("statut invalide")
		}
		f.Statuses = []models.BookingStatus{parsed}
	}

	search := strings.TrimSpace(q.Search)
	if admin {
		if search != "" {
			ids, err := s.store.Users.IDsByUserName(ctx, search)
			if err != nil {
				return nil, apperr.Internalf(err, "recherche utilisateurs")
			}
			if len(ids) == 0 {
				return empty, nil
			}
			f.Users = ids
		}
	} else {
		f.User = actor.UserID
		if search != "" {
			ids, err := s.store.Products.IDsByName(ctx, search)
			if err != nil {
				return nil, apperr.Internalf(err, "recherche produits")
			}
			if len(ids) == 0 {
				return empty, nil
			}
			f.Products = ids
		}
	}

	items, total, err := s.store.Bookings.List(ctx, f)
	if err != nil {
		return nil, apperr.Internalf(err, "liste réservations")
	}
	views, err := s.views(ctx, items)
	if err != nil {
		return nil, err
	}
	return &BookingPage{
		Bookings:      views,
		CurrentPage:   f.Page,
		TotalPages:    totalPages(total, f.Limit),
		TotalBookings: total,
	}, nil
}

// ChangeStatus applique un nouveau statut selon la table de transitions configurée.
func (s *OrderService) ChangeStatus(ctx context.Context, actor Actor, bookingID, status string) (*models.Booking, error) {
	if bookingID == "" {
		return nil, apperr.Invalid("bookingId requis")
	}
	to, ok := models.ParseBookingStatus(strings.TrimSpace(status))
	if !ok {
		return nil, apperr.Invalid("statut invalide")
	}
	b, err := s.store.Bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, storeErr(err, "réservation introuvable", "lecture réservation")
	}
	return s.transition(ctx, actor, b, to, utils.ACTION_ORDER_STATUS)
}

// CancelOrder annule une réservation en attente de l'utilisateur.
func (s *OrderService) CancelOrder(ctx context.Context, actor Actor, bookingID string) (*models.Booking, error) {
	if bookingID == "" {
		return nil, apperr.Invalid("bookingId requis")
	}
	b, err := s.store.Bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, storeErr(err, "réservation introuvable", "lecture réservation")
	}
	if b.User != actor.UserID {
		return nil, apperr.Missing("réservation introuvable")
	}
	if b.Status != models.StatusPending {
		return nil, apperr.Newf(apperr.DomainState, "seule une commande en attente peut être annulée (statut %s)", b.Status)
	}
	return s.transition(ctx, actor, b, models.StatusCancelled, utils.ACTION_ORDER_CANCEL)
}

// transition change le statut et corrige le stock : une annulation restitue la quantité,
// une sortie d'annulation la reprend.
func (s *OrderService) transition(ctx context.Context, actor Actor, b *models.Booking, to models.BookingStatus, action string) (*models.Booking, error) {
	from := b.Status
	if from == to {
		return b, nil
	}
	if !s.transitions.Allows(from, to) {
		return nil, apperr.Newf(apperr.DomainState, "transition de %s vers %s non autorisée", from, to)
	}

	var (
		updated  *models.Booking
		movement *models.StockMovement
		name     string
	)
	err := s.store.Tx.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		updated, err = s.store.Bookings.UpdateStatus(ctx, b.ID, from, to)
		if errors.Is(err, repository.ErrStaleState) {
			return apperr.Duplicate("la réservation a été modifiée entre-temps")
		}
		if err != nil {
			return storeErr(err, "réservation introuvable", "mise à jour statut")
		}

		switch {
		case to == models.StatusCancelled:
			p, err := s.store.Products.IncrementStock(ctx, b.Product, b.TotalItems, models.MaxStock)
			if errors.Is(err, repository.ErrNotFound) {
				return nil
			}
			if err != nil {
				return apperr.Internalf(err, "restitution stock")
			}
			name = p.Name
			movement = &models.StockMovement{
				ProductID: p.ID, Type: models.MovementRestock, Quantity: b.TotalItems,
				PrevStock: p.Stock - b.TotalItems, NewStock: p.Stock,
				Reason: "annulation", BookingID: b.ID, UserID: actor.UserID,
			}
			if movement.PrevStock < 0 {
				movement.PrevStock = 0
			}
		case from == models.StatusCancelled:
			p, err := s.store.Products.DecrementStock(ctx, b.Product, b.TotalItems)
			if errors.Is(err, repository.ErrInsufficientStock) {
				return apperr.New(apperr.OutOfStock, "stock insuffisant pour réactiver la réservation")
			}
			if err != nil {
				return storeErr(err, "produit introuvable", "reprise stock")
			}
			name = p.Name
			movement = &models.StockMovement{
				ProductID: p.ID, Type: models.MovementSale, Quantity: -b.TotalItems,
				PrevStock: p.Stock + b.TotalItems, NewStock: p.Stock,
				Reason: "réactivation", BookingID: b.ID, UserID: actor.UserID,
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if movement != nil {
		s.audit.LogMovement(*movement)
	}
	s.audit.LogAction(actor, action, utils.RESOURCE_ORDER, b.ID,
		map[string]models.BookingStatus{"status": from}, map[string]models.BookingStatus{"status": to})
	zap.S().Infof("📦 Réservation %s: %s -> %s", b.ID, from, to)
	s.notifyStatus(*updated, name)
	return updated, nil
}

func (s *OrderService) notifyStatus(b models.Booking, productName string) {
	if s.mailer == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), mailTimeout)
		defer cancel()

		u, err := s.store.Users.FindByID(ctx, b.User)
		if err != nil {
			return
		}
		name := productName
		if name == "" {
			if p, err := s.store.Products.FindByID(ctx, b.Product); err == nil {
				name = p.Name
			} else {
				name = deletedProduct
			}
		}
		mail, err := utils.BookingStatusEmail(u.Email, b, name)
		if err != nil {
			zap.S().Errorf("❌ Erreur rendu mail de statut: %v", err)
			return
		}
		if err := s.mailer.Send(ctx, mail); err != nil {
			zap.S().Errorf("❌ Erreur envoi mail de statut à %s: %v", u.Email, err)
		}
	}()
}

func billLine(b models.Booking, productName string) models.BillLine {
	if productName == "" {
		productName = deletedProduct
	}
	return models.BillLine{
		BookingID:   b.ID,
		ProductID:   b.Product,
		ProductName: productName,
		Quantity:    b.TotalItems,
		UnitPrice:   b.UnitPrice,
		Total:       b.Price,
		Gateway:     b.PaymentGateway,
		PurchasedAt: b.CreatedAt,
	}
}

func (s *OrderService) buildBill(ctx context.Context, ref string, buyerID string, bookings []models.Booking) (*models.Bill, error) {
	ids := make([]string, 0, len(bookings))
	for _, b := range bookings {
		ids = append(ids, b.Product)
	}
	products, err := s.store.Products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, apperr.Internalf(err, "lecture produits")
	}

	bill := &models.Bill{Reference: ref, BuyerID: buyerID, IssuedAt: s.now()}
	if u, err := s.store.Users.FindByID(ctx, buyerID); err == nil {
		bill.BuyerName = u.DisplayName()
		bill.BuyerEmail = u.Email
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Internalf(err, "lecture acheteur")
	}

	var total float64
	for _, b := range bookings {
		bill.Lines = append(bill.Lines, billLine(b, products[b.Product].Name))
		total += b.Price
	}
	bill.TotalAmount = round2(total)
	return bill, nil
}

// Bill produit la facture d'une réservation terminée.
func (s *OrderService) Bill(ctx context.Context, actor Actor, admin bool, bookingID string) (*models.Bill, error) {
	b, err := s.store.Bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, storeErr(err, "réservation introuvable", "lecture réservation")
	}
	if b.User != actor.UserID && !admin {
		return nil, apperr.Missing("réservation introuvable")
	}
	if b.Status != models.StatusCompleted {
		return nil, apperr.Newf(apperr.DomainState, "la réservation %s n'est pas terminée", b.ID)
	}
	return s.buildBill(ctx, billRefPrefix+b.ID, b.User, []models.Booking{*b})
}

// AggregateBill somme toutes les réservations de l'utilisateur; chacune doit être terminée.
func (s *OrderService) AggregateBill(ctx context.Context, userID string) (*models.Bill, error) {
	bookings, err := s.store.Bookings.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Internalf(err, "liste réservations")
	}
	if len(bookings) == 0 {
		return nil, apperr.Missing("aucune réservation à facturer")
	}
	for _, b := range bookings {
		if b.Status != models.StatusCompleted {
			return nil, apperr.Newf(apperr.DomainState, "la réservation %s n'est pas terminée (statut %s)", b.ID, b.Status)
		}
	}
	return s.buildBill(ctx, billRefPrefix+userID, userID, bookings)
}

type bookingCSV struct {
	ID          string  `csv:"booking_id"`
	CreatedAt   string  `csv:"created_at"`
	UserName    string  `csv:"user_name"`
	Email       string  `csv:"email"`
	ProductName string  `csv:"product_name"`
	Quantity    int     `csv:"quantity"`
	UnitPrice   float64 `csv:"unit_price"`
	Price       float64 `csv:"price"`
	Gateway     string  `csv:"payment_gateway"`
	PaymentRef  string  `csv:"payment_ref"`
	Status      string  `csv:"status"`
}

// ExportCSV écrit toutes les réservations du statut demandé ("" = tous), les plus récentes d'abord.
func (s *OrderService) ExportCSV(ctx context.Context, w io.Writer, status string) error {
	f := models.BookingFilter{Page: 1, Limit: exportPageLimit}
	if st := strings.TrimSpace(status); st != "" && st != "all" {
		parsed, ok := models.ParseBookingStatus(st)
		if !ok {
			return apperr.Invalid("statut invalide")
		}
		f.Statuses = []models.BookingStatus{parsed}
	}

	items, _, err := s.store.Bookings.List(ctx, f)
	if err != nil {
		return apperr.Internalf(err, "export réservations")
	}
	views, err := s.views(ctx, items)
	if err != nil {
		return err
	}

	rows := make([]*bookingCSV, 0, len(views))
	for _, v := range views {
		rows = append(rows, &bookingCSV{
			ID:          v.ID,
			CreatedAt:   v.CreatedAt.UTC().Format(time.RFC3339),
			UserName:    v.UserName,
			Email:       v.Email,
			ProductName: v.ProductName,
			Quantity:    v.TotalItems,
			UnitPrice:   v.UnitPrice,
			Price:       v.Price,
			Gateway:     string(v.PaymentGateway),
			PaymentRef:  v.PaymentRef,
			Status:      string(v.Status),
		})
	}
	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("écriture CSV: %w", err)
	}
	return nil
}
