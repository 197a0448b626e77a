// Package repository déclare les accès aux données utilisés par les services.
// L'implémentation de production est dans internal/database (MongoDB), memory sert aux tests.
package repository

import (
	"context"
	"errors"
	"time"

	"bazaar_back_end/internal/models"
)

var (
	ErrNotFound          = errors.New("document introuvable")
	ErrDuplicate         = errors.New("document déjà existant")
	ErrInsufficientStock = errors.New("stock insuffisant")
	// ErrStaleState : la mise à jour conditionnelle n'a trouvé aucun document dans l'état attendu.
	ErrStaleState = errors.New("état modifié entre-temps")
)

// Transactor exécute fn dans une transaction; toute erreur annule l'ensemble des écritures.
// Les dépôts doivent être appelés avec le ctx reçu par fn.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type ProductRepository interface {
	// Create renvoie ErrDuplicate si l'admin a déjà un produit de même nom (casse ignorée).
	Create(ctx context.Context, p *models.Product) error
	FindByID(ctx context.Context, id string) (*models.Product, error)
	FindByIDs(ctx context.Context, ids []string) (map[string]models.Product, error)
	FindByNameAndAdmin(ctx context.Context, name, admin string) (*models.Product, error)
	// List renvoie la page demandée en ordre d'insertion et le nombre total de correspondances.
	List(ctx context.Context, f models.ProductFilter) ([]models.Product, int, error)
	IDsByName(ctx context.Context, search string) ([]string, error)
	All(ctx context.Context) ([]models.Product, error)
	// Patch écrit seulement les champs non nil du patch et renvoie le produit tel qu'il était avant.
	// ErrDuplicate si le nouveau nom existe déjà pour cet admin.
	Patch(ctx context.Context, id string, patch models.ProductPatch, now time.Time) (*models.Product, error)
	// SetAvailable passe isAvailable à available si sa valeur est encore !available, sinon ErrStaleState.
	SetAvailable(ctx context.Context, id string, available bool, now time.Time) (*models.Product, error)
	Delete(ctx context.Context, id string) error
	// DecrementStock retire qty du stock seulement si stock >= qty.
	DecrementStock(ctx context.Context, id string, qty int) (*models.Product, error)
	// IncrementStock rajoute qty au stock, plafonné à max.
	IncrementStock(ctx context.Context, id string, qty, max int) (*models.Product, error)
	// DisableExpired rend indisponibles les produits dont la date d'expiration est passée.
	DisableExpired(ctx context.Context, now time.Time) (int, error)
}

type BookingRepository interface {
	Create(ctx context.Context, b *models.Booking) error
	FindByID(ctx context.Context, id string) (*models.Booking, error)
	// List trie du plus récent au plus ancien.
	List(ctx context.Context, f models.BookingFilter) ([]models.Booking, int, error)
	// ListByUser trie du plus ancien au plus récent.
	ListByUser(ctx context.Context, userID string) ([]models.Booking, error)
	// UpdateStatus change le statut seulement si la réservation est encore dans l'état from.
	UpdateStatus(ctx context.Context, id string, from, to models.BookingStatus) (*models.Booking, error)
	Recent(ctx context.Context, n int) ([]models.Booking, error)
	Summary(ctx context.Context) (models.BookingSummary, error)
}

type UserRepository interface {
	Create(ctx context.Context, u *models.User) error
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByIDs(ctx context.Context, ids []string) (map[string]models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByUserName(ctx context.Context, userName string) (*models.User, error)
	// Taken renvoie le nom du premier champ unique déjà utilisé ("email", "phoneNumber", "userName"), ou "".
	Taken(ctx context.Context, email, phone, userName string) (string, error)
	List(ctx context.Context, f models.UserFilter) ([]models.User, int, error)
	IDsByUserName(ctx context.Context, search string) ([]string, error)
	SetActive(ctx context.Context, id string, active bool) error
	SetRole(ctx context.Context, id string, role models.Role) error
	Count(ctx context.Context) (total, active int, err error)
}

type PaymentRepository interface {
	Create(ctx context.Context, s *models.PaymentSession) error
	FindByTransaction(ctx context.Context, uuid string) (*models.PaymentSession, error)
	// Complete passe une session non terminée à completed; ErrStaleState si elle l'est déjà.
	Complete(ctx context.Context, uuid, gatewayRef string, bookingIDs []string) error
	SetStatus(ctx context.Context, uuid string, from, to models.SessionStatus) error
	// ExpireBefore marque expired les sessions initiated créées avant cutoff.
	ExpireBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Store regroupe les dépôts et leur gestionnaire de transactions.
type Store struct {
	Tx       Transactor
	Products ProductRepository
	Bookings BookingRepository
	Users    UserRepository
	Payments PaymentRepository
}
