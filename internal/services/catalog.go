package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"bazaar_back_end/internal/apperr"
	"bazaar_back_end/internal/models"
	"bazaar_back_end/internal/repository"
	"bazaar_back_end/internal/utils"
)

const (
	defaultProductPage = 4
	maxPageSize        = 100
	indexTimeout       = 5 * time.Second

	msgDuplicateName = "un produit portant ce nom existe déjà"
)

// ProductInput reprend les champs bruts du formulaire produit; une chaîne vide = champ absent.
type ProductInput struct {
	ProductID         string
	Name              string
	Description       string
	Price             string
	Stock             string
	Category          string
	ExpiryDate        string
	LowStockThreshold string
	UserID            string
	Image             *ImageUpload
}

// ProductQuery reprend les paramètres de GET /getProducts.
type ProductQuery struct {
	Page               string
	Limit              string
	Search             string
	CategoryFilter     string
	AvailabilityFilter string
	Disabled           string
}

type ProductPage struct {
	Products      []models.Product `json:"products"`
	CurrentPage   int              `json:"currentPage"`
	TotalPages    int              `json:"totalPages"`
	TotalProducts int              `json:"totalProducts"`
}

type CatalogService struct {
	store    repository.Store
	images   ImageStore
	index    ProductIndexer
	audit    *utils.Auditor
	lowStock int
	now      clock
}

func NewCatalogService(store repository.Store, images ImageStore, index ProductIndexer, audit *utils.Auditor, lowStock int) *CatalogService {
	if index == nil {
		index = NoopIndexer{}
	}
	return &CatalogService{store: store, images: images, index: index, audit: audit, lowStock: lowStock, now: time.Now}
}

func parseStock(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 || n > models.MaxStock {
		return 0, apperr.Newf(apperr.Validation, "le stock doit être compris entre 0 et %d", models.MaxStock)
	}
	return n, nil
}

func parsePrice(raw string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, apperr.Invalid("le prix doit être un nombre")
	}
	if v <= 0 {
		return 0, apperr.Invalid("le prix doit être supérieur à 0")
	}
	return v, nil
}

// parseExpiry accepte RFC3339 ou une date seule; la date doit être strictement future.
func parseExpiry(raw string, now time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		t, err = time.Parse("2006-01-02", raw)
	}
	if err != nil {
		return time.Time{}, apperr.Invalid("date d'expiration invalide")
	}
	if !t.After(now) {
		return time.Time{}, apperr.Invalid("la date d'expiration doit être dans le futur")
	}
	return t.UTC(), nil
}

func parseThreshold(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 || n > models.MaxStock {
		return 0, apperr.Invalid("seuil de stock bas invalide")
	}
	return n, nil
}

func (s *CatalogService) indexAsync(p models.Product) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), indexTimeout)
		defer cancel()
		if err := s.index.Index(ctx, p); err != nil && !errors.Is(err, ErrIndexUnavailable) {
			zap.S().Warnf("⚠️ Erreur indexation Elasticsearch: %v", err)
		}
	}()
}

// Create valide puis enregistre un produit; l'ordre des contrôles détermine l'erreur renvoyée.
func (s *CatalogService) Create(ctx context.Context, in ProductInput, actor Actor) (*models.Product, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || strings.TrimSpace(in.Price) == "" || strings.TrimSpace(in.Category) == "" || in.UserID == "" {
		return nil, apperr.Invalid("name, price, category et userId sont requis")
	}

	stock := 0
	if strings.TrimSpace(in.Stock) != "" {
		n, err := parseStock(in.Stock)
		if err != nil {
			return nil, err
		}
		stock = n
	}

	price, err := parsePrice(in.Price)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var expiry *time.Time
	if strings.TrimSpace(in.ExpiryDate) != "" {
		t, err := parseExpiry(in.ExpiryDate, now)
		if err != nil {
			return nil, err
		}
		expiry = &t
	}

	if _, err := s.store.Products.FindByNameAndAdmin(ctx, name, in.UserID); err == nil {
		return nil, apperr.Duplicate(msgDuplicateName)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Internalf(err, "recherche doublon produit")
	}

	owner, err := s.store.Users.FindByID(ctx, in.UserID)
	if err != nil {
		return nil, storeErr(err, "utilisateur introuvable", "lecture propriétaire")
	}
	if !owner.IsAdmin() {
		return nil, apperr.Denied("seul un admin peut créer un produit")
	}

	category, ok := models.ParseCategory(in.Category)
	if !ok {
		return nil, apperr.Invalid("catégorie invalide")
	}

	threshold := 0
	if strings.TrimSpace(in.LowStockThreshold) != "" {
		if threshold, err = parseThreshold(in.LowStockThreshold); err != nil {
			return nil, err
		}
	}

	p := models.Product{
		ID:                models.NewID(),
		Name:              name,
		Description:       strings.TrimSpace(in.Description),
		Price:             price,
		Stock:             stock,
		LowStockThreshold: threshold,
		Category:          category,
		IsAvailable:       true,
		ExpiryDate:        expiry,
		Admin:             owner.ID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if in.Image != nil && s.images != nil {
		url, err := s.images.Upload(ctx, *in.Image)
		if err != nil {
			return nil, apperr.Internalf(err, "upload image produit")
		}
		p.ImageURL = url
	}

	if err := s.store.Products.Create(ctx, &p); err != nil {
		s.discardImage(ctx, p.ImageURL)
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Duplicate(msgDuplicateName)
		}
		return nil, apperr.Internalf(err, "création produit")
	}

	s.indexAsync(p)
	s.audit.LogAction(actor, utils.ACTION_PRODUCT_CREATE, utils.RESOURCE_PRODUCT, p.ID, nil, p)
	if stock > 0 {
		s.audit.LogMovement(models.StockMovement{
			ProductID: p.ID, Type: models.MovementRestock, Quantity: stock,
			NewStock: stock, Reason: "stock initial", UserID: actor.UserID,
		})
	}
	zap.S().Infof("✅ Produit créé: %s (%s)", p.Name, p.ID)
	return &p, nil
}

// List renvoie une page du catalogue.
func (s *CatalogService) List(ctx context.Context, q ProductQuery) (*ProductPage, error) {
	f := models.ProductFilter{
		Search: strings.TrimSpace(q.Search),
		Page:   parsePage(q.Page, 1, 0),
		Limit:  parsePage(q.Limit, defaultProductPage, maxPageSize),
	}

	switch c := strings.TrimSpace(q.CategoryFilter); c {
	case "", "2":
	default:
		if parsed, ok := models.ParseCategory(c); ok {
			f.Category = parsed
		} else {
			f.Category = models.Category(c)
		}
	}

	switch q.AvailabilityFilter {
	case "1":
		f.Availability = models.AvailabilityInStock
	case "0":
		f.Availability = models.AvailabilityOutOfStock
	}

	switch q.Disabled {
	case "", "2":
	default:
		enabled := q.Disabled != "0"
		f.Enabled = &enabled
	}

	items, total, err := s.store.Products.List(ctx, f)
	if err != nil {
		return nil, apperr.Internalf(err, "liste produits")
	}
	if items == nil {
		items = []models.Product{}
	}
	return &ProductPage{
		Products:      items,
		CurrentPage:   f.Page,
		TotalPages:    totalPages(total, f.Limit),
		TotalProducts: total,
	}, nil
}

// Edit applique une mise à jour partielle champ par champ; la dernière écriture l'emporte.
// Le stock n'est écrit que s'il fait partie du patch.
func (s *CatalogService) Edit(ctx context.Context, in ProductInput, actor Actor) (*models.Product, error) {
	if in.ProductID == "" {
		return nil, apperr.Invalid("productId requis")
	}
	current, err := s.store.Products.FindByID(ctx, in.ProductID)
	if err != nil {
		return nil, storeErr(err, "produit introuvable", "lecture produit")
	}

	var patch models.ProductPatch
	if name := strings.TrimSpace(in.Name); name != "" {
		patch.Name = &name
	}
	if in.Description != "" {
		d := strings.TrimSpace(in.Description)
		patch.Description = &d
	}
	if strings.TrimSpace(in.Stock) != "" {
		n, err := parseStock(in.Stock)
		if err != nil {
			return nil, err
		}
		patch.Stock = &n
	}
	if strings.TrimSpace(in.Price) != "" {
		v, err := parsePrice(in.Price)
		if err != nil {
			return nil, err
		}
		patch.Price = &v
	}
	now := s.now()
	if strings.TrimSpace(in.ExpiryDate) != "" {
		t, err := parseExpiry(in.ExpiryDate, now)
		if err != nil {
			return nil, err
		}
		patch.ExpiryDate = &t
	}
	if patch.Name != nil && !strings.EqualFold(*patch.Name, current.Name) {
		other, err := s.store.Products.FindByNameAndAdmin(ctx, *patch.Name, current.Admin)
		if err == nil && other.ID != current.ID {
			return nil, apperr.Duplicate(msgDuplicateName)
		}
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Internalf(err, "recherche doublon produit")
		}
	}
	if strings.TrimSpace(in.Category) != "" {
		c, ok := models.ParseCategory(in.Category)
		if !ok {
			return nil, apperr.Invalid("catégorie invalide")
		}
		patch.Category = &c
	}
	if strings.TrimSpace(in.LowStockThreshold) != "" {
		n, err := parseThreshold(in.LowStockThreshold)
		if err != nil {
			return nil, err
		}
		patch.LowStockThreshold = &n
	}
	if in.Image != nil && s.images != nil {
		url, err := s.images.Upload(ctx, *in.Image)
		if err != nil {
			return nil, apperr.Internalf(err, "upload image produit")
		}
		patch.ImageURL = &url
	}

	before, err := s.store.Products.Patch(ctx, current.ID, patch, now)
	if err != nil {
		if patch.ImageURL != nil {
			s.discardImage(ctx, *patch.ImageURL)
		}
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Duplicate(msgDuplicateName)
		}
		return nil, storeErr(err, "produit introuvable", "mise à jour produit")
	}
	updated := patch.Apply(*before)
	updated.UpdatedAt = now

	s.indexAsync(updated)
	s.audit.LogAction(actor, utils.ACTION_PRODUCT_UPDATE, utils.RESOURCE_PRODUCT, updated.ID, before, updated)
	if updated.Stock != before.Stock {
		s.audit.LogMovement(models.StockMovement{
			ProductID: updated.ID, Type: models.MovementAdjustment,
			Quantity:  updated.Stock - before.Stock,
			PrevStock: before.Stock, NewStock: updated.Stock,
			Reason: "modification admin", UserID: actor.UserID,
		})
	}
	return &updated, nil
}

// discardImage supprime une image téléversée pour un produit qui n'a pas été enregistré.
func (s *CatalogService) discardImage(ctx context.Context, url string) {
	if url == "" || s.images == nil {
		return
	}
	if err := s.images.Delete(context.WithoutCancel(ctx), url); err != nil {
		zap.S().Warnf("⚠️ Image orpheline %s non supprimée: %v", url, err)
	}
}

func (s *CatalogService) Delete(ctx context.Context, productID string, actor Actor) error {
	if productID == "" {
		return apperr.Invalid("productId requis")
	}
	p, err := s.store.Products.FindByID(ctx, productID)
	if err != nil {
		return storeErr(err, "produit introuvable", "lecture produit")
	}
	if err := s.store.Products.Delete(ctx, productID); err != nil {
		return storeErr(err, "produit introuvable", "suppression produit")
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), indexTimeout)
		defer cancel()
		if err := s.index.Remove(ctx, productID); err != nil {
			zap.S().Warnf("⚠️ Erreur suppression index produit %s: %v", productID, err)
		}
		if p.ImageURL != "" && s.images != nil {
			if err := s.images.Delete(ctx, p.ImageURL); err != nil {
				zap.S().Warnf("⚠️ Erreur suppression image %s: %v", p.ImageURL, err)
			}
		}
	}()

	s.audit.LogAction(actor, utils.ACTION_PRODUCT_DELETE, utils.RESOURCE_PRODUCT, productID, p, nil)
	zap.S().Infof("🗑️ Produit supprimé: %s", productID)
	return nil
}

// ToggleAvailability inverse isAvailable.
func (s *CatalogService) ToggleAvailability(ctx context.Context, productID string, actor Actor) (*models.Product, error) {
	if productID == "" {
		return nil, apperr.Invalid("productId requis")
	}
	p, err := s.store.Products.FindByID(ctx, productID)
	if err != nil {
		return nil, storeErr(err, "produit introuvable", "lecture produit")
	}
	updated, err := s.store.Products.SetAvailable(ctx, p.ID, !p.IsAvailable, s.now())
	if errors.Is(err, repository.ErrStaleState) {
		return nil, apperr.Duplicate("le produit a été modifié entre-temps")
	}
	if err != nil {
		return nil, storeErr(err, "produit introuvable", "mise à jour produit")
	}

	s.indexAsync(*updated)
	s.audit.LogAction(actor, utils.ACTION_PRODUCT_TOGGLE, utils.RESOURCE_PRODUCT, updated.ID,
		map[string]bool{"isAvailable": p.IsAvailable}, map[string]bool{"isAvailable": updated.IsAvailable})
	return updated, nil
}

// Search interroge l'index plein texte, ou le listing du catalogue si l'index ne répond pas.
func (s *CatalogService) Search(ctx context.Context, query string, limit int) ([]models.Product, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.Invalid("paramètre q requis")
	}
	if limit < 1 || limit > maxPageSize {
		limit = 20
	}

	ids, err := s.index.Search(ctx, query, limit)
	if err != nil {
		if !errors.Is(err, ErrIndexUnavailable) {
			zap.S().Warnf("⚠️ Recherche Elasticsearch indisponible, repli sur MongoDB: %v", err)
		}
		items, _, err := s.store.Products.List(ctx, models.ProductFilter{Search: query, Page: 1, Limit: limit})
		if err != nil {
			return nil, apperr.Internalf(err, "recherche produits")
		}
		if items == nil {
			items = []models.Product{}
		}
		return items, nil
	}

	found, err := s.store.Products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, apperr.Internalf(err, "lecture produits")
	}
	out := make([]models.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := found[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// DisableExpired rend indisponibles les produits dont la date d'expiration est passée.
func (s *CatalogService) DisableExpired(ctx context.Context) (int, error) {
	n, err := s.store.Products.DisableExpired(ctx, s.now())
	if err != nil {
		return 0, apperr.Internalf(err, "désactivation produits expirés")
	}
	return n, nil
}
