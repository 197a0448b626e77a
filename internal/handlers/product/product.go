package product

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"bazaar_back_end/internal/apperr"
	"bazaar_back_end/internal/handlers"
	"bazaar_back_end/internal/middleware"
	"bazaar_back_end/internal/services"
)

const imageField = "product_image"

// Handler expose le catalogue.
type Handler struct {
	catalog   *services.CatalogService
	maxUpload int64
}

func New(catalog *services.CatalogService, maxUploadMB int64) *Handler {
	if maxUploadMB <= 0 {
		maxUploadMB = 5
	}
	return &Handler{catalog: catalog, maxUpload: maxUploadMB << 20}
}

var formFields = []string{"productId", "name", "description", "price", "stock", "category", "expiryDate", "lowStockThreshold", "userId"}

// readForm accepte un formulaire multipart (avec image) ou un body JSON.
func (h *Handler) readForm(c *gin.Context) (services.ProductInput, error) {
	values := map[string]string{}
	var in services.ProductInput

	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		for _, f := range formFields {
			values[f] = c.PostForm(f)
		}
		img, err := h.readImage(c)
		if err != nil {
			return in, err
		}
		in.Image = img
	} else {
		var raw map[string]interface{}
		if err := json.NewDecoder(c.Request.Body).Decode(&raw); err != nil {
			return in, apperr.Invalid("Body JSON invalide")
		}
		for _, f := range formFields {
			values[f] = stringify(raw[f])
		}
	}

	in.ProductID = values["productId"]
	in.Name = values["name"]
	in.Description = values["description"]
	in.Price = values["price"]
	in.Stock = values["stock"]
	in.Category = values["category"]
	in.ExpiryDate = values["expiryDate"]
	in.LowStockThreshold = values["lowStockThreshold"]
	in.UserID = values["userId"]
	return in, nil
}

// stringify ramène un champ JSON (nombre ou chaîne) à sa forme de formulaire.
func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func (h *Handler) readImage(c *gin.Context) (*services.ImageUpload, error) {
	fh, err := c.FormFile(imageField)
	if err == http.ErrMissingFile {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Invalid("Image invalide")
	}
	if fh.Size > h.maxUpload {
		return nil, apperr.Invalid("Image trop volumineuse")
	}
	ct := fh.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "image/") {
		return nil, apperr.Invalid("Le fichier doit être une image")
	}
	f, err := fh.Open()
	if err != nil {
		return nil, apperr.Internalf(err, "ouverture image")
	}
	return &services.ImageUpload{Filename: fh.Filename, ContentType: ct, Size: fh.Size, Body: f}, nil
}

// SaveProduct crée un produit (POST /saveProduct).
func (h *Handler) SaveProduct(c *gin.Context) {
	in, err := h.readForm(c)
	if err != nil {
		handlers.Error(c, err)
		return
	}
	if in.Image != nil {
		if closer, ok := in.Image.Body.(interface{ Close() error }); ok {
			defer closer.Close()
		}
	}
	if in.UserID != "" && in.UserID != middleware.UserID(c) {
		handlers.Error(c, apperr.Denied("userId ne correspond pas à l'utilisateur connecté"))
		return
	}

	p, err := h.catalog.Create(c.Request.Context(), in, middleware.Actor(c))
	if err != nil {
		handlers.Error(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Produit créé", "product": p})
}

// GetProducts liste le catalogue paginé.
func (h *Handler) GetProducts(c *gin.Context) {
	page, err := h.catalog.List(c.Request.Context(), services.ProductQuery{
		Page:               c.Query("page"),
		Limit:              c.Query("limit"),
		Search:             c.Query("search"),
		CategoryFilter:     c.Query("categoryFilter"),
		AvailabilityFilter: c.Query("availabilityFilter"),
		Disabled:           c.Query("disabled"),
	})
	if err != nil {
		handlers.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// EditProduct applique une mise à jour partielle (admin).
func (h *Handler) EditProduct(c *gin.Context) {
	in, err := h.readForm(c)
	if err != nil {
		handlers.Error(c, err)
		return
	}
	if in.Image != nil {
		if closer, ok := in.Image.Body.(interface{ Close() error }); ok {
			defer closer.Close()
		}
	}
	if in.ProductID == "" {
		in.ProductID = c.Query("productId")
	}

	p, err := h.catalog.Edit(c.Request.Context(), in, middleware.Actor(c))
	if err != nil {
		handlers.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Produit mis à jour", "product": p})
}

func (h *Handler) DeleteProduct(c *gin.Context) {
	id := c.Query("productId")
	if err := h.catalog.Delete(c.Request.Context(), id, middleware.Actor(c)); err != nil {
		handlers.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Produit supprimé", "productId": id})
}

// ChangeAvailable inverse isAvailable.
func (h *Handler) ChangeAvailable(c *gin.Context) {
	p, err := h.catalog.ToggleAvailability(c.Request.Context(), c.Query("productId"), middleware.Actor(c))
	if err != nil {
		handlers.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Disponibilité mise à jour", "product": p})
}

func (h *Handler) SearchProducts(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	items, err := h.catalog.Search(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		handlers.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": items, "count": len(items)})
}
