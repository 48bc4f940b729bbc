package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/vectorsearch/listings/app/api"
	"github.com/vectorsearch/listings/app/database"
	"github.com/vectorsearch/listings/models"
)

// maxBodyBytes bounds create and update request bodies.
const maxBodyBytes = 1 << 20

type Response struct {
	Total    int       `json:"total"`
	Products []Product `json:"products"`
}

type Product struct {
	ID              uint     `json:"id"`
	Title           string   `json:"title"`
	Description     string   `json:"description"`
	Category        string   `json:"category"`
	Price           string   `json:"price"`
	Brand           string   `json:"brand"`
	Condition       string   `json:"condition"`
	Color           string   `json:"color"`
	SimilarityScore *float64 `json:"similarity_score,omitempty"`
}

// ProductInput is the body accepted by create and update.
type ProductInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Price       string `json:"price"`
	Brand       string `json:"brand"`
	Condition   string `json:"condition"`
	Color       string `json:"color"`
}

type ProductProvider interface {
	List(ctx context.Context) ([]models.Product, error)
	GetByID(ctx context.Context, id uint) (*models.Product, error)
	Create(ctx context.Context, p *models.Product) (uint, error)
	Update(ctx context.Context, p models.Product) error
	Delete(ctx context.Context, id uint) error
}

type ProductSearcher interface {
	Search(ctx context.Context, query string) ([]models.SearchResult, error)
}

type CatalogHandler struct {
	repo   ProductProvider
	search ProductSearcher
	log    *logrus.Logger
}

func NewCatalogHandler(r ProductProvider, s ProductSearcher, logger *logrus.Logger) *CatalogHandler {
	return &CatalogHandler{
		repo:   r,
		search: s,
		log:    logger,
	}
}

// RegisterRoutes mounts the catalog endpoints on mux.
func (h *CatalogHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /catalog", h.HandleGet)
	mux.HandleFunc("POST /catalog", h.HandleCreate)
	mux.HandleFunc("GET /catalog/{id}", h.HandleGetProduct)
	mux.HandleFunc("PUT /catalog/{id}", h.HandleUpdate)
	mux.HandleFunc("DELETE /catalog/{id}", h.HandleDelete)
}

// HandleGet lists every product, or runs a semantic search when q is not blank.
func (h *CatalogHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	if strings.TrimSpace(query) == "" {
		h.writeList(w, r, "failed to get products")
		return
	}

	results, err := h.search.Search(r.Context(), query)
	if err != nil {
		h.writeError(w, r, err, "failed to search products")
		return
	}

	products := make([]Product, len(results))
	for i, res := range results {
		score := res.SimilarityScore
		products[i] = toResponse(res.Product)
		products[i].SimilarityScore = &score
	}

	api.OKResponse(w, Response{
		Total:    len(products),
		Products: products,
	})
}

func (h *CatalogHandler) HandleGetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	product, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err, "Failed to retrieve product")
		return
	}

	api.OKResponse(w, toResponse(*product))
}

func (h *CatalogHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	input, ok := decodeInput(w, r)
	if !ok {
		return
	}

	product := input.toModel()
	id, err := h.repo.Create(r.Context(), &product)
	if err != nil {
		h.writeError(w, r, err, "Failed to create product")
		return
	}

	api.JSONResponse(w, http.StatusCreated, map[string]uint{"id": id})
}

// HandleUpdate replaces every field of an existing product.
func (h *CatalogHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	input, ok := decodeInput(w, r)
	if !ok {
		return
	}

	product := input.toModel()
	product.ID = id
	if err := h.repo.Update(r.Context(), product); err != nil {
		h.writeError(w, r, err, "Failed to update product")
		return
	}

	api.OKResponse(w, toResponse(product))
}

// HandleDelete removes a product and answers with the remaining collection.
func (h *CatalogHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err, "Failed to delete product")
		return
	}

	h.writeList(w, r, "failed to get products")
}

func (h *CatalogHandler) writeList(w http.ResponseWriter, r *http.Request, failure string) {
	res, err := h.repo.List(r.Context())
	if err != nil {
		h.writeError(w, r, err, failure)
		return
	}

	products := make([]Product, len(res))
	for i, p := range res {
		products[i] = toResponse(p)
	}

	api.OKResponse(w, Response{
		Total:    len(products),
		Products: products,
	})
}

func (h *CatalogHandler) writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status, message := http.StatusInternalServerError, fallback
	switch {
	case errors.Is(err, models.ErrProductNotFound):
		status, message = http.StatusNotFound, "Product not found"
	case errors.Is(err, models.ErrConstraintViolation):
		status, message = http.StatusConflict, "Product rejected by the store"
	case errors.Is(err, models.ErrRankingFunction):
		status, message = http.StatusBadGateway, "Search is unavailable"
	case errors.Is(err, database.ErrConnection):
		status, message = http.StatusServiceUnavailable, "Database is unavailable"
	}

	if status >= http.StatusInternalServerError {
		h.log.WithFields(logrus.Fields{
			"request_id": api.RequestID(r.Context()),
			"error":      err.Error(),
		}).Error(fallback)
	}
	api.ErrorResponse(w, status, message)
}

func parseID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	// ids are bigint in the store, so anything above MaxInt64 is not an id.
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 63)
	if err != nil || id == 0 {
		api.ErrorResponse(w, http.StatusBadRequest, "Invalid product id")
		return 0, false
	}
	return uint(id), true
}

func decodeInput(w http.ResponseWriter, r *http.Request) (ProductInput, bool) {
	var input ProductInput
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.ErrorResponse(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return input, false
		}
		api.ErrorResponse(w, http.StatusBadRequest, "Invalid JSON body")
		return input, false
	}
	if err := input.Validate(); err != nil {
		api.ErrorResponse(w, http.StatusBadRequest, err.Error())
		return input, false
	}
	return input, true
}

// Validate requires every field and a non-negative decimal price.
func (in ProductInput) Validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"title", in.Title},
		{"description", in.Description},
		{"category", in.Category},
		{"price", in.Price},
		{"brand", in.Brand},
		{"condition", in.Condition},
		{"color", in.Color},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return errors.New("Missing required field: " + f.name)
		}
	}

	price, err := decimal.NewFromString(strings.TrimSpace(in.Price))
	if err != nil {
		return errors.New("Invalid price")
	}
	if price.IsNegative() {
		return errors.New("Price must not be negative")
	}
	return nil
}

func (in ProductInput) toModel() models.Product {
	return models.Product{
		Title:       in.Title,
		Description: in.Description,
		Category:    in.Category,
		Price:       strings.TrimSpace(in.Price),
		Brand:       in.Brand,
		Condition:   in.Condition,
		Color:       in.Color,
	}
}

func toResponse(p models.Product) Product {
	return Product{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Category:    p.Category,
		Price:       p.Price,
		Brand:       p.Brand,
		Condition:   p.Condition,
		Color:       p.Color,
	}
}
