package categories

import (
	"context"
	"errors"
	"net/http"

	"github.com/vectorsearch/listings/app/api"
	"github.com/vectorsearch/listings/app/database"
)

type CategoryResponse struct {
	Name string `json:"name"`
}

type CategoryProvider interface {
	ListCategories(ctx context.Context) ([]string, error)
}

type CategoryHandler struct {
	repo CategoryProvider
}

func NewCategoryHandler(r CategoryProvider) *CategoryHandler {
	return &CategoryHandler{repo: r}
}

// HandleGetAll lists the distinct categories in use by products.
func (h *CategoryHandler) HandleGetAll(w http.ResponseWriter, r *http.Request) {
	categories, err := h.repo.ListCategories(r.Context())
	if err != nil {
		if errors.Is(err, database.ErrConnection) {
			api.ErrorResponse(w, http.StatusServiceUnavailable, "Database is unavailable")
			return
		}
		api.ErrorResponse(w, http.StatusInternalServerError, "failed to fetch categories")
		return
	}

	response := make([]CategoryResponse, len(categories))
	for i, c := range categories {
		response[i] = CategoryResponse{Name: c}
	}

	api.OKResponse(w, response)
}
