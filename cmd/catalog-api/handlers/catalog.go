package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/catalog"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/observability"
)

// CatalogHandler serves category browsing and review summaries.
type CatalogHandler struct {
	logger  *observability.Logger
	service *catalog.Service
}

// NewCatalogHandler creates a new catalog handler.
func NewCatalogHandler(logger *observability.Logger, service *catalog.Service) *CatalogHandler {
	return &CatalogHandler{logger: logger, service: service}
}

// Categories handles GET /categories.
func (h *CatalogHandler) Categories(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.Categories(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "categories", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// TopProducts handles GET /categories/{categoryId}/top.
func (h *CatalogHandler) TopProducts(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit", err.Error())
		return
	}

	resp, err := h.service.TopProducts(r.Context(), chi.URLParam(r, "categoryId"), limit)
	if err != nil {
		writeServiceError(w, r, h.logger, "top_products", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Brands handles GET /categories/{categoryId}/brands.
func (h *CatalogHandler) Brands(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.CategoryBrands(r.Context(), chi.URLParam(r, "categoryId"))
	if err != nil {
		writeServiceError(w, r, h.logger, "category_brands", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ReviewSummary handles GET /reviews/product/{productId}/summary.
func (h *CatalogHandler) ReviewSummary(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.ReviewSummary(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		writeServiceError(w, r, h.logger, "review_summary", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
