package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/catalog"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/observability"
)

// specFilterAliases maps short min_<name> parameters onto spec keys.
var specFilterAliases = map[string]string{
	"ram":     "ram_gb",
	"storage": "storage_gb",
}

// ProductHandler serves search, listing and product detail requests.
type ProductHandler struct {
	logger  *observability.Logger
	service *catalog.Service
}

// NewProductHandler creates a new product handler.
func NewProductHandler(logger *observability.Logger, service *catalog.Service) *ProductHandler {
	return &ProductHandler{logger: logger, service: service}
}

// Search handles GET /search.
func (h *ProductHandler) Search(w http.ResponseWriter, r *http.Request) {
	req, err := parseSearchRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid search parameters", err.Error())
		return
	}

	resp, err := h.service.Search(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.logger, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseSearchRequest(r *http.Request) (catalog.SearchRequest, error) {
	q := r.URL.Query()
	req := catalog.SearchRequest{
		Category: strings.TrimSpace(q.Get("category")),
		Brand:    strings.TrimSpace(q.Get("brand")),
		OS:       strings.TrimSpace(q.Get("os")),
		Sort:     strings.TrimSpace(q.Get("sort")),
	}

	var err error
	if req.MinRating, err = queryFloat(r, "min_rating"); err != nil {
		return req, err
	}
	if req.BudgetMax, err = queryFloat(r, "budget_max"); err != nil {
		return req, err
	}
	if req.Limit, err = queryInt(r, "limit"); err != nil {
		return req, err
	}

	for name, values := range q {
		key, ok := strings.CutPrefix(name, "min_")
		if !ok || key == "rating" || key == "" || len(values) == 0 {
			continue
		}
		v, perr := parseFinite(name, strings.TrimSpace(values[0]))
		if perr != nil {
			return req, perr
		}
		if alias, ok := specFilterAliases[key]; ok {
			key = alias
		}
		if req.SpecFilters == nil {
			req.SpecFilters = make(map[string]float64)
		}
		req.SpecFilters[key] = v
	}
	return req, nil
}

// List handles GET /products.
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit", err.Error())
		return
	}

	products, err := h.service.ListProducts(r.Context(), catalog.ProductListRequest{
		Category: r.URL.Query().Get("category"),
		Brand:    r.URL.Query().Get("brand"),
		Limit:    limit,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, "list_products", err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

// Get handles GET /products/{productId}.
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.GetProduct(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get_product", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// PriceRange handles GET /products/{productId}/price-range.
func (h *ProductHandler) PriceRange(w http.ResponseWriter, r *http.Request) {
	budget, err := queryFloat(r, "budget_max")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid budget_max", err.Error())
		return
	}

	resp, err := h.service.PriceRange(r.Context(), chi.URLParam(r, "productId"), budget)
	if err != nil {
		writeServiceError(w, r, h.logger, "price_range", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Provenance handles GET /products/{productId}/specs/{specPath}/provenance.
func (h *ProductHandler) Provenance(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.SpecProvenance(r.Context(), chi.URLParam(r, "productId"), chi.URLParam(r, "specPath"))
	if err != nil {
		writeServiceError(w, r, h.logger, "spec_provenance", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
