package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/catalog"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/observability"
)

// ComparisonHandler handles comparison matrices and comparison sessions.
type ComparisonHandler struct {
	logger  *observability.Logger
	service *catalog.Service
}

// NewComparisonHandler creates a new comparison handler.
func NewComparisonHandler(logger *observability.Logger, service *catalog.Service) *ComparisonHandler {
	return &ComparisonHandler{logger: logger, service: service}
}

// AddProductDTO is the body of an add-to-session request.
type AddProductDTO struct {
	ProductID string `json:"product_id"`
}

// Compare handles GET /compare?product_ids=a,b.
func (h *ComparisonHandler) Compare(w http.ResponseWriter, r *http.Request) {
	ids := splitList(r.URL.Query().Get("product_ids"))
	if len(ids) == 0 {
		writeError(w, http.StatusBadRequest, "product_ids is required", "")
		return
	}

	h.logger.WithContext(r.Context()).Debug().
		Strs("product_ids", ids).
		Msg("Processing comparison query")

	resp, err := h.service.Compare(r.Context(), ids)
	if err != nil {
		writeServiceError(w, r, h.logger, "compare", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateSession handles POST /compare/sessions.
func (h *ComparisonHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.CreateSession(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "create_session", err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// GetSession handles GET /compare/sessions/{sessionId}.
func (h *ComparisonHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.GetSession(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		writeServiceError(w, r, h.logger, "get_session", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// AddProduct handles POST /compare/sessions/{sessionId}/products.
func (h *ComparisonHandler) AddProduct(w http.ResponseWriter, r *http.Request) {
	var req AddProductDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "product_id is required", "")
		return
	}

	resp, err := h.service.AddToSession(r.Context(), chi.URLParam(r, "sessionId"), req.ProductID)
	if err != nil {
		writeServiceError(w, r, h.logger, "add_to_session", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// RemoveProduct handles DELETE /compare/sessions/{sessionId}/products/{productId}.
func (h *ComparisonHandler) RemoveProduct(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.RemoveFromSession(r.Context(), chi.URLParam(r, "sessionId"), chi.URLParam(r, "productId"))
	if err != nil {
		writeServiceError(w, r, h.logger, "remove_from_session", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ClearSession handles DELETE /compare/sessions/{sessionId}.
func (h *ComparisonHandler) ClearSession(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.ClearSession(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		writeServiceError(w, r, h.logger, "clear_session", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
