package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/catalog"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/observability"
)

// OfferHandler serves variant offer lookups.
type OfferHandler struct {
	logger  *observability.Logger
	service *catalog.Service
}

// NewOfferHandler creates a new offer handler.
func NewOfferHandler(logger *observability.Logger, service *catalog.Service) *OfferHandler {
	return &OfferHandler{logger: logger, service: service}
}

// BatchRequestDTO lists the variants to price.
type BatchRequestDTO struct {
	VariantIDs []string `json:"variant_ids"`
}

// Variant handles GET /offers/variant/{variantId}.
func (h *OfferHandler) Variant(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.VariantOffers(r.Context(), chi.URLParam(r, "variantId"))
	if err != nil {
		writeServiceError(w, r, h.logger, "variant_offers", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Batch handles POST /offers/batch.
func (h *OfferHandler) Batch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	resp, err := h.service.BatchCheapest(r.Context(), req.VariantIDs)
	if err != nil {
		writeServiceError(w, r, h.logger, "batch_offers", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
