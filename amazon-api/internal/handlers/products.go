package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/FlavioMalvestitiJunior/bf-offers/amazon-api/internal/catalog"
	"github.com/FlavioMalvestitiJunior/bf-offers/amazon-api/internal/models"
)

// Catalog is the orchestration layer behind the product routes.
type Catalog interface {
	Enabled() bool
	Search(ctx context.Context, r catalog.SearchRequest) (*models.ProductsResponse, error)
	GetItems(ctx context.Context, r catalog.ItemsRequest) (*models.ProductsResponse, error)
	GetVariations(ctx context.Context, r catalog.VariationsRequest) (*models.ProductsResponse, error)
}

type ProductHandler struct {
	catalog Catalog
}

func NewProductHandler(c Catalog) *ProductHandler {
	return &ProductHandler{catalog: c}
}

type validationResponse struct {
	Success bool         `json:"success"`
	Error   string       `json:"error"`
	Details []FieldError `json:"details"`
}

// Search handles GET /api/amazon/search
func (h *ProductHandler) Search(w http.ResponseWriter, r *http.Request) {
	req, err := ParseSearch(r.URL.Query())
	if err != nil {
		writeValidationError(w, err)
		return
	}
	resp, err := h.catalog.Search(r.Context(), req)
	writeProducts(w, resp, err)
}

// Items handles GET /api/amazon/items
func (h *ProductHandler) Items(w http.ResponseWriter, r *http.Request) {
	req, err := ParseItems(r.URL.Query())
	if err != nil {
		writeValidationError(w, err)
		return
	}
	resp, err := h.catalog.GetItems(r.Context(), req)
	writeProducts(w, resp, err)
}

// Variations handles GET /api/amazon/variations
func (h *ProductHandler) Variations(w http.ResponseWriter, r *http.Request) {
	req, err := ParseVariations(r.URL.Query())
	if err != nil {
		writeValidationError(w, err)
		return
	}
	resp, err := h.catalog.GetVariations(r.Context(), req)
	writeProducts(w, resp, err)
}

// StatusFor maps catalog errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, catalog.ErrNotConfigured), errors.Is(err, catalog.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeProducts(w http.ResponseWriter, resp *models.ProductsResponse, err error) {
	if resp == nil {
		resp = &models.ProductsResponse{Items: []models.NormalizedItem{}, Error: "internal error"}
	}
	writeJSON(w, StatusFor(err), resp)
}

func writeValidationError(w http.ResponseWriter, err error) {
	body := validationResponse{Error: "Invalid parameters", Details: []FieldError{}}
	var verr *ValidationError
	if errors.As(err, &verr) {
		body.Details = verr.Fields
	}
	writeJSON(w, http.StatusBadRequest, body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to write response: %v", err)
	}
}
