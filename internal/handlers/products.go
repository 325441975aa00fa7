package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/evergrove/storefront/internal/backend"
	domain "github.com/evergrove/storefront/internal/domain"
	"github.com/evergrove/storefront/internal/platform/httpx"
	"github.com/evergrove/storefront/internal/services"
)

// ProductHandlers resolves variant selections against a product's option matrix.
type ProductHandlers struct {
	catalog services.ProductFinder
}

// NewProductHandlers constructs handlers over the catalog collaborator.
func NewProductHandlers(catalog services.ProductFinder) *ProductHandlers {
	return &ProductHandlers{catalog: catalog}
}

// Routes wires the product endpoints onto the provided router.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/{productId}/selection", h.resolveSelection)
}

type selectionRequest struct {
	SizeID    string `json:"size_id"`
	PlanterID string `json:"planter_id"`
	ColorID   string `json:"color_id"`
	Quantity  int    `json:"quantity"`
}

type selectionResponse struct {
	Selection selectionPayload       `json:"selection"`
	Variant   *variantPayload        `json:"variant"`
	Options   selectionOptionPayload `json:"options"`
}

type selectionPayload struct {
	SizeID      string `json:"size_id"`
	PlanterID   string `json:"planter_id"`
	ColorID     string `json:"color_id"`
	Quantity    int    `json:"quantity"`
	Purchasable bool   `json:"purchasable"`
}

type variantPayload struct {
	ID            string `json:"id"`
	SKU           string `json:"sku"`
	UnitPrice     int64  `json:"unit_price"`
	StockQuantity int    `json:"stock_quantity"`
	ImageURL      string `json:"image_url,omitempty"`
}

type selectionOptionPayload struct {
	Sizes    []optionPayload `json:"sizes"`
	Planters []optionPayload `json:"planters"`
	Colors   []optionPayload `json:"colors"`
}

type optionPayload struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Swatch string `json:"swatch,omitempty"`
}

func (h *ProductHandlers) resolveSelection(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	productID := strings.TrimSpace(chi.URLParam(r, "productId"))
	if productID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil && !errors.Is(err, errEmptyBody) {
		writeBodyError(ctx, w, err)
		return
	}

	var req selectionRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "malformed JSON body", http.StatusBadRequest))
			return
		}
	}

	product, err := h.catalog.FindProduct(ctx, productID)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	controller := services.NewSelectionController(product)
	controller.Initialize(services.Selection{
		SizeID:    req.SizeID,
		PlanterID: req.PlanterID,
		ColorID:   req.ColorID,
		Quantity:  req.Quantity,
	})

	selection := controller.Selection()
	payload := selectionResponse{
		Selection: selectionPayload{
			SizeID:      selection.SizeID,
			PlanterID:   selection.PlanterID,
			ColorID:     selection.ColorID,
			Quantity:    selection.Quantity,
			Purchasable: selection.Purchasable(),
		},
		Options: selectionOptionPayload{
			Sizes:    buildOptionPayloads(controller.AvailableSizes()),
			Planters: buildOptionPayloads(controller.AvailablePlanters()),
			Colors:   buildOptionPayloads(controller.AvailableColors()),
		},
	}
	if selection.Variant != nil {
		payload.Variant = &variantPayload{
			ID:            selection.Variant.ID,
			SKU:           selection.Variant.SKU,
			UnitPrice:     selection.Variant.UnitPrice,
			StockQuantity: selection.Variant.StockQuantity,
			ImageURL:      selection.Variant.ImageURL,
		}
	}

	writeJSONResponse(w, http.StatusOK, payload)
}

func buildOptionPayloads(options []domain.VariantOption) []optionPayload {
	out := make([]optionPayload, 0, len(options))
	for _, opt := range options {
		out = append(out, optionPayload{ID: opt.ID, Label: opt.Label, Swatch: opt.Swatch})
	}
	return out
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, backend.ErrNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, backend.ErrInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, backend.ErrUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("backend_unavailable", "catalog backend is unavailable", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected catalog failure", http.StatusInternalServerError))
	}
}
