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
	"github.com/evergrove/storefront/internal/platform/auth"
	"github.com/evergrove/storefront/internal/platform/httpx"
	"github.com/evergrove/storefront/internal/services"
)

// CartHandlers proxies authenticated cart operations to the commerce backend.
// The backend cart is authoritative; nothing is cached locally.
type CartHandlers struct {
	authn *auth.Authenticator
	carts services.ServerCartClient
}

// NewCartHandlers constructs handlers enforcing Firebase authentication before
// forwarding to the backend cart client.
func NewCartHandlers(authn *auth.Authenticator, carts services.ServerCartClient) *CartHandlers {
	return &CartHandlers{
		authn: authn,
		carts: carts,
	}
}

// Routes wires the authenticated cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireSession())
	}
	r.Get("/", h.getCart)
	r.Post("/items", h.addItem)
	r.Put("/items/{itemId}", h.updateItem)
	r.Delete("/items/{itemId}", h.removeItem)
	r.Delete("/", h.clearCart)
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token, ok := h.token(ctx, w)
	if !ok {
		return
	}

	items, err := h.carts.GetCart(ctx, token)
	if err != nil {
		writeBackendError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartResponse(items))
}

type serverAddItemRequest struct {
	Type       string                 `json:"type"`
	SKU        string                 `json:"sku"`
	TreeID     string                 `json:"tree_id"`
	PlanID     string                 `json:"plan_id"`
	Quantity   int                    `json:"quantity"`
	Dedication *dedicationJSONPayload `json:"dedication"`
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token, ok := h.token(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req serverAddItemRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "malformed JSON body", http.StatusBadRequest))
		return
	}

	item, err := h.carts.AddItem(ctx, token, domain.CartItem{
		Kind:       domain.CartItemKind(strings.TrimSpace(req.Type)),
		SKU:        req.SKU,
		TreeID:     req.TreeID,
		PlanID:     req.PlanID,
		Quantity:   req.Quantity,
		Dedication: dedicationFromJSON(req.Dedication),
	})
	if err != nil {
		writeBackendError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{"item": buildCartItemPayload(item)})
}

type serverUpdateItemRequest struct {
	Quantity   *int            `json:"quantity"`
	Dedication json.RawMessage `json:"dedication"`
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token, ok := h.token(ctx, w)
	if !ok {
		return
	}

	itemID := strings.TrimSpace(chi.URLParam(r, "itemId"))
	if itemID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "item id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req serverUpdateItemRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "malformed JSON body", http.StatusBadRequest))
		return
	}
	if req.Quantity == nil && len(req.Dedication) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", errNoEditableFields.Error(), http.StatusBadRequest))
		return
	}

	patch := services.ServerCartItemPatch{Quantity: req.Quantity}
	if len(req.Dedication) > 0 {
		patch.DedicationSet = true
		if !isJSONNull(req.Dedication) {
			var dedication dedicationJSONPayload
			if err := json.Unmarshal(req.Dedication, &dedication); err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "malformed dedication", http.StatusBadRequest))
				return
			}
			patch.Dedication = dedicationFromJSON(&dedication)
		}
	}

	item, err := h.carts.UpdateItem(ctx, token, itemID, patch)
	if err != nil {
		writeBackendError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"item": buildCartItemPayload(item)})
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token, ok := h.token(ctx, w)
	if !ok {
		return
	}

	itemID := strings.TrimSpace(chi.URLParam(r, "itemId"))
	if itemID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "item id is required", http.StatusBadRequest))
		return
	}

	if err := h.carts.RemoveItem(ctx, token, itemID); err != nil {
		writeBackendError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token, ok := h.token(ctx, w)
	if !ok {
		return
	}

	if err := h.carts.Clear(ctx, token); err != nil {
		writeBackendError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandlers) token(ctx context.Context, w http.ResponseWriter) (string, bool) {
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return "", false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.RawToken) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return "", false
	}
	return identity.RawToken, true
}

func writeBackendError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, backend.ErrUnauthorized):
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "backend rejected the credential", http.StatusUnauthorized))
	case errors.Is(err, backend.ErrNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_item_not_found", "cart item not found", http.StatusNotFound))
	case errors.Is(err, backend.ErrInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, backend.ErrUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("backend_unavailable", "commerce backend is unavailable", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected cart failure", http.StatusInternalServerError))
	}
}
