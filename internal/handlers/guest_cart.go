package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/evergrove/storefront/internal/domain"
	"github.com/evergrove/storefront/internal/platform/httpx"
	"github.com/evergrove/storefront/internal/services"
)

// GuestSessionHeader carries the anonymous session identifier minted by the
// web client. Guest cart endpoints refuse requests without it.
const GuestSessionHeader = "X-Guest-Session"

// GuestCartHandlers exposes the anonymous cart endpoints backed by local storage.
type GuestCartHandlers struct {
	guests  services.GuestCartService
	limiter RateLimiter
}

// GuestCartOption customises GuestCartHandlers construction.
type GuestCartOption func(*GuestCartHandlers)

// WithGuestRateLimiter throttles guest cart mutations per session.
func WithGuestRateLimiter(limiter RateLimiter) GuestCartOption {
	return func(h *GuestCartHandlers) {
		h.limiter = limiter
	}
}

// NewGuestCartHandlers constructs handlers over the guest cart service.
func NewGuestCartHandlers(guests services.GuestCartService, opts ...GuestCartOption) *GuestCartHandlers {
	h := &GuestCartHandlers{guests: guests}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the guest cart endpoints onto the provided router.
func (h *GuestCartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.getCart)
	r.Post("/items", h.addItem)
	r.Patch("/items/{clientId}", h.updateItem)
	r.Delete("/items/{clientId}", h.removeItem)
	r.Delete("/", h.clearCart)
}

func (h *GuestCartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.sessionID(ctx, w, r)
	if !ok {
		return
	}

	items, err := h.guests.Items(ctx, sessionID)
	if err != nil {
		writeGuestCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartResponse(items))
}

type guestAddItemRequest struct {
	Type       string                 `json:"type"`
	SKU        string                 `json:"sku"`
	TreeID     string                 `json:"tree_id"`
	PlanID     string                 `json:"plan_id"`
	Quantity   int                    `json:"quantity"`
	UnitPrice  int64                  `json:"unit_price"`
	Name       string                 `json:"name"`
	ImageURL   string                 `json:"image_url"`
	Dedication *dedicationJSONPayload `json:"dedication"`
}

func (h *GuestCartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.sessionID(ctx, w, r)
	if !ok {
		return
	}
	if !h.allow(ctx, w, sessionID) {
		return
	}

	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req guestAddItemRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "malformed JSON body", http.StatusBadRequest))
		return
	}

	items, err := h.guests.AddItem(ctx, services.AddGuestItemCommand{
		SessionID: sessionID,
		Item: domain.CartItem{
			Kind:       domain.CartItemKind(strings.TrimSpace(req.Type)),
			SKU:        req.SKU,
			TreeID:     req.TreeID,
			PlanID:     req.PlanID,
			Quantity:   req.Quantity,
			UnitPrice:  req.UnitPrice,
			Name:       req.Name,
			ImageURL:   req.ImageURL,
			Dedication: dedicationFromJSON(req.Dedication),
		},
	})
	if err != nil {
		writeGuestCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildCartResponse(items))
}

type guestUpdateItemRequest struct {
	Quantity   *int            `json:"quantity"`
	Dedication json.RawMessage `json:"dedication"`
}

func (h *GuestCartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.sessionID(ctx, w, r)
	if !ok {
		return
	}
	if !h.allow(ctx, w, sessionID) {
		return
	}

	clientID := strings.TrimSpace(chi.URLParam(r, "clientId"))
	if clientID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "client id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req guestUpdateItemRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "malformed JSON body", http.StatusBadRequest))
		return
	}
	if req.Quantity == nil && len(req.Dedication) == 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", errNoEditableFields.Error(), http.StatusBadRequest))
		return
	}

	cmd := services.UpdateGuestItemCommand{
		SessionID: sessionID,
		ClientID:  clientID,
		Quantity:  req.Quantity,
	}
	if len(req.Dedication) > 0 {
		cmd.DedicationSet = true
		if !isJSONNull(req.Dedication) {
			var dedication dedicationJSONPayload
			if err := json.Unmarshal(req.Dedication, &dedication); err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "malformed dedication", http.StatusBadRequest))
				return
			}
			cmd.Dedication = dedicationFromJSON(&dedication)
		}
	}

	items, err := h.guests.UpdateItem(ctx, cmd)
	if err != nil {
		writeGuestCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartResponse(items))
}

func (h *GuestCartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.sessionID(ctx, w, r)
	if !ok {
		return
	}
	if !h.allow(ctx, w, sessionID) {
		return
	}

	clientID := strings.TrimSpace(chi.URLParam(r, "clientId"))
	if clientID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "client id is required", http.StatusBadRequest))
		return
	}

	items, err := h.guests.RemoveItem(ctx, sessionID, clientID)
	if err != nil {
		writeGuestCartError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildCartResponse(items))
}

func (h *GuestCartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.sessionID(ctx, w, r)
	if !ok {
		return
	}
	if !h.allow(ctx, w, sessionID) {
		return
	}

	if err := h.guests.Clear(ctx, sessionID); err != nil {
		writeGuestCartError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *GuestCartHandlers) sessionID(ctx context.Context, w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.guests == nil {
		httpx.WriteError(ctx, w, httpx.NewError("guest_cart_unavailable", "guest cart service is unavailable", http.StatusServiceUnavailable))
		return "", false
	}
	sessionID := strings.TrimSpace(r.Header.Get(GuestSessionHeader))
	if sessionID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("missing_guest_session", "guest session header is required", http.StatusBadRequest))
		return "", false
	}
	return sessionID, true
}

func (h *GuestCartHandlers) allow(ctx context.Context, w http.ResponseWriter, sessionID string) bool {
	if h.limiter == nil {
		return true
	}
	if h.limiter.Allow(sessionID) {
		return true
	}
	httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many cart requests; retry later", http.StatusTooManyRequests))
	return false
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func writeGuestCartError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrGuestCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrGuestCartNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_item_not_found", "cart item not found", http.StatusNotFound))
	case errors.Is(err, services.ErrGuestCartLocked):
		httpx.WriteError(ctx, w, httpx.NewError("sync_in_progress", "cart is being synced; retry shortly", http.StatusConflict))
	case errors.Is(err, services.ErrGuestCartUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("guest_cart_unavailable", "guest cart storage is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected cart failure", http.StatusInternalServerError))
	}
}
