package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/evergrove/storefront/internal/platform/auth"
	"github.com/evergrove/storefront/internal/platform/httpx"
	"github.com/evergrove/storefront/internal/services"
)

// SessionHandlers exposes the login-time cart sync endpoint.
type SessionHandlers struct {
	authn   *auth.Authenticator
	sync    services.CartSyncService
	limiter RateLimiter
}

// SessionOption customises SessionHandlers construction.
type SessionOption func(*SessionHandlers)

// WithSyncRateLimiter throttles sync requests per user.
func WithSyncRateLimiter(limiter RateLimiter) SessionOption {
	return func(h *SessionHandlers) {
		h.limiter = limiter
	}
}

// NewSessionHandlers constructs handlers for session transitions.
func NewSessionHandlers(authn *auth.Authenticator, sync services.CartSyncService, opts ...SessionOption) *SessionHandlers {
	h := &SessionHandlers{
		authn: authn,
		sync:  sync,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the session endpoints onto the provided router.
func (h *SessionHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireSession())
	}
	r.Post("/sync", h.syncCart)
}

type syncResponse struct {
	Skipped      bool                 `json:"skipped"`
	Merged       []cartItemPayload    `json:"merged"`
	Dropped      []droppedLinePayload `json:"dropped"`
	GuestCleared bool                 `json:"guest_cleared"`
}

type droppedLinePayload struct {
	Type     string `json:"type"`
	SKU      string `json:"sku,omitempty"`
	TreeID   string `json:"tree_id,omitempty"`
	PlanID   string `json:"plan_id,omitempty"`
	Quantity int    `json:"quantity"`
	Reason   string `json:"reason"`
}

func (h *SessionHandlers) syncCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.sync == nil {
		httpx.WriteError(ctx, w, httpx.NewError("sync_unavailable", "cart sync service is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	sessionID := strings.TrimSpace(r.Header.Get(GuestSessionHeader))
	if sessionID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("missing_guest_session", "guest session header is required", http.StatusBadRequest))
		return
	}

	if h.limiter != nil && !h.limiter.Allow(identity.UID) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many sync requests; retry later", http.StatusTooManyRequests))
		return
	}

	result, err := h.sync.SyncOnLogin(ctx, services.SyncOnLoginCommand{
		SessionID: sessionID,
		UserID:    identity.UID,
		Token:     identity.RawToken,
	})
	if err != nil {
		writeSyncError(ctx, w, err)
		return
	}

	payload := syncResponse{
		Skipped:      result.Skipped,
		Merged:       make([]cartItemPayload, 0, len(result.Merged)),
		Dropped:      make([]droppedLinePayload, 0, len(result.Dropped)),
		GuestCleared: result.GuestCleared,
	}
	for _, item := range result.Merged {
		payload.Merged = append(payload.Merged, buildCartItemPayload(item))
	}
	for _, dropped := range result.Dropped {
		payload.Dropped = append(payload.Dropped, droppedLinePayload{
			Type:     string(dropped.Key.Kind),
			SKU:      dropped.Key.SKU,
			TreeID:   dropped.Key.TreeID,
			PlanID:   dropped.Key.PlanID,
			Quantity: dropped.Quantity,
			Reason:   dropped.Reason,
		})
	}

	writeJSONResponse(w, http.StatusOK, payload)
}

func writeSyncError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrSyncInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrSyncInProgress):
		httpx.WriteError(ctx, w, httpx.NewError("sync_in_progress", "a sync for this session is already running", http.StatusConflict))
	case errors.Is(err, services.ErrSyncGuestUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("guest_cart_unavailable", "guest cart storage is unavailable", http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrSyncFetchFailed):
		httpx.WriteError(ctx, w, httpx.NewError("backend_unavailable", "could not reach the commerce backend; guest cart preserved", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected sync failure", http.StatusInternalServerError))
	}
}
