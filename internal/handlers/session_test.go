package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/evergrove/storefront/internal/domain"
	"github.com/evergrove/storefront/internal/platform/auth"
	"github.com/evergrove/storefront/internal/services"
)

type stubSyncService struct {
	result services.SyncResult
	err    error

	lastCmd *services.SyncOnLoginCommand
}

func (s *stubSyncService) SyncOnLogin(_ context.Context, cmd services.SyncOnLoginCommand) (services.SyncResult, error) {
	s.lastCmd = &cmd
	return s.result, s.err
}

func newSessionRouter(h *SessionHandlers, identity *auth.Identity) chi.Router {
	r := chi.NewRouter()
	if identity != nil {
		r.Use(identityMiddleware(identity))
	}
	r.Route("/session", h.Routes)
	return r
}

func syncRequest() *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/session/sync", nil)
	req.Header.Set(GuestSessionHeader, "sess-1")
	return req
}

func TestSessionSyncPassesIdentityAndSession(t *testing.T) {
	svc := &stubSyncService{result: services.SyncResult{
		Merged: []domain.CartItem{
			{ServerID: "srv-1", Kind: domain.CartItemKindProduct, SKU: "OAK-S", Quantity: 3},
		},
		GuestCleared: true,
	}}
	router := newSessionRouter(NewSessionHandlers(nil, svc), testIdentity())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, syncRequest())

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if svc.lastCmd == nil {
		t.Fatal("sync service never called")
	}
	if svc.lastCmd.SessionID != "sess-1" || svc.lastCmd.UserID != "user-1" || svc.lastCmd.Token != "token-abc" {
		t.Fatalf("cmd = %+v", svc.lastCmd)
	}

	var payload struct {
		Skipped      bool             `json:"skipped"`
		Merged       []map[string]any `json:"merged"`
		Dropped      []map[string]any `json:"dropped"`
		GuestCleared bool             `json:"guest_cleared"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Skipped || !payload.GuestCleared {
		t.Fatalf("payload = %+v", payload)
	}
	if len(payload.Merged) != 1 || payload.Merged[0]["id"] != "srv-1" {
		t.Fatalf("merged = %+v", payload.Merged)
	}
	if len(payload.Dropped) != 0 {
		t.Fatalf("dropped = %+v", payload.Dropped)
	}
}

func TestSessionSyncReportsDroppedLines(t *testing.T) {
	svc := &stubSyncService{result: services.SyncResult{
		Dropped: []services.DroppedLine{
			{
				Key:      domain.LineKey{Kind: domain.CartItemKindProduct, SKU: "PINE-M"},
				Quantity: 2,
				Reason:   "out of stock",
			},
		},
		GuestCleared: true,
	}}
	router := newSessionRouter(NewSessionHandlers(nil, svc), testIdentity())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, syncRequest())

	var payload struct {
		Dropped []map[string]any `json:"dropped"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Dropped) != 1 {
		t.Fatalf("dropped = %+v", payload.Dropped)
	}
	line := payload.Dropped[0]
	if line["sku"] != "PINE-M" || line["reason"] != "out of stock" || line["quantity"] != float64(2) {
		t.Fatalf("dropped line = %+v", line)
	}
}

func TestSessionSyncRequiresIdentity(t *testing.T) {
	router := newSessionRouter(NewSessionHandlers(nil, &stubSyncService{}), nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, syncRequest())

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSessionSyncRequiresGuestSessionHeader(t *testing.T) {
	svc := &stubSyncService{}
	router := newSessionRouter(NewSessionHandlers(nil, svc), testIdentity())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/session/sync", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != "missing_guest_session" {
		t.Fatalf("error code = %q", code)
	}
	if svc.lastCmd != nil {
		t.Fatal("sync called without a guest session")
	}
}

func TestSessionSyncErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"in progress", services.ErrSyncInProgress, http.StatusConflict, "sync_in_progress"},
		{"guest unavailable", services.ErrSyncGuestUnavailable, http.StatusServiceUnavailable, "guest_cart_unavailable"},
		{"fetch failed", services.ErrSyncFetchFailed, http.StatusBadGateway, "backend_unavailable"},
		{"invalid input", services.ErrSyncInvalidInput, http.StatusBadRequest, "invalid_request"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newSessionRouter(NewSessionHandlers(nil, &stubSyncService{err: tc.err}), testIdentity())

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, syncRequest())

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if code := decodeErrorCode(t, rec); code != tc.wantCode {
				t.Fatalf("error code = %q, want %q", code, tc.wantCode)
			}
		})
	}
}

func TestSessionSyncRateLimitedPerUser(t *testing.T) {
	svc := &stubSyncService{result: services.SyncResult{Skipped: true, GuestCleared: true}}
	limiter := NewSimpleRateLimiter(1, time.Minute, nil)
	router := newSessionRouter(NewSessionHandlers(nil, svc, WithSyncRateLimiter(limiter)), testIdentity())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, syncRequest())
	if rec.Code != http.StatusOK {
		t.Fatalf("first sync status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, syncRequest())
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second sync status = %d, want 429", rec.Code)
	}
}
