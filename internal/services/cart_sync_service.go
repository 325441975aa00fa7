package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/evergrove/storefront/internal/repositories"
)

var (
	errSyncGuestStoreRequired = errors.New("cart sync service: guest cart repository is required")
	errSyncBackendRequired    = errors.New("cart sync service: server cart client is required")
	errSyncLocksRequired      = errors.New("cart sync service: session locks are required")
)

// ErrSyncInvalidInput indicates the caller supplied invalid input.
var ErrSyncInvalidInput = errors.New("cart sync service: invalid input")

// ErrSyncInProgress indicates a sync already owns the session.
var ErrSyncInProgress = errors.New("cart sync service: sync already in progress")

// ErrSyncGuestUnavailable indicates the guest cart store could not be read.
var ErrSyncGuestUnavailable = errors.New("cart sync service: guest cart unavailable")

// ErrSyncFetchFailed indicates the server cart could not be read or cleared
// before any re-add was issued. The guest cart is left intact so the sync can
// be retried on the next login attempt.
var ErrSyncFetchFailed = errors.New("cart sync service: server cart fetch failed")

// CartSyncServiceDeps wires the stores, backend client, and reporting hook
// driving the login-time merge.
type CartSyncServiceDeps struct {
	GuestCarts repositories.GuestCartRepository
	Backend    ServerCartClient
	Locks      *SessionLocks
	Reporter   SyncReporter
	Logger     func(context.Context, string, map[string]any)
}

type cartSyncService struct {
	guests   repositories.GuestCartRepository
	backend  ServerCartClient
	locks    *SessionLocks
	reporter SyncReporter
	logger   func(context.Context, string, map[string]any)
}

// NewCartSyncService constructs a CartSyncService enforcing dependency validation.
func NewCartSyncService(deps CartSyncServiceDeps) (CartSyncService, error) {
	if deps.GuestCarts == nil {
		return nil, errSyncGuestStoreRequired
	}
	if deps.Backend == nil {
		return nil, errSyncBackendRequired
	}
	if deps.Locks == nil {
		return nil, errSyncLocksRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &cartSyncService{
		guests:   deps.GuestCarts,
		backend:  deps.Backend,
		locks:    deps.Locks,
		reporter: deps.Reporter,
		logger:   logger,
	}, nil
}

// SyncOnLogin merges the guest cart into the server cart and disposes of the
// guest state.
//
// The guest cart is read exactly once and treated as frozen: the session lock
// held for the duration makes concurrent guest mutations fail fast instead of
// interleaving with the merge. Failures before the first server write abort
// the sync with the guest cart intact; once the replay starts, the routine
// runs to completion best-effort and the guest cart is cleared unconditionally
// at the end, accepting the loss of any lines whose re-add failed rather than
// risking a double merge on a later login.
func (s *cartSyncService) SyncOnLogin(ctx context.Context, cmd SyncOnLoginCommand) (SyncResult, error) {
	if s == nil || s.guests == nil || s.backend == nil {
		return SyncResult{}, ErrSyncFetchFailed
	}

	sessionID := strings.TrimSpace(cmd.SessionID)
	userID := strings.TrimSpace(cmd.UserID)
	token := strings.TrimSpace(cmd.Token)
	if sessionID == "" || userID == "" || token == "" {
		return SyncResult{}, ErrSyncInvalidInput
	}

	if !s.locks.Acquire(sessionID) {
		return SyncResult{}, ErrSyncInProgress
	}
	defer s.locks.Release(sessionID)

	guestItems, err := s.guests.Load(ctx, sessionID)
	if err != nil {
		return SyncResult{}, fmt.Errorf("%w: %v", ErrSyncGuestUnavailable, err)
	}

	// Fast path: nothing to merge, the server cart is already the merged
	// set. The guest document is still erased so a stale empty file cannot
	// shadow a later session.
	if len(guestItems) == 0 {
		result := SyncResult{Skipped: true}
		if err := s.guests.Delete(ctx, sessionID); err != nil {
			s.logger(ctx, "cart_sync.guest_clear_failed", map[string]any{
				"userID": userID,
				"error":  err.Error(),
			})
		} else {
			result.GuestCleared = true
		}
		return result, nil
	}

	serverItems, err := s.backend.GetCart(ctx, token)
	if err != nil {
		s.logger(ctx, "cart_sync.fetch_failed", map[string]any{
			"userID": userID,
			"error":  err.Error(),
		})
		return SyncResult{}, fmt.Errorf("%w: %v", ErrSyncFetchFailed, err)
	}

	merged := MergeCarts(guestItems, serverItems)

	// Clearing precedes every re-add; a failure here still leaves the server
	// cart unchanged, so the guest cart is preserved for retry.
	if err := s.backend.Clear(ctx, token); err != nil {
		s.logger(ctx, "cart_sync.clear_failed", map[string]any{
			"userID": userID,
			"error":  err.Error(),
		})
		return SyncResult{}, fmt.Errorf("%w: %v", ErrSyncFetchFailed, err)
	}

	result := SyncResult{Merged: merged}

	for _, item := range merged {
		if _, err := s.backend.AddItem(ctx, token, item.WithoutClientID()); err != nil {
			key := item.LineKey()
			result.Dropped = append(result.Dropped, DroppedLine{
				Key:      key,
				Quantity: item.Quantity,
				Reason:   err.Error(),
			})
			s.logger(ctx, "cart_sync.replay_item_failed", map[string]any{
				"userID":   userID,
				"kind":     string(key.Kind),
				"sku":      key.SKU,
				"treeID":   key.TreeID,
				"planID":   key.PlanID,
				"quantity": item.Quantity,
				"error":    err.Error(),
			})
		}
	}

	// The guest cart is erased regardless of replay failures: a stale copy
	// would double-merge on the next login.
	if err := s.guests.Delete(ctx, sessionID); err != nil {
		s.logger(ctx, "cart_sync.guest_clear_failed", map[string]any{
			"userID": userID,
			"error":  err.Error(),
		})
	} else {
		result.GuestCleared = true
	}

	if len(result.Dropped) > 0 && s.reporter != nil {
		report := SyncDropReport{UserID: userID, SessionID: sessionID, Dropped: result.Dropped}
		if err := s.reporter.ReportDroppedItems(ctx, report); err != nil {
			s.logger(ctx, "cart_sync.report_failed", map[string]any{
				"userID": userID,
				"error":  err.Error(),
			})
		}
	}

	return result, nil
}
