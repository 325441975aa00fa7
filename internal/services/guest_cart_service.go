package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/oklog/ulid/v2"

	domain "github.com/evergrove/storefront/internal/domain"
	"github.com/evergrove/storefront/internal/repositories"
)

var errGuestCartRepositoryRequired = errors.New("guest cart service: repository is required")

// ErrGuestCartInvalidInput indicates the caller supplied invalid input.
var ErrGuestCartInvalidInput = errors.New("guest cart service: invalid input")

// ErrGuestCartNotFound indicates the referenced line does not exist in the guest cart.
var ErrGuestCartNotFound = errors.New("guest cart service: not found")

// ErrGuestCartUnavailable indicates the backing store cannot fulfil the request.
var ErrGuestCartUnavailable = errors.New("guest cart service: unavailable")

// ErrGuestCartLocked indicates a login sync currently owns the session's cart;
// mutations are rejected rather than interleaved with the merge.
var ErrGuestCartLocked = errors.New("guest cart service: sync in progress")

// GuestCartServiceDeps wires the store and lock registry for guest cart operations.
type GuestCartServiceDeps struct {
	Repository  repositories.GuestCartRepository
	Locks       *SessionLocks
	IDGenerator func() string
	Logger      func(context.Context, string, map[string]any)
}

type guestCartService struct {
	repo   repositories.GuestCartRepository
	locks  *SessionLocks
	newID  func() string
	logger func(context.Context, string, map[string]any)
}

// NewGuestCartService constructs a GuestCartService enforcing dependency validation.
func NewGuestCartService(deps GuestCartServiceDeps) (GuestCartService, error) {
	if deps.Repository == nil {
		return nil, errGuestCartRepositoryRequired
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &guestCartService{
		repo:   deps.Repository,
		locks:  deps.Locks,
		newID:  idGen,
		logger: logger,
	}, nil
}

// Items returns the current guest cart contents.
func (s *guestCartService) Items(ctx context.Context, sessionID string) ([]CartItem, error) {
	if s == nil || s.repo == nil {
		return nil, ErrGuestCartUnavailable
	}
	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return nil, ErrGuestCartInvalidInput
	}

	items, err := s.repo.Load(ctx, sid)
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return items, nil
}

// AddItem appends a line to the guest cart, accumulating quantity into an
// existing line when the identity key matches. This is the same law the merge
// engine applies at login, so guest-only accumulation and merge-time
// accumulation behave identically.
func (s *guestCartService) AddItem(ctx context.Context, cmd AddGuestItemCommand) ([]CartItem, error) {
	if s == nil || s.repo == nil {
		return nil, ErrGuestCartUnavailable
	}
	sid := strings.TrimSpace(cmd.SessionID)
	if sid == "" {
		return nil, ErrGuestCartInvalidInput
	}
	if s.locks.Active(sid) {
		return nil, ErrGuestCartLocked
	}
	if err := validateGuestItem(cmd.Item); err != nil {
		return nil, err
	}

	items, err := s.repo.Load(ctx, sid)
	if err != nil {
		return nil, s.translateRepoError(err)
	}

	incoming := cmd.Item.Clone()
	incoming.ServerID = ""
	incoming.Dedication = SanitizeDedication(incoming.Dedication)

	key := incoming.LineKey()
	matched := false
	for i := range items {
		if items[i].LineKey() == key {
			items[i].Quantity = domain.SaturatingAddQuantity(items[i].Quantity, incoming.Quantity)
			matched = true
			break
		}
	}
	if !matched {
		incoming.ClientID = strings.TrimSpace(s.newID())
		items = append(items, incoming)
	}

	if err := s.repo.Save(ctx, sid, items); err != nil {
		return nil, s.translateRepoError(err)
	}
	return items, nil
}

// UpdateItem patches quantity and/or dedication of an existing guest line.
func (s *guestCartService) UpdateItem(ctx context.Context, cmd UpdateGuestItemCommand) ([]CartItem, error) {
	if s == nil || s.repo == nil {
		return nil, ErrGuestCartUnavailable
	}
	sid := strings.TrimSpace(cmd.SessionID)
	clientID := strings.TrimSpace(cmd.ClientID)
	if sid == "" || clientID == "" {
		return nil, ErrGuestCartInvalidInput
	}
	if cmd.Quantity == nil && !cmd.DedicationSet {
		return nil, ErrGuestCartInvalidInput
	}
	if cmd.Quantity != nil && *cmd.Quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", ErrGuestCartInvalidInput)
	}
	if s.locks.Active(sid) {
		return nil, ErrGuestCartLocked
	}

	items, err := s.repo.Load(ctx, sid)
	if err != nil {
		return nil, s.translateRepoError(err)
	}

	idx := indexOfClientID(items, clientID)
	if idx < 0 {
		return nil, ErrGuestCartNotFound
	}

	if cmd.Quantity != nil {
		items[idx].Quantity = *cmd.Quantity
	}
	if cmd.DedicationSet {
		if !items[idx].Kind.IsTree() && cmd.Dedication != nil {
			return nil, fmt.Errorf("%w: dedication applies to tree lines only", ErrGuestCartInvalidInput)
		}
		items[idx].Dedication = SanitizeDedication(cmd.Dedication)
	}

	if err := s.repo.Save(ctx, sid, items); err != nil {
		return nil, s.translateRepoError(err)
	}
	return items, nil
}

// RemoveItem deletes a guest line by its client id.
func (s *guestCartService) RemoveItem(ctx context.Context, sessionID, clientID string) ([]CartItem, error) {
	if s == nil || s.repo == nil {
		return nil, ErrGuestCartUnavailable
	}
	sid := strings.TrimSpace(sessionID)
	cid := strings.TrimSpace(clientID)
	if sid == "" || cid == "" {
		return nil, ErrGuestCartInvalidInput
	}
	if s.locks.Active(sid) {
		return nil, ErrGuestCartLocked
	}

	items, err := s.repo.Load(ctx, sid)
	if err != nil {
		return nil, s.translateRepoError(err)
	}

	idx := indexOfClientID(items, cid)
	if idx < 0 {
		return nil, ErrGuestCartNotFound
	}
	items = append(items[:idx], items[idx+1:]...)

	if err := s.repo.Save(ctx, sid, items); err != nil {
		return nil, s.translateRepoError(err)
	}
	return items, nil
}

// Clear erases the guest cart. Clearing an empty cart succeeds.
func (s *guestCartService) Clear(ctx context.Context, sessionID string) error {
	if s == nil || s.repo == nil {
		return ErrGuestCartUnavailable
	}
	sid := strings.TrimSpace(sessionID)
	if sid == "" {
		return ErrGuestCartInvalidInput
	}
	if s.locks.Active(sid) {
		return ErrGuestCartLocked
	}

	if err := s.repo.Delete(ctx, sid); err != nil {
		return s.translateRepoError(err)
	}
	return nil
}

func validateGuestItem(item CartItem) error {
	if !item.Kind.Valid() {
		return fmt.Errorf("%w: unknown item kind %q", ErrGuestCartInvalidInput, item.Kind)
	}
	if item.Quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", ErrGuestCartInvalidInput)
	}
	if item.UnitPrice < 0 {
		return fmt.Errorf("%w: unit_price must be non-negative", ErrGuestCartInvalidInput)
	}
	if item.Kind.IsTree() {
		if strings.TrimSpace(item.TreeID) == "" || strings.TrimSpace(item.PlanID) == "" {
			return fmt.Errorf("%w: tree_id and plan_id are required", ErrGuestCartInvalidInput)
		}
		return nil
	}
	if strings.TrimSpace(item.SKU) == "" {
		return fmt.Errorf("%w: sku is required", ErrGuestCartInvalidInput)
	}
	if item.Dedication != nil {
		return fmt.Errorf("%w: dedication applies to tree lines only", ErrGuestCartInvalidInput)
	}
	return nil
}

func indexOfClientID(items []CartItem, clientID string) int {
	for i, item := range items {
		if strings.EqualFold(strings.TrimSpace(item.ClientID), clientID) {
			return i
		}
	}
	return -1
}

func (s *guestCartService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrGuestCartNotFound
		case repoErr.IsUnavailable():
			return ErrGuestCartUnavailable
		}
	}
	return ErrGuestCartUnavailable
}
