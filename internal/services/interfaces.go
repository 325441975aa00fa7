package services

import (
	"context"

	domain "github.com/evergrove/storefront/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	CartItem          = domain.CartItem
	CartItemKind      = domain.CartItemKind
	Dedication        = domain.Dedication
	LineKey           = domain.LineKey
	Product           = domain.Product
	ProductVariant    = domain.ProductVariant
	VariantAttributes = domain.VariantAttributes
	VariantOption     = domain.VariantOption
	VariantOptions    = domain.VariantOptions
)

// GuestCartService owns the locally persisted cart of an unauthenticated
// session. All mutations are applied synchronously against the backing store;
// no operation touches the network.
type GuestCartService interface {
	Items(ctx context.Context, sessionID string) ([]CartItem, error)
	AddItem(ctx context.Context, cmd AddGuestItemCommand) ([]CartItem, error)
	UpdateItem(ctx context.Context, cmd UpdateGuestItemCommand) ([]CartItem, error)
	RemoveItem(ctx context.Context, sessionID, clientID string) ([]CartItem, error)
	Clear(ctx context.Context, sessionID string) error
}

// AddGuestItemCommand describes a line to add to a guest cart.
type AddGuestItemCommand struct {
	SessionID string
	Item      CartItem
}

// UpdateGuestItemCommand patches an existing guest line by its client id.
// Dedication participates only when DedicationSet is true, so callers can
// distinguish "clear" from "leave untouched".
type UpdateGuestItemCommand struct {
	SessionID     string
	ClientID      string
	Quantity      *int
	Dedication    *Dedication
	DedicationSet bool
}

// ServerCartClient is the narrow request layer over the authenticated cart
// endpoints of the commerce backend. It keeps no local state; the backend cart
// is authoritative whenever the user is signed in.
type ServerCartClient interface {
	GetCart(ctx context.Context, token string) ([]CartItem, error)
	AddItem(ctx context.Context, token string, item CartItem) (CartItem, error)
	UpdateItem(ctx context.Context, token, itemID string, patch ServerCartItemPatch) (CartItem, error)
	RemoveItem(ctx context.Context, token, itemID string) error
	Clear(ctx context.Context, token string) error
}

// ServerCartItemPatch is the partial update accepted by the backend item endpoint.
type ServerCartItemPatch struct {
	Quantity      *int
	Dedication    *Dedication
	DedicationSet bool
}

// CartSyncService replays a guest cart into the server cart exactly once per
// login transition.
type CartSyncService interface {
	SyncOnLogin(ctx context.Context, cmd SyncOnLoginCommand) (SyncResult, error)
}

// SyncOnLoginCommand identifies the guest session being merged and the
// credential established by the authentication collaborator.
type SyncOnLoginCommand struct {
	SessionID string
	UserID    string
	Token     string
}

// DroppedLine records a merged line the replay could not persist server-side.
type DroppedLine struct {
	Key      LineKey
	Quantity int
	Reason   string
}

// SyncResult summarises a completed login sync.
type SyncResult struct {
	// Skipped is true when the guest cart was empty and no network call was made.
	Skipped bool
	// Merged is the item set the server cart was asked to contain.
	Merged []CartItem
	// Dropped lists merged lines whose re-add failed; they are absent from the
	// server cart and are not retried.
	Dropped []DroppedLine
	// GuestCleared reports whether the guest cart erase succeeded.
	GuestCleared bool
}

// SyncDropReport is handed to the reporter when a replay loses lines.
type SyncDropReport struct {
	UserID    string
	SessionID string
	Dropped   []DroppedLine
}

// SyncReporter receives best-effort notifications about lines dropped during
// a login sync.
type SyncReporter interface {
	ReportDroppedItems(ctx context.Context, report SyncDropReport) error
}

// ProductFinder fetches a product with its variant matrix from the catalog
// collaborator.
type ProductFinder interface {
	FindProduct(ctx context.Context, productID string) (Product, error)
}

// SystemHealthReport mirrors the domain health aggregate for handler use.
type SystemHealthReport = domain.SystemHealthReport

// SystemService provides operational reporting for health endpoints.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}
