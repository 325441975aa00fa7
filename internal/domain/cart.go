package domain

import (
	"math"
	"strings"
)

// CartItemKind discriminates the purchasable line types a cart can hold.
type CartItemKind string

const (
	// CartItemKindProduct references a concrete product variant by SKU.
	CartItemKindProduct CartItemKind = "product"
	// CartItemKindSponsor references a tree sponsorship plan.
	CartItemKindSponsor CartItemKind = "sponsor"
	// CartItemKindAdopt references a tree adoption plan.
	CartItemKindAdopt CartItemKind = "adopt"
)

// IsTree reports whether the kind is one of the tree purchase kinds.
func (k CartItemKind) IsTree() bool {
	return k == CartItemKindSponsor || k == CartItemKindAdopt
}

// Valid reports whether the kind is one of the known discriminants.
func (k CartItemKind) Valid() bool {
	switch k {
	case CartItemKindProduct, CartItemKindSponsor, CartItemKindAdopt:
		return true
	}
	return false
}

// Dedication carries the decorative message attached to a tree purchase.
// It never participates in line identity.
type Dedication struct {
	Name     string
	Occasion string
	Message  string
}

// CartItem is a single cart line. Kind selects which reference fields are
// meaningful: product lines carry SKU, tree lines carry TreeID and PlanID.
type CartItem struct {
	// ClientID exists only while the item lives in a guest cart and must
	// never be sent to the backend.
	ClientID string
	// ServerID is assigned by the backend once the line is persisted.
	ServerID string

	Kind CartItemKind

	SKU    string
	TreeID string
	PlanID string

	Quantity  int
	UnitPrice int64

	Name       string
	ImageURL   string
	Dedication *Dedication
}

// LineKey is the identity of a purchasable line. Two items represent the same
// line exactly when their keys are equal; price, quantity and dedication are
// excluded.
type LineKey struct {
	Kind   CartItemKind
	SKU    string
	TreeID string
	PlanID string
}

// LineKey computes the identity key for the item. The key is total: it is
// derivable for any item without side effects, including malformed ones.
func (i CartItem) LineKey() LineKey {
	key := LineKey{Kind: i.Kind}
	if i.Kind.IsTree() {
		key.TreeID = strings.TrimSpace(i.TreeID)
		key.PlanID = strings.TrimSpace(i.PlanID)
		return key
	}
	key.SKU = strings.TrimSpace(i.SKU)
	return key
}

// IsZero reports whether every identifying field of the key is empty.
func (k LineKey) IsZero() bool {
	return k.Kind == "" && k.SKU == "" && k.TreeID == "" && k.PlanID == ""
}

// WithoutClientID returns a copy of the item with the guest-only id stripped.
func (i CartItem) WithoutClientID() CartItem {
	dup := i.Clone()
	dup.ClientID = ""
	return dup
}

// Clone returns a deep copy of the item.
func (i CartItem) Clone() CartItem {
	dup := i
	if i.Dedication != nil {
		ded := *i.Dedication
		dup.Dedication = &ded
	}
	return dup
}

// CloneCartItems deep-copies a slice of cart items, returning an empty
// non-nil slice for empty input.
func CloneCartItems(items []CartItem) []CartItem {
	out := make([]CartItem, 0, len(items))
	for _, item := range items {
		out = append(out, item.Clone())
	}
	return out
}

// SaturatingAddQuantity sums two quantities, clamping at the int bounds so
// oversized carts never wrap negative.
func SaturatingAddQuantity(a, b int) int {
	sum := a + b
	if a > 0 && b > 0 && sum < 0 {
		return math.MaxInt
	}
	if a < 0 && b < 0 && sum > 0 {
		return math.MinInt
	}
	return sum
}
