package domain

import "strings"

// VariantOption is one selectable value on a variant axis.
type VariantOption struct {
	ID    string
	Label string
	// Swatch carries a display hint for colour options (hex or asset ref).
	Swatch string
}

// VariantAttributes binds the axis values of a single variant. An empty id
// means the axis does not apply to the variant.
type VariantAttributes struct {
	SizeID    string
	PlanterID string
	ColorID   string
}

// Equal reports attribute-tuple equality, treating absence as a value.
func (a VariantAttributes) Equal(b VariantAttributes) bool {
	return strings.TrimSpace(a.SizeID) == strings.TrimSpace(b.SizeID) &&
		strings.TrimSpace(a.PlanterID) == strings.TrimSpace(b.PlanterID) &&
		strings.TrimSpace(a.ColorID) == strings.TrimSpace(b.ColorID)
}

// ProductVariant binds one attribute tuple to a purchasable SKU.
type ProductVariant struct {
	ID            string
	SKU           string
	Attributes    VariantAttributes
	UnitPrice     int64
	StockQuantity int
	ImageURL      string
}

// VariantOptions lists the three attribute universes referenced by any
// variant of the product.
type VariantOptions struct {
	Sizes    []VariantOption
	Planters []VariantOption
	Colors   []VariantOption
}

// Product owns the flat variant matrix and its option universes.
type Product struct {
	ID             string
	Slug           string
	Name           string
	Description    string
	ImageURL       string
	Variants       []ProductVariant
	VariantOptions VariantOptions
}

// HasVariants reports whether the product carries a variant matrix.
func (p Product) HasVariants() bool {
	return len(p.Variants) > 0
}

// Tree captures a sponsorable or adoptable tree listing.
type Tree struct {
	ID       string
	Name     string
	Species  string
	Region   string
	ImageURL string
	Plans    []TreePlan
}

// TreePlan is one sponsorship or adoption duration plan for a tree.
type TreePlan struct {
	ID        string
	Kind      CartItemKind
	Label     string
	Months    int
	UnitPrice int64
}
