package services

import (
	"strings"
)

// Selection captures the in-progress variant selection for one product page.
// When Variant is non-nil its attribute tuple equals the selected
// (size, planter, colour) tuple exactly.
type Selection struct {
	SizeID    string
	PlanterID string
	ColorID   string
	Variant   *ProductVariant
	Quantity  int
}

// Purchasable reports whether the settled selection resolved to an in-stock variant.
func (s Selection) Purchasable() bool {
	return s.Variant != nil && s.Variant.StockQuantity > 0
}

// SelectionController owns the selection state for a single product. It is a
// single-writer container constructed once per page session and mutated only
// through its methods; it performs no I/O.
//
// Every mutation re-derives the downstream axes: a planter invalidated by a
// size change is replaced with the first available planter, a colour
// invalidated by either is replaced with the first available colour, and the
// settled tuple is resolved against the variant matrix. Re-derivation is one
// bounded pass in axis order, so the state is stable after every mutation.
type SelectionController struct {
	product   Product
	selection Selection
}

// NewSelectionController constructs a controller for the product with an
// empty, re-derived selection.
func NewSelectionController(product Product) *SelectionController {
	c := &SelectionController{
		product:   product,
		selection: Selection{Quantity: 1},
	}
	c.rederive()
	return c
}

// Selection returns a copy of the current state.
func (c *SelectionController) Selection() Selection {
	if c == nil {
		return Selection{}
	}
	dup := c.selection
	if c.selection.Variant != nil {
		variant := *c.selection.Variant
		dup.Variant = &variant
	}
	return dup
}

// Product returns the product the controller was built for.
func (c *SelectionController) Product() Product {
	if c == nil {
		return Product{}
	}
	return c.product
}

// Initialize bulk-sets the selection, typically from a persisted page state,
// then re-derives it into a valid tuple.
func (c *SelectionController) Initialize(sel Selection) {
	if c == nil {
		return
	}
	c.selection = Selection{
		SizeID:    strings.TrimSpace(sel.SizeID),
		PlanterID: strings.TrimSpace(sel.PlanterID),
		ColorID:   strings.TrimSpace(sel.ColorID),
		Quantity:  sel.Quantity,
	}
	c.rederive()
}

// SetSize selects a size, clearing the downstream planter and colour axes
// before re-derivation.
func (c *SelectionController) SetSize(sizeID string) {
	if c == nil {
		return
	}
	c.selection.SizeID = strings.TrimSpace(sizeID)
	c.selection.PlanterID = ""
	c.selection.ColorID = ""
	c.rederive()
}

// SetPlanter selects a planter, clearing the downstream colour axis before
// re-derivation.
func (c *SelectionController) SetPlanter(planterID string) {
	if c == nil {
		return
	}
	c.selection.PlanterID = strings.TrimSpace(planterID)
	c.selection.ColorID = ""
	c.rederive()
}

// SetColor selects a colour; size and planter are upstream and stay untouched.
func (c *SelectionController) SetColor(colorID string) {
	if c == nil {
		return
	}
	c.selection.ColorID = strings.TrimSpace(colorID)
	c.rederive()
}

// SetQuantity requests a quantity; it is clamped against the resolved
// variant's stock.
func (c *SelectionController) SetQuantity(quantity int) {
	if c == nil {
		return
	}
	c.selection.Quantity = quantity
	c.clampQuantity()
}

// AvailableSizes lists the selectable sizes for the product.
func (c *SelectionController) AvailableSizes() []VariantOption {
	if c == nil {
		return nil
	}
	return AvailableSizes(c.product)
}

// AvailablePlanters lists the planters selectable under the current size.
func (c *SelectionController) AvailablePlanters() []VariantOption {
	if c == nil {
		return nil
	}
	return AvailablePlanters(c.product, c.selection.SizeID)
}

// AvailableColors lists the colours selectable under the current size and planter.
func (c *SelectionController) AvailableColors() []VariantOption {
	if c == nil {
		return nil
	}
	return AvailableColors(c.product, c.selection.SizeID, c.selection.PlanterID)
}

// rederive settles the tuple in axis order. One pass suffices: the planter is
// settled from availability under the size, the colour from availability under
// the settled planter, and a second pass would observe identical sets.
//
// An unset downstream axis is auto-picked only once its upstream axes are
// settled (selected, or absent from the product entirely); an unset size is
// never auto-picked, it is the user's entry point into the cascade.
func (c *SelectionController) rederive() {
	sizeSettled := c.selection.SizeID != "" || len(AvailableSizes(c.product)) == 0

	planters := AvailablePlanters(c.product, c.selection.SizeID)
	switch {
	case c.selection.PlanterID == "":
		if sizeSettled && len(planters) > 0 {
			c.selection.PlanterID = planters[0].ID
			c.selection.ColorID = ""
		}
	case !optionInSet(planters, c.selection.PlanterID):
		if len(planters) > 0 {
			c.selection.PlanterID = planters[0].ID
		} else {
			c.selection.PlanterID = ""
		}
		c.selection.ColorID = ""
	}
	planterSettled := c.selection.PlanterID != "" || len(planters) == 0

	colors := AvailableColors(c.product, c.selection.SizeID, c.selection.PlanterID)
	switch {
	case c.selection.ColorID == "":
		if sizeSettled && planterSettled && len(colors) > 0 {
			c.selection.ColorID = colors[0].ID
		}
	case !optionInSet(colors, c.selection.ColorID):
		if len(colors) > 0 {
			c.selection.ColorID = colors[0].ID
		} else {
			c.selection.ColorID = ""
		}
	}

	variant, ok := ResolveVariant(c.product, VariantAttributes{
		SizeID:    c.selection.SizeID,
		PlanterID: c.selection.PlanterID,
		ColorID:   c.selection.ColorID,
	})
	if ok {
		c.selection.Variant = &variant
	} else {
		// No backing SKU for the settled tuple: purchase affordances are
		// disabled, the selection itself remains valid state.
		c.selection.Variant = nil
	}

	c.clampQuantity()
}

func (c *SelectionController) clampQuantity() {
	if c.selection.Quantity < 1 {
		c.selection.Quantity = 1
	}
	if c.selection.Variant != nil && c.selection.Variant.StockQuantity > 0 && c.selection.Quantity > c.selection.Variant.StockQuantity {
		c.selection.Quantity = c.selection.Variant.StockQuantity
	}
}

func optionInSet(options []VariantOption, id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	for _, opt := range options {
		if strings.TrimSpace(opt.ID) == id {
			return true
		}
	}
	return false
}
