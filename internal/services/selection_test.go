package services

import (
	"testing"

	domain "github.com/evergrove/storefront/internal/domain"
)

func TestSelectionStartsUnsettledWhenSizesExist(t *testing.T) {
	c := NewSelectionController(pottedFicus())

	sel := c.Selection()
	if sel.SizeID != "" || sel.PlanterID != "" || sel.ColorID != "" {
		t.Fatalf("fresh selection not empty: %+v", sel)
	}
	if sel.Variant != nil {
		t.Fatalf("fresh selection resolved a variant: %+v", sel.Variant)
	}
	if sel.Quantity != 1 {
		t.Fatalf("quantity = %d, want 1", sel.Quantity)
	}
	if sel.Purchasable() {
		t.Fatal("unsettled selection reported purchasable")
	}
}

func TestSelectionSizeChoiceCascadesDownstream(t *testing.T) {
	c := NewSelectionController(pottedFicus())

	c.SetSize("small")

	sel := c.Selection()
	if sel.PlanterID != "ceramic" {
		t.Fatalf("planter = %q, want first available ceramic", sel.PlanterID)
	}
	if sel.ColorID != "white" {
		t.Fatalf("color = %q, want first available white", sel.ColorID)
	}
	if sel.Variant == nil || sel.Variant.SKU != "FICUS-S-CER-WHT" {
		t.Fatalf("variant = %+v", sel.Variant)
	}
	if !sel.Purchasable() {
		t.Fatal("in-stock resolved selection not purchasable")
	}
}

func TestSelectionSizeChangeCorrectsStalePlanterAndColor(t *testing.T) {
	c := NewSelectionController(pottedFicus())
	c.SetSize("small")
	c.SetPlanter("ceramic")
	c.SetColor("sand")

	c.SetSize("large")

	sel := c.Selection()
	if sel.PlanterID != "terracotta" {
		t.Fatalf("planter = %q, want terracotta (only option under large)", sel.PlanterID)
	}
	if sel.ColorID != "sand" {
		t.Fatalf("color = %q, want sand (only option under large/terracotta)", sel.ColorID)
	}
	if sel.Variant == nil || sel.Variant.SKU != "FICUS-L-TER-SND" {
		t.Fatalf("variant = %+v", sel.Variant)
	}
}

func TestSelectionPlanterChangeNarrowsColors(t *testing.T) {
	c := NewSelectionController(pottedFicus())
	c.SetSize("small")
	c.SetColor("sand")

	c.SetPlanter("terracotta")

	sel := c.Selection()
	if sel.ColorID != "white" {
		t.Fatalf("color = %q, want white (sand has no small/terracotta variant)", sel.ColorID)
	}
	if sel.Variant == nil || sel.Variant.SKU != "FICUS-S-TER-WHT" {
		t.Fatalf("variant = %+v", sel.Variant)
	}
}

func TestSelectionInitializeRepairsStalePersistedState(t *testing.T) {
	c := NewSelectionController(pottedFicus())

	c.Initialize(Selection{SizeID: "large", PlanterID: "ceramic", ColorID: "white", Quantity: 2})

	sel := c.Selection()
	if sel.PlanterID != "terracotta" || sel.ColorID != "sand" {
		t.Fatalf("stale axes not corrected: %+v", sel)
	}
	if sel.Variant == nil || sel.Variant.SKU != "FICUS-L-TER-SND" {
		t.Fatalf("variant = %+v", sel.Variant)
	}
	if sel.Quantity != 2 {
		t.Fatalf("quantity = %d, want persisted 2", sel.Quantity)
	}
}

func TestSelectionQuantityClampedToStock(t *testing.T) {
	c := NewSelectionController(pottedFicus())
	c.SetSize("large")

	c.SetQuantity(10)
	if got := c.Selection().Quantity; got != 3 {
		t.Fatalf("quantity = %d, want clamp to stock 3", got)
	}

	c.SetQuantity(0)
	if got := c.Selection().Quantity; got != 1 {
		t.Fatalf("quantity = %d, want floor of 1", got)
	}
}

func TestSelectionOutOfStockVariantNotPurchasable(t *testing.T) {
	c := NewSelectionController(pottedFicus())
	c.SetSize("small")
	c.SetColor("sand")

	sel := c.Selection()
	if sel.Variant == nil || sel.Variant.SKU != "FICUS-S-CER-SND" {
		t.Fatalf("variant = %+v", sel.Variant)
	}
	if sel.Purchasable() {
		t.Fatal("zero-stock variant reported purchasable")
	}
}

func TestSelectionAttributeLessProductResolvesImmediately(t *testing.T) {
	p := Product{
		ID: "prod-candle",
		Variants: []domain.ProductVariant{
			{ID: "v1", SKU: "CANDLE", StockQuantity: 10, UnitPrice: 1200},
		},
	}
	c := NewSelectionController(p)

	sel := c.Selection()
	if sel.Variant == nil || sel.Variant.SKU != "CANDLE" {
		t.Fatalf("variant = %+v", sel.Variant)
	}
	if !sel.Purchasable() {
		t.Fatal("single-variant product not purchasable out of the box")
	}
}

func TestSelectionReturnsCopies(t *testing.T) {
	c := NewSelectionController(pottedFicus())
	c.SetSize("small")

	sel := c.Selection()
	sel.Variant.StockQuantity = 0
	sel.SizeID = "large"

	again := c.Selection()
	if again.Variant.StockQuantity != 5 || again.SizeID != "small" {
		t.Fatalf("controller state leaked through Selection(): %+v", again)
	}
}

func TestSelectionAvailableAxesTrackState(t *testing.T) {
	c := NewSelectionController(pottedFicus())

	if !equalIDs(c.AvailableSizes(), "small", "large") {
		t.Fatalf("sizes = %v", optionIDs(c.AvailableSizes()))
	}

	c.SetSize("large")
	if !equalIDs(c.AvailablePlanters(), "terracotta") {
		t.Fatalf("planters = %v", optionIDs(c.AvailablePlanters()))
	}
	if !equalIDs(c.AvailableColors(), "sand") {
		t.Fatalf("colors = %v", optionIDs(c.AvailableColors()))
	}
}
