package services

import (
	"math"
	"reflect"
	"testing"

	domain "github.com/evergrove/storefront/internal/domain"
)

func productLine(sku string, qty int) CartItem {
	return CartItem{Kind: domain.CartItemKindProduct, SKU: sku, Quantity: qty}
}

func treeLine(kind domain.CartItemKind, treeID, planID string, qty int) CartItem {
	return CartItem{Kind: kind, TreeID: treeID, PlanID: planID, Quantity: qty}
}

func TestMergeCartsEmptyGuestReturnsServerUnchanged(t *testing.T) {
	server := []CartItem{productLine("OAK-S", 2), treeLine(domain.CartItemKindSponsor, "tree-1", "annual", 1)}

	merged := MergeCarts(nil, server)

	if !reflect.DeepEqual(merged, server) {
		t.Fatalf("merged = %+v, want server cart unchanged %+v", merged, server)
	}
}

func TestMergeCartsEmptyServerAdoptsGuestOrder(t *testing.T) {
	guest := []CartItem{
		{Kind: domain.CartItemKindProduct, SKU: "OAK-S", Quantity: 1, ClientID: "c1"},
		{Kind: domain.CartItemKindSponsor, TreeID: "tree-1", PlanID: "annual", Quantity: 2, ClientID: "c2"},
	}

	merged := MergeCarts(guest, nil)

	if len(merged) != 2 {
		t.Fatalf("len(merged) = %d, want 2", len(merged))
	}
	if merged[0].SKU != "OAK-S" || merged[1].TreeID != "tree-1" {
		t.Fatalf("guest order not preserved: %+v", merged)
	}
	for i, item := range merged {
		if item.ClientID != "" {
			t.Fatalf("merged[%d].ClientID = %q, want stripped", i, item.ClientID)
		}
	}
}

func TestMergeCartsAccumulatesMatchingLines(t *testing.T) {
	server := []CartItem{productLine("OAK-S", 2), productLine("PINE-M", 1)}
	guest := []CartItem{
		{Kind: domain.CartItemKindProduct, SKU: "OAK-S", Quantity: 3, ClientID: "c1"},
		{Kind: domain.CartItemKindProduct, SKU: "MAPLE-L", Quantity: 1, ClientID: "c2"},
	}

	merged := MergeCarts(guest, server)

	if len(merged) != 3 {
		t.Fatalf("len(merged) = %d, want 3", len(merged))
	}
	if merged[0].SKU != "OAK-S" || merged[0].Quantity != 5 {
		t.Fatalf("merged[0] = %+v, want OAK-S qty 5", merged[0])
	}
	if merged[1].SKU != "PINE-M" || merged[1].Quantity != 1 {
		t.Fatalf("merged[1] = %+v, want PINE-M untouched", merged[1])
	}
	if merged[2].SKU != "MAPLE-L" || merged[2].ClientID != "" {
		t.Fatalf("merged[2] = %+v, want appended MAPLE-L without client id", merged[2])
	}
}

func TestMergeCartsSponsorAndAdoptAreDistinctLines(t *testing.T) {
	server := []CartItem{treeLine(domain.CartItemKindSponsor, "tree-1", "annual", 1)}
	guest := []CartItem{treeLine(domain.CartItemKindAdopt, "tree-1", "annual", 1)}

	merged := MergeCarts(guest, server)

	if len(merged) != 2 {
		t.Fatalf("sponsor and adopt of the same tree collapsed: %+v", merged)
	}
	if merged[0].Kind != domain.CartItemKindSponsor || merged[1].Kind != domain.CartItemKindAdopt {
		t.Fatalf("unexpected kinds after merge: %+v", merged)
	}
}

func TestMergeCartsDedicationNeverAffectsIdentity(t *testing.T) {
	server := []CartItem{treeLine(domain.CartItemKindSponsor, "tree-1", "annual", 1)}
	guest := []CartItem{
		{
			Kind:       domain.CartItemKindSponsor,
			TreeID:     "tree-1",
			PlanID:     "annual",
			Quantity:   1,
			Dedication: &domain.Dedication{Name: "Ada", Message: "for grandma"},
		},
	}

	merged := MergeCarts(guest, server)

	if len(merged) != 1 {
		t.Fatalf("dedication split identical lines: %+v", merged)
	}
	if merged[0].Quantity != 2 {
		t.Fatalf("merged quantity = %d, want 2", merged[0].Quantity)
	}
	// The server line wins wholesale, including its (absent) dedication.
	if merged[0].Dedication != nil {
		t.Fatalf("server dedication overwritten: %+v", merged[0].Dedication)
	}
}

func TestMergeCartsQuantitySaturatesInsteadOfWrapping(t *testing.T) {
	server := []CartItem{productLine("OAK-S", math.MaxInt-1)}
	guest := []CartItem{productLine("OAK-S", 5)}

	merged := MergeCarts(guest, server)

	if merged[0].Quantity != math.MaxInt {
		t.Fatalf("quantity = %d, want saturation at MaxInt", merged[0].Quantity)
	}
}

func TestMergeCartsDuplicateGuestLinesCollapseIntoOne(t *testing.T) {
	guest := []CartItem{
		productLine("OAK-S", 1),
		productLine("OAK-S", 2),
	}

	merged := MergeCarts(guest, nil)

	if len(merged) != 1 {
		t.Fatalf("duplicate guest lines not collapsed: %+v", merged)
	}
	if merged[0].Quantity != 3 {
		t.Fatalf("quantity = %d, want 3", merged[0].Quantity)
	}
}

func TestMergeCartsDoesNotMutateInputs(t *testing.T) {
	server := []CartItem{productLine("OAK-S", 2)}
	guest := []CartItem{
		{Kind: domain.CartItemKindProduct, SKU: "OAK-S", Quantity: 3, ClientID: "c1"},
	}
	serverBefore := domain.CloneCartItems(server)
	guestBefore := domain.CloneCartItems(guest)

	MergeCarts(guest, server)

	if !reflect.DeepEqual(server, serverBefore) {
		t.Fatalf("server input mutated: %+v", server)
	}
	if !reflect.DeepEqual(guest, guestBefore) {
		t.Fatalf("guest input mutated: %+v", guest)
	}
}

func TestLineKeyTrimsIdentifierWhitespace(t *testing.T) {
	a := CartItem{Kind: domain.CartItemKindProduct, SKU: " OAK-S "}
	b := CartItem{Kind: domain.CartItemKindProduct, SKU: "OAK-S"}
	if a.LineKey() != b.LineKey() {
		t.Fatalf("whitespace-padded SKU produced a distinct key")
	}

	// Product keys ignore tree fields entirely.
	c := CartItem{Kind: domain.CartItemKindProduct, SKU: "OAK-S", TreeID: "tree-1", PlanID: "annual"}
	if c.LineKey() != b.LineKey() {
		t.Fatalf("tree fields leaked into a product key: %+v", c.LineKey())
	}
}
