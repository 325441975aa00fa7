package services

import (
	domain "github.com/evergrove/storefront/internal/domain"
)

// MergeCarts reconciles a guest cart with the authoritative server cart,
// producing the item set the server cart should contain after login.
//
// The result preserves server item order first, then guest-only lines in their
// original guest order. A guest line matching a server line by identity key
// adds its quantity to the match (saturating, never wrapping); no stock cap is
// applied here, the backend surfaces that as an error on replay. Client ids
// are stripped from every appended guest line.
//
// The function is pure: inputs are never mutated and no I/O occurs.
func MergeCarts(guestItems, serverItems []CartItem) []CartItem {
	merged := domain.CloneCartItems(serverItems)

	index := make(map[LineKey]int, len(merged))
	for i, item := range merged {
		key := item.LineKey()
		if _, ok := index[key]; !ok {
			index[key] = i
		}
	}

	for _, guest := range guestItems {
		key := guest.LineKey()
		if at, ok := index[key]; ok {
			merged[at].Quantity = domain.SaturatingAddQuantity(merged[at].Quantity, guest.Quantity)
			continue
		}
		merged = append(merged, guest.WithoutClientID())
		index[key] = len(merged) - 1
	}

	return merged
}
