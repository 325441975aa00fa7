package services

import (
	"strings"
)

// The variant axes form a fixed precedence chain: size constrains planter, and
// (size, planter) constrain colour. Colour is always the most derived axis and
// never constrains the axes above it. The resolver functions below are pure
// and total over well-formed products.

// AvailableSizes returns every size that appears in at least one variant of
// the product, in the product's option order.
func AvailableSizes(p Product) []VariantOption {
	return filterOptions(p.VariantOptions.Sizes, func(id string) bool {
		for _, v := range p.Variants {
			if attrID(v.Attributes.SizeID) == id {
				return true
			}
		}
		return false
	})
}

// AvailablePlanters returns the planters co-occurring with the given size in
// some variant. An empty sizeID imposes no constraint.
func AvailablePlanters(p Product, sizeID string) []VariantOption {
	sizeID = attrID(sizeID)
	return filterOptions(p.VariantOptions.Planters, func(id string) bool {
		for _, v := range p.Variants {
			if sizeID != "" && attrID(v.Attributes.SizeID) != sizeID {
				continue
			}
			if attrID(v.Attributes.PlanterID) == id {
				return true
			}
		}
		return false
	})
}

// AvailableColors returns the colours co-occurring with the given size and
// planter in some variant. Unset filters impose no constraint.
func AvailableColors(p Product, sizeID, planterID string) []VariantOption {
	sizeID = attrID(sizeID)
	planterID = attrID(planterID)
	return filterOptions(p.VariantOptions.Colors, func(id string) bool {
		for _, v := range p.Variants {
			if sizeID != "" && attrID(v.Attributes.SizeID) != sizeID {
				continue
			}
			if planterID != "" && attrID(v.Attributes.PlanterID) != planterID {
				continue
			}
			if attrID(v.Attributes.ColorID) == id {
				return true
			}
		}
		return false
	})
}

// ResolveVariant returns the unique variant whose attribute tuple exactly
// equals attrs, treating an unset value as "axis absent" on both sides. The
// second return is false when no variant matches or the product is
// variant-less.
func ResolveVariant(p Product, attrs VariantAttributes) (ProductVariant, bool) {
	for _, v := range p.Variants {
		if v.Attributes.Equal(attrs) {
			return v, true
		}
	}
	return ProductVariant{}, false
}

func filterOptions(options []VariantOption, keep func(id string) bool) []VariantOption {
	out := make([]VariantOption, 0, len(options))
	for _, opt := range options {
		id := attrID(opt.ID)
		if id == "" {
			continue
		}
		if keep(id) {
			out = append(out, opt)
		}
	}
	return out
}

func attrID(id string) string {
	return strings.TrimSpace(id)
}
