package cart

import (
	"strings"

	"dukaan/backend/internal/domain"
)

const wildcard = "*"

type variantKey struct {
	brand   string
	color   string
	storage string
}

// VariantIndex resolves selected options to a variant of one product.
// Brand must match exactly, so an empty brand only finds unbranded variants.
// Color and storage compare case-insensitively and an empty value matches any. When
// several variants share a partial key, the first one in catalog order wins.
type VariantIndex struct {
	product  domain.Product
	byKey    map[variantKey]string
	variants map[string]domain.ProductVariant
}

func NewVariantIndex(product domain.Product) *VariantIndex {
	ix := &VariantIndex{
		product:  product,
		byKey:    make(map[variantKey]string, len(product.Variants)*4),
		variants: make(map[string]domain.ProductVariant, len(product.Variants)),
	}
	for _, v := range product.Variants {
		ix.variants[v.ID] = v
		brand := v.Brand
		color := normalize(v.Color.Name)
		storage := normalize(v.Storage)
		for _, key := range []variantKey{
			{brand, color, storage},
			{brand, wildcard, storage},
			{brand, color, wildcard},
			{brand, wildcard, wildcard},
		} {
			if _, taken := ix.byKey[key]; !taken {
				ix.byKey[key] = v.ID
			}
		}
	}
	return ix
}

func (ix *VariantIndex) Product() domain.Product {
	return ix.product
}

func (ix *VariantIndex) Resolve(opts domain.SelectedOptions) (domain.ProductVariant, bool) {
	key := variantKey{brand: opts.Brand, color: orWildcard(opts.Color), storage: orWildcard(opts.Storage)}
	id, ok := ix.byKey[key]
	if !ok {
		return domain.ProductVariant{}, false
	}
	return ix.variants[id], true
}

func (ix *VariantIndex) Variant(id string) (domain.ProductVariant, bool) {
	v, ok := ix.variants[id]
	return v, ok
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func orWildcard(s string) string {
	if n := normalize(s); n != "" {
		return n
	}
	return wildcard
}
