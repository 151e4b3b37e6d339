package domain

import (
	"slices"
	"strings"
	"time"
)

// ProductCodeLength is the length of an aggregated product's code.
const ProductCodeLength = 12

// Product is a garment batch built from many tags. Its attributes are the
// authoritative copy; each linked tag carries a mirror in GarmentDetails.
type Product struct {
	Code             string
	PieceCount       int
	ProductTypes     ProductTypes
	OtherProductType string
	Brand            string
	ProcessDate      time.Time
	CreatedBy        string
	CreatedAt        time.Time
}

// ProductFilter narrows a product listing. Every whitespace-separated term
// of Search must match the product code, brand, a product type or the code
// of a linked tag, case-insensitively.
type ProductFilter struct {
	Scope  Scope
	Search string
}

// Terms splits Search into its upper-cased terms.
func (f ProductFilter) Terms() []string {
	return strings.Fields(strings.ToUpper(f.Search))
}

// Details returns the mirror written onto each linked tag.
func (p Product) Details() GarmentDetails {
	pd := p.ProcessDate
	return GarmentDetails{
		ProductCode:      p.Code,
		ProductTypes:     p.ProductTypes.Clone(),
		OtherProductType: p.OtherProductType,
		Brand:            p.Brand,
		ProcessDate:      &pd,
	}
}

// ProductType is one kind of finished leather good.
type ProductType string

const (
	ProductJacket ProductType = "Jacket"
	ProductGloves ProductType = "Gloves"
	ProductSkirt  ProductType = "Skirt"
	ProductPant   ProductType = "Pant"
	ProductShoes  ProductType = "Shoes"
	ProductWallet ProductType = "Wallet"
	ProductBag    ProductType = "Bag"
	ProductBelt   ProductType = "Belt"
	ProductOther  ProductType = "Other"
)

var knownProductTypes = []ProductType{
	ProductJacket, ProductGloves, ProductSkirt, ProductPant,
	ProductShoes, ProductWallet, ProductBag, ProductBelt, ProductOther,
}

// ParseProductType matches s case-insensitively against the known types.
func ParseProductType(s string) (ProductType, bool) {
	s = strings.TrimSpace(s)
	for _, pt := range knownProductTypes {
		if strings.EqualFold(string(pt), s) {
			return pt, true
		}
	}
	return "", false
}

// ProductTypes is an insertion-ordered set of product types.
// The zero value is an empty set.
type ProductTypes struct {
	items []ProductType
}

// NewProductTypes builds a set from raw labels, keeping first-seen order and
// dropping duplicates. It fails on the first unknown label.
func NewProductTypes(labels []string) (ProductTypes, error) {
	var set ProductTypes
	for _, l := range labels {
		pt, ok := ParseProductType(l)
		if !ok {
			return ProductTypes{}, Reject(ErrInvalidInput, ReasonInvalidValue, "unknown product type %q", l)
		}
		set.Add(pt)
	}
	return set, nil
}

// Add inserts pt unless it is already present.
func (s *ProductTypes) Add(pt ProductType) {
	if !s.Has(pt) {
		s.items = append(s.items, pt)
	}
}

// Has reports whether pt is in the set.
func (s ProductTypes) Has(pt ProductType) bool {
	return slices.Contains(s.items, pt)
}

// Len returns the number of members.
func (s ProductTypes) Len() int { return len(s.items) }

// Values returns the members in insertion order.
func (s ProductTypes) Values() []ProductType {
	return slices.Clone(s.items)
}

// Strings returns the members as plain strings, for storage and the wire.
func (s ProductTypes) Strings() []string {
	out := make([]string, len(s.items))
	for i, pt := range s.items {
		out[i] = string(pt)
	}
	return out
}

// Clone returns an independent copy.
func (s ProductTypes) Clone() ProductTypes {
	return ProductTypes{items: slices.Clone(s.items)}
}

// Equal reports whether both sets hold the same members in the same order.
func (s ProductTypes) Equal(o ProductTypes) bool {
	return slices.Equal(s.items, o.items)
}

// ProductSpec is the caller-supplied description of a new product.
type ProductSpec struct {
	PieceCount       int
	ProductTypes     []string
	OtherProductType string
	Brand            string
	ProcessDate      *time.Time
}

// Build validates the spec and returns the product it describes, without a
// code. A nil ProcessDate defaults to now; a future one is rejected.
func (s ProductSpec) Build(createdBy string, now time.Time) (Product, error) {
	if s.PieceCount < 1 {
		return Product{}, Reject(ErrInvalidInput, ReasonInvalidValue, "piece count must be at least 1, got %d", s.PieceCount)
	}
	types, err := NewProductTypes(s.ProductTypes)
	if err != nil {
		return Product{}, err
	}
	if types.Len() == 0 {
		return Product{}, Reject(ErrInvalidInput, ReasonMissingField, "at least one product type is required")
	}
	other := strings.TrimSpace(s.OtherProductType)
	if types.Has(ProductOther) && other == "" {
		return Product{}, Reject(ErrInvalidInput, ReasonMissingField, "product type Other requires other_product_type")
	}
	if !types.Has(ProductOther) {
		other = ""
	}
	processDate := now
	if s.ProcessDate != nil {
		if s.ProcessDate.After(now) {
			return Product{}, Reject(ErrInvalidInput, ReasonInvalidValue, "process date %s is in the future", s.ProcessDate.Format(time.RFC3339))
		}
		processDate = *s.ProcessDate
	}
	return Product{
		PieceCount:       s.PieceCount,
		ProductTypes:     types,
		OtherProductType: other,
		Brand:            strings.TrimSpace(s.Brand),
		ProcessDate:      processDate,
		CreatedBy:        createdBy,
	}, nil
}
