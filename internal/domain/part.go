package domain

import (
	"errors"
	"sort"
	"strings"
)

// MaxDescriptionLength bounds PartInfo.Description. Longer supplier text is truncated.
const MaxDescriptionLength = 250

// ErrMissingIdentity is returned by PartInfo.Validate when the MPN or SKU is empty.
var ErrMissingIdentity = errors.New("domain: part info is missing manufacturer or supplier part number")

// PriceBreaks maps a break quantity to the unit price at that quantity.
type PriceBreaks map[int]float64

// Quantities returns the break quantities in ascending order.
func (p PriceBreaks) Quantities() []int {
	qs := make([]int, 0, len(p))
	for q := range p {
		qs = append(qs, q)
	}
	sort.Ints(qs)
	return qs
}

// PartInfo is the supplier-agnostic description of a component, as returned by a
// supplier lookup. It is built once per successful lookup and not mutated afterwards.
type PartInfo struct {
	ManufacturerName       string            `json:"manufacturer_name"`
	ManufacturerPartNumber string            `json:"manufacturer_part_number"`
	SupplierName           string            `json:"supplier_name"`
	SupplierPartNumber     string            `json:"supplier_part_number"`
	Description            string            `json:"description"`
	DatasheetURL           *string           `json:"datasheet_url,omitempty"`
	ImageURL               *string           `json:"image_url,omitempty"`
	ProductURL             *string           `json:"product_url,omitempty"`
	Category               *string           `json:"category,omitempty"`
	Packaging              *string           `json:"packaging,omitempty"`
	Stock                  *int64            `json:"stock,omitempty"`
	Pricing                PriceBreaks       `json:"pricing,omitempty"`
	Parameters             map[string]string `json:"parameters,omitempty"`
	IsActive               bool              `json:"is_active"`
}

// Validate checks the identity invariant: both part numbers must be present.
func (p *PartInfo) Validate() error {
	if strings.TrimSpace(p.ManufacturerPartNumber) == "" || strings.TrimSpace(p.SupplierPartNumber) == "" {
		return ErrMissingIdentity
	}
	return nil
}

// PartName is the name used for the downstream Part record.
func (p *PartInfo) PartName() string {
	return p.ManufacturerPartNumber
}

// HasPricing reports whether the supplier returned at least one price break.
func (p *PartInfo) HasPricing() bool {
	return len(p.Pricing) > 0
}

// TruncateDescription cuts s to MaxDescriptionLength runes.
func TruncateDescription(s string) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= MaxDescriptionLength {
		return s
	}
	return string(r[:MaxDescriptionLength])
}
