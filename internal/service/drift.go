package service

import (
	"math"
	"sort"

	"synctree/internal/domain"
)

// PriceTolerance is the largest unit price difference treated as unchanged.
const PriceTolerance = 0.01

// Changed field names reported by Compare.
const (
	FieldActive  = "active"
	FieldPricing = "pricing"
)

// Compare reports the fields where fresh supplier data differs from the downstream
// snapshot. An empty result means the supplier part is up to date.
//
// Pricing is only compared when the supplier returned prices: a different number of
// breaks, or any fresh quantity missing downstream or priced more than PriceTolerance
// apart, counts as a change.
func Compare(existing domain.SupplierPartSnapshot, fresh domain.PartInfo) domain.Changes {
	changes := domain.Changes{}

	if existing.Active != fresh.IsActive {
		changes[FieldActive] = domain.FieldChange{Old: existing.Active, New: fresh.IsActive}
	}

	if fresh.HasPricing() {
		added, removed := diffPriceBreaks(existing.PriceBreaks, fresh.Pricing)
		if len(existing.PriceBreaks) != len(fresh.Pricing) || len(added) > 0 {
			changes[FieldPricing] = domain.FieldChange{
				Old:     len(existing.PriceBreaks),
				New:     len(fresh.Pricing),
				Added:   added,
				Removed: removed,
			}
		}
	}
	return changes
}

// diffPriceBreaks returns the fresh breaks with no matching downstream break and the
// downstream breaks with no matching fresh break, both ordered by quantity.
func diffPriceBreaks(existing []domain.PriceBreak, fresh domain.PriceBreaks) (added, removed []domain.PricePoint) {
	matched := make([]bool, len(existing))

	for _, qty := range fresh.Quantities() {
		price := fresh[qty]
		found := false
		for i, pb := range existing {
			if matched[i] || !sameQuantity(pb.Quantity, qty) {
				continue
			}
			if math.Abs(pb.Price-price) <= PriceTolerance {
				matched[i] = true
				found = true
			}
			break
		}
		if !found {
			added = append(added, domain.PricePoint{Quantity: float64(qty), Price: price})
		}
	}

	for i, pb := range existing {
		if !matched[i] {
			removed = append(removed, domain.PricePoint{Quantity: pb.Quantity, Price: pb.Price})
		}
	}
	sort.Slice(removed, func(i, j int) bool { return removed[i].Quantity < removed[j].Quantity })
	return added, removed
}

func sameQuantity(downstream float64, qty int) bool {
	return math.Abs(downstream-float64(qty)) < 1e-9
}
