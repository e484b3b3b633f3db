package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"synctree/internal/domain"
)

func snapshot(active bool, breaks ...domain.PriceBreak) domain.SupplierPartSnapshot {
	return domain.SupplierPartSnapshot{ID: 7, SKU: "296-6501-1-ND", SupplierName: "Digikey", Active: active, PriceBreaks: breaks}
}

func TestCompare_WithinToleranceIsUpToDate(t *testing.T) {
	existing := snapshot(true,
		domain.PriceBreak{ID: 1, Quantity: 1, Price: 0.45},
		domain.PriceBreak{ID: 2, Quantity: 10, Price: 0.385},
	)
	fresh := domain.PartInfo{IsActive: true, Pricing: domain.PriceBreaks{1: 0.455, 10: 0.38}}

	assert.Empty(t, Compare(existing, fresh))
}

func TestCompare_ActiveChange(t *testing.T) {
	existing := snapshot(true, domain.PriceBreak{Quantity: 1, Price: 0.45})
	fresh := domain.PartInfo{IsActive: false, Pricing: domain.PriceBreaks{1: 0.45}}

	changes := Compare(existing, fresh)
	require.Len(t, changes, 1)
	assert.Equal(t, domain.FieldChange{Old: true, New: false}, changes[FieldActive])
}

func TestCompare_PriceChangeReportsDifference(t *testing.T) {
	existing := snapshot(true,
		domain.PriceBreak{Quantity: 1, Price: 0.45},
		domain.PriceBreak{Quantity: 10, Price: 0.38},
	)
	fresh := domain.PartInfo{IsActive: true, Pricing: domain.PriceBreaks{1: 0.45, 10: 0.30}}

	changes := Compare(existing, fresh)
	require.Contains(t, changes, FieldPricing)
	pricing := changes[FieldPricing]
	assert.Equal(t, 2, pricing.Old)
	assert.Equal(t, 2, pricing.New)
	assert.Equal(t, []domain.PricePoint{{Quantity: 10, Price: 0.30}}, pricing.Added)
	assert.Equal(t, []domain.PricePoint{{Quantity: 10, Price: 0.38}}, pricing.Removed)
	assert.NotContains(t, changes, FieldActive)
}

func TestCompare_CardinalityChange(t *testing.T) {
	existing := snapshot(true,
		domain.PriceBreak{Quantity: 1, Price: 0.45},
		domain.PriceBreak{Quantity: 10, Price: 0.38},
		domain.PriceBreak{Quantity: 100, Price: 0.27},
	)
	fresh := domain.PartInfo{IsActive: true, Pricing: domain.PriceBreaks{1: 0.45, 10: 0.38}}

	changes := Compare(existing, fresh)
	require.Contains(t, changes, FieldPricing)
	assert.Equal(t, 3, changes[FieldPricing].Old)
	assert.Equal(t, 2, changes[FieldPricing].New)
	assert.Empty(t, changes[FieldPricing].Added)
	assert.Equal(t, []domain.PricePoint{{Quantity: 100, Price: 0.27}}, changes[FieldPricing].Removed)
}

func TestCompare_NoFreshPricingIgnoresPrices(t *testing.T) {
	existing := snapshot(true, domain.PriceBreak{Quantity: 1, Price: 9.99})
	fresh := domain.PartInfo{IsActive: true}

	assert.Empty(t, Compare(existing, fresh))
}

func TestCompare_MissingQuantity(t *testing.T) {
	existing := snapshot(false, domain.PriceBreak{Quantity: 5, Price: 1})
	fresh := domain.PartInfo{IsActive: false, Pricing: domain.PriceBreaks{1: 1}}

	changes := Compare(existing, fresh)
	require.Contains(t, changes, FieldPricing)
	assert.Equal(t, []domain.PricePoint{{Quantity: 1, Price: 1}}, changes[FieldPricing].Added)
}
