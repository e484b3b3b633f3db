package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPartInfo_Validate(t *testing.T) {
	ok := PartInfo{ManufacturerPartNumber: "LM358DR", SupplierPartNumber: "296-6501-1-ND"}
	assert.NoError(t, ok.Validate())

	noMPN := PartInfo{ManufacturerPartNumber: "  ", SupplierPartNumber: "296-6501-1-ND"}
	assert.ErrorIs(t, noMPN.Validate(), ErrMissingIdentity)

	noSKU := PartInfo{ManufacturerPartNumber: "LM358DR"}
	assert.ErrorIs(t, noSKU.Validate(), ErrMissingIdentity)
}

func TestPriceBreaks_Quantities(t *testing.T) {
	p := PriceBreaks{100: 0.27, 1: 0.45, 10: 0.38}
	assert.Equal(t, []int{1, 10, 100}, p.Quantities())
	assert.Empty(t, PriceBreaks(nil).Quantities())
}

func TestTruncateDescription(t *testing.T) {
	assert.Equal(t, "IC OPAMP GP 2 CIRCUIT 8SOIC", TruncateDescription("  IC OPAMP GP 2 CIRCUIT 8SOIC "))

	long := strings.Repeat("Ω", MaxDescriptionLength+10)
	got := TruncateDescription(long)
	assert.Equal(t, MaxDescriptionLength, len([]rune(got)))
}

func TestBomRow_LookupNumber(t *testing.T) {
	assert.Equal(t, "296-6501-1-ND", BomRow{SPN: "296-6501-1-ND", MPN: "LM358DR"}.LookupNumber())
	assert.Equal(t, "LM358DR", BomRow{MPN: "LM358DR"}.LookupNumber())
}

func TestResyncSummary_Add(t *testing.T) {
	var s ResyncSummary
	for _, st := range []ResyncState{ResyncUpToDate, ResyncUpdated, ResyncNotFound, ResyncError, ResyncUpdateFailed} {
		s.Add(ResyncStatus{Status: st})
	}
	assert.Equal(t, ResyncSummary{Total: 5, UpToDate: 1, Updated: 1, NotFound: 1, Errors: 2}, s)
}
