package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"synctree/internal/domain"
	"synctree/internal/store"
	"synctree/internal/suppliers"
)

// seedResync syncs the op-amp from Digikey and the resistor from Mouser, then adds one
// supplier part with no adapter and one without a SKU.
func seedResync(t *testing.T) (*store.MemoryStore, *fakeSupplier, *fakeSupplier) {
	t.Helper()
	ctx := context.Background()
	inv := store.NewMemoryStore()
	dk := newFakeSupplier("Digikey", opampInfo())
	ms := newFakeSupplier("Mouser", resistorInfo())
	svc := newTestService(inv, dk, ms)

	_, err := svc.SyncPart(ctx, "296-6501-1-ND", "digikey")
	require.NoError(t, err)
	_, err = svc.SyncPart(ctx, "603-RC0603FR-0710KL", "mouser")
	require.NoError(t, err)

	farnell, err := inv.CreateCompany(ctx, &domain.Company{Name: "Farnell", IsSupplier: true})
	require.NoError(t, err)
	_, err = inv.CreateSupplierPart(ctx, &domain.SupplierPart{Part: 1, Supplier: farnell.ID, SKU: "1234567", Active: true})
	require.NoError(t, err)

	digikeys, err := inv.ListCompanies(ctx, store.CompanyFilter{Name: "Digikey"})
	require.NoError(t, err)
	require.Len(t, digikeys, 1)
	_, err = inv.CreateSupplierPart(ctx, &domain.SupplierPart{Part: 1, Supplier: digikeys[0].ID, SKU: "", Active: true})
	require.NoError(t, err)

	return inv, dk, ms
}

func TestResyncAll_SkipsUnknownSuppliersAndMissingSKU(t *testing.T) {
	inv, dk, ms := seedResync(t)
	svc := newTestService(inv, dk, ms)

	statuses := slices.Collect(svc.ResyncAll(context.Background(), ""))
	require.Len(t, statuses, 2)

	assert.Equal(t, "296-6501-1-ND", statuses[0].SKU)
	assert.Equal(t, "digikey", statuses[0].Supplier)
	assert.Equal(t, domain.ResyncUpToDate, statuses[0].Status)
	assert.Equal(t, "603-RC0603FR-0710KL", statuses[1].SKU)
	assert.Equal(t, "mouser", statuses[1].Supplier)
	assert.Equal(t, domain.ResyncUpToDate, statuses[1].Status)
}

func TestResyncAll_SupplierFilter(t *testing.T) {
	inv, dk, ms := seedResync(t)
	svc := newTestService(inv, dk, ms)

	statuses := slices.Collect(svc.ResyncAll(context.Background(), "mouser"))
	require.Len(t, statuses, 1)
	assert.Equal(t, "603-RC0603FR-0710KL", statuses[0].SKU)
}

func TestResyncAll_UpdatesDriftedPart(t *testing.T) {
	ctx := context.Background()
	inv, dk, ms := seedResync(t)

	drifted := opampInfo()
	drifted.IsActive = false
	drifted.Pricing = domain.PriceBreaks{1: 0.50, 10: 0.38, 100: 0.27, 1000: 0.19}
	dk.add(drifted)

	svc := newTestService(inv, dk, ms)
	statuses := slices.Collect(svc.ResyncAll(ctx, "digikey"))
	require.Len(t, statuses, 1)

	st := statuses[0]
	assert.Equal(t, domain.ResyncUpdated, st.Status)
	assert.Equal(t, "Updated: active, pricing", st.Message)
	assert.Equal(t, domain.FieldChange{Old: true, New: false}, st.Changes[FieldActive])
	assert.Equal(t, 3, st.Changes[FieldPricing].Old)
	assert.Equal(t, 4, st.Changes[FieldPricing].New)

	sps, err := inv.ListSupplierParts(ctx, store.SupplierPartFilter{SKU: "296-6501-1-ND"})
	require.NoError(t, err)
	require.Len(t, sps, 1)
	assert.False(t, sps[0].Active)

	breaks, err := inv.ListPriceBreaks(ctx, st.InvenTreeID)
	require.NoError(t, err)
	require.Len(t, breaks, 4)
	assert.Equal(t, 0.50, breaks[0].Price)
	for _, pb := range breaks {
		assert.Equal(t, sps[0].Supplier, pb.Supplier)
		require.NotNil(t, pb.Updated)
	}

	payload, err := json.Marshal(st.Changes[FieldPricing])
	require.NoError(t, err)
	assert.JSONEq(t, `{"old":3,"new":4,"added":[{"quantity":1,"price":0.5},{"quantity":1000,"price":0.19}],"removed":[{"quantity":1,"price":0.45}]}`, string(payload))

	again := slices.Collect(svc.ResyncAll(ctx, "digikey"))
	require.Len(t, again, 1)
	assert.Equal(t, domain.ResyncUpToDate, again[0].Status)
}

func TestResyncAll_NotFoundAndUnavailable(t *testing.T) {
	inv, dk, ms := seedResync(t)
	dk.remove("296-6501-1-ND")
	ms.remove("603-RC0603FR-0710KL")
	ms.err = fmt.Errorf("mouser: %w", suppliers.ErrUnavailable)

	svc := newTestService(inv, dk, ms)
	statuses := slices.Collect(svc.ResyncAll(context.Background(), ""))
	require.Len(t, statuses, 2)
	for _, st := range statuses {
		assert.Equal(t, domain.ResyncNotFound, st.Status, st.SKU)
	}
}

func TestResyncAll_UpdateFailed(t *testing.T) {
	inv, dk, ms := seedResync(t)
	drifted := resistorInfo()
	drifted.IsActive = false
	ms.add(drifted)
	inv.FailOn("UpdateSupplierPart", errors.New("permission denied"))

	svc := newTestService(inv, dk, ms)
	statuses := slices.Collect(svc.ResyncAll(context.Background(), "mouser"))
	require.Len(t, statuses, 1)
	assert.Equal(t, domain.ResyncUpdateFailed, statuses[0].Status)
	assert.Contains(t, statuses[0].Message, "permission denied")
	assert.Contains(t, statuses[0].Changes, FieldActive)
}

func TestResyncAll_ErrorStatus(t *testing.T) {
	inv, dk, ms := seedResync(t)
	inv.FailOn("ListPriceBreaks", errors.New("timeout"))

	svc := newTestService(inv, dk, ms)
	for st := range svc.ResyncAll(context.Background(), "") {
		assert.Equal(t, domain.ResyncError, st.Status)
	}

	inv.FailOn("ListPriceBreaks", nil)
	inv.FailOn("ListSupplierParts", errors.New("down"))
	statuses := slices.Collect(svc.ResyncAll(context.Background(), ""))
	require.Len(t, statuses, 1)
	assert.Equal(t, domain.ResyncError, statuses[0].Status)
}

func TestResyncAll_StopsWhenConsumerBreaks(t *testing.T) {
	inv, dk, ms := seedResync(t)
	svc := newTestService(inv, dk, ms)

	seen := 0
	for range svc.ResyncAll(context.Background(), "") {
		seen++
		break
	}
	assert.Equal(t, 1, seen)
	assert.Len(t, ms.Calls(), 1, "the Mouser part is only looked up while seeding")
}

func TestResyncAll_RecordsHistory(t *testing.T) {
	inv, dk, ms := seedResync(t)
	h := &fakeHistory{}
	svc := newTestService(inv, dk, ms).WithHistory(h)

	var summary domain.ResyncSummary
	for st := range svc.ResyncAll(context.Background(), "") {
		summary.Add(st)
	}
	assert.Equal(t, domain.ResyncSummary{Total: 2, UpToDate: 2}, summary)

	require.Len(t, h.finished, 1)
	run := h.finished[0]
	assert.Equal(t, RunKindResync, run.Kind)
	assert.Equal(t, 2, run.Total)
	assert.Equal(t, 2, run.Succeeded)
	assert.Len(t, h.items, 2)
	assert.Equal(t, "up_to_date", h.items[0].Status)

	runs, err := svc.RecentRuns(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
