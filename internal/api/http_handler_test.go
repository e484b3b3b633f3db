package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"synctree/internal/config"
	"synctree/internal/domain"
	"synctree/internal/service"
	"synctree/internal/store"
	"synctree/internal/suppliers"
)

// MockSyncer is a mock implementation of Syncer.
type MockSyncer struct {
	mock.Mock
}

func (m *MockSyncer) Suppliers() []string {
	args := m.Called()
	return args.Get(0).([]string)
}

func (m *MockSyncer) GetPartFromSupplier(ctx context.Context, partNumber, supplier string) (string, *domain.PartInfo, error) {
	args := m.Called(ctx, partNumber, supplier)
	if args.Get(1) == nil {
		return args.String(0), nil, args.Error(2)
	}
	return args.String(0), args.Get(1).(*domain.PartInfo), args.Error(2)
}

func (m *MockSyncer) SyncPart(ctx context.Context, partNumber, supplier string) (*domain.SyncResult, error) {
	args := m.Called(ctx, partNumber, supplier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SyncResult), args.Error(1)
}

func (m *MockSyncer) CreateAssemblyPart(ctx context.Context, partNumber string) (*domain.AssemblyResult, error) {
	args := m.Called(ctx, partNumber)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AssemblyResult), args.Error(1)
}

func (m *MockSyncer) ImportBOM(ctx context.Context, assemblyPN string, rows []domain.BomRow, progress service.BomProgress) (*domain.BomImportSummary, error) {
	args := m.Called(ctx, assemblyPN, rows)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BomImportSummary), args.Error(1)
}

func (m *MockSyncer) ResyncAll(ctx context.Context, supplier string) iter.Seq[domain.ResyncStatus] {
	args := m.Called(ctx, supplier)
	return args.Get(0).(iter.Seq[domain.ResyncStatus])
}

func (m *MockSyncer) RecentRuns(ctx context.Context, limit int) ([]domain.SyncRun, error) {
	args := m.Called(ctx, limit)
	var runs []domain.SyncRun
	if arg0 := args.Get(0); arg0 != nil {
		runs = arg0.([]domain.SyncRun)
	}
	return runs, args.Error(1)
}

func (m *MockSyncer) RunItems(ctx context.Context, runID string) ([]domain.SyncRunItem, error) {
	args := m.Called(ctx, runID)
	var items []domain.SyncRunItem
	if arg0 := args.Get(0); arg0 != nil {
		items = arg0.([]domain.SyncRunItem)
	}
	return items, args.Error(1)
}

func testConfig() *config.Config {
	return &config.Config{
		PartKey:   config.PartKeyName,
		InvenTree: config.InvenTreeConfig{ServerURL: "http://inventree.local", Token: "inventree-token"},
		Mouser:    config.MouserConfig{PartAPIKey: "mouser-api-key-123"},
	}
}

// Helper for setting up tests with a chi router and handler
func setupTestChiServer(t *testing.T, syncer Syncer) *httptest.Server {
	return setupTestChiServerWithConfig(t, syncer, testConfig())
}

func setupTestChiServerWithConfig(t *testing.T, syncer Syncer, cfg *config.Config) *httptest.Server {
	handler := NewHTTPHandler(syncer, cfg, zap.NewNop())
	router := chi.NewRouter()
	handler.RegisterRoutes(router)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func decodeError(t *testing.T, res *http.Response) ErrorResponse {
	t.Helper()
	var errResp ErrorResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&errResp))
	return errResp
}

func TestHTTPHandler_SyncPart_Success(t *testing.T) {
	syncer := new(MockSyncer)
	server := setupTestChiServer(t, syncer)

	expected := &domain.SyncResult{
		Success:                 true,
		Supplier:                "digikey",
		Manufacturer:            "Texas Instruments",
		ManufacturerPartNumber:  "LM358DR",
		SupplierPartNumber:      "296-6501-1-ND",
		InvenTreePartID:         12,
		InvenTreeSupplierPartID: 40,
	}
	syncer.On("SyncPart", mock.Anything, "296-6501-1-ND", "digikey").Return(expected, nil).Once()

	reqBody, _ := json.Marshal(SyncPartInput{PartNumber: " 296-6501-1-ND ", Supplier: "DigiKey"})
	res, err := http.Post(server.URL+"/api/v1/parts/sync", "application/json", bytes.NewBuffer(reqBody))
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusOK, res.StatusCode)
	var got domain.SyncResult
	require.NoError(t, json.NewDecoder(res.Body).Decode(&got))
	assert.Equal(t, *expected, got)

	syncer.AssertExpectations(t)
}

func TestHTTPHandler_SyncPart_Validation(t *testing.T) {
	syncer := new(MockSyncer)
	server := setupTestChiServer(t, syncer)

	for _, input := range []SyncPartInput{
		{PartNumber: ""},
		{PartNumber: "LM358DR", Supplier: "farnell"},
	} {
		reqBody, _ := json.Marshal(input)
		res, err := http.Post(server.URL+"/api/v1/parts/sync", "application/json", bytes.NewBuffer(reqBody))
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
		assert.Contains(t, decodeError(t, res).Error, "Validation failed")
		res.Body.Close()
	}

	syncer.AssertNotCalled(t, "SyncPart", mock.Anything, mock.Anything, mock.Anything)
}

func TestHTTPHandler_SyncPart_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"not found", fmt.Errorf("%w: %q", service.ErrPartNotFound, "X"), http.StatusNotFound},
		{"supplier down", fmt.Errorf("%w: %w", service.ErrPartNotFound, suppliers.ErrUnavailable), http.StatusNotFound},
		{"inventory down", fmt.Errorf("%w: part: %w", service.ErrCreationFailed, store.ErrUnavailable), http.StatusServiceUnavailable},
		{"inventory rejected", fmt.Errorf("%w: part: %w", service.ErrCreationFailed, store.ErrRejected), http.StatusBadGateway},
		{"unexpected", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			syncer := new(MockSyncer)
			server := setupTestChiServer(t, syncer)
			syncer.On("SyncPart", mock.Anything, "LM358DR", "").Return(nil, tt.err).Once()

			res, err := http.Post(server.URL+"/api/v1/parts/sync", "application/json", strings.NewReader(`{"part_number":"LM358DR"}`))
			require.NoError(t, err)
			defer res.Body.Close()
			assert.Equal(t, tt.code, res.StatusCode)
			syncer.AssertExpectations(t)
		})
	}
}

func TestHTTPHandler_LookupPart(t *testing.T) {
	syncer := new(MockSyncer)
	server := setupTestChiServer(t, syncer)

	info := &domain.PartInfo{ManufacturerPartNumber: "RC0603FR-0710KL", SupplierPartNumber: "603-RC0603FR-0710KL", SupplierName: "Mouser", IsActive: true}
	syncer.On("GetPartFromSupplier", mock.Anything, "RC0603FR-0710KL", "mouser").Return("mouser", info, nil).Once()

	res, err := http.Get(server.URL + "/api/v1/parts/lookup/RC0603FR-0710KL?supplier=Mouser")
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusOK, res.StatusCode)
	var got LookupResponse
	require.NoError(t, json.NewDecoder(res.Body).Decode(&got))
	assert.Equal(t, "mouser", got.Supplier)
	assert.Equal(t, "603-RC0603FR-0710KL", got.Part.SupplierPartNumber)

	bad, err := http.Get(server.URL + "/api/v1/parts/lookup/RC0603FR-0710KL?supplier=farnell")
	require.NoError(t, err)
	defer bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)

	syncer.AssertExpectations(t)
}

func TestHTTPHandler_CreateAssembly(t *testing.T) {
	syncer := new(MockSyncer)
	server := setupTestChiServer(t, syncer)

	syncer.On("CreateAssemblyPart", mock.Anything, "PCB-MAIN").
		Return(&domain.AssemblyResult{InvenTreePartID: 3, Name: "PCB-MAIN", Description: "Assembly: PCB-MAIN"}, nil).Once()
	syncer.On("CreateAssemblyPart", mock.Anything, "PCB-OLD").
		Return(&domain.AssemblyResult{InvenTreePartID: 4, Name: "PCB-OLD", Exists: true}, nil).Once()

	res, err := http.Post(server.URL+"/api/v1/assemblies", "application/json", strings.NewReader(`{"part_number":"PCB-MAIN"}`))
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusCreated, res.StatusCode)

	res, err = http.Post(server.URL+"/api/v1/assemblies", "application/json", strings.NewReader(`{"part_number":"PCB-OLD"}`))
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	syncer.AssertExpectations(t)
}

func TestHTTPHandler_ImportBOM_TSVBody(t *testing.T) {
	syncer := new(MockSyncer)
	server := setupTestChiServer(t, syncer)

	expectedRows := []domain.BomRow{{Supplier: "Digikey", SPN: "296-6501-1-ND", Quantity: 5, Designators: "R1,R2", Row: 2}}
	summary := &domain.BomImportSummary{
		Assembly:     domain.AssemblyResult{InvenTreePartID: 3, Name: "PCB-MAIN"},
		SuccessCount: 1,
		Rows:         []domain.BomRowResult{{Row: 2, PartNumber: "296-6501-1-ND", Success: true, Message: "Added to BOM: LM358DR"}},
	}
	syncer.On("ImportBOM", mock.Anything, "PCB-MAIN", expectedRows).Return(summary, nil).Once()

	body := "Supplier\tSPN\tMPN\tQty\tDesignators\nDigikey\t296-6501-1-ND\t\t5\tR1,R2\n\t\t\t\t\n"
	res, err := http.Post(server.URL+"/api/v1/assemblies/PCB-MAIN/bom", "text/tab-separated-values", strings.NewReader(body))
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusOK, res.StatusCode)
	var got domain.BomImportSummary
	require.NoError(t, json.NewDecoder(res.Body).Decode(&got))
	assert.Equal(t, 1, got.SuccessCount)
	require.Len(t, got.Skipped, 1)
	assert.Equal(t, "Row 3: No MPN or SPN", got.Skipped[0].Reason)

	syncer.AssertExpectations(t)
}

func TestHTTPHandler_ImportBOM_MissingSource(t *testing.T) {
	syncer := new(MockSyncer)
	cfg := testConfig()
	cfg.BomDir = t.TempDir()
	server := setupTestChiServerWithConfig(t, syncer, cfg)

	res, err := http.Post(server.URL+"/api/v1/assemblies/PCB-MAIN/bom", "application/json",
		strings.NewReader(`{"source":"missing.csv"}`))
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	empty, err := http.Post(server.URL+"/api/v1/assemblies/PCB-MAIN/bom", "text/csv", strings.NewReader("MPN,Qty\n,3\n"))
	require.NoError(t, err)
	defer empty.Body.Close()
	assert.Equal(t, http.StatusBadRequest, empty.StatusCode)

	syncer.AssertNotCalled(t, "ImportBOM", mock.Anything, mock.Anything, mock.Anything)
}

func TestHTTPHandler_ImportBOM_SourceConfinedToBomDir(t *testing.T) {
	syncer := new(MockSyncer)
	cfg := testConfig()
	cfg.BomDir = t.TempDir()
	server := setupTestChiServerWithConfig(t, syncer, cfg)

	outside := filepath.Join(t.TempDir(), "secret.csv")
	require.NoError(t, os.WriteFile(outside, []byte("MPN,Qty\nTOP-SECRET-ROW,1\n"), 0o644))
	inside := filepath.Join(cfg.BomDir, "pcb-main.csv")
	require.NoError(t, os.WriteFile(inside, []byte("MPN,Qty\nLM358DR,2\n"), 0o644))

	post := func(source string) *http.Response {
		t.Helper()
		res, err := http.Post(server.URL+"/api/v1/assemblies/PCB-MAIN/bom", "application/json",
			strings.NewReader(fmt.Sprintf(`{"source":%q}`, source)))
		require.NoError(t, err)
		t.Cleanup(func() { res.Body.Close() })
		return res
	}

	for _, source := range []string{outside, "../" + filepath.Base(outside), outside + ".missing"} {
		res := post(source)
		assert.Equal(t, http.StatusBadRequest, res.StatusCode, source)
		assert.NotContains(t, decodeError(t, res).Error, "TOP-SECRET-ROW")
	}

	expectedRows := []domain.BomRow{{MPN: "LM358DR", Quantity: 2, Row: 2}}
	syncer.On("ImportBOM", mock.Anything, "PCB-MAIN", expectedRows).Return(&domain.BomImportSummary{SuccessCount: 1}, nil).Once()
	res := post("pcb-main.csv")
	assert.Equal(t, http.StatusOK, res.StatusCode)

	syncer.AssertExpectations(t)
}

func TestHTTPHandler_ImportBOM_LocalSourceDisabledWithoutBomDir(t *testing.T) {
	syncer := new(MockSyncer)
	server := setupTestChiServer(t, syncer)

	res, err := http.Post(server.URL+"/api/v1/assemblies/PCB-MAIN/bom", "application/json",
		strings.NewReader(fmt.Sprintf(`{"source":%q}`, filepath.Join(t.TempDir(), "bom.csv"))))
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	syncer.AssertNotCalled(t, "ImportBOM", mock.Anything, mock.Anything, mock.Anything)
}

func TestHTTPHandler_Resync_StreamsNDJSON(t *testing.T) {
	syncer := new(MockSyncer)
	server := setupTestChiServer(t, syncer)

	statuses := []domain.ResyncStatus{
		{SKU: "296-6501-1-ND", Supplier: "digikey", Status: domain.ResyncUpToDate, InvenTreeID: 40, Message: "No changes"},
		{SKU: "603-RC0603FR-0710KL", Supplier: "mouser", Status: domain.ResyncUpdated, InvenTreeID: 41, Message: "Updated: active",
			Changes: domain.Changes{"active": {Old: true, New: false}}},
	}
	syncer.On("ResyncAll", mock.Anything, "").Return(slices.Values(statuses)).Once()

	res, err := http.Post(server.URL+"/api/v1/resync", "application/json", nil)
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "application/x-ndjson", res.Header.Get("Content-Type"))

	var got []domain.ResyncStatus
	scanner := bufio.NewScanner(res.Body)
	for scanner.Scan() {
		var st domain.ResyncStatus
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &st))
		got = append(got, st)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, got, 2)
	assert.Equal(t, domain.ResyncUpToDate, got[0].Status)
	assert.Equal(t, domain.ResyncUpdated, got[1].Status)
	assert.Equal(t, false, got[1].Changes["active"].New)

	syncer.AssertExpectations(t)
}

func TestHTTPHandler_Resync_InvalidSupplier(t *testing.T) {
	syncer := new(MockSyncer)
	server := setupTestChiServer(t, syncer)

	res, err := http.Post(server.URL+"/api/v1/resync?supplier=farnell", "application/json", nil)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestHTTPHandler_GetConfig_MasksSecrets(t *testing.T) {
	server := setupTestChiServer(t, new(MockSyncer))

	res, err := http.Get(server.URL + "/api/v1/config")
	require.NoError(t, err)
	defer res.Body.Close()

	require.Equal(t, http.StatusOK, res.StatusCode)
	var status config.Status
	require.NoError(t, json.NewDecoder(res.Body).Decode(&status))
	assert.True(t, status.Mouser.Configured)
	assert.False(t, status.Digikey.Configured)
	for _, f := range status.Details {
		assert.NotEqual(t, "inventree-token", f.Value)
		assert.NotEqual(t, "mouser-api-key-123", f.Value)
	}
}

func TestHTTPHandler_Runs(t *testing.T) {
	syncer := new(MockSyncer)
	server := setupTestChiServer(t, syncer)

	syncer.On("RecentRuns", mock.Anything, 20).Return(nil, nil).Once()
	syncer.On("RunItems", mock.Anything, "missing").Return(nil, store.ErrRunNotFound).Once()

	res, err := http.Get(server.URL + "/api/v1/runs")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	var runs []domain.SyncRun
	require.NoError(t, json.NewDecoder(res.Body).Decode(&runs))
	assert.NotNil(t, runs)
	assert.Empty(t, runs)

	missing, err := http.Get(server.URL + "/api/v1/runs/missing")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
	assert.Equal(t, store.ErrRunNotFound.Error(), decodeError(t, missing).Error)

	syncer.AssertExpectations(t)
}

func TestHTTPHandler_Healthz(t *testing.T) {
	syncer := new(MockSyncer)
	server := setupTestChiServer(t, syncer)
	syncer.On("Suppliers").Return([]string{"mouser"}).Once()

	res, err := http.Get(server.URL + "/api/v1/healthz")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)

	metrics, err := http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer metrics.Body.Close()
	assert.Equal(t, http.StatusOK, metrics.StatusCode)
}
