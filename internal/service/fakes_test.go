package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"synctree/internal/domain"
	"synctree/internal/store"
	"synctree/internal/suppliers"
)

// fakeSupplier serves PartInfo records keyed by part number.
type fakeSupplier struct {
	mu    sync.Mutex
	name  string
	parts map[string]*domain.PartInfo
	err   error // returned for unknown numbers instead of ErrNotFound
	calls []string
}

func newFakeSupplier(name string, parts ...*domain.PartInfo) *fakeSupplier {
	f := &fakeSupplier{name: name, parts: make(map[string]*domain.PartInfo)}
	for _, p := range parts {
		f.add(p)
	}
	return f
}

// add registers p under both its SKU and MPN.
func (f *fakeSupplier) add(p *domain.PartInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.parts[p.SupplierPartNumber] = p
	f.parts[p.ManufacturerPartNumber] = p
}

func (f *fakeSupplier) remove(pn string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.parts, pn)
}

func (f *fakeSupplier) Name() string { return f.name }

func (f *fakeSupplier) GetPartInfo(_ context.Context, partNumber string) (*domain.PartInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, partNumber)
	if p, ok := f.parts[partNumber]; ok {
		cp := *p
		return &cp, nil
	}
	if f.err != nil {
		return nil, f.err
	}
	return nil, fmt.Errorf("%s lookup %q: %w", f.name, partNumber, suppliers.ErrNotFound)
}

func (f *fakeSupplier) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// fakeImages writes a small file per download into dir.
type fakeImages struct {
	dir       string
	err       error
	downloads []string
}

func (f *fakeImages) Download(_ context.Context, url string) (string, error) {
	f.downloads = append(f.downloads, url)
	if f.err != nil {
		return "", f.err
	}
	p := filepath.Join(f.dir, fmt.Sprintf("img-%d.jpg", len(f.downloads)))
	if err := os.WriteFile(p, []byte("jpeg:"+url), 0o644); err != nil {
		return "", err
	}
	return p, nil
}

// fakeHistory keeps runs in memory.
type fakeHistory struct {
	mu       sync.Mutex
	runs     []domain.SyncRun
	items    []domain.SyncRunItem
	finished []domain.SyncRun
	failAdd  error
}

func (h *fakeHistory) CreateRun(_ context.Context, run *domain.SyncRun) (*domain.SyncRun, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	created := *run
	created.ID = fmt.Sprintf("run-%d", len(h.runs)+1)
	h.runs = append(h.runs, created)
	return &created, nil
}

func (h *fakeHistory) AddRunItem(_ context.Context, item *domain.SyncRunItem) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failAdd != nil {
		return h.failAdd
	}
	h.items = append(h.items, *item)
	return nil
}

func (h *fakeHistory) FinishRun(_ context.Context, run *domain.SyncRun) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.finished = append(h.finished, *run)
	return nil
}

func (h *fakeHistory) ListRuns(_ context.Context, limit int) ([]domain.SyncRun, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if limit > len(h.finished) {
		limit = len(h.finished)
	}
	return append([]domain.SyncRun(nil), h.finished[:limit]...), nil
}

func (h *fakeHistory) ListRunItems(_ context.Context, runID string) ([]domain.SyncRunItem, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []domain.SyncRunItem
	for _, it := range h.items {
		if it.RunID == runID {
			out = append(out, it)
		}
	}
	if out == nil {
		return nil, store.ErrRunNotFound
	}
	return out, nil
}

func opampInfo() *domain.PartInfo {
	return &domain.PartInfo{
		ManufacturerName:       "Texas Instruments",
		ManufacturerPartNumber: "LM358DR",
		SupplierName:           "Digikey",
		SupplierPartNumber:     "296-6501-1-ND",
		Description:            "IC OPAMP GP 2 CIRCUIT 8SOIC",
		DatasheetURL:           store.PtrTo("https://www.ti.com/lit/ds/symlink/lm358.pdf"),
		ProductURL:             store.PtrTo("https://www.digikey.com/en/products/detail/LM358DR"),
		Category:               store.PtrTo("Integrated Circuits (ICs)"),
		Packaging:              store.PtrTo("Cut Tape (CT)"),
		Pricing:                domain.PriceBreaks{1: 0.45, 10: 0.38, 100: 0.27},
		Parameters:             map[string]string{"Package / Case": "8-SOIC", "Voltage - Supply": "3V ~ 32V"},
		IsActive:               true,
	}
}

func resistorInfo() *domain.PartInfo {
	return &domain.PartInfo{
		ManufacturerName:       "YAGEO",
		ManufacturerPartNumber: "RC0603FR-0710KL",
		SupplierName:           "Mouser",
		SupplierPartNumber:     "603-RC0603FR-0710KL",
		Description:            "Thick Film Resistors - SMD 10K OHM 1%",
		Pricing:                domain.PriceBreaks{1: 0.10, 100: 0.02},
		IsActive:               true,
	}
}
