package store

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"synctree/internal/domain"
)

var _ Inventory = (*MemoryStore)(nil)

// MemoryStore is an in-process Inventory. It backs dry runs and tests; nothing is persisted.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64

	companies   map[int64]domain.Company
	categories  map[int64]domain.Category
	parts       map[int64]domain.Part
	mparts      map[int64]domain.ManufacturerPart
	mpParams    map[int64]domain.ManufacturerPartParameter
	sparts      map[int64]domain.SupplierPart
	priceBreaks map[int64]domain.PriceBreak
	bomItems    map[int64]domain.BomItem
	images      map[int64][]byte

	// failures forces an operation (e.g. "CreateSupplierPart") to return an error.
	failures map[string]error
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		companies:   make(map[int64]domain.Company),
		categories:  make(map[int64]domain.Category),
		parts:       make(map[int64]domain.Part),
		mparts:      make(map[int64]domain.ManufacturerPart),
		mpParams:    make(map[int64]domain.ManufacturerPartParameter),
		sparts:      make(map[int64]domain.SupplierPart),
		priceBreaks: make(map[int64]domain.PriceBreak),
		bomItems:    make(map[int64]domain.BomItem),
		images:      make(map[int64][]byte),
		failures:    make(map[string]error),
	}
}

// FailOn makes every later call of op return err. A nil err clears the failure.
func (m *MemoryStore) FailOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, op)
		return
	}
	m.failures[op] = err
}

// Image returns the bytes uploaded for a part, if any.
func (m *MemoryStore) Image(partID int64) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	img, ok := m.images[partID]
	return img, ok
}

// ManufacturerPartParameters returns the parameters stored for a manufacturer part.
func (m *MemoryStore) ManufacturerPartParameters(mpID int64) []domain.ManufacturerPartParameter {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ManufacturerPartParameter
	for _, p := range m.mpParams {
		if p.ManufacturerPart == mpID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// fail must be called with m.mu held.
func (m *MemoryStore) fail(op string) error {
	if err, ok := m.failures[op]; ok {
		return fmt.Errorf("store: %s: %w", op, err)
	}
	return nil
}

// id must be called with m.mu held.
func (m *MemoryStore) id() int64 {
	m.nextID++
	return m.nextID
}

func sortedByID[T any](items map[int64]T, keep func(T) bool) []T {
	ids := make([]int64, 0, len(items))
	for id := range items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]T, 0, len(ids))
	for _, id := range ids {
		if v := items[id]; keep(v) {
			out = append(out, v)
		}
	}
	return out
}

// --- CompanyStorer Implementation ---

func (m *MemoryStore) ListCompanies(_ context.Context, filter CompanyFilter) ([]domain.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListCompanies"); err != nil {
		return nil, err
	}
	return sortedByID(m.companies, func(c domain.Company) bool {
		return (filter.Name == "" || c.Name == filter.Name) &&
			(filter.IsManufacturer == nil || c.IsManufacturer == *filter.IsManufacturer) &&
			(filter.IsSupplier == nil || c.IsSupplier == *filter.IsSupplier)
	}), nil
}

func (m *MemoryStore) CreateCompany(_ context.Context, company *domain.Company) (*domain.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateCompany"); err != nil {
		return nil, err
	}
	c := *company
	c.ID = m.id()
	m.companies[c.ID] = c
	return &c, nil
}

// --- CategoryStorer Implementation ---

func (m *MemoryStore) ListCategories(_ context.Context, filter CategoryFilter) ([]domain.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListCategories"); err != nil {
		return nil, err
	}
	return sortedByID(m.categories, func(c domain.Category) bool {
		return (filter.Name == "" || c.Name == filter.Name) && sameParent(c.Parent, filter.Parent)
	}), nil
}

func (m *MemoryStore) CreateCategory(_ context.Context, category *domain.Category) (*domain.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateCategory"); err != nil {
		return nil, err
	}
	c := *category
	c.ID = m.id()
	m.categories[c.ID] = c
	return &c, nil
}

// --- PartStorer Implementation ---

func (m *MemoryStore) ListParts(_ context.Context, filter PartFilter) ([]domain.Part, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListParts"); err != nil {
		return nil, err
	}
	return sortedByID(m.parts, func(p domain.Part) bool {
		return (filter.Name == "" || p.Name == filter.Name) &&
			(filter.IPN == "" || p.IPN == filter.IPN) &&
			(filter.Category == nil || (p.Category != nil && *p.Category == *filter.Category))
	}), nil
}

func (m *MemoryStore) GetPart(_ context.Context, id int64) (*domain.Part, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("GetPart"); err != nil {
		return nil, err
	}
	p, ok := m.parts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *MemoryStore) CreatePart(_ context.Context, part *domain.Part) (*domain.Part, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreatePart"); err != nil {
		return nil, err
	}
	p := *part
	p.ID = m.id()
	m.parts[p.ID] = p
	return &p, nil
}

func (m *MemoryStore) UploadPartImage(_ context.Context, id int64, filename string, image io.Reader) error {
	data, err := io.ReadAll(image)
	if err != nil {
		return fmt.Errorf("store: UploadPartImage failed to read image: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("UploadPartImage"); err != nil {
		return err
	}
	p, ok := m.parts[id]
	if !ok {
		return ErrNotFound
	}
	url := "/media/part_images/" + filename
	p.Image = &url
	m.parts[id] = p
	m.images[id] = data
	return nil
}

// --- ManufacturerPartStorer Implementation ---

func (m *MemoryStore) ListManufacturerParts(_ context.Context, filter ManufacturerPartFilter) ([]domain.ManufacturerPart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListManufacturerParts"); err != nil {
		return nil, err
	}
	return sortedByID(m.mparts, func(mp domain.ManufacturerPart) bool {
		return (filter.Part == 0 || mp.Part == filter.Part) &&
			(filter.Manufacturer == 0 || mp.Manufacturer == filter.Manufacturer) &&
			(filter.MPN == "" || mp.MPN == filter.MPN)
	}), nil
}

func (m *MemoryStore) CreateManufacturerPart(_ context.Context, mp *domain.ManufacturerPart) (*domain.ManufacturerPart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateManufacturerPart"); err != nil {
		return nil, err
	}
	created := *mp
	created.ID = m.id()
	m.mparts[created.ID] = created
	return &created, nil
}

func (m *MemoryStore) CreateManufacturerPartParameter(_ context.Context, param *domain.ManufacturerPartParameter) (*domain.ManufacturerPartParameter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateManufacturerPartParameter"); err != nil {
		return nil, err
	}
	created := *param
	created.ID = m.id()
	m.mpParams[created.ID] = created
	return &created, nil
}

// --- SupplierPartStorer Implementation ---

func (m *MemoryStore) ListSupplierParts(_ context.Context, filter SupplierPartFilter) ([]domain.SupplierPart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListSupplierParts"); err != nil {
		return nil, err
	}
	sps := sortedByID(m.sparts, func(sp domain.SupplierPart) bool {
		return (filter.Part == 0 || sp.Part == filter.Part) &&
			(filter.Supplier == 0 || sp.Supplier == filter.Supplier) &&
			(filter.SKU == "" || sp.SKU == filter.SKU)
	})
	for i := range sps {
		if c, ok := m.companies[sps[i].Supplier]; ok {
			detail := c
			sps[i].SupplierDetail = &detail
		}
	}
	return sps, nil
}

func (m *MemoryStore) CreateSupplierPart(_ context.Context, sp *domain.SupplierPart) (*domain.SupplierPart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateSupplierPart"); err != nil {
		return nil, err
	}
	created := *sp
	created.ID = m.id()
	created.SupplierDetail = nil
	m.sparts[created.ID] = created
	return &created, nil
}

func (m *MemoryStore) UpdateSupplierPart(_ context.Context, id int64, update SupplierPartUpdate) (*domain.SupplierPart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("UpdateSupplierPart"); err != nil {
		return nil, err
	}
	sp, ok := m.sparts[id]
	if !ok {
		return nil, ErrNotFound
	}
	if update.Active != nil {
		sp.Active = *update.Active
	}
	m.sparts[id] = sp
	return &sp, nil
}

// --- PriceBreakStorer Implementation ---

func (m *MemoryStore) ListPriceBreaks(_ context.Context, supplierPartID int64) ([]domain.PriceBreak, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListPriceBreaks"); err != nil {
		return nil, err
	}
	return sortedByID(m.priceBreaks, func(pb domain.PriceBreak) bool {
		return pb.Part == supplierPartID
	}), nil
}

func (m *MemoryStore) CreatePriceBreak(_ context.Context, pb *domain.PriceBreak) (*domain.PriceBreak, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreatePriceBreak"); err != nil {
		return nil, err
	}
	created := *pb
	created.ID = m.id()
	if created.Updated == nil {
		now := time.Now().UTC()
		created.Updated = &now
	}
	m.priceBreaks[created.ID] = created
	return &created, nil
}

func (m *MemoryStore) DeletePriceBreak(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("DeletePriceBreak"); err != nil {
		return err
	}
	if _, ok := m.priceBreaks[id]; !ok {
		return ErrNotFound
	}
	delete(m.priceBreaks, id)
	return nil
}

// --- BomItemStorer Implementation ---

func (m *MemoryStore) ListBomItems(_ context.Context, filter BomItemFilter) ([]domain.BomItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListBomItems"); err != nil {
		return nil, err
	}
	return sortedByID(m.bomItems, func(b domain.BomItem) bool {
		return (filter.Part == 0 || b.Part == filter.Part) &&
			(filter.SubPart == 0 || b.SubPart == filter.SubPart)
	}), nil
}

func (m *MemoryStore) CreateBomItem(_ context.Context, item *domain.BomItem) (*domain.BomItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("CreateBomItem"); err != nil {
		return nil, err
	}
	created := *item
	created.ID = m.id()
	m.bomItems[created.ID] = created
	return &created, nil
}
