package store

import (
	"context"
	"io"

	"synctree/internal/domain"
)

// CompanyFilter selects companies by exact name and role.
type CompanyFilter struct {
	Name           string
	IsManufacturer *bool
	IsSupplier     *bool
}

// CompanyStorer defines the downstream operations for companies.
type CompanyStorer interface {
	ListCompanies(ctx context.Context, filter CompanyFilter) ([]domain.Company, error)
	CreateCompany(ctx context.Context, company *domain.Company) (*domain.Company, error)
}

// CategoryFilter selects categories by name under a parent. A nil Parent means top level.
type CategoryFilter struct {
	Name   string
	Parent *int64
}

// CategoryStorer defines the downstream operations for part categories.
type CategoryStorer interface {
	ListCategories(ctx context.Context, filter CategoryFilter) ([]domain.Category, error)
	CreateCategory(ctx context.Context, category *domain.Category) (*domain.Category, error)
}

// PartFilter selects parts. Empty fields are not filtered on.
type PartFilter struct {
	Name     string
	IPN      string
	Category *int64
}

// PartStorer defines the downstream operations for parts.
type PartStorer interface {
	ListParts(ctx context.Context, filter PartFilter) ([]domain.Part, error)
	GetPart(ctx context.Context, id int64) (*domain.Part, error)
	CreatePart(ctx context.Context, part *domain.Part) (*domain.Part, error)
	// UploadPartImage attaches an image file to an existing part.
	UploadPartImage(ctx context.Context, id int64, filename string, image io.Reader) error
}

// ManufacturerPartFilter selects manufacturer parts. Zero values are not filtered on.
type ManufacturerPartFilter struct {
	Part         int64
	Manufacturer int64
	MPN          string
}

// ManufacturerPartStorer defines the downstream operations for manufacturer parts and their parameters.
type ManufacturerPartStorer interface {
	ListManufacturerParts(ctx context.Context, filter ManufacturerPartFilter) ([]domain.ManufacturerPart, error)
	CreateManufacturerPart(ctx context.Context, mp *domain.ManufacturerPart) (*domain.ManufacturerPart, error)
	CreateManufacturerPartParameter(ctx context.Context, param *domain.ManufacturerPartParameter) (*domain.ManufacturerPartParameter, error)
}

// SupplierPartFilter selects supplier parts. Zero values are not filtered on.
type SupplierPartFilter struct {
	Part     int64
	Supplier int64
	SKU      string
}

// SupplierPartUpdate carries the subset of fields a resync may change.
type SupplierPartUpdate struct {
	Active *bool `json:"active,omitempty"`
}

// SupplierPartStorer defines the downstream operations for supplier parts.
// Listed supplier parts always carry their SupplierDetail.
type SupplierPartStorer interface {
	ListSupplierParts(ctx context.Context, filter SupplierPartFilter) ([]domain.SupplierPart, error)
	CreateSupplierPart(ctx context.Context, sp *domain.SupplierPart) (*domain.SupplierPart, error)
	UpdateSupplierPart(ctx context.Context, id int64, update SupplierPartUpdate) (*domain.SupplierPart, error)
}

// PriceBreakStorer defines the downstream operations for supplier price breaks.
type PriceBreakStorer interface {
	ListPriceBreaks(ctx context.Context, supplierPartID int64) ([]domain.PriceBreak, error)
	CreatePriceBreak(ctx context.Context, pb *domain.PriceBreak) (*domain.PriceBreak, error)
	DeletePriceBreak(ctx context.Context, id int64) error
}

// BomItemFilter selects BOM lines of an assembly, optionally for one sub-part.
type BomItemFilter struct {
	Part    int64
	SubPart int64
}

// BomItemStorer defines the downstream operations for BOM lines.
type BomItemStorer interface {
	ListBomItems(ctx context.Context, filter BomItemFilter) ([]domain.BomItem, error)
	CreateBomItem(ctx context.Context, item *domain.BomItem) (*domain.BomItem, error)
}

// Inventory is the full downstream inventory surface synctree depends on.
type Inventory interface {
	CompanyStorer
	CategoryStorer
	PartStorer
	ManufacturerPartStorer
	SupplierPartStorer
	PriceBreakStorer
	BomItemStorer
}

// HistoryStorer defines the persistence of batch run history.
type HistoryStorer interface {
	CreateRun(ctx context.Context, run *domain.SyncRun) (*domain.SyncRun, error)
	AddRunItem(ctx context.Context, item *domain.SyncRunItem) error
	FinishRun(ctx context.Context, run *domain.SyncRun) error
	ListRuns(ctx context.Context, limit int) ([]domain.SyncRun, error)
	ListRunItems(ctx context.Context, runID string) ([]domain.SyncRunItem, error)
}

// PtrTo returns a pointer to v, handy for optional filter fields.
func PtrTo[T any](v T) *T {
	return &v
}
