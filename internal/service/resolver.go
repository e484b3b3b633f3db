// Package service holds the synchronization logic between supplier catalogs and the
// downstream inventory.
package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"synctree/internal/config"
	"synctree/internal/domain"
	"synctree/internal/metrics"
	"synctree/internal/store"
)

// ErrCreationFailed wraps any required downstream call that failed while resolving a part.
var ErrCreationFailed = errors.New("service: downstream creation failed")

// ImageFetcher downloads an image and returns the local file path.
type ImageFetcher interface {
	Download(ctx context.Context, url string) (string, error)
}

// Resolver maps a PartInfo onto downstream entities, reusing existing records by
// natural key and creating the missing ones.
type Resolver struct {
	inv     store.Inventory
	images  ImageFetcher
	partKey string
	logger  *zap.Logger
}

// NewResolver creates a Resolver. images may be nil, which disables image uploads.
// An empty partKey selects config.PartKeyName.
func NewResolver(inv store.Inventory, images ImageFetcher, partKey string, logger *zap.Logger) *Resolver {
	if partKey == "" {
		partKey = config.PartKeyName
	}
	return &Resolver{inv: inv, images: images, partKey: partKey, logger: logger.Named("resolver")}
}

func creationFailed(step string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrCreationFailed, step, err)
}

// SyncPart returns the downstream Part and SupplierPart IDs for info, creating whatever
// does not exist yet. Calling it again with the same info returns the same IDs.
func (r *Resolver) SyncPart(ctx context.Context, info *domain.PartInfo) (partID, supplierPartID int64, err error) {
	if err := info.Validate(); err != nil {
		return 0, 0, fmt.Errorf("service: resolve part: %w", err)
	}
	logger := r.logger.With(zap.String("mpn", info.ManufacturerPartNumber), zap.String("sku", info.SupplierPartNumber))

	manufacturer, err := r.getOrCreateManufacturer(ctx, info.ManufacturerName)
	if err != nil {
		return 0, 0, creationFailed("manufacturer", err)
	}

	var categoryID *int64
	if info.Category != nil {
		category, err := r.getOrCreateCategory(ctx, *info.Category, nil)
		if err != nil {
			return 0, 0, creationFailed("category", err)
		}
		categoryID = &category.ID
	}

	part, err := r.getOrCreatePart(ctx, logger, info, categoryID)
	if err != nil {
		return 0, 0, creationFailed("part", err)
	}

	mp, err := r.getOrCreateManufacturerPart(ctx, logger, part, manufacturer, info)
	if err != nil {
		return 0, 0, creationFailed("manufacturer part", err)
	}

	supplier, err := r.getOrCreateSupplier(ctx, info.SupplierName)
	if err != nil {
		return 0, 0, creationFailed("supplier", err)
	}

	sp, err := r.getOrCreateSupplierPart(ctx, logger, part, mp, supplier, info)
	if err != nil {
		return 0, 0, creationFailed("supplier part", err)
	}

	return part.ID, sp.ID, nil
}

func (r *Resolver) getOrCreateManufacturer(ctx context.Context, name string) (*domain.Company, error) {
	existing, err := r.inv.ListCompanies(ctx, store.CompanyFilter{Name: name, IsManufacturer: store.PtrTo(true)})
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return &existing[0], nil
	}
	return r.inv.CreateCompany(ctx, &domain.Company{Name: name, IsManufacturer: true})
}

func (r *Resolver) getOrCreateSupplier(ctx context.Context, name string) (*domain.Company, error) {
	existing, err := r.inv.ListCompanies(ctx, store.CompanyFilter{Name: name, IsSupplier: store.PtrTo(true)})
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return &existing[0], nil
	}
	return r.inv.CreateCompany(ctx, &domain.Company{
		Name:        name,
		Description: "Supplier: " + name,
		IsSupplier:  true,
	})
}

func (r *Resolver) getOrCreateCategory(ctx context.Context, name string, parent *int64) (*domain.Category, error) {
	existing, err := r.inv.ListCategories(ctx, store.CategoryFilter{Name: name, Parent: parent})
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return &existing[0], nil
	}
	return r.inv.CreateCategory(ctx, &domain.Category{Name: name, Parent: parent})
}

// partFilter builds the natural-key lookup for the configured PART_KEY strategy.
func (r *Resolver) partFilter(info *domain.PartInfo, categoryID *int64) store.PartFilter {
	switch r.partKey {
	case config.PartKeyIPN:
		return store.PartFilter{IPN: info.PartName()}
	case config.PartKeyNameCategory:
		return store.PartFilter{Name: info.PartName(), Category: categoryID}
	default:
		return store.PartFilter{Name: info.PartName()}
	}
}

func (r *Resolver) getOrCreatePart(ctx context.Context, logger *zap.Logger, info *domain.PartInfo, categoryID *int64) (*domain.Part, error) {
	existing, err := r.inv.ListParts(ctx, r.partFilter(info, categoryID))
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		part := existing[0]
		if info.ImageURL != nil {
			r.backfillImage(ctx, logger, part.ID, *info.ImageURL)
		}
		return &part, nil
	}

	newPart := &domain.Part{
		Name:         info.PartName(),
		Description:  info.Description,
		Category:     categoryID,
		Component:    true,
		Purchaseable: true,
		Active:       true,
	}
	if r.partKey == config.PartKeyIPN {
		newPart.IPN = info.PartName()
	}

	part, err := r.inv.CreatePart(ctx, newPart)
	if err != nil {
		return nil, err
	}
	if info.ImageURL != nil {
		r.uploadImage(ctx, logger, part.ID, *info.ImageURL)
	}
	return part, nil
}

// backfillImage uploads an image only when the existing part has none.
func (r *Resolver) backfillImage(ctx context.Context, logger *zap.Logger, partID int64, imageURL string) {
	if r.images == nil {
		return
	}
	part, err := r.inv.GetPart(ctx, partID)
	if err != nil {
		logger.Warn("could not check part image", zap.Int64("part_id", partID), zap.Error(err))
		metrics.RecordSideEffectFailure("image")
		return
	}
	if part.HasImage() {
		return
	}
	r.uploadImage(ctx, logger, partID, imageURL)
}

func (r *Resolver) uploadImage(ctx context.Context, logger *zap.Logger, partID int64, imageURL string) {
	if r.images == nil {
		return
	}
	path, err := r.images.Download(ctx, imageURL)
	if err != nil {
		logger.Warn("image download failed", zap.String("url", imageURL), zap.Error(err))
		metrics.RecordSideEffectFailure("image")
		return
	}

	f, err := os.Open(path)
	if err != nil {
		logger.Warn("cached image unreadable", zap.String("path", path), zap.Error(err))
		metrics.RecordSideEffectFailure("image")
		return
	}
	defer f.Close()

	if err := r.inv.UploadPartImage(ctx, partID, filepath.Base(path), f); err != nil {
		logger.Warn("image upload failed", zap.Int64("part_id", partID), zap.Error(err))
		metrics.RecordSideEffectFailure("image")
		return
	}
	logger.Debug("image uploaded", zap.Int64("part_id", partID))
}

func (r *Resolver) getOrCreateManufacturerPart(ctx context.Context, logger *zap.Logger, part *domain.Part, manufacturer *domain.Company, info *domain.PartInfo) (*domain.ManufacturerPart, error) {
	existing, err := r.inv.ListManufacturerParts(ctx, store.ManufacturerPartFilter{
		Manufacturer: manufacturer.ID,
		MPN:          info.ManufacturerPartNumber,
	})
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return &existing[0], nil
	}

	mp, err := r.inv.CreateManufacturerPart(ctx, &domain.ManufacturerPart{
		Part:         part.ID,
		Manufacturer: manufacturer.ID,
		MPN:          info.ManufacturerPartNumber,
		Description:  info.Description,
		Link:         deref(info.DatasheetURL),
		Note:         "Synced from " + info.SupplierName,
	})
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(info.Parameters))
	for name := range info.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		_, err := r.inv.CreateManufacturerPartParameter(ctx, &domain.ManufacturerPartParameter{
			ManufacturerPart: mp.ID,
			Name:             name,
			Value:            info.Parameters[name],
		})
		if err != nil {
			logger.Warn("parameter not stored", zap.String("parameter", name), zap.Error(err))
			metrics.RecordSideEffectFailure("parameter")
		}
	}
	return mp, nil
}

func (r *Resolver) getOrCreateSupplierPart(ctx context.Context, logger *zap.Logger, part *domain.Part, mp *domain.ManufacturerPart, supplier *domain.Company, info *domain.PartInfo) (*domain.SupplierPart, error) {
	existing, err := r.inv.ListSupplierParts(ctx, store.SupplierPartFilter{
		Part:     part.ID,
		Supplier: supplier.ID,
		SKU:      info.SupplierPartNumber,
	})
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return &existing[0], nil
	}

	sp, err := r.inv.CreateSupplierPart(ctx, &domain.SupplierPart{
		Part:             part.ID,
		Supplier:         supplier.ID,
		ManufacturerPart: &mp.ID,
		SKU:              info.SupplierPartNumber,
		MPN:              info.ManufacturerPartNumber,
		Description:      info.Description,
		Link:             deref(info.ProductURL),
		Note:             "Synced from " + info.SupplierName,
		Packaging:        info.Packaging,
		Active:           info.IsActive,
	})
	if err != nil {
		return nil, err
	}

	if err := createPriceBreaks(ctx, r.inv, sp.ID, supplier.ID, info.Pricing); err != nil {
		logger.Warn("price breaks incomplete", zap.Int64("supplier_part_id", sp.ID), zap.Error(err))
		metrics.RecordSideEffectFailure("price_break")
	}
	return sp, nil
}

// createPriceBreaks creates one break per quantity in ascending order, all stamped
// with the supplier company and one update time, and reports every failure,
// continuing past them.
func createPriceBreaks(ctx context.Context, inv store.PriceBreakStorer, supplierPartID, supplierID int64, pricing domain.PriceBreaks) error {
	now := time.Now().UTC()
	var errs []error
	for _, qty := range pricing.Quantities() {
		_, err := inv.CreatePriceBreak(ctx, &domain.PriceBreak{
			Part:     supplierPartID,
			Quantity: float64(qty),
			Price:    pricing[qty],
			Supplier: supplierID,
			Updated:  &now,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("quantity %d: %w", qty, err))
		}
	}
	return errors.Join(errs...)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
