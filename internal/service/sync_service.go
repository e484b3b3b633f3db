package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"synctree/internal/domain"
	"synctree/internal/logging"
	"synctree/internal/store"
	"synctree/internal/suppliers"
)

var (
	// ErrPartNotFound is returned when no configured supplier produced the part.
	ErrPartNotFound = errors.New("service: part not found")
	// ErrUnknownSupplier is wrapped together with ErrPartNotFound when the caller names
	// a supplier that is not configured.
	ErrUnknownSupplier = errors.New("service: supplier not configured")
)

// AssemblyRevision is the revision given to newly created assembly parts.
const AssemblyRevision = "R100"

// SyncService coordinates supplier lookups, part resolution, BOM imports and resyncs.
type SyncService struct {
	inv       store.Inventory
	resolver  *Resolver
	suppliers []suppliers.Client
	history   store.HistoryStorer
	logger    *zap.Logger
}

// NewSyncService creates a SyncService. clients are tried in the given order.
func NewSyncService(inv store.Inventory, resolver *Resolver, clients []suppliers.Client, logger *zap.Logger) *SyncService {
	return &SyncService{
		inv:       inv,
		resolver:  resolver,
		suppliers: clients,
		logger:    logger.Named("sync"),
	}
}

// WithHistory makes batch operations record their runs in h.
func (s *SyncService) WithHistory(h store.HistoryStorer) *SyncService {
	s.history = h
	return s
}

// Suppliers returns the configured supplier keys in registration order.
func (s *SyncService) Suppliers() []string {
	keys := make([]string, 0, len(s.suppliers))
	for _, c := range s.suppliers {
		keys = append(keys, supplierKey(c))
	}
	return keys
}

func supplierKey(c suppliers.Client) string {
	return strings.ToLower(c.Name())
}

// clientFor finds the adapter for a supplier key or downstream company name.
func (s *SyncService) clientFor(name string) suppliers.Client {
	for _, c := range s.suppliers {
		if strings.EqualFold(c.Name(), name) {
			return c
		}
	}
	return nil
}

// GetPartFromSupplier looks partNumber up at the named supplier, or at every configured
// supplier in order when supplier is empty. The first supplier that finds the part wins;
// results are never merged. It returns the supplier key alongside the part.
func (s *SyncService) GetPartFromSupplier(ctx context.Context, partNumber, supplier string) (string, *domain.PartInfo, error) {
	partNumber = strings.TrimSpace(partNumber)

	candidates := s.suppliers
	if supplier != "" {
		c := s.clientFor(supplier)
		if c == nil {
			return "", nil, fmt.Errorf("%w: %w: %q", ErrPartNotFound, ErrUnknownSupplier, supplier)
		}
		candidates = []suppliers.Client{c}
	}

	var unavailable error
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return "", nil, err
		}
		info, err := c.GetPartInfo(ctx, partNumber)
		if err == nil {
			return supplierKey(c), info, nil
		}
		if suppliers.IsRetryable(err) {
			s.logger.Warn("supplier unavailable", logging.SupplierField(c.Name()), logging.PartField(partNumber), zap.Error(err))
			unavailable = err
			continue
		}
		s.logger.Debug("supplier has no match", logging.SupplierField(c.Name()), logging.PartField(partNumber))
	}

	if unavailable != nil {
		return "", nil, fmt.Errorf("%w: %q: %w", ErrPartNotFound, partNumber, unavailable)
	}
	return "", nil, fmt.Errorf("%w: %q", ErrPartNotFound, partNumber)
}

// SyncPart looks the part up and mirrors it downstream.
func (s *SyncService) SyncPart(ctx context.Context, partNumber, supplier string) (*domain.SyncResult, error) {
	key, info, err := s.GetPartFromSupplier(ctx, partNumber, supplier)
	if err != nil {
		return nil, err
	}

	partID, supplierPartID, err := s.resolver.SyncPart(ctx, info)
	if err != nil {
		return nil, err
	}

	s.logger.Info("part synced",
		logging.SupplierField(key),
		zap.String("mpn", info.ManufacturerPartNumber),
		zap.Int64("part_id", partID),
		zap.Int64("supplier_part_id", supplierPartID))

	return &domain.SyncResult{
		Success:                 true,
		Supplier:                key,
		Manufacturer:            info.ManufacturerName,
		ManufacturerPartNumber:  info.ManufacturerPartNumber,
		SupplierPartNumber:      info.SupplierPartNumber,
		InvenTreePartID:         partID,
		InvenTreeSupplierPartID: supplierPartID,
		Description:             info.Description,
	}, nil
}

// CreateAssemblyPart returns the assembly part whose IPN is partNumber, creating it when
// missing.
func (s *SyncService) CreateAssemblyPart(ctx context.Context, partNumber string) (*domain.AssemblyResult, error) {
	partNumber = strings.TrimSpace(partNumber)

	existing, err := s.inv.ListParts(ctx, store.PartFilter{IPN: partNumber})
	if err != nil {
		return nil, creationFailed("assembly", err)
	}
	if len(existing) > 0 {
		p := existing[0]
		return &domain.AssemblyResult{
			InvenTreePartID: p.ID,
			Name:            p.Name,
			Description:     p.Description,
			Exists:          true,
		}, nil
	}

	p, err := s.inv.CreatePart(ctx, &domain.Part{
		Name:        partNumber,
		IPN:         partNumber,
		Description: "Assembly: " + partNumber,
		Revision:    AssemblyRevision,
		Assembly:    true,
		Active:      true,
	})
	if err != nil {
		return nil, creationFailed("assembly", err)
	}
	s.logger.Info("assembly created", zap.String("ipn", partNumber), zap.Int64("part_id", p.ID))

	return &domain.AssemblyResult{
		InvenTreePartID: p.ID,
		Name:            p.Name,
		Description:     p.Description,
	}, nil
}

// AddBomItem links subPartID to assemblyID. An existing link is returned unchanged.
func (s *SyncService) AddBomItem(ctx context.Context, assemblyID, subPartID int64, quantity float64, reference string) (*domain.BomItemResult, error) {
	existing, err := s.inv.ListBomItems(ctx, store.BomItemFilter{Part: assemblyID, SubPart: subPartID})
	if err != nil {
		return nil, creationFailed("bom item", err)
	}
	if len(existing) > 0 {
		return &domain.BomItemResult{BomItemID: existing[0].ID, Exists: true}, nil
	}

	item, err := s.inv.CreateBomItem(ctx, &domain.BomItem{
		Part:      assemblyID,
		SubPart:   subPartID,
		Quantity:  quantity,
		Reference: strings.TrimSpace(reference),
	})
	if err != nil {
		return nil, creationFailed("bom item", err)
	}
	return &domain.BomItemResult{BomItemID: item.ID}, nil
}
