package service

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"go.uber.org/zap"

	"synctree/internal/domain"
	"synctree/internal/metrics"
	"synctree/internal/store"
	"synctree/internal/suppliers"
)

// ResyncAll walks the downstream supplier parts, optionally only those of one supplier,
// and yields one status per part as it is processed. Parts whose supplier has no
// configured adapter, or that have no SKU, are skipped without a status.
//
// The sequence is lazy and single-use: breaking out of the loop stops the walk, and
// updates already written stay in place.
func (s *SyncService) ResyncAll(ctx context.Context, supplier string) iter.Seq[domain.ResyncStatus] {
	return func(yield func(domain.ResyncStatus) bool) {
		logger := s.logger.With(zap.String("supplier_filter", supplier))

		parts, err := s.resyncTargets(ctx, supplier)
		if err != nil {
			logger.Error("could not list supplier parts", zap.Error(err))
			yield(domain.ResyncStatus{
				Supplier: supplier,
				Status:   domain.ResyncError,
				Message:  fmt.Sprintf("Could not list supplier parts: %v", err),
			})
			return
		}
		logger.Info("resync started", zap.Int("supplier_parts", len(parts)))

		rec := s.startRun(ctx, RunKindResync, supplier)
		defer rec.finish(ctx)

		for _, sp := range parts {
			if ctx.Err() != nil {
				return
			}
			client := s.clientFor(sp.SupplierName())
			if client == nil || strings.TrimSpace(sp.SKU) == "" {
				continue
			}

			st := s.resyncOne(ctx, logger, client, sp)
			metrics.RecordResync(st.Supplier, string(st.Status))

			id := st.InvenTreeID
			rec.add(ctx, domain.SyncRunItem{
				Reference:   st.SKU,
				Supplier:    st.Supplier,
				Status:      string(st.Status),
				Message:     st.Message,
				InvenTreeID: &id,
			}, st.Status == domain.ResyncUpToDate || st.Status == domain.ResyncUpdated)

			if !yield(st) {
				return
			}
		}
	}
}

// resyncTargets lists supplier parts; with a supplier filter only that supplier's
// companies are consulted.
func (s *SyncService) resyncTargets(ctx context.Context, supplier string) ([]domain.SupplierPart, error) {
	if supplier == "" {
		return s.inv.ListSupplierParts(ctx, store.SupplierPartFilter{})
	}

	companies, err := s.inv.ListCompanies(ctx, store.CompanyFilter{IsSupplier: store.PtrTo(true)})
	if err != nil {
		return nil, err
	}
	var parts []domain.SupplierPart
	for _, c := range companies {
		if !strings.EqualFold(c.Name, supplier) {
			continue
		}
		sps, err := s.inv.ListSupplierParts(ctx, store.SupplierPartFilter{Supplier: c.ID})
		if err != nil {
			return nil, err
		}
		parts = append(parts, sps...)
	}
	return parts, nil
}

// resyncOne converts every outcome, panics included, into a status.
func (s *SyncService) resyncOne(ctx context.Context, logger *zap.Logger, client suppliers.Client, sp domain.SupplierPart) (st domain.ResyncStatus) {
	st = domain.ResyncStatus{
		SKU:         sp.SKU,
		Supplier:    supplierKey(client),
		InvenTreeID: sp.ID,
	}
	logger = logger.With(zap.String("sku", sp.SKU), zap.Int64("supplier_part_id", sp.ID))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("resync panicked", zap.Any("panic", r))
			st.Status = domain.ResyncError
			st.Message = fmt.Sprintf("Error: %v", r)
			st.Changes = nil
		}
	}()

	info, err := client.GetPartInfo(ctx, sp.SKU)
	if err != nil {
		if suppliers.IsRetryable(err) {
			logger.Warn("supplier unavailable during resync", zap.Error(err))
		}
		st.Status = domain.ResyncNotFound
		st.Message = "Part not found at " + client.Name()
		return st
	}

	breaks, err := s.inv.ListPriceBreaks(ctx, sp.ID)
	if err != nil {
		logger.Warn("price breaks not readable", zap.Error(err))
		st.Status = domain.ResyncError
		st.Message = fmt.Sprintf("Error: %v", err)
		return st
	}

	changes := Compare(domain.SupplierPartSnapshot{
		ID:           sp.ID,
		SKU:          sp.SKU,
		SupplierName: sp.SupplierName(),
		Active:       sp.Active,
		PriceBreaks:  breaks,
	}, *info)
	if len(changes) == 0 {
		st.Status = domain.ResyncUpToDate
		st.Message = "No changes"
		return st
	}
	st.Changes = changes

	if err := s.applyChanges(ctx, sp, breaks, info); err != nil {
		logger.Warn("supplier part update failed", zap.Error(err))
		st.Status = domain.ResyncUpdateFailed
		st.Message = fmt.Sprintf("Failed to update: %v", err)
		return st
	}

	logger.Info("supplier part updated", zap.Strings("fields", changedFields(changes)))
	st.Status = domain.ResyncUpdated
	st.Message = "Updated: " + strings.Join(changedFields(changes), ", ")
	return st
}

// applyChanges sets the active flag and, when the supplier returned prices, replaces
// every existing price break with the fresh set.
func (s *SyncService) applyChanges(ctx context.Context, sp domain.SupplierPart, existing []domain.PriceBreak, info *domain.PartInfo) error {
	if _, err := s.inv.UpdateSupplierPart(ctx, sp.ID, store.SupplierPartUpdate{Active: store.PtrTo(info.IsActive)}); err != nil {
		return err
	}
	if !info.HasPricing() {
		return nil
	}
	for _, pb := range existing {
		if err := s.inv.DeletePriceBreak(ctx, pb.ID); err != nil {
			return fmt.Errorf("delete price break %d: %w", pb.ID, err)
		}
	}
	return createPriceBreaks(ctx, s.inv, sp.ID, sp.Supplier, info.Pricing)
}

func changedFields(c domain.Changes) []string {
	var fields []string
	for _, f := range []string{FieldActive, FieldPricing} {
		if _, ok := c[f]; ok {
			fields = append(fields, f)
		}
	}
	return fields
}
