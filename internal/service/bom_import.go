package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"synctree/internal/domain"
	"synctree/internal/logging"
	"synctree/internal/metrics"
)

// BomProgress is called after each row with the number of rows done so far.
type BomProgress func(done, total int, row domain.BomRowResult)

// ImportBOM syncs every row's part and links it to the assembly identified by
// assemblyPN. Row failures are recorded in the summary and never stop the import; only
// failing to get or create the assembly itself, or ctx cancellation, returns an error.
func (s *SyncService) ImportBOM(ctx context.Context, assemblyPN string, rows []domain.BomRow, progress BomProgress) (*domain.BomImportSummary, error) {
	assembly, err := s.CreateAssemblyPart(ctx, assemblyPN)
	if err != nil {
		return nil, err
	}

	logger := s.logger.With(zap.String("assembly", assemblyPN), zap.Int64("assembly_id", assembly.InvenTreePartID))
	logger.Info("importing BOM", zap.Int("rows", len(rows)), zap.Bool("assembly_exists", assembly.Exists))

	rec := s.startRun(ctx, RunKindBOM, assemblyPN)
	defer rec.finish(ctx)

	summary := &domain.BomImportSummary{Assembly: *assembly, Rows: make([]domain.BomRowResult, 0, len(rows))}
	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		result := s.importRow(ctx, logger, assembly.InvenTreePartID, row)
		summary.Rows = append(summary.Rows, result)
		if result.Success {
			summary.SuccessCount++
		} else {
			summary.ErrorCount++
		}

		item := domain.SyncRunItem{
			Reference: result.PartNumber,
			Supplier:  strings.ToLower(row.Supplier),
			Status:    bomRowStatus(result),
			Message:   result.Message,
		}
		if result.SubPartID != 0 {
			item.InvenTreeID = &result.SubPartID
		}
		rec.add(ctx, item, result.Success)

		if progress != nil {
			progress(i+1, len(rows), result)
		}
	}

	logger.Info("BOM import finished", zap.Int("success", summary.SuccessCount), zap.Int("errors", summary.ErrorCount))
	return summary, nil
}

func bomRowStatus(r domain.BomRowResult) string {
	if r.Success {
		return "added"
	}
	return "failed"
}

// importRow never panics and never returns an error; every outcome is a BomRowResult.
func (s *SyncService) importRow(ctx context.Context, logger *zap.Logger, assemblyID int64, row domain.BomRow) (result domain.BomRowResult) {
	pn := row.LookupNumber()
	result = domain.BomRowResult{Row: row.Row, PartNumber: pn}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("BOM row panicked", zap.Int("row", row.Row), zap.Any("panic", r))
			metrics.RecordBomRow("failed")
			result.Success = false
			result.Message = fmt.Sprintf("Error processing item: %v", r)
		}
	}()

	synced, err := s.SyncPart(ctx, pn, strings.ToLower(row.Supplier))
	if err != nil {
		logger.Warn("BOM row part not synced", zap.Int("row", row.Row), logging.PartField(pn), zap.Error(err))
		if errors.Is(err, ErrPartNotFound) {
			metrics.RecordBomRow("not_found")
			result.Message = "Part not found: " + pn
			return result
		}
		metrics.RecordBomRow("failed")
		result.Message = fmt.Sprintf("Error processing item: %v", err)
		return result
	}
	result.SubPartID = synced.InvenTreePartID

	item, err := s.AddBomItem(ctx, assemblyID, synced.InvenTreePartID, row.Quantity, row.Designators)
	if err != nil {
		logger.Warn("BOM item not created", zap.Int("row", row.Row), zap.Error(err))
		metrics.RecordBomRow("failed")
		result.Message = "Failed to add to BOM: " + pn
		return result
	}

	metrics.RecordBomRow("added")
	result.Success = true
	if item.Exists {
		result.Message = "Already in BOM: " + synced.ManufacturerPartNumber
	} else {
		result.Message = "Added to BOM: " + synced.ManufacturerPartNumber
	}
	return result
}
