package service

import (
	"context"

	"go.uber.org/zap"

	"synctree/internal/domain"
	"synctree/internal/store"
)

// Run kinds stored in the history.
const (
	RunKindBOM    = "bom"
	RunKindResync = "resync"
)

// runRecorder writes one batch run to the history store. History is auxiliary: write
// failures are logged and recording stops, the batch itself carries on.
type runRecorder struct {
	history store.HistoryStorer
	run     *domain.SyncRun
	logger  *zap.Logger
}

func (s *SyncService) startRun(ctx context.Context, kind, target string) *runRecorder {
	rec := &runRecorder{history: s.history, logger: s.logger}
	if s.history == nil {
		return rec
	}
	run, err := s.history.CreateRun(ctx, &domain.SyncRun{Kind: kind, Target: target})
	if err != nil {
		s.logger.Warn("sync history unavailable", zap.String("kind", kind), zap.Error(err))
		return rec
	}
	rec.run = run
	return rec
}

func (r *runRecorder) add(ctx context.Context, item domain.SyncRunItem, ok bool) {
	if r.run == nil {
		return
	}
	r.run.Total++
	if ok {
		r.run.Succeeded++
	} else {
		r.run.Failed++
	}
	item.RunID = r.run.ID
	if err := r.history.AddRunItem(ctx, &item); err != nil {
		r.logger.Warn("sync history item not recorded", zap.String("run_id", r.run.ID), zap.Error(err))
	}
}

// finish ignores cancellation of ctx so interrupted batches still close their run.
func (r *runRecorder) finish(ctx context.Context) {
	if r.run == nil {
		return
	}
	if err := r.history.FinishRun(context.WithoutCancel(ctx), r.run); err != nil {
		r.logger.Warn("sync history run not finished", zap.String("run_id", r.run.ID), zap.Error(err))
	}
}

// RecentRuns lists the latest recorded runs, newest first.
func (s *SyncService) RecentRuns(ctx context.Context, limit int) ([]domain.SyncRun, error) {
	if s.history == nil {
		return nil, nil
	}
	return s.history.ListRuns(ctx, limit)
}

// RunItems lists the per-item outcomes of one run.
func (s *SyncService) RunItems(ctx context.Context, runID string) ([]domain.SyncRunItem, error) {
	if s.history == nil {
		return nil, store.ErrRunNotFound
	}
	return s.history.ListRunItems(ctx, runID)
}
