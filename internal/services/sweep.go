package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Lllllllleong/ocrworker/internal/models"
	"github.com/Lllllllleong/ocrworker/internal/storage"
)

// SweepFailed deletes the page artifacts and stitched file of FAILED runs
// and marks them SWEPT. Runs whose target version was committed are skipped.
func (o *Orchestrator) SweepFailed(ctx context.Context) (int, error) {
	runs, err := o.deps.Store.ListRuns(ctx, models.StateFailed)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, run := range runs {
		logCtx := slog.With("documentId", run.DocumentID, "targetVersionId", run.ID)

		_, err := o.deps.Store.GetVersion(ctx, run.ID)
		if err == nil {
			logCtx.Warn("Failed run has a committed version, leaving its files in place.")
			continue
		}
		if !errors.Is(err, models.ErrNotFound) {
			return swept, err
		}

		for _, pageID := range run.TargetPageIDs {
			if err := o.deps.Tier.RemoveDir(ctx, storage.PageDir(pageID)); err != nil {
				return swept, err
			}
		}
		if err := o.deps.Tier.RemoveDir(ctx, storage.DocVersionDir(run.ID)); err != nil {
			return swept, err
		}

		run.State = models.StateSwept
		if err := o.deps.Store.RecordRun(ctx, run); err != nil {
			return swept, err
		}
		logCtx.Info("Swept failed run.", "pages", len(run.TargetPageIDs))
		swept++
	}
	return swept, nil
}
