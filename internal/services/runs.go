package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/Lllllllleong/ocrworker/internal/models"
	"github.com/Lllllllleong/ocrworker/internal/store"
)

// runRecorder moves OCRRun records through their states. Only sequential
// stages call it, so no two writers race on one run.
type runRecorder struct {
	store store.VersionStore
}

func runFromContext(wc models.WorkflowContext) models.OCRRun {
	return models.OCRRun{
		ID:              wc.TargetVersionID,
		DocumentID:      wc.DocumentID,
		SourceVersionID: wc.SourceVersionID,
		TargetPageIDs:   wc.TargetPageIDs,
		FileName:        wc.SourceFileName,
		Language:        wc.Language,
		ExecutionID:     wc.ExecutionID,
	}
}

func (r runRecorder) load(ctx context.Context, wc models.WorkflowContext) (models.OCRRun, error) {
	existing, err := r.store.GetRun(ctx, wc.TargetVersionID)
	if errors.Is(err, models.ErrNotFound) {
		return runFromContext(wc), nil
	}
	if err != nil {
		return models.OCRRun{}, err
	}
	return *existing, nil
}

// advance records a forward transition. Replayed or stale transitions are
// ignored; a FAILED run cannot be revived.
func (r runRecorder) advance(ctx context.Context, wc models.WorkflowContext, state models.WorkflowState) error {
	run, err := r.load(ctx, wc)
	if err != nil {
		return err
	}
	if run.State == models.StateFailed || run.State == models.StateSwept {
		return &models.ValidationError{Field: "run", Value: run.ID, Reason: fmt.Sprintf("run is %s", run.State)}
	}
	if run.State != "" && !run.State.Precedes(state) {
		return nil
	}
	run.State = state
	return r.store.RecordRun(ctx, run)
}

// fail records FAILED with details. The first failure wins.
func (r runRecorder) fail(ctx context.Context, wc models.WorkflowContext, details string) error {
	run, err := r.load(ctx, wc)
	if err != nil {
		return err
	}
	if run.State == models.StateFailed || run.State == models.StateSwept {
		return nil
	}
	run.State = models.StateFailed
	run.ErrorDetails = details
	return r.store.RecordRun(ctx, run)
}
