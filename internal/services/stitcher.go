package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/Lllllllleong/ocrworker/internal/models"
	"github.com/Lllllllleong/ocrworker/internal/pdfutil"
	"github.com/Lllllllleong/ocrworker/internal/storage"
)

// Stitch concatenates single-page PDFs, in the given order, into dst.
func Stitch(paths []string, dst string) error {
	if len(paths) == 0 {
		return &models.ValidationError{Field: "paths", Reason: "nothing to stitch"}
	}
	for _, p := range paths {
		if err := pdfutil.ValidateSinglePage(p); err != nil {
			return err
		}
	}
	return pdfutil.Merge(paths, dst)
}

// Stitcher joins all page artifacts of a run into the target version file.
type Stitcher struct {
	deps *Deps
	runs runRecorder
}

func NewStitcher(d *Deps) *Stitcher {
	return &Stitcher{deps: d, runs: runRecorder{store: d.Store}}
}

func (s *Stitcher) Process(ctx context.Context, req *models.StitchRequest) (*models.StitchResponse, error) {
	wc := req.Context
	logCtx := slog.With("documentId", wc.DocumentID, "targetVersionId", wc.TargetVersionID, "executionId", wc.ExecutionID)

	if err := wc.Validate(); err != nil {
		return nil, err
	}
	ordered, err := orderArtifacts(wc, req.Artifacts)
	if err != nil {
		return nil, err
	}
	if err := s.runs.advance(ctx, wc, models.StateJoined); err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(ordered))
	for _, a := range ordered {
		p, err := s.deps.Tier.Ensure(ctx, storage.PagePDFPath(a.TargetPageID))
		if err != nil {
			logCtx.Error("Page artifact unavailable.", "pageNumber", a.PageNumber, "error", err)
			return nil, err
		}
		paths = append(paths, p)
	}

	rel := storage.DocVersionPath(wc.TargetVersionID, wc.SourceFileName)
	if err := Stitch(paths, s.deps.Tier.Abs(rel)); err != nil {
		return nil, err
	}
	s.deps.Tier.PublishImmutable(ctx, rel)

	if err := s.runs.advance(ctx, wc, models.StateStitched); err != nil {
		return nil, err
	}
	logCtx.Info("Stitched target version file.", "pages", len(paths), "path", rel)
	return &models.StitchResponse{Status: "success", FilePath: rel}, nil
}

// orderArtifacts sorts artifacts by page number and checks they cover every
// target page exactly once.
func orderArtifacts(wc models.WorkflowContext, artifacts []models.PageArtifact) ([]models.PageArtifact, error) {
	if len(artifacts) != len(wc.TargetPageIDs) {
		return nil, &models.ValidationError{
			Field:  "artifacts",
			Value:  len(artifacts),
			Reason: fmt.Sprintf("expected %d page artifacts, got %d", len(wc.TargetPageIDs), len(artifacts)),
		}
	}
	ordered := slices.Clone(artifacts)
	slices.SortFunc(ordered, func(a, b models.PageArtifact) int { return a.PageNumber - b.PageNumber })
	for i, a := range ordered {
		if a.PageNumber != i+1 || a.TargetPageID != wc.TargetPageIDs[i] {
			return nil, &models.ValidationError{
				Field:  "artifacts",
				Value:  a.PageNumber,
				Reason: fmt.Sprintf("artifact for page %d does not match target page %d", a.PageNumber, i+1),
			}
		}
	}
	return ordered, nil
}
