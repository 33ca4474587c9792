package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/Lllllllleong/ocrworker/internal/models"
	"github.com/Lllllllleong/ocrworker/internal/storage"
)

// Committer appends the target version and fills in its page texts.
type Committer struct {
	deps *Deps
	runs runRecorder
}

func NewCommitter(d *Deps) *Committer {
	return &Committer{deps: d, runs: runRecorder{store: d.Store}}
}

func (c *Committer) Process(ctx context.Context, req *models.CommitRequest) (*models.CommitResponse, error) {
	wc := req.Context
	logCtx := slog.With("documentId", wc.DocumentID, "targetVersionId", wc.TargetVersionID, "executionId", wc.ExecutionID)

	if err := wc.Validate(); err != nil {
		return nil, err
	}

	texts := make(map[int]string, len(wc.TargetPageIDs))
	for i, pageID := range wc.TargetPageIDs {
		text, err := c.readText(ctx, pageID)
		if err != nil {
			return nil, err
		}
		texts[i+1] = text
	}

	version, err := c.deps.Store.CommitNewVersion(ctx, wc.DocumentID, wc.TargetVersionID, wc.TargetPageIDs, wc.Language)
	if err != nil {
		logCtx.Error("Failed to commit new version.", "error", err)
		return nil, err
	}
	if err := c.deps.Store.WritePageTexts(ctx, version.ID, texts); err != nil {
		return nil, err
	}
	if err := c.runs.advance(ctx, wc, models.StateCommitted); err != nil {
		return nil, err
	}

	logCtx.Info("Committed new version.", "number", version.Number, "pageCount", version.PageCount)
	return &models.CommitResponse{Status: "success", VersionID: version.ID, Number: version.Number}, nil
}

// readText returns the page's recognized text, or "" when the engine left no
// text file.
func (c *Committer) readText(ctx context.Context, pageID string) (string, error) {
	p, err := c.deps.Tier.Ensure(ctx, storage.PageTextPath(pageID))
	if errors.Is(err, models.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return "", fmt.Errorf("failed to read page text: %w", err)
	}
	return string(b), nil
}
