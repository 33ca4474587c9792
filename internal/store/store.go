// Package store persists documents, versions, pages and pipeline runs.
package store

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/Lllllllleong/ocrworker/internal/models"
)

// VersionStore is the metadata contract the pipeline depends on. Every
// method runs under its own transaction.
type VersionStore interface {
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	// LatestVersion returns the highest-numbered version of a document.
	LatestVersion(ctx context.Context, documentID string) (*models.DocumentVersion, error)
	GetVersion(ctx context.Context, versionID string) (*models.DocumentVersion, error)
	// Pages returns the version's pages ordered by number.
	Pages(ctx context.Context, versionID string) ([]models.Page, error)
	// CommitNewVersion atomically appends a version after the current latest
	// one, with one page per target page id. Commits for the same document
	// are serialized. Replaying an identical commit returns the stored version.
	CommitNewVersion(ctx context.Context, documentID, targetVersionID string, targetPageIDs []string, lang string) (*models.DocumentVersion, error)
	// WritePageTexts overwrites page texts, keyed by page number.
	WritePageTexts(ctx context.Context, versionID string, texts map[int]string) error

	InsertDocument(ctx context.Context, doc models.Document, version models.DocumentVersion, pages []models.Page) error

	RecordRun(ctx context.Context, run models.OCRRun) error
	GetRun(ctx context.Context, id string) (*models.OCRRun, error)
	// ListRuns returns runs in state, or every run when state is empty.
	ListRuns(ctx context.Context, state models.WorkflowState) ([]models.OCRRun, error)

	Close() error
}

var now = func() time.Time { return time.Now().UTC() }

// buildCommit derives the new version and its pages from the current latest
// version. It performs no I/O.
func buildCommit(latest *models.DocumentVersion, targetVersionID string, targetPageIDs []string, lang string) (models.DocumentVersion, []models.Page, error) {
	if len(targetPageIDs) != latest.PageCount {
		return models.DocumentVersion{}, nil, &models.ValidationError{
			Field:  "targetPageIds",
			Value:  len(targetPageIDs),
			Reason: fmt.Sprintf("Invalid number of target page uuids: page_count=%d != %d", latest.PageCount, len(targetPageIDs)),
		}
	}
	if targetVersionID == "" {
		return models.DocumentVersion{}, nil, &models.ValidationError{Field: "targetVersionId", Value: "", Reason: "must be set"}
	}
	seen := make(map[string]bool, len(targetPageIDs))
	for _, id := range targetPageIDs {
		if id == "" || seen[id] {
			return models.DocumentVersion{}, nil, &models.ValidationError{Field: "targetPageIds", Value: id, Reason: "page ids must be unique and non-empty"}
		}
		seen[id] = true
	}

	version := models.DocumentVersion{
		ID:               targetVersionID,
		DocumentID:       latest.DocumentID,
		Number:           latest.Number + 1,
		FileName:         latest.FileName,
		PageCount:        latest.PageCount,
		Language:         lang,
		ShortDescription: models.ShortDescriptionOCR,
		CreatedAt:        now(),
	}
	pages := make([]models.Page, len(targetPageIDs))
	for i, id := range targetPageIDs {
		pages[i] = models.Page{
			ID:                id,
			DocumentVersionID: targetVersionID,
			Number:            i + 1,
			Language:          lang,
		}
	}
	return version, pages, nil
}

// checkReplay decides whether an already stored target version is the
// result of the same commit.
func checkReplay(existing *models.DocumentVersion, pages []models.Page, documentID string, targetPageIDs []string) error {
	if existing.DocumentID != documentID {
		return fmt.Errorf("version %s belongs to document %s, not %s: %w", existing.ID, existing.DocumentID, documentID, models.ErrConflict)
	}
	ids := make([]string, len(pages))
	for i, p := range pages {
		ids[i] = p.ID
	}
	if !slices.Equal(ids, targetPageIDs) {
		return fmt.Errorf("version %s already exists with different pages: %w", existing.ID, models.ErrConflict)
	}
	return nil
}

// checkTexts requires texts to address exactly the version's page numbers.
func checkTexts(versionID string, pages []models.Page, texts map[int]string) error {
	if len(pages) != len(texts) {
		return &models.ValidationError{
			Field:  "texts",
			Value:  len(texts),
			Reason: fmt.Sprintf("version %s has %d pages", versionID, len(pages)),
		}
	}
	for _, p := range pages {
		if _, ok := texts[p.Number]; !ok {
			return &models.ValidationError{Field: "texts", Value: p.Number, Reason: "missing text for page"}
		}
	}
	return nil
}

func noPages(versionID string) error {
	return &models.NotFoundError{
		What:   "pages of version",
		ID:     versionID,
		Detail: "does not have pages, maybe it does not have associated file yet",
	}
}

// touchRun stamps the timestamps of a run before it is written.
func touchRun(run *models.OCRRun, existing *models.OCRRun) {
	t := now()
	run.UpdatedAt = t
	switch {
	case existing != nil && !existing.CreatedAt.IsZero():
		run.CreatedAt = existing.CreatedAt
	case run.CreatedAt.IsZero():
		run.CreatedAt = t
	}
}
