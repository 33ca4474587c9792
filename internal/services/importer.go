package services

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/Lllllllleong/ocrworker/internal/models"
	"github.com/Lllllllleong/ocrworker/internal/pdfutil"
	"github.com/Lllllllleong/ocrworker/internal/storage"
)

// ImportFile creates a document whose first version is the file at path.
// The file is copied into the media root and published to the remote tier.
func (o *Orchestrator) ImportFile(ctx context.Context, path, title, lang string) (*models.DocumentVersion, error) {
	fileName := filepath.Base(path)
	content, err := detectContent(path, fileName)
	if err != nil {
		return nil, err
	}
	pageCount := 1
	if !content.Image {
		if pageCount, err = pdfutil.PageCount(path); err != nil {
			return nil, err
		}
	}
	if title == "" {
		title = strings.TrimSuffix(fileName, filepath.Ext(fileName))
	}
	lang = strings.ToLower(lang)

	now := time.Now().UTC()
	doc := models.Document{ID: o.newID(), Title: title, Language: lang, CreatedAt: now}
	version := models.DocumentVersion{
		ID:         o.newID(),
		DocumentID: doc.ID,
		Number:     1,
		FileName:   fileName,
		PageCount:  pageCount,
		Language:   lang,
		CreatedAt:  now,
	}
	pages := make([]models.Page, pageCount)
	for i := range pages {
		pages[i] = models.Page{ID: o.newID(), DocumentVersionID: version.ID, Number: i + 1, Language: lang}
	}

	rel := storage.DocVersionPath(version.ID, fileName)
	if err := pdfutil.CopyFile(path, o.deps.Tier.Abs(rel)); err != nil {
		return nil, fmt.Errorf("failed to copy %s into media root: %w", path, err)
	}
	o.deps.Tier.PublishImmutable(ctx, rel)

	if err := o.deps.Store.InsertDocument(ctx, doc, version, pages); err != nil {
		return nil, err
	}
	slog.Info("Imported document.", "documentId", doc.ID, "versionId", version.ID, "pageCount", pageCount)
	return &version, nil
}
