package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Lllllllleong/ocrworker/internal/models"
	"github.com/Lllllllleong/ocrworker/internal/pdfutil"
	"github.com/Lllllllleong/ocrworker/internal/recognizer"
	"github.com/Lllllllleong/ocrworker/internal/storage"
)

// PageWorker OCRs a single page of the source version into its target page
// directory. Re-running a job overwrites the same paths.
type PageWorker struct {
	deps *Deps
}

func NewPageWorker(d *Deps) *PageWorker {
	return &PageWorker{deps: d}
}

func (w *PageWorker) Process(ctx context.Context, req *models.PageOCRRequest) (*models.PageOCRResponse, error) {
	wc := req.Context
	logCtx := slog.With(
		"documentId", wc.DocumentID,
		"targetVersionId", wc.TargetVersionID,
		"pageNumber", req.PageNumber,
		"executionId", wc.ExecutionID,
	)

	if err := wc.Validate(); err != nil {
		return nil, err
	}
	if req.PageNumber < 1 || req.PageNumber > wc.SourcePageCount {
		return nil, &models.ValidationError{
			Field:  "pageNumber",
			Value:  req.PageNumber,
			Reason: fmt.Sprintf("page number %d outside [1, %d]", req.PageNumber, wc.SourcePageCount),
		}
	}
	if want := wc.TargetPageIDs[req.PageNumber-1]; req.TargetPageID != want {
		return nil, &models.ValidationError{
			Field:  "targetPageId",
			Value:  req.TargetPageID,
			Reason: fmt.Sprintf("page %d belongs to target page %s", req.PageNumber, want),
		}
	}

	logCtx.Info("Starting page OCR.")
	src, err := w.deps.Tier.Ensure(ctx, storage.DocVersionPath(wc.SourceVersionID, wc.SourceFileName))
	if err != nil {
		logCtx.Error("Source file unavailable.", "error", err)
		return nil, err
	}
	content, err := detectContent(src, wc.SourceFileName)
	if err != nil {
		return nil, err
	}

	workDir, err := w.workDir()
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(workDir)

	input := src
	if !content.Image {
		n, err := pdfutil.PageCount(src)
		if err != nil {
			return nil, err
		}
		if req.PageNumber > n {
			return nil, &models.FormatError{Path: src, Reason: fmt.Sprintf("has %d pages, page %d requested", n, req.PageNumber)}
		}
		if n > 1 {
			input = filepath.Join(workDir, "input.pdf")
			if err := pdfutil.ExtractPage(src, input, req.PageNumber); err != nil {
				return nil, err
			}
		}
	}

	res, err := w.deps.Engine.Recognize(ctx, recognizer.Request{
		InputPath:   input,
		Image:       content.Image,
		ContentType: content.ContentType,
		Language:    wc.Language,
		TargetID:    req.TargetPageID,
		OutputPDF:   filepath.Join(workDir, storage.PagePDFName),
		SidecarPath: filepath.Join(workDir, storage.PageTextName),
	})
	if err != nil {
		logCtx.Error("OCR engine failed.", "engine", w.deps.Engine.Name(), "error", err)
		return nil, err
	}
	if err := pdfutil.ValidateSinglePage(res.OutputPDF); err != nil {
		return nil, err
	}

	artifact, err := w.place(ctx, req, res)
	if err != nil {
		return nil, err
	}
	w.deps.Tier.PublishDir(ctx, storage.PageDir(req.TargetPageID))

	logCtx.Info("Page OCR complete.", "hasText", artifact.TextPath != "")
	return &models.PageOCRResponse{Status: "success", Artifact: artifact}, nil
}

func (w *PageWorker) workDir() (string, error) {
	base := w.deps.Tier.Abs("tmp")
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", fmt.Errorf("failed to create temp root: %w", err)
	}
	dir, err := os.MkdirTemp(base, "page-ocr-*")
	if err != nil {
		return "", fmt.Errorf("failed to create work dir: %w", err)
	}
	return dir, nil
}

// place moves engine output into the page directory. A text file left by an
// earlier attempt is removed from both tiers when this attempt produced none.
func (w *PageWorker) place(ctx context.Context, req *models.PageOCRRequest, res recognizer.Result) (models.PageArtifact, error) {
	artifact := models.PageArtifact{
		TargetPageID: req.TargetPageID,
		PageNumber:   req.PageNumber,
		PDFPath:      storage.PagePDFPath(req.TargetPageID),
	}
	if err := os.MkdirAll(w.deps.Tier.Abs(storage.PageDir(req.TargetPageID)), 0o755); err != nil {
		return artifact, fmt.Errorf("failed to create page dir: %w", err)
	}
	if err := os.Rename(res.OutputPDF, w.deps.Tier.Abs(artifact.PDFPath)); err != nil {
		return artifact, fmt.Errorf("failed to store page pdf: %w", err)
	}

	textRel := storage.PageTextPath(req.TargetPageID)
	if res.SidecarPath == "" {
		if err := w.deps.Tier.RemoveFile(ctx, textRel); err != nil {
			return artifact, fmt.Errorf("failed to remove stale page text: %w", err)
		}
		return artifact, nil
	}
	if err := os.Rename(res.SidecarPath, w.deps.Tier.Abs(textRel)); err != nil {
		return artifact, fmt.Errorf("failed to store page text: %w", err)
	}
	artifact.TextPath = storage.PageTextPath(req.TargetPageID)
	return artifact, nil
}
