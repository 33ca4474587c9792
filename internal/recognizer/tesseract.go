//go:build tesseract

package recognizer

import (
	"context"
	"fmt"
	"os"

	"github.com/Lllllllleong/ocrworker/internal/models"
	"github.com/Lllllllleong/ocrworker/internal/pdfutil"
	"github.com/otiai10/gosseract/v2"
)

// TesseractEngine recognizes image pages in-process through libtesseract.
// It needs cgo and the tesseract headers, so it is only built with
// -tags tesseract.
type TesseractEngine struct {
	clientFactory func() *gosseract.Client
}

func NewTesseractEngine() (Engine, error) {
	return &TesseractEngine{clientFactory: gosseract.NewClient}, nil
}

func (e *TesseractEngine) Name() string { return "tesseract" }

func (e *TesseractEngine) Recognize(ctx context.Context, req Request) (Result, error) {
	if !req.Image {
		return Result{}, &models.FormatError{Path: req.InputPath, Reason: "tesseract engine accepts image pages only"}
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	c := e.clientFactory()
	defer c.Close()

	if err := c.SetImage(req.InputPath); err != nil {
		return Result{}, fmt.Errorf("set image: %w", err)
	}
	if req.Language != "" {
		if err := c.SetLanguage(req.Language); err != nil {
			return Result{}, fmt.Errorf("set language: %w", err)
		}
	}
	text, err := c.Text()
	if err != nil {
		return Result{}, fmt.Errorf("recognize text: %w", err)
	}

	if err := os.WriteFile(req.SidecarPath, []byte(text), 0o644); err != nil {
		return Result{}, fmt.Errorf("failed to write sidecar: %w", err)
	}
	if err := pdfutil.ImageToPDF(req.InputPath, req.OutputPDF); err != nil {
		return Result{}, err
	}
	return Result{OutputPDF: req.OutputPDF, SidecarPath: req.SidecarPath}, nil
}
