// Package recognizer adapts OCR engines to the page worker.
package recognizer

import (
	"context"
	"errors"
	"fmt"

	"github.com/Lllllllleong/ocrworker/internal/config"
)

// Request describes one page to recognize. InputPath is a single-page PDF,
// or an image when Image is set. ContentType is the media type detected from
// the file's bytes; the file name may not match it.
type Request struct {
	InputPath   string
	Image       bool
	ContentType string
	Language    string
	TargetID    string
	OutputPDF   string
	SidecarPath string
}

// Result reports what the engine produced. SidecarPath is empty when the
// engine wrote no text file.
type Result struct {
	OutputPDF   string
	SidecarPath string
}

// Engine turns a page into a single-page PDF plus optional text. Whether the
// PDF gains a text layer depends on the engine.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, req Request) (Result, error)
}

// ErrEngineNotBuilt is returned for engines compiled out of this binary.
var ErrEngineNotBuilt = errors.New("engine not built into this binary")

// New returns the engine selected by cfg.Engine.
func New(ctx context.Context, cfg *config.Config) (Engine, error) {
	switch cfg.Engine {
	case config.EngineOCRmyPDF:
		return NewOCRmyPDF(cfg.OCRmyPDFPath), nil
	case config.EngineVertex:
		e, err := NewVertexEngine(ctx, cfg.ProjectID, cfg.VertexAIRegion, cfg.VertexModel)
		if err != nil {
			return nil, err
		}
		return e, nil
	case config.EngineTesseract:
		return NewTesseractEngine()
	default:
		return nil, fmt.Errorf("unknown engine %q", cfg.Engine)
	}
}
