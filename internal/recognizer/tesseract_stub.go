//go:build !tesseract

package recognizer

import "fmt"

func NewTesseractEngine() (Engine, error) {
	return nil, fmt.Errorf("tesseract: rebuild with -tags tesseract: %w", ErrEngineNotBuilt)
}
