// Package pdfutil wraps the pdfcpu operations the pipeline needs.
package pdfutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Lllllllleong/ocrworker/internal/models"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

func relaxed() *model.Configuration {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return cfg
}

// PageCount returns the number of pages in the PDF at path.
func PageCount(path string) (int, error) {
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, &models.FormatError{Path: path, Reason: fmt.Sprintf("not a readable PDF: %v", err)}
	}
	return n, nil
}

// ExtractPage writes page (1-based) of in as a single-page PDF at out.
func ExtractPage(in, out string, page int) error {
	if err := api.TrimFile(in, out, []string{strconv.Itoa(page)}, relaxed()); err != nil {
		return fmt.Errorf("failed to extract page %d of %s: %w", page, in, err)
	}
	return nil
}

// ValidateSinglePage fails with a FormatError unless path is a readable PDF
// with exactly one page.
func ValidateSinglePage(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return &models.FormatError{Path: path, Reason: "missing"}
	}
	if !info.Mode().IsRegular() {
		return &models.FormatError{Path: path, Reason: "not a regular file"}
	}
	n, err := PageCount(path)
	if err != nil {
		return err
	}
	if n != 1 {
		return &models.FormatError{Path: path, Reason: fmt.Sprintf("expected exactly one page, found %d", n)}
	}
	return nil
}

// Merge concatenates inFiles in the given order into out. The output appears
// atomically: it is written next to out and renamed into place.
func Merge(inFiles []string, out string) error {
	if len(inFiles) == 0 {
		return &models.ValidationError{Field: "inFiles", Value: 0, Reason: "nothing to merge"}
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	tmp := out + ".partial"
	defer os.Remove(tmp)

	if len(inFiles) == 1 {
		if err := copyFile(inFiles[0], tmp); err != nil {
			return err
		}
	} else if err := api.MergeCreateFile(inFiles, tmp, false, relaxed()); err != nil {
		return fmt.Errorf("failed to merge %d files: %w", len(inFiles), err)
	}

	if err := os.Rename(tmp, out); err != nil {
		return fmt.Errorf("failed to move merged file into place: %w", err)
	}
	return nil
}

// ImageToPDF embeds a single image as a one-page PDF.
func ImageToPDF(image, out string) error {
	if err := api.ImportImagesFile([]string{image}, out, pdfcpu.DefaultImportConfig(), relaxed()); err != nil {
		return fmt.Errorf("failed to convert %s to PDF: %w", image, err)
	}
	return nil
}

// CopyFile copies src to dst, creating parent directories.
func CopyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create dir for %s: %w", dst, err)
	}
	return copyFile(src, dst)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}
