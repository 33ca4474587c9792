package pdfutil_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Lllllllleong/ocrworker/internal/models"
	"github.com/Lllllllleong/ocrworker/internal/pdfutil"
	"github.com/Lllllllleong/ocrworker/internal/pdfutil/pdftest"
)

func TestPageCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "three.pdf")
	pdftest.Write(t, path, 101, 102, 103)

	n, err := pdfutil.PageCount(path)
	if err != nil {
		t.Fatalf("PageCount() error = %v", err)
	}
	if n != 3 {
		t.Errorf("PageCount() = %d, want 3", n)
	}
}

func TestPageCountRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.pdf")
	if err := os.WriteFile(path, []byte("not a pdf"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := pdfutil.PageCount(path); !errors.Is(err, models.ErrFormat) {
		t.Fatalf("PageCount() error = %v, want format error", err)
	}
}

func TestExtractPage(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.pdf")
	pdftest.Write(t, src, 101, 102, 103)

	out := filepath.Join(dir, "page2.pdf")
	if err := pdfutil.ExtractPage(src, out, 2); err != nil {
		t.Fatalf("ExtractPage() error = %v", err)
	}
	widths := pdftest.Widths(t, out)
	if len(widths) != 1 || widths[0] != 102 {
		t.Errorf("extracted widths = %v, want [102]", widths)
	}
}

func TestMergePreservesOrder(t *testing.T) {
	dir := t.TempDir()
	var inputs []string
	for i, w := range []float64{103, 101, 102} {
		p := filepath.Join(dir, "in", string(rune('a'+i))+".pdf")
		pdftest.Write(t, p, w)
		inputs = append(inputs, p)
	}

	out := filepath.Join(dir, "out", "merged.pdf")
	if err := pdfutil.Merge(inputs, out); err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	got := pdftest.Widths(t, out)
	want := []float64{103, 101, 102}
	if len(got) != len(want) {
		t.Fatalf("merged page count = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("page %d width = %v, want %v", i+1, got[i], want[i])
		}
	}
	if _, err := os.Stat(out + ".partial"); !os.IsNotExist(err) {
		t.Errorf("temporary output left behind")
	}
}

func TestMergeSingleInputIsCopied(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "one.pdf")
	pdftest.Write(t, in, 150)

	out := filepath.Join(dir, "out.pdf")
	if err := pdfutil.Merge([]string{in}, out); err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if got := pdftest.Widths(t, out); len(got) != 1 || got[0] != 150 {
		t.Errorf("widths = %v", got)
	}
}

func TestValidateSinglePage(t *testing.T) {
	dir := t.TempDir()
	one := filepath.Join(dir, "one.pdf")
	two := filepath.Join(dir, "two.pdf")
	pdftest.Write(t, one, 100)
	pdftest.Write(t, two, 100, 100)

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"single page", one, false},
		{"two pages", two, true},
		{"missing", filepath.Join(dir, "nope.pdf"), true},
		{"directory", dir, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := pdfutil.ValidateSinglePage(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateSinglePage() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, models.ErrFormat) {
				t.Errorf("expected a format error, got %v", err)
			}
		})
	}
}

func TestImageToPDF(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "scan.png")
	out := filepath.Join(dir, "scan.pdf")
	pdftest.WritePNG(t, img, 40, 40)

	if err := pdfutil.ImageToPDF(img, out); err != nil {
		t.Fatalf("ImageToPDF() error = %v", err)
	}
	if n, err := pdfutil.PageCount(out); err != nil || n != 1 {
		t.Errorf("PageCount() = %d, %v; want 1 page", n, err)
	}

	garbage := filepath.Join(dir, "garbage.png")
	if err := os.WriteFile(garbage, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := pdfutil.ImageToPDF(garbage, filepath.Join(dir, "garbage.pdf")); err == nil {
		t.Error("ImageToPDF(garbage) succeeded")
	}
}
