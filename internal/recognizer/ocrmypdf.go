package recognizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/Lllllllleong/ocrworker/internal/models"
)

// ocrmypdf exit codes that mean the input itself is unusable.
const (
	exitBadArgs   = 1
	exitInputFile = 2
	exitEncrypted = 8
)

// OCRmyPDF runs the ocrmypdf command line tool.
type OCRmyPDF struct {
	binary string
	run    func(ctx context.Context, name string, args ...string) ([]byte, error)
}

func NewOCRmyPDF(binary string) *OCRmyPDF {
	if binary == "" {
		binary = "ocrmypdf"
	}
	return &OCRmyPDF{binary: binary, run: runCommand}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

func (e *OCRmyPDF) Name() string { return "ocrmypdf" }

func (e *OCRmyPDF) args(req Request) []string {
	args := []string{
		"--deskew",
		"--force-ocr",
		"--output-type", "pdf",
		"-l", req.Language,
		"--sidecar", req.SidecarPath,
	}
	if req.Image {
		args = append(args, "--image-dpi", "300")
	}
	return append(args, req.InputPath, req.OutputPDF)
}

func (e *OCRmyPDF) Recognize(ctx context.Context, req Request) (Result, error) {
	logCtx := slog.With("engine", e.Name(), "targetPageId", req.TargetID, "lang", req.Language)
	logCtx.Info("Running OCR.")

	out, err := e.run(ctx, e.binary, e.args(req)...)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			switch exitErr.ExitCode() {
			case exitBadArgs, exitInputFile, exitEncrypted:
				return Result{}, &models.FormatError{Path: req.InputPath, Reason: fmt.Sprintf("ocrmypdf rejected input: %s", tail(out))}
			}
		}
		logCtx.Error("ocrmypdf failed.", "error", err, "output", tail(out))
		return Result{}, fmt.Errorf("ocrmypdf failed: %w", err)
	}

	res := Result{OutputPDF: req.OutputPDF}
	if info, err := os.Stat(req.SidecarPath); err == nil && info.Mode().IsRegular() {
		res.SidecarPath = req.SidecarPath
	}
	return res, nil
}

// tail keeps the last lines of tool output for error messages.
func tail(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return strings.Join(lines, " | ")
}
