package services

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/Lllllllleong/ocrworker/internal/models"
)

// Extensions missing from Go's built-in MIME table on minimal images.
var extraTypes = map[string]string{
	".tif":  "image/tiff",
	".tiff": "image/tiff",
}

// sourceContent is what a source file holds, independent of its name.
type sourceContent struct {
	ContentType string
	Image       bool
}

// detectContent decides between PDF and image from the bytes at path. An OCR
// run keeps the source file name, so a version named scan.png may hold a PDF.
// The extension of fileName is consulted only when the bytes are inconclusive.
func detectContent(path, fileName string) (sourceContent, error) {
	f, err := os.Open(path)
	if err != nil {
		return sourceContent{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return sourceContent{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	mediaType, _, _ := mime.ParseMediaType(http.DetectContentType(head[:n]))
	switch {
	case mediaType == "application/pdf":
		return sourceContent{ContentType: mediaType}, nil
	case strings.HasPrefix(mediaType, "image/"):
		return sourceContent{ContentType: mediaType, Image: true}, nil
	}
	return classifyFile(fileName)
}

// classifyFile decides from the extension alone. Only PDFs and images can be
// OCRed; everything else is rejected.
func classifyFile(fileName string) (sourceContent, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = extraTypes[ext]
	}
	mediaType, _, _ := mime.ParseMediaType(contentType)

	switch {
	case mediaType == "application/pdf":
		return sourceContent{ContentType: mediaType}, nil
	case strings.HasPrefix(mediaType, "image/"):
		return sourceContent{ContentType: mediaType, Image: true}, nil
	}
	return sourceContent{}, &models.ValidationError{
		Field:  "fileName",
		Value:  fileName,
		Reason: fmt.Sprintf("unsupported content type %q, expected application/pdf or image/*", contentType),
	}
}
