package recognizer

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/Lllllllleong/ocrworker/internal/gcp"
	"github.com/Lllllllleong/ocrworker/internal/pdfutil"
)

// textGenerator is the part of genai.GenerativeModel the engine uses.
type textGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// VertexEngine is a text-only engine: it transcribes a page with Gemini and
// writes the text sidecar, but the output PDF is the input page (or image)
// unchanged, with no text layer. Versions it produces are searchable through
// the stored page text only.
type VertexEngine struct {
	model  textGenerator
	client *gcp.VertexClient
}

func NewVertexEngine(ctx context.Context, projectID, region, modelName string) (*VertexEngine, error) {
	client, err := gcp.NewVertexClient(ctx, projectID, region, modelName)
	if err != nil {
		return nil, fmt.Errorf("failed to create vertex client: %w", err)
	}
	return &VertexEngine{model: client.OCRModel, client: client}, nil
}

func (e *VertexEngine) Name() string { return "vertex" }

func (e *VertexEngine) Close() error {
	if e.client == nil {
		return nil
	}
	return e.client.Close()
}

// refusalPhrases mark responses where the model declined to transcribe.
var refusalPhrases = []string{
	"i am unable to",
	"i cannot fulfill",
	"i cannot answer",
	"i cannot provide",
	"as a large language model",
}

func (e *VertexEngine) Recognize(ctx context.Context, req Request) (Result, error) {
	logCtx := slog.With("engine", e.Name(), "targetPageId", req.TargetID, "lang", req.Language)

	data, err := os.ReadFile(req.InputPath)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read page: %w", err)
	}
	mimeType := req.ContentType
	switch {
	case !req.Image:
		mimeType = "application/pdf"
	case mimeType == "":
		mimeType = mime.TypeByExtension(strings.ToLower(filepath.Ext(req.InputPath)))
	}

	prompt := genai.Text(fmt.Sprintf(gcp.OCRUserPrompt, req.Language))
	resp, err := e.model.GenerateContent(ctx, genai.Blob{MIMEType: mimeType, Data: data}, prompt)
	if err != nil {
		logCtx.Error("Error calling Vertex AI.", "error", err)
		return Result{}, fmt.Errorf("failed to generate content from gemini: %w", err)
	}

	text := extractText(resp)
	lower := strings.ToLower(text)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			logCtx.Error("Gemini response indicates refusal.", "response", text)
			return Result{}, fmt.Errorf("gemini response indicates refusal for page %s", req.TargetID)
		}
	}
	if text == "" {
		logCtx.Warn("No text extracted from response. Treating as empty page.")
	}

	if err := os.WriteFile(req.SidecarPath, []byte(text), 0o644); err != nil {
		return Result{}, fmt.Errorf("failed to write sidecar: %w", err)
	}
	if req.Image {
		err = pdfutil.ImageToPDF(req.InputPath, req.OutputPDF)
	} else {
		err = pdfutil.CopyFile(req.InputPath, req.OutputPDF)
	}
	if err != nil {
		return Result{}, err
	}
	return Result{OutputPDF: req.OutputPDF, SidecarPath: req.SidecarPath}, nil
}

// extractText concatenates the text parts of the first candidate.
func extractText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	content := strings.TrimSpace(sb.String())
	content = strings.TrimPrefix(content, "```text")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
