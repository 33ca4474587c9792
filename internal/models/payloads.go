package models

import "fmt"

// These structs define the JSON payloads exchanged between the Cloud Workflow
// and the stage functions, and between the stages of the local runner.

// WorkflowContextVersion is bumped whenever WorkflowContext changes shape.
const WorkflowContextVersion = 1

// WorkflowContext is everything a stage needs to know about a run. It is
// created once by the prepare stage and passed unchanged to every later stage.
type WorkflowContext struct {
	Version         int      `json:"version"`
	DocumentID      string   `json:"documentId"`
	SourceVersionID string   `json:"sourceVersionId"`
	SourceFileName  string   `json:"sourceFileName"`
	SourcePageCount int      `json:"sourcePageCount"`
	TargetVersionID string   `json:"targetVersionId"`
	TargetPageIDs   []string `json:"targetPageIds"`
	Language        string   `json:"lang"`
	ExecutionID     string   `json:"executionId,omitempty"`
}

// Validate checks the fields every stage relies on.
func (wc WorkflowContext) Validate() error {
	if wc.Version != WorkflowContextVersion {
		return &ValidationError{Field: "version", Value: wc.Version, Reason: fmt.Sprintf("unsupported workflow context version, want %d", WorkflowContextVersion)}
	}
	if wc.DocumentID == "" || wc.SourceVersionID == "" || wc.TargetVersionID == "" {
		return &ValidationError{Reason: "workflow context is missing a document or version id"}
	}
	if wc.SourceFileName == "" {
		return &ValidationError{Field: "sourceFileName", Value: "", Reason: "must be set"}
	}
	if len(wc.TargetPageIDs) != wc.SourcePageCount {
		return &ValidationError{
			Field:  "targetPageIds",
			Value:  len(wc.TargetPageIDs),
			Reason: fmt.Sprintf("page_count=%d != %d", wc.SourcePageCount, len(wc.TargetPageIDs)),
		}
	}
	return nil
}

// PageJobs expands the context into one job per source page.
func (wc WorkflowContext) PageJobs() []PageOCRRequest {
	jobs := make([]PageOCRRequest, 0, len(wc.TargetPageIDs))
	for i, id := range wc.TargetPageIDs {
		jobs = append(jobs, PageOCRRequest{Context: wc, PageNumber: i + 1, TargetPageID: id})
	}
	return jobs
}

// SubmitOCRRequest is the trigger payload. Lang is an OCR language code
// such as "deu" or "eng".
type SubmitOCRRequest struct {
	DocumentID string `json:"documentId"`
	Lang       string `json:"lang"`
}

type SubmitOCRResponse struct {
	Status        string `json:"status"`
	ExecutionName string `json:"executionName,omitempty"`
}

// PrepareRequest is the input for the ocr-prepare function.
type PrepareRequest struct {
	DocumentID  string `json:"documentId"`
	Lang        string `json:"lang"`
	ExecutionID string `json:"executionId,omitempty"`
}

// PrepareResponse carries the context and the page jobs the workflow fans out.
type PrepareResponse struct {
	Status  string           `json:"status"`
	Context WorkflowContext  `json:"context"`
	Jobs    []PageOCRRequest `json:"jobs"`
}

// PageOCRRequest is the input for the page-ocr function.
type PageOCRRequest struct {
	Context      WorkflowContext `json:"context"`
	PageNumber   int             `json:"pageNumber"`
	TargetPageID string          `json:"targetPageId"`
}

// PageArtifact points at the output of one page job. Paths are relative to
// the media root; TextPath is empty when the engine produced no text.
type PageArtifact struct {
	TargetPageID string `json:"targetPageId"`
	PageNumber   int    `json:"pageNumber"`
	PDFPath      string `json:"pdfPath"`
	TextPath     string `json:"textPath,omitempty"`
}

// PageOCRResponse is the output of the page-ocr function.
type PageOCRResponse struct {
	Status   string       `json:"status"`
	Artifact PageArtifact `json:"artifact"`
}

// StitchRequest is the input for the page-stitcher function. Artifacts arrive
// in completion order.
type StitchRequest struct {
	Context   WorkflowContext `json:"context"`
	Artifacts []PageArtifact  `json:"artifacts"`
}

type StitchResponse struct {
	Status   string `json:"status"`
	FilePath string `json:"filePath"`
}

// CommitRequest is the input for the version-committer function.
type CommitRequest struct {
	Context WorkflowContext `json:"context"`
}

type CommitResponse struct {
	Status    string `json:"status"`
	VersionID string `json:"versionId"`
	Number    int    `json:"number"`
}

// NotifyRequest is the input for the index-notifier function.
type NotifyRequest struct {
	Context WorkflowContext `json:"context"`
}

type NotifyResponse struct {
	Status string `json:"status"`
}

// MarkFailedRequest is sent by the workflow's exception handler.
type MarkFailedRequest struct {
	Context WorkflowContext `json:"context"`
	Error   string          `json:"error"`
}

type MarkFailedResponse struct {
	Status string `json:"status"`
}

// IndexAddDocs is the data of the indexing event.
type IndexAddDocs struct {
	DocumentIDs []string `json:"document_ids"`
}
