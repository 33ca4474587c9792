package models

import "time"

// ShortDescriptionOCR is stamped on every version produced by the pipeline.
const ShortDescriptionOCR = "With OCR text layer"

// Document is the logical, user-visible record. The pipeline never mutates it.
type Document struct {
	ID        string    `firestore:"-" json:"id"`
	Title     string    `firestore:"title" json:"title"`
	OwnerID   string    `firestore:"ownerId,omitempty" json:"ownerId,omitempty"`
	Language  string    `firestore:"language,omitempty" json:"language,omitempty"`
	CreatedAt time.Time `firestore:"createdAt" json:"createdAt"`
}

// DocumentVersion is an immutable snapshot of a document's file.
// PageCount always equals the number of Page rows attached to it.
type DocumentVersion struct {
	ID               string    `firestore:"-" json:"id"`
	DocumentID       string    `firestore:"documentId" json:"documentId"`
	Number           int       `firestore:"number" json:"number"`
	FileName         string    `firestore:"fileName" json:"fileName"`
	PageCount        int       `firestore:"pageCount" json:"pageCount"`
	Language         string    `firestore:"language,omitempty" json:"language,omitempty"`
	ShortDescription string    `firestore:"shortDescription,omitempty" json:"shortDescription,omitempty"`
	CreatedAt        time.Time `firestore:"createdAt" json:"createdAt"`
}

// Page belongs to exactly one DocumentVersion. Numbers are 1-based and contiguous.
type Page struct {
	ID                string `firestore:"-" json:"id"`
	DocumentVersionID string `firestore:"documentVersionId" json:"documentVersionId"`
	Number            int    `firestore:"number" json:"number"`
	Language          string `firestore:"language,omitempty" json:"language,omitempty"`
	Text              string `firestore:"text" json:"text"`
}

// OCRRun tracks one pipeline run. It is keyed by the pre-generated target
// version id so every stage of a redelivered run lands on the same record.
type OCRRun struct {
	ID              string        `firestore:"-" json:"id"`
	DocumentID      string        `firestore:"documentId" json:"documentId"`
	SourceVersionID string        `firestore:"sourceVersionId" json:"sourceVersionId"`
	TargetPageIDs   []string      `firestore:"targetPageIds" json:"targetPageIds"`
	FileName        string        `firestore:"fileName" json:"fileName"`
	Language        string        `firestore:"language" json:"language"`
	State           WorkflowState `firestore:"state" json:"state"`
	ErrorDetails    string        `firestore:"errorDetails,omitempty" json:"errorDetails,omitempty"`
	ExecutionID     string        `firestore:"executionId,omitempty" json:"executionId,omitempty"` // For traceability
	CreatedAt       time.Time     `firestore:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time     `firestore:"updatedAt" json:"updatedAt"`
}
