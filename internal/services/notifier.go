package services

import (
	"context"
	"log/slog"

	"github.com/Lllllllleong/ocrworker/internal/config"
	"github.com/Lllllllleong/ocrworker/internal/gcp"
	"github.com/Lllllllleong/ocrworker/internal/models"
)

// Notifier tells the search indexer that documents changed.
type Notifier interface {
	NotifyIndex(ctx context.Context, documentIDs []string) error
}

// NewNotifier sends CloudEvents to cfg.IndexURL, or only logs when no
// endpoint is configured.
func NewNotifier(cfg *config.Config) (Notifier, error) {
	if cfg.IndexURL == "" {
		return logNotifier{}, nil
	}
	sender, err := gcp.NewEventSender(cfg.IndexURL, cfg.EventSource)
	if err != nil {
		return nil, err
	}
	return &eventNotifier{sender: sender, eventType: cfg.Prefixed("index.add_docs")}, nil
}

type eventNotifier struct {
	sender    *gcp.EventSender
	eventType string
}

func (n *eventNotifier) NotifyIndex(ctx context.Context, documentIDs []string) error {
	return n.sender.Send(ctx, n.eventType, models.IndexAddDocs{DocumentIDs: documentIDs})
}

type logNotifier struct{}

func (logNotifier) NotifyIndex(_ context.Context, documentIDs []string) error {
	slog.Info("No index endpoint configured, skipping index notification.", "documentIds", documentIDs)
	return nil
}

// IndexStage is the last step of a run. A failed notification is logged and
// never undoes the commit.
type IndexStage struct {
	deps *Deps
	runs runRecorder
}

func NewIndexStage(d *Deps) *IndexStage {
	return &IndexStage{deps: d, runs: runRecorder{store: d.Store}}
}

func (s *IndexStage) Process(ctx context.Context, req *models.NotifyRequest) (*models.NotifyResponse, error) {
	wc := req.Context
	logCtx := slog.With("documentId", wc.DocumentID, "targetVersionId", wc.TargetVersionID, "executionId", wc.ExecutionID)

	if err := wc.Validate(); err != nil {
		return nil, err
	}
	if err := s.deps.Notifier.NotifyIndex(ctx, []string{wc.DocumentID}); err != nil {
		logCtx.Warn("Index notification failed, the committed version stands.", "error", err)
	}
	if err := s.runs.advance(ctx, wc, models.StateNotified); err != nil {
		return nil, err
	}
	logCtx.Info("OCR run finished.")
	return &models.NotifyResponse{Status: "success"}, nil
}
