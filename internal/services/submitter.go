package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Lllllllleong/ocrworker/internal/config"
	"github.com/Lllllllleong/ocrworker/internal/dispatch"
	"github.com/Lllllllleong/ocrworker/internal/gcp"
	"github.com/Lllllllleong/ocrworker/internal/models"
)

// Launcher starts a workflow execution with payload as its argument.
type Launcher interface {
	Launch(ctx context.Context, payload any) (string, error)
}

// Submitter is the public trigger. It validates the request and hands the
// run off without waiting for it: to Cloud Workflows when a launcher is set,
// otherwise to the in-process pool.
type Submitter struct {
	launcher Launcher
	pool     *dispatch.Pool
	orch     *Orchestrator
}

func NewCloudSubmitter(l Launcher) *Submitter {
	return &Submitter{launcher: l}
}

func NewLocalSubmitter(pool *dispatch.Pool, orch *Orchestrator) *Submitter {
	return &Submitter{pool: pool, orch: orch}
}

func (s *Submitter) Submit(ctx context.Context, req *models.SubmitOCRRequest) (*models.SubmitOCRResponse, error) {
	documentID := strings.TrimSpace(req.DocumentID)
	lang := strings.ToLower(strings.TrimSpace(req.Lang))
	if documentID == "" {
		return nil, &models.ValidationError{Field: "documentId", Reason: "documentId is required"}
	}
	if lang == "" {
		return nil, &models.ValidationError{Field: "lang", Reason: "lang is required"}
	}
	logCtx := slog.With("documentId", documentID, "lang", lang)

	if s.launcher != nil {
		name, err := s.launcher.Launch(ctx, models.SubmitOCRRequest{DocumentID: documentID, Lang: lang})
		if err != nil {
			logCtx.Error("Failed to start OCR workflow.", "error", err)
			return nil, err
		}
		logCtx.Info("OCR workflow started.", "execution", name)
		return &models.SubmitOCRResponse{Status: "submitted", ExecutionName: name}, nil
	}

	err := s.pool.Submit(dispatch.Job{
		Name: s.orch.deps.Config.Prefixed("ocr") + " " + documentID,
		Run: func(ctx context.Context) error {
			_, err := s.orch.Run(ctx, documentID, lang)
			return err
		},
	})
	if err != nil {
		logCtx.Error("Failed to queue OCR run.", "error", err)
		return nil, err
	}
	logCtx.Info("OCR run queued.")
	return &models.SubmitOCRResponse{Status: "queued"}, nil
}

// NewCloudSubmitterFromEnv builds a submitter that starts executions of the
// configured OCR workflow.
func NewCloudSubmitterFromEnv(ctx context.Context) (*Submitter, error) {
	cfg, err := config.Load(gcp.GetEnv("OCR_CONFIG", ""))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.RequireWorkflow(); err != nil {
		return nil, err
	}
	launcher, err := gcp.NewWorkflowLauncher(ctx, cfg.ProjectID, cfg.WorkflowLocation, cfg.Prefixed(cfg.WorkflowID))
	if err != nil {
		return nil, err
	}
	return NewCloudSubmitter(launcher), nil
}
