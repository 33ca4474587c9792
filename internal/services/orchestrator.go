package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/ocrworker/internal/config"
	"github.com/Lllllllleong/ocrworker/internal/dispatch"
	"github.com/Lllllllleong/ocrworker/internal/gcp"
	"github.com/Lllllllleong/ocrworker/internal/models"
	"github.com/Lllllllleong/ocrworker/internal/storage"
)

// Orchestrator drives an OCR run: prepare, fan out page jobs, join, stitch,
// commit and notify. In cloud mode the workflow calls the stages one by one
// instead of Run.
type Orchestrator struct {
	deps *Deps
	runs runRecorder

	Pages     *PageWorker
	Stitcher  *Stitcher
	Committer *Committer
	Indexer   *IndexStage

	retry dispatch.RetryPolicy
	newID func() string
}

func NewOrchestrator(d *Deps) *Orchestrator {
	retry := dispatch.DefaultRetryPolicy()
	retry.MaxRetries = d.Config.MaxRetries
	return &Orchestrator{
		deps:      d,
		runs:      runRecorder{store: d.Store},
		Pages:     NewPageWorker(d),
		Stitcher:  NewStitcher(d),
		Committer: NewCommitter(d),
		Indexer:   NewIndexStage(d),
		retry:     retry,
		newID:     uuid.NewString,
	}
}

// NewFromEnv loads configuration from the environment (and the file named by
// OCR_CONFIG, if any) and builds an orchestrator with live clients.
func NewFromEnv(ctx context.Context) (*Orchestrator, error) {
	cfg, err := config.Load(gcp.GetEnv("OCR_CONFIG", ""))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	deps, err := NewDeps(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewOrchestrator(deps), nil
}

func (o *Orchestrator) Deps() *Deps { return o.deps }

// Prepare snapshots the latest version of the document, pre-generates the
// target version and page ids, and returns one job per page.
func (o *Orchestrator) Prepare(ctx context.Context, req *models.PrepareRequest) (*models.PrepareResponse, error) {
	lang := strings.ToLower(strings.TrimSpace(req.Lang))
	logCtx := slog.With("documentId", req.DocumentID, "lang", lang, "executionId", req.ExecutionID)

	if req.DocumentID == "" {
		return nil, &models.ValidationError{Field: "documentId", Reason: "documentId is required"}
	}
	if lang == "" {
		return nil, &models.ValidationError{Field: "lang", Reason: "lang is required"}
	}

	latest, err := o.deps.Store.LatestVersion(ctx, req.DocumentID)
	if err != nil {
		logCtx.Error("Could not load latest version.", "error", err)
		return nil, err
	}
	pages, err := o.deps.Store.Pages(ctx, latest.ID)
	if err != nil {
		return nil, err
	}
	if len(pages) != latest.PageCount {
		return nil, &models.ValidationError{
			Field:  "pageCount",
			Value:  latest.PageCount,
			Reason: fmt.Sprintf("version %s declares %d pages but has %d", latest.ID, latest.PageCount, len(pages)),
		}
	}
	src, err := o.deps.Tier.Ensure(ctx, storage.DocVersionPath(latest.ID, latest.FileName))
	if err != nil {
		logCtx.Error("Source file unavailable.", "versionId", latest.ID, "error", err)
		return nil, err
	}
	if _, err := detectContent(src, latest.FileName); err != nil {
		return nil, err
	}

	wc := models.WorkflowContext{
		Version:         models.WorkflowContextVersion,
		DocumentID:      req.DocumentID,
		SourceVersionID: latest.ID,
		SourceFileName:  latest.FileName,
		SourcePageCount: latest.PageCount,
		TargetVersionID: o.newID(),
		TargetPageIDs:   make([]string, latest.PageCount),
		Language:        lang,
		ExecutionID:     req.ExecutionID,
	}
	for i := range wc.TargetPageIDs {
		wc.TargetPageIDs[i] = o.newID()
	}
	logCtx = logCtx.With("targetVersionId", wc.TargetVersionID)

	if err := o.runs.advance(ctx, wc, models.StateStarted); err != nil {
		return nil, err
	}
	jobs := wc.PageJobs()
	if err := o.runs.advance(ctx, wc, models.StateFannedOut); err != nil {
		return nil, o.handleError(ctx, logCtx, wc, "failed to record fan-out", err)
	}

	logCtx.Info("OCR run prepared.", "sourceVersionId", latest.ID, "pageCount", len(jobs))
	return &models.PrepareResponse{Status: "success", Context: wc, Jobs: jobs}, nil
}

// Run executes a whole OCR run in-process and returns the committed version.
// Page jobs run concurrently; a job that exhausts its retries fails the run
// once the other jobs have finished.
func (o *Orchestrator) Run(ctx context.Context, documentID, lang string) (*models.DocumentVersion, error) {
	prep, err := o.Prepare(ctx, &models.PrepareRequest{DocumentID: documentID, Lang: lang, ExecutionID: "local-" + o.newID()})
	if err != nil {
		return nil, err
	}
	wc := prep.Context
	logCtx := slog.With("documentId", wc.DocumentID, "targetVersionId", wc.TargetVersionID)

	artifacts := make([]models.PageArtifact, len(prep.Jobs))
	var eg errgroup.Group
	eg.SetLimit(o.deps.Config.Concurrency)
	for i, job := range prep.Jobs {
		eg.Go(func() error {
			name := fmt.Sprintf("page %d of %s", job.PageNumber, wc.DocumentID)
			return dispatch.Retry(ctx, o.retry, name, func(ctx context.Context) error {
				res, err := o.Pages.Process(ctx, &job)
				if err != nil {
					return err
				}
				artifacts[i] = res.Artifact
				return nil
			})
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, o.handleError(ctx, logCtx, wc, "page OCR failed", err)
	}

	return o.Continue(ctx, wc, artifacts)
}

// Continue runs the join continuation: stitch, commit, notify.
func (o *Orchestrator) Continue(ctx context.Context, wc models.WorkflowContext, artifacts []models.PageArtifact) (*models.DocumentVersion, error) {
	logCtx := slog.With("documentId", wc.DocumentID, "targetVersionId", wc.TargetVersionID)

	err := dispatch.Retry(ctx, o.retry, "stitch "+wc.TargetVersionID, func(ctx context.Context) error {
		_, err := o.Stitcher.Process(ctx, &models.StitchRequest{Context: wc, Artifacts: artifacts})
		return err
	})
	if err != nil {
		return nil, o.handleError(ctx, logCtx, wc, "stitching failed", err)
	}

	var committed *models.CommitResponse
	err = dispatch.Retry(ctx, o.retry, "commit "+wc.TargetVersionID, func(ctx context.Context) error {
		res, err := o.Committer.Process(ctx, &models.CommitRequest{Context: wc})
		committed = res
		return err
	})
	if err != nil {
		return nil, o.handleError(ctx, logCtx, wc, "commit failed", err)
	}

	if _, err := o.Indexer.Process(ctx, &models.NotifyRequest{Context: wc}); err != nil {
		logCtx.Warn("Could not record notification state.", "error", err)
	}
	return o.deps.Store.GetVersion(ctx, committed.VersionID)
}

// MarkFailed records the run as FAILED. The workflow calls it from its
// exception handler.
func (o *Orchestrator) MarkFailed(ctx context.Context, req *models.MarkFailedRequest) (*models.MarkFailedResponse, error) {
	if req.Context.TargetVersionID == "" {
		return nil, &models.ValidationError{Field: "context.targetVersionId", Reason: "targetVersionId is required"}
	}
	slog.Warn("Marking OCR run as failed.",
		"documentId", req.Context.DocumentID,
		"targetVersionId", req.Context.TargetVersionID,
		"error", req.Error,
	)
	if err := o.runs.fail(ctx, req.Context, req.Error); err != nil {
		return nil, err
	}
	return &models.MarkFailedResponse{Status: "success"}, nil
}

func (o *Orchestrator) handleError(ctx context.Context, logCtx *slog.Logger, wc models.WorkflowContext, message string, originalErr error) error {
	fullError := fmt.Sprintf("%s: %v", message, originalErr)
	logCtx.Error(message, "error", originalErr)
	if err := o.runs.fail(ctx, wc, fullError); err != nil {
		logCtx.Error("CRITICAL: Failed to record FAILED state after a processing error.", "updateError", err)
	}
	return fmt.Errorf("%s: %w", message, originalErr)
}
