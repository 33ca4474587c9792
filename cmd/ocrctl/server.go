package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/Lllllllleong/ocrworker/internal/dispatch"
	"github.com/Lllllllleong/ocrworker/internal/models"
	"github.com/Lllllllleong/ocrworker/internal/services"
)

func newRouter(o *services.Orchestrator, submitter *services.Submitter) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/documents/{id}/ocr", func(w http.ResponseWriter, r *http.Request) {
		services.ServeJSON(w, r, func(ctx context.Context, req *models.SubmitOCRRequest) (*models.SubmitOCRResponse, error) {
			req.DocumentID = mux.Vars(r)["id"]
			return submitter.Submit(ctx, req)
		})
	}).Methods("POST")

	r.HandleFunc("/documents/{id}/versions/latest", func(w http.ResponseWriter, r *http.Request) {
		v, err := o.Deps().Store.LatestVersion(r.Context(), mux.Vars(r)["id"])
		if errors.Is(err, models.ErrNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(v)
	}).Methods("GET")

	r.HandleFunc("/runs", func(w http.ResponseWriter, r *http.Request) {
		runs, err := o.Deps().Store.ListRuns(r.Context(), models.WorkflowState(r.URL.Query().Get("state")))
		if err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(runs)
	}).Methods("GET")

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("GET")

	return r
}

func (c commands) serve() { *c.err = c.serveHTTP() }

func (c commands) serveHTTP() error {
	o, err := c.orchestrator()
	if err != nil {
		return err
	}
	defer o.Deps().Close()
	cfg := o.Deps().Config

	pool := dispatch.NewPool(c.ctx, cfg.Concurrency, cfg.QueueSize)
	defer pool.Close()
	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           newRouter(o, services.NewLocalSubmitter(pool, o)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-c.ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("Serving OCR trigger.", "addr", opts.Addr, "workers", cfg.Concurrency)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
