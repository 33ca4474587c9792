package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/Lllllllleong/ocrworker/internal/services"
)

var (
	orchestrator *services.Orchestrator
	once         sync.Once
	initErr      error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("HandleCommitVersion", handleCommitVersion)
	// Called from the workflow's except block.
	functions.HTTP("HandleMarkFailed", handleMarkFailed)
}

// main is required by the Go Functions Framework.
func main() {}

func ready(w http.ResponseWriter) bool {
	once.Do(func() {
		orchestrator, initErr = services.NewFromEnv(context.Background())
	})
	if initErr != nil {
		slog.Error("CRITICAL: Version committer initialization failed.", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return false
	}
	return true
}

func handleCommitVersion(w http.ResponseWriter, r *http.Request) {
	if ready(w) {
		services.ServeJSON(w, r, orchestrator.Committer.Process)
	}
}

func handleMarkFailed(w http.ResponseWriter, r *http.Request) {
	if ready(w) {
		services.ServeJSON(w, r, orchestrator.MarkFailed)
	}
}
