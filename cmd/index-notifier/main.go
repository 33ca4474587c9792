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

	functions.HTTP("HandleNotifyIndex", handleNotifyIndex)
}

// main is required by the Go Functions Framework.
func main() {}

func handleNotifyIndex(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		orchestrator, initErr = services.NewFromEnv(context.Background())
	})
	if initErr != nil {
		slog.Error("CRITICAL: Index notifier initialization failed.", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}
	services.ServeJSON(w, r, orchestrator.Indexer.Process)
}
