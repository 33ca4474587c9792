package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/Lllllllleong/ocrworker/internal/models"
	"github.com/Lllllllleong/ocrworker/internal/services"
)

var (
	submitterInstance *services.Submitter
	once              sync.Once
	initErr           error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// The same trigger is reachable as an event and as a plain HTTP call.
	functions.CloudEvent("SubmitOCR", submitOCR)
	functions.HTTP("HandleSubmitOCR", handleSubmitOCR)
}

// main is required by the Go Functions Framework.
func main() {}

func initSubmitter() error {
	once.Do(func() {
		submitterInstance, initErr = services.NewCloudSubmitterFromEnv(context.Background())
	})
	return initErr
}

func submitOCR(ctx context.Context, e cloudevents.Event) error {
	if err := initSubmitter(); err != nil {
		slog.Error("Critical error during function initialization", "error", err)
		return err
	}

	var req models.SubmitOCRRequest
	if err := json.Unmarshal(e.Data(), &req); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}
	_, err := submitterInstance.Submit(ctx, &req)
	return err
}

func handleSubmitOCR(w http.ResponseWriter, r *http.Request) {
	if err := initSubmitter(); err != nil {
		slog.Error("CRITICAL: Submitter initialization failed.", "error", err)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}
	services.ServeJSON(w, r, submitterInstance.Submit)
}
