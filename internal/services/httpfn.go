package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Lllllllleong/ocrworker/internal/models"
)

// ServeJSON decodes a Req from the body, runs process and writes the
// response as JSON. Permanent errors answer 400 so the workflow does not
// retry them; anything else answers 500.
func ServeJSON[Req, Resp any](w http.ResponseWriter, r *http.Request, process func(ctx context.Context, req *Req) (*Resp, error)) {
	var req Req
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Failed to decode request body.", "error", err)
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}

	res, err := process(r.Context(), &req)
	if err != nil {
		if models.IsPermanent(err) {
			http.Error(w, "Bad Request: "+err.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("Request processing failed.", "path", r.URL.Path, "error", err)
		http.Error(w, "Internal Server Error: processing failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error("Failed to encode response.", "error", err)
	}
}
