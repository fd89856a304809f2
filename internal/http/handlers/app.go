package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"artpost/internal/domain"
	"artpost/internal/infra"
	"artpost/internal/pipeline"
)

// Submitter runs the upload-commit-notify pipeline for one submission.
type Submitter interface {
	Run(ctx context.Context, sub domain.Submission) (pipeline.Result, error)
}

// BlobOpener serves objects written by the filesystem blob store.
type BlobOpener interface {
	Open(ctx context.Context, key, token string) (io.ReadCloser, string, error)
}

// App carries the dependencies shared by every handler.
type App struct {
	Config   *infra.Config
	Logger   infra.Logger
	Pipeline Submitter
	Records  domain.ArtReader
	// Blobs is nil when objects are served by an external store.
	Blobs   BlobOpener
	Metrics http.Handler
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, msg, details string) {
	a.json(w, code, errorResponse{Error: msg, Details: details})
}
