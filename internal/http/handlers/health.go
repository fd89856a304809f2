package handlers

import (
	"net/http"
)

type healthResponse struct {
	Status          string `json:"status"`
	MetadataBackend string `json:"metadataBackend,omitempty"`
	BlobBackend     string `json:"blobBackend,omitempty"`
	PushEnabled     bool   `json:"pushEnabled"`
}

// Health reports liveness and which backends the process was started with.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	res := healthResponse{Status: "ok"}
	if a.Config != nil {
		res.MetadataBackend = a.Config.MetadataBackend
		res.BlobBackend = a.Config.BlobBackend
		res.PushEnabled = a.Config.PushEnabled()
	}
	a.json(w, http.StatusOK, res)
}
