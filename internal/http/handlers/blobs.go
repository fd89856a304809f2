package handlers

import (
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"artpost/internal/domain"
)

// DownloadBlob streams a filesystem-stored object when the request carries
// the object's download token.
func (a *App) DownloadBlob(w http.ResponseWriter, r *http.Request) {
	if a.Blobs == nil {
		a.error(w, http.StatusNotFound, "not_found", "blob serving disabled")
		return
	}
	key, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil || key == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid key")
		return
	}
	rc, contentType, err := a.Blobs.Open(r.Context(), key, r.URL.Query().Get("token"))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidToken):
			a.error(w, http.StatusForbidden, "forbidden", "invalid token")
		case errors.Is(err, domain.ErrNotFound):
			a.error(w, http.StatusNotFound, "not_found", "blob not found")
		default:
			a.Logger.Error().Err(err).Str("key", key).Msg("open blob")
			a.error(w, http.StatusInternalServerError, "internal", "failed to open blob")
		}
		return
	}
	defer rc.Close()

	if contentType == "" {
		contentType = defaultContentType
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
}
