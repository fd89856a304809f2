package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"artpost/internal/domain"
	"artpost/internal/pipeline"
)

const (
	multipartMemory    = 8 << 20
	defaultContentType = "application/octet-stream"

	msgStored      = "Art stored successfully"
	msgUploadError = "Error processing art upload"
)

type postArtResponse struct {
	Message              string `json:"message"`
	ID                   string `json:"id"`
	RecordID             string `json:"recordId"`
	ImageURL             string `json:"imageUrl"`
	NotificationsSkipped bool   `json:"notificationsSkipped,omitempty"`
}

// PostArt accepts a multipart submission (artImage plus id, artName,
// artistName, description) and runs it through the pipeline.
func (a *App) PostArt(w http.ResponseWriter, r *http.Request) {
	if a.Config != nil && a.Config.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, a.Config.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, http.StatusRequestEntityTooLarge, "submission too large", err.Error())
			return
		}
		a.error(w, http.StatusBadRequest, "invalid submission", err.Error())
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile(domain.FieldImage)
	if err != nil {
		a.error(w, http.StatusBadRequest, "invalid submission", domain.FieldImage+" is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = defaultContentType
	}
	sub := domain.Submission{
		Image:       file,
		Filename:    header.Filename,
		ContentType: contentType,
		Fields: map[string]string{
			domain.FieldID:          r.FormValue(domain.FieldID),
			domain.FieldArtName:     r.FormValue(domain.FieldArtName),
			domain.FieldArtistName:  r.FormValue(domain.FieldArtistName),
			domain.FieldDescription: r.FormValue(domain.FieldDescription),
		},
	}

	res, err := a.Pipeline.Run(r.Context(), sub)
	if err != nil {
		if pipeline.IsClientError(err) {
			a.error(w, http.StatusBadRequest, "invalid submission", err.Error())
			return
		}
		a.Logger.Error().Err(err).Msg("error processing art upload")
		a.error(w, http.StatusInternalServerError, msgUploadError, err.Error())
		return
	}

	a.json(w, http.StatusCreated, postArtResponse{
		Message:              msgStored,
		ID:                   res.CallerID,
		RecordID:             res.RecordID,
		ImageURL:             res.ImageURL,
		NotificationsSkipped: res.NotificationsSkipped,
	})
}

// GetArt returns a stored record by its generated id.
func (a *App) GetArt(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "id required")
		return
	}
	rec, err := a.Records.GetRecord(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "art not found")
			return
		}
		a.Logger.Error().Err(err).Str("record_id", id).Msg("load art")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load art")
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"recordId":    id,
		"id":          rec.CallerID,
		"artName":     rec.ArtName,
		"artistName":  rec.ArtistName,
		"description": rec.Description,
		"imageUrl":    rec.ImageURL,
		"createdAt":   rec.CreatedAt,
	})
}
