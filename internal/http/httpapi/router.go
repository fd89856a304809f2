package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"artpost/internal/http/handlers"
	"artpost/internal/middleware"
)

func NewRouter(app *handlers.App) http.Handler {
	r := chi.NewRouter()

	var origins []string
	rateLimit := 0
	if app.Config != nil {
		origins = app.Config.CORSAllowedOrigins
		rateLimit = app.Config.RateLimitPerMin
	}

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(app.Logger),
		middleware.CORS(origins),
	)

	r.Get("/v1/healthz", app.Health)
	if app.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", app.Metrics)
	}

	// Uploads keep the original public path alongside the versioned one.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(rateLimit, time.Minute))
		r.Post("/postArt", app.PostArt)
		r.Post("/v1/arts", app.PostArt)
	})

	r.Get("/v1/arts/{id}", app.GetArt)
	r.Get("/v1/blobs/{key}", app.DownloadBlob)

	return r
}
