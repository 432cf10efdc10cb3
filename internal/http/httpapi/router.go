package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"thumbnailer/internal/http/handlers"
	"thumbnailer/internal/middleware"
)

// Options carries the cross-cutting pieces the router wraps around handlers.
type Options struct {
	Logger         zerolog.Logger
	Observer       middleware.HTTPObserver
	MetricsHandler http.Handler
	AllowedOrigins []string
	DefaultLocale  string
	CountryLookup  middleware.CountryLookup
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		middleware.Logger(opts.Logger),
		chimw.Recoverer,
		middleware.Metrics(opts.Observer),
		middleware.CORS(opts.AllowedOrigins),
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
	)

	// Health
	r.Get("/v1/healthz", app.Health)
	if opts.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", opts.MetricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/upload", app.Upload)

		r.Route("/thumbnail-requests", func(r chi.Router) {
			r.Post("/", app.CreateThumbnailRequest)
			r.Get("/", app.ListThumbnailRequests)
			r.Get("/{id}", app.GetThumbnailRequest)
			r.Post("/{id}/refine", app.RefineThumbnailRequest)
			r.Post("/{id}/generate", app.GenerateThumbnail)
			r.Get("/{id}/archive", app.ArchiveThumbnailRequest)
		})

		r.Get("/images/{filename}", app.ServeImage)
		r.Get("/download/{filename}", app.DownloadImage)
	})

	return r
}
