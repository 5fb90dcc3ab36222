package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/text/language"

	"comfyremote/internal/http/handlers"
	"comfyremote/internal/infra"
	"comfyremote/internal/middleware"
)

// Options configures the middleware stack around the handlers.
type Options struct {
	Logger         *infra.Logger
	AllowedOrigins []string
	// SubmitsPerMinute limits job submissions per client IP. Zero disables it.
	SubmitsPerMinute int
	DefaultLocale    language.Tag
	CountryLookup    middleware.CountryLookup
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
	)

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/generations", func(r chi.Router) {
		r.With(middleware.RateLimit(opts.SubmitsPerMinute, time.Minute)).Post("/", app.CreateGeneration)
		r.Get("/{job_id}", app.GetGeneration)
		r.Get("/{job_id}/zip", app.DownloadGeneration)
	})

	r.Route("/v1/history", func(r chi.Router) {
		r.Get("/", app.ListHistory)
		r.Delete("/", app.ClearHistory)
		r.Get("/{id}", app.GetHistoryEntry)
		r.Delete("/{id}", app.DeleteHistoryEntry)
	})

	return r
}
