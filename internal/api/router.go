package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/iconidentify/recipegrabba/internal/api/handler"
	mw "github.com/iconidentify/recipegrabba/internal/api/middleware"
	"github.com/iconidentify/recipegrabba/internal/metrics"
)

// Handlers groups the route handlers.
type Handlers struct {
	Import  *handler.ImportHandler
	Recipe  *handler.RecipeHandler
	History *handler.HistoryHandler
	Share   *handler.ShareHandler
	Health  *handler.HealthHandler
	UI      *handler.UIHandler
	Metrics http.Handler // nil disables /metrics
}

// Options configures cross-cutting router behavior.
type Options struct {
	APIKey           string
	ImportRatePerMin int
	RequestTimeout   time.Duration
}

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(h Handlers, opts Options, m metrics.Metrics, logger *slog.Logger) *chi.Mux {
	if m == nil {
		m = metrics.Noop{}
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Minute
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CleanPath)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger(logger))
	r.Use(mw.Recovery(logger))
	r.Use(mw.Metrics(m))
	r.Use(mw.CORS)

	// Health endpoints (no auth)
	r.Get("/health", h.Health.Live)
	r.Get("/ready", h.Health.Ready)
	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics)
	}

	// Web UI and share target (no auth, the page sends the key itself)
	r.Get("/", h.UI.Index)
	r.Get("/manifest.json", h.UI.Manifest)
	r.Post("/share", h.Share.Receive)
	r.Get("/share", h.Share.Home)

	limiter := mw.NewRateLimiter(opts.ImportRatePerMin)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(opts.APIKey))
		r.Use(middleware.Timeout(opts.RequestTimeout))

		r.Group(func(r chi.Router) {
			r.Use(limiter.Middleware)
			r.Post("/imports/url", h.Import.ImportURL)
			r.Post("/imports/image", h.Import.ImportImage)
		})

		r.Get("/imports", h.History.List)
		r.Post("/recipes/exists", h.Recipe.Exists)
		r.Get("/recipes/{id}/image", h.Recipe.Image)
	})

	return r
}
