package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gmaxsoft/elasticsearch-project/internal/service"
	"github.com/gmaxsoft/elasticsearch-project/pkg/health"
	"github.com/gmaxsoft/elasticsearch-project/pkg/middleware"
)

// RouterConfig holds the cross-cutting settings of the HTTP surface.
type RouterConfig struct {
	ServiceName    string
	CORS           middleware.CORSConfig
	RequestTimeout time.Duration
	RateLimit      middleware.RateLimitConfig
}

// NewRouter creates a chi router with all search service routes registered.
func NewRouter(
	queryService *service.QueryService,
	importer Importer,
	healthHandler *health.Handler,
	cfg RouterConfig,
	logger *slog.Logger,
) http.Handler {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "search"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(cfg.RequestTimeout))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics(cfg.ServiceName))

	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	searchHandler := NewSearchHandler(queryService, logger)
	importHandler := NewImportHandler(importer, logger)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimit, logger))
		r.Group(func(r chi.Router) {
			r.Use(middleware.CacheControl(0))
			r.Get("/search", searchHandler.Search)
			r.Get("/suggestions", searchHandler.Suggest)
		})
		r.With(ContentTypeJSON).Post("/import", importHandler.Import)
	})

	return r
}

// ContentTypeJSON rejects request bodies that are not declared as JSON.
// Bodyless requests pass through.
func ContentTypeJSON(next http.Handler) http.Handler {
	return chimw.AllowContentType("application/json")(next)
}
