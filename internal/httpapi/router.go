package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins []string
	// Metrics is optional. Without it requests are not counted.
	Metrics *HTTPMetrics
	// Gatherer backs /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer
	Logger   logrus.FieldLogger
}

// NewRouter mounts h on a chi router.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.Logger == nil {
		cfg.Logger = h.log
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(Logging(cfg.Logger))
	r.Use(middleware.Recoverer)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}
	r.Use(cors.Handler(CORSOptions(cfg.CORSAllowedOrigins)))

	// Liveness check, no dependency checks
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/ai", func(r chi.Router) {
			r.Post("/vision", h.Vision)
			r.Post("/admission", h.Admission)
			r.Get("/status", h.Status)
			r.Get("/models", h.Models)

			r.Route("/generation", func(r chi.Router) {
				r.Post("/select", h.SelectGeneration)
				r.Post("/admission", h.GenerationAdmission)
				r.Post("/usage", h.RecordGeneration)
			})
		})

		r.Route("/brand", func(r chi.Router) {
			r.Get("/", h.LoadBrand)
			r.Post("/", h.SaveBrand)
			r.Delete("/", h.DeleteBrand)
		})
	})

	return r
}
