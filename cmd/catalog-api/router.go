package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/spherical-ai/spherical/libs/catalog-engine/cmd/catalog-api/handlers"
	"github.com/spherical-ai/spherical/libs/catalog-engine/cmd/catalog-api/middleware"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/catalog"
	"github.com/spherical-ai/spherical/libs/catalog-engine/internal/observability"
)

// RouterConfig holds the HTTP-level settings of the API.
type RouterConfig struct {
	RequestTimeout time.Duration
	CORSOrigins    []string
	// RateLimit is nil when rate limiting is disabled.
	RateLimit *middleware.RateLimitConfig
}

// NewRouter creates the main API router with all routes configured.
// Metrics may be nil, in which case /metrics is not mounted.
func NewRouter(logger *observability.Logger, metrics *observability.Metrics, service *catalog.Service, cfg RouterConfig) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(logger, metrics))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(chimiddleware.Timeout(cfg.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"catalog-engine"}`))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := service.Ping(r.Context()); err != nil {
			logger.Warn().Err(err).Msg("Readiness check failed")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.Write([]byte(`{"status":"ready"}`))
	})

	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	}

	productHandler := handlers.NewProductHandler(logger, service)
	offerHandler := handlers.NewOfferHandler(logger, service)
	catalogHandler := handlers.NewCatalogHandler(logger, service)
	comparisonHandler := handlers.NewComparisonHandler(logger, service)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimit != nil {
			r.Use(middleware.NewRateLimiter(*cfg.RateLimit).Handler)
		}

		r.Get("/search", productHandler.Search)

		r.Route("/products", func(r chi.Router) {
			r.Get("/", productHandler.List)
			r.Route("/{productId}", func(r chi.Router) {
				r.Get("/", productHandler.Get)
				r.Get("/price-range", productHandler.PriceRange)
				r.Get("/specs/{specPath}/provenance", productHandler.Provenance)
			})
		})

		r.Route("/offers", func(r chi.Router) {
			r.Get("/variant/{variantId}", offerHandler.Variant)
			r.Post("/batch", offerHandler.Batch)
		})

		r.Get("/reviews/product/{productId}/summary", catalogHandler.ReviewSummary)

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", catalogHandler.Categories)
			r.Get("/{categoryId}/top", catalogHandler.TopProducts)
			r.Get("/{categoryId}/brands", catalogHandler.Brands)
		})

		r.Route("/compare", func(r chi.Router) {
			r.Get("/", comparisonHandler.Compare)
			r.Route("/sessions", func(r chi.Router) {
				r.Post("/", comparisonHandler.CreateSession)
				r.Route("/{sessionId}", func(r chi.Router) {
					r.Get("/", comparisonHandler.GetSession)
					r.Delete("/", comparisonHandler.ClearSession)
					r.Post("/products", comparisonHandler.AddProduct)
					r.Delete("/products/{productId}", comparisonHandler.RemoveProduct)
				})
			})
		})
	})

	return r
}
