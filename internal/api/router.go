// Package api provides the HTTP surface of synopmap: the map page, the
// station endpoints the widget reads, and the operational endpoints.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/synopmap/synopmap/internal/api/handler"
	"github.com/synopmap/synopmap/internal/api/middleware"
	"github.com/synopmap/synopmap/internal/mapview"
	"github.com/synopmap/synopmap/internal/provider/resilience"
	"github.com/synopmap/synopmap/internal/stations"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	Stations *stations.Service
	Registry *resilience.Registry
	Checks   []handler.DependencyCheck
	Tokens   middleware.TokenValidator

	// Map is the widget configuration served to the page. Its data URL
	// should point at /api/stations.
	Map       mapview.Config
	PageTitle string

	// CORSOrigins may read /api from other pages (default: none).
	CORSOrigins []string

	// RateLimit is the per-IP limit of the read endpoints in requests per
	// minute (default: 120).
	RateLimit int
}

// NewRouter creates a new chi router with all routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "synopmap-api"
	}

	readLimit := middleware.StandardRateLimit
	if cfg.RateLimit > 0 {
		readLimit = middleware.PerMinute(cfg.RateLimit)
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(middleware.SecurityHeaders)      // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS)           // TLS enforcement (enabled via REQUIRE_TLS=true)

	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Stations:  cfg.Stations,
		Registry:  cfg.Registry,
		Checks:    cfg.Checks,
	})
	stationsHandler := handler.NewStationsHandler(cfg.Stations, cfg.Logger)
	mapHandler := handler.NewMapHandler(cfg.Map, cfg.PageTitle, cfg.Stations, cfg.Logger)
	adminHandler := handler.NewAdminHandler(cfg.Stations, cfg.Logger)

	standardRateLimit := middleware.RateLimitByIP(readLimit)
	rangeRateLimit := middleware.RateLimitByIP(middleware.RangeRateLimit)
	rangeForm := middleware.AllowContentTypes(middleware.MediaTypeForm, middleware.MediaTypeMultipart)

	// Map page and its assets
	r.Group(func(r chi.Router) {
		r.Use(middleware.PageSecurityHeaders)
		r.Get("/", mapHandler.Page)
		r.Handle(mapview.StaticPrefix+"*", mapview.StaticHandler())
	})

	// Widget data endpoints
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.CORS(cfg.CORSOrigins))
		r.Use(middleware.ContentTypeJSON)

		r.Group(func(r chi.Router) {
			r.Use(standardRateLimit)

			r.Route("/stations", func(r chi.Router) {
				r.Get("/", stationsHandler.ListStations)
				r.Get("/export", stationsHandler.ExportStations)

				// Range exports hit the upstream provider on every call
				r.With(rangeRateLimit).Get("/range", stationsHandler.ExportRange)
				r.With(rangeRateLimit, rangeForm).Post("/range", stationsHandler.ExportRange)

				r.Route("/{stationId}", func(r chi.Router) {
					r.Get("/", stationsHandler.GetStation)
					r.Get("/export", stationsHandler.ExportStation)
				})
			})

			r.Route("/snapshots", func(r chi.Router) {
				r.Get("/", stationsHandler.ListSnapshots)
				r.Get("/{snapshotId}", stationsHandler.GetSnapshot)
			})

			r.Route("/map", func(r chi.Router) {
				r.Get("/config", mapHandler.Config)
				r.Get("/layers", mapHandler.Layers)
			})

			r.Get("/schema/station-properties", stationsHandler.PropertiesSchema)
		})
	})

	// Operational endpoints
	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)

		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.With(standardRateLimit).Get("/status", opsHandler.SystemStatus)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.AdminAuth(cfg.Tokens))
			r.Use(middleware.RateLimitBySubject(middleware.AdminRateLimit))

			r.Post("/refresh", adminHandler.Refresh)
			r.Post("/cache/invalidate", adminHandler.InvalidateCache)
		})
	})

	return r
}
