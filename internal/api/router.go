// Package api exposes the sync pipeline over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fitsync/internal/logx"
)

// DefaultRateLimit is requests per minute per IP on sync and OAuth routes
const DefaultRateLimit = 30

// Options wires the router's collaborators
type Options struct {
	Store     Store
	Syncer    Syncer
	Batch     BatchRunner
	OAuth     OAuthFlow
	Resolver  AppResolver
	JWTSecret string
	CronToken string
	RateLimit int
	Logger    *slog.Logger
}

// NewRouter creates a chi router with every fitsync route registered
func NewRouter(opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = DefaultRateLimit
	}

	h := &Handler{
		store:    opts.Store,
		syncer:   opts.Syncer,
		batch:    opts.Batch,
		oauth:    opts.OAuth,
		resolver: opts.Resolver,
		logger:   opts.Logger,
	}
	limit := httprate.LimitByIP(opts.RateLimit, time.Minute)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(logx.Middleware(opts.Logger))
	r.Use(chimw.Recoverer)
	r.Use(Metrics)

	r.Get("/livez", h.Live)
	r.Get("/readyz", h.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(Authenticate(opts.JWTSecret))

		r.Get("/settings", h.Settings)
		r.Get("/activities", h.ListActivities)

		r.Route("/strava", func(r chi.Router) {
			r.Get("/config", h.GetConfig)
			r.Post("/config", h.SaveConfig)
			r.Delete("/connection", h.Disconnect)

			r.Group(func(r chi.Router) {
				r.Use(limit)
				r.Post("/sync", h.Sync)
				r.Post("/oauth/authorize", h.Authorize)
				r.Post("/oauth/exchange", h.Exchange)
			})
		})
	})

	r.With(RequireCronToken(opts.CronToken)).Post("/internal/scheduled-sync", h.ScheduledSync)

	return r
}
