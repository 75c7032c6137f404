// Logpond - Buffered Structured Log Sink
// Copyright 2026 The Logpond Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/logpond/logpond

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/logpond/logpond/internal/config"
)

// Router assembles the HTTP surface.
type Router struct {
	handler *Handler
	cfg     *config.ServerConfig
}

// NewRouter creates a router serving handler with cfg's limits.
func NewRouter(handler *Handler, cfg *config.ServerConfig) *Router {
	return &Router{handler: handler, cfg: cfg}
}

// Setup builds the chi handler tree.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to all routes in order.
	r.Use(RequestID())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(RequestLogger())

	// Operational endpoints: no rate limit, monitors poll these.
	r.Get("/health", router.handler.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	rateCfg := MiddlewareConfig{
		RateLimitRequests: router.cfg.RateLimitRequests,
		RateLimitWindow:   router.cfg.RateLimitWindow,
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(RateLimit(rateCfg))
		r.Use(PrometheusMetrics())
		// Entry listings compress well; gzip when the client accepts it.
		r.Use(chimiddleware.Compress(5, "application/json"))

		r.Post("/entries", router.handler.Ingest)
		r.Get("/entries", router.handler.Entries)
		r.Delete("/entries", router.handler.DeleteEntries)
		r.Get("/entries/count", router.handler.Count)
		r.Get("/stats", router.handler.Stats)
		r.Post("/retention/run", router.handler.RetentionRun)
	})

	return r
}
