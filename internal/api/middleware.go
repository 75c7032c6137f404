// Logpond - Buffered Structured Log Sink
// Copyright 2026 The Logpond Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/logpond/logpond

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"

	"github.com/logpond/logpond/internal/logging"
	"github.com/logpond/logpond/internal/metrics"
)

// MiddlewareConfig holds knobs for the shared middleware stack.
type MiddlewareConfig struct {
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// RequestID attaches an X-Request-ID header (honoring one supplied by the
// client) so ingest problems can be traced across producer and sink logs.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = uuid.New().String()
				r.Header.Set("X-Request-ID", requestID)
			}
			w.Header().Set("X-Request-ID", requestID)
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger logs each request with timing and status at debug level.
// Ingest traffic is high-volume; anything chattier would have the sink
// logging about logging.
func RequestLogger() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logging.Debug().
				Str("method", r.Method).
				Str("path", sanitizeLogValue(r.URL.Path)).
				Str("request_id", ww.Header().Get("X-Request-ID")).
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("Request served")
		})
	}
}

// PrometheusMetrics records request counts and latencies labeled by the chi
// route pattern, not the raw path, to keep cardinality bounded.
func PrometheusMetrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			pattern := chi.RouteContext(r.Context()).RoutePattern()
			if pattern == "" {
				pattern = "unmatched"
			}
			metrics.RecordHTTPRequest(r.Method, pattern, ww.Status(), time.Since(start))
		})
	}
}

// RateLimit limits requests per client IP using go-chi/httprate. A zero
// request count disables limiting.
func RateLimit(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	if cfg.RateLimitRequests <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	window := cfg.RateLimitWindow
	if window <= 0 {
		window = time.Minute
	}
	return httprate.Limit(
		cfg.RateLimitRequests,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
	)
}
