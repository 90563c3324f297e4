// SPDX-License-Identifier: MIT

// Package api provides the HTTP transport of the trackd collector.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/trackdhq/trackd/internal/log"
	"github.com/trackdhq/trackd/internal/storage"
	"github.com/trackdhq/trackd/internal/tracker"
)

// Config holds the transport settings.
type Config struct {
	// AllowedBridges is the allow-list of source kinds the /track endpoint
	// accepts.
	AllowedBridges []string

	// RateLimit bounds track requests per client IP and minute; zero
	// disables limiting.
	RateLimit int
}

// Server routes collector requests to the tracker.
type Server struct {
	tracker *tracker.Tracker
	driver  storage.Driver
	cfg     Config
	logger  zerolog.Logger
}

// New builds the HTTP server over a tracker.
func New(t *tracker.Tracker, driver storage.Driver, cfg Config) *Server {
	return &Server{
		tracker: t,
		driver:  driver,
		cfg:     cfg,
		logger:  log.WithComponent("api"),
	}
}

// Router assembles the chi router: the track endpoints, health and metrics.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		if s.cfg.RateLimit > 0 {
			r.Use(httprate.Limit(
				s.cfg.RateLimit,
				time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
			))
		}
		r.Post("/track", s.handleTrack)
		r.Post("/track/{profileID}", s.handleTrackStatic)
	})

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// handleHealth reports storage reachability.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := s.driver.Health(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unhealthy", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
