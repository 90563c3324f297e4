// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/trackdhq/trackd/internal/domain"
	"github.com/trackdhq/trackd/internal/metrics"
	"github.com/trackdhq/trackd/internal/tracker"
)

// handleTrack ingests one tracker payload.
func (s *Server) handleTrack(w http.ResponseWriter, r *http.Request) {
	s.track(w, r, "")
}

// handleTrackStatic ingests a payload under a caller-asserted profile id.
func (s *Server) handleTrackStatic(w http.ResponseWriter, r *http.Request) {
	s.track(w, r, chi.URLParam(r, "profileID"))
}

func (s *Server) track(w http.ResponseWriter, r *http.Request, staticProfileID string) {
	started := time.Now()

	var payload domain.TrackerPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		metrics.ObserveTrack("bad_request", time.Since(started).Seconds())
		writeError(w, http.StatusBadRequest, "invalid payload: "+err.Error())
		return
	}
	payload.Init()
	payload.SetHeaders(flattenHeaders(r.Header))

	opts := tracker.Options{
		ClientIP:       clientIP(r),
		ProfileLess:    payload.ProfileLess,
		AllowedBridges: s.cfg.AllowedBridges,
		RunAsync:       r.URL.Query().Get("async") == "true",
	}
	if staticProfileID != "" {
		payload.Profile = &domain.Entity{ID: staticProfileID}
		opts.StaticProfileID = true
	}

	response, err := s.tracker.Track(r.Context(), &payload, opts)
	if err != nil {
		metrics.ObserveTrack(errorStatus(err), time.Since(started).Seconds())
		s.writeTrackError(w, err)
		return
	}
	metrics.ObserveTrack("ok", time.Since(started).Seconds())
	writeJSON(w, http.StatusOK, response)
}

func errorStatus(err error) string {
	var (
		conflict  *tracker.FieldTypeConflictError
		transient *tracker.TransientError
	)
	switch {
	case errors.Is(err, tracker.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, tracker.ErrInvalidArgument):
		return "bad_request"
	case errors.As(err, &conflict):
		return "storage_failure"
	case errors.As(err, &transient):
		return "transient"
	default:
		return "error"
	}
}

// writeTrackError maps the tracker error taxonomy onto HTTP statuses. Only
// the four caller-visible kinds reach this point; everything else ended up
// in the console log.
func (s *Server) writeTrackError(w http.ResponseWriter, err error) {
	var (
		conflict  *tracker.FieldTypeConflictError
		transient *tracker.TransientError
	)
	switch {
	case errors.Is(err, tracker.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, tracker.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error": conflict.Message,
			"rows":  conflict.Rows,
		})
	case errors.As(err, &transient):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.logger.Error().Err(err).Msg("track request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// flattenHeaders collapses multi-valued headers into single values the
// payload stores; credential headers are redacted by the payload itself.
func flattenHeaders(headers http.Header) map[string]string {
	flat := make(map[string]string, len(headers))
	for name, values := range headers {
		flat[strings.ToLower(name)] = strings.Join(values, ", ")
	}
	return flat
}

// clientIP resolves the caller address, honoring the forwarding proxy chain.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if first, _, ok := strings.Cut(forwarded, ","); ok {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(forwarded)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]any{"error": message})
}
