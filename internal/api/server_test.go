// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackdhq/trackd/internal/cache"
	"github.com/trackdhq/trackd/internal/domain"
	"github.com/trackdhq/trackd/internal/storage"
	"github.com/trackdhq/trackd/internal/storage/storagetest"
	"github.com/trackdhq/trackd/internal/store"
	"github.com/trackdhq/trackd/internal/tracker"
)

const (
	sourceIndex  = "trackd-stage-source"
	profileIndex = "trackd-stage-profile"
	eventStream  = "trackd-stage-event"
)

func newTestServer(t *testing.T, cfg Config) (*Server, *storagetest.Driver) {
	t.Helper()
	driver := storagetest.New()
	stores := store.New(driver, storage.Resolver{Prefix: "trackd"})
	trk := tracker.New(stores, cache.Nop{}, nil, tracker.Config{
		SessionTTL: time.Minute, SourceTTL: time.Minute, EventTagTTL: time.Minute,
		FlowTTL: time.Minute, SegmentTTL: time.Minute, RuleTTL: time.Minute,
	})
	if cfg.AllowedBridges == nil {
		cfg.AllowedBridges = []string{"rest"}
	}
	return New(trk, driver, cfg), driver
}

func seedSource(driver *storagetest.Driver, id string) {
	driver.Put(sourceIndex, id, &domain.EventSource{
		Entity:         domain.Entity{ID: id},
		Kind:           "rest",
		Enabled:        true,
		ReturnsProfile: true,
	})
}

func postTrack(t *testing.T, handler http.Handler, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestTrackEndpoint(t *testing.T) {
	server, driver := newTestServer(t, Config{})
	seedSource(driver, "src-A")

	rec := postTrack(t, server.Router(), "/track",
		`{"source":{"id":"src-A"},"session":{"id":"sess-1"},"events":[{"type":"pageview"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var response tracker.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.NotNil(t, response.Profile)
	assert.NotEmpty(t, response.Profile["id"])
	assert.NotNil(t, response.UX)

	assert.Equal(t, 1, driver.Count(eventStream))
}

func TestTrackUnknownSource(t *testing.T) {
	server, _ := newTestServer(t, Config{})

	rec := postTrack(t, server.Router(), "/track",
		`{"source":{"id":"nobody"},"events":[{"type":"pageview"}]}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "unauthorized")
}

func TestTrackMalformedPayload(t *testing.T) {
	server, _ := newTestServer(t, Config{})

	rec := postTrack(t, server.Router(), "/track", `{"source":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTrackStaticProfileEndpoint(t *testing.T) {
	server, driver := newTestServer(t, Config{})
	seedSource(driver, "src-A")

	rec := postTrack(t, server.Router(), "/track/asserted-1",
		`{"source":{"id":"src-A"},"session":{"id":"sess-2"},"events":[{"type":"pageview"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var response tracker.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "asserted-1", response.Profile["id"])

	_, stored := driver.Get(profileIndex, "asserted-1")
	assert.True(t, stored)
}

func TestTrackAsyncQuery(t *testing.T) {
	server, driver := newTestServer(t, Config{})
	seedSource(driver, "src-A")

	rec := postTrack(t, server.Router(), "/track?async=true",
		`{"source":{"id":"src-A"},"session":{"id":"sess-3"},"events":[{"type":"pageview"}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Eventually(t, func() bool {
		return driver.Count(eventStream) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestTrackRateLimited(t *testing.T) {
	server, driver := newTestServer(t, Config{RateLimit: 1})
	seedSource(driver, "src-A")
	router := server.Router()

	body := `{"source":{"id":"src-A"},"session":{"id":"sess-4"},"events":[{"type":"pageview"}]}`
	first := postTrack(t, router, "/track", body)
	require.Equal(t, http.StatusOK, first.Code)

	second := postTrack(t, router, "/track", body)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestHealthEndpoint(t *testing.T) {
	server, driver := newTestServer(t, Config{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	driver.HealthErr = errors.New("cluster red")
	rec = httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestClientIPForwarded(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/track", nil)
	req.RemoteAddr = "203.0.113.9:4711"
	assert.Equal(t, "203.0.113.9", clientIP(req))

	req.Header.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.2")
	assert.Equal(t, "198.51.100.1", clientIP(req))
}

func TestFlattenHeaders(t *testing.T) {
	headers := http.Header{}
	headers.Add("User-Agent", "collector/1.0")
	headers.Add("Accept", "application/json")
	headers.Add("Accept", "text/plain")

	flat := flattenHeaders(headers)
	assert.Equal(t, "collector/1.0", flat["user-agent"])
	assert.Equal(t, "application/json, text/plain", flat["accept"])
}
