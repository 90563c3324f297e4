// SPDX-License-Identifier: MIT

// Package metrics holds the Prometheus collectors of the track path.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TrackRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trackd_track_requests_total",
		Help: "Total number of track requests by outcome",
	}, []string{"status"})

	TrackEventsPersistedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trackd_track_events_persisted_total",
		Help: "Total number of event documents written",
	})

	TrackDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trackd_track_duration_seconds",
		Help:    "End-to-end duration of synchronous track requests",
		Buckets: prometheus.DefBuckets,
	})

	PipelineDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trackd_pipeline_duration_seconds",
		Help:    "Duration of the post-resolution pipeline up to response assembly",
		Buckets: prometheus.DefBuckets,
	})

	ProfileLockWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trackd_profile_lock_wait_seconds",
		Help:    "Time spent waiting for the profile synchronizer lease",
		Buckets: []float64{.001, .01, .05, .1, .5, 1, 2, 5, 10},
	})
)

// ObserveTrack records one finished track request.
func ObserveTrack(status string, seconds float64) {
	TrackRequestsTotal.WithLabelValues(status).Inc()
	TrackDuration.Observe(seconds)
}
