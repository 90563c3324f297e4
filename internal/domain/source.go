// SPDX-License-Identifier: MIT

package domain

// EventSource is the configuration of an ingesting channel. Its Kind is the
// bridge the events arrive through and is validated against the endpoint's
// allow-list.
type EventSource struct {
	Entity
	Name    string `json:"name,omitempty"`
	Kind    string `json:"kind"`
	Channel string `json:"channel,omitempty"`
	Enabled bool   `json:"enabled"`

	// ReturnsProfile controls whether a full profile may be returned to the
	// caller; when false the track response carries the profile id only.
	ReturnsProfile bool `json:"returns_profile"`

	// Transitional sources collect events that pass through the workflow but
	// are never persisted, and neither are their sessions.
	Transitional bool `json:"transitional"`

	// SynchronizeProfiles serializes concurrent requests touching the same
	// profile id.
	SynchronizeProfiles bool `json:"synchronize_profiles"`

	Consent map[string]any `json:"consent,omitempty"`
}

// AllowsBridge reports whether the source kind is in the endpoint allow-list.
func (s *EventSource) AllowsBridge(allowed []string) bool {
	for _, kind := range allowed {
		if s.Kind == kind {
			return true
		}
	}
	return false
}
