// SPDX-License-Identifier: MIT

package domain

import "time"

// SessionTime is the time block of session metadata. Timestamp records the
// last moment the session binding changed; Duration is maintained by the
// collector in seconds.
type SessionTime struct {
	Insert    time.Time `json:"insert"`
	Timestamp float64   `json:"timestamp,omitempty"`
	Duration  float64   `json:"duration,omitempty"`
}

// SessionMetadata describes session timing and the channel it arrived on.
type SessionMetadata struct {
	Time    SessionTime `json:"time"`
	Channel string      `json:"channel,omitempty"`
}

// Session spans many tracker payloads sharing a session id. It keeps an
// optional weak back-reference to the profile it was resolved against.
type Session struct {
	Entity
	Metadata   SessionMetadata `json:"metadata"`
	Profile    *Entity         `json:"profile,omitempty"`
	Context    map[string]any  `json:"context,omitempty"`
	Properties map[string]any  `json:"properties,omitempty"`
	Operation  Operation       `json:"operation"`
}

// NewSession creates a session with the given id, stamped with the current
// insert time.
func NewSession(id string) *Session {
	return &Session{
		Entity: Entity{ID: id},
		Metadata: SessionMetadata{
			Time: SessionTime{Insert: time.Now().UTC()},
		},
	}
}

// MergeContext merges the payload context and properties into the session,
// overwriting existing keys.
func (s *Session) MergeContext(context, properties map[string]any) {
	if len(context) > 0 {
		if s.Context == nil {
			s.Context = make(map[string]any, len(context))
		}
		for k, v := range context {
			s.Context[k] = v
		}
	}
	if len(properties) > 0 {
		if s.Properties == nil {
			s.Properties = make(map[string]any, len(properties))
		}
		for k, v := range properties {
			s.Properties[k] = v
		}
	}
}

// ContextTimeZone digs session.context.time.tz out of the context mapping.
func (s *Session) ContextTimeZone() (string, bool) {
	if s == nil || s.Context == nil {
		return "", false
	}
	t, ok := s.Context["time"].(map[string]any)
	if !ok {
		return "", false
	}
	tz, ok := t["tz"].(string)
	return tz, ok && tz != ""
}
