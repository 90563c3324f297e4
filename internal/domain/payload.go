// SPDX-License-Identifier: MIT

package domain

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Options recognized on a tracker payload.
const (
	OptionProfile     = "profile"
	OptionSaveSession = "saveSession"
	OptionSaveEvents  = "saveEvents"
	OptionDebugger    = "debugger"
)

// PayloadMetadata stamps the payload with its ingestion time.
type PayloadMetadata struct {
	Time Time `json:"time"`
}

// TrackerPayload is the request envelope: a batch of events from one source,
// optionally bound to a session and a profile. Unknown inbound fields are
// tolerated by the decoder.
type TrackerPayload struct {
	Source      Entity          `json:"source"`
	Session     *Entity         `json:"session,omitempty"`
	Profile     *Entity         `json:"profile,omitempty"`
	Metadata    PayloadMetadata `json:"metadata"`
	Context     map[string]any  `json:"context,omitempty"`
	Properties  map[string]any  `json:"properties,omitempty"`
	Request     map[string]any  `json:"request,omitempty"`
	Events      []EventPayload  `json:"events,omitempty"`
	Options     map[string]any  `json:"options,omitempty"`
	ProfileLess bool            `json:"profile_less"`

	id string
}

// Init assigns the opaque request id and the insert time. Must be called once
// after the payload is decoded and before any other method.
func (p *TrackerPayload) Init() {
	p.id = uuid.NewString()
	p.Metadata.Time.Insert = time.Now().UTC()
}

// GetID returns the request id assigned at construction.
func (p *TrackerPayload) GetID() string {
	return p.id
}

// TrimIDs strips surrounding whitespace from the source, session and profile
// ids. Stray spaces in collector-supplied ids are a frequent issue.
func (p *TrackerPayload) TrimIDs() {
	p.Source.ID = strings.TrimSpace(p.Source.ID)
	if p.Session != nil {
		p.Session.ID = strings.TrimSpace(p.Session.ID)
	}
	if p.Profile != nil {
		p.Profile.ID = strings.TrimSpace(p.Profile.ID)
	}
}

// SetHeaders stores request headers after redacting credentials. Headers
// never contain authorization or cookie values past ingestion.
func (p *TrackerPayload) SetHeaders(headers map[string]string) {
	redacted := make(map[string]any, len(headers))
	for k, v := range headers {
		switch strings.ToLower(k) {
		case "authorization", "cookie":
			continue
		}
		redacted[k] = v
	}
	if p.Request == nil {
		p.Request = map[string]any{}
	}
	p.Request["headers"] = redacted
}

// Fingerprint returns the SHA-1 hex digest of the payload's stable fields.
// Events and metadata are excluded; map keys serialize in sorted order so the
// digest is independent of inbound key ordering.
func (p *TrackerPayload) Fingerprint() (string, error) {
	stable := struct {
		Source      Entity         `json:"source"`
		Session     *Entity        `json:"session"`
		Profile     *Entity        `json:"profile"`
		Context     map[string]any `json:"context"`
		Properties  map[string]any `json:"properties"`
		Request     map[string]any `json:"request"`
		Options     map[string]any `json:"options"`
		ProfileLess bool           `json:"profile_less"`
	}{
		Source:      p.Source,
		Session:     p.Session,
		Profile:     p.Profile,
		Context:     p.Context,
		Properties:  p.Properties,
		Request:     p.Request,
		Options:     p.Options,
		ProfileLess: p.ProfileLess,
	}
	raw, err := json.Marshal(stable)
	if err != nil {
		return "", err
	}
	sum := sha1.Sum(raw)
	return hex.EncodeToString(sum[:]), nil
}

// IsOn reads a boolean option, falling back to the default when the option is
// absent or not a boolean.
func (p *TrackerPayload) IsOn(key string, defaultValue bool) bool {
	v, ok := p.Options[key]
	if !ok {
		return defaultValue
	}
	b, ok := v.(bool)
	if !ok {
		return defaultValue
	}
	return b
}

// ReturnProfile reports whether the caller asked for a full profile back.
func (p *TrackerPayload) ReturnProfile() bool {
	return p.IsOn(OptionProfile, false)
}

// setOption writes an option value, allocating the map when needed.
func (p *TrackerPayload) setOption(key string, value bool) {
	if p.Options == nil {
		p.Options = map[string]any{}
	}
	p.Options[key] = value
}

// ApplySource propagates source configuration into payload options: a
// transitional source suppresses session and event persistence, and a source
// that does not return profiles forces the reduced profile view.
func (p *TrackerPayload) ApplySource(source *EventSource) {
	if source.Transitional {
		p.setOption(OptionSaveSession, false)
		p.setOption(OptionSaveEvents, false)
	}
	if !source.ReturnsProfile {
		p.setOption(OptionProfile, false)
	}
}

// ForceSession guarantees a session reference exists, generating an id when
// the collector sent none.
func (p *TrackerPayload) ForceSession() {
	if p.Session == nil || p.Session.ID == "" {
		p.Session = &Entity{ID: uuid.NewString()}
	}
}

// IsDebuggingOn reports whether this request should return debug artifacts.
// Requires both the server flag and the request option.
func (p *TrackerPayload) IsDebuggingOn(trackDebug bool) bool {
	return trackDebug && p.IsOn(OptionDebugger, false)
}
