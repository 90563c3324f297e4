// SPDX-License-Identifier: MIT

package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event statuses as persisted in event metadata.
const (
	StatusCollected = "collected"
	StatusProcessed = "processed"
	StatusError     = "error"
	StatusWarning   = "warning"
)

// ProcessedBy records which parts of the pipeline touched an event.
type ProcessedBy struct {
	Rules []string `json:"rules,omitempty"`
}

// EventTime is the time block of event metadata. ProcessTime is the seconds
// between payload ingestion and persistence.
type EventTime struct {
	Insert      time.Time `json:"insert"`
	ProcessTime float64   `json:"process_time"`
}

// EventMetadata carries the event's lifecycle state.
type EventMetadata struct {
	Time        EventTime   `json:"time"`
	Status      string      `json:"status"`
	Debug       bool        `json:"debug"`
	Valid       bool        `json:"valid"`
	Error       bool        `json:"error"`
	Warning     bool        `json:"warning"`
	ProcessedBy ProcessedBy `json:"processed_by"`
}

// EventSession points the event at the session it was collected in, with the
// session timing copied in for query convenience.
type EventSession struct {
	ID       string    `json:"id"`
	Start    time.Time `json:"start,omitempty"`
	Duration float64   `json:"duration,omitempty"`
}

// Event is a single tracked occurrence materialized from an EventPayload and
// the resolved source, session and profile.
type Event struct {
	Entity
	Type       string         `json:"type"`
	Metadata   EventMetadata  `json:"metadata"`
	Tags       []string       `json:"tags,omitempty"`
	Source     Entity         `json:"source"`
	Session    *EventSession  `json:"session,omitempty"`
	Profile    *Entity        `json:"profile,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
	Request    map[string]any `json:"request,omitempty"`
	Options    map[string]any `json:"options,omitempty"`
	Aux        map[string]any `json:"aux,omitempty"`

	// Update marks events the workflow substituted; persistence swaps them
	// for their post-invoke replacement. Never stored.
	Update bool `json:"-"`
}

// IsPersistent reports whether the event should be written to storage. An
// event payload may opt out with options.save=false.
func (e *Event) IsPersistent() bool {
	if e.Options == nil {
		return true
	}
	if save, ok := e.Options["save"].(bool); ok {
		return save
	}
	return true
}

// UnionTags merges extra tags into the event tag set. The result is
// lower-cased, deduplicated and sorted.
func (e *Event) UnionTags(extra []string) {
	set := make(map[string]struct{}, len(e.Tags)+len(extra))
	for _, t := range e.Tags {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			set[t] = struct{}{}
		}
	}
	for _, t := range extra {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			set[t] = struct{}{}
		}
	}
	tags := make([]string, 0, len(set))
	for t := range set {
		tags = append(tags, t)
	}
	sort.Strings(tags)
	e.Tags = tags
}

// EventPayload is one event of the tracker payload envelope.
type EventPayload struct {
	ID         string         `json:"id,omitempty"`
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
	Tags       []string       `json:"tags,omitempty"`
	Options    map[string]any `json:"options,omitempty"`
}

// ToEvent materializes the payload event under the resolved track context.
func (ep EventPayload) ToEvent(meta Time, source Entity, session *Session, profile *Profile, hasProfile bool) *Event {
	id := ep.ID
	if id == "" {
		id = uuid.NewString()
	}
	event := &Event{
		Entity: Entity{ID: id},
		Type:   ep.Type,
		Metadata: EventMetadata{
			Time:   EventTime{Insert: meta.Insert},
			Status: StatusCollected,
			Valid:  true,
		},
		Source:     source,
		Context:    ep.Context,
		Properties: ep.Properties,
		Options:    ep.Options,
	}
	event.UnionTags(ep.Tags)
	if session != nil {
		event.Session = &EventSession{
			ID:       session.ID,
			Start:    session.Metadata.Time.Insert,
			Duration: session.Metadata.Time.Duration,
		}
	}
	if hasProfile && profile != nil {
		event.Profile = &Entity{ID: profile.ID}
	}
	return event
}
