// SPDX-License-Identifier: MIT

package tracker

import (
	"context"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/trackdhq/trackd/internal/domain"
	"github.com/trackdhq/trackd/internal/dot"
)

// validateAndReshape runs JSON-schema validation and property reshaping over
// the materialized events. Violations and reshape failures become console
// records; the affected events are kept, but invalid ones are skipped by the
// rules engine downstream.
func (t *Tracker) validateAndReshape(ctx context.Context, events []*domain.Event, profile *domain.Profile, session *domain.Session, payload *domain.TrackerPayload, consoleLog *domain.ConsoleLog) []*domain.Event {
	accessor := dot.New()
	bind := func(scope string, doc any) {
		if err := accessor.Bind(scope, doc); err != nil {
			t.logger.Warn().Err(err).Str("scope", scope).Msg("could not bind accessor scope")
		}
	}
	bind("profile", profile)
	bind("session", session)
	bind("payload", payload)

	for _, event := range events {
		bind("event", event)

		meta, err := t.loadEventTypeMetadata(ctx, event.Type)
		if err != nil {
			t.logger.Warn().Err(err).Str("event_type", event.Type).Msg("could not load event type metadata")
			continue
		}
		if meta == nil {
			continue
		}

		t.validateEvent(event, meta, profile, consoleLog)
		t.reshapeEvent(event, meta, accessor, profile, consoleLog)
	}
	return events
}

// validateEvent checks the event properties against the type's JSON schema,
// when one is active. A violating event is marked invalid and every
// violation lands in the console log.
func (t *Tracker) validateEvent(event *domain.Event, meta *domain.EventTypeMetadata, profile *domain.Profile, consoleLog *domain.ConsoleLog) {
	if !meta.IndexEnabled || meta.IndexSchema == nil {
		return
	}

	schema := gojsonschema.NewGoLoader(meta.IndexSchema)
	properties := event.Properties
	if properties == nil {
		properties = map[string]any{}
	}
	result, err := gojsonschema.Validate(schema, gojsonschema.NewGoLoader(properties))
	if err != nil {
		event.Metadata.Valid = false
		consoleLog.Append(domain.Console{
			EventID:   event.ID,
			ProfileID: profileID(profile),
			Origin:    "tracker",
			Class:     "validator",
			Type:      domain.ConsoleError,
			Message:   fmt.Sprintf("event type %q schema could not be evaluated: %s", event.Type, err),
		})
		return
	}
	if result.Valid() {
		return
	}

	event.Metadata.Valid = false
	for _, violation := range result.Errors() {
		consoleLog.Append(domain.Console{
			EventID:   event.ID,
			ProfileID: profileID(profile),
			Origin:    "tracker",
			Class:     "validator",
			Type:      domain.ConsoleError,
			Message:   fmt.Sprintf("event type %q failed validation: %s", event.Type, violation),
		})
	}
}

// reshapeEvent rewrites the event properties according to the type's reshape
// map of target property to dotted source path. A failing path leaves the
// event untouched and records a console error.
func (t *Tracker) reshapeEvent(event *domain.Event, meta *domain.EventTypeMetadata, accessor *dot.Accessor, profile *domain.Profile, consoleLog *domain.ConsoleLog) {
	if len(meta.Reshape) == 0 {
		return
	}

	reshaped := make(map[string]any, len(meta.Reshape))
	for target, path := range meta.Reshape {
		value, err := accessor.Get(path)
		if err != nil {
			consoleLog.Append(domain.Console{
				EventID:   event.ID,
				ProfileID: profileID(profile),
				Origin:    "tracker",
				Class:     "reshaper",
				Type:      domain.ConsoleError,
				Message:   fmt.Sprintf("reshape of event type %q failed: %s", event.Type, err),
				Traceback: fmt.Sprintf("%+v", err),
			})
			return
		}
		dot.SetPath(reshaped, target, value)
	}
	event.Properties = reshaped
}

// profileID is a nil-safe profile id for console records.
func profileID(profile *domain.Profile) string {
	if profile == nil {
		return ""
	}
	return profile.ID
}
