// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"encoding/json"

	"github.com/trackdhq/trackd/internal/domain"
	"github.com/trackdhq/trackd/internal/storage"
)

// Sources reads the event source index.
type Sources struct {
	driver storage.Driver
	res    storage.Resolver
}

// Load returns the source configuration or nil when unknown.
func (s *Sources) Load(ctx context.Context, id string) (*domain.EventSource, error) {
	raw, err := s.driver.Load(ctx, s.res.Alias(storage.IndexSource), id)
	if err != nil || raw == nil {
		return nil, err
	}
	var source domain.EventSource
	if err := json.Unmarshal(raw, &source); err != nil {
		return nil, err
	}
	return &source, nil
}

// Rules reads the routing rule index.
type Rules struct {
	driver storage.Driver
	res    storage.Resolver
}

// LoadEnabled returns the enabled rules routing the given event types from
// the given source.
func (s *Rules) LoadEnabled(ctx context.Context, sourceID string, eventTypes []string) ([]domain.Rule, error) {
	if len(eventTypes) == 0 {
		return nil, nil
	}
	query := map[string]any{
		"size": 1000,
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []any{
					map[string]any{"term": map[string]any{"source.id": sourceID}},
					map[string]any{"terms": map[string]any{"event.id": eventTypes}},
					map[string]any{"term": map[string]any{"enabled": true}},
				},
			},
		},
	}
	records, err := s.driver.Search(ctx, s.res.Alias(storage.IndexRule), query)
	if err != nil {
		return nil, err
	}
	rules := make([]domain.Rule, 0, len(records.Hits))
	for _, hit := range records.Hits {
		var rule domain.Rule
		if err := hit.Decode(&rule); err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// Flows reads the workflow index. Flow bodies are opaque to the core; the
// rules engine interprets them.
type Flows struct {
	driver storage.Driver
	res    storage.Resolver
}

// LoadProduction returns the raw production flow document or nil.
func (s *Flows) LoadProduction(ctx context.Context, id string) (json.RawMessage, error) {
	return s.driver.Load(ctx, s.res.Alias(storage.IndexFlow), id)
}

// Segments reads the segment index.
type Segments struct {
	driver storage.Driver
	res    storage.Resolver
}

// LoadByEventType returns segments bound to the event type.
func (s *Segments) LoadByEventType(ctx context.Context, eventType string, limit int) ([]domain.Segment, error) {
	query := map[string]any{
		"size":  limit,
		"query": map[string]any{"term": map[string]any{"event_type": eventType}},
	}
	records, err := s.driver.Search(ctx, s.res.Alias(storage.IndexSegment), query)
	if err != nil {
		return nil, err
	}
	segments := make([]domain.Segment, 0, len(records.Hits))
	for _, hit := range records.Hits {
		var segment domain.Segment
		if err := hit.Decode(&segment); err != nil {
			return nil, err
		}
		segments = append(segments, segment)
	}
	return segments, nil
}

// EventTypes reads the event type metadata index. Documents are keyed by the
// event type itself.
type EventTypes struct {
	driver storage.Driver
	res    storage.Resolver
}

// Load returns the metadata of the event type or nil when the type carries
// none.
func (s *EventTypes) Load(ctx context.Context, eventType string) (*domain.EventTypeMetadata, error) {
	raw, err := s.driver.Load(ctx, s.res.Alias(storage.IndexEventTag), eventType)
	if err != nil || raw == nil {
		return nil, err
	}
	var meta domain.EventTypeMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}
