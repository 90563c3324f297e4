// SPDX-License-Identifier: MIT

package tracker

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/trackdhq/trackd/internal/cache"
	"github.com/trackdhq/trackd/internal/domain"
)

// loadSource reads the source configuration through the source cache.
func (t *Tracker) loadSource(ctx context.Context, id string) (*domain.EventSource, error) {
	return cache.Through(ctx, t.cache, cache.NamespaceSource, id, t.cfg.SourceTTL,
		func(ctx context.Context) (*domain.EventSource, error) {
			return t.store.Sources.Load(ctx, id)
		})
}

// loadEventTypeMetadata reads the metadata of one event type through the
// event-tag cache. Returns nil when the type carries no metadata.
func (t *Tracker) loadEventTypeMetadata(ctx context.Context, eventType string) (*domain.EventTypeMetadata, error) {
	return cache.Through(ctx, t.cache, cache.NamespaceEventTag, eventType, t.cfg.EventTagTTL,
		func(ctx context.Context) (*domain.EventTypeMetadata, error) {
			return t.store.EventTypes.Load(ctx, eventType)
		})
}

// loadRules reads the enabled routing rules for the source and event types
// through the rule cache and groups them by event type. Rules whose consent
// requirements the profile does not hold are filtered out.
func (t *Tracker) loadRules(ctx context.Context, sourceID string, eventTypes []string, profile *domain.Profile) (map[string][]domain.Rule, error) {
	if len(eventTypes) == 0 {
		return nil, nil
	}
	types := append([]string(nil), eventTypes...)
	sort.Strings(types)
	key := sourceID + ":" + strings.Join(types, ",")

	rules, err := cache.Through(ctx, t.cache, cache.NamespaceRule, key, t.cfg.RuleTTL,
		func(ctx context.Context) ([]domain.Rule, error) {
			return t.store.Rules.LoadEnabled(ctx, sourceID, types)
		})
	if err != nil {
		return nil, err
	}

	var consents map[string]struct{}
	if profile != nil {
		consents = profile.ConsentIDs()
	}
	routed := make(map[string][]domain.Rule)
	for _, rule := range rules {
		if !rule.ConsentsMet(consents) {
			continue
		}
		routed[rule.Event.ID] = append(routed[rule.Event.ID], rule)
	}
	if len(routed) == 0 {
		return nil, nil
	}
	return routed, nil
}

// flowLoader returns the production-flow loader handed to the rules engine,
// reading through the flow cache.
func (t *Tracker) flowLoader() FlowLoader {
	return func(ctx context.Context, id string) (json.RawMessage, error) {
		return cache.Through(ctx, t.cache, cache.NamespaceFlow, id, t.cfg.FlowTTL,
			func(ctx context.Context) (json.RawMessage, error) {
				return t.store.Flows.LoadProduction(ctx, id)
			})
	}
}

// segmentLoader returns the segment loader handed to the segmentation
// engine, reading through the segment cache.
func (t *Tracker) segmentLoader() SegmentLoader {
	return func(ctx context.Context, eventType string, limit int) ([]domain.Segment, error) {
		return cache.Through(ctx, t.cache, cache.NamespaceSegment, eventType, t.cfg.SegmentTTL,
			func(ctx context.Context) ([]domain.Segment, error) {
				return t.store.Segments.LoadByEventType(ctx, eventType, limit)
			})
	}
}
