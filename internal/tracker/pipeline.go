// SPDX-License-Identifier: MIT

package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"

	"github.com/trackdhq/trackd/internal/domain"
	"github.com/trackdhq/trackd/internal/metrics"
)

// runPipeline is step two of the track process: visit accounting, event
// materialization, validation, workflows, segmentation, profile merging,
// persistence, destination dispatch and response assembly. Stage failures in
// the external engines are recorded to the console log and swallowed; only
// persistence errors fail the request.
func (t *Tracker) runPipeline(ctx context.Context, payload *domain.TrackerPayload, source *domain.EventSource, profileLess bool, profile *domain.Profile, session *domain.Session) (*Response, error) {
	started := time.Now()
	defer func() {
		metrics.PipelineDuration.Observe(time.Since(started).Seconds())
	}()

	consoleLog := &domain.ConsoleLog{}
	hasProfile := !profileLess && profile != nil

	if profileLess && profile != nil {
		t.logger.Warn().Str("payload_id", payload.GetID()).Msg("profile less payload resolved a profile")
	}

	// Visit accounting happens on the first payload of a session only.
	if hasProfile && session != nil && session.Operation.New {
		profile.Metadata.Time.Visit.Shift(time.Now().UTC())
		profile.Metadata.Time.Visit.Count++
		profile.Operation.Update = true
		if tz, ok := session.ContextTimeZone(); ok {
			profile.Metadata.Time.Visit.TZ = tz
		}
	}

	// Snapshot for the destination diff after the pipeline ran.
	var profileBefore map[string]any
	if hasProfile {
		profileBefore = profile.Snapshot()
	}

	events := t.materializeEvents(payload, source, session, profile, hasProfile)
	events = t.validateAndReshape(ctx, events, profile, session, payload, consoleLog)

	var (
		debugger     Debugger
		segmentation []SegmentationEntry
		ux           = []map[string]any{}
		flowResps    []map[string]any
		postInvoke   map[string]*domain.Event
	)

	rules, err := t.loadRules(ctx, source.ID, eventTypes(events), profile)
	if err != nil {
		t.stageFailure(consoleLog, profile, "rules", fmt.Errorf("routing rules could not be loaded: %w", err))
	}

	// No routing rules means no workflows, no segmentation and no merging.
	if len(rules) > 0 {
		invocation := RulesInvocation{
			Payload:    payload,
			Profile:    profile,
			Session:    session,
			Events:     events,
			Rules:      rules,
			ConsoleLog: consoleLog,
			FlowLoader: t.flowLoader(),
			UX:         &ux,
		}

		result, err := t.rules.Invoke(ctx, invocation)
		if err != nil {
			t.stageFailure(consoleLog, profile, "rules", err)
		} else if result != nil {
			debugger = result.Debugger
			postInvoke = result.PostInvokeEvents
			flowResps = result.FlowResponses

			// Workflows may substitute the profile or the session.
			if result.Profile != nil && result.Profile != profile {
				profile = result.Profile
			}
			if result.Session != nil && result.Session != session {
				session = result.Session
			}

			for _, event := range events {
				if invoked, ok := result.InvokedRules[event.Type]; ok {
					event.Metadata.ProcessedBy.Rules = invoked
				}
			}

			if hasProfile && profile != nil {
				segmentation, err = t.segmenter.Segment(ctx, profile, result.RanEventTypes, t.segmentLoader())
				if err != nil {
					t.stageFailure(consoleLog, profile, "segmentation", err)
				}
			}
		}

		if profile != nil && profile.Operation.NeedsMerging() {
			merged, err := t.merger.Merge(ctx, profile, mergeKeyValues(profile), true, 1000)
			if err != nil {
				t.stageFailure(consoleLog, profile, "merge", err)
			} else if merged != nil {
				profile = merged
			}
		}
	}

	// Swap events the workflows replaced.
	if len(postInvoke) > 0 {
		for i, event := range events {
			if event.Update {
				if replacement, ok := postInvoke[event.ID]; ok {
					events[i] = replacement
				}
			}
		}
	}

	collected, err := t.persist(ctx, consoleLog, session, events, payload, profile)
	if err != nil {
		return nil, err
	}

	var group errgroup.Group
	if consoleLog.Len() > 0 {
		records := consoleLog.Records()
		group.Go(func() error {
			if _, err := t.store.ConsoleLogs.SaveAll(ctx, records); err != nil {
				t.logger.Error().Err(err).Msg("could not save console log")
			}
			return nil
		})
	}
	// Call traces persist when the server runs with track debug or the
	// request asked for the debugger; the response debugging block still
	// requires both.
	if (t.cfg.TrackDebug || payload.IsOn(domain.OptionDebugger, false)) && debugger != nil && debugger.HasCallTraces() {
		group.Go(func() error {
			if _, err := t.store.DebugInfo.Save(ctx, debugger); err != nil {
				t.stageFailure(consoleLog, profile, "debug-info", err)
			}
			return nil
		})
	}

	// Destinations run only when the pipeline actually changed the profile.
	if hasProfile && profileBefore != nil && profile != nil {
		if delta := cmp.Diff(profileBefore, profile.Snapshot()); delta != "" {
			t.logger.Info().Str("profile_id", profile.ID).Msg("profile changed, dispatching to destinations")
			if err := t.dispatcher.Send(ctx, delta, profile, session, events); err != nil {
				t.stageFailure(consoleLog, profile, "destination", err)
			}
		}
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	return t.buildResponse(payload, source, profileLess, profile, collected, debugger, segmentation, ux, flowResps, consoleLog), nil
}

// materializeEvents turns the payload events into Event documents under the
// resolved track context.
func (t *Tracker) materializeEvents(payload *domain.TrackerPayload, source *domain.EventSource, session *domain.Session, profile *domain.Profile, hasProfile bool) []*domain.Event {
	debugging := payload.IsDebuggingOn(t.cfg.TrackDebug)
	events := make([]*domain.Event, 0, len(payload.Events))
	for _, ep := range payload.Events {
		event := ep.ToEvent(payload.Metadata.Time, domain.Entity{ID: source.ID}, session, profile, hasProfile)
		event.Metadata.Debug = debugging
		event.Request = mergeMaps(event.Request, payload.Request)
		events = append(events, event)
	}
	return events
}

// stageFailure converts a pipeline stage error into a console record. The
// request continues; the record surfaces through the console-log index and
// the debug response.
func (t *Tracker) stageFailure(consoleLog *domain.ConsoleLog, profile *domain.Profile, origin string, err error) {
	t.logger.Error().Err(err).Str("stage", origin).Msg("pipeline stage failed")
	consoleLog.Append(domain.Console{
		ProfileID: profileID(profile),
		Origin:    origin,
		Class:     "pipeline",
		Type:      domain.ConsoleError,
		Message:   err.Error(),
		Traceback: fmt.Sprintf("%+v", err),
	})
}

// eventTypes returns the distinct types of the valid events, in order of
// first appearance.
func eventTypes(events []*domain.Event) []string {
	seen := make(map[string]struct{}, len(events))
	var types []string
	for _, event := range events {
		if !event.Metadata.Valid {
			continue
		}
		if _, ok := seen[event.Type]; ok {
			continue
		}
		seen[event.Type] = struct{}{}
		types = append(types, event.Type)
	}
	return types
}

// mergeKeyValues extracts the profile attributes marked as merge keys with
// their current values.
func mergeKeyValues(profile *domain.Profile) []MergeKeyValue {
	accessor := profileFields(profile)
	values := make([]MergeKeyValue, 0, len(profile.Operation.Merge))
	for _, field := range profile.Operation.Merge {
		if value, ok := accessor[field]; ok {
			if s, ok := value.(string); ok && s != "" {
				values = append(values, MergeKeyValue{Field: field, Value: s})
			}
		}
	}
	return values
}

// profileFields flattens the public traits and PII into dotted field names
// used by merge keys.
func profileFields(profile *domain.Profile) map[string]any {
	fields := make(map[string]any)
	for k, v := range profile.Traits.Public {
		fields["traits.public."+k] = v
	}
	for k, v := range profile.PII {
		fields["pii."+k] = v
	}
	return fields
}

// mergeMaps overlays src onto dst, allocating dst when needed.
func mergeMaps(dst, src map[string]any) map[string]any {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
