// SPDX-License-Identifier: MIT

package tracker

import (
	"context"
	"encoding/json"

	"github.com/trackdhq/trackd/internal/domain"
)

// FlowLoader loads a production workflow document by id.
type FlowLoader func(ctx context.Context, id string) (json.RawMessage, error)

// Debugger carries per-rule call traces produced by the rules engine. The
// core only asks whether anything is worth persisting.
type Debugger interface {
	HasCallTraces() bool
}

// RulesInvocation is the input of one rules engine run.
type RulesInvocation struct {
	Payload    *domain.TrackerPayload
	Profile    *domain.Profile
	Session    *domain.Session
	Events     []*domain.Event
	Rules      map[string][]domain.Rule
	ConsoleLog *domain.ConsoleLog
	FlowLoader FlowLoader

	// UX collects user-experience fragments workflows emit; the sink is
	// shared with the response assembly.
	UX *[]map[string]any
}

// RuleInvokeResult is what the rules engine hands back after running the
// workflows routed to the payload's events.
type RuleInvokeResult struct {
	Debugger      Debugger
	RanEventTypes []string

	// PostInvokeEvents maps event ids to the replacement a workflow produced.
	PostInvokeEvents map[string]*domain.Event

	// InvokedRules maps event types to the names of the rules that ran.
	InvokedRules map[string][]string

	FlowResponses []map[string]any

	// Profile and Session are the (possibly substituted) entities after the
	// workflows mutated them.
	Profile *domain.Profile
	Session *domain.Session
}

// RulesEngine executes the workflows routed to a payload. Internals are out
// of the core's scope; the engine is wired in at startup.
type RulesEngine interface {
	Invoke(ctx context.Context, in RulesInvocation) (*RuleInvokeResult, error)
}

// SegmentLoader loads the segments bound to an event type.
type SegmentLoader func(ctx context.Context, eventType string, limit int) ([]domain.Segment, error)

// SegmentationEntry records one segmentation decision for debug output.
type SegmentationEntry struct {
	EventType string `json:"event_type"`
	SegmentID string `json:"segment_id"`
	Error     string `json:"error,omitempty"`
}

// Segmenter re-evaluates profile segment membership after workflows ran.
type Segmenter interface {
	Segment(ctx context.Context, profile *domain.Profile, eventTypes []string, load SegmentLoader) ([]SegmentationEntry, error)
}

// MergeKeyValue is one merge key of a profile with its current value.
type MergeKeyValue struct {
	Field string
	Value string
}

// ProfileMerger collapses profile documents sharing merge-key values into one
// canonical profile. A nil result means nothing was merged.
type ProfileMerger interface {
	Merge(ctx context.Context, profile *domain.Profile, mergeBy []MergeKeyValue, overrideOld bool, limit int) (*domain.Profile, error)
}

// DestinationDispatcher forwards profile changes to configured destinations.
// Invoked only when the pipeline actually changed the profile.
type DestinationDispatcher interface {
	Send(ctx context.Context, delta string, profile *domain.Profile, session *domain.Session, events []*domain.Event) error
}

// Nop engine implementations wired by default; deployments replace them with
// real engines.
type (
	NopRulesEngine   struct{}
	NopSegmenter     struct{}
	NopProfileMerger struct{}
	NopDispatcher    struct{}
)

func (NopRulesEngine) Invoke(_ context.Context, in RulesInvocation) (*RuleInvokeResult, error) {
	return &RuleInvokeResult{Profile: in.Profile, Session: in.Session}, nil
}

func (NopSegmenter) Segment(context.Context, *domain.Profile, []string, SegmentLoader) ([]SegmentationEntry, error) {
	return nil, nil
}

func (NopProfileMerger) Merge(context.Context, *domain.Profile, []MergeKeyValue, bool, int) (*domain.Profile, error) {
	return nil, nil
}

func (NopDispatcher) Send(context.Context, string, *domain.Profile, *domain.Session, []*domain.Event) error {
	return nil
}
